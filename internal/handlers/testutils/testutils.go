package testutils

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"procurement/internal/auth"
	"procurement/internal/workflow"
)

// WithChiURLParams подставляет параметры пути в контекст chi запроса для тестов.
func WithChiURLParams(req *http.Request, params map[string]string) *http.Request {
	chiCtx := chi.NewRouteContext()
	for k, v := range params {
		chiCtx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, chiCtx))
}

// AsActor: запрос, прошедший auth.Gate.Middleware от имени actor,
// с параметрами пути chi.
func AsActor(req *http.Request, actor workflow.Actor, params map[string]string) *http.Request {
	req = req.WithContext(auth.WithActor(req.Context(), actor))
	return WithChiURLParams(req, params)
}
