package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"procurement/internal/workflow"
)

type ctxKey int

const actorKey ctxKey = iota

func WithActor(ctx context.Context, a workflow.Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

func ActorFrom(ctx context.Context) (workflow.Actor, bool) {
	a, ok := ctx.Value(actorKey).(workflow.Actor)
	return a, ok
}

// Middleware требует Bearer-токен и кладёт workflow.Actor в контекст запроса.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
			unauthorized(w, "missing or malformed Authorization header")
			return
		}
		actor, err := g.Resolve(r.Context(), strings.TrimSpace(token))
		if errors.Is(err, ErrUnauthorized) {
			unauthorized(w, "invalid or expired token")
			return
		}
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"reason": "internal error"})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

func unauthorized(w http.ResponseWriter, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="procurement"`)
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"reason": reason})
}
