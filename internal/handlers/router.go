package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// RequestObserver считает ответы по методу и коду.
type RequestObserver interface {
	ObserveRequest(method string, code int)
}

// RequestLogger пишет access-лог через zap и передаёт код ответа в obs.
func RequestLogger(log *zap.Logger, obs RequestObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				if obs != nil {
					obs.ObserveRequest(r.Method, status)
				}
				log.Info("request",
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", status),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("elapsed", time.Since(start)),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// Routes собирает маршруты /api. authenticate оборачивает всё, кроме ping и login.
func (h *Handler) Routes(authenticate func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/ping", h.PingHandler)
	r.Post("/auth/login", h.LoginHandler)

	r.Group(func(r chi.Router) {
		r.Use(authenticate)

		// технические задания
		r.Post("/trs", h.CreateTRHandler)
		r.Get("/trs", h.ListTRsHandler)
		r.Get("/trs/{trId}", h.GetTRHandler)
		r.Put("/trs/{trId}", h.UpdateTRHandler)
		r.Post("/trs/{trId}/submit", h.SubmitTRHandler)
		r.Post("/trs/{trId}/decision", h.DecideTRHandler)

		// закупки
		r.Post("/procurements", h.CreateProcurementHandler)
		r.Get("/procurements", h.ListProcurementsHandler)
		r.Route("/procurements/{procurementId}", func(r chi.Router) {
			r.Get("/", h.GetProcurementHandler)
			r.Patch("/", h.EditProcurementHandler)
			r.Put("/tr", h.LinkTRHandler)
			r.Post("/open", h.OpenProcurementHandler)
			r.Post("/close", h.CloseProcurementHandler)
			r.Post("/finalize", h.FinalizeProcurementHandler)
			r.Post("/invites", h.InviteHandler)
			r.Get("/invites", h.ListInvitesHandler)
			r.Put("/proposal", h.UpsertProposalHandler)
			r.Get("/proposals", h.ListProposalsHandler)
			r.Get("/comparison", h.ComparisonHandler)
			r.Get("/comparison.xlsx", h.ComparisonXLSXHandler)
		})
		r.Post("/invites/accept", h.AcceptInviteHandler)

		// предложения
		r.Get("/proposals/{proposalId}", h.GetProposalHandler)
		r.Post("/proposals/{proposalId}/submit", h.SubmitProposalHandler)
		r.Post("/proposals/{proposalId}/review", h.ReviewProposalHandler)
	})
	return r
}

// NewRouter собирает корневой роутер сервера. metrics может быть nil.
func NewRouter(h *Handler, authenticate func(http.Handler) http.Handler, obs RequestObserver, metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(h.Log, obs))
	r.Use(middleware.Recoverer)

	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}
	r.Mount("/api", h.Routes(authenticate))
	return r
}
