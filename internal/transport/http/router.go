package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"veritas/internal/platform/middleware"
)

// NewRouter wires all public endpoints. The audit subtree registers an
// explicit catch-all for mutating verbs so update/delete attempts get 405
// regardless of path shape.
func NewRouter(h *Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Post("/v1/events", h.handleProcess)

	r.Route("/v1/audit", func(r chi.Router) {
		r.MethodNotAllowed(h.handleAuditMutation)
		r.Get("/events", h.handleListAudit)
		r.Get("/verify", h.handleVerifyAudit)
		for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete} {
			r.Method(method, "/*", http.HandlerFunc(h.handleAuditMutation))
			r.Method(method, "/", http.HandlerFunc(h.handleAuditMutation))
		}
	})

	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
