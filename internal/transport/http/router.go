package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"recordstore/internal/platform/middleware"
)

// NewRouter wires all endpoints. Record routes carry the full middleware
// chain; probes and metrics stay outside it so orchestration traffic is cheap
// and never rate-limited by the request timeout.
func NewRouter(h *Handler, logger *slog.Logger, budget time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", h.handleLiveness)
	r.Get("/readyz", h.handleReadiness)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Recovery(logger))
		r.Use(middleware.RequestID)
		r.Use(middleware.Logger(logger))
		r.Use(middleware.Timeout(budget))
		r.Post("/v1/records", h.handleWrite)
		r.Get("/v1/records/{id}", h.handleRead)
	})

	return r
}
