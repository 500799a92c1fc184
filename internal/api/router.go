package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(webhook *WebhookHandler, health http.HandlerFunc) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", health)
	r.Get("/webhook", webhook.Challenge)
	r.Post("/webhook", webhook.Receive)
	r.Post("/webhook/fluxlabs", webhook.ReceiveFluxlabs)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
