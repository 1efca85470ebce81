package server

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/codesentry/codesentry/internal/config"
	"github.com/codesentry/codesentry/internal/core"
	"github.com/codesentry/codesentry/internal/server/handler"
)

// NewRouter creates and configures a new HTTP router with middleware and API routes.
func NewRouter(cfg *config.Config, dispatcher core.JobDispatcher, store core.Store, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// Configure middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	reviewsHandler := handler.NewReviewsHandler(store, logger)

	// Health check endpoint
	r.Get("/health", reviewsHandler.Health)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		webhookHandler := handler.NewWebhookHandler(cfg.GitHub, dispatcher, logger)
		r.Post("/webhook/github", webhookHandler.Handle)

		r.Get("/reviews", reviewsHandler.List)
		r.Get("/reviews/{id}", reviewsHandler.Get)
		r.Get("/repos/{owner}/{repo}/reviews", reviewsHandler.ListForRepo)
		r.Get("/stats", reviewsHandler.Stats)
	})

	return r
}
