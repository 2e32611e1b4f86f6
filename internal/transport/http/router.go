package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"stocksync/internal/config"
	"stocksync/internal/middleware"
	"stocksync/internal/services"
)

// RouterDeps are the dependencies the API router wires together
type RouterDeps struct {
	Sync           services.SyncService
	License        services.LicenseService
	Logs           services.LogService
	Health         *services.HealthService
	MetricsHandler http.Handler
	Server         config.ServerConfig
	Logger         *slog.Logger
}

// NewRouter assembles the API router with the full middleware chain
func NewRouter(deps RouterDeps) *chi.Mux {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.StructuredLogger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(render.SetContentType(render.ContentTypeJSON))

	rateLimiter := middleware.NewRateLimiter(deps.Server.RateLimitRPS, deps.Server.RateLimitBurst, logger)

	r.Route("/api", func(api chi.Router) {
		api.Use(rateLimiter.Handler)

		api.Mount("/sync", NewSyncHandler(deps.Sync, logger).Routes())
		api.Mount("/license", NewLicenseHandler(deps.License, logger).Routes())
		api.Mount("/logs", NewLogHandler(deps.Logs, logger).Routes())
		api.Get("/health", NewHealthHandler(deps.Health, logger).Check)
	})

	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	return r
}
