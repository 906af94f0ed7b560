// Package api provides HTTP API server components.
package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/fusemem/fusemem/config"
	"github.com/fusemem/fusemem/pkg/api/handlers"
	"github.com/fusemem/fusemem/pkg/api/middleware"
	"github.com/fusemem/fusemem/pkg/logger"
)

// Handlers holds all HTTP handlers.
type Handlers struct {
	// Search handles retrieval endpoints
	Search *handlers.SearchHandler

	// Feedback handles relevance feedback endpoints
	Feedback *handlers.FeedbackHandler

	// Policy exposes weight profiles, tuner state and recorded misses
	Policy *handlers.PolicyHandler

	// Documents feeds the in-process source indexes
	Documents *handlers.DocumentsHandler

	// Health handles health check endpoints
	Health *handlers.HealthHandler

	// Events streams miss and retune events over websocket
	Events *handlers.EventsHandler

	// Metrics is the optional metrics recorder
	Metrics middleware.MetricsRecorder
}

// NewRouter creates a new chi router with middleware and routes.
func NewRouter(cfg *config.Config, log logger.Logger, handlers *Handlers) chi.Router {
	r := chi.NewRouter()

	// Register global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))

	if cfg.Tracing.Enabled {
		r.Use(middleware.Tracing(middleware.DefaultTracingOptions()))
	}

	// Add metrics middleware if provided
	if handlers.Metrics != nil {
		r.Use(middleware.Metrics(handlers.Metrics))
	}

	if cfg.Server.CORS.Enabled {
		r.Use(middleware.CORS(&cfg.Server.CORS))
	}

	if cfg.Server.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(
			cfg.Server.RateLimit.RequestsPerSecond,
			cfg.Server.RateLimit.Burst,
		)
		r.Use(middleware.RateLimit(limiter))
	}

	r.Use(middleware.Timeout(cfg.Server.HTTP.RequestTimeout))

	// Register routes
	RegisterRoutes(r, handlers)

	return r
}

// RegisterRoutes registers all API routes.
func RegisterRoutes(r chi.Router, handlers *Handlers) {
	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		if handlers.Search != nil {
			r.Post("/search", handlers.Search.Search)
			r.Get("/classify", handlers.Search.Classify)
		}

		if handlers.Feedback != nil {
			r.Post("/feedback", handlers.Feedback.Submit)
		}

		if handlers.Documents != nil {
			r.Post("/documents", handlers.Documents.Index)
			r.Delete("/documents/{id}", handlers.Documents.Delete)
		}

		if handlers.Policy != nil {
			r.Route("/policy", func(r chi.Router) {
				r.Get("/", handlers.Policy.Profiles)
				r.Get("/bandit", handlers.Policy.BanditState)
			})
			r.Get("/misses", handlers.Policy.ListMisses)
		}
	})

	// Live event stream
	if handlers.Events != nil {
		r.Get("/ws/events", handlers.Events.ServeHTTP)
	}

	// Health check routes (not versioned)
	if handlers.Health != nil {
		r.Get("/health", handlers.Health.Health)
		r.Get("/ready", handlers.Health.Ready)
		r.Get("/status", handlers.Health.Status)
	}
}
