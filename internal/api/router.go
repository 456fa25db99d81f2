package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/blackboard-protocol/blackboard/internal/api/middleware"
	"github.com/blackboard-protocol/blackboard/internal/bus"
	"github.com/blackboard-protocol/blackboard/internal/handlers"
	"github.com/blackboard-protocol/blackboard/internal/presence"
)

// NewRouter creates and configures the HTTP router. rdb may be nil; the
// rate limiter is only installed when Redis is available.
func NewRouter(logger zerolog.Logger, h *handlers.Handler, auth *middleware.AuthMiddleware, registry *presence.Registry, channels *bus.Bus, rdb *redis.Client) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(256 * 1024)) // blackboard documents can be sizeable
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting (requires Redis)
	if rdb != nil {
		limiter := middleware.NewRateLimiter(rdb, logger)
		r.Use(limiter.Middleware)
	}

	// CORS - allow all origins (agents call from anywhere)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes
	r.Get("/", h.Health)
	r.Get("/health", h.Health)
	r.Post("/login", h.Login)
	r.Post("/register", h.Register)
	r.Get("/agents", h.ListAgents)
	r.Get("/channels/{channelID}/history", h.ChannelHistory)
	r.Get("/records/{id}", h.GetRecord)
	r.Put("/records/{id}", h.UpdateRecord)
	r.Post("/projects", h.CreateProject)
	r.Get("/projects", h.ListProjects)
	r.Delete("/projects/{id}", h.DeleteProject)

	// The frame stream requires an authenticated identity
	ws := NewWSServer(logger, registry, channels)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)
		r.Get("/ws", ws.Handle)
	})

	return r
}
