package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/rsproule/llm-gladiators/internal/api/middleware"
	"github.com/rsproule/llm-gladiators/internal/arena"
	"github.com/rsproule/llm-gladiators/internal/handlers"
	"github.com/rsproule/llm-gladiators/internal/live"
	"github.com/rsproule/llm-gladiators/internal/store"
)

// RouterOptions configures optional router features.
type RouterOptions struct {
	RateLimitWhitelist []string
	DefaultAPIKey      string
}

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, db store.DataStore, broker live.Broker, runner *arena.Runner, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(64 * 1024)) // prompts can be long, but bounded
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting needs redis; the in-memory broker has no client to
	// count against, so dev/test setups run unlimited.
	if rb, ok := broker.(*live.RedisBroker); ok {
		limiter := middleware.NewRateLimiter(rb.Client(), logger, opts.RateLimitWhitelist)
		r.Use(limiter.Middleware)
	}

	// CORS - allow all origins (spectator clients connect from anywhere)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(db, broker, runner, logger).WithDefaultAPIKey(opts.DefaultAPIKey)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/", h.Root)
	r.Get("/health", h.Health)

	r.Post("/matches", h.CreateMatch)
	r.Get("/matches", h.ListMatches)
	r.Get("/matches/{id}", h.GetMatch)
	r.Get("/matches/{id}/messages", h.GetMatchMessages)
	r.Get("/matches/{id}/watch", h.WatchMatch)

	r.Post("/gladiators", h.CreateGladiator)
	r.Get("/gladiators", h.ListGladiators)

	return r
}
