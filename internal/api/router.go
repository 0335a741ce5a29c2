// Package api provides the HTTP API for cercabus.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/cercabus/cercabus/internal/api/handler"
	"github.com/cercabus/cercabus/internal/api/middleware"
	"github.com/cercabus/cercabus/internal/auth"
	"github.com/cercabus/cercabus/internal/config"
	"github.com/cercabus/cercabus/internal/provider/resilience"
	"github.com/cercabus/cercabus/internal/transit"
	"github.com/cercabus/cercabus/internal/watch"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	// TokenService guards the authenticated routes.
	TokenService *auth.TokenService

	// TransitService aggregates nearby arrivals.
	TransitService *transit.Service

	// WatchService manages saved watches.
	WatchService *watch.Service

	// Home is the default search center, nil when not configured.
	Home *config.Location

	// RadiusMeters and MaxResults are the configured search defaults.
	RadiusMeters int
	MaxResults   int

	// ProviderMetrics records transit provider call durations. Optional.
	ProviderMetrics *middleware.ProviderMetrics

	// Pool is the database pool, nil when running without a database.
	Pool *pgxpool.Pool

	// Registry exposes provider circuit health on the status endpoint.
	Registry *resilience.Registry
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "cercabus-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	r.Use(middleware.SecurityHeaders)      // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS)           // TLS enforcement (enabled via REQUIRE_TLS=true)
	r.Use(middleware.ContentTypeJSON)      // JSON content type

	opsHandler := handler.NewOpsHandler(handler.OpsHandlerConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Pool:      cfg.Pool,
		Registry:  cfg.Registry,
	})
	authHandler := handler.NewAuthHandler(cfg.TokenService)
	arrivalsHandler := handler.NewArrivalsHandler(handler.ArrivalsHandlerConfig{
		Transit:      cfg.TransitService,
		Home:         cfg.Home,
		RadiusMeters: cfg.RadiusMeters,
		MaxResults:   cfg.MaxResults,
		Metrics:      cfg.ProviderMetrics,
		Logger:       cfg.Logger,
	})
	watchHandler := handler.NewWatchHandler(cfg.WatchService)

	authMiddleware := middleware.Auth(cfg.TokenService)

	authRateLimit := middleware.RateLimitByIP(middleware.AuthRateLimit)         // 10 req/min
	arrivalsRateLimit := middleware.RateLimitByIP(middleware.ArrivalsRateLimit) // 30 req/min
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit) // 100 req/min

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Auth endpoint (public) - strict rate limiting
		r.With(authRateLimit).Post("/auth/token", authHandler.Token)

		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			// Status endpoint requires authentication
			r.With(authMiddleware).Get("/status", opsHandler.SystemStatus)
		})

		// Arrival and stop queries fan out to the transit provider, so
		// they get the stricter limit.
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(arrivalsRateLimit)
			r.Post("/arrivals:nearby", arrivalsHandler.NearbyArrivals)
			r.Get("/stops/nearby", arrivalsHandler.NearbyStops)
			r.Get("/stops/{stopId}/arrivals", arrivalsHandler.StopArrivals)
		})

		// Watches (authenticated) - standard rate limiting
		r.Route("/watches", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(standardRateLimit)
			r.Get("/", watchHandler.ListWatches)
			r.Post("/", watchHandler.CreateWatch)
			r.Route("/{watchId}", func(r chi.Router) {
				r.Get("/", watchHandler.GetWatch)
				r.Patch("/", watchHandler.UpdateWatch)
				r.Delete("/", watchHandler.DeleteWatch)
			})
		})
	})

	return r
}
