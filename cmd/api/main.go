// Package main provides the entrypoint for the cercabus API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/cercabus/cercabus/internal/api"
	"github.com/cercabus/cercabus/internal/api/middleware"
	"github.com/cercabus/cercabus/internal/auth"
	"github.com/cercabus/cercabus/internal/config"
	"github.com/cercabus/cercabus/internal/database"
	"github.com/cercabus/cercabus/internal/provider/resilience"
	"github.com/cercabus/cercabus/internal/telemetry"
	"github.com/cercabus/cercabus/internal/transit"
	"github.com/cercabus/cercabus/internal/transit/emt"
	"github.com/cercabus/cercabus/internal/watch"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "cercabus-api"

	// Local development convenience; missing file is fine.
	_ = godotenv.Load()

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting cercabus API")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	otlpEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otlpEndpoint == "" {
		otlpEndpoint = "localhost:4317"
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	// Initialize OpenTelemetry
	ctx := context.Background()
	telemetryEnabled := os.Getenv("OTEL_ENABLED") == "true"

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    env,
		OTLPEndpoint:   otlpEndpoint,
		Enabled:        telemetryEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if telemetryEnabled {
		log.Info().
			Str("otlp_endpoint", otlpEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	providerMetrics, err := middleware.NewProviderMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize provider metrics")
		os.Exit(1)
	}

	// Connect to database when enabled; watches fall back to an in-memory
	// store otherwise.
	var pool *pgxpool.Pool
	var watchRepo watch.Repository
	if os.Getenv("DB_ENABLED") == "true" {
		dbConfig := database.ConfigFromEnv()
		pool, err = database.Connect(ctx, dbConfig)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		log.Info().
			Str("host", dbConfig.Host).
			Int("port", dbConfig.Port).
			Str("database", dbConfig.Database).
			Msg("database connected")
		watchRepo = watch.NewPostgresRepository(pool)
	} else {
		log.Warn().Msg("database disabled, watches are in-memory only")
		watchRepo = watch.NewInMemoryRepository()
	}

	// Initialize token service
	tokenService := auth.NewTokenService(auth.TokenServiceConfig{
		APIKey:     cfg.APIKey,
		SigningKey: cfg.JWTSigningKey,
		Issuer:     "https://api.cercabus.es",
		Audience:   "cercabus-api",
	})
	if cfg.APIKey == "" {
		log.Warn().Msg("no API key configured - token exchange is disabled")
	}

	// Initialize the EMT provider and aggregation service
	registry := resilience.NewRegistry()
	emtClient := emt.NewClient(emt.ClientConfig{
		Email:    cfg.EMT.Email,
		Password: cfg.EMT.Password,
		BaseURL:  cfg.EMT.BaseURL,
		Registry: registry,
		Logger:   log,
	})
	transitService := transit.NewService(transit.ServiceConfig{
		Provider:   emtClient,
		ExtraStops: cfg.ExtraStops,
		Logger:     log,
	})
	log.Info().
		Str("provider", emtClient.Name()).
		Int("extra_stops", len(cfg.ExtraStops)).
		Msg("transit service initialized")

	watchService := watch.NewService(watchRepo)
	log.Info().Msg("watch service initialized")

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:         Version,
		BuildTime:       BuildTime,
		Logger:          log,
		ServiceName:     serviceName,
		Metrics:         metrics,
		TokenService:    tokenService,
		TransitService:  transitService,
		WatchService:    watchService,
		Home:            cfg.Home,
		RadiusMeters:    cfg.RadiusMeters,
		MaxResults:      cfg.MaxResults,
		ProviderMetrics: providerMetrics,
		Pool:            pool,
		Registry:        registry,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}
