// Package main provides the entrypoint for the cercabus polling worker.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/cercabus/cercabus/internal/config"
	"github.com/cercabus/cercabus/internal/database"
	"github.com/cercabus/cercabus/internal/provider/resilience"
	"github.com/cercabus/cercabus/internal/transit"
	"github.com/cercabus/cercabus/internal/transit/emt"
	"github.com/cercabus/cercabus/internal/watch"
	"github.com/cercabus/cercabus/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "cercabus-worker"

	// Local development convenience; missing file is fine.
	_ = godotenv.Load()

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting cercabus worker")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	// Worker also exposes a health endpoint for Cloud Run.
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Watch source: the database when enabled, otherwise the poller falls
	// back to the configured home location.
	var watchSource worker.WatchSource
	if os.Getenv("DB_ENABLED") == "true" {
		dbConfig := database.ConfigFromEnv()
		pool, err := database.Connect(ctx, dbConfig)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		log.Info().
			Str("host", dbConfig.Host).
			Str("database", dbConfig.Database).
			Msg("database connected")
		watchSource = watch.NewService(watch.NewPostgresRepository(pool))
	} else {
		log.Warn().Msg("database disabled, polling the home location only")
	}

	// Snapshot publisher: Pub/Sub when a topic is configured, log output
	// otherwise.
	var publisher worker.Publisher
	projectID := os.Getenv("PUBSUB_PROJECT_ID")
	topicName := os.Getenv("PUBSUB_TOPIC")
	if projectID != "" && topicName != "" {
		pub, err := worker.NewPubSubPublisher(ctx, worker.PubSubConfig{
			ProjectID: projectID,
			TopicName: topicName,
			Logger:    log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub publisher")
		}
		publisher = pub
		log.Info().
			Str("project", projectID).
			Str("topic", topicName).
			Msg("pubsub publisher initialized")
	} else {
		publisher = worker.NewLogPublisher(log)
		log.Info().Msg("no pubsub topic configured, logging snapshots")
	}
	defer func() {
		if closeErr := publisher.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("failed to close publisher")
		}
	}()

	// EMT provider and aggregation service
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

	poller := worker.NewPoller(worker.PollerConfig{
		Transit:      transitService,
		Watches:      watchSource,
		Publisher:    publisher,
		Logger:       log,
		Home:         cfg.Home,
		RadiusMeters: cfg.RadiusMeters,
		MaxResults:   cfg.MaxResults,
		ExtraStops:   cfg.ExtraStops,
		Interval:     cfg.PollInterval,
	})

	// Health check server
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy","version":"%s"}`, Version)
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health check server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("health server error")
		}
	}()

	// Poll loop
	go func() {
		if err := poller.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("poller stopped")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}
