package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/rsproule/llm-gladiators/internal/api"
	"github.com/rsproule/llm-gladiators/internal/arena"
	"github.com/rsproule/llm-gladiators/internal/config"
	"github.com/rsproule/llm-gladiators/internal/live"
	"github.com/rsproule/llm-gladiators/internal/llm"
	"github.com/rsproule/llm-gladiators/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Initialize store: Postgres when configured, SQLite otherwise
	var db store.DataStore
	if cfg.DatabaseURL != "" {
		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		if err := pgStore.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("schema setup failed")
		}
		db = pgStore
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		db = sqliteStore
		logger.Info().Str("path", cfg.SQLitePath).Msg("using SQLite store")
	}
	defer db.Close()

	// Initialize live broker: Redis when configured, in-process otherwise
	var broker live.Broker
	if cfg.RedisURL != "" {
		redisBroker, err := live.NewRedisBroker(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisBroker.Close()
		broker = redisBroker
		logger.Info().Msg("connected to Redis")
	} else {
		broker = live.NewMemoryBroker()
		logger.Info().Msg("using in-memory broker")
	}

	// Arena runner drives matches end to end
	runner := &arena.Runner{
		Store:    db,
		Live:     broker,
		Factory:  llm.NewOpenAIFactory(llm.OpenAIConfig{CompletionsURL: cfg.OpenAIAPIURL}),
		Logger:   logger,
		MaxTurns: cfg.MaxTurns,
	}

	// Create router
	router := api.NewRouter(logger, db, broker, runner, api.RouterOptions{
		RateLimitWhitelist: cfg.RateLimitWhitelist,
		DefaultAPIKey:      cfg.OpenAIAPIKey,
	})

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // websocket watchers hold connections open
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting arena server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
