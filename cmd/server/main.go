package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aetos53t/ping/internal/api"
	"github.com/aetos53t/ping/internal/config"
	"github.com/aetos53t/ping/internal/delivery"
	"github.com/aetos53t/ping/internal/handlers"
	"github.com/aetos53t/ping/internal/relay"
	"github.com/aetos53t/ping/internal/store"
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

	// Initialize storage backend
	var (
		db  store.DataStore
		err error
	)
	switch cfg.Store {
	case "memory":
		db = store.NewMemoryStore()
		logger.Info().Msg("using in-memory store")
	case "sqlite":
		db, err = store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite init failed")
		}
		logger.Info().Msg("connected to SQLite")
	case "postgres":
		db, err = store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		logger.Info().Msg("connected to PostgreSQL")
	default:
		logger.Fatal().Str("store", cfg.Store).Msg("unknown store backend")
	}
	defer db.Close()

	// Initialize the replay guard when Redis is configured
	var replay *store.ReplayGuard
	if cfg.RedisURL != "" {
		replay, err = store.NewReplayGuard(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer replay.Close()
		logger.Info().Msg("replay guard enabled")
	}

	// Wire the core
	hub := delivery.NewHub()
	dispatcher := delivery.NewDispatcher(hub, delivery.NewWebhookClient(cfg.WebhookTimeout), db, logger)
	svc := relay.NewService(db, dispatcher, replay, logger)
	h := handlers.NewHandler(svc, hub, db, replay, logger)

	// Create router
	router := api.NewRouter(logger, h)

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting PING relay")

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
