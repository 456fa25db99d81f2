package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/blackboard-protocol/blackboard/internal/api"
	"github.com/blackboard-protocol/blackboard/internal/api/middleware"
	"github.com/blackboard-protocol/blackboard/internal/bus"
	"github.com/blackboard-protocol/blackboard/internal/config"
	"github.com/blackboard-protocol/blackboard/internal/handlers"
	"github.com/blackboard-protocol/blackboard/internal/presence"
	"github.com/blackboard-protocol/blackboard/internal/store"

	"github.com/redis/go-redis/v9"
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

	// Versioned record store
	records, err := store.NewVersionedStore(filepath.Join(cfg.DataDir, "records"))
	if err != nil {
		logger.Fatal().Err(err).Msg("record store init failed")
	}

	// Project store: Postgres when configured, SQLite otherwise
	var projects store.ProjectStore
	if cfg.DatabaseURL != "" {
		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		projects = pgStore
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		sqlitePath := cfg.SQLitePath
		if sqlitePath == "" {
			sqlitePath = filepath.Join(cfg.DataDir, "blackboard.db")
		}
		sqliteStore, err := store.NewSQLiteStore(ctx, sqlitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite init failed")
		}
		projects = sqliteStore
		logger.Info().Str("path", sqlitePath).Msg("using SQLite project store")
	}
	defer projects.Close()

	// Remote peer lookup: Redis routing table when configured
	var remote presence.RemoteLookup
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		redisLookup, err := presence.NewRedisLookup(ctx, cfg.RedisURL, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisLookup.Close()
		remote = redisLookup
		rdb = redisLookup.Client()
		logger.Info().Msg("connected to Redis routing table")
	}

	// Core services
	registry := presence.NewRegistry(logger, remote)
	registry.StartMaintenance(cfg.MaintenanceInterval)
	defer registry.Stop()

	channels := bus.New(logger, cfg.DataDir)

	// HTTP surface
	auth := middleware.NewAuthMiddleware(cfg.JWTSecret)
	h := handlers.NewHandler(records, projects, registry, channels, auth)
	router := api.NewRouter(logger, h, auth, registry, channels, rdb)

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: websocket sessions are long-lived
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting blackboard server")

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
