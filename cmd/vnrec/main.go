// vnrec - VNDB Recommendation Engine
// Copyright 2026 vndb-tools
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vndb-tools/vnrec

// Package main is the entry point for the vnrec server.
//
// vnrec serves visual novel recommendations computed from VNDB vote data.
// Ratings are cached in DuckDB, cross-title statistics are rebuilt on a
// schedule, and three independent strategies (similar users, relative
// popularity, pairwise regression) score candidates per request.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: load settings from environment variables and config files (Koanf v2)
//  2. Database: open DuckDB and create the votes and novels tables
//  3. Engine: load the rating cache and filter out low-signal users
//  4. Supervisor tree: rebuild service and HTTP server under suture
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest priority wins):
//   - Environment variables (VNDB_HOST, DUCKDB_PATH, HTTP_PORT, ...)
//   - Config file (config.yaml, or the path in CONFIG_PATH)
//   - Built-in defaults
//
// # Shutdown
//
// SIGINT and SIGTERM cancel the root context. The supervisor drains its
// services, the HTTP server shuts down gracefully, and the database is
// checkpointed before close.
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

	"github.com/vndb-tools/vnrec/internal/api"
	"github.com/vndb-tools/vnrec/internal/config"
	"github.com/vndb-tools/vnrec/internal/database"
	"github.com/vndb-tools/vnrec/internal/logging"
	"github.com/vndb-tools/vnrec/internal/metrics"
	"github.com/vndb-tools/vnrec/internal/recommend"
	"github.com/vndb-tools/vnrec/internal/supervisor"
	"github.com/vndb-tools/vnrec/internal/supervisor/services"
	"github.com/vndb-tools/vnrec/internal/vndb"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Str("vndb_host", cfg.VNDB.Host).
		Int("vndb_port", cfg.VNDB.Port).
		Msg("Configuration loaded")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := recommend.NewEngine(db, vndb.Config{
		Host:              cfg.VNDB.Host,
		Port:              cfg.VNDB.Port,
		Username:          cfg.VNDB.Username,
		Password:          cfg.VNDB.Password,
		DialTimeout:       cfg.VNDB.DialTimeout,
		ExchangeTimeout:   cfg.VNDB.ExchangeTimeout,
		RequestsPerSecond: cfg.VNDB.RequestsPerSecond,
	}, cfg.Recommend)

	if err := engine.Initialize(ctx); err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize recommendation engine")
	}
	status := engine.Status()
	metrics.SetCacheSize(status.Users, status.Titles)
	logging.Info().
		Int("users", status.Users).
		Int("titles", status.Titles).
		Msg("Recommendation engine ready")

	// Bridge zerolog to slog for sutureslog compatibility
	slogLogger := logging.NewSlogLogger()
	tree := supervisor.NewTree(slogLogger, supervisor.DefaultTreeConfig())

	tree.AddEngineService(services.NewRebuildService(engine, services.RebuildServiceConfig{
		RebuildOnStartup: cfg.Recommend.RebuildOnStartup,
		RebuildInterval:  cfg.Recommend.RebuildInterval,
	}, logging.Logger()))

	router := api.NewRouter(api.NewHandler(engine, db), &cfg.Server)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}
	tree.AddAPIService(services.NewHTTPService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	// Wait for supervisor to finish (either from signal or error)
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Drain the error channel until the supervisor has fully stopped
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	logging.Info().Msg("Application stopped gracefully")
}
