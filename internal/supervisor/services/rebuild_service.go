// vnrec - VNDB Recommendation Engine
// Copyright 2026 vndb-tools
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vndb-tools/vnrec

package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vndb-tools/vnrec/internal/metrics"
)

// Rebuilder is the slice of the recommendation engine this service drives.
type Rebuilder interface {
	// Rebuild recomputes the pairwise tables.
	Rebuild(ctx context.Context) error
}

// RebuildServiceConfig configures the rebuild scheduler.
type RebuildServiceConfig struct {
	// RebuildOnStartup triggers a rebuild as soon as the service starts.
	RebuildOnStartup bool

	// RebuildInterval is how often to rebuild. Zero or negative disables
	// the ticker, leaving only the startup rebuild (if configured).
	RebuildInterval time.Duration

	// RebuildTimeout bounds a single rebuild cycle.
	RebuildTimeout time.Duration
}

// RebuildService periodically rebuilds the pairwise tables under suture
// supervision. A failed cycle is logged and retried on the next tick rather
// than crashing the service.
type RebuildService struct {
	engine Rebuilder
	config RebuildServiceConfig
	logger zerolog.Logger
}

// NewRebuildService creates the scheduler.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewRebuildService(engine Rebuilder, cfg RebuildServiceConfig, logger zerolog.Logger) *RebuildService {
	if cfg.RebuildTimeout <= 0 {
		cfg.RebuildTimeout = 2 * time.Hour
	}
	return &RebuildService{
		engine: engine,
		config: cfg,
		logger: logger.With().Str("service", "rebuild").Logger(),
	}
}

// Serve implements suture.Service.
func (s *RebuildService) Serve(ctx context.Context) error {
	s.logger.Info().
		Bool("rebuild_on_startup", s.config.RebuildOnStartup).
		Dur("rebuild_interval", s.config.RebuildInterval).
		Msg("rebuild service starting")

	if s.config.RebuildOnStartup {
		if err := s.rebuild(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			s.logger.Warn().Err(err).Msg("startup rebuild failed (will retry on schedule)")
		}
	}

	if s.config.RebuildInterval <= 0 {
		s.logger.Info().Msg("periodic rebuilds disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(s.config.RebuildInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("rebuild service shutting down")
			return ctx.Err()

		case <-ticker.C:
			if err := s.rebuild(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				s.logger.Warn().Err(err).Msg("scheduled rebuild failed")
			}
		}
	}
}

// rebuild runs one cycle with its own timeout and records the outcome.
func (s *RebuildService) rebuild(ctx context.Context) error {
	rebuildCtx, cancel := context.WithTimeout(ctx, s.config.RebuildTimeout)
	defer cancel()

	// Correlation id for matching start/finish log lines across cycles.
	runID := uuid.NewString()
	logger := s.logger.With().Str("run_id", runID).Logger()
	logger.Info().Msg("rebuild starting")

	start := time.Now()
	err := s.engine.Rebuild(rebuildCtx)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		metrics.RecordRebuild(elapsed, "success")
		logger.Info().Dur("elapsed", elapsed).Msg("rebuild complete")
	case errors.Is(err, context.Canceled):
		metrics.RecordRebuild(elapsed, "canceled")
	default:
		metrics.RecordRebuild(elapsed, "error")
	}
	return err
}

// String identifies the service in supervisor logs.
func (s *RebuildService) String() string {
	return "rebuild-service"
}
