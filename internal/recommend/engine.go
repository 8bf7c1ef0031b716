// vnrec - VNDB Recommendation Engine
// Copyright 2026 vndb-tools
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vndb-tools/vnrec

package recommend

import (
	"context"
	"sync"
	"time"

	"github.com/vndb-tools/vnrec/internal/config"
	"github.com/vndb-tools/vnrec/internal/database"
	"github.com/vndb-tools/vnrec/internal/logging"
	"github.com/vndb-tools/vnrec/internal/recommend/algorithms"
	"github.com/vndb-tools/vnrec/internal/vndb"
)

// Engine wires the rating cache and the three strategies together. All store
// access is serialized behind mu; Status is independently synchronized so it
// can be polled while a rebuild runs.
type Engine struct {
	mu sync.Mutex

	cfg   config.RecommendConfig
	db    *database.DB
	cache *RatingCache

	similar    *algorithms.SimilarUsers
	popularity *algorithms.RelativePopularity
	regression *algorithms.Regression

	ready bool

	statusMu sync.RWMutex
	status   Status
}

// NewEngine builds an engine over db. Initialize must be called before
// Recommend.
func NewEngine(db *database.DB, vndbCfg vndb.Config, cfg config.RecommendConfig) *Engine {
	return &Engine{
		cfg:        cfg,
		db:         db,
		cache:      NewRatingCache(db, vndbCfg),
		similar:    algorithms.NewSimilarUsers(cfg.SimilarUserLimit),
		popularity: algorithms.NewRelativePopularity(db, cfg.MinTitleVotes, cfg.MinLift),
		regression: algorithms.NewRegression(db, cfg.MinTitleVotes, cfg.MinPairVotes, cfg.MinOverlap, cfg.MinPredictedScore),
		status:     Status{Phase: PhaseIdle},
	}
}

func (e *Engine) setPhase(p Phase) {
	e.statusMu.Lock()
	e.status.Phase = p
	e.statusMu.Unlock()
}

func (e *Engine) setError(err error) {
	e.statusMu.Lock()
	e.status.LastError = err.Error()
	e.statusMu.Unlock()
}

// Status returns a snapshot of the engine's progress.
func (e *Engine) Status() Status {
	e.statusMu.RLock()
	defer e.statusMu.RUnlock()
	return e.status
}

// Initialize loads the vote store and filters users. It does not rebuild the
// pairwise tables; Rebuild does that explicitly.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.setPhase(PhaseLoading)
	if err := e.cache.Load(ctx); err != nil {
		e.setError(err)
		e.setPhase(PhaseIdle)
		return err
	}
	if err := ctx.Err(); err != nil {
		e.setPhase(PhaseIdle)
		return err
	}

	e.setPhase(PhaseFiltering)
	e.cache.FilterUsers()

	users, titles := e.cache.Counts()
	e.statusMu.Lock()
	e.status.Users = users
	e.status.Titles = titles
	e.statusMu.Unlock()

	e.ready = true
	e.setPhase(PhaseReady)
	return nil
}

// Rebuild recomputes the pairwise tables for the popularity and regression
// strategies. Cancellation is honored between and within milestones; a
// half-finished milestone leaves the previous table intact because tables are
// swapped in a single transaction.
func (e *Engine) Rebuild(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.ready {
		return ErrNotReady
	}

	start := time.Now()
	data := e.cache.Dataset()

	steps := []struct {
		phase Phase
		alg   algorithms.Updatable
	}{
		{PhaseRebuildingPopularity, e.popularity},
		{PhaseRebuildingRegression, e.regression},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			e.setPhase(PhaseReady)
			return err
		}
		e.setPhase(step.phase)
		if err := step.alg.Update(ctx, data); err != nil {
			e.setError(err)
			e.setPhase(PhaseReady)
			return err
		}
	}

	e.statusMu.Lock()
	e.status.LastRebuild = time.Now()
	e.status.LastError = ""
	e.statusMu.Unlock()
	e.setPhase(PhaseReady)

	logging.Info().Dur("elapsed", time.Since(start)).Msg("Pairwise tables rebuilt")
	return nil
}

// Recommend runs all three strategies for one user and returns the combined
// result with enriched titles. Users that did not survive filtering get
// ErrUserNotFound.
func (e *Engine) Recommend(ctx context.Context, userID, limit int) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.ready {
		return nil, ErrNotReady
	}
	if !e.cache.HasUser(userID) {
		return nil, ErrUserNotFound
	}
	if limit <= 0 {
		limit = e.cfg.DefaultLimit
	}
	if limit > e.cfg.MaxLimit {
		limit = e.cfg.MaxLimit
	}

	data := e.cache.Dataset()

	similarRecs, mostSimilar := e.similar.Recommend(data, userID, limit)
	popRecs, err := e.popularity.Recommend(ctx, data, userID, limit)
	if err != nil {
		return nil, err
	}
	regRecs, err := e.regression.Recommend(ctx, data, userID, limit)
	if err != nil {
		return nil, err
	}

	// Enrichment is best effort: a failure leaves titles with fallback
	// names rather than failing the request.
	ids := make([]int, 0, len(similarRecs)+len(popRecs)+len(regRecs))
	for _, r := range similarRecs {
		ids = append(ids, r.TitleID)
	}
	for _, r := range popRecs {
		ids = append(ids, r.TitleID)
	}
	for _, r := range regRecs {
		ids = append(ids, r.TitleID)
	}
	if err := e.cache.Enrich(ctx, ids); err != nil {
		logging.Warn().Err(err).Msg("Enrichment failed, serving fallback titles")
	}

	result := &Result{
		UserID:             userID,
		UserURL:            vndb.UserURL(userID),
		MostSimilarUser:    mostSimilar,
		Similar:            e.describe(similarRecs),
		RelativePopularity: e.describe(popRecs),
		Regression:         e.describe(regRecs),
	}
	if mostSimilar != algorithms.NoSimilarUser {
		result.MostSimilarUserURL = vndb.UserURL(mostSimilar)
	}
	return result, nil
}

// describe turns scored title ids into client-facing recommendations.
func (e *Engine) describe(scored []algorithms.Scored) []Recommendation {
	out := make([]Recommendation, 0, len(scored))
	for _, s := range scored {
		entry := e.cache.Entry(s.TitleID)
		if entry == nil {
			entry = &Entry{ID: s.TitleID}
		}
		rec := Recommendation{
			TitleID:  s.TitleID,
			Title:    entry.DisplayTitle(),
			Original: entry.Original,
			Released: entry.Released,
			Score:    s.Score,
			URL:      vndb.TitleURL(s.TitleID),
		}
		out = append(out, rec)
	}
	return out
}

// TitleEntry exposes a cached title for the API layer.
func (e *Engine) TitleEntry(titleID int) *Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cache.Entry(titleID)
}

// TitleStats returns the retained vote count and mean raw score for a title.
func (e *Engine) TitleStats(titleID int) (votes int, avgScore float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cache.TitleStats(titleID)
}

// UserSummary describes a retained user for the API layer.
type UserSummary struct {
	UserID int    `json:"user_id"`
	URL    string `json:"url"`
	Votes  int    `json:"votes"`
}

// User returns a summary for a retained user, or ErrUserNotFound.
func (e *Engine) User(userID int) (*UserSummary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.ready {
		return nil, ErrNotReady
	}
	if !e.cache.HasUser(userID) {
		return nil, ErrUserNotFound
	}
	return &UserSummary{
		UserID: userID,
		URL:    vndb.UserURL(userID),
		Votes:  len(e.cache.users[userID]),
	}, nil
}
