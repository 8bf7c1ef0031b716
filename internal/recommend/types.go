// vnrec - VNDB Recommendation Engine
// Copyright 2026 vndb-tools
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vndb-tools/vnrec

// Package recommend holds the rating cache and the engine that orchestrates
// the three recommendation strategies over it.
package recommend

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUserNotFound is returned for users absent from the filtered vote
	// set, either because they never voted or because filtering removed
	// them.
	ErrUserNotFound = errors.New("user not found in filtered vote set")

	// ErrNotReady is returned before Initialize has completed.
	ErrNotReady = errors.New("recommendation engine not initialized")
)

// Entry is the in-memory record of a title. Enriched is false until metadata
// has been fetched from the API.
type Entry struct {
	ID       int
	Title    string
	Original string
	Released string
	Enriched bool
}

// DisplayTitle returns the title, falling back to the v-prefixed id for
// titles that were never enriched.
func (e *Entry) DisplayTitle() string {
	if e != nil && e.Title != "" {
		return e.Title
	}
	if e == nil {
		return ""
	}
	return fmt.Sprintf("v%d", e.ID)
}

// Recommendation is one recommended title as served to clients.
type Recommendation struct {
	TitleID  int     `json:"title_id"`
	Title    string  `json:"title"`
	Original string  `json:"original,omitempty"`
	Released string  `json:"released,omitempty"`
	Score    float64 `json:"score"`
	URL      string  `json:"url"`
}

// Result bundles the output of all three strategies for one user.
type Result struct {
	UserID             int              `json:"user_id"`
	UserURL            string           `json:"user_url"`
	MostSimilarUser    int              `json:"most_similar_user"`
	MostSimilarUserURL string           `json:"most_similar_user_url,omitempty"`
	Similar            []Recommendation `json:"similar"`
	RelativePopularity []Recommendation `json:"relative_popularity"`
	Regression         []Recommendation `json:"regression"`
}

// Phase names the engine's current activity.
type Phase string

const (
	PhaseIdle                 Phase = "idle"
	PhaseLoading              Phase = "loading"
	PhaseFiltering            Phase = "filtering"
	PhaseReady                Phase = "ready"
	PhaseRebuildingPopularity Phase = "rebuilding_popularity"
	PhaseRebuildingRegression Phase = "rebuilding_regression"
)

// Status is a snapshot of engine progress, safe to poll concurrently.
type Status struct {
	Phase       Phase     `json:"phase"`
	Users       int       `json:"users"`
	Titles      int       `json:"titles"`
	LastRebuild time.Time `json:"last_rebuild,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}
