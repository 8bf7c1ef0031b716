// vnrec - VNDB Recommendation Engine
// Copyright 2026 vndb-tools
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vndb-tools/vnrec

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/vndb-tools/vnrec/internal/database"
	"github.com/vndb-tools/vnrec/internal/logging"
	"github.com/vndb-tools/vnrec/internal/metrics"
	"github.com/vndb-tools/vnrec/internal/recommend"
	"github.com/vndb-tools/vnrec/internal/vndb"
)

// Handler serves the API endpoints over the recommendation engine.
type Handler struct {
	engine *recommend.Engine
	db     *database.DB
}

// NewHandler returns a handler over engine and db.
func NewHandler(engine *recommend.Engine, db *database.DB) *Handler {
	return &Handler{engine: engine, db: db}
}

// errorResponse is the JSON body of every non-2xx answer.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// healthResponse reports service liveness and database reachability.
type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// Health reports liveness. The database check uses a short timeout so a
// wedged store cannot hang monitoring.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Database: "ok"}
	status := http.StatusOK
	if err := h.db.Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.Database = err.Error()
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// Status reports engine progress: phase, cache sizes, last rebuild.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Status())
}

// Recommendations serves all three strategy lists for one user. The optional
// limit query parameter caps each list.
func (h *Handler) Recommendations(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.Atoi(chi.URLParam(r, "userID"))
	if err != nil || userID < 1 {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}

	start := time.Now()
	result, err := h.engine.Recommend(r.Context(), userID, limit)
	switch {
	case errors.Is(err, recommend.ErrUserNotFound):
		metrics.RecommendationsTotal.WithLabelValues("user_not_found").Inc()
		writeError(w, http.StatusNotFound, "user not found")
		return
	case errors.Is(err, recommend.ErrNotReady):
		writeError(w, http.StatusServiceUnavailable, "engine initializing")
		return
	case err != nil:
		metrics.RecommendationsTotal.WithLabelValues("error").Inc()
		logging.Error().Err(err).Int("user_id", userID).Msg("Recommendation failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	metrics.RecommendationsTotal.WithLabelValues("success").Inc()
	metrics.RecommendationDuration.Observe(time.Since(start).Seconds())
	writeJSON(w, http.StatusOK, result)
}

// User serves a summary of one retained user.
func (h *Handler) User(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.Atoi(chi.URLParam(r, "userID"))
	if err != nil || userID < 1 {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	u, err := h.engine.User(userID)
	switch {
	case errors.Is(err, recommend.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user not found")
		return
	case errors.Is(err, recommend.ErrNotReady):
		writeError(w, http.StatusServiceUnavailable, "engine initializing")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// titleResponse is the public view of a cached title. Scores are stored on
// the raw 10-100 scale; display_score carries the 1-10 rendering.
type titleResponse struct {
	TitleID      int     `json:"title_id"`
	Title        string  `json:"title"`
	Original     string  `json:"original,omitempty"`
	Released     string  `json:"released,omitempty"`
	Enriched     bool    `json:"enriched"`
	Votes        int     `json:"votes"`
	AverageScore float64 `json:"average_score"`
	DisplayScore float64 `json:"display_score"`
	URL          string  `json:"url"`
}

// Title serves metadata for one title known to the cache.
func (h *Handler) Title(w http.ResponseWriter, r *http.Request) {
	titleID, err := strconv.Atoi(chi.URLParam(r, "titleID"))
	if err != nil || titleID < 1 {
		writeError(w, http.StatusBadRequest, "invalid title id")
		return
	}

	entry := h.engine.TitleEntry(titleID)
	if entry == nil {
		writeError(w, http.StatusNotFound, "title not found")
		return
	}
	votes, avg := h.engine.TitleStats(titleID)
	writeJSON(w, http.StatusOK, titleResponse{
		TitleID:      entry.ID,
		Title:        entry.DisplayTitle(),
		Original:     entry.Original,
		Released:     entry.Released,
		Enriched:     entry.Enriched,
		Votes:        votes,
		AverageScore: avg,
		DisplayScore: avg / 10,
		URL:          vndb.TitleURL(entry.ID),
	})
}
