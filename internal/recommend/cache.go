// vnrec - VNDB Recommendation Engine
// Copyright 2026 vndb-tools
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vndb-tools/vnrec

package recommend

import (
	"context"
	"errors"
	"fmt"

	"github.com/vndb-tools/vnrec/internal/database"
	"github.com/vndb-tools/vnrec/internal/logging"
	"github.com/vndb-tools/vnrec/internal/recommend/algorithms"
	"github.com/vndb-tools/vnrec/internal/vndb"
)

// minUserVotes is the smallest voting history a user may have and still
// contribute signal. Smaller histories are discarded during filtering.
const minUserVotes = 5

// RatingCache is the in-memory working set of votes and title metadata,
// loaded once from the database and filtered once before use. It is not safe
// for concurrent use; the engine serializes access.
type RatingCache struct {
	db      *database.DB
	vndbCfg vndb.Config

	users       map[int]map[int]int
	entries     map[int]*Entry
	titleVotes  map[int]int
	titleRating map[int]int

	filtered bool
}

// NewRatingCache returns an empty cache backed by db. The VNDB config is used
// for on-demand metadata enrichment.
func NewRatingCache(db *database.DB, vndbCfg vndb.Config) *RatingCache {
	return &RatingCache{
		db:          db,
		vndbCfg:     vndbCfg,
		users:       make(map[int]map[int]int),
		entries:     make(map[int]*Entry),
		titleVotes:  make(map[int]int),
		titleRating: make(map[int]int),
	}
}

// Load reads every vote from the store, together with whatever metadata the
// novels table already has. Titles without metadata get unenriched entries.
func (c *RatingCache) Load(ctx context.Context) error {
	rows, err := c.db.LoadVotes(ctx)
	if err != nil {
		return fmt.Errorf("failed to load votes: %w", err)
	}

	for _, r := range rows {
		votes, ok := c.users[r.UserID]
		if !ok {
			votes = make(map[int]int)
			c.users[r.UserID] = votes
		}
		votes[r.TitleID] = r.Score

		if _, ok := c.entries[r.TitleID]; !ok {
			e := &Entry{ID: r.TitleID}
			if r.Title.Valid {
				e.Title = r.Title.String
				e.Original = r.Original.String
				e.Released = r.Released.String
				e.Enriched = true
			}
			c.entries[r.TitleID] = e
		}
	}

	logging.Info().
		Int("votes", len(rows)).
		Int("users", len(c.users)).
		Int("titles", len(c.entries)).
		Msg("Rating cache loaded")
	return nil
}

// FilterUsers drops users whose histories carry no signal: fewer than
// minUserVotes votes, or votes that are all the same score. Surviving votes
// feed the per-title aggregates. Destructive and one-shot; calls after the
// first are no-ops.
func (c *RatingCache) FilterUsers() {
	if c.filtered {
		return
	}
	c.filtered = true

	fewVotes := 0
	identical := 0
	for userID, votes := range c.users {
		if len(votes) < minUserVotes {
			delete(c.users, userID)
			fewVotes++
			continue
		}

		allSame := true
		first := -1
		for _, score := range votes {
			if first == -1 {
				first = score
			} else if score != first {
				allSame = false
				break
			}
		}
		if allSame {
			delete(c.users, userID)
			identical++
			continue
		}

		for titleID, score := range votes {
			c.titleVotes[titleID]++
			c.titleRating[titleID] += score
		}
	}

	logging.Info().
		Int("removed_few_votes", fewVotes).
		Int("removed_identical_scores", identical).
		Int("remaining", len(c.users)).
		Msg("Users filtered")
}

// Dataset exposes the filtered votes and aggregates to the algorithms.
func (c *RatingCache) Dataset() *algorithms.Dataset {
	return &algorithms.Dataset{
		Users:       c.users,
		TitleVotes:  c.titleVotes,
		TitleRating: c.titleRating,
	}
}

// HasUser reports whether a user survived filtering.
func (c *RatingCache) HasUser(userID int) bool {
	_, ok := c.users[userID]
	return ok
}

// Entry returns the in-memory record for a title, or nil if the title has
// never been seen.
func (c *RatingCache) Entry(titleID int) *Entry {
	return c.entries[titleID]
}

// Counts returns the number of retained users and known titles.
func (c *RatingCache) Counts() (users, titles int) {
	return len(c.users), len(c.entries)
}

// TitleStats returns the retained vote count and mean raw score (10-100
// scale) for a title. Both are zero when no retained user voted on it.
func (c *RatingCache) TitleStats(titleID int) (votes int, avgScore float64) {
	votes = c.titleVotes[titleID]
	if votes > 0 {
		avgScore = float64(c.titleRating[titleID]) / float64(votes)
	}
	return votes, avgScore
}

// Enrich fetches metadata for any of the given titles that are unknown or
// not yet enriched, persists it, and updates the in-memory entries. A server
// that answers with something other than results is treated as a miss, not a
// failure.
func (c *RatingCache) Enrich(ctx context.Context, titleIDs []int) error {
	var needed []int
	seen := make(map[int]bool)
	for _, id := range titleIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if e, ok := c.entries[id]; !ok || !e.Enriched {
			needed = append(needed, id)
		}
	}
	if len(needed) == 0 {
		return nil
	}

	conn, err := vndb.Dial(ctx, c.vndbCfg)
	if err != nil {
		return fmt.Errorf("failed to connect for enrichment: %w", err)
	}
	defer conn.Close()

	sess, err := vndb.NewSession(ctx, conn, c.vndbCfg)
	if err != nil {
		return fmt.Errorf("failed to log in for enrichment: %w", err)
	}

	items, err := sess.GetVN(ctx, needed)
	if err != nil {
		var protoErr *vndb.ProtocolError
		if errors.As(err, &protoErr) {
			logging.Warn().
				Str("error_id", protoErr.ID).
				Str("msg", protoErr.Msg).
				Msg("Enrichment rejected by server")
			return nil
		}
		return err
	}
	if len(items) == 0 {
		return nil
	}

	novels := make([]database.Novel, 0, len(items))
	for _, item := range items {
		novels = append(novels, database.Novel{
			ID:          item.ID,
			Title:       item.Title,
			Original:    item.Original,
			Released:    item.Released,
			Length:      item.Length,
			Description: item.Description,
		})
	}
	if err := c.db.UpsertNovels(ctx, novels); err != nil {
		return fmt.Errorf("failed to persist enrichment: %w", err)
	}

	for _, item := range items {
		c.entries[item.ID] = &Entry{
			ID:       item.ID,
			Title:    item.Title,
			Original: item.Original,
			Released: item.Released,
			Enriched: true,
		}
	}

	logging.Debug().Int("titles", len(items)).Msg("Titles enriched")
	return nil
}
