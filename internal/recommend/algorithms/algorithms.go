// vnrec - VNDB Recommendation Engine
// Copyright 2026 vndb-tools
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vndb-tools/vnrec

// Package algorithms implements the three recommendation strategies: similar
// users, relative popularity and pairwise linear regression.
//
// All three consume the same filtered Dataset. The popularity and regression
// strategies additionally keep precomputed pairwise tables in the database,
// rebuilt offline by their Update methods and consulted at request time.
package algorithms

import (
	"context"
	"sort"
)

// Updatable is implemented by strategies that precompute pairwise tables.
// Update drops and rebuilds the strategy's table from the current dataset.
type Updatable interface {
	Update(ctx context.Context, data *Dataset) error
}

// Dataset is the filtered in-memory view of the vote store. The maps are
// built once by the rating cache after user filtering and treated as
// read-only here.
type Dataset struct {
	// Users maps user id to that user's votes (title id -> score 10-100).
	Users map[int]map[int]int

	// TitleVotes is the number of retained votes per title.
	TitleVotes map[int]int

	// TitleRating is the summed retained score per title.
	TitleRating map[int]int
}

// Scored is one recommended title with its strategy-specific score.
type Scored struct {
	TitleID int
	Score   float64
}

// sortedKeys returns map keys in ascending order, for deterministic
// iteration.
func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// takeTop sorts scored entries by descending score, breaking ties by
// ascending title id, and returns at most limit of them.
func takeTop(scored map[int]float64, limit int) []Scored {
	out := make([]Scored, 0, len(scored))
	for id, s := range scored {
		out = append(out, Scored{TitleID: id, Score: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].TitleID < out[j].TitleID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
