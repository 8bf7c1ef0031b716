// vnrec - VNDB Recommendation Engine
// Copyright 2026 vndb-tools
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vndb-tools/vnrec

package algorithms

import (
	"context"
	"math"
	"testing"

	"github.com/vndb-tools/vnrec/internal/database"
)

// regressionFixture seeds five users where title 2 always scores exactly
// title 1 plus five, and title 3 gets the same score from everyone.
func regressionFixture(t *testing.T, db *database.DB) *Dataset {
	t.Helper()

	var votes []database.Vote
	scores1 := []int{10, 20, 30, 40, 50}
	for i, s := range scores1 {
		userID := i + 1
		votes = append(votes,
			database.Vote{TitleID: 1, UserID: userID, Score: s},
			database.Vote{TitleID: 2, UserID: userID, Score: s + 5},
			database.Vote{TitleID: 3, UserID: userID, Score: 50},
		)
	}
	if err := db.InsertVotes(context.Background(), votes); err != nil {
		t.Fatalf("InsertVotes() error = %v", err)
	}

	return &Dataset{
		Users: map[int]map[int]int{
			1: {1: 10, 2: 15, 3: 50},
			2: {1: 20, 2: 25, 3: 50},
			3: {1: 30, 2: 35, 3: 50},
			4: {1: 40, 2: 45, 3: 50},
			5: {1: 50, 2: 55, 3: 50},
		},
		TitleVotes:  map[int]int{1: 5, 2: 5, 3: 5},
		TitleRating: map[int]int{1: 150, 2: 175, 3: 250},
	}
}

func TestRegressionUpdateFitsLine(t *testing.T) {
	db := newTestDB(t)
	r := NewRegression(db, 5, 5, 5, 0)
	ctx := context.Background()

	data := regressionFixture(t, db)
	if err := r.Update(ctx, data); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	rows, err := db.RegressionFor(ctx, 1, 1)
	if err != nil {
		t.Fatalf("RegressionFor() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("RegressionFor(1) = %d rows, want 1 (pairs with title 3 are degenerate)", len(rows))
	}

	got := rows[0]
	if got.SecondGameID != 2 {
		t.Fatalf("SecondGameID = %d, want 2", got.SecondGameID)
	}
	if math.Abs(got.Gradient-1) > 1e-9 {
		t.Errorf("Gradient = %v, want 1", got.Gradient)
	}
	if math.Abs(got.Constant-5) > 1e-9 {
		t.Errorf("Constant = %v, want 5", got.Constant)
	}
	if got.Overlap != 5 {
		t.Errorf("Overlap = %d, want 5", got.Overlap)
	}
	if math.Abs(got.Correlation-1) > 1e-9 {
		t.Errorf("Correlation = %v, want 1", got.Correlation)
	}

	// The reverse direction is its own fit: title 1 from title 2.
	rows, err = db.RegressionFor(ctx, 2, 1)
	if err != nil {
		t.Fatalf("RegressionFor(2) error = %v", err)
	}
	if len(rows) != 1 || rows[0].SecondGameID != 1 {
		t.Fatalf("RegressionFor(2) = %+v, want one fit onto title 1", rows)
	}
	if math.Abs(rows[0].Constant-(-5)) > 1e-9 {
		t.Errorf("reverse Constant = %v, want -5", rows[0].Constant)
	}
}

func TestRegressionUpdateSkipsDegeneratePairs(t *testing.T) {
	db := newTestDB(t)
	r := NewRegression(db, 5, 5, 5, 0)
	ctx := context.Background()

	data := regressionFixture(t, db)
	if err := r.Update(ctx, data); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	// Title 3 has zero score variance, so neither direction gets a fit.
	rows, err := db.RegressionFor(ctx, 3, 1)
	if err != nil {
		t.Fatalf("RegressionFor(3) error = %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("RegressionFor(3) = %+v, want none", rows)
	}
}

func TestRegressionUpdateMinPairVotes(t *testing.T) {
	db := newTestDB(t)
	// Six shared votes required, fixture only has five per pair.
	r := NewRegression(db, 5, 6, 1, 0)
	ctx := context.Background()

	data := regressionFixture(t, db)
	if err := r.Update(ctx, data); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	rows, err := db.RegressionFor(ctx, 1, 1)
	if err != nil {
		t.Fatalf("RegressionFor() error = %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("RegressionFor(1) = %+v, want none below the pair-vote floor", rows)
	}
}

func TestRegressionRecommendPredicts(t *testing.T) {
	db := newTestDB(t)
	r := NewRegression(db, 5, 5, 5, 30)
	ctx := context.Background()

	data := regressionFixture(t, db)
	if err := r.Update(ctx, data); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	// New user voted title 1 at 30; the fit predicts 35 for title 2.
	data.Users[99] = map[int]int{1: 30}
	recs, err := r.Recommend(ctx, data, 99, 10)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d recommendations, want 1", len(recs))
	}
	if recs[0].TitleID != 2 {
		t.Errorf("recommended title = %d, want 2", recs[0].TitleID)
	}
	// Predictions are reported on the 1-10 scale: 35 -> 3.5.
	if math.Abs(recs[0].Score-3.5) > 1e-9 {
		t.Errorf("prediction = %v, want 3.5", recs[0].Score)
	}
}

func TestRegressionRecommendScoreFloor(t *testing.T) {
	db := newTestDB(t)
	// The prediction of 35 sits below a floor of 65.
	r := NewRegression(db, 5, 5, 5, 65)
	ctx := context.Background()

	data := regressionFixture(t, db)
	if err := r.Update(ctx, data); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	data.Users[99] = map[int]int{1: 30}
	recs, err := r.Recommend(ctx, data, 99, 10)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("got %v, want none below the score floor", recs)
	}
}

func TestRegressionRecommendMinOverlap(t *testing.T) {
	db := newTestDB(t)
	// Stored fits carry overlap 5; requiring 15 at request time hides them.
	r := NewRegression(db, 5, 5, 15, 0)
	ctx := context.Background()

	data := regressionFixture(t, db)
	if err := r.Update(ctx, data); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	data.Users[99] = map[int]int{1: 30}
	recs, err := r.Recommend(ctx, data, 99, 10)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("got %v, want none below the overlap floor", recs)
	}
}

func TestRegressionRecommendExcludesVoted(t *testing.T) {
	db := newTestDB(t)
	r := NewRegression(db, 5, 5, 5, 0)
	ctx := context.Background()

	data := regressionFixture(t, db)
	if err := r.Update(ctx, data); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	// User 1 already voted titles 1, 2 and 3: nothing is left to recommend.
	recs, err := r.Recommend(ctx, data, 1, 10)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("got %v, want none for a user who voted everything", recs)
	}
}
