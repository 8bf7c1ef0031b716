// vnrec - VNDB Recommendation Engine
// Copyright 2026 vndb-tools
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vndb-tools/vnrec

package algorithms

import (
	"context"
	"math"
	"testing"

	"github.com/vndb-tools/vnrec/internal/config"
	"github.com/vndb-tools/vnrec/internal/database"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(&config.DatabaseConfig{Path: "", MaxMemory: "256MB", Threads: 1})
	if err != nil {
		t.Fatalf("database.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// popularityFixture is a small dataset with hand-computed lifts:
//
//	title 1: voters u1,u2,u3   title 2: voters u1,u2,u4   title 3: voters u3,u4
//
// lift(1->2) = 2/3 - 3/8, lift(1->3) = 1/3 - 2/8, and so on.
func popularityFixture() *Dataset {
	return &Dataset{
		Users: map[int]map[int]int{
			1: {1: 90, 2: 80},
			2: {1: 90, 2: 40},
			3: {1: 90, 3: 70},
			4: {2: 60, 3: 60},
		},
		TitleVotes: map[int]int{1: 3, 2: 3, 3: 2},
	}
}

func TestPopularityUpdateComputesLift(t *testing.T) {
	db := newTestDB(t)
	p := NewRelativePopularity(db, 2, 0.001)
	ctx := context.Background()

	if err := p.Update(ctx, popularityFixture()); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	rows, err := db.PopularityFor(ctx, 1)
	if err != nil {
		t.Fatalf("PopularityFor() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("PopularityFor(1) = %d rows, want 2", len(rows))
	}

	wantLift2 := 2.0/3.0 - 3.0/8.0
	wantLift3 := 1.0/3.0 - 2.0/8.0
	if rows[0].SecondGameID != 2 || math.Abs(rows[0].Popularity-wantLift2) > 1e-12 {
		t.Errorf("lift(1->2) = %+v, want %v", rows[0], wantLift2)
	}
	if rows[1].SecondGameID != 3 || math.Abs(rows[1].Popularity-wantLift3) > 1e-12 {
		t.Errorf("lift(1->3) = %+v, want %v", rows[1], wantLift3)
	}
}

func TestPopularityUpdateSkipsRareTitles(t *testing.T) {
	db := newTestDB(t)
	// Threshold above every title's vote count: the rebuilt table is empty.
	p := NewRelativePopularity(db, 150, 0.001)
	ctx := context.Background()

	if err := p.Update(ctx, popularityFixture()); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	for _, titleID := range []int{1, 2, 3} {
		rows, err := db.PopularityFor(ctx, titleID)
		if err != nil {
			t.Fatalf("PopularityFor(%d) error = %v", titleID, err)
		}
		if len(rows) != 0 {
			t.Errorf("PopularityFor(%d) = %d rows, want 0", titleID, len(rows))
		}
	}
}

func TestPopularityLiftFloor(t *testing.T) {
	db := newTestDB(t)
	// Floor above lift(1->3) but below lift(1->2).
	p := NewRelativePopularity(db, 2, 0.1)
	ctx := context.Background()

	if err := p.Update(ctx, popularityFixture()); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	rows, err := db.PopularityFor(ctx, 1)
	if err != nil {
		t.Fatalf("PopularityFor() error = %v", err)
	}
	if len(rows) != 1 || rows[0].SecondGameID != 2 {
		t.Errorf("PopularityFor(1) = %+v, want only the 1->2 pair", rows)
	}
}

func TestPopularityRecommend(t *testing.T) {
	db := newTestDB(t)
	p := NewRelativePopularity(db, 2, 0.001)
	ctx := context.Background()

	data := popularityFixture()
	if err := p.Update(ctx, data); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	// A new user who loved title 1.
	data.Users[5] = map[int]int{1: 90}
	recs, err := p.Recommend(ctx, data, 5, 10)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d recommendations, want 2", len(recs))
	}

	want2 := 40 * (2.0/3.0 - 3.0/8.0)
	want3 := 40 * (1.0/3.0 - 2.0/8.0)
	if recs[0].TitleID != 2 || math.Abs(recs[0].Score-want2) > 1e-9 {
		t.Errorf("recs[0] = %+v, want title 2 score %v", recs[0], want2)
	}
	if recs[1].TitleID != 3 || math.Abs(recs[1].Score-want3) > 1e-9 {
		t.Errorf("recs[1] = %+v, want title 3 score %v", recs[1], want3)
	}
}

func TestPopularityRecommendNegativeVote(t *testing.T) {
	db := newTestDB(t)
	p := NewRelativePopularity(db, 2, 0.001)
	ctx := context.Background()

	data := popularityFixture()
	if err := p.Update(ctx, data); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	// A vote below the neutral 50 pushes related titles negative, and
	// negative totals are never recommended.
	data.Users[5] = map[int]int{1: 30}
	recs, err := p.Recommend(ctx, data, 5, 10)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("got %v, want no recommendations", recs)
	}
}

func TestPopularityRecommendExcludesVoted(t *testing.T) {
	db := newTestDB(t)
	p := NewRelativePopularity(db, 2, 0.001)
	ctx := context.Background()

	data := popularityFixture()
	if err := p.Update(ctx, data); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	// User 1 voted titles 1 and 2; only title 3 may be recommended.
	recs, err := p.Recommend(ctx, data, 1, 10)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	for _, r := range recs {
		if r.TitleID == 1 || r.TitleID == 2 {
			t.Errorf("voted title %d leaked into recommendations", r.TitleID)
		}
	}
}

func TestPopularityRecommendHonorsLimit(t *testing.T) {
	db := newTestDB(t)
	p := NewRelativePopularity(db, 2, 0.001)
	ctx := context.Background()

	data := popularityFixture()
	if err := p.Update(ctx, data); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	data.Users[5] = map[int]int{1: 90}
	recs, err := p.Recommend(ctx, data, 5, 1)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d recommendations, want 1", len(recs))
	}
	if recs[0].TitleID != 2 {
		t.Errorf("top recommendation = %d, want 2", recs[0].TitleID)
	}
}
