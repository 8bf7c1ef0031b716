// vnrec - VNDB Recommendation Engine
// Copyright 2026 vndb-tools
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vndb-tools/vnrec

package algorithms

import (
	"context"
	"time"

	"github.com/vndb-tools/vnrec/internal/database"
	"github.com/vndb-tools/vnrec/internal/logging"
)

// RelativePopularity recommends titles that are disproportionately popular
// among the voters of a title compared to the population at large.
//
// For a title pair (i, j), the lift of j relative to i is the share of j
// among the co-votes of i's voters minus the share of j among all retained
// votes. Pairs whose lift clears the configured floor are persisted by Update
// and consulted at request time, weighted by how far the requesting user's
// vote sits from the neutral score of 50.
type RelativePopularity struct {
	db *database.DB

	// minTitleVotes gates which titles participate in the pairwise table.
	minTitleVotes int

	// minLift is the smallest lift worth persisting.
	minLift float64
}

// NewRelativePopularity returns the strategy backed by db.
func NewRelativePopularity(db *database.DB, minTitleVotes int, minLift float64) *RelativePopularity {
	return &RelativePopularity{
		db:            db,
		minTitleVotes: minTitleVotes,
		minLift:       minLift,
	}
}

// Update rebuilds the relative_popularity table wholesale from the dataset.
func (p *RelativePopularity) Update(ctx context.Context, data *Dataset) error {
	start := time.Now()

	// Baseline: how often each title is voted across all retained users.
	remainVotes := make(map[int]int)
	totalRemainVotes := 0
	for _, votes := range data.Users {
		for titleID := range votes {
			remainVotes[titleID]++
		}
		totalRemainVotes += len(votes)
	}

	// Voters per title, for the per-title pass below.
	voters := make(map[int][]int)
	for _, userID := range sortedKeys(data.Users) {
		for titleID := range data.Users[userID] {
			voters[titleID] = append(voters[titleID], userID)
		}
	}

	var rows []database.PopularityRow
	for _, titleID := range sortedKeys(data.TitleVotes) {
		if data.TitleVotes[titleID] < p.minTitleVotes {
			continue
		}

		relatedVotes := make(map[int]int)
		totalRelatedVotes := 0
		for _, userID := range voters[titleID] {
			votes := data.Users[userID]
			totalRelatedVotes += len(votes) - 1
			for otherID := range votes {
				relatedVotes[otherID]++
			}
		}
		if totalRelatedVotes == 0 {
			continue
		}

		for _, otherID := range sortedKeys(relatedVotes) {
			if otherID == titleID {
				continue
			}
			if data.TitleVotes[otherID] < p.minTitleVotes {
				continue
			}
			lift := float64(relatedVotes[otherID])/float64(totalRelatedVotes) -
				float64(remainVotes[otherID])/float64(totalRemainVotes)
			if lift >= p.minLift {
				rows = append(rows, database.PopularityRow{
					GameID:       titleID,
					SecondGameID: otherID,
					Popularity:   lift,
				})
			}
		}

		if err := ctx.Err(); err != nil {
			return err
		}
	}

	if err := p.db.ReplacePopularity(ctx, rows); err != nil {
		return err
	}

	logging.Info().
		Int("pairs", len(rows)).
		Dur("elapsed", time.Since(start)).
		Msg("Relative popularity table rebuilt")
	return nil
}

// Recommend scores every title related to the user's voted titles. A vote
// above 50 pushes related titles up, a vote below pulls them down. Titles the
// user has voted are excluded; only positive totals are returned.
func (p *RelativePopularity) Recommend(ctx context.Context, data *Dataset, userID, limit int) ([]Scored, error) {
	votes := data.Users[userID]
	scores := make(map[int]float64)

	for _, titleID := range sortedKeys(votes) {
		rows, err := p.db.PopularityFor(ctx, titleID)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			scores[row.SecondGameID] += float64(votes[titleID]-50) * row.Popularity
		}
	}

	for titleID, s := range scores {
		if _, voted := votes[titleID]; voted {
			delete(scores, titleID)
			continue
		}
		if s <= 0 {
			delete(scores, titleID)
		}
	}

	return takeTop(scores, limit), nil
}
