// vnrec - VNDB Recommendation Engine
// Copyright 2026 vndb-tools
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vndb-tools/vnrec

package algorithms

import (
	"context"
	"math"
	"time"

	"github.com/vndb-tools/vnrec/internal/database"
	"github.com/vndb-tools/vnrec/internal/logging"
)

// Regression predicts scores with per-pair linear fits. For every ordered
// pair of sufficiently voted titles, Update fits score_j = constant +
// gradient * score_i by ordinary least squares over the users who voted both.
// At request time the fits from the user's own votes are blended, weighted by
// ln(overlap), and the blend is read as a 10-100 score prediction.
type Regression struct {
	db *database.DB

	// minTitleVotes gates which titles get pairwise fits.
	minTitleVotes int

	// minPairVotes is the smallest sample a fit may be computed from.
	minPairVotes int

	// minOverlap gates which stored fits are consulted at request time.
	minOverlap int

	// minPredicted is the raw-score floor (10-100 scale) a candidate must
	// reach to be recommended.
	minPredicted float64
}

// NewRegression returns the strategy backed by db.
func NewRegression(db *database.DB, minTitleVotes, minPairVotes, minOverlap int, minPredicted float64) *Regression {
	return &Regression{
		db:            db,
		minTitleVotes: minTitleVotes,
		minPairVotes:  minPairVotes,
		minOverlap:    minOverlap,
		minPredicted:  minPredicted,
	}
}

// Update rebuilds the regression table wholesale. The pairwise sums are
// computed in the database; degenerate fits (no score variance on either
// side) are skipped.
func (r *Regression) Update(ctx context.Context, data *Dataset) error {
	start := time.Now()

	var eligible []int
	for _, titleID := range sortedKeys(data.TitleVotes) {
		if data.TitleVotes[titleID] >= r.minTitleVotes {
			eligible = append(eligible, titleID)
		}
	}

	var rows []database.RegressionRow
	for _, a := range eligible {
		for _, b := range eligible {
			if a == b {
				continue
			}

			s, err := r.db.PairStatsFor(ctx, a, b)
			if err != nil {
				return err
			}
			if s.Total < r.minPairVotes {
				continue
			}

			total := float64(s.Total)
			den := total*s.X2 - s.X*s.X
			corrDen := math.Sqrt(total*s.X2-s.X*s.X) * math.Sqrt(total*s.Y2-s.Y*s.Y)
			if den == 0 || corrDen == 0 {
				continue
			}

			rows = append(rows, database.RegressionRow{
				GameID:       a,
				SecondGameID: b,
				Gradient:     (total*s.XY - s.X*s.Y) / den,
				Constant:     (s.Y*s.X2 - s.X*s.XY) / den,
				Overlap:      s.Total,
				Correlation:  (total*s.XY - s.X*s.Y) / corrDen,
			})
		}

		if err := ctx.Err(); err != nil {
			return err
		}
	}

	if err := r.db.ReplaceRegression(ctx, rows); err != nil {
		return err
	}

	logging.Info().
		Int("pairs", len(rows)).
		Int("titles", len(eligible)).
		Dur("elapsed", time.Since(start)).
		Msg("Regression table rebuilt")
	return nil
}

// Recommend blends the fits reachable from the user's votes and greedily
// picks up to limit candidates. Each pick maximizes the margin between its
// predicted score and the title's average score, so the list favors titles
// predicted to suit this user more than the average voter. Returned scores
// are predictions on the 1-10 scale.
func (r *Regression) Recommend(ctx context.Context, data *Dataset, userID, limit int) ([]Scored, error) {
	votes := data.Users[userID]

	score := make(map[int]float64)
	conf := make(map[int]float64)
	for _, titleID := range sortedKeys(votes) {
		rows, err := r.db.RegressionFor(ctx, titleID, r.minOverlap)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			weight := math.Abs(math.Log(float64(row.Overlap)))
			score[row.SecondGameID] += weight * (row.Constant + float64(votes[titleID])*row.Gradient)
			conf[row.SecondGameID] += weight
		}
	}

	candidates := sortedKeys(score)
	used := make(map[int]bool)
	out := make([]Scored, 0, limit)

	for len(out) < limit {
		best := -1
		bestValue := math.Inf(-1)

		for _, titleID := range candidates {
			if used[titleID] {
				continue
			}
			if _, voted := votes[titleID]; voted {
				continue
			}
			if conf[titleID] < 1 {
				continue
			}
			predicted := score[titleID] / conf[titleID]
			if predicted < r.minPredicted {
				continue
			}

			avgVotes := data.TitleVotes[titleID]
			if avgVotes < 1 {
				avgVotes = 1
			}
			value := predicted - float64(data.TitleRating[titleID])/float64(avgVotes)
			if value > bestValue {
				best = titleID
				bestValue = value
			}
		}
		if best < 0 {
			break
		}

		used[best] = true
		denom := conf[best]
		if denom < 1 {
			denom = 1
		}
		out = append(out, Scored{TitleID: best, Score: score[best] / denom / 10})
	}

	if len(out) == 0 {
		logging.Debug().Int("user_id", userID).Msg("No regression candidates cleared the score floor")
	}
	return out, nil
}
