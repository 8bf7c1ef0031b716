// vnrec - VNDB Recommendation Engine
// Copyright 2026 vndb-tools
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vndb-tools/vnrec

package database

import (
	"context"
	"fmt"
)

// PopularityRow relates two titles: popularity is the co-vote lift of
// second_game_id among voters of game_id. The relation is asymmetric.
type PopularityRow struct {
	GameID       int
	SecondGameID int
	Popularity   float64
}

// RegressionRow is an ordered-pair linear fit predicting the score of
// second_game_id from a score of game_id.
type RegressionRow struct {
	GameID       int
	SecondGameID int
	Gradient     float64
	Constant     float64
	Overlap      int
	Correlation  float64
}

// PairStats holds the accumulated sums for an ordered title pair, computed
// over users who voted on both. X is the first title's score, Y the second's.
type PairStats struct {
	Total int
	X     float64
	X2    float64
	Y     float64
	Y2    float64
	XY    float64
}

// ReplacePopularity rebuilds the relative_popularity table wholesale from the
// given rows. The table is dropped and recreated so a rebuild never mixes old
// and new data.
func (db *DB) ReplacePopularity(ctx context.Context, rows []PopularityRow) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS relative_popularity"); err != nil {
		return fmt.Errorf("failed to drop relative_popularity: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE relative_popularity (
			game_id        INTEGER NOT NULL,
			second_game_id INTEGER NOT NULL,
			popularity     DOUBLE NOT NULL
		)`); err != nil {
		return fmt.Errorf("failed to create relative_popularity: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO relative_popularity (game_id, second_game_id, popularity)
		VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare popularity insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.GameID, r.SecondGameID, r.Popularity); err != nil {
			return fmt.Errorf("failed to insert popularity (%d,%d): %w",
				r.GameID, r.SecondGameID, err)
		}
	}

	return tx.Commit()
}

// PopularityFor returns every popularity row whose first title is gameID,
// ordered by second_game_id for deterministic iteration. An absent table
// (never rebuilt) yields no rows and no error.
func (db *DB) PopularityFor(ctx context.Context, gameID int) ([]PopularityRow, error) {
	if ok, err := db.tableExists(ctx, "relative_popularity"); err != nil || !ok {
		return nil, err
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT game_id, second_game_id, popularity
		FROM relative_popularity
		WHERE game_id = ?
		ORDER BY second_game_id`, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to query relative_popularity: %w", err)
	}
	defer rows.Close()

	var out []PopularityRow
	for rows.Next() {
		var r PopularityRow
		if err := rows.Scan(&r.GameID, &r.SecondGameID, &r.Popularity); err != nil {
			return nil, fmt.Errorf("failed to scan popularity row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ReplaceRegression rebuilds the regression table wholesale.
func (db *DB) ReplaceRegression(ctx context.Context, rows []RegressionRow) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS regression"); err != nil {
		return fmt.Errorf("failed to drop regression: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE regression (
			game_id        INTEGER NOT NULL,
			second_game_id INTEGER NOT NULL,
			gradient       DOUBLE NOT NULL,
			constant       DOUBLE NOT NULL,
			overlap        INTEGER NOT NULL,
			correlation    DOUBLE NOT NULL
		)`); err != nil {
		return fmt.Errorf("failed to create regression: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO regression (game_id, second_game_id, gradient, constant, overlap, correlation)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare regression insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			r.GameID, r.SecondGameID, r.Gradient, r.Constant, r.Overlap, r.Correlation); err != nil {
			return fmt.Errorf("failed to insert regression (%d,%d): %w",
				r.GameID, r.SecondGameID, err)
		}
	}

	return tx.Commit()
}

// RegressionFor returns regression rows whose first title is gameID and whose
// overlap is at least minOverlap, ordered by second_game_id. An absent table
// yields no rows and no error.
func (db *DB) RegressionFor(ctx context.Context, gameID, minOverlap int) ([]RegressionRow, error) {
	if ok, err := db.tableExists(ctx, "regression"); err != nil || !ok {
		return nil, err
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT game_id, second_game_id, gradient, constant, overlap, correlation
		FROM regression
		WHERE game_id = ? AND overlap >= ?
		ORDER BY second_game_id`, gameID, minOverlap)
	if err != nil {
		return nil, fmt.Errorf("failed to query regression: %w", err)
	}
	defer rows.Close()

	var out []RegressionRow
	for rows.Next() {
		var r RegressionRow
		if err := rows.Scan(&r.GameID, &r.SecondGameID,
			&r.Gradient, &r.Constant, &r.Overlap, &r.Correlation); err != nil {
			return nil, fmt.Errorf("failed to scan regression row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PairStatsFor computes the ordered-pair sums for titles (a, b) over users
// who voted on both. Total is zero when no user overlaps.
func (db *DB) PairStatsFor(ctx context.Context, a, b int) (PairStats, error) {
	var s PairStats
	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(v1.score), 0),
		       COALESCE(SUM(v1.score * v1.score), 0),
		       COALESCE(SUM(v2.score), 0),
		       COALESCE(SUM(v2.score * v2.score), 0),
		       COALESCE(SUM(v1.score * v2.score), 0)
		FROM votes v1
		INNER JOIN votes v2 ON v1.user_id = v2.user_id
		WHERE v1.title_id = ? AND v2.title_id = ?`, a, b).
		Scan(&s.Total, &s.X, &s.X2, &s.Y, &s.Y2, &s.XY)
	if err != nil {
		return PairStats{}, fmt.Errorf("failed to query pair stats (%d,%d): %w", a, b, err)
	}
	return s, nil
}

// tableExists reports whether a table is present in the current schema.
func (db *DB) tableExists(ctx context.Context, name string) (bool, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM information_schema.tables
		WHERE table_name = ?`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", name, err)
	}
	return n > 0, nil
}
