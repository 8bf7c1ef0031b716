// vnrec - VNDB Recommendation Engine
// Copyright 2026 vndb-tools
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vndb-tools/vnrec

package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vndb-tools/vnrec/internal/logging"
)

// Vote is a single user rating as stored in the votes table. Scores are on
// the 10-100 scale used by the upstream vote dumps.
type Vote struct {
	TitleID int
	UserID  int
	Score   int
}

// VoteRow is a vote joined with whatever novel metadata the store has. The
// metadata fields are NULL for titles that have never been enriched.
type VoteRow struct {
	TitleID  int
	UserID   int
	Score    int
	Title    sql.NullString
	Original sql.NullString
	Released sql.NullString
}

// Novel is enriched title metadata.
type Novel struct {
	ID          int
	Title       string
	Original    string
	Released    string
	Length      int
	Description string
}

// LoadVotes returns every vote joined against the novels table. Votes for
// unenriched titles come back with NULL metadata.
func (db *DB) LoadVotes(ctx context.Context) ([]VoteRow, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT votes.title_id, votes.user_id, votes.score,
		       novels.title, novels.original, novels.released
		FROM votes
		LEFT JOIN novels ON votes.title_id = novels.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query votes: %w", err)
	}
	defer rows.Close()

	var out []VoteRow
	for rows.Next() {
		var r VoteRow
		if err := rows.Scan(&r.TitleID, &r.UserID, &r.Score,
			&r.Title, &r.Original, &r.Released); err != nil {
			return nil, fmt.Errorf("failed to scan vote row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate vote rows: %w", err)
	}
	return out, nil
}

// InsertVotes appends votes in a single transaction.
func (db *DB) InsertVotes(ctx context.Context, votes []Vote) error {
	if len(votes) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO votes (title_id, user_id, score) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare vote insert: %w", err)
	}
	defer stmt.Close()

	for _, v := range votes {
		if _, err := stmt.ExecContext(ctx, v.TitleID, v.UserID, v.Score); err != nil {
			return fmt.Errorf("failed to insert vote (%d,%d): %w", v.TitleID, v.UserID, err)
		}
	}

	return tx.Commit()
}

// ReplaceVotes swaps the entire votes table for the given set in one
// transaction. Used when loading a fresh vote dump.
func (db *DB) ReplaceVotes(ctx context.Context, votes []Vote) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	if _, err := tx.ExecContext(ctx, "DELETE FROM votes"); err != nil {
		return fmt.Errorf("failed to clear votes: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO votes (title_id, user_id, score) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare vote insert: %w", err)
	}
	defer stmt.Close()

	for _, v := range votes {
		if _, err := stmt.ExecContext(ctx, v.TitleID, v.UserID, v.Score); err != nil {
			return fmt.Errorf("failed to insert vote (%d,%d): %w", v.TitleID, v.UserID, err)
		}
	}

	return tx.Commit()
}

// UpsertNovels writes enriched metadata for a batch of titles in a single
// transaction, replacing any existing rows.
func (db *DB) UpsertNovels(ctx context.Context, novels []Novel) error {
	if len(novels) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO novels (id, title, original, released, length, description)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare novel upsert: %w", err)
	}
	defer stmt.Close()

	for _, n := range novels {
		if _, err := stmt.ExecContext(ctx,
			n.ID, n.Title, n.Original, n.Released, n.Length, n.Description); err != nil {
			return fmt.Errorf("failed to upsert novel %d: %w", n.ID, err)
		}
	}

	return tx.Commit()
}

// GetNovel returns metadata for one title, or sql.ErrNoRows if it has never
// been enriched.
func (db *DB) GetNovel(ctx context.Context, id int) (*Novel, error) {
	var n Novel
	var original, released, description sql.NullString
	var length sql.NullInt64
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, title, original, released, length, description
		FROM novels WHERE id = ?`, id).
		Scan(&n.ID, &n.Title, &original, &released, &length, &description)
	if err != nil {
		return nil, err
	}
	n.Original = original.String
	n.Released = released.String
	n.Length = int(length.Int64)
	n.Description = description.String
	return &n, nil
}

// rollbackQuietly rolls back a transaction, ignoring the error returned when
// the transaction already committed.
func rollbackQuietly(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
		logging.Warn().Err(err).Msg("Failed to roll back transaction")
	}
}
