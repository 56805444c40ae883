// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

// Package runlog records relock run attempts in a local SQLite
// database. The forge remains the source of truth for what actually
// landed; the run log exists so an operator can answer "what did the
// service do last night and why" without trawling forge audit pages.
package runlog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/relockd/relockd/lib/sqlitepool"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id       TEXT PRIMARY KEY,
	trigger_kind TEXT NOT NULL,
	strategy     TEXT NOT NULL,
	repo         TEXT NOT NULL,
	target_ref   TEXT NOT NULL,
	outcome      TEXT NOT NULL,
	detail       TEXT NOT NULL DEFAULT '',
	started_at   TEXT NOT NULL,
	finished_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS run_variants (
	run_id  TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
	variant TEXT NOT NULL,
	status  TEXT NOT NULL,
	PRIMARY KEY (run_id, variant)
);

CREATE INDEX IF NOT EXISTS runs_started_at ON runs(started_at);
`

// Record is one run attempt.
type Record struct {
	RunID       string
	TriggerKind string
	Strategy    string
	Repo        string
	TargetRef   string

	// Outcome is "updated", "no-op", or "failed".
	Outcome string

	// Detail carries the failure reason for failed runs, empty
	// otherwise.
	Detail string

	StartedAt  time.Time
	FinishedAt time.Time

	// Variants maps variant name to its terminal status ("succeeded"
	// or "failed").
	Variants map[string]string
}

// Store is the run log. Safe for concurrent use.
type Store struct {
	pool *sqlitepool.Pool
}

// Open opens (creating if needed) the run log database at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   path,
		Logger: logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("runlog: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close closes the underlying pool.
func (store *Store) Close() error {
	return store.pool.Close()
}

// Append writes a completed run record. Run IDs are unique per
// attempt, so Append never overwrites.
func (store *Store) Append(ctx context.Context, record Record) (err error) {
	if record.RunID == "" {
		return fmt.Errorf("runlog: record has no run ID")
	}

	conn, err := store.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer store.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("runlog: beginning transaction: %w", err)
	}
	defer endTransaction(&err)

	err = sqlitex.Execute(conn, `
		INSERT INTO runs (run_id, trigger_kind, strategy, repo, target_ref, outcome, detail, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			record.RunID,
			record.TriggerKind,
			record.Strategy,
			record.Repo,
			record.TargetRef,
			record.Outcome,
			record.Detail,
			record.StartedAt.UTC().Format(time.RFC3339Nano),
			record.FinishedAt.UTC().Format(time.RFC3339Nano),
		}})
	if err != nil {
		return fmt.Errorf("runlog: inserting run %s: %w", record.RunID, err)
	}

	for variant, status := range record.Variants {
		err = sqlitex.Execute(conn, `
			INSERT INTO run_variants (run_id, variant, status) VALUES (?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{record.RunID, variant, status}})
		if err != nil {
			return fmt.Errorf("runlog: inserting variant %s for %s: %w", variant, record.RunID, err)
		}
	}
	return nil
}

// Recent returns up to limit records, most recent first, with their
// variant statuses populated.
func (store *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}

	conn, err := store.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer store.pool.Put(conn)

	var records []Record
	err = sqlitex.Execute(conn, `
		SELECT run_id, trigger_kind, strategy, repo, target_ref, outcome, detail, started_at, finished_at
		FROM runs ORDER BY started_at DESC LIMIT ?`,
		&sqlitex.ExecOptions{
			Args: []any{limit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				record := Record{
					RunID:       stmt.ColumnText(0),
					TriggerKind: stmt.ColumnText(1),
					Strategy:    stmt.ColumnText(2),
					Repo:        stmt.ColumnText(3),
					TargetRef:   stmt.ColumnText(4),
					Outcome:     stmt.ColumnText(5),
					Detail:      stmt.ColumnText(6),
				}
				var err error
				if record.StartedAt, err = time.Parse(time.RFC3339Nano, stmt.ColumnText(7)); err != nil {
					return fmt.Errorf("runlog: parsing started_at for %s: %w", record.RunID, err)
				}
				if record.FinishedAt, err = time.Parse(time.RFC3339Nano, stmt.ColumnText(8)); err != nil {
					return fmt.Errorf("runlog: parsing finished_at for %s: %w", record.RunID, err)
				}
				records = append(records, record)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("runlog: listing runs: %w", err)
	}

	for index := range records {
		record := &records[index]
		err = sqlitex.Execute(conn, `
			SELECT variant, status FROM run_variants WHERE run_id = ?`,
			&sqlitex.ExecOptions{
				Args: []any{record.RunID},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					if record.Variants == nil {
						record.Variants = make(map[string]string)
					}
					record.Variants[stmt.ColumnText(0)] = stmt.ColumnText(1)
					return nil
				},
			})
		if err != nil {
			return nil, fmt.Errorf("runlog: listing variants for %s: %w", record.RunID, err)
		}
	}
	return records, nil
}
