package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ RunStore = (*SQLiteStore)(nil)

// SQLiteStore implements RunStore backed by a SQLite database. The ledger is
// for reporting only; incremental state always comes from the Parquet files.
type SQLiteStore struct {
	db *sql.DB
}

const runsSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL,
	dataset     TEXT    NOT NULL,
	windows     INTEGER NOT NULL,
	rows_added  INTEGER NOT NULL,
	skipped     INTEGER NOT NULL,
	failed_from INTEGER NOT NULL DEFAULT 0,
	failed_to   INTEGER NOT NULL DEFAULT 0,
	error       TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS runs_dataset ON runs(dataset, started_at);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns
// a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(runsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating runs table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// RunStore implementation
// ---------------------------------------------------------------------------

// RecordRun inserts one run outcome.
func (s *SQLiteStore) RecordRun(ctx context.Context, r RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (started_at, finished_at, dataset, windows, rows_added, skipped, failed_from, failed_to, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.StartedAt.UnixMilli(), r.FinishedAt.UnixMilli(), r.Dataset, r.Windows, r.RowsAdded,
		r.Skipped, unixOrZero(r.FailedFrom), unixOrZero(r.FailedTo), r.Error,
	)
	if err != nil {
		return fmt.Errorf("recording run for %s: %w", r.Dataset, err)
	}
	return nil
}

// ListRuns returns the most recent outcomes, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, dataset, windows, rows_added, skipped, failed_from, failed_to, error
		FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			r                    RunRecord
			started, finished    int64
			failedFrom, failedTo int64
		)
		if err := rows.Scan(&r.ID, &started, &finished, &r.Dataset, &r.Windows, &r.RowsAdded,
			&r.Skipped, &failedFrom, &failedTo, &r.Error); err != nil {
			return nil, err
		}
		r.StartedAt = time.UnixMilli(started)
		r.FinishedAt = time.UnixMilli(finished)
		r.FailedFrom = timeOrZero(failedFrom)
		r.FailedTo = timeOrZero(failedTo)
		out = append(out, r)
	}
	return out, rows.Err()
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func timeOrZero(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
