// Package store defines storage interfaces for persisting and retrieving
// collected datasets: minute bars, enriched option bars, per-dataset locks,
// and the run-history ledger.
package store

import (
	"context"
	"time"

	"github.com/harshtodi-pixel/get-stocks-data/internal/domain"
)

// BarStore persists and retrieves OHLCV bar datasets.
type BarStore interface {
	// MergeBars merges bars into the dataset, deduplicating by timestamp with
	// incoming rows winning, and returns the number of rows added.
	MergeBars(ctx context.Context, ds domain.Dataset, bars []domain.Bar) (int, error)

	// ReadBars returns every stored bar of the dataset in timestamp order.
	ReadBars(ctx context.Context, ds domain.Dataset) ([]domain.Bar, error)

	// LastTimestamp returns the dataset's max timestamp, or the zero time
	// when nothing is stored.
	LastTimestamp(ctx context.Context, ds domain.Dataset) (time.Time, error)
}

// OptionStore persists and retrieves enriched option datasets.
type OptionStore interface {
	// MergeOptions merges rows keyed by (timestamp, underlying, option type,
	// expiry type, expiry code, strike) and returns the number of rows added.
	MergeOptions(ctx context.Context, ds domain.Dataset, rows []domain.OptionBar) (int, error)

	// ReadOptions returns every stored option row of the dataset.
	ReadOptions(ctx context.Context, ds domain.Dataset) ([]domain.OptionBar, error)

	// LastTimestamp returns the dataset's max timestamp.
	LastTimestamp(ctx context.Context, ds domain.Dataset) (time.Time, error)
}

// Locker serialises runs on the same dataset. Acquire fails with
// domain.ErrLocked when another holder owns the dataset.
type Locker interface {
	Acquire(ctx context.Context, ds domain.Dataset) (release func() error, err error)
}

// RunStore records the outcome of each instrument run.
type RunStore interface {
	// RecordRun appends one outcome to the ledger.
	RecordRun(ctx context.Context, run RunRecord) error

	// ListRuns returns the most recent outcomes, newest first, up to limit.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
}

// RunRecord is one instrument's outcome within a run.
type RunRecord struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt time.Time
	Dataset    string
	Windows    int
	RowsAdded  int
	Skipped    int
	FailedFrom time.Time // zero when nothing failed
	FailedTo   time.Time
	Error      string
}

// Failed reports whether the run ended with an error.
func (r RunRecord) Failed() bool { return r.Error != "" }
