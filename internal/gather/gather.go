// Package gather plans, fetches, and merges incremental minute-bar data.
// Market-specific gatherers live in subpackages and drive the generic
// RangePlanner, Fetcher, and Runner defined here.
package gather

import (
	"context"
	"time"

	"github.com/harshtodi-pixel/get-stocks-data/internal/domain"
)

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run brings every configured instrument up to date and returns one
	// Summary per instrument. Instrument failures are reported in the
	// summaries; the error is reserved for failures that stop the whole
	// dataset, such as bad configuration or cancellation.
	Run(ctx context.Context) ([]Summary, error)
}

// Notifier is told about every successful merge that added rows.
type Notifier interface {
	DatasetUpdated(ctx context.Context, ds domain.Dataset, rowsAdded int, through time.Time) error
}

// Timestamped is implemented by every row type the fetcher handles.
type Timestamped interface {
	UnixTime() int64
}
