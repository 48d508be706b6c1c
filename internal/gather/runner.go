package gather

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/harshtodi-pixel/get-stocks-data/internal/domain"
	"github.com/harshtodi-pixel/get-stocks-data/internal/store"
)

// Summary is one instrument's outcome within a run.
type Summary struct {
	Dataset   domain.Dataset
	Started   time.Time
	Finished  time.Time
	UpToDate  bool // nothing was planned
	Windows   int  // windows fetched and merged
	RowsAdded int
	Skipped   int
	Failed    domain.DateRange // the window that failed, zero if none
	Err       error
}

// OK reports whether the instrument finished without error.
func (s Summary) OK() bool { return s.Err == nil }

func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-28s ", s.Dataset)
	switch {
	case IsLocked(s):
		b.WriteString("locked  ")
	case s.Err != nil:
		b.WriteString("FAILED  ")
	case s.UpToDate:
		b.WriteString("current ")
	default:
		b.WriteString("ok      ")
	}
	fmt.Fprintf(&b, "windows=%d added=%d skipped=%d", s.Windows, s.RowsAdded, s.Skipped)
	if !s.Failed.Start.IsZero() {
		fmt.Fprintf(&b, " failed_range=%s", s.Failed)
	}
	if s.Err != nil {
		fmt.Fprintf(&b, " err=%q", s.Err.Error())
	}
	return b.String()
}

// AnyFailed reports whether any summary carries an error.
func AnyFailed(summaries []Summary) bool {
	for _, s := range summaries {
		if !s.OK() {
			return true
		}
	}
	return false
}

// Source yields fetched batches covering r in chronological order.
type Source[T Timestamped] func(ctx context.Context, r domain.DateRange) iter.Seq[Batch[T]]

// MergeFunc persists rows into ds and returns how many were new.
type MergeFunc[T Timestamped] func(ctx context.Context, ds domain.Dataset, rows []T) (int, error)

// MaxReader reports the newest stored timestamp of a dataset, or the zero
// time when nothing is stored.
type MaxReader interface {
	LastTimestamp(ctx context.Context, ds domain.Dataset) (time.Time, error)
}

// Runner drives one instrument through plan, fetch, and merge. Lock, run
// ledger, and notifier are optional.
type Runner struct {
	Planner  RangePlanner
	Store    MaxReader
	Locker   store.Locker
	Runs     store.RunStore
	Notifier Notifier
	Now      func() time.Time
	log      *slog.Logger
}

// NewRunner creates a Runner reading incremental state from s.
func NewRunner(planner RangePlanner, s MaxReader) *Runner {
	return &Runner{
		Planner: planner,
		Store:   s,
		Now:     time.Now,
		log:     slog.Default().With("component", "runner"),
	}
}

// Run brings ds up to date from intendedStart. Each batch is merged before
// the next is requested. The first failed batch ends the instrument so that
// the stored max timestamp never passes a gap; the next run resumes there.
func Run[T Timestamped](ctx context.Context, rn *Runner, ds domain.Dataset, intendedStart time.Time, src Source[T], merge MergeFunc[T]) (sum Summary) {
	sum = Summary{Dataset: ds, Started: rn.Now()}
	log := rn.log.With("dataset", ds.String())

	defer func() {
		sum.Finished = rn.Now()
		rn.record(sum)
	}()

	if rn.Locker != nil {
		release, err := rn.Locker.Acquire(ctx, ds)
		if err != nil {
			sum.Err = err
			log.Warn("lock not acquired", "err", err)
			return sum
		}
		defer func() {
			if err := release(); err != nil {
				log.Warn("releasing lock", "err", err)
			}
		}()
	}

	existingMax, err := rn.Store.LastTimestamp(ctx, ds)
	if err != nil {
		sum.Err = fmt.Errorf("reading stored max: %w", err)
		return sum
	}

	plan, err := rn.Planner.Plan(intendedStart, rn.Now(), existingMax)
	if err != nil {
		sum.Err = err
		log.Error("planning failed", "err", err)
		return sum
	}
	if plan.Empty() {
		sum.UpToDate = true
		log.Info("up to date", "through", existingMax.In(domain.IST).Format(time.DateTime))
		return sum
	}

	for _, r := range plan {
		log.Info("fetching", "range", r.String())
		for b := range src(ctx, r) {
			if b.Err != nil {
				sum.Failed = b.Range
				sum.Err = b.Err
				log.Error("window failed", "range", b.Range.String(), "err", b.Err)
				return sum
			}

			added, err := merge(ctx, ds, b.Rows)
			if err != nil {
				sum.Failed = b.Range
				sum.Err = err
				log.Error("merge failed", "range", b.Range.String(), "err", err)
				return sum
			}
			sum.Windows++
			sum.RowsAdded += added
			sum.Skipped += b.Skipped
			log.Info("window merged", "range", b.Range.String(), "rows", len(b.Rows), "added", added, "skipped", b.Skipped)

			if added > 0 && rn.Notifier != nil {
				if err := rn.Notifier.DatasetUpdated(ctx, ds, added, lastTime(b.Rows)); err != nil {
					log.Warn("notify failed", "err", err)
				}
			}
		}
	}
	return sum
}

func (rn *Runner) record(sum Summary) {
	if rn.Runs == nil {
		return
	}
	rec := store.RunRecord{
		StartedAt:  sum.Started,
		FinishedAt: sum.Finished,
		Dataset:    sum.Dataset.String(),
		Windows:    sum.Windows,
		RowsAdded:  sum.RowsAdded,
		Skipped:    sum.Skipped,
		FailedFrom: sum.Failed.Start,
		FailedTo:   sum.Failed.End,
	}
	if sum.Err != nil {
		rec.Error = sum.Err.Error()
	}
	// Recorded even when the run was cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rn.Runs.RecordRun(ctx, rec); err != nil {
		rn.log.Warn("recording run", "dataset", rec.Dataset, "err", err)
	}
}

func lastTime[T Timestamped](rows []T) time.Time {
	var maxTS int64
	for _, r := range rows {
		maxTS = max(maxTS, r.UnixTime())
	}
	return time.Unix(maxTS, 0).In(domain.IST)
}

// Skip builds the summary of an instrument that could not be started, such
// as a symbol missing from the scrip master.
func Skip(ds domain.Dataset, err error) Summary {
	now := time.Now()
	return Summary{Dataset: ds, Started: now, Finished: now, Err: err}
}

// IsLocked reports whether a summary failed because another run held the
// dataset.
func IsLocked(s Summary) bool { return errors.Is(s.Err, domain.ErrLocked) }
