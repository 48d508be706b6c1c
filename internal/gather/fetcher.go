package gather

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/harshtodi-pixel/get-stocks-data/internal/domain"
	"github.com/harshtodi-pixel/get-stocks-data/internal/util"
)

// CallFunc performs one bounded upstream request for rows within r.
type CallFunc[T Timestamped] func(ctx context.Context, r domain.DateRange) ([]T, error)

// Batch is the outcome of fetching one window. Err is set when the window
// could not be fetched; batches yielded before it are unaffected.
type Batch[T Timestamped] struct {
	Range   domain.DateRange
	Rows    []T
	Skipped int // rows or rejected calls dropped, e.g. during enrichment
	Err     error
}

// Fetcher splits ranges into windows and performs rate-limited, retried
// upstream calls. One Fetcher (and its limiter) is shared by every
// goroutine talking to the same upstream.
type Fetcher struct {
	WindowDays        int
	MaxRows           int           // a response this large is treated as truncated; 0 disables
	MinSplit          time.Duration // windows this short are never split
	CallTimeout       time.Duration
	MaxAttempts       int
	BaseBackoff       time.Duration
	RateLimitAttempts int
	RateLimitBackoff  time.Duration
	Limiter           *util.RateLimiter
	log               *slog.Logger
}

// NewFetcher returns a Fetcher with the original pipeline's windowing and
// a shared limiter spacing calls at least callDelay apart.
func NewFetcher(windowDays int, limiter *util.RateLimiter) *Fetcher {
	return &Fetcher{
		WindowDays:        windowDays,
		MinSplit:          24 * time.Hour,
		CallTimeout:       2 * time.Minute,
		MaxAttempts:       4,
		BaseBackoff:       2 * time.Second,
		RateLimitAttempts: 5,
		RateLimitBackoff:  10 * time.Second,
		Limiter:           limiter,
		log:               slog.Default().With("component", "fetcher"),
	}
}

// WithWindowDays returns a copy of f using a different window size. The
// copy shares f's limiter.
func (f *Fetcher) WithWindowDays(days int) *Fetcher {
	c := *f
	c.WindowDays = days
	return &c
}

// Windows splits r into consecutive, non-overlapping windows of at most
// WindowDays calendar days.
func (f *Fetcher) Windows(r domain.DateRange) []domain.DateRange {
	days := max(f.WindowDays, 1)
	var out []domain.DateRange
	for cur := r.Start; cur.Before(r.End); {
		next := cur.AddDate(0, 0, days)
		if next.After(r.End) {
			next = r.End
		}
		out = append(out, domain.DateRange{Start: cur, End: next})
		cur = next
	}
	return out
}

// Fetch lazily fetches r window by window. Each batch is yielded before the
// next window is requested, so a consumer that persists every batch loses
// nothing when a later window fails. Fetch keeps going after a failed
// window; consumers that need gap-free progress stop at the first Err.
func Fetch[T Timestamped](ctx context.Context, f *Fetcher, r domain.DateRange, call CallFunc[T]) iter.Seq[Batch[T]] {
	return func(yield func(Batch[T]) bool) {
		for _, w := range f.Windows(r) {
			if err := ctx.Err(); err != nil {
				yield(Batch[T]{Range: w, Err: err})
				return
			}
			rows, err := Do(ctx, f, w, call)
			if !yield(Batch[T]{Range: w, Rows: rows, Err: err}) {
				return
			}
		}
	}
}

// Do fetches exactly r with a single logical request. The call is retried on
// rate limits and transient failures. A rejected or truncated response for
// a window longer than MinSplit is refetched as two halves. Rows outside r
// are dropped.
func Do[T Timestamped](ctx context.Context, f *Fetcher, r domain.DateRange, call CallFunc[T]) ([]T, error) {
	rows, err := retryCall(ctx, f, r, call)

	splittable := r.Duration() > f.MinSplit
	switch {
	case err != nil && errors.Is(err, domain.ErrRequestRejected) && splittable:
		f.log.Warn("request rejected, splitting window", "range", r.String(), "err", err)
		return doSplit(ctx, f, r, call)
	case err != nil:
		return nil, err
	case f.MaxRows > 0 && len(rows) >= f.MaxRows && splittable:
		f.log.Info("response at row cap, splitting window", "range", r.String(), "rows", len(rows))
		return doSplit(ctx, f, r, call)
	}
	return within(rows, r), nil
}

func doSplit[T Timestamped](ctx context.Context, f *Fetcher, r domain.DateRange, call CallFunc[T]) ([]T, error) {
	mid := r.Start.Add(r.Duration() / 2).Truncate(time.Minute)
	if !mid.After(r.Start) {
		mid = r.Start.Add(r.Duration() / 2)
	}

	left, err := Do(ctx, f, domain.DateRange{Start: r.Start, End: mid}, call)
	if err != nil {
		return nil, err
	}
	right, err := Do(ctx, f, domain.DateRange{Start: mid, End: r.End}, call)
	if err != nil {
		return nil, err
	}
	return append(left, right...), nil
}

// retryCall runs call until it succeeds, fails permanently, or exhausts the
// budget for its error class. Rate limits and transient failures have
// separate budgets.
func retryCall[T Timestamped](ctx context.Context, f *Fetcher, r domain.DateRange, call CallFunc[T]) ([]T, error) {
	transient := util.NewBackOff(ctx, f.MaxAttempts, f.BaseBackoff)
	limited := util.NewBackOff(ctx, f.RateLimitAttempts, f.RateLimitBackoff)

	for attempts := 1; ; attempts++ {
		if f.Limiter != nil {
			if err := f.Limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		rows, err := callOnce(ctx, f.CallTimeout, r, call)
		if err == nil {
			return rows, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var next time.Duration
		switch {
		case errors.Is(err, domain.ErrRateLimited):
			next = limited.NextBackOff()
		case errors.Is(err, domain.ErrTransient):
			next = transient.NextBackOff()
		default:
			return nil, err
		}
		if next == backoff.Stop {
			return nil, &domain.FetchExhaustedError{Range: r, Attempts: attempts, Err: err}
		}

		f.log.Debug("retrying", "range", r.String(), "attempt", attempts, "wait", next, "err", err)
		if err := sleep(ctx, next); err != nil {
			return nil, err
		}
	}
}

// callOnce runs call under its own timeout. A call that runs out of time is
// a transient failure.
func callOnce[T Timestamped](ctx context.Context, timeout time.Duration, r domain.DateRange, call CallFunc[T]) ([]T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	rows, err := call(ctx, r)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
		return nil, fmt.Errorf("call exceeded %s: %w", timeout, domain.ErrTransient)
	}
	return rows, err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// within keeps rows whose timestamp lies in r.
func within[T Timestamped](rows []T, r domain.DateRange) []T {
	lo, hi := r.Start.Unix(), r.End.Unix()
	out := rows[:0]
	for _, row := range rows {
		if ts := row.UnixTime(); ts >= lo && ts < hi {
			out = append(out, row)
		}
	}
	return out
}
