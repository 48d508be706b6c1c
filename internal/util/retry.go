package util

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// NewBackOff returns an exponential backoff starting at baseDelay and
// doubling on each attempt, stopping after maxAttempts total attempts. The
// returned backoff honours ctx.
func NewBackOff(ctx context.Context, maxAttempts int, baseDelay time.Duration) backoff.BackOff {
	exp := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(baseDelay),
		backoff.WithMultiplier(2),
		backoff.WithRandomizationFactor(0),
		backoff.WithMaxInterval(time.Minute),
		backoff.WithMaxElapsedTime(0),
	)
	retries := 0
	if maxAttempts > 1 {
		retries = maxAttempts - 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), ctx)
}

// Retry calls fn up to maxAttempts times with exponential backoff starting at
// baseDelay. It returns nil on the first successful call, or the last error
// if all attempts fail. Errors wrapped with backoff.Permanent stop the loop
// immediately. The function respects context cancellation between retries.
func Retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	return backoff.Retry(fn, NewBackOff(ctx, maxAttempts, baseDelay))
}
