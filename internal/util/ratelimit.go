package util

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a process-wide gate that spaces calls at least interval
// apart. It is safe for concurrent use; every goroutine sharing one limiter
// shares the same budget.
type RateLimiter struct {
	interval time.Duration
	next     time.Time // earliest instant the next caller may proceed
	mu       sync.Mutex
}

// NewIntervalLimiter creates a RateLimiter that enforces a minimum delay
// between consecutive calls. A zero interval never blocks.
func NewIntervalLimiter(interval time.Duration) *RateLimiter {
	return &RateLimiter{interval: interval}
}

// Wait blocks until the caller's slot arrives or the context is cancelled.
// A cancelled caller does not give its slot back.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	rl.mu.Lock()
	now := time.Now()
	slot := rl.next
	if slot.Before(now) {
		slot = now
	}
	rl.next = slot.Add(rl.interval)
	rl.mu.Unlock()

	delay := time.Until(slot)
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
