// Package resilience paces and retries calls to the remote accounting platform.
//
// SlidingWindowLimiter bounds the number of outbound calls in a trailing window.
// One instance is shared by every caller that draws from the same quota.
// Retrier repeats operations that failed with a retryable integration error,
// using an exponential schedule with jitter or the server's Retry-After hint.
package resilience

import (
	"context"
	"time"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
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
