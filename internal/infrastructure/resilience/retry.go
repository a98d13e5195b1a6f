package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/ledgerflow/backend/internal/domain/integration"
)

// RetryConfig configures a Retrier.
type RetryConfig struct {
	// MaxAttempts including the first call. Default: 3
	MaxAttempts int
	// BaseDelay is the delay after the first failure. Default: 1s
	BaseDelay time.Duration
	// MaxDelay caps the exponential delay before jitter. Default: 8s
	MaxDelay time.Duration
	// Jitter is the randomization factor applied to each delay, in [0, 1). Default: 0.25
	Jitter float64
	// NoJitter turns randomization off; Jitter is then ignored.
	NoJitter bool
	// MaxElapsed caps the total time spent retrying. Zero disables the cap.
	MaxElapsed time.Duration
	// AttemptTimeout bounds every single attempt. Zero disables it.
	AttemptTimeout time.Duration
}

// DefaultRetryConfig returns the default retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    8 * time.Second,
		Jitter:      0.25,
		MaxElapsed:  60 * time.Second,
	}
}

// RetryEvent describes a scheduled retry.
type RetryEvent struct {
	Attempt int
	Delay   time.Duration
	Err     *integration.Error
}

// RetryOption customizes a Retrier.
type RetryOption func(*Retrier)

// WithRetrySleep replaces the backoff wait.
func WithRetrySleep(sleep SleepFunc) RetryOption {
	return func(r *Retrier) { r.sleep = sleep }
}

// WithRetryClock replaces time.Now for the elapsed-time cap.
func WithRetryClock(now func() time.Time) RetryOption {
	return func(r *Retrier) { r.now = now }
}

// OnRetry registers a hook called before every backoff wait.
func OnRetry(fn func(RetryEvent)) RetryOption {
	return func(r *Retrier) { r.onRetry = fn }
}

// Retrier runs operations with exponential backoff.
// It is safe for concurrent use; every call gets its own schedule.
type Retrier struct {
	cfg     RetryConfig
	sleep   SleepFunc
	now     func() time.Time
	onRetry func(RetryEvent)
}

// NewRetrier creates a retrier. Zero fields take defaults except MaxElapsed and
// AttemptTimeout, where zero disables the bound. A Jitter outside [0, 1) is replaced
// by the default.
func NewRetrier(cfg RetryConfig, opts ...RetryOption) *Retrier {
	def := DefaultRetryConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	switch {
	case cfg.NoJitter:
		cfg.Jitter = 0
	case cfg.Jitter <= 0 || cfg.Jitter >= 1:
		cfg.Jitter = def.Jitter
	}
	r := &Retrier{
		cfg:   cfg,
		sleep: sleepContext,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Config returns the effective configuration.
func (r *Retrier) Config() RetryConfig {
	return r.cfg
}

func (r *Retrier) schedule() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.BaseDelay
	b.MaxInterval = r.cfg.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = r.cfg.Jitter
	b.Reset()
	return b
}

// Do runs op until it succeeds, fails with a non-retryable error or attempts run out.
// The returned error is the classified last failure. Errors wrapped with
// backoff.Permanent are returned unwrapped without retrying.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := RunWithRetry(ctx, r, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// RunWithRetry is Do for operations returning a value.
func RunWithRetry[T any](ctx context.Context, r *Retrier, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	b := r.schedule()
	start := r.now()

	for attempt := 1; ; attempt++ {
		result, err := runAttempt(ctx, r.cfg.AttemptTimeout, op)
		if err == nil {
			return result, nil
		}

		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return zero, permanent.Err
		}
		classified := integration.Classify(err, 0)
		if !classified.Retryable() || attempt >= r.cfg.MaxAttempts {
			return zero, classified
		}
		if ctx.Err() != nil {
			return zero, classified
		}

		delay := b.NextBackOff()
		if hint := classified.RetryAfter(); hint > 0 {
			delay = hint
		}
		if r.cfg.MaxElapsed > 0 && r.now().Sub(start)+delay > r.cfg.MaxElapsed {
			return zero, classified
		}
		if r.onRetry != nil {
			r.onRetry(RetryEvent{Attempt: attempt, Delay: delay, Err: classified})
		}
		if err := r.sleep(ctx, delay); err != nil {
			return zero, classified
		}
	}
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return op(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return op(attemptCtx)
}
