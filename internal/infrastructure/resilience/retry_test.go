package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerflow/backend/internal/domain/integration"
)

func noJitter() RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.NoJitter = true
	return cfg
}

func failing(kind integration.ErrorKind, calls *int) func(context.Context) error {
	return func(context.Context) error {
		*calls++
		return integration.NewError(kind, "failure")
	}
}

func TestRetrier_SucceedsFirstTime(t *testing.T) {
	clock := newFakeClock()
	r := NewRetrier(noJitter(), WithRetrySleep(clock.Sleep), WithRetryClock(clock.Now))

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, clock.Sleeps())
}

func TestRetrier_NonRetryableFailsImmediately(t *testing.T) {
	for _, kind := range []integration.ErrorKind{
		integration.KindAuth, integration.KindPermission, integration.KindNotFound, integration.KindClientInput,
	} {
		t.Run(string(kind), func(t *testing.T) {
			clock := newFakeClock()
			r := NewRetrier(noJitter(), WithRetrySleep(clock.Sleep), WithRetryClock(clock.Now))

			calls := 0
			err := r.Do(context.Background(), failing(kind, &calls))
			assert.Equal(t, kind, integration.KindOf(err))
			assert.Equal(t, 1, calls)
			assert.Empty(t, clock.Sleeps())
		})
	}
}

func TestRetrier_ExhaustsAttempts(t *testing.T) {
	clock := newFakeClock()
	var events []RetryEvent
	r := NewRetrier(noJitter(),
		WithRetrySleep(clock.Sleep),
		WithRetryClock(clock.Now),
		OnRetry(func(e RetryEvent) { events = append(events, e) }),
	)

	calls := 0
	err := r.Do(context.Background(), failing(integration.KindTransient, &calls))
	assert.ErrorIs(t, err, integration.ErrTransient)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.Sleeps())
	require.Len(t, events, 2)
	assert.Equal(t, 1, events[0].Attempt)
	assert.Equal(t, integration.KindTransient, events[1].Err.Kind())
}

func TestRetrier_ScheduleIsCapped(t *testing.T) {
	clock := newFakeClock()
	cfg := noJitter()
	cfg.MaxAttempts = 6
	cfg.MaxElapsed = 0
	r := NewRetrier(cfg, WithRetrySleep(clock.Sleep), WithRetryClock(clock.Now))

	calls := 0
	_ = r.Do(context.Background(), failing(integration.KindTimeout, &calls))
	assert.Equal(t, 6, calls)
	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 8 * time.Second,
	}, clock.Sleeps())
}

func TestRetrier_JitterBounds(t *testing.T) {
	for run := 0; run < 20; run++ {
		clock := newFakeClock()
		r := NewRetrier(DefaultRetryConfig(), WithRetrySleep(clock.Sleep), WithRetryClock(clock.Now))
		calls := 0
		_ = r.Do(context.Background(), failing(integration.KindTransient, &calls))

		sleeps := clock.Sleeps()
		require.Len(t, sleeps, 2)
		assert.GreaterOrEqual(t, sleeps[0], 750*time.Millisecond)
		assert.LessOrEqual(t, sleeps[0], 1250*time.Millisecond)
		assert.GreaterOrEqual(t, sleeps[1], 1500*time.Millisecond)
		assert.LessOrEqual(t, sleeps[1], 2500*time.Millisecond)
	}
}

func TestRetrier_RetryAfterTakesPrecedence(t *testing.T) {
	clock := newFakeClock()
	r := NewRetrier(noJitter(), WithRetrySleep(clock.Sleep), WithRetryClock(clock.Now))

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls == 1 {
			return integration.NewError(integration.KindRateLimit, "slow down", integration.WithRetryAfter(3*time.Second))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{3 * time.Second}, clock.Sleeps())
}

func TestRetrier_UnclassifiedErrorsAreRetried(t *testing.T) {
	clock := newFakeClock()
	r := NewRetrier(noJitter(), WithRetrySleep(clock.Sleep), WithRetryClock(clock.Now))

	got, err := RunWithRetry(context.Background(), r, func(context.Context) (int, error) {
		if len(clock.Sleeps()) < 2 {
			return 0, errors.New("connection refused")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestRetrier_MaxElapsed(t *testing.T) {
	clock := newFakeClock()
	cfg := noJitter()
	cfg.MaxAttempts = 5
	cfg.MaxElapsed = 2500 * time.Millisecond
	r := NewRetrier(cfg, WithRetrySleep(clock.Sleep), WithRetryClock(clock.Now))

	calls := 0
	err := r.Do(context.Background(), failing(integration.KindTransient, &calls))
	assert.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []time.Duration{time.Second}, clock.Sleeps())
}

func TestRetrier_PermanentError(t *testing.T) {
	clock := newFakeClock()
	r := NewRetrier(noJitter(), WithRetrySleep(clock.Sleep), WithRetryClock(clock.Now))
	sentinel := errors.New("voucher does not balance")

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return backoff.Permanent(fmt.Errorf("build: %w", sentinel))
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}

func TestRetrier_AttemptTimeout(t *testing.T) {
	clock := newFakeClock()
	cfg := noJitter()
	cfg.MaxAttempts = 2
	cfg.AttemptTimeout = 10 * time.Millisecond
	r := NewRetrier(cfg, WithRetrySleep(clock.Sleep), WithRetryClock(clock.Now))

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	})
	assert.Equal(t, integration.KindTimeout, integration.KindOf(err))
	assert.Equal(t, 2, calls)
}

func TestRetrier_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRetrier(noJitter(), WithRetrySleep(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}))

	calls := 0
	err := r.Do(ctx, failing(integration.KindTransient, &calls))
	assert.ErrorIs(t, err, integration.ErrTransient)
	assert.Equal(t, 1, calls, "no attempt is issued after cancellation")
}

func TestNewRetrier_JitterDefaults(t *testing.T) {
	tests := []struct {
		name string
		cfg  RetryConfig
		want float64
	}{
		{"zero config", RetryConfig{}, 0.25},
		{"explicit factor", RetryConfig{Jitter: 0.1}, 0.1},
		{"no jitter", RetryConfig{Jitter: 0.4, NoJitter: true}, 0},
		{"factor of one", RetryConfig{Jitter: 1}, 0.25},
		{"negative", RetryConfig{Jitter: -0.5}, 0.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewRetrier(tt.cfg).Config().Jitter)
		})
	}
}

func TestRetrier_ZeroConfigIsJittered(t *testing.T) {
	seen := map[time.Duration]bool{}
	for run := 0; run < 20; run++ {
		clock := newFakeClock()
		r := NewRetrier(RetryConfig{MaxAttempts: 2}, WithRetrySleep(clock.Sleep), WithRetryClock(clock.Now))
		calls := 0
		_ = r.Do(context.Background(), failing(integration.KindTransient, &calls))

		sleeps := clock.Sleeps()
		require.Len(t, sleeps, 1)
		assert.GreaterOrEqual(t, sleeps[0], 750*time.Millisecond)
		assert.LessOrEqual(t, sleeps[0], 1250*time.Millisecond)
		seen[sleeps[0]] = true
	}
	assert.Greater(t, len(seen), 1, "delays are randomized")
}
