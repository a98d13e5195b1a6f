package resilience

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu     sync.Mutex
	t      time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	return ctx.Err()
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

func TestSlidingWindowLimiter_BurstThenWait(t *testing.T) {
	clock := newFakeClock()
	l := NewSlidingWindowLimiter(DefaultLimiterConfig(), WithClock(clock.Now), WithLimiterSleep(clock.Sleep))
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, l.AwaitSlot(ctx))
	}
	assert.Empty(t, clock.Sleeps(), "first four calls do not wait")
	assert.Equal(t, 4, l.Stats().InWindow)

	require.NoError(t, l.AwaitSlot(ctx))
	assert.Equal(t, []time.Duration{1050 * time.Millisecond}, clock.Sleeps())
}

func TestSlidingWindowLimiter_WaitsForOldestCall(t *testing.T) {
	clock := newFakeClock()
	var observed []time.Duration
	l := NewSlidingWindowLimiter(DefaultLimiterConfig(),
		WithClock(clock.Now),
		WithLimiterSleep(clock.Sleep),
		WithWaitObserver(func(d time.Duration) { observed = append(observed, d) }),
	)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, l.AwaitSlot(ctx))
		clock.Advance(100 * time.Millisecond)
	}
	require.NoError(t, l.AwaitSlot(ctx))
	assert.Equal(t, []time.Duration{650 * time.Millisecond}, observed)
}

func TestSlidingWindowLimiter_WindowSlides(t *testing.T) {
	clock := newFakeClock()
	l := NewSlidingWindowLimiter(DefaultLimiterConfig(), WithClock(clock.Now), WithLimiterSleep(clock.Sleep))
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, l.AwaitSlot(ctx))
	}
	clock.Advance(time.Second)
	assert.Equal(t, 0, l.Stats().InWindow)
	require.NoError(t, l.AwaitSlot(ctx))
	assert.Empty(t, clock.Sleeps())
}

func TestSlidingWindowLimiter_ConcurrentCallersNeverShareASlot(t *testing.T) {
	clock := newFakeClock()
	cfg := DefaultLimiterConfig()
	var admitted []time.Time
	l := NewSlidingWindowLimiter(cfg,
		WithClock(clock.Now),
		WithLimiterSleep(clock.Sleep),
		WithAdmitObserver(func(ts time.Time) { admitted = append(admitted, ts) }),
	)

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.AwaitSlot(context.Background()))
		}()
	}
	wg.Wait()

	require.Len(t, admitted, 25)
	for i := cfg.MaxCalls; i < len(admitted); i++ {
		span := admitted[i].Sub(admitted[i-cfg.MaxCalls])
		assert.GreaterOrEqual(t, span, cfg.Window, "calls %d..%d within one window", i-cfg.MaxCalls, i)
	}
}

func TestSlidingWindowLimiter_RealClock(t *testing.T) {
	l := NewSlidingWindowLimiter(LimiterConfig{MaxCalls: 4, Window: 100 * time.Millisecond, Margin: 5 * time.Millisecond})

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.AwaitSlot(context.Background()))
		}()
	}
	wg.Wait()
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestSlidingWindowLimiter_Cancelled(t *testing.T) {
	l := NewSlidingWindowLimiter(DefaultLimiterConfig())
	for i := 0; i < 4; i++ {
		require.NoError(t, l.AwaitSlot(context.Background()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.AwaitSlot(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 4, l.Stats().InWindow, "cancelled caller does not take a slot")
}

func TestNewSlidingWindowLimiter_Defaults(t *testing.T) {
	l := NewSlidingWindowLimiter(LimiterConfig{})
	s := l.Stats()
	assert.Equal(t, 4, s.MaxCalls)
	assert.Equal(t, time.Second, s.Window)
}
