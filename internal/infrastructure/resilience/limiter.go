package resilience

import (
	"context"
	"sync"
	"time"
)

// LimiterConfig configures a SlidingWindowLimiter.
type LimiterConfig struct {
	// MaxCalls per Window. Default: 4
	MaxCalls int
	// Window is the trailing interval. Default: 1s
	Window time.Duration
	// Margin is added to every computed wait. Default: 50ms
	Margin time.Duration
}

// DefaultLimiterConfig matches the platform quota of 4 calls per second.
func DefaultLimiterConfig() LimiterConfig {
	return LimiterConfig{
		MaxCalls: 4,
		Window:   time.Second,
		Margin:   50 * time.Millisecond,
	}
}

// LimiterOption customizes a limiter.
type LimiterOption func(*SlidingWindowLimiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) LimiterOption {
	return func(l *SlidingWindowLimiter) { l.now = now }
}

// WithLimiterSleep replaces the wait between checks.
func WithLimiterSleep(sleep SleepFunc) LimiterOption {
	return func(l *SlidingWindowLimiter) { l.sleep = sleep }
}

// WithWaitObserver is called every time a caller has to wait.
func WithWaitObserver(fn func(wait time.Duration)) LimiterOption {
	return func(l *SlidingWindowLimiter) { l.onWait = fn }
}

// WithAdmitObserver is called with every admitted timestamp while the window lock
// is held, so observed timestamps are in admission order. fn must not block.
func WithAdmitObserver(fn func(admitted time.Time)) LimiterOption {
	return func(l *SlidingWindowLimiter) { l.onAdmit = fn }
}

// SlidingWindowLimiter admits at most MaxCalls calls per trailing Window.
// The window is process-local; other processes are not accounted for.
type SlidingWindowLimiter struct {
	mu      sync.Mutex
	calls   []time.Time
	cfg     LimiterConfig
	now     func() time.Time
	sleep   SleepFunc
	onWait  func(time.Duration)
	onAdmit func(time.Time)
}

// NewSlidingWindowLimiter creates a limiter; zero config fields take defaults.
func NewSlidingWindowLimiter(cfg LimiterConfig, opts ...LimiterOption) *SlidingWindowLimiter {
	def := DefaultLimiterConfig()
	if cfg.MaxCalls <= 0 {
		cfg.MaxCalls = def.MaxCalls
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.Margin < 0 {
		cfg.Margin = 0
	}
	l := &SlidingWindowLimiter{
		calls: make([]time.Time, 0, cfg.MaxCalls),
		cfg:   cfg,
		now:   time.Now,
		sleep: sleepContext,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// AwaitSlot blocks until a call may be issued and records it.
// The wait happens outside the lock and the check is repeated afterwards,
// so two callers can never be handed the same slot.
func (l *SlidingWindowLimiter) AwaitSlot(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		wait, ok := l.tryAcquire()
		if ok {
			return nil
		}
		if l.onWait != nil {
			l.onWait(wait)
		}
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (l *SlidingWindowLimiter) tryAcquire() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.evict(now)
	if len(l.calls) < l.cfg.MaxCalls {
		l.calls = append(l.calls, now)
		if l.onAdmit != nil {
			l.onAdmit(now)
		}
		return 0, true
	}
	wait := l.calls[0].Add(l.cfg.Window).Sub(now) + l.cfg.Margin
	if wait <= 0 {
		wait = l.cfg.Margin
	}
	return wait, false
}

func (l *SlidingWindowLimiter) evict(now time.Time) {
	cutoff := now.Add(-l.cfg.Window)
	i := 0
	for i < len(l.calls) && !l.calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.calls = append(l.calls[:0], l.calls[i:]...)
	}
}

// LimiterStats is a snapshot of the window.
type LimiterStats struct {
	InWindow int
	MaxCalls int
	Window   time.Duration
}

// Stats returns the number of calls currently inside the window.
func (l *SlidingWindowLimiter) Stats() LimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evict(l.now())
	return LimiterStats{InWindow: len(l.calls), MaxCalls: l.cfg.MaxCalls, Window: l.cfg.Window}
}
