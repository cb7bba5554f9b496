package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const (
	secondWindow = time.Second
	hourWindow   = time.Hour
)

// WindowLimiter enforces a provider's per-second and per-hour request
// ceilings. The per-second ceiling is a sliding window of request
// timestamps; the hourly ceiling is a counter that resets one hour after the
// first request it counted.
//
// Exactly one WindowLimiter exists per provider and every caller for that
// provider shares it. A full second window blocks the caller for the exact
// time until the oldest timestamp expires. An exhausted hourly counter fails
// fast with an error matching ports.ErrQuotaExceeded.
type WindowLimiter struct {
	provider     string
	maxPerSecond int
	maxPerHour   int

	mu          sync.Mutex
	window      []time.Time
	hourCount   int
	hourResetAt time.Time

	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	observe func(provider string, wait time.Duration)
}

// LimiterOption customizes a WindowLimiter.
type LimiterOption func(*WindowLimiter)

// WithClock replaces the time source and the wait function. Tests pass a
// fake clock whose sleep advances now.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) LimiterOption {
	return func(l *WindowLimiter) {
		l.now = now
		l.sleep = sleep
	}
}

// WithWaitObserver registers a callback invoked with every enforced wait.
func WithWaitObserver(fn func(provider string, wait time.Duration)) LimiterOption {
	return func(l *WindowLimiter) { l.observe = fn }
}

// NewWindowLimiter creates a limiter for provider. A non-positive ceiling
// disables that check.
func NewWindowLimiter(provider string, maxPerSecond, maxPerHour int, opts ...LimiterOption) *WindowLimiter {
	l := &WindowLimiter{
		provider:     provider,
		maxPerSecond: maxPerSecond,
		maxPerHour:   maxPerHour,
		now:          time.Now,
		sleep:        sleepContext,
	}
	if maxPerSecond > 0 {
		l.window = make([]time.Time, 0, maxPerSecond)
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Provider returns the provider this limiter guards.
func (l *WindowLimiter) Provider() string { return l.provider }

// MaxPerSecond returns the configured per-second ceiling.
func (l *WindowLimiter) MaxPerSecond() int { return l.maxPerSecond }

// Acquire blocks until a request slot is free and records the request.
// It returns ctx's error if ctx ends while waiting.
func (l *WindowLimiter) Acquire(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		wait, err := l.tryAcquire()
		if err != nil || wait == 0 {
			return err
		}

		if l.observe != nil {
			l.observe(l.provider, wait)
		}
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// tryAcquire records a request and returns zero, or returns how long to
// wait before trying again. The lock is never held across a wait.
func (l *WindowLimiter) tryAcquire() (time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if !l.hourResetAt.IsZero() && !now.Before(l.hourResetAt) {
		l.hourCount = 0
		l.hourResetAt = time.Time{}
	}
	if l.maxPerHour > 0 && l.hourCount >= l.maxPerHour {
		return 0, NewProviderError(l.provider, ErrorTypeQuota, 0,
			fmt.Sprintf("hourly limit of %d requests reached, resets at %s",
				l.maxPerHour, l.hourResetAt.Format(time.RFC3339)), nil)
	}

	if l.maxPerSecond > 0 {
		l.prune(now)
		if len(l.window) >= l.maxPerSecond {
			return l.window[0].Add(secondWindow).Sub(now), nil
		}
		l.window = append(l.window, now)
	}

	l.hourCount++
	if l.hourResetAt.IsZero() {
		l.hourResetAt = now.Add(hourWindow)
	}
	return 0, nil
}

// prune drops timestamps that are at least one second old.
func (l *WindowLimiter) prune(now time.Time) {
	cutoff := 0
	for cutoff < len(l.window) && now.Sub(l.window[cutoff]) >= secondWindow {
		cutoff++
	}
	if cutoff > 0 {
		l.window = append(l.window[:0], l.window[cutoff:]...)
	}
}

// LimiterStats is a point-in-time view of a limiter's counters.
type LimiterStats struct {
	InWindow    int
	HourCount   int
	HourResetAt time.Time
}

// Stats returns the current counters.
func (l *WindowLimiter) Stats() LimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	return LimiterStats{
		InWindow:    len(l.window),
		HourCount:   l.hourCount,
		HourResetAt: l.hourResetAt,
	}
}
