package catalog

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/ahrav/go-bomcheck/internal/domain"
	"github.com/ahrav/go-bomcheck/internal/ports"
)

// Default backoff configuration constants.
const (
	// DefaultRetryCeiling is the number of retries after the first call.
	DefaultRetryCeiling = 3
	// DefaultBaseDelay is the delay before the first retry, before jitter.
	DefaultBaseDelay = 1 * time.Second
	// DefaultMaxDelay caps the exponential delay, before jitter.
	DefaultMaxDelay = 60 * time.Second

	minJitterFraction = 0.1
	maxJitterFraction = 0.5
)

// BackoffPolicy classifies provider failures and drives retries with
// exponential backoff. Jitter is only ever added on top of the computed
// delay, so retries from concurrent components spread out later rather
// than earlier.
//
// A BackoffPolicy is safe for concurrent use.
type BackoffPolicy struct {
	// Ceiling is the number of retries allowed after the first call.
	Ceiling int
	// BaseDelay is the delay for attempt zero before jitter.
	BaseDelay time.Duration
	// MaxDelay caps the exponential term before jitter.
	MaxDelay time.Duration

	// jitter returns a fraction in [0.1, 0.5].
	jitter func() float64
	// sleep waits for d or until ctx is done.
	sleep func(ctx context.Context, d time.Duration) error
}

// BackoffOption customizes a BackoffPolicy.
type BackoffOption func(*BackoffPolicy)

// WithJitterSource replaces the random source. fn must return values in [0, 1).
func WithJitterSource(fn func() float64) BackoffOption {
	return func(p *BackoffPolicy) {
		p.jitter = func() float64 {
			return minJitterFraction + fn()*(maxJitterFraction-minJitterFraction)
		}
	}
}

// WithSleeper replaces the wait between attempts, typically in tests.
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) BackoffOption {
	return func(p *BackoffPolicy) { p.sleep = fn }
}

// NewBackoffPolicy creates a policy, substituting defaults for non-positive
// durations and a negative ceiling.
func NewBackoffPolicy(ceiling int, baseDelay, maxDelay time.Duration, opts ...BackoffOption) *BackoffPolicy {
	if ceiling < 0 {
		ceiling = DefaultRetryCeiling
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	if maxDelay < baseDelay {
		maxDelay = baseDelay
	}

	p := &BackoffPolicy{
		Ceiling:   ceiling,
		BaseDelay: baseDelay,
		MaxDelay:  maxDelay,
		sleep:     sleepContext,
	}
	WithJitterSource(rand.Float64)(p)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var _ ports.RetryPolicy = (*BackoffPolicy)(nil)

// DefaultBackoffPolicy returns a policy with three retries, 1s base and 60s cap.
func DefaultBackoffPolicy() *BackoffPolicy {
	return NewBackoffPolicy(DefaultRetryCeiling, DefaultBaseDelay, DefaultMaxDelay)
}

// Classify maps an error onto the retry taxonomy using errors.Is only.
func (p *BackoffPolicy) Classify(err error) domain.ErrorClass {
	switch {
	case err == nil:
		return domain.ClassUnexpected
	case errors.Is(err, ports.ErrQuotaExceeded),
		errors.Is(err, ports.ErrAuthenticationFailed),
		errors.Is(err, ports.ErrMissingCredentials),
		errors.Is(err, ports.ErrBadRequest),
		errors.Is(err, ports.ErrProviderUnavailable):
		return domain.ClassFatal
	case errors.Is(err, ports.ErrRateLimited):
		return domain.ClassRateLimited
	case errors.Is(err, ports.ErrTimeout),
		errors.Is(err, ports.ErrServiceUnavailable),
		errors.Is(err, ports.ErrConnection),
		errors.Is(err, ports.ErrInvalidResponse),
		errors.Is(err, context.DeadlineExceeded):
		return domain.ClassRetryable
	default:
		return domain.ClassUnexpected
	}
}

// NextDelay returns min(BaseDelay*2^attempt, MaxDelay) plus a jitter of
// 10% to 50% of that value. The result never exceeds 1.5*MaxDelay.
func (p *BackoffPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := p.MaxDelay
	// Past 2^30 the product overflows long before it is useful.
	if attempt < 31 {
		// #nosec G115 - attempt is bounded between 0 and 30
		if d := p.BaseDelay * time.Duration(1<<uint(attempt)); d > 0 && d < p.MaxDelay {
			delay = d
		}
	}

	return delay + time.Duration(float64(delay)*p.jitter())
}

// Do calls fn until it succeeds, fails with a non-retryable class, or the
// retry ceiling is reached. It returns the number of calls made and the
// last error from fn unchanged. If ctx ends while waiting, ctx's error is
// returned instead.
func (p *BackoffPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	return p.DoNotify(ctx, fn, nil)
}

// DoNotify is Do with a callback invoked before each retry wait.
func (p *BackoffPolicy) DoNotify(
	ctx context.Context,
	fn func(ctx context.Context) error,
	onRetry func(attempt int, err error, class domain.ErrorClass, delay time.Duration),
) (int, error) {
	var lastErr error
	for attempt := 0; attempt <= p.Ceiling; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt, err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return attempt + 1, nil
		}
		if ctx.Err() != nil {
			return attempt + 1, lastErr
		}

		class := p.Classify(lastErr)
		if !class.Retryable() || attempt == p.Ceiling {
			return attempt + 1, lastErr
		}

		delay := p.NextDelay(attempt)
		var pe *ProviderError
		if errors.As(lastErr, &pe) && pe.RetryAfter > delay {
			delay = max(delay, min(pe.RetryAfter, p.MaxDelay))
		}
		if onRetry != nil {
			onRetry(attempt+1, lastErr, class, delay)
		}

		if err := p.sleep(ctx, delay); err != nil {
			return attempt + 1, err
		}
	}
	return p.Ceiling + 1, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
