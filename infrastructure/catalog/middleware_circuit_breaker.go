package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ahrav/go-bomcheck/internal/domain"
	"github.com/ahrav/go-bomcheck/internal/ports"
)

// ErrCircuitOpen indicates that the circuit breaker rejected a request
// without calling the provider.
var ErrCircuitOpen = fmt.Errorf("circuit breaker is open: %w", ports.ErrProviderUnavailable)

// CircuitBreakerState represents the current state of a circuit breaker.
type CircuitBreakerState int

// Circuit breaker states.
const (
	// StateClosed allows all requests to pass through normally.
	StateClosed CircuitBreakerState = iota

	// StateOpen rejects all requests until the cooldown expires.
	StateOpen

	// StateHalfOpen lets a single trial request through to test recovery.
	StateHalfOpen
)

// String returns the state name.
func (s CircuitBreakerState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// CircuitBreakerMetrics enables observability for circuit breaker behavior.
type CircuitBreakerMetrics interface {
	// RecordState updates the current circuit breaker state metric.
	RecordState(state CircuitBreakerState)

	// RecordTrip increments the circuit breaker trip counter.
	RecordTrip()

	// RecordSuccess increments the successful request counter.
	RecordSuccess()

	// RecordFailure increments the failed request counter.
	RecordFailure()
}

// CircuitBreaker opens after maxFailures consecutive transient failures and
// rejects calls for the cooldown, giving a struggling provider room to
// recover. Permanent failures such as quota or credential errors do not
// count; they are handled by the caller.
type CircuitBreaker struct {
	mu               sync.Mutex
	state            CircuitBreakerState
	failureCount     int
	maxFailures      int
	cooldownDuration time.Duration
	openedAt         time.Time
	trialInFlight    bool
	now              func() time.Time
}

// NewCircuitBreaker creates a circuit breaker with the specified configuration.
func NewCircuitBreaker(maxFailures int, cooldownDuration time.Duration) *CircuitBreaker {
	if maxFailures <= 0 {
		maxFailures = 1
	}
	return &CircuitBreaker{
		state:            StateClosed,
		maxFailures:      maxFailures,
		cooldownDuration: cooldownDuration,
		now:              time.Now,
	}
}

// Call executes fn through the circuit breaker. The lock is released while
// fn runs so concurrent callers are not serialized.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.before(); err != nil {
		return err
	}
	err := fn()
	cb.after(err)
	return err
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.cooldownDuration {
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.trialInFlight = true
		return nil
	case StateHalfOpen:
		if cb.trialInFlight {
			return ErrCircuitOpen
		}
		cb.trialInFlight = true
		return nil
	default:
		return nil
	}
}

func (cb *CircuitBreaker) after(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	failed := err != nil && countsAsFailure(err)
	if cb.state == StateHalfOpen {
		cb.trialInFlight = false
		if failed {
			cb.failureCount++
			cb.trip()
			return
		}
		cb.failureCount = 0
		cb.state = StateClosed
		return
	}

	if !failed {
		cb.failureCount = 0
		return
	}
	cb.failureCount++
	if cb.failureCount >= cb.maxFailures {
		cb.trip()
	}
}

func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.openedAt = cb.now()
}

// GetState returns the current circuit breaker state.
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// countsAsFailure reports whether err reflects provider health. Caller
// cancellation and permanent errors leave the breaker alone.
func countsAsFailure(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.IsRetryable()
	}
	return errors.Is(err, ports.ErrTimeout) ||
		errors.Is(err, ports.ErrServiceUnavailable) ||
		errors.Is(err, ports.ErrConnection) ||
		errors.Is(err, context.DeadlineExceeded)
}

// circuitBreakedCatalog implements the circuit breaker pattern for one provider.
type circuitBreakedCatalog struct {
	next    CoreCatalog
	cb      *CircuitBreaker
	metrics CircuitBreakerMetrics
}

// CircuitBreakerMiddleware creates middleware that implements the circuit breaker pattern.
func CircuitBreakerMiddleware(maxFailures int, cooldown time.Duration) Middleware {
	return CircuitBreakerMiddlewareWithMetrics(maxFailures, cooldown, nil)
}

// CircuitBreakerMiddlewareWithMetrics creates circuit breaker middleware with metrics support.
func CircuitBreakerMiddlewareWithMetrics(maxFailures int, cooldown time.Duration, metrics CircuitBreakerMetrics) Middleware {
	cb := NewCircuitBreaker(maxFailures, cooldown)

	return func(next CoreCatalog) CoreCatalog {
		return &circuitBreakedCatalog{
			next:    next,
			cb:      cb,
			metrics: metrics,
		}
	}
}

// DoLookup executes the request through the circuit breaker.
func (c *circuitBreakedCatalog) DoLookup(ctx context.Context, req LookupRequest) ([]domain.CatalogOffer, error) {
	var offers []domain.CatalogOffer

	err := c.cb.Call(func() error {
		var err error
		offers, err = c.next.DoLookup(ctx, req)
		return err
	})

	if c.metrics != nil {
		switch {
		case err == nil:
			c.metrics.RecordSuccess()
		case errors.Is(err, ErrCircuitOpen):
			c.metrics.RecordTrip()
		default:
			c.metrics.RecordFailure()
		}
		c.metrics.RecordState(c.cb.GetState())
	}

	return offers, err
}

// ProviderID returns the identifier from the wrapped implementation.
func (c *circuitBreakedCatalog) ProviderID() string { return c.next.ProviderID() }
