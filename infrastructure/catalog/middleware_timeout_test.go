package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-bomcheck/internal/domain"
	"github.com/ahrav/go-bomcheck/internal/ports"
)

// TestTimeoutMiddleware_ConvertsDeadlineToTimeout verifies that the
// per-call deadline surfaces as a retryable timeout.
func TestTimeoutMiddleware_ConvertsDeadlineToTimeout(t *testing.T) {
	mock := NewMockCoreCatalog("mouser")
	mock.ResponseDelay = time.Second
	wrapped := TimeoutMiddleware(20 * time.Millisecond)(mock)

	_, err := wrapped.DoLookup(context.Background(), lookupReq)

	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrTimeout)
	assert.Equal(t, domain.ClassRetryable, DefaultBackoffPolicy().Classify(err))
}

// TestTimeoutMiddleware_CallerCancellationPassesThrough verifies that a
// cancelled parent context is not reported as a provider timeout.
func TestTimeoutMiddleware_CallerCancellationPassesThrough(t *testing.T) {
	mock := NewMockCoreCatalog("mouser")
	mock.ResponseDelay = time.Second
	wrapped := TimeoutMiddleware(time.Minute)(mock)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := wrapped.DoLookup(ctx, lookupReq)

	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ports.ErrTimeout)
}

// TestTimeoutMiddleware_SetsDeadline verifies the wrapped call sees a deadline.
func TestTimeoutMiddleware_SetsDeadline(t *testing.T) {
	mock := NewMockCoreCatalog("mouser", testOffer("Mouser", "LM358", "TI"))
	wrapped := TimeoutMiddleware(5 * time.Second)(mock)

	offers, err := wrapped.DoLookup(context.Background(), lookupReq)

	require.NoError(t, err)
	assert.Len(t, offers, 1)
	deadline, ok := mock.LastContext.Deadline()
	require.True(t, ok, "wrapped call should carry a deadline")
	assert.WithinDuration(t, time.Now().Add(5*time.Second), deadline, time.Second)
}

// TestTimeoutMiddleware_ZeroDisables verifies that zero leaves the context alone.
func TestTimeoutMiddleware_ZeroDisables(t *testing.T) {
	mock := NewMockCoreCatalog("mouser")
	wrapped := TimeoutMiddleware(0)(mock)

	_, err := wrapped.DoLookup(context.Background(), lookupReq)

	require.NoError(t, err)
	_, ok := mock.LastContext.Deadline()
	assert.False(t, ok)
}
