package catalog

import (
	"context"
	"time"

	"github.com/ahrav/go-bomcheck/internal/domain"
)

// timeoutCatalog bounds each call with its own deadline.
type timeoutCatalog struct {
	next    CoreCatalog
	timeout time.Duration
}

// TimeoutMiddleware creates middleware that enforces a per-call timeout.
// The deadline surfaces as a retryable timeout, distinct from the caller
// cancelling its own context.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next CoreCatalog) CoreCatalog {
		return &timeoutCatalog{
			next:    next,
			timeout: timeout,
		}
	}
}

// DoLookup executes the request with a timeout context.
func (t *timeoutCatalog) DoLookup(ctx context.Context, req LookupRequest) ([]domain.CatalogOffer, error) {
	if t.timeout <= 0 {
		return t.next.DoLookup(ctx, req)
	}
	callCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	offers, err := t.next.DoLookup(callCtx, req)
	if err != nil && ctx.Err() == nil && callCtx.Err() == context.DeadlineExceeded {
		return nil, NewProviderError(t.next.ProviderID(), ErrorTypeTimeout, 0,
			"request exceeded "+t.timeout.String(), err)
	}
	return offers, err
}

// ProviderID returns the identifier from the wrapped implementation.
func (t *timeoutCatalog) ProviderID() string { return t.next.ProviderID() }
