package catalog

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/ahrav/go-bomcheck/internal/domain"
	"github.com/ahrav/go-bomcheck/internal/ports"
)

// windowLimitedCatalog gates every call on the provider's WindowLimiter.
type windowLimitedCatalog struct {
	next    CoreCatalog
	limiter *WindowLimiter
}

// WindowLimitMiddleware creates middleware that acquires a slot from limiter
// before each call. NewClient installs it innermost when a limiter is
// configured, so cached or short-circuited calls do not consume quota.
func WindowLimitMiddleware(limiter *WindowLimiter) Middleware {
	return func(next CoreCatalog) CoreCatalog {
		return &windowLimitedCatalog{next: next, limiter: limiter}
	}
}

// DoLookup waits for a slot, then forwards the request.
func (w *windowLimitedCatalog) DoLookup(ctx context.Context, req LookupRequest) ([]domain.CatalogOffer, error) {
	if err := w.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	return w.next.DoLookup(ctx, req)
}

// ProviderID returns the identifier from the wrapped implementation.
func (w *windowLimitedCatalog) ProviderID() string { return w.next.ProviderID() }

// rateLimitedCatalog spaces requests with a token bucket.
type rateLimitedCatalog struct {
	next    CoreCatalog
	limiter *rate.Limiter
}

// RateLimitMiddleware creates middleware that paces requests with a token
// bucket. It smooths bursts below the hard window ceilings, for example a
// courtesy delay between consecutive calls.
func RateLimitMiddleware(limit rate.Limit, burst int) Middleware {
	limiter := rate.NewLimiter(limit, burst)

	return func(next CoreCatalog) CoreCatalog {
		return &rateLimitedCatalog{
			next:    next,
			limiter: limiter,
		}
	}
}

// DoLookup waits for a token before forwarding the request.
func (r *rateLimitedCatalog) DoLookup(ctx context.Context, req LookupRequest) ([]domain.CatalogOffer, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		// Wait refuses up front when the deadline would pass first.
		return nil, fmt.Errorf("rate limit: %w: %v", ports.ErrTimeout, err)
	}
	return r.next.DoLookup(ctx, req)
}

// ProviderID returns the identifier from the wrapped implementation.
func (r *rateLimitedCatalog) ProviderID() string { return r.next.ProviderID() }
