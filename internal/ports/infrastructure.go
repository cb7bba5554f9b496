// Package ports defines the interfaces between the validation core and the
// infrastructure that talks to supplier catalogs, caches and metrics backends.
package ports

import (
	"context"
	"time"

	"github.com/ahrav/go-bomcheck/internal/domain"
)

// CatalogProvider looks parts up in one supplier catalog. Implementations
// apply rate limiting, retries are left to the caller.
//
// A lookup that matches nothing is not an error: it returns an empty slice.
// Failures map onto the sentinels in this package so they can be classified
// with errors.Is.
type CatalogProvider interface {
	// ID returns the unique provider identifier used in results and logs.
	ID() string

	// Lookup returns every offer for the query's manufacturer part number,
	// filtered by the query's manufacturer when one is given.
	Lookup(ctx context.Context, q domain.PartQuery) ([]domain.CatalogOffer, error)

	// SearchKeyword returns up to limit offers loosely matching keyword.
	SearchKeyword(ctx context.Context, keyword, manufacturer string, limit int) ([]domain.CatalogOffer, error)
}

// CacheStore defines the interface for caching catalog responses.
// Implementations could use Redis or in-memory storage. Values are opaque
// bytes; callers own serialization.
type CacheStore interface {
	// Get retrieves a cached value by key.
	// Returns the value and true if found, or nil and false if not found.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value in the cache with an expiration time.
	// A zero duration means the item doesn't expire.
	Set(ctx context.Context, key string, value []byte, expiration time.Duration) error

	// Delete removes a value from the cache.
	// Returns nil if the key doesn't exist.
	Delete(ctx context.Context, key string) error

	// Clear removes all values owned by this store.
	Clear(ctx context.Context) error
}

// Metric names shared by the code that records them and the collectors that
// map them onto backend series. Anything else is recorded under a
// collector's generic operation metrics.
const (
	MetricCatalogRequestDuration = "catalog_request_duration_seconds"
	MetricCatalogRequests        = "catalog_requests_total"
	MetricCatalogOffers          = "catalog_offers_per_lookup"
	MetricComponentValidations   = "component_validations_total"
	MetricProviderErrors         = "provider_errors_total"
	MetricRateLimitWait          = "rate_limit_wait_seconds"
	MetricProvidersExhausted     = "providers_exhausted"
)

// RetryPolicy runs a provider call under a retry schedule and maps its
// failures onto the retry taxonomy.
type RetryPolicy interface {
	// Classify returns the retry class of err.
	Classify(err error) domain.ErrorClass

	// DoNotify calls fn until it succeeds or the policy gives up, invoking
	// onRetry (when non-nil) before each wait. It returns the number of
	// calls made and the last error.
	DoNotify(
		ctx context.Context,
		fn func(ctx context.Context) error,
		onRetry func(attempt int, err error, class domain.ErrorClass, delay time.Duration),
	) (int, error)
}

// MetricsCollector defines the interface for collecting operational metrics.
// Implementations should integrate with observability platforms like
// Prometheus.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	// The labels map provides additional context for the metric.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram.
	RecordHistogram(metric string, value float64, labels map[string]string)
}
