package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/ahrav/go-bomcheck/internal/domain"
	"github.com/ahrav/go-bomcheck/internal/ports"
)

// metricsCatalog records request counts, latency and result sizes.
type metricsCatalog struct {
	next      CoreCatalog
	collector ports.MetricsCollector
}

// MetricsMiddleware creates middleware that collects request metrics.
func MetricsMiddleware(collector ports.MetricsCollector) Middleware {
	return func(next CoreCatalog) CoreCatalog {
		return &metricsCatalog{
			next:      next,
			collector: collector,
		}
	}
}

// DoLookup executes the request while collecting metrics.
func (m *metricsCatalog) DoLookup(ctx context.Context, req LookupRequest) ([]domain.CatalogOffer, error) {
	start := time.Now()
	offers, err := m.next.DoLookup(ctx, req)

	if m.collector == nil {
		return offers, err
	}

	labels := map[string]string{
		"provider": m.next.ProviderID(),
		"kind":     req.Kind.String(),
		"status":   requestStatus(ctx, err),
	}
	m.collector.RecordHistogram(ports.MetricCatalogRequestDuration, time.Since(start).Seconds(), labels)
	m.collector.RecordCounter(ports.MetricCatalogRequests, 1, labels)
	if err == nil {
		m.collector.RecordHistogram(ports.MetricCatalogOffers, float64(len(offers)), labels)
	}

	return offers, err
}

// ProviderID returns the identifier from the wrapped implementation.
func (m *metricsCatalog) ProviderID() string { return m.next.ProviderID() }

func requestStatus(ctx context.Context, err error) string {
	var pe *ProviderError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case ctx.Err() != nil:
		return "canceled"
	case errors.As(err, &pe) && pe.typeString() != "":
		return pe.typeString()
	case errors.Is(err, ports.ErrQuotaExceeded):
		return "quota"
	default:
		return "error"
	}
}
