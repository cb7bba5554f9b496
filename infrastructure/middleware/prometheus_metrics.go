// Package middleware provides cross-cutting observability for the validation
// engine.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/go-bomcheck/infrastructure/catalog"
	"github.com/ahrav/go-bomcheck/internal/ports"
)

// PrometheusMetrics implements ports.MetricsCollector using Prometheus. It
// covers catalog traffic, validation outcomes and circuit breaker state.
type PrometheusMetrics struct {
	requestDuration  *prometheus.HistogramVec
	requests         *prometheus.CounterVec
	offersPerLookup  *prometheus.HistogramVec
	validations      *prometheus.CounterVec
	providerErrors   *prometheus.CounterVec
	rateLimitWait    *prometheus.HistogramVec
	operationLatency *prometheus.HistogramVec
	operationCounter *prometheus.CounterVec
	systemGauges     *prometheus.GaugeVec
	breakerState     *prometheus.GaugeVec
	breakerEvents    *prometheus.CounterVec
}

// NewPrometheusMetrics creates the collectors and registers them with reg.
// A nil reg uses the default Prometheus registerer.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    ports.MetricCatalogRequestDuration,
				Help:    "Duration of supplier catalog lookups.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "kind", "status"},
		),
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: ports.MetricCatalogRequests,
				Help: "Total supplier catalog lookups by outcome.",
			},
			[]string{"provider", "kind", "status"},
		),
		offersPerLookup: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    ports.MetricCatalogOffers,
				Help:    "Number of offers returned per successful lookup.",
				Buckets: []float64{0, 1, 2, 5, 10, 25, 50},
			},
			[]string{"provider", "kind"},
		),
		validations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bomcheck_" + ports.MetricComponentValidations,
				Help: "Component validations by final status.",
			},
			[]string{"status", "provider"},
		),
		providerErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bomcheck_" + ports.MetricProviderErrors,
				Help: "Provider failures recorded on components, by error class.",
			},
			[]string{"provider", "class"},
		),
		rateLimitWait: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "catalog_" + ports.MetricRateLimitWait,
				Help:    "Time spent waiting for a provider's per-second window.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"provider"},
		),
		operationLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bomcheck_operation_duration_seconds",
				Help:    "Duration of validation engine operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "provider"},
		),
		operationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bomcheck_operations_total",
				Help: "Total operations performed by the validation engine.",
			},
			[]string{"operation", "provider"},
		),
		systemGauges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bomcheck_state",
				Help: "Current state values of the validation engine.",
			},
			[]string{"metric", "provider"},
		),
		breakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "catalog_circuit_breaker_state",
				Help: "Circuit breaker state per provider: 0 closed, 1 open, 2 half-open.",
			},
			[]string{"provider"},
		),
		breakerEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_circuit_breaker_events_total",
				Help: "Circuit breaker outcomes per provider.",
			},
			[]string{"provider", "event"},
		),
	}
}

func labelOr(labels map[string]string, key, fallback string) string {
	if v := labels[key]; v != "" {
		return v
	}
	return fallback
}

// RecordLatency records an operation duration.
func (pm *PrometheusMetrics) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	pm.RecordHistogram(operation, duration.Seconds(), labels)
}

// RecordCounter increments the counter matching metric.
func (pm *PrometheusMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	provider := labelOr(labels, "provider", "unknown")

	switch metric {
	case ports.MetricCatalogRequests:
		pm.requests.WithLabelValues(provider, labelOr(labels, "kind", "unknown"), labelOr(labels, "status", "unknown")).Add(value)
	case ports.MetricComponentValidations:
		pm.validations.WithLabelValues(labelOr(labels, "status", "unknown"), labelOr(labels, "provider", "none")).Add(value)
	case ports.MetricProviderErrors:
		pm.providerErrors.WithLabelValues(provider, labelOr(labels, "class", "unexpected")).Add(value)
	default:
		pm.operationCounter.WithLabelValues(metric, provider).Add(value)
	}
}

// RecordGauge sets a gauge value.
func (pm *PrometheusMetrics) RecordGauge(metric string, value float64, labels map[string]string) {
	pm.systemGauges.WithLabelValues(metric, labelOr(labels, "provider", "all")).Set(value)
}

// RecordHistogram observes value in the histogram matching metric.
func (pm *PrometheusMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	provider := labelOr(labels, "provider", "unknown")

	switch metric {
	case ports.MetricCatalogRequestDuration:
		pm.requestDuration.WithLabelValues(provider, labelOr(labels, "kind", "unknown"), labelOr(labels, "status", "unknown")).Observe(value)
	case ports.MetricCatalogOffers:
		pm.offersPerLookup.WithLabelValues(provider, labelOr(labels, "kind", "unknown")).Observe(value)
	case ports.MetricRateLimitWait:
		pm.rateLimitWait.WithLabelValues(provider).Observe(value)
	default:
		pm.operationLatency.WithLabelValues(metric, provider).Observe(value)
	}
}

// BreakerObserver returns a circuit breaker observer for one provider.
func (pm *PrometheusMetrics) BreakerObserver(provider string) catalog.CircuitBreakerMetrics {
	return &breakerObserver{pm: pm, provider: provider}
}

type breakerObserver struct {
	pm       *PrometheusMetrics
	provider string
}

func (b *breakerObserver) RecordState(state catalog.CircuitBreakerState) {
	b.pm.breakerState.WithLabelValues(b.provider).Set(float64(state))
}

func (b *breakerObserver) RecordTrip() {
	b.pm.breakerEvents.WithLabelValues(b.provider, "rejected").Inc()
}

func (b *breakerObserver) RecordSuccess() {
	b.pm.breakerEvents.WithLabelValues(b.provider, "success").Inc()
}

func (b *breakerObserver) RecordFailure() {
	b.pm.breakerEvents.WithLabelValues(b.provider, "failure").Inc()
}

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)
