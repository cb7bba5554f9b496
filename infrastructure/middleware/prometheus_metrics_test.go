package middleware

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-bomcheck/infrastructure/catalog"
	"github.com/ahrav/go-bomcheck/internal/ports"
)

// newTestMetrics registers collectors with a private registry so tests do
// not collide on the global one.
func newTestMetrics(t *testing.T) (*PrometheusMetrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewPrometheusMetrics(reg), reg
}

// TestNewPrometheusMetrics verifies that every collector is initialized.
func TestNewPrometheusMetrics(t *testing.T) {
	pm, _ := newTestMetrics(t)

	assert.NotNil(t, pm.requestDuration)
	assert.NotNil(t, pm.requests)
	assert.NotNil(t, pm.offersPerLookup)
	assert.NotNil(t, pm.validations)
	assert.NotNil(t, pm.providerErrors)
	assert.NotNil(t, pm.breakerState)

	var _ ports.MetricsCollector = pm
}

// TestPrometheusMetrics_CatalogRequests verifies the request counter and
// duration histogram labels.
func TestPrometheusMetrics_CatalogRequests(t *testing.T) {
	pm, reg := newTestMetrics(t)
	labels := map[string]string{"provider": "mouser", "kind": "part_number", "status": "success"}

	pm.RecordCounter(ports.MetricCatalogRequests, 1, labels)
	pm.RecordCounter(ports.MetricCatalogRequests, 1, labels)
	pm.RecordHistogram(ports.MetricCatalogRequestDuration, 0.2, labels)

	assert.Equal(t, 2.0, testutil.ToFloat64(pm.requests.WithLabelValues("mouser", "part_number", "success")))
	count, err := testutil.GatherAndCount(reg, ports.MetricCatalogRequestDuration)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// TestPrometheusMetrics_ValidationOutcomes verifies validation and error counters.
func TestPrometheusMetrics_ValidationOutcomes(t *testing.T) {
	pm, _ := newTestMetrics(t)

	pm.RecordCounter(ports.MetricComponentValidations, 1, map[string]string{"status": "found", "provider": "nexar"})
	pm.RecordCounter(ports.MetricComponentValidations, 1, map[string]string{"status": "not_found"})
	pm.RecordCounter(ports.MetricProviderErrors, 1, map[string]string{"provider": "mouser", "class": "fatal"})

	assert.Equal(t, 1.0, testutil.ToFloat64(pm.validations.WithLabelValues("found", "nexar")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.validations.WithLabelValues("not_found", "none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.providerErrors.WithLabelValues("mouser", "fatal")))
}

// TestPrometheusMetrics_GenericMetrics verifies unknown names fall back to
// the generic collectors with default labels.
func TestPrometheusMetrics_GenericMetrics(t *testing.T) {
	pm, _ := newTestMetrics(t)

	assert.NotPanics(t, func() {
		pm.RecordCounter("suggestions_total", 3, nil)
		pm.RecordLatency("component_validation", 150*time.Millisecond, map[string]string{"provider": "mouser"})
		pm.RecordGauge(ports.MetricProvidersExhausted, 1, nil)
		pm.RecordHistogram(ports.MetricRateLimitWait, 0.4, map[string]string{"provider": "mouser"})
	})

	assert.Equal(t, 3.0, testutil.ToFloat64(pm.operationCounter.WithLabelValues("suggestions_total", "unknown")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.systemGauges.WithLabelValues(ports.MetricProvidersExhausted, "all")))
}

// TestPrometheusMetrics_BreakerObserver verifies circuit breaker reporting.
func TestPrometheusMetrics_BreakerObserver(t *testing.T) {
	pm, _ := newTestMetrics(t)
	obs := pm.BreakerObserver("nexar")

	obs.RecordState(catalog.StateOpen)
	obs.RecordFailure()
	obs.RecordTrip()
	obs.RecordSuccess()

	assert.Equal(t, 1.0, testutil.ToFloat64(pm.breakerState.WithLabelValues("nexar")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.breakerEvents.WithLabelValues("nexar", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.breakerEvents.WithLabelValues("nexar", "rejected")))
}

// TestNewPrometheusMetrics_DuplicateRegistrationPanics verifies promauto
// refuses a second registration on the same registry.
func TestNewPrometheusMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewPrometheusMetrics(reg)
	assert.Panics(t, func() { NewPrometheusMetrics(reg) })
}
