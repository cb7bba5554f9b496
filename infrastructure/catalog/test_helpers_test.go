package catalog

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ahrav/go-bomcheck/internal/domain"
)

// mockMetricsCollector aggregates recorded values by metric and provider.
type mockMetricsCollector struct {
	mu         sync.Mutex
	histograms map[string][]float64
	counters   map[string]float64
	gauges     map[string]float64
	labels     []map[string]string
}

func newMockMetricsCollector() *mockMetricsCollector {
	return &mockMetricsCollector{
		histograms: make(map[string][]float64),
		counters:   make(map[string]float64),
		gauges:     make(map[string]float64),
	}
}

func metricKey(metric string, labels map[string]string) string {
	return fmt.Sprintf("%s:%s", metric, labels["provider"])
}

func (m *mockMetricsCollector) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	m.RecordHistogram(operation, duration.Seconds(), labels)
}

func (m *mockMetricsCollector) RecordCounter(metric string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[metricKey(metric, labels)] += value
	m.labels = append(m.labels, labels)
}

func (m *mockMetricsCollector) RecordGauge(metric string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[metricKey(metric, labels)] = value
}

func (m *mockMetricsCollector) RecordHistogram(metric string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := metricKey(metric, labels)
	m.histograms[key] = append(m.histograms[key], value)
}

// mockCircuitBreakerMetrics counts circuit breaker observations.
type mockCircuitBreakerMetrics struct {
	states    []CircuitBreakerState
	trips     int
	successes int
	failures  int
}

func (m *mockCircuitBreakerMetrics) RecordState(state CircuitBreakerState) {
	m.states = append(m.states, state)
}
func (m *mockCircuitBreakerMetrics) RecordTrip()    { m.trips++ }
func (m *mockCircuitBreakerMetrics) RecordSuccess() { m.successes++ }
func (m *mockCircuitBreakerMetrics) RecordFailure() { m.failures++ }

func testOffer(supplier, mpn, manufacturer string) domain.CatalogOffer {
	return domain.CatalogOffer{
		ProviderID:             "mock",
		Supplier:               supplier,
		ManufacturerPartNumber: mpn,
		Manufacturer:           manufacturer,
		Availability:           domain.UnitsInStock(100),
		PriceBreaks: []domain.PriceBreak{
			{MinQuantity: 1, UnitPrice: decimal.RequireFromString("0.10"), Currency: "USD"},
		},
	}
}
