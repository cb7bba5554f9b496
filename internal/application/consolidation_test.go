package application

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-bomcheck/internal/domain"
	"github.com/ahrav/go-bomcheck/internal/testutils"
)

// stubSupplierValidator answers target lookups from a function.
type stubSupplierValidator struct {
	fn    func(q domain.PartQuery, supplier string) (domain.ComponentValidation, error)
	calls []string
}

func (s *stubSupplierValidator) ValidateWithSupplier(_ context.Context, q domain.PartQuery, supplier string) (domain.ComponentValidation, error) {
	s.calls = append(s.calls, q.ManufacturerPartNumber)
	return s.fn(q, supplier)
}

// foundAt builds a found validation for q priced at unit from supplier.
func foundAt(q domain.PartQuery, supplier, unit string) domain.ComponentValidation {
	offer := testutils.NewOffer(supplier, q.ManufacturerPartNumber, testutils.WithPrice(unit))
	return domain.NewFoundValidation(q, domain.SupplierScore{
		Offer: &offer,
		Price: domain.ResolvePrice(offer, q.RequestedQuantity),
	}, "stub", nil, nil, nil)
}

// TestConsolidation_EndToEnd validates a BOM and then prices it at a single
// supplier through the same orchestrator.
func TestConsolidation_EndToEnd(t *testing.T) {
	// Given DigiKey is preferred but Mouser carries most of the same parts.
	prefs := domain.DefaultSupplierPreferences()
	prefs.Tier1 = []string{"DigiKey"}
	prefs.Tier2 = []string{"Mouser"}

	a := testutils.NewScriptedProvider("a").
		OnLookup("X1", testutils.Respond(
			testutils.NewOffer("DigiKey", "X1", testutils.WithPrice("1.00")),
			testutils.NewOffer("Mouser", "X1", testutils.WithPrice("0.90")),
		)).
		OnLookup("X2", testutils.Respond(testutils.NewOffer("DigiKey", "X2", testutils.WithPrice("2.00")))).
		OnLookup("X3", testutils.Respond(testutils.NewOffer("Mouser", "X3", testutils.WithPrice("0.50")))).
		OnLookup("X4", testutils.Respond(testutils.NewOffer("DigiKey", "X4")))
	o := newTestOrchestrator(t, OrchestratorConfig{Preferences: prefs}, a)

	bom := []domain.PartQuery{
		testutils.Query("X1", 10),
		testutils.Query("X2", 10),
		testutils.Query("X3", 10),
		testutils.Query("X4", 10),
	}
	run, err := o.ValidateBOM(context.Background(), bom)
	require.NoError(t, err)
	require.Equal(t, "DigiKey", run.Validations[0].Supplier())

	// When the run is consolidated onto Mouser.
	report, err := NewConsolidationAnalyzer(o, "Mouser").Analyze(context.Background(), run.Validations)
	require.NoError(t, err)

	// Then X1 moves, X2 stays put, X3 is already there and X4 is unpriced.
	assert.True(t, report.CurrentTotal.Equal(dec("35.00")), "current %s", report.CurrentTotal)
	assert.True(t, report.SingleSupplierTotal.Equal(dec("34.00")), "single %s", report.SingleSupplierTotal)
	assert.True(t, report.Savings.Equal(dec("1.00")), "savings %s", report.Savings)
	assert.True(t, report.SavingsPercent.Equal(dec("2.86")), "percent %s", report.SavingsPercent)
	assert.True(t, report.Recommended)
	assert.Equal(t, "USD", report.Currency)

	require.Len(t, report.UnresolvedComponents, 1)
	assert.Equal(t, "X2", report.UnresolvedComponents[0].ManufacturerPartNumber)
	require.Len(t, report.UnpricedComponents, 1)
	assert.Equal(t, "X4", report.UnpricedComponents[0].ManufacturerPartNumber)

	require.Len(t, report.Lines, 3)
	assert.Equal(t, "no equivalent at target supplier", report.Lines[1].Note)
	assert.Equal(t, "already sourced from target supplier", report.Lines[2].Note)
	assert.Equal(t, 1, a.LookupsFor("X3"), "lines already at the target are not looked up again")
	assert.Equal(t, 2, a.LookupsFor("X1"))
}

// TestConsolidation_SharesRunQuotaLatch verifies that a provider exhausted
// during ValidateBOM is not called again while consolidating that run.
func TestConsolidation_SharesRunQuotaLatch(t *testing.T) {
	// Given provider a is out of quota and b carries both suppliers.
	prefs := domain.DefaultSupplierPreferences()
	prefs.Tier1 = []string{"DigiKey"}
	prefs.Tier2 = []string{"Mouser"}

	a := testutils.NewScriptedProvider("a").OnAnyLookup(testutils.Fail(quotaErr("a")))
	b := testutils.NewScriptedProvider("b").
		OnLookup("X1", testutils.Respond(
			testutils.NewOffer("DigiKey", "X1", testutils.WithPrice("1.00")),
			testutils.NewOffer("Mouser", "X1", testutils.WithPrice("0.90")),
		)).
		OnLookup("X2", testutils.Respond(
			testutils.NewOffer("DigiKey", "X2", testutils.WithPrice("2.00")),
			testutils.NewOffer("Mouser", "X2", testutils.WithPrice("1.80")),
		))
	o := newTestOrchestrator(t, OrchestratorConfig{Preferences: prefs, Concurrency: 1}, a, b)

	run, err := o.ValidateBOM(context.Background(), []domain.PartQuery{
		testutils.Query("X1", 10),
		testutils.Query("X2", 10),
	})
	require.NoError(t, err)
	require.Equal(t, 1, a.LookupCount())
	require.Equal(t, []string{"a"}, run.Summary.ExhaustedProviders)

	// When the run is consolidated through its own latch.
	report, err := NewConsolidationAnalyzer(o.InRun(run), "Mouser").Analyze(context.Background(), run.Validations)
	require.NoError(t, err)

	// Then a is skipped and b answers every target lookup.
	assert.Equal(t, 1, a.LookupCount(), "exhausted provider is not retried")
	assert.Equal(t, 2, b.LookupsFor("X1"))
	assert.Equal(t, 2, b.LookupsFor("X2"))
	assert.True(t, report.Savings.Equal(dec("3.00")), "savings %s", report.Savings)
	assert.Empty(t, report.Warnings)
}

// TestOrchestrator_InRunWithoutLatch verifies a result not produced by
// ValidateBOM falls back to the orchestrator's own latch.
func TestOrchestrator_InRunWithoutLatch(t *testing.T) {
	a := testutils.NewScriptedProvider("a").OnAnyLookup(testutils.Fail(quotaErr("a")))
	b := testutils.NewScriptedProvider("b").OnAnyLookup(testutils.Respond(testutils.NewOffer("Mouser", "X1", testutils.WithPrice("1.00"))))
	o := newTestOrchestrator(t, OrchestratorConfig{}, a, b)

	_, err := o.ValidateComponent(context.Background(), testutils.Query("X1", 1))
	require.NoError(t, err)

	v, err := o.InRun(RunResult{}).ValidateWithSupplier(context.Background(), testutils.Query("X1", 1), "Mouser")
	require.NoError(t, err)
	assert.True(t, v.Found)
	assert.Equal(t, 1, a.LookupCount())

	_, err = o.InRun(RunResult{}).ValidateWithSupplier(context.Background(), testutils.Query("X1", 1), " ")
	assert.ErrorIs(t, err, domain.ErrEmptyValue)
}

// TestConsolidation_NotRecommended verifies that non-positive savings never
// produce a recommendation.
func TestConsolidation_NotRecommended(t *testing.T) {
	tests := []struct {
		name   string
		target string
		want   string
	}{
		{name: "more expensive", target: "1.10", want: "-1.00"},
		{name: "same price", target: "1.00", want: "0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := testutils.Query("X1", 10)
			v := &stubSupplierValidator{fn: func(q domain.PartQuery, supplier string) (domain.ComponentValidation, error) {
				return foundAt(q, supplier, tt.target), nil
			}}

			report, err := NewConsolidationAnalyzer(v, "Mouser").Analyze(context.Background(),
				[]domain.ComponentValidation{foundAt(q, "DigiKey", "1.00")})
			require.NoError(t, err)

			assert.False(t, report.Recommended)
			assert.True(t, report.Savings.Equal(dec(tt.want)), "savings %s", report.Savings)
			assert.Contains(t, report.Recommendation(), "not recommended")
		})
	}
}

// TestConsolidation_BOMPriceFallback verifies that a line without a validated
// price is compared using the BOM's own price.
func TestConsolidation_BOMPriceFallback(t *testing.T) {
	q := testutils.Query("X1", 4)
	q.CurrentUnitPrice = dec("2.50")
	notFound := domain.NewExhaustedValidation(q, nil, nil)

	v := &stubSupplierValidator{fn: func(q domain.PartQuery, supplier string) (domain.ComponentValidation, error) {
		return foundAt(q, supplier, "2.00"), nil
	}}

	report, err := NewConsolidationAnalyzer(v, "Mouser").Analyze(context.Background(), []domain.ComponentValidation{notFound})
	require.NoError(t, err)

	assert.True(t, report.CurrentTotal.Equal(dec("10.00")))
	assert.True(t, report.SingleSupplierTotal.Equal(dec("8.00")))
	assert.True(t, report.Recommended)
	assert.Empty(t, report.UnpricedComponents)
}

// TestConsolidation_LookupFailures verifies failed target lookups leave the
// line unresolved with a warning, while cancellation aborts.
func TestConsolidation_LookupFailures(t *testing.T) {
	q := testutils.Query("X1", 1)
	bom := []domain.ComponentValidation{foundAt(q, "DigiKey", "1.00")}

	failing := &stubSupplierValidator{fn: func(domain.PartQuery, string) (domain.ComponentValidation, error) {
		return domain.ComponentValidation{}, errors.New("decoder exploded")
	}}
	report, err := NewConsolidationAnalyzer(failing, "Mouser").Analyze(context.Background(), bom)
	require.NoError(t, err)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "decoder exploded")
	assert.Len(t, report.UnresolvedComponents, 1)
	assert.True(t, report.Savings.IsZero())
	assert.False(t, report.Recommended)

	ctx, cancel := context.WithCancel(context.Background())
	cancelling := &stubSupplierValidator{fn: func(domain.PartQuery, string) (domain.ComponentValidation, error) {
		cancel()
		return domain.ComponentValidation{}, context.Canceled
	}}
	_, err = NewConsolidationAnalyzer(cancelling, "Mouser").Analyze(ctx, bom)
	assert.ErrorIs(t, err, context.Canceled)
}

// TestConsolidation_UnpricedAtTarget verifies a target match without pricing
// counts as unresolved.
func TestConsolidation_UnpricedAtTarget(t *testing.T) {
	q := testutils.Query("X1", 1)
	v := &stubSupplierValidator{fn: func(q domain.PartQuery, supplier string) (domain.ComponentValidation, error) {
		offer := testutils.NewOffer(supplier, q.ManufacturerPartNumber)
		return domain.NewFoundValidation(q, domain.SupplierScore{Offer: &offer}, "stub", nil, nil, nil), nil
	}}

	report, err := NewConsolidationAnalyzer(v, "Mouser").Analyze(context.Background(),
		[]domain.ComponentValidation{foundAt(q, "DigiKey", "1.00")})
	require.NoError(t, err)
	require.Len(t, report.Lines, 1)
	assert.False(t, report.Lines[0].Resolved)
	assert.Equal(t, "target lists the part without pricing", report.Lines[0].Note)
	assert.Len(t, report.UnresolvedComponents, 1)
}

// TestConsolidation_CurrencyMismatch verifies mixed currencies are flagged.
func TestConsolidation_CurrencyMismatch(t *testing.T) {
	usd := foundAt(testutils.Query("X1", 1), "Mouser", "1.00")
	eur := foundAt(testutils.Query("X2", 1), "Mouser", "1.00")
	eur.ResolvedPrice.Currency = "EUR"

	v := &stubSupplierValidator{}
	report, err := NewConsolidationAnalyzer(v, "Mouser").Analyze(context.Background(), []domain.ComponentValidation{usd, eur})
	require.NoError(t, err)

	assert.Equal(t, "USD", report.Currency)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "X2 priced in EUR")
	assert.Empty(t, v.calls)
}

// TestConsolidation_InvalidAnalyzer covers analyzers that cannot run.
func TestConsolidation_InvalidAnalyzer(t *testing.T) {
	_, err := NewConsolidationAnalyzer(&stubSupplierValidator{}, "  ").Analyze(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrEmptyValue)

	_, err = NewConsolidationAnalyzer(nil, "Mouser").Analyze(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}
