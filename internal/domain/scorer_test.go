package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scoredOffer(supplier, price string, moq, stock int) CatalogOffer {
	return CatalogOffer{
		ProviderID:             "stub",
		Supplier:               supplier,
		ManufacturerPartNumber: "X1",
		Availability:           UnitsInStock(stock),
		MinOrderQty:            moq,
		PriceBreaks:            []PriceBreak{{MinQuantity: moq, UnitPrice: usd(price), Currency: "USD"}},
	}
}

func suppliers(scores []SupplierScore) []string {
	out := make([]string, 0, len(scores))
	for _, s := range scores {
		out = append(out, s.Offer.Supplier)
	}
	return out
}

func TestSupplierScorer_TierOrdering(t *testing.T) {
	scorer := NewSupplierScorer(DefaultSupplierPreferences())
	offers := []CatalogOffer{
		scoredOffer("Unknown Parts Co", "1.00", 1, 500),
		scoredOffer("Adafruit", "1.00", 1, 500),
		scoredOffer("Newark", "1.00", 1, 500),
		scoredOffer("DigiKey", "1.00", 1, 500),
	}

	ranked := scorer.Rank(offers, 1)

	assert.Equal(t, []string{"DigiKey", "Newark", "Adafruit", "Unknown Parts Co"}, suppliers(ranked))
	assert.Equal(t, TierOne, ranked[0].Tier)
	assert.Contains(t, ranked[0].RankReason, "tier_1 supplier")
}

func TestSupplierScorer_TierOf(t *testing.T) {
	scorer := NewSupplierScorer(DefaultSupplierPreferences())

	assert.Equal(t, TierOne, scorer.TierOf("digikey"))
	assert.Equal(t, TierOne, scorer.TierOf("Mouser Electronics"))
	assert.Equal(t, TierTwo, scorer.TierOf("  RS   Components "))
	assert.Equal(t, TierUnlisted, scorer.TierOf(""))
	assert.Equal(t, TierUnlisted, scorer.TierOf("LCSC"))
}

// TestSupplierScorer_TierOfEqualLengthMatches verifies that a supplier name
// containing two listed names of the same length always gets the same tier.
func TestSupplierScorer_TierOfEqualLengthMatches(t *testing.T) {
	// Given "Arrow" and "Avnet" are listed in different tiers.
	prefs := DefaultSupplierPreferences()
	prefs.Tier1 = []string{"Arrow"}
	prefs.Tier2 = []string{"Avnet"}
	prefs.Specialty = []string{"Farnell"}
	prefs.Avoid = []string{"Brokr"}

	// When a name containing both is resolved repeatedly across fresh scorers.
	// Then tier 1 wins every time, and avoid wins over tier 1.
	for range 50 {
		scorer := NewSupplierScorer(prefs)
		require.Equal(t, TierOne, scorer.TierOf("Avnet Arrow Joint Venture"))
		require.Equal(t, TierSpecialty, scorer.TierOf("Farnell Avnet"), "longer listed name still wins")
		require.Equal(t, TierAvoided, scorer.TierOf("Arrow Brokr"))
	}
}

func TestSupplierScorer_AvoidListExcludes(t *testing.T) {
	prefs := DefaultSupplierPreferences()
	prefs.Avoid = []string{"DigiKey"}
	scorer := NewSupplierScorer(prefs)

	ranked := scorer.Rank([]CatalogOffer{
		scoredOffer("DigiKey", "0.10", 1, 500),
		scoredOffer("Newark", "1.00", 1, 500),
	}, 1)

	assert.Equal(t, []string{"Newark"}, suppliers(ranked))
}

func TestSupplierScorer_LowerPriceWins(t *testing.T) {
	scorer := NewSupplierScorer(DefaultSupplierPreferences())

	ranked := scorer.Rank([]CatalogOffer{
		scoredOffer("Newark", "1.10", 1, 500),
		scoredOffer("Future Electronics", "0.90", 1, 500),
	}, 1)

	require.Len(t, ranked, 2)
	assert.Equal(t, "Future Electronics", ranked[0].Offer.Supplier)
	assert.Greater(t, ranked[0].Score, ranked[1].Score)
}

func TestSupplierScorer_PriceTermStrictlyDecreasing(t *testing.T) {
	scorer := NewSupplierScorer(DefaultSupplierPreferences())

	prev := scorer.priceTerm(&ResolvedPrice{UnitPrice: usd("0")})
	for _, p := range []string{"0.01", "0.5", "1", "9.99", "10", "250", "10000"} {
		cur := scorer.priceTerm(&ResolvedPrice{UnitPrice: usd(p)})
		assert.Less(t, cur, prev, "price %s", p)
		prev = cur
	}
	assert.InDelta(t, 25.0, scorer.priceTerm(&ResolvedPrice{UnitPrice: usd("10")}), 1e-9)
}

func TestSupplierScorer_OutOfStockRanksLast(t *testing.T) {
	scorer := NewSupplierScorer(DefaultSupplierPreferences())

	ranked := scorer.Rank([]CatalogOffer{
		scoredOffer("DigiKey", "0.10", 1, 0),
		scoredOffer("Unknown Parts Co", "4.00", 100, 5),
	}, 1)

	require.Len(t, ranked, 2, "zero stock never disqualifies")
	assert.Equal(t, []string{"Unknown Parts Co", "DigiKey"}, suppliers(ranked))
	assert.Greater(t, ranked[1].Score, ranked[0].Score, "ordering holds even against a higher score")
}

func TestSupplierScorer_StockBuckets(t *testing.T) {
	tests := []struct {
		avail Availability
		want  float64
	}{
		{UnitsInStock(101), stockAmpleBonus},
		{UnitsInStock(100), stockModestBonus},
		{UnitsInStock(10), stockModestBonus},
		{UnitsInStock(9), stockLowBonus},
		{UnitsInStock(1), stockLowBonus},
		{UnitsInStock(0), stockEmptyPenalty},
		{StatusOnly(InStock), stockModestBonus},
		{StatusOnly(LowStock), stockLowBonus},
		{StatusOnly(OutOfStock), stockEmptyPenalty},
		{StatusOnly(StockUnknown), 0},
	}

	for _, tt := range tests {
		got, _ := stockTerm(tt.avail)
		assert.Equal(t, tt.want, got, "availability %+v", tt.avail)
	}
}

func TestSupplierScorer_MOQTerms(t *testing.T) {
	prefs := DefaultSupplierPreferences()
	prefs.MaxMOQ = 10
	scorer := NewSupplierScorer(prefs)

	ranked := scorer.Rank([]CatalogOffer{
		scoredOffer("A", "1.00", 100, 500),
		scoredOffer("B", "1.00", 5, 500),
		scoredOffer("C", "1.00", 1, 500),
	}, 100)

	require.Len(t, ranked, 3)
	assert.Equal(t, []string{"C", "B", "A"}, suppliers(ranked))
	assert.InDelta(t, prefs.MOQOneBonus-prefs.LowMOQBonus, ranked[0].Score-ranked[1].Score, 1e-9)
	assert.InDelta(t, prefs.LowMOQBonus+prefs.HighMOQPenalty, ranked[1].Score-ranked[2].Score, 1e-9)
}

func TestSupplierScorer_HigherMOQForSavings(t *testing.T) {
	offers := []CatalogOffer{
		scoredOffer("A", "1.00", 1, 500),
		scoredOffer("B", "0.50", 100, 500),
	}

	strictPrefs := DefaultSupplierPreferences()
	penalized := NewSupplierScorer(strictPrefs).Rank(offers, 1)

	allowPrefs := DefaultSupplierPreferences()
	allowPrefs.AllowHigherMOQ = true
	allowed := NewSupplierScorer(allowPrefs).Rank(offers, 1)

	find := func(scores []SupplierScore, name string) SupplierScore {
		for _, s := range scores {
			if s.Offer.Supplier == name {
				return s
			}
		}
		t.Fatalf("supplier %s missing", name)
		return SupplierScore{}
	}

	b1, b2 := find(penalized, "B"), find(allowed, "B")
	assert.InDelta(t, strictPrefs.HighMOQPenalty, b2.Score-b1.Score, 1e-9)
	assert.Contains(t, b2.RankReason, "accepted for savings")

	allowPrefs.HigherMOQSavingsPercent = 60
	notEnough := find(NewSupplierScorer(allowPrefs).Rank(offers, 1), "B")
	assert.InDelta(t, b1.Score, notEnough.Score, 1e-9, "half-price savings fall short of a 60 percent bar")
}

func TestSupplierScorer_StrictFilter(t *testing.T) {
	prefs := DefaultSupplierPreferences()
	prefs.StrictFilter = true
	prefs.MaxMOQ = 10
	scorer := NewSupplierScorer(prefs)

	ranked := scorer.Rank([]CatalogOffer{
		scoredOffer("HighMOQ", "0.10", 50, 1000),
		scoredOffer("ShortStock", "0.20", 1, 3),
		scoredOffer("Good", "0.30", 1, 1000),
	}, 5)

	assert.Equal(t, []string{"Good"}, suppliers(ranked))
}

func TestSupplierScorer_UnpricedOffersSortAfterPriced(t *testing.T) {
	scorer := NewSupplierScorer(DefaultSupplierPreferences())
	unpriced := scoredOffer("Newark", "1.00", 1, 500)
	unpriced.PriceBreaks = nil

	ranked := scorer.Rank([]CatalogOffer{unpriced, scoredOffer("Newark", "1.00", 1, 500)}, 1)

	require.Len(t, ranked, 2)
	assert.NotNil(t, ranked[0].Price)
	assert.Nil(t, ranked[1].Price)
	assert.Contains(t, ranked[1].RankReason, "no pricing")
}

func TestSupplierScorer_EmptyInput(t *testing.T) {
	assert.Empty(t, NewSupplierScorer(SupplierPreferences{}).Rank(nil, 1))
}
