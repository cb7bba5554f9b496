package domain

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCatalogOffer_JSONRoundTrip verifies that an offer written to a cache
// decodes back to the same offer.
func TestCatalogOffer_JSONRoundTrip(t *testing.T) {
	offers := []CatalogOffer{
		{
			ProviderID:             "mouser",
			Supplier:               "Mouser",
			SupplierPartNumber:     "595-LM358DR",
			ManufacturerPartNumber: "LM358DR",
			Manufacturer:           "Texas Instruments",
			Availability:           UnitsInStock(4),
			PriceBreaks: []PriceBreak{
				{MinQuantity: 1, UnitPrice: decimal.RequireFromString("0.42"), Currency: "USD"},
				{MinQuantity: 100, UnitPrice: decimal.RequireFromString("0.198"), Currency: "USD"},
			},
			MinOrderQty:  1,
			LeadTimeDays: 42,
		},
		{
			ProviderID:             "nexar",
			Supplier:               "Arrow Electronics",
			ManufacturerPartNumber: "LM358DR",
			Availability:           StatusOnly(OutOfStock),
		},
	}

	data, err := json.Marshal(offers)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status":"low_stock"`)

	var decoded []CatalogOffer
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, len(offers))

	for i := range offers {
		want, got := offers[i], decoded[i]
		require.Len(t, got.PriceBreaks, len(want.PriceBreaks))
		for j := range want.PriceBreaks {
			assert.True(t, want.PriceBreaks[j].UnitPrice.Equal(got.PriceBreaks[j].UnitPrice))
			assert.Equal(t, want.PriceBreaks[j].MinQuantity, got.PriceBreaks[j].MinQuantity)
			assert.Equal(t, want.PriceBreaks[j].Currency, got.PriceBreaks[j].Currency)
		}
		want.PriceBreaks, got.PriceBreaks = nil, nil
		assert.Equal(t, want, got)
	}
}

// TestEnums_TextRoundTrip verifies every named value parses back to itself.
func TestEnums_TextRoundTrip(t *testing.T) {
	for _, s := range []StockStatus{StockUnknown, InStock, LowStock, OutOfStock} {
		text, err := s.MarshalText()
		require.NoError(t, err)
		var got StockStatus
		require.NoError(t, got.UnmarshalText(text))
		assert.Equal(t, s, got)
	}
	for _, c := range []ErrorClass{ClassUnexpected, ClassRetryable, ClassRateLimited, ClassFatal} {
		text, err := c.MarshalText()
		require.NoError(t, err)
		var got ErrorClass
		require.NoError(t, got.UnmarshalText(text))
		assert.Equal(t, c, got)
	}
	for _, s := range []ValidationStatus{StatusNotFound, StatusFound, StatusFoundUnpriced, StatusFailed} {
		text, err := s.MarshalText()
		require.NoError(t, err)
		var got ValidationStatus
		require.NoError(t, got.UnmarshalText(text))
		assert.Equal(t, s, got)
	}
	for _, l := range []ChangeLevel{ChangeNone, ChangeSignificant, ChangeCritical} {
		text, err := l.MarshalText()
		require.NoError(t, err)
		var got ChangeLevel
		require.NoError(t, got.UnmarshalText(text))
		assert.Equal(t, l, got)
	}
}

// TestEnums_UnknownName verifies unrecognized names are rejected.
func TestEnums_UnknownName(t *testing.T) {
	var s StockStatus
	assert.ErrorIs(t, s.UnmarshalText([]byte("backordered")), ErrUnknownValue)

	var c ErrorClass
	assert.ErrorIs(t, c.UnmarshalText([]byte("transient")), ErrUnknownValue)

	var v ValidationStatus
	assert.ErrorIs(t, v.UnmarshalText([]byte("")), ErrUnknownValue)

	var l ChangeLevel
	assert.ErrorIs(t, l.UnmarshalText([]byte("CRITICAL")), ErrUnknownValue)

	var rec ErrorRecord
	err := json.Unmarshal([]byte(`{"provider":"a","class":"bogus"}`), &rec)
	assert.ErrorIs(t, err, ErrUnknownValue)
}

// TestComponentValidation_JSONRoundTrip verifies a report entry decodes with
// its status, error classes and change level intact.
func TestComponentValidation_JSONRoundTrip(t *testing.T) {
	v := ComponentValidation{
		Status: StatusFailed,
		Errors: []ErrorRecord{{Provider: "nexar", Class: ClassRateLimited, Message: "slow down", Attempts: 4}},
		PriceChange: &PriceChange{
			Previous: decimal.RequireFromString("1"),
			Current:  decimal.RequireFromString("1.2"),
			Percent:  decimal.RequireFromString("20"),
			Level:    ChangeCritical,
		},
	}

	data, err := json.Marshal(v)
	require.NoError(t, err)

	var got ComponentValidation
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, StatusFailed, got.Status)
	require.Len(t, got.Errors, 1)
	assert.Equal(t, ClassRateLimited, got.Errors[0].Class)
	require.NotNil(t, got.PriceChange)
	assert.Equal(t, ChangeCritical, got.PriceChange.Level)
}
