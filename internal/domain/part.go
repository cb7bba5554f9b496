// Package domain holds the provider-neutral types of the part validation
// engine together with the pure algorithms that operate on them: price-break
// resolution, supplier ranking and price-change classification.
package domain

import (
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

// PartQuery is one BOM line to validate. It is an immutable value; helpers
// that adjust it return a copy.
type PartQuery struct {
	// ManufacturerPartNumber is the MPN to look up. Required.
	ManufacturerPartNumber string `json:"manufacturer_part_number"`

	// Manufacturer narrows matches by case-insensitive substring. Optional.
	Manufacturer string `json:"manufacturer,omitempty"`

	// RequestedQuantity is the number of units the BOM needs.
	RequestedQuantity int `json:"requested_quantity"`

	// CurrentUnitPrice is the price recorded in the BOM, zero when unknown.
	CurrentUnitPrice decimal.Decimal `json:"current_unit_price"`

	// CurrentSupplier is the distributor the BOM currently sources from.
	CurrentSupplier string `json:"current_supplier,omitempty"`

	// Description is carried through for report adapters.
	Description string `json:"description,omitempty"`

	// Priority marks components that are validated first and whose price
	// changes escalate faster.
	Priority bool `json:"priority,omitempty"`
}

// NewPartQuery builds a validated PartQuery with surrounding whitespace removed.
func NewPartQuery(mpn, manufacturer string, quantity int) (PartQuery, error) {
	q := PartQuery{
		ManufacturerPartNumber: strings.TrimSpace(mpn),
		Manufacturer:           strings.TrimSpace(manufacturer),
		RequestedQuantity:      quantity,
	}
	if err := q.Validate(); err != nil {
		return PartQuery{}, err
	}
	return q, nil
}

// Validate reports every structural problem with the query.
func (q PartQuery) Validate() error {
	verr := NewValidationError("PartQuery")
	if strings.TrimSpace(q.ManufacturerPartNumber) == "" {
		verr.AddError("manufacturer part number is required")
	}
	if q.RequestedQuantity <= 0 {
		verr.AddError(fmt.Sprintf("requested quantity must be positive, got %d", q.RequestedQuantity))
	}
	if q.CurrentUnitPrice.IsNegative() {
		verr.AddError("current unit price cannot be negative")
	}
	if verr.HasErrors() {
		return verr
	}
	return nil
}

// HasCurrentPrice reports whether the BOM supplied a price to compare against.
func (q PartQuery) HasCurrentPrice() bool { return q.CurrentUnitPrice.IsPositive() }

// CurrentExtendedPrice is the BOM's unit price times the requested quantity.
func (q PartQuery) CurrentExtendedPrice() decimal.Decimal {
	return q.CurrentUnitPrice.Mul(decimal.NewFromInt(int64(q.RequestedQuantity)))
}

// WithPriority returns a copy of q with the priority flag set.
func (q PartQuery) WithPriority(priority bool) PartQuery {
	q.Priority = priority
	return q
}

// PriceBreak is one quantity tier of a supplier's price list.
type PriceBreak struct {
	MinQuantity int             `json:"min_quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Currency    string          `json:"currency"`
}

// NormalizePriceBreaks returns a new slice sorted by ascending MinQuantity
// with unusable tiers (non-positive quantity, negative price) dropped.
// Duplicate quantities keep the lowest price.
func NormalizePriceBreaks(breaks []PriceBreak) []PriceBreak {
	out := make([]PriceBreak, 0, len(breaks))
	for _, b := range breaks {
		if b.MinQuantity <= 0 || b.UnitPrice.IsNegative() {
			continue
		}
		out = append(out, b)
	}

	slices.SortStableFunc(out, func(a, b PriceBreak) int {
		if a.MinQuantity != b.MinQuantity {
			return a.MinQuantity - b.MinQuantity
		}
		return a.UnitPrice.Cmp(b.UnitPrice)
	})

	return slices.CompactFunc(out, func(a, b PriceBreak) bool {
		return a.MinQuantity == b.MinQuantity
	})
}

// StockStatus is the coarse availability reported when a provider does not
// publish an exact unit count.
type StockStatus int

const (
	StockUnknown StockStatus = iota
	InStock
	LowStock
	OutOfStock
)

// String returns the status name used in reports.
func (s StockStatus) String() string {
	switch s {
	case InStock:
		return "in_stock"
	case LowStock:
		return "low_stock"
	case OutOfStock:
		return "out_of_stock"
	default:
		return "unknown"
	}
}

// MarshalText renders the status by name.
func (s StockStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText parses a name written by MarshalText.
func (s *StockStatus) UnmarshalText(text []byte) error {
	v, err := parseEnum("stock status", string(text), StockUnknown, InStock, LowStock, OutOfStock)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// lowStockThreshold is the unit count below which stock counts as low.
const lowStockThreshold = 10

// Availability describes stock either as an exact unit count or as a status.
type Availability struct {
	// Units is the number of units in stock. Only meaningful when UnitsKnown.
	Units int `json:"units"`

	// UnitsKnown is true when the provider reported an exact count.
	UnitsKnown bool `json:"units_known"`

	// Status is derived from Units when known, otherwise provider reported.
	Status StockStatus `json:"status"`
}

// UnitsInStock builds an Availability from an exact count.
func UnitsInStock(units int) Availability {
	if units < 0 {
		units = 0
	}
	status := InStock
	switch {
	case units == 0:
		status = OutOfStock
	case units < lowStockThreshold:
		status = LowStock
	}
	return Availability{Units: units, UnitsKnown: true, Status: status}
}

// StatusOnly builds an Availability when the provider gave no unit count.
func StatusOnly(status StockStatus) Availability {
	return Availability{Status: status}
}

// IsOutOfStock reports whether the offer has nothing available now.
func (a Availability) IsOutOfStock() bool {
	if a.UnitsKnown {
		return a.Units == 0
	}
	return a.Status == OutOfStock
}

// Covers reports whether the stock can plausibly satisfy quantity.
// Status-only availability other than OutOfStock is given the benefit of the doubt.
func (a Availability) Covers(quantity int) bool {
	if a.UnitsKnown {
		return a.Units >= quantity
	}
	return a.Status != OutOfStock
}

// CatalogOffer is one supplier's listing for a part, normalized from a
// provider response.
type CatalogOffer struct {
	ProviderID             string       `json:"provider_id"`
	Supplier               string       `json:"supplier"`
	SupplierPartNumber     string       `json:"supplier_part_number,omitempty"`
	ManufacturerPartNumber string       `json:"manufacturer_part_number"`
	Manufacturer           string       `json:"manufacturer,omitempty"`
	Description            string       `json:"description,omitempty"`
	Availability           Availability `json:"availability"`
	PriceBreaks            []PriceBreak `json:"price_breaks"`
	// MinOrderQty is zero when the provider omitted it.
	MinOrderQty   int `json:"min_order_qty,omitempty"`
	OrderMultiple int `json:"order_multiple,omitempty"`
	// LeadTimeDays is zero when unknown.
	LeadTimeDays    int    `json:"lead_time_days,omitempty"`
	LifecycleStatus string `json:"lifecycle_status,omitempty"`
	DatasheetURL    string `json:"datasheet_url,omitempty"`
	ProductURL      string `json:"product_url,omitempty"`
}

// EffectiveMOQ is the declared minimum order quantity, falling back to the
// smallest price-break tier and finally to one.
func (o CatalogOffer) EffectiveMOQ() int {
	if o.MinOrderQty > 0 {
		return o.MinOrderQty
	}
	moq := 0
	for _, b := range o.PriceBreaks {
		if b.MinQuantity > 0 && (moq == 0 || b.MinQuantity < moq) {
			moq = b.MinQuantity
		}
	}
	if moq == 0 {
		return 1
	}
	return moq
}

// HasPricing reports whether the offer carries any usable price break.
func (o CatalogOffer) HasPricing() bool {
	return len(NormalizePriceBreaks(o.PriceBreaks)) > 0
}
