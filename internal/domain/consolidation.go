package domain

import "github.com/shopspring/decimal"

// ConsolidationLine is the per-component detail of a consolidation run.
type ConsolidationLine struct {
	Query           PartQuery       `json:"query"`
	CurrentSupplier string          `json:"current_supplier"`
	CurrentPrice    decimal.Decimal `json:"current_price"`
	TargetPrice     decimal.Decimal `json:"target_price"`
	// Resolved is false when no target-supplier equivalent was found and
	// TargetPrice repeats CurrentPrice.
	Resolved bool            `json:"resolved"`
	Savings  decimal.Decimal `json:"savings"`
	// TargetOffer is the equivalent listing at the target supplier, if any.
	TargetOffer *CatalogOffer `json:"target_offer,omitempty"`
	Note        string        `json:"note,omitempty"`
}

// ConsolidationReport compares the current multi-supplier cost with buying
// everything from one target supplier.
type ConsolidationReport struct {
	TargetSupplier      string          `json:"target_supplier"`
	Currency            string          `json:"currency"`
	CurrentTotal        decimal.Decimal `json:"current_total"`
	SingleSupplierTotal decimal.Decimal `json:"single_supplier_total"`
	Savings             decimal.Decimal `json:"savings"`
	SavingsPercent      decimal.Decimal `json:"savings_percent"`
	// Recommended is false whenever Savings is not positive.
	Recommended bool `json:"recommended"`

	UnresolvedComponents []PartQuery `json:"unresolved_components"`
	// UnpricedComponents were skipped because they carry no extended price.
	UnpricedComponents []PartQuery         `json:"unpriced_components,omitempty"`
	Lines              []ConsolidationLine `json:"lines"`
	Warnings           []string            `json:"warnings,omitempty"`
}

// Recommendation returns a one-line verdict for report adapters.
func (r ConsolidationReport) Recommendation() string {
	if r.Recommended {
		return "consolidate to " + r.TargetSupplier + ": saves " + r.Savings.StringFixed(2) + " " + r.Currency
	}
	return "consolidation to " + r.TargetSupplier + " not recommended: savings " + r.Savings.StringFixed(2) + " " + r.Currency
}
