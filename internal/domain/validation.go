package domain

import (
	"slices"

	"github.com/shopspring/decimal"
)

// ErrorClass is the retry classification of a provider failure.
type ErrorClass int

const (
	// ClassUnexpected covers anything not otherwise classified. It is never
	// retried and is surfaced to the caller.
	ClassUnexpected ErrorClass = iota
	// ClassRetryable covers timeouts, connection failures and 5xx responses.
	ClassRetryable
	// ClassRateLimited covers explicit throttling signals from a provider.
	ClassRateLimited
	// ClassFatal covers quota exhaustion and credential failures. The
	// provider is abandoned for the current component without retry.
	ClassFatal
)

// String returns the class name used in logs and reports.
func (c ErrorClass) String() string {
	switch c {
	case ClassRetryable:
		return "retryable"
	case ClassRateLimited:
		return "rate_limited"
	case ClassFatal:
		return "fatal"
	default:
		return "unexpected"
	}
}

// MarshalText renders the class by name.
func (c ErrorClass) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// UnmarshalText parses a name written by MarshalText.
func (c *ErrorClass) UnmarshalText(text []byte) error {
	v, err := parseEnum("error class", string(text), ClassUnexpected, ClassRetryable, ClassRateLimited, ClassFatal)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Retryable reports whether the class may be retried under backoff.
func (c ErrorClass) Retryable() bool { return c == ClassRetryable || c == ClassRateLimited }

// ErrorRecord is one provider failure captured on a component.
type ErrorRecord struct {
	Provider string     `json:"provider"`
	Class    ErrorClass `json:"class"`
	Message  string     `json:"message"`
	// Attempts is the number of calls made before giving up.
	Attempts int `json:"attempts"`
	// Skipped is set when the provider was not called because its quota
	// had already been exhausted earlier in the run.
	Skipped bool `json:"skipped,omitempty"`
}

// ValidationStatus summarizes a ComponentValidation for reports.
type ValidationStatus int

const (
	StatusNotFound ValidationStatus = iota
	StatusFound
	// StatusFoundUnpriced marks a match whose offer carried no price breaks.
	StatusFoundUnpriced
	// StatusFailed marks a component where no provider answered successfully.
	StatusFailed
)

// String returns the status name used in reports.
func (s ValidationStatus) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusFoundUnpriced:
		return "found_unpriced"
	case StatusFailed:
		return "failed"
	default:
		return "not_found"
	}
}

// MarshalText renders the status by name.
func (s ValidationStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText parses a name written by MarshalText.
func (s *ValidationStatus) UnmarshalText(text []byte) error {
	v, err := parseEnum("validation status", string(text), StatusNotFound, StatusFound, StatusFoundUnpriced, StatusFailed)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ComponentValidation is the single result produced for one component in a
// run. It is built through the constructors below and not mutated afterwards.
type ComponentValidation struct {
	Query  PartQuery        `json:"query"`
	Status ValidationStatus `json:"status"`
	Found  bool             `json:"found"`

	ChosenOffer *CatalogOffer `json:"chosen_offer"`
	// ResolvedPrice is nil for found-but-unpriced matches.
	ResolvedPrice *ResolvedPrice `json:"resolved_price"`
	ProviderUsed  string         `json:"provider_used,omitempty"`
	RankReason    string         `json:"rank_reason,omitempty"`

	Errors       []ErrorRecord   `json:"errors"`
	Suggestions  []CatalogOffer  `json:"suggestions,omitempty"`
	Alternatives []SupplierScore `json:"alternatives,omitempty"`
	PriceChange  *PriceChange    `json:"price_change,omitempty"`
}

// NewFoundValidation records a successful lookup. best is the top-ranked
// entry; alternatives are the runners-up in rank order.
func NewFoundValidation(
	q PartQuery,
	best SupplierScore,
	providerUsed string,
	errs []ErrorRecord,
	alternatives []SupplierScore,
	change *PriceChange,
) ComponentValidation {
	offer := *best.Offer
	offer.PriceBreaks = slices.Clone(offer.PriceBreaks)

	status := StatusFound
	if best.Price == nil {
		status = StatusFoundUnpriced
	}

	alts := make([]SupplierScore, 0, len(alternatives))
	for _, a := range alternatives {
		o := *a.Offer
		a.Offer = &o
		alts = append(alts, a)
	}

	return ComponentValidation{
		Query:         q,
		Status:        status,
		Found:         true,
		ChosenOffer:   &offer,
		ResolvedPrice: best.Price,
		ProviderUsed:  providerUsed,
		RankReason:    best.RankReason,
		Errors:        cloneErrors(errs),
		Alternatives:  alts,
		PriceChange:   change,
	}
}

// NewExhaustedValidation records a component no provider could match.
func NewExhaustedValidation(q PartQuery, errs []ErrorRecord, suggestions []CatalogOffer) ComponentValidation {
	status := StatusNotFound
	if len(errs) > 0 {
		status = StatusFailed
	}
	return ComponentValidation{
		Query:       q,
		Status:      status,
		Errors:      cloneErrors(errs),
		Suggestions: slices.Clone(suggestions),
	}
}

// Unpriced reports the found-but-unpriced state.
func (v ComponentValidation) Unpriced() bool { return v.Found && v.ResolvedPrice == nil }

// ExtendedPrice returns the resolved total, or false when unpriced.
func (v ComponentValidation) ExtendedPrice() (decimal.Decimal, bool) {
	if v.ResolvedPrice == nil {
		return decimal.Zero, false
	}
	return v.ResolvedPrice.TotalPrice, true
}

// Supplier returns the chosen offer's supplier, or the BOM's current
// supplier when nothing was chosen.
func (v ComponentValidation) Supplier() string {
	if v.ChosenOffer != nil && v.ChosenOffer.Supplier != "" {
		return v.ChosenOffer.Supplier
	}
	return v.Query.CurrentSupplier
}

func cloneErrors(errs []ErrorRecord) []ErrorRecord {
	if errs == nil {
		return []ErrorRecord{}
	}
	return slices.Clone(errs)
}

// ChangeLevel grades a price movement against the BOM price.
type ChangeLevel int

const (
	ChangeNone ChangeLevel = iota
	ChangeSignificant
	ChangeCritical
)

// String returns the level name used in reports.
func (l ChangeLevel) String() string {
	switch l {
	case ChangeSignificant:
		return "significant"
	case ChangeCritical:
		return "critical"
	default:
		return "none"
	}
}

// MarshalText renders the level by name.
func (l ChangeLevel) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

// UnmarshalText parses a name written by MarshalText.
func (l *ChangeLevel) UnmarshalText(text []byte) error {
	v, err := parseEnum("change level", string(text), ChangeNone, ChangeSignificant, ChangeCritical)
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// ChangeThresholds holds the percentage bounds for price change levels.
type ChangeThresholds struct {
	SignificantPercent float64 `yaml:"significant_change_percent" validate:"gte=0"`
	CriticalPercent    float64 `yaml:"critical_change_percent" validate:"gtefield=SignificantPercent"`
}

// DefaultChangeThresholds returns 5% significant and 10% critical.
func DefaultChangeThresholds() ChangeThresholds {
	return ChangeThresholds{SignificantPercent: 5, CriticalPercent: 10}
}

// PriceChange compares the BOM unit price with the validated one.
type PriceChange struct {
	Previous decimal.Decimal `json:"previous"`
	Current  decimal.Decimal `json:"current"`
	// Percent is signed; positive means the price went up.
	Percent decimal.Decimal `json:"percent"`
	Level   ChangeLevel     `json:"level"`
}

// ComparePrice grades the change from previous to current. Priority
// components are escalated to critical at the significant threshold.
// It returns nil when previous is not a positive price.
func ComparePrice(previous, current decimal.Decimal, priority bool, t ChangeThresholds) *PriceChange {
	if !previous.IsPositive() {
		return nil
	}
	pct := current.Sub(previous).Div(previous).Mul(decimal.NewFromInt(100)).Round(2)
	abs := pct.Abs()

	level := ChangeNone
	switch {
	case abs.GreaterThanOrEqual(decimal.NewFromFloat(t.CriticalPercent)):
		level = ChangeCritical
	case abs.GreaterThanOrEqual(decimal.NewFromFloat(t.SignificantPercent)):
		level = ChangeSignificant
		if priority {
			level = ChangeCritical
		}
	}

	return &PriceChange{
		Previous: previous,
		Current:  current,
		Percent:  pct,
		Level:    level,
	}
}
