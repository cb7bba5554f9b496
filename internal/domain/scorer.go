package domain

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
)

// SupplierTier is the preference bucket a supplier falls into.
type SupplierTier int

const (
	TierUnlisted SupplierTier = iota
	TierOne
	TierTwo
	TierSpecialty
	TierAvoided
)

// String returns the tier name used in rank reasons.
func (t SupplierTier) String() string {
	switch t {
	case TierOne:
		return "tier_1"
	case TierTwo:
		return "tier_2"
	case TierSpecialty:
		return "specialty"
	case TierAvoided:
		return "avoided"
	default:
		return "unlisted"
	}
}

// SupplierPreferences configures the additive ranking terms.
type SupplierPreferences struct {
	Tier1     []string `yaml:"tier_1"`
	Tier2     []string `yaml:"tier_2"`
	Specialty []string `yaml:"specialty"`
	// Avoid lists suppliers excluded before scoring.
	Avoid []string `yaml:"avoid"`

	Tier1Bonus     float64 `yaml:"tier_1_bonus" validate:"gte=0"`
	Tier2Bonus     float64 `yaml:"tier_2_bonus" validate:"gte=0"`
	SpecialtyBonus float64 `yaml:"specialty_bonus" validate:"gte=0"`

	MOQOneBonus    float64 `yaml:"moq_1_bonus" validate:"gte=0"`
	LowMOQBonus    float64 `yaml:"low_moq_bonus" validate:"gte=0"`
	HighMOQPenalty float64 `yaml:"high_moq_penalty" validate:"gte=0"`

	// MaxMOQ is the largest minimum order quantity accepted without penalty.
	MaxMOQ int `yaml:"max_moq" validate:"gte=1"`

	// AllowHigherMOQ waives the MOQ penalty when the offer undercuts the
	// cheapest acceptable-MOQ offer by at least HigherMOQSavingsPercent.
	AllowHigherMOQ          bool    `yaml:"allow_higher_moq"`
	HigherMOQSavingsPercent float64 `yaml:"higher_moq_savings_percent" validate:"gte=0,lte=100"`

	// PriceWeight scales the price term, PriceReference sets the unit price
	// at which the term is halved.
	PriceWeight    float64 `yaml:"price_weight" validate:"gte=0"`
	PriceReference float64 `yaml:"price_reference" validate:"gt=0"`

	// StrictFilter drops offers that fail the MOQ or stock check instead of
	// penalizing them.
	StrictFilter bool `yaml:"strict_filter"`
}

// DefaultSupplierPreferences returns the stock preference table.
func DefaultSupplierPreferences() SupplierPreferences {
	return SupplierPreferences{
		Tier1:                   []string{"DigiKey", "Mouser", "Arrow Electronics", "Avnet"},
		Tier2:                   []string{"Newark", "RS Components", "Future Electronics", "TTI"},
		Specialty:               []string{"Adafruit", "SparkFun", "Pololu"},
		Tier1Bonus:              100,
		Tier2Bonus:              50,
		SpecialtyBonus:          25,
		MOQOneBonus:             200,
		LowMOQBonus:             50,
		HighMOQPenalty:          100,
		MaxMOQ:                  1,
		HigherMOQSavingsPercent: 20,
		PriceWeight:             0.5,
		PriceReference:          10,
	}
}

// Stock term values by availability bucket.
const (
	stockAmpleBonus   = 20.0
	stockModestBonus  = 10.0
	stockLowBonus     = 5.0
	stockEmptyPenalty = -50.0
)

// SupplierScore is a derived ranking entry. It is recomputed on every Rank
// call and never stored.
type SupplierScore struct {
	Offer      *CatalogOffer  `json:"offer"`
	Price      *ResolvedPrice `json:"price,omitempty"`
	Score      float64        `json:"score"`
	Tier       SupplierTier   `json:"-"`
	RankReason string         `json:"rank_reason"`
}

// SupplierScorer ranks candidate offers for a quantity. It is safe for
// concurrent use once constructed.
type SupplierScorer struct {
	prefs SupplierPreferences
	tiers map[string]SupplierTier
	// listed holds the keys of tiers in substring match order.
	listed []string
}

// NewSupplierScorer builds a scorer, filling zero-valued knobs from defaults.
func NewSupplierScorer(prefs SupplierPreferences) *SupplierScorer {
	if prefs.MaxMOQ <= 0 {
		prefs.MaxMOQ = 1
	}
	if prefs.PriceReference <= 0 {
		prefs.PriceReference = DefaultSupplierPreferences().PriceReference
	}

	s := &SupplierScorer{
		prefs: prefs,
		tiers: make(map[string]SupplierTier),
	}
	// Later assignments win, so avoid overrides any tier listing.
	for _, group := range []struct {
		names []string
		tier  SupplierTier
	}{
		{prefs.Specialty, TierSpecialty},
		{prefs.Tier2, TierTwo},
		{prefs.Tier1, TierOne},
		{prefs.Avoid, TierAvoided},
	} {
		for _, n := range group.names {
			if k := s.key(n); k != "" {
				s.tiers[k] = group.tier
			}
		}
	}

	// Longest name first; equal lengths resolve by the same precedence as
	// exact listings, then by name.
	for k := range s.tiers {
		s.listed = append(s.listed, k)
	}
	slices.SortFunc(s.listed, func(a, b string) int {
		if c := cmp.Compare(len(b), len(a)); c != 0 {
			return c
		}
		if c := cmp.Compare(tierPrecedence(s.tiers[b]), tierPrecedence(s.tiers[a])); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	return s
}

// tierPrecedence orders tiers the way overlapping listings override each
// other: avoided beats tier 1, which beats tier 2, which beats specialty.
func tierPrecedence(t SupplierTier) int {
	switch t {
	case TierAvoided:
		return 4
	case TierOne:
		return 3
	case TierTwo:
		return 2
	case TierSpecialty:
		return 1
	default:
		return 0
	}
}

// Preferences returns the effective preference table.
func (s *SupplierScorer) Preferences() SupplierPreferences { return s.prefs }

// key folds a supplier name for comparison. A Caser is stateful, so a fresh
// one is taken per call.
func (s *SupplierScorer) key(name string) string {
	return cases.Fold().String(strings.Join(strings.Fields(name), " "))
}

// TierOf returns the preference tier for a supplier name. An exact
// case-insensitive match wins; otherwise a listed name contained in the
// supplier name ("Mouser" in "Mouser Electronics") counts, the longest such
// name deciding.
func (s *SupplierScorer) TierOf(supplier string) SupplierTier {
	k := s.key(supplier)
	if k == "" {
		return TierUnlisted
	}
	if t, ok := s.tiers[k]; ok {
		return t
	}
	for _, name := range s.listed {
		if strings.Contains(k, name) {
			return s.tiers[name]
		}
	}
	return TierUnlisted
}

// Rank scores offers for quantity and returns them best first. Avoided
// suppliers are excluded; with StrictFilter, offers failing the MOQ or stock
// check are excluded too. Out-of-stock offers always sort after stocked ones.
func (s *SupplierScorer) Rank(offers []CatalogOffer, quantity int) []SupplierScore {
	type candidate struct {
		offer *CatalogOffer
		price *ResolvedPrice
		tier  SupplierTier
	}

	cands := make([]candidate, 0, len(offers))
	for i := range offers {
		tier := s.TierOf(offers[i].Supplier)
		if tier == TierAvoided {
			continue
		}
		cands = append(cands, candidate{
			offer: &offers[i],
			price: ResolvePrice(offers[i], quantity),
			tier:  tier,
		})
	}

	// Cheapest unit price among offers whose MOQ is acceptable, used to judge
	// whether a higher MOQ buys enough savings.
	var baseline *decimal.Decimal
	for _, c := range cands {
		if c.price == nil || c.offer.EffectiveMOQ() > s.prefs.MaxMOQ {
			continue
		}
		if baseline == nil || c.price.UnitPrice.LessThan(*baseline) {
			p := c.price.UnitPrice
			baseline = &p
		}
	}

	scores := make([]SupplierScore, 0, len(cands))
	for _, c := range cands {
		moq := c.offer.EffectiveMOQ()
		moqOK := moq <= s.prefs.MaxMOQ || s.higherMOQJustified(c.price, baseline)
		if s.prefs.StrictFilter && (!moqOK || !c.offer.Availability.Covers(quantity)) {
			continue
		}

		var reasons []string
		score := 0.0

		pt := s.priceTerm(c.price)
		score += pt
		if c.price != nil {
			reasons = append(reasons, fmt.Sprintf("unit %s %s (+%.1f)", c.price.UnitPrice.String(), c.price.Currency, pt))
		} else {
			reasons = append(reasons, "no pricing")
		}

		if tb := s.tierBonus(c.tier); tb != 0 {
			score += tb
			reasons = append(reasons, fmt.Sprintf("%s supplier (+%.0f)", c.tier, tb))
		}

		mt, mr := s.moqTerm(moq, moqOK)
		score += mt
		reasons = append(reasons, mr)

		st, sr := stockTerm(c.offer.Availability)
		score += st
		reasons = append(reasons, sr)

		scores = append(scores, SupplierScore{
			Offer:      c.offer,
			Price:      c.price,
			Score:      score,
			Tier:       c.tier,
			RankReason: strings.Join(reasons, "; "),
		})
	}

	slices.SortStableFunc(scores, compareScores)
	return scores
}

func compareScores(a, b SupplierScore) int {
	aOut, bOut := a.Offer.Availability.IsOutOfStock(), b.Offer.Availability.IsOutOfStock()
	if aOut != bOut {
		if aOut {
			return 1
		}
		return -1
	}
	if a.Score != b.Score {
		if a.Score > b.Score {
			return -1
		}
		return 1
	}
	switch {
	case a.Price != nil && b.Price != nil:
		if c := a.Price.UnitPrice.Cmp(b.Price.UnitPrice); c != 0 {
			return c
		}
	case a.Price != nil:
		return -1
	case b.Price != nil:
		return 1
	}
	if c := strings.Compare(a.Offer.Supplier, b.Offer.Supplier); c != 0 {
		return c
	}
	return strings.Compare(a.Offer.ProviderID, b.Offer.ProviderID)
}

// priceTerm is strictly decreasing in unit price: weight*100 at zero,
// halved at PriceReference.
func (s *SupplierScorer) priceTerm(p *ResolvedPrice) float64 {
	if p == nil {
		return 0
	}
	price := p.UnitPrice.InexactFloat64()
	if price < 0 {
		price = 0
	}
	ref := s.prefs.PriceReference
	return s.prefs.PriceWeight * 100 * ref / (ref + price)
}

func (s *SupplierScorer) tierBonus(t SupplierTier) float64 {
	switch t {
	case TierOne:
		return s.prefs.Tier1Bonus
	case TierTwo:
		return s.prefs.Tier2Bonus
	case TierSpecialty:
		return s.prefs.SpecialtyBonus
	default:
		return 0
	}
}

func (s *SupplierScorer) moqTerm(moq int, acceptable bool) (float64, string) {
	switch {
	case moq == 1:
		return s.prefs.MOQOneBonus, fmt.Sprintf("MOQ 1 (+%.0f)", s.prefs.MOQOneBonus)
	case moq <= s.prefs.MaxMOQ:
		return s.prefs.LowMOQBonus, fmt.Sprintf("MOQ %d (+%.0f)", moq, s.prefs.LowMOQBonus)
	case acceptable:
		return 0, fmt.Sprintf("MOQ %d accepted for savings", moq)
	default:
		return -s.prefs.HighMOQPenalty, fmt.Sprintf("MOQ %d above %d (-%.0f)", moq, s.prefs.MaxMOQ, s.prefs.HighMOQPenalty)
	}
}

func (s *SupplierScorer) higherMOQJustified(p *ResolvedPrice, baseline *decimal.Decimal) bool {
	if !s.prefs.AllowHigherMOQ || p == nil {
		return false
	}
	if baseline == nil {
		// Nothing with an acceptable MOQ is priced, so there is no alternative.
		return true
	}
	if !baseline.IsPositive() {
		return false
	}
	savings := baseline.Sub(p.UnitPrice).Div(*baseline).Mul(decimal.NewFromInt(100))
	return savings.GreaterThanOrEqual(decimal.NewFromFloat(s.prefs.HigherMOQSavingsPercent))
}

func stockTerm(a Availability) (float64, string) {
	if a.UnitsKnown {
		switch {
		case a.Units > 100:
			return stockAmpleBonus, fmt.Sprintf("stock %d (+%.0f)", a.Units, stockAmpleBonus)
		case a.Units >= 10:
			return stockModestBonus, fmt.Sprintf("stock %d (+%.0f)", a.Units, stockModestBonus)
		case a.Units > 0:
			return stockLowBonus, fmt.Sprintf("stock %d (+%.0f)", a.Units, stockLowBonus)
		default:
			return stockEmptyPenalty, fmt.Sprintf("out of stock (%.0f)", stockEmptyPenalty)
		}
	}
	switch a.Status {
	case InStock:
		return stockModestBonus, fmt.Sprintf("in stock (+%.0f)", stockModestBonus)
	case LowStock:
		return stockLowBonus, fmt.Sprintf("low stock (+%.0f)", stockLowBonus)
	case OutOfStock:
		return stockEmptyPenalty, fmt.Sprintf("out of stock (%.0f)", stockEmptyPenalty)
	default:
		return 0, "stock unknown"
	}
}
