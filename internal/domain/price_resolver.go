package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ResolvedPrice is the outcome of applying a price list to a quantity.
type ResolvedPrice struct {
	// Quantity is the number of units priced. It equals the break's minimum
	// when the minimum order quantity exceeds the request.
	Quantity int `json:"quantity"`

	// RequestedQuantity is the quantity the caller asked for.
	RequestedQuantity int `json:"requested_quantity"`

	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Currency   string          `json:"currency"`

	// BreakQuantity is the MinQuantity of the tier that was applied.
	BreakQuantity int `json:"break_quantity"`

	// MOQApplied is set when the request was below every tier.
	MOQApplied bool `json:"moq_applied,omitempty"`

	Note string `json:"note,omitempty"`
}

// ResolvePrice picks the tier that applies to quantity and computes the
// unit and extended price.
//
// The applicable tier is the one with the largest MinQuantity not above
// quantity. When quantity is below every tier, the smallest tier is used and
// the total covers that tier's minimum instead of the request. It returns nil
// when the offer has no usable price breaks or quantity is not positive.
func ResolvePrice(offer CatalogOffer, quantity int) *ResolvedPrice {
	if quantity <= 0 {
		return nil
	}
	breaks := NormalizePriceBreaks(offer.PriceBreaks)
	if len(breaks) == 0 {
		return nil
	}

	var chosen *PriceBreak
	for i := range breaks {
		if breaks[i].MinQuantity > quantity {
			break
		}
		chosen = &breaks[i]
	}

	if chosen == nil {
		smallest := breaks[0]
		return &ResolvedPrice{
			Quantity:          smallest.MinQuantity,
			RequestedQuantity: quantity,
			UnitPrice:         smallest.UnitPrice,
			TotalPrice:        smallest.UnitPrice.Mul(decimal.NewFromInt(int64(smallest.MinQuantity))),
			Currency:          smallest.Currency,
			BreakQuantity:     smallest.MinQuantity,
			MOQApplied:        true,
			Note:              fmt.Sprintf("Minimum order quantity: %d", smallest.MinQuantity),
		}
	}

	return &ResolvedPrice{
		Quantity:          quantity,
		RequestedQuantity: quantity,
		UnitPrice:         chosen.UnitPrice,
		TotalPrice:        chosen.UnitPrice.Mul(decimal.NewFromInt(int64(quantity))),
		Currency:          chosen.Currency,
		BreakQuantity:     chosen.MinQuantity,
	}
}
