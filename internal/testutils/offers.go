package testutils

import (
	"github.com/shopspring/decimal"

	"github.com/ahrav/go-bomcheck/internal/domain"
)

// OfferOption adjusts an offer built by NewOffer.
type OfferOption func(*domain.CatalogOffer)

// NewOffer builds an in-stock USD offer for tests.
func NewOffer(supplier, mpn string, opts ...OfferOption) domain.CatalogOffer {
	o := domain.CatalogOffer{
		Supplier:               supplier,
		SupplierPartNumber:     supplier + "-" + mpn,
		ManufacturerPartNumber: mpn,
		Manufacturer:           "Acme",
		Availability:           domain.UnitsInStock(1000),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Break builds a USD price break from a decimal string.
func Break(minQty int, price string) domain.PriceBreak {
	return domain.PriceBreak{
		MinQuantity: minQty,
		UnitPrice:   decimal.RequireFromString(price),
		Currency:    "USD",
	}
}

// WithBreaks sets the price list.
func WithBreaks(breaks ...domain.PriceBreak) OfferOption {
	return func(o *domain.CatalogOffer) { o.PriceBreaks = breaks }
}

// WithPrice sets a single break at quantity one.
func WithPrice(price string) OfferOption {
	return WithBreaks(Break(1, price))
}

// WithStock sets an exact stock count.
func WithStock(units int) OfferOption {
	return func(o *domain.CatalogOffer) { o.Availability = domain.UnitsInStock(units) }
}

// WithMOQ sets the minimum order quantity.
func WithMOQ(moq int) OfferOption {
	return func(o *domain.CatalogOffer) { o.MinOrderQty = moq }
}

// WithManufacturer sets the manufacturer name.
func WithManufacturer(name string) OfferOption {
	return func(o *domain.CatalogOffer) { o.Manufacturer = name }
}

// WithProvider sets the provider id.
func WithProvider(id string) OfferOption {
	return func(o *domain.CatalogOffer) { o.ProviderID = id }
}

// Query builds a PartQuery for tests.
func Query(mpn string, quantity int) domain.PartQuery {
	return domain.PartQuery{
		ManufacturerPartNumber: mpn,
		Manufacturer:           "Acme",
		RequestedQuantity:      quantity,
	}
}
