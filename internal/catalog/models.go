package catalog

import "github.com/shopspring/decimal"

type Product struct {
	ID            int64            `json:"id"`
	Title         string           `json:"title"`
	Price         decimal.Decimal  `json:"price"`
	PriceDiscount *decimal.Decimal `json:"price_discount,omitempty"`
	Quantity      int              `json:"quantity"` // available stock
	Gift          bool             `json:"gift"`     // eligible as a promotional gift
	Display       bool             `json:"display"`
}

// UnitPrice is the discounted price when present, the list price otherwise.
func (p Product) UnitPrice() decimal.Decimal {
	if p.PriceDiscount != nil && p.PriceDiscount.IsPositive() {
		return *p.PriceDiscount
	}
	return p.Price
}
