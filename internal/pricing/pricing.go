// Package pricing recomputes order totals, delivery cost and gift
// eligibility. All functions are pure: callers pass the current parameter
// snapshot and persist the result inside their own transaction.
package pricing

import (
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

type DeliveryType string

const (
	DeliverySelf      DeliveryType = "self"             // self-pickup, always free
	DeliveryCourier   DeliveryType = "delivery_spb"     // courier within the city
	DeliveryPickup    DeliveryType = "delivery_cdekspb" // pickup point network
	DeliveryPostRu    DeliveryType = "delivery_ru"      // domestic post
	DeliveryPostWorld DeliveryType = "delivery_world"   // international post, never free
)

var validDeliveryTypes = map[DeliveryType]struct{}{
	DeliverySelf:      {},
	DeliveryCourier:   {},
	DeliveryPickup:    {},
	DeliveryPostRu:    {},
	DeliveryPostWorld: {},
}

func ValidDeliveryType(dt DeliveryType) bool {
	_, ok := validDeliveryTypes[dt]
	return ok
}

// Params is a snapshot of the parameter registry taken at computation time.
type Params struct {
	FreeDelivery decimal.Decimal
	FreeGift     decimal.Decimal
	CourierCost  decimal.Decimal
	PickupCost   decimal.Decimal
	PostRuCost   decimal.Decimal
	WorldCost    decimal.Decimal
}

// Line is one cart line as the engine sees it. UnitPrice is the discounted
// price when present, the list price otherwise.
type Line struct {
	ProductID int64
	Qty       int
	UnitPrice decimal.Decimal
}

// FinalPrice is the derived line total, never edited independently.
func (l Line) FinalPrice() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Qty)))
}

type Totals struct {
	Items        int
	Net          decimal.Decimal
	DeliveryCost decimal.Decimal
	Gross        decimal.Decimal
	Delivery     DeliveryType
	KeepGift     bool
}

// Compute derives the totals for an order. It is idempotent: repeated calls
// with the same inputs produce identical results.
//
// An empty order resets the delivery method and cost. A gift survives only
// while the net subtotal stays at or above the gift threshold; dropping below
// always strips it, and re-crossing requires the shopper to pick one again.
func Compute(lines []Line, delivery DeliveryType, hasGift bool, p Params) Totals {
	if len(lines) == 0 {
		return Totals{
			Net:          decimal.Zero,
			DeliveryCost: decimal.Zero,
			Gross:        decimal.Zero,
			Delivery:     "",
			KeepGift:     false,
		}
	}

	net := lo.Reduce(lines, func(acc decimal.Decimal, l Line, _ int) decimal.Decimal {
		return acc.Add(l.FinalPrice())
	}, decimal.Zero)

	items := lo.SumBy(lines, func(l Line) int { return l.Qty })

	cost := DeliveryCost(delivery, net, p)

	return Totals{
		Items:        items,
		Net:          net,
		DeliveryCost: cost,
		Gross:        net.Add(cost),
		Delivery:     delivery,
		KeepGift:     hasGift && net.GreaterThanOrEqual(p.FreeGift),
	}
}

// DeliveryCost is a pure function of the delivery method, the net subtotal
// and the configured per-method costs. Tiered methods become free at the
// free-delivery threshold; international delivery never does.
func DeliveryCost(delivery DeliveryType, net decimal.Decimal, p Params) decimal.Decimal {
	switch delivery {
	case DeliverySelf:
		return decimal.Zero
	case DeliveryCourier:
		return tiered(net, p.FreeDelivery, p.CourierCost)
	case DeliveryPickup:
		return tiered(net, p.FreeDelivery, p.PickupCost)
	case DeliveryPostRu:
		return tiered(net, p.FreeDelivery, p.PostRuCost)
	case DeliveryPostWorld:
		return p.WorldCost
	default:
		return decimal.Zero
	}
}

func tiered(net, threshold, cost decimal.Decimal) decimal.Decimal {
	if net.GreaterThanOrEqual(threshold) {
		return decimal.Zero
	}
	return cost
}

// Clamp limits a requested quantity to the available stock. Zero stock
// clamps to zero: the caller must not create a zero-quantity line.
func Clamp(requested, stock int) (qty int, clamped bool) {
	if stock < 0 {
		stock = 0
	}
	if requested > stock {
		return stock, true
	}
	return requested, false
}
