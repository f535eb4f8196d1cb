// Package params reads the mutable parameter registry: delivery costs and
// the free-delivery/gift thresholds. Values are read at computation time so
// that back-office edits take effect without a restart.
package params

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rudotcom/electron/internal/pricing"
)

const (
	FreeDelivery        = "FREE_DELIVERY"
	FreeGift            = "FREE_GIFT"
	DeliveryCourierCost = "DELIVERY_COURIER_COST"
	DeliveryCdekCost    = "DELIVERY_CDEK_COST"
	DeliveryRuCost      = "DELIVERY_RU_COST"
	DeliveryWorldCost   = "DELIVERY_WORLD_COST"
)

type Conf struct {
	db *sql.DB
}

func NewConf(db *sql.DB) (*Conf, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	return &Conf{db: db}, nil
}

// Snapshot loads the pricing parameters in one query. Missing rows keep
// their zero value so a half-seeded registry degrades to free delivery
// rather than failing checkout.
func (c *Conf) Snapshot(ctx context.Context) (pricing.Params, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT name, value FROM parameters`)
	if err != nil {
		return pricing.Params{}, fmt.Errorf("querying parameters: %w", err)
	}
	defer rows.Close()

	var p pricing.Params
	for rows.Next() {
		var (
			name  string
			value decimal.Decimal
		)
		if err := rows.Scan(&name, &value); err != nil {
			return pricing.Params{}, fmt.Errorf("scanning parameter: %w", err)
		}

		switch name {
		case FreeDelivery:
			p.FreeDelivery = value
		case FreeGift:
			p.FreeGift = value
		case DeliveryCourierCost:
			p.CourierCost = value
		case DeliveryCdekCost:
			p.PickupCost = value
		case DeliveryRuCost:
			p.PostRuCost = value
		case DeliveryWorldCost:
			p.WorldCost = value
		}
	}
	if err := rows.Err(); err != nil {
		return pricing.Params{}, fmt.Errorf("iterating parameters: %w", err)
	}

	return p, nil
}

// Set updates a single parameter, creating it if absent.
func (c *Conf) Set(ctx context.Context, name string, value decimal.Decimal) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO parameters (name, value)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value
	`, name, value)
	if err != nil {
		return fmt.Errorf("setting parameter %s: %w", name, err)
	}
	return nil
}
