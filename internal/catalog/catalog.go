// Package catalog is the read side of the product catalog. The order core
// never mutates products except for the stock decrement at payment capture,
// which lives in the orders package inside the payment transaction.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var ErrProductNotFound = errors.New("product not found")

type Conf struct {
	db *sql.DB
}

func NewConf(db *sql.DB) (*Conf, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	return &Conf{db: db}, nil
}

func (c *Conf) GetProduct(ctx context.Context, productID int64) (Product, error) {
	var p Product

	err := c.db.QueryRowContext(ctx, `
		SELECT id, title, price, price_discount, quantity, gift, display
		FROM products
		WHERE id = $1
	`, productID).Scan(&p.ID, &p.Title, &p.Price, &p.PriceDiscount, &p.Quantity, &p.Gift, &p.Display)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, fmt.Errorf("querying product %d: %w", productID, err)
	}

	return p, nil
}

// GiftProducts lists the products a shopper may pick as a promotional gift.
func (c *Conf) GiftProducts(ctx context.Context) ([]Product, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, title, price, price_discount, quantity, gift, display
		FROM products
		WHERE gift = TRUE AND display = TRUE
		ORDER BY title
	`)
	if err != nil {
		return nil, fmt.Errorf("querying gift products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Title, &p.Price, &p.PriceDiscount, &p.Quantity, &p.Gift, &p.Display); err != nil {
			return nil, fmt.Errorf("scanning gift product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating gift products: %w", err)
	}

	return products, nil
}
