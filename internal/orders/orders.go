// Package orders owns the order aggregate: cart mutations, checkout, the
// status state machine and payment reconciliation. Every mutation runs in a
// transaction that locks the order row first, so concurrent requests (two
// browser tabs, a webhook racing a page load) serialize per order.
package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rudotcom/electron/internal/params"
	"github.com/rudotcom/electron/internal/pricing"
	"github.com/rudotcom/electron/pkg/logkey"
)

// Abandoned carts are purged this long after creation.
const staleCartAge = 48 * time.Hour

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrItemNotFound    = errors.New("order item not found")
	ErrPaymentNotFound = errors.New("no order for payment id")
	ErrEmptyCart       = errors.New("cart is empty")
	ErrAlreadyPaid     = errors.New("order is already paid")
	ErrGiftNotEligible = errors.New("order is not eligible for a gift")
)

type Conf struct {
	db     *sql.DB
	params *params.Conf
}

func NewConf(db *sql.DB, p *params.Conf) (*Conf, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if p == nil {
		return nil, fmt.Errorf("params conf is nil")
	}
	return &Conf{db: db, params: p}, nil
}

const orderColumns = `o.id, o.owner_id, COALESCE(c.user_id, ''), o.status,
	COALESCE(o.delivery_type, ''), COALESCE(o.payment_type, ''), COALESCE(o.payment_id, ''),
	COALESCE(o.payment_status, ''), o.paid_at, o.total_items, o.total_net, o.delivery_cost,
	o.total_gross, o.gift_product_id, COALESCE(o.first_name, ''), COALESCE(o.last_name, ''),
	COALESCE(o.patronymic, ''), COALESCE(o.email, ''), COALESCE(o.phone, ''),
	COALESCE(o.postal_code, ''), COALESCE(o.settlement, ''), COALESCE(o.address, ''),
	COALESCE(o.comment, ''), COALESCE(o.remark, ''), COALESCE(o.tracking_code, ''),
	o.created_at, o.shipped_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (Order, error) {
	var (
		o       Order
		ownerID sql.NullInt64
		gift    sql.NullInt64
	)

	err := row.Scan(&o.ID, &ownerID, &o.OwnerUserID, &o.Status,
		&o.Delivery, &o.PaymentType, &o.PaymentID,
		&o.PaymentStatus, &o.PaidAt, &o.TotalItems, &o.TotalNet, &o.DeliveryCost,
		&o.TotalGross, &gift, &o.FirstName, &o.LastName,
		&o.Patronymic, &o.Email, &o.Phone,
		&o.PostalCode, &o.Settlement, &o.Address,
		&o.Comment, &o.Remark, &o.TrackingCode,
		&o.CreatedAt, &o.ShippedAt)
	if err != nil {
		return Order{}, err
	}

	if ownerID.Valid {
		o.OwnerID = ownerID.Int64
	}
	if gift.Valid {
		id := gift.Int64
		o.GiftProductID = &id
	}
	return o, nil
}

// GetOrCreateCart returns the single open cart for a customer, creating a
// zeroed one when absent. On creation it kicks off the stale-cart sweep
// without blocking the current request.
func (c *Conf) GetOrCreateCart(ctx context.Context, customerID int64) (Order, error) {
	var (
		order   Order
		created bool
	)

	err := c.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		order, err = c.cartForUpdate(ctx, tx, customerID)
		if errors.Is(err, ErrOrderNotFound) {
			order, err = c.createCart(ctx, tx, customerID)
			created = err == nil
		}
		if err != nil {
			return err
		}

		order.Items, err = c.loadItems(ctx, tx, order.ID)
		return err
	})
	if err != nil {
		return Order{}, err
	}

	if created {
		go c.purgeStaleCarts()
	}
	return order, nil
}

// AddItem adds a product to the customer's cart, creating the cart and the
// line as needed. The requested quantity is clamped to available stock; with
// zero stock no line is created and the result only carries the message
// context. Totals are recomputed before the transaction commits.
func (c *Conf) AddItem(ctx context.Context, customerID, productID int64, qty int) (AddResult, error) {
	if qty <= 0 {
		qty = 1
	}

	var res AddResult
	err := c.withTx(ctx, func(tx *sql.Tx) error {
		order, err := c.cartForUpdate(ctx, tx, customerID)
		if errors.Is(err, ErrOrderNotFound) {
			order, err = c.createCart(ctx, tx, customerID)
		}
		if err != nil {
			return err
		}

		var (
			title string
			stock int
		)
		err = tx.QueryRowContext(ctx, `
			SELECT title, quantity FROM products WHERE id = $1
		`, productID).Scan(&title, &stock)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrItemNotFound
		}
		if err != nil {
			return fmt.Errorf("querying product %d: %w", productID, err)
		}
		res.ProductTitle = title

		var existing int
		err = tx.QueryRowContext(ctx, `
			SELECT qty FROM order_items WHERE order_id = $1 AND product_id = $2
		`, order.ID, productID).Scan(&existing)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			newQty, clamped := pricing.Clamp(qty, stock)
			res.Qty, res.Clamped = newQty, clamped
			if newQty == 0 {
				// out of stock: show the message, do not create a zero line
				break
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO order_items (order_id, product_id, qty, final_price)
				VALUES ($1, $2, $3, (SELECT COALESCE(price_discount, price) * $3 FROM products WHERE id = $2))
			`, order.ID, productID, newQty)
			if err != nil {
				return fmt.Errorf("inserting order item: %w", err)
			}
			res.Created = true
		case err != nil:
			return fmt.Errorf("querying order item: %w", err)
		default:
			newQty, clamped := pricing.Clamp(existing+qty, stock)
			res.Qty, res.Clamped = newQty, clamped
			if newQty == 0 {
				break
			}
			_, err = tx.ExecContext(ctx, `
				UPDATE order_items
				SET qty = $1,
				    final_price = (SELECT COALESCE(price_discount, price) * $1 FROM products WHERE id = $2)
				WHERE order_id = $3 AND product_id = $2
			`, newQty, productID, order.ID)
			if err != nil {
				return fmt.Errorf("updating order item qty: %w", err)
			}
		}

		res.Order, err = c.recompute(ctx, tx, order.ID)
		return err
	})
	if err != nil {
		return AddResult{}, err
	}
	return res, nil
}

// SetItemQuantity changes a line's quantity in place, clamping to stock.
// Zero (or clamped-to-zero) removes the line.
func (c *Conf) SetItemQuantity(ctx context.Context, customerID, productID int64, qty int) (AddResult, error) {
	var res AddResult
	err := c.withTx(ctx, func(tx *sql.Tx) error {
		order, err := c.cartForUpdate(ctx, tx, customerID)
		if err != nil {
			return err
		}

		var (
			title string
			stock int
		)
		err = tx.QueryRowContext(ctx, `
			SELECT p.title, p.quantity
			FROM order_items oi
			JOIN products p ON p.id = oi.product_id
			WHERE oi.order_id = $1 AND oi.product_id = $2
		`, order.ID, productID).Scan(&title, &stock)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrItemNotFound
		}
		if err != nil {
			return fmt.Errorf("querying order item: %w", err)
		}
		res.ProductTitle = title

		newQty, clamped := pricing.Clamp(qty, stock)
		res.Qty, res.Clamped = newQty, clamped

		if newQty == 0 {
			_, err = tx.ExecContext(ctx, `
				DELETE FROM order_items WHERE order_id = $1 AND product_id = $2
			`, order.ID, productID)
		} else {
			_, err = tx.ExecContext(ctx, `
				UPDATE order_items
				SET qty = $1,
				    final_price = (SELECT COALESCE(price_discount, price) * $1 FROM products WHERE id = $2)
				WHERE order_id = $3 AND product_id = $2
			`, newQty, productID, order.ID)
		}
		if err != nil {
			return fmt.Errorf("changing order item qty: %w", err)
		}

		res.Order, err = c.recompute(ctx, tx, order.ID)
		return err
	})
	if err != nil {
		return AddResult{}, err
	}
	return res, nil
}

// RemoveItem deletes a line from the cart.
func (c *Conf) RemoveItem(ctx context.Context, customerID, productID int64) (AddResult, error) {
	var res AddResult
	err := c.withTx(ctx, func(tx *sql.Tx) error {
		order, err := c.cartForUpdate(ctx, tx, customerID)
		if err != nil {
			return err
		}

		err = tx.QueryRowContext(ctx, `
			DELETE FROM order_items oi
			USING products p
			WHERE oi.order_id = $1 AND oi.product_id = $2 AND p.id = oi.product_id
			RETURNING p.title
		`, order.ID, productID).Scan(&res.ProductTitle)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrItemNotFound
		}
		if err != nil {
			return fmt.Errorf("deleting order item: %w", err)
		}

		res.Order, err = c.recompute(ctx, tx, order.ID)
		return err
	})
	if err != nil {
		return AddResult{}, err
	}
	return res, nil
}

// SelectGift attaches a gift product to the cart. The shopper picks the
// gift explicitly; it must be gift-flagged, in stock, and the subtotal must
// be at or above the gift threshold.
func (c *Conf) SelectGift(ctx context.Context, customerID, productID int64) (Order, error) {
	var order Order
	err := c.withTx(ctx, func(tx *sql.Tx) error {
		cart, err := c.cartForUpdate(ctx, tx, customerID)
		if err != nil {
			return err
		}

		var (
			isGift bool
			stock  int
		)
		err = tx.QueryRowContext(ctx, `
			SELECT gift, quantity FROM products WHERE id = $1
		`, productID).Scan(&isGift, &stock)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrItemNotFound
		}
		if err != nil {
			return fmt.Errorf("querying gift product: %w", err)
		}

		if !isGift || stock == 0 {
			return ErrGiftNotEligible
		}

		p, err := c.params.Snapshot(ctx)
		if err != nil {
			return err
		}
		if cart.TotalNet.LessThan(p.FreeGift) {
			return ErrGiftNotEligible
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE orders SET gift_product_id = $1 WHERE id = $2
		`, productID, cart.ID); err != nil {
			return fmt.Errorf("attaching gift: %w", err)
		}

		order, err = c.recompute(ctx, tx, cart.ID)
		return err
	})
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

// SetDeliveryType stores the chosen delivery method on the cart and reprices.
func (c *Conf) SetDeliveryType(ctx context.Context, customerID int64, dt pricing.DeliveryType) (Order, error) {
	if !pricing.ValidDeliveryType(dt) {
		return Order{}, fmt.Errorf("unknown delivery type %q", dt)
	}

	var order Order
	err := c.withTx(ctx, func(tx *sql.Tx) error {
		cart, err := c.cartForUpdate(ctx, tx, customerID)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE orders SET delivery_type = $1 WHERE id = $2
		`, string(dt), cart.ID); err != nil {
			return fmt.Errorf("setting delivery type: %w", err)
		}

		order, err = c.recompute(ctx, tx, cart.ID)
		return err
	})
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

// cartForUpdate locks and returns the customer's open cart.
func (c *Conf) cartForUpdate(ctx context.Context, tx *sql.Tx, customerID int64) (Order, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders o
		LEFT JOIN customers c ON c.id = o.owner_id
		WHERE o.owner_id = $1 AND o.status = 'cart'
		FOR UPDATE OF o
	`, customerID)

	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("querying cart: %w", err)
	}
	return order, nil
}

// createCart inserts the customer's open cart. Concurrent first requests
// race here: the partial unique index on (owner_id) WHERE status = 'cart'
// makes exactly one insert win, and the loser re-selects the winner's row
// once its lock is released.
func (c *Conf) createCart(ctx context.Context, tx *sql.Tx, customerID int64) (Order, error) {
	var id int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO orders (owner_id, status) VALUES ($1, 'cart')
		ON CONFLICT (owner_id) WHERE status = 'cart' DO NOTHING
		RETURNING id
	`, customerID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return c.cartForUpdate(ctx, tx, customerID)
	}
	if err != nil {
		return Order{}, fmt.Errorf("creating cart: %w", err)
	}
	return c.orderForUpdate(ctx, tx, id)
}

// orderForUpdate locks and returns an order by id.
func (c *Conf) orderForUpdate(ctx context.Context, tx *sql.Tx, orderID int64) (Order, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders o
		LEFT JOIN customers c ON c.id = o.owner_id
		WHERE o.id = $1
		FOR UPDATE OF o
	`, orderID)

	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("querying order %d: %w", orderID, err)
	}
	return order, nil
}

func (c *Conf) loadItems(ctx context.Context, tx *sql.Tx, orderID int64) ([]Item, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT oi.id, oi.order_id, oi.product_id, p.title, oi.qty,
		       COALESCE(p.price_discount, p.price), oi.final_price, p.quantity
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = $1
		ORDER BY oi.id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("querying order items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Title, &it.Qty,
			&it.UnitPrice, &it.FinalPrice, &it.Stock); err != nil {
			return nil, fmt.Errorf("scanning order item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating order items: %w", err)
	}
	return items, nil
}

// recompute reprices the order inside the caller's transaction: subtotal,
// delivery cost, gross total, gift retention. It must run before any totals
// are served or any payment step reads them.
func (c *Conf) recompute(ctx context.Context, tx *sql.Tx, orderID int64) (Order, error) {
	order, err := c.orderForUpdate(ctx, tx, orderID)
	if err != nil {
		return Order{}, err
	}

	items, err := c.loadItems(ctx, tx, orderID)
	if err != nil {
		return Order{}, err
	}

	p, err := c.params.Snapshot(ctx)
	if err != nil {
		return Order{}, err
	}

	lines := make([]pricing.Line, 0, len(items))
	for _, it := range items {
		lines = append(lines, pricing.Line{ProductID: it.ProductID, Qty: it.Qty, UnitPrice: it.UnitPrice})
	}

	totals := pricing.Compute(lines, order.Delivery, order.GiftProductID != nil, p)

	var delivery any
	if totals.Delivery != "" {
		delivery = string(totals.Delivery)
	}
	var gift any
	if totals.KeepGift {
		gift = *order.GiftProductID
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE orders
		SET total_items = $1, total_net = $2, delivery_cost = $3, total_gross = $4,
		    delivery_type = $5, gift_product_id = $6
		WHERE id = $7
	`, totals.Items, totals.Net, totals.DeliveryCost, totals.Gross, delivery, gift, orderID)
	if err != nil {
		return Order{}, fmt.Errorf("saving totals: %w", err)
	}

	order.TotalItems = totals.Items
	order.TotalNet = totals.Net
	order.DeliveryCost = totals.DeliveryCost
	order.TotalGross = totals.Gross
	order.Delivery = totals.Delivery
	if !totals.KeepGift {
		order.GiftProductID = nil
	}
	order.Items = items
	return order, nil
}

// purgeStaleCarts removes carts older than two days, any customer. Runs in
// the background on cart creation; errors are logged, never surfaced.
func (c *Conf) purgeStaleCarts() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	res, err := c.db.ExecContext(ctx, `
		DELETE FROM orders WHERE status = 'cart' AND created_at <= NOW() - make_interval(secs => $1)
	`, staleCartAge.Seconds())
	if err != nil {
		slog.Error("stale cart purge failed", slog.String(logkey.ERROR, err.Error()))
		return
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		slog.Info("purged stale carts", slog.Int64("count", n))
	}
}

func (c *Conf) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if er := tx.Rollback(); er != nil && !errors.Is(er, sql.ErrTxDone) {
			return fmt.Errorf("failed to rollback withTx: %w", err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit withTx: %w", err)
	}
	return nil
}
