package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rudotcom/electron/internal/checkout"
	"github.com/rudotcom/electron/internal/pricing"
)

// PlaceOrder turns the customer's cart into a placed order: contact fields
// are written from the validated checkout form, totals are recomputed one
// last time with the chosen delivery method, and the status moves cart->new.
// The placed order leaves the cart state, so the next add-to-cart starts
// a fresh cart.
func (c *Conf) PlaceOrder(ctx context.Context, customerID int64, form checkout.Form) (Order, error) {
	var order Order
	err := c.withTx(ctx, func(tx *sql.Tx) error {
		cart, err := c.cartForUpdate(ctx, tx, customerID)
		if err != nil {
			return err
		}

		items, err := c.loadItems(ctx, tx, cart.ID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return ErrEmptyCart
		}

		if !cart.Status.CanTransition(StatusNew) {
			return ErrInvalidTransition
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE orders
			SET delivery_type = $1, payment_type = $2, first_name = $3, last_name = $4,
			    patronymic = $5, email = $6, phone = $7, postal_code = $8, settlement = $9,
			    address = $10, comment = $11
			WHERE id = $12
		`, string(form.DeliveryType), form.PaymentType, form.FirstName, form.LastName,
			form.Patronymic, form.Email, form.Phone, form.PostalCode, form.Settlement,
			form.Address, form.Comment, cart.ID)
		if err != nil {
			return fmt.Errorf("writing checkout fields: %w", err)
		}

		order, err = c.recompute(ctx, tx, cart.ID)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE orders SET status = 'new' WHERE id = $1
		`, cart.ID); err != nil {
			return fmt.Errorf("placing order: %w", err)
		}
		order.Status = StatusNew
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

// GetOrder loads an order with its items. Ownership checks are the
// caller's job: handlers compare the owner against the resolved identity.
func (c *Conf) GetOrder(ctx context.Context, orderID int64) (Order, error) {
	var order Order
	err := c.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT `+orderColumns+`
			FROM orders o
			LEFT JOIN customers c ON c.id = o.owner_id
			WHERE o.id = $1
		`, orderID)

		var err error
		order, err = scanOrder(row)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrOrderNotFound
		}
		if err != nil {
			return fmt.Errorf("querying order %d: %w", orderID, err)
		}

		order.Items, err = c.loadItems(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

// ListByUser returns a user's placed orders, newest first. Carts are not
// part of the history.
func (c *Conf) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders o
		JOIN customers c ON c.id = o.owner_id
		WHERE c.user_id = $1 AND o.status <> 'cart'
		ORDER BY o.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying orders by user: %w", err)
	}
	defer rows.Close()

	var result []Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning order: %w", err)
		}
		result = append(result, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating orders: %w", err)
	}
	return result, nil
}

// ReviewForPayment re-validates the order against current stock right
// before a payment session is created: stock may have changed since the
// items were added. Oversold lines are clamped (zero stock removes the
// line), an out-of-stock gift is stripped, and totals are recomputed. The
// order is ready for payment only when nothing had to change.
func (c *Conf) ReviewForPayment(ctx context.Context, orderID int64) (ReviewResult, error) {
	var res ReviewResult
	err := c.withTx(ctx, func(tx *sql.Tx) error {
		order, err := c.orderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}

		if order.Status != StatusNew {
			return ErrInvalidTransition
		}
		if order.PaymentStatus == PaymentSucceeded {
			return ErrAlreadyPaid
		}

		items, err := c.loadItems(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return ErrEmptyCart
		}

		remaining := len(items)
		for _, it := range items {
			newQty, clamped := pricing.Clamp(it.Qty, it.Stock)
			if !clamped {
				continue
			}
			res.Adjustments = append(res.Adjustments, Adjustment{ProductTitle: it.Title, NewQty: newQty})

			if newQty == 0 {
				remaining--
				_, err = tx.ExecContext(ctx, `
					DELETE FROM order_items WHERE order_id = $1 AND product_id = $2
				`, orderID, it.ProductID)
			} else {
				_, err = tx.ExecContext(ctx, `
					UPDATE order_items
					SET qty = $1,
					    final_price = (SELECT COALESCE(price_discount, price) * $1 FROM products WHERE id = $2)
					WHERE order_id = $3 AND product_id = $2
				`, newQty, it.ProductID, orderID)
			}
			if err != nil {
				return fmt.Errorf("clamping order item: %w", err)
			}
		}

		// clamping can empty the order entirely, and an empty order must
		// not reach the payment processor
		if remaining == 0 {
			return ErrEmptyCart
		}

		if order.GiftProductID != nil {
			var stock int
			var title string
			err = tx.QueryRowContext(ctx, `
				SELECT quantity, title FROM products WHERE id = $1
			`, *order.GiftProductID).Scan(&stock, &title)
			if err != nil {
				return fmt.Errorf("querying gift stock: %w", err)
			}
			if stock == 0 {
				if _, err := tx.ExecContext(ctx, `
					UPDATE orders SET gift_product_id = NULL WHERE id = $1
				`, orderID); err != nil {
					return fmt.Errorf("stripping gift: %w", err)
				}
				res.Adjustments = append(res.Adjustments, Adjustment{ProductTitle: title, GiftRemoved: true})
			}
		}

		res.Order, err = c.recompute(ctx, tx, orderID)
		if err != nil {
			return err
		}

		res.Ready = len(res.Adjustments) == 0
		return nil
	})
	if err != nil {
		return ReviewResult{}, err
	}
	return res, nil
}

// AttachPayment stores the payment session id issued by the processor and
// marks the payment pending.
func (c *Conf) AttachPayment(ctx context.Context, orderID int64, paymentID string) error {
	return c.withTx(ctx, func(tx *sql.Tx) error {
		order, err := c.orderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.PaymentStatus == PaymentSucceeded {
			return ErrAlreadyPaid
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE orders SET payment_id = $1, payment_status = $2 WHERE id = $3
		`, paymentID, string(PaymentPending), orderID); err != nil {
			return fmt.Errorf("attaching payment: %w", err)
		}
		return nil
	})
}

// RegisterPayment applies an asynchronous payment-status notification. It
// is idempotent: once the stored payment status is succeeded, any further
// event for the same payment is a no-op (Applied=false) — no second stock
// decrement, no duplicate notifications. On the first transition into
// succeeded, stock is decremented inside the same transaction as the status
// write, so retried webhook deliveries cannot decrement twice. A success
// for an order that can no longer become paid records the capture without
// changing the order.
func (c *Conf) RegisterPayment(ctx context.Context, paymentID string, status PaymentStatus, occurredAt time.Time) (PaymentResult, error) {
	var res PaymentResult
	err := c.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT `+orderColumns+`
			FROM orders o
			LEFT JOIN customers c ON c.id = o.owner_id
			WHERE o.payment_id = $1
			FOR UPDATE OF o
		`, paymentID)

		order, err := scanOrder(row)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrPaymentNotFound
		}
		if err != nil {
			return fmt.Errorf("querying order by payment id: %w", err)
		}

		if order.PaymentStatus == PaymentSucceeded {
			res.Order = order
			res.Applied = false
			return nil
		}

		if status != PaymentSucceeded {
			if _, err := tx.ExecContext(ctx, `
				UPDATE orders SET payment_status = $1 WHERE id = $2
			`, string(status), order.ID); err != nil {
				return fmt.Errorf("recording payment status: %w", err)
			}
			order.PaymentStatus = status
			res.Order = order
			res.Applied = true
			return nil
		}

		// a success arriving after the order left the payable states (an
		// operator canceled it while the checkout session was still open)
		// must not resurrect the order or touch stock. The capture is
		// recorded so the back office can reconcile and refund.
		if !order.Status.CanTransition(StatusPaid) {
			paidAt := occurredAt.UTC()
			if _, err := tx.ExecContext(ctx, `
				UPDATE orders SET payment_status = $1, paid_at = $2 WHERE id = $3
			`, string(PaymentSucceeded), paidAt, order.ID); err != nil {
				return fmt.Errorf("recording late payment: %w", err)
			}
			order.PaymentStatus = PaymentSucceeded
			order.PaidAt = &paidAt
			res.Order = order
			res.Applied = false
			return nil
		}

		items, err := c.loadItems(ctx, tx, order.ID)
		if err != nil {
			return err
		}

		for _, it := range items {
			if _, err := tx.ExecContext(ctx, `
				UPDATE products SET quantity = GREATEST(quantity - $1, 0) WHERE id = $2
			`, it.Qty, it.ProductID); err != nil {
				return fmt.Errorf("decrementing stock for product %d: %w", it.ProductID, err)
			}
		}
		if order.GiftProductID != nil {
			if _, err := tx.ExecContext(ctx, `
				UPDATE products SET quantity = GREATEST(quantity - 1, 0) WHERE id = $1
			`, *order.GiftProductID); err != nil {
				return fmt.Errorf("decrementing gift stock: %w", err)
			}
		}

		paidAt := occurredAt.UTC()
		if _, err := tx.ExecContext(ctx, `
			UPDATE orders SET payment_status = $1, paid_at = $2, status = 'paid' WHERE id = $3
		`, string(PaymentSucceeded), paidAt, order.ID); err != nil {
			return fmt.Errorf("recording payment success: %w", err)
		}

		order.PaymentStatus = PaymentSucceeded
		order.PaidAt = &paidAt
		order.Status = StatusPaid
		order.Items = items
		res.Order = order
		res.Applied = true
		return nil
	})
	if err != nil {
		return PaymentResult{}, err
	}
	return res, nil
}

// Advance performs an operator-driven status transition. Shipping stamps
// the tracking code and timestamp; the remark, when given, is stored in the
// back-office-only field. Cancel/return of a paid order does not restock
// automatically — restock is a manual back-office action noted in the remark.
func (c *Conf) Advance(ctx context.Context, orderID int64, next Status, trackingCode, remark string) (Order, error) {
	var order Order
	err := c.withTx(ctx, func(tx *sql.Tx) error {
		current, err := c.orderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}

		if !current.Status.CanTransition(next) {
			return ErrInvalidTransition
		}

		var shippedAt any
		if next == StatusShipped {
			shippedAt = time.Now().UTC()
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE orders
			SET status = $1,
			    tracking_code = COALESCE(NULLIF($2, ''), tracking_code),
			    remark = COALESCE(NULLIF($3, ''), remark),
			    shipped_at = COALESCE($4::timestamptz, shipped_at)
			WHERE id = $5
		`, string(next), trackingCode, remark, shippedAt, orderID)
		if err != nil {
			return fmt.Errorf("advancing order: %w", err)
		}

		order, err = c.orderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		order.Items, err = c.loadItems(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return Order{}, err
	}
	return order, nil
}
