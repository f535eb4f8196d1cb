package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rudotcom/electron/internal/pricing"
)

// Order is the central aggregate: a cart while the shopper is building it,
// an order from checkout on. Totals are always derived by the pricing
// engine, never edited directly.
type Order struct {
	ID          int64                `json:"id"`
	OwnerID     int64                `json:"-"`
	OwnerUserID string               `json:"-"` // linked user of the owning customer, joined on read
	Status      Status               `json:"status"`
	Delivery    pricing.DeliveryType `json:"delivery_type,omitempty"`
	PaymentType string               `json:"payment_type,omitempty"`

	PaymentID     string        `json:"-"`
	PaymentStatus PaymentStatus `json:"payment_status,omitempty"`
	PaidAt        *time.Time    `json:"paid_at,omitempty"`

	TotalItems   int             `json:"total_items"`
	TotalNet     decimal.Decimal `json:"total_net"`
	DeliveryCost decimal.Decimal `json:"delivery_cost"`
	TotalGross   decimal.Decimal `json:"total_gross"`

	GiftProductID *int64 `json:"gift_product_id,omitempty"`

	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	Patronymic string `json:"patronymic,omitempty"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Settlement string `json:"settlement,omitempty"`
	Address    string `json:"address,omitempty"`
	Comment    string `json:"comment,omitempty"`
	Remark     string `json:"-"` // back-office only, never shown to the shopper

	TrackingCode string     `json:"tracking_code,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ShippedAt    *time.Time `json:"shipped_at,omitempty"`

	Items []Item `json:"items"`
}

// Item is one product's presence in one order: unique per (order, product),
// final price derived as qty x unit price.
type Item struct {
	ID         int64           `json:"-"`
	OrderID    int64           `json:"-"`
	ProductID  int64           `json:"product_id"`
	Title      string          `json:"title"`
	Qty        int             `json:"qty"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	FinalPrice decimal.Decimal `json:"final_price"`
	Stock      int             `json:"-"` // product stock at read time
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentCanceled  PaymentStatus = "canceled"
	PaymentFailed    PaymentStatus = "failed"
)

// AddResult reports what a cart mutation actually did, so the handler can
// build the shopper-visible message.
type AddResult struct {
	Order        Order
	ProductTitle string
	Qty          int
	Created      bool
	Clamped      bool
}

// Adjustment is a line clamped (or a gift stripped) by the pre-payment
// stock re-check.
type Adjustment struct {
	ProductTitle string
	NewQty       int
	GiftRemoved  bool
}

// ReviewResult is the outcome of the payment-initiation stock re-check.
// Ready is false when any line was clamped or the gift was stripped; payment
// must not be initiated in that case.
type ReviewResult struct {
	Order       Order
	Adjustments []Adjustment
	Ready       bool
}

// PaymentResult reports whether a webhook event actually changed the order.
// Applied is false for duplicate deliveries of an already-settled payment.
type PaymentResult struct {
	Order   Order
	Applied bool
}
