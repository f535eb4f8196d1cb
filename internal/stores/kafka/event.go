package kafka

import "time"

const (
	TopicOrderPlaced = `store-service.order-placed`
	TopicOrderPaid   = `store-service.order-paid`
	TopicOpsChannel  = `store-service.ops-notifications`
)

// OrderPaidEvent is produced once per line item when a payment is captured,
// so downstream consumers can track what actually sold.
type OrderPaidEvent struct {
	OrderId   int64     `json:"order_id"`
	ProductId int64     `json:"product_id"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
}

// OrderPlacedEvent is produced when a cart becomes an order.
type OrderPlacedEvent struct {
	OrderId      int64     `json:"order_id"`
	TotalGross   string    `json:"total_gross"`
	DeliveryType string    `json:"delivery_type"`
	CreatedAt    time.Time `json:"created_at"`
}

// OpsMessage is a human-readable broadcast for the operations channel.
type OpsMessage struct {
	Subject   string    `json:"subject"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}
