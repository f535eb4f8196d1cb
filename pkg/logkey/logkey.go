package logkey

// Keys used for structured logging across the service.
const (
	TraceID    = "trace_id"
	ERROR      = "error"
	OrderID    = "order_id"
	CustomerID = "customer_id"
	ProductID  = "product_id"
	PaymentID  = "payment_id"
)
