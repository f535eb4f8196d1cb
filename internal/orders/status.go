package orders

import "errors"

type Status string

// Order lifecycle. A cart becomes an order at checkout; payment moves it to
// paid; the rest are operator-driven fulfillment steps.
const (
	StatusCart       Status = "cart"
	StatusNew        Status = "new"
	StatusPaid       Status = "paid"
	StatusInProgress Status = "in_progress"
	StatusReady      Status = "is_ready"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusReceived   Status = "received"
	StatusCanceled   Status = "canceled"
	StatusReturn     Status = "return"
)

var ErrInvalidTransition = errors.New("invalid order status transition")

// transitions lists the legal forward moves. canceled and return are also
// reachable from every non-terminal status except cart (a cart is deleted,
// not canceled) and are added in CanTransition.
var transitions = map[Status][]Status{
	StatusCart:       {StatusNew},
	StatusNew:        {StatusPaid},
	StatusPaid:       {StatusInProgress},
	StatusInProgress: {StatusReady},
	StatusReady:      {StatusShipped},
	StatusShipped:    {StatusDelivered, StatusReceived},
	StatusDelivered:  {StatusReceived},
}

func ToStatus(s string) (Status, error) {
	status := Status(s)
	switch status {
	case StatusCart, StatusNew, StatusPaid, StatusInProgress, StatusReady,
		StatusShipped, StatusDelivered, StatusReceived, StatusCanceled, StatusReturn:
		return status, nil
	}
	return "", errors.New("invalid order status")
}

// Terminal statuses admit no further transitions.
func (s Status) Terminal() bool {
	return s == StatusReceived || s == StatusCanceled || s == StatusReturn
}

// CanTransition reports whether an order may move from s to next.
func (s Status) CanTransition(next Status) bool {
	if s.Terminal() {
		return false
	}
	if (next == StatusCanceled || next == StatusReturn) && s != StatusCart {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
