package domain

type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "PENDING"
	OrderStatusPaid     OrderStatus = "PAID"
	OrderStatusCanceled OrderStatus = "CANCELED"
)

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusPaid || s == OrderStatusCanceled
}

// CanTransitionTo reports whether the payment step may move an order from s to next.
// An order leaves PENDING exactly once.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	return s == OrderStatusPending && next.IsTerminal()
}

// String representation (for logging)
func (s OrderStatus) String() string {
	return string(s)
}
