package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderLine struct {
	ID            int64
	CatalogItemID int64
	Name          string
	Quantity      int
	UnitPrice     decimal.Decimal
	LineTotal     decimal.Decimal
}

type Order struct {
	ID            uuid.UUID
	Total         decimal.Decimal
	CustomerID    uuid.UUID
	Customer      *CustomerProfile
	Status        OrderStatus
	TransactionID string
	Lines         []OrderLine
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CheckoutResult is returned to the caller once the payment outcome is applied.
// SkippedItemIDs lists cart ids that had no catalog match.
type CheckoutResult struct {
	Order          *Order
	SkippedItemIDs []int64
}
