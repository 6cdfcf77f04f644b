package domain

import "strings"

// PaymentInput carries raw card data. It is never persisted.
type PaymentInput struct {
	CardHolderName string
	CardNumber     string
	Expiry         string // MM/YY
	SecurityCode   string
}

// MaskedCardNumber keeps only the last four digits, for logs.
func (p PaymentInput) MaskedCardNumber() string {
	n := strings.ReplaceAll(p.CardNumber, " ", "")
	if len(n) <= 4 {
		return strings.Repeat("*", len(n))
	}
	return strings.Repeat("*", len(n)-4) + n[len(n)-4:]
}

type TransactionResult struct {
	TransactionID string
	Status        OrderStatus
	GatewayStatus string
}

// CanceledTransaction is the outcome of any failed gateway interaction.
func CanceledTransaction() TransactionResult {
	return TransactionResult{TransactionID: "", Status: OrderStatusCanceled}
}
