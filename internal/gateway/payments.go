package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/food-commerce/domain"
)

const billingTypeCreditCard = "CREDIT_CARD"

type creditCard struct {
	HolderName  string `json:"holderName"`
	Number      string `json:"number"`
	ExpiryMonth string `json:"expiryMonth"`
	ExpiryYear  string `json:"expiryYear"`
	CCV         string `json:"ccv"`
}

type creditCardHolderInfo struct {
	Name              string `json:"name"`
	Email             string `json:"email"`
	CpfCnpj           string `json:"cpfCnpj"`
	PostalCode        string `json:"postalCode"`
	AddressNumber     string `json:"addressNumber"`
	AddressComplement string `json:"addressComplement,omitempty"`
	MobilePhone       string `json:"mobilePhone"`
}

type paymentRequest struct {
	Customer             string               `json:"customer"`
	BillingType          string               `json:"billingType"`
	DueDate              string               `json:"dueDate"`
	Value                json.Number          `json:"value"`
	Description          string               `json:"description"`
	ExternalReference    string               `json:"externalReference"`
	CreditCard           creditCard           `json:"creditCard"`
	CreditCardHolderInfo creditCardHolderInfo `json:"creditCardHolderInfo"`
}

type PaymentResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// SplitExpiry turns "MM/YY" into its month and year parts.
func SplitExpiry(expiry string) (string, string, error) {
	month, year, ok := strings.Cut(strings.TrimSpace(expiry), "/")
	month, year = strings.TrimSpace(month), strings.TrimSpace(year)
	if !ok || len(month) != 2 || len(year) != 2 || !digits(month) || !digits(year) {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidExpiry, expiry)
	}
	if month < "01" || month > "12" {
		return "", "", fmt.Errorf("%w: month %q", ErrInvalidExpiry, month)
	}
	return month, year, nil
}

func digits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// CreatePayment submits an immediate credit card charge for the order total.
// The order id is sent as externalReference for reconciliation.
func (c *Client) CreatePayment(
	ctx context.Context,
	customerID string,
	order *domain.Order,
	customer domain.CustomerProfile,
	payment domain.PaymentInput) (*PaymentResponse, error) {

	month, year, err := SplitExpiry(payment.Expiry)
	if err != nil {
		return nil, err
	}

	req := paymentRequest{
		Customer:          customerID,
		BillingType:       billingTypeCreditCard,
		DueDate:           c.now().Format(time.DateOnly),
		Value:             json.Number(order.Total.StringFixed(2)),
		Description:       fmt.Sprintf("Order #%s", order.ID),
		ExternalReference: order.ID.String(),
		CreditCard: creditCard{
			HolderName:  payment.CardHolderName,
			Number:      strings.ReplaceAll(payment.CardNumber, " ", ""),
			ExpiryMonth: month,
			ExpiryYear:  year,
			CCV:         payment.SecurityCode,
		},
		CreditCardHolderInfo: creditCardHolderInfo{
			Name:              customer.FullName,
			Email:             customer.Email,
			CpfCnpj:           customer.Document,
			PostalCode:        customer.ZipCode,
			AddressNumber:     customer.Number,
			AddressComplement: customer.Complement,
			MobilePhone:       customer.Mobile,
		},
	}

	var resp PaymentResponse
	if err := c.do(ctx, "create_payment", http.MethodPost, "/payments", req, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, ErrEmptyTransaction
	}
	return &resp, nil
}
