package service

import (
	"context"
	"time"

	d "github.com/fjod/food-commerce/domain"
	r "github.com/fjod/food-commerce/internal/repository"
	"github.com/google/uuid"
)

// MockStore implements Store for testing
type MockStore struct {
	Catalog    []d.CatalogItem
	CatalogErr error
	UpsertErr  error
	CreateErr  error
	PaymentErr error
	Orders     map[uuid.UUID]*d.Order

	RequestedIDs     []int64
	UpsertedCustomer *d.CustomerProfile // Captures the profile passed to UpsertCustomerByEmail
	CreatedLines     []d.PricedLine
	CreatedOrder     *d.Order
	PaidOrderID      uuid.UUID
	PaidStatus       d.OrderStatus
	PaidTransaction  string
	Calls            []string
}

func (m *MockStore) FindCatalogItemsByIDs(_ context.Context, ids []int64) ([]d.CatalogItem, error) {
	m.Calls = append(m.Calls, "FindCatalogItemsByIDs")
	m.RequestedIDs = ids
	if m.CatalogErr != nil {
		return nil, m.CatalogErr
	}
	want := map[int64]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var found []d.CatalogItem
	for _, item := range m.Catalog {
		if want[item.ID] {
			found = append(found, item)
		}
	}
	return found, nil
}

func (m *MockStore) ListCatalogItems(context.Context) ([]d.CatalogItem, error) {
	m.Calls = append(m.Calls, "ListCatalogItems")
	return m.Catalog, m.CatalogErr
}

func (m *MockStore) UpsertCustomerByEmail(_ context.Context, customer d.CustomerProfile) (*d.CustomerProfile, error) {
	m.Calls = append(m.Calls, "UpsertCustomerByEmail")
	if m.UpsertErr != nil {
		return nil, m.UpsertErr
	}
	stored := customer
	stored.ID = uuid.New()
	m.UpsertedCustomer = &stored
	return &stored, nil
}

func (m *MockStore) CreateOrderWithLines(_ context.Context, customerID uuid.UUID, lines []d.PricedLine) (*d.Order, error) {
	m.Calls = append(m.Calls, "CreateOrderWithLines")
	m.CreatedLines = lines
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	order := &d.Order{
		ID:         uuid.New(),
		Total:      d.SumLines(lines),
		CustomerID: customerID,
		Status:     d.OrderStatusPending,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	for _, l := range lines {
		order.Lines = append(order.Lines, d.OrderLine{
			CatalogItemID: l.CatalogItemID,
			Name:          l.Name,
			Quantity:      l.Quantity,
			UnitPrice:     l.UnitPrice,
			LineTotal:     l.LineTotal,
		})
	}
	m.CreatedOrder = order
	return order, nil
}

func (m *MockStore) SetOrderPayment(ctx context.Context, orderID uuid.UUID, status d.OrderStatus, transactionID string) error {
	// a done context fails the call the way database/sql does
	if err := ctx.Err(); err != nil {
		m.Calls = append(m.Calls, "SetOrderPayment(ctx done)")
		return err
	}
	m.Calls = append(m.Calls, "SetOrderPayment")
	m.PaidOrderID = orderID
	m.PaidStatus = status
	m.PaidTransaction = transactionID
	return m.PaymentErr
}

func (m *MockStore) GetOrderByID(_ context.Context, id uuid.UUID) (*d.Order, error) {
	m.Calls = append(m.Calls, "GetOrderByID")
	if o, ok := m.Orders[id]; ok {
		return o, nil
	}
	return nil, r.ErrOrderNotFound
}

// MockPaymentProcessor implements PaymentProcessor for testing
type MockPaymentProcessor struct {
	Result d.TransactionResult
	Calls  int

	Order    *d.Order // Captures the order passed to Process
	Customer d.CustomerProfile
	Payment  d.PaymentInput
}

func (m *MockPaymentProcessor) Process(_ context.Context, order *d.Order, customer d.CustomerProfile, payment d.PaymentInput) d.TransactionResult {
	m.Calls++
	m.Order = order
	m.Customer = customer
	m.Payment = payment
	return m.Result
}
