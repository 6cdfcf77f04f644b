package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	d "github.com/fjod/food-commerce/domain"
	"github.com/fjod/food-commerce/internal/metrics"
	r "github.com/fjod/food-commerce/internal/repository"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const persistTimeout = 5 * time.Second

type CheckoutService interface {
	Process(ctx context.Context, cart []d.CartItem, customer d.CustomerProfile, payment d.PaymentInput) (*d.CheckoutResult, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*d.Order, error)
	ListCatalog(ctx context.Context) ([]d.CatalogItem, error)
}

// Store is the part of the repository the checkout flow needs.
type Store interface {
	r.CatalogRepository
	r.OrderRepository
}

// PaymentProcessor charges an order. Implementations never fail; a failed
// charge comes back as a CANCELED result.
type PaymentProcessor interface {
	Process(ctx context.Context, order *d.Order, customer d.CustomerProfile, payment d.PaymentInput) d.TransactionResult
}

type CheckoutServiceImpl struct {
	store    Store
	payments PaymentProcessor
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

func NewCheckoutService(store Store, payments PaymentProcessor, logger *slog.Logger, m *metrics.Metrics) *CheckoutServiceImpl {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckoutServiceImpl{
		store:    store,
		payments: payments,
		logger:   logger,
		metrics:  m,
		tracer:   otel.Tracer("github.com/fjod/food-commerce/internal/service"),
	}
}

// Process runs one checkout: price the cart from the catalog, upsert the
// customer, create a PENDING order, charge it and persist PAID or CANCELED.
// A declined payment is not an error; the order simply ends CANCELED.
func (s *CheckoutServiceImpl) Process(
	ctx context.Context,
	cart []d.CartItem,
	customer d.CustomerProfile,
	payment d.PaymentInput) (*d.CheckoutResult, error) {

	ctx, span := s.tracer.Start(ctx, "checkout.Process")
	defer span.End()

	if err := validate(cart, customer); err != nil {
		return nil, err
	}

	catalog, err := s.store.FindCatalogItemsByIDs(ctx, catalogIDs(cart))
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog items: %w", err)
	}

	lines, skipped := priceCart(cart, catalog)
	if len(skipped) > 0 {
		s.logger.WarnContext(ctx, "cart items not found in catalog, skipping",
			slog.Any("item_ids", skipped))
	}
	if len(lines) == 0 {
		return nil, ErrNoPricedItems
	}

	stored, err := s.store.UpsertCustomerByEmail(ctx, customer)
	if err != nil {
		return nil, fmt.Errorf("failed to save customer: %w", err)
	}

	order, err := s.store.CreateOrderWithLines(ctx, stored.ID, lines)
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	order.Customer = stored
	span.SetAttributes(attribute.String("order.id", order.ID.String()))

	tx := s.payments.Process(ctx, order, *stored, payment)

	// The outcome is recorded even when the request deadline ran out during the
	// payment call; otherwise the order would stay PENDING.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := s.store.SetOrderPayment(persistCtx, order.ID, tx.Status, tx.TransactionID); err != nil {
		// the gateway may already have charged the card
		s.logger.ErrorContext(ctx, "failed to persist payment outcome",
			slog.String("order_id", order.ID.String()),
			slog.String("status", tx.Status.String()),
			slog.String("transaction_id", tx.TransactionID),
			slog.Any("error", err))
		return nil, fmt.Errorf("failed to persist payment outcome for order %s: %w", order.ID, err)
	}
	order.Status = tx.Status
	order.TransactionID = tx.TransactionID

	if s.metrics != nil {
		s.metrics.CheckoutOutcomes.WithLabelValues(order.Status.String()).Inc()
	}
	s.logger.InfoContext(ctx, "checkout finished",
		slog.String("order_id", order.ID.String()),
		slog.String("status", order.Status.String()),
		slog.String("total", order.Total.StringFixed(2)))

	return &d.CheckoutResult{Order: order, SkippedItemIDs: skipped}, nil
}

func validate(cart []d.CartItem, customer d.CustomerProfile) error {
	if len(cart) == 0 {
		return ErrEmptyCart
	}
	for _, item := range cart {
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item %d has quantity %d", ErrInvalidQuantity, item.ID, item.Quantity)
		}
	}
	if strings.TrimSpace(customer.Email) == "" {
		return ErrInvalidCustomer
	}
	return nil
}

func (s *CheckoutServiceImpl) GetOrder(ctx context.Context, id uuid.UUID) (*d.Order, error) {
	return s.store.GetOrderByID(ctx, id)
}

func (s *CheckoutServiceImpl) ListCatalog(ctx context.Context) ([]d.CatalogItem, error) {
	return s.store.ListCatalogItems(ctx)
}
