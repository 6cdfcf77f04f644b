package gateway

import (
	"context"
	"errors"
	"log/slog"

	"github.com/fjod/food-commerce/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var errNilOrder = errors.New("order is nil")

// Process charges the order and maps the outcome to an order status.
// It never fails: every error is logged and reported as a CANCELED transaction
// with an empty id. Any successful payment call maps to PAID whatever the raw
// gateway status is.
func (c *Client) Process(
	ctx context.Context,
	order *domain.Order,
	customer domain.CustomerProfile,
	payment domain.PaymentInput) domain.TransactionResult {

	ctx, span := c.tracer.Start(ctx, "gateway.Process")
	defer span.End()

	if order == nil {
		return c.cancel(ctx, span, "", customer, payment, errNilOrder)
	}
	span.SetAttributes(attribute.String("order.id", order.ID.String()))

	customerID, cached, err := c.resolveCustomer(ctx, customer)
	if err != nil {
		return c.cancel(ctx, span, order.ID.String(), customer, payment, err)
	}

	resp, err := c.CreatePayment(ctx, customerID, order, customer, payment)
	if err != nil {
		if cached {
			c.forgetCustomer(ctx, customer.Email, err)
		}
		return c.cancel(ctx, span, order.ID.String(), customer, payment, err)
	}

	span.SetAttributes(
		attribute.String("payment.id", resp.ID),
		attribute.String("payment.gateway_status", resp.Status))
	c.logger.InfoContext(ctx, "payment accepted by gateway",
		slog.String("order_id", order.ID.String()),
		slog.String("transaction_id", resp.ID),
		slog.String("gateway_status", resp.Status))

	return domain.TransactionResult{
		TransactionID: resp.ID,
		Status:        domain.OrderStatusPaid,
		GatewayStatus: resp.Status,
	}
}

func (c *Client) cancel(
	ctx context.Context,
	span trace.Span,
	orderID string,
	customer domain.CustomerProfile,
	payment domain.PaymentInput,
	err error) domain.TransactionResult {

	span.RecordError(err)
	span.SetStatus(codes.Error, "payment failed")

	attrs := []any{
		slog.String("order_id", orderID),
		slog.String("email", customer.Email),
		slog.String("card", payment.MaskedCardNumber()),
		slog.Any("error", err),
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		attrs = append(attrs, slog.Int("gateway_status_code", apiErr.StatusCode))
	}
	c.logger.ErrorContext(ctx, "payment failed, canceling order", attrs...)

	return domain.CanceledTransaction()
}
