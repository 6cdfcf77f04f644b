package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/food-commerce/internal/repository"
	"github.com/fjod/food-commerce/internal/service"
)

type CheckoutHandler struct {
	checkout    service.CheckoutService
	timeout     time.Duration
	maxBodySize int64
	logger      *slog.Logger
}

func NewCheckoutHandler(svc service.CheckoutService, timeout time.Duration, maxBodySize int64, logger *slog.Logger) *CheckoutHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckoutHandler{
		checkout:    svc,
		timeout:     timeout,
		maxBodySize: maxBodySize,
		logger:      logger,
	}
}

// POST /api/v1/checkout
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if h.maxBodySize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	}

	var req CheckoutRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	cart, customer, payment := req.toDomain()
	res, err := h.checkout.Process(ctx, cart, customer, payment)
	if err != nil {
		h.handleCheckoutError(ctx, w, err)
		return
	}

	skipped := res.SkippedItemIDs
	if skipped == nil {
		skipped = []int64{}
	}
	respondJSON(w, http.StatusCreated, CheckoutResponseDTO{
		Order:          convertOrder(res.Order),
		SkippedItemIDs: skipped,
	})
}

func (h *CheckoutHandler) handleCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrEmptyCart):
		respondError(w, http.StatusBadRequest, "empty_cart", "cart is empty")
	case errors.Is(err, service.ErrInvalidQuantity):
		respondErrorDetails(w, http.StatusBadRequest, "invalid_quantity", "cart item quantity must be positive", err.Error())
	case errors.Is(err, service.ErrInvalidCustomer):
		respondError(w, http.StatusBadRequest, "invalid_customer", "customer email is required")
	case errors.Is(err, service.ErrNoPricedItems):
		respondError(w, http.StatusUnprocessableEntity, "no_priced_items", "none of the cart items exist in the catalog")
	case errors.Is(err, repository.ErrUnknownCatalogItem):
		respondErrorDetails(w, http.StatusConflict, "catalog_changed", "the catalog changed during checkout, please retry", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", "checkout timed out")
	default:
		h.logger.ErrorContext(ctx, "checkout failed", slog.Any("error", err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
