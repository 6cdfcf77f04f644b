package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/food-commerce/internal/service"
)

type CatalogHandler struct {
	catalog service.CheckoutService
	timeout time.Duration
	logger  *slog.Logger
}

func NewCatalogHandler(svc service.CheckoutService, timeout time.Duration, logger *slog.Logger) *CatalogHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogHandler{catalog: svc, timeout: timeout, logger: logger}
}

// GET /api/v1/catalog
func (h *CatalogHandler) ListCatalog(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	items, err := h.catalog.ListCatalog(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "list catalog failed", slog.Any("error", err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	dtos := make([]CatalogItemDTO, 0, len(items))
	for _, it := range items {
		dtos = append(dtos, CatalogItemDTO{
			ID:          it.ID,
			Name:        it.Name,
			Description: it.Description,
			Price:       it.UnitPrice.StringFixed(2),
			ImageURL:    it.ImageURL,
		})
	}
	respondJSON(w, http.StatusOK, dtos)
}
