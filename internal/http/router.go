package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/food-commerce/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type RouterConfig struct {
	Checkout       *CheckoutHandler
	Orders         *OrdersHandler
	Catalog        *CatalogHandler
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
	RequestTimeout time.Duration
}

func NewRouter(cfg RouterConfig) chi.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/checkout", cfg.Checkout.Checkout)
		r.Get("/orders/{order_id}", cfg.Orders.GetOrder)
		r.Get("/catalog", cfg.Catalog.ListCatalog)
	})

	return r
}
