package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/food-commerce/internal/cache"
	"github.com/fjod/food-commerce/internal/gateway"
	h "github.com/fjod/food-commerce/internal/http"
	"github.com/fjod/food-commerce/internal/metrics"
	"github.com/fjod/food-commerce/internal/publisher"
	"github.com/fjod/food-commerce/internal/repository"
	"github.com/fjod/food-commerce/internal/service"
	"github.com/fjod/food-commerce/pkg/logger"
	"github.com/fjod/food-commerce/pkg/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	log := logger.Init(cfg.ServiceName, cfg.LogLevel)
	if err := run(cfg, log); err != nil {
		log.Error("checkout-service stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

// run owns every resource so that its deferred cleanups complete before main exits.
func run(cfg *Config, log *slog.Logger) error {
	log.Info("checkout-service starting...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.SetupTracer(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Warn("tracer shutdown failed", slog.Any("error", err))
		}
	}()

	repo, err := repository.NewRepository(ctx, &cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer repo.Close()

	if err := repo.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database migrations completed")

	m := metrics.New("checkout", prometheus.DefaultRegisterer)

	gatewayOpts := []gateway.Option{
		gateway.WithLogger(log.With(slog.String("component", "gateway"))),
		gateway.WithMetrics(m),
	}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unavailable, gateway customer cache disabled", slog.Any("error", err))
		} else {
			gatewayOpts = append(gatewayOpts, gateway.WithCustomerCache(cache.NewRedisCache(rdb)))
			log.Info("gateway customer cache enabled", slog.String("addr", cfg.RedisAddr))
		}
	}

	paymentGateway, err := gateway.NewClient(cfg.Gateway, gatewayOpts...)
	if err != nil {
		return fmt.Errorf("failed to create payment gateway client: %w", err)
	}

	checkoutService := service.NewCheckoutService(repo, paymentGateway, log, m)

	var writer publisher.MessageWriter
	if len(cfg.KafkaBrokers) > 0 {
		writer = publisher.NewKafkaWriter(cfg.KafkaTopic, cfg.KafkaBrokers...)
		log.Info("outbox publishing enabled", slog.Any("brokers", cfg.KafkaBrokers), slog.String("topic", cfg.KafkaTopic))
	} else {
		log.Warn("KAFKA_BROKERS not set, order events stay in the outbox")
	}
	poller := publisher.NewOutboxPoller(repo, writer, cfg.StalePendingAfter,
		log.With(slog.String("component", "outbox")), m)
	defer poller.Close()
	go poller.Run(ctx)

	router := h.NewRouter(h.RouterConfig{
		Checkout:       h.NewCheckoutHandler(checkoutService, cfg.RequestTimeout, cfg.MaxRequestBodySize, log),
		Orders:         h.NewOrdersHandler(checkoutService, cfg.RequestTimeout, log),
		Catalog:        h.NewCatalogHandler(checkoutService, cfg.RequestTimeout, log),
		Metrics:        m,
		Logger:         log,
		RequestTimeout: cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, "checkout-http"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", slog.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", slog.Any("error", err))
	}

	log.Info("server exited")
	return nil
}
