package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/food-commerce/internal/gateway"
	"github.com/fjod/food-commerce/internal/repository"
)

// A checkout makes at most this many sequential gateway calls:
// customer lookup, customer create and payment.
const gatewayCallsPerCheckout = 3

type Config struct {
	ServiceName        string
	HTTPPort           string
	LogLevel           string
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	StalePendingAfter  time.Duration
	MaxRequestBodySize int64

	DB      repository.Credentials
	Gateway gateway.Config

	RedisAddr     string
	RedisPassword string

	KafkaBrokers []string
	KafkaTopic   string

	OTLPEndpoint string
}

func loadConfig() (*Config, error) {
	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}
	gatewayTimeout, err := time.ParseDuration(getEnv("GATEWAY_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid GATEWAY_TIMEOUT: %w", err)
	}
	requestTimeout, err := time.ParseDuration(getEnv("REQUEST_TIMEOUT", "45s"))
	if err != nil {
		return nil, fmt.Errorf("invalid REQUEST_TIMEOUT: %w", err)
	}
	staleAfter, err := time.ParseDuration(getEnv("PENDING_ORDER_TIMEOUT", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid PENDING_ORDER_TIMEOUT: %w", err)
	}

	cfg := &Config{
		ServiceName:        getEnv("OTEL_SERVICE_NAME", "checkout-service"),
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		RequestTimeout:     requestTimeout,
		ShutdownTimeout:    10 * time.Second,
		StalePendingAfter:  staleAfter,
		MaxRequestBodySize: 1 << 20, // 1MB
		DB: repository.Credentials{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "food_commerce"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Gateway: gateway.Config{
			BaseURL:     os.Getenv("ASAAS_API_URL"),
			AccessToken: os.Getenv("ASAAS_API_ACCESS_TOKEN"),
			Timeout:     gatewayTimeout,
		},
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		KafkaBrokers:  splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:    getEnv("KAFKA_TOPIC", "checkout-orders"),
		OTLPEndpoint:  os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if cfg.Gateway.BaseURL == "" || cfg.Gateway.AccessToken == "" {
		return nil, errors.New("ASAAS_API_URL and ASAAS_API_ACCESS_TOKEN must be set")
	}
	if budget := gatewayCallsPerCheckout * gatewayTimeout; cfg.RequestTimeout < budget {
		return nil, fmt.Errorf("REQUEST_TIMEOUT %s must cover %d gateway calls of GATEWAY_TIMEOUT (%s)",
			cfg.RequestTimeout, gatewayCallsPerCheckout, budget)
	}
	if cfg.StalePendingAfter <= cfg.RequestTimeout {
		return nil, fmt.Errorf("PENDING_ORDER_TIMEOUT %s must exceed REQUEST_TIMEOUT %s",
			cfg.StalePendingAfter, cfg.RequestTimeout)
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
