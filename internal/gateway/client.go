package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/food-commerce/internal/cache"
	"github.com/fjod/food-commerce/internal/metrics"
	"github.com/fjod/food-commerce/pkg/circuitbreaker"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

const (
	accessTokenHeader = "access_token"
	maxResponseBytes  = 1 << 20
	defaultTimeout    = 10 * time.Second
)

var ErrMissingConfig = errors.New("gateway base url and access token are required")

// Config is supplied by the caller; the client keeps no package-level state.
type Config struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
}

// Client talks to an Asaas-compatible payment API.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	breaker     *gobreaker.CircuitBreaker[[]byte]
	breakerCfg  circuitbreaker.Config
	logger      *slog.Logger
	metrics     *metrics.Metrics
	customers   cache.CustomerCache
	tracer      trace.Tracer
	group       singleflight.Group
	now         func() time.Time
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithCustomerCache remembers resolved gateway customer ids by email.
func WithCustomerCache(cc cache.CustomerCache) Option {
	return func(c *Client) { c.customers = cc }
}

func WithBreakerConfig(cfg circuitbreaker.Config) Option {
	return func(c *Client) { c.breakerCfg = cfg }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" || cfg.AccessToken == "" {
		return nil, ErrMissingConfig
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	c := &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		accessToken: cfg.AccessToken,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breakerCfg: circuitbreaker.DefaultConfig("payment-gateway"),
		tracer:     otel.Tracer("github.com/fjod/food-commerce/internal/gateway"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.breakerCfg.IsSuccessful == nil {
		c.breakerCfg.IsSuccessful = countsAsSuccess
	}
	c.breaker = circuitbreaker.New[[]byte](c.breakerCfg, c.logger)
	return c, nil
}

// countsAsSuccess keeps client-side rejections (declined card, bad document)
// from opening the breaker. Only transport failures and 5xx count.
func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError
}

func (c *Client) do(ctx context.Context, operation, method, path string, in, out any) (err error) {
	started := time.Now()
	defer func() {
		if c.metrics != nil {
			c.metrics.ObserveGatewayCall(operation, started, err)
		}
	}()

	var body io.Reader
	if in != nil {
		payload, mErr := json.Marshal(in)
		if mErr != nil {
			return fmt.Errorf("marshal %s request: %w", operation, mErr)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", operation, err)
	}
	// set directly so the header name goes out lower-case
	req.Header[accessTokenHeader] = []string{c.accessToken}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	raw, err := c.breaker.Execute(func() ([]byte, error) {
		resp, dErr := c.httpClient.Do(req)
		if dErr != nil {
			return nil, fmt.Errorf("%s %s: %w", method, path, dErr)
		}
		defer resp.Body.Close()

		data, rErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if rErr != nil {
			return nil, fmt.Errorf("read %s response: %w", operation, rErr)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, newAPIError(resp.StatusCode, data)
		}
		return data, nil
	})
	if err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}
