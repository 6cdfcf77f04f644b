package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Requests         *prometheus.CounterVec
	LatencyMS        *prometheus.HistogramVec
	CheckoutOutcomes *prometheus.CounterVec
	GatewayCalls     *prometheus.CounterVec
	GatewayLatencyMS *prometheus.HistogramVec
	OutboxPublished  *prometheus.CounterVec
	OrdersRecovered  *prometheus.CounterVec
}

var latencyBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}

// New registers the collectors on reg; pass prometheus.DefaultRegisterer in main
// and a fresh registry in tests.
func New(service string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "foodcommerce",
			Subsystem: service,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"handler", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "foodcommerce",
			Subsystem: service,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   latencyBuckets,
		}, []string{"handler"}),
		CheckoutOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "foodcommerce",
			Subsystem: service,
			Name:      "checkouts_total",
			Help:      "Checkouts by final order status.",
		}, []string{"status"}),
		GatewayCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "foodcommerce",
			Subsystem: service,
			Name:      "gateway_calls_total",
			Help:      "Payment gateway calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
		GatewayLatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "foodcommerce",
			Subsystem: service,
			Name:      "gateway_call_duration_ms",
			Help:      "Payment gateway call latency in milliseconds.",
			Buckets:   latencyBuckets,
		}, []string{"operation"}),
		OutboxPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "foodcommerce",
			Subsystem: service,
			Name:      "outbox_events_total",
			Help:      "Outbox events handed to the broker, by result.",
		}, []string{"result"}),
		OrdersRecovered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "foodcommerce",
			Subsystem: service,
			Name:      "stuck_orders_total",
			Help:      "Stale PENDING orders handled by the recovery sweep, by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.Requests,
		m.LatencyMS,
		m.CheckoutOutcomes,
		m.GatewayCalls,
		m.GatewayLatencyMS,
		m.OutboxPublished,
		m.OrdersRecovered,
	)
	return m
}

func (m *Metrics) ObserveGatewayCall(operation string, started time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.GatewayCalls.WithLabelValues(operation, outcome).Inc()
	m.GatewayLatencyMS.WithLabelValues(operation).Observe(float64(time.Since(started).Milliseconds()))
}

// Middleware records count and latency per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		m.LatencyMS.WithLabelValues(route).Observe(float64(time.Since(started).Milliseconds()))
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}
