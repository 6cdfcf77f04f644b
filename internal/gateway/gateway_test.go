package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/food-commerce/domain"
	"github.com/fjod/food-commerce/internal/cache"
	"github.com/fjod/food-commerce/internal/metrics"
	"github.com/fjod/food-commerce/pkg/circuitbreaker"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "test-token"

// fakeGateway is an in-memory stand-in for the payment API.
type fakeGateway struct {
	mu sync.Mutex

	customers map[string]string
	nextID    int
	stats     fakeStats

	lookupDelay   time.Duration
	paymentStatus int
	paymentBody   string
}

type fakeStats struct {
	lookups         int
	creates         int
	payments        int
	tokens          []string
	lastCustomer    customerRequest
	lastPaymentBody map[string]any
}

func (f *fakeGateway) snapshot() fakeStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		customers:     map[string]string{},
		paymentStatus: http.StatusOK,
		paymentBody:   `{"id":"tx_123","status":"CONFIRMED"}`,
	}
}

func (f *fakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.stats.tokens = append(f.stats.tokens, r.Header.Get("access_token"))
	f.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/customers":
		if f.lookupDelay > 0 {
			time.Sleep(f.lookupDelay)
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		f.stats.lookups++
		data := []customerResponse{}
		if id, ok := f.customers[r.URL.Query().Get("email")]; ok {
			data = append(data, customerResponse{ID: id})
		}
		writeJSON(w, http.StatusOK, customerListResponse{Data: data})

	case r.Method == http.MethodPost && r.URL.Path == "/customers":
		f.mu.Lock()
		defer f.mu.Unlock()
		f.stats.creates++
		var req customerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		f.stats.lastCustomer = req
		f.nextID++
		id := fmt.Sprintf("cus_%06d", f.nextID)
		f.customers[req.Email] = id
		writeJSON(w, http.StatusOK, customerResponse{ID: id})

	case r.Method == http.MethodPost && r.URL.Path == "/payments":
		f.mu.Lock()
		defer f.mu.Unlock()
		f.stats.payments++
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		var body map[string]any
		_ = dec.Decode(&body)
		f.stats.lastPaymentBody = body
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.paymentStatus)
		_, _ = io.WriteString(w, f.paymentBody)

	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, baseURL string, opts ...Option) *Client {
	t.Helper()
	fixed := time.Date(2026, 10, 18, 15, 4, 5, 0, time.UTC)
	all := append([]Option{
		WithLogger(quietLogger()),
		WithClock(func() time.Time { return fixed }),
	}, opts...)
	c, err := NewClient(Config{BaseURL: baseURL, AccessToken: testToken, Timeout: 5 * time.Second}, all...)
	require.NoError(t, err)
	return c
}

func testOrder() *domain.Order {
	return &domain.Order{
		ID:     uuid.MustParse("6f1c1a7e-7c43-4c1e-9a53-2a8e3b1f0d11"),
		Total:  decimal.RequireFromString("25.00"),
		Status: domain.OrderStatusPending,
	}
}

func testCustomer() domain.CustomerProfile {
	return domain.CustomerProfile{
		Email:        "a@b.com",
		FullName:     "Ana Souza",
		Document:     "24971563792",
		Mobile:       "11999999999",
		ZipCode:      "01310-000",
		Street:       "Av. Paulista",
		Number:       "1000",
		Complement:   "Apt 12",
		Neighborhood: "Bela Vista",
	}
}

func testPayment() domain.PaymentInput {
	return domain.PaymentInput{
		CardHolderName: "ANA SOUZA",
		CardNumber:     "5162 3060 4829 9858",
		Expiry:         "09/27",
		SecurityCode:   "318",
	}
}

func TestNewClient_RequiresConfig(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "http://gateway"})
	assert.ErrorIs(t, err, ErrMissingConfig)

	_, err = NewClient(Config{AccessToken: "token"})
	assert.ErrorIs(t, err, ErrMissingConfig)
}

func TestResolveCustomer_LookupHitSkipsCreate(t *testing.T) {
	fake := newFakeGateway()
	fake.customers["a@b.com"] = "cus_existing"
	srv := httptest.NewServer(fake)
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	id, err := c.ResolveCustomer(context.Background(), testCustomer())

	require.NoError(t, err)
	assert.Equal(t, "cus_existing", id)
	assert.Equal(t, 1, fake.snapshot().lookups)
	assert.Equal(t, 0, fake.snapshot().creates)
}

func TestResolveCustomer_LookupMissCreatesOnce(t *testing.T) {
	fake := newFakeGateway()
	srv := httptest.NewServer(fake)
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	id, err := c.ResolveCustomer(context.Background(), testCustomer())

	require.NoError(t, err)
	assert.Equal(t, "cus_000001", id)
	stats := fake.snapshot()
	assert.Equal(t, 1, stats.creates)
	assert.True(t, stats.lastCustomer.NotificationDisabled)
	assert.Equal(t, "Ana Souza", stats.lastCustomer.Name)
	assert.Equal(t, "24971563792", stats.lastCustomer.CpfCnpj)
	assert.Equal(t, "Bela Vista", stats.lastCustomer.Province)
	assert.Equal(t, "Av. Paulista", stats.lastCustomer.Address)
	require.Len(t, stats.tokens, 2)
	for _, tok := range stats.tokens {
		assert.Equal(t, testToken, tok)
	}
}

func TestResolveCustomer_ConcurrentCallsCreateOnce(t *testing.T) {
	fake := newFakeGateway()
	fake.lookupDelay = 100 * time.Millisecond
	srv := httptest.NewServer(fake)
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	var wg sync.WaitGroup
	ids := make([]string, 5)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := c.ResolveCustomer(context.Background(), testCustomer())
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, fake.snapshot().creates)
	for _, id := range ids {
		assert.Equal(t, "cus_000001", id)
	}
}

func TestResolveCustomer_CallerDeadlineDoesNotFailOtherCallers(t *testing.T) {
	fake := newFakeGateway()
	fake.lookupDelay = 200 * time.Millisecond
	srv := httptest.NewServer(fake)
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	shortCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var wg sync.WaitGroup
	var shortErr, longErr error
	var longID string
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, shortErr = c.ResolveCustomer(shortCtx, testCustomer())
	}()
	time.Sleep(10 * time.Millisecond)
	go func() {
		defer wg.Done()
		longID, longErr = c.ResolveCustomer(context.Background(), testCustomer())
	}()
	wg.Wait()

	assert.ErrorIs(t, shortErr, context.DeadlineExceeded)
	require.NoError(t, longErr)
	assert.Equal(t, "cus_000001", longID)
	assert.Equal(t, 1, fake.snapshot().lookups)
	assert.Equal(t, 1, fake.snapshot().creates)
}

func TestResolveCustomer_NormalizesEmail(t *testing.T) {
	fake := newFakeGateway()
	fake.customers["a@b.com"] = "cus_existing"
	srv := httptest.NewServer(fake)
	defer srv.Close()
	c := newTestClient(t, srv.URL)
	customer := testCustomer()
	customer.Email = "  A@B.com "

	id, err := c.ResolveCustomer(context.Background(), customer)

	require.NoError(t, err)
	assert.Equal(t, "cus_existing", id)
	assert.Equal(t, 0, fake.snapshot().creates)
}

func TestResolveCustomer_MissingEmail(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1")

	_, err := c.ResolveCustomer(context.Background(), domain.CustomerProfile{})

	assert.ErrorIs(t, err, ErrMissingEmail)
}

func TestResolveCustomer_UsesCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	customers := cache.NewRedisCache(rdb)

	fake := newFakeGateway()
	srv := httptest.NewServer(fake)
	defer srv.Close()
	c := newTestClient(t, srv.URL, WithCustomerCache(customers))
	ctx := context.Background()

	id, err := c.ResolveCustomer(ctx, testCustomer())
	require.NoError(t, err)

	cached, err := customers.Get(ctx, "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, id, cached)

	again, err := c.ResolveCustomer(ctx, testCustomer())
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Equal(t, 1, fake.snapshot().lookups)
	assert.Equal(t, 1, fake.snapshot().creates)
}

func TestProcess_RejectedCachedCustomerIsEvicted(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	customers := cache.NewRedisCache(rdb)
	ctx := context.Background()
	require.NoError(t, customers.Set(ctx, "a@b.com", "cus_deleted"))

	fake := newFakeGateway()
	fake.paymentStatus = http.StatusBadRequest
	fake.paymentBody = `{"errors":[{"code":"invalid_customer","description":"customer not found"}]}`
	srv := httptest.NewServer(fake)
	defer srv.Close()
	c := newTestClient(t, srv.URL, WithCustomerCache(customers))

	res := c.Process(ctx, testOrder(), testCustomer(), testPayment())

	assert.Equal(t, domain.CanceledTransaction(), res)
	assert.Equal(t, "cus_deleted", fake.snapshot().lastPaymentBody["customer"])
	_, err := customers.Get(ctx, "a@b.com")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)

	fake.mu.Lock()
	fake.paymentStatus = http.StatusOK
	fake.paymentBody = `{"id":"tx_2","status":"CONFIRMED"}`
	fake.mu.Unlock()

	res = c.Process(ctx, testOrder(), testCustomer(), testPayment())

	assert.Equal(t, domain.OrderStatusPaid, res.Status)
	stats := fake.snapshot()
	assert.Equal(t, 1, stats.lookups)
	assert.Equal(t, 1, stats.creates)
	assert.Equal(t, "cus_000001", stats.lastPaymentBody["customer"])
	cached, err := customers.Get(ctx, "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, "cus_000001", cached)
}

func TestProcess_ServerErrorKeepsCachedCustomer(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	customers := cache.NewRedisCache(rdb)
	ctx := context.Background()
	require.NoError(t, customers.Set(ctx, "a@b.com", "cus_cached"))

	fake := newFakeGateway()
	fake.paymentStatus = http.StatusBadGateway
	fake.paymentBody = `{}`
	srv := httptest.NewServer(fake)
	defer srv.Close()
	c := newTestClient(t, srv.URL, WithCustomerCache(customers))

	res := c.Process(ctx, testOrder(), testCustomer(), testPayment())

	assert.Equal(t, domain.OrderStatusCanceled, res.Status)
	cached, err := customers.Get(ctx, "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, "cus_cached", cached)
}

func TestCreatePayment_RequestBody(t *testing.T) {
	fake := newFakeGateway()
	srv := httptest.NewServer(fake)
	defer srv.Close()
	c := newTestClient(t, srv.URL)
	order := testOrder()

	resp, err := c.CreatePayment(context.Background(), "cus_1", order, testCustomer(), testPayment())

	require.NoError(t, err)
	assert.Equal(t, "tx_123", resp.ID)
	assert.Equal(t, "CONFIRMED", resp.Status)

	body := fake.snapshot().lastPaymentBody
	assert.Equal(t, "cus_1", body["customer"])
	assert.Equal(t, "CREDIT_CARD", body["billingType"])
	assert.Equal(t, "2026-10-18", body["dueDate"])
	assert.Equal(t, json.Number("25.00"), body["value"])
	assert.Equal(t, order.ID.String(), body["externalReference"])
	assert.Contains(t, body["description"], order.ID.String())

	card, ok := body["creditCard"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "09", card["expiryMonth"])
	assert.Equal(t, "27", card["expiryYear"])
	assert.Equal(t, "5162306048299858", card["number"])
	assert.Equal(t, "ANA SOUZA", card["holderName"])
	assert.Equal(t, "318", card["ccv"])

	holder, ok := body["creditCardHolderInfo"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "a@b.com", holder["email"])
	assert.Equal(t, "24971563792", holder["cpfCnpj"])
	assert.Equal(t, "01310-000", holder["postalCode"])
	assert.Equal(t, "1000", holder["addressNumber"])
	assert.Equal(t, "Apt 12", holder["addressComplement"])
	assert.Equal(t, "11999999999", holder["mobilePhone"])
}

func TestProcess_SuccessMapsToPaid(t *testing.T) {
	fake := newFakeGateway()
	srv := httptest.NewServer(fake)
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	res := c.Process(context.Background(), testOrder(), testCustomer(), testPayment())

	assert.Equal(t, "tx_123", res.TransactionID)
	assert.Equal(t, domain.OrderStatusPaid, res.Status)
	assert.Equal(t, "CONFIRMED", res.GatewayStatus)
}

func TestProcess_AnySuccessfulStatusMapsToPaid(t *testing.T) {
	fake := newFakeGateway()
	fake.paymentBody = `{"id":"tx_9","status":"PENDING"}`
	srv := httptest.NewServer(fake)
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	res := c.Process(context.Background(), testOrder(), testCustomer(), testPayment())

	assert.Equal(t, domain.TransactionResult{TransactionID: "tx_9", Status: domain.OrderStatusPaid, GatewayStatus: "PENDING"}, res)
}

func TestProcess_FailuresMapToCanceled(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"client error", http.StatusBadRequest, `{"errors":[{"code":"invalid_creditCard","description":"card declined"}]}`},
		{"server error", http.StatusInternalServerError, `oops`},
		{"malformed json", http.StatusOK, `not-json`},
		{"missing id", http.StatusOK, `{"status":"CONFIRMED"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeGateway()
			fake.paymentStatus = tt.status
			fake.paymentBody = tt.body
			srv := httptest.NewServer(fake)
			defer srv.Close()
			c := newTestClient(t, srv.URL)

			res := c.Process(context.Background(), testOrder(), testCustomer(), testPayment())

			assert.Equal(t, domain.CanceledTransaction(), res)
			assert.Equal(t, 1, fake.snapshot().payments)
		})
	}
}

func TestProcess_NetworkErrorMapsToCanceled(t *testing.T) {
	srv := httptest.NewServer(newFakeGateway())
	url := srv.URL
	srv.Close()
	c := newTestClient(t, url)

	res := c.Process(context.Background(), testOrder(), testCustomer(), testPayment())

	assert.Equal(t, "", res.TransactionID)
	assert.Equal(t, domain.OrderStatusCanceled, res.Status)
}

func TestProcess_InvalidExpiryNeverCharges(t *testing.T) {
	fake := newFakeGateway()
	srv := httptest.NewServer(fake)
	defer srv.Close()
	c := newTestClient(t, srv.URL)
	payment := testPayment()
	payment.Expiry = "2027-09"

	res := c.Process(context.Background(), testOrder(), testCustomer(), payment)

	assert.Equal(t, domain.CanceledTransaction(), res)
	assert.Equal(t, 0, fake.snapshot().payments)
}

func TestProcess_NilOrder(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1")

	res := c.Process(context.Background(), nil, testCustomer(), testPayment())

	assert.Equal(t, domain.CanceledTransaction(), res)
}

func TestProcess_OpenBreakerSkipsGateway(t *testing.T) {
	fake := newFakeGateway()
	fake.paymentStatus = http.StatusBadGateway
	fake.paymentBody = `{}`
	srv := httptest.NewServer(fake)
	defer srv.Close()

	cfg := circuitbreaker.DefaultConfig("test-gateway")
	cfg.ConsecutiveFailures = 1
	cfg.Timeout = time.Hour
	c := newTestClient(t, srv.URL, WithBreakerConfig(cfg))

	first := c.Process(context.Background(), testOrder(), testCustomer(), testPayment())
	second := c.Process(context.Background(), testOrder(), testCustomer(), testPayment())

	assert.Equal(t, domain.OrderStatusCanceled, first.Status)
	assert.Equal(t, domain.OrderStatusCanceled, second.Status)
	assert.Equal(t, 1, fake.snapshot().lookups)
	assert.Equal(t, 1, fake.snapshot().payments)
}

func TestProcess_DeclinedCardDoesNotOpenBreaker(t *testing.T) {
	fake := newFakeGateway()
	fake.paymentStatus = http.StatusBadRequest
	fake.paymentBody = `{"errors":[{"code":"invalid_creditCard","description":"declined"}]}`
	srv := httptest.NewServer(fake)
	defer srv.Close()

	cfg := circuitbreaker.DefaultConfig("test-gateway")
	cfg.ConsecutiveFailures = 1
	c := newTestClient(t, srv.URL, WithBreakerConfig(cfg))

	c.Process(context.Background(), testOrder(), testCustomer(), testPayment())
	c.Process(context.Background(), testOrder(), testCustomer(), testPayment())

	assert.Equal(t, 2, fake.snapshot().payments)
}

func TestProcess_RecordsMetrics(t *testing.T) {
	fake := newFakeGateway()
	srv := httptest.NewServer(fake)
	defer srv.Close()
	m := metrics.New("test", prometheus.NewRegistry())
	c := newTestClient(t, srv.URL, WithMetrics(m))

	c.Process(context.Background(), testOrder(), testCustomer(), testPayment())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.GatewayCalls.WithLabelValues("find_customer", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GatewayCalls.WithLabelValues("create_customer", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GatewayCalls.WithLabelValues("create_payment", "ok")))
}

func TestSplitExpiry(t *testing.T) {
	tests := []struct {
		in          string
		month, year string
		wantErr     bool
	}{
		{"09/27", "09", "27", false},
		{" 12/30 ", "12", "30", false},
		{"9/27", "", "", true},
		{"13/27", "", "", true},
		{"00/27", "", "", true},
		{"0927", "", "", true},
		{"ab/cd", "", "", true},
		{"", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			month, year, err := SplitExpiry(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidExpiry)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.month, month)
			assert.Equal(t, tt.year, year)
		})
	}
}

func TestAPIError_Message(t *testing.T) {
	err := newAPIError(http.StatusBadRequest, []byte(`{"errors":[{"code":"invalid_value","description":"value too low"}]}`))

	assert.Equal(t, http.StatusBadRequest, err.StatusCode)
	assert.Contains(t, err.Error(), "invalid_value: value too low")
	assert.Equal(t, "gateway responded with status 502", newAPIError(http.StatusBadGateway, nil).Error())
}
