package httppresentation

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	appcart "github.com/Zhima-Mochi/foodcart/internal/application/cart"
	"github.com/Zhima-Mochi/foodcart/internal/application/checkout"
	"github.com/Zhima-Mochi/foodcart/internal/application/paymentmethod"
	"github.com/Zhima-Mochi/foodcart/internal/domain/failure"
	"github.com/Zhima-Mochi/foodcart/internal/infrastructure/backend"
	"github.com/Zhima-Mochi/foodcart/internal/infrastructure/cartstore"
	"github.com/Zhima-Mochi/foodcart/internal/infrastructure/id"
	"github.com/Zhima-Mochi/foodcart/internal/infrastructure/memory"
	infraobs "github.com/Zhima-Mochi/foodcart/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/foodcart/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/foodcart/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/foodcart/internal/infrastructure/outbox"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// fakeBackend is the storefront API the service talks to.
type fakeBackend struct {
	mu          sync.Mutex
	orderStatus int
	orderBody   map[string]any
	stock       map[string]int
	payStatus   string
	placed      []map[string]any
}

func (b *fakeBackend) router(t *testing.T) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/foods/{id}", func(w http.ResponseWriter, req *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		itemID := chi.URLParam(req, "id")
		stock, ok := b.stock[itemID]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeBody(w, http.StatusOK, map[string]any{"food": map[string]any{
			"id": itemID, "name": "food " + itemID, "price": "4.25", "stock": stock,
		}})
	})
	r.Post("/api/orders", func(w http.ResponseWriter, req *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		b.mu.Lock()
		defer b.mu.Unlock()
		b.placed = append(b.placed, body)
		writeBody(w, b.orderStatus, b.orderBody)
	})
	r.Post("/api/orders/{id}/stripe-payment", func(w http.ResponseWriter, _ *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		writeBody(w, http.StatusOK, map[string]any{"status": b.payStatus})
	})
	r.Get("/api/orders/{id}/stripe-payment", func(w http.ResponseWriter, _ *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		writeBody(w, http.StatusOK, map[string]any{"status": b.payStatus})
	})
	r.Post("/api/payment-methods/stripe/setup-intent", func(w http.ResponseWriter, _ *http.Request) {
		writeBody(w, http.StatusOK, map[string]any{"client_secret": "seti_1_secret_abc"})
	})
	r.Post("/api/payment-methods/stripe/save", func(w http.ResponseWriter, req *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		writeBody(w, http.StatusOK, map[string]any{"payment_method_id": body["payment_method_id"]})
	})
	r.Get("/api/payment-methods", func(w http.ResponseWriter, req *http.Request) {
		if req.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeBody(w, http.StatusOK, map[string]any{"payment_methods": []any{
			map[string]any{"stripe_payment_method_id": "pm_1", "card": map[string]any{"brand": "visa", "last4": "4242"}},
		}})
	})
	r.Delete("/api/payment-methods/stripe/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

func (b *fakeBackend) set(fn func(b *fakeBackend)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b)
}

func writeBody(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type testServer struct {
	url     string
	backend *fakeBackend
	logs    *observer.ObservedLogs
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	fb := &fakeBackend{
		orderStatus: http.StatusCreated,
		orderBody:   map[string]any{"orders": 42, "total_amount": "8.50"},
		stock:       map[string]int{"7": 3},
		payStatus:   "succeeded",
	}
	api := httptest.NewServer(fb.router(t))
	t.Cleanup(api.Close)

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zaplogger.FromZap(zap.New(core))
	reg := prometheus.NewRegistry()
	counters, histograms := infraobs.StandardMetrics(prometrics.New(reg, "", ""))
	tel := infraobs.New(nil, logger, counters, histograms)

	bus := outbox.NewBus(logger)
	bus.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		bus.Stop(ctx)
	})

	client := backend.New(api.URL+"/api", 2*time.Second, backend.WithHTTPClient(api.Client()), backend.WithLogger(logger))
	carts := appcart.NewService(cartstore.New(memory.NewBlobs(), "cart", logger), client, tel)
	orchestrator := checkout.NewOrchestrator(memory.NewCheckoutRepository(), carts, client, client,
		id.NewUUIDGenerator(), bus, tel)
	handler := NewHandler(carts, orchestrator, paymentmethod.NewService(client, tel),
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), tel)

	srv := httptest.NewServer(handler.Router())
	t.Cleanup(srv.Close)
	return &testServer{url: srv.URL, backend: fb, logs: logs}
}

func (s *testServer) do(t *testing.T, method, path, owner string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, s.url+path, reader)
	require.NoError(t, err)
	if owner != "" {
		req.Header.Set("X-User-ID", owner)
		req.Header.Set("Authorization", "Bearer tok-"+owner)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if resp.StatusCode != http.StatusNoContent && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func dumplings(stock int) map[string]any {
	return map[string]any{"id": "7", "name": "Dumplings", "price": "4.25", "stock": stock}
}

func TestHealthAndRequestID(t *testing.T) {
	s := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, s.url+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "req-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "req-123", resp.Header.Get("X-Request-ID"))

	resp, err = http.Get(s.url + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	assert.GreaterOrEqual(t, s.logs.FilterMessage("http_access").Len(), 2)
}

func TestCartRoutes(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, http.MethodPost, "/cart/items", "alice", dumplings(3))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "created", body["outcome"])

	resp, body = s.do(t, http.MethodPost, "/cart/items", "alice", map[string]any{"item": dumplings(3)})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "incremented", body["outcome"])

	// the catalog reports 3 left, so 10 is clamped
	resp, body = s.do(t, http.MethodPut, "/cart/items/7", "alice", map[string]any{"quantity": 10})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	lines := body["lines"].([]any)
	require.Len(t, lines, 1)
	assert.Equal(t, float64(3), lines[0].(map[string]any)["quantity"])
	assert.Equal(t, "12.75", body["totals"].(map[string]any)["total"])

	resp, body = s.do(t, http.MethodGet, "/cart", "bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["lines"])

	resp, body = s.do(t, http.MethodDelete, "/cart/items/7", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["lines"])

	resp, _ = s.do(t, http.MethodDelete, "/cart", "alice", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCartRoutes_Errors(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, http.MethodPost, "/cart/items", "", dumplings(3))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthenticated", body["error"].(map[string]any)["kind"])

	resp, body = s.do(t, http.MethodPut, "/cart/items/7", "alice", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation", body["error"].(map[string]any)["kind"])

	resp, _ = s.do(t, http.MethodPut, "/cart/items/7", "alice", map[string]any{"quantity": 1, "extra": true})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSessionNeedsOwnerAndToken(t *testing.T) {
	s := newTestServer(t)

	tests := map[string]http.Header{
		"token without owner": {"Authorization": {"Bearer tok"}},
		"owner without token": {"X-User-ID": {"alice"}},
		"non-bearer scheme":   {"X-User-ID": {"alice"}, "Authorization": {"Basic YWxpY2U6"}},
	}
	for name, header := range tests {
		t.Run(name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, s.url+"/cart", nil)
			require.NoError(t, err)
			req.Header = header
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestCheckout_CardFlow(t *testing.T) {
	s := newTestServer(t)

	resp, _ := s.do(t, http.MethodPost, "/cart/items", "alice", dumplings(3))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := s.do(t, http.MethodPost, "/checkout", "alice", map[string]any{"remarks": "no onions"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "order_placed", body["stage"])
	assert.Equal(t, "42", body["orderId"])
	assert.Equal(t, "8.5", body["total"])
	assert.Equal(t, "no onions", body["remarks"])
	checkoutID := body["id"].(string)

	resp, _ = s.do(t, http.MethodGet, "/checkout/"+checkoutID, "bob", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = s.do(t, http.MethodPost, "/checkout/"+checkoutID+"/setup-intent", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "payment_setup_ready", body["stage"])
	assert.Equal(t, "seti_1_secret_abc", body["clientSecret"])

	resp, body = s.do(t, http.MethodPost, "/checkout/"+checkoutID+"/confirm", "alice", map[string]any{"paymentMethodId": "pm_9"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "payment_succeeded", body["stage"])

	resp, body = s.do(t, http.MethodGet, "/cart", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["lines"])
}

func TestCheckout_StockConflictThenRetry(t *testing.T) {
	s := newTestServer(t)
	s.backend.set(func(b *fakeBackend) {
		b.orderStatus = http.StatusInternalServerError
		b.orderBody = map[string]any{"error": "stock check failed"}
	})

	resp, _ := s.do(t, http.MethodPost, "/cart/items", "alice", dumplings(3))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := s.do(t, http.MethodPost, "/checkout", "alice", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "out_of_stock", body["error"].(map[string]any)["kind"])
	rejected := body["checkout"].(map[string]any)
	assert.Equal(t, "order_failed", rejected["stage"])

	s.backend.set(func(b *fakeBackend) {
		b.orderStatus = http.StatusCreated
		b.orderBody = map[string]any{"orders": 43, "total_amount": "4.25"}
	})

	resp, body = s.do(t, http.MethodPost, "/checkout/"+rejected["id"].(string)+"/order", "alice", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "order_placed", body["stage"])
	assert.Equal(t, "43", body["orderId"])
}

func TestCheckout_EmptyCartAndDeclinedPayment(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, http.MethodPost, "/checkout", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Your cart is empty.", body["error"].(map[string]any)["message"])

	s.backend.set(func(b *fakeBackend) { b.payStatus = "failed" })
	resp, _ = s.do(t, http.MethodPost, "/cart/items", "alice", dumplings(3))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, body = s.do(t, http.MethodPost, "/checkout", "alice", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body = s.do(t, http.MethodPost, "/checkout/"+body["id"].(string)+"/pay", "alice", map[string]any{"paymentMethodId": "pm_1"})
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, "payment_failed", body["checkout"].(map[string]any)["stage"])

	// the cart survives a declined payment
	_, body = s.do(t, http.MethodGet, "/cart", "alice", nil)
	assert.Len(t, body["lines"], 1)
}

func TestPaymentMethodRoutes(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, http.MethodGet, "/payment-methods", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	methods := body["paymentMethods"].([]any)
	require.Len(t, methods, 1)

	resp, _ = s.do(t, http.MethodDelete, "/payment-methods/pm_1", "alice", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = s.do(t, http.MethodGet, "/payment-methods", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodGet, "/cart", "alice", nil)

	resp, err := http.Get(s.url + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "http_requests_total{")
	assert.Contains(t, buf.String(), `status="200"`)
}

func TestStatusOf(t *testing.T) {
	tests := map[failure.Kind]int{
		failure.KindUnauthenticated:  http.StatusUnauthorized,
		failure.KindOutOfStock:       http.StatusConflict,
		failure.KindConflict:         http.StatusConflict,
		failure.KindPaymentDeclined:  http.StatusPaymentRequired,
		failure.KindValidation:       http.StatusBadRequest,
		failure.KindNotFound:         http.StatusNotFound,
		failure.KindPersistenceParse: http.StatusInternalServerError,
		failure.KindNetworkOrServer:  http.StatusBadGateway,
	}
	for kind, want := range tests {
		t.Run(string(kind), func(t *testing.T) {
			assert.Equal(t, want, statusOf(kind))
		})
	}
}
