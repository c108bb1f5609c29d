package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Zhima-Mochi/foodcart/internal/domain/checkout"
	"github.com/Zhima-Mochi/foodcart/internal/domain/failure"
	"github.com/Zhima-Mochi/foodcart/internal/domain/payment"
	"github.com/Zhima-Mochi/foodcart/internal/domain/stock"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, r http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/api", 2*time.Second, WithHTTPClient(srv.Client()))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestPlaceOrder(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/api/orders", func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "Bearer tok", req.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		items := body["items"].([]any)
		require.Len(t, items, 2)
		first := items[0].(map[string]any)
		assert.Equal(t, float64(7), first["food_id"])
		assert.Equal(t, float64(2), first["quantity"])
		assert.Equal(t, "abc", items[1].(map[string]any)["food_id"])
		assert.Nil(t, body["remarks"])
		writeJSON(w, http.StatusCreated, map[string]any{"orders": 42, "total_amount": "25.50"})
	})
	c := newTestClient(t, r)

	id, total, err := c.PlaceOrder(context.Background(), "tok",
		[]checkout.OrderLine{{ItemID: "7", Quantity: 2}, {ItemID: "abc", Quantity: 1}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "42", id)
	assert.True(t, decimal.RequireFromString("25.5").Equal(total))
}

func TestPlaceOrder_ServerErrorKeepsStatusAndMessage(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/api/orders", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "stock check failed"})
	})
	c := newTestClient(t, r)

	_, _, err := c.PlaceOrder(context.Background(), "tok", []checkout.OrderLine{{ItemID: "1", Quantity: 1}}, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, failure.StatusOf(err))
	assert.Equal(t, failure.KindNetworkOrServer, failure.KindOf(err))
	assert.Equal(t, "stock check failed", failure.MessageOf(err))
}

func TestUnauthorizedMapsToUnauthenticated(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/payment-methods", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	c := newTestClient(t, r)

	_, err := c.ListPaymentMethods(context.Background(), "")
	assert.ErrorIs(t, err, failure.ErrUnauthenticated)
}

func TestCaptureAndStatus(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/api/orders/{id}/stripe-payment", func(w http.ResponseWriter, req *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, "pm_1", body["paymentMethodId"])
		assert.Equal(t, "42", chi.URLParam(req, "id"))
		writeJSON(w, http.StatusOK, map[string]any{"status": "requires_payment_method", "requires_action": true})
	})
	r.Get("/api/orders/{id}/stripe-payment", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "processing"})
	})
	c := newTestClient(t, r)

	capture, err := c.CapturePayment(context.Background(), "tok", "42", "pm_1")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusRequiresAction, capture.Status)

	capture, err = c.PaymentStatus(context.Background(), "tok", "42")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusProcessing, capture.Status)
}

func TestPaymentMethods(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/api/payment-methods/stripe/setup-intent", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"client_secret": "seti_1_secret_abc"})
	})
	r.Post("/api/payment-methods/stripe/save", func(w http.ResponseWriter, req *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		writeJSON(w, http.StatusOK, map[string]any{"payment_method_id": body["payment_method_id"]})
	})
	r.Get("/api/payment-methods", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"payment_methods": []any{
			map[string]any{"stripe_payment_method_id": "pm_1", "card": map[string]any{"brand": "visa", "last4": "4242", "exp_month": 4, "exp_year": 2030}},
			map[string]any{"brand": "amex"},
		}})
	})
	deleted := ""
	r.Delete("/api/payment-methods/stripe/{id}", func(w http.ResponseWriter, req *http.Request) {
		deleted = chi.URLParam(req, "id")
		w.WriteHeader(http.StatusNoContent)
	})
	c := newTestClient(t, r)
	ctx := context.Background()

	secret, err := c.CreateSetupIntent(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "seti_1_secret_abc", secret)

	id, err := c.SavePaymentMethod(ctx, "tok", "pm_9")
	require.NoError(t, err)
	assert.Equal(t, "pm_9", id)

	methods, err := c.ListPaymentMethods(ctx, "tok")
	require.NoError(t, err)
	require.Len(t, methods, 1)
	assert.Equal(t, payment.Method{ID: "pm_1", Brand: "visa", Last4: "4242", ExpMonth: 4, ExpYear: 2030}, methods[0])

	require.NoError(t, c.DeletePaymentMethod(ctx, "tok", "pm_1"))
	assert.Equal(t, "pm_1", deleted)
}

func TestItem_UnwrapsAndKeepsNumbers(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/foods/{id}", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"food": map[string]any{"id": 7, "price": 9.5, "stock_quantity": 4}})
	})
	r.Get("/api/foods/missing", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	c := newTestClient(t, r)

	record, err := c.Item(context.Background(), "tok", "7")
	require.NoError(t, err)
	assert.Equal(t, 4, stock.Of(record))

	_, err = c.Item(context.Background(), "tok", "missing")
	assert.ErrorIs(t, err, failure.ErrNotFound)
}

func TestBreakerOpensOnTransportFailures(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url, 200*time.Millisecond)
	var last error
	for i := 0; i < 6; i++ {
		_, last = c.CreateSetupIntent(context.Background(), "tok")
	}
	assert.Equal(t, failure.KindNetworkOrServer, failure.KindOf(last))
	assert.True(t, errors.Is(last, gobreaker.ErrOpenState))
}

func TestBreakerIgnoresCanceledCalls(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/foods/{id}", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"food": map[string]any{"id": 7, "stock": 2}})
	})
	c := newTestClient(t, r)

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 6; i++ {
		_, err := c.Item(canceled, "tok", "7")
		require.ErrorIs(t, err, context.Canceled)
	}

	record, err := c.Item(context.Background(), "tok", "7")
	require.NoError(t, err)
	assert.Equal(t, 2, stock.Of(record))
}

func TestCaptureOf(t *testing.T) {
	tests := []struct {
		name string
		resp map[string]any
		want payment.Capture
	}{
		{"succeeded wins over requires_action", map[string]any{"status": "succeeded", "requires_action": true}, payment.Capture{Status: payment.StatusSucceeded}},
		{"requires_action flag", map[string]any{"status": "requires_confirmation", "requires_action": true}, payment.Capture{Status: payment.StatusRequiresAction}},
		{"payment_status and error message", map[string]any{"payment_status": "card_declined", "error": "Your card was declined."}, payment.Capture{Status: payment.StatusFailed, Message: "Your card was declined."}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, captureOf(tt.resp))
		})
	}
}
