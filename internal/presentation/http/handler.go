package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/Zhima-Mochi/foodcart/internal/application/checkout"
	"github.com/Zhima-Mochi/foodcart/internal/auth"
	domcart "github.com/Zhima-Mochi/foodcart/internal/domain/cart"
	domcheckout "github.com/Zhima-Mochi/foodcart/internal/domain/checkout"
	"github.com/Zhima-Mochi/foodcart/internal/domain/failure"
	"github.com/Zhima-Mochi/foodcart/internal/domain/payment"
	"github.com/Zhima-Mochi/foodcart/internal/observability"

	"github.com/go-chi/chi/v5"
)

const (
	componentHTTPHandler = "http_server"
	maxBodyBytes         = 1 << 20
)

type CartService interface {
	Get(ctx context.Context, s auth.Session) (*domcart.Cart, error)
	AddItem(ctx context.Context, s auth.Session, record map[string]any) (*domcart.Cart, domcart.AddOutcome, error)
	RemoveItem(ctx context.Context, s auth.Session, itemID string) (*domcart.Cart, error)
	UpdateQuantity(ctx context.Context, s auth.Session, itemID string, requested int) (*domcart.Cart, domcart.UpdateOutcome, error)
	Clear(ctx context.Context, s auth.Session) (*domcart.Cart, error)
}

type CheckoutService interface {
	PlaceOrder(ctx context.Context, s auth.Session, in checkout.PlaceOrderInput) (*domcheckout.Checkout, error)
	Get(ctx context.Context, s auth.Session, checkoutID string) (*domcheckout.Checkout, error)
	CreatePaymentSetup(ctx context.Context, s auth.Session, checkoutID string) (*domcheckout.Checkout, error)
	ConfirmCardPayment(ctx context.Context, s auth.Session, checkoutID, paymentMethodID string) (*domcheckout.Checkout, error)
	PayWithSavedMethod(ctx context.Context, s auth.Session, checkoutID, paymentMethodID string) (*domcheckout.Checkout, error)
}

type PaymentMethodService interface {
	List(ctx context.Context, s auth.Session) ([]payment.Method, error)
	Delete(ctx context.Context, s auth.Session, paymentMethodID string) error
}

type Handler struct {
	carts     CartService
	checkouts CheckoutService
	methods   PaymentMethodService
	metrics   http.Handler
	log       observability.Logger

	httpRequests observability.Counter   // http_requests_total{method,route,status}
	httpDuration observability.Histogram // http_request_duration_seconds{method,route}
}

// NewHandler wires the HTTP surface. metrics serves /metrics and may be nil.
func NewHandler(
	carts CartService,
	checkouts CheckoutService,
	methods PaymentMethodService,
	metrics http.Handler,
	tel observability.Observability,
) *Handler {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Handler{
		carts:        carts,
		checkouts:    checkouts,
		methods:      methods,
		metrics:      metrics,
		log:          tel.Logger().With(observability.F("component", componentHTTPHandler)),
		httpRequests: tel.Metrics().Counter(observability.MHTTPRequests),
		httpDuration: tel.Metrics().Histogram(observability.MHTTPRequestDuration),
	}
}

// Router wires every route behind Trace → request logger → metrics → access
// log → session.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(h.withTrace, h.withRequestLogger, h.withHTTPMetrics, h.withAccessLog, h.withSession)

	r.Get("/health", h.handleHealth)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Route("/cart", func(r chi.Router) {
		r.Get("/", h.handleGetCart)
		r.Delete("/", h.handleClearCart)
		r.Post("/items", h.handleAddItem)
		r.Put("/items/{itemID}", h.handleUpdateQuantity)
		r.Delete("/items/{itemID}", h.handleRemoveItem)
	})

	r.Route("/checkout", func(r chi.Router) {
		r.Post("/", h.handlePlaceOrder)
		r.Get("/{checkoutID}", h.handleGetCheckout)
		r.Post("/{checkoutID}/order", h.handleRetryOrder)
		r.Post("/{checkoutID}/setup-intent", h.handleCreateSetup)
		r.Post("/{checkoutID}/confirm", h.handleConfirmCard)
		r.Post("/{checkoutID}/pay", h.handlePaySaved)
	})

	r.Get("/payment-methods", h.handleListMethods)
	r.Delete("/payment-methods/{methodID}", h.handleDeleteMethod)

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Get(r.Context(), auth.From(r.Context()))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResponseOf(c, ""))
}

// handleAddItem takes the catalog record of the item as the body. Its shape
// is not fixed, so unknown fields are kept.
func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var record map[string]any
	if err := decodeRecord(r, &record); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if inner, ok := record["item"].(map[string]any); ok {
		record = inner
	}

	c, outcome, err := h.carts.AddItem(r.Context(), auth.From(r.Context()), record)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	status := http.StatusOK
	if outcome == domcart.AddCreated {
		status = http.StatusCreated
	}
	writeJSON(w, status, cartResponseOf(c, string(outcome)))
}

type updateQuantityRequest struct {
	Quantity *int `json:"quantity"`
}

func (h *Handler) handleUpdateQuantity(w http.ResponseWriter, r *http.Request) {
	var req updateQuantityRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if req.Quantity == nil {
		h.writeDomainError(w, r, failure.Validation("quantity is required"))
		return
	}

	c, outcome, err := h.carts.UpdateQuantity(r.Context(), auth.From(r.Context()), chi.URLParam(r, "itemID"), *req.Quantity)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResponseOf(c, string(outcome)))
}

func (h *Handler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.RemoveItem(r.Context(), auth.From(r.Context()), chi.URLParam(r, "itemID"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResponseOf(c, ""))
}

func (h *Handler) handleClearCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Clear(r.Context(), auth.From(r.Context()))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResponseOf(c, ""))
}

type placeOrderRequest struct {
	Remarks string `json:"remarks"`
}

func (h *Handler) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	h.placeOrder(w, r, "")
}

// handleRetryOrder re-submits a checkout whose order placement failed.
func (h *Handler) handleRetryOrder(w http.ResponseWriter, r *http.Request) {
	h.placeOrder(w, r, chi.URLParam(r, "checkoutID"))
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request, checkoutID string) {
	var req placeOrderRequest
	if err := decodeJSON(r, &req, true); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	c, err := h.checkouts.PlaceOrder(r.Context(), auth.From(r.Context()), checkout.PlaceOrderInput{
		CheckoutID: checkoutID,
		Remarks:    req.Remarks,
	})
	if err != nil {
		h.writeCheckoutError(w, r, c, err)
		return
	}
	writeJSON(w, http.StatusCreated, checkoutResponseOf(c))
}

func (h *Handler) handleGetCheckout(w http.ResponseWriter, r *http.Request) {
	c, err := h.checkouts.Get(r.Context(), auth.From(r.Context()), chi.URLParam(r, "checkoutID"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, checkoutResponseOf(c))
}

func (h *Handler) handleCreateSetup(w http.ResponseWriter, r *http.Request) {
	c, err := h.checkouts.CreatePaymentSetup(r.Context(), auth.From(r.Context()), chi.URLParam(r, "checkoutID"))
	if err != nil {
		h.writeCheckoutError(w, r, c, err)
		return
	}
	writeJSON(w, http.StatusOK, checkoutResponseOf(c))
}

type paymentRequest struct {
	PaymentMethodID string `json:"paymentMethodId"`
}

func (h *Handler) handleConfirmCard(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	c, err := h.checkouts.ConfirmCardPayment(r.Context(), auth.From(r.Context()), chi.URLParam(r, "checkoutID"), req.PaymentMethodID)
	if err != nil {
		h.writeCheckoutError(w, r, c, err)
		return
	}
	writeJSON(w, statusOfPayment(c), checkoutResponseOf(c))
}

func (h *Handler) handlePaySaved(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	c, err := h.checkouts.PayWithSavedMethod(r.Context(), auth.From(r.Context()), chi.URLParam(r, "checkoutID"), req.PaymentMethodID)
	if err != nil {
		h.writeCheckoutError(w, r, c, err)
		return
	}
	writeJSON(w, statusOfPayment(c), checkoutResponseOf(c))
}

// statusOfPayment answers 202 while the payment is still processing.
func statusOfPayment(c *domcheckout.Checkout) int {
	if c.Stage == domcheckout.StagePaymentProcessing {
		return http.StatusAccepted
	}
	return http.StatusOK
}

func (h *Handler) handleListMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := h.methods.List(r.Context(), auth.From(r.Context()))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if methods == nil {
		methods = []payment.Method{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"paymentMethods": methods})
}

func (h *Handler) handleDeleteMethod(w http.ResponseWriter, r *http.Request) {
	if err := h.methods.Delete(r.Context(), auth.From(r.Context()), chi.URLParam(r, "methodID")); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeJSON decodes a typed body. An empty body is accepted when optional.
func decodeJSON(r *http.Request, dst any, optional bool) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return failure.Wrap(failure.KindValidation, "request body is invalid", err)
	}
	return nil
}

func decodeRecord(r *http.Request, dst *map[string]any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.UseNumber()
	if err := decoder.Decode(dst); err != nil {
		return failure.Wrap(failure.KindValidation, "request body is invalid", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
