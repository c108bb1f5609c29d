package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/Zhima-Mochi/foodcart/internal/domain/failure"
	"github.com/Zhima-Mochi/foodcart/internal/domain/payment"
)

// CreateSetupIntent asks the server for a new setup intent and returns its client secret.
func (c *Client) CreateSetupIntent(ctx context.Context, token string) (string, error) {
	var resp map[string]any
	if err := c.do(ctx, http.MethodPost, "/payment-methods/stripe/setup-intent", token, struct{}{}, &resp); err != nil {
		return "", err
	}
	secret := firstString(resp, "client_secret", "clientSecret")
	if secret == "" {
		return "", failure.Wrap(failure.KindNetworkOrServer, failure.GenericMessage,
			fmt.Errorf("backend: setup intent response has no client secret"))
	}
	return secret, nil
}

type saveMethodRequest struct {
	PaymentMethodID string `json:"payment_method_id"`
}

// SavePaymentMethod stores the method for reuse and returns the id the server kept.
func (c *Client) SavePaymentMethod(ctx context.Context, token, paymentMethodID string) (string, error) {
	var resp map[string]any
	if err := c.do(ctx, http.MethodPost, "/payment-methods/stripe/save", token, saveMethodRequest{PaymentMethodID: paymentMethodID}, &resp); err != nil {
		return "", err
	}
	if id := firstString(resp, "payment_method_id", "id"); id != "" {
		return id, nil
	}
	return paymentMethodID, nil
}

// ListPaymentMethods accepts either a bare array or one wrapped in an object.
func (c *Client) ListPaymentMethods(ctx context.Context, token string) ([]payment.Method, error) {
	var resp any
	if err := c.do(ctx, http.MethodGet, "/payment-methods", token, nil, &resp); err != nil {
		return nil, err
	}

	var items []any
	switch v := resp.(type) {
	case []any:
		items = v
	case map[string]any:
		for _, k := range []string{"payment_methods", "paymentMethods", "data", "results"} {
			if list, ok := v[k].([]any); ok {
				items = list
				break
			}
		}
	}

	methods := make([]payment.Method, 0, len(items))
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		method := methodOf(m)
		if method.ID == "" {
			continue
		}
		methods = append(methods, method)
	}
	return methods, nil
}

func methodOf(m map[string]any) payment.Method {
	card := object(m, "card")
	if card == nil {
		card = m
	}
	return payment.Method{
		ID:       firstString(m, "stripe_payment_method_id", "payment_method_id", "id"),
		Brand:    firstString(card, "brand", "card_brand"),
		Last4:    firstString(card, "last4", "last_four"),
		ExpMonth: firstInt(card, "exp_month", "expMonth"),
		ExpYear:  firstInt(card, "exp_year", "expYear"),
		Default:  firstBool(m, "is_default", "default"),
	}
}

func (c *Client) DeletePaymentMethod(ctx context.Context, token, paymentMethodID string) error {
	return c.do(ctx, http.MethodDelete, "/payment-methods/stripe/"+url.PathEscape(paymentMethodID), token, nil, nil)
}
