package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/Zhima-Mochi/foodcart/internal/domain/checkout"
	"github.com/Zhima-Mochi/foodcart/internal/domain/failure"
	"github.com/Zhima-Mochi/foodcart/internal/domain/payment"

	"github.com/shopspring/decimal"
)

type orderItem struct {
	FoodID   any `json:"food_id"`
	Quantity int `json:"quantity"`
}

type placeOrderRequest struct {
	Items   []orderItem `json:"items"`
	Remarks *string     `json:"remarks"`
}

// PlaceOrder creates the order and returns its id and the total the server computed.
func (c *Client) PlaceOrder(ctx context.Context, token string, lines []checkout.OrderLine, remarks *string) (string, decimal.Decimal, error) {
	req := placeOrderRequest{Items: make([]orderItem, 0, len(lines)), Remarks: remarks}
	for _, l := range lines {
		req.Items = append(req.Items, orderItem{FoodID: foodID(l.ItemID), Quantity: l.Quantity})
	}

	var resp map[string]any
	if err := c.do(ctx, http.MethodPost, "/orders", token, req, &resp); err != nil {
		return "", decimal.Zero, err
	}
	orderID := firstString(resp, "orders", "order_id", "id")
	if orderID == "" {
		if o := object(resp, "order"); o != nil {
			orderID = firstString(o, "id", "order_id")
		}
	}
	if orderID == "" {
		return "", decimal.Zero, failure.Wrap(failure.KindNetworkOrServer, failure.GenericMessage,
			fmt.Errorf("backend: order response has no order id"))
	}
	return orderID, firstDecimal(resp, "total_amount", "total_price", "total"), nil
}

type captureRequest struct {
	PaymentMethodID string `json:"paymentMethodId"`
}

// CapturePayment charges the order with a saved payment method.
func (c *Client) CapturePayment(ctx context.Context, token, orderID, paymentMethodID string) (payment.Capture, error) {
	var resp map[string]any
	path := "/orders/" + url.PathEscape(orderID) + "/stripe-payment"
	if err := c.do(ctx, http.MethodPost, path, token, captureRequest{PaymentMethodID: paymentMethodID}, &resp); err != nil {
		return payment.Capture{}, err
	}
	return captureOf(resp), nil
}

// PaymentStatus reads the current capture status of an order.
func (c *Client) PaymentStatus(ctx context.Context, token, orderID string) (payment.Capture, error) {
	var resp map[string]any
	path := "/orders/" + url.PathEscape(orderID) + "/stripe-payment"
	if err := c.do(ctx, http.MethodGet, path, token, nil, &resp); err != nil {
		return payment.Capture{}, err
	}
	return captureOf(resp), nil
}

func captureOf(resp map[string]any) payment.Capture {
	status := payment.ParseStatus(firstString(resp, "status", "payment_status"))
	if firstBool(resp, "requires_action") && status != payment.StatusSucceeded {
		status = payment.StatusRequiresAction
	}
	return payment.Capture{
		Status:  status,
		Message: firstString(resp, "message", "error"),
	}
}
