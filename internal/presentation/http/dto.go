package httppresentation

import (
	"time"

	domcart "github.com/Zhima-Mochi/foodcart/internal/domain/cart"
	domcheckout "github.com/Zhima-Mochi/foodcart/internal/domain/checkout"
	"github.com/Zhima-Mochi/foodcart/internal/domain/failure"
	"github.com/Zhima-Mochi/foodcart/internal/domain/payment"
)

type cartResponse struct {
	OwnerID string         `json:"ownerId"`
	Lines   []domcart.Line `json:"lines"`
	Totals  domcart.Totals `json:"totals"`
	Outcome string         `json:"outcome,omitempty"`
}

func cartResponseOf(c *domcart.Cart, outcome string) cartResponse {
	lines := c.Lines
	if lines == nil {
		lines = []domcart.Line{}
	}
	return cartResponse{
		OwnerID: c.OwnerID,
		Lines:   lines,
		Totals:  c.Totals(),
		Outcome: outcome,
	}
}

type checkoutResponse struct {
	ID              string                  `json:"id"`
	Stage           domcheckout.Stage       `json:"stage"`
	Pending         bool                    `json:"pending"`
	Lines           []domcheckout.OrderLine `json:"lines"`
	Remarks         *string                 `json:"remarks"`
	OrderID         string                  `json:"orderId,omitempty"`
	Total           string                  `json:"total,omitempty"`
	ClientSecret    string                  `json:"clientSecret,omitempty"`
	PaymentMethodID string                  `json:"paymentMethodId,omitempty"`
	PaymentStatus   payment.Status          `json:"paymentStatus,omitempty"`
	FailureKind     failure.Kind            `json:"failureKind,omitempty"`
	Message         string                  `json:"message,omitempty"`
	CreatedAt       time.Time               `json:"createdAt"`
	UpdatedAt       time.Time               `json:"updatedAt"`
}

func checkoutResponseOf(c *domcheckout.Checkout) checkoutResponse {
	resp := checkoutResponse{
		ID:              c.ID,
		Stage:           c.Stage,
		Pending:         c.Stage.Pending(),
		Lines:           c.Lines,
		Remarks:         c.Remarks,
		OrderID:         c.OrderID,
		ClientSecret:    c.ClientSecret,
		PaymentMethodID: c.PaymentMethodID,
		PaymentStatus:   c.PaymentStatus,
		FailureKind:     c.FailureKind,
		Message:         c.Message,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
	if c.OrderID != "" {
		resp.Total = c.Total.String()
	}
	return resp
}
