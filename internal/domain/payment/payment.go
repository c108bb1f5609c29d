package payment

import (
	"context"
	"strings"
)

// Status is the capture result reported by the order service.
type Status string

const (
	StatusSucceeded      Status = "succeeded"
	StatusRequiresAction Status = "requires_action"
	StatusProcessing     Status = "processing"
	StatusFailed         Status = "failed"
)

// ParseStatus normalises an upstream status. Anything unrecognised is a failure.
func ParseStatus(s string) Status {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusSucceeded:
		return StatusSucceeded
	case StatusRequiresAction, "requires_source_action":
		return StatusRequiresAction
	case StatusProcessing:
		return StatusProcessing
	default:
		return StatusFailed
	}
}

// Terminal reports whether polling can stop.
func (s Status) Terminal() bool { return s != StatusProcessing }

// Capture is the result of charging an order with a payment method.
type Capture struct {
	Status  Status
	Message string
}

// Method is a saved payment method reference. Card data never leaves the provider.
type Method struct {
	ID       string `json:"id"`
	Brand    string `json:"brand,omitempty"`
	Last4    string `json:"last4,omitempty"`
	ExpMonth int    `json:"expMonth,omitempty"`
	ExpYear  int    `json:"expYear,omitempty"`
	Default  bool   `json:"default,omitempty"`
}

// SetupConfirmer confirms a setup intent with the payment provider and returns
// the resulting payment method reference.
type SetupConfirmer interface {
	ConfirmSetup(ctx context.Context, clientSecret, paymentMethodID string) (string, error)
}
