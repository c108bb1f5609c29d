// Package stripe confirms setup intents with Stripe on the server side.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Zhima-Mochi/foodcart/internal/domain/failure"

	stripeapi "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

const secretMarker = "_secret_"

// Confirmer confirms a setup intent identified by its client secret and
// returns the attached payment method id.
type Confirmer struct {
	api *client.API
}

func New(secretKey string) *Confirmer {
	return &Confirmer{api: client.New(secretKey, nil)}
}

// NewWithURL points the client at another API host, e.g. stripe-mock.
func NewWithURL(secretKey, url string) *Confirmer {
	backends := &stripeapi.Backends{
		API: stripeapi.GetBackendWithConfig(stripeapi.APIBackend, &stripeapi.BackendConfig{
			URL:               stripeapi.String(url),
			MaxNetworkRetries: stripeapi.Int64(0),
		}),
	}
	return &Confirmer{api: client.New(secretKey, backends)}
}

// IntentID extracts "seti_123" from "seti_123_secret_abc".
func IntentID(clientSecret string) (string, error) {
	i := strings.Index(clientSecret, secretMarker)
	if i <= 0 {
		return "", failure.Validation("client secret is malformed")
	}
	return clientSecret[:i], nil
}

func (c *Confirmer) ConfirmSetup(ctx context.Context, clientSecret, paymentMethodID string) (string, error) {
	id, err := IntentID(clientSecret)
	if err != nil {
		return "", err
	}
	if paymentMethodID == "" {
		return "", failure.Validation("payment method is required")
	}

	params := &stripeapi.SetupIntentConfirmParams{
		PaymentMethod: stripeapi.String(paymentMethodID),
	}
	params.Context = ctx

	si, err := c.api.SetupIntents.Confirm(id, params)
	if err != nil {
		var se *stripeapi.Error
		if errors.As(err, &se) {
			msg := se.Msg
			if msg == "" {
				msg = "Card setup was declined."
			}
			return "", failure.Wrap(failure.KindPaymentDeclined, msg, err)
		}
		return "", failure.Wrap(failure.KindNetworkOrServer, failure.GenericMessage, fmt.Errorf("stripe: confirm setup: %w", err))
	}

	switch si.Status {
	case stripeapi.SetupIntentStatusSucceeded:
	case stripeapi.SetupIntentStatusRequiresAction:
		return "", failure.New(failure.KindPaymentDeclined, "Additional authentication is required. Please try again or use a different card.")
	default:
		msg := "Card setup failed. Please try again."
		if si.LastSetupError != nil && si.LastSetupError.Msg != "" {
			msg = si.LastSetupError.Msg
		}
		return "", failure.New(failure.KindPaymentDeclined, msg)
	}

	if si.PaymentMethod != nil && si.PaymentMethod.ID != "" {
		return si.PaymentMethod.ID, nil
	}
	return paymentMethodID, nil
}
