package httppresentation

import (
	"net/http"

	domcheckout "github.com/Zhima-Mochi/foodcart/internal/domain/checkout"
	"github.com/Zhima-Mochi/foodcart/internal/domain/failure"
	"github.com/Zhima-Mochi/foodcart/internal/observability"
	"github.com/Zhima-Mochi/foodcart/internal/observability/logctx"
)

type errorBody struct {
	Kind    failure.Kind `json:"kind"`
	Message string       `json:"message"`
}

type errorResponse struct {
	Error    errorBody         `json:"error"`
	Checkout *checkoutResponse `json:"checkout,omitempty"`
}

func statusOf(kind failure.Kind) int {
	switch kind {
	case failure.KindUnauthenticated:
		return http.StatusUnauthorized
	case failure.KindOutOfStock, failure.KindConflict:
		return http.StatusConflict
	case failure.KindPaymentDeclined:
		return http.StatusPaymentRequired
	case failure.KindValidation:
		return http.StatusBadRequest
	case failure.KindNotFound:
		return http.StatusNotFound
	case failure.KindPersistenceParse:
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	h.writeCheckoutError(w, r, nil, err)
}

// writeCheckoutError answers with the failure kind and its user-facing
// message, plus the checkout state when the failed step recorded one.
func (h *Handler) writeCheckoutError(w http.ResponseWriter, r *http.Request, c *domcheckout.Checkout, err error) {
	kind := failure.KindOf(err)
	status := statusOf(kind)
	if status >= http.StatusInternalServerError {
		logctx.FromOr(r.Context(), h.log).Error("http_request_failed",
			observability.F("kind", string(kind)),
			observability.F("error", err.Error()),
		)
	}

	resp := errorResponse{Error: errorBody{Kind: kind, Message: failure.MessageOf(err)}}
	if c != nil {
		cr := checkoutResponseOf(c)
		resp.Checkout = &cr
	}
	writeJSON(w, status, resp)
}
