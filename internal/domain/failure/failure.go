// Package failure holds the error kinds surfaced to storefront users.
package failure

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindUnauthenticated  Kind = "unauthenticated"
	KindOutOfStock       Kind = "out_of_stock"
	KindNetworkOrServer  Kind = "network_or_server"
	KindPaymentDeclined  Kind = "payment_declined_or_action"
	KindPersistenceParse Kind = "persistence_parse"
	KindValidation       Kind = "validation"
	KindNotFound         Kind = "not_found"
	KindConflict         Kind = "conflict"
)

// GenericMessage is shown when the upstream did not explain a failure.
const GenericMessage = "Something went wrong. Please try again."

// OutOfStockMessage is shown when the order endpoint reports a stock conflict.
const OutOfStockMessage = "Foods out of stock. Go find other foods."

var (
	ErrUnauthenticated  = &Error{Kind: KindUnauthenticated, Message: "Please log in to continue."}
	ErrOutOfStock       = &Error{Kind: KindOutOfStock, Message: OutOfStockMessage}
	ErrNetworkOrServer  = &Error{Kind: KindNetworkOrServer, Message: GenericMessage}
	ErrPaymentDeclined  = &Error{Kind: KindPaymentDeclined, Message: "Payment was declined."}
	ErrPersistenceParse = &Error{Kind: KindPersistenceParse, Message: "stored data is unreadable"}
	ErrValidation       = &Error{Kind: KindValidation, Message: "invalid request"}
	ErrNotFound         = &Error{Kind: KindNotFound, Message: "not found"}
	ErrConflict         = &Error{Kind: KindConflict, Message: "conflicting request"}
)

// Error is a classified failure. Message is safe to show to the user.
type Error struct {
	Kind    Kind
	Message string
	// Status is the upstream HTTP status when the failure came from the backend.
	Status int
	Err    error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the package sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in the chain, or KindNetworkOrServer.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindNetworkOrServer
}

// MessageOf returns the user-facing message for err, falling back to GenericMessage.
func MessageOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) && fe.Message != "" {
		return fe.Message
	}
	return GenericMessage
}

// StatusOf returns the upstream HTTP status recorded on err, or 0.
func StatusOf(err error) int {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Status
	}
	return 0
}

func Validation(message string) *Error {
	return New(KindValidation, message)
}
