package checkout

import (
	"context"
	"errors"
	"fmt"
)

// ErrorClass groups payment errors by how they are surfaced and recovered.
type ErrorClass string

const (
	// ClassValidation is a local input error. It never reaches the network,
	// blocks payability, and is not shown as a payment failure.
	ClassValidation ErrorClass = "validation"
	// ClassSessionExpired means the card network signaled a stale session
	// token. Surfaced with a retry that invalidates the cache entry.
	ClassSessionExpired ErrorClass = "session_expired"
	// ClassProviderDeclined means the payment itself was rejected.
	// Terminal for the attempt; the gate remains payable for a new one.
	ClassProviderDeclined ErrorClass = "provider_declined"
	// ClassTransport is a timeout or connectivity failure. Retryable.
	ClassTransport ErrorClass = "transport"
	// ClassSDK means the third-party widget itself threw. The widget is
	// torn down and one fresh mount is attempted before escalating.
	ClassSDK ErrorClass = "sdk"
	// ClassCancelled is a user-initiated abort. Not an error state for
	// logging purposes; the status machine returns silently to idle.
	ClassCancelled ErrorClass = "cancelled"
)

// Error is a payment-specific error with a class, a stable code, and a
// human-readable message.
type Error struct {
	Class   ErrorClass             `json:"class"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Retryable reports whether a retry affordance should be shown for this
// error. Only classes known to be transient qualify.
func (e *Error) Retryable() bool {
	switch e.Class {
	case ClassSessionExpired, ClassTransport, ClassSDK:
		return true
	}
	return false
}

// Common error codes.
const (
	ErrCodeInvalidFields      = "invalid_fields"
	ErrCodeSessionExpired     = "session_expired"
	ErrCodeSessionCreation    = "session_creation_failed"
	ErrCodePaymentDeclined    = "payment_declined"
	ErrCodeOrderCreation      = "order_creation_failed"
	ErrCodeCaptureFailed      = "capture_failed"
	ErrCodeTimeout            = "timeout"
	ErrCodeConnectivity       = "connectivity"
	ErrCodeWidgetFailure      = "widget_failure"
	ErrCodeWidgetUnavailable  = "widget_unavailable"
	ErrCodeCancelled          = "cancelled"
	ErrCodeCheckoutClosed     = "checkout_closed"
	ErrCodeInvalidOffer       = "invalid_offer"
	ErrCodeInvalidCatalog     = "invalid_catalog"
	ErrCodeProviderResponse   = "invalid_provider_response"
	ErrCodeProviderRejected   = "provider_rejected"
)

// NewError creates a new payment error.
func NewError(class ErrorClass, code, message string, details map[string]interface{}) *Error {
	return &Error{
		Class:   class,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// Classify extracts the error class from err. Context deadline and
// cancellation errors map to the transport class so that caller-side
// timeouts get the same "transient, retryable" treatment as network
// failures. Anything unrecognized is treated as transport.
func Classify(err error) ErrorClass {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Class
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ClassTransport
	}
	return ClassTransport
}

// AsError converts err into an *Error, wrapping unclassified errors as
// transport failures with a generic message.
func AsError(err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(ClassTransport, ErrCodeTimeout, "the payment service took too long to respond", nil)
	}
	return NewError(ClassTransport, ErrCodeConnectivity, "could not reach the payment service", map[string]interface{}{
		"cause": err.Error(),
	})
}
