package x402

import (
	"errors"
	"fmt"
)

// Config validation errors
var (
	ErrMissingRecipient    = errors.New("x402: recipient is required")
	ErrInvalidRecipient    = errors.New("x402: recipient is not a valid address")
	ErrMissingPrice        = errors.New("x402: price is required")
	ErrInvalidPrice        = errors.New("x402: price must be a positive integer in atomic units")
	ErrUnsupportedNetwork  = errors.New("x402: unsupported network")
	ErrInvalidOutputSchema = errors.New("x402: invalid output schema")
	ErrInvalidRoutePattern = errors.New("x402: invalid route pattern")
)

// PaymentError represents a payment-specific error
type PaymentError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes written in the "error" field of non-402 responses.
const (
	ErrCodeInvalidPayment     = "invalid_payment"
	ErrCodePaymentRequired    = "payment_required"
	ErrCodePaymentConflict    = "payment_conflict"
	ErrCodeSettlementFailed   = "settlement_failed"
	ErrCodeConfiguration      = "configuration_error"
	ErrCodeFacilitatorFailure = "facilitator_error"
)

// NewPaymentError creates a new payment error
func NewPaymentError(code, message string, details map[string]interface{}) *PaymentError {
	return &PaymentError{
		Code:    code,
		Message: message,
		Details: details,
	}
}
