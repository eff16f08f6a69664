package types

import (
	"encoding/json"
	"time"
)

// PaymentRequirements represents the payment requirements for a resource
type PaymentRequirements struct {
	Scheme            string          `json:"scheme"`
	Network           string          `json:"network"`
	MaxAmountRequired string          `json:"maxAmountRequired"`
	Resource          string          `json:"resource"`
	Description       string          `json:"description"`
	MimeType          string          `json:"mimeType"`
	OutputSchema      json.RawMessage `json:"outputSchema,omitempty"`
	PayTo             string          `json:"payTo"`
	MaxTimeoutSeconds int             `json:"maxTimeoutSeconds"`
	// Asset is empty for the chain's native token.
	Asset string         `json:"asset,omitempty"`
	Extra map[string]any `json:"extra,omitempty"`
}

// ExactNativePayload is the scheme-specific part of an "exact" payment:
// a fully signed native-token transfer, hex encoded.
type ExactNativePayload struct {
	SignedTransaction string `json:"signedTransaction"`
}

// PaymentPayload represents the decoded X-PAYMENT header.
type PaymentPayload struct {
	X402Version int                `json:"x402Version"`
	Scheme      string             `json:"scheme"`
	Network     string             `json:"network"`
	Payload     ExactNativePayload `json:"payload"`
}

// VerifyResponse represents the response from the verify endpoint
type VerifyResponse struct {
	IsValid       bool    `json:"isValid"`
	InvalidReason *string `json:"invalidReason"`
	Payer         string  `json:"payer,omitempty"`
}

// SettleResponse represents the response from the settle endpoint
type SettleResponse struct {
	Success   bool    `json:"success"`
	Error     *string `json:"error"`
	TxHash    *string `json:"txHash"`
	NetworkID *string `json:"networkId"`
	Payer     string  `json:"payer,omitempty"`
}

// PaymentResponse is the decoded X-PAYMENT-RESPONSE header.
type PaymentResponse struct {
	Settlement SettleResponse `json:"settlement"`
}

// PaymentRequiredResponse is the body of a 402 response.
type PaymentRequiredResponse struct {
	X402Version int                   `json:"x402Version"`
	Error       string                `json:"error,omitempty"`
	Accepts     []PaymentRequirements `json:"accepts"`
	// BotDetected carries the classifier label when a bot-gating middleware issued the challenge.
	BotDetected string `json:"botDetected,omitempty"`
	// Settlement is set when the payment was broadcast but not confirmed, so the client can
	// follow its transaction instead of paying again.
	Settlement *SettleResponse `json:"settlement,omitempty"`
}

// ErrorResponse is the body of 403, 409 and 500 responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// FacilitatorRequest is the body of both POST /verify and POST /settle.
type FacilitatorRequest struct {
	X402Version         int                  `json:"x402Version"`
	PaymentHeader       string               `json:"paymentHeader"`
	PaymentRequirements *PaymentRequirements `json:"paymentRequirements"`
}

type (
	// VerifyRequest represents the request body for Facilitator /verify endpoint.
	VerifyRequest = FacilitatorRequest
	// SettleRequest represents the request body for Facilitator /settle endpoint.
	SettleRequest = FacilitatorRequest
)

// SupportedKind represents a supported scheme-network pair from /supported endpoint.
type SupportedKind struct {
	X402Version int    `json:"x402Version"`
	Scheme      string `json:"scheme"`
	Network     string `json:"network"`
}

// SupportedResponse represents the response from Facilitator /supported endpoint.
type SupportedResponse struct {
	Kinds []SupportedKind `json:"kinds"`
}

// FacilitatorConfig represents configuration for the facilitator service
type FacilitatorConfig struct {
	URL               string
	Timeout           func() time.Duration
	CreateAuthHeaders func() (map[string]map[string]string, error)
}

// StringPtr returns a pointer to s; handy for the nullable reason fields.
func StringPtr(s string) *string {
	return &s
}

// Deref returns the pointed-to string, or "" for nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
