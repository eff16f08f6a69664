package types

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// DecodeStage names the step of header decoding that failed.
type DecodeStage string

const (
	DecodeStageBase64 DecodeStage = "base64"
	DecodeStageJSON   DecodeStage = "json"
)

// DecodeError is returned when a base64 JSON header cannot be decoded.
type DecodeError struct {
	Stage DecodeStage
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s: %v", e.Stage, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// EncodePaymentHeader encodes a PaymentPayload for the X-PAYMENT header.
func EncodePaymentHeader(payload *PaymentPayload) (string, error) {
	return encodeBase64JSON(payload)
}

// DecodePaymentHeader decodes an X-PAYMENT header value. The declared version is kept as sent
// so callers can reject unsupported versions.
func DecodePaymentHeader(encoded string) (*PaymentPayload, error) {
	var payload PaymentPayload
	if err := decodeBase64JSON(encoded, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// EncodePaymentResponse encodes a settlement for the X-PAYMENT-RESPONSE header.
func EncodePaymentResponse(settlement SettleResponse) (string, error) {
	return encodeBase64JSON(PaymentResponse{Settlement: settlement})
}

// DecodePaymentResponse decodes an X-PAYMENT-RESPONSE header value.
func DecodePaymentResponse(encoded string) (*PaymentResponse, error) {
	var resp PaymentResponse
	if err := decodeBase64JSON(encoded, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func encodeBase64JSON(v any) (string, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal header: %w", err)
	}
	return base64.StdEncoding.EncodeToString(jsonBytes), nil
}

func decodeBase64JSON(encoded string, v any) error {
	decodedBytes, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return &DecodeError{Stage: DecodeStageBase64, Err: err}
	}
	if err := json.Unmarshal(decodedBytes, v); err != nil {
		return &DecodeError{Stage: DecodeStageJSON, Err: err}
	}
	return nil
}
