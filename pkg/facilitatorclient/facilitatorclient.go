package facilitatorclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	x402 "github.com/x402-foundation/botgate"
	"github.com/x402-foundation/botgate/pkg/types"
)

const (
	// DefaultFacilitatorURL is the default URL for the x402 facilitator service
	DefaultFacilitatorURL = x402.DefaultFacilitatorURL

	headerContentType   = "Content-Type"
	mimeApplicationJSON = "application/json"

	authHeaderVerify    = "verify"
	authHeaderSettle    = "settle"
	authHeaderSupported = "supported"

	maxErrorBody = 512
)

// StatusError is returned for responses the client cannot map onto a result.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("facilitator returned %d", e.StatusCode)
	}
	return fmt.Sprintf("facilitator returned %d: %s", e.StatusCode, e.Body)
}

// Requester performs JSON requests against a facilitator. Responses with status 200 or 409
// are decoded into out; every other status is a *StatusError.
type Requester interface {
	Get(ctx context.Context, path, authKey string, out any) (int, error)
	Post(ctx context.Context, path, authKey string, body, out any) (int, error)
}

type jsonRequester struct {
	baseURL           string
	httpClient        *http.Client
	createAuthHeaders func() (map[string]map[string]string, error)
}

func (r *jsonRequester) Get(ctx context.Context, path, authKey string, out any) (int, error) {
	return r.do(ctx, http.MethodGet, path, authKey, nil, out)
}

func (r *jsonRequester) Post(ctx context.Context, path, authKey string, body, out any) (int, error) {
	return r.do(ctx, http.MethodPost, path, authKey, body, out)
}

func (r *jsonRequester) do(ctx context.Context, method, path, authKey string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(headerContentType, mimeApplicationJSON)

	if err := r.addAuthHeader(req, authKey); err != nil {
		return 0, fmt.Errorf("failed to apply %s auth headers: %w", authKey, err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send %s request: %w", authKey, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusConflict {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return resp.StatusCode, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode %s response: %w", authKey, err)
	}
	return resp.StatusCode, nil
}

func (r *jsonRequester) addAuthHeader(req *http.Request, key string) error {
	if r.createAuthHeaders == nil {
		return nil
	}

	headers, err := r.createAuthHeaders()
	if err != nil {
		return fmt.Errorf("create auth headers: %w", err)
	}

	actionHeaders, ok := headers[key]
	if !ok {
		return nil
	}

	for headerKey, value := range actionHeaders {
		req.Header.Set(headerKey, value)
	}

	return nil
}

// FacilitatorClient verifies and settles payments through a remote facilitator.
type FacilitatorClient struct {
	URL       string
	requester Requester
}

// NewFacilitatorClient creates a new facilitator client
func NewFacilitatorClient(config *types.FacilitatorConfig) *FacilitatorClient {
	if config == nil {
		config = &types.FacilitatorConfig{
			URL: DefaultFacilitatorURL,
		}
	}

	httpCli := &http.Client{}
	if config.Timeout != nil {
		httpCli.Timeout = config.Timeout()
	}

	baseURL := strings.TrimRight(config.URL, "/")
	return NewWithRequester(baseURL, &jsonRequester{
		baseURL:           baseURL,
		httpClient:        httpCli,
		createAuthHeaders: config.CreateAuthHeaders,
	})
}

// NewWithRequester creates a client that sends its requests through r.
func NewWithRequester(url string, r Requester) *FacilitatorClient {
	return &FacilitatorClient{URL: url, requester: r}
}

// Verify sends a payment verification request to the facilitator.
func (c *FacilitatorClient) Verify(ctx context.Context, req *types.FacilitatorRequest) x402.Result[*types.VerifyResponse] {
	var resp types.VerifyResponse
	status, err := c.requester.Post(ctx, "/verify", authHeaderVerify, req, &resp)
	if err != nil {
		return x402.Fault[*types.VerifyResponse](fmt.Errorf("verify: %w", err))
	}
	if status != http.StatusOK {
		return x402.Fault[*types.VerifyResponse](&StatusError{StatusCode: status})
	}

	if !resp.IsValid {
		return x402.Invalid(&resp, types.Deref(resp.InvalidReason))
	}
	return x402.Ok(&resp)
}

// Settle sends a payment settlement request to the facilitator. A 409 answer is reported
// as a conflict.
func (c *FacilitatorClient) Settle(ctx context.Context, req *types.FacilitatorRequest) x402.Result[*types.SettleResponse] {
	var resp types.SettleResponse
	status, err := c.requester.Post(ctx, "/settle", authHeaderSettle, req, &resp)
	if err != nil {
		return x402.Fault[*types.SettleResponse](fmt.Errorf("settle: %w", err))
	}

	switch {
	case status == http.StatusConflict:
		return x402.Conflict(&resp, types.Deref(resp.Error))
	case status != http.StatusOK:
		return x402.Fault[*types.SettleResponse](&StatusError{StatusCode: status})
	case !resp.Success:
		return x402.Invalid(&resp, types.Deref(resp.Error))
	default:
		return x402.Ok(&resp)
	}
}

// Supported retrieves the list of payment kinds supported by the facilitator.
func (c *FacilitatorClient) Supported(ctx context.Context) (*types.SupportedResponse, error) {
	var resp types.SupportedResponse
	status, err := c.requester.Get(ctx, "/supported", authHeaderSupported, &resp)
	if err != nil {
		return nil, fmt.Errorf("supported: %w", err)
	}
	if status != http.StatusOK {
		return nil, &StatusError{StatusCode: status}
	}
	return &resp, nil
}
