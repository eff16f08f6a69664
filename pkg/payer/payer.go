// Package payer answers x402 challenges with a signed native-token transfer.
package payer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"

	x402 "github.com/x402-foundation/botgate"
	"github.com/x402-foundation/botgate/pkg/types"
	"github.com/x402-foundation/botgate/signers/evm"
)

var (
	// ErrNoMatchingRequirements is returned when a challenge offers nothing this payer can pay.
	ErrNoMatchingRequirements = errors.New("payer: no payment requirements for this network")
	// ErrInvalidAmount is returned for a maxAmountRequired that is not a positive integer.
	ErrInvalidAmount = errors.New("payer: invalid maxAmountRequired")
)

// Payer pays for resources on one chain.
type Payer struct {
	cfg        *x402.Config
	chain      *evm.Client
	signer     *evm.Signer
	httpClient *http.Client
	logger     *slog.Logger
}

// Option is a functional option for New.
type Option func(*Payer)

// WithHTTPClient sets the client used for resource requests. Defaults to http.DefaultClient.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Payer) {
		p.httpClient = c
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Payer) {
		p.logger = logger
	}
}

// New creates a payer signing with signer on chain. cfg resolves the network names found
// in challenges; a nil cfg uses the default network table.
func New(cfg *x402.Config, chain *evm.Client, signer *evm.Signer, opts ...Option) *Payer {
	if cfg == nil {
		cfg = &x402.Config{}
	}
	p := &Payer{
		cfg:        cfg,
		chain:      chain,
		signer:     signer,
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Address returns the paying account.
func (p *Payer) Address() string {
	return p.signer.Address().Hex()
}

// SelectRequirements returns the first exact-scheme entry priced on this payer's chain.
func (p *Payer) SelectRequirements(accepts []types.PaymentRequirements) (*types.PaymentRequirements, error) {
	chainID := p.chain.ChainID()
	for i := range accepts {
		req := accepts[i]
		if req.Scheme != x402.SchemeExact {
			continue
		}
		network, ok := p.cfg.ResolveNetwork(x402.Network(req.Network))
		if !ok || req.Network == "" {
			continue
		}
		if network.ChainIDBig().Cmp(chainID) == 0 {
			return &req, nil
		}
	}
	return nil, fmt.Errorf("%w: chain %s", ErrNoMatchingRequirements, chainID)
}

// CreatePaymentHeader signs a transfer of exactly maxAmountRequired to payTo and encodes it
// as an X-PAYMENT header value.
func (p *Payer) CreatePaymentHeader(ctx context.Context, requirements *types.PaymentRequirements) (string, error) {
	amount, ok := new(big.Int).SetString(requirements.MaxAmountRequired, 10)
	if !ok || amount.Sign() <= 0 {
		return "", fmt.Errorf("%w: %q", ErrInvalidAmount, requirements.MaxAmountRequired)
	}

	raw, err := p.chain.SignedTransfer(ctx, p.signer, requirements.PayTo, amount)
	if err != nil {
		return "", fmt.Errorf("failed to sign payment: %w", err)
	}

	return types.EncodePaymentHeader(&types.PaymentPayload{
		X402Version: x402.X402Version,
		Scheme:      requirements.Scheme,
		Network:     requirements.Network,
		Payload:     types.ExactNativePayload{SignedTransaction: raw},
	})
}

// Do sends req. A 402 answer is paid once and the request resent with the payment attached.
// The returned settlement is nil when no payment was made or the server sent no
// X-PAYMENT-RESPONSE header. A paid request the server still refuses returns a
// *x402.PaymentError.
func (p *Payer) Do(req *http.Request) (*http.Response, *types.SettleResponse, error) {
	ctx := req.Context()

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode != http.StatusPaymentRequired {
		return resp, nil, nil
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read 402 response body: %w", err)
	}

	var challenge types.PaymentRequiredResponse
	if err := json.Unmarshal(body, &challenge); err != nil {
		return nil, nil, fmt.Errorf("failed to parse payment requirements: %w", err)
	}

	selected, err := p.SelectRequirements(challenge.Accepts)
	if err != nil {
		return nil, nil, err
	}

	header, err := p.CreatePaymentHeader(ctx, selected)
	if err != nil {
		return nil, nil, err
	}

	paid := req.Clone(ctx)
	if req.Body != nil && req.Body != http.NoBody {
		if req.GetBody == nil {
			return nil, nil, errors.New("payer: request body cannot be replayed")
		}
		if paid.Body, err = req.GetBody(); err != nil {
			return nil, nil, fmt.Errorf("failed to replay request body: %w", err)
		}
	}
	paid.Header.Set(x402.HeaderPayment, header)

	p.logger.DebugContext(ctx, "paying for resource",
		"url", req.URL.String(),
		"network", selected.Network,
		"amount", selected.MaxAmountRequired,
		"pay_to", selected.PayTo,
	)

	resp, err = p.httpClient.Do(paid)
	if err != nil {
		return nil, nil, err
	}
	if rejected(resp.StatusCode) {
		defer resp.Body.Close()
		return nil, nil, paymentError(resp)
	}

	encoded := resp.Header.Get(x402.HeaderPaymentResponse)
	if encoded == "" {
		return resp, nil, nil
	}
	decoded, err := types.DecodePaymentResponse(encoded)
	if err != nil {
		resp.Body.Close()
		return nil, nil, fmt.Errorf("failed to decode payment response: %w", err)
	}
	return resp, &decoded.Settlement, nil
}

func rejected(status int) bool {
	return status == http.StatusPaymentRequired || status == http.StatusForbidden || status == http.StatusConflict
}

// paymentError describes a server's refusal of a paid request.
func paymentError(resp *http.Response) *x402.PaymentError {
	var body struct {
		Error      string                `json:"error"`
		Message    string                `json:"message"`
		Settlement *types.SettleResponse `json:"settlement"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)

	details := map[string]interface{}{"status": resp.StatusCode}
	if body.Settlement != nil && body.Settlement.TxHash != nil {
		details["txHash"] = *body.Settlement.TxHash
	}
	if resp.StatusCode == http.StatusPaymentRequired {
		return x402.NewPaymentError(x402.ErrCodePaymentRequired, body.Error, details)
	}
	return x402.NewPaymentError(body.Error, body.Message, details)
}

// Get is a convenience wrapper around Do.
func (p *Payer) Get(ctx context.Context, url string) (*http.Response, *types.SettleResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, err
	}
	return p.Do(req)
}

// Post is a convenience wrapper around Do. The body is buffered so it can be resent.
func (p *Payer) Post(ctx context.Context, url, contentType string, body []byte) (*http.Response, *types.SettleResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return p.Do(req)
}
