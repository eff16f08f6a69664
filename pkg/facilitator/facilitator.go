// Package facilitator verifies and settles exact native-token payments on EVM chains.
package facilitator

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	x402 "github.com/x402-foundation/botgate"
	"github.com/x402-foundation/botgate/pkg/types"
	"github.com/x402-foundation/botgate/signers/evm"
)

// Reason codes reported in invalidReason and error fields.
const (
	ReasonInvalidVersion        = "invalid_x402_version"
	ReasonInvalidPaymentRequest = "invalid_payment_request"
	ReasonUnsupportedScheme     = "unsupported_scheme"
	ReasonInvalidNetwork        = "invalid_network"
	ReasonInvalidHeaderBase64   = "invalid_payment_header_base64"
	ReasonInvalidHeaderJSON     = "invalid_payment_header_json"
	ReasonSchemeMismatch        = "payment_scheme_mismatch"
	ReasonNetworkMismatch       = "payment_network_mismatch"
	ReasonMissingSignedTx       = "missing_signed_transaction"
	ReasonInvalidSignedTx       = "invalid_signed_transaction"
	ReasonRecipientMismatch     = "invalid_exact_native_recipient_mismatch"
	ReasonAmountMismatch        = "invalid_exact_native_amount_mismatch"
	ReasonInvalidPayer          = "invalid_payer_address"
	ReasonInvalidChainID        = "invalid_chain_id"
	ReasonUnsupportedNetwork    = "unsupported_network"
	ReasonAlreadySubmitted      = "transaction_already_submitted"
	ReasonBroadcastFailed       = "transaction_broadcast_failed"
	ReasonReceiptUnavailable    = "failed_to_get_receipt"
	ReasonTransactionFailed     = "transaction_failed"
)

// ErrNilRequest is the fault returned for a nil request.
var ErrNilRequest = errors.New("facilitator: nil request")

// Facilitator checks payment headers against requirements and submits the signed
// transactions it accepts. It holds no per-payment state.
type Facilitator struct {
	cfg    *x402.Config
	logger *slog.Logger

	mu     sync.RWMutex
	chains map[int64]*evm.Client

	beforeVerifyHooks []BeforeVerifyHook
	afterVerifyHooks  []AfterVerifyHook
	beforeSettleHooks []BeforeSettleHook
	afterSettleHooks  []AfterSettleHook
}

// Option configures a Facilitator.
type Option func(*Facilitator)

// WithChain registers the client used to settle payments on the client's chain.
func WithChain(client *evm.Client) Option {
	return func(f *Facilitator) {
		f.chains[client.ChainID().Int64()] = client
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(f *Facilitator) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// New creates a facilitator for the networks known to cfg.
func New(cfg *x402.Config, opts ...Option) *Facilitator {
	if cfg == nil {
		cfg = &x402.Config{}
	}
	f := &Facilitator{
		cfg:    cfg,
		logger: slog.Default(),
		chains: make(map[int64]*evm.Client),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// AddChain registers a chain client after construction.
func (f *Facilitator) AddChain(client *evm.Client) *Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chains[client.ChainID().Int64()] = client
	return f
}

func (f *Facilitator) chain(chainID int64) (*evm.Client, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	c, ok := f.chains[chainID]
	return c, ok
}

// Supported lists the payment kinds the facilitator can settle, ordered by chain id.
func (f *Facilitator) Supported() types.SupportedResponse {
	f.mu.RLock()
	ids := make([]int64, 0, len(f.chains))
	for id := range f.chains {
		ids = append(ids, id)
	}
	f.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	kinds := make([]types.SupportedKind, 0, len(ids))
	for _, id := range ids {
		kinds = append(kinds, types.SupportedKind{
			X402Version: x402.X402Version,
			Scheme:      x402.SchemeExact,
			Network:     string(f.networkName(id)),
		})
	}
	return types.SupportedResponse{Kinds: kinds}
}

func (f *Facilitator) networkName(chainID int64) x402.Network {
	caip2 := x402.Network(x402.NamespaceEVM + ":" + strconv.FormatInt(chainID, 10))
	if network, ok := f.cfg.ResolveNetwork(caip2); ok {
		return network.Name
	}
	return caip2
}

// verification is what a successful verify learned about the payment.
type verification struct {
	network x402.NetworkConfig
	payload *types.PaymentPayload
	tx      *evm.ParsedTransaction
}

// Verify checks a payment header against its requirements without touching chain state.
// The first failed check decides the invalid reason.
func (f *Facilitator) Verify(ctx context.Context, req *types.FacilitatorRequest) x402.Result[*types.VerifyResponse] {
	if req == nil {
		return x402.Fault[*types.VerifyResponse](ErrNilRequest)
	}
	start := time.Now()

	for _, hook := range f.beforeVerifyHooks {
		if abort, reason := hook(VerifyContext{Ctx: ctx, Request: req, Timestamp: start}); abort {
			return invalidVerify(reason)
		}
	}

	var result x402.Result[*types.VerifyResponse]
	v, reason := f.verify(req)
	if reason != "" {
		result = invalidVerify(reason)
	} else {
		result = x402.Ok(&types.VerifyResponse{IsValid: true, Payer: v.tx.From.Hex()})
	}

	f.logger.DebugContext(ctx, "payment verified",
		"network", networkOf(req),
		"valid", result.IsOK(),
		"reason", result.Reason,
	)

	resultCtx := VerifyResultContext{
		VerifyContext: VerifyContext{Ctx: ctx, Request: req, Timestamp: start},
		Result:        result,
		Duration:      time.Since(start),
	}
	for _, hook := range f.afterVerifyHooks {
		hook(resultCtx)
	}

	return result
}

func invalidVerify(reason string) x402.Result[*types.VerifyResponse] {
	return x402.Invalid(&types.VerifyResponse{IsValid: false, InvalidReason: types.StringPtr(reason)}, reason)
}

// verify runs the ordered checks and returns the first failure reason, or "" when the
// payment is acceptable.
func (f *Facilitator) verify(req *types.FacilitatorRequest) (*verification, string) {
	if req.X402Version != x402.X402Version {
		return nil, ReasonInvalidVersion
	}
	if req.PaymentHeader == "" || req.PaymentRequirements == nil {
		return nil, ReasonInvalidPaymentRequest
	}

	requirements := req.PaymentRequirements
	if requirements.Scheme != x402.SchemeExact {
		return nil, ReasonUnsupportedScheme
	}
	network, ok := f.cfg.ResolveNetwork(x402.Network(requirements.Network))
	if !ok || requirements.Network == "" {
		return nil, ReasonInvalidNetwork
	}

	payload, err := types.DecodePaymentHeader(req.PaymentHeader)
	if err != nil {
		var decodeErr *types.DecodeError
		if !errors.As(err, &decodeErr) {
			return nil, ReasonInvalidHeaderJSON + ": " + err.Error()
		}
		if decodeErr.Stage == types.DecodeStageBase64 {
			return nil, ReasonInvalidHeaderBase64 + ": " + decodeErr.Err.Error()
		}
		return nil, ReasonInvalidHeaderJSON + ": " + decodeErr.Err.Error()
	}

	if payload.X402Version != x402.X402Version {
		return nil, ReasonInvalidVersion
	}
	if payload.Scheme != requirements.Scheme {
		return nil, ReasonSchemeMismatch
	}
	if payload.Network != requirements.Network {
		return nil, ReasonNetworkMismatch
	}

	if payload.Payload.SignedTransaction == "" {
		return nil, ReasonMissingSignedTx
	}
	tx, err := evm.ParseSignedTransaction(payload.Payload.SignedTransaction)
	if err != nil {
		return nil, ReasonInvalidSignedTx + ": " + err.Error()
	}

	if !evm.SameAddress(tx.To.Hex(), requirements.PayTo) {
		return nil, ReasonRecipientMismatch
	}
	required, ok := new(big.Int).SetString(requirements.MaxAmountRequired, 10)
	if !ok || tx.Value.Cmp(required) != 0 {
		return nil, ReasonAmountMismatch
	}
	if !evm.IsValidAddress(tx.From.Hex()) || tx.From == (common.Address{}) {
		return nil, ReasonInvalidPayer
	}
	if tx.ChainID == nil || tx.ChainID.Cmp(network.ChainIDBig()) != 0 {
		return nil, ReasonInvalidChainID
	}

	return &verification{network: network, payload: payload, tx: tx}, ""
}

// Settle re-verifies the payment, broadcasts it and waits for its receipt.
func (f *Facilitator) Settle(ctx context.Context, req *types.FacilitatorRequest) x402.Result[*types.SettleResponse] {
	if req == nil {
		return x402.Fault[*types.SettleResponse](ErrNilRequest)
	}
	start := time.Now()

	for _, hook := range f.beforeSettleHooks {
		if abort, reason := hook(SettleContext{Ctx: ctx, Request: req, Timestamp: start}); abort {
			return x402.Invalid(failedSettle(reason, networkOf(req), "", nil), reason)
		}
	}

	result := f.settle(ctx, req)

	attrs := []any{"network", networkOf(req), "outcome", result.Outcome.String()}
	if result.Value != nil && result.Value.TxHash != nil {
		attrs = append(attrs, "tx_hash", *result.Value.TxHash)
	}
	if result.IsOK() {
		f.logger.InfoContext(ctx, "payment settled", attrs...)
	} else {
		f.logger.WarnContext(ctx, "payment not settled", append(attrs, "reason", result.Reason)...)
	}

	resultCtx := SettleResultContext{
		SettleContext: SettleContext{Ctx: ctx, Request: req, Timestamp: start},
		Result:        result,
		Duration:      time.Since(start),
	}
	for _, hook := range f.afterSettleHooks {
		hook(resultCtx)
	}

	return result
}

func (f *Facilitator) settle(ctx context.Context, req *types.FacilitatorRequest) x402.Result[*types.SettleResponse] {
	v, reason := f.verify(req)
	if reason != "" {
		return x402.Invalid(failedSettle(reason, networkOf(req), "", nil), reason)
	}

	network := req.PaymentRequirements.Network
	payer := v.tx.From.Hex()

	client, ok := f.chain(v.network.ChainID)
	if !ok {
		return x402.Invalid(failedSettle(ReasonUnsupportedNetwork, network, payer, nil), ReasonUnsupportedNetwork)
	}

	hash, err := client.SendRawTransaction(ctx, v.payload.Payload.SignedTransaction)
	if err != nil {
		cause := errors.Unwrap(err)
		if cause == nil {
			cause = err
		}
		if evm.IsReplayError(err) {
			reason := ReasonAlreadySubmitted + ": " + cause.Error()
			return x402.Conflict(failedSettle(reason, network, payer, nil), reason)
		}
		reason := ReasonBroadcastFailed + ": " + cause.Error()
		return x402.Invalid(failedSettle(reason, network, payer, nil), reason)
	}
	txHash := hash.Hex()

	receipt, err := client.WaitForReceipt(ctx, hash)
	if err != nil {
		f.logger.WarnContext(ctx, "no receipt for settled payment", "tx_hash", txHash, "error", err)
		return x402.Invalid(failedSettle(ReasonReceiptUnavailable, network, payer, &txHash), ReasonReceiptUnavailable)
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return x402.Invalid(failedSettle(ReasonTransactionFailed, network, payer, &txHash), ReasonTransactionFailed)
	}

	return x402.Ok(&types.SettleResponse{
		Success:   true,
		TxHash:    &txHash,
		NetworkID: types.StringPtr(network),
		Payer:     payer,
	})
}

func failedSettle(reason, network, payer string, txHash *string) *types.SettleResponse {
	resp := &types.SettleResponse{
		Success: false,
		Error:   types.StringPtr(reason),
		TxHash:  txHash,
		Payer:   payer,
	}
	if network != "" {
		resp.NetworkID = types.StringPtr(network)
	}
	return resp
}

func networkOf(req *types.FacilitatorRequest) string {
	if req == nil || req.PaymentRequirements == nil {
		return ""
	}
	return req.PaymentRequirements.Network
}
