package facilitator_test

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/go-cmp/cmp"

	x402 "github.com/x402-foundation/botgate"
	"github.com/x402-foundation/botgate/pkg/facilitator"
	"github.com/x402-foundation/botgate/pkg/types"
	"github.com/x402-foundation/botgate/signers/evm"
	"github.com/x402-foundation/botgate/signers/evm/evmtest"
)

const (
	payTo         = "0x209693Bc6afc0C5328bA36FaF03C514EF312287C"
	baseSepoliaID = 84532
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRequirements() *types.PaymentRequirements {
	return &types.PaymentRequirements{
		Scheme:            x402.SchemeExact,
		Network:           "base-sepolia",
		MaxAmountRequired: "1000",
		Resource:          "http://example.com/api/data",
		Description:       "Premium data",
		MimeType:          "application/json",
		PayTo:             payTo,
		MaxTimeoutSeconds: 300,
	}
}

type transfer struct {
	chainID int64
	to      string
	value   int64
}

func signedTransfer(t *testing.T, tr transfer) (string, common.Address) {
	t.Helper()
	key := evmtest.NewKey()
	raw, err := evmtest.SignedTransfer(key, big.NewInt(tr.chainID), 0, common.HexToAddress(tr.to), big.NewInt(tr.value))
	if err != nil {
		t.Fatalf("Failed to sign transfer: %v", err)
	}
	return raw, crypto.PubkeyToAddress(key.PublicKey)
}

func encodeHeader(t *testing.T, payload *types.PaymentPayload) string {
	t.Helper()
	header, err := types.EncodePaymentHeader(payload)
	if err != nil {
		t.Fatalf("Failed to encode header: %v", err)
	}
	return header
}

func paymentFor(rawTx string) *types.PaymentPayload {
	return &types.PaymentPayload{
		X402Version: x402.X402Version,
		Scheme:      x402.SchemeExact,
		Network:     "base-sepolia",
		Payload:     types.ExactNativePayload{SignedTransaction: rawTx},
	}
}

func validRequest(t *testing.T) (*types.FacilitatorRequest, common.Address) {
	t.Helper()
	raw, payer := signedTransfer(t, transfer{chainID: baseSepoliaID, to: payTo, value: 1000})
	return &types.FacilitatorRequest{
		X402Version:         x402.X402Version,
		PaymentHeader:       encodeHeader(t, paymentFor(raw)),
		PaymentRequirements: testRequirements(),
	}, payer
}

type fixture struct {
	backend     *evmtest.Backend
	facilitator *facilitator.Facilitator
}

func newFixture(t *testing.T, configure func(*evmtest.Backend)) fixture {
	t.Helper()
	backend := evmtest.NewBackend(baseSepoliaID)
	if configure != nil {
		configure(backend)
	}
	client := evm.NewClient(backend, big.NewInt(baseSepoliaID),
		evm.WithReceiptTimeout(50*time.Millisecond),
		evm.WithPollInterval(5*time.Millisecond),
	)
	cfg := &x402.Config{Recipient: payTo, Network: "base-sepolia"}
	return fixture{
		backend:     backend,
		facilitator: facilitator.New(cfg, facilitator.WithChain(client), facilitator.WithLogger(discardLogger())),
	}
}

func TestVerifyValidPayment(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	req, payer := validRequest(t)

	result := fx.facilitator.Verify(context.Background(), req)
	if result.Outcome != x402.OutcomeOK {
		t.Fatalf("Expected ok, got %s (%s)", result.Outcome, result.Reason)
	}

	want := &types.VerifyResponse{IsValid: true, Payer: payer.Hex()}
	if diff := cmp.Diff(want, result.Value); diff != "" {
		t.Errorf("VerifyResponse mismatch (-want +got):\n%s", diff)
	}
	if len(fx.backend.Sent()) != 0 {
		t.Error("Verify must not broadcast")
	}
}

func TestVerifyReasons(t *testing.T) {
	t.Parallel()

	raw, _ := signedTransfer(t, transfer{chainID: baseSepoliaID, to: payTo, value: 1000})

	tests := []struct {
		name    string
		mutate  func(t *testing.T, req *types.FacilitatorRequest)
		want    string
		wantPfx bool
	}{
		{
			name:   "request version",
			mutate: func(_ *testing.T, req *types.FacilitatorRequest) { req.X402Version = 2 },
			want:   facilitator.ReasonInvalidVersion,
		},
		{
			name:   "missing header",
			mutate: func(_ *testing.T, req *types.FacilitatorRequest) { req.PaymentHeader = "" },
			want:   facilitator.ReasonInvalidPaymentRequest,
		},
		{
			name:   "missing requirements",
			mutate: func(_ *testing.T, req *types.FacilitatorRequest) { req.PaymentRequirements = nil },
			want:   facilitator.ReasonInvalidPaymentRequest,
		},
		{
			name:   "unsupported scheme",
			mutate: func(_ *testing.T, req *types.FacilitatorRequest) { req.PaymentRequirements.Scheme = "upto" },
			want:   facilitator.ReasonUnsupportedScheme,
		},
		{
			name:   "non evm network",
			mutate: func(_ *testing.T, req *types.FacilitatorRequest) { req.PaymentRequirements.Network = "solana" },
			want:   facilitator.ReasonInvalidNetwork,
		},
		{
			name:    "bad base64",
			mutate:  func(_ *testing.T, req *types.FacilitatorRequest) { req.PaymentHeader = "!!!not-base64!!!" },
			want:    facilitator.ReasonInvalidHeaderBase64 + ": ",
			wantPfx: true,
		},
		{
			name: "bad json",
			mutate: func(_ *testing.T, req *types.FacilitatorRequest) {
				req.PaymentHeader = base64.StdEncoding.EncodeToString([]byte("not json"))
			},
			want:    facilitator.ReasonInvalidHeaderJSON + ": ",
			wantPfx: true,
		},
		{
			name: "payload version",
			mutate: func(t *testing.T, req *types.FacilitatorRequest) {
				p := paymentFor(raw)
				p.X402Version = 2
				req.PaymentHeader = encodeHeader(t, p)
			},
			want: facilitator.ReasonInvalidVersion,
		},
		{
			name: "payload scheme",
			mutate: func(t *testing.T, req *types.FacilitatorRequest) {
				p := paymentFor(raw)
				p.Scheme = "upto"
				req.PaymentHeader = encodeHeader(t, p)
			},
			want: facilitator.ReasonSchemeMismatch,
		},
		{
			name: "payload network",
			mutate: func(t *testing.T, req *types.FacilitatorRequest) {
				p := paymentFor(raw)
				p.Network = "base"
				req.PaymentHeader = encodeHeader(t, p)
			},
			want: facilitator.ReasonNetworkMismatch,
		},
		{
			name: "missing signed transaction",
			mutate: func(t *testing.T, req *types.FacilitatorRequest) {
				req.PaymentHeader = encodeHeader(t, paymentFor(""))
			},
			want: facilitator.ReasonMissingSignedTx,
		},
		{
			name: "garbage transaction",
			mutate: func(t *testing.T, req *types.FacilitatorRequest) {
				req.PaymentHeader = encodeHeader(t, paymentFor("0xdeadbeef"))
			},
			want:    facilitator.ReasonInvalidSignedTx + ": ",
			wantPfx: true,
		},
		{
			name: "recipient differs by one character",
			mutate: func(t *testing.T, req *types.FacilitatorRequest) {
				other, _ := signedTransfer(t, transfer{chainID: baseSepoliaID, to: "0x209693Bc6afc0C5328bA36FaF03C514EF312287D", value: 1000})
				req.PaymentHeader = encodeHeader(t, paymentFor(other))
			},
			want: facilitator.ReasonRecipientMismatch,
		},
		{
			name: "amount one below",
			mutate: func(t *testing.T, req *types.FacilitatorRequest) {
				other, _ := signedTransfer(t, transfer{chainID: baseSepoliaID, to: payTo, value: 999})
				req.PaymentHeader = encodeHeader(t, paymentFor(other))
			},
			want: facilitator.ReasonAmountMismatch,
		},
		{
			name: "amount one above",
			mutate: func(t *testing.T, req *types.FacilitatorRequest) {
				other, _ := signedTransfer(t, transfer{chainID: baseSepoliaID, to: payTo, value: 1001})
				req.PaymentHeader = encodeHeader(t, paymentFor(other))
			},
			want: facilitator.ReasonAmountMismatch,
		},
		{
			name: "signed for another chain",
			mutate: func(t *testing.T, req *types.FacilitatorRequest) {
				other, _ := signedTransfer(t, transfer{chainID: 1, to: payTo, value: 1000})
				req.PaymentHeader = encodeHeader(t, paymentFor(other))
			},
			want: facilitator.ReasonInvalidChainID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fx := newFixture(t, nil)
			req := &types.FacilitatorRequest{
				X402Version:         x402.X402Version,
				PaymentHeader:       encodeHeader(t, paymentFor(raw)),
				PaymentRequirements: testRequirements(),
			}
			tt.mutate(t, req)

			result := fx.facilitator.Verify(context.Background(), req)
			if result.Outcome != x402.OutcomeInvalid {
				t.Fatalf("Expected invalid, got %s", result.Outcome)
			}
			if result.Value.IsValid {
				t.Error("Expected isValid=false")
			}
			got := types.Deref(result.Value.InvalidReason)
			if got != result.Reason {
				t.Errorf("Body reason %q differs from result reason %q", got, result.Reason)
			}
			if tt.wantPfx {
				if !strings.HasPrefix(got, tt.want) {
					t.Errorf("Expected reason prefixed %q, got %q", tt.want, got)
				}
				return
			}
			if got != tt.want {
				t.Errorf("Expected reason %q, got %q", tt.want, got)
			}
		})
	}
}

func TestVerifyAcceptsEquivalentForms(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)

	t.Run("lowercase payTo", func(t *testing.T) {
		req, _ := validRequest(t)
		req.PaymentRequirements.PayTo = strings.ToLower(payTo)
		if r := fx.facilitator.Verify(context.Background(), req); !r.IsOK() {
			t.Errorf("Expected ok, got %s", r.Reason)
		}
	})

	t.Run("caip2 network", func(t *testing.T) {
		raw, _ := signedTransfer(t, transfer{chainID: baseSepoliaID, to: payTo, value: 1000})
		p := paymentFor(raw)
		p.Network = "eip155:84532"
		req := &types.FacilitatorRequest{
			X402Version:         x402.X402Version,
			PaymentHeader:       encodeHeader(t, p),
			PaymentRequirements: testRequirements(),
		}
		req.PaymentRequirements.Network = "eip155:84532"
		if r := fx.facilitator.Verify(context.Background(), req); !r.IsOK() {
			t.Errorf("Expected ok, got %s", r.Reason)
		}
	})

	t.Run("unprefixed transaction hex", func(t *testing.T) {
		raw, _ := signedTransfer(t, transfer{chainID: baseSepoliaID, to: payTo, value: 1000})
		req := &types.FacilitatorRequest{
			X402Version:         x402.X402Version,
			PaymentHeader:       encodeHeader(t, paymentFor(strings.TrimPrefix(raw, "0x"))),
			PaymentRequirements: testRequirements(),
		}
		if r := fx.facilitator.Verify(context.Background(), req); !r.IsOK() {
			t.Errorf("Expected ok, got %s", r.Reason)
		}
	})
}

func TestVerifyNilRequest(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	result := fx.facilitator.Verify(context.Background(), nil)
	if result.Outcome != x402.OutcomeFault || !errors.Is(result.Err, facilitator.ErrNilRequest) {
		t.Errorf("Expected nil request fault, got %s %v", result.Outcome, result.Err)
	}
}

func TestSettleSuccess(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, func(b *evmtest.Backend) { b.PendingPolls = 2 })
	req, payer := validRequest(t)

	result := fx.facilitator.Settle(context.Background(), req)
	if result.Outcome != x402.OutcomeOK {
		t.Fatalf("Expected ok, got %s (%s)", result.Outcome, result.Reason)
	}

	sent := fx.backend.Sent()
	if len(sent) != 1 {
		t.Fatalf("Expected one broadcast, got %d", len(sent))
	}

	want := &types.SettleResponse{
		Success:   true,
		TxHash:    types.StringPtr(sent[0].Hash().Hex()),
		NetworkID: types.StringPtr("base-sepolia"),
		Payer:     payer.Hex(),
	}
	if diff := cmp.Diff(want, result.Value); diff != "" {
		t.Errorf("SettleResponse mismatch (-want +got):\n%s", diff)
	}
}

func TestSettleReplayIsConflict(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	req, _ := validRequest(t)

	if first := fx.facilitator.Settle(context.Background(), req); !first.IsOK() {
		t.Fatalf("First settle failed: %s", first.Reason)
	}

	second := fx.facilitator.Settle(context.Background(), req)
	if second.Outcome != x402.OutcomeConflict {
		t.Fatalf("Expected conflict, got %s (%s)", second.Outcome, second.Reason)
	}
	if !strings.HasPrefix(second.Reason, facilitator.ReasonAlreadySubmitted+": ") {
		t.Errorf("Unexpected reason %q", second.Reason)
	}
	if second.Value.Success || types.Deref(second.Value.Error) != second.Reason {
		t.Errorf("Unexpected body %+v", second.Value)
	}
	if len(fx.backend.Sent()) != 1 {
		t.Errorf("Expected a single accepted transaction, got %d", len(fx.backend.Sent()))
	}
}

func TestSettleFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		configure  func(*evmtest.Backend)
		wantReason string
		wantTxHash bool
	}{
		{
			name:       "broadcast rejected",
			configure:  func(b *evmtest.Backend) { b.SendErr = errors.New("insufficient funds for gas * price + value") },
			wantReason: facilitator.ReasonBroadcastFailed + ": insufficient funds for gas * price + value",
		},
		{
			name:       "no receipt",
			configure:  func(b *evmtest.Backend) { b.WithholdReceipts = true },
			wantReason: facilitator.ReasonReceiptUnavailable,
			wantTxHash: true,
		},
		{
			name:       "reverted",
			configure:  func(b *evmtest.Backend) { b.ReceiptStatus = ethtypes.ReceiptStatusFailed },
			wantReason: facilitator.ReasonTransactionFailed,
			wantTxHash: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fx := newFixture(t, tt.configure)
			req, _ := validRequest(t)

			result := fx.facilitator.Settle(context.Background(), req)
			if result.Outcome != x402.OutcomeInvalid {
				t.Fatalf("Expected invalid, got %s (%s)", result.Outcome, result.Reason)
			}
			if result.Reason != tt.wantReason {
				t.Errorf("Expected reason %q, got %q", tt.wantReason, result.Reason)
			}
			if result.Value.Success {
				t.Error("Expected success=false")
			}
			if (result.Value.TxHash != nil) != tt.wantTxHash {
				t.Errorf("Unexpected txHash %v", result.Value.TxHash)
			}
			if got := types.Deref(result.Value.NetworkID); got != "base-sepolia" {
				t.Errorf("Expected networkId base-sepolia, got %q", got)
			}
		})
	}
}

func TestSettleReverifies(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	req, _ := validRequest(t)
	req.PaymentRequirements.MaxAmountRequired = "1001"

	result := fx.facilitator.Settle(context.Background(), req)
	if result.Outcome != x402.OutcomeInvalid || result.Reason != facilitator.ReasonAmountMismatch {
		t.Fatalf("Expected amount mismatch, got %s (%s)", result.Outcome, result.Reason)
	}
	if len(fx.backend.Sent()) != 0 {
		t.Error("Invalid payment must not be broadcast")
	}
}

func TestSettleWithoutChainClient(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	raw, _ := signedTransfer(t, transfer{chainID: 8453, to: payTo, value: 1000})
	p := paymentFor(raw)
	p.Network = "base"
	requirements := testRequirements()
	requirements.Network = "base"

	result := fx.facilitator.Settle(context.Background(), &types.FacilitatorRequest{
		X402Version:         x402.X402Version,
		PaymentHeader:       encodeHeader(t, p),
		PaymentRequirements: requirements,
	})
	if result.Outcome != x402.OutcomeInvalid || result.Reason != facilitator.ReasonUnsupportedNetwork {
		t.Fatalf("Expected unsupported network, got %s (%s)", result.Outcome, result.Reason)
	}
}

func TestSupported(t *testing.T) {
	t.Parallel()

	cfg := &x402.Config{Recipient: payTo, Network: "base-sepolia"}
	f := facilitator.New(cfg,
		facilitator.WithChain(evm.NewClient(evmtest.NewBackend(8453), big.NewInt(8453))),
		facilitator.WithChain(evm.NewClient(evmtest.NewBackend(baseSepoliaID), big.NewInt(baseSepoliaID))),
		facilitator.WithChain(evm.NewClient(evmtest.NewBackend(999999), big.NewInt(999999))),
	)

	want := types.SupportedResponse{Kinds: []types.SupportedKind{
		{X402Version: 1, Scheme: "exact", Network: "base"},
		{X402Version: 1, Scheme: "exact", Network: "base-sepolia"},
		{X402Version: 1, Scheme: "exact", Network: "eip155:999999"},
	}}
	if diff := cmp.Diff(want, f.Supported()); diff != "" {
		t.Errorf("Supported mismatch (-want +got):\n%s", diff)
	}
}

func TestHooks(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)

	var verified, settled []x402.Outcome
	fx.facilitator.
		OnAfterVerify(func(ctx facilitator.VerifyResultContext) {
			verified = append(verified, ctx.Result.Outcome)
		}).
		OnAfterSettle(func(ctx facilitator.SettleResultContext) {
			settled = append(settled, ctx.Result.Outcome)
		}).
		OnBeforeSettle(func(ctx facilitator.SettleContext) (bool, string) {
			return ctx.Request.PaymentRequirements.Resource == "http://example.com/blocked", "resource_blocked"
		})

	req, _ := validRequest(t)
	fx.facilitator.Verify(context.Background(), req)
	fx.facilitator.Settle(context.Background(), req)

	blocked, _ := validRequest(t)
	blocked.PaymentRequirements.Resource = "http://example.com/blocked"
	result := fx.facilitator.Settle(context.Background(), blocked)
	if result.Outcome != x402.OutcomeInvalid || result.Reason != "resource_blocked" {
		t.Errorf("Expected hook abort, got %s (%s)", result.Outcome, result.Reason)
	}

	if diff := cmp.Diff([]x402.Outcome{x402.OutcomeOK}, verified); diff != "" {
		t.Errorf("verify hook mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]x402.Outcome{x402.OutcomeOK}, settled); diff != "" {
		t.Errorf("settle hook mismatch (-want +got):\n%s", diff)
	}
}
