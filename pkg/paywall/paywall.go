// Package paywall decides, per request, whether a protected route is served, challenged
// with a 402, or rejected. Framework adapters render its Decision.
package paywall

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	x402 "github.com/x402-foundation/botgate"
	"github.com/x402-foundation/botgate/pkg/botdetect"
	"github.com/x402-foundation/botgate/pkg/facilitatorauth"
	"github.com/x402-foundation/botgate/pkg/facilitatorclient"
	"github.com/x402-foundation/botgate/pkg/types"
)

// Facilitator verifies and settles payments. Both the in-process facilitator and the
// remote facilitator client satisfy it.
type Facilitator interface {
	Verify(ctx context.Context, req *types.FacilitatorRequest) x402.Result[*types.VerifyResponse]
	Settle(ctx context.Context, req *types.FacilitatorRequest) x402.Result[*types.SettleResponse]
}

// Mode selects who has to pay.
type Mode int

const (
	// ModePayment challenges every request to a protected route.
	ModePayment Mode = iota
	// ModeBot challenges requests classified as bots.
	ModeBot
	// ModeAICrawler challenges requests from known AI crawlers only.
	ModeAICrawler
)

func (m Mode) String() string {
	switch m {
	case ModePayment:
		return "payment"
	case ModeBot:
		return "bot"
	case ModeAICrawler:
		return "ai-crawler"
	default:
		return "unknown"
	}
}

// State is where a request ended up.
type State int

const (
	// StateNotProtected: no route prices the path.
	StateNotProtected State = iota
	// StateUnclassified: protected, not yet classified. Never returned by Process.
	StateUnclassified
	// StatePass: a bot-gating mode let the client through without payment.
	StatePass
	// StateChallenge: a 402 asking for payment.
	StateChallenge
	// StatePaid: payment verified and settled.
	StatePaid
	// StateRejected: configuration, payment or facilitator failure.
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateNotProtected:
		return "NOT_PROTECTED"
	case StateUnclassified:
		return "UNCLASSIFIED"
	case StatePass:
		return "PASS"
	case StateChallenge:
		return "CHALLENGE"
	case StatePaid:
		return "PAID"
	case StateRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// Decision is the outcome of Process. When Forward reports true the request goes to the
// protected handler; otherwise Status and Body are the response.
type Decision struct {
	State State
	// Status and Body are zero when forwarding.
	Status int
	Body   any
	// PaymentResponse is the X-PAYMENT-RESPONSE header value. It is set for paid requests and
	// for rejected ones whose transaction was already broadcast.
	PaymentResponse string

	Route          string
	Classification *botdetect.Classification
	Requirements   *types.PaymentRequirements
	Settlement     *types.SettleResponse
}

// Forward reports whether the request should reach the protected handler.
func (d Decision) Forward() bool {
	return d.State == StateNotProtected || d.State == StatePass || d.State == StatePaid
}

// Request returns r carrying the settlement, if any, in its context.
func (d Decision) Request(r *http.Request) *http.Request {
	if d.Settlement == nil {
		return r
	}
	return r.WithContext(WithSettlement(r.Context(), d.Settlement))
}

// Write renders a non-forwarding decision as a JSON response, X-PAYMENT-RESPONSE included
// when a transaction was broadcast. The body is encoded before the status is written, so an
// unencodable body becomes a plain 500.
func (d Decision) Write(w http.ResponseWriter) error {
	body, err := json.Marshal(d.Body)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return fmt.Errorf("failed to encode response body: %w", err)
	}

	if d.PaymentResponse != "" {
		w.Header().Set(x402.HeaderPaymentResponse, d.PaymentResponse)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(d.Status)
	_, err = w.Write(append(body, '\n'))
	return err
}

// Options configures a Handler.
type Options struct {
	Mode          Mode
	Facilitator   Facilitator
	Logger        *slog.Logger
	StrictHeaders bool
}

// Option is a functional option for New.
type Option func(*Options)

// WithMode sets who has to pay. Defaults to ModePayment.
func WithMode(mode Mode) Option {
	return func(o *Options) {
		o.Mode = mode
	}
}

// WithFacilitator sets the facilitator. Defaults to a client for Config.FacilitatorURL.
func WithFacilitator(f Facilitator) Option {
	return func(o *Options) {
		o.Facilitator = f
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithStrictHeaders makes ModeBot also treat requests missing typical browser headers as bots.
func WithStrictHeaders(strict bool) Option {
	return func(o *Options) {
		o.StrictHeaders = strict
	}
}

// Handler runs the payment flow for one Config. It is safe for concurrent use and keeps
// no per-request state.
type Handler struct {
	cfg  *x402.Config
	opts Options
}

// New creates a handler for cfg.
func New(cfg *x402.Config, opts ...Option) *Handler {
	options := Options{Mode: ModePayment}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.Facilitator == nil {
		url := cfg.FacilitatorURL
		if url == "" {
			url = x402.DefaultFacilitatorURL
		}
		fc := &types.FacilitatorConfig{URL: url}
		if cfg.FacilitatorKeyID != "" && cfg.FacilitatorSecret != "" {
			fc = facilitatorauth.CreateFacilitatorConfig(url, cfg.FacilitatorKeyID, cfg.FacilitatorSecret)
		}
		options.Facilitator = facilitatorclient.NewFacilitatorClient(fc)
	}
	return &Handler{cfg: cfg, opts: options}
}

// Mode returns the handler's mode.
func (h *Handler) Mode() Mode {
	return h.opts.Mode
}

// Process runs the flow for r. It calls the facilitator but never writes a response.
func (h *Handler) Process(r *http.Request) Decision {
	ctx := r.Context()
	logger := h.opts.Logger.With("path", r.URL.Path, "mode", h.opts.Mode.String())

	pattern, route, ok := MatchRoute(h.cfg, r.URL.Path)
	if !ok {
		return Decision{State: StateNotProtected}
	}

	recipient := h.cfg.RecipientFor(route)
	if recipient == "" {
		logger.ErrorContext(ctx, "payment recipient is not configured", "route", pattern)
		return rejected(pattern, http.StatusInternalServerError, x402.ErrCodeConfiguration, "payment recipient is not configured")
	}

	var classification *botdetect.Classification
	switch h.opts.Mode {
	case ModeBot, ModeAICrawler:
		userAgent := r.UserAgent()
		var c botdetect.Classification
		if h.opts.Mode == ModeAICrawler {
			c = botdetect.ClassifyAICrawler(userAgent)
		} else if h.opts.StrictHeaders {
			c = botdetect.Classify(userAgent, r.Header)
		} else {
			c = botdetect.Classify(userAgent, nil)
		}
		classification = &c

		if !c.IsBot || botdetect.IsAllowed(userAgent, h.cfg.BotAllowList) {
			return Decision{State: StatePass, Route: pattern, Classification: classification}
		}
		logger.DebugContext(ctx, "bot detected", "label", c.Label)
	}

	requirements, err := h.BuildPaymentRequirements(r, route)
	if err != nil {
		logger.ErrorContext(ctx, "failed to build payment requirements", "route", pattern, "error", err)
		return rejected(pattern, http.StatusInternalServerError, x402.ErrCodeConfiguration, err.Error())
	}

	decision := Decision{
		Route:          pattern,
		Classification: classification,
		Requirements:   requirements,
	}

	header := r.Header.Get(x402.HeaderPayment)
	if header == "" {
		body := &types.PaymentRequiredResponse{
			X402Version: x402.X402Version,
			Error:       "X-PAYMENT header is required",
			Accepts:     []types.PaymentRequirements{*requirements},
		}
		if classification != nil {
			body.BotDetected = classification.Label
		}
		decision.State = StateChallenge
		decision.Status = http.StatusPaymentRequired
		decision.Body = body
		return decision
	}

	req := &types.FacilitatorRequest{
		X402Version:         x402.X402Version,
		PaymentHeader:       header,
		PaymentRequirements: requirements,
	}

	verified := h.opts.Facilitator.Verify(ctx, req)
	switch verified.Outcome {
	case x402.OutcomeOK:
	case x402.OutcomeFault:
		logger.ErrorContext(ctx, "payment verification failed", "error", verified.Err)
		return decision.reject(http.StatusInternalServerError, x402.ErrCodeFacilitatorFailure, verified.Reason)
	default:
		logger.InfoContext(ctx, "invalid payment", "reason", verified.Reason)
		return decision.reject(http.StatusForbidden, x402.ErrCodeInvalidPayment, verified.Reason)
	}

	settled := h.opts.Facilitator.Settle(ctx, req)
	switch settled.Outcome {
	case x402.OutcomeOK:
	case x402.OutcomeConflict:
		logger.WarnContext(ctx, "payment already submitted", "reason", settled.Reason)
		return decision.reject(http.StatusConflict, x402.ErrCodePaymentConflict, settled.Reason)
	case x402.OutcomeFault:
		logger.ErrorContext(ctx, "payment settlement failed", "error", settled.Err)
		return decision.reject(http.StatusInternalServerError, x402.ErrCodeFacilitatorFailure, settled.Reason)
	default:
		logger.InfoContext(ctx, "payment not settled", "reason", settled.Reason)
		body := &types.PaymentRequiredResponse{
			X402Version: x402.X402Version,
			Error:       settled.Reason,
			Accepts:     []types.PaymentRequirements{*requirements},
		}
		// A broadcast transaction may still confirm; hand its hash back with the 402.
		if s := settled.Value; s != nil && s.TxHash != nil {
			body.Settlement = s
			decision.Settlement = s
			if encoded, err := types.EncodePaymentResponse(*s); err == nil {
				decision.PaymentResponse = encoded
			}
		}
		decision.State = StateRejected
		decision.Status = http.StatusPaymentRequired
		decision.Body = body
		return decision
	}

	encoded, err := types.EncodePaymentResponse(*settled.Value)
	if err != nil {
		logger.ErrorContext(ctx, "failed to encode payment response", "error", err)
		return decision.reject(http.StatusInternalServerError, x402.ErrCodeSettlementFailed, err.Error())
	}

	logger.InfoContext(ctx, "payment settled",
		"tx_hash", types.Deref(settled.Value.TxHash),
		"payer", settled.Value.Payer,
	)

	decision.State = StatePaid
	decision.PaymentResponse = encoded
	decision.Settlement = settled.Value
	return decision
}

func (d Decision) reject(status int, code, message string) Decision {
	d.State = StateRejected
	d.Status = status
	d.Body = &types.ErrorResponse{Error: code, Message: message}
	return d
}

func rejected(route string, status int, code, message string) Decision {
	return Decision{Route: route}.reject(status, code, message)
}

// BuildPaymentRequirements projects a route onto the requirements advertised for r.
func (h *Handler) BuildPaymentRequirements(r *http.Request, route x402.RouteConfig) (*types.PaymentRequirements, error) {
	network := h.cfg.NetworkFor(route)
	if _, ok := h.cfg.ResolveNetwork(network); !ok || network == "" {
		return nil, fmt.Errorf("%w: %q", x402.ErrUnsupportedNetwork, network)
	}

	return &types.PaymentRequirements{
		Scheme:            x402.SchemeExact,
		Network:           string(network),
		MaxAmountRequired: route.Price,
		Resource:          h.resourceURL(r),
		Description:       route.Description,
		MimeType:          route.MimeType,
		OutputSchema:      route.OutputSchema,
		PayTo:             h.cfg.RecipientFor(route),
		MaxTimeoutSeconds: route.GetMaxTimeoutSeconds(),
	}, nil
}

func (h *Handler) resourceURL(r *http.Request) string {
	if h.cfg.ResourceRootURL != "" {
		return strings.TrimRight(h.cfg.ResourceRootURL, "/") + r.URL.Path
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + r.URL.Path
}
