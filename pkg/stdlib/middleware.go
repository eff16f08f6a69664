package stdlib

import (
	"log/slog"
	"net/http"

	x402 "github.com/x402-foundation/botgate"
	"github.com/x402-foundation/botgate/pkg/paywall"
)

// PaymentMiddleware is the Go standard library middleware for the resource server using the
// x402 payment protocol. Every request to a priced route must pay.
func PaymentMiddleware(cfg *x402.Config, opts ...paywall.Option) func(http.Handler) http.Handler {
	return Middleware(paywall.New(cfg, append(opts, paywall.WithMode(paywall.ModePayment))...))
}

// BotMiddleware charges only clients classified as bots. Allow-listed bots pass for free.
func BotMiddleware(cfg *x402.Config, opts ...paywall.Option) func(http.Handler) http.Handler {
	return Middleware(paywall.New(cfg, append(opts, paywall.WithMode(paywall.ModeBot))...))
}

// AICrawlerMiddleware charges only known AI crawlers.
func AICrawlerMiddleware(cfg *x402.Config, opts ...paywall.Option) func(http.Handler) http.Handler {
	return Middleware(paywall.New(cfg, append(opts, paywall.WithMode(paywall.ModeAICrawler))...))
}

// Middleware wraps next with an existing handler.
func Middleware(h *paywall.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := h.Process(r)
			if !decision.Forward() {
				if err := decision.Write(w); err != nil {
					slog.ErrorContext(r.Context(), "failed to write payment response", "path", r.URL.Path, "error", err)
				}
				return
			}

			if decision.PaymentResponse != "" {
				w.Header().Set(x402.HeaderPaymentResponse, decision.PaymentResponse)
			}

			// Proceed to the next handler
			next.ServeHTTP(w, decision.Request(r))
		})
	}
}
