// Package echo adapts the paywall to labstack/echo.
package echo

import (
	"github.com/labstack/echo/v4"

	x402 "github.com/x402-foundation/botgate"
	"github.com/x402-foundation/botgate/pkg/paywall"
)

// SettlementKey is the echo context key of a paid request's settlement.
const SettlementKey = "x402_settlement"

// PaymentMiddleware charges every request to a priced route.
func PaymentMiddleware(cfg *x402.Config, opts ...paywall.Option) echo.MiddlewareFunc {
	return Middleware(paywall.New(cfg, append(opts, paywall.WithMode(paywall.ModePayment))...))
}

// BotMiddleware charges only clients classified as bots.
func BotMiddleware(cfg *x402.Config, opts ...paywall.Option) echo.MiddlewareFunc {
	return Middleware(paywall.New(cfg, append(opts, paywall.WithMode(paywall.ModeBot))...))
}

// AICrawlerMiddleware charges only known AI crawlers.
func AICrawlerMiddleware(cfg *x402.Config, opts ...paywall.Option) echo.MiddlewareFunc {
	return Middleware(paywall.New(cfg, append(opts, paywall.WithMode(paywall.ModeAICrawler))...))
}

// Middleware adapts an existing handler.
func Middleware(h *paywall.Handler) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			decision := h.Process(c.Request())
			if decision.PaymentResponse != "" {
				c.Response().Header().Set(x402.HeaderPaymentResponse, decision.PaymentResponse)
			}
			if !decision.Forward() {
				return c.JSON(decision.Status, decision.Body)
			}

			if decision.Settlement != nil {
				c.Set(SettlementKey, decision.Settlement)
			}

			c.SetRequest(decision.Request(c.Request()))
			return next(c)
		}
	}
}
