package gin

import (
	"github.com/gin-gonic/gin"

	x402 "github.com/x402-foundation/botgate"
	"github.com/x402-foundation/botgate/pkg/paywall"
)

// PaymentMiddleware is the gin middleware for the resource server using the x402 payment
// protocol. Every request to a priced route must pay.
func PaymentMiddleware(cfg *x402.Config, opts ...paywall.Option) gin.HandlerFunc {
	return Middleware(paywall.New(cfg, append(opts, paywall.WithMode(paywall.ModePayment))...))
}

// BotMiddleware charges only clients classified as bots.
func BotMiddleware(cfg *x402.Config, opts ...paywall.Option) gin.HandlerFunc {
	return Middleware(paywall.New(cfg, append(opts, paywall.WithMode(paywall.ModeBot))...))
}

// AICrawlerMiddleware charges only known AI crawlers.
func AICrawlerMiddleware(cfg *x402.Config, opts ...paywall.Option) gin.HandlerFunc {
	return Middleware(paywall.New(cfg, append(opts, paywall.WithMode(paywall.ModeAICrawler))...))
}

// Middleware adapts an existing handler. The settlement of a paid request is available to
// later handlers through paywall.SettlementFromContext and under the "x402_settlement" key.
func Middleware(h *paywall.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		decision := h.Process(c.Request)
		if decision.PaymentResponse != "" {
			c.Header(x402.HeaderPaymentResponse, decision.PaymentResponse)
		}
		if !decision.Forward() {
			c.AbortWithStatusJSON(decision.Status, decision.Body)
			return
		}

		if decision.Settlement != nil {
			c.Set(SettlementKey, decision.Settlement)
		}
		if decision.Classification != nil {
			c.Set(ClassificationKey, decision.Classification)
		}

		c.Request = decision.Request(c.Request)
		c.Next()
	}
}

// Keys under which Middleware stores values in the gin context.
const (
	SettlementKey     = "x402_settlement"
	ClassificationKey = "x402_classification"
)
