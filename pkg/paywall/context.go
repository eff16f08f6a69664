package paywall

import (
	"context"

	"github.com/x402-foundation/botgate/pkg/types"
)

type settlementKey struct{}

// WithSettlement stores a settlement in ctx.
func WithSettlement(ctx context.Context, settlement *types.SettleResponse) context.Context {
	return context.WithValue(ctx, settlementKey{}, settlement)
}

// SettlementFromContext returns the settlement of the payment that admitted the request.
func SettlementFromContext(ctx context.Context) (*types.SettleResponse, bool) {
	settlement, ok := ctx.Value(settlementKey{}).(*types.SettleResponse)
	return settlement, ok && settlement != nil
}
