package facilitator

import (
	"context"
	"time"

	x402 "github.com/x402-foundation/botgate"
	"github.com/x402-foundation/botgate/pkg/types"
)

// ============================================================================
// Hook Context Types
// ============================================================================

// VerifyContext contains information passed to verify hooks
type VerifyContext struct {
	Ctx       context.Context
	Request   *types.FacilitatorRequest
	Timestamp time.Time
}

// VerifyResultContext contains the verify result and its context
type VerifyResultContext struct {
	VerifyContext
	Result   x402.Result[*types.VerifyResponse]
	Duration time.Duration
}

// SettleContext contains information passed to settle hooks
type SettleContext struct {
	Ctx       context.Context
	Request   *types.FacilitatorRequest
	Timestamp time.Time
}

// SettleResultContext contains the settle result and its context
type SettleResultContext struct {
	SettleContext
	Result   x402.Result[*types.SettleResponse]
	Duration time.Duration
}

// ============================================================================
// Hook Function Types
// ============================================================================

// BeforeVerifyHook is called before verification. Returning abort=true skips the checks
// and reports the payment invalid with the given reason.
type BeforeVerifyHook func(VerifyContext) (abort bool, reason string)

// AfterVerifyHook is called with every verify result, valid or not.
type AfterVerifyHook func(VerifyResultContext)

// BeforeSettleHook is called before settlement. Returning abort=true skips the broadcast
// and reports the settlement invalid with the given reason.
type BeforeSettleHook func(SettleContext) (abort bool, reason string)

// AfterSettleHook is called with every settle result.
type AfterSettleHook func(SettleResultContext)

// ============================================================================
// Hook Registration Methods
// ============================================================================

// OnBeforeVerify registers a hook that runs before every verification and may reject the
// payment with its own reason. Register hooks before serving; registration is not locked.
func (f *Facilitator) OnBeforeVerify(hook BeforeVerifyHook) *Facilitator {
	f.beforeVerifyHooks = append(f.beforeVerifyHooks, hook)
	return f
}

// OnAfterVerify registers a hook that receives every verify result and its duration.
func (f *Facilitator) OnAfterVerify(hook AfterVerifyHook) *Facilitator {
	f.afterVerifyHooks = append(f.afterVerifyHooks, hook)
	return f
}

// OnBeforeSettle registers a hook that runs before every settlement and may stop the
// broadcast with its own reason.
func (f *Facilitator) OnBeforeSettle(hook BeforeSettleHook) *Facilitator {
	f.beforeSettleHooks = append(f.beforeSettleHooks, hook)
	return f
}

// OnAfterSettle registers a hook that receives every settle result and its duration.
func (f *Facilitator) OnAfterSettle(hook AfterSettleHook) *Facilitator {
	f.afterSettleHooks = append(f.afterSettleHooks, hook)
	return f
}
