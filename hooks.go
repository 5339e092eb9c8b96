package checkout

import (
	"context"
	"time"
)

// ============================================================================
// Hook Context Types
// ============================================================================

// SessionHookContext contains information passed to session-creation hooks.
type SessionHookContext struct {
	Ctx            context.Context
	Inputs         FingerprintInputs
	IdempotencyKey string
	Timestamp      time.Time
}

// SessionResultContext contains a session-creation result and its context.
type SessionResultContext struct {
	SessionHookContext
	Session  *Session
	Duration time.Duration
}

// SessionFailureContext contains a session-creation failure and its context.
type SessionFailureContext struct {
	SessionHookContext
	Error    error
	Duration time.Duration
}

// SettleHookContext contains information passed to settlement hooks.
type SettleHookContext struct {
	Ctx       context.Context
	Network   Network
	Details   SettlementDetails
	Timestamp time.Time
}

// ============================================================================
// Hook Result Types
// ============================================================================

// BeforeHookResult represents the result of a "before" hook.
// If Abort is true, the operation is aborted with the given Reason.
type BeforeHookResult struct {
	Abort  bool
	Reason string
}

// ============================================================================
// Hook Function Types
// ============================================================================

// BeforeCreateSessionHook is called before a session-creation request.
// If it returns a result with Abort=true, the request is skipped and the
// reason surfaced as a validation error.
type BeforeCreateSessionHook func(SessionHookContext) (*BeforeHookResult, error)

// AfterCreateSessionHook is called after a session was created. Any error
// returned is logged but does not affect the created session.
type AfterCreateSessionHook func(SessionResultContext) error

// OnCreateSessionFailureHook is called when session creation fails, after
// the automatic retry is exhausted.
type OnCreateSessionFailureHook func(SessionFailureContext) error

// AfterSettleHook is called after settlement is confirmed on either
// network. Any error returned is logged but does not affect the outcome.
type AfterSettleHook func(SettleHookContext) error

// hookSet is the set of hooks registered on a Checkout.
type hookSet struct {
	beforeCreateSession []BeforeCreateSessionHook
	afterCreateSession  []AfterCreateSessionHook
	onSessionFailure    []OnCreateSessionFailureHook
	afterSettle         []AfterSettleHook
}
