package checkout

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultOrderTimeout is the caller-side timeout for order creation and
// capture calls, distinct from the transport timeout.
const DefaultOrderTimeout = 15 * time.Second

// OrderManager drives the redirect network's two-phase protocol. Unlike
// card sessions, orders are not cached: each attempt the user initiates
// from the widget creates a fresh order, and the transaction is settled
// only once capture succeeds.
type OrderManager struct {
	mu      sync.Mutex
	api     OrderAPI
	status  *StatusMachine
	logger  *slog.Logger
	timeout time.Duration
	hooks   *hookSet

	closed      bool
	lastOrderID string
}

// OrderManagerOption configures an OrderManager.
type OrderManagerOption func(*OrderManager)

// WithOrderTimeout sets the caller-side timeout per call.
func WithOrderTimeout(d time.Duration) OrderManagerOption {
	return func(m *OrderManager) { m.timeout = d }
}

// WithOrderLogger sets the logger.
func WithOrderLogger(logger *slog.Logger) OrderManagerOption {
	return func(m *OrderManager) { m.logger = logger }
}

// withOrderHooks attaches the controller's hook set.
func withOrderHooks(h *hookSet) OrderManagerOption {
	return func(m *OrderManager) { m.hooks = h }
}

// NewOrderManager creates an order manager bound to the status machine.
func NewOrderManager(api OrderAPI, status *StatusMachine, opts ...OrderManagerOption) *OrderManager {
	m := &OrderManager{
		api:     api,
		status:  status,
		logger:  slog.Default(),
		timeout: DefaultOrderTimeout,
		hooks:   &hookSet{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create is invoked by the widget when the user starts the redirect flow.
// It marks the attempt as awaiting the provider, creates a fresh order,
// and returns its opaque id to the widget. Creation failures end the
// attempt with a message distinct from capture failures: at this point no
// funds can have been authorized.
func (m *OrderManager) Create(ctx context.Context, req OrderRequest) (string, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", NewError(ClassValidation, ErrCodeCheckoutClosed, "checkout is closed", nil)
	}
	m.mu.Unlock()

	if err := m.status.Begin(); err != nil {
		// A previous attempt left non-idle state; reset and begin anew.
		if rerr := m.status.Reset(); rerr != nil {
			return "", AsError(rerr)
		}
		if berr := m.status.Begin(); berr != nil {
			return "", AsError(berr)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	order, err := m.api.CreateOrder(callCtx, req)
	if err != nil {
		perr := AsError(err)
		m.failAttempt(perr.Class, "could not start the payment: "+perr.Message)
		return "", perr
	}

	m.mu.Lock()
	m.lastOrderID = order.ID
	m.mu.Unlock()

	return order.ID, nil
}

// Approve is invoked by the widget once the user approved the payment.
// Only a successful capture settles the transaction; the message for a
// capture failure says so explicitly, since the funds may already have
// been authorized on the user's account.
func (m *OrderManager) Approve(ctx context.Context, orderID string) error {
	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	details, err := m.api.CaptureOrder(callCtx, orderID)
	if err != nil {
		perr := AsError(err)
		m.failAttempt(perr.Class,
			"the payment could not be completed; if your account shows a pending charge it will not be collected: "+perr.Message)
		return perr
	}

	if details == nil {
		details = &SettlementDetails{Reference: orderID}
	}
	details.Network = NetworkRedirect

	if err := m.status.Succeed(*details); err != nil {
		m.logger.Warn("settlement arrived in unexpected state", "error", err)
		return AsError(err)
	}

	for _, hook := range m.hooks.afterSettle {
		if herr := hook(SettleHookContext{
			Ctx:       ctx,
			Network:   NetworkRedirect,
			Details:   *details,
			Timestamp: time.Now(),
		}); herr != nil {
			m.logger.Warn("after-settle hook error", "error", herr)
		}
	}
	return nil
}

// Cancel is invoked on user abort. Terminal for the current attempt only;
// the gate remains payable and a new attempt can be started.
func (m *OrderManager) Cancel() {
	if err := m.status.Cancel(); err != nil {
		m.logger.Debug("cancel outside an active attempt", "error", err)
	}
}

// HandleError is invoked on errors the widget surfaces. The failure is
// recorded under the error's own class: a decline stays a decline with
// no retry affordance, an SDK fault keeps its transient classification.
// Terminal for the current attempt only.
func (m *OrderManager) HandleError(err error) {
	perr := AsError(err)
	msg := "the payment provider reported an error: " + perr.Message
	if perr.Class == ClassProviderDeclined {
		msg = "the payment was rejected: " + perr.Message
	}
	m.failAttempt(perr.Class, msg)
}

// failAttempt records a classified failure if an attempt is active.
func (m *OrderManager) failAttempt(class ErrorClass, msg string) {
	if err := m.status.Fail(Failure{Class: class, Message: msg}); err != nil {
		m.logger.Debug("failure outside an active attempt", "error", err)
	}
}

// Close tears the manager down.
func (m *OrderManager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}
