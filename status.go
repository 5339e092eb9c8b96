package checkout

import (
	"fmt"
	"sync"
)

// PaymentStatus is the user-visible outcome of the checkout. Within one
// attempt it is monotonic: idle, then awaitingProvider, then exactly one
// of succeeded, failed or cancelled. A subsequent attempt resets to idle
// first. Succeeded is terminal for the whole session.
type PaymentStatus int

const (
	// StatusIdle means the user is still entering data.
	StatusIdle PaymentStatus = iota
	// StatusAwaitingProvider means a submit/approve flow has begun.
	StatusAwaitingProvider
	// StatusSucceeded means settlement was confirmed. Terminal.
	StatusSucceeded
	// StatusFailed carries a classified, human-readable failure.
	StatusFailed
	// StatusCancelled is a user abort; it returns silently to idle.
	StatusCancelled
)

func (s PaymentStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusAwaitingProvider:
		return "awaitingProvider"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Failure describes a failed attempt: a classification that determines
// whether a retry affordance is shown, and a message for the user.
type Failure struct {
	Class   ErrorClass
	Message string
}

// Retryable reports whether the failure class is known to be transient.
func (f Failure) Retryable() bool {
	switch f.Class {
	case ClassSessionExpired, ClassTransport, ClassSDK:
		return true
	}
	return false
}

// StatusMachine drives the checkout's user-visible outcome. Transitions
// are validated; an illegal transition is rejected with an error rather
// than corrupting the state.
type StatusMachine struct {
	mu         sync.Mutex
	status     PaymentStatus
	failure    *Failure
	settlement *SettlementDetails
	subs       []func(PaymentStatus)
}

// NewStatusMachine creates a status machine in the idle state.
func NewStatusMachine() *StatusMachine {
	return &StatusMachine{status: StatusIdle}
}

// Subscribe registers a callback invoked after every transition, outside
// the machine's lock.
func (m *StatusMachine) Subscribe(fn func(PaymentStatus)) {
	m.mu.Lock()
	m.subs = append(m.subs, fn)
	m.mu.Unlock()
}

// Status returns the current status.
func (m *StatusMachine) Status() PaymentStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Failure returns the failure of the last failed attempt, or nil.
func (m *StatusMachine) Failure() *Failure {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failure
}

// Settlement returns the settlement details once succeeded, or nil.
func (m *StatusMachine) Settlement() *SettlementDetails {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settlement
}

// Begin enters awaitingProvider the instant either provider's
// submit/approve flow begins.
func (m *StatusMachine) Begin() error {
	return m.transition(StatusIdle, StatusAwaitingProvider, nil, nil)
}

// Succeed records settlement confirmation. Only a capture or
// payment-intent confirmation success may call this; order or intent
// creation alone must leave the status at awaitingProvider.
func (m *StatusMachine) Succeed(details SettlementDetails) error {
	return m.transition(StatusAwaitingProvider, StatusSucceeded, nil, &details)
}

// Fail records a classified failure for the current attempt.
func (m *StatusMachine) Fail(f Failure) error {
	return m.transition(StatusAwaitingProvider, StatusFailed, &f, nil)
}

// Cancel records a user abort and returns silently to idle. Subscribers
// observe the cancelled state before the reset, but no failure is kept.
func (m *StatusMachine) Cancel() error {
	if err := m.transition(StatusAwaitingProvider, StatusCancelled, nil, nil); err != nil {
		return err
	}
	return m.transition(StatusCancelled, StatusIdle, nil, nil)
}

// Reset prepares a new attempt after a failure. Succeeded is terminal for
// the session: any further interaction starts a brand-new checkout.
func (m *StatusMachine) Reset() error {
	m.mu.Lock()
	if m.status == StatusSucceeded {
		m.mu.Unlock()
		return fmt.Errorf("status %s is terminal", StatusSucceeded)
	}
	if m.status == StatusIdle {
		m.mu.Unlock()
		return nil
	}
	m.status = StatusIdle
	m.failure = nil
	subs := m.subs
	m.mu.Unlock()

	for _, fn := range subs {
		fn(StatusIdle)
	}
	return nil
}

func (m *StatusMachine) transition(from, to PaymentStatus, f *Failure, d *SettlementDetails) error {
	m.mu.Lock()
	if m.status != from {
		cur := m.status
		m.mu.Unlock()
		return fmt.Errorf("illegal status transition %s -> %s (current %s)", from, to, cur)
	}
	m.status = to
	if f != nil {
		m.failure = f
	}
	if d != nil {
		m.settlement = d
	}
	subs := m.subs
	m.mu.Unlock()

	for _, fn := range subs {
		fn(to)
	}
	return nil
}
