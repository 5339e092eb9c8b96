package checkout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusMachineStartsIdle(t *testing.T) {
	m := NewStatusMachine()
	assert.Equal(t, StatusIdle, m.Status())
	assert.Nil(t, m.Failure())
	assert.Nil(t, m.Settlement())
}

func TestStatusMachineHappyPath(t *testing.T) {
	m := NewStatusMachine()

	require.NoError(t, m.Begin())
	assert.Equal(t, StatusAwaitingProvider, m.Status())

	details := SettlementDetails{Network: NetworkCard, Reference: "tok_1"}
	require.NoError(t, m.Succeed(details))
	assert.Equal(t, StatusSucceeded, m.Status())
	require.NotNil(t, m.Settlement())
	assert.Equal(t, details, *m.Settlement())
}

func TestStatusMachineSucceededIsTerminal(t *testing.T) {
	m := NewStatusMachine()
	require.NoError(t, m.Begin())
	require.NoError(t, m.Succeed(SettlementDetails{Network: NetworkCard, Reference: "tok_1"}))

	assert.Error(t, m.Begin())
	assert.Error(t, m.Fail(Failure{Class: ClassTransport, Message: "late"}))
	assert.Error(t, m.Reset(), "succeeded must survive a reset")
	assert.Equal(t, StatusSucceeded, m.Status())
}

func TestStatusMachineSettlementGating(t *testing.T) {
	m := NewStatusMachine()

	// Succeed without an active attempt is illegal.
	err := m.Succeed(SettlementDetails{Network: NetworkRedirect, Reference: "order_1"})
	require.Error(t, err)
	assert.Equal(t, StatusIdle, m.Status())
}

func TestStatusMachineFailAndReset(t *testing.T) {
	m := NewStatusMachine()
	require.NoError(t, m.Begin())

	f := Failure{Class: ClassProviderDeclined, Message: "declined"}
	require.NoError(t, m.Fail(f))
	assert.Equal(t, StatusFailed, m.Status())
	require.NotNil(t, m.Failure())
	assert.Equal(t, f, *m.Failure())

	require.NoError(t, m.Reset())
	assert.Equal(t, StatusIdle, m.Status())
	assert.Nil(t, m.Failure())

	// A fresh attempt starts cleanly.
	require.NoError(t, m.Begin())
}

func TestStatusMachineCancelReturnsToIdle(t *testing.T) {
	m := NewStatusMachine()
	require.NoError(t, m.Begin())

	var seen []PaymentStatus
	m.Subscribe(func(s PaymentStatus) { seen = append(seen, s) })

	require.NoError(t, m.Cancel())
	assert.Equal(t, StatusIdle, m.Status())
	assert.Nil(t, m.Failure(), "a cancel is not a failure")
	assert.Equal(t, []PaymentStatus{StatusCancelled, StatusIdle}, seen,
		"subscribers observe the cancelled state before the reset")
}

func TestStatusMachineCancelOutsideAttempt(t *testing.T) {
	m := NewStatusMachine()
	assert.Error(t, m.Cancel())
	assert.Equal(t, StatusIdle, m.Status())
}

func TestStatusMachineDoubleBeginRejected(t *testing.T) {
	m := NewStatusMachine()
	require.NoError(t, m.Begin())
	assert.Error(t, m.Begin())
	assert.Equal(t, StatusAwaitingProvider, m.Status())
}

func TestStatusMachineResetWhileIdleIsNoop(t *testing.T) {
	m := NewStatusMachine()
	assert.NoError(t, m.Reset())
	assert.Equal(t, StatusIdle, m.Status())
}

func TestStatusMachineSubscribersSeeTransitions(t *testing.T) {
	m := NewStatusMachine()
	var seen []PaymentStatus
	m.Subscribe(func(s PaymentStatus) { seen = append(seen, s) })

	require.NoError(t, m.Begin())
	require.NoError(t, m.Fail(Failure{Class: ClassTransport, Message: "timeout"}))
	require.NoError(t, m.Reset())

	assert.Equal(t, []PaymentStatus{StatusAwaitingProvider, StatusFailed, StatusIdle}, seen)
}

func TestFailureRetryable(t *testing.T) {
	tests := []struct {
		class ErrorClass
		want  bool
	}{
		{ClassSessionExpired, true},
		{ClassTransport, true},
		{ClassSDK, true},
		{ClassProviderDeclined, false},
		{ClassValidation, false},
		{ClassCancelled, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Failure{Class: tt.class}.Retryable(), "class %s", tt.class)
	}
}
