package checkout

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGate(required []Field, opts ...GateOption) *Gate {
	opts = append([]GateOption{WithScheduler(inlineScheduler)}, opts...)
	return NewGate(required, opts...)
}

func TestGateStartsClosed(t *testing.T) {
	g := newTestGate(RequiredFieldsFor(ActivationDirect))
	assert.False(t, g.IsPayable())
}

func TestGateOpensWithValidFields(t *testing.T) {
	g := newTestGate(RequiredFieldsFor(ActivationDirect))

	g.SetField(FieldName, "Jane Doe")
	g.SetField(FieldEmail, "jane@example.com")

	assert.True(t, g.IsPayable())
}

func TestGateNameRules(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"plain name", "Jane Doe", false},
		{"empty", "", true},
		{"whitespace only", "   ", true},
		{"at the length limit", strings.Repeat("a", 50), false},
		{"over the length limit", strings.Repeat("a", 51), true},
		{"multibyte name at the limit", strings.Repeat("ä", 50), false},
		{"multibyte name over the limit", strings.Repeat("ä", 51), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGate([]Field{FieldName})
			g.SetField(FieldName, tt.value)
			fs := g.Field(FieldName)
			if tt.wantErr {
				assert.NotEmpty(t, fs.Error)
				assert.False(t, g.IsPayable())
			} else {
				assert.Empty(t, fs.Error)
			}
		})
	}
}

func TestGateEmailRules(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"plain address", "jane@example.com", false},
		{"subdomain", "jane@mail.example.co.uk", false},
		{"plus tag", "jane+tag@example.com", false},
		{"missing at", "janeexample.com", true},
		{"missing domain dot", "jane@example", true},
		{"embedded space", "jane doe@example.com", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGate([]Field{FieldEmail})
			g.SetField(FieldEmail, tt.value)
			fs := g.Field(FieldEmail)
			if tt.wantErr {
				assert.NotEmpty(t, fs.Error)
			} else {
				assert.Empty(t, fs.Error)
			}
		})
	}
}

func TestGateLinkedEmailStricterThanContactEmail(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"plain address", "jane@account.example.com", false},
		{"single-label domain", "jane@localhost", true},
		{"consecutive dots", "jane..doe@example.com", true},
		{"numeric tld", "jane@example.123", true},
		{"one-letter tld", "jane@example.c", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGate([]Field{FieldLinkedEmail})
			g.SetField(FieldLinkedEmail, tt.value)
			fs := g.Field(FieldLinkedEmail)
			if tt.wantErr {
				assert.NotEmpty(t, fs.Error, "value %q should be rejected", tt.value)
			} else {
				assert.Empty(t, fs.Error)
			}
		})
	}
}

func TestGateTypoDomainWarnsButDoesNotBlock(t *testing.T) {
	g := newTestGate([]Field{FieldLinkedEmail})
	g.SetField(FieldLinkedEmail, "jane@gmial.com")

	fs := g.Field(FieldLinkedEmail)
	assert.Empty(t, fs.Error)
	assert.Contains(t, fs.Warning, "gmail.com")
	assert.True(t, g.IsPayable())
}

func TestGateLinkedEmailRequiredForEmailLinkedActivation(t *testing.T) {
	g := newTestGate(RequiredFieldsFor(ActivationEmailLinked))

	g.SetField(FieldName, "Jane Doe")
	g.SetField(FieldEmail, "jane@example.com")
	require.False(t, g.IsPayable(), "linked email unset must keep the gate closed")

	g.SetField(FieldLinkedEmail, "jane@account.example.com")
	assert.True(t, g.IsPayable())
}

func TestGateSetRequiredReevaluates(t *testing.T) {
	g := newTestGate(RequiredFieldsFor(ActivationEmailLinked))
	g.SetField(FieldName, "Jane Doe")
	g.SetField(FieldEmail, "jane@example.com")
	require.False(t, g.IsPayable())

	// Switching to a direct offer drops the linked-email requirement.
	g.SetRequired(RequiredFieldsFor(ActivationDirect))
	assert.True(t, g.IsPayable())
}

func TestGateUnvalidatedKeystrokeKeepsGateClosed(t *testing.T) {
	var pending []func()
	g := NewGate([]Field{FieldName}, WithScheduler(func(fn func()) {
		pending = append(pending, fn)
	}))

	g.SetField(FieldName, "Jane Doe")
	assert.False(t, g.IsPayable(), "payability must wait for the deferred validation")

	for _, fn := range pending {
		fn()
	}
	assert.True(t, g.IsPayable())
}

func TestGateStaleValidationDiscarded(t *testing.T) {
	var pending []func()
	g := NewGate([]Field{FieldEmail}, WithScheduler(func(fn func()) {
		pending = append(pending, fn)
	}))

	g.SetField(FieldEmail, "jane@example.com")
	g.SetField(FieldEmail, "broken")

	// Run only the validation for the first, superseded keystroke. Its
	// result must not be applied over the newer value.
	pending[0]()
	assert.False(t, g.IsPayable())

	pending[1]()
	fs := g.Field(FieldEmail)
	assert.NotEmpty(t, fs.Error)
	assert.False(t, g.IsPayable())
}

func TestGateOnChangeFires(t *testing.T) {
	changes := 0
	g := newTestGate([]Field{FieldName}, WithGateOnChange(func() { changes++ }))

	g.SetField(FieldName, "Jane Doe")
	assert.Greater(t, changes, 0)
}

func TestGateClear(t *testing.T) {
	g := newTestGate(RequiredFieldsFor(ActivationDirect))
	g.SetField(FieldName, "Jane Doe")
	g.SetField(FieldEmail, "jane@example.com")
	require.True(t, g.IsPayable())

	g.Clear()
	assert.False(t, g.IsPayable())
	assert.Equal(t, FieldState{}, g.Field(FieldName))
}
