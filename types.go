package checkout

import (
	"fmt"
)

// Network identifies one of the two payment networks the checkout
// orchestrates. The two networks are mutually incompatible: the card
// network issues client-confirmed payment sessions, the redirect network
// uses a two-phase create/capture order protocol.
type Network string

const (
	// NetworkCard is the tokenized card / payment-intent network.
	NetworkCard Network = "card"
	// NetworkRedirect is the redirect-based order/capture network.
	NetworkRedirect Network = "redirect"
)

// ActivationType is the mode by which a purchased entitlement is delivered.
type ActivationType string

const (
	// ActivationDirect provisions the entitlement directly for the buyer.
	ActivationDirect ActivationType = "direct"
	// ActivationEmailLinked links the entitlement to the buyer's own
	// external account email, which must validate independently.
	ActivationEmailLinked ActivationType = "email-linked"
	// ActivationRedemptionCode delivers the entitlement as a code.
	ActivationRedemptionCode ActivationType = "redemption-code"
)

// Valid reports whether the activation type is one of the known modes.
func (a ActivationType) Valid() bool {
	switch a {
	case ActivationDirect, ActivationEmailLinked, ActivationRedemptionCode:
		return true
	}
	return false
}

// Money is an amount in minor units of a currency (cents for USD/EUR).
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool { return m.Amount == 0 }

func (m Money) String() string {
	return fmt.Sprintf("%d.%02d %s", m.Amount/100, m.Amount%100, m.Currency)
}

// BillingPeriod is the recurrence of a subscription offer in whole months.
// A zero period means a one-time purchase.
type BillingPeriod struct {
	Months int `json:"months"`
}

// IsSubscription reports whether the offer recurs.
func (p BillingPeriod) IsSubscription() bool { return p.Months > 0 }

// Offer is a purchasable unit loaded from the external catalog.
// Offers are immutable for the lifetime of a checkout view.
type Offer struct {
	ID         string         `json:"id"`
	Price      Money          `json:"price"`
	ListPrice  *Money         `json:"listPrice,omitempty"` // original price for discount display
	Period     BillingPeriod  `json:"period"`
	Activation ActivationType `json:"activationType"`
}

// Field names a user-entered checkout field.
type Field string

const (
	FieldName        Field = "name"
	FieldEmail       Field = "email"
	FieldLinkedEmail Field = "linkedAccountEmail"
)

// RequiredFieldsFor returns the fields that must be present and valid
// before payment is payable for the given activation type.
func RequiredFieldsFor(a ActivationType) []Field {
	switch a {
	case ActivationEmailLinked:
		return []Field{FieldName, FieldEmail, FieldLinkedEmail}
	default:
		return []Field{FieldName, FieldEmail}
	}
}

// FeeState tracks the asynchronous activation-fee lookup of a quote.
type FeeState int

const (
	// FeeNone means no activation fee applies to this quote.
	FeeNone FeeState = iota
	// FeeCalculating means the fee lookup is in flight. Payability is
	// suppressed while calculating; this is not an error state.
	FeeCalculating
	// FeeReady means the fee lookup completed.
	FeeReady
	// FeeFallback means the lookup failed and a zero fee was assumed.
	// The fee is cosmetic to the summary, so this does not block payment.
	FeeFallback
)

func (s FeeState) String() string {
	switch s {
	case FeeNone:
		return "none"
	case FeeCalculating:
		return "calculating"
	case FeeReady:
		return "ready"
	case FeeFallback:
		return "fallback"
	default:
		return fmt.Sprintf("feestate(%d)", int(s))
	}
}

// Quote is the resolver's output for a selected offer and activation type.
type Quote struct {
	ChargeAmount   Money
	ActivationFee  Money
	FeeState       FeeState
	Period         BillingPeriod
	RequiredFields []Field
}

// Session is a card-network token representing a not-yet-settled payment,
// confirmed client-side. Sessions are billable to create, so they are
// cached by fingerprint and reused, never recreated.
type Session struct {
	Token       string `json:"sessionToken"`
	Fingerprint string `json:"-"`
	Currency    string `json:"currency,omitempty"`
	Amount      int64  `json:"amount,omitempty"`
}

// Order is a redirect-network object representing a not-yet-settled
// payment, created then captured in two calls. Orders are never cached;
// each attempt the user initiates creates a fresh one.
type Order struct {
	ID string `json:"orderId"`
}

// SettlementDetails describes a confirmed-complete payment.
type SettlementDetails struct {
	Network   Network `json:"network"`
	Reference string  `json:"reference"`
}
