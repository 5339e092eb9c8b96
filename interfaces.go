package checkout

import (
	"context"
)

// SessionRequest carries everything that affects the content of a card
// payment session. All fields except LinkedEmail are required.
type SessionRequest struct {
	OfferID        string         `json:"offerId"`
	Name           string         `json:"name"`
	Email          string         `json:"email"`
	IdempotencyKey string         `json:"-"`
	Activation     ActivationType `json:"activationType"`
	LinkedEmail    string         `json:"linkedAccountEmail,omitempty"`
	Currency       string         `json:"currency,omitempty"`
}

// SessionAPI creates payment sessions on the card network.
//
// Session creation is billable on the provider side, so every logical
// attempt carries an idempotency key. A retry of the same attempt after a
// transient failure reuses the key, letting the provider deduplicate a
// first request that actually succeeded server-side; a new attempt gets a
// new key.
type SessionAPI interface {
	CreatePaymentSession(ctx context.Context, req SessionRequest) (*Session, error)
}

// OrderRequest carries the inputs for creating a redirect-network order.
type OrderRequest struct {
	OfferID     string         `json:"offerId"`
	Name        string         `json:"name"`
	Email       string         `json:"email"`
	Activation  ActivationType `json:"activationType"`
	LinkedEmail string         `json:"linkedAccountEmail,omitempty"`
}

// OrderAPI is the redirect network's two-phase protocol. An order is not
// settled until CaptureOrder succeeds; creation alone authorizes nothing.
type OrderAPI interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	CaptureOrder(ctx context.Context, orderID string) (*SettlementDetails, error)
}

// CatalogAPI is the external pricing catalog collaborator. Read-only.
type CatalogAPI interface {
	GetOffers(ctx context.Context) ([]Offer, error)
}

// FeeAPI is the external pricing collaborator for activation fees.
type FeeAPI interface {
	GetActivationFee(ctx context.Context, offerID string) (Money, error)
}

// ButtonConfig is passed to a widget SDK's button factory. The create,
// approve, cancel and error callbacks are bound by the controller to the
// session and order managers; the SDK invokes them from its own flow.
type ButtonConfig struct {
	Network Network

	// SessionToken is set once a card session exists. Before that, the
	// card element renders pre-session from the bare Currency/Amount pair.
	SessionToken string
	Currency     string
	Amount       int64

	// CreateOrder is invoked by the redirect network's button when the
	// user starts the flow. Returns an opaque order id.
	CreateOrder func(ctx context.Context) (string, error)
	// OnApprove is invoked when the user approved the payment. For the
	// redirect network it carries the order id to capture; for the card
	// network it fires on payment-intent confirmation with an empty id.
	OnApprove func(ctx context.Context, orderID string) error
	// OnCancel is invoked on user-initiated abort.
	OnCancel func()
	// OnError is invoked on SDK-level failures.
	OnError func(err error)
}

// WidgetSDK is the boundary to an externally injected, self-rendering
// payment widget script. The SDK exclusively owns the display subtree
// under a container once Render has been called; teardown must go through
// the button's own Close, never by clearing the container directly.
type WidgetSDK interface {
	// Ready reports whether the injected script has signaled readiness.
	// The controller polls this rather than assuming it at mount time.
	Ready() bool
	// NewButton constructs a button instance with the given callbacks.
	NewButton(cfg ButtonConfig) (WidgetButton, error)
}

// WidgetButton is an SDK-provided opaque button instance.
type WidgetButton interface {
	// Render mounts the button into the container. Providers differ on
	// whether rendering is synchronous or deferred; either way the call
	// returns only once the outcome is known.
	Render(ctx context.Context, containerID string) error
	// Close disposes the rendered widget through the SDK.
	Close() error
}
