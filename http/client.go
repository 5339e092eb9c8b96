package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	checkout "github.com/finchpay/checkout"
)

// ============================================================================
// Card Network Client (payment sessions)
// ============================================================================

// SessionClient talks to the card network's session-creation endpoint.
// Implements checkout.SessionAPI.
type SessionClient struct {
	url         string
	httpClient  *http.Client
	auth        AuthProvider
	callTimeout time.Duration
}

// NewSessionClient creates a card network client.
func NewSessionClient(cfg *ClientConfig) *SessionClient {
	if cfg == nil {
		cfg = &ClientConfig{}
	}
	return &SessionClient{
		url:         cfg.URL,
		httpClient:  httpClientFor(cfg),
		auth:        cfg.AuthProvider,
		callTimeout: callTimeoutFor(cfg),
	}
}

// CreatePaymentSession creates a payment session. The idempotency key
// travels as a header so a retried request cannot double-charge even if
// the first one succeeded server-side.
func (c *SessionClient) CreatePaymentSession(ctx context.Context, req checkout.SessionRequest) (*checkout.Session, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	headers := map[string]string{"Idempotency-Key": req.IdempotencyKey}

	var ses checkout.Session
	err := doJSON(callCtx, c.httpClient, c.auth, http.MethodPost,
		c.url+"/payment-sessions", headers, req, &ses)
	if err != nil {
		return nil, err
	}
	if ses.Token == "" {
		return nil, checkout.NewError(checkout.ClassTransport, checkout.ErrCodeProviderResponse,
			"provider returned no session token", nil)
	}
	return &ses, nil
}

// ============================================================================
// Redirect Network Client (orders)
// ============================================================================

// OrderClient talks to the redirect network's two-phase order endpoints.
// Implements checkout.OrderAPI.
type OrderClient struct {
	url         string
	httpClient  *http.Client
	auth        AuthProvider
	callTimeout time.Duration
}

// NewOrderClient creates a redirect network client.
func NewOrderClient(cfg *ClientConfig) *OrderClient {
	if cfg == nil {
		cfg = &ClientConfig{}
	}
	return &OrderClient{
		url:         cfg.URL,
		httpClient:  httpClientFor(cfg),
		auth:        cfg.AuthProvider,
		callTimeout: callTimeoutFor(cfg),
	}
}

// CreateOrder creates a fresh order. Orders are never cached or reused;
// every user-initiated attempt gets its own.
func (c *OrderClient) CreateOrder(ctx context.Context, req checkout.OrderRequest) (*checkout.Order, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	var order checkout.Order
	err := doJSON(callCtx, c.httpClient, c.auth, http.MethodPost,
		c.url+"/orders", nil, req, &order)
	if err != nil {
		return nil, err
	}
	if order.ID == "" {
		return nil, checkout.NewError(checkout.ClassTransport, checkout.ErrCodeProviderResponse,
			"provider returned no order id", nil)
	}
	return &order, nil
}

// CaptureOrder captures a previously created and approved order. Only a
// successful capture settles the transaction; failures here carry the
// capture-specific error code since funds may already be authorized.
func (c *OrderClient) CaptureOrder(ctx context.Context, orderID string) (*checkout.SettlementDetails, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	var details checkout.SettlementDetails
	err := doJSON(callCtx, c.httpClient, c.auth, http.MethodPost,
		fmt.Sprintf("%s/orders/%s/capture", c.url, orderID), nil, nil, &details)
	if err != nil {
		perr := checkout.AsError(err)
		return nil, checkout.NewError(perr.Class, checkout.ErrCodeCaptureFailed, perr.Message, perr.Details)
	}
	if details.Reference == "" {
		details.Reference = orderID
	}
	details.Network = checkout.NetworkRedirect
	return &details, nil
}

// Interface guards.
var (
	_ checkout.SessionAPI = (*SessionClient)(nil)
	_ checkout.OrderAPI   = (*OrderClient)(nil)
)
