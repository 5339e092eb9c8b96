// Package http provides HTTP clients for the backend endpoints the
// checkout core consumes: card-session creation, redirect-order creation
// and capture, and the offer catalog and pricing collaborators.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	checkout "github.com/finchpay/checkout"
)

// AuthProvider generates authentication headers for provider requests.
type AuthProvider interface {
	GetAuthHeaders(ctx context.Context) (map[string]string, error)
}

// ClientConfig configures a provider client.
type ClientConfig struct {
	// URL is the base URL of the provider endpoint.
	URL string

	// HTTPClient is the HTTP client to use (optional).
	HTTPClient *http.Client

	// AuthProvider provides authentication headers (optional).
	AuthProvider AuthProvider

	// Timeout is the transport-level timeout (optional, defaults to 30s).
	Timeout time.Duration

	// CallTimeout is the caller-side timeout per call, distinct from the
	// transport timeout (optional, defaults to 15s).
	CallTimeout time.Duration
}

const (
	defaultTimeout     = 30 * time.Second
	defaultCallTimeout = 15 * time.Second
)

// apiError is the error envelope the provider endpoints return.
type apiError struct {
	Err struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// httpClientFor builds the HTTP client for a config.
func httpClientFor(cfg *ClientConfig) *http.Client {
	if cfg.HTTPClient != nil {
		return cfg.HTTPClient
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// callTimeoutFor returns the caller-side timeout for a config.
func callTimeoutFor(cfg *ClientConfig) time.Duration {
	if cfg.CallTimeout > 0 {
		return cfg.CallTimeout
	}
	return defaultCallTimeout
}

// doJSON performs one JSON request/response round trip. Non-2xx responses
// are decoded into the provider error envelope and mapped onto the
// checkout error taxonomy; timeouts of either kind map to the transient
// transport class.
func doJSON(ctx context.Context, client *http.Client, auth AuthProvider, method, url string, headers map[string]string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if auth != nil {
		authHeaders, err := auth.GetAuthHeaders(ctx)
		if err != nil {
			return fmt.Errorf("failed to get auth headers: %w", err)
		}
		for k, v := range authHeaders {
			req.Header.Set(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return checkout.NewError(checkout.ClassTransport, checkout.ErrCodeTimeout,
				"the payment service took too long to respond", nil)
		}
		return checkout.NewError(checkout.ClassTransport, checkout.ErrCodeConnectivity,
			"could not reach the payment service", map[string]interface{}{"cause": err.Error()})
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return checkout.NewError(checkout.ClassTransport, checkout.ErrCodeConnectivity,
			"failed to read provider response", nil)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errorFromResponse(resp.StatusCode, data)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return checkout.NewError(checkout.ClassTransport, checkout.ErrCodeProviderResponse,
				"provider returned an unreadable response", nil)
		}
	}
	return nil
}

// errorFromResponse maps an HTTP error response onto the error taxonomy.
// Validation-style 4xx errors are surfaced verbatim with no retry;
// expired-session and declined responses get their own classes; anything
// else is a transient transport failure.
func errorFromResponse(status int, data []byte) *checkout.Error {
	var envelope apiError
	_ = json.Unmarshal(data, &envelope)

	code := envelope.Err.Code
	message := envelope.Err.Message
	if message == "" {
		message = http.StatusText(status)
	}

	switch {
	case code == "session_expired" || status == http.StatusConflict || status == http.StatusGone:
		return checkout.NewError(checkout.ClassSessionExpired, checkout.ErrCodeSessionExpired, message, nil)
	case status == http.StatusPaymentRequired:
		return checkout.NewError(checkout.ClassProviderDeclined, checkout.ErrCodePaymentDeclined, message, nil)
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests:
		return checkout.NewError(checkout.ClassTransport, checkout.ErrCodeTimeout, message, nil)
	case status >= 400 && status < 500:
		if code == "" {
			code = checkout.ErrCodeProviderRejected
		}
		return checkout.NewError(checkout.ClassValidation, code, message, nil)
	default:
		return checkout.NewError(checkout.ClassTransport, checkout.ErrCodeConnectivity, message, nil)
	}
}
