package checkout

import (
	"context"
	"sync"
	"testing"
	"time"
)

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}

// inlineScheduler runs deferred validations synchronously for
// deterministic tests.
func inlineScheduler(fn func()) { fn() }

// fakeSessionAPI is a controllable card network.
type fakeSessionAPI struct {
	mu    sync.Mutex
	calls int
	keys  []string
	reqs  []SessionRequest
	delay time.Duration
	// failures maps 1-based call numbers to the error to return.
	failures map[int]error
}

func (f *fakeSessionAPI) CreatePaymentSession(ctx context.Context, req SessionRequest) (*Session, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.keys = append(f.keys, req.IdempotencyKey)
	f.reqs = append(f.reqs, req)
	delay := f.delay
	err := f.failures[call]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &Session{
		Token:    "tok_" + req.IdempotencyKey,
		Currency: req.Currency,
	}, nil
}

func (f *fakeSessionAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeSessionAPI) idempotencyKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...)
}

// fakeOrderAPI is a controllable redirect network.
type fakeOrderAPI struct {
	mu         sync.Mutex
	created    int
	captured   int
	createErr  error
	captureErr error
}

func (f *fakeOrderAPI) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created++
	return &Order{ID: "order_1"}, nil
}

func (f *fakeOrderAPI) CaptureOrder(ctx context.Context, orderID string) (*SettlementDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.captureErr != nil {
		return nil, f.captureErr
	}
	f.captured++
	return &SettlementDetails{Reference: "cap_" + orderID}, nil
}

// fakeSDK simulates a browser-injected widget SDK.
type fakeSDK struct {
	mu          sync.Mutex
	ready       bool
	buttons     []*fakeButton
	newErr      error
	renderDelay time.Duration
	closeErr    error
}

func newFakeSDK(ready bool) *fakeSDK { return &fakeSDK{ready: ready} }

func (s *fakeSDK) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func (s *fakeSDK) setReady(ready bool) {
	s.mu.Lock()
	s.ready = ready
	s.mu.Unlock()
}

func (s *fakeSDK) NewButton(cfg ButtonConfig) (WidgetButton, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.newErr != nil {
		return nil, s.newErr
	}
	b := &fakeButton{cfg: cfg, renderDelay: s.renderDelay, closeErr: s.closeErr}
	s.buttons = append(s.buttons, b)
	return b, nil
}

// openButtons returns the buttons that rendered and were not closed.
func (s *fakeSDK) openButtons() []*fakeButton {
	s.mu.Lock()
	defer s.mu.Unlock()
	var open []*fakeButton
	for _, b := range s.buttons {
		if b.isOpen() {
			open = append(open, b)
		}
	}
	return open
}

func (s *fakeSDK) lastButton() *fakeButton {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buttons) == 0 {
		return nil
	}
	return s.buttons[len(s.buttons)-1]
}

type fakeButton struct {
	mu          sync.Mutex
	cfg         ButtonConfig
	rendered    bool
	closed      bool
	renderErr   error
	renderDelay time.Duration
	closeErr    error
}

func (b *fakeButton) Render(ctx context.Context, containerID string) error {
	if b.renderDelay > 0 {
		time.Sleep(b.renderDelay)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.renderErr != nil {
		return b.renderErr
	}
	b.rendered = true
	return nil
}

func (b *fakeButton) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return b.closeErr
}

func (b *fakeButton) isOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rendered && !b.closed
}
