package checkout

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultDebounce is the window after the last fingerprint-input
	// change before session creation begins.
	DefaultDebounce = 500 * time.Millisecond
	// DefaultSessionTimeout is the caller-side timeout for one
	// session-creation call, distinct from the transport timeout.
	DefaultSessionTimeout = 15 * time.Second
)

// SessionManager owns the card network's session lifecycle: debounced,
// cancellable creation keyed by fingerprint, with reuse over recreation.
//
// On every change to the fingerprint inputs it waits out a debounce
// window, and only while the gate reports payable does it compute the
// fingerprint and either reuse a cached session with no network call or
// create a fresh one under a new idempotency key. If the fingerprint
// changes again before an in-flight request resolves, the result is still
// cached under its original fingerprint, but it is discarded rather than
// applied: applied state always keys off the current fingerprint.
type SessionManager struct {
	mu       sync.Mutex
	api      SessionAPI
	cache    *SessionCache
	logger   *slog.Logger
	debounce time.Duration
	timeout  time.Duration
	hooks    *hookSet
	onChange func()

	timer    *time.Timer
	gen      uint64
	closed   bool
	started  bool
	payable  bool
	current  FingerprintInputs
	currency string
	session  *Session
	lastErr  *Error
}

// SessionManagerOption configures a SessionManager.
type SessionManagerOption func(*SessionManager)

// WithDebounce sets the debounce window for session creation.
func WithDebounce(d time.Duration) SessionManagerOption {
	return func(m *SessionManager) { m.debounce = d }
}

// WithSessionTimeout sets the caller-side timeout per creation call.
func WithSessionTimeout(d time.Duration) SessionManagerOption {
	return func(m *SessionManager) { m.timeout = d }
}

// WithSessionLogger sets the logger.
func WithSessionLogger(logger *slog.Logger) SessionManagerOption {
	return func(m *SessionManager) { m.logger = logger }
}

// WithSessionOnChange registers a callback invoked when a session or a
// creation error becomes available for the current fingerprint.
func WithSessionOnChange(fn func()) SessionManagerOption {
	return func(m *SessionManager) { m.onChange = fn }
}

// withSessionHooks attaches the controller's hook set.
func withSessionHooks(h *hookSet) SessionManagerOption {
	return func(m *SessionManager) { m.hooks = h }
}

// NewSessionManager creates a session manager over the given API.
func NewSessionManager(api SessionAPI, opts ...SessionManagerOption) *SessionManager {
	m := &SessionManager{
		api:      api,
		cache:    NewSessionCache(),
		logger:   slog.Default(),
		debounce: DefaultDebounce,
		timeout:  DefaultSessionTimeout,
		hooks:    &hookSet{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetInputs records the current fingerprint inputs. A call that changes
// nothing is a no-op, so reconciliation passes can feed the manager
// freely. On an actual change any pending debounce or unapplied in-flight
// result is invalidated; when payable, a new debounced creation/reuse
// cycle is scheduled, and when not, nothing is scheduled and no session
// call can ever be issued.
func (m *SessionManager) SetInputs(in FingerprintInputs, currency string, payable bool) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if m.started && in == m.current && currency == m.currency && payable == m.payable {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.payable = payable
	m.gen++
	gen := m.gen
	m.current = in
	m.currency = currency
	m.lastErr = nil
	if m.session != nil && m.session.Fingerprint != in.Fingerprint() {
		m.session = nil
	}
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if payable {
		m.timer = time.AfterFunc(m.debounce, func() { m.ensure(gen) })
	}
	m.mu.Unlock()
}

// ensure runs one creation/reuse cycle for the inputs captured at
// generation gen. Results are applied only if gen is still current.
func (m *SessionManager) ensure(gen uint64) {
	m.mu.Lock()
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		return
	}
	in := m.current
	currency := m.currency
	m.mu.Unlock()

	fp := in.Fingerprint()
	status, ses, done := m.cache.CheckAndMark(fp)

	switch status {
	case StatusCached:
		// Reuse with no network call.
		m.apply(gen, fp, ses, nil)

	case StatusInFlight:
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		ses, err := m.cache.WaitForResult(ctx, fp, done)
		if err != nil {
			m.apply(gen, fp, nil, AsError(err))
			return
		}
		if ses != nil {
			m.apply(gen, fp, ses, nil)
			return
		}
		// The in-flight creation failed; take a fresh slot.
		m.ensure(gen)

	case StatusNotFound:
		m.create(gen, in, currency, fp, uuid.NewString(), done, false)
	}
}

// create issues one session-creation request. The idempotency key is
// fixed for the logical attempt: a transient failure is retried once
// under the same key, so the provider deduplicates a first request that
// actually succeeded server-side instead of charging twice.
func (m *SessionManager) create(gen uint64, in FingerprintInputs, currency, fp, key string, done chan struct{}, retried bool) {
	start := time.Now()
	hctx := SessionHookContext{
		Ctx:            context.Background(),
		Inputs:         in,
		IdempotencyKey: key,
		Timestamp:      start,
	}

	for _, hook := range m.hooks.beforeCreateSession {
		res, err := hook(hctx)
		if err != nil {
			m.logger.Warn("before-create-session hook error", "error", err)
			continue
		}
		if res != nil && res.Abort {
			m.cache.Fail(fp, done)
			m.apply(gen, fp, nil, NewError(ClassValidation, ErrCodeInvalidFields, res.Reason, nil))
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	ses, err := m.api.CreatePaymentSession(ctx, SessionRequest{
		OfferID:        in.OfferID,
		Name:           in.Name,
		Email:          in.Email,
		IdempotencyKey: key,
		Activation:     in.Activation,
		LinkedEmail:    in.LinkedEmail,
		Currency:       currency,
	})
	if err != nil {
		perr := AsError(err)
		if perr.Retryable() && !retried {
			m.logger.Info("session creation failed, retrying once",
				"class", perr.Class, "code", perr.Code)
			m.create(gen, in, currency, fp, key, done, true)
			return
		}
		m.cache.Fail(fp, done)
		for _, hook := range m.hooks.onSessionFailure {
			if herr := hook(SessionFailureContext{SessionHookContext: hctx, Error: perr, Duration: time.Since(start)}); herr != nil {
				m.logger.Warn("session failure hook error", "error", herr)
			}
		}
		m.apply(gen, fp, nil, perr)
		return
	}

	m.cache.Complete(fp, ses, done)
	for _, hook := range m.hooks.afterCreateSession {
		if herr := hook(SessionResultContext{SessionHookContext: hctx, Session: ses, Duration: time.Since(start)}); herr != nil {
			m.logger.Warn("after-create-session hook error", "error", herr)
		}
	}
	m.apply(gen, fp, ses, nil)
}

// apply publishes a result, unless the manager was closed or the inputs
// changed since the cycle began. A stale result stays cached under its
// original fingerprint (harmless) but never reaches published state.
func (m *SessionManager) apply(gen uint64, fp string, ses *Session, err *Error) {
	m.mu.Lock()
	if m.closed || gen != m.gen || fp != m.current.Fingerprint() {
		m.logger.Debug("discarding stale session result", "fingerprint", fp)
		m.mu.Unlock()
		return
	}
	m.session = ses
	m.lastErr = err
	m.mu.Unlock()

	if m.onChange != nil {
		m.onChange()
	}
}

// Retry clears any stale cache entry for the current fingerprint and
// restarts creation immediately, skipping the debounce. This is the
// explicit retry affordance for expired-session and transport errors.
func (m *SessionManager) Retry() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.gen++
	gen := m.gen
	fp := m.current.Fingerprint()
	m.session = nil
	m.lastErr = nil
	m.mu.Unlock()

	m.cache.Invalidate(fp)
	go m.ensure(gen)
}

// Invalidate drops the session for the current fingerprint, e.g. after
// the provider reported the token expired during confirmation.
func (m *SessionManager) Invalidate() {
	m.mu.Lock()
	fp := m.current.Fingerprint()
	m.session = nil
	m.mu.Unlock()

	m.cache.Invalidate(fp)
}

// Session returns the session for the current fingerprint, or nil.
func (m *SessionManager) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Err returns the creation error for the current fingerprint, or nil.
func (m *SessionManager) Err() *Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Close tears the manager down. Pending debounce timers are stopped, any
// in-flight result will be discarded by the generation check, and the
// cache is cleared so nothing leaks across checkout views.
func (m *SessionManager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.gen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.session = nil
	m.lastErr = nil
	m.mu.Unlock()

	m.cache.Clear()
}
