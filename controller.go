package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Checkout is the orchestration core: it composes the resolver, the
// validation gate, the session and order managers, the widget controller
// and the status machine under one umbrella. The two networks' components
// are fully independent and may have concurrent in-flight work, but only
// one is ever visibly mounted per container id.
type Checkout struct {
	mu       sync.Mutex
	logger   *slog.Logger
	gate     *Gate
	resolver *Resolver
	sessions *SessionManager
	orders   *OrderManager
	widgets  *WidgetController
	status   *StatusMachine
	hooks    hookSet

	offer     *Offer
	active    Network
	visible   map[string]bool   // container id -> shown
	mountKeys map[string]string // container id -> last mounted config key
	widgetErr *Error
	closed    bool
}

type checkoutConfig struct {
	sessionAPI     SessionAPI
	orderAPI       OrderAPI
	feeAPI         FeeAPI
	sdks           map[Network]WidgetSDK
	logger         *slog.Logger
	debounce       time.Duration
	sessionTimeout time.Duration
	orderTimeout   time.Duration
	settleDelay    time.Duration
	pollInterval   time.Duration
	pollTimeout    time.Duration
	scheduler      func(func())
	hooks          hookSet
}

// Option configures a Checkout.
type Option func(*checkoutConfig)

// WithSessionAPI sets the card network's session-creation endpoint.
func WithSessionAPI(api SessionAPI) Option {
	return func(c *checkoutConfig) { c.sessionAPI = api }
}

// WithOrderAPI sets the redirect network's order endpoints.
func WithOrderAPI(api OrderAPI) Option {
	return func(c *checkoutConfig) { c.orderAPI = api }
}

// WithActivationFeeAPI sets the pricing collaborator for activation fees.
func WithActivationFeeAPI(api FeeAPI) Option {
	return func(c *checkoutConfig) { c.feeAPI = api }
}

// WithSDK registers the widget SDK for a network.
func WithSDK(n Network, sdk WidgetSDK) Option {
	return func(c *checkoutConfig) { c.sdks[n] = sdk }
}

// WithLogger sets the logger for all components.
func WithLogger(logger *slog.Logger) Option {
	return func(c *checkoutConfig) { c.logger = logger }
}

// WithSessionDebounce overrides the session-creation debounce window.
func WithSessionDebounce(d time.Duration) Option {
	return func(c *checkoutConfig) { c.debounce = d }
}

// WithCallTimeouts overrides the caller-side timeouts for session and
// order calls.
func WithCallTimeouts(session, order time.Duration) Option {
	return func(c *checkoutConfig) {
		c.sessionTimeout = session
		c.orderTimeout = order
	}
}

// WithWidgetTiming overrides the widget settle delay and SDK poll.
func WithWidgetTiming(settleDelay, pollInterval, pollTimeout time.Duration) Option {
	return func(c *checkoutConfig) {
		c.settleDelay = settleDelay
		c.pollInterval = pollInterval
		c.pollTimeout = pollTimeout
	}
}

// WithValidationScheduler overrides how field validation is deferred off
// the input path.
func WithValidationScheduler(schedule func(func())) Option {
	return func(c *checkoutConfig) { c.scheduler = schedule }
}

// WithBeforeCreateSessionHook registers a hook run before each
// session-creation request.
func WithBeforeCreateSessionHook(h BeforeCreateSessionHook) Option {
	return func(c *checkoutConfig) {
		c.hooks.beforeCreateSession = append(c.hooks.beforeCreateSession, h)
	}
}

// WithAfterCreateSessionHook registers a hook run after a session was
// created.
func WithAfterCreateSessionHook(h AfterCreateSessionHook) Option {
	return func(c *checkoutConfig) {
		c.hooks.afterCreateSession = append(c.hooks.afterCreateSession, h)
	}
}

// WithOnCreateSessionFailureHook registers a hook run when session
// creation fails after the automatic retry.
func WithOnCreateSessionFailureHook(h OnCreateSessionFailureHook) Option {
	return func(c *checkoutConfig) {
		c.hooks.onSessionFailure = append(c.hooks.onSessionFailure, h)
	}
}

// WithAfterSettleHook registers a hook run after settlement on either
// network.
func WithAfterSettleHook(h AfterSettleHook) Option {
	return func(c *checkoutConfig) {
		c.hooks.afterSettle = append(c.hooks.afterSettle, h)
	}
}

// New creates a checkout. Both network APIs are required; widget SDKs may
// be registered per network and are polled for readiness at mount time.
func New(opts ...Option) (*Checkout, error) {
	cfg := &checkoutConfig{
		sdks:           make(map[Network]WidgetSDK),
		logger:         slog.Default(),
		debounce:       DefaultDebounce,
		sessionTimeout: DefaultSessionTimeout,
		orderTimeout:   DefaultOrderTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.sessionAPI == nil {
		return nil, fmt.Errorf("checkout: session API is required")
	}
	if cfg.orderAPI == nil {
		return nil, fmt.Errorf("checkout: order API is required")
	}

	c := &Checkout{
		logger:    cfg.logger,
		status:    NewStatusMachine(),
		hooks:     cfg.hooks,
		active:    NetworkCard,
		visible:   make(map[string]bool),
		mountKeys: make(map[string]string),
	}

	gateOpts := []GateOption{
		WithGateLogger(cfg.logger),
		WithGateOnChange(c.sync),
	}
	if cfg.scheduler != nil {
		gateOpts = append(gateOpts, WithScheduler(cfg.scheduler))
	}
	c.gate = NewGate(RequiredFieldsFor(ActivationDirect), gateOpts...)

	c.resolver = NewResolver(
		WithFeeAPI(cfg.feeAPI),
		WithResolverLogger(cfg.logger),
		WithResolverOnChange(func(Quote) { c.sync() }),
	)

	c.sessions = NewSessionManager(cfg.sessionAPI,
		WithDebounce(cfg.debounce),
		WithSessionTimeout(cfg.sessionTimeout),
		WithSessionLogger(cfg.logger),
		WithSessionOnChange(c.sync),
		withSessionHooks(&c.hooks),
	)

	c.orders = NewOrderManager(cfg.orderAPI, c.status,
		WithOrderTimeout(cfg.orderTimeout),
		WithOrderLogger(cfg.logger),
		withOrderHooks(&c.hooks),
	)

	widgetOpts := []WidgetControllerOption{WithWidgetLogger(cfg.logger)}
	for n, sdk := range cfg.sdks {
		widgetOpts = append(widgetOpts, WithWidgetSDK(n, sdk))
	}
	if cfg.settleDelay > 0 {
		widgetOpts = append(widgetOpts, WithSettleDelay(cfg.settleDelay))
	}
	if cfg.pollInterval > 0 {
		widgetOpts = append(widgetOpts, WithSDKPoll(cfg.pollInterval, cfg.pollTimeout))
	}
	c.widgets = NewWidgetController(widgetOpts...)

	return c, nil
}

// SelectOffer loads the user's selected pricing option and recomputes the
// quote, the required-field set, and downstream payability.
func (c *Checkout) SelectOffer(ctx context.Context, offer Offer) error {
	if offer.ID == "" {
		return NewError(ClassValidation, ErrCodeInvalidOffer, "offer id is empty", nil)
	}
	if !offer.Activation.Valid() {
		return NewError(ClassValidation, ErrCodeInvalidOffer,
			fmt.Sprintf("unknown activation type %q", offer.Activation), nil)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return NewError(ClassValidation, ErrCodeCheckoutClosed, "checkout is closed", nil)
	}
	c.offer = &offer
	c.mu.Unlock()

	q := c.resolver.Resolve(ctx, offer)
	c.gate.SetRequired(q.RequiredFields)
	return nil
}

// SetField records a keystroke in one of the checkout fields.
func (c *Checkout) SetField(f Field, value string) {
	c.gate.SetField(f, value)
}

// SelectNetwork switches the visible network tab. Session creation for
// the card network keeps running in the background either way, so
// switching tabs never stalls on a fresh session.
func (c *Checkout) SelectNetwork(n Network) {
	c.mu.Lock()
	if c.closed || c.active == n {
		c.mu.Unlock()
		return
	}
	c.active = n
	for id, shown := range c.visible {
		if shown {
			delete(c.mountKeys, id)
			c.widgets.Deactivate(id)
		}
	}
	c.mu.Unlock()

	c.sync()
}

// ShowContainer marks a container as part of the visible layout. The two
// container ids are tracked independently; mounting happens on the next
// reconciliation if the gate permits it.
func (c *Checkout) ShowContainer(containerID string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.visible[containerID] = true
	c.mu.Unlock()

	c.sync()
}

// HideContainer tears the container's widget down, e.g. on layout change
// or navigation away.
func (c *Checkout) HideContainer(containerID string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	delete(c.visible, containerID)
	delete(c.mountKeys, containerID)
	c.mu.Unlock()

	c.widgets.Deactivate(containerID)
}

// sync is the single reconciliation point: it recomputes payability,
// feeds the session manager, and mounts or tears down widgets to match.
func (c *Checkout) sync() {
	c.mu.Lock()
	if c.closed || c.offer == nil {
		c.mu.Unlock()
		return
	}
	offer := *c.offer
	active := c.active
	q := c.resolver.Quote()
	payable := c.gate.IsPayable() && q.Settled()

	in := FingerprintInputs{
		OfferID:     offer.ID,
		Name:        c.gate.Field(FieldName).Value,
		Email:       c.gate.Field(FieldEmail).Value,
		Activation:  offer.Activation,
		LinkedEmail: c.gate.Field(FieldLinkedEmail).Value,
	}

	var visible []string
	for id, shown := range c.visible {
		if shown {
			visible = append(visible, id)
		}
	}
	c.mu.Unlock()

	// Session creation runs in the background regardless of which network
	// tab is visible, so switching tabs never stalls.
	c.sessions.SetInputs(in, offer.Price.Currency, payable)

	if !payable {
		c.mu.Lock()
		c.mountKeys = make(map[string]string)
		c.mu.Unlock()
		c.widgets.DeactivateAll()
		return
	}

	for _, id := range visible {
		c.mountContainer(id, active, offer, in)
	}
}

// mountContainer mounts the active network's widget into the container if
// its effective configuration changed. A session arriving after a
// pre-session render, or a currency or amount change, produces a new key
// and forces a teardown and fresh mount.
func (c *Checkout) mountContainer(id string, active Network, offer Offer, in FingerprintInputs) {
	cfg := c.buttonConfig(id, active, offer, in)

	key := fmt.Sprintf("%s|%s|%s|%d", active, cfg.SessionToken, cfg.Currency, cfg.Amount)

	c.mu.Lock()
	if c.closed || c.mountKeys[id] == key {
		c.mu.Unlock()
		return
	}
	c.mountKeys[id] = key
	c.mu.Unlock()

	if err := c.widgets.Activate(active, id, cfg); err != nil {
		c.logger.Warn("widget activation failed", "container", id, "error", err)
	}
}

// buttonConfig builds the SDK callbacks for a container, bound to the
// session and order managers. Every callback is wrapped in the panic
// boundary: an uncaught exception from third-party widget code degrades
// to provider-unavailable rather than crashing the surrounding view.
func (c *Checkout) buttonConfig(id string, n Network, offer Offer, in FingerprintInputs) ButtonConfig {
	cfg := ButtonConfig{
		Network:  n,
		Currency: offer.Price.Currency,
		Amount:   offer.Price.Amount,
	}

	switch n {
	case NetworkCard:
		if ses := c.sessions.Session(); ses != nil {
			cfg.SessionToken = ses.Token
		}
		cfg.OnApprove = func(ctx context.Context, _ string) error {
			var err error
			c.boundary(id, func() { err = c.cardSettled(ctx) })
			return err
		}
		cfg.OnCancel = func() {
			c.boundary(id, func() {
				if err := c.status.Cancel(); err != nil {
					c.logger.Debug("cancel outside an active attempt", "error", err)
				}
			})
		}
	case NetworkRedirect:
		cfg.CreateOrder = func(ctx context.Context) (string, error) {
			var orderID string
			var err error
			c.boundary(id, func() {
				orderID, err = c.orders.Create(ctx, OrderRequest{
					OfferID:     in.OfferID,
					Name:        in.Name,
					Email:       in.Email,
					Activation:  in.Activation,
					LinkedEmail: in.LinkedEmail,
				})
			})
			return orderID, err
		}
		cfg.OnApprove = func(ctx context.Context, orderID string) error {
			var err error
			c.boundary(id, func() { err = c.orders.Approve(ctx, orderID) })
			return err
		}
		cfg.OnCancel = func() {
			c.boundary(id, func() { c.orders.Cancel() })
		}
	}

	cfg.OnError = func(err error) {
		c.boundary(id, func() { c.widgetError(id, err) })
	}
	return cfg
}

// cardSettled records settlement for the card network. The provider's
// confirmation success is the settlement signal; session creation alone
// never moves the status machine.
func (c *Checkout) cardSettled(ctx context.Context) error {
	ses := c.sessions.Session()
	if ses == nil {
		return NewError(ClassSessionExpired, ErrCodeSessionExpired, "no active payment session", nil)
	}

	if c.status.Status() == StatusIdle {
		if err := c.status.Begin(); err != nil {
			return AsError(err)
		}
	}

	details := SettlementDetails{Network: NetworkCard, Reference: ses.Token}
	if err := c.status.Succeed(details); err != nil {
		return AsError(err)
	}

	for _, hook := range c.hooks.afterSettle {
		if herr := hook(SettleHookContext{
			Ctx:       ctx,
			Network:   NetworkCard,
			Details:   details,
			Timestamp: time.Now(),
		}); herr != nil {
			c.logger.Warn("after-settle hook error", "error", herr)
		}
	}
	return nil
}

// widgetError routes a failure the widget surfaced. An error carrying a
// non-SDK classification (a decline, an expired session) is terminal for
// the attempt and never remounts the widget. Unclassified errors and SDK
// faults take the teardown, one fresh mount, then
// escalate-as-provider-unavailable path.
func (c *Checkout) widgetError(id string, err error) {
	var perr *Error
	if errors.As(err, &perr) && perr.Class != ClassSDK {
		c.mu.Lock()
		active := c.active
		c.mu.Unlock()
		if active == NetworkRedirect {
			c.orders.HandleError(err)
			return
		}
		if c.status.Status() == StatusIdle {
			if berr := c.status.Begin(); berr != nil {
				c.logger.Debug("begin rejected for widget failure", "error", berr)
			}
		}
		msg := "the payment could not be completed: " + perr.Message
		if perr.Class == ClassProviderDeclined {
			msg = "the payment was rejected: " + perr.Message
		}
		if ferr := c.status.Fail(Failure{Class: perr.Class, Message: msg}); ferr != nil {
			c.logger.Debug("failure outside an active attempt", "error", ferr)
		}
		return
	}

	if c.widgets.NoteSDKError(id, err) {
		c.mu.Lock()
		c.widgetErr = nil
		delete(c.mountKeys, id)
		c.mu.Unlock()
		c.sync()
		return
	}

	escalated := NewError(ClassSDK, ErrCodeWidgetUnavailable,
		"the payment provider is currently unavailable", nil)

	if c.status.Status() == StatusAwaitingProvider {
		if ferr := c.status.Fail(Failure{Class: ClassSDK, Message: escalated.Message}); ferr != nil {
			c.logger.Debug("failure outside an active attempt", "error", ferr)
		}
	}

	c.mu.Lock()
	c.widgetErr = escalated
	delete(c.mountKeys, id)
	c.mu.Unlock()
}

// boundary is the dedicated error boundary around third-party widget
// callbacks: a panic degrades to a "payment system unavailable" state
// instead of propagating into the surrounding view.
func (c *Checkout) boundary(id string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("widget callback panicked", "container", id, "panic", r)
			c.mu.Lock()
			c.widgetErr = NewError(ClassSDK, ErrCodeWidgetUnavailable,
				"payment system unavailable, please refresh", nil)
			delete(c.mountKeys, id)
			c.mu.Unlock()
			c.widgets.Deactivate(id)
		}
	}()
	fn()
}

// RetrySession clears the stale session cache entry for the current
// fingerprint and restarts creation. This is the retry affordance for
// expired-session and transport errors. Any escalated widget error is
// cleared; the fresh attempt reports its own outcome.
func (c *Checkout) RetrySession() {
	if err := c.status.Reset(); err != nil {
		c.logger.Debug("status reset rejected", "error", err)
	}
	c.mu.Lock()
	c.widgetErr = nil
	c.mu.Unlock()
	c.sessions.Retry()
}

// RetryAttempt returns a failed attempt to the gate so a new one can be
// started. The gate remains payable throughout; a stale widget error is
// cleared and torn-down widgets are remounted on the reconciliation.
func (c *Checkout) RetryAttempt() error {
	if err := c.status.Reset(); err != nil {
		return err
	}
	c.mu.Lock()
	c.widgetErr = nil
	c.mu.Unlock()
	c.sync()
	return nil
}

// Status returns the current payment status.
func (c *Checkout) Status() PaymentStatus { return c.status.Status() }

// Failure returns the last classified failure, or nil.
func (c *Checkout) Failure() *Failure { return c.status.Failure() }

// Settlement returns the settlement details once succeeded, or nil.
func (c *Checkout) Settlement() *SettlementDetails { return c.status.Settlement() }

// SubscribeStatus registers a status-transition callback.
func (c *Checkout) SubscribeStatus(fn func(PaymentStatus)) { c.status.Subscribe(fn) }

// Quote returns the current quote.
func (c *Checkout) Quote() Quote { return c.resolver.Quote() }

// FieldState returns the validation state of one field.
func (c *Checkout) FieldState(f Field) FieldState { return c.gate.Field(f) }

// IsPayable reports whether the gate currently permits payment.
func (c *Checkout) IsPayable() bool {
	return c.gate.IsPayable() && c.resolver.Quote().Settled()
}

// Session returns the card session for the current fingerprint, or nil.
func (c *Checkout) Session() *Session { return c.sessions.Session() }

// SessionErr returns the session-creation error for the current
// fingerprint, or nil.
func (c *Checkout) SessionErr() *Error { return c.sessions.Err() }

// WidgetErr returns the escalated widget error, or nil.
func (c *Checkout) WidgetErr() *Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.widgetErr
}

// WidgetState returns the handle state for a container id.
func (c *Checkout) WidgetState(containerID string) HandleState {
	return c.widgets.State(containerID)
}

// Close tears the whole checkout view down: widgets are disposed through
// their SDKs, the session cache and widget registry are cleared, and any
// in-flight work will be discarded by the liveness checks. Nothing leaks
// into the next checkout view.
func (c *Checkout) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.visible = make(map[string]bool)
	c.mountKeys = make(map[string]string)
	c.mu.Unlock()

	c.widgets.Close()
	c.sessions.Close()
	c.orders.Close()
	c.gate.Clear()
}
