package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Container ids for the two physically separate instances of the payment
// widget. Their registry entries are fully independent; the provider's
// "one live button per container" constraint is enforced per id, never
// globally.
const (
	ContainerMobileCard  = "mobile-card"
	ContainerDesktopCard = "desktop-card"
)

// HandleState is the lifecycle state of one container's widget handle.
type HandleState int

const (
	// HandleUnmounted means no widget occupies the container. A failed
	// render returns here so a retry needs no prior cleanup.
	HandleUnmounted HandleState = iota
	// HandleAwaitingSDK means a mount is pending on the external SDK's
	// one-time readiness signal.
	HandleAwaitingSDK
	// HandleRendering means the SDK's render call is in progress.
	HandleRendering
	// HandleRendered means the SDK owns the container's subtree.
	HandleRendered
	// HandleDestroyed means the widget was disposed through the SDK.
	// The next activation transitions back to HandleAwaitingSDK.
	HandleDestroyed
)

func (s HandleState) String() string {
	switch s {
	case HandleUnmounted:
		return "unmounted"
	case HandleAwaitingSDK:
		return "awaitingExternalSDK"
	case HandleRendering:
		return "rendering"
	case HandleRendered:
		return "rendered"
	case HandleDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("handlestate(%d)", int(s))
	}
}

// widgetHandle tracks one container's widget. The generation counter is
// the liveness token: every activation and deactivation bumps it, and any
// asynchronous step re-checks it before touching state, so a render that
// completes after unmount is torn down instead of left dangling.
type widgetHandle struct {
	container       string
	state           HandleState
	button          WidgetButton
	renderAttempted bool
	sdkRetries      int
	gen             uint64
}

// WidgetController owns the per-container widget registry and the mount/
// unmount protocol for the externally rendered payment controls.
//
// The external SDK exclusively owns the container's subtree once render
// has been called; nothing here ever touches that subtree directly.
// Teardown always goes through the button's own Close, and a Close error
// is swallowed and logged: a half-destroyed widget must not block the
// next mount attempt.
type WidgetController struct {
	mu           sync.Mutex
	sdks         map[Network]WidgetSDK
	logger       *slog.Logger
	handles      map[string]*widgetHandle
	settleDelay  time.Duration
	pollInterval time.Duration
	pollTimeout  time.Duration
	closed       bool
}

// WidgetControllerOption configures a WidgetController.
type WidgetControllerOption func(*WidgetController)

// WithWidgetSDK registers the SDK for a network.
func WithWidgetSDK(n Network, sdk WidgetSDK) WidgetControllerOption {
	return func(c *WidgetController) { c.sdks[n] = sdk }
}

// WithWidgetLogger sets the logger.
func WithWidgetLogger(logger *slog.Logger) WidgetControllerOption {
	return func(c *WidgetController) { c.logger = logger }
}

// WithSettleDelay sets the delay between tearing down a prior widget and
// rendering into the same container. Rendering into a container the SDK
// has not finished disposing produces undefined behavior.
func WithSettleDelay(d time.Duration) WidgetControllerOption {
	return func(c *WidgetController) { c.settleDelay = d }
}

// WithSDKPoll sets the interval and timeout for polling SDK readiness.
func WithSDKPoll(interval, timeout time.Duration) WidgetControllerOption {
	return func(c *WidgetController) {
		c.pollInterval = interval
		c.pollTimeout = timeout
	}
}

// NewWidgetController creates a widget controller with an empty registry.
func NewWidgetController(opts ...WidgetControllerOption) *WidgetController {
	c := &WidgetController{
		sdks:         make(map[Network]WidgetSDK),
		logger:       slog.Default(),
		handles:      make(map[string]*widgetHandle),
		settleDelay:  50 * time.Millisecond,
		pollInterval: 100 * time.Millisecond,
		pollTimeout:  10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Activate mounts the widget for a network into the container. If a prior
// handle is rendering or rendered there, it is torn down first and the
// new render waits out the settle delay. The mount itself is
// asynchronous: SDK readiness is polled rather than assumed, and every
// step is guarded by the handle's generation so a superseded or unmounted
// activation never applies its result.
func (c *WidgetController) Activate(network Network, containerID string, cfg ButtonConfig) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return NewError(ClassValidation, ErrCodeCheckoutClosed, "checkout is closed", nil)
	}
	sdk, ok := c.sdks[network]
	if !ok {
		c.mu.Unlock()
		return NewError(ClassSDK, ErrCodeWidgetUnavailable,
			fmt.Sprintf("no widget SDK registered for network %q", network), nil)
	}

	h, ok := c.handles[containerID]
	if !ok {
		h = &widgetHandle{container: containerID}
		c.handles[containerID] = h
	}
	h.gen++
	gen := h.gen

	needSettle := false
	if h.state == HandleRendering || h.state == HandleRendered {
		c.teardownLocked(h)
		needSettle = true
	}
	c.mu.Unlock()

	go c.mount(h, gen, sdk, cfg, needSettle)
	return nil
}

// mount runs the asynchronous part of activation: settle delay, SDK
// readiness poll, button construction and render.
func (c *WidgetController) mount(h *widgetHandle, gen uint64, sdk WidgetSDK, cfg ButtonConfig, needSettle bool) {
	if needSettle {
		time.Sleep(c.settleDelay)
		if !c.alive(h, gen) {
			return
		}
	}

	if !sdk.Ready() {
		if !c.setState(h, gen, HandleAwaitingSDK) {
			return
		}
		deadline := time.Now().Add(c.pollTimeout)
		for !sdk.Ready() {
			if time.Now().After(deadline) {
				c.logger.Warn("widget SDK never became ready", "container", h.container)
				c.setState(h, gen, HandleUnmounted)
				return
			}
			time.Sleep(c.pollInterval)
			if !c.alive(h, gen) {
				return
			}
		}
	}

	if !c.setState(h, gen, HandleRendering) {
		return
	}

	button, err := sdk.NewButton(cfg)
	if err != nil {
		c.logger.Warn("widget button construction failed", "container", h.container, "error", err)
		c.setState(h, gen, HandleUnmounted)
		return
	}

	if err := button.Render(context.Background(), h.container); err != nil {
		c.logger.Warn("widget render failed", "container", h.container, "error", err)
		c.setState(h, gen, HandleUnmounted)
		return
	}

	c.mu.Lock()
	if c.closed || gen != h.gen {
		c.mu.Unlock()
		// Render completed after unmount; dispose instead of dangling.
		if cerr := button.Close(); cerr != nil {
			c.logger.Warn("teardown of post-unmount render failed", "container", h.container, "error", cerr)
		}
		return
	}
	h.button = button
	h.state = HandleRendered
	h.renderAttempted = true
	c.mu.Unlock()
}

// Deactivate tears the container's widget down, even if rendering never
// completed. The generation bump makes a later-completing render dispose
// itself.
func (c *WidgetController) Deactivate(containerID string) {
	c.mu.Lock()
	h, ok := c.handles[containerID]
	if !ok {
		c.mu.Unlock()
		return
	}
	h.gen++
	c.teardownLocked(h)
	c.mu.Unlock()
}

// DeactivateAll tears down every container, e.g. when the gate stops
// being payable.
func (c *WidgetController) DeactivateAll() {
	c.mu.Lock()
	for _, h := range c.handles {
		h.gen++
		c.teardownLocked(h)
	}
	c.mu.Unlock()
}

// teardownLocked disposes the handle's button through the SDK. Must be
// called with the controller lock held. Close errors are swallowed.
func (c *WidgetController) teardownLocked(h *widgetHandle) {
	if h.button != nil {
		if err := h.button.Close(); err != nil {
			c.logger.Warn("widget teardown failed", "container", h.container, "error", err)
		}
		h.button = nil
	}
	h.state = HandleDestroyed
}

// NoteSDKError records an SDK-level failure for the container and reports
// whether a fresh mount should be attempted. The first failure tears the
// widget down and allows one retry; a recurrence escalates to the caller
// as provider-unavailable.
func (c *WidgetController) NoteSDKError(containerID string, err error) (retry bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, ok := c.handles[containerID]
	if !ok {
		return false
	}
	c.logger.Warn("widget SDK error", "container", containerID, "error", err)
	h.gen++
	c.teardownLocked(h)
	h.sdkRetries++
	return h.sdkRetries <= 1
}

// State returns the handle state for a container.
func (c *WidgetController) State(containerID string) HandleState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok := c.handles[containerID]; ok {
		return h.state
	}
	return HandleUnmounted
}

// RenderAttempted reports whether a render was ever attempted for the
// container in this checkout view.
func (c *WidgetController) RenderAttempted(containerID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok := c.handles[containerID]; ok {
		return h.renderAttempted
	}
	return false
}

// alive reports whether gen is still the handle's current generation.
func (c *WidgetController) alive(h *widgetHandle, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && gen == h.gen
}

// setState applies a state if the generation is still current.
func (c *WidgetController) setState(h *widgetHandle, gen uint64, s HandleState) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != h.gen {
		return false
	}
	h.state = s
	return true
}

// Close tears down every handle and clears the registry. No widget state
// outlives one checkout view.
func (c *WidgetController) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for _, h := range c.handles {
		h.gen++
		c.teardownLocked(h)
	}
	c.handles = make(map[string]*widgetHandle)
	c.mu.Unlock()
}
