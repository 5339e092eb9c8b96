package checkout

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWidgetController(opts ...WidgetControllerOption) *WidgetController {
	base := []WidgetControllerOption{
		WithSettleDelay(2 * time.Millisecond),
		WithSDKPoll(2*time.Millisecond, 200*time.Millisecond),
	}
	return NewWidgetController(append(base, opts...)...)
}

func cardConfig() ButtonConfig {
	return ButtonConfig{Network: NetworkCard, Currency: "USD", Amount: 1499}
}

func TestWidgetControllerMountsIntoContainer(t *testing.T) {
	sdk := newFakeSDK(true)
	c := newTestWidgetController(WithWidgetSDK(NetworkCard, sdk))
	defer c.Close()

	require.NoError(t, c.Activate(NetworkCard, ContainerDesktopCard, cardConfig()))
	require.True(t, waitFor(t, time.Second, func() bool {
		return c.State(ContainerDesktopCard) == HandleRendered
	}))

	assert.Len(t, sdk.openButtons(), 1)
	assert.True(t, c.RenderAttempted(ContainerDesktopCard))
}

func TestWidgetControllerRapidTogglesLeaveOneLiveWidget(t *testing.T) {
	sdk := newFakeSDK(true)
	sdk.renderDelay = 3 * time.Millisecond
	c := newTestWidgetController(WithWidgetSDK(NetworkCard, sdk))
	defer c.Close()

	// Hammer the container with re-activations faster than renders can
	// complete. Superseded mounts must dispose themselves.
	for i := 0; i < 6; i++ {
		require.NoError(t, c.Activate(NetworkCard, ContainerMobileCard, cardConfig()))
	}

	require.True(t, waitFor(t, 2*time.Second, func() bool {
		return c.State(ContainerMobileCard) == HandleRendered
	}))
	// Let any lagging superseded renders finish and self-dispose.
	time.Sleep(100 * time.Millisecond)

	assert.Len(t, sdk.openButtons(), 1, "exactly one live widget may remain")
	assert.Equal(t, HandleRendered, c.State(ContainerMobileCard))
}

func TestWidgetControllerDeactivateDuringRender(t *testing.T) {
	sdk := newFakeSDK(true)
	sdk.renderDelay = 30 * time.Millisecond
	c := newTestWidgetController(WithWidgetSDK(NetworkCard, sdk))
	defer c.Close()

	require.NoError(t, c.Activate(NetworkCard, ContainerDesktopCard, cardConfig()))
	require.True(t, waitFor(t, time.Second, func() bool {
		return c.State(ContainerDesktopCard) == HandleRendering
	}))

	c.Deactivate(ContainerDesktopCard)
	assert.Equal(t, HandleDestroyed, c.State(ContainerDesktopCard))

	// The render completes after the unmount; it must close itself
	// rather than leave a dangling widget.
	time.Sleep(80 * time.Millisecond)
	assert.Empty(t, sdk.openButtons())
	assert.Equal(t, HandleDestroyed, c.State(ContainerDesktopCard))
}

func TestWidgetControllerWaitsForSDKReadiness(t *testing.T) {
	sdk := newFakeSDK(false)
	c := newTestWidgetController(WithWidgetSDK(NetworkCard, sdk))
	defer c.Close()

	require.NoError(t, c.Activate(NetworkCard, ContainerDesktopCard, cardConfig()))
	require.True(t, waitFor(t, time.Second, func() bool {
		return c.State(ContainerDesktopCard) == HandleAwaitingSDK
	}))

	sdk.setReady(true)
	require.True(t, waitFor(t, time.Second, func() bool {
		return c.State(ContainerDesktopCard) == HandleRendered
	}))
}

func TestWidgetControllerSDKNeverReady(t *testing.T) {
	sdk := newFakeSDK(false)
	c := newTestWidgetController(
		WithWidgetSDK(NetworkCard, sdk),
		WithSDKPoll(2*time.Millisecond, 20*time.Millisecond),
	)
	defer c.Close()

	require.NoError(t, c.Activate(NetworkCard, ContainerDesktopCard, cardConfig()))
	require.True(t, waitFor(t, time.Second, func() bool {
		return c.State(ContainerDesktopCard) == HandleUnmounted
	}))
	assert.Empty(t, sdk.openButtons())
}

func TestWidgetControllerRenderFailureReturnsToUnmounted(t *testing.T) {
	sdk := newFakeSDK(true)
	c := newTestWidgetController(WithWidgetSDK(NetworkCard, sdk))
	defer c.Close()

	require.NoError(t, c.Activate(NetworkCard, ContainerDesktopCard, cardConfig()))
	require.True(t, waitFor(t, time.Second, func() bool {
		return c.State(ContainerDesktopCard) == HandleRendered
	}))

	// Failed construction on the next activation must not get stuck.
	sdk.mu.Lock()
	sdk.newErr = errors.New("script not loaded")
	sdk.mu.Unlock()

	require.NoError(t, c.Activate(NetworkCard, ContainerDesktopCard, cardConfig()))
	require.True(t, waitFor(t, time.Second, func() bool {
		return c.State(ContainerDesktopCard) == HandleUnmounted
	}))
}

func TestWidgetControllerContainersAreIndependent(t *testing.T) {
	sdk := newFakeSDK(true)
	c := newTestWidgetController(WithWidgetSDK(NetworkCard, sdk))
	defer c.Close()

	require.NoError(t, c.Activate(NetworkCard, ContainerMobileCard, cardConfig()))
	require.NoError(t, c.Activate(NetworkCard, ContainerDesktopCard, cardConfig()))

	require.True(t, waitFor(t, time.Second, func() bool {
		return c.State(ContainerMobileCard) == HandleRendered &&
			c.State(ContainerDesktopCard) == HandleRendered
	}))
	assert.Len(t, sdk.openButtons(), 2)

	c.Deactivate(ContainerMobileCard)
	assert.Equal(t, HandleDestroyed, c.State(ContainerMobileCard))
	assert.Equal(t, HandleRendered, c.State(ContainerDesktopCard))
	assert.Len(t, sdk.openButtons(), 1)
}

func TestWidgetControllerCloseErrorSwallowed(t *testing.T) {
	sdk := newFakeSDK(true)
	sdk.closeErr = errors.New("dispose failed")
	c := newTestWidgetController(WithWidgetSDK(NetworkCard, sdk))
	defer c.Close()

	require.NoError(t, c.Activate(NetworkCard, ContainerDesktopCard, cardConfig()))
	require.True(t, waitFor(t, time.Second, func() bool {
		return c.State(ContainerDesktopCard) == HandleRendered
	}))

	// A failing Close must not block teardown or the next mount.
	c.Deactivate(ContainerDesktopCard)
	assert.Equal(t, HandleDestroyed, c.State(ContainerDesktopCard))

	require.NoError(t, c.Activate(NetworkCard, ContainerDesktopCard, cardConfig()))
	require.True(t, waitFor(t, time.Second, func() bool {
		return c.State(ContainerDesktopCard) == HandleRendered
	}))
}

func TestWidgetControllerNoteSDKErrorAllowsOneRetry(t *testing.T) {
	sdk := newFakeSDK(true)
	c := newTestWidgetController(WithWidgetSDK(NetworkCard, sdk))
	defer c.Close()

	require.NoError(t, c.Activate(NetworkCard, ContainerDesktopCard, cardConfig()))
	require.True(t, waitFor(t, time.Second, func() bool {
		return c.State(ContainerDesktopCard) == HandleRendered
	}))

	assert.True(t, c.NoteSDKError(ContainerDesktopCard, errors.New("boom")),
		"first SDK error allows a fresh mount")
	assert.Equal(t, HandleDestroyed, c.State(ContainerDesktopCard))

	assert.False(t, c.NoteSDKError(ContainerDesktopCard, errors.New("boom again")),
		"a recurrence escalates instead of retrying")
}

func TestWidgetControllerDeactivateAll(t *testing.T) {
	sdk := newFakeSDK(true)
	c := newTestWidgetController(WithWidgetSDK(NetworkCard, sdk))
	defer c.Close()

	require.NoError(t, c.Activate(NetworkCard, ContainerMobileCard, cardConfig()))
	require.NoError(t, c.Activate(NetworkCard, ContainerDesktopCard, cardConfig()))
	require.True(t, waitFor(t, time.Second, func() bool {
		return len(sdk.openButtons()) == 2
	}))

	c.DeactivateAll()
	assert.Empty(t, sdk.openButtons())
}

func TestWidgetControllerUnknownNetwork(t *testing.T) {
	c := newTestWidgetController()
	defer c.Close()

	err := c.Activate(NetworkCard, ContainerDesktopCard, cardConfig())
	require.Error(t, err)
	perr := AsError(err)
	assert.Equal(t, ClassSDK, perr.Class)
}

func TestWidgetControllerClosed(t *testing.T) {
	sdk := newFakeSDK(true)
	c := newTestWidgetController(WithWidgetSDK(NetworkCard, sdk))

	require.NoError(t, c.Activate(NetworkCard, ContainerDesktopCard, cardConfig()))
	require.True(t, waitFor(t, time.Second, func() bool {
		return c.State(ContainerDesktopCard) == HandleRendered
	}))

	c.Close()
	assert.Empty(t, sdk.openButtons())
	assert.Error(t, c.Activate(NetworkCard, ContainerDesktopCard, cardConfig()))
}
