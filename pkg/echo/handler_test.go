package echo

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	checkout "github.com/finchpay/checkout"
)

type stubSessionAPI struct{}

func (stubSessionAPI) CreatePaymentSession(ctx context.Context, req checkout.SessionRequest) (*checkout.Session, error) {
	return &checkout.Session{Token: "tok_1", Currency: req.Currency}, nil
}

type stubOrderAPI struct{}

func (stubOrderAPI) CreateOrder(ctx context.Context, req checkout.OrderRequest) (*checkout.Order, error) {
	return &checkout.Order{ID: "order_1"}, nil
}

func (stubOrderAPI) CaptureOrder(ctx context.Context, orderID string) (*checkout.SettlementDetails, error) {
	return &checkout.SettlementDetails{Reference: "cap_" + orderID}, nil
}

func newTestServer(t *testing.T) *echo.Echo {
	t.Helper()
	c, err := checkout.New(
		checkout.WithSessionAPI(stubSessionAPI{}),
		checkout.WithOrderAPI(stubOrderAPI{}),
		checkout.WithSessionDebounce(10*time.Millisecond),
		checkout.WithValidationScheduler(func(fn func()) { fn() }),
	)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	e := echo.New()
	Mount(e, c)
	return e
}

func doJSON(t *testing.T, e *echo.Echo, method, path string, body interface{}) (*httptest.ResponseRecorder, StateResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)

	var state StateResponse
	if w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	}
	return w, state
}

func TestMountOfferAndPayability(t *testing.T) {
	e := newTestServer(t)

	w, state := doJSON(t, e, http.MethodPost, "/checkout/offer", checkout.Offer{
		ID:         "1m",
		Price:      checkout.Money{Amount: 1499, Currency: "USD"},
		Period:     checkout.BillingPeriod{Months: 1},
		Activation: checkout.ActivationDirect,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, state.Payable)

	_, _ = doJSON(t, e, http.MethodPost, "/checkout/fields",
		map[string]string{"field": "name", "value": "Jane Doe"})
	w, state = doJSON(t, e, http.MethodPost, "/checkout/fields",
		map[string]string{"field": "email", "value": "jane@example.com"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, state.Payable)
}

func TestMountRejectsInvalidOffer(t *testing.T) {
	e := newTestServer(t)

	w, _ := doJSON(t, e, http.MethodPost, "/checkout/offer", checkout.Offer{
		ID:         "1m",
		Activation: "telepathy",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMountRejectsMissingField(t *testing.T) {
	e := newTestServer(t)

	w, _ := doJSON(t, e, http.MethodPost, "/checkout/fields", map[string]string{"value": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMountState(t *testing.T) {
	e := newTestServer(t)

	w, state := doJSON(t, e, http.MethodGet, "/checkout/state", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "idle", state.Status)
	assert.Equal(t, "none", state.FeeState)
}
