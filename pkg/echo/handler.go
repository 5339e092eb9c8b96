// Package echo mounts a checkout core behind an echo router. Mirrors the
// gin adapter for embedders standardized on echo.
package echo

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	checkout "github.com/finchpay/checkout"
)

type fieldRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

type networkRequest struct {
	Network string `json:"network"`
}

// StateResponse is the serialized checkout state.
type StateResponse struct {
	Status     string                      `json:"status"`
	Payable    bool                        `json:"payable"`
	Quote      checkout.Quote              `json:"quote"`
	FeeState   string                      `json:"feeState"`
	RenewsAt   *time.Time                  `json:"renewsAt,omitempty"`
	Session    *checkout.Session           `json:"session,omitempty"`
	SessionErr *checkout.Error             `json:"sessionError,omitempty"`
	WidgetErr  *checkout.Error             `json:"widgetError,omitempty"`
	Failure    *checkout.Failure           `json:"failure,omitempty"`
	Settlement *checkout.SettlementDetails `json:"settlement,omitempty"`
}

// Mount registers the checkout routes on the echo instance.
func Mount(e *echo.Echo, c *checkout.Checkout) {
	e.POST("/checkout/offer", func(ctx echo.Context) error {
		var offer checkout.Offer
		if err := ctx.Bind(&offer); err != nil {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		if err := c.SelectOffer(ctx.Request().Context(), offer); err != nil {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		return ctx.JSON(http.StatusOK, stateOf(c))
	})

	e.POST("/checkout/fields", func(ctx echo.Context) error {
		var req fieldRequest
		if err := ctx.Bind(&req); err != nil || req.Field == "" {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "field is required"})
		}
		c.SetField(checkout.Field(req.Field), req.Value)
		return ctx.JSON(http.StatusOK, stateOf(c))
	})

	e.POST("/checkout/network", func(ctx echo.Context) error {
		var req networkRequest
		if err := ctx.Bind(&req); err != nil || req.Network == "" {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "network is required"})
		}
		c.SelectNetwork(checkout.Network(req.Network))
		return ctx.JSON(http.StatusOK, stateOf(c))
	})

	e.POST("/checkout/containers/:id/show", func(ctx echo.Context) error {
		c.ShowContainer(ctx.Param("id"))
		return ctx.JSON(http.StatusOK, stateOf(c))
	})

	e.POST("/checkout/containers/:id/hide", func(ctx echo.Context) error {
		c.HideContainer(ctx.Param("id"))
		return ctx.JSON(http.StatusOK, stateOf(c))
	})

	e.POST("/checkout/retry-session", func(ctx echo.Context) error {
		c.RetrySession()
		return ctx.JSON(http.StatusOK, stateOf(c))
	})

	e.POST("/checkout/retry", func(ctx echo.Context) error {
		if err := c.RetryAttempt(); err != nil {
			return ctx.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
		}
		return ctx.JSON(http.StatusOK, stateOf(c))
	})

	e.GET("/checkout/state", func(ctx echo.Context) error {
		return ctx.JSON(http.StatusOK, stateOf(c))
	})
}

func stateOf(c *checkout.Checkout) StateResponse {
	q := c.Quote()
	var renews *time.Time
	if q.Period.IsSubscription() {
		at := q.RenewsAt(time.Now().UTC())
		renews = &at
	}
	return StateResponse{
		Status:     c.Status().String(),
		Payable:    c.IsPayable(),
		Quote:      q,
		FeeState:   q.FeeState.String(),
		RenewsAt:   renews,
		Session:    c.Session(),
		SessionErr: c.SessionErr(),
		WidgetErr:  c.WidgetErr(),
		Failure:    c.Failure(),
		Settlement: c.Settlement(),
	}
}
