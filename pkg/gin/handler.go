// Package gin mounts a checkout core behind a gin router, for frontends
// that drive the checkout over HTTP instead of embedding it directly.
package gin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	checkout "github.com/finchpay/checkout"
)

// fieldRequest is the body of a field update.
type fieldRequest struct {
	Field string `json:"field" binding:"required"`
	Value string `json:"value"`
}

// networkRequest is the body of a network-tab switch.
type networkRequest struct {
	Network string `json:"network" binding:"required"`
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

// Mount registers the checkout routes on the router group.
func Mount(r gin.IRouter, c *checkout.Checkout) {
	r.POST("/checkout/offer", func(ctx *gin.Context) {
		var offer checkout.Offer
		if err := ctx.ShouldBindJSON(&offer); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := c.SelectOffer(ctx.Request.Context(), offer); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx.JSON(http.StatusOK, stateOf(c))
	})

	r.POST("/checkout/fields", func(ctx *gin.Context) {
		var req fieldRequest
		if err := ctx.ShouldBindJSON(&req); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.SetField(checkout.Field(req.Field), req.Value)
		ctx.JSON(http.StatusOK, stateOf(c))
	})

	r.POST("/checkout/network", func(ctx *gin.Context) {
		var req networkRequest
		if err := ctx.ShouldBindJSON(&req); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.SelectNetwork(checkout.Network(req.Network))
		ctx.JSON(http.StatusOK, stateOf(c))
	})

	r.POST("/checkout/containers/:id/show", func(ctx *gin.Context) {
		c.ShowContainer(ctx.Param("id"))
		ctx.JSON(http.StatusOK, stateOf(c))
	})

	r.POST("/checkout/containers/:id/hide", func(ctx *gin.Context) {
		c.HideContainer(ctx.Param("id"))
		ctx.JSON(http.StatusOK, stateOf(c))
	})

	r.POST("/checkout/retry-session", func(ctx *gin.Context) {
		c.RetrySession()
		ctx.JSON(http.StatusOK, stateOf(c))
	})

	r.POST("/checkout/retry", func(ctx *gin.Context) {
		if err := c.RetryAttempt(); err != nil {
			ctx.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		ctx.JSON(http.StatusOK, stateOf(c))
	})

	r.GET("/checkout/state", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, stateOf(c))
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
