package handlers

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/rudotcom/electron/internal/auth"
	"github.com/rudotcom/electron/internal/catalog"
	"github.com/rudotcom/electron/internal/identity"
	"github.com/rudotcom/electron/internal/notify"
	"github.com/rudotcom/electron/internal/orders"
	"github.com/rudotcom/electron/internal/params"
	"github.com/rudotcom/electron/middleware"
)

// SessionCookie carries the shopper's opaque session token.
const SessionCookie = "customersession"

const sessionCookieMaxAge = 60 * 60 * 24 * 90 // 90 days

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SiteURL       string
}

type Handler struct {
	i      *identity.Conf
	o      *orders.Conf
	cat    *catalog.Conf
	p      *params.Conf
	n      *notify.Conf
	stripe StripeConfig
}

func NewHandler(i *identity.Conf, o *orders.Conf, cat *catalog.Conf,
	p *params.Conf, n *notify.Conf, stripeCfg StripeConfig) *Handler {
	return &Handler{
		i:      i,
		o:      o,
		cat:    cat,
		p:      p,
		n:      n,
		stripe: stripeCfg,
	}
}

func API(endpointPrefix string, k *auth.Keys, i *identity.Conf, o *orders.Conf,
	cat *catalog.Conf, p *params.Conf, n *notify.Conf,
	stripeCfg StripeConfig) *gin.Engine {

	r := gin.New()
	mode := os.Getenv("GIN_MODE")
	if mode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	m, err := middleware.NewMid(k)
	if err != nil {
		panic(err)
	}

	h := NewHandler(i, o, cat, p, n, stripeCfg)
	r.Use(middleware.Logger(), gin.Recovery())

	r.GET("/ping", HealthCheck)

	v1 := r.Group(endpointPrefix)
	{
		// the processor calls the webhook, not a shopper: no identity here
		v1.POST("/payment/webhook", h.Webhook)

		v1.Use(m.Identify())
		v1.GET("/cart", h.ViewCart)
		v1.POST("/cart/items", h.AddItem)
		v1.PATCH("/cart/items/:product_id", h.ChangeQuantity)
		v1.DELETE("/cart/items/:product_id", h.RemoveItem)
		v1.POST("/cart/gift/:product_id", h.SelectGift)
		v1.POST("/cart/delivery", h.SetDelivery)
		v1.GET("/gifts", h.ListGifts)
		v1.GET("/products/:id", h.ProductDetail)

		v1.POST("/checkout", h.PlaceOrder)
		v1.GET("/orders", h.ListOrders)
		v1.GET("/orders/:id", h.OrderDetail)
		v1.POST("/orders/:id/payment", h.InitiatePayment)

		admin := v1.Group("/admin")
		admin.PATCH("/orders/:id/status", m.Authorize(h.UpdateOrderStatus, auth.RoleAdmin))
		admin.PUT("/parameters", m.Authorize(h.SetParameter, auth.RoleAdmin))
	}

	return r
}

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
	})
}
