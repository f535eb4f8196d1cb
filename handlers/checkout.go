package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/checkout/session"

	"github.com/rudotcom/electron/internal/checkout"
	"github.com/rudotcom/electron/internal/notify"
	"github.com/rudotcom/electron/internal/orders"
	"github.com/rudotcom/electron/pkg/ctxmanage"
	"github.com/rudotcom/electron/pkg/logkey"
)

// PlaceOrder turns the cart into a placed order. The session cookie is
// rotated afterwards so the shopper starts with a fresh cart.
func (h *Handler) PlaceOrder(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)

	cust, err := h.resolveCustomer(c)
	if err != nil {
		slog.Error("resolving customer", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Failed to resolve session"})
		return
	}

	var form checkout.Form
	if err := c.ShouldBindJSON(&form); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
		return
	}
	if err := form.Validate(); err != nil {
		var fieldErrs checkout.FieldErrors
		if errors.As(err, &fieldErrs) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Please correct the form", "fields": fieldErrs})
			return
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	order, err := h.o.PlaceOrder(c.Request.Context(), cust.ID, form)
	if err != nil {
		switch {
		case errors.Is(err, orders.ErrEmptyCart), errors.Is(err, orders.ErrOrderNotFound):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"message": "Your cart is empty"})
		case errors.Is(err, orders.ErrInvalidTransition):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"message": "Order is already placed"})
		default:
			slog.Error("placing order", slog.String(logkey.TraceID, traceId),
				slog.Int64(logkey.CustomerID, cust.ID), slog.String(logkey.ERROR, err.Error()))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Failed to place order"})
		}
		return
	}

	h.rotateSession(c)
	go h.n.OrderPlaced(order)

	slog.Info("order placed", slog.String(logkey.TraceID, traceId),
		slog.Int64(logkey.OrderID, order.ID), slog.Int64(logkey.CustomerID, cust.ID))

	c.JSON(http.StatusOK, gin.H{"order": order, "messages": []string{notify.OrderPlacedMessage(order.ID)}})
}

// InitiatePayment re-validates the order against current stock and opens a
// Stripe checkout session for the full amount. When stock changed since
// checkout the adjusted order is returned instead and no session is created.
func (h *Handler) InitiatePayment(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)

	cust, err := h.resolveCustomer(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Failed to resolve session"})
		return
	}

	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Order ID must be valid"})
		return
	}

	order, err := h.o.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"message": "Order not found"})
			return
		}
		slog.Error("loading order", slog.String(logkey.TraceID, traceId),
			slog.Int64(logkey.OrderID, orderID), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Failed to load order"})
		return
	}
	if !ownedBy(order, cust) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "This order belongs to another customer"})
		return
	}

	review, err := h.o.ReviewForPayment(c.Request.Context(), orderID)
	if err != nil {
		switch {
		case errors.Is(err, orders.ErrAlreadyPaid):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"message": "Order is already paid"})
		case errors.Is(err, orders.ErrInvalidTransition):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"message": "Order is not awaiting payment"})
		case errors.Is(err, orders.ErrEmptyCart):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"message": "All items in the order are out of stock"})
		default:
			slog.Error("reviewing order for payment", slog.String(logkey.TraceID, traceId),
				slog.Int64(logkey.OrderID, orderID), slog.String(logkey.ERROR, err.Error()))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Failed to prepare payment"})
		}
		return
	}

	if !review.Ready {
		messages := make([]string, 0, len(review.Adjustments))
		for _, adj := range review.Adjustments {
			switch {
			case adj.GiftRemoved:
				messages = append(messages, notify.GiftRemoved(adj.ProductTitle))
			case adj.NewQty == 0:
				messages = append(messages, notify.ItemRemoved(adj.ProductTitle))
			default:
				messages = append(messages, notify.QuantityClamped(adj.ProductTitle, adj.NewQty))
			}
		}
		c.JSON(http.StatusConflict, gin.H{"order": review.Order, "messages": messages})
		return
	}

	stripe.Key = h.stripe.SecretKey

	kopecks := review.Order.TotalGross.Mul(decimal.NewFromInt(100)).IntPart()
	params := &stripe.CheckoutSessionParams{
		SubmitType: stripe.String("pay"),
		Currency:   stripe.String(string(stripe.CurrencyRUB)),
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(string(stripe.CurrencyRUB)),
				UnitAmount: stripe.Int64(kopecks),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(fmt.Sprintf("Заказ №%d", review.Order.ID)),
				},
			},
			Quantity: stripe.Int64(1),
		}},
		SuccessURL: stripe.String(h.stripe.SiteURL + "/payment/success"),
		CancelURL:  stripe.String(h.stripe.SiteURL + "/payment/cancel"),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{
				"order_id": strconv.FormatInt(review.Order.ID, 10),
			},
		},
	}
	sessionStripe, err := session.New(params)
	if err != nil {
		slog.Error("creating checkout session", slog.String(logkey.TraceID, traceId),
			slog.Int64(logkey.OrderID, orderID), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Failed to create payment session"})
		return
	}

	if err := h.o.AttachPayment(c.Request.Context(), orderID, sessionStripe.ID); err != nil {
		slog.Error("attaching payment to order", slog.String(logkey.TraceID, traceId),
			slog.Int64(logkey.OrderID, orderID), slog.String(logkey.PaymentID, sessionStripe.ID),
			slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Failed to register payment session"})
		return
	}

	slog.Info("payment session created", slog.String(logkey.TraceID, traceId),
		slog.Int64(logkey.OrderID, orderID), slog.String(logkey.PaymentID, sessionStripe.ID))

	c.JSON(http.StatusOK, gin.H{"checkout_session_url": sessionStripe.URL})
}
