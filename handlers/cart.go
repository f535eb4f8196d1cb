package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/rudotcom/electron/internal/notify"
	"github.com/rudotcom/electron/internal/orders"
	"github.com/rudotcom/electron/internal/pricing"
	"github.com/rudotcom/electron/pkg/ctxmanage"
	"github.com/rudotcom/electron/pkg/logkey"
)

// ViewCart returns the shopper's cart, creating it lazily. Totals are
// recomputed by every mutation, so the read path serves what is stored.
func (h *Handler) ViewCart(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)

	cust, err := h.resolveCustomer(c)
	if err != nil {
		slog.Error("resolving customer", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Failed to resolve session"})
		return
	}

	order, err := h.o.GetOrCreateCart(c.Request.Context(), cust.ID)
	if err != nil {
		slog.Error("getting cart", slog.String(logkey.TraceID, traceId),
			slog.Int64(logkey.CustomerID, cust.ID), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Failed to load cart"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": order})
}

func (h *Handler) AddItem(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)

	cust, err := h.resolveCustomer(c)
	if err != nil {
		slog.Error("resolving customer", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Failed to resolve session"})
		return
	}

	var request struct {
		ProductID int64 `json:"product_id"`
		Quantity  int   `json:"quantity"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		slog.Error("invalid request body", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
		return
	}
	if request.ProductID <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Product ID must be valid"})
		return
	}
	if request.Quantity <= 0 {
		request.Quantity = 1
	}

	res, err := h.o.AddItem(c.Request.Context(), cust.ID, request.ProductID, request.Quantity)
	if err != nil {
		if errors.Is(err, orders.ErrItemNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"message": "Product not found"})
			return
		}
		slog.Error("adding item to cart", slog.String(logkey.TraceID, traceId),
			slog.Int64(logkey.ProductID, request.ProductID), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Failed to add product to cart"})
		return
	}

	var messages []string
	switch {
	case res.Clamped:
		messages = append(messages, notify.QuantityClamped(res.ProductTitle, res.Qty))
	case res.Created:
		messages = append(messages, notify.ItemAdded(res.ProductTitle))
	default:
		messages = append(messages, notify.QuantityChanged(res.ProductTitle, res.Qty))
	}

	slog.Info("product added to cart", slog.String(logkey.TraceID, traceId),
		slog.Int64(logkey.ProductID, request.ProductID), slog.Int("qty", res.Qty),
		slog.Int64(logkey.CustomerID, cust.ID))

	c.JSON(http.StatusOK, gin.H{"order": res.Order, "messages": messages})
}

func (h *Handler) ChangeQuantity(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)

	cust, err := h.resolveCustomer(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Failed to resolve session"})
		return
	}

	productID, err := strconv.ParseInt(c.Param("product_id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Product ID must be valid"})
		return
	}

	var request struct {
		Quantity int `json:"qty"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
		return
	}

	res, err := h.o.SetItemQuantity(c.Request.Context(), cust.ID, productID, request.Quantity)
	if err != nil {
		switch {
		case errors.Is(err, orders.ErrOrderNotFound), errors.Is(err, orders.ErrItemNotFound):
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"message": "No such item in your cart"})
		default:
			slog.Error("changing quantity", slog.String(logkey.TraceID, traceId),
				slog.Int64(logkey.ProductID, productID), slog.String(logkey.ERROR, err.Error()))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Failed to change quantity"})
		}
		return
	}

	var messages []string
	switch {
	case res.Qty == 0:
		messages = append(messages, notify.ItemRemoved(res.ProductTitle))
	case res.Clamped:
		messages = append(messages, notify.QuantityClamped(res.ProductTitle, res.Qty))
	default:
		messages = append(messages, notify.QuantityChanged(res.ProductTitle, res.Qty))
	}

	c.JSON(http.StatusOK, gin.H{"order": res.Order, "messages": messages})
}

func (h *Handler) RemoveItem(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)

	cust, err := h.resolveCustomer(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Failed to resolve session"})
		return
	}

	productID, err := strconv.ParseInt(c.Param("product_id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Product ID must be valid"})
		return
	}

	res, err := h.o.RemoveItem(c.Request.Context(), cust.ID, productID)
	if err != nil {
		switch {
		case errors.Is(err, orders.ErrOrderNotFound), errors.Is(err, orders.ErrItemNotFound):
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"message": "No such item in your cart"})
		default:
			slog.Error("removing item", slog.String(logkey.TraceID, traceId),
				slog.Int64(logkey.ProductID, productID), slog.String(logkey.ERROR, err.Error()))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Failed to remove item"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order":    res.Order,
		"messages": []string{notify.ItemRemoved(res.ProductTitle)},
	})
}

// SelectGift attaches a shopper-picked gift to the cart once the subtotal
// crosses the gift threshold.
func (h *Handler) SelectGift(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)

	cust, err := h.resolveCustomer(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Failed to resolve session"})
		return
	}

	productID, err := strconv.ParseInt(c.Param("product_id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Product ID must be valid"})
		return
	}

	order, err := h.o.SelectGift(c.Request.Context(), cust.ID, productID)
	if err != nil {
		switch {
		case errors.Is(err, orders.ErrGiftNotEligible):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"message": "This gift is not available for your order"})
		case errors.Is(err, orders.ErrOrderNotFound), errors.Is(err, orders.ErrItemNotFound):
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"message": "Not found"})
		default:
			slog.Error("selecting gift", slog.String(logkey.TraceID, traceId),
				slog.Int64(logkey.ProductID, productID), slog.String(logkey.ERROR, err.Error()))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Failed to attach gift"})
		}
		return
	}

	messages := []string{}
	if gift, err := h.cat.GetProduct(c.Request.Context(), productID); err == nil {
		messages = append(messages, notify.GiftAdded(gift.Title))
	}

	c.JSON(http.StatusOK, gin.H{"order": order, "messages": messages})
}

// SetDelivery stores the delivery method on the cart and returns the
// repriced order, so the cart page can show delivery cost before checkout.
func (h *Handler) SetDelivery(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)

	cust, err := h.resolveCustomer(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Failed to resolve session"})
		return
	}

	var request struct {
		DeliveryType pricing.DeliveryType `json:"delivery_type"`
	}
	if err := c.ShouldBindJSON(&request); err != nil || !pricing.ValidDeliveryType(request.DeliveryType) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Unknown delivery type"})
		return
	}

	order, err := h.o.SetDeliveryType(c.Request.Context(), cust.ID, request.DeliveryType)
	if err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"message": "Your cart is empty"})
			return
		}
		slog.Error("setting delivery type", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Failed to set delivery type"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": order})
}

// ListGifts shows the products eligible as a promotional gift.
func (h *Handler) ListGifts(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)

	products, err := h.cat.GiftProducts(c.Request.Context())
	if err != nil {
		slog.Error("listing gifts", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Failed to load gifts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"products": products})
}
