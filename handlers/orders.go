package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/rudotcom/electron/internal/auth"
	"github.com/rudotcom/electron/internal/orders"
	"github.com/rudotcom/electron/pkg/ctxmanage"
	"github.com/rudotcom/electron/pkg/logkey"
)

// ListOrders returns the signed-in user's order history, newest first.
// Anonymous shoppers have no history to show.
func (h *Handler) ListOrders(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)

	claims, ok := c.Request.Context().Value(auth.ClaimsKey).(auth.Claims)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Sign in to see your orders"})
		return
	}

	list, err := h.o.ListByUser(c.Request.Context(), claims.Subject)
	if err != nil {
		slog.Error("listing orders", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Failed to load orders"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": list})
}

func (h *Handler) OrderDetail(c *gin.Context) {
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

	c.JSON(http.StatusOK, gin.H{"order": order})
}

// UpdateOrderStatus moves an order along its lifecycle. Back office only.
func (h *Handler) UpdateOrderStatus(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)

	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Order ID must be valid"})
		return
	}

	var request struct {
		Status       string `json:"status"`
		TrackingCode string `json:"tracking_code"`
		Remark       string `json:"remark"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
		return
	}

	next, err := orders.ToStatus(request.Status)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Unknown status"})
		return
	}

	order, err := h.o.Advance(c.Request.Context(), orderID, next, request.TrackingCode, request.Remark)
	if err != nil {
		switch {
		case errors.Is(err, orders.ErrOrderNotFound):
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"message": "Order not found"})
		case errors.Is(err, orders.ErrInvalidTransition):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"message": "Transition is not allowed"})
		default:
			slog.Error("advancing order", slog.String(logkey.TraceID, traceId),
				slog.Int64(logkey.OrderID, orderID), slog.String(logkey.ERROR, err.Error()))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Failed to update order"})
		}
		return
	}

	if next == orders.StatusShipped {
		go h.n.OrderShipped(order)
	}

	slog.Info("order status changed", slog.String(logkey.TraceID, traceId),
		slog.Int64(logkey.OrderID, order.ID), slog.String("status", string(order.Status)))

	c.JSON(http.StatusOK, gin.H{"order": order})
}
