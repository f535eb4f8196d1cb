package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/rudotcom/electron/internal/catalog"
	"github.com/rudotcom/electron/pkg/ctxmanage"
	"github.com/rudotcom/electron/pkg/logkey"
)

func (h *Handler) ProductDetail(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)

	productID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Product ID must be valid"})
		return
	}

	product, err := h.cat.GetProduct(c.Request.Context(), productID)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"message": "Product not found"})
			return
		}
		slog.Error("loading product", slog.String(logkey.TraceID, traceId),
			slog.Int64(logkey.ProductID, productID), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Failed to load product"})
		return
	}
	if !product.Display {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"message": "Product not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"product": product})
}

// SetParameter updates one pricing parameter: a delivery cost or one of the
// free-delivery/gift thresholds. Changes apply to the next price computation.
func (h *Handler) SetParameter(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)

	var request struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}
	if err := c.ShouldBindJSON(&request); err != nil || request.Name == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
		return
	}

	value, err := decimal.NewFromString(request.Value)
	if err != nil || value.IsNegative() {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Value must be a non-negative number"})
		return
	}

	if err := h.p.Set(c.Request.Context(), request.Name, value); err != nil {
		slog.Error("setting parameter", slog.String(logkey.TraceID, traceId),
			slog.String("name", request.Name), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Failed to update parameter"})
		return
	}

	slog.Info("parameter updated", slog.String(logkey.TraceID, traceId),
		slog.String("name", request.Name), slog.String("value", value.String()))

	c.JSON(http.StatusOK, gin.H{"name": request.Name, "value": value})
}
