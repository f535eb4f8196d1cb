package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/rudotcom/electron/internal/orders"
	"github.com/rudotcom/electron/pkg/ctxmanage"
	"github.com/rudotcom/electron/pkg/logkey"
)

const maxWebhookBodyBytes = int64(65536)

// Webhook receives payment notifications from Stripe. The endpoint sits
// outside the session middleware: the caller is Stripe, not a shopper.
// Any failure to verify, parse or apply the event returns 500 so Stripe
// retries the delivery.
func (h *Handler) Webhook(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		slog.Error("reading webhook body", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Failed to read payload"})
		return
	}

	event, err := webhook.ConstructEvent(payload, c.GetHeader("Stripe-Signature"), h.stripe.WebhookSecret)
	if err != nil {
		slog.Error("verifying webhook signature", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Failed to verify event"})
		return
	}

	var status orders.PaymentStatus
	switch event.Type {
	case "checkout.session.completed":
		status = orders.PaymentSucceeded
	case "checkout.session.expired":
		status = orders.PaymentCanceled
	case "checkout.session.async_payment_failed":
		status = orders.PaymentFailed
	default:
		slog.Info("unhandled event type", slog.String(logkey.TraceID, traceId), slog.String("event_type", string(event.Type)))
		c.JSON(http.StatusOK, gin.H{"message": "Event type not handled"})
		return
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		slog.Error("unmarshalling checkout session", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Failed to parse event"})
		return
	}

	occurredAt := time.Unix(event.Created, 0).UTC()
	res, err := h.o.RegisterPayment(c.Request.Context(), session.ID, status, occurredAt)
	if err != nil {
		slog.Error("registering payment", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.PaymentID, session.ID), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Failed to register payment"})
		return
	}

	if res.Applied && status == orders.PaymentSucceeded {
		go h.n.PaymentSucceeded(res.Order)
	}

	slog.Info("payment event processed", slog.String(logkey.TraceID, traceId),
		slog.String(logkey.PaymentID, session.ID), slog.String("payment_status", string(status)),
		slog.Bool("applied", res.Applied))

	c.Status(http.StatusOK)
}
