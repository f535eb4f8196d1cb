package handlers

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
)

const testWebhookSecret = "whsec_test_secret"

func webhookRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(nil, nil, nil, nil, nil, StripeConfig{WebhookSecret: testWebhookSecret})
	r := gin.New()
	r.POST("/payment/webhook", h.Webhook)
	return r
}

func signPayload(payload []byte, secret string, at time.Time) string {
	sig := webhook.ComputeSignature(at, payload, secret)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(sig))
}

func TestWebhookRejectsUnsignedPayload(t *testing.T) {
	r := webhookRouter()

	body := `{"id":"evt_1","type":"checkout.session.completed"}`
	req := httptest.NewRequest(http.MethodPost, "/payment/webhook", strings.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	r := webhookRouter()

	body := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	req := httptest.NewRequest(http.MethodPost, "/payment/webhook", strings.NewReader(string(body)))
	req.Header.Set("Stripe-Signature", signPayload(body, "whsec_wrong_secret", time.Now()))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestWebhookRejectsStaleTimestamp(t *testing.T) {
	r := webhookRouter()

	body := []byte(fmt.Sprintf(`{"id":"evt_1","type":"product.created","api_version":%q}`, stripe.APIVersion))
	req := httptest.NewRequest(http.MethodPost, "/payment/webhook", strings.NewReader(string(body)))
	req.Header.Set("Stripe-Signature", signPayload(body, testWebhookSecret, time.Now().Add(-time.Hour)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestWebhookIgnoresUnhandledEventType(t *testing.T) {
	r := webhookRouter()

	body := []byte(fmt.Sprintf(`{"id":"evt_1","type":"product.created","api_version":%q}`, stripe.APIVersion))
	req := httptest.NewRequest(http.MethodPost, "/payment/webhook", strings.NewReader(string(body)))
	req.Header.Set("Stripe-Signature", signPayload(body, testWebhookSecret, time.Now()))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
}
