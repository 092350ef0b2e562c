package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloth-shop/api/internal/services"
)

const webhookPayload = `{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_123"}}}`

func postWebhook(router http.Handler, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook", bytes.NewBufferString(webhookPayload))
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestWebhookHandlersSuccess(t *testing.T) {
	svc := &stubWebhookService{}
	router := NewRouter(WithWebhookRoutes(NewWebhookHandlers(svc).Routes))

	rr := postWebhook(router, "t=1,v1=abc")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"success"}`, rr.Body.String())
	assert.Equal(t, webhookPayload, string(svc.payload))
	assert.Equal(t, "t=1,v1=abc", svc.signature)
}

func TestWebhookHandlersMissingSignature(t *testing.T) {
	svc := &stubWebhookService{}
	router := NewRouter(WithWebhookRoutes(NewWebhookHandlers(svc).Routes))

	rr := postWebhook(router, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "signature_invalid", errorCode(t, rr))
	assert.Zero(t, svc.calls)
}

func TestWebhookHandlersInvalidSignature(t *testing.T) {
	svc := &stubWebhookService{err: fmt.Errorf("%w: no matching v1 signature", services.ErrSignatureInvalid)}
	router := NewRouter(WithWebhookRoutes(NewWebhookHandlers(svc).Routes))

	rr := postWebhook(router, "t=1,v1=forged")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "signature_invalid", errorCode(t, rr))
}

func TestWebhookHandlersStoreUnavailable(t *testing.T) {
	svc := &stubWebhookService{err: fmt.Errorf("%w: connection refused", services.ErrUnavailable)}
	router := NewRouter(WithWebhookRoutes(NewWebhookHandlers(svc).Routes))

	rr := postWebhook(router, "t=1,v1=abc")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code, "non-2xx lets the gateway retry")
}
