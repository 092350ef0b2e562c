package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/cloth-shop/api/internal/platform/httpx"
	"github.com/cloth-shop/api/internal/platform/observability"
	"github.com/cloth-shop/api/internal/services"
)

const (
	// Stripe caps event payloads well below this.
	maxWebhookBody      = 512 * 1024
	signatureHeaderName = "Stripe-Signature"
)

// WebhookHandlers receives signed payment gateway notifications. The endpoint carries no user
// authentication; every request is verified against the webhook signing secret.
type WebhookHandlers struct {
	webhooks services.WebhookService
}

// NewWebhookHandlers constructs the webhook receiver.
func NewWebhookHandlers(webhooks services.WebhookService) *WebhookHandlers {
	return &WebhookHandlers{webhooks: webhooks}
}

// Routes registers the /webhook endpoint.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.handle)
}

type webhookResponse struct {
	Status string `json:"status"`
}

func (h *WebhookHandlers) handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.webhooks == nil {
		serviceUnavailable(ctx, w, "webhook")
		return
	}

	signature := r.Header.Get(signatureHeaderName)
	if signature == "" {
		httpx.WriteError(ctx, w, httpx.NewError("signature_invalid", "missing "+signatureHeaderName+" header", http.StatusBadRequest))
		return
	}

	payload, err := readLimitedBody(r, maxWebhookBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	if err := h.webhooks.HandleWebhook(ctx, payload, signature); err != nil {
		if !errors.Is(err, services.ErrSignatureInvalid) {
			observability.FromContext(ctx).Warn("webhook: processing failed", zap.Error(err))
		}
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, webhookResponse{Status: "success"})
}
