package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/cloth-shop/api/internal/platform/auth"
	"github.com/cloth-shop/api/internal/platform/requestctx"
	"github.com/cloth-shop/api/internal/services"
)

const maxPaymentRequestBody = 4 * 1024

// PaymentHandlers exposes gateway payment creation and confirmation.
type PaymentHandlers struct {
	authn    *auth.Authenticator
	payments services.PaymentService
	opts     handlerOptions
}

// NewPaymentHandlers constructs payment handlers guarded by Firebase authentication.
func NewPaymentHandlers(authn *auth.Authenticator, payments services.PaymentService, opts ...HandlerOption) *PaymentHandlers {
	return &PaymentHandlers{
		authn:    authn,
		payments: payments,
		opts:     newHandlerOptions(opts),
	}
}

// Routes registers the /payments endpoints.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	h.opts.mutating(r).Post("/", h.createPayment)
	r.Post("/confirm", h.confirmPayment)
	r.Get("/order/{orderID}", h.getPaymentForOrder)
}

type createPaymentRequest struct {
	OrderID      string `json:"order_id" validate:"required"`
	ReceiptEmail string `json:"receipt_email" validate:"omitempty,email"`
}

type createPaymentResponse struct {
	PaymentID    string `json:"payment_id"`
	IntentID     string `json:"payment_intent_id"`
	ClientSecret string `json:"client_secret"`
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
}

type confirmPaymentRequest struct {
	IntentID        string `json:"payment_intent_id" validate:"required"`
	PaymentMethodID string `json:"payment_method_id"`
}

type confirmPaymentResponse struct {
	Payment        paymentPayload `json:"payment"`
	RequiresAction bool           `json:"requires_action"`
	ClientSecret   string         `json:"client_secret,omitempty"`
}

type paymentResponse struct {
	Payment paymentPayload `json:"payment"`
}

func (h *PaymentHandlers) createPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		serviceUnavailable(ctx, w, "payment")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req createPaymentRequest
	if !decodeJSONBody(w, r, maxPaymentRequestBody, &req) {
		return
	}

	result, err := h.payments.CreatePayment(ctx, services.CreatePaymentCommand{
		UserID:       identity.UID,
		OrderID:      strings.TrimSpace(req.OrderID),
		ReceiptEmail: strings.TrimSpace(req.ReceiptEmail),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	requestctx.Annotate(ctx, "payment_intent", result.IntentID)
	writeJSONResponse(w, http.StatusCreated, createPaymentResponse{
		PaymentID:    result.PaymentID,
		IntentID:     result.IntentID,
		ClientSecret: result.ClientSecret,
		Amount:       formatMoney(result.Amount),
		Currency:     result.Currency,
		Status:       string(result.Status),
	})
}

func (h *PaymentHandlers) confirmPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		serviceUnavailable(ctx, w, "payment")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req confirmPaymentRequest
	if !decodeJSONBody(w, r, maxPaymentRequestBody, &req) {
		return
	}

	result, err := h.payments.ConfirmPayment(ctx, services.ConfirmPaymentCommand{
		UserID:          identity.UID,
		IntentID:        strings.TrimSpace(req.IntentID),
		PaymentMethodID: strings.TrimSpace(req.PaymentMethodID),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, confirmPaymentResponse{
		Payment:        buildPaymentPayload(result.Payment),
		RequiresAction: result.RequiresAction,
		ClientSecret:   result.ClientSecret,
	})
}

func (h *PaymentHandlers) getPaymentForOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		serviceUnavailable(ctx, w, "payment")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	orderID, ok := requireURLParam(w, r, chi.URLParam(r, "orderID"), "order id")
	if !ok {
		return
	}

	payment, err := h.payments.GetPaymentForOrder(ctx, actor, orderID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, paymentResponse{Payment: buildPaymentPayload(payment)})
}
