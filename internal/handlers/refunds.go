package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/cloth-shop/api/internal/domain"
	"github.com/cloth-shop/api/internal/platform/auth"
	"github.com/cloth-shop/api/internal/platform/httpx"
	"github.com/cloth-shop/api/internal/platform/requestctx"
	"github.com/cloth-shop/api/internal/services"
)

const maxRefundRequestBody = 8 * 1024

// RefundHandlers exposes refund requests and reads.
type RefundHandlers struct {
	authn   *auth.Authenticator
	refunds services.RefundService
	opts    handlerOptions
}

// NewRefundHandlers constructs refund handlers guarded by Firebase authentication.
func NewRefundHandlers(authn *auth.Authenticator, refunds services.RefundService, opts ...HandlerOption) *RefundHandlers {
	return &RefundHandlers{
		authn:   authn,
		refunds: refunds,
		opts:    newHandlerOptions(opts),
	}
}

// Routes registers the /refunds endpoints.
func (h *RefundHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	h.opts.mutating(r).Post("/request", h.requestRefund)
	r.Get("/{refundID}", h.getRefund)
}

type requestRefundRequest struct {
	OrderID     string `json:"order_id" validate:"required"`
	Reason      string `json:"reason" validate:"required,oneof=duplicate fraudulent requested_by_customer return product_defect order_cancelled other"`
	Description string `json:"description" validate:"max=2000"`
}

type refundResponse struct {
	Refund refundPayload `json:"refund"`
}

func (h *RefundHandlers) requestRefund(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.refunds == nil {
		serviceUnavailable(ctx, w, "refund")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req requestRefundRequest
	if !decodeJSONBody(w, r, maxRefundRequestBody, &req) {
		return
	}

	refund, err := h.refunds.RequestRefund(ctx, services.RequestRefundCommand{
		UserID:      identity.UID,
		OrderID:     strings.TrimSpace(req.OrderID),
		Reason:      domain.RefundReason(req.Reason),
		Description: req.Description,
	})
	if err != nil {
		// The failed refund row is kept so the client can display the gateway's reason.
		if errors.Is(err, services.ErrGateway) && refund.ID != "" {
			httpx.WriteError(ctx, w, httpx.NewError("gateway_error", "refund was rejected by the payment gateway", http.StatusBadGateway).
				WithDetails(map[string]any{"refund_id": refund.ID, "refund_status": string(refund.Status)}))
			return
		}
		writeServiceError(ctx, w, err)
		return
	}
	requestctx.Annotate(ctx, "refund_id", refund.ID)
	writeJSONResponse(w, http.StatusCreated, refundResponse{Refund: buildRefundPayload(refund)})
}

func (h *RefundHandlers) getRefund(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.refunds == nil {
		serviceUnavailable(ctx, w, "refund")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	refundID, ok := requireURLParam(w, r, chi.URLParam(r, "refundID"), "refund id")
	if !ok {
		return
	}

	refund, err := h.refunds.GetRefund(ctx, actor, refundID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, refundResponse{Refund: buildRefundPayload(refund)})
}
