package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/cloth-shop/api/internal/platform/auth"
	"github.com/cloth-shop/api/internal/services"
)

const maxStatusRequestBody = 4 * 1024

// OrderStatusHandlers lets staff and the fulfilment service move orders along the fulfilment path.
type OrderStatusHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderStatusHandlers constructs status update handlers.
func NewOrderStatusHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderStatusHandlers {
	return &OrderStatusHandlers{authn: authn, orders: orders}
}

// AdminRoutes registers the /admin endpoints, restricted to admin and staff roles.
func (h *OrderStatusHandlers) AdminRoutes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin, auth.RoleStaff))
	}
	r.Put("/orders/{orderID}/status", h.updateStatus)
}

// InternalRoutes registers the /internal endpoints. Callers are authenticated by the group's
// OIDC middleware.
func (h *OrderStatusHandlers) InternalRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Put("/orders/{orderID}/status", h.updateStatus)
}

type updateOrderStatusRequest struct {
	Status         string  `json:"status" validate:"required,max=32"`
	TrackingNumber *string `json:"tracking_number" validate:"omitempty,max=100"`
	Note           string  `json:"note" validate:"max=500"`
}

func (h *OrderStatusHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
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

	var req updateOrderStatusRequest
	if !decodeJSONBody(w, r, maxStatusRequestBody, &req) {
		return
	}
	var tracking *string
	if req.TrackingNumber != nil {
		trimmed := strings.TrimSpace(*req.TrackingNumber)
		tracking = &trimmed
	}

	order, err := h.orders.UpdateStatus(ctx, services.UpdateOrderStatusCommand{
		Actor:          actor,
		OrderID:        orderID,
		Status:         strings.ToLower(strings.TrimSpace(req.Status)),
		TrackingNumber: tracking,
		Note:           strings.TrimSpace(req.Note),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}
