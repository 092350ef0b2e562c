package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/cloth-shop/api/internal/platform/httpx"
	"github.com/cloth-shop/api/internal/platform/observability"
	"github.com/cloth-shop/api/internal/services"
)

type errorMapping struct {
	target  error
	code    string
	message string
	status  int
}

// Order matters: specific sentinels wrap their parents and must be checked first.
var serviceErrorMappings = []errorMapping{
	{services.ErrOrderNotFound, "order_not_found", "order not found", http.StatusNotFound},
	{services.ErrPaymentNotFound, "payment_not_found", "payment not found", http.StatusNotFound},
	{services.ErrRefundNotFound, "refund_not_found", "refund not found", http.StatusNotFound},
	{services.ErrAddressNotFound, "address_not_found", "address not found", http.StatusNotFound},
	{services.ErrCartLineNotFound, "cart_item_not_found", "cart item not found", http.StatusNotFound},
	{services.ErrProductNotFound, "product_not_found", "product not found", http.StatusNotFound},
	{services.ErrVariantNotFound, "variant_not_found", "variant not found", http.StatusNotFound},
	{services.ErrNotFound, "not_found", "resource not found", http.StatusNotFound},
	{services.ErrForbidden, "forbidden", "not allowed to access this resource", http.StatusForbidden},
	{services.ErrInvalidTransition, "invalid_transition", "", http.StatusConflict},
	{services.ErrEmptyCart, "empty_cart", "cart is empty", http.StatusBadRequest},
	{services.ErrInsufficientStock, "insufficient_stock", "", http.StatusConflict},
	{services.ErrAlreadyPaid, "already_paid", "order has already been paid", http.StatusConflict},
	{services.ErrRefundInProgress, "refund_in_progress", "a refund is already in progress for this payment", http.StatusConflict},
	{services.ErrNoSuccessfulPayment, "no_successful_payment", "order has no successful payment", http.StatusBadRequest},
	{services.ErrPaymentMethodRequired, "payment_method_required", "payment method required", http.StatusPaymentRequired},
	{services.ErrUnexpectedGatewayStatus, "unexpected_gateway_status", "unexpected payment status", http.StatusBadGateway},
	{services.ErrGateway, "gateway_error", "payment gateway error", http.StatusBadGateway},
	{services.ErrSignatureInvalid, "signature_invalid", "webhook signature verification failed", http.StatusBadRequest},
	{services.ErrValidation, "invalid_request", "", http.StatusBadRequest},
	{services.ErrConflict, "conflict", "resource was modified concurrently; retry", http.StatusConflict},
	{services.ErrUnavailable, "service_unavailable", "service temporarily unavailable", http.StatusServiceUnavailable},
}

// writeServiceError maps service sentinels onto the JSON error envelope. An empty mapping
// message passes the wrapped error text through to the client.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	for _, m := range serviceErrorMappings {
		if !errors.Is(err, m.target) {
			continue
		}
		message := m.message
		if message == "" {
			message = err.Error()
		}
		httpx.WriteError(ctx, w, httpx.NewError(m.code, message, m.status))
		return
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		httpx.WriteError(ctx, w, httpx.NewError("request_timeout", "request timed out", http.StatusGatewayTimeout))
		return
	}
	observability.FromContext(ctx).Error("handlers: unmapped service error", zap.Error(err))
	httpx.WriteError(ctx, w, httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError))
}
