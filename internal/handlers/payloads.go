package handlers

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/cloth-shop/api/internal/services"
)

func formatMoney(value decimal.Decimal) string {
	return value.StringFixed(2)
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(ts *time.Time) string {
	if ts == nil {
		return ""
	}
	return formatTime(*ts)
}

type cartLinePayload struct {
	ID          string `json:"id"`
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name,omitempty"`
	VariantID   string `json:"variant_id,omitempty"`
	VariantName string `json:"variant_name,omitempty"`
	Size        string `json:"size,omitempty"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	LineTotal   string `json:"line_total"`
}

type cartPayload struct {
	ID        string            `json:"id"`
	Items     []cartLinePayload `json:"items"`
	Subtotal  string            `json:"subtotal"`
	ItemCount int               `json:"item_count"`
	UpdatedAt string            `json:"updated_at,omitempty"`
}

func buildCartPayload(view services.CartView) cartPayload {
	items := make([]cartLinePayload, 0, len(view.Lines))
	for _, line := range view.Lines {
		items = append(items, cartLinePayload{
			ID:          line.ID,
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			VariantID:   line.VariantID,
			VariantName: line.VariantName,
			Size:        line.Size,
			Quantity:    line.Quantity,
			UnitPrice:   formatMoney(line.UnitPrice),
			LineTotal:   formatMoney(line.LineTotal),
		})
	}
	return cartPayload{
		ID:        view.Cart.ID,
		Items:     items,
		Subtotal:  formatMoney(view.Subtotal),
		ItemCount: view.ItemCount,
		UpdatedAt: formatTime(view.Cart.UpdatedAt),
	}
}

type shippingPayload struct {
	FullName     string `json:"full_name"`
	Phone        string `json:"phone"`
	Email        string `json:"email,omitempty"`
	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2,omitempty"`
	City         string `json:"city"`
	State        string `json:"state"`
	Pincode      string `json:"pincode"`
	Landmark     string `json:"landmark,omitempty"`
}

type orderItemPayload struct {
	ID          string `json:"id"`
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	VariantID   string `json:"variant_id,omitempty"`
	VariantName string `json:"variant_name,omitempty"`
	Size        string `json:"size,omitempty"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	Total       string `json:"total"`
}

type orderPayload struct {
	ID             string             `json:"id"`
	OrderNumber    string             `json:"order_number"`
	Status         string             `json:"status"`
	PaymentMethod  string             `json:"payment_method"`
	PaymentStatus  string             `json:"payment_status"`
	Subtotal       string             `json:"subtotal"`
	ShippingCharge string             `json:"shipping_charge"`
	Tax            string             `json:"tax"`
	Discount       string             `json:"discount"`
	Total          string             `json:"total"`
	TrackingNumber string             `json:"tracking_number,omitempty"`
	Notes          string             `json:"notes,omitempty"`
	Shipping       shippingPayload    `json:"shipping"`
	Items          []orderItemPayload `json:"items,omitempty"`
	PaymentDate    string             `json:"payment_date,omitempty"`
	CreatedAt      string             `json:"created_at"`
	UpdatedAt      string             `json:"updated_at,omitempty"`
}

type orderSummaryPayload struct {
	ID          string `json:"id"`
	OrderNumber string `json:"order_number"`
	Status      string `json:"status"`
	Total       string `json:"total"`
	ItemCount   int    `json:"item_count"`
	CreatedAt   string `json:"created_at"`
}

type orderListResponse struct {
	Items         []orderSummaryPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

func buildOrderPayload(order services.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			VariantID:   item.VariantID,
			VariantName: item.VariantName,
			Size:        item.Size,
			Quantity:    item.Quantity,
			UnitPrice:   formatMoney(item.UnitPrice),
			Total:       formatMoney(item.Total),
		})
	}
	s := order.Shipping
	return orderPayload{
		ID:             order.ID,
		OrderNumber:    order.OrderNumber,
		Status:         string(order.Status),
		PaymentMethod:  string(order.PaymentMethod),
		PaymentStatus:  string(order.PaymentStatus),
		Subtotal:       formatMoney(order.Subtotal),
		ShippingCharge: formatMoney(order.ShippingCharge),
		Tax:            formatMoney(order.Tax),
		Discount:       formatMoney(order.Discount),
		Total:          formatMoney(order.Total),
		TrackingNumber: order.TrackingNumber,
		Notes:          order.Notes,
		Shipping: shippingPayload{
			FullName:     s.FullName,
			Phone:        s.Phone,
			Email:        s.Email,
			AddressLine1: s.AddressLine1,
			AddressLine2: s.AddressLine2,
			City:         s.City,
			State:        s.State,
			Pincode:      s.Pincode,
			Landmark:     s.Landmark,
		},
		Items:       items,
		PaymentDate: formatTimePtr(order.PaymentDate),
		CreatedAt:   formatTime(order.CreatedAt),
		UpdatedAt:   formatTime(order.UpdatedAt),
	}
}

func buildOrderSummary(order services.Order) orderSummaryPayload {
	count := 0
	for _, item := range order.Items {
		count += item.Quantity
	}
	return orderSummaryPayload{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		Status:      string(order.Status),
		Total:       formatMoney(order.Total),
		ItemCount:   count,
		CreatedAt:   formatTime(order.CreatedAt),
	}
}

type trackingEntryPayload struct {
	Status      string `json:"status"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at"`
}

type trackingResponse struct {
	OrderID        string                 `json:"order_id"`
	OrderNumber    string                 `json:"order_number"`
	Status         string                 `json:"status"`
	TrackingNumber string                 `json:"tracking_number,omitempty"`
	Tracking       []trackingEntryPayload `json:"tracking"`
}

func buildTrackingResponse(view services.OrderTrackingView) trackingResponse {
	entries := make([]trackingEntryPayload, 0, len(view.Entries))
	for _, entry := range view.Entries {
		entries = append(entries, trackingEntryPayload{
			Status:      string(entry.Status),
			Description: entry.Description,
			CreatedAt:   formatTime(entry.CreatedAt),
		})
	}
	return trackingResponse{
		OrderID:        view.OrderID,
		OrderNumber:    view.OrderNumber,
		Status:         string(view.Status),
		TrackingNumber: view.TrackingNumber,
		Tracking:       entries,
	}
}

type paymentPayload struct {
	ID           string `json:"id"`
	OrderID      string `json:"order_id"`
	IntentID     string `json:"intent_id"`
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
	ReceiptEmail string `json:"receipt_email,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	PaidAt       string `json:"paid_at,omitempty"`
	FailedAt     string `json:"failed_at,omitempty"`
	CreatedAt    string `json:"created_at"`
}

func buildPaymentPayload(payment services.Payment) paymentPayload {
	return paymentPayload{
		ID:           payment.ID,
		OrderID:      payment.OrderID,
		IntentID:     payment.IntentID,
		Amount:       formatMoney(payment.Amount),
		Currency:     payment.Currency,
		Status:       string(payment.Status),
		ReceiptEmail: payment.ReceiptEmail,
		ErrorMessage: payment.ErrorMessage,
		PaidAt:       formatTimePtr(payment.PaidAt),
		FailedAt:     formatTimePtr(payment.FailedAt),
		CreatedAt:    formatTime(payment.CreatedAt),
	}
}

type refundPayload struct {
	ID           string `json:"id"`
	OrderID      string `json:"order_id"`
	PaymentID    string `json:"payment_id"`
	Amount       string `json:"amount"`
	Status       string `json:"status"`
	Reason       string `json:"reason"`
	Description  string `json:"description,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	CompletedAt  string `json:"completed_at,omitempty"`
	CreatedAt    string `json:"created_at"`
}

func buildRefundPayload(refund services.Refund) refundPayload {
	return refundPayload{
		ID:           refund.ID,
		OrderID:      refund.OrderID,
		PaymentID:    refund.PaymentID,
		Amount:       formatMoney(refund.Amount),
		Status:       string(refund.Status),
		Reason:       string(refund.Reason),
		Description:  refund.Description,
		ErrorMessage: refund.ErrorMessage,
		CompletedAt:  formatTimePtr(refund.CompletedAt),
		CreatedAt:    formatTime(refund.CreatedAt),
	}
}
