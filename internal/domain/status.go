package domain

import "slices"

var orderStateTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusShipped:    {OrderStatusDelivered, OrderStatusRefunded},
	OrderStatusDelivered:  {OrderStatusRefunded},
	OrderStatusCancelled:  {OrderStatusRefunded},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to OrderStatus) bool {
	return slices.Contains(orderStateTransitions[from], to)
}

// Cancellable reports whether a customer or administrator may cancel an order in this status.
func (s OrderStatus) Cancellable() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	_, ok := orderStateTransitions[s]
	return ok || s == OrderStatusRefunded
}

// Valid reports whether m is a supported payment method.
func (m PaymentMethod) Valid() bool {
	return slices.Contains(PaymentMethods(), m)
}

// Valid reports whether r is a supported refund reason.
func (r RefundReason) Valid() bool {
	return slices.Contains(RefundReasons(), r)
}

// TrackingFor returns the tracking entry recorded when an order enters status s.
func TrackingFor(s OrderStatus) (TrackingStatus, string, bool) {
	switch s {
	case OrderStatusConfirmed:
		return TrackingPaymentConfirmed, "Payment confirmed successfully", true
	case OrderStatusProcessing:
		return TrackingOrderProcessing, "Order is being processed", true
	case OrderStatusShipped:
		return TrackingOrderShipped, "Order has been shipped", true
	case OrderStatusDelivered:
		return TrackingDelivered, "Order has been delivered", true
	case OrderStatusCancelled:
		return TrackingCancelled, "Order has been cancelled", true
	default:
		return "", "", false
	}
}
