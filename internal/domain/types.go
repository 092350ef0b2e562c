package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Pagination defines offset-token paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage holds a page of results plus the token for the next page when present.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order was placed and awaits payment or confirmation.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed indicates payment succeeded (or the order was accepted for COD).
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusProcessing indicates the order is being packed.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates the order left the warehouse.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the order reached the customer.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was cancelled before shipment.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusRefunded indicates the order payment was refunded.
	OrderStatusRefunded OrderStatus = "refunded"
)

// OrderPaymentStatus is the payment summary stored on the order header.
type OrderPaymentStatus string

const (
	OrderPaymentPending   OrderPaymentStatus = "pending"
	OrderPaymentCompleted OrderPaymentStatus = "completed"
	OrderPaymentFailed    OrderPaymentStatus = "failed"
	OrderPaymentRefunded  OrderPaymentStatus = "refunded"
)

// PaymentMethod lists the checkout payment options offered to customers.
type PaymentMethod string

const (
	PaymentMethodCreditCard PaymentMethod = "credit_card"
	PaymentMethodDebitCard  PaymentMethod = "debit_card"
	PaymentMethodUPI        PaymentMethod = "upi"
	PaymentMethodWallet     PaymentMethod = "wallet"
	PaymentMethodCOD        PaymentMethod = "cod"
	PaymentMethodRazorpay   PaymentMethod = "razorpay"
)

// PaymentMethods returns every supported payment method.
func PaymentMethods() []PaymentMethod {
	return []PaymentMethod{
		PaymentMethodCreditCard,
		PaymentMethodDebitCard,
		PaymentMethodUPI,
		PaymentMethodWallet,
		PaymentMethodCOD,
		PaymentMethodRazorpay,
	}
}

// TrackingStatus enumerates entries recorded in an order's tracking log.
type TrackingStatus string

const (
	TrackingOrderPlaced      TrackingStatus = "order_placed"
	TrackingPaymentConfirmed TrackingStatus = "payment_confirmed"
	TrackingOrderProcessing  TrackingStatus = "order_processing"
	TrackingOrderShipped     TrackingStatus = "order_shipped"
	TrackingOutForDelivery   TrackingStatus = "out_for_delivery"
	TrackingDelivered        TrackingStatus = "delivered"
	TrackingCancelled        TrackingStatus = "cancelled"
)

// PaymentStatus describes the lifecycle of a single gateway payment attempt.
type PaymentStatus string

const (
	PaymentStatusCreated        PaymentStatus = "created"
	PaymentStatusAttempted      PaymentStatus = "attempted"
	PaymentStatusRequiresAction PaymentStatus = "requires_action"
	PaymentStatusSucceeded      PaymentStatus = "succeeded"
	PaymentStatusFailed         PaymentStatus = "failed"
	PaymentStatusRefunded       PaymentStatus = "refunded"
)

// Settled reports whether money moved for the payment. A settled payment never goes back to an
// earlier state, whatever the gateway reports for its intent.
func (s PaymentStatus) Settled() bool {
	return s == PaymentStatusSucceeded || s == PaymentStatusRefunded
}

// RefundStatus describes the lifecycle of a refund request.
type RefundStatus string

const (
	RefundStatusRequested  RefundStatus = "requested"
	RefundStatusProcessing RefundStatus = "processing"
	RefundStatusSucceeded  RefundStatus = "succeeded"
	RefundStatusFailed     RefundStatus = "failed"
	RefundStatusCancelled  RefundStatus = "cancelled"
)

// RefundReason captures why the customer asked for money back.
type RefundReason string

const (
	RefundReasonDuplicate           RefundReason = "duplicate"
	RefundReasonFraudulent          RefundReason = "fraudulent"
	RefundReasonRequestedByCustomer RefundReason = "requested_by_customer"
	RefundReasonReturn              RefundReason = "return"
	RefundReasonProductDefect       RefundReason = "product_defect"
	RefundReasonOrderCancelled      RefundReason = "order_cancelled"
	RefundReasonOther               RefundReason = "other"
)

// RefundReasons returns every accepted refund reason.
func RefundReasons() []RefundReason {
	return []RefundReason{
		RefundReasonDuplicate,
		RefundReasonFraudulent,
		RefundReasonRequestedByCustomer,
		RefundReasonReturn,
		RefundReasonProductDefect,
		RefundReasonOrderCancelled,
		RefundReasonOther,
	}
}

// Product is the catalog projection needed for pricing cart lines.
type Product struct {
	ID            string
	Name          string
	BasePrice     decimal.Decimal
	DiscountPrice *decimal.Decimal
	IsActive      bool
}

// EffectivePrice returns the discount price when present, otherwise the base price.
func (p Product) EffectivePrice() decimal.Decimal {
	if p.DiscountPrice != nil {
		return *p.DiscountPrice
	}
	return p.BasePrice
}

// ProductVariant is a colour/style variant with an optional per-size stock map.
type ProductVariant struct {
	ID              string
	ProductID       string
	Name            string
	PriceAdjustment decimal.Decimal
	SizeStock       map[string]int
}

// Stocked reports whether the variant tracks stock per size.
func (v ProductVariant) Stocked() bool {
	return len(v.SizeStock) > 0
}

// Address is a saved shipping address owned by a user.
type Address struct {
	ID           string
	UserID       string
	FullName     string
	Phone        string
	AddressLine1 string
	AddressLine2 string
	City         string
	State        string
	Pincode      string
	Landmark     string
	AddressType  string
	IsDefault    bool
}

// Cart holds the user's mutable line items.
type Cart struct {
	ID        string
	UserID    string
	Lines     []CartLine
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartLine is a single (product, variant, size) entry in a cart.
type CartLine struct {
	ID        string
	CartID    string
	ProductID string
	VariantID string
	Size      string
	Quantity  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ShippingSnapshot copies the delivery details at order time.
type ShippingSnapshot struct {
	FullName     string
	Phone        string
	Email        string
	AddressLine1 string
	AddressLine2 string
	City         string
	State        string
	Pincode      string
	Landmark     string
}

// Order is the placed purchase header with its fixed totals.
type Order struct {
	ID             string
	OrderNumber    string
	UserID         string
	Shipping       ShippingSnapshot
	Subtotal       decimal.Decimal
	ShippingCharge decimal.Decimal
	Tax            decimal.Decimal
	Discount       decimal.Decimal
	Total          decimal.Decimal
	PaymentMethod  PaymentMethod
	PaymentStatus  OrderPaymentStatus
	Status         OrderStatus
	TrackingNumber string
	Notes          string
	PaymentDate    *time.Time
	Items          []OrderItem
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// OrderItem is the immutable price snapshot of one purchased line.
type OrderItem struct {
	ID          string
	OrderID     string
	ProductID   string
	ProductName string
	VariantID   string
	VariantName string
	Size        string
	Quantity    int
	UnitPrice   decimal.Decimal
	Total       decimal.Decimal
	CreatedAt   time.Time
}

// OrderTracking is one append-only entry in the order history.
type OrderTracking struct {
	ID          string
	OrderID     string
	Status      TrackingStatus
	Description string
	CreatedAt   time.Time
}

// Payment is one gateway payment attempt for an order.
type Payment struct {
	ID              string
	OrderID         string
	IntentID        string
	Amount          decimal.Decimal
	Currency        string
	Status          PaymentStatus
	ClientSecret    string
	PaymentMethodID string
	ChargeID        string
	ReceiptEmail    string
	ErrorMessage    string
	Metadata        map[string]any
	PaidAt          *time.Time
	FailedAt        *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Refund is a refund request against a succeeded payment.
type Refund struct {
	ID              string
	PaymentID       string
	OrderID         string
	GatewayRefundID string
	Amount          decimal.Decimal
	Status          RefundStatus
	Reason          RefundReason
	Description     string
	Metadata        map[string]any
	ErrorMessage    string
	CompletedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// InFlight reports whether the refund blocks another request on the same payment.
func (r Refund) InFlight() bool {
	return r.Status == RefundStatusProcessing || r.Status == RefundStatusSucceeded
}

const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
	HealthStatusError    = "error"
)

// HealthCheck is the outcome of one dependency probe.
type HealthCheck struct {
	Status    string
	Detail    string
	Latency   time.Duration
	CheckedAt time.Time
}

// HealthReport aggregates dependency probes for the readiness endpoint.
type HealthReport struct {
	Status      string
	Checks      map[string]HealthCheck
	GeneratedAt time.Time
}
