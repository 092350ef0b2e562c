package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/cloth-shop/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination    = domain.Pagination
	Cart          = domain.Cart
	CartLine      = domain.CartLine
	Order         = domain.Order
	OrderItem     = domain.OrderItem
	OrderTracking = domain.OrderTracking
	Payment       = domain.Payment
	Refund        = domain.Refund
)

// Actor is the authenticated principal performing an operation.
type Actor struct {
	ID    string
	Roles []string
	// Service marks callers authenticated as a trusted backend (fulfilment) rather than a user.
	Service bool
}

// CatalogService resolves prices and stock for cart lines.
type CatalogService interface {
	ResolvePriceAndStock(ctx context.Context, productID, variantID, size string) (PriceQuote, error)
}

// PriceQuote is the unit price and availability of one (product, variant, size) combination.
type PriceQuote struct {
	ProductID   string
	ProductName string
	VariantID   string
	VariantName string
	Size        string
	UnitPrice   decimal.Decimal
	// Available is only meaningful when Unlimited is false.
	Available int
	Unlimited bool
}

// Allows reports whether quantity units can be supplied.
func (q PriceQuote) Allows(quantity int) bool {
	return q.Unlimited || quantity <= q.Available
}

// CartService manages the per-user cart.
type CartService interface {
	GetOrCreate(ctx context.Context, userID string) (CartView, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (CartView, error)
	UpdateItem(ctx context.Context, cmd UpdateCartItemCommand) (CartView, error)
	RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (CartView, error)
	Clear(ctx context.Context, userID string) (CartView, error)
}

// CartView is the cart read model with prices resolved from the catalog.
type CartView struct {
	Cart      Cart
	Lines     []CartLineView
	Subtotal  decimal.Decimal
	ItemCount int
}

// CartLineView is a cart line with its current unit price and line total.
type CartLineView struct {
	CartLine
	ProductName string
	VariantName string
	UnitPrice   decimal.Decimal
	LineTotal   decimal.Decimal
}

// AddCartItemCommand adds quantity units of a product to the user's cart.
type AddCartItemCommand struct {
	UserID    string
	ProductID string
	VariantID string
	Size      string
	Quantity  int
}

// UpdateCartItemCommand sets the quantity of a line. Quantity <= 0 removes the line.
type UpdateCartItemCommand struct {
	UserID   string
	LineID   string
	Quantity int
}

// RemoveCartItemCommand deletes a line from the user's cart.
type RemoveCartItemCommand struct {
	UserID string
	LineID string
}

// OrderService turns carts into orders and moves orders through their lifecycle.
type OrderService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error)
	GetOrder(ctx context.Context, actor Actor, orderID string) (Order, error)
	ListOrders(ctx context.Context, userID string, pager Pagination) (domain.CursorPage[Order], error)
	TrackOrder(ctx context.Context, actor Actor, orderID string) (OrderTrackingView, error)
	CancelOrder(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error)
}

// PlaceOrderCommand converts the user's cart into an order.
type PlaceOrderCommand struct {
	UserID string
	// Email is copied into the shipping snapshot for delivery notices.
	Email         string
	AddressID     string
	PaymentMethod domain.PaymentMethod
	Notes         string
}

// CancelOrderCommand cancels an order on behalf of its owner or an administrator.
type CancelOrderCommand struct {
	Actor   Actor
	OrderID string
	Reason  string
}

// UpdateOrderStatusCommand moves an order along the fulfilment path.
type UpdateOrderStatusCommand struct {
	Actor          Actor
	OrderID        string
	Status         string
	TrackingNumber *string
	Note           string
}

// OrderTrackingView is the customer-facing tracking summary of an order.
type OrderTrackingView struct {
	OrderID        string
	OrderNumber    string
	Status         domain.OrderStatus
	TrackingNumber string
	Entries        []OrderTracking
}

// PaymentService creates and confirms gateway payments for orders.
type PaymentService interface {
	CreatePayment(ctx context.Context, cmd CreatePaymentCommand) (PaymentIntentResult, error)
	ConfirmPayment(ctx context.Context, cmd ConfirmPaymentCommand) (ConfirmPaymentResult, error)
	GetPaymentForOrder(ctx context.Context, actor Actor, orderID string) (Payment, error)
}

// CreatePaymentCommand opens a gateway payment for an order.
type CreatePaymentCommand struct {
	UserID       string
	OrderID      string
	ReceiptEmail string
}

// PaymentIntentResult is returned to the client to complete payment.
type PaymentIntentResult struct {
	PaymentID    string
	IntentID     string
	ClientSecret string
	Amount       decimal.Decimal
	Currency     string
	Status       domain.PaymentStatus
}

// ConfirmPaymentCommand re-checks a payment intent after client-side confirmation.
type ConfirmPaymentCommand struct {
	UserID          string
	IntentID        string
	PaymentMethodID string
}

// ConfirmPaymentResult reports the payment after confirmation. ClientSecret is set when
// the customer must complete an additional action.
type ConfirmPaymentResult struct {
	Payment        Payment
	RequiresAction bool
	ClientSecret   string
}

// RefundService requests and reads refunds.
type RefundService interface {
	RequestRefund(ctx context.Context, cmd RequestRefundCommand) (Refund, error)
	GetRefund(ctx context.Context, actor Actor, refundID string) (Refund, error)
}

// RequestRefundCommand asks for the order total to be returned.
type RequestRefundCommand struct {
	UserID      string
	OrderID     string
	Reason      domain.RefundReason
	Description string
}

// WebhookService applies verified gateway notifications.
type WebhookService interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

// Event types emitted to EventPublisher.
const (
	EventOrderPlaced        = "order.placed"
	EventOrderConfirmed     = "order.confirmed"
	EventOrderCancelled     = "order.cancelled"
	EventOrderStatusChanged = "order.status_changed"
	EventPaymentFailed      = "payment.failed"
	EventRefundRequested    = "refund.requested"
	EventRefundSucceeded    = "refund.succeeded"
	EventRefundFailed       = "refund.failed"
)

// EventPublisher publishes order lifecycle events for downstream consumers.
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order lifecycle events.
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderNumber    string
	UserID         string
	PreviousStatus string
	CurrentStatus  string
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}
