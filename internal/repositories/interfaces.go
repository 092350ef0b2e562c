package repositories

import (
	"context"

	domain "github.com/cloth-shop/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Catalog() CatalogRepository
	Addresses() AddressRepository
	Carts() CartRepository
	Orders() OrderRepository
	Tracking() OrderTrackingRepository
	Payments() PaymentRepository
	Refunds() RefundRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations in one transaction. Nested calls join the outer one.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CatalogRepository reads the product catalog owned by the catalog service.
type CatalogRepository interface {
	FindProduct(ctx context.Context, productID string) (domain.Product, error)
	FindVariant(ctx context.Context, productID, variantID string) (domain.ProductVariant, error)
}

// AddressRepository reads saved shipping addresses.
type AddressRepository interface {
	FindByID(ctx context.Context, userID, addressID string) (domain.Address, error)
}

// CartLineKey identifies a cart line by what was put in the cart.
type CartLineKey struct {
	ProductID string
	VariantID string
	Size      string
}

// CartRepository owns the cart header and its lines.
type CartRepository interface {
	// GetOrCreate returns the user's cart, inserting candidate when none exists yet.
	GetOrCreate(ctx context.Context, candidate domain.Cart) (domain.Cart, error)
	// FindByUser returns the user's cart with its lines without creating one.
	FindByUser(ctx context.Context, userID string) (domain.Cart, error)
	FindLine(ctx context.Context, cartID string, key CartLineKey) (domain.CartLine, error)
	FindLineByID(ctx context.Context, cartID, lineID string) (domain.CartLine, error)
	InsertLine(ctx context.Context, line domain.CartLine) error
	UpdateLineQuantity(ctx context.Context, line domain.CartLine) error
	DeleteLine(ctx context.Context, cartID, lineID string) error
	ListLines(ctx context.Context, cartID string) ([]domain.CartLine, error)
	// LockLines lists the lines and locks them until the surrounding transaction ends.
	LockLines(ctx context.Context, cartID string) ([]domain.CartLine, error)
	ClearLines(ctx context.Context, cartID string) error
}

// OrderRepository persists order headers together with their item snapshots.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	// FindByIDForUpdate locks the order row until the surrounding transaction ends.
	FindByIDForUpdate(ctx context.Context, orderID string) (domain.Order, error)
	ExistsByNumber(ctx context.Context, orderNumber string) (bool, error)
	ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Order], error)
}

// OrderTrackingRepository appends to and reads the per-order history.
type OrderTrackingRepository interface {
	Append(ctx context.Context, entry domain.OrderTracking) error
	// ListByOrder returns the order's entries newest first.
	ListByOrder(ctx context.Context, orderID string) ([]domain.OrderTracking, error)
}

// PaymentRepository stores gateway payment attempts. At most one payment per order may be
// succeeded; Update reports a conflict when that would be violated.
type PaymentRepository interface {
	Insert(ctx context.Context, payment domain.Payment) error
	Update(ctx context.Context, payment domain.Payment) error
	FindByIntentID(ctx context.Context, intentID string) (domain.Payment, error)
	FindByIntentIDForUpdate(ctx context.Context, intentID string) (domain.Payment, error)
	FindByChargeID(ctx context.Context, chargeID string) (domain.Payment, error)
	FindByIDForUpdate(ctx context.Context, paymentID string) (domain.Payment, error)
	// ListByOrder returns payments newest first.
	ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error)
}

// RefundRepository stores refund requests. Insert reports a conflict when the payment already
// has a processing or succeeded refund.
type RefundRepository interface {
	Insert(ctx context.Context, refund domain.Refund) error
	Update(ctx context.Context, refund domain.Refund) error
	FindByID(ctx context.Context, refundID string) (domain.Refund, error)
	FindByGatewayID(ctx context.Context, gatewayRefundID string) (domain.Refund, error)
	ListByPayment(ctx context.Context, paymentID string) ([]domain.Refund, error)
}

// HealthRepository probes backing services for readiness reporting.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.HealthReport, error)
}
