package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/cloth-shop/api/internal/platform/database"
	"github.com/cloth-shop/api/internal/repositories"
)

// Registry wires every postgres repository around one connection pool.
type Registry struct {
	provider *database.Provider
	uow      *database.UnitOfWork

	catalog   *CatalogRepository
	addresses *AddressRepository
	carts     *CartRepository
	orders    *OrderRepository
	tracking  *OrderTrackingRepository
	payments  *PaymentRepository
	refunds   *RefundRepository
	health    repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs the repositories from an opened pool. health may be nil when the
// caller does not serve readiness probes.
func NewRegistry(provider *database.Provider, db *gorm.DB, health repositories.HealthRepository, opts ...database.TxOption) (*Registry, error) {
	if db == nil {
		return nil, errors.New("postgres registry: database handle is required")
	}
	return &Registry{
		provider:  provider,
		uow:       database.NewUnitOfWork(db, opts...),
		catalog:   NewCatalogRepository(db),
		addresses: NewAddressRepository(db),
		carts:     NewCartRepository(db),
		orders:    NewOrderRepository(db),
		tracking:  NewOrderTrackingRepository(db),
		payments:  NewPaymentRepository(db),
		refunds:   NewRefundRepository(db),
		health:    health,
	}, nil
}

func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) Catalog() repositories.CatalogRepository        { return r.catalog }
func (r *Registry) Addresses() repositories.AddressRepository      { return r.addresses }
func (r *Registry) Carts() repositories.CartRepository             { return r.carts }
func (r *Registry) Orders() repositories.OrderRepository           { return r.orders }
func (r *Registry) Tracking() repositories.OrderTrackingRepository { return r.tracking }
func (r *Registry) Payments() repositories.PaymentRepository       { return r.payments }
func (r *Registry) Refunds() repositories.RefundRepository         { return r.refunds }
func (r *Registry) Health() repositories.HealthRepository          { return r.health }

// RunInTx implements repositories.UnitOfWork.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.uow.RunInTx(ctx, fn)
}
