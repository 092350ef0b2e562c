package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	domain "github.com/cloth-shop/api/internal/domain"
	"github.com/cloth-shop/api/internal/payments"
	"github.com/cloth-shop/api/internal/platform/config"
	"github.com/cloth-shop/api/internal/platform/observability"
	"github.com/cloth-shop/api/internal/repositories"
	"github.com/cloth-shop/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Catalog  services.CatalogService
	Cart     services.CartService
	Orders   services.OrderService
	Payments services.PaymentService
	Refunds  services.RefundService
	Webhooks services.WebhookService
	System   services.SystemService
}

// Dependencies are the runtime collaborators that live outside the repository registry.
type Dependencies struct {
	Gateway payments.Gateway
	// Events is optional; a nil publisher skips lifecycle notifications.
	Events services.EventPublisher
	Logger *zap.Logger
	Build  services.BuildInfo
	Clock  func() time.Time
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides the postgres
// registry and the Stripe gateway, while tests can supply in-memory registries and fakes.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, deps Dependencies) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("payment gateway is required")
	}

	svc, err := buildServices(ctx, reg, cfg, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, deps Dependencies) (Services, error) {
	var svc Services

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	eventLogger := func(name string) observability.EventLogger {
		return observability.NewEventLogger(logger.Named(name))
	}
	events := deps.Events

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{Catalog: reg.Catalog()})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Carts:      reg.Carts(),
		Catalog:    catalogSvc,
		UnitOfWork: reg,
		Clock:      clock,
		Logger:     eventLogger("cart"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cartSvc

	pricing := domain.PricingPolicy{
		FreeShippingThreshold: cfg.Pricing.FreeShippingThreshold,
		FlatShippingFee:       cfg.Pricing.FlatShippingFee,
		TaxRate:               cfg.Pricing.TaxRate,
	}
	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     reg.Orders(),
		Tracking:   reg.Tracking(),
		Carts:      reg.Carts(),
		Addresses:  reg.Addresses(),
		Catalog:    catalogSvc,
		UnitOfWork: reg,
		Pricing:    &pricing,
		Clock:      clock,
		Events:     events,
		Logger:     eventLogger("orders"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	paymentSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
		Orders:     reg.Orders(),
		Payments:   reg.Payments(),
		Tracking:   reg.Tracking(),
		UnitOfWork: reg,
		Gateway:    deps.Gateway,
		Currency:   cfg.Stripe.Currency,
		Clock:      clock,
		Events:     events,
		Logger:     eventLogger("payments"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build payment service: %w", err)
	}
	svc.Payments = paymentSvc

	refundSvc, err := services.NewRefundService(services.RefundServiceDeps{
		Orders:     reg.Orders(),
		Payments:   reg.Payments(),
		Refunds:    reg.Refunds(),
		UnitOfWork: reg,
		Gateway:    deps.Gateway,
		Clock:      clock,
		Events:     events,
		Logger:     eventLogger("refunds"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build refund service: %w", err)
	}
	svc.Refunds = refundSvc

	webhookSvc, err := services.NewWebhookService(services.WebhookServiceDeps{
		Orders:     reg.Orders(),
		Payments:   reg.Payments(),
		Refunds:    reg.Refunds(),
		Tracking:   reg.Tracking(),
		UnitOfWork: reg,
		Gateway:    deps.Gateway,
		Clock:      clock,
		Events:     events,
		Logger:     eventLogger("webhook"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build webhook service: %w", err)
	}
	svc.Webhooks = webhookSvc

	if healthRepo := reg.Health(); healthRepo != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            clock,
			Build:            deps.Build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
