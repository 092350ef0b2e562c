package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/cloth-shop/api/internal/domain"
	"github.com/cloth-shop/api/internal/repositories"
)

const (
	orderNumberPrefix     = "ORD"
	orderNumberSuffixLen  = 4
	orderNumberAlphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	orderNumberMaxRetries = 5
	maxOrderNotesLength   = 2000
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Tracking    repositories.OrderTrackingRepository
	Carts       repositories.CartRepository
	Addresses   repositories.AddressRepository
	Catalog     CatalogService
	UnitOfWork  repositories.UnitOfWork
	Pricing     *domain.PricingPolicy
	Clock       func() time.Time
	IDGenerator func() string
	// OrderNumberSuffix returns the random tail of an order number. Defaults to four
	// characters drawn from [A-Z0-9].
	OrderNumberSuffix func() string
	Events            EventPublisher
	Logger            func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders    repositories.OrderRepository
	tracking  repositories.OrderTrackingRepository
	carts     repositories.CartRepository
	addresses repositories.AddressRepository
	catalog   CatalogService
	unit      repositories.UnitOfWork
	pricing   domain.PricingPolicy
	now       func() time.Time
	newID     func() string
	suffix    func() string
	events    eventSink
	logger    logFunc
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	switch {
	case deps.Orders == nil:
		return nil, errors.New("order service: order repository is required")
	case deps.Tracking == nil:
		return nil, errors.New("order service: tracking repository is required")
	case deps.Carts == nil:
		return nil, errors.New("order service: cart repository is required")
	case deps.Addresses == nil:
		return nil, errors.New("order service: address repository is required")
	case deps.Catalog == nil:
		return nil, errors.New("order service: catalog is required")
	}

	pricing := domain.DefaultPricingPolicy()
	if deps.Pricing != nil {
		pricing = *deps.Pricing
	}
	suffix := deps.OrderNumberSuffix
	if suffix == nil {
		suffix = randomOrderSuffix
	}
	logger := defaultLogger(deps.Logger)

	return &orderService{
		orders:    deps.Orders,
		tracking:  deps.Tracking,
		carts:     deps.Carts,
		addresses: deps.Addresses,
		catalog:   deps.Catalog,
		unit:      defaultUnitOfWork(deps.UnitOfWork),
		pricing:   pricing,
		now:       defaultClock(deps.Clock),
		newID:     defaultIDGenerator(deps.IDGenerator),
		suffix:    suffix,
		events:    eventSink{publisher: deps.Events, logger: logger},
		logger:    logger,
	}, nil
}

// PlaceOrder snapshots the cart into a pending order. The order, its items, the first
// tracking entry and the cart clearing commit together or not at all.
func (s *orderService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	addressID := strings.TrimSpace(cmd.AddressID)
	if addressID == "" {
		return Order{}, fmt.Errorf("%w: address id is required", ErrValidation)
	}
	method := domain.PaymentMethod(strings.ToLower(strings.TrimSpace(string(cmd.PaymentMethod))))
	if method == "" {
		method = domain.PaymentMethodCOD
	}
	if !method.Valid() {
		return Order{}, fmt.Errorf("%w: unsupported payment method %q", ErrValidation, cmd.PaymentMethod)
	}
	notes := sanitizeText(cmd.Notes)
	if len(notes) > maxOrderNotesLength {
		return Order{}, fmt.Errorf("%w: notes must be %d characters or fewer", ErrValidation, maxOrderNotesLength)
	}

	now := s.now()
	cart, err := s.carts.FindByUser(ctx, userID)
	if err != nil {
		if isRepoNotFound(err) {
			return Order{}, ErrEmptyCart
		}
		return Order{}, mapRepositoryError(err, nil)
	}
	if len(cart.Lines) == 0 {
		return Order{}, ErrEmptyCart
	}

	address, err := s.addresses.FindByID(ctx, userID, addressID)
	if err != nil {
		return Order{}, mapRepositoryError(err, ErrAddressNotFound)
	}

	var order Order
	err = s.unit.RunInTx(ctx, func(txCtx context.Context) error {
		lines, err := s.carts.LockLines(txCtx, cart.ID)
		if err != nil {
			return mapRepositoryError(err, nil)
		}
		if len(lines) == 0 {
			return ErrEmptyCart
		}

		orderID := orderIDPrefix + s.newID()
		items, subtotal, err := s.snapshotLines(txCtx, orderID, lines, now)
		if err != nil {
			return err
		}
		number, err := s.nextOrderNumber(txCtx, now)
		if err != nil {
			return err
		}

		totals := s.pricing.Totals(subtotal)
		order = Order{
			ID:             orderID,
			OrderNumber:    number,
			UserID:         userID,
			Shipping:       shippingSnapshot(address, cmd.Email),
			Subtotal:       totals.Subtotal,
			ShippingCharge: totals.ShippingCharge,
			Tax:            totals.Tax,
			Discount:       totals.Discount,
			Total:          totals.Total,
			PaymentMethod:  method,
			PaymentStatus:  domain.OrderPaymentPending,
			Status:         domain.OrderStatusPending,
			Notes:          notes,
			Items:          items,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.orders.Insert(txCtx, order); err != nil {
			return mapRepositoryError(err, nil)
		}
		if err := s.appendTracking(txCtx, orderID, domain.TrackingOrderPlaced, "Your order has been placed successfully", now); err != nil {
			return err
		}
		return mapRepositoryError(s.carts.ClearLines(txCtx, cart.ID), nil)
	})
	if err != nil {
		return Order{}, err
	}

	s.logger(ctx, "orders.placed", map[string]any{
		"orderID":     order.ID,
		"orderNumber": order.OrderNumber,
		"userID":      userID,
		"total":       order.Total.StringFixed(2),
		"items":       len(order.Items),
	})
	s.events.publish(ctx, OrderEvent{
		Type:          EventOrderPlaced,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        userID,
		CurrentStatus: string(order.Status),
		ActorID:       userID,
		OccurredAt:    now,
		Metadata: map[string]any{
			"total":         order.Total.StringFixed(2),
			"paymentMethod": string(order.PaymentMethod),
		},
	})
	return order, nil
}

// snapshotLines prices each locked line. Unit prices are rounded to cents while item totals
// keep the exact line total so items always sum to the subtotal.
func (s *orderService) snapshotLines(ctx context.Context, orderID string, lines []CartLine, now time.Time) ([]OrderItem, decimal.Decimal, error) {
	items := make([]OrderItem, 0, len(lines))
	subtotal := decimal.Zero
	for _, line := range lines {
		quote, err := s.catalog.ResolvePriceAndStock(ctx, line.ProductID, line.VariantID, line.Size)
		if err != nil {
			return nil, decimal.Zero, err
		}
		lineTotal := domain.LineTotal(quote.UnitPrice, line.Quantity)
		subtotal = subtotal.Add(lineTotal)
		items = append(items, OrderItem{
			ID:          orderItemPrefix + s.newID(),
			OrderID:     orderID,
			ProductID:   line.ProductID,
			ProductName: quote.ProductName,
			VariantID:   line.VariantID,
			VariantName: quote.VariantName,
			Size:        line.Size,
			Quantity:    line.Quantity,
			UnitPrice:   domain.UnitPriceFromLine(lineTotal, line.Quantity),
			Total:       lineTotal,
			CreatedAt:   now,
		})
	}
	return items, subtotal, nil
}

func (s *orderService) nextOrderNumber(ctx context.Context, now time.Time) (string, error) {
	stamp := orderNumberPrefix + now.UTC().Format("20060102150405")
	for attempt := 0; attempt < orderNumberMaxRetries; attempt++ {
		candidate := stamp + s.suffix()
		exists, err := s.orders.ExistsByNumber(ctx, candidate)
		if err != nil {
			return "", mapRepositoryError(err, nil)
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: could not allocate a unique order number", ErrConflict)
}

// GetOrder returns the order to its owner or an administrator. Other callers see not found.
func (s *orderService) GetOrder(ctx context.Context, actor Actor, orderID string) (Order, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if !canAccessOrder(actor, order) {
		return Order{}, ErrOrderNotFound
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, userID string, pager Pagination) (domain.CursorPage[Order], error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	page, err := s.orders.ListByUser(ctx, userID, pager)
	if err != nil {
		return domain.CursorPage[Order]{}, mapRepositoryError(err, nil)
	}
	return page, nil
}

// TrackOrder returns the order's tracking history newest first.
func (s *orderService) TrackOrder(ctx context.Context, actor Actor, orderID string) (OrderTrackingView, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return OrderTrackingView{}, err
	}
	if !canAccessOrder(actor, order) {
		return OrderTrackingView{}, ErrForbidden
	}
	entries, err := s.tracking.ListByOrder(ctx, order.ID)
	if err != nil {
		return OrderTrackingView{}, mapRepositoryError(err, nil)
	}
	return OrderTrackingView{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		Status:         order.Status,
		TrackingNumber: order.TrackingNumber,
		Entries:        entries,
	}, nil
}

// CancelOrder cancels a pending, confirmed or processing order.
func (s *orderService) CancelOrder(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	var (
		order    Order
		previous domain.OrderStatus
	)
	now := s.now()
	err := s.unit.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		order, err = s.lockOrder(txCtx, cmd.OrderID)
		if err != nil {
			return err
		}
		if !canAccessOrder(cmd.Actor, order) {
			return ErrForbidden
		}
		if !order.Status.Cancellable() {
			return fmt.Errorf("%w: order status %q cannot be cancelled", ErrInvalidTransition, order.Status)
		}
		previous = order.Status
		return s.moveOrder(txCtx, &order, domain.OrderStatusCancelled, "", now)
	})
	if err != nil {
		return Order{}, err
	}

	s.logger(ctx, "orders.cancelled", map[string]any{
		"orderID": order.ID,
		"actorID": cmd.Actor.ID,
		"from":    string(previous),
	})
	s.events.publish(ctx, OrderEvent{
		Type:           EventOrderCancelled,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		UserID:         order.UserID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(order.Status),
		ActorID:        cmd.Actor.ID,
		OccurredAt:     now,
		Metadata:       map[string]any{"reason": sanitizeText(cmd.Reason)},
	})
	return order, nil
}

// UpdateStatus applies a fulfilment transition requested by staff or the fulfilment service.
// out_for_delivery is recorded as a tracking step on a shipped order without changing status.
func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error) {
	if !IsAdministrator(cmd.Actor) {
		return Order{}, ErrForbidden
	}
	target := strings.ToLower(strings.TrimSpace(cmd.Status))
	if target == "" {
		return Order{}, fmt.Errorf("%w: status is required", ErrValidation)
	}
	note := sanitizeText(cmd.Note)

	var (
		order    Order
		previous domain.OrderStatus
	)
	now := s.now()
	err := s.unit.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		order, err = s.lockOrder(txCtx, cmd.OrderID)
		if err != nil {
			return err
		}
		previous = order.Status

		if cmd.TrackingNumber != nil {
			order.TrackingNumber = sanitizeText(*cmd.TrackingNumber)
		}

		if target == string(domain.TrackingOutForDelivery) {
			if order.Status != domain.OrderStatusShipped {
				return fmt.Errorf("%w: order must be shipped to be out for delivery", ErrInvalidTransition)
			}
			order.UpdatedAt = now
			if err := s.orders.Update(txCtx, order); err != nil {
				return mapRepositoryError(err, ErrOrderNotFound)
			}
			return s.appendTracking(txCtx, order.ID, domain.TrackingOutForDelivery, firstNonEmpty(note, "Order is out for delivery"), now)
		}

		next := domain.OrderStatus(target)
		if !next.Valid() {
			return fmt.Errorf("%w: unknown order status %q", ErrValidation, cmd.Status)
		}
		if next == domain.OrderStatusRefunded {
			return fmt.Errorf("%w: refunds are settled by the payment gateway", ErrInvalidTransition)
		}
		if !domain.CanTransition(order.Status, next) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, order.Status, next)
		}
		if next == domain.OrderStatusDelivered && order.PaymentMethod == domain.PaymentMethodCOD {
			order.PaymentStatus = domain.OrderPaymentCompleted
			paidAt := now
			order.PaymentDate = &paidAt
		}
		return s.moveOrder(txCtx, &order, next, note, now)
	})
	if err != nil {
		return Order{}, err
	}

	eventType := EventOrderStatusChanged
	if order.Status == domain.OrderStatusCancelled {
		eventType = EventOrderCancelled
	}
	s.logger(ctx, "orders.status_updated", map[string]any{
		"orderID": order.ID,
		"actorID": cmd.Actor.ID,
		"from":    string(previous),
		"to":      target,
	})
	s.events.publish(ctx, OrderEvent{
		Type:           eventType,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		UserID:         order.UserID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(order.Status),
		ActorID:        cmd.Actor.ID,
		OccurredAt:     now,
		Metadata: map[string]any{
			"trackingNumber": order.TrackingNumber,
			"step":           target,
		},
	})
	return order, nil
}

// moveOrder persists a status change and records its tracking entry. A non-empty note replaces
// the default tracking description.
func (s *orderService) moveOrder(ctx context.Context, order *Order, next domain.OrderStatus, note string, now time.Time) error {
	order.Status = next
	order.UpdatedAt = now
	if err := s.orders.Update(ctx, *order); err != nil {
		return mapRepositoryError(err, ErrOrderNotFound)
	}
	status, description, ok := domain.TrackingFor(next)
	if !ok {
		return nil
	}
	return s.appendTracking(ctx, order.ID, status, firstNonEmpty(note, description), now)
}

func (s *orderService) appendTracking(ctx context.Context, orderID string, status domain.TrackingStatus, description string, now time.Time) error {
	return appendTracking(ctx, s.tracking, orderID, status, description, trackingIDPrefix+s.newID(), now)
}

func (s *orderService) loadOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrValidation)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapRepositoryError(err, ErrOrderNotFound)
	}
	return order, nil
}

func (s *orderService) lockOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrValidation)
	}
	order, err := s.orders.FindByIDForUpdate(ctx, orderID)
	if err != nil {
		return Order{}, mapRepositoryError(err, ErrOrderNotFound)
	}
	return order, nil
}

func appendTracking(ctx context.Context, repo repositories.OrderTrackingRepository, orderID string, status domain.TrackingStatus, description, id string, now time.Time) error {
	err := repo.Append(ctx, OrderTracking{
		ID:          id,
		OrderID:     orderID,
		Status:      status,
		Description: description,
		CreatedAt:   now,
	})
	return mapRepositoryError(err, nil)
}

func shippingSnapshot(address domain.Address, email string) domain.ShippingSnapshot {
	return domain.ShippingSnapshot{
		FullName:     address.FullName,
		Phone:        address.Phone,
		Email:        strings.TrimSpace(email),
		AddressLine1: address.AddressLine1,
		AddressLine2: address.AddressLine2,
		City:         address.City,
		State:        address.State,
		Pincode:      address.Pincode,
		Landmark:     address.Landmark,
	}
}

func randomOrderSuffix() string {
	var b strings.Builder
	b.Grow(orderNumberSuffixLen)
	for i := 0; i < orderNumberSuffixLen; i++ {
		b.WriteByte(orderNumberAlphabet[rand.IntN(len(orderNumberAlphabet))])
	}
	return b.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
