package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	domain "github.com/cloth-shop/api/internal/domain"
	"github.com/cloth-shop/api/internal/payments"
	"github.com/cloth-shop/api/internal/repositories"
)

// paymentKeyNamespace scopes the deterministic gateway idempotency keys derived from orders.
var paymentKeyNamespace = uuid.MustParse("6f3c2a52-4a7e-4d63-9d0e-2b1d8a4c9e17")

// PaymentServiceDeps bundles collaborators required to construct the payment service.
type PaymentServiceDeps struct {
	Orders      repositories.OrderRepository
	Payments    repositories.PaymentRepository
	Tracking    repositories.OrderTrackingRepository
	UnitOfWork  repositories.UnitOfWork
	Gateway     payments.Gateway
	Currency    string
	Clock       func() time.Time
	IDGenerator func() string
	Events      EventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	orders   repositories.OrderRepository
	payments repositories.PaymentRepository
	gateway  payments.Gateway
	currency string
	now      func() time.Time
	newID    func() string
	settler  *settler
	logger   logFunc
}

// NewPaymentService wires dependencies into a concrete PaymentService implementation.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	switch {
	case deps.Orders == nil:
		return nil, errors.New("payment service: order repository is required")
	case deps.Payments == nil:
		return nil, errors.New("payment service: payment repository is required")
	case deps.Tracking == nil:
		return nil, errors.New("payment service: tracking repository is required")
	case deps.Gateway == nil:
		return nil, errors.New("payment service: gateway is required")
	}
	currency := strings.ToLower(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "usd"
	}
	svc := &paymentService{
		orders:   deps.Orders,
		payments: deps.Payments,
		gateway:  deps.Gateway,
		currency: currency,
		now:      defaultClock(deps.Clock),
		newID:    defaultIDGenerator(deps.IDGenerator),
		logger:   defaultLogger(deps.Logger),
	}
	svc.settler = newSettler(deps.UnitOfWork, deps.Orders, deps.Payments, deps.Tracking, svc.now, svc.newID, deps.Events, svc.logger)
	return svc, nil
}

func newSettler(unit repositories.UnitOfWork, orders repositories.OrderRepository, paymentsRepo repositories.PaymentRepository, tracking repositories.OrderTrackingRepository, now func() time.Time, newID func() string, events EventPublisher, logger logFunc) *settler {
	return &settler{
		unit:     defaultUnitOfWork(unit),
		orders:   orders,
		payments: paymentsRepo,
		tracking: tracking,
		now:      now,
		newID:    newID,
		events:   eventSink{publisher: events, logger: logger},
		logger:   logger,
	}
}

// CreatePayment opens a gateway intent for the order total. Repeated calls for the same order
// and total reuse the same intent through a deterministic idempotency key.
func (s *paymentService) CreatePayment(ctx context.Context, cmd CreatePaymentCommand) (PaymentIntentResult, error) {
	userID := strings.TrimSpace(cmd.UserID)
	orderID := strings.TrimSpace(cmd.OrderID)
	if userID == "" || orderID == "" {
		return PaymentIntentResult{}, fmt.Errorf("%w: order id is required", ErrValidation)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return PaymentIntentResult{}, mapRepositoryError(err, ErrOrderNotFound)
	}
	if order.UserID != userID {
		return PaymentIntentResult{}, ErrOrderNotFound
	}
	switch {
	case order.Status == domain.OrderStatusCancelled || order.Status == domain.OrderStatusRefunded:
		return PaymentIntentResult{}, fmt.Errorf("%w: order is %s", ErrInvalidTransition, order.Status)
	case order.PaymentMethod == domain.PaymentMethodCOD:
		return PaymentIntentResult{}, fmt.Errorf("%w: cash on delivery orders are paid on delivery", ErrInvalidTransition)
	}

	existing, err := s.payments.ListByOrder(ctx, order.ID)
	if err != nil {
		return PaymentIntentResult{}, mapRepositoryError(err, nil)
	}
	for _, p := range existing {
		if p.Status.Settled() {
			return PaymentIntentResult{}, ErrAlreadyPaid
		}
	}

	req := payments.CreateIntentRequest{
		AmountMinor:  domain.MinorUnits(order.Total, s.currency),
		Currency:     s.currency,
		ReceiptEmail: strings.ToLower(strings.TrimSpace(firstNonEmpty(cmd.ReceiptEmail, order.Shipping.Email))),
		Metadata: map[string]string{
			"order_id":     order.ID,
			"order_number": order.OrderNumber,
			"user_id":      userID,
		},
	}
	req.IdempotencyKey = paymentIdempotencyKey(order.ID, req)
	receiptEmail := req.ReceiptEmail
	intent, err := s.gateway.CreateIntent(ctx, req)
	if err != nil {
		return PaymentIntentResult{}, fmt.Errorf("%w: %w", ErrGateway, err)
	}

	payment, err := s.recordIntent(ctx, order, intent, receiptEmail)
	if err != nil {
		return PaymentIntentResult{}, err
	}

	s.logger(ctx, "payments.created", map[string]any{
		"paymentID": payment.ID,
		"intentID":  payment.IntentID,
		"orderID":   order.ID,
		"amount":    payment.Amount.StringFixed(2),
	})
	return PaymentIntentResult{
		PaymentID:    payment.ID,
		IntentID:     payment.IntentID,
		ClientSecret: payment.ClientSecret,
		Amount:       payment.Amount,
		Currency:     payment.Currency,
		Status:       payment.Status,
	}, nil
}

// recordIntent returns the payment for intent, inserting it on first sight.
func (s *paymentService) recordIntent(ctx context.Context, order Order, intent payments.Intent, receiptEmail string) (Payment, error) {
	payment, err := s.payments.FindByIntentID(ctx, intent.ID)
	if err == nil {
		return payment, nil
	}
	if !isRepoNotFound(err) {
		return Payment{}, mapRepositoryError(err, nil)
	}

	now := s.now()
	currency := firstNonEmpty(intent.Currency, s.currency)
	payment = Payment{
		ID:           paymentIDPrefix + s.newID(),
		OrderID:      order.ID,
		IntentID:     intent.ID,
		Amount:       order.Total,
		Currency:     currency,
		Status:       domain.PaymentStatusCreated,
		ClientSecret: intent.ClientSecret,
		ReceiptEmail: receiptEmail,
		Metadata: map[string]any{
			"order_id":     order.ID,
			"order_number": order.OrderNumber,
			"user_id":      order.UserID,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.payments.Insert(ctx, payment); err != nil {
		if isRepoConflict(err) {
			stored, findErr := s.payments.FindByIntentID(ctx, intent.ID)
			if findErr != nil {
				return Payment{}, mapRepositoryError(findErr, ErrPaymentNotFound)
			}
			return stored, nil
		}
		return Payment{}, mapRepositoryError(err, nil)
	}
	return payment, nil
}

// ConfirmPayment re-reads the intent from the gateway and applies its outcome.
func (s *paymentService) ConfirmPayment(ctx context.Context, cmd ConfirmPaymentCommand) (ConfirmPaymentResult, error) {
	intentID := strings.TrimSpace(cmd.IntentID)
	if intentID == "" {
		return ConfirmPaymentResult{}, fmt.Errorf("%w: payment intent id is required", ErrValidation)
	}

	payment, err := s.payments.FindByIntentID(ctx, intentID)
	if err != nil {
		return ConfirmPaymentResult{}, mapRepositoryError(err, ErrPaymentNotFound)
	}
	order, err := s.orders.FindByID(ctx, payment.OrderID)
	if err != nil {
		return ConfirmPaymentResult{}, mapRepositoryError(err, ErrOrderNotFound)
	}
	if order.UserID != strings.TrimSpace(cmd.UserID) {
		return ConfirmPaymentResult{}, ErrForbidden
	}

	intent, err := s.gateway.RetrieveIntent(ctx, intentID)
	if err != nil {
		return ConfirmPaymentResult{}, fmt.Errorf("%w: %w", ErrGateway, err)
	}
	if intent.PaymentMethodID == "" {
		intent.PaymentMethodID = strings.TrimSpace(cmd.PaymentMethodID)
	}

	switch intent.Status {
	case payments.IntentStatusSucceeded:
		settled, _, err := s.settler.settleSucceeded(ctx, intent)
		if err != nil {
			return ConfirmPaymentResult{}, err
		}
		return ConfirmPaymentResult{Payment: settled}, nil
	case payments.IntentStatusRequiresAction:
		updated, err := s.markRequiresAction(ctx, intent)
		if err != nil {
			return ConfirmPaymentResult{}, err
		}
		return ConfirmPaymentResult{
			Payment:        updated,
			RequiresAction: true,
			ClientSecret:   firstNonEmpty(intent.ClientSecret, updated.ClientSecret),
		}, nil
	case payments.IntentStatusRequiresPaymentMethod:
		return ConfirmPaymentResult{}, ErrPaymentMethodRequired
	default:
		s.logger(ctx, "payments.confirm.unexpected_status", map[string]any{
			"paymentID": payment.ID,
			"intentID":  intentID,
			"status":    string(intent.Status),
		})
		return ConfirmPaymentResult{}, fmt.Errorf("%w: %s", ErrUnexpectedGatewayStatus, intent.Status)
	}
}

func (s *paymentService) markRequiresAction(ctx context.Context, intent payments.Intent) (Payment, error) {
	var payment Payment
	err := s.settler.unit.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		payment, err = s.payments.FindByIntentIDForUpdate(txCtx, intent.ID)
		if err != nil {
			return mapRepositoryError(err, ErrPaymentNotFound)
		}
		if payment.Status.Settled() || payment.Status == domain.PaymentStatusRequiresAction {
			return nil
		}
		payment.Status = domain.PaymentStatusRequiresAction
		if intent.PaymentMethodID != "" {
			payment.PaymentMethodID = intent.PaymentMethodID
		}
		payment.UpdatedAt = s.now()
		return mapRepositoryError(s.payments.Update(txCtx, payment), ErrPaymentNotFound)
	})
	return payment, err
}

// GetPaymentForOrder returns the newest payment attempt of an order.
func (s *paymentService) GetPaymentForOrder(ctx context.Context, actor Actor, orderID string) (Payment, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Payment{}, fmt.Errorf("%w: order id is required", ErrValidation)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Payment{}, mapRepositoryError(err, ErrOrderNotFound)
	}
	if !canAccessOrder(actor, order) {
		return Payment{}, ErrOrderNotFound
	}
	list, err := s.payments.ListByOrder(ctx, order.ID)
	if err != nil {
		return Payment{}, mapRepositoryError(err, nil)
	}
	if len(list) == 0 {
		return Payment{}, ErrPaymentNotFound
	}
	return list[0], nil
}

// paymentIdempotencyKey derives the gateway key from every parameter sent with the intent, so a
// retry with a different receipt email opens a new intent instead of being rejected as a
// conflicting reuse of the key.
func paymentIdempotencyKey(orderID string, req payments.CreateIntentRequest) string {
	parts := []string{orderID, strconv.FormatInt(req.AmountMinor, 10), req.Currency, req.ReceiptEmail}
	return uuid.NewSHA1(paymentKeyNamespace, []byte(strings.Join(parts, ":"))).String()
}
