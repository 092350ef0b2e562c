package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/cloth-shop/api/internal/domain"
	"github.com/cloth-shop/api/internal/payments"
	"github.com/cloth-shop/api/internal/repositories"
)

const maxRefundDescriptionLength = 1000

// RefundServiceDeps bundles collaborators required to construct the refund service.
type RefundServiceDeps struct {
	Orders      repositories.OrderRepository
	Payments    repositories.PaymentRepository
	Refunds     repositories.RefundRepository
	UnitOfWork  repositories.UnitOfWork
	Gateway     payments.Gateway
	Clock       func() time.Time
	IDGenerator func() string
	Events      EventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type refundService struct {
	orders   repositories.OrderRepository
	payments repositories.PaymentRepository
	refunds  repositories.RefundRepository
	unit     repositories.UnitOfWork
	gateway  payments.Gateway
	now      func() time.Time
	newID    func() string
	events   eventSink
	logger   logFunc
}

// NewRefundService wires dependencies into a concrete RefundService implementation.
func NewRefundService(deps RefundServiceDeps) (RefundService, error) {
	switch {
	case deps.Orders == nil:
		return nil, errors.New("refund service: order repository is required")
	case deps.Payments == nil:
		return nil, errors.New("refund service: payment repository is required")
	case deps.Refunds == nil:
		return nil, errors.New("refund service: refund repository is required")
	case deps.Gateway == nil:
		return nil, errors.New("refund service: gateway is required")
	}
	logger := defaultLogger(deps.Logger)
	return &refundService{
		orders:   deps.Orders,
		payments: deps.Payments,
		refunds:  deps.Refunds,
		unit:     defaultUnitOfWork(deps.UnitOfWork),
		gateway:  deps.Gateway,
		now:      defaultClock(deps.Clock),
		newID:    defaultIDGenerator(deps.IDGenerator),
		events:   eventSink{publisher: deps.Events, logger: logger},
		logger:   logger,
	}, nil
}

// RequestRefund refunds the order total against its latest succeeded payment. The payment row
// stays locked from the in-flight check until the gateway has answered, so concurrent requests
// for the same payment are serialised. A gateway rejection is persisted as a failed refund and
// returned to the caller.
func (s *refundService) RequestRefund(ctx context.Context, cmd RequestRefundCommand) (Refund, error) {
	reason := domain.RefundReason(strings.ToLower(strings.TrimSpace(string(cmd.Reason))))
	if !reason.Valid() {
		return Refund{}, fmt.Errorf("%w: unsupported refund reason %q", ErrValidation, cmd.Reason)
	}
	description := sanitizeText(cmd.Description)
	if len(description) > maxRefundDescriptionLength {
		return Refund{}, fmt.Errorf("%w: description must be %d characters or fewer", ErrValidation, maxRefundDescriptionLength)
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Refund{}, fmt.Errorf("%w: order id is required", ErrValidation)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Refund{}, mapRepositoryError(err, ErrOrderNotFound)
	}
	if order.UserID != strings.TrimSpace(cmd.UserID) {
		return Refund{}, ErrForbidden
	}

	paid, err := s.latestSucceededPayment(ctx, order.ID)
	if err != nil {
		return Refund{}, err
	}

	refundID := refundIDPrefix + s.newID()
	var (
		refund     Refund
		gatewayErr error
	)
	err = s.unit.RunInTx(ctx, func(txCtx context.Context) error {
		gatewayErr = nil
		payment, err := s.payments.FindByIDForUpdate(txCtx, paid.ID)
		if err != nil {
			return mapRepositoryError(err, ErrPaymentNotFound)
		}
		if payment.Status != domain.PaymentStatusSucceeded {
			return ErrNoSuccessfulPayment
		}
		existing, err := s.refunds.ListByPayment(txCtx, payment.ID)
		if err != nil {
			return mapRepositoryError(err, nil)
		}
		for _, r := range existing {
			if r.InFlight() {
				return ErrRefundInProgress
			}
		}

		now := s.now()
		refund = Refund{
			ID:          refundID,
			PaymentID:   payment.ID,
			OrderID:     order.ID,
			Amount:      order.Total,
			Status:      domain.RefundStatusRequested,
			Reason:      reason,
			Description: description,
			Metadata:    map[string]any{"order_number": order.OrderNumber},
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.refunds.Insert(txCtx, refund); err != nil {
			if isRepoConflict(err) {
				return ErrRefundInProgress
			}
			return mapRepositoryError(err, nil)
		}

		issued, err := s.gateway.IssueRefund(txCtx, payments.RefundRequest{
			ChargeID:       payment.ChargeID,
			AmountMinor:    domain.MinorUnits(refund.Amount, payment.Currency),
			Reason:         string(reason),
			IdempotencyKey: refund.ID,
			Metadata: map[string]string{
				"order_id":  order.ID,
				"refund_id": refund.ID,
			},
		})
		refund.UpdatedAt = s.now()
		if err != nil {
			gatewayErr = err
			refund.Status = domain.RefundStatusFailed
			refund.ErrorMessage = err.Error()
		} else {
			refund.Status = domain.RefundStatusProcessing
			refund.GatewayRefundID = issued.ID
		}
		if err := s.refunds.Update(txCtx, refund); err != nil {
			if isRepoConflict(err) {
				return ErrRefundInProgress
			}
			return mapRepositoryError(err, ErrRefundNotFound)
		}
		return nil
	})
	if err != nil {
		return Refund{}, err
	}
	if gatewayErr != nil {
		s.logger(ctx, "refunds.gateway_failed", map[string]any{
			"refundID": refund.ID,
			"orderID":  order.ID,
			"error":    gatewayErr.Error(),
		})
		return refund, fmt.Errorf("%w: %w", ErrGateway, gatewayErr)
	}

	s.logger(ctx, "refunds.requested", map[string]any{
		"refundID":        refund.ID,
		"gatewayRefundID": refund.GatewayRefundID,
		"orderID":         order.ID,
		"amount":          refund.Amount.StringFixed(2),
	})
	s.events.publish(ctx, OrderEvent{
		Type:          EventRefundRequested,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		CurrentStatus: string(order.Status),
		ActorID:       order.UserID,
		OccurredAt:    refund.UpdatedAt,
		Metadata: map[string]any{
			"refundID": refund.ID,
			"reason":   string(refund.Reason),
			"amount":   refund.Amount.StringFixed(2),
		},
	})
	return refund, nil
}

func (s *refundService) latestSucceededPayment(ctx context.Context, orderID string) (Payment, error) {
	list, err := s.payments.ListByOrder(ctx, orderID)
	if err != nil {
		return Payment{}, mapRepositoryError(err, nil)
	}
	for _, p := range list {
		if p.Status == domain.PaymentStatusSucceeded {
			return p, nil
		}
	}
	return Payment{}, ErrNoSuccessfulPayment
}

// GetRefund returns a refund whose order is visible to the actor.
func (s *refundService) GetRefund(ctx context.Context, actor Actor, refundID string) (Refund, error) {
	refundID = strings.TrimSpace(refundID)
	if refundID == "" {
		return Refund{}, fmt.Errorf("%w: refund id is required", ErrValidation)
	}
	refund, err := s.refunds.FindByID(ctx, refundID)
	if err != nil {
		return Refund{}, mapRepositoryError(err, ErrRefundNotFound)
	}
	order, err := s.orders.FindByID(ctx, refund.OrderID)
	if err != nil {
		return Refund{}, mapRepositoryError(err, ErrRefundNotFound)
	}
	if !canAccessOrder(actor, order) {
		return Refund{}, ErrRefundNotFound
	}
	return refund, nil
}
