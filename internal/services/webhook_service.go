package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/cloth-shop/api/internal/domain"
	"github.com/cloth-shop/api/internal/payments"
	"github.com/cloth-shop/api/internal/repositories"
)

const defaultPaymentFailureMessage = "Payment failed"

// WebhookServiceDeps bundles collaborators required to construct the webhook service.
type WebhookServiceDeps struct {
	Orders      repositories.OrderRepository
	Payments    repositories.PaymentRepository
	Refunds     repositories.RefundRepository
	Tracking    repositories.OrderTrackingRepository
	UnitOfWork  repositories.UnitOfWork
	Gateway     payments.Gateway
	Clock       func() time.Time
	IDGenerator func() string
	Events      EventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type webhookService struct {
	orders   repositories.OrderRepository
	payments repositories.PaymentRepository
	refunds  repositories.RefundRepository
	unit     repositories.UnitOfWork
	gateway  payments.Gateway
	now      func() time.Time
	settler  *settler
	events   eventSink
	logger   logFunc
}

// NewWebhookService wires dependencies into a concrete WebhookService implementation.
func NewWebhookService(deps WebhookServiceDeps) (WebhookService, error) {
	switch {
	case deps.Orders == nil:
		return nil, errors.New("webhook service: order repository is required")
	case deps.Payments == nil:
		return nil, errors.New("webhook service: payment repository is required")
	case deps.Refunds == nil:
		return nil, errors.New("webhook service: refund repository is required")
	case deps.Tracking == nil:
		return nil, errors.New("webhook service: tracking repository is required")
	case deps.Gateway == nil:
		return nil, errors.New("webhook service: gateway is required")
	}
	logger := defaultLogger(deps.Logger)
	now := defaultClock(deps.Clock)
	newID := defaultIDGenerator(deps.IDGenerator)
	return &webhookService{
		orders:   deps.Orders,
		payments: deps.Payments,
		refunds:  deps.Refunds,
		unit:     defaultUnitOfWork(deps.UnitOfWork),
		gateway:  deps.Gateway,
		now:      now,
		settler:  newSettler(deps.UnitOfWork, deps.Orders, deps.Payments, deps.Tracking, now, newID, deps.Events, logger),
		events:   eventSink{publisher: deps.Events, logger: logger},
		logger:   logger,
	}, nil
}

// HandleWebhook verifies and applies one gateway notification. Redelivered events, events for
// unknown objects and unhandled types are acknowledged without changes.
func (s *webhookService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.gateway.ParseEvent(ctx, payload, signature)
	if err != nil {
		s.logger(ctx, "webhook.rejected", map[string]any{"error": err.Error()})
		if errors.Is(err, payments.ErrSignatureInvalid) {
			return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
		}
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	s.logger(ctx, "webhook.received", map[string]any{
		"eventID":   event.ID,
		"eventType": event.Type,
	})

	switch event.Type {
	case payments.EventPaymentIntentSucceeded:
		err = s.handleIntentSucceeded(ctx, event)
	case payments.EventPaymentIntentPaymentFailed:
		err = s.handleIntentFailed(ctx, event)
	case payments.EventChargeRefunded:
		err = s.handleChargeRefunded(ctx, event)
	case payments.EventChargeRefundUpdated:
		err = s.handleRefundUpdated(ctx, event)
	case payments.EventChargeDisputeCreated:
		s.logger(ctx, "webhook.dispute_created", map[string]any{"eventID": event.ID})
	default:
		s.logger(ctx, "webhook.unhandled", map[string]any{
			"eventID":   event.ID,
			"eventType": event.Type,
		})
	}
	if err != nil {
		s.logger(ctx, "webhook.failed", map[string]any{
			"eventID":   event.ID,
			"eventType": event.Type,
			"error":     err.Error(),
		})
		return err
	}

	s.logger(ctx, "webhook.processed", map[string]any{
		"eventID":   event.ID,
		"eventType": event.Type,
	})
	return nil
}

func (s *webhookService) handleIntentSucceeded(ctx context.Context, event payments.Event) error {
	if event.Intent == nil {
		return fmt.Errorf("%w: event %s has no payment intent", ErrValidation, event.ID)
	}
	_, _, err := s.settler.settleSucceeded(ctx, *event.Intent)
	if errors.Is(err, ErrPaymentNotFound) {
		s.ignore(ctx, event, "unknown payment intent", event.Intent.ID)
		return nil
	}
	return err
}

func (s *webhookService) handleIntentFailed(ctx context.Context, event payments.Event) error {
	if event.Intent == nil {
		return fmt.Errorf("%w: event %s has no payment intent", ErrValidation, event.ID)
	}
	intent := *event.Intent

	var (
		payment Payment
		applied bool
	)
	err := s.unit.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		applied = false
		payment, err = s.payments.FindByIntentIDForUpdate(txCtx, intent.ID)
		if err != nil {
			return mapRepositoryError(err, ErrPaymentNotFound)
		}
		if payment.Status.Settled() || payment.Status == domain.PaymentStatusFailed {
			return nil
		}
		now := s.now()
		payment.Status = domain.PaymentStatusFailed
		payment.ErrorMessage = firstNonEmpty(intent.LastErrorMessage, defaultPaymentFailureMessage)
		failedAt := now
		payment.FailedAt = &failedAt
		payment.UpdatedAt = now
		if err := s.payments.Update(txCtx, payment); err != nil {
			return mapRepositoryError(err, ErrPaymentNotFound)
		}
		applied = true
		return nil
	})
	if errors.Is(err, ErrPaymentNotFound) {
		s.ignore(ctx, event, "unknown payment intent", intent.ID)
		return nil
	}
	if err != nil || !applied {
		return err
	}

	order, err := s.orders.FindByID(ctx, payment.OrderID)
	if err != nil {
		return nil
	}
	s.events.publish(ctx, OrderEvent{
		Type:          EventPaymentFailed,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		CurrentStatus: string(order.Status),
		OccurredAt:    payment.UpdatedAt,
		Metadata: map[string]any{
			"paymentID": payment.ID,
			"error":     payment.ErrorMessage,
		},
	})
	return nil
}

// handleChargeRefunded settles the processing refund of the charge's payment and marks the
// payment and order refunded.
func (s *webhookService) handleChargeRefunded(ctx context.Context, event payments.Event) error {
	if event.Charge == nil {
		return fmt.Errorf("%w: event %s has no charge", ErrValidation, event.ID)
	}
	charge := *event.Charge

	paid, err := s.payments.FindByChargeID(ctx, charge.ID)
	if err != nil {
		if isRepoNotFound(err) {
			s.ignore(ctx, event, "unknown charge", charge.ID)
			return nil
		}
		return mapRepositoryError(err, nil)
	}

	var (
		refund   Refund
		order    Order
		previous domain.OrderStatus
		applied  bool
	)
	err = s.unit.RunInTx(ctx, func(txCtx context.Context) error {
		applied = false
		payment, err := s.payments.FindByIDForUpdate(txCtx, paid.ID)
		if err != nil {
			return mapRepositoryError(err, ErrPaymentNotFound)
		}
		list, err := s.refunds.ListByPayment(txCtx, payment.ID)
		if err != nil {
			return mapRepositoryError(err, nil)
		}
		found := false
		for _, r := range list {
			if r.Status == domain.RefundStatusProcessing {
				refund, found = r, true
				break
			}
		}
		if !found {
			return nil
		}

		now := s.now()
		refund.Status = domain.RefundStatusSucceeded
		if refund.GatewayRefundID == "" && len(charge.RefundIDs) > 0 {
			refund.GatewayRefundID = charge.RefundIDs[0]
		}
		completedAt := now
		refund.CompletedAt = &completedAt
		refund.UpdatedAt = now
		if err := s.refunds.Update(txCtx, refund); err != nil {
			return mapRepositoryError(err, ErrRefundNotFound)
		}

		payment.Status = domain.PaymentStatusRefunded
		payment.UpdatedAt = now
		if err := s.payments.Update(txCtx, payment); err != nil {
			return mapRepositoryError(err, ErrPaymentNotFound)
		}

		order, err = s.orders.FindByIDForUpdate(txCtx, payment.OrderID)
		if err != nil {
			return mapRepositoryError(err, ErrOrderNotFound)
		}
		previous = order.Status
		if domain.CanTransition(order.Status, domain.OrderStatusRefunded) {
			order.Status = domain.OrderStatusRefunded
		}
		order.PaymentStatus = domain.OrderPaymentRefunded
		order.UpdatedAt = now
		if err := s.orders.Update(txCtx, order); err != nil {
			return mapRepositoryError(err, ErrOrderNotFound)
		}
		applied = true
		return nil
	})
	if err != nil {
		return err
	}
	if !applied {
		s.ignore(ctx, event, "no processing refund", charge.ID)
		return nil
	}

	s.events.publish(ctx, OrderEvent{
		Type:           EventRefundSucceeded,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		UserID:         order.UserID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(order.Status),
		OccurredAt:     refund.UpdatedAt,
		Metadata: map[string]any{
			"refundID":        refund.ID,
			"gatewayRefundID": refund.GatewayRefundID,
			"amount":          refund.Amount.StringFixed(2),
		},
	})
	return nil
}

// handleRefundUpdated records asynchronous refund failures reported after acceptance.
func (s *webhookService) handleRefundUpdated(ctx context.Context, event payments.Event) error {
	if event.Refund == nil {
		return fmt.Errorf("%w: event %s has no refund", ErrValidation, event.ID)
	}
	gatewayRefund := *event.Refund
	if gatewayRefund.Status != payments.RefundStatusFailed {
		s.ignore(ctx, event, "refund status "+string(gatewayRefund.Status), gatewayRefund.ID)
		return nil
	}

	var (
		refund  Refund
		applied bool
	)
	err := s.unit.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		applied = false
		refund, err = s.refunds.FindByGatewayID(txCtx, gatewayRefund.ID)
		if err != nil {
			return mapRepositoryError(err, ErrRefundNotFound)
		}
		// Lock the payment so this write serialises with refund requests and settlement.
		if _, err := s.payments.FindByIDForUpdate(txCtx, refund.PaymentID); err != nil {
			return mapRepositoryError(err, ErrPaymentNotFound)
		}
		if refund.Status != domain.RefundStatusProcessing && refund.Status != domain.RefundStatusRequested {
			return nil
		}
		refund.Status = domain.RefundStatusFailed
		refund.ErrorMessage = firstNonEmpty(gatewayRefund.FailureReason, "Refund failed")
		refund.UpdatedAt = s.now()
		if err := s.refunds.Update(txCtx, refund); err != nil {
			return mapRepositoryError(err, ErrRefundNotFound)
		}
		applied = true
		return nil
	})
	if errors.Is(err, ErrRefundNotFound) {
		s.ignore(ctx, event, "unknown refund", gatewayRefund.ID)
		return nil
	}
	if err != nil || !applied {
		return err
	}

	order, err := s.orders.FindByID(ctx, refund.OrderID)
	if err != nil {
		return nil
	}
	s.events.publish(ctx, OrderEvent{
		Type:          EventRefundFailed,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		CurrentStatus: string(order.Status),
		OccurredAt:    refund.UpdatedAt,
		Metadata: map[string]any{
			"refundID": refund.ID,
			"error":    refund.ErrorMessage,
		},
	})
	return nil
}

func (s *webhookService) ignore(ctx context.Context, event payments.Event, reason, objectID string) {
	s.logger(ctx, "webhook.ignored", map[string]any{
		"eventID":   event.ID,
		"eventType": event.Type,
		"reason":    reason,
		"objectID":  objectID,
	})
}
