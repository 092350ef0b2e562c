package services

import (
	"context"
	"time"

	domain "github.com/cloth-shop/api/internal/domain"
	"github.com/cloth-shop/api/internal/payments"
	"github.com/cloth-shop/api/internal/repositories"
)

// settler applies "payment succeeded" to the payment and its order exactly once. It is shared
// by client confirmation and the payment_intent.succeeded webhook.
type settler struct {
	unit     repositories.UnitOfWork
	orders   repositories.OrderRepository
	payments repositories.PaymentRepository
	tracking repositories.OrderTrackingRepository
	now      func() time.Time
	newID    func() string
	events   eventSink
	logger   logFunc
}

// settleSucceeded marks the payment behind intent as succeeded under a row lock. A payment that
// already succeeded or was refunded is returned unchanged with applied == false. The order moves to confirmed
// only from pending; its payment summary is updated regardless.
func (s *settler) settleSucceeded(ctx context.Context, intent payments.Intent) (Payment, bool, error) {
	var (
		payment   Payment
		order     Order
		applied   bool
		confirmed bool
	)
	now := s.now()
	err := s.unit.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		applied, confirmed = false, false
		payment, err = s.payments.FindByIntentIDForUpdate(txCtx, intent.ID)
		if err != nil {
			return mapRepositoryError(err, ErrPaymentNotFound)
		}
		if payment.Status.Settled() {
			return nil
		}

		payment.Status = domain.PaymentStatusSucceeded
		if intent.LatestChargeID != "" {
			payment.ChargeID = intent.LatestChargeID
		}
		if intent.PaymentMethodID != "" {
			payment.PaymentMethodID = intent.PaymentMethodID
		}
		payment.ErrorMessage = ""
		paidAt := now
		payment.PaidAt = &paidAt
		payment.UpdatedAt = now
		if err := s.payments.Update(txCtx, payment); err != nil {
			if isRepoConflict(err) {
				return ErrAlreadyPaid
			}
			return mapRepositoryError(err, ErrPaymentNotFound)
		}

		order, err = s.orders.FindByIDForUpdate(txCtx, payment.OrderID)
		if err != nil {
			return mapRepositoryError(err, ErrOrderNotFound)
		}
		order.PaymentStatus = domain.OrderPaymentCompleted
		paymentDate := now
		order.PaymentDate = &paymentDate
		order.UpdatedAt = now
		if order.Status == domain.OrderStatusPending {
			order.Status = domain.OrderStatusConfirmed
			confirmed = true
		}
		if err := s.orders.Update(txCtx, order); err != nil {
			return mapRepositoryError(err, ErrOrderNotFound)
		}
		if confirmed {
			status, description, _ := domain.TrackingFor(domain.OrderStatusConfirmed)
			if err := appendTracking(txCtx, s.tracking, order.ID, status, description, trackingIDPrefix+s.newID(), now); err != nil {
				return err
			}
		}
		applied = true
		return nil
	})
	if err != nil {
		return Payment{}, false, err
	}
	if !applied {
		s.logger(ctx, "payments.settlement.skipped", map[string]any{
			"paymentID": payment.ID,
			"intentID":  intent.ID,
		})
		return payment, false, nil
	}

	s.logger(ctx, "payments.settlement.applied", map[string]any{
		"paymentID":      payment.ID,
		"intentID":       intent.ID,
		"orderID":        order.ID,
		"orderConfirmed": confirmed,
	})
	if confirmed {
		s.events.publish(ctx, OrderEvent{
			Type:           EventOrderConfirmed,
			OrderID:        order.ID,
			OrderNumber:    order.OrderNumber,
			UserID:         order.UserID,
			PreviousStatus: string(domain.OrderStatusPending),
			CurrentStatus:  string(order.Status),
			OccurredAt:     now,
			Metadata: map[string]any{
				"paymentID": payment.ID,
				"amount":    payment.Amount.StringFixed(2),
				"currency":  payment.Currency,
			},
		})
	}
	return payment, true, nil
}
