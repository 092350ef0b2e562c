package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/cloth-shop/api/internal/domain"
	"github.com/cloth-shop/api/internal/payments"
)

func intentEvent(eventType, intentID string, status payments.IntentStatus) payments.Event {
	return payments.Event{
		ID:   "evt_" + intentID,
		Type: eventType,
		Intent: &payments.Intent{
			ID:             intentID,
			Status:         status,
			LatestChargeID: "ch_" + intentID,
		},
	}
}

func TestWebhookServiceRejectsBadPayloads(t *testing.T) {
	env := newTestEnv(t)
	order := env.placeOrder(t, "500.00")
	ctx := context.Background()

	env.gateway.parseErr = fmt.Errorf("%w: no valid signature", payments.ErrSignatureInvalid)
	err := env.webhooks.HandleWebhook(ctx, []byte(`{}`), "t=1,v1=bad")
	assert.ErrorIs(t, err, ErrSignatureInvalid)

	env.gateway.parseErr = fmt.Errorf("%w: truncated", payments.ErrMalformedEvent)
	err = env.webhooks.HandleWebhook(ctx, []byte(`{`), "t=1,v1=ok")
	assert.ErrorIs(t, err, ErrValidation)
	assert.NotErrorIs(t, err, ErrSignatureInvalid)

	assert.Equal(t, domain.OrderStatusPending, env.store.orders[order.ID].Status)
	assert.Len(t, env.store.trackingFor(order.ID), 1)
}

func TestWebhookServiceIntentSucceededIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	order := env.placeOrder(t, "500.00")
	ctx := context.Background()
	created, err := env.payments.CreatePayment(ctx, CreatePaymentCommand{UserID: testUser, OrderID: order.ID})
	require.NoError(t, err)

	env.gateway.event = intentEvent(payments.EventPaymentIntentSucceeded, created.IntentID, payments.IntentStatusSucceeded)
	require.NoError(t, env.webhooks.HandleWebhook(ctx, []byte(`{}`), "sig"))
	require.NoError(t, env.webhooks.HandleWebhook(ctx, []byte(`{}`), "sig"))

	// Client confirmation racing the webhook is a no-op too.
	env.gateway.setIntent(created.IntentID, payments.IntentStatusSucceeded, "ch_"+created.IntentID)
	_, err = env.payments.ConfirmPayment(ctx, ConfirmPaymentCommand{UserID: testUser, IntentID: created.IntentID})
	require.NoError(t, err)

	payment := env.store.payments[created.PaymentID]
	assert.Equal(t, domain.PaymentStatusSucceeded, payment.Status)
	assert.Equal(t, "ch_"+created.IntentID, payment.ChargeID)
	assert.Equal(t, domain.OrderStatusConfirmed, env.store.orders[order.ID].Status)

	entries := env.store.trackingFor(order.ID)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.TrackingPaymentConfirmed, entries[1].Status)
	assert.Equal(t, []string{EventOrderPlaced, EventOrderConfirmed}, env.events.types())
}

func TestWebhookServiceIntentSucceededAfterCancellation(t *testing.T) {
	env := newTestEnv(t)
	order := env.placeOrder(t, "500.00")
	ctx := context.Background()
	created, err := env.payments.CreatePayment(ctx, CreatePaymentCommand{UserID: testUser, OrderID: order.ID})
	require.NoError(t, err)
	_, err = env.orders.CancelOrder(ctx, CancelOrderCommand{Actor: Actor{ID: testUser}, OrderID: order.ID})
	require.NoError(t, err)

	env.gateway.event = intentEvent(payments.EventPaymentIntentSucceeded, created.IntentID, payments.IntentStatusSucceeded)
	require.NoError(t, env.webhooks.HandleWebhook(ctx, []byte(`{}`), "sig"))

	stored := env.store.orders[order.ID]
	assert.Equal(t, domain.OrderStatusCancelled, stored.Status)
	assert.Equal(t, domain.OrderPaymentCompleted, stored.PaymentStatus)
	assert.Equal(t, domain.PaymentStatusSucceeded, env.store.payments[created.PaymentID].Status)
	assert.NotContains(t, env.events.types(), EventOrderConfirmed)
}

func TestWebhookServiceIntentFailed(t *testing.T) {
	env := newTestEnv(t)
	order := env.placeOrder(t, "500.00")
	ctx := context.Background()
	created, err := env.payments.CreatePayment(ctx, CreatePaymentCommand{UserID: testUser, OrderID: order.ID})
	require.NoError(t, err)

	event := intentEvent(payments.EventPaymentIntentPaymentFailed, created.IntentID, payments.IntentStatusRequiresPaymentMethod)
	event.Intent.LastErrorMessage = "Your card was declined."
	env.gateway.event = event
	require.NoError(t, env.webhooks.HandleWebhook(ctx, []byte(`{}`), "sig"))

	payment := env.store.payments[created.PaymentID]
	assert.Equal(t, domain.PaymentStatusFailed, payment.Status)
	assert.Equal(t, "Your card was declined.", payment.ErrorMessage)
	require.NotNil(t, payment.FailedAt)
	assert.Equal(t, domain.OrderStatusPending, env.store.orders[order.ID].Status)
	assert.Equal(t, []string{EventOrderPlaced, EventPaymentFailed}, env.events.types())

	require.NoError(t, env.webhooks.HandleWebhook(ctx, []byte(`{}`), "sig"))
	assert.Equal(t, []string{EventOrderPlaced, EventPaymentFailed}, env.events.types())
}

func TestWebhookServiceIntentFailedAfterSuccessIsIgnored(t *testing.T) {
	env := newTestEnv(t)
	order, payment := env.paidOrder(t, "500.00")
	ctx := context.Background()

	env.gateway.event = intentEvent(payments.EventPaymentIntentPaymentFailed, payment.IntentID, payments.IntentStatusRequiresPaymentMethod)
	require.NoError(t, env.webhooks.HandleWebhook(ctx, []byte(`{}`), "sig"))

	assert.Equal(t, domain.PaymentStatusSucceeded, env.store.payments[payment.ID].Status)
	assert.Equal(t, domain.OrderStatusConfirmed, env.store.orders[order.ID].Status)
	assert.NotContains(t, env.events.types(), EventPaymentFailed)
}

func TestWebhookServiceIgnoresUnknownObjects(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	events := []payments.Event{
		intentEvent(payments.EventPaymentIntentSucceeded, "pi_unknown", payments.IntentStatusSucceeded),
		intentEvent(payments.EventPaymentIntentPaymentFailed, "pi_unknown", payments.IntentStatusCanceled),
		{ID: "evt_charge", Type: payments.EventChargeRefunded, Charge: &payments.Charge{ID: "ch_unknown", Refunded: true}},
		{ID: "evt_refund", Type: payments.EventChargeRefundUpdated, Refund: &payments.Refund{ID: "re_unknown", Status: payments.RefundStatusFailed}},
		{ID: "evt_other", Type: "customer.created"},
		{ID: "evt_dispute", Type: payments.EventChargeDisputeCreated},
	}
	for _, event := range events {
		env.gateway.event = event
		assert.NoError(t, env.webhooks.HandleWebhook(ctx, []byte(`{}`), "sig"), event.Type)
	}
	assert.Empty(t, env.store.payments)
	assert.Empty(t, env.events.types())
}

func TestWebhookServiceRequiresEventObject(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.event = payments.Event{ID: "evt_1", Type: payments.EventPaymentIntentSucceeded}

	err := env.webhooks.HandleWebhook(context.Background(), []byte(`{}`), "sig")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestWebhookServiceChargeRefunded(t *testing.T) {
	env := newTestEnv(t)
	order, payment := env.paidOrder(t, "500.00")
	ctx := context.Background()
	refund, err := env.refunds.RequestRefund(ctx, RequestRefundCommand{UserID: testUser, OrderID: order.ID, Reason: domain.RefundReasonReturn})
	require.NoError(t, err)

	env.gateway.event = payments.Event{
		ID:     "evt_refunded",
		Type:   payments.EventChargeRefunded,
		Charge: &payments.Charge{ID: payment.ChargeID, PaymentIntentID: payment.IntentID, Refunded: true, RefundIDs: []string{refund.GatewayRefundID}},
	}
	require.NoError(t, env.webhooks.HandleWebhook(ctx, []byte(`{}`), "sig"))

	storedRefund := env.store.refunds[refund.ID]
	assert.Equal(t, domain.RefundStatusSucceeded, storedRefund.Status)
	require.NotNil(t, storedRefund.CompletedAt)
	assert.Equal(t, domain.PaymentStatusRefunded, env.store.payments[payment.ID].Status)
	storedOrder := env.store.orders[order.ID]
	assert.Equal(t, domain.OrderStatusRefunded, storedOrder.Status)
	assert.Equal(t, domain.OrderPaymentRefunded, storedOrder.PaymentStatus)
	assert.Equal(t, []string{EventOrderPlaced, EventOrderConfirmed, EventRefundRequested, EventRefundSucceeded}, env.events.types())

	require.NoError(t, env.webhooks.HandleWebhook(ctx, []byte(`{}`), "sig"))
	assert.Len(t, env.events.types(), 4)

	_, err = env.refunds.RequestRefund(ctx, RequestRefundCommand{UserID: testUser, OrderID: order.ID, Reason: domain.RefundReasonReturn})
	assert.ErrorIs(t, err, ErrNoSuccessfulPayment)
}

func TestWebhookServiceRefundedPaymentDoesNotMoveBack(t *testing.T) {
	env := newTestEnv(t)
	order, payment := env.paidOrder(t, "500.00")
	ctx := context.Background()
	refund, err := env.refunds.RequestRefund(ctx, RequestRefundCommand{UserID: testUser, OrderID: order.ID, Reason: domain.RefundReasonReturn})
	require.NoError(t, err)
	env.gateway.event = payments.Event{
		ID:     "evt_refunded",
		Type:   payments.EventChargeRefunded,
		Charge: &payments.Charge{ID: payment.ChargeID, PaymentIntentID: payment.IntentID, Refunded: true, RefundIDs: []string{refund.GatewayRefundID}},
	}
	require.NoError(t, env.webhooks.HandleWebhook(ctx, []byte(`{}`), "sig"))
	eventsAfterRefund := env.events.types()

	env.gateway.event = intentEvent(payments.EventPaymentIntentSucceeded, payment.IntentID, payments.IntentStatusSucceeded)
	require.NoError(t, env.webhooks.HandleWebhook(ctx, []byte(`{}`), "sig"))

	failed := intentEvent(payments.EventPaymentIntentPaymentFailed, payment.IntentID, payments.IntentStatusRequiresPaymentMethod)
	failed.Intent.LastErrorMessage = "late failure"
	env.gateway.event = failed
	require.NoError(t, env.webhooks.HandleWebhook(ctx, []byte(`{}`), "sig"))

	// The gateway keeps reporting the intent as succeeded after a refund.
	env.gateway.setIntent(payment.IntentID, payments.IntentStatusSucceeded, payment.ChargeID)
	confirmed, err := env.payments.ConfirmPayment(ctx, ConfirmPaymentCommand{UserID: testUser, IntentID: payment.IntentID})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusRefunded, confirmed.Payment.Status)

	stored := env.store.payments[payment.ID]
	assert.Equal(t, domain.PaymentStatusRefunded, stored.Status)
	assert.Empty(t, stored.ErrorMessage)
	storedOrder := env.store.orders[order.ID]
	assert.Equal(t, domain.OrderStatusRefunded, storedOrder.Status)
	assert.Equal(t, domain.OrderPaymentRefunded, storedOrder.PaymentStatus)
	assert.Equal(t, eventsAfterRefund, env.events.types())
}

func TestWebhookServiceRefundFailed(t *testing.T) {
	env := newTestEnv(t)
	order, payment := env.paidOrder(t, "500.00")
	ctx := context.Background()
	refund, err := env.refunds.RequestRefund(ctx, RequestRefundCommand{UserID: testUser, OrderID: order.ID, Reason: domain.RefundReasonOther})
	require.NoError(t, err)

	env.gateway.event = payments.Event{
		ID:     "evt_refund_failed",
		Type:   payments.EventChargeRefundUpdated,
		Refund: &payments.Refund{ID: refund.GatewayRefundID, Status: payments.RefundStatusFailed, ChargeID: payment.ChargeID},
	}
	require.NoError(t, env.webhooks.HandleWebhook(ctx, []byte(`{}`), "sig"))

	stored := env.store.refunds[refund.ID]
	assert.Equal(t, domain.RefundStatusFailed, stored.Status)
	assert.Equal(t, "Refund failed", stored.ErrorMessage)
	assert.Equal(t, domain.PaymentStatusSucceeded, env.store.payments[payment.ID].Status)
	assert.Equal(t, domain.OrderStatusConfirmed, env.store.orders[order.ID].Status)
	assert.Contains(t, env.events.types(), EventRefundFailed)

	retried, err := env.refunds.RequestRefund(ctx, RequestRefundCommand{UserID: testUser, OrderID: order.ID, Reason: domain.RefundReasonOther})
	require.NoError(t, err)
	assert.Equal(t, domain.RefundStatusProcessing, retried.Status)
}

func TestWebhookServiceRefundUpdatedNonFailureIsIgnored(t *testing.T) {
	env := newTestEnv(t)
	order, _ := env.paidOrder(t, "500.00")
	ctx := context.Background()
	refund, err := env.refunds.RequestRefund(ctx, RequestRefundCommand{UserID: testUser, OrderID: order.ID, Reason: domain.RefundReasonOther})
	require.NoError(t, err)

	env.gateway.event = payments.Event{
		ID:     "evt_refund_pending",
		Type:   payments.EventChargeRefundUpdated,
		Refund: &payments.Refund{ID: refund.GatewayRefundID, Status: payments.RefundStatusPending},
	}
	require.NoError(t, env.webhooks.HandleWebhook(ctx, []byte(`{}`), "sig"))
	assert.Equal(t, domain.RefundStatusProcessing, env.store.refunds[refund.ID].Status)
}
