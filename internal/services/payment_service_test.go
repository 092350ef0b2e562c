package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/cloth-shop/api/internal/domain"
	"github.com/cloth-shop/api/internal/payments"
)

func TestPaymentServiceCreatePayment(t *testing.T) {
	env := newTestEnv(t)
	order := env.placeOrder(t, "500.00")
	ctx := context.Background()

	result, err := env.payments.CreatePayment(ctx, CreatePaymentCommand{UserID: testUser, OrderID: order.ID, ReceiptEmail: "asha@example.com"})
	require.NoError(t, err)

	require.Len(t, env.gateway.created, 1)
	req := env.gateway.created[0]
	assert.Equal(t, int64(62500), req.AmountMinor)
	assert.Equal(t, "usd", req.Currency)
	assert.Equal(t, "asha@example.com", req.ReceiptEmail)
	assert.Equal(t, map[string]string{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"user_id":      testUser,
	}, req.Metadata)
	assert.Equal(t, paymentIdempotencyKey(order.ID, req), req.IdempotencyKey)

	assert.Equal(t, "pi_001", result.IntentID)
	assert.Equal(t, "pi_001_secret", result.ClientSecret)
	assert.Equal(t, "625.00", result.Amount.StringFixed(2))
	assert.Equal(t, domain.PaymentStatusCreated, result.Status)

	stored := env.store.payments[result.PaymentID]
	assert.Equal(t, order.ID, stored.OrderID)
	assert.Equal(t, "pi_001", stored.IntentID)
}

func TestPaymentServiceCreatePaymentReusesIntent(t *testing.T) {
	env := newTestEnv(t)
	order := env.placeOrder(t, "500.00")
	ctx := context.Background()

	first, err := env.payments.CreatePayment(ctx, CreatePaymentCommand{UserID: testUser, OrderID: order.ID})
	require.NoError(t, err)
	second, err := env.payments.CreatePayment(ctx, CreatePaymentCommand{UserID: testUser, OrderID: order.ID})
	require.NoError(t, err)

	assert.Equal(t, first.IntentID, second.IntentID)
	assert.Equal(t, first.PaymentID, second.PaymentID)
	assert.Len(t, env.store.payments, 1)
}

func TestPaymentServiceCreatePaymentKeyCoversRequestParameters(t *testing.T) {
	env := newTestEnv(t)
	order := env.placeOrder(t, "500.00")
	ctx := context.Background()

	first, err := env.payments.CreatePayment(ctx, CreatePaymentCommand{UserID: testUser, OrderID: order.ID, ReceiptEmail: "asha@example.com"})
	require.NoError(t, err)
	// The gateway rejects a reused key whose parameters changed, so a new email needs a new key.
	second, err := env.payments.CreatePayment(ctx, CreatePaymentCommand{UserID: testUser, OrderID: order.ID, ReceiptEmail: "billing@example.com"})
	require.NoError(t, err)
	third, err := env.payments.CreatePayment(ctx, CreatePaymentCommand{UserID: testUser, OrderID: order.ID, ReceiptEmail: " Billing@Example.com "})
	require.NoError(t, err)

	require.Len(t, env.gateway.created, 3)
	keys := []string{
		env.gateway.created[0].IdempotencyKey,
		env.gateway.created[1].IdempotencyKey,
		env.gateway.created[2].IdempotencyKey,
	}
	assert.NotEqual(t, keys[0], keys[1])
	assert.Equal(t, keys[1], keys[2])
	assert.NotEqual(t, first.IntentID, second.IntentID)
	assert.Equal(t, second.IntentID, third.IntentID)

	base := payments.CreateIntentRequest{AmountMinor: 62500, Currency: "usd", ReceiptEmail: "asha@example.com"}
	changedAmount := base
	changedAmount.AmountMinor = 62600
	changedCurrency := base
	changedCurrency.Currency = "inr"
	assert.NotEqual(t, paymentIdempotencyKey(order.ID, base), paymentIdempotencyKey(order.ID, changedAmount))
	assert.NotEqual(t, paymentIdempotencyKey(order.ID, base), paymentIdempotencyKey(order.ID, changedCurrency))
	assert.NotEqual(t, paymentIdempotencyKey(order.ID, base), paymentIdempotencyKey("ord_other", base))
}

func TestPaymentServiceCreatePaymentUsesCurrencyMinorUnits(t *testing.T) {
	env := newTestEnv(t)
	order := env.placeOrder(t, "500.00")
	svc, err := NewPaymentService(PaymentServiceDeps{
		Orders:   env.store.orderRepo(),
		Payments: env.store.paymentRepo(),
		Tracking: env.store.trackingRepo(),
		Gateway:  env.gateway,
		Currency: "JPY",
	})
	require.NoError(t, err)

	_, err = svc.CreatePayment(context.Background(), CreatePaymentCommand{UserID: testUser, OrderID: order.ID})
	require.NoError(t, err)
	require.Len(t, env.gateway.created, 1)
	assert.Equal(t, int64(625), env.gateway.created[0].AmountMinor)
	assert.Equal(t, "jpy", env.gateway.created[0].Currency)
}

func TestPaymentServiceCreatePaymentRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("other customer's order", func(t *testing.T) {
		env := newTestEnv(t)
		order := env.placeOrder(t, "500.00")
		_, err := env.payments.CreatePayment(ctx, CreatePaymentCommand{UserID: otherUser, OrderID: order.ID})
		assert.ErrorIs(t, err, ErrOrderNotFound)
		assert.Empty(t, env.gateway.created)
	})

	t.Run("cancelled order", func(t *testing.T) {
		env := newTestEnv(t)
		order := env.placeOrder(t, "500.00")
		_, err := env.orders.CancelOrder(ctx, CancelOrderCommand{Actor: Actor{ID: testUser}, OrderID: order.ID})
		require.NoError(t, err)
		_, err = env.payments.CreatePayment(ctx, CreatePaymentCommand{UserID: testUser, OrderID: order.ID})
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("cash on delivery", func(t *testing.T) {
		env := newTestEnv(t)
		env.store.addProduct("prod-1", "Oxford Shirt", "500.00")
		_, err := env.carts.AddItem(ctx, AddCartItemCommand{UserID: testUser, ProductID: "prod-1", Quantity: 1})
		require.NoError(t, err)
		order, err := env.orders.PlaceOrder(ctx, PlaceOrderCommand{UserID: testUser, AddressID: testAddress})
		require.NoError(t, err)
		_, err = env.payments.CreatePayment(ctx, CreatePaymentCommand{UserID: testUser, OrderID: order.ID})
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("already paid", func(t *testing.T) {
		env := newTestEnv(t)
		order, _ := env.paidOrder(t, "500.00")
		_, err := env.payments.CreatePayment(ctx, CreatePaymentCommand{UserID: testUser, OrderID: order.ID})
		assert.ErrorIs(t, err, ErrAlreadyPaid)
	})

	t.Run("gateway failure", func(t *testing.T) {
		env := newTestEnv(t)
		order := env.placeOrder(t, "500.00")
		env.gateway.createErr = errors.New("card network unreachable")
		_, err := env.payments.CreatePayment(ctx, CreatePaymentCommand{UserID: testUser, OrderID: order.ID})
		assert.ErrorIs(t, err, ErrGateway)
		assert.Empty(t, env.store.payments)
	})
}

func TestPaymentServiceConfirmSucceededSettlesOnce(t *testing.T) {
	env := newTestEnv(t)
	order := env.placeOrder(t, "500.00")
	ctx := context.Background()

	created, err := env.payments.CreatePayment(ctx, CreatePaymentCommand{UserID: testUser, OrderID: order.ID})
	require.NoError(t, err)
	env.gateway.setIntent(created.IntentID, payments.IntentStatusSucceeded, "ch_1")

	result, err := env.payments.ConfirmPayment(ctx, ConfirmPaymentCommand{UserID: testUser, IntentID: created.IntentID, PaymentMethodID: "pm_card_visa"})
	require.NoError(t, err)
	assert.False(t, result.RequiresAction)
	assert.Equal(t, domain.PaymentStatusSucceeded, result.Payment.Status)
	assert.Equal(t, "ch_1", result.Payment.ChargeID)
	assert.Equal(t, "pm_card_visa", result.Payment.PaymentMethodID)
	require.NotNil(t, result.Payment.PaidAt)

	stored := env.store.orders[order.ID]
	assert.Equal(t, domain.OrderStatusConfirmed, stored.Status)
	assert.Equal(t, domain.OrderPaymentCompleted, stored.PaymentStatus)
	require.NotNil(t, stored.PaymentDate)

	_, err = env.payments.ConfirmPayment(ctx, ConfirmPaymentCommand{UserID: testUser, IntentID: created.IntentID})
	require.NoError(t, err)

	entries := env.store.trackingFor(order.ID)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.TrackingPaymentConfirmed, entries[1].Status)
	assert.Equal(t, []string{EventOrderPlaced, EventOrderConfirmed}, env.events.types())
}

func TestPaymentServiceConfirmOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		status  payments.IntentStatus
		wantErr error
		action  bool
	}{
		{name: "requires action", status: payments.IntentStatusRequiresAction, action: true},
		{name: "requires payment method", status: payments.IntentStatusRequiresPaymentMethod, wantErr: ErrPaymentMethodRequired},
		{name: "processing", status: payments.IntentStatusProcessing, wantErr: ErrUnexpectedGatewayStatus},
		{name: "canceled", status: payments.IntentStatusCanceled, wantErr: ErrUnexpectedGatewayStatus},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			order := env.placeOrder(t, "500.00")
			ctx := context.Background()
			created, err := env.payments.CreatePayment(ctx, CreatePaymentCommand{UserID: testUser, OrderID: order.ID})
			require.NoError(t, err)
			env.gateway.setIntent(created.IntentID, tc.status, "")

			result, err := env.payments.ConfirmPayment(ctx, ConfirmPaymentCommand{UserID: testUser, IntentID: created.IntentID})
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.ErrorIs(t, err, ErrGateway)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tc.action, result.RequiresAction)
				assert.Equal(t, created.ClientSecret, result.ClientSecret)
				assert.Equal(t, domain.PaymentStatusRequiresAction, env.store.payments[created.PaymentID].Status)
			}
			assert.Equal(t, domain.OrderStatusPending, env.store.orders[order.ID].Status)
			assert.Len(t, env.store.trackingFor(order.ID), 1)
		})
	}
}

func TestPaymentServiceConfirmRequiresOwner(t *testing.T) {
	env := newTestEnv(t)
	order := env.placeOrder(t, "500.00")
	ctx := context.Background()
	created, err := env.payments.CreatePayment(ctx, CreatePaymentCommand{UserID: testUser, OrderID: order.ID})
	require.NoError(t, err)
	env.gateway.setIntent(created.IntentID, payments.IntentStatusSucceeded, "ch_1")

	_, err = env.payments.ConfirmPayment(ctx, ConfirmPaymentCommand{UserID: otherUser, IntentID: created.IntentID})
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, domain.OrderStatusPending, env.store.orders[order.ID].Status)

	_, err = env.payments.ConfirmPayment(ctx, ConfirmPaymentCommand{UserID: testUser, IntentID: "pi_unknown"})
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestPaymentServiceGetPaymentForOrder(t *testing.T) {
	env := newTestEnv(t)
	order, payment := env.paidOrder(t, "500.00")
	ctx := context.Background()

	got, err := env.payments.GetPaymentForOrder(ctx, Actor{ID: testUser}, order.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.ID, got.ID)

	_, err = env.payments.GetPaymentForOrder(ctx, Actor{ID: otherUser}, order.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	unpaid := env.placeOrder(t, "700.00")
	_, err = env.payments.GetPaymentForOrder(ctx, Actor{ID: testUser}, unpaid.ID)
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}
