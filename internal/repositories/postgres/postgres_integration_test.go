//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/cloth-shop/api/internal/domain"
	pconfig "github.com/cloth-shop/api/internal/platform/config"
	"github.com/cloth-shop/api/internal/platform/database"
	"github.com/cloth-shop/api/internal/repositories"
	"github.com/cloth-shop/api/internal/repositories/postgres"
)

func newRegistry(t *testing.T) *postgres.Registry {
	t.Helper()
	dsn := os.Getenv("API_TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("API_TEST_DATABASE_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	provider := database.NewProvider(pconfig.DatabaseConfig{DSN: dsn, MaxOpenConns: 5})
	db, err := provider.DB(ctx)
	require.NoError(t, err)
	require.NoError(t, postgres.Migrate(ctx, db))

	registry, err := postgres.NewRegistry(provider, db, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = registry.Close(context.Background()) })
	return registry
}

func newID(prefix string) string {
	return prefix + ulid.Make().String()
}

func seedOrder(t *testing.T, ctx context.Context, reg *postgres.Registry, userID string, createdAt time.Time) domain.Order {
	t.Helper()
	orderID := newID("ord_")
	order := domain.Order{
		ID:             orderID,
		OrderNumber:    "ORD" + createdAt.Format("20060102150405") + ulid.Make().String()[22:],
		UserID:         userID,
		Shipping:       domain.ShippingSnapshot{FullName: "Asha", AddressLine1: "1 Main St", City: "Pune"},
		Subtotal:       decimal.RequireFromString("500"),
		ShippingCharge: decimal.RequireFromString("100"),
		Tax:            decimal.RequireFromString("25"),
		Discount:       decimal.Zero,
		Total:          decimal.RequireFromString("625"),
		PaymentMethod:  domain.PaymentMethodCreditCard,
		PaymentStatus:  domain.OrderPaymentPending,
		Status:         domain.OrderStatusPending,
		Items: []domain.OrderItem{
			{ID: newID("itm_"), ProductID: "prod-1", ProductName: "Shirt", Quantity: 2, UnitPrice: decimal.RequireFromString("200"), Total: decimal.RequireFromString("400"), CreatedAt: createdAt},
			{ID: newID("itm_"), ProductID: "prod-2", ProductName: "Socks", Quantity: 1, UnitPrice: decimal.RequireFromString("100"), Total: decimal.RequireFromString("100"), CreatedAt: createdAt},
		},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	require.NoError(t, reg.Orders().Insert(ctx, order))
	return order
}

func TestOrderRepositoryRoundTripAndPaging(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()
	userID := newID("usr_")
	base := time.Now().UTC().Truncate(time.Second)

	first := seedOrder(t, ctx, reg, userID, base)
	second := seedOrder(t, ctx, reg, userID, base.Add(time.Minute))

	loaded, err := reg.Orders().FindByID(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Items, 2)
	assert.True(t, loaded.Total.Equal(first.Total))

	exists, err := reg.Orders().ExistsByNumber(ctx, first.OrderNumber)
	require.NoError(t, err)
	assert.True(t, exists)

	page, err := reg.Orders().ListByUser(ctx, userID, domain.Pagination{PageSize: 1})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, second.ID, page.Items[0].ID)
	require.NotEmpty(t, page.NextPageToken)

	page, err = reg.Orders().ListByUser(ctx, userID, domain.Pagination{PageSize: 1, PageToken: page.NextPageToken})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, first.ID, page.Items[0].ID)
	assert.Empty(t, page.NextPageToken)
}

func TestPaymentRepositoryRejectsSecondSucceededPayment(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()
	now := time.Now().UTC()
	order := seedOrder(t, ctx, reg, newID("usr_"), now)

	pay := func() domain.Payment {
		p := domain.Payment{
			ID: newID("pay_"), OrderID: order.ID, IntentID: newID("pi_"),
			Amount: order.Total, Currency: "usd", Status: domain.PaymentStatusCreated,
			Metadata: map[string]any{"order_id": order.ID}, CreatedAt: now, UpdatedAt: now,
		}
		require.NoError(t, reg.Payments().Insert(ctx, p))
		return p
	}
	a, b := pay(), pay()

	a.Status = domain.PaymentStatusSucceeded
	require.NoError(t, reg.Payments().Update(ctx, a))

	b.Status = domain.PaymentStatusSucceeded
	err := reg.Payments().Update(ctx, b)
	var repoErr repositories.RepositoryError
	require.True(t, errors.As(err, &repoErr))
	assert.True(t, repoErr.IsConflict())

	loaded, err := reg.Payments().FindByIntentID(ctx, a.IntentID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, loaded.Metadata["order_id"])
}

func TestRefundRepositoryRejectsSecondInFlightRefund(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()
	now := time.Now().UTC()
	order := seedOrder(t, ctx, reg, newID("usr_"), now)
	payment := domain.Payment{ID: newID("pay_"), OrderID: order.ID, IntentID: newID("pi_"), Amount: order.Total, Currency: "usd", Status: domain.PaymentStatusSucceeded, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, reg.Payments().Insert(ctx, payment))

	refund := func(status domain.RefundStatus) error {
		return reg.Refunds().Insert(ctx, domain.Refund{
			ID: newID("rfd_"), PaymentID: payment.ID, OrderID: order.ID, Amount: order.Total,
			Status: status, Reason: domain.RefundReasonReturn, CreatedAt: now, UpdatedAt: now,
		})
	}
	require.NoError(t, refund(domain.RefundStatusFailed))
	require.NoError(t, refund(domain.RefundStatusProcessing))

	err := refund(domain.RefundStatusProcessing)
	var repoErr repositories.RepositoryError
	require.True(t, errors.As(err, &repoErr))
	assert.True(t, repoErr.IsConflict())
}

func TestUnitOfWorkRollsBackOnError(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()
	userID := newID("usr_")

	cart, err := reg.Carts().GetOrCreate(ctx, domain.Cart{ID: newID("crt_"), UserID: userID})
	require.NoError(t, err)
	require.NoError(t, reg.Carts().InsertLine(ctx, domain.CartLine{ID: newID("cln_"), CartID: cart.ID, ProductID: "prod-1", Quantity: 1}))

	boom := errors.New("boom")
	err = reg.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := reg.Carts().LockLines(ctx, cart.ID); err != nil {
			return err
		}
		if err := reg.Carts().ClearLines(ctx, cart.ID); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	lines, err := reg.Carts().ListLines(ctx, cart.ID)
	require.NoError(t, err)
	assert.Len(t, lines, 1)

	again, err := reg.Carts().GetOrCreate(ctx, domain.Cart{ID: newID("crt_"), UserID: userID})
	require.NoError(t, err)
	assert.Equal(t, cart.ID, again.ID)
}
