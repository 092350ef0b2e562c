package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/cloth-shop/api/internal/domain"
)

const (
	testUser    = "user-1"
	otherUser   = "user-2"
	testAddress = "addr-1"
)

var testNow = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

type testEnv struct {
	store    *memStore
	gateway  *fakeGateway
	events   *captureEvents
	catalog  CatalogService
	carts    CartService
	orders   OrderService
	payments PaymentService
	refunds  RefundService
	webhooks WebhookService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := newMemStore()
	store.addAddress(testUser, testAddress)
	gateway := newFakeGateway()
	events := &captureEvents{}
	ids := sequentialIDs()
	clock := fixedClock(testNow)

	catalog, err := NewCatalogService(CatalogServiceDeps{Catalog: store.catalog()})
	require.NoError(t, err)

	carts, err := NewCartService(CartServiceDeps{
		Carts:       store.cartRepo(),
		Catalog:     catalog,
		UnitOfWork:  store.unitOfWork(),
		Clock:       clock,
		IDGenerator: ids,
	})
	require.NoError(t, err)

	orders, err := NewOrderService(OrderServiceDeps{
		Orders:      store.orderRepo(),
		Tracking:    store.trackingRepo(),
		Carts:       store.cartRepo(),
		Addresses:   store.addressBook(),
		Catalog:     catalog,
		UnitOfWork:  store.unitOfWork(),
		Clock:       clock,
		IDGenerator: ids,
		Events:      events,
	})
	require.NoError(t, err)

	paymentSvc, err := NewPaymentService(PaymentServiceDeps{
		Orders:      store.orderRepo(),
		Payments:    store.paymentRepo(),
		Tracking:    store.trackingRepo(),
		UnitOfWork:  store.unitOfWork(),
		Gateway:     gateway,
		Clock:       clock,
		IDGenerator: ids,
		Events:      events,
	})
	require.NoError(t, err)

	refundSvc, err := NewRefundService(RefundServiceDeps{
		Orders:      store.orderRepo(),
		Payments:    store.paymentRepo(),
		Refunds:     store.refundRepo(),
		UnitOfWork:  store.unitOfWork(),
		Gateway:     gateway,
		Clock:       clock,
		IDGenerator: ids,
		Events:      events,
	})
	require.NoError(t, err)

	webhooks, err := NewWebhookService(WebhookServiceDeps{
		Orders:      store.orderRepo(),
		Payments:    store.paymentRepo(),
		Refunds:     store.refundRepo(),
		Tracking:    store.trackingRepo(),
		UnitOfWork:  store.unitOfWork(),
		Gateway:     gateway,
		Clock:       clock,
		IDGenerator: ids,
		Events:      events,
	})
	require.NoError(t, err)

	return &testEnv{
		store:    store,
		gateway:  gateway,
		events:   events,
		catalog:  catalog,
		carts:    carts,
		orders:   orders,
		payments: paymentSvc,
		refunds:  refundSvc,
		webhooks: webhooks,
	}
}

// placeOrder fills the cart with one product at price and places a credit card order.
func (e *testEnv) placeOrder(t *testing.T, price string) Order {
	t.Helper()
	ctx := context.Background()
	productID := "prod-" + price
	e.store.addProduct(productID, "Linen Shirt", price)
	_, err := e.carts.AddItem(ctx, AddCartItemCommand{UserID: testUser, ProductID: productID, Quantity: 1})
	require.NoError(t, err)
	order, err := e.orders.PlaceOrder(ctx, PlaceOrderCommand{
		UserID:        testUser,
		AddressID:     testAddress,
		PaymentMethod: domain.PaymentMethodCreditCard,
	})
	require.NoError(t, err)
	return order
}

// paidOrder places an order and settles its payment through client confirmation.
func (e *testEnv) paidOrder(t *testing.T, price string) (Order, Payment) {
	t.Helper()
	ctx := context.Background()
	order := e.placeOrder(t, price)
	created, err := e.payments.CreatePayment(ctx, CreatePaymentCommand{UserID: testUser, OrderID: order.ID})
	require.NoError(t, err)
	e.gateway.setIntent(created.IntentID, "succeeded", "ch_"+created.IntentID)
	result, err := e.payments.ConfirmPayment(ctx, ConfirmPaymentCommand{UserID: testUser, IntentID: created.IntentID})
	require.NoError(t, err)
	return order, result.Payment
}
