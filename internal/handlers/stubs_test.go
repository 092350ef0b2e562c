package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	domain "github.com/cloth-shop/api/internal/domain"
	"github.com/cloth-shop/api/internal/platform/auth"
	"github.com/cloth-shop/api/internal/services"
)

var errNotStubbed = errors.New("not stubbed")

type stubCartService struct {
	getFn    func(context.Context, string) (services.CartView, error)
	addFn    func(context.Context, services.AddCartItemCommand) (services.CartView, error)
	updateFn func(context.Context, services.UpdateCartItemCommand) (services.CartView, error)
	removeFn func(context.Context, services.RemoveCartItemCommand) (services.CartView, error)
	clearFn  func(context.Context, string) (services.CartView, error)
}

func (s *stubCartService) GetOrCreate(ctx context.Context, userID string) (services.CartView, error) {
	if s.getFn != nil {
		return s.getFn(ctx, userID)
	}
	return services.CartView{}, errNotStubbed
}

func (s *stubCartService) AddItem(ctx context.Context, cmd services.AddCartItemCommand) (services.CartView, error) {
	if s.addFn != nil {
		return s.addFn(ctx, cmd)
	}
	return services.CartView{}, errNotStubbed
}

func (s *stubCartService) UpdateItem(ctx context.Context, cmd services.UpdateCartItemCommand) (services.CartView, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.CartView{}, errNotStubbed
}

func (s *stubCartService) RemoveItem(ctx context.Context, cmd services.RemoveCartItemCommand) (services.CartView, error) {
	if s.removeFn != nil {
		return s.removeFn(ctx, cmd)
	}
	return services.CartView{}, errNotStubbed
}

func (s *stubCartService) Clear(ctx context.Context, userID string) (services.CartView, error) {
	if s.clearFn != nil {
		return s.clearFn(ctx, userID)
	}
	return services.CartView{}, errNotStubbed
}

type stubOrderService struct {
	placeFn  func(context.Context, services.PlaceOrderCommand) (services.Order, error)
	getFn    func(context.Context, services.Actor, string) (services.Order, error)
	listFn   func(context.Context, string, services.Pagination) (domain.CursorPage[services.Order], error)
	trackFn  func(context.Context, services.Actor, string) (services.OrderTrackingView, error)
	cancelFn func(context.Context, services.CancelOrderCommand) (services.Order, error)
	statusFn func(context.Context, services.UpdateOrderStatusCommand) (services.Order, error)
}

func (s *stubOrderService) PlaceOrder(ctx context.Context, cmd services.PlaceOrderCommand) (services.Order, error) {
	if s.placeFn != nil {
		return s.placeFn(ctx, cmd)
	}
	return services.Order{}, errNotStubbed
}

func (s *stubOrderService) GetOrder(ctx context.Context, actor services.Actor, orderID string) (services.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, actor, orderID)
	}
	return services.Order{}, errNotStubbed
}

func (s *stubOrderService) ListOrders(ctx context.Context, userID string, pager services.Pagination) (domain.CursorPage[services.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, userID, pager)
	}
	return domain.CursorPage[services.Order]{}, nil
}

func (s *stubOrderService) TrackOrder(ctx context.Context, actor services.Actor, orderID string) (services.OrderTrackingView, error) {
	if s.trackFn != nil {
		return s.trackFn(ctx, actor, orderID)
	}
	return services.OrderTrackingView{}, errNotStubbed
}

func (s *stubOrderService) CancelOrder(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, cmd)
	}
	return services.Order{}, errNotStubbed
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error) {
	if s.statusFn != nil {
		return s.statusFn(ctx, cmd)
	}
	return services.Order{}, errNotStubbed
}

type stubPaymentService struct {
	createFn  func(context.Context, services.CreatePaymentCommand) (services.PaymentIntentResult, error)
	confirmFn func(context.Context, services.ConfirmPaymentCommand) (services.ConfirmPaymentResult, error)
	getFn     func(context.Context, services.Actor, string) (services.Payment, error)
}

func (s *stubPaymentService) CreatePayment(ctx context.Context, cmd services.CreatePaymentCommand) (services.PaymentIntentResult, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.PaymentIntentResult{}, errNotStubbed
}

func (s *stubPaymentService) ConfirmPayment(ctx context.Context, cmd services.ConfirmPaymentCommand) (services.ConfirmPaymentResult, error) {
	if s.confirmFn != nil {
		return s.confirmFn(ctx, cmd)
	}
	return services.ConfirmPaymentResult{}, errNotStubbed
}

func (s *stubPaymentService) GetPaymentForOrder(ctx context.Context, actor services.Actor, orderID string) (services.Payment, error) {
	if s.getFn != nil {
		return s.getFn(ctx, actor, orderID)
	}
	return services.Payment{}, errNotStubbed
}

type stubRefundService struct {
	requestFn func(context.Context, services.RequestRefundCommand) (services.Refund, error)
	getFn     func(context.Context, services.Actor, string) (services.Refund, error)
}

func (s *stubRefundService) RequestRefund(ctx context.Context, cmd services.RequestRefundCommand) (services.Refund, error) {
	if s.requestFn != nil {
		return s.requestFn(ctx, cmd)
	}
	return services.Refund{}, errNotStubbed
}

func (s *stubRefundService) GetRefund(ctx context.Context, actor services.Actor, refundID string) (services.Refund, error) {
	if s.getFn != nil {
		return s.getFn(ctx, actor, refundID)
	}
	return services.Refund{}, errNotStubbed
}

type stubWebhookService struct {
	payload   []byte
	signature string
	err       error
	calls     int
}

func (s *stubWebhookService) HandleWebhook(_ context.Context, payload []byte, signature string) error {
	s.calls++
	s.payload = payload
	s.signature = signature
	return s.err
}

type stubSystemService struct {
	report services.SystemHealthReport
	err    error
}

func (s *stubSystemService) HealthReport(context.Context) (services.SystemHealthReport, error) {
	return s.report, s.err
}

var (
	_ services.CartService    = (*stubCartService)(nil)
	_ services.OrderService   = (*stubOrderService)(nil)
	_ services.PaymentService = (*stubPaymentService)(nil)
	_ services.RefundService  = (*stubRefundService)(nil)
	_ services.WebhookService = (*stubWebhookService)(nil)
	_ services.SystemService  = (*stubSystemService)(nil)
)

// asUser injects a Firebase identity the way the auth middleware would.
func asUser(identity *auth.Identity) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if identity != nil {
				r = r.WithContext(auth.WithIdentity(r.Context(), identity))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func customer() *auth.Identity {
	return &auth.Identity{UID: "user-1", Email: "asha@example.com", Roles: []string{auth.RoleUser}}
}

func newTestRouter(identity *auth.Identity, opts ...Option) chi.Router {
	return NewRouter(append([]Option{WithMiddlewares(asUser(identity))}, opts...)...)
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		data, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), rr.Body.String())
	return body
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	code, _ := decodeBody(t, rr)["error"].(string)
	return code
}
