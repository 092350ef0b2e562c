package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/cloth-shop/api/internal/domain"
	"github.com/cloth-shop/api/internal/services"
)

func TestNewRouterDefaultMounts(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	healthHandlers := NewHealthHandlers(
		WithHealthSystemService(&stubSystemService{
			report: services.SystemHealthReport{
				HealthReport: domain.HealthReport{
					Status:      domain.HealthStatusOK,
					GeneratedAt: now,
					Checks:      map[string]domain.HealthCheck{"postgres": {Status: domain.HealthStatusOK}},
				},
				Uptime: 5 * time.Second,
			},
		}),
		WithHealthClock(func() time.Time { return now }),
	)
	router := NewRouter(WithHealthHandlers(healthHandlers))

	t.Run("healthz", func(t *testing.T) {
		rr := doJSON(t, router, http.MethodGet, "/healthz", nil)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	})

	t.Run("readyz", func(t *testing.T) {
		rr := doJSON(t, router, http.MethodGet, "/readyz", nil)
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("unconfigured group", func(t *testing.T) {
		rr := doJSON(t, router, http.MethodGet, "/api/v1/refunds/rfd_1", nil)
		assert.Equal(t, http.StatusNotImplemented, rr.Code)
		assert.Equal(t, "not_implemented", errorCode(t, rr))
	})

	t.Run("unknown route", func(t *testing.T) {
		rr := doJSON(t, router, http.MethodGet, "/api/v2/orders", nil)
		require.Equal(t, http.StatusNotFound, rr.Code)
		body := decodeBody(t, rr)
		assert.Equal(t, errorNotFoundCode, body["error"])
		assert.NotEmpty(t, body["request_id"])
	})
}

func TestNewRouterMethodNotAllowed(t *testing.T) {
	router := newTestRouter(customer(), WithCartRoutes(NewCartHandlers(nil, &stubCartService{}).Routes))

	rr := doJSON(t, router, http.MethodPut, "/api/v1/cart/items", map[string]any{})
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.Equal(t, "method_not_allowed", errorCode(t, rr))
}

func TestNewRouterGroupMiddlewares(t *testing.T) {
	var webhookHits, internalHits int
	counter := func(n *int) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				*n++
				next.ServeHTTP(w, r)
			})
		}
	}
	router := NewRouter(
		WithWebhookRoutes(NewWebhookHandlers(&stubWebhookService{}).Routes),
		WithWebhookMiddlewares(counter(&webhookHits)),
		WithInternalMiddlewares(counter(&internalHits)),
	)

	rr := doJSON(t, router, http.MethodPost, "/api/v1/webhook", "{}")
	assert.Equal(t, http.StatusBadRequest, rr.Code, "missing signature")
	doJSON(t, router, http.MethodPut, "/api/v1/internal/orders/ord_1/status", "{}")

	assert.Equal(t, 1, webhookHits)
	assert.Equal(t, 1, internalHits)
}
