package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloth-shop/api/internal/platform/requestctx"
)

func TestWriteErrorEnvelope(t *testing.T) {
	ctx := requestctx.WithTrace(context.Background(), requestctx.TraceInfo{TraceID: "abc123"})
	rr := httptest.NewRecorder()

	WriteError(ctx, rr, NewError("order_not_found", "order not\nfound", http.StatusNotFound).
		WithDetails(map[string]any{"orderId": "ord_1"}))

	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "order_not_found", body["error"])
	assert.Equal(t, "order not found", body["message"])
	assert.Equal(t, float64(404), body["status"])
	assert.Equal(t, "abc123", body["trace_id"])
	assert.Equal(t, "ord_1", body["orderId"])
}

func TestNewErrorDefaultsAndLimits(t *testing.T) {
	err := NewError(strings.Repeat("x", 100), "boom", 0)
	assert.Equal(t, http.StatusInternalServerError, err.Status)
	assert.Len(t, err.Code, 80)
}

func TestWriteJSON(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteJSON(rr, http.StatusOK, map[string]string{"status": "success"})
	assert.JSONEq(t, `{"status":"success"}`, rr.Body.String())
}

func TestWithDetailsKeepsReservedKeys(t *testing.T) {
	base := NewError("refund_failed", "refund failed", http.StatusBadGateway)
	err := base.
		WithDetail("refund_id", "rfd_1").
		WithDetails(map[string]any{"status": "failed", "error": "override", "refund_status": "failed"})

	assert.Nil(t, base.Details)
	rr := httptest.NewRecorder()
	WriteError(context.Background(), rr, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "refund_failed", body["error"])
	assert.Equal(t, float64(http.StatusBadGateway), body["status"])
	assert.Equal(t, "rfd_1", body["refund_id"])
	assert.Equal(t, "failed", body["refund_status"])
}

func TestErrorImplementsError(t *testing.T) {
	var err error = NewError("forbidden", "forbidden", http.StatusForbidden)
	assert.Equal(t, "403 forbidden: forbidden", err.Error())
	assert.Equal(t, http.StatusInternalServerError, NewError("x", "y", http.StatusOK).Status)
}
