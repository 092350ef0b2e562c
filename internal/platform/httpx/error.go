package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"strings"
	"unicode"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/cloth-shop/api/internal/platform/requestctx"
)

// Envelope keys owned by WriteError; details never replace them.
var reservedKeys = map[string]struct{}{
	"error":      {},
	"message":    {},
	"status":     {},
	"request_id": {},
	"trace_id":   {},
}

// Error is the JSON error envelope: {error, message, status, request_id, trace_id, ...details}.
type Error struct {
	Code      string
	Message   string
	Status    int
	RequestID string
	TraceID   string
	Details   map[string]any
}

func NewError(code, message string, status int) Error {
	if status < 400 || status > 599 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    clean(code, 80),
		Message: clean(message, 512),
		Status:  status,
	}
}

func (e Error) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

func (e Error) WithRequestID(id string) Error {
	e.RequestID = clean(id, 80)
	return e
}

func (e Error) WithTraceID(id string) Error {
	e.TraceID = clean(id, 64)
	return e
}

// WithDetail adds one top-level field to the envelope. Reserved keys are ignored.
func (e Error) WithDetail(key string, value any) Error {
	return e.WithDetails(map[string]any{key: value})
}

// WithDetails merges fields into the envelope. The receiver's map is never mutated, so a
// package-level Error can be specialised per request.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) == 0 {
		return e
	}
	merged := make(map[string]any, len(e.Details)+len(details))
	maps.Copy(merged, e.Details)
	for key, value := range details {
		if _, reserved := reservedKeys[key]; reserved || key == "" {
			continue
		}
		merged[key] = value
	}
	e.Details = merged
	return e
}

// WriteError renders err, filling request_id and trace_id from ctx when unset.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	if err.Status == 0 {
		err.Status = http.StatusInternalServerError
	}
	if err.RequestID == "" {
		err.RequestID = clean(middleware.GetReqID(ctx), 80)
	}
	if err.TraceID == "" {
		err.TraceID = clean(requestctx.TraceID(ctx), 64)
	}
	WriteJSON(w, err.Status, err.payload())
}

func (e Error) payload() map[string]any {
	body := make(map[string]any, len(e.Details)+5)
	maps.Copy(body, e.Details)
	body["error"] = e.Code
	body["message"] = e.Message
	body["status"] = e.Status
	if e.RequestID != "" {
		body["request_id"] = e.RequestID
	}
	if e.TraceID != "" {
		body["trace_id"] = e.TraceID
	}
	return body
}

// WriteJSON encodes payload as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

// clean folds control characters to spaces and caps the result at limit bytes.
func clean(value string, limit int) string {
	value = strings.TrimSpace(strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, value))
	if len(value) > limit {
		value = strings.ToValidUTF8(value[:limit], "")
	}
	return value
}
