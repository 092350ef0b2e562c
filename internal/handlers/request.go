package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/cloth-shop/api/internal/platform/auth"
	"github.com/cloth-shop/api/internal/platform/httpx"
	"github.com/cloth-shop/api/internal/services"
)

const defaultMaxBodySize = 16 * 1024

var (
	errEmptyBody    = errors.New("request body is required")
	errBodyTooLarge = errors.New("request body too large")
)

var requestValidator = newRequestValidator()

func newRequestValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = defaultMaxBodySize
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// decodeJSONBody reads, decodes and validates a JSON request body into dst. It writes the error
// response itself and reports whether the handler may continue.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	ctx := r.Context()
	body, err := readLimitedBody(r, limit)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return false
	}
	if err := requestValidator.StructCtx(ctx, dst); err != nil {
		writeValidationError(ctx, w, err)
		return false
	}
	return true
}

func writeValidationError(ctx context.Context, w http.ResponseWriter, err error) {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request validation failed", http.StatusBadRequest))
		return
	}
	fields := make(map[string]any, len(fieldErrors))
	for _, fe := range fieldErrors {
		switch fe.Tag() {
		case "required":
			fields[fe.Field()] = "is required"
		case "oneof":
			fields[fe.Field()] = fmt.Sprintf("must be one of [%s]", fe.Param())
		case "min", "gte":
			fields[fe.Field()] = fmt.Sprintf("must be at least %s", fe.Param())
		case "max", "lte":
			fields[fe.Field()] = fmt.Sprintf("must be at most %s", fe.Param())
		case "email":
			fields[fe.Field()] = "must be a valid email address"
		default:
			fields[fe.Field()] = "is invalid"
		}
	}
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request validation failed", http.StatusBadRequest).
		WithDetails(map[string]any{"fields": fields}))
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	httpx.WriteJSON(w, status, payload)
}

// requireIdentity returns the Firebase identity attached by the auth middleware or writes a 401.
func requireIdentity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

// actorFromRequest maps the authenticated principal onto a services.Actor. Service callers
// authenticated through OIDC take precedence over Firebase identities.
func actorFromRequest(r *http.Request) (services.Actor, bool) {
	ctx := r.Context()
	if svc, ok := auth.ServiceIdentityFromContext(ctx); ok && svc != nil {
		id := strings.TrimSpace(svc.Email)
		if id == "" {
			id = strings.TrimSpace(svc.Subject)
		}
		return services.Actor{ID: id, Service: true}, true
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		return services.Actor{}, false
	}
	return services.Actor{
		ID:    strings.TrimSpace(identity.UID),
		Roles: append([]string(nil), identity.Roles...),
	}, true
}

func requireActor(w http.ResponseWriter, r *http.Request) (services.Actor, bool) {
	actor, ok := actorFromRequest(r)
	if !ok {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
	}
	return actor, ok
}

func requireURLParam(w http.ResponseWriter, r *http.Request, value, name string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", name+" is required", http.StatusBadRequest))
		return "", false
	}
	return value, true
}

func serviceUnavailable(ctx context.Context, w http.ResponseWriter, name string) {
	httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", name+" service unavailable", http.StatusServiceUnavailable))
}

// decodeOptionalJSONBody behaves like decodeJSONBody but accepts an empty body.
func decodeOptionalJSONBody(w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	ctx := r.Context()
	body, err := readLimitedBody(r, limit)
	switch {
	case errors.Is(err, errEmptyBody):
		body = nil
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		return false
	case err != nil:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return false
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, dst); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
			return false
		}
	}
	if err := requestValidator.StructCtx(ctx, dst); err != nil {
		writeValidationError(ctx, w, err)
		return false
	}
	return true
}

type handlerOptions struct {
	rateLimit   func(http.Handler) http.Handler
	idempotency func(http.Handler) http.Handler
}

// HandlerOption customises handler groups that accept mutating requests.
type HandlerOption func(*handlerOptions)

// WithIdempotencyMiddleware wraps the group's POST endpoints with Idempotency-Key handling.
func WithIdempotencyMiddleware(mw func(http.Handler) http.Handler) HandlerOption {
	return func(o *handlerOptions) {
		o.idempotency = mw
	}
}

// WithRateLimitMiddleware throttles the group's creating endpoints. It runs before idempotency
// so replays count against the caller too.
func WithRateLimitMiddleware(mw func(http.Handler) http.Handler) HandlerOption {
	return func(o *handlerOptions) {
		o.rateLimit = mw
	}
}

func newHandlerOptions(opts []HandlerOption) handlerOptions {
	var o handlerOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// mutating returns r wrapped with the configured rate limit and idempotency middlewares.
func (o handlerOptions) mutating(r chi.Router) chi.Router {
	var chain []func(http.Handler) http.Handler
	for _, mw := range []func(http.Handler) http.Handler{o.rateLimit, o.idempotency} {
		if mw != nil {
			chain = append(chain, mw)
		}
	}
	if len(chain) == 0 {
		return r
	}
	return r.With(chain...)
}
