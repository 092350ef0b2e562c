package services

import (
	"context"
	"maps"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	"github.com/cloth-shop/api/internal/repositories"
)

const (
	roleAdmin = "admin"
	roleStaff = "staff"
)

const (
	orderIDPrefix    = "ord_"
	orderItemPrefix  = "itm_"
	trackingIDPrefix = "trk_"
	paymentIDPrefix  = "pay_"
	refundIDPrefix   = "rfd_"
	cartIDPrefix     = "crt_"
	cartLineIDPrefix = "cln_"
)

// IsAdministrator reports whether the actor may act on any customer's order.
func IsAdministrator(actor Actor) bool {
	if actor.Service {
		return true
	}
	for _, role := range actor.Roles {
		switch strings.ToLower(strings.TrimSpace(role)) {
		case roleAdmin, roleStaff:
			return true
		}
	}
	return false
}

func canAccessOrder(actor Actor, order Order) bool {
	if IsAdministrator(actor) {
		return true
	}
	return actor.ID != "" && actor.ID == order.UserID
}

var plainTextPolicy = bluemonday.StrictPolicy()

// sanitizeText strips every HTML tag from free-form customer input.
func sanitizeText(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	return strings.TrimSpace(plainTextPolicy.Sanitize(value))
}

type logFunc func(ctx context.Context, event string, fields map[string]any)

func defaultLogger(logger func(context.Context, string, map[string]any)) logFunc {
	if logger == nil {
		return func(context.Context, string, map[string]any) {}
	}
	return logger
}

func defaultClock(clock func() time.Time) func() time.Time {
	if clock == nil {
		clock = time.Now
	}
	return func() time.Time {
		return clock().UTC()
	}
}

func defaultIDGenerator(idGen func() string) func() string {
	if idGen == nil {
		return func() string { return ulid.Make().String() }
	}
	return idGen
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func defaultUnitOfWork(unit repositories.UnitOfWork) repositories.UnitOfWork {
	if unit == nil {
		return noopUnitOfWork{}
	}
	return unit
}

// eventSink publishes events after commit and logs publishing failures without failing
// the caller.
type eventSink struct {
	publisher EventPublisher
	logger    logFunc
}

func (s eventSink) publish(ctx context.Context, event OrderEvent) {
	if s.publisher == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.publisher.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"status": event.CurrentStatus,
			"error":  err.Error(),
		})
	}
}
