package database

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestWrapErrorClassifies(t *testing.T) {
	cases := []struct {
		name        string
		err         error
		notFound    bool
		conflict    bool
		unavailable bool
		retryable   bool
	}{
		{name: "record not found", err: gorm.ErrRecordNotFound, notFound: true},
		{name: "translated duplicate", err: gorm.ErrDuplicatedKey, conflict: true},
		{name: "unique violation", err: &pgconn.PgError{Code: "23505", ConstraintName: "idx_payments_order_succeeded"}, conflict: true},
		{name: "serialization failure", err: &pgconn.PgError{Code: "40001"}, conflict: true, retryable: true},
		{name: "deadlock", err: fmt.Errorf("exec: %w", &pgconn.PgError{Code: "40P01"}), conflict: true, retryable: true},
		{name: "connection failure", err: &pgconn.PgError{Code: "08006"}, unavailable: true},
		{name: "admin shutdown", err: &pgconn.PgError{Code: "57P01"}, unavailable: true},
		{name: "other", err: errors.New("boom")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := WrapError("orders.insert", tc.err)
			var dbErr *Error
			require.True(t, errors.As(wrapped, &dbErr))
			assert.Equal(t, tc.notFound, dbErr.IsNotFound())
			assert.Equal(t, tc.conflict, dbErr.IsConflict())
			assert.Equal(t, tc.unavailable, dbErr.IsUnavailable())
			assert.Equal(t, tc.retryable, dbErr.Retryable())
			assert.ErrorIs(t, wrapped, tc.err)
			assert.Contains(t, wrapped.Error(), "orders.insert")
		})
	}
}

func TestWrapErrorPassesThroughContextErrors(t *testing.T) {
	assert.Same(t, context.Canceled, WrapError("op", context.Canceled))
	assert.ErrorIs(t, WrapError("op", fmt.Errorf("query: %w", context.DeadlineExceeded)), context.DeadlineExceeded)
	assert.Nil(t, WrapError("op", nil))
}

func TestWrapErrorKeepsExistingOperation(t *testing.T) {
	first := WrapError("payments.find", gorm.ErrRecordNotFound)
	second := WrapError("payments.lock", first)
	assert.Same(t, first, second)
	assert.Contains(t, second.Error(), "payments.find")
}

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "idx_orders_number"})
	assert.True(t, IsUniqueViolation(err, ""))
	assert.True(t, IsUniqueViolation(err, "idx_orders_number"))
	assert.False(t, IsUniqueViolation(err, "idx_payments_order_succeeded"))
	assert.True(t, IsUniqueViolation(gorm.ErrDuplicatedKey, ""))
	assert.False(t, IsUniqueViolation(errors.New("boom"), ""))
}
