package database

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultTxAttempts = 3
	defaultTxTimeout  = 15 * time.Second
)

type txContextKey struct{}

// TxOption customises transaction behaviour.
type TxOption func(*txConfig)

type txConfig struct {
	attempts int
	timeout  time.Duration
}

// WithTxAttempts overrides how many times a serialization failure is retried.
func WithTxAttempts(attempts int) TxOption {
	return func(cfg *txConfig) {
		if attempts > 0 {
			cfg.attempts = attempts
		}
	}
}

// WithTxTimeout sets a timeout for the transaction context.
func WithTxTimeout(timeout time.Duration) TxOption {
	return func(cfg *txConfig) {
		if timeout > 0 {
			cfg.timeout = timeout
		}
	}
}

// UnitOfWork runs callbacks inside a single postgres transaction. Repositories resolve the
// active transaction from the context via Conn, so callers never pass *gorm.DB around.
type UnitOfWork struct {
	db  *gorm.DB
	cfg txConfig
}

// NewUnitOfWork constructs a UnitOfWork bound to db.
func NewUnitOfWork(db *gorm.DB, opts ...TxOption) *UnitOfWork {
	cfg := txConfig{attempts: defaultTxAttempts, timeout: defaultTxTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &UnitOfWork{db: db, cfg: cfg}
}

// RunInTx executes fn within a transaction. Nested calls join the outer transaction.
func (u *UnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if u == nil || u.db == nil {
		return WrapError("transaction", errors.New("database: unit of work not initialised"))
	}
	if fn == nil {
		return WrapError("transaction", errors.New("database: transaction function is nil"))
	}
	if _, ok := txFromContext(ctx); ok {
		return fn(ctx)
	}

	txnCtx := ctx
	var cancel context.CancelFunc
	if u.cfg.timeout > 0 {
		deadline, hasDeadline := ctx.Deadline()
		if !hasDeadline || time.Until(deadline) > u.cfg.timeout {
			txnCtx, cancel = context.WithTimeout(ctx, u.cfg.timeout)
		}
	}
	if cancel != nil {
		defer cancel()
	}

	var lastErr error
	for attempt := 0; attempt < u.cfg.attempts; attempt++ {
		var fnErr error
		err := u.db.WithContext(txnCtx).Transaction(func(tx *gorm.DB) error {
			fnErr = fn(context.WithValue(txnCtx, txContextKey{}, tx))
			return fnErr
		})
		if err == nil {
			return nil
		}

		wrapped := WrapError("transaction", err)
		var dbErr *Error
		if errors.As(wrapped, &dbErr) && dbErr.Retryable() && txnCtx.Err() == nil {
			lastErr = wrapped
			continue
		}
		if fnErr != nil && errors.Is(err, fnErr) {
			return fnErr
		}
		return wrapped
	}
	return lastErr
}

// Conn returns the transaction bound to ctx, or db scoped to ctx when no transaction is active.
func Conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := txFromContext(ctx); ok {
		return tx
	}
	return db.WithContext(ctx)
}

// ForUpdate adds a row lock to the query.
func ForUpdate(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

// InTx reports whether ctx carries an active transaction.
func InTx(ctx context.Context) bool {
	_, ok := txFromContext(ctx)
	return ok
}

func txFromContext(ctx context.Context) (*gorm.DB, bool) {
	if ctx == nil {
		return nil, false
	}
	tx, ok := ctx.Value(txContextKey{}).(*gorm.DB)
	return tx, ok && tx != nil
}
