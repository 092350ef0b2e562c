package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	domain "github.com/cloth-shop/api/internal/domain"
	"github.com/cloth-shop/api/internal/platform/database"
)

// PaymentRepository persists gateway payment attempts.
type PaymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository constructs a postgres-backed payment repository.
func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Insert stores a new attempt. A duplicate intent id surfaces as a conflict.
func (r *PaymentRepository) Insert(ctx context.Context, payment domain.Payment) error {
	if r == nil || r.db == nil {
		return errors.New("payment repository not initialised")
	}
	model := fromDomainPayment(payment)
	if err := database.Conn(ctx, r.db).Omit("Order").Create(&model).Error; err != nil {
		return database.WrapError("payments.insert", err)
	}
	return nil
}

// Update rewrites the mutable columns. Marking a second payment of the same order as
// succeeded violates idx_payments_order_succeeded and surfaces as a conflict.
func (r *PaymentRepository) Update(ctx context.Context, payment domain.Payment) error {
	if r == nil || r.db == nil {
		return errors.New("payment repository not initialised")
	}
	result := database.Conn(ctx, r.db).
		Model(&paymentModel{}).
		Where("id = ?", payment.ID).
		Updates(map[string]any{
			"status":            string(payment.Status),
			"client_secret":     payment.ClientSecret,
			"payment_method_id": payment.PaymentMethodID,
			"charge_id":         payment.ChargeID,
			"receipt_email":     payment.ReceiptEmail,
			"error_message":     payment.ErrorMessage,
			"metadata":          encodeMetadata(payment.Metadata),
			"paid_at":           cloneTime(payment.PaidAt),
			"failed_at":         cloneTime(payment.FailedAt),
			"updated_at":        payment.UpdatedAt,
		})
	if result.Error != nil {
		return database.WrapError("payments.update", result.Error)
	}
	if result.RowsAffected == 0 {
		return database.WrapError("payments.update", gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *PaymentRepository) FindByIntentID(ctx context.Context, intentID string) (domain.Payment, error) {
	return r.findOne(database.Conn(ctx, r.db), "intent_id = ?", intentID, "payments.find_by_intent")
}

func (r *PaymentRepository) FindByIntentIDForUpdate(ctx context.Context, intentID string) (domain.Payment, error) {
	return r.findOne(database.ForUpdate(database.Conn(ctx, r.db)), "intent_id = ?", intentID, "payments.lock_by_intent")
}

func (r *PaymentRepository) FindByChargeID(ctx context.Context, chargeID string) (domain.Payment, error) {
	if chargeID == "" {
		return domain.Payment{}, database.WrapError("payments.find_by_charge", gorm.ErrRecordNotFound)
	}
	return r.findOne(database.Conn(ctx, r.db), "charge_id = ?", chargeID, "payments.find_by_charge")
}

func (r *PaymentRepository) FindByIDForUpdate(ctx context.Context, paymentID string) (domain.Payment, error) {
	return r.findOne(database.ForUpdate(database.Conn(ctx, r.db)), "id = ?", paymentID, "payments.lock")
}

func (r *PaymentRepository) findOne(conn *gorm.DB, query string, arg any, op string) (domain.Payment, error) {
	if r == nil || r.db == nil {
		return domain.Payment{}, errors.New("payment repository not initialised")
	}
	var model paymentModel
	if err := conn.Where(query, arg).Take(&model).Error; err != nil {
		return domain.Payment{}, database.WrapError(op, err)
	}
	return toDomainPayment(model), nil
}

func (r *PaymentRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error) {
	var models []paymentModel
	err := database.Conn(ctx, r.db).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&models).Error
	if err != nil {
		return nil, database.WrapError("payments.list", err)
	}
	payments := make([]domain.Payment, 0, len(models))
	for _, model := range models {
		payments = append(payments, toDomainPayment(model))
	}
	return payments, nil
}
