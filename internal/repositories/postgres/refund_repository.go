package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	domain "github.com/cloth-shop/api/internal/domain"
	"github.com/cloth-shop/api/internal/platform/database"
)

// RefundRepository persists refund requests.
type RefundRepository struct {
	db *gorm.DB
}

// NewRefundRepository constructs a postgres-backed refund repository.
func NewRefundRepository(db *gorm.DB) *RefundRepository {
	return &RefundRepository{db: db}
}

// Insert stores a new refund request.
func (r *RefundRepository) Insert(ctx context.Context, refund domain.Refund) error {
	if r == nil || r.db == nil {
		return errors.New("refund repository not initialised")
	}
	model := fromDomainRefund(refund)
	if err := database.Conn(ctx, r.db).Omit("Payment").Create(&model).Error; err != nil {
		return database.WrapError("refunds.insert", err)
	}
	return nil
}

// Update rewrites the mutable columns. Moving a second refund of the same payment into
// processing or succeeded violates idx_refunds_payment_in_flight and surfaces as a conflict.
func (r *RefundRepository) Update(ctx context.Context, refund domain.Refund) error {
	if r == nil || r.db == nil {
		return errors.New("refund repository not initialised")
	}
	result := database.Conn(ctx, r.db).
		Model(&refundModel{}).
		Where("id = ?", refund.ID).
		Updates(map[string]any{
			"gateway_refund_id": optionalString(refund.GatewayRefundID),
			"status":            string(refund.Status),
			"error_message":     refund.ErrorMessage,
			"metadata":          encodeMetadata(refund.Metadata),
			"completed_at":      cloneTime(refund.CompletedAt),
			"updated_at":        refund.UpdatedAt,
		})
	if result.Error != nil {
		return database.WrapError("refunds.update", result.Error)
	}
	if result.RowsAffected == 0 {
		return database.WrapError("refunds.update", gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *RefundRepository) FindByID(ctx context.Context, refundID string) (domain.Refund, error) {
	return r.findOne(ctx, "id = ?", refundID, "refunds.find")
}

func (r *RefundRepository) FindByGatewayID(ctx context.Context, gatewayRefundID string) (domain.Refund, error) {
	if gatewayRefundID == "" {
		return domain.Refund{}, database.WrapError("refunds.find_by_gateway", gorm.ErrRecordNotFound)
	}
	return r.findOne(ctx, "gateway_refund_id = ?", gatewayRefundID, "refunds.find_by_gateway")
}

func (r *RefundRepository) findOne(ctx context.Context, query string, arg any, op string) (domain.Refund, error) {
	if r == nil || r.db == nil {
		return domain.Refund{}, errors.New("refund repository not initialised")
	}
	var model refundModel
	if err := database.Conn(ctx, r.db).Where(query, arg).Take(&model).Error; err != nil {
		return domain.Refund{}, database.WrapError(op, err)
	}
	return toDomainRefund(model), nil
}

// ListByPayment returns the payment's refunds oldest first.
func (r *RefundRepository) ListByPayment(ctx context.Context, paymentID string) ([]domain.Refund, error) {
	var models []refundModel
	err := database.Conn(ctx, r.db).
		Where("payment_id = ?", paymentID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, database.WrapError("refunds.list", err)
	}
	refunds := make([]domain.Refund, 0, len(models))
	for _, model := range models {
		refunds = append(refunds, toDomainRefund(model))
	}
	return refunds, nil
}
