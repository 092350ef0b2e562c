package postgres

import (
	"context"

	"gorm.io/gorm"

	domain "github.com/cloth-shop/api/internal/domain"
	"github.com/cloth-shop/api/internal/platform/database"
)

// OrderTrackingRepository stores the append-only order history.
type OrderTrackingRepository struct {
	db *gorm.DB
}

// NewOrderTrackingRepository constructs a postgres-backed tracking log.
func NewOrderTrackingRepository(db *gorm.DB) *OrderTrackingRepository {
	return &OrderTrackingRepository{db: db}
}

func (r *OrderTrackingRepository) Append(ctx context.Context, entry domain.OrderTracking) error {
	model := orderTrackingModel{
		ID:          entry.ID,
		OrderID:     entry.OrderID,
		Status:      string(entry.Status),
		Description: entry.Description,
		CreatedAt:   entry.CreatedAt,
	}
	if err := database.Conn(ctx, r.db).Create(&model).Error; err != nil {
		return database.WrapError("order_tracking.append", err)
	}
	return nil
}

// ListByOrder returns entries newest first. ULID ids break ties between entries written in
// the same instant.
func (r *OrderTrackingRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.OrderTracking, error) {
	var models []orderTrackingModel
	err := database.Conn(ctx, r.db).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&models).Error
	if err != nil {
		return nil, database.WrapError("order_tracking.list", err)
	}
	entries := make([]domain.OrderTracking, 0, len(models))
	for _, model := range models {
		entries = append(entries, domain.OrderTracking{
			ID:          model.ID,
			OrderID:     model.OrderID,
			Status:      domain.TrackingStatus(model.Status),
			Description: model.Description,
			CreatedAt:   model.CreatedAt.UTC(),
		})
	}
	return entries, nil
}
