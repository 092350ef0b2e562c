package postgres

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	domain "github.com/cloth-shop/api/internal/domain"
	"github.com/cloth-shop/api/internal/platform/database"
	"github.com/cloth-shop/api/internal/platform/pagination"
)

// OrderRepository persists order headers with their item snapshots.
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository constructs a postgres-backed order repository.
func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Insert stores the header and every item in one statement batch.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.db == nil {
		return errors.New("order repository not initialised")
	}
	model := fromDomainOrder(order)
	if err := database.Conn(ctx, r.db).Create(&model).Error; err != nil {
		return database.WrapError("orders.insert", err)
	}
	return nil
}

// Update writes the mutable header columns. Items and totals are never rewritten.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.db == nil {
		return errors.New("order repository not initialised")
	}
	result := database.Conn(ctx, r.db).
		Model(&orderModel{}).
		Where("id = ?", order.ID).
		Updates(map[string]any{
			"status":          string(order.Status),
			"payment_status":  string(order.PaymentStatus),
			"tracking_number": order.TrackingNumber,
			"notes":           order.Notes,
			"payment_date":    cloneTime(order.PaymentDate),
			"updated_at":      order.UpdatedAt,
		})
	if result.Error != nil {
		return database.WrapError("orders.update", result.Error)
	}
	if result.RowsAffected == 0 {
		return database.WrapError("orders.update", gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	return r.find(ctx, database.Conn(ctx, r.db), orderID, "orders.find")
}

func (r *OrderRepository) FindByIDForUpdate(ctx context.Context, orderID string) (domain.Order, error) {
	return r.find(ctx, database.ForUpdate(database.Conn(ctx, r.db)), orderID, "orders.lock")
}

func (r *OrderRepository) find(ctx context.Context, conn *gorm.DB, orderID, op string) (domain.Order, error) {
	if r == nil || r.db == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	var model orderModel
	if err := conn.Where("id = ?", strings.TrimSpace(orderID)).Take(&model).Error; err != nil {
		return domain.Order{}, database.WrapError(op, err)
	}
	var items []orderItemModel
	if err := database.Conn(ctx, r.db).
		Where("order_id = ?", model.ID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&items).Error; err != nil {
		return domain.Order{}, database.WrapError(op+".items", err)
	}
	model.Items = items
	return toDomainOrder(model), nil
}

func (r *OrderRepository) ExistsByNumber(ctx context.Context, orderNumber string) (bool, error) {
	var count int64
	err := database.Conn(ctx, r.db).
		Model(&orderModel{}).
		Where("order_number = ?", orderNumber).
		Count(&count).Error
	if err != nil {
		return false, database.WrapError("orders.exists", err)
	}
	return count > 0, nil
}

// ListByUser pages through the user's orders newest first using an offset page token.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.db == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}
	offset, err := pagination.DecodeOffset(pager.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	limit := pager.PageSize
	if limit <= 0 {
		limit = pagination.DefaultPageSize
	}

	var models []orderModel
	err = database.Conn(ctx, r.db).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC").Order("id ASC")
		}).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit + 1).
		Find(&models).Error
	if err != nil {
		return domain.CursorPage[domain.Order]{}, database.WrapError("orders.list", err)
	}

	page := domain.CursorPage[domain.Order]{Items: make([]domain.Order, 0, len(models))}
	if len(models) > limit {
		models = models[:limit]
		page.NextPageToken = pagination.EncodeOffset(offset + limit)
	}
	for _, model := range models {
		page.Items = append(page.Items, toDomainOrder(model))
	}
	return page, nil
}
