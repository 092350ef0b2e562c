package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/cloth-shop/api/internal/domain"
	"github.com/cloth-shop/api/internal/platform/database"
	"github.com/cloth-shop/api/internal/repositories"
)

// CartRepository persists carts and their lines.
type CartRepository struct {
	db *gorm.DB
}

// NewCartRepository constructs a postgres-backed cart repository.
func NewCartRepository(db *gorm.DB) *CartRepository {
	return &CartRepository{db: db}
}

// GetOrCreate inserts candidate unless the user already has a cart, then returns the stored cart
// with its lines.
func (r *CartRepository) GetOrCreate(ctx context.Context, candidate domain.Cart) (domain.Cart, error) {
	if r == nil || r.db == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	userID := strings.TrimSpace(candidate.UserID)
	if userID == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	conn := database.Conn(ctx, r.db)
	now := candidate.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	model := cartModel{ID: candidate.ID, UserID: userID, CreatedAt: now, UpdatedAt: now}
	if err := conn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&model).Error; err != nil {
		return domain.Cart{}, database.WrapError("carts.create", err)
	}

	return r.FindByUser(ctx, userID)
}

func (r *CartRepository) FindByUser(ctx context.Context, userID string) (domain.Cart, error) {
	var stored cartModel
	if err := database.Conn(ctx, r.db).Where("user_id = ?", strings.TrimSpace(userID)).Take(&stored).Error; err != nil {
		return domain.Cart{}, database.WrapError("carts.get", err)
	}
	lines, err := r.ListLines(ctx, stored.ID)
	if err != nil {
		return domain.Cart{}, err
	}
	return domain.Cart{
		ID:        stored.ID,
		UserID:    stored.UserID,
		Lines:     lines,
		CreatedAt: stored.CreatedAt.UTC(),
		UpdatedAt: stored.UpdatedAt.UTC(),
	}, nil
}

// FindLine returns the line matching the (product, variant, size) key.
func (r *CartRepository) FindLine(ctx context.Context, cartID string, key repositories.CartLineKey) (domain.CartLine, error) {
	var model cartLineModel
	err := database.Conn(ctx, r.db).
		Where("cart_id = ? AND product_id = ? AND variant_id = ? AND size = ?",
			cartID, key.ProductID, key.VariantID, key.Size).
		Take(&model).Error
	if err != nil {
		return domain.CartLine{}, database.WrapError("cart_lines.find", err)
	}
	return toDomainCartLine(model), nil
}

// FindLineByID returns a line only when it belongs to cartID.
func (r *CartRepository) FindLineByID(ctx context.Context, cartID, lineID string) (domain.CartLine, error) {
	var model cartLineModel
	err := database.Conn(ctx, r.db).
		Where("id = ? AND cart_id = ?", lineID, cartID).
		Take(&model).Error
	if err != nil {
		return domain.CartLine{}, database.WrapError("cart_lines.find_by_id", err)
	}
	return toDomainCartLine(model), nil
}

func (r *CartRepository) InsertLine(ctx context.Context, line domain.CartLine) error {
	model := cartLineModel{
		ID:        line.ID,
		CartID:    line.CartID,
		ProductID: line.ProductID,
		VariantID: line.VariantID,
		Size:      line.Size,
		Quantity:  line.Quantity,
		CreatedAt: line.CreatedAt,
		UpdatedAt: line.UpdatedAt,
	}
	if err := database.Conn(ctx, r.db).Create(&model).Error; err != nil {
		return database.WrapError("cart_lines.insert", err)
	}
	return r.touch(ctx, line.CartID, line.UpdatedAt)
}

func (r *CartRepository) UpdateLineQuantity(ctx context.Context, line domain.CartLine) error {
	result := database.Conn(ctx, r.db).
		Model(&cartLineModel{}).
		Where("id = ? AND cart_id = ?", line.ID, line.CartID).
		Updates(map[string]any{"quantity": line.Quantity, "updated_at": line.UpdatedAt})
	if result.Error != nil {
		return database.WrapError("cart_lines.update", result.Error)
	}
	if result.RowsAffected == 0 {
		return database.WrapError("cart_lines.update", gorm.ErrRecordNotFound)
	}
	return r.touch(ctx, line.CartID, line.UpdatedAt)
}

func (r *CartRepository) DeleteLine(ctx context.Context, cartID, lineID string) error {
	result := database.Conn(ctx, r.db).
		Where("id = ? AND cart_id = ?", lineID, cartID).
		Delete(&cartLineModel{})
	if result.Error != nil {
		return database.WrapError("cart_lines.delete", result.Error)
	}
	if result.RowsAffected == 0 {
		return database.WrapError("cart_lines.delete", gorm.ErrRecordNotFound)
	}
	return r.touch(ctx, cartID, time.Now().UTC())
}

// ListLines returns the lines in insertion order.
func (r *CartRepository) ListLines(ctx context.Context, cartID string) ([]domain.CartLine, error) {
	return r.listLines(ctx, database.Conn(ctx, r.db), cartID, "cart_lines.list")
}

func (r *CartRepository) LockLines(ctx context.Context, cartID string) ([]domain.CartLine, error) {
	return r.listLines(ctx, database.ForUpdate(database.Conn(ctx, r.db)), cartID, "cart_lines.lock")
}

func (r *CartRepository) listLines(_ context.Context, conn *gorm.DB, cartID, op string) ([]domain.CartLine, error) {
	var models []cartLineModel
	err := conn.Where("cart_id = ?", cartID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, database.WrapError(op, err)
	}
	lines := make([]domain.CartLine, 0, len(models))
	for _, model := range models {
		lines = append(lines, toDomainCartLine(model))
	}
	return lines, nil
}

func (r *CartRepository) ClearLines(ctx context.Context, cartID string) error {
	if err := database.Conn(ctx, r.db).
		Where("cart_id = ?", cartID).
		Delete(&cartLineModel{}).Error; err != nil {
		return database.WrapError("cart_lines.clear", err)
	}
	return r.touch(ctx, cartID, time.Now().UTC())
}

func (r *CartRepository) touch(ctx context.Context, cartID string, at time.Time) error {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	err := database.Conn(ctx, r.db).
		Model(&cartModel{}).
		Where("id = ?", cartID).
		Update("updated_at", at).Error
	return database.WrapError("carts.touch", err)
}
