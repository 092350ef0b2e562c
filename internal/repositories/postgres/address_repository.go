package postgres

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	domain "github.com/cloth-shop/api/internal/domain"
	"github.com/cloth-shop/api/internal/platform/database"
)

// AddressRepository reads saved user addresses.
type AddressRepository struct {
	db *gorm.DB
}

// NewAddressRepository constructs a postgres-backed address reader.
func NewAddressRepository(db *gorm.DB) *AddressRepository {
	return &AddressRepository{db: db}
}

// FindByID returns the address only when it belongs to userID; other users' addresses are
// reported as not found.
func (r *AddressRepository) FindByID(ctx context.Context, userID, addressID string) (domain.Address, error) {
	if r == nil || r.db == nil {
		return domain.Address{}, errors.New("address repository not initialised")
	}
	var model addressModel
	err := database.Conn(ctx, r.db).
		Where("id = ? AND user_id = ?", strings.TrimSpace(addressID), strings.TrimSpace(userID)).
		Take(&model).Error
	if err != nil {
		return domain.Address{}, database.WrapError("addresses.find", err)
	}
	return toDomainAddress(model), nil
}
