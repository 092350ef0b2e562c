package postgres

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	domain "github.com/cloth-shop/api/internal/domain"
	"github.com/cloth-shop/api/internal/platform/database"
)

// CatalogRepository reads products and variants from the catalog tables.
type CatalogRepository struct {
	db *gorm.DB
}

// NewCatalogRepository constructs a postgres-backed catalog reader.
func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// FindProduct loads a product by ID regardless of its active flag.
func (r *CatalogRepository) FindProduct(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.db == nil {
		return domain.Product{}, errors.New("catalog repository not initialised")
	}
	var model productModel
	err := database.Conn(ctx, r.db).
		Where("id = ?", strings.TrimSpace(productID)).
		Take(&model).Error
	if err != nil {
		return domain.Product{}, database.WrapError("catalog.product.find", err)
	}
	return toDomainProduct(model), nil
}

// FindVariant loads a variant of the given product together with its size stock.
func (r *CatalogRepository) FindVariant(ctx context.Context, productID, variantID string) (domain.ProductVariant, error) {
	if r == nil || r.db == nil {
		return domain.ProductVariant{}, errors.New("catalog repository not initialised")
	}
	var model productVariantModel
	err := database.Conn(ctx, r.db).
		Preload("Sizes").
		Where("id = ? AND product_id = ?", strings.TrimSpace(variantID), strings.TrimSpace(productID)).
		Take(&model).Error
	if err != nil {
		return domain.ProductVariant{}, database.WrapError("catalog.variant.find", err)
	}
	return toDomainVariant(model), nil
}
