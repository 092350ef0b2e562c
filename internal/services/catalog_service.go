package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloth-shop/api/internal/repositories"
)

// CatalogServiceDeps bundles collaborators for the catalog lookup service.
type CatalogServiceDeps struct {
	Catalog repositories.CatalogRepository
}

type catalogService struct {
	catalog repositories.CatalogRepository
}

// NewCatalogService constructs a CatalogService backed by the catalog read model.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Catalog == nil {
		return nil, errors.New("catalog service: catalog repository is required")
	}
	return &catalogService{catalog: deps.Catalog}, nil
}

// ResolvePriceAndStock prices one unit of a product. The variant, when given, must belong to
// the product and adds its price adjustment. Stock is bounded only for a size of a variant
// that tracks per-size stock; a size missing from that map has no stock.
func (s *catalogService) ResolvePriceAndStock(ctx context.Context, productID, variantID, size string) (PriceQuote, error) {
	productID = strings.TrimSpace(productID)
	variantID = strings.TrimSpace(variantID)
	size = strings.TrimSpace(size)
	if productID == "" {
		return PriceQuote{}, fmt.Errorf("%w: product id is required", ErrValidation)
	}

	product, err := s.catalog.FindProduct(ctx, productID)
	if err != nil {
		return PriceQuote{}, mapRepositoryError(err, ErrProductNotFound)
	}
	if !product.IsActive {
		return PriceQuote{}, fmt.Errorf("%w: product %s is not available", ErrProductNotFound, productID)
	}

	quote := PriceQuote{
		ProductID:   product.ID,
		ProductName: product.Name,
		Size:        size,
		UnitPrice:   product.EffectivePrice(),
		Unlimited:   true,
	}
	if variantID == "" {
		return quote, nil
	}

	variant, err := s.catalog.FindVariant(ctx, productID, variantID)
	if err != nil {
		return PriceQuote{}, mapRepositoryError(err, ErrVariantNotFound)
	}
	quote.VariantID = variant.ID
	quote.VariantName = variant.Name
	quote.UnitPrice = quote.UnitPrice.Add(variant.PriceAdjustment)

	if size != "" && variant.Stocked() {
		quote.Unlimited = false
		quote.Available = variant.SizeStock[size]
	}
	return quote, nil
}
