package services

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogServiceResolvesVariantAdjustment(t *testing.T) {
	store := newMemStore()
	store.addProduct("prod-1", "Oxford Shirt", "799.00")
	store.addVariant("prod-1", "var-blue", "Blue", "50.50", map[string]int{"M": 3})
	svc, err := NewCatalogService(CatalogServiceDeps{Catalog: store.catalog()})
	require.NoError(t, err)

	quote, err := svc.ResolvePriceAndStock(context.Background(), "prod-1", "var-blue", "M")
	require.NoError(t, err)
	assert.Equal(t, "849.50", quote.UnitPrice.StringFixed(2))
	assert.Equal(t, "Oxford Shirt", quote.ProductName)
	assert.Equal(t, "Blue", quote.VariantName)
	assert.False(t, quote.Unlimited)
	assert.Equal(t, 3, quote.Available)
	assert.True(t, quote.Allows(3))
	assert.False(t, quote.Allows(4))
}

func TestCatalogServicePrefersDiscountPrice(t *testing.T) {
	store := newMemStore()
	store.addProduct("prod-1", "Oxford Shirt", "799.00")
	product := store.products["prod-1"]
	discount := decimal.RequireFromString("599.00")
	product.DiscountPrice = &discount
	store.products["prod-1"] = product
	svc, err := NewCatalogService(CatalogServiceDeps{Catalog: store.catalog()})
	require.NoError(t, err)

	quote, err := svc.ResolvePriceAndStock(context.Background(), "prod-1", "", "")
	require.NoError(t, err)
	assert.Equal(t, "599.00", quote.UnitPrice.StringFixed(2))
	assert.True(t, quote.Unlimited)
}

func TestCatalogServiceRejectsUnknownOrInactiveProducts(t *testing.T) {
	store := newMemStore()
	store.addProduct("prod-1", "Oxford Shirt", "799.00")
	store.addProduct("prod-2", "Retired Tee", "199.00")
	retired := store.products["prod-2"]
	retired.IsActive = false
	store.products["prod-2"] = retired
	store.addVariant("prod-2", "var-other", "Red", "0", nil)
	svc, err := NewCatalogService(CatalogServiceDeps{Catalog: store.catalog()})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = svc.ResolvePriceAndStock(ctx, "missing", "", "")
	assert.ErrorIs(t, err, ErrProductNotFound)

	_, err = svc.ResolvePriceAndStock(ctx, "prod-2", "", "")
	assert.ErrorIs(t, err, ErrProductNotFound)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.ResolvePriceAndStock(ctx, "prod-1", "var-other", "")
	assert.ErrorIs(t, err, ErrVariantNotFound)

	_, err = svc.ResolvePriceAndStock(ctx, " ", "", "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCatalogServiceStockRules(t *testing.T) {
	store := newMemStore()
	store.addProduct("prod-1", "Oxford Shirt", "799.00")
	store.addVariant("prod-1", "var-stocked", "Blue", "0", map[string]int{"M": 2})
	store.addVariant("prod-1", "var-open", "White", "0", nil)
	svc, err := NewCatalogService(CatalogServiceDeps{Catalog: store.catalog()})
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		name      string
		variantID string
		size      string
		unlimited bool
		available int
	}{
		{name: "size missing from stocked variant", variantID: "var-stocked", size: "XL", available: 0},
		{name: "stocked size", variantID: "var-stocked", size: "M", available: 2},
		{name: "no size on stocked variant", variantID: "var-stocked", unlimited: true},
		{name: "variant without stock map", variantID: "var-open", size: "M", unlimited: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			quote, err := svc.ResolvePriceAndStock(ctx, "prod-1", tc.variantID, tc.size)
			require.NoError(t, err)
			assert.Equal(t, tc.unlimited, quote.Unlimited)
			if !tc.unlimited {
				assert.Equal(t, tc.available, quote.Available)
			}
		})
	}
}
