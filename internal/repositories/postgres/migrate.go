package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/cloth-shop/api/internal/platform/database"
)

const (
	indexPaymentsOrderSucceeded = "idx_payments_order_succeeded"
	indexRefundsPaymentInFlight = "idx_refunds_payment_in_flight"
)

// partialIndexes back the single-succeeded-payment and single-in-flight-refund rules.
var partialIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS ` + indexPaymentsOrderSucceeded +
		` ON payments (order_id) WHERE status = 'succeeded'`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ` + indexRefundsPaymentInFlight +
		` ON refunds (payment_id) WHERE status = 'processing' OR status = 'succeeded'`,
}

// Migrate creates or updates the schema owned by this service. The catalog and address
// tables are included so local environments can run against an empty database.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("postgres: migrate requires a database handle")
	}
	conn := db.WithContext(ctx)
	if err := conn.AutoMigrate(
		&productModel{},
		&productVariantModel{},
		&variantSizeStockModel{},
		&addressModel{},
		&cartModel{},
		&cartLineModel{},
		&orderModel{},
		&orderItemModel{},
		&orderTrackingModel{},
		&paymentModel{},
		&refundModel{},
	); err != nil {
		return database.WrapError("postgres.migrate", err)
	}
	for _, stmt := range partialIndexes {
		if err := conn.Exec(stmt).Error; err != nil {
			return database.WrapError("postgres.migrate.index", err)
		}
	}
	return nil
}
