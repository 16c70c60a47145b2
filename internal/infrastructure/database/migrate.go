package database

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/farunova-art/farunova-sub001/internal/domain/model"
)

// Migrate runs database migrations
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	logger.Info("Running database migrations...")

	err := db.AutoMigrate(
		&model.Payment{},
		&model.Refund{},
		&model.ReconciliationRecord{},
		&model.GatewayTransaction{},
		&model.CallbackEvent{},
	)
	if err != nil {
		logger.Error("Failed to run migrations", zap.Error(err))
		return fmt.Errorf("failed to auto-migrate: %w", err)
	}

	if err := createCustomIndexes(db); err != nil {
		logger.Error("Failed to create custom indexes", zap.Error(err))
		return err
	}

	logger.Info("Database migrations completed")
	return nil
}

// createCustomIndexes adds partial indexes for the poller and refund balance queries.
func createCustomIndexes(db *gorm.DB) error {
	statements := []string{
		`CREATE INDEX IF NOT EXISTS idx_payments_pending_created ON payments (created_at) WHERE status = 'pending'`,
		`CREATE INDEX IF NOT EXISTS idx_refunds_committed ON refunds (payment_id) WHERE status IN ('processing', 'completed')`,
		`CREATE INDEX IF NOT EXISTS idx_reconciliation_unmatched ON reconciliation_records (amount_difference) WHERE matched = false`,
	}

	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}
