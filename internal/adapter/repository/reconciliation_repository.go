package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/farunova-art/farunova-sub001/internal/domain/model"
	domainRepo "github.com/farunova-art/farunova-sub001/internal/domain/repository"
)

type reconciliationRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewReconciliationRepository creates a new reconciliation record repository
func NewReconciliationRepository(db *gorm.DB, logger *zap.Logger) domainRepo.ReconciliationRepository {
	return &reconciliationRepository{
		db:     db,
		logger: logger,
	}
}

func (r *reconciliationRepository) GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*model.ReconciliationRecord, error) {
	var record model.ReconciliationRecord
	err := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get reconciliation record: %w", err)
	}
	return &record, nil
}

// Upsert keeps exactly one record per payment, updating it in place on re-reconciliation.
func (r *reconciliationRepository) Upsert(ctx context.Context, record *model.ReconciliationRecord) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "payment_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"receipt_code",
				"gateway_amount",
				"system_amount",
				"amount_difference",
				"matched",
				"manual_override",
				"notes",
				"reconciled_by",
				"reconciled_at",
				"updated_at",
			}),
		}).
		Create(record).Error
	if err != nil {
		return fmt.Errorf("failed to upsert reconciliation record: %w", err)
	}
	return nil
}

func (r *reconciliationRepository) ListUnmatched(ctx context.Context) ([]*model.ReconciliationRecord, error) {
	var records []*model.ReconciliationRecord
	err := r.db.WithContext(ctx).
		Where("matched = ?", false).
		Order("amount_difference DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unmatched records: %w", err)
	}
	return records, nil
}

func (r *reconciliationRepository) ListBetween(ctx context.Context, start, end time.Time) ([]*model.ReconciliationRecord, error) {
	var records []*model.ReconciliationRecord
	err := r.db.WithContext(ctx).
		Where("reconciled_at >= ? AND reconciled_at < ?", start, end).
		Order("reconciled_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list reconciliation records: %w", err)
	}
	return records, nil
}
