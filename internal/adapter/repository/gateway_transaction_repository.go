package repository

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/farunova-art/farunova-sub001/internal/domain/model"
	domainRepo "github.com/farunova-art/farunova-sub001/internal/domain/repository"
)

type gatewayTransactionRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGatewayTransactionRepository creates a new gateway transaction repository
func NewGatewayTransactionRepository(db *gorm.DB, logger *zap.Logger) domainRepo.GatewayTransactionRepository {
	return &gatewayTransactionRepository{
		db:     db,
		logger: logger,
	}
}

// Save ignores a second delivery of the same receipt.
func (r *gatewayTransactionRepository) Save(ctx context.Context, txn *model.GatewayTransaction) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(txn).Error
	if err != nil {
		return fmt.Errorf("failed to save gateway transaction: %w", err)
	}
	return nil
}

func (r *gatewayTransactionRepository) GetByReceiptCode(ctx context.Context, receiptCode string) (*model.GatewayTransaction, error) {
	var txn model.GatewayTransaction
	err := r.db.WithContext(ctx).Where("receipt_code = ?", receiptCode).First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get gateway transaction: %w", err)
	}
	return &txn, nil
}
