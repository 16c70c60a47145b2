package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domainErrors "github.com/farunova-art/farunova-sub001/internal/domain/errors"
	"github.com/farunova-art/farunova-sub001/internal/domain/model"
	domainRepo "github.com/farunova-art/farunova-sub001/internal/domain/repository"
)

type refundRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewRefundRepository creates a new refund repository
func NewRefundRepository(db *gorm.DB, logger *zap.Logger) domainRepo.RefundRepository {
	return &refundRepository{
		db:     db,
		logger: logger,
	}
}

// CreateWithinBalance locks the payment row, sums committed refunds and inserts the
// refund in one transaction.
func (r *refundRepository) CreateWithinBalance(ctx context.Context, refund *model.Refund, settled decimal.Decimal) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockPayment(tx, refund.PaymentID); err != nil {
			return err
		}

		committed, err := sumCommitted(tx, refund.PaymentID)
		if err != nil {
			return err
		}

		if committed.Add(refund.Amount).GreaterThan(settled) {
			return domainErrors.NewRefundLimitError(refund.Amount, settled.Sub(committed))
		}

		if err := tx.Create(refund).Error; err != nil {
			return fmt.Errorf("failed to create refund: %w", err)
		}

		r.logger.Info("Refund created",
			zap.String("refund_id", refund.ID.String()),
			zap.String("payment_id", refund.PaymentID.String()),
			zap.String("amount", refund.Amount.StringFixed(2)),
			zap.String("committed_before", committed.StringFixed(2)))
		return nil
	})
}

func (r *refundRepository) MarkProcessing(ctx context.Context, refundID uuid.UUID, approver string, settled decimal.Decimal) (*model.Refund, error) {
	var refund model.Refund

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", refundID).
			First(&refund).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domainErrors.NewNotFoundError("refund", refundID.String())
			}
			return fmt.Errorf("failed to get refund: %w", err)
		}

		if refund.IsDenied() {
			return domainErrors.NewInvalidStateError("refund %s was denied by %s and cannot be approved", refund.ID, *refund.DeniedBy)
		}
		if refund.Status != model.RefundStatusPending && refund.Status != model.RefundStatusFailed {
			return domainErrors.NewInvalidStateError("refund %s is %s and cannot be approved", refund.ID, refund.Status)
		}

		if err := lockPayment(tx, refund.PaymentID); err != nil {
			return err
		}

		committed, err := sumCommitted(tx, refund.PaymentID)
		if err != nil {
			return err
		}

		if committed.Add(refund.Amount).GreaterThan(settled) {
			return domainErrors.NewRefundLimitError(refund.Amount, settled.Sub(committed))
		}

		now := time.Now().UTC()
		result := tx.Model(&model.Refund{}).
			Where("id = ? AND status = ? AND denied_by IS NULL", refund.ID, refund.Status).
			Updates(map[string]interface{}{
				"status":      model.RefundStatusProcessing,
				"approved_by": approver,
				"updated_at":  now,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to mark refund processing: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return domainErrors.NewInvalidStateError("refund %s changed concurrently", refund.ID)
		}

		refund.Status = model.RefundStatusProcessing
		refund.ApprovedBy = &approver
		refund.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &refund, nil
}

func (r *refundRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Refund, error) {
	return r.first(ctx, r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *refundRepository) GetByConversationID(ctx context.Context, conversationID string) (*model.Refund, error) {
	return r.first(ctx, r.db.WithContext(ctx).Where("conversation_id = ?", conversationID))
}

// GetLatestInFlight returns the most recently submitted refund still awaiting a result.
func (r *refundRepository) GetLatestInFlight(ctx context.Context) (*model.Refund, error) {
	query := r.db.WithContext(ctx).
		Where("status IN ?", []model.RefundStatus{model.RefundStatusProcessing, model.RefundStatusPending}).
		Order("CASE WHEN status = 'processing' THEN 0 ELSE 1 END").
		Order("updated_at DESC")
	return r.first(ctx, query)
}

func (r *refundRepository) first(ctx context.Context, query *gorm.DB) (*model.Refund, error) {
	var refund model.Refund
	if err := query.First(&refund).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get refund: %w", err)
	}
	return &refund, nil
}

func (r *refundRepository) ListByPaymentID(ctx context.Context, paymentID uuid.UUID) ([]*model.Refund, error) {
	var refunds []*model.Refund
	err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("created_at ASC").
		Find(&refunds).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list refunds: %w", err)
	}
	return refunds, nil
}

func (r *refundRepository) SumCommitted(ctx context.Context, paymentID uuid.UUID) (decimal.Decimal, error) {
	return sumCommitted(r.db.WithContext(ctx), paymentID)
}

func (r *refundRepository) SetSubmitted(ctx context.Context, refundID uuid.UUID, conversationID, originatorConversationID string) error {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&model.Refund{}).
		Where("id = ?", refundID).
		Updates(map[string]interface{}{
			"conversation_id":            conversationID,
			"originator_conversation_id": originatorConversationID,
			"submitted_at":               now,
			"updated_at":                 now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to record reversal submission: %w", result.Error)
	}
	return nil
}

func (r *refundRepository) Resolve(ctx context.Context, refundID uuid.UUID, from []model.RefundStatus, to model.RefundStatus, receiptCode *string, notes string) (bool, error) {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": now,
	}
	if receiptCode != nil {
		updates["receipt_code"] = *receiptCode
	}
	if notes != "" {
		updates["notes"] = notes
	}
	if to == model.RefundStatusCompleted {
		updates["completed_at"] = now
	}

	result := r.db.WithContext(ctx).
		Model(&model.Refund{}).
		Where("id = ? AND status IN ?", refundID, from).
		Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("failed to resolve refund: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *refundRepository) Deny(ctx context.Context, refundID uuid.UUID, deniedBy, notes string) (bool, error) {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&model.Refund{}).
		Where("id = ? AND status = ?", refundID, model.RefundStatusPending).
		Updates(map[string]interface{}{
			"status":     model.RefundStatusFailed,
			"denied_by":  deniedBy,
			"denied_at":  now,
			"notes":      notes,
			"updated_at": now,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to deny refund: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func lockPayment(tx *gorm.DB, paymentID uuid.UUID) error {
	var payment model.Payment
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id = ?", paymentID).
		First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domainErrors.NewNotFoundError("payment", paymentID.String())
		}
		return fmt.Errorf("failed to lock payment: %w", err)
	}
	return nil
}

func sumCommitted(db *gorm.DB, paymentID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := db.Model(&model.Refund{}).
		Select("SUM(amount)").
		Where("payment_id = ? AND status IN ?", paymentID, model.CommittedRefundStatuses).
		Row().
		Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum refunds: %w", err)
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}
