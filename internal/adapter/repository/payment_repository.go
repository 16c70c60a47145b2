package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/farunova-art/farunova-sub001/internal/domain/model"
	domainRepo "github.com/farunova-art/farunova-sub001/internal/domain/repository"
)

type paymentRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db *gorm.DB, logger *zap.Logger) domainRepo.PaymentRepository {
	return &paymentRepository{
		db:     db,
		logger: logger,
	}
}

func (r *paymentRepository) Create(ctx context.Context, payment *model.Payment) error {
	if err := r.db.WithContext(ctx).Create(payment).Error; err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (r *paymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *paymentRepository) GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*model.Payment, error) {
	return r.first(ctx, "checkout_request_id = ?", checkoutRequestID)
}

func (r *paymentRepository) GetByReceiptCode(ctx context.Context, receiptCode string) (*model.Payment, error) {
	return r.first(ctx, "receipt_code = ?", receiptCode)
}

func (r *paymentRepository) first(ctx context.Context, query string, args ...interface{}) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.WithContext(ctx).Where(query, args...).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &payment, nil
}

func (r *paymentRepository) ListByOrderRef(ctx context.Context, orderRef string) ([]*model.Payment, error) {
	var payments []*model.Payment
	err := r.db.WithContext(ctx).
		Where("order_ref = ?", orderRef).
		Order("created_at DESC").
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list payments for order: %w", err)
	}
	return payments, nil
}

func (r *paymentRepository) SetGatewayReference(ctx context.Context, id uuid.UUID, checkoutRequestID, merchantRequestID string) error {
	result := r.db.WithContext(ctx).
		Model(&model.Payment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"checkout_request_id": checkoutRequestID,
			"merchant_request_id": merchantRequestID,
			"updated_at":          time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to set gateway reference: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("payment %s not found", id)
	}
	return nil
}

// TransitionFromPending performs a conditional update guarded by status = 'pending',
// so concurrent deliveries of the same callback apply at most once.
func (r *paymentRepository) TransitionFromPending(ctx context.Context, checkoutRequestID string, transition model.PaymentTransition) (bool, error) {
	updates := map[string]interface{}{
		"status":      transition.Status,
		"result_code": transition.ResultCode,
		"result_desc": transition.ResultDesc,
		"updated_at":  time.Now().UTC(),
	}
	if transition.Status == model.PaymentStatusCompleted {
		updates["receipt_code"] = transition.ReceiptCode
		updates["settled_amount"] = transition.SettledAmount
		updates["completed_at"] = transition.CompletedAt
	}

	result := r.db.WithContext(ctx).
		Model(&model.Payment{}).
		Where("checkout_request_id = ? AND status = ?", checkoutRequestID, model.PaymentStatusPending).
		Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("failed to transition payment: %w", result.Error)
	}

	return result.RowsAffected == 1, nil
}

func (r *paymentRepository) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]*model.Payment, error) {
	var payments []*model.Payment
	err := r.db.WithContext(ctx).
		Where("status = ? AND checkout_request_id IS NOT NULL AND created_at < ?", model.PaymentStatusPending, olderThan).
		Order("CASE WHEN last_polled_at IS NULL THEN 0 ELSE 1 END").
		Order("last_polled_at ASC").
		Order("created_at ASC").
		Limit(limit).
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stale pending payments: %w", err)
	}
	return payments, nil
}

func (r *paymentRepository) MarkPolled(ctx context.Context, id uuid.UUID, at time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&model.Payment{}).
		Where("id = ?", id).
		UpdateColumn("last_polled_at", at).Error
	if err != nil {
		return fmt.Errorf("failed to mark payment polled: %w", err)
	}
	return nil
}

func (r *paymentRepository) ListCompletedBetween(ctx context.Context, start, end time.Time) ([]*model.Payment, error) {
	var payments []*model.Payment
	err := r.db.WithContext(ctx).
		Where("status = ? AND completed_at >= ? AND completed_at < ?", model.PaymentStatusCompleted, start, end).
		Order("completed_at ASC").
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list completed payments: %w", err)
	}
	return payments, nil
}
