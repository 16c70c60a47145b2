package repository

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/farunova-art/farunova-sub001/internal/domain/model"
	domainRepo "github.com/farunova-art/farunova-sub001/internal/domain/repository"
)

type callbackEventRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewCallbackEventRepository creates a new callback event repository
func NewCallbackEventRepository(db *gorm.DB, logger *zap.Logger) domainRepo.CallbackEventRepository {
	return &callbackEventRepository{
		db:     db,
		logger: logger,
	}
}

func (r *callbackEventRepository) Save(ctx context.Context, event *model.CallbackEvent) error {
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		r.logger.Error("Failed to save callback event",
			zap.String("kind", string(event.Kind)),
			zap.Error(err))
		return fmt.Errorf("failed to save callback event: %w", err)
	}
	return nil
}

func (r *callbackEventRepository) MarkResult(ctx context.Context, id int64, status model.CallbackEventStatus, errMsg *string) error {
	err := r.db.WithContext(ctx).
		Model(&model.CallbackEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       status,
			"error":        errMsg,
			"processed_at": time.Now().UTC(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark callback event: %w", err)
	}
	return nil
}

func (r *callbackEventRepository) ListByCorrelationID(ctx context.Context, correlationID string) ([]*model.CallbackEvent, error) {
	var events []*model.CallbackEvent
	err := r.db.WithContext(ctx).
		Where("correlation_id = ?", correlationID).
		Order("received_at ASC, id ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list callback events: %w", err)
	}
	return events, nil
}
