package usecase

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/farunova-art/farunova-sub001/internal/domain/model"
	domainRepo "github.com/farunova-art/farunova-sub001/internal/domain/repository"
)

// callbackLog records raw webhook deliveries. Storage failures are logged only, so
// an audit outage never makes the gateway redeliver.
type callbackLog struct {
	events domainRepo.CallbackEventRepository
	logger *zap.Logger
}

func (l *callbackLog) received(ctx context.Context, kind model.CallbackKind, correlationID string, payload []byte) *model.CallbackEvent {
	if l.events == nil {
		return nil
	}

	event := &model.CallbackEvent{
		Kind:    kind,
		Payload: datatypes.JSON(payload),
		Status:  model.CallbackEventReceived,
	}
	if correlationID != "" {
		event.CorrelationID = &correlationID
	}

	if err := l.events.Save(ctx, event); err != nil {
		l.logger.Warn("Failed to record callback delivery",
			zap.String("kind", string(kind)),
			zap.String("correlation_id", correlationID),
			zap.Error(err))
		return nil
	}
	return event
}

func (l *callbackLog) finish(ctx context.Context, event *model.CallbackEvent, duplicate bool, procErr error) {
	if event == nil {
		return
	}

	status := model.CallbackEventProcessed
	var errMsg *string
	switch {
	case procErr != nil:
		status = model.CallbackEventFailed
		msg := procErr.Error()
		errMsg = &msg
	case duplicate:
		status = model.CallbackEventDuplicate
	}

	if err := l.events.MarkResult(ctx, event.ID, status, errMsg); err != nil {
		l.logger.Warn("Failed to update callback delivery",
			zap.Int64("event_id", event.ID),
			zap.Error(err))
	}
}
