package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Event types published on state transitions.
const (
	EventPaymentCompleted         = "payment.completed"
	EventPaymentFailed            = "payment.failed"
	EventRefundProcessing         = "refund.processing"
	EventRefundCompleted          = "refund.completed"
	EventRefundFailed             = "refund.failed"
	EventReconciliationMismatched = "reconciliation.discrepancy"
)

// EventPublisher is satisfied by messaging.RedisClient.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// Event is the message body published for every transition.
type Event struct {
	Type        string          `json:"type"`
	PaymentID   uuid.UUID       `json:"payment_id"`
	RefundID    *uuid.UUID      `json:"refund_id,omitempty"`
	OrderRef    string          `json:"order_ref,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Status      string          `json:"status"`
	ReceiptCode string          `json:"receipt_code,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// EventEmitter publishes events to "<prefix>.<type>" channels. Publishing is best
// effort: a failure is logged and never fails the transition that caused it.
// A nil *EventEmitter publishes nothing.
type EventEmitter struct {
	publisher EventPublisher
	prefix    string
	logger    *zap.Logger
}

func NewEventEmitter(publisher EventPublisher, prefix string, logger *zap.Logger) *EventEmitter {
	if publisher == nil {
		return nil
	}
	return &EventEmitter{publisher: publisher, prefix: prefix, logger: logger}
}

func (e *EventEmitter) Emit(ctx context.Context, event Event) {
	if e == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	channel := event.Type
	if e.prefix != "" {
		channel = e.prefix + "." + event.Type
	}
	if err := e.publisher.Publish(ctx, channel, event); err != nil {
		e.logger.Warn("Failed to publish event",
			zap.String("channel", channel),
			zap.String("payment_id", event.PaymentID.String()),
			zap.Error(err))
	}
}
