package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/farunova-art/farunova-sub001/internal/domain/model"
)

// ReconciliationRepository defines the interface for reconciliation record access
type ReconciliationRepository interface {
	GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*model.ReconciliationRecord, error)
	// Upsert writes the single record for record.PaymentID.
	Upsert(ctx context.Context, record *model.ReconciliationRecord) error
	ListUnmatched(ctx context.Context) ([]*model.ReconciliationRecord, error)
	ListBetween(ctx context.Context, start, end time.Time) ([]*model.ReconciliationRecord, error)
}

// GatewayTransactionRepository defines access to gateway-confirmed settlements
type GatewayTransactionRepository interface {
	// Save is idempotent on receipt code.
	Save(ctx context.Context, txn *model.GatewayTransaction) error
	GetByReceiptCode(ctx context.Context, receiptCode string) (*model.GatewayTransaction, error)
}

// CallbackEventRepository stores raw webhook deliveries
type CallbackEventRepository interface {
	Save(ctx context.Context, event *model.CallbackEvent) error
	MarkResult(ctx context.Context, id int64, status model.CallbackEventStatus, errMsg *string) error
	ListByCorrelationID(ctx context.Context, correlationID string) ([]*model.CallbackEvent, error)
}
