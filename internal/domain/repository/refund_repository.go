package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/farunova-art/farunova-sub001/internal/domain/model"
)

// RefundRepository defines the interface for refund data access
type RefundRepository interface {
	// CreateWithinBalance inserts a pending refund after checking, under a row lock on
	// the payment, that committed refunds plus amount stay within settled.
	CreateWithinBalance(ctx context.Context, refund *model.Refund, settled decimal.Decimal) error
	// MarkProcessing moves a pending or failed refund to processing after the same
	// balance check, counting the refund itself. Denied refunds are rejected.
	MarkProcessing(ctx context.Context, refundID uuid.UUID, approver string, settled decimal.Decimal) (*model.Refund, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Refund, error)
	GetByConversationID(ctx context.Context, conversationID string) (*model.Refund, error)
	GetLatestInFlight(ctx context.Context) (*model.Refund, error)
	ListByPaymentID(ctx context.Context, paymentID uuid.UUID) ([]*model.Refund, error)
	SumCommitted(ctx context.Context, paymentID uuid.UUID) (decimal.Decimal, error)
	SetSubmitted(ctx context.Context, refundID uuid.UUID, conversationID, originatorConversationID string) error
	// Deny fails a pending refund and records who denied it.
	Deny(ctx context.Context, refundID uuid.UUID, deniedBy, notes string) (bool, error)
	// Resolve sets a terminal status if the refund is currently in one of from.
	Resolve(ctx context.Context, refundID uuid.UUID, from []model.RefundStatus, to model.RefundStatus, receiptCode *string, notes string) (bool, error)
}
