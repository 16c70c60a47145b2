package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/farunova-art/farunova-sub001/internal/domain/model"
)

// PaymentRepository defines the interface for payment data access
type PaymentRepository interface {
	Create(ctx context.Context, payment *model.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Payment, error)
	GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*model.Payment, error)
	GetByReceiptCode(ctx context.Context, receiptCode string) (*model.Payment, error)
	ListByOrderRef(ctx context.Context, orderRef string) ([]*model.Payment, error)
	// SetGatewayReference records the correlation ids returned by the push request.
	SetGatewayReference(ctx context.Context, id uuid.UUID, checkoutRequestID, merchantRequestID string) error
	// TransitionFromPending applies the transition only while the payment is still
	// pending. It returns false when another delivery already moved it.
	TransitionFromPending(ctx context.Context, checkoutRequestID string, transition model.PaymentTransition) (bool, error)
	// ListStalePending returns pending payments created before olderThan, never-polled
	// first and then least recently polled.
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]*model.Payment, error)
	MarkPolled(ctx context.Context, id uuid.UUID, at time.Time) error
	ListCompletedBetween(ctx context.Context, start, end time.Time) ([]*model.Payment, error)
}
