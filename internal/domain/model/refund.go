package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RefundStatus represents the state of a refund
type RefundStatus string

const (
	RefundStatusPending    RefundStatus = "pending"
	RefundStatusProcessing RefundStatus = "processing"
	RefundStatusCompleted  RefundStatus = "completed"
	RefundStatusFailed     RefundStatus = "failed"
)

// IsTerminal reports whether the refund will not change again without operator action.
func (s RefundStatus) IsTerminal() bool {
	return s == RefundStatusCompleted || s == RefundStatusFailed
}

// CommittedRefundStatuses count against a payment's refundable balance.
var CommittedRefundStatuses = []RefundStatus{RefundStatusProcessing, RefundStatusCompleted}

// Refund is a full or partial reversal of a completed payment.
type Refund struct {
	ID                       uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	PaymentID                uuid.UUID       `gorm:"type:uuid;not null;index" json:"payment_id"`
	OrderRef                 string          `gorm:"column:order_ref;size:100;not null" json:"order_ref"`
	Amount                   decimal.Decimal `gorm:"type:decimal(15,2);not null;check:chk_refunds_amount_positive,amount > 0" json:"amount"`
	Reason                   string          `gorm:"size:255" json:"reason"`
	Status                   RefundStatus    `gorm:"size:20;not null;index" json:"status"`
	RequestedBy              string          `gorm:"size:100;not null" json:"requested_by"`
	ApprovedBy               *string         `gorm:"size:100" json:"approved_by,omitempty"`
	DeniedBy                 *string         `gorm:"size:100" json:"denied_by,omitempty"`
	ReceiptCode              *string         `gorm:"column:receipt_code;size:50" json:"receipt_code,omitempty"`
	ConversationID           *string         `gorm:"column:conversation_id;size:100;index" json:"conversation_id,omitempty"`
	OriginatorConversationID *string         `gorm:"column:originator_conversation_id;size:100" json:"originator_conversation_id,omitempty"`
	Notes                    *string         `gorm:"type:text" json:"notes,omitempty"`
	SubmittedAt              *time.Time      `json:"submitted_at,omitempty"`
	CompletedAt              *time.Time      `json:"completed_at,omitempty"`
	DeniedAt                 *time.Time      `json:"denied_at,omitempty"`
	CreatedAt                time.Time       `json:"created_at"`
	UpdatedAt                time.Time       `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Refund) TableName() string {
	return "refunds"
}

// IsDenied reports whether an operator rejected the refund. Denied refunds are final.
func (r *Refund) IsDenied() bool {
	return r.DeniedBy != nil
}

func (r *Refund) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
