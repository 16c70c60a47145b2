package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentStatus represents the lifecycle state of an STK push payment
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed
}

// Payment is one push-payment attempt for an order. Rows are never deleted.
type Payment struct {
	ID                uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
	OrderRef          string              `gorm:"column:order_ref;size:100;not null;index" json:"order_ref"`
	UserRef           *string             `gorm:"column:user_ref;size:100;index" json:"user_ref,omitempty"`
	Amount            decimal.Decimal     `gorm:"type:decimal(15,2);not null" json:"amount"`
	PhoneNumber       string              `gorm:"column:phone_number;size:12;not null" json:"phone_number"`
	Description       string              `gorm:"size:255" json:"description,omitempty"`
	CheckoutRequestID *string             `gorm:"column:checkout_request_id;size:100;uniqueIndex" json:"checkout_request_id,omitempty"`
	MerchantRequestID *string             `gorm:"column:merchant_request_id;size:100" json:"merchant_request_id,omitempty"`
	ReceiptCode       *string             `gorm:"column:receipt_code;size:50;uniqueIndex" json:"receipt_code,omitempty"`
	SettledAmount     decimal.NullDecimal `gorm:"type:decimal(15,2)" json:"settled_amount"`
	Status            PaymentStatus       `gorm:"size:20;not null;index" json:"status"`
	ResultCode        *int                `json:"result_code,omitempty"`
	ResultDesc        *string             `gorm:"size:255" json:"result_desc,omitempty"`
	CompletedAt       *time.Time          `gorm:"index" json:"completed_at,omitempty"`
	LastPolledAt      *time.Time          `gorm:"index" json:"last_polled_at,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Payment) TableName() string {
	return "payments"
}

// BeforeCreate assigns the opaque identifier.
func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Settled returns the amount the gateway confirmed, or the requested amount
// when the callback carried none.
func (p *Payment) Settled() decimal.Decimal {
	if p.SettledAmount.Valid {
		return p.SettledAmount.Decimal
	}
	return p.Amount
}

// PaymentTransition is the outcome applied to a pending payment by a callback
// or a definitive status query.
type PaymentTransition struct {
	Status        PaymentStatus
	ReceiptCode   *string
	SettledAmount decimal.NullDecimal
	ResultCode    int
	ResultDesc    string
	CompletedAt   time.Time
}
