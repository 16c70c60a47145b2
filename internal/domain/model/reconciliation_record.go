package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReconciliationRecord compares a completed payment with the gateway-confirmed amount.
// There is at most one record per payment.
type ReconciliationRecord struct {
	ID               int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	PaymentID        uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex" json:"payment_id"`
	ReceiptCode      string          `gorm:"column:receipt_code;size:50;not null" json:"receipt_code"`
	GatewayAmount    decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"gateway_amount"`
	SystemAmount     decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"system_amount"`
	AmountDifference decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount_difference"`
	Matched          bool            `gorm:"not null;index" json:"matched"`
	ManualOverride   bool            `gorm:"not null" json:"manual_override"`
	Notes            *string         `gorm:"type:text" json:"notes,omitempty"`
	ReconciledBy     *string         `gorm:"size:100" json:"reconciled_by,omitempty"`
	ReconciledAt     time.Time       `gorm:"not null;index" json:"reconciled_at"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (ReconciliationRecord) TableName() string {
	return "reconciliation_records"
}
