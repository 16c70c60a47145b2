package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// GatewayTransaction is a settlement confirmed by the gateway, keyed by its receipt code.
// It is written from callback metadata and is the confirmed side of reconciliation.
type GatewayTransaction struct {
	ID                int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	ReceiptCode       string          `gorm:"column:receipt_code;size:50;not null;uniqueIndex" json:"receipt_code"`
	CheckoutRequestID string          `gorm:"column:checkout_request_id;size:100;not null;index" json:"checkout_request_id"`
	Amount            decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount"`
	PhoneNumber       *string         `gorm:"column:phone_number;size:12" json:"phone_number,omitempty"`
	TransactionDate   *time.Time      `json:"transaction_date,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// TableName specifies the table name for GORM
func (GatewayTransaction) TableName() string {
	return "gateway_transactions"
}
