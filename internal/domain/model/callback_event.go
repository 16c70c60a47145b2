package model

import (
	"time"

	"gorm.io/datatypes"
)

// CallbackKind identifies which gateway webhook delivered an event
type CallbackKind string

const (
	CallbackKindSTKPush         CallbackKind = "stk_push"
	CallbackKindReversalResult  CallbackKind = "reversal_result"
	CallbackKindReversalTimeout CallbackKind = "reversal_timeout"
)

// CallbackEventStatus represents the processing outcome of a delivery
type CallbackEventStatus string

const (
	CallbackEventReceived  CallbackEventStatus = "received"
	CallbackEventProcessed CallbackEventStatus = "processed"
	CallbackEventDuplicate CallbackEventStatus = "duplicate"
	CallbackEventFailed    CallbackEventStatus = "failed"
)

// CallbackEvent stores every raw webhook delivery for audit and replay.
type CallbackEvent struct {
	ID            int64               `gorm:"primaryKey;autoIncrement" json:"id"`
	Kind          CallbackKind        `gorm:"size:30;not null;index" json:"kind"`
	CorrelationID *string             `gorm:"column:correlation_id;size:100;index" json:"correlation_id,omitempty"`
	Payload       datatypes.JSON      `gorm:"not null" json:"payload"`
	Status        CallbackEventStatus `gorm:"size:20;not null;index" json:"status"`
	Error         *string             `gorm:"type:text" json:"error,omitempty"`
	ReceivedAt    time.Time           `gorm:"not null" json:"received_at"`
	ProcessedAt   *time.Time          `json:"processed_at,omitempty"`
}

// TableName specifies the table name for GORM
func (CallbackEvent) TableName() string {
	return "mpesa_callback_events"
}
