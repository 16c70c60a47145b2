package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Health labels for a reconciliation match rate.
const (
	HealthExcellent = "excellent"
	HealthGood      = "good"
	HealthFair      = "fair"
	HealthPoor      = "poor"
)

// Discrepancy severities, by absolute amount difference.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// ReconciliationSummary is the outcome of a range run.
type ReconciliationSummary struct {
	Start      time.Time               `json:"start" yaml:"start"`
	End        time.Time               `json:"end" yaml:"end"`
	Total      int                     `json:"total" yaml:"total"`
	Matched    int                     `json:"matched" yaml:"matched"`
	Discrepant int                     `json:"discrepant" yaml:"discrepant"`
	Errored    int                     `json:"errored" yaml:"errored"`
	Errors     []ReconciliationFailure `json:"errors,omitempty" yaml:"errors,omitempty"`
}

type ReconciliationFailure struct {
	PaymentID uuid.UUID `json:"payment_id" yaml:"payment_id"`
	Error     string    `json:"error" yaml:"error"`
}

type Discrepancy struct {
	PaymentID        uuid.UUID       `json:"payment_id" yaml:"payment_id"`
	ReceiptCode      string          `json:"receipt_code" yaml:"receipt_code"`
	GatewayAmount    decimal.Decimal `json:"gateway_amount" yaml:"gateway_amount"`
	SystemAmount     decimal.Decimal `json:"system_amount" yaml:"system_amount"`
	AmountDifference decimal.Decimal `json:"amount_difference" yaml:"amount_difference"`
	Severity         string          `json:"severity" yaml:"severity"`
	Notes            string          `json:"notes,omitempty" yaml:"notes,omitempty"`
	ReconciledAt     time.Time       `json:"reconciled_at" yaml:"reconciled_at"`
}

// ReconciliationReport aggregates records reconciled within a period.
type ReconciliationReport struct {
	Start            time.Time       `json:"start" yaml:"start"`
	End              time.Time       `json:"end" yaml:"end"`
	TotalRecords     int             `json:"total_records" yaml:"total_records"`
	Matched          int             `json:"matched" yaml:"matched"`
	Unmatched        int             `json:"unmatched" yaml:"unmatched"`
	ManualOverrides  int             `json:"manual_overrides" yaml:"manual_overrides"`
	MatchRate        decimal.Decimal `json:"match_rate" yaml:"match_rate"`
	SystemTotal      decimal.Decimal `json:"system_total" yaml:"system_total"`
	GatewayTotal     decimal.Decimal `json:"gateway_total" yaml:"gateway_total"`
	TotalDiscrepancy decimal.Decimal `json:"total_discrepancy" yaml:"total_discrepancy"`
	Health           string          `json:"health" yaml:"health"`
	Discrepancies    []Discrepancy   `json:"discrepancies" yaml:"discrepancies"`
	GeneratedAt      time.Time       `json:"generated_at" yaml:"generated_at"`
}
