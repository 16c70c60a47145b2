package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/farunova-art/farunova-sub001/internal/domain/dto"
	paymentErrors "github.com/farunova-art/farunova-sub001/internal/domain/errors"
	"github.com/farunova-art/farunova-sub001/internal/domain/model"
	domainRepo "github.com/farunova-art/farunova-sub001/internal/domain/repository"
	"github.com/farunova-art/farunova-sub001/internal/infrastructure/metrics"
)

var (
	// MatchTolerance is the largest difference treated as a match (exclusive).
	MatchTolerance = decimal.RequireFromString("0.01")

	mediumSeverityFloor = decimal.NewFromInt(1)
	highSeverityFloor   = decimal.NewFromInt(100)

	excellentRate = decimal.RequireFromString("99.5")
	goodRate      = decimal.NewFromInt(95)
	fairRate      = decimal.NewFromInt(90)
)

// ConfirmedTransactionSource returns the amount the gateway confirmed for a receipt.
type ConfirmedTransactionSource interface {
	ConfirmedAmount(ctx context.Context, receiptCode string) (decimal.Decimal, bool, error)
}

// StoredTransactionSource reads confirmations recorded from push callbacks.
type StoredTransactionSource struct {
	transactions domainRepo.GatewayTransactionRepository
}

func NewStoredTransactionSource(transactions domainRepo.GatewayTransactionRepository) *StoredTransactionSource {
	return &StoredTransactionSource{transactions: transactions}
}

func (s *StoredTransactionSource) ConfirmedAmount(ctx context.Context, receiptCode string) (decimal.Decimal, bool, error) {
	txn, err := s.transactions.GetByReceiptCode(ctx, receiptCode)
	if err != nil {
		return decimal.Zero, false, err
	}
	if txn == nil {
		return decimal.Zero, false, nil
	}
	return txn.Amount, true, nil
}

// ReconciliationEngine compares completed payments with gateway confirmations and
// keeps one reconciliation record per payment.
type ReconciliationEngine struct {
	payments domainRepo.PaymentRepository
	records  domainRepo.ReconciliationRepository
	source   ConfirmedTransactionSource
	events   *EventEmitter
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

func NewReconciliationEngine(
	payments domainRepo.PaymentRepository,
	records domainRepo.ReconciliationRepository,
	source ConfirmedTransactionSource,
	events *EventEmitter,
	m *metrics.Metrics,
	logger *zap.Logger,
) *ReconciliationEngine {
	return &ReconciliationEngine{
		payments: payments,
		records:  records,
		source:   source,
		events:   events,
		metrics:  m,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ReconcileOne reconciles a single completed payment.
func (e *ReconciliationEngine) ReconcileOne(ctx context.Context, paymentID uuid.UUID) (*model.ReconciliationRecord, error) {
	payment, err := e.reconcilable(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	receipt := *payment.ReceiptCode

	gatewayAmount, found, err := e.source.ConfirmedAmount(ctx, receipt)
	if err != nil {
		return nil, fmt.Errorf("failed to look up confirmed transaction: %w", err)
	}
	if !found {
		return nil, paymentErrors.NewNotFoundError("confirmed transaction for receipt", receipt)
	}

	existing, err := e.records.GetByPaymentID(ctx, payment.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get reconciliation record: %w", err)
	}
	if existing != nil && existing.ManualOverride {
		// Operator overrides are only replaced by another ManualMatch.
		if !existing.GatewayAmount.Equal(gatewayAmount) {
			e.metrics.ReconciliationResult("override_drift")
			e.logger.Warn("Confirmed amount differs from manual override",
				zap.String("payment_id", payment.ID.String()),
				zap.String("receipt_code", receipt),
				zap.String("override_amount", existing.GatewayAmount.StringFixed(2)),
				zap.String("gateway_amount", gatewayAmount.StringFixed(2)),
				zap.Stringp("reconciled_by", existing.ReconciledBy))
		}
		return existing, nil
	}

	diff := gatewayAmount.Sub(payment.Amount).Abs()
	record := &model.ReconciliationRecord{
		PaymentID:        payment.ID,
		ReceiptCode:      receipt,
		GatewayAmount:    gatewayAmount,
		SystemAmount:     payment.Amount,
		AmountDifference: diff,
		Matched:          diff.LessThan(MatchTolerance),
		ReconciledAt:     e.now(),
	}
	if err := e.records.Upsert(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to save reconciliation record: %w", err)
	}

	if record.Matched {
		e.metrics.ReconciliationResult("matched")
		e.logger.Debug("Payment reconciled",
			zap.String("payment_id", payment.ID.String()),
			zap.String("receipt_code", receipt))
	} else {
		e.metrics.ReconciliationResult("discrepant")
		e.logger.Warn("Reconciliation discrepancy",
			zap.String("payment_id", payment.ID.String()),
			zap.String("receipt_code", receipt),
			zap.String("gateway_amount", gatewayAmount.StringFixed(2)),
			zap.String("system_amount", payment.Amount.StringFixed(2)),
			zap.String("difference", diff.StringFixed(2)))
		e.events.Emit(ctx, Event{
			Type:        EventReconciliationMismatched,
			PaymentID:   payment.ID,
			OrderRef:    payment.OrderRef,
			Amount:      diff,
			Status:      Severity(diff),
			ReceiptCode: receipt,
		})
	}
	return record, nil
}

// ReconcileRange reconciles every payment completed in [start, end). One payment's
// failure is counted and does not stop the run.
func (e *ReconciliationEngine) ReconcileRange(ctx context.Context, start, end time.Time) (*dto.ReconciliationSummary, error) {
	if !end.After(start) {
		return nil, paymentErrors.NewValidationError("end must be after start")
	}

	e.logger.Info("Starting reconciliation",
		zap.Time("start", start),
		zap.Time("end", end))

	payments, err := e.payments.ListCompletedBetween(ctx, start, end)
	if err != nil {
		return nil, err
	}

	summary := &dto.ReconciliationSummary{Start: start, End: end, Total: len(payments)}
	for _, payment := range payments {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		record, err := e.ReconcileOne(ctx, payment.ID)
		switch {
		case err != nil:
			summary.Errored++
			summary.Errors = append(summary.Errors, dto.ReconciliationFailure{PaymentID: payment.ID, Error: err.Error()})
			e.metrics.ReconciliationResult("error")
			e.logger.Error("Failed to reconcile payment",
				zap.String("payment_id", payment.ID.String()),
				zap.Error(err))
		case record.Matched:
			summary.Matched++
		default:
			summary.Discrepant++
		}
	}

	e.logger.Info("Reconciliation finished",
		zap.Int("total", summary.Total),
		zap.Int("matched", summary.Matched),
		zap.Int("discrepant", summary.Discrepant),
		zap.Int("errored", summary.Errored))
	return summary, nil
}

// ManualMatch records an operator's acceptance of a payment whose amounts differ.
func (e *ReconciliationEngine) ManualMatch(ctx context.Context, paymentID uuid.UUID, confirmedAmount decimal.Decimal, notes, approver string) (*model.ReconciliationRecord, error) {
	if strings.TrimSpace(approver) == "" {
		return nil, paymentErrors.NewValidationError("approver is required")
	}
	if strings.TrimSpace(notes) == "" {
		return nil, paymentErrors.NewValidationError("notes are required for a manual match")
	}
	if confirmedAmount.IsNegative() {
		return nil, paymentErrors.NewValidationError("confirmed amount must not be negative")
	}

	payment, err := e.reconcilable(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	record := &model.ReconciliationRecord{
		PaymentID:        payment.ID,
		ReceiptCode:      *payment.ReceiptCode,
		GatewayAmount:    confirmedAmount,
		SystemAmount:     payment.Amount,
		AmountDifference: confirmedAmount.Sub(payment.Amount).Abs(),
		Matched:          true,
		ManualOverride:   true,
		Notes:            &notes,
		ReconciledBy:     &approver,
		ReconciledAt:     e.now(),
	}
	if err := e.records.Upsert(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to save reconciliation record: %w", err)
	}

	e.metrics.ReconciliationResult("manual")
	e.logger.Info("Payment manually reconciled",
		zap.String("payment_id", payment.ID.String()),
		zap.String("confirmed_amount", confirmedAmount.StringFixed(2)),
		zap.String("system_amount", payment.Amount.StringFixed(2)),
		zap.String("reconciled_by", approver))
	return record, nil
}

// DetectDiscrepancies lists every unmatched record, largest difference first.
func (e *ReconciliationEngine) DetectDiscrepancies(ctx context.Context) ([]dto.Discrepancy, error) {
	records, err := e.records.ListUnmatched(ctx)
	if err != nil {
		return nil, err
	}
	discrepancies := make([]dto.Discrepancy, 0, len(records))
	for _, r := range records {
		discrepancies = append(discrepancies, toDiscrepancy(r))
	}
	return discrepancies, nil
}

// GenerateReport aggregates the records reconciled in [start, end).
func (e *ReconciliationEngine) GenerateReport(ctx context.Context, start, end time.Time) (*dto.ReconciliationReport, error) {
	records, err := e.records.ListBetween(ctx, start, end)
	if err != nil {
		return nil, err
	}

	report := &dto.ReconciliationReport{
		Start:            start,
		End:              end,
		TotalRecords:     len(records),
		MatchRate:        decimal.NewFromInt(100),
		SystemTotal:      decimal.Zero,
		GatewayTotal:     decimal.Zero,
		TotalDiscrepancy: decimal.Zero,
		Discrepancies:    []dto.Discrepancy{},
		GeneratedAt:      e.now(),
	}
	for _, r := range records {
		report.SystemTotal = report.SystemTotal.Add(r.SystemAmount)
		report.GatewayTotal = report.GatewayTotal.Add(r.GatewayAmount)
		if r.ManualOverride {
			report.ManualOverrides++
		}
		if r.Matched {
			report.Matched++
			continue
		}
		report.Unmatched++
		report.TotalDiscrepancy = report.TotalDiscrepancy.Add(r.AmountDifference)
		report.Discrepancies = append(report.Discrepancies, toDiscrepancy(r))
	}

	if report.TotalRecords > 0 {
		report.MatchRate = decimal.NewFromInt(int64(report.Matched)).
			Mul(decimal.NewFromInt(100)).
			DivRound(decimal.NewFromInt(int64(report.TotalRecords)), 2)
	}
	report.Health = HealthLabel(report.MatchRate)
	return report, nil
}

// RunPeriodic reconciles the trailing lookback window every interval until ctx ends.
func (e *ReconciliationEngine) RunPeriodic(ctx context.Context, interval, lookback time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			end := e.now()
			if _, err := e.ReconcileRange(ctx, end.Add(-lookback), end); err != nil {
				e.logger.Error("Periodic reconciliation failed", zap.Error(err))
			}
		}
	}
}

func (e *ReconciliationEngine) reconcilable(ctx context.Context, paymentID uuid.UUID) (*model.Payment, error) {
	payment, err := e.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	if payment == nil {
		return nil, paymentErrors.NewNotFoundError("payment", paymentID.String())
	}
	if payment.Status != model.PaymentStatusCompleted {
		return nil, paymentErrors.NewValidationError("payment %s is %s; only completed payments are reconciled", payment.ID, payment.Status)
	}
	if payment.ReceiptCode == nil || *payment.ReceiptCode == "" {
		return nil, paymentErrors.NewInvalidStateError("missing receipt code for payment %s", payment.ID)
	}
	return payment, nil
}

// HealthLabel classifies a match rate given in percent.
func HealthLabel(rate decimal.Decimal) string {
	switch {
	case rate.GreaterThanOrEqual(excellentRate):
		return dto.HealthExcellent
	case rate.GreaterThanOrEqual(goodRate):
		return dto.HealthGood
	case rate.GreaterThanOrEqual(fairRate):
		return dto.HealthFair
	default:
		return dto.HealthPoor
	}
}

// Severity grades an absolute amount difference.
func Severity(diff decimal.Decimal) string {
	switch {
	case diff.GreaterThanOrEqual(highSeverityFloor):
		return dto.SeverityHigh
	case diff.GreaterThanOrEqual(mediumSeverityFloor):
		return dto.SeverityMedium
	default:
		return dto.SeverityLow
	}
}

func toDiscrepancy(r *model.ReconciliationRecord) dto.Discrepancy {
	d := dto.Discrepancy{
		PaymentID:        r.PaymentID,
		ReceiptCode:      r.ReceiptCode,
		GatewayAmount:    r.GatewayAmount,
		SystemAmount:     r.SystemAmount,
		AmountDifference: r.AmountDifference,
		Severity:         Severity(r.AmountDifference),
		ReconciledAt:     r.ReconciledAt,
	}
	if r.Notes != nil {
		d.Notes = *r.Notes
	}
	return d
}
