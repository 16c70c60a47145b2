package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/farunova-art/farunova-sub001/internal/domain/dto"
	paymentErrors "github.com/farunova-art/farunova-sub001/internal/domain/errors"
	"github.com/farunova-art/farunova-sub001/internal/domain/model"
	"github.com/farunova-art/farunova-sub001/internal/domain/provider"
	domainRepo "github.com/farunova-art/farunova-sub001/internal/domain/repository"
	"github.com/farunova-art/farunova-sub001/internal/infrastructure/metrics"
)

const maxRemarks = 100

type InitiateRefundRequest struct {
	PaymentID uuid.UUID
	// Amount defaults to the full settled amount.
	Amount      *decimal.Decimal
	Reason      string
	RequestedBy string
}

// RefundCallbackResult describes what a reversal result or timeout did.
type RefundCallbackResult struct {
	RefundID       uuid.UUID          `json:"refund_id"`
	ConversationID string             `json:"conversation_id"`
	ResultCode     int                `json:"result_code"`
	ResultDesc     string             `json:"result_desc"`
	Status         model.RefundStatus `json:"status"`
	Duplicate      bool               `json:"duplicate"`
}

// RefundWorkflow drives refunds of completed payments through the reversal API.
type RefundWorkflow struct {
	refunds  domainRepo.RefundRepository
	payments domainRepo.PaymentRepository
	gateway  provider.Gateway
	log      *callbackLog
	events   *EventEmitter
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewRefundWorkflow(
	refunds domainRepo.RefundRepository,
	payments domainRepo.PaymentRepository,
	gateway provider.Gateway,
	callbackEvents domainRepo.CallbackEventRepository,
	events *EventEmitter,
	m *metrics.Metrics,
	logger *zap.Logger,
) *RefundWorkflow {
	return &RefundWorkflow{
		refunds:  refunds,
		payments: payments,
		gateway:  gateway,
		log:      &callbackLog{events: callbackEvents, logger: logger},
		events:   events,
		metrics:  m,
		logger:   logger,
	}
}

// Initiate creates a pending refund after checking the refundable balance against
// the persisted refunds of the payment.
func (w *RefundWorkflow) Initiate(ctx context.Context, req *InitiateRefundRequest) (*model.Refund, error) {
	if strings.TrimSpace(req.RequestedBy) == "" {
		return nil, paymentErrors.NewValidationError("requester is required")
	}

	payment, err := w.completedPayment(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}

	settled := payment.Settled()
	amount := settled
	if req.Amount != nil {
		amount = *req.Amount
	}
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if amount.GreaterThan(settled) {
		return nil, paymentErrors.NewValidationError("refund of %s exceeds settled amount %s",
			amount.StringFixed(2), settled.StringFixed(2))
	}

	refund := &model.Refund{
		PaymentID:   payment.ID,
		OrderRef:    payment.OrderRef,
		Amount:      amount,
		Reason:      req.Reason,
		Status:      model.RefundStatusPending,
		RequestedBy: req.RequestedBy,
	}
	if err := w.refunds.CreateWithinBalance(ctx, refund, settled); err != nil {
		w.logger.Warn("Refund request rejected",
			zap.String("payment_id", payment.ID.String()),
			zap.String("amount", amount.StringFixed(2)),
			zap.Error(err))
		return nil, err
	}

	w.metrics.RefundTransition(string(model.RefundStatusPending))
	w.logger.Info("Refund requested",
		zap.String("refund_id", refund.ID.String()),
		zap.String("payment_id", payment.ID.String()),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("requested_by", req.RequestedBy),
		zap.String("status", string(refund.Status)))
	return refund, nil
}

// Approve submits a pending or failed refund to the gateway. A failed submission
// marks the refund failed; approving it again is the retry. Denied refunds stay denied.
func (w *RefundWorkflow) Approve(ctx context.Context, refundID uuid.UUID, approver string) (*model.Refund, error) {
	if strings.TrimSpace(approver) == "" {
		return nil, paymentErrors.NewValidationError("approver is required")
	}

	refund, err := w.Get(ctx, refundID)
	if err != nil {
		return nil, err
	}
	payment, err := w.completedPayment(ctx, refund.PaymentID)
	if err != nil {
		return nil, err
	}

	refund, err = w.refunds.MarkProcessing(ctx, refundID, approver, payment.Settled())
	if err != nil {
		w.logger.Warn("Refund approval rejected",
			zap.String("refund_id", refundID.String()),
			zap.Error(err))
		return nil, err
	}
	w.metrics.RefundTransition(string(model.RefundStatusProcessing))
	w.logger.Info("Refund approved",
		zap.String("refund_id", refund.ID.String()),
		zap.String("payment_id", payment.ID.String()),
		zap.String("amount", refund.Amount.StringFixed(2)),
		zap.String("approved_by", approver),
		zap.String("status", string(refund.Status)))

	if payment.ReceiptCode == nil {
		return nil, w.failSubmission(ctx, refund, payment, paymentErrors.NewInvalidStateError("payment %s has no receipt code", payment.ID))
	}

	remarks := refund.Reason
	if remarks == "" {
		remarks = "Refund " + refund.OrderRef
	}
	resp, err := w.gateway.Reversal(ctx, &provider.ReversalRequest{
		TransactionID: *payment.ReceiptCode,
		Amount:        refund.Amount,
		Remarks:       truncate(remarks, maxRemarks),
		Occasion:      truncate(refund.OrderRef, maxRemarks),
	})
	if err != nil {
		return nil, w.failSubmission(ctx, refund, payment, err)
	}

	if err := w.refunds.SetSubmitted(ctx, refund.ID, resp.ConversationID, resp.OriginatorConversationID); err != nil {
		w.logger.Error("Failed to record reversal conversation id",
			zap.String("refund_id", refund.ID.String()),
			zap.String("conversation_id", resp.ConversationID),
			zap.Error(err))
		return nil, err
	}
	refund.ConversationID = &resp.ConversationID
	refund.OriginatorConversationID = &resp.OriginatorConversationID

	w.logger.Info("Reversal submitted",
		zap.String("refund_id", refund.ID.String()),
		zap.String("conversation_id", resp.ConversationID))
	w.events.Emit(ctx, w.event(EventRefundProcessing, refund, ""))
	return refund, nil
}

func (w *RefundWorkflow) failSubmission(ctx context.Context, refund *model.Refund, payment *model.Payment, cause error) error {
	notes := "reversal submission failed: " + cause.Error()
	if _, err := w.refunds.Resolve(ctx, refund.ID, []model.RefundStatus{model.RefundStatusProcessing}, model.RefundStatusFailed, nil, notes); err != nil {
		w.logger.Error("Failed to mark refund failed",
			zap.String("refund_id", refund.ID.String()),
			zap.Error(err))
		return err
	}

	w.metrics.RefundTransition(string(model.RefundStatusFailed))
	w.logger.Error("Reversal submission failed",
		zap.String("refund_id", refund.ID.String()),
		zap.String("payment_id", payment.ID.String()),
		zap.String("amount", refund.Amount.StringFixed(2)),
		zap.String("status", string(model.RefundStatusFailed)),
		zap.Error(cause))

	refund.Status = model.RefundStatusFailed
	refund.Notes = &notes
	w.events.Emit(ctx, w.event(EventRefundFailed, refund, notes))
	return cause
}

// ProcessCallback applies a reversal result.
func (w *RefundWorkflow) ProcessCallback(ctx context.Context, payload []byte) (*RefundCallbackResult, error) {
	return w.handleResult(ctx, model.CallbackKindReversalResult, payload)
}

// HandleTimeout fails the refund whose reversal request expired in the gateway queue.
func (w *RefundWorkflow) HandleTimeout(ctx context.Context, payload []byte) (*RefundCallbackResult, error) {
	return w.handleResult(ctx, model.CallbackKindReversalTimeout, payload)
}

func (w *RefundWorkflow) handleResult(ctx context.Context, kind model.CallbackKind, payload []byte) (*RefundCallbackResult, error) {
	if !json.Valid(payload) {
		w.metrics.Callback(string(kind), "malformed")
		w.logger.Error("Reversal callback is not valid JSON", zap.ByteString("payload", payload))
		return nil, paymentErrors.NewProtocolError("callback body is not valid JSON", nil)
	}

	var envelope dto.ReversalResultEnvelope
	decodeErr := json.Unmarshal(payload, &envelope)

	var correlationID string
	if decodeErr == nil && envelope.Result != nil {
		correlationID = envelope.Result.ConversationID
	}
	event := w.log.received(ctx, kind, correlationID, payload)

	result, err := w.applyResult(ctx, kind, &envelope, decodeErr)
	w.log.finish(ctx, event, result != nil && result.Duplicate, err)

	switch {
	case err != nil && paymentErrors.IsType(err, paymentErrors.ErrTypeProtocol):
		w.metrics.Callback(string(kind), "malformed")
		w.logger.Error("Rejected malformed reversal callback",
			zap.String("conversation_id", correlationID),
			zap.ByteString("payload", payload),
			zap.Error(err))
	case err != nil:
		w.metrics.Callback(string(kind), "error")
		w.logger.Error("Failed to process reversal callback",
			zap.String("conversation_id", correlationID),
			zap.Error(err))
	case result.Duplicate:
		w.metrics.Callback(string(kind), "duplicate")
	default:
		w.metrics.Callback(string(kind), "processed")
	}
	return result, err
}

func (w *RefundWorkflow) applyResult(ctx context.Context, kind model.CallbackKind, envelope *dto.ReversalResultEnvelope, decodeErr error) (*RefundCallbackResult, error) {
	if decodeErr != nil {
		return nil, paymentErrors.NewProtocolError("unexpected reversal callback shape", decodeErr)
	}
	res := envelope.Result
	if res == nil {
		return nil, paymentErrors.NewProtocolError("reversal callback has no Result", nil)
	}
	if res.ResultCode == nil && kind == model.CallbackKindReversalResult {
		return nil, paymentErrors.NewProtocolError("reversal callback has no ResultCode", nil)
	}

	refund, err := w.correlate(ctx, res)
	if err != nil {
		return nil, err
	}

	result := &RefundCallbackResult{
		RefundID:       refund.ID,
		ConversationID: res.ConversationID,
		ResultDesc:     res.ResultDesc,
	}
	if res.ResultCode != nil {
		result.ResultCode = int(*res.ResultCode)
	}

	if refund.Status.IsTerminal() {
		w.logger.Info("Duplicate reversal callback ignored",
			zap.String("refund_id", refund.ID.String()),
			zap.String("status", string(refund.Status)))
		result.Duplicate = true
		result.Status = refund.Status
		return result, nil
	}

	to := model.RefundStatusFailed
	var receipt *string
	notes := res.ResultDesc
	switch {
	case kind == model.CallbackKindReversalTimeout:
		notes = "queue timeout: " + res.ResultDesc
	case result.ResultCode == ResultSuccess:
		if res.TransactionID == "" {
			return nil, paymentErrors.NewProtocolError("successful reversal has no TransactionID", nil)
		}
		to = model.RefundStatusCompleted
		receipt = &res.TransactionID
	}

	from := []model.RefundStatus{model.RefundStatusProcessing, model.RefundStatusPending}
	if kind == model.CallbackKindReversalTimeout {
		from = []model.RefundStatus{model.RefundStatusProcessing}
	}
	applied, err := w.refunds.Resolve(ctx, refund.ID, from, to, receipt, notes)
	if err != nil {
		return nil, err
	}
	if !applied {
		result.Duplicate = true
		result.Status = refund.Status
		return result, nil
	}

	refund.Status = to
	refund.ReceiptCode = receipt
	result.Status = to
	w.metrics.RefundTransition(string(to))

	fields := []zap.Field{
		zap.String("refund_id", refund.ID.String()),
		zap.String("payment_id", refund.PaymentID.String()),
		zap.String("amount", refund.Amount.StringFixed(2)),
		zap.String("status", string(to)),
		zap.Int("result_code", result.ResultCode),
	}
	eventType := EventRefundFailed
	if to == model.RefundStatusCompleted {
		eventType = EventRefundCompleted
		fields = append(fields, zap.String("receipt_code", *receipt))
	} else {
		fields = append(fields, zap.String("result_desc", notes))
	}
	w.logger.Info("Refund resolved", fields...)
	w.events.Emit(ctx, w.event(eventType, refund, notes))
	return result, nil
}

// correlate finds the refund a reversal callback belongs to: by the conversation id
// persisted at submission, else the most recently submitted in-flight refund.
func (w *RefundWorkflow) correlate(ctx context.Context, res *dto.ReversalResult) (*model.Refund, error) {
	if res.ConversationID != "" {
		refund, err := w.refunds.GetByConversationID(ctx, res.ConversationID)
		if err != nil {
			return nil, err
		}
		if refund != nil {
			return refund, nil
		}
	}

	refund, err := w.refunds.GetLatestInFlight(ctx)
	if err != nil {
		return nil, err
	}
	if refund == nil {
		return nil, paymentErrors.NewNotFoundError("refund for conversation", res.ConversationID)
	}
	w.logger.Warn("Reversal callback correlated by recency",
		zap.String("conversation_id", res.ConversationID),
		zap.String("refund_id", refund.ID.String()))
	return refund, nil
}

// Deny rejects a pending refund without contacting the gateway.
func (w *RefundWorkflow) Deny(ctx context.Context, refundID uuid.UUID, reason, approver string) (*model.Refund, error) {
	if strings.TrimSpace(approver) == "" {
		return nil, paymentErrors.NewValidationError("approver is required")
	}

	refund, err := w.Get(ctx, refundID)
	if err != nil {
		return nil, err
	}
	if refund.Status != model.RefundStatusPending {
		return nil, paymentErrors.NewInvalidStateError("refund %s is %s and cannot be denied", refund.ID, refund.Status)
	}

	notes := fmt.Sprintf("denied by %s: %s", approver, reason)
	applied, err := w.refunds.Deny(ctx, refund.ID, approver, notes)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, paymentErrors.NewInvalidStateError("refund %s changed concurrently", refund.ID)
	}

	now := time.Now().UTC()
	refund.Status = model.RefundStatusFailed
	refund.Notes = &notes
	refund.DeniedBy = &approver
	refund.DeniedAt = &now
	w.metrics.RefundTransition(string(model.RefundStatusFailed))
	w.logger.Info("Refund denied",
		zap.String("refund_id", refund.ID.String()),
		zap.String("payment_id", refund.PaymentID.String()),
		zap.String("amount", refund.Amount.StringFixed(2)),
		zap.String("denied_by", approver),
		zap.String("status", string(refund.Status)))
	w.events.Emit(ctx, w.event(EventRefundFailed, refund, notes))
	return refund, nil
}

func (w *RefundWorkflow) Get(ctx context.Context, id uuid.UUID) (*model.Refund, error) {
	refund, err := w.refunds.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if refund == nil {
		return nil, paymentErrors.NewNotFoundError("refund", id.String())
	}
	return refund, nil
}

func (w *RefundWorkflow) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]*model.Refund, error) {
	return w.refunds.ListByPaymentID(ctx, paymentID)
}

func (w *RefundWorkflow) completedPayment(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	payment, err := w.payments.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	if payment == nil {
		return nil, paymentErrors.NewNotFoundError("payment", id.String())
	}
	if payment.Status != model.PaymentStatusCompleted {
		return nil, paymentErrors.NewInvalidStateError("payment %s is %s; only completed payments can be refunded", payment.ID, payment.Status)
	}
	return payment, nil
}

func (w *RefundWorkflow) event(eventType string, refund *model.Refund, reason string) Event {
	id := refund.ID
	e := Event{
		Type:       eventType,
		PaymentID:  refund.PaymentID,
		RefundID:   &id,
		OrderRef:   refund.OrderRef,
		Amount:     refund.Amount,
		Status:     string(refund.Status),
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}
	if refund.ReceiptCode != nil {
		e.ReceiptCode = *refund.ReceiptCode
	}
	return e
}
