package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/farunova-art/farunova-sub001/internal/domain/dto"
	paymentErrors "github.com/farunova-art/farunova-sub001/internal/domain/errors"
	"github.com/farunova-art/farunova-sub001/internal/domain/model"
	domainRepo "github.com/farunova-art/farunova-sub001/internal/domain/repository"
	"github.com/farunova-art/farunova-sub001/internal/infrastructure/metrics"
)

// CallbackResult describes what a push callback did. Duplicate is set when the
// payment had already left pending and nothing changed.
type CallbackResult struct {
	PaymentID         string              `json:"payment_id"`
	CheckoutRequestID string              `json:"checkout_request_id"`
	ResultCode        int                 `json:"result_code"`
	ResultDesc        string              `json:"result_desc"`
	ReceiptCode       string              `json:"receipt_code,omitempty"`
	Amount            decimal.NullDecimal `json:"amount"`
	Status            model.PaymentStatus `json:"status"`
	Duplicate         bool                `json:"duplicate"`
}

// settlement is the metadata carried by a successful push callback.
type settlement struct {
	receiptCode     string
	amount          decimal.Decimal
	phoneNumber     *string
	transactionDate *time.Time
}

// CallbackProcessor applies push callbacks to the ledger. Redelivery of a callback
// for a payment that is no longer pending is acknowledged without changes.
type CallbackProcessor struct {
	ledger       *PaymentLedger
	payments     domainRepo.PaymentRepository
	transactions domainRepo.GatewayTransactionRepository
	log          *callbackLog
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

func NewCallbackProcessor(
	ledger *PaymentLedger,
	payments domainRepo.PaymentRepository,
	transactions domainRepo.GatewayTransactionRepository,
	events domainRepo.CallbackEventRepository,
	m *metrics.Metrics,
	logger *zap.Logger,
) *CallbackProcessor {
	return &CallbackProcessor{
		ledger:       ledger,
		payments:     payments,
		transactions: transactions,
		log:          &callbackLog{events: events, logger: logger},
		metrics:      m,
		logger:       logger,
	}
}

// Handle processes one raw callback body.
func (p *CallbackProcessor) Handle(ctx context.Context, payload []byte) (*CallbackResult, error) {
	kind := string(model.CallbackKindSTKPush)
	if !json.Valid(payload) {
		p.metrics.Callback(kind, "malformed")
		p.logger.Error("Push callback is not valid JSON", zap.ByteString("payload", payload))
		return nil, paymentErrors.NewProtocolError("callback body is not valid JSON", nil)
	}

	var envelope dto.STKCallbackEnvelope
	decodeErr := json.Unmarshal(payload, &envelope)

	var correlationID string
	if decodeErr == nil && envelope.Body != nil && envelope.Body.STKCallback != nil {
		correlationID = envelope.Body.STKCallback.CheckoutRequestID
	}
	event := p.log.received(ctx, model.CallbackKindSTKPush, correlationID, payload)

	result, err := p.process(ctx, &envelope, decodeErr)
	p.log.finish(ctx, event, result != nil && result.Duplicate, err)

	switch {
	case err != nil && paymentErrors.IsType(err, paymentErrors.ErrTypeProtocol):
		p.metrics.Callback(kind, "malformed")
		p.logger.Error("Rejected malformed push callback",
			zap.String("checkout_request_id", correlationID),
			zap.ByteString("payload", payload),
			zap.Error(err))
	case err != nil:
		p.metrics.Callback(kind, "error")
		p.logger.Error("Failed to process push callback",
			zap.String("checkout_request_id", correlationID),
			zap.Error(err))
	case result.Duplicate:
		p.metrics.Callback(kind, "duplicate")
	default:
		p.metrics.Callback(kind, "processed")
	}
	return result, err
}

func (p *CallbackProcessor) process(ctx context.Context, envelope *dto.STKCallbackEnvelope, decodeErr error) (*CallbackResult, error) {
	if decodeErr != nil {
		return nil, paymentErrors.NewProtocolError("unexpected callback shape", decodeErr)
	}
	if envelope.Body == nil || envelope.Body.STKCallback == nil {
		return nil, paymentErrors.NewProtocolError("callback has no Body.stkCallback", nil)
	}
	cb := envelope.Body.STKCallback
	if cb.CheckoutRequestID == "" {
		return nil, paymentErrors.NewProtocolError("callback has no CheckoutRequestID", nil)
	}
	if cb.ResultCode == nil {
		return nil, paymentErrors.NewProtocolError("callback has no ResultCode", nil)
	}

	result := &CallbackResult{
		CheckoutRequestID: cb.CheckoutRequestID,
		ResultCode:        int(*cb.ResultCode),
		ResultDesc:        cb.ResultDesc,
	}

	var settled *settlement
	if result.ResultCode == ResultSuccess {
		s, err := parseSettlement(cb.CallbackMetadata)
		if err != nil {
			return nil, err
		}
		settled = s
		result.ReceiptCode = s.receiptCode
		result.Amount = decimal.NewNullDecimal(s.amount)
	}

	payment, err := p.payments.GetByCheckoutRequestID(ctx, cb.CheckoutRequestID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	if payment == nil {
		return nil, paymentErrors.NewNotFoundError("payment", cb.CheckoutRequestID)
	}
	result.PaymentID = payment.ID.String()

	if settled != nil {
		p.recordSettlement(ctx, cb.CheckoutRequestID, settled)
	}

	if payment.Status.IsTerminal() {
		if settled != nil && payment.Status == model.PaymentStatusFailed {
			p.logger.Warn("Settlement received for a failed payment",
				zap.String("payment_id", payment.ID.String()),
				zap.String("receipt_code", settled.receiptCode),
				zap.String("amount", settled.amount.StringFixed(2)))
		}
		return p.duplicate(result, payment), nil
	}

	transition := model.PaymentTransition{
		Status:     model.PaymentStatusFailed,
		ResultCode: result.ResultCode,
		ResultDesc: cb.ResultDesc,
	}
	if transition.ResultDesc == "" {
		transition.ResultDesc = ResultMessage(result.ResultCode)
	}
	if settled != nil {
		transition.Status = model.PaymentStatusCompleted
		transition.ReceiptCode = &settled.receiptCode
		transition.SettledAmount = decimal.NewNullDecimal(settled.amount)
	}

	applied, err := p.ledger.applyTransition(ctx, payment, transition)
	if err != nil {
		return nil, err
	}
	if !applied {
		current, err := p.payments.GetByCheckoutRequestID(ctx, cb.CheckoutRequestID)
		if err != nil || current == nil {
			current = payment
		}
		return p.duplicate(result, current), nil
	}

	result.Status = transition.Status
	return result, nil
}

func (p *CallbackProcessor) duplicate(result *CallbackResult, payment *model.Payment) *CallbackResult {
	p.logger.Info("Duplicate push callback ignored",
		zap.String("payment_id", payment.ID.String()),
		zap.String("checkout_request_id", result.CheckoutRequestID),
		zap.String("status", string(payment.Status)))

	result.Duplicate = true
	result.Status = payment.Status
	if payment.ReceiptCode != nil {
		result.ReceiptCode = *payment.ReceiptCode
	}
	return result
}

// recordSettlement stores the gateway's confirmation of a receipt. It is idempotent
// and runs for redeliveries too.
func (p *CallbackProcessor) recordSettlement(ctx context.Context, checkoutRequestID string, s *settlement) {
	if p.transactions == nil {
		return
	}
	txn := &model.GatewayTransaction{
		ReceiptCode:       s.receiptCode,
		CheckoutRequestID: checkoutRequestID,
		Amount:            s.amount,
		PhoneNumber:       s.phoneNumber,
		TransactionDate:   s.transactionDate,
	}
	if err := p.transactions.Save(ctx, txn); err != nil {
		p.logger.Error("Failed to record gateway transaction",
			zap.String("receipt_code", s.receiptCode),
			zap.Error(err))
	}
}

func parseSettlement(meta *dto.CallbackMetadata) (*settlement, error) {
	receipt, ok := meta.Lookup(dto.ItemReceiptNumber)
	if !ok || receipt.String() == "" {
		return nil, paymentErrors.NewProtocolError("successful callback has no MpesaReceiptNumber", nil)
	}
	amountItem, ok := meta.Lookup(dto.ItemAmount)
	if !ok {
		return nil, paymentErrors.NewProtocolError("successful callback has no Amount", nil)
	}
	amount, err := amountItem.Decimal()
	if err != nil {
		return nil, paymentErrors.NewProtocolError("callback Amount is not a number", err)
	}

	s := &settlement{receiptCode: receipt.String(), amount: amount}
	if item, ok := meta.Lookup(dto.ItemPhoneNumber); ok {
		phone := item.String()
		s.phoneNumber = &phone
	}
	if item, ok := meta.Lookup(dto.ItemTransactionDate); ok {
		if ts, err := item.Time(); err == nil {
			utc := ts.UTC()
			s.transactionDate = &utc
		}
	}
	return s, nil
}
