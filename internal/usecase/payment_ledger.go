package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	paymentErrors "github.com/farunova-art/farunova-sub001/internal/domain/errors"
	"github.com/farunova-art/farunova-sub001/internal/domain/model"
	"github.com/farunova-art/farunova-sub001/internal/domain/provider"
	domainRepo "github.com/farunova-art/farunova-sub001/internal/domain/repository"
	"github.com/farunova-art/farunova-sub001/internal/infrastructure/metrics"
)

const (
	countryCode    = "254"
	phoneLength    = 12
	maxAccountRef  = 12
	maxDescription = 13
)

// InitiatePaymentRequest is a checkout request for one order.
type InitiatePaymentRequest struct {
	PhoneNumber string
	Amount      decimal.Decimal
	OrderRef    string
	UserRef     *string
	Description string
}

type InitiatePaymentResult struct {
	PaymentID         uuid.UUID `json:"payment_id"`
	CheckoutRequestID string    `json:"checkout_request_id"`
	MerchantRequestID string    `json:"merchant_request_id"`
	CustomerMessage   string    `json:"customer_message"`
}

// QueryResult is the outcome of a status query.
type QueryResult struct {
	CheckoutRequestID string              `json:"checkout_request_id"`
	ResultCode        int                 `json:"result_code"`
	Message           string              `json:"message"`
	Status            model.PaymentStatus `json:"status"`
	// Resolved is true when this query moved the payment out of pending.
	Resolved bool `json:"resolved"`
}

// PaymentLedger owns payment state: it creates payments and applies every status
// transition.
type PaymentLedger struct {
	payments domainRepo.PaymentRepository
	gateway  provider.Gateway
	events   *EventEmitter
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

func NewPaymentLedger(
	payments domainRepo.PaymentRepository,
	gateway provider.Gateway,
	events *EventEmitter,
	m *metrics.Metrics,
	logger *zap.Logger,
) *PaymentLedger {
	return &PaymentLedger{
		payments: payments,
		gateway:  gateway,
		events:   events,
		metrics:  m,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// NormalizePhone rewrites a subscriber number into the 12-digit international form
// the gateway expects.
func NormalizePhone(raw string) (string, error) {
	phone := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(raw))
	phone = strings.TrimPrefix(phone, "+")

	switch {
	case strings.HasPrefix(phone, "0"):
		phone = countryCode + phone[1:]
	case len(phone) == phoneLength-len(countryCode):
		phone = countryCode + phone
	}

	if len(phone) != phoneLength || !strings.HasPrefix(phone, countryCode) || !isDigits(phone) {
		return "", paymentErrors.NewValidationError("invalid phone number %q", raw)
	}
	return phone, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return paymentErrors.NewValidationError("amount must be positive")
	}
	if !amount.Equal(amount.Round(2)) {
		return paymentErrors.NewValidationError("amount %s has more than two decimal places", amount.String())
	}
	return nil
}

// Initiate records a pending payment and sends the push request. A gateway or
// transport failure leaves the payment pending; the prompt may still reach the phone.
func (l *PaymentLedger) Initiate(ctx context.Context, req *InitiatePaymentRequest) (*InitiatePaymentResult, error) {
	phone, err := NormalizePhone(req.PhoneNumber)
	if err != nil {
		return nil, err
	}
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}
	orderRef := strings.TrimSpace(req.OrderRef)
	if orderRef == "" {
		return nil, paymentErrors.NewValidationError("order reference is required")
	}

	payment := &model.Payment{
		OrderRef:    orderRef,
		UserRef:     req.UserRef,
		Amount:      req.Amount,
		PhoneNumber: phone,
		Description: req.Description,
		Status:      model.PaymentStatusPending,
	}
	if err := l.payments.Create(ctx, payment); err != nil {
		l.logger.Error("Failed to create payment",
			zap.String("order_ref", orderRef),
			zap.Error(err))
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	l.logger.Info("Payment created",
		zap.String("payment_id", payment.ID.String()),
		zap.String("order_ref", orderRef),
		zap.String("amount", payment.Amount.StringFixed(2)),
		zap.String("status", string(payment.Status)))

	desc := req.Description
	if desc == "" {
		desc = "Order " + orderRef
	}
	resp, err := l.gateway.STKPush(ctx, &provider.STKPushRequest{
		PhoneNumber:      phone,
		Amount:           req.Amount,
		AccountReference: truncate(orderRef, maxAccountRef),
		TransactionDesc:  truncate(desc, maxDescription),
	})
	if err != nil {
		l.logger.Error("Push request failed, payment left pending",
			zap.String("payment_id", payment.ID.String()),
			zap.String("order_ref", orderRef),
			zap.Error(err))
		return nil, err
	}

	if err := l.recordGatewayReference(ctx, payment.ID, resp); err != nil {
		return nil, err
	}

	l.logger.Info("Push request sent",
		zap.String("payment_id", payment.ID.String()),
		zap.String("checkout_request_id", resp.CheckoutRequestID))

	return &InitiatePaymentResult{
		PaymentID:         payment.ID,
		CheckoutRequestID: resp.CheckoutRequestID,
		MerchantRequestID: resp.MerchantRequestID,
		CustomerMessage:   resp.CustomerMessage,
	}, nil
}

// recordGatewayReference stores the correlation ids of an accepted push. The gateway
// already holds the request, so the write is retried once and outlives caller
// cancellation; without the ids the callback cannot be matched.
func (l *PaymentLedger) recordGatewayReference(ctx context.Context, paymentID uuid.UUID, resp *provider.STKPushResponse) error {
	ctx = context.WithoutCancel(ctx)

	err := l.payments.SetGatewayReference(ctx, paymentID, resp.CheckoutRequestID, resp.MerchantRequestID)
	if err == nil {
		return nil
	}
	l.logger.Warn("Failed to record checkout request id, retrying",
		zap.String("payment_id", paymentID.String()),
		zap.String("checkout_request_id", resp.CheckoutRequestID),
		zap.Error(err))

	if err = l.payments.SetGatewayReference(ctx, paymentID, resp.CheckoutRequestID, resp.MerchantRequestID); err != nil {
		l.logger.Error("Failed to record checkout request id",
			zap.String("payment_id", paymentID.String()),
			zap.String("checkout_request_id", resp.CheckoutRequestID),
			zap.String("merchant_request_id", resp.MerchantRequestID),
			zap.Error(err))
		return fmt.Errorf("failed to record gateway reference: %w", err)
	}
	return nil
}

// Query polls the gateway for a push outcome. A definitive failure resolves the
// pending payment. Success is left to the callback, which carries the receipt code.
func (l *PaymentLedger) Query(ctx context.Context, checkoutRequestID string) (*QueryResult, error) {
	payment, err := l.payments.GetByCheckoutRequestID(ctx, checkoutRequestID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	if payment == nil {
		return nil, paymentErrors.NewNotFoundError("payment", checkoutRequestID)
	}

	resp, err := l.gateway.STKQuery(ctx, checkoutRequestID)
	if err != nil {
		return nil, err
	}

	result := &QueryResult{
		CheckoutRequestID: checkoutRequestID,
		ResultCode:        resp.ResultCode,
		Message:           ResultMessage(resp.ResultCode),
		Status:            payment.Status,
	}

	if resp.ResultCode != ResultSuccess && IsKnownResultCode(resp.ResultCode) && payment.Status == model.PaymentStatusPending {
		applied, err := l.applyTransition(ctx, payment, model.PaymentTransition{
			Status:     model.PaymentStatusFailed,
			ResultCode: resp.ResultCode,
			ResultDesc: result.Message,
		})
		if err != nil {
			return nil, err
		}
		if applied {
			result.Status = model.PaymentStatusFailed
			result.Resolved = true
		}
	}

	l.logger.Info("Payment status queried",
		zap.String("payment_id", payment.ID.String()),
		zap.String("checkout_request_id", checkoutRequestID),
		zap.Int("result_code", resp.ResultCode),
		zap.String("status", string(result.Status)))
	return result, nil
}

// QueryByID runs Query for the payment with the given id.
func (l *PaymentLedger) QueryByID(ctx context.Context, id uuid.UUID) (*QueryResult, error) {
	payment, err := l.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment.CheckoutRequestID == nil {
		return nil, paymentErrors.NewInvalidStateError("payment %s was never accepted by the gateway", id)
	}
	return l.Query(ctx, *payment.CheckoutRequestID)
}

func (l *PaymentLedger) Get(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	payment, err := l.payments.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	if payment == nil {
		return nil, paymentErrors.NewNotFoundError("payment", id.String())
	}
	return payment, nil
}

func (l *PaymentLedger) GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*model.Payment, error) {
	payment, err := l.payments.GetByCheckoutRequestID(ctx, checkoutRequestID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	if payment == nil {
		return nil, paymentErrors.NewNotFoundError("payment", checkoutRequestID)
	}
	return payment, nil
}

func (l *PaymentLedger) ListByOrder(ctx context.Context, orderRef string) ([]*model.Payment, error) {
	payments, err := l.payments.ListByOrderRef(ctx, orderRef)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return payments, nil
}

// GenerateQR requests a dynamic QR code that pays the configured till or paybill.
func (l *PaymentLedger) GenerateQR(ctx context.Context, req *provider.QRRequest) (*provider.QRResponse, error) {
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}
	switch req.TrxCode {
	case "":
		req.TrxCode = provider.QRPayBill
	case provider.QRBuyGoods, provider.QRWithdrawAgent, provider.QRPayBill, provider.QRSendMoney, provider.QRSendToBiz:
	default:
		return nil, paymentErrors.NewValidationError("unknown QR transaction code %q", req.TrxCode)
	}
	if strings.TrimSpace(req.RefNo) == "" {
		return nil, paymentErrors.NewValidationError("reference number is required")
	}

	resp, err := l.gateway.GenerateQR(ctx, req)
	if err != nil {
		l.logger.Error("QR generation failed",
			zap.String("ref_no", req.RefNo),
			zap.Error(err))
		return nil, err
	}
	return resp, nil
}

// applyTransition moves a pending payment to a terminal state. It returns false when
// the payment had already left pending.
func (l *PaymentLedger) applyTransition(ctx context.Context, payment *model.Payment, transition model.PaymentTransition) (bool, error) {
	if payment.CheckoutRequestID == nil {
		return false, paymentErrors.NewInvalidStateError("payment %s has no checkout request id", payment.ID)
	}
	if transition.Status == model.PaymentStatusCompleted {
		if transition.ReceiptCode == nil || *transition.ReceiptCode == "" {
			return false, paymentErrors.NewInvalidStateError("completed payment %s requires a receipt code", payment.ID)
		}
		if transition.CompletedAt.IsZero() {
			transition.CompletedAt = l.now()
		}
	}

	applied, err := l.payments.TransitionFromPending(ctx, *payment.CheckoutRequestID, transition)
	if err != nil {
		l.logger.Error("Failed to transition payment",
			zap.String("payment_id", payment.ID.String()),
			zap.String("status", string(transition.Status)),
			zap.Error(err))
		return false, err
	}
	if !applied {
		return false, nil
	}

	l.metrics.PaymentTransition(string(transition.Status))

	event := Event{
		PaymentID:  payment.ID,
		OrderRef:   payment.OrderRef,
		Amount:     payment.Amount,
		Status:     string(transition.Status),
		OccurredAt: l.now(),
	}
	fields := []zap.Field{
		zap.String("payment_id", payment.ID.String()),
		zap.String("checkout_request_id", *payment.CheckoutRequestID),
		zap.String("amount", payment.Amount.StringFixed(2)),
		zap.String("status", string(transition.Status)),
		zap.Int("result_code", transition.ResultCode),
	}
	if transition.Status == model.PaymentStatusCompleted {
		event.Type = EventPaymentCompleted
		event.ReceiptCode = *transition.ReceiptCode
		if transition.SettledAmount.Valid {
			event.Amount = transition.SettledAmount.Decimal
		}
		fields = append(fields, zap.String("receipt_code", *transition.ReceiptCode))
	} else {
		event.Type = EventPaymentFailed
		event.Reason = transition.ResultDesc
		fields = append(fields, zap.String("result_desc", transition.ResultDesc))
	}

	l.logger.Info("Payment transitioned", fields...)
	l.events.Emit(ctx, event)
	return true, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
