package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	domainErrors "github.com/farunova-art/farunova-sub001/internal/domain/errors"
	"github.com/farunova-art/farunova-sub001/internal/domain/model"
	"github.com/farunova-art/farunova-sub001/internal/infrastructure/database"
)

func newRepos(t *testing.T) *database.Repositories {
	t.Helper()
	db, err := database.NewInMemory(zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db, zap.NewNop()) })
	return database.NewRepositories(db, zap.NewNop())
}

func strPtr(s string) *string { return &s }

func createPayment(t *testing.T, repos *database.Repositories, checkoutID string, amount int64) *model.Payment {
	t.Helper()
	payment := &model.Payment{
		OrderRef:          "ORD-" + checkoutID,
		Amount:            decimal.NewFromInt(amount),
		PhoneNumber:       "254712345678",
		Status:            model.PaymentStatusPending,
		CheckoutRequestID: strPtr(checkoutID),
	}
	require.NoError(t, repos.Payment.Create(context.Background(), payment))
	return payment
}

func completePayment(t *testing.T, repos *database.Repositories, payment *model.Payment, receipt string) {
	t.Helper()
	ok, err := repos.Payment.TransitionFromPending(context.Background(), *payment.CheckoutRequestID, model.PaymentTransition{
		Status:        model.PaymentStatusCompleted,
		ReceiptCode:   strPtr(receipt),
		SettledAmount: decimal.NewNullDecimal(payment.Amount),
		ResultDesc:    "The service request is processed successfully.",
		CompletedAt:   time.Now().UTC(),
	})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestPaymentRepository_TransitionFromPending(t *testing.T) {
	ctx := context.Background()
	repos := newRepos(t)
	payment := createPayment(t, repos, "ws_CO_1", 500)
	assert.NotEqual(t, uuid.Nil, payment.ID)

	completePayment(t, repos, payment, "QGH7ABC123")

	// A second delivery must not apply.
	applied, err := repos.Payment.TransitionFromPending(ctx, "ws_CO_1", model.PaymentTransition{
		Status:     model.PaymentStatusFailed,
		ResultCode: 1032,
		ResultDesc: "Request cancelled by user",
	})
	require.NoError(t, err)
	assert.False(t, applied)

	stored, err := repos.Payment.GetByCheckoutRequestID(ctx, "ws_CO_1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, model.PaymentStatusCompleted, stored.Status)
	require.NotNil(t, stored.ReceiptCode)
	assert.Equal(t, "QGH7ABC123", *stored.ReceiptCode)
	assert.True(t, stored.Settled().Equal(decimal.NewFromInt(500)))
	assert.NotNil(t, stored.CompletedAt)

	byReceipt, err := repos.Payment.GetByReceiptCode(ctx, "QGH7ABC123")
	require.NoError(t, err)
	require.NotNil(t, byReceipt)
	assert.Equal(t, payment.ID, byReceipt.ID)
}

func TestPaymentRepository_FailedTransitionKeepsReceiptEmpty(t *testing.T) {
	ctx := context.Background()
	repos := newRepos(t)
	createPayment(t, repos, "ws_CO_2", 100)

	applied, err := repos.Payment.TransitionFromPending(ctx, "ws_CO_2", model.PaymentTransition{
		Status:     model.PaymentStatusFailed,
		ResultCode: 1032,
		ResultDesc: "Request cancelled by user",
	})
	require.NoError(t, err)
	assert.True(t, applied)

	stored, err := repos.Payment.GetByCheckoutRequestID(ctx, "ws_CO_2")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusFailed, stored.Status)
	assert.Nil(t, stored.ReceiptCode)
	assert.Nil(t, stored.CompletedAt)
	require.NotNil(t, stored.ResultCode)
	assert.Equal(t, 1032, *stored.ResultCode)
}

func TestPaymentRepository_NotFoundReturnsNil(t *testing.T) {
	repos := newRepos(t)
	payment, err := repos.Payment.GetByID(context.Background(), uuid.New())
	assert.NoError(t, err)
	assert.Nil(t, payment)
}

func TestPaymentRepository_Listings(t *testing.T) {
	ctx := context.Background()
	repos := newRepos(t)
	stale := createPayment(t, repos, "ws_CO_stale", 100)
	done := createPayment(t, repos, "ws_CO_done", 200)
	completePayment(t, repos, done, "QGH7DONE01")

	pending, err := repos.Payment.ListStalePending(ctx, time.Now().UTC().Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, stale.ID, pending[0].ID)

	none, err := repos.Payment.ListStalePending(ctx, time.Now().UTC().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	completed, err := repos.Payment.ListCompletedBetween(ctx, time.Now().UTC().Add(-time.Hour), time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, done.ID, completed[0].ID)

	byOrder, err := repos.Payment.ListByOrderRef(ctx, "ORD-ws_CO_stale")
	require.NoError(t, err)
	assert.Len(t, byOrder, 1)
}

func TestPaymentRepository_StalePendingOrderedByLastPoll(t *testing.T) {
	ctx := context.Background()
	repos := newRepos(t)
	first := createPayment(t, repos, "ws_CO_a", 100)
	second := createPayment(t, repos, "ws_CO_b", 100)
	third := createPayment(t, repos, "ws_CO_c", 100)
	cutoff := time.Now().UTC().Add(time.Minute)

	polled := time.Now().UTC()
	require.NoError(t, repos.Payment.MarkPolled(ctx, first.ID, polled))
	require.NoError(t, repos.Payment.MarkPolled(ctx, third.ID, polled.Add(time.Second)))

	batch, err := repos.Payment.ListStalePending(ctx, cutoff, 3)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	assert.Equal(t, second.ID, batch[0].ID)
	assert.Equal(t, first.ID, batch[1].ID)
	assert.Equal(t, third.ID, batch[2].ID)

	require.NoError(t, repos.Payment.MarkPolled(ctx, second.ID, polled.Add(2*time.Second)))
	batch, err = repos.Payment.ListStalePending(ctx, cutoff, 1)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, first.ID, batch[0].ID)
}

func TestPaymentRepository_SetGatewayReference(t *testing.T) {
	ctx := context.Background()
	repos := newRepos(t)
	payment := &model.Payment{
		OrderRef:    "ORD1",
		Amount:      decimal.NewFromInt(500),
		PhoneNumber: "254712345678",
		Status:      model.PaymentStatusPending,
	}
	require.NoError(t, repos.Payment.Create(ctx, payment))
	require.NoError(t, repos.Payment.SetGatewayReference(ctx, payment.ID, "ws_CO_9", "29115-34620561-1"))

	stored, err := repos.Payment.GetByCheckoutRequestID(ctx, "ws_CO_9")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "29115-34620561-1", *stored.MerchantRequestID)

	assert.Error(t, repos.Payment.SetGatewayReference(ctx, uuid.New(), "ws_CO_10", "x"))
}

func TestRefundRepository_BalanceBound(t *testing.T) {
	ctx := context.Background()
	repos := newRepos(t)
	payment := createPayment(t, repos, "ws_CO_3", 1000)
	completePayment(t, repos, payment, "QGH7REF001")
	settled := decimal.NewFromInt(1000)

	newRefund := func(amount int64) *model.Refund {
		return &model.Refund{
			PaymentID:   payment.ID,
			OrderRef:    payment.OrderRef,
			Amount:      decimal.NewFromInt(amount),
			Reason:      "damaged item",
			Status:      model.RefundStatusPending,
			RequestedBy: "admin-1",
		}
	}

	first := newRefund(600)
	require.NoError(t, repos.Refund.CreateWithinBalance(ctx, first, settled))

	processing, err := repos.Refund.MarkProcessing(ctx, first.ID, "admin-2", settled)
	require.NoError(t, err)
	assert.Equal(t, model.RefundStatusProcessing, processing.Status)
	assert.Equal(t, "admin-2", *processing.ApprovedBy)

	err = repos.Refund.CreateWithinBalance(ctx, newRefund(500), settled)
	var limitErr *domainErrors.RefundLimitError
	require.ErrorAs(t, err, &limitErr)
	assert.True(t, limitErr.Available.Equal(decimal.NewFromInt(400)))

	second := newRefund(400)
	require.NoError(t, repos.Refund.CreateWithinBalance(ctx, second, settled))
	_, err = repos.Refund.MarkProcessing(ctx, second.ID, "admin-2", settled)
	require.NoError(t, err)

	sum, err := repos.Refund.SumCommitted(ctx, payment.ID)
	require.NoError(t, err)
	assert.True(t, sum.Equal(settled), "sum %s", sum)

	_, err = repos.Refund.MarkProcessing(ctx, first.ID, "admin-2", settled)
	assert.True(t, domainErrors.IsType(err, domainErrors.ErrTypeInvalidState))

	refunds, err := repos.Refund.ListByPaymentID(ctx, payment.ID)
	require.NoError(t, err)
	assert.Len(t, refunds, 2)
}

func TestRefundRepository_ResolveAndCorrelation(t *testing.T) {
	ctx := context.Background()
	repos := newRepos(t)
	payment := createPayment(t, repos, "ws_CO_4", 300)
	completePayment(t, repos, payment, "QGH7REF002")

	refund := &model.Refund{
		PaymentID:   payment.ID,
		OrderRef:    payment.OrderRef,
		Amount:      decimal.NewFromInt(300),
		Status:      model.RefundStatusPending,
		RequestedBy: "admin-1",
	}
	require.NoError(t, repos.Refund.CreateWithinBalance(ctx, refund, decimal.NewFromInt(300)))
	_, err := repos.Refund.MarkProcessing(ctx, refund.ID, "admin-2", decimal.NewFromInt(300))
	require.NoError(t, err)
	require.NoError(t, repos.Refund.SetSubmitted(ctx, refund.ID, "AG_20240101_0000", "29112-34801843-1"))

	byConversation, err := repos.Refund.GetByConversationID(ctx, "AG_20240101_0000")
	require.NoError(t, err)
	require.NotNil(t, byConversation)
	assert.Equal(t, refund.ID, byConversation.ID)

	latest, err := repos.Refund.GetLatestInFlight(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, refund.ID, latest.ID)

	ok, err := repos.Refund.Resolve(ctx, refund.ID,
		[]model.RefundStatus{model.RefundStatusProcessing}, model.RefundStatusCompleted, strPtr("QGH7REV001"), "")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repos.Refund.Resolve(ctx, refund.ID,
		[]model.RefundStatus{model.RefundStatusProcessing}, model.RefundStatusFailed, nil, "late failure")
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := repos.Refund.GetByID(ctx, refund.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RefundStatusCompleted, stored.Status)
	assert.Equal(t, "QGH7REV001", *stored.ReceiptCode)
	assert.NotNil(t, stored.CompletedAt)

	none, err := repos.Refund.GetLatestInFlight(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestRefundRepository_DeniedRefundCannotBeApproved(t *testing.T) {
	ctx := context.Background()
	repos := newRepos(t)
	payment := createPayment(t, repos, "ws_CO_5", 500)
	completePayment(t, repos, payment, "QGH7REF003")
	settled := decimal.NewFromInt(500)

	newRefund := func() *model.Refund {
		return &model.Refund{
			PaymentID:   payment.ID,
			OrderRef:    payment.OrderRef,
			Amount:      decimal.NewFromInt(100),
			Status:      model.RefundStatusPending,
			RequestedBy: "admin-1",
		}
	}

	denied := newRefund()
	require.NoError(t, repos.Refund.CreateWithinBalance(ctx, denied, settled))
	ok, err := repos.Refund.Deny(ctx, denied.ID, "admin-2", "denied by admin-2: duplicate request")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repos.Refund.Deny(ctx, denied.ID, "admin-2", "again")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repos.Refund.MarkProcessing(ctx, denied.ID, "admin-3", settled)
	assert.True(t, domainErrors.IsType(err, domainErrors.ErrTypeInvalidState))

	stored, err := repos.Refund.GetByID(ctx, denied.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RefundStatusFailed, stored.Status)
	assert.True(t, stored.IsDenied())
	assert.NotNil(t, stored.DeniedAt)
	assert.Nil(t, stored.ApprovedBy)

	// A refund that failed at the gateway is still retryable.
	failed := newRefund()
	require.NoError(t, repos.Refund.CreateWithinBalance(ctx, failed, settled))
	_, err = repos.Refund.MarkProcessing(ctx, failed.ID, "admin-2", settled)
	require.NoError(t, err)
	ok, err = repos.Refund.Resolve(ctx, failed.ID,
		[]model.RefundStatus{model.RefundStatusProcessing}, model.RefundStatusFailed, nil, "reversal submission failed")
	require.NoError(t, err)
	require.True(t, ok)

	retried, err := repos.Refund.MarkProcessing(ctx, failed.ID, "admin-2", settled)
	require.NoError(t, err)
	assert.Equal(t, model.RefundStatusProcessing, retried.Status)
}

func TestReconciliationRepository_UpsertKeepsOneRecord(t *testing.T) {
	ctx := context.Background()
	repos := newRepos(t)
	paymentID := uuid.New()

	record := &model.ReconciliationRecord{
		PaymentID:        paymentID,
		ReceiptCode:      "QGH7REC001",
		GatewayAmount:    decimal.NewFromInt(950),
		SystemAmount:     decimal.NewFromInt(1000),
		AmountDifference: decimal.NewFromInt(50),
		Matched:          false,
		ReconciledAt:     time.Now().UTC(),
	}
	require.NoError(t, repos.Reconciliation.Upsert(ctx, record))

	unmatched, err := repos.Reconciliation.ListUnmatched(ctx)
	require.NoError(t, err)
	assert.Len(t, unmatched, 1)

	again := &model.ReconciliationRecord{
		PaymentID:        paymentID,
		ReceiptCode:      "QGH7REC001",
		GatewayAmount:    decimal.NewFromInt(1000),
		SystemAmount:     decimal.NewFromInt(1000),
		AmountDifference: decimal.Zero,
		Matched:          true,
		ManualOverride:   true,
		Notes:            strPtr("late settlement confirmed"),
		ReconciledBy:     strPtr("admin-1"),
		ReconciledAt:     time.Now().UTC(),
	}
	require.NoError(t, repos.Reconciliation.Upsert(ctx, again))

	stored, err := repos.Reconciliation.GetByPaymentID(ctx, paymentID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, stored.Matched)
	assert.True(t, stored.ManualOverride)
	assert.True(t, stored.AmountDifference.IsZero())
	assert.Equal(t, "admin-1", *stored.ReconciledBy)

	all, err := repos.Reconciliation.ListBetween(ctx, time.Now().UTC().Add(-time.Hour), time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, all, 1)

	unmatched, err = repos.Reconciliation.ListUnmatched(ctx)
	require.NoError(t, err)
	assert.Empty(t, unmatched)
}

func TestGatewayTransactionRepository_SaveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repos := newRepos(t)

	txn := &model.GatewayTransaction{
		ReceiptCode:       "QGH7TXN001",
		CheckoutRequestID: "ws_CO_5",
		Amount:            decimal.NewFromInt(500),
	}
	require.NoError(t, repos.GatewayTransaction.Save(ctx, txn))
	require.NoError(t, repos.GatewayTransaction.Save(ctx, &model.GatewayTransaction{
		ReceiptCode:       "QGH7TXN001",
		CheckoutRequestID: "ws_CO_5",
		Amount:            decimal.NewFromInt(1),
	}))

	stored, err := repos.GatewayTransaction.GetByReceiptCode(ctx, "QGH7TXN001")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, stored.Amount.Equal(decimal.NewFromInt(500)))

	missing, err := repos.GatewayTransaction.GetByReceiptCode(ctx, "NOPE")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCallbackEventRepository(t *testing.T) {
	ctx := context.Background()
	repos := newRepos(t)

	event := &model.CallbackEvent{
		Kind:          model.CallbackKindSTKPush,
		CorrelationID: strPtr("ws_CO_6"),
		Payload:       datatypes.JSON(`{"Body":{}}`),
		Status:        model.CallbackEventReceived,
	}
	require.NoError(t, repos.CallbackEvent.Save(ctx, event))
	assert.NotZero(t, event.ID)

	require.NoError(t, repos.CallbackEvent.MarkResult(ctx, event.ID, model.CallbackEventDuplicate, nil))

	events, err := repos.CallbackEvent.ListByCorrelationID(ctx, "ws_CO_6")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.CallbackEventDuplicate, events[0].Status)
	assert.NotNil(t, events[0].ProcessedAt)
	assert.JSONEq(t, `{"Body":{}}`, string(events[0].Payload))
}
