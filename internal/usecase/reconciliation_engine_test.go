package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/farunova-art/farunova-sub001/internal/domain/dto"
	paymentErrors "github.com/farunova-art/farunova-sub001/internal/domain/errors"
	"github.com/farunova-art/farunova-sub001/internal/domain/model"
)

// stubSource confirms amounts from a fixed map of receipt codes.
type stubSource map[string]decimal.Decimal

func (s stubSource) ConfirmedAmount(ctx context.Context, receiptCode string) (decimal.Decimal, bool, error) {
	amount, ok := s[receiptCode]
	return amount, ok, nil
}

func newEngine(env *testEnv, source ConfirmedTransactionSource) *ReconciliationEngine {
	return NewReconciliationEngine(env.repos.Payment, env.repos.Reconciliation, source, NewEventEmitter(env.publisher, "mpesa", zap.NewNop()), nil, zap.NewNop())
}

func TestReconciliationEngine_ReconcileOne(t *testing.T) {
	tests := []struct {
		name      string
		confirmed string
		matched   bool
		diff      string
	}{
		{name: "matching amount", confirmed: "1000.00", matched: true, diff: "0"},
		{name: "short settlement", confirmed: "950.00", matched: false, diff: "50"},
		{name: "within tolerance", confirmed: "1000.009", matched: true, diff: "0.009"},
		{name: "at tolerance", confirmed: "1000.01", matched: false, diff: "0.01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			payment := env.completedPayment(t, "ws_CO_1", "NLJ7RT61SV", decimal.RequireFromString("1000.00"))
			engine := newEngine(env, stubSource{"NLJ7RT61SV": decimal.RequireFromString(tt.confirmed)})

			record, err := engine.ReconcileOne(context.Background(), payment.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.matched, record.Matched)
			assert.True(t, record.AmountDifference.Equal(decimal.RequireFromString(tt.diff)), record.AmountDifference.String())
			assert.True(t, record.SystemAmount.Equal(decimal.NewFromInt(1000)))
		})
	}
}

func TestReconciliationEngine_ReconcileOneIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	payment := env.completedPayment(t, "ws_CO_1", "NLJ7RT61SV", decimal.NewFromInt(1000))
	source := stubSource{"NLJ7RT61SV": decimal.NewFromInt(950)}
	engine := newEngine(env, source)

	_, err := engine.ReconcileOne(ctx, payment.ID)
	require.NoError(t, err)

	source["NLJ7RT61SV"] = decimal.NewFromInt(1000)
	_, err = engine.ReconcileOne(ctx, payment.ID)
	require.NoError(t, err)

	records, err := env.repos.Reconciliation.ListBetween(ctx, time.Now().UTC().Add(-time.Hour), time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Matched)
	assert.True(t, records[0].AmountDifference.IsZero())
}

func TestReconciliationEngine_ReconcileOneRejects(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	engine := newEngine(env, stubSource{})

	pending := env.pendingPayment(t, "ws_CO_P", decimal.NewFromInt(10))
	_, err := engine.ReconcileOne(ctx, pending.ID)
	assert.True(t, paymentErrors.IsType(err, paymentErrors.ErrTypeValidation))

	broken := &model.Payment{
		OrderRef:    "ORD-broken",
		Amount:      decimal.NewFromInt(10),
		PhoneNumber: "254712345678",
		Status:      model.PaymentStatusCompleted,
	}
	require.NoError(t, env.repos.Payment.Create(ctx, broken))
	_, err = engine.ReconcileOne(ctx, broken.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing receipt code")

	unconfirmed := env.completedPayment(t, "ws_CO_U", "NLJ7RT61UU", decimal.NewFromInt(10))
	_, err = engine.ReconcileOne(ctx, unconfirmed.ID)
	assert.True(t, paymentErrors.IsType(err, paymentErrors.ErrTypeNotFound))
}

func TestReconciliationEngine_ReconcileRange(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.completedPayment(t, "ws_CO_1", "R1", decimal.NewFromInt(1000))
	env.completedPayment(t, "ws_CO_2", "R2", decimal.NewFromInt(500))
	env.completedPayment(t, "ws_CO_3", "R3", decimal.NewFromInt(200))
	env.pendingPayment(t, "ws_CO_4", decimal.NewFromInt(300))

	engine := newEngine(env, stubSource{
		"R1": decimal.NewFromInt(1000),
		"R2": decimal.NewFromInt(450),
	})

	now := time.Now().UTC()
	summary, err := engine.ReconcileRange(ctx, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.Matched)
	assert.Equal(t, 1, summary.Discrepant)
	assert.Equal(t, 1, summary.Errored)
	require.Len(t, summary.Errors, 1)

	assert.Contains(t, env.publisher.published(), "mpesa.reconciliation.discrepancy")

	_, err = engine.ReconcileRange(ctx, now, now)
	assert.True(t, paymentErrors.IsType(err, paymentErrors.ErrTypeValidation))
}

func TestReconciliationEngine_ManualMatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	payment := env.completedPayment(t, "ws_CO_1", "NLJ7RT61SV", decimal.NewFromInt(1000))
	engine := newEngine(env, stubSource{"NLJ7RT61SV": decimal.NewFromInt(950)})

	record, err := engine.ReconcileOne(ctx, payment.ID)
	require.NoError(t, err)
	require.False(t, record.Matched)

	record, err = engine.ManualMatch(ctx, payment.ID, decimal.NewFromInt(950), "fee withheld by agent, confirmed with finance", "auditor")
	require.NoError(t, err)
	assert.True(t, record.Matched)
	assert.True(t, record.ManualOverride)
	assert.Equal(t, "auditor", *record.ReconciledBy)

	// A re-run with the same confirmed amount keeps the override.
	record, err = engine.ReconcileOne(ctx, payment.ID)
	require.NoError(t, err)
	assert.True(t, record.Matched)
	assert.True(t, record.ManualOverride)

	discrepancies, err := engine.DetectDiscrepancies(ctx)
	require.NoError(t, err)
	assert.Empty(t, discrepancies)

	_, err = engine.ManualMatch(ctx, payment.ID, decimal.NewFromInt(950), "", "auditor")
	assert.True(t, paymentErrors.IsType(err, paymentErrors.ErrTypeValidation))
}

func TestReconciliationEngine_ReRunKeepsOverrideWithDifferentAmount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	payment := env.completedPayment(t, "ws_CO_1", "NLJ7RT61SV", decimal.NewFromInt(1000))
	engine := newEngine(env, stubSource{"NLJ7RT61SV": decimal.NewFromInt(950)})

	_, err := engine.ManualMatch(ctx, payment.ID, decimal.NewFromInt(1000), "statement shows 1000, gateway report lags", "auditor")
	require.NoError(t, err)

	now := time.Now().UTC()
	summary, err := engine.ReconcileRange(ctx, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Matched)

	record, err := engine.ReconcileOne(ctx, payment.ID)
	require.NoError(t, err)
	assert.True(t, record.Matched)

	stored, err := env.repos.Reconciliation.GetByPaymentID(ctx, payment.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, stored.Matched)
	assert.True(t, stored.ManualOverride)
	require.NotNil(t, stored.Notes)
	assert.Equal(t, "statement shows 1000, gateway report lags", *stored.Notes)
	require.NotNil(t, stored.ReconciledBy)
	assert.Equal(t, "auditor", *stored.ReconciledBy)
	assert.True(t, stored.GatewayAmount.Equal(decimal.NewFromInt(1000)))

	discrepancies, err := engine.DetectDiscrepancies(ctx)
	require.NoError(t, err)
	assert.Empty(t, discrepancies)
	assert.NotContains(t, env.publisher.published(), "mpesa.reconciliation.discrepancy")
}

func TestReconciliationEngine_DetectAndReport(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	source := stubSource{}
	amounts := []struct {
		receipt   string
		system    int64
		confirmed string
	}{
		{"R1", 1000, "1000"},
		{"R2", 1000, "999.50"},
		{"R3", 1000, "950"},
		{"R4", 1000, "800"},
	}
	for _, a := range amounts {
		env.completedPayment(t, "ws_CO_"+a.receipt, a.receipt, decimal.NewFromInt(a.system))
		source[a.receipt] = decimal.RequireFromString(a.confirmed)
	}
	engine := newEngine(env, source)

	now := time.Now().UTC()
	_, err := engine.ReconcileRange(ctx, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)

	discrepancies, err := engine.DetectDiscrepancies(ctx)
	require.NoError(t, err)
	require.Len(t, discrepancies, 3)
	assert.Equal(t, "R4", discrepancies[0].ReceiptCode)
	assert.Equal(t, dto.SeverityHigh, discrepancies[0].Severity)
	assert.Equal(t, dto.SeverityMedium, discrepancies[1].Severity)
	assert.Equal(t, dto.SeverityLow, discrepancies[2].Severity)

	report, err := engine.GenerateReport(ctx, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 4, report.TotalRecords)
	assert.Equal(t, 1, report.Matched)
	assert.Equal(t, 3, report.Unmatched)
	assert.True(t, report.MatchRate.Equal(decimal.NewFromInt(25)))
	assert.True(t, report.TotalDiscrepancy.Equal(decimal.RequireFromString("250.50")))
	assert.True(t, report.SystemTotal.Equal(decimal.NewFromInt(4000)))
	assert.Equal(t, dto.HealthPoor, report.Health)
	assert.Len(t, report.Discrepancies, 3)
}

func TestReconciliationEngine_EmptyReport(t *testing.T) {
	env := newTestEnv(t)
	engine := newEngine(env, stubSource{})

	now := time.Now().UTC()
	report, err := engine.GenerateReport(context.Background(), now.Add(-time.Hour), now)
	require.NoError(t, err)
	assert.Equal(t, 0, report.TotalRecords)
	assert.Equal(t, dto.HealthExcellent, report.Health)
}

func TestHealthLabel(t *testing.T) {
	tests := []struct {
		rate string
		want string
	}{
		{"100", dto.HealthExcellent},
		{"99.5", dto.HealthExcellent},
		{"99.49", dto.HealthGood},
		{"95", dto.HealthGood},
		{"94.99", dto.HealthFair},
		{"90", dto.HealthFair},
		{"89.99", dto.HealthPoor},
		{"0", dto.HealthPoor},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HealthLabel(decimal.RequireFromString(tt.rate)), tt.rate)
	}
}

func TestSeverity(t *testing.T) {
	assert.Equal(t, dto.SeverityLow, Severity(decimal.RequireFromString("0.5")))
	assert.Equal(t, dto.SeverityMedium, Severity(decimal.NewFromInt(1)))
	assert.Equal(t, dto.SeverityMedium, Severity(decimal.RequireFromString("99.99")))
	assert.Equal(t, dto.SeverityHigh, Severity(decimal.NewFromInt(100)))
}

func TestStoredTransactionSource(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.repos.GatewayTransaction.Save(ctx, &model.GatewayTransaction{
		ReceiptCode:       "NLJ7RT61SV",
		CheckoutRequestID: "ws_CO_1",
		Amount:            decimal.NewFromInt(1000),
	}))

	source := NewStoredTransactionSource(env.repos.GatewayTransaction)
	amount, found, err := source.ConfirmedAmount(ctx, "NLJ7RT61SV")
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, amount.Equal(decimal.NewFromInt(1000)))

	_, found, err = source.ConfirmedAmount(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)
}
