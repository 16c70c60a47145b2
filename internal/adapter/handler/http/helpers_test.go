package http

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/farunova-art/farunova-sub001/internal/domain/model"
	"github.com/farunova-art/farunova-sub001/internal/domain/provider"
	"github.com/farunova-art/farunova-sub001/internal/infrastructure/database"
	"github.com/farunova-art/farunova-sub001/internal/middleware/auth"
	"github.com/farunova-art/farunova-sub001/internal/usecase"
	"github.com/farunova-art/farunova-sub001/pkg/logger"
)

const testJWTSecret = "handler-secret"

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) STKPush(ctx context.Context, req *provider.STKPushRequest) (*provider.STKPushResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.STKPushResponse), args.Error(1)
}

func (m *MockGateway) STKQuery(ctx context.Context, checkoutRequestID string) (*provider.STKQueryResponse, error) {
	args := m.Called(ctx, checkoutRequestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.STKQueryResponse), args.Error(1)
}

func (m *MockGateway) GenerateQR(ctx context.Context, req *provider.QRRequest) (*provider.QRResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.QRResponse), args.Error(1)
}

func (m *MockGateway) Reversal(ctx context.Context, req *provider.ReversalRequest) (*provider.ReversalResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.ReversalResponse), args.Error(1)
}

type handlerEnv struct {
	echo    *echo.Echo
	repos   *database.Repositories
	gateway *MockGateway
}

// newHandlerEnv wires the real usecases over an in-memory database behind the
// same routes the server exposes.
func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()
	log := zap.NewNop()

	db, err := database.NewInMemory(log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db, log) })

	repos := database.NewRepositories(db, log)
	gateway := new(MockGateway)

	ledger := usecase.NewPaymentLedger(repos.Payment, gateway, nil, nil, log)
	callbacks := usecase.NewCallbackProcessor(ledger, repos.Payment, repos.GatewayTransaction, repos.CallbackEvent, nil, log)
	refunds := usecase.NewRefundWorkflow(repos.Refund, repos.Payment, gateway, repos.CallbackEvent, nil, nil, log)
	engine := usecase.NewReconciliationEngine(repos.Payment, repos.Reconciliation,
		usecase.NewStoredTransactionSource(repos.GatewayTransaction), nil, nil, log)

	e := echo.New()
	e.Validator = NewRequestValidator()
	logger.WithEchoLogger(e, log)

	payments := NewPaymentHandler(ledger, log)
	mpesa := NewMpesaCallbackHandler(callbacks, refunds, log)
	refundHandler := NewRefundHandler(refunds, log)
	reconciliation := NewReconciliationHandler(engine, log)

	v1 := e.Group("/api/v1")
	v1.POST("/payments/stk", payments.InitiateSTKPush)
	v1.GET("/payments/:id", payments.GetPayment)
	v1.POST("/payments/:id/query", payments.QueryPayment)
	v1.POST("/payments/qr", payments.GenerateQR)
	v1.POST("/mpesa/callback", mpesa.HandleSTKCallback)
	v1.POST("/mpesa/reversal/result", mpesa.HandleReversalResult)
	v1.POST("/mpesa/reversal/timeout", mpesa.HandleReversalTimeout)

	admin := v1.Group("/admin", auth.JWTMiddleware(auth.JWTConfig{Secret: testJWTSecret, Logger: log}))
	admin.POST("/refunds", refundHandler.CreateRefund)
	admin.POST("/refunds/:id/approve", refundHandler.ApproveRefund)
	admin.POST("/refunds/:id/deny", refundHandler.DenyRefund)
	admin.GET("/payments/:id/refunds", refundHandler.ListPaymentRefunds)
	admin.POST("/reconciliation/payments/:id", reconciliation.ReconcilePayment)
	admin.POST("/reconciliation/payments/:id/manual", reconciliation.ManualMatch)
	admin.POST("/reconciliation/run", reconciliation.RunRange)
	admin.GET("/reconciliation/discrepancies", reconciliation.ListDiscrepancies)
	admin.GET("/reconciliation/report", reconciliation.Report)

	return &handlerEnv{echo: e, repos: repos, gateway: gateway}
}

func operatorToken(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "operator-1",
		"email": "finance@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}

func (e *handlerEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.echo.ServeHTTP(rec, req)
	return rec
}

func (e *handlerEnv) doAdmin(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+operatorToken(t))
	rec := httptest.NewRecorder()
	e.echo.ServeHTTP(rec, req)
	return rec
}

func strPtr(s string) *string { return &s }

func (e *handlerEnv) pendingPayment(t *testing.T, checkoutID string, amount decimal.Decimal) *model.Payment {
	t.Helper()
	payment := &model.Payment{
		OrderRef:          "ORD-" + checkoutID,
		Amount:            amount,
		PhoneNumber:       "254712345678",
		Status:            model.PaymentStatusPending,
		CheckoutRequestID: strPtr(checkoutID),
	}
	require.NoError(t, e.repos.Payment.Create(context.Background(), payment))
	return payment
}

func (e *handlerEnv) completedPayment(t *testing.T, checkoutID, receipt string, amount decimal.Decimal) *model.Payment {
	t.Helper()
	payment := e.pendingPayment(t, checkoutID, amount)
	ok, err := e.repos.Payment.TransitionFromPending(context.Background(), checkoutID, model.PaymentTransition{
		Status:        model.PaymentStatusCompleted,
		ReceiptCode:   strPtr(receipt),
		SettledAmount: decimal.NewNullDecimal(amount),
		CompletedAt:   time.Now().UTC(),
	})
	require.NoError(t, err)
	require.True(t, ok)
	return payment
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	require.Equalf(t, want, rec.Code, "body: %s", rec.Body.String())
}
