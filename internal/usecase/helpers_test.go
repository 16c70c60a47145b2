package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/farunova-art/farunova-sub001/internal/domain/model"
	"github.com/farunova-art/farunova-sub001/internal/domain/provider"
	"github.com/farunova-art/farunova-sub001/internal/infrastructure/database"
)

// MockGateway is a mock implementation of provider.Gateway
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

// recordingPublisher keeps every published message.
type recordingPublisher struct {
	mu       sync.Mutex
	channels []string
	events   []Event
}

func (p *recordingPublisher) Publish(ctx context.Context, channel string, message interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels = append(p.channels, channel)
	if e, ok := message.(Event); ok {
		p.events = append(p.events, e)
	}
	return nil
}

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.channels...)
}

type testEnv struct {
	repos     *database.Repositories
	gateway   *MockGateway
	publisher *recordingPublisher
	ledger    *PaymentLedger
	callbacks *CallbackProcessor
	refunds   *RefundWorkflow
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.NewInMemory(logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db, logger) })

	repos := database.NewRepositories(db, logger)
	gateway := new(MockGateway)
	publisher := &recordingPublisher{}
	events := NewEventEmitter(publisher, "mpesa", logger)

	ledger := NewPaymentLedger(repos.Payment, gateway, events, nil, logger)
	return &testEnv{
		repos:     repos,
		gateway:   gateway,
		publisher: publisher,
		ledger:    ledger,
		callbacks: NewCallbackProcessor(ledger, repos.Payment, repos.GatewayTransaction, repos.CallbackEvent, nil, logger),
		refunds:   NewRefundWorkflow(repos.Refund, repos.Payment, gateway, repos.CallbackEvent, events, nil, logger),
	}
}

func strPtr(s string) *string { return &s }

// pendingPayment stores a payment that the gateway accepted.
func (e *testEnv) pendingPayment(t *testing.T, checkoutID string, amount decimal.Decimal) *model.Payment {
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

// completedPayment stores a settled payment with a receipt code.
func (e *testEnv) completedPayment(t *testing.T, checkoutID, receipt string, amount decimal.Decimal) *model.Payment {
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

	stored, err := e.repos.Payment.GetByID(context.Background(), payment.ID)
	require.NoError(t, err)
	return stored
}

type callbackItem struct {
	Name  string      `json:"Name"`
	Value interface{} `json:"Value,omitempty"`
}

func stkCallbackPayload(t *testing.T, checkoutID string, resultCode int, desc string, items ...callbackItem) []byte {
	t.Helper()
	cb := map[string]interface{}{
		"MerchantRequestID": "29115-34620561-1",
		"CheckoutRequestID": checkoutID,
		"ResultCode":        resultCode,
		"ResultDesc":        desc,
	}
	if len(items) > 0 {
		cb["CallbackMetadata"] = map[string]interface{}{"Item": items}
	}
	body, err := json.Marshal(map[string]interface{}{
		"Body": map[string]interface{}{"stkCallback": cb},
	})
	require.NoError(t, err)
	return body
}

func successItems(receipt string, amount float64) []callbackItem {
	// Amount first: lookup must not depend on position.
	return []callbackItem{
		{Name: "Amount", Value: amount},
		{Name: "Balance"},
		{Name: "TransactionDate", Value: 20191219102115},
		{Name: "MpesaReceiptNumber", Value: receipt},
		{Name: "PhoneNumber", Value: 254712345678},
	}
}

func reversalPayload(t *testing.T, conversationID string, resultCode int, desc, transactionID string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"Result": map[string]interface{}{
			"ResultType":               0,
			"ResultCode":               resultCode,
			"ResultDesc":               desc,
			"OriginatorConversationID": "10571-7910404-1",
			"ConversationID":           conversationID,
			"TransactionID":            transactionID,
		},
	})
	require.NoError(t, err)
	return body
}
