package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	paymentErrors "github.com/farunova-art/farunova-sub001/internal/domain/errors"
	"github.com/farunova-art/farunova-sub001/internal/domain/model"
	"github.com/farunova-art/farunova-sub001/internal/domain/provider"
)

func createRefund(t *testing.T, env *handlerEnv, body string) *model.Refund {
	t.Helper()
	rec := env.doAdmin(t, http.MethodPost, "/api/v1/admin/refunds", body)
	assertStatus(t, rec, http.StatusCreated)
	var refund model.Refund
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &refund))
	return &refund
}

func TestRefundHandler_CreateRecordsOperator(t *testing.T) {
	env := newHandlerEnv(t)
	payment := env.completedPayment(t, "ws_CO_r1", "NLJ7RT61SA", decimal.NewFromInt(250))

	refund := createRefund(t, env, `{"payment_id":"`+payment.ID.String()+`","reason":"duplicate charge"}`)

	assert.Equal(t, model.RefundStatusPending, refund.Status)
	assert.Equal(t, "finance@example.com", refund.RequestedBy)
	assert.True(t, refund.Amount.Equal(decimal.NewFromInt(250)), "amount defaults to the settled amount")
}

func TestRefundHandler_CreateRejections(t *testing.T) {
	env := newHandlerEnv(t)
	completed := env.completedPayment(t, "ws_CO_r2", "NLJ7RT61SB", decimal.NewFromInt(100))
	pending := env.pendingPayment(t, "ws_CO_r3", decimal.NewFromInt(100))
	first := createRefund(t, env, `{"payment_id":"`+completed.ID.String()+`","amount":80,"reason":"first"}`)
	env.gateway.On("Reversal", mock.Anything, mock.Anything).Return(&provider.ReversalResponse{
		OriginatorConversationID: "10571-7910404-2",
		ConversationID:           "AG_20191219_00005797af5d7d75f652",
		ResponseCode:             "0",
	}, nil)
	assertStatus(t, env.doAdmin(t, http.MethodPost, "/api/v1/admin/refunds/"+first.ID.String()+"/approve", ""), http.StatusOK)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing reason", `{"payment_id":"` + completed.ID.String() + `"}`, http.StatusBadRequest},
		{"bad payment id", `{"payment_id":"nope","reason":"x"}`, http.StatusBadRequest},
		{"pending payment", `{"payment_id":"` + pending.ID.String() + `","reason":"x"}`, http.StatusConflict},
		{"exceeds settled amount", `{"payment_id":"` + completed.ID.String() + `","amount":101,"reason":"x"}`, http.StatusBadRequest},
		{"exceeds refundable balance", `{"payment_id":"` + completed.ID.String() + `","amount":30,"reason":"second"}`, http.StatusUnprocessableEntity},
		{"negative amount", `{"payment_id":"` + completed.ID.String() + `","amount":-5,"reason":"x"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.doAdmin(t, http.MethodPost, "/api/v1/admin/refunds", tt.body)
			assertStatus(t, rec, tt.want)
		})
	}
}

func TestRefundHandler_RequiresToken(t *testing.T) {
	env := newHandlerEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/admin/refunds", `{}`)

	assertStatus(t, rec, http.StatusUnauthorized)
}

func TestRefundHandler_ApproveSubmissionFailure(t *testing.T) {
	env := newHandlerEnv(t)
	payment := env.completedPayment(t, "ws_CO_r4", "NLJ7RT61SC", decimal.NewFromInt(60))
	refund := createRefund(t, env, `{"payment_id":"`+payment.ID.String()+`","reason":"cancelled order"}`)
	env.gateway.On("Reversal", mock.Anything, mock.Anything).
		Return(nil, paymentErrors.NewGatewayError("reversal", http.StatusInternalServerError, "500.003.1001", "Internal Server Error"))

	rec := env.doAdmin(t, http.MethodPost, "/api/v1/admin/refunds/"+refund.ID.String()+"/approve", "")

	assertStatus(t, rec, http.StatusBadGateway)
	list := env.doAdmin(t, http.MethodGet, "/api/v1/admin/payments/"+payment.ID.String()+"/refunds", "")
	assertStatus(t, list, http.StatusOK)
	var refunds []model.Refund
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &refunds))
	require.Len(t, refunds, 1)
	assert.Equal(t, model.RefundStatusFailed, refunds[0].Status)
}

func TestRefundHandler_Deny(t *testing.T) {
	env := newHandlerEnv(t)
	payment := env.completedPayment(t, "ws_CO_r5", "NLJ7RT61SD", decimal.NewFromInt(75))
	refund := createRefund(t, env, `{"payment_id":"`+payment.ID.String()+`","reason":"changed mind"}`)

	missing := env.doAdmin(t, http.MethodPost, "/api/v1/admin/refunds/"+refund.ID.String()+"/deny", `{}`)
	assertStatus(t, missing, http.StatusBadRequest)

	rec := env.doAdmin(t, http.MethodPost, "/api/v1/admin/refunds/"+refund.ID.String()+"/deny", `{"reason":"outside policy"}`)
	assertStatus(t, rec, http.StatusOK)
	var denied model.Refund
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &denied))
	assert.Equal(t, model.RefundStatusFailed, denied.Status)
	require.NotNil(t, denied.Notes)
	assert.Contains(t, *denied.Notes, "finance@example.com")

	again := env.doAdmin(t, http.MethodPost, "/api/v1/admin/refunds/"+refund.ID.String()+"/deny", `{"reason":"again"}`)
	assertStatus(t, again, http.StatusConflict)
}

func TestRefundHandler_DirectCallWithoutOperator(t *testing.T) {
	env := newHandlerEnv(t)
	handler := NewRefundHandler(nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/refunds", strings.NewReader(`{}`))
	c := env.echo.NewContext(req, httptest.NewRecorder())

	err := handler.CreateRefund(c)

	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
}
