package http

import (
	"context"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	paymentErrors "github.com/farunova-art/farunova-sub001/internal/domain/errors"
	"github.com/farunova-art/farunova-sub001/internal/usecase"
	pkgerrors "github.com/farunova-art/farunova-sub001/pkg/errors"
)

// gatewayAck is the acknowledgement body the gateway expects from callback URLs.
type gatewayAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

var accepted = gatewayAck{ResultCode: 0, ResultDesc: "Accepted"}

// MpesaCallbackHandler receives gateway-initiated notifications. The gateway does
// not sign callbacks, so these routes sit outside the JWT group.
type MpesaCallbackHandler struct {
	callbacks *usecase.CallbackProcessor
	refunds   *usecase.RefundWorkflow
	logger    *zap.Logger
}

func NewMpesaCallbackHandler(callbacks *usecase.CallbackProcessor, refunds *usecase.RefundWorkflow, logger *zap.Logger) *MpesaCallbackHandler {
	return &MpesaCallbackHandler{
		callbacks: callbacks,
		refunds:   refunds,
		logger:    logger,
	}
}

// HandleSTKCallback handles POST /api/v1/mpesa/callback
func (h *MpesaCallbackHandler) HandleSTKCallback(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		h.logger.Error("Failed to read callback body", zap.Error(err))
		return c.JSON(http.StatusBadRequest, gatewayAck{ResultCode: 1, ResultDesc: "Unreadable body"})
	}

	result, err := h.callbacks.Handle(c.Request().Context(), body)
	if err != nil {
		return h.acknowledgeFailure(c, "STK callback", err)
	}

	h.logger.Info("STK callback acknowledged",
		zap.String("payment_id", result.PaymentID),
		zap.String("checkout_request_id", result.CheckoutRequestID),
		zap.Int("result_code", result.ResultCode),
		zap.String("status", string(result.Status)),
		zap.Bool("duplicate", result.Duplicate))
	return c.JSON(http.StatusOK, accepted)
}

// HandleReversalResult handles POST /api/v1/mpesa/reversal/result
func (h *MpesaCallbackHandler) HandleReversalResult(c echo.Context) error {
	return h.handleReversal(c, "Reversal result", h.refunds.ProcessCallback)
}

// HandleReversalTimeout handles POST /api/v1/mpesa/reversal/timeout
func (h *MpesaCallbackHandler) HandleReversalTimeout(c echo.Context) error {
	return h.handleReversal(c, "Reversal timeout", h.refunds.HandleTimeout)
}

func (h *MpesaCallbackHandler) handleReversal(
	c echo.Context,
	kind string,
	process func(ctx context.Context, payload []byte) (*usecase.RefundCallbackResult, error),
) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		h.logger.Error("Failed to read reversal body", zap.String("kind", kind), zap.Error(err))
		return c.JSON(http.StatusBadRequest, gatewayAck{ResultCode: 1, ResultDesc: "Unreadable body"})
	}

	result, err := process(c.Request().Context(), body)
	if err != nil {
		return h.acknowledgeFailure(c, kind, err)
	}

	h.logger.Info(kind+" acknowledged",
		zap.String("refund_id", result.RefundID.String()),
		zap.String("conversation_id", result.ConversationID),
		zap.Int("result_code", result.ResultCode),
		zap.String("status", string(result.Status)),
		zap.Bool("duplicate", result.Duplicate))
	return c.JSON(http.StatusOK, accepted)
}

// acknowledgeFailure answers malformed payloads with 400 and acknowledges unknown
// correlation ids. Anything else is a 500 and left for the gateway to redeliver.
func (h *MpesaCallbackHandler) acknowledgeFailure(c echo.Context, kind string, err error) error {
	switch {
	case paymentErrors.IsType(err, paymentErrors.ErrTypeProtocol):
		pkgerrors.LogError(h.logger, err, "Rejected malformed callback", zap.String("kind", kind))
		return c.JSON(http.StatusBadRequest, gatewayAck{ResultCode: 1, ResultDesc: "Rejected"})
	case paymentErrors.IsType(err, paymentErrors.ErrTypeNotFound):
		h.logger.Warn("Callback for unknown transaction acknowledged",
			zap.String("kind", kind),
			zap.Error(err))
		return c.JSON(http.StatusOK, accepted)
	default:
		pkgerrors.LogError(h.logger, err, "Failed to process callback", zap.String("kind", kind))
		return c.JSON(http.StatusInternalServerError, gatewayAck{ResultCode: 1, ResultDesc: "Temporary failure"})
	}
}
