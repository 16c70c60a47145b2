package http

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/farunova-art/farunova-sub001/internal/middleware/auth"
	"github.com/farunova-art/farunova-sub001/internal/usecase"
)

// RefundHandler exposes the refund approval workflow to operators.
type RefundHandler struct {
	refunds *usecase.RefundWorkflow
	logger  *zap.Logger
}

func NewRefundHandler(refunds *usecase.RefundWorkflow, logger *zap.Logger) *RefundHandler {
	return &RefundHandler{
		refunds: refunds,
		logger:  logger,
	}
}

type createRefundRequest struct {
	PaymentID string           `json:"payment_id" validate:"required,uuid"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
	Reason    string           `json:"reason" validate:"required,max=255"`
}

type denyRefundRequest struct {
	Reason string `json:"reason" validate:"required,max=255"`
}

// CreateRefund handles POST /api/v1/admin/refunds
func (h *RefundHandler) CreateRefund(c echo.Context) error {
	operator, err := auth.RequireOperator(c)
	if err != nil {
		return err
	}

	var req createRefundRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	paymentID, err := uuid.Parse(req.PaymentID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payment id")
	}

	refund, err := h.refunds.Initiate(c.Request().Context(), &usecase.InitiateRefundRequest{
		PaymentID:   paymentID,
		Amount:      req.Amount,
		Reason:      req.Reason,
		RequestedBy: operator.Actor(),
	})
	if err != nil {
		return respondError(c, h.logger, "Failed to create refund", err,
			zap.String("payment_id", req.PaymentID),
			zap.String("requested_by", operator.Actor()))
	}

	return c.JSON(http.StatusCreated, refund)
}

// GetRefund handles GET /api/v1/admin/refunds/:id
func (h *RefundHandler) GetRefund(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid refund id")
	}

	refund, err := h.refunds.Get(c.Request().Context(), id)
	if err != nil {
		return respondError(c, h.logger, "Failed to get refund", err,
			zap.String("refund_id", id.String()))
	}
	return c.JSON(http.StatusOK, refund)
}

// ApproveRefund handles POST /api/v1/admin/refunds/:id/approve
func (h *RefundHandler) ApproveRefund(c echo.Context) error {
	operator, err := auth.RequireOperator(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid refund id")
	}

	refund, err := h.refunds.Approve(c.Request().Context(), id, operator.Actor())
	if err != nil {
		return respondError(c, h.logger, "Failed to approve refund", err,
			zap.String("refund_id", id.String()),
			zap.String("approved_by", operator.Actor()))
	}

	return c.JSON(http.StatusOK, refund)
}

// DenyRefund handles POST /api/v1/admin/refunds/:id/deny
func (h *RefundHandler) DenyRefund(c echo.Context) error {
	operator, err := auth.RequireOperator(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid refund id")
	}

	var req denyRefundRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	refund, err := h.refunds.Deny(c.Request().Context(), id, req.Reason, operator.Actor())
	if err != nil {
		return respondError(c, h.logger, "Failed to deny refund", err,
			zap.String("refund_id", id.String()),
			zap.String("denied_by", operator.Actor()))
	}

	return c.JSON(http.StatusOK, refund)
}

// ListPaymentRefunds handles GET /api/v1/admin/payments/:id/refunds
func (h *RefundHandler) ListPaymentRefunds(c echo.Context) error {
	paymentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payment id")
	}

	refunds, err := h.refunds.ListByPayment(c.Request().Context(), paymentID)
	if err != nil {
		return respondError(c, h.logger, "Failed to list refunds", err,
			zap.String("payment_id", paymentID.String()))
	}

	return c.JSON(http.StatusOK, refunds)
}
