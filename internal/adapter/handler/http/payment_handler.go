package http

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/farunova-art/farunova-sub001/internal/domain/provider"
	"github.com/farunova-art/farunova-sub001/internal/usecase"
)

type PaymentHandler struct {
	ledger *usecase.PaymentLedger
	logger *zap.Logger
}

func NewPaymentHandler(ledger *usecase.PaymentLedger, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		ledger: ledger,
		logger: logger,
	}
}

type initiatePaymentRequest struct {
	Phone       string          `json:"phone" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
	OrderRef    string          `json:"order_ref" validate:"required,max=100"`
	UserRef     *string         `json:"user_ref,omitempty" validate:"omitempty,max=100"`
	Description string          `json:"description" validate:"max=255"`
}

type generateQRRequest struct {
	MerchantName string          `json:"merchant_name" validate:"max=100"`
	RefNo        string          `json:"ref_no" validate:"required,max=12"`
	Amount       decimal.Decimal `json:"amount"`
	TrxCode      string          `json:"trx_code"`
	CPI          string          `json:"cpi"`
	Size         int             `json:"size" validate:"omitempty,min=100,max=1000"`
}

// InitiateSTKPush handles POST /api/v1/payments/stk
func (h *PaymentHandler) InitiateSTKPush(c echo.Context) error {
	var req initiatePaymentRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	result, err := h.ledger.Initiate(c.Request().Context(), &usecase.InitiatePaymentRequest{
		PhoneNumber: req.Phone,
		Amount:      req.Amount,
		OrderRef:    req.OrderRef,
		UserRef:     req.UserRef,
		Description: req.Description,
	})
	if err != nil {
		return respondError(c, h.logger, "Failed to initiate STK push", err,
			zap.String("order_ref", req.OrderRef))
	}

	return c.JSON(http.StatusAccepted, result)
}

// GetPayment handles GET /api/v1/payments/:id
func (h *PaymentHandler) GetPayment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payment id")
	}

	payment, err := h.ledger.Get(c.Request().Context(), id)
	if err != nil {
		return respondError(c, h.logger, "Failed to get payment", err,
			zap.String("payment_id", id.String()))
	}

	return c.JSON(http.StatusOK, payment)
}

// QueryPayment handles POST /api/v1/payments/:id/query
func (h *PaymentHandler) QueryPayment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payment id")
	}

	result, err := h.ledger.QueryByID(c.Request().Context(), id)
	if err != nil {
		return respondError(c, h.logger, "Failed to query payment status", err,
			zap.String("payment_id", id.String()))
	}

	return c.JSON(http.StatusOK, result)
}

// ListByOrder handles GET /api/v1/payments?order_ref=
func (h *PaymentHandler) ListByOrder(c echo.Context) error {
	orderRef := c.QueryParam("order_ref")
	if orderRef == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "order_ref is required")
	}

	payments, err := h.ledger.ListByOrder(c.Request().Context(), orderRef)
	if err != nil {
		return respondError(c, h.logger, "Failed to list payments", err,
			zap.String("order_ref", orderRef))
	}

	return c.JSON(http.StatusOK, payments)
}

// GenerateQR handles POST /api/v1/payments/qr
func (h *PaymentHandler) GenerateQR(c echo.Context) error {
	var req generateQRRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	qr, err := h.ledger.GenerateQR(c.Request().Context(), &provider.QRRequest{
		MerchantName: req.MerchantName,
		RefNo:        req.RefNo,
		Amount:       req.Amount,
		TrxCode:      req.TrxCode,
		CPI:          req.CPI,
		Size:         req.Size,
	})
	if err != nil {
		return respondError(c, h.logger, "Failed to generate QR code", err,
			zap.String("ref_no", req.RefNo))
	}

	return c.JSON(http.StatusOK, qr)
}
