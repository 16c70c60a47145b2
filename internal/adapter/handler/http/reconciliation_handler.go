package http

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/farunova-art/farunova-sub001/internal/middleware/auth"
	"github.com/farunova-art/farunova-sub001/internal/usecase"
)

const defaultReportWindow = 24 * time.Hour

type ReconciliationHandler struct {
	engine *usecase.ReconciliationEngine
	logger *zap.Logger
	now    func() time.Time
}

func NewReconciliationHandler(engine *usecase.ReconciliationEngine, logger *zap.Logger) *ReconciliationHandler {
	return &ReconciliationHandler{
		engine: engine,
		logger: logger,
		now:    time.Now,
	}
}

type manualMatchRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Notes  string          `json:"notes" validate:"required"`
}

// ReconcilePayment handles POST /api/v1/admin/reconciliation/payments/:id
func (h *ReconciliationHandler) ReconcilePayment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payment id")
	}

	record, err := h.engine.ReconcileOne(c.Request().Context(), id)
	if err != nil {
		return respondError(c, h.logger, "Failed to reconcile payment", err,
			zap.String("payment_id", id.String()))
	}
	return c.JSON(http.StatusOK, record)
}

// RunRange handles POST /api/v1/admin/reconciliation/run?start=&end=
func (h *ReconciliationHandler) RunRange(c echo.Context) error {
	start, end, err := h.parseWindow(c)
	if err != nil {
		return err
	}

	summary, err := h.engine.ReconcileRange(c.Request().Context(), start, end)
	if err != nil {
		return respondError(c, h.logger, "Failed to run reconciliation", err,
			zap.Time("start", start),
			zap.Time("end", end))
	}
	return c.JSON(http.StatusOK, summary)
}

// ManualMatch handles POST /api/v1/admin/reconciliation/payments/:id/manual
func (h *ReconciliationHandler) ManualMatch(c echo.Context) error {
	operator, err := auth.RequireOperator(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payment id")
	}

	var req manualMatchRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	record, err := h.engine.ManualMatch(c.Request().Context(), id, req.Amount, req.Notes, operator.Actor())
	if err != nil {
		return respondError(c, h.logger, "Failed to record manual match", err,
			zap.String("payment_id", id.String()),
			zap.String("approved_by", operator.Actor()))
	}
	return c.JSON(http.StatusOK, record)
}

// ListDiscrepancies handles GET /api/v1/admin/reconciliation/discrepancies
func (h *ReconciliationHandler) ListDiscrepancies(c echo.Context) error {
	discrepancies, err := h.engine.DetectDiscrepancies(c.Request().Context())
	if err != nil {
		return respondError(c, h.logger, "Failed to list discrepancies", err)
	}
	return c.JSON(http.StatusOK, discrepancies)
}

// Report handles GET /api/v1/admin/reconciliation/report?start=&end=
func (h *ReconciliationHandler) Report(c echo.Context) error {
	start, end, err := h.parseWindow(c)
	if err != nil {
		return err
	}

	report, err := h.engine.GenerateReport(c.Request().Context(), start, end)
	if err != nil {
		return respondError(c, h.logger, "Failed to generate reconciliation report", err,
			zap.Time("start", start),
			zap.Time("end", end))
	}
	return c.JSON(http.StatusOK, report)
}

// parseWindow reads RFC 3339 start/end query params. A missing end is now and a
// missing start is one day before end.
func (h *ReconciliationHandler) parseWindow(c echo.Context) (time.Time, time.Time, error) {
	end := h.now().UTC()
	if raw := c.QueryParam("end"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "end must be an RFC 3339 timestamp")
		}
		end = parsed.UTC()
	}

	start := end.Add(-defaultReportWindow)
	if raw := c.QueryParam("start"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "start must be an RFC 3339 timestamp")
		}
		start = parsed.UTC()
	}
	return start, end, nil
}
