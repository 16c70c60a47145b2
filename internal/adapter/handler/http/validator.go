package http

import (
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	paymentErrors "github.com/farunova-art/farunova-sub001/internal/domain/errors"
	pkgerrors "github.com/farunova-art/farunova-sub001/pkg/errors"
)

// RequestValidator plugs validator/v10 into echo's c.Validate.
type RequestValidator struct {
	validator *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	return &RequestValidator{validator: validator.New()}
}

func (v *RequestValidator) Validate(i interface{}) error {
	if err := v.validator.Struct(i); err != nil {
		var fieldErrs validator.ValidationErrors
		if pkgerrors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fe.Field()+" failed on "+fe.Tag())
			}
			return echo.NewHTTPError(http.StatusBadRequest, strings.Join(msgs, "; "))
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// bindAndValidate decodes the body into req and runs struct validation.
// Failures come back as 400 HTTP errors for the echo error handler.
func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return c.Validate(req)
}

// respondError maps a usecase error onto its HTTP status. Server-side
// failures are logged at error level, client mistakes at warn.
func respondError(c echo.Context, logger *zap.Logger, msg string, err error, fields ...zap.Field) error {
	code := pkgerrors.CodeOf(err)
	status := pkgerrors.ToHTTPStatus(code)
	if status >= http.StatusInternalServerError || paymentErrors.IsType(err, paymentErrors.ErrTypeProtocol) {
		pkgerrors.LogError(logger, err, msg, fields...)
	} else {
		logger.Warn(msg, append(fields, zap.Error(err), zap.String("error_code", code))...)
	}
	return c.JSON(status, echo.Map{
		"error": err.Error(),
		"code":  code,
	})
}
