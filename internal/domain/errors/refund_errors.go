package errors

import (
	"fmt"

	pkgerrors "github.com/farunova-art/farunova-sub001/pkg/errors"
	"github.com/shopspring/decimal"
)

// RefundLimitError is returned when a refund would push refunded total past the settled amount.
type RefundLimitError struct {
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *RefundLimitError) Error() string {
	return fmt.Sprintf("%s: refund of %s exceeds refundable balance %s",
		ErrTypeRefundLimit, e.Requested.StringFixed(2), e.Available.StringFixed(2))
}

func (e *RefundLimitError) Code() string {
	return pkgerrors.ErrFailedPrecondition
}

func (e *RefundLimitError) Unwrap() error {
	return nil
}

// NewRefundLimitError creates a new RefundLimitError
func NewRefundLimitError(requested, available decimal.Decimal) *RefundLimitError {
	return &RefundLimitError{
		Requested: requested,
		Available: available,
	}
}
