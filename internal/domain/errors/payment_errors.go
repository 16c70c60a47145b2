package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"

	pkgerrors "github.com/farunova-art/farunova-sub001/pkg/errors"
)

// PaymentError is the error type returned by the payment lifecycle.
type PaymentError struct {
	Type    string
	Message string
	// Operation is the gateway operation that failed, when there is one.
	Operation string
	// HTTPStatus and GatewayCode carry the gateway's own diagnosis for GATEWAY_ERROR.
	HTTPStatus  int
	GatewayCode string
	Timeout     bool
	Cause       error
}

// Payment error types
const (
	ErrTypeValidation   = "VALIDATION_ERROR"
	ErrTypeAuth         = "AUTH_ERROR"
	ErrTypeTransport    = "TRANSPORT_ERROR"
	ErrTypeGateway      = "GATEWAY_ERROR"
	ErrTypeProtocol     = "PROTOCOL_ERROR"
	ErrTypeNotFound     = "NOT_FOUND"
	ErrTypeInvalidState = "INVALID_STATE"
	ErrTypeRefundLimit  = "REFUND_LIMIT_EXCEEDED"
)

func (e *PaymentError) Error() string {
	msg := e.Message
	if e.Operation != "" {
		msg = fmt.Sprintf("%s: %s", e.Operation, msg)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, msg)
}

func (e *PaymentError) Unwrap() error {
	return e.Cause
}

// Code maps the error type onto the shared error codes used for HTTP/gRPC status mapping.
func (e *PaymentError) Code() string {
	switch e.Type {
	case ErrTypeValidation:
		return pkgerrors.ErrInvalidArgument
	case ErrTypeAuth, ErrTypeGateway:
		return pkgerrors.ErrBadGateway
	case ErrTypeTransport:
		if e.Timeout {
			return pkgerrors.ErrTimeout
		}
		return pkgerrors.ErrUnavailable
	case ErrTypeProtocol:
		return pkgerrors.ErrProtocol
	case ErrTypeNotFound:
		return pkgerrors.ErrNotFound
	case ErrTypeInvalidState:
		return pkgerrors.ErrConflict
	case ErrTypeRefundLimit:
		return pkgerrors.ErrFailedPrecondition
	default:
		return pkgerrors.ErrInternal
	}
}

// NewValidationError creates a new validation error
func NewValidationError(format string, args ...interface{}) *PaymentError {
	return &PaymentError{
		Type:    ErrTypeValidation,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewAuthError creates a new credential exchange error
func NewAuthError(message string, cause error) *PaymentError {
	return &PaymentError{
		Type:    ErrTypeAuth,
		Message: message,
		Cause:   cause,
	}
}

// NewTransportError creates a new network failure error for a gateway operation
func NewTransportError(operation string, cause error) *PaymentError {
	return &PaymentError{
		Type:      ErrTypeTransport,
		Message:   "gateway unreachable",
		Operation: operation,
		Timeout:   isTimeout(cause),
		Cause:     cause,
	}
}

// NewGatewayError creates a new non-success gateway response error
func NewGatewayError(operation string, httpStatus int, gatewayCode, message string) *PaymentError {
	if message == "" {
		message = fmt.Sprintf("gateway returned HTTP %d", httpStatus)
	}
	return &PaymentError{
		Type:        ErrTypeGateway,
		Message:     message,
		Operation:   operation,
		HTTPStatus:  httpStatus,
		GatewayCode: gatewayCode,
	}
}

// NewProtocolError creates a new malformed payload error
func NewProtocolError(message string, cause error) *PaymentError {
	return &PaymentError{
		Type:    ErrTypeProtocol,
		Message: message,
		Cause:   cause,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(entity, id string) *PaymentError {
	return &PaymentError{
		Type:    ErrTypeNotFound,
		Message: fmt.Sprintf("%s %s not found", entity, id),
	}
}

// NewInvalidStateError creates a new error for an illegal state transition
func NewInvalidStateError(format string, args ...interface{}) *PaymentError {
	return &PaymentError{
		Type:    ErrTypeInvalidState,
		Message: fmt.Sprintf(format, args...),
	}
}

// IsType reports whether err is a PaymentError of the given type.
func IsType(err error, errType string) bool {
	var pe *PaymentError
	if stderrors.As(err, &pe) {
		return pe.Type == errType
	}
	return false
}

func isTimeout(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return stderrors.As(err, &netErr) && netErr.Timeout()
}

// TypeOf returns the PaymentError type of err, or "" when err is not one.
func TypeOf(err error) string {
	var pe *PaymentError
	if stderrors.As(err, &pe) {
		return pe.Type
	}
	return ""
}
