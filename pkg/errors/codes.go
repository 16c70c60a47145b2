package errors

// Common error codes.
const (
	ErrInternal           = "INTERNAL"
	ErrNotFound           = "NOT_FOUND"
	ErrInvalidArgument    = "INVALID_ARGUMENT"
	ErrUnauthenticated    = "UNAUTHENTICATED"
	ErrUnauthorized       = "UNAUTHORIZED"
	ErrConflict           = "CONFLICT"
	ErrFailedPrecondition = "FAILED_PRECONDITION"
	ErrTimeout            = "TIMEOUT"
	ErrUnavailable        = "UNAVAILABLE"
	ErrBadGateway         = "BAD_GATEWAY"
	ErrProtocol           = "PROTOCOL"
	ErrNotImplemented     = "NOT_IMPLEMENTED"
)
