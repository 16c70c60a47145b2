package errors

// CodePair maps an error code to HTTP and gRPC status codes.
type CodePair struct {
	HTTPStatus int
	GRPCCode   int
}

var codeMapping = map[string]CodePair{
	ErrInternal:           {500, 13}, // INTERNAL
	ErrNotFound:           {404, 5},  // NOT_FOUND
	ErrInvalidArgument:    {400, 3},  // INVALID_ARGUMENT
	ErrUnauthenticated:    {401, 16}, // UNAUTHENTICATED
	ErrUnauthorized:       {403, 7},  // PERMISSION_DENIED
	ErrConflict:           {409, 6},  // ALREADY_EXISTS
	ErrFailedPrecondition: {422, 9},  // FAILED_PRECONDITION
	ErrTimeout:            {504, 4},  // DEADLINE_EXCEEDED
	ErrUnavailable:        {503, 14}, // UNAVAILABLE
	ErrBadGateway:         {502, 14}, // UNAVAILABLE
	ErrProtocol:           {502, 13}, // INTERNAL
	ErrNotImplemented:     {501, 12}, // UNIMPLEMENTED
}

// GetCodeMapping returns the HTTP and gRPC codes for an error code.
func GetCodeMapping(code string) (int, int) {
	if pair, ok := codeMapping[code]; ok {
		return pair.HTTPStatus, pair.GRPCCode
	}
	return 500, 13
}
