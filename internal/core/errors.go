package core

// Error codes for domain errors. These travel to clients verbatim.
const (
	ErrCodeInvalidMessage = "invalid_message"
	ErrCodeStorageFailure = "storage_failure"
	ErrCodeUnreachable    = "unreachable"
	ErrCodeBadRequest     = "bad_request"
	ErrCodeUnauthorized   = "unauthorized"
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}
