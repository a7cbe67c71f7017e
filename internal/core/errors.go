package core

// Error codes for domain errors. The client only ever sees Message;
// codes exist for logs and tests.
const (
	ErrCodeUnknownCommand  = "unknown_command"
	ErrCodeNotLoggedIn     = "not_logged_in"
	ErrCodeAlreadyLoggedIn = "already_logged_in"
	ErrCodeBadCredentials  = "bad_credentials"
	ErrCodeUserExists      = "user_exists"
	ErrCodeAlreadyOnline   = "already_online"
	ErrCodePersistFailure  = "persist_failure"
	ErrCodeBadRequest      = "bad_request"
	ErrCodeMessageLength   = "message_length"
	ErrCodeTargetOffline   = "target_offline"
	ErrCodeDeliveryFailed  = "delivery_failed"
)

// CoreError wraps a code and the client-facing response text.
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
