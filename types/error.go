package types

import "fmt"

// ErrorCode represents a unified error code across the coordination layer.
type ErrorCode string

// Registry error codes. These are structural errors surfaced synchronously
// to the caller of the registry operation.
const (
	ErrDuplicateID         ErrorCode = "DUPLICATE_ID"
	ErrInvalidCapabilities ErrorCode = "INVALID_CAPABILITIES"
	ErrNotFound            ErrorCode = "NOT_FOUND"
	ErrInvalidRequest      ErrorCode = "INVALID_REQUEST"
)

// Runtime error codes. Delegation errors are caught by the orchestration
// loop, recorded against QoS, and drive the retry policy; they never reach
// the end user as raw errors.
const (
	ErrUnknownResource     ErrorCode = "UNKNOWN_RESOURCE"
	ErrNoResourceAvailable ErrorCode = "NO_RESOURCE_AVAILABLE"
	ErrDecomposition       ErrorCode = "DECOMPOSITION_ERROR"
	ErrTimeout             ErrorCode = "TIMEOUT"
	ErrRemote              ErrorCode = "REMOTE_ERROR"
	ErrHealthCheckFailed   ErrorCode = "HEALTH_CHECK_FAILED"
)

// Store error codes
const (
	ErrStoreClosed ErrorCode = "STORE_CLOSED"
	ErrInternal    ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	ResourceID string    `json:"resource_id,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithResourceID sets the resource the error relates to.
func (e *Error) WithResourceID(id string) *Error {
	e.ResourceID = id
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
