package repositories

import "fmt"

// ErrorCode enumerates machine-readable repository failure causes.
type ErrorCode string

const (
	// ErrorUnknown represents an unspecified failure.
	ErrorUnknown ErrorCode = "unknown"
	// ErrorNotFound indicates the entity or relation does not exist.
	ErrorNotFound ErrorCode = "not_found"
	// ErrorConflict indicates a uniqueness or concurrent-update conflict.
	ErrorConflict ErrorCode = "conflict"
	// ErrorInsufficientStock indicates requested quantity exceeds availability.
	ErrorInsufficientStock ErrorCode = "insufficient_stock"
	// ErrorInvalidState indicates the current state of the row forbids the operation.
	ErrorInvalidState ErrorCode = "invalid_state"
	// ErrorExhausted indicates a counter reached its configured maximum.
	ErrorExhausted ErrorCode = "exhausted"
)

// Error wraps persistence failures with a machine readable code. It is the
// typed error surfaced by every repository in this package.
type Error struct {
	Op      string
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNotFound reports whether the error represents a missing row.
func (e *Error) IsNotFound() bool { return e != nil && e.Code == ErrorNotFound }

// IsConflict reports whether the error represents a conflicting write.
func (e *Error) IsConflict() bool { return e != nil && e.Code == ErrorConflict }

// IsUnavailable reports whether the error represents a transient backend outage.
func (e *Error) IsUnavailable() bool { return e != nil && e.Code == ErrorUnknown && e.Err != nil }

// NewError constructs a typed repository error.
func NewError(code ErrorCode, message string, err error) *Error {
	if message == "" {
		message = string(code)
	}
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
