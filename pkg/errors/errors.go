package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind represents the failure classification of an error
type ErrorKind string

const (
	// KindTransient - failures expected to self-resolve (network resets, 5xx)
	KindTransient ErrorKind = "transient"
	// KindTerminal - backend-specific definitive failures ("package not found")
	KindTerminal ErrorKind = "terminal"
	// KindUserInput - caller-supplied invalid arguments
	KindUserInput ErrorKind = "user_input"
	// KindUnknown - unrecognized failure shapes
	KindUnknown ErrorKind = "unknown"
	// KindCancelled - caller-initiated aborts
	KindCancelled ErrorKind = "cancelled"
	// KindTimeout - attempts that exceeded their deadline
	KindTimeout ErrorKind = "timeout"
)

// AppError represents an application error with context
type AppError struct {
	Kind      ErrorKind         `json:"kind"`
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Cause     error             `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new application error
func NewAppError(kind ErrorKind, code, message string) *AppError {
	return &AppError{
		Kind:      kind,
		Code:      code,
		Message:   message,
		Details:   make(map[string]string),
		Timestamp: time.Now(),
	}
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail adds a detail to the error
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Common error constructors
func NewTransientError(message string) *AppError {
	return NewAppError(KindTransient, "TRANSIENT_ERROR", message)
}

func NewTerminalError(message string) *AppError {
	return NewAppError(KindTerminal, "TERMINAL_ERROR", message)
}

func NewUserInputError(message string) *AppError {
	return NewAppError(KindUserInput, "INVALID_INPUT", message)
}

func NewUnknownError(message string) *AppError {
	return NewAppError(KindUnknown, "UNKNOWN_ERROR", message)
}

func NewCancelledError(operation string) *AppError {
	return NewAppError(KindCancelled, "CANCELLED", fmt.Sprintf("%s was cancelled", operation))
}

func NewTimeoutError(operation string) *AppError {
	return NewAppError(KindTimeout, "TIMEOUT", fmt.Sprintf("%s timed out", operation))
}

// Backend-specific errors
func NewBackendError(backendID, message string) *AppError {
	return NewAppError(KindUnknown, "BACKEND_ERROR", message).
		WithDetail("backend", backendID)
}

func NewPackageNotFoundError(packageID string) *AppError {
	return NewAppError(KindTerminal, "PACKAGE_NOT_FOUND", fmt.Sprintf("package %s not found", packageID)).
		WithDetail("package", packageID)
}

// NewHTTPStatusError maps an HTTP response status to the failure taxonomy.
// 5xx and 429 are transient, 404 is a definitive backend answer, other 4xx
// are caller mistakes.
func NewHTTPStatusError(status int, message string) *AppError {
	var kind ErrorKind
	switch {
	case status >= 500 || status == 429:
		kind = KindTransient
	case status == 404:
		kind = KindTerminal
	case status >= 400:
		kind = KindUserInput
	default:
		kind = KindUnknown
	}
	return NewAppError(kind, fmt.Sprintf("HTTP_%d", status), message).
		WithDetail("status", fmt.Sprintf("%d", status))
}

// IsKind checks if the error is of a specific kind
func IsKind(err error, kind ErrorKind) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// GetCode returns the error code if it's an AppError
func GetCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN_ERROR"
}

// GetKind returns the error kind if it's an AppError
func GetKind(err error) (ErrorKind, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind, true
	}
	return KindUnknown, false
}
