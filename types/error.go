package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the framework.
type ErrorCode string

// 调用链错误码
const (
	ErrInvalidArgument    ErrorCode = "INVALID_ARGUMENT"
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrAuthentication     ErrorCode = "AUTHENTICATION"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrAttemptTimeout     ErrorCode = "ATTEMPT_TIMEOUT"
	ErrAttemptFailure     ErrorCode = "ATTEMPT_FAILURE"
	ErrRetryExhausted     ErrorCode = "RETRY_EXHAUSTED"
	ErrUpstreamError      ErrorCode = "UPSTREAM_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// 流水线错误码
const (
	ErrTaskFailure        ErrorCode = "TASK_FAILURE"
	ErrCancelled          ErrorCode = "CANCELLED"
	ErrNotFound           ErrorCode = "NOT_FOUND"
	ErrFailedPrecondition ErrorCode = "FAILED_PRECONDITION"
)

// 哨兵错误，配合 errors.Is 按错误码匹配。
var (
	ErrInvalidArgumentSentinel    = NewError(ErrInvalidArgument, "invalid argument")
	ErrAttemptTimeoutSentinel     = NewError(ErrAttemptTimeout, "attempt timed out").WithRetryable(true)
	ErrCancelledSentinel          = NewError(ErrCancelled, "operation cancelled")
	ErrTaskFailureSentinel        = NewError(ErrTaskFailure, "task failed")
	ErrNotFoundSentinel           = NewError(ErrNotFound, "not found")
	ErrFailedPreconditionSentinel = NewError(ErrFailedPrecondition, "failed precondition")
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
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

// Is 按错误码匹配，使 errors.Is(err, ErrInvalidArgumentSentinel) 对任意同码错误成立。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf 创建带格式化消息的错误。
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
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

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// IsRetryable checks if an error chain carries a retryable *Error.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the first error code found in the chain.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// InvalidArgument 是参数校验失败的便捷构造。
func InvalidArgument(format string, args ...any) *Error {
	return Errorf(ErrInvalidArgument, format, args...)
}

// Cancelled 包装上下文取消错误。
func Cancelled(cause error) *Error {
	return NewError(ErrCancelled, "operation cancelled").WithCause(cause)
}
