package types

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unified error code across the service.
type ErrorCode string

// Input / resolution error codes
const (
	ErrValidation    ErrorCode = "VALIDATION_ERROR"
	ErrProvider      ErrorCode = "PROVIDER_ERROR"
	ErrRateLimited   ErrorCode = "RATE_LIMITED"
	ErrTimeout       ErrorCode = "TIMEOUT"
	ErrNotFound      ErrorCode = "NOT_FOUND"
	ErrStorage       ErrorCode = "STORAGE_ERROR"
	ErrInternalError ErrorCode = "INTERNAL_ERROR"
	ErrUnavailable   ErrorCode = "SERVICE_UNAVAILABLE"
)

// RAG pipeline error codes
const (
	ErrInvalidStateTransition ErrorCode = "INVALID_STATE_TRANSITION"
	ErrVectorizationFailure   ErrorCode = "VECTORIZATION_FAILURE"
	ErrActivationConflict     ErrorCode = "ACTIVATION_CONFLICT"
	ErrEmbedding              ErrorCode = "EMBEDDING_ERROR"
	ErrVectorStore            ErrorCode = "VECTOR_STORE_ERROR"
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

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: defaultHTTPStatus(code)}
}

// Errorf creates a new Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
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

// AsError extracts a *Error from anywhere in the error chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether err carries the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	return err != nil && GetErrorCode(err) == code
}

// =============================================================================
// 常用构造函数
// =============================================================================

// NewValidationError 输入校验失败，不可重试
func NewValidationError(format string, args ...any) *Error {
	return Errorf(ErrValidation, format, args...)
}

// NewProviderError 外部数据源调用失败
func NewProviderError(provider string, cause error) *Error {
	return NewError(ErrProvider, "external provider call failed").
		WithProvider(provider).
		WithRetryable(true).
		WithCause(cause)
}

// NewStorageError 持久化层写入/读取失败
func NewStorageError(message string, cause error) *Error {
	return NewError(ErrStorage, message).WithCause(cause)
}

// NewNotFoundError 资源不存在
func NewNotFoundError(format string, args ...any) *Error {
	return Errorf(ErrNotFound, format, args...)
}

func defaultHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrValidation:
		return http.StatusBadRequest
	case ErrNotFound:
		return http.StatusNotFound
	case ErrInvalidStateTransition, ErrActivationConflict:
		return http.StatusConflict
	case ErrVectorizationFailure:
		return http.StatusUnprocessableEntity
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrProvider, ErrEmbedding, ErrVectorStore:
		return http.StatusBadGateway
	case ErrTimeout:
		return http.StatusGatewayTimeout
	case ErrUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
