// Package errors provides the structured error taxonomy used across the
// notification engine: error codes, HTTP status mapping, retryability
// classification, and wrapping with stack traces.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

// ErrorCode represents a unique error code for categorizing errors.
type ErrorCode string

const (
	ErrCodeUnknown    ErrorCode = "UNKNOWN"
	ErrCodeInternal   ErrorCode = "INTERNAL_ERROR"
	ErrCodeConfig     ErrorCode = "CONFIG"
	ErrCodeValidation ErrorCode = "VALIDATION"
	ErrCodeNotFound   ErrorCode = "NOT_FOUND"
	ErrCodeTimeout    ErrorCode = "TIMEOUT"

	ErrCodeCatalogUnavailable      ErrorCode = "CATALOG_UNAVAILABLE"
	ErrCodeScheduleStoreUnavailable ErrorCode = "SCHEDULE_STORE_UNAVAILABLE"
	ErrCodeScheduleStoreNotFound   ErrorCode = "SCHEDULE_STORE_NOT_FOUND"

	ErrCodeTemplateNotFound ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrCodeTemplateCycle    ErrorCode = "TEMPLATE_CYCLE"
	ErrCodeTemplateMalformed ErrorCode = "TEMPLATE_MALFORMED"

	ErrCodeProviderTransient ErrorCode = "PROVIDER_TRANSIENT"
	ErrCodeProviderPermanent ErrorCode = "PROVIDER_PERMANENT"
	ErrCodeMalformedPayload  ErrorCode = "MALFORMED_PAYLOAD"

	ErrCodeRuleNotFound     ErrorCode = "RULE_NOT_FOUND"
	ErrCodeWorkflowNotFound ErrorCode = "WORKFLOW_NOT_FOUND"
	ErrCodeNoRecipients     ErrorCode = "NO_RECIPIENTS"
	ErrCodeMissingTenant    ErrorCode = "MISSING_TENANT"
	ErrCodeRetracted        ErrorCode = "RETRACTED"
	ErrCodeNotInitialized   ErrorCode = "NOT_INITIALIZED"

	ErrCodeUnauthorized    ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden       ErrorCode = "FORBIDDEN"
	ErrCodeBadRequest      ErrorCode = "BAD_REQUEST"
	ErrCodeTooManyRequests ErrorCode = "TOO_MANY_REQUESTS"
	ErrCodeConflict        ErrorCode = "CONFLICT"
)

var httpStatusMap = map[ErrorCode]int{
	ErrCodeUnknown:                  http.StatusInternalServerError,
	ErrCodeInternal:                 http.StatusInternalServerError,
	ErrCodeConfig:                   http.StatusInternalServerError,
	ErrCodeValidation:               http.StatusBadRequest,
	ErrCodeNotFound:                 http.StatusNotFound,
	ErrCodeTimeout:                  http.StatusGatewayTimeout,
	ErrCodeCatalogUnavailable:       http.StatusServiceUnavailable,
	ErrCodeScheduleStoreUnavailable: http.StatusServiceUnavailable,
	ErrCodeScheduleStoreNotFound:    http.StatusNotFound,
	ErrCodeTemplateNotFound:         http.StatusUnprocessableEntity,
	ErrCodeTemplateCycle:            http.StatusUnprocessableEntity,
	ErrCodeTemplateMalformed:        http.StatusUnprocessableEntity,
	ErrCodeProviderTransient:        http.StatusBadGateway,
	ErrCodeProviderPermanent:        http.StatusBadGateway,
	ErrCodeMalformedPayload:         http.StatusBadRequest,
	ErrCodeRuleNotFound:             http.StatusNotFound,
	ErrCodeWorkflowNotFound:         http.StatusNotFound,
	ErrCodeNoRecipients:             http.StatusBadRequest,
	ErrCodeMissingTenant:            http.StatusBadRequest,
	ErrCodeRetracted:                http.StatusConflict,
	ErrCodeNotInitialized:           http.StatusServiceUnavailable,
	ErrCodeUnauthorized:             http.StatusUnauthorized,
	ErrCodeForbidden:                http.StatusForbidden,
	ErrCodeBadRequest:               http.StatusBadRequest,
	ErrCodeTooManyRequests:          http.StatusTooManyRequests,
	ErrCodeConflict:                 http.StatusConflict,
}

// retryable is the set of error codes that a caller should retry after backoff.
var retryable = map[ErrorCode]bool{
	ErrCodeCatalogUnavailable:       true,
	ErrCodeScheduleStoreUnavailable: true,
	ErrCodeProviderTransient:        true,
	ErrCodeTimeout:                  true,
}

// AppError represents a structured application error.
type AppError struct {
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Details    string            `json:"details,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
	cause      error
	stackTrace string
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.cause
}

// HTTPStatus returns the HTTP status code for this error.
func (e *AppError) HTTPStatus() int {
	if status, ok := httpStatusMap[e.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Retryable reports whether the producing operation should be retried.
func (e *AppError) Retryable() bool {
	return retryable[e.Code]
}

func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithField(field, message string) *AppError {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = message
	return e
}

// WithFields adds multiple field-specific errors.
func (e *AppError) WithFields(fields map[string]string) *AppError {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	for k, v := range fields {
		e.Fields[k] = v
	}
	return e
}

func (e *AppError) StackTrace() string {
	return e.stackTrace
}

func captureStackTrace() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	var sb strings.Builder
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			sb.WriteString(fmt.Sprintf("%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line))
		}
		if !more {
			break
		}
	}
	return sb.String()
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message, stackTrace: captureStackTrace()}
}

func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), stackTrace: captureStackTrace()}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, cause: err, stackTrace: captureStackTrace()}
}

func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), cause: err, stackTrace: captureStackTrace()}
}

// Convenience constructors

func ErrInternal(message string) *AppError { return New(ErrCodeInternal, message) }

func ErrInternalWrap(err error, message string) *AppError { return Wrap(err, ErrCodeInternal, message) }

func ErrNotFound(resource string) *AppError { return Newf(ErrCodeNotFound, "%s not found", resource) }

func ErrValidation(message string) *AppError { return New(ErrCodeValidation, message) }

func ErrUnauthorized(message string) *AppError { return New(ErrCodeUnauthorized, message) }

func ErrForbidden(message string) *AppError { return New(ErrCodeForbidden, message) }

func ErrBadRequest(message string) *AppError { return New(ErrCodeBadRequest, message) }

func ErrTooManyRequests(message string) *AppError { return New(ErrCodeTooManyRequests, message) }

func ErrConflict(message string) *AppError { return New(ErrCodeConflict, message) }

func ErrTimeout(operation string) *AppError { return Newf(ErrCodeTimeout, "%s timed out", operation) }

func ErrCatalogUnavailable(err error) *AppError {
	return Wrap(err, ErrCodeCatalogUnavailable, "catalog store unavailable")
}

func ErrScheduleStoreUnavailable(err error) *AppError {
	return Wrap(err, ErrCodeScheduleStoreUnavailable, "schedule store unavailable")
}

// IsAppError checks if the error is an AppError.
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError attempts to convert an error to an AppError.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns the error code from an error, or ErrCodeUnknown if not an AppError.
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeUnknown
}

// GetHTTPStatus returns the HTTP status code from an error.
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// Is checks if an error has a specific error code.
func Is(err error, code ErrorCode) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsRetryable reports whether err carries a retryable AppError code.
func IsRetryable(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Retryable()
	}
	return false
}
