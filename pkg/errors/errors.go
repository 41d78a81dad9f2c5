package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents application-specific error codes
type ErrorCode string

const (
	// Validation errors
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	ErrCodeMissingField    ErrorCode = "MISSING_FIELD"

	// Authentication errors
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeInvalidToken ErrorCode = "INVALID_TOKEN"
	ErrCodeExpiredToken ErrorCode = "EXPIRED_TOKEN"

	// Authorization errors
	ErrCodeForbidden ErrorCode = "FORBIDDEN"

	// Not found errors
	ErrCodeNotFound             ErrorCode = "NOT_FOUND"
	ErrCodeConversationNotFound ErrorCode = "CONVERSATION_NOT_FOUND"
	ErrCodeMessageNotFound      ErrorCode = "MESSAGE_NOT_FOUND"

	// Conflict errors
	ErrCodeConflict    ErrorCode = "CONFLICT"
	ErrCodePhoneExists ErrorCode = "PHONE_EXISTS"

	// Throttling errors
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"
	ErrCodeTimeout     ErrorCode = "REQUEST_TIMEOUT"

	// Dependency errors
	ErrCodeExternalDependency ErrorCode = "EXTERNAL_DEPENDENCY"
	ErrCodeStorage            ErrorCode = "STORAGE_ERROR"

	// Internal errors
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
)

// AppError represents a structured application error with code, message, and HTTP status
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	StatusCode int       `json:"-"`
	Details    any       `json:"details,omitempty"`
	Err        error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewWithStatus creates a new AppError with a specific HTTP status code
func NewWithStatus(code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WrapWithStatus wraps an existing error with an AppError and specific status code
func WrapWithStatus(code ErrorCode, message string, statusCode int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// WithDetails adds additional details to an AppError
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// Validation errors
func InvalidArgumentError(message string) *AppError {
	return NewWithStatus(ErrCodeInvalidArgument, message, http.StatusBadRequest)
}

func MissingFieldError(field string) *AppError {
	return NewWithStatus(ErrCodeMissingField, fmt.Sprintf("Missing required field: %s", field), http.StatusBadRequest)
}

// Authentication errors
func UnauthorizedError(message string) *AppError {
	return NewWithStatus(ErrCodeUnauthorized, message, http.StatusUnauthorized)
}

func InvalidTokenError(message string) *AppError {
	return NewWithStatus(ErrCodeInvalidToken, message, http.StatusUnauthorized)
}

func ExpiredTokenError() *AppError {
	return NewWithStatus(ErrCodeExpiredToken, "Token has expired", http.StatusUnauthorized)
}

// Authorization errors
func ForbiddenError(message string) *AppError {
	return NewWithStatus(ErrCodeForbidden, message, http.StatusForbidden)
}

// Not found errors
func NotFoundError(resource string) *AppError {
	return NewWithStatus(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func ConversationNotFoundError() *AppError {
	return NewWithStatus(ErrCodeConversationNotFound, "Conversation not found", http.StatusNotFound)
}

func MessageNotFoundError() *AppError {
	return NewWithStatus(ErrCodeMessageNotFound, "Message not found", http.StatusNotFound)
}

// Conflict errors
func ConflictError(message string) *AppError {
	return NewWithStatus(ErrCodeConflict, message, http.StatusConflict)
}

func PhoneExistsError() *AppError {
	return NewWithStatus(ErrCodePhoneExists, "Phone already registered", http.StatusConflict)
}

// ExternalDependencyError reports a failed call to the gateway, blob store or media host.
// The webhook maps it to a 500 so the gateway retries.
func ExternalDependencyError(message string, err error) *AppError {
	return WrapWithStatus(ErrCodeExternalDependency, message, http.StatusInternalServerError, err)
}

func StorageError(err error) *AppError {
	return WrapWithStatus(ErrCodeStorage, "Storage error", http.StatusInternalServerError, err)
}

// Internal errors
func InternalError(message string) *AppError {
	return NewWithStatus(ErrCodeInternal, message, http.StatusInternalServerError)
}

func DatabaseError(err error) *AppError {
	return WrapWithStatus(ErrCodeDatabase, "Database error", http.StatusInternalServerError, err)
}

// AsAppError finds the first AppError in err's chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsAppError checks if an error is or wraps an AppError
func IsAppError(err error) bool {
	_, ok := AsAppError(err)
	return ok
}

// GetAppError extracts AppError from an error, wrapping non-AppErrors as InternalError
func GetAppError(err error) *AppError {
	if appErr, ok := AsAppError(err); ok {
		return appErr
	}
	return WrapWithStatus(ErrCodeInternal, "Internal server error", http.StatusInternalServerError, err)
}

// HasCode reports whether err carries the given code
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

// IsNotFound is true for every not-found code
func IsNotFound(err error) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.StatusCode == http.StatusNotFound
}
