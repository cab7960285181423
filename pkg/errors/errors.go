package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents application-specific error codes
type ErrorCode string

const (
	// Classroom session taxonomy
	ErrCodeDevice       ErrorCode = "DEVICE_ERROR"
	ErrCodeNetwork      ErrorCode = "NETWORK_ERROR"
	ErrCodePersistence  ErrorCode = "PERSISTENCE_ERROR"
	ErrCodeProtocol     ErrorCode = "PROTOCOL_ERROR"
	ErrCodeStaleRoom    ErrorCode = "STALE_ROOM"
	ErrCodeInvalidState ErrorCode = "INVALID_STATE"

	// Request errors
	ErrCodeValidation   ErrorCode = "VALIDATION_ERROR"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"

	// Internal errors
	ErrCodeInternal       ErrorCode = "INTERNAL_ERROR"
	ErrCodeServiceUnavail ErrorCode = "SERVICE_UNAVAILABLE"
)

// AppError represents a structured application error with code, message, and HTTP status.
// Message is safe to show to the user; Err carries the underlying cause.
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	StatusCode int       `json:"-"`
	Details    any       `json:"details,omitempty"`
	Err        error     `json:"-"`
}

// Error implements the error interface, returning a formatted error message
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

// New creates a new AppError with the given code and message
// The status code defaults to 500 Internal Server Error
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
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

// WithDetails adds additional details to an AppError for debugging
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// DeviceError reports that a camera, microphone or screen capture could not start.
// The message is the user-facing text, e.g. "cannot start camera".
func DeviceError(message string, err error) *AppError {
	return WrapWithStatus(ErrCodeDevice, message, http.StatusConflict, err)
}

// NetworkError reports a failed room create/validate round trip
func NetworkError(message string, err error) *AppError {
	return WrapWithStatus(ErrCodeNetwork, message, http.StatusBadGateway, err)
}

// PersistenceError wraps a failed activity, attendance or session write
func PersistenceError(err error) *AppError {
	return WrapWithStatus(ErrCodePersistence, "Persistence error", http.StatusInternalServerError, err)
}

// ProtocolError reports a malformed data-channel payload
func ProtocolError(message string, err error) *AppError {
	return WrapWithStatus(ErrCodeProtocol, message, http.StatusBadRequest, err)
}

// StaleRoomError reports a room code that is no longer live
func StaleRoomError(roomID string) *AppError {
	return NewWithStatus(ErrCodeStaleRoom, "No meeting is currently active", http.StatusNotFound).
		WithDetails(map[string]string{"room_id": roomID})
}

// InvalidStateError reports an operation issued in the wrong lifecycle state
func InvalidStateError(message string) *AppError {
	return NewWithStatus(ErrCodeInvalidState, message, http.StatusConflict)
}

func ValidationError(message string) *AppError {
	return NewWithStatus(ErrCodeValidation, message, http.StatusBadRequest)
}

func UnauthorizedError(message string) *AppError {
	return NewWithStatus(ErrCodeUnauthorized, message, http.StatusUnauthorized)
}

func ForbiddenError(message string) *AppError {
	return NewWithStatus(ErrCodeForbidden, message, http.StatusForbidden)
}

func NotFoundError(resource string) *AppError {
	return NewWithStatus(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func InternalError(message string) *AppError {
	return NewWithStatus(ErrCodeInternal, message, http.StatusInternalServerError)
}

func ServiceUnavailableError(message string) *AppError {
	return NewWithStatus(ErrCodeServiceUnavail, message, http.StatusServiceUnavailable)
}

// HasCode reports whether any AppError in err's chain carries code
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	return appErr.Code == code
}

// GetAppError extracts AppError from an error, wrapping non-AppErrors as InternalError
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return InternalError(err.Error())
}
