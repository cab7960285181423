package response

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"liveclass-backend/pkg/errors"
)

// Response represents standard API response envelope
type Response struct {
	Success bool         `json:"success"`
	Data    interface{}  `json:"data,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
	Meta    Meta         `json:"meta"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string      `json:"code"`    // Error code (e.g., "STALE_ROOM")
	Message string      `json:"message"` // Human-readable error message
	Details interface{} `json:"details,omitempty"`
}

// Meta contains response metadata
type Meta struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// Success sends a successful response
func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Data:    data,
		Meta: Meta{
			Timestamp: time.Now().UTC(),
			RequestID: getRequestID(c),
		},
	})
}

// Error sends an error response
func Error(c *gin.Context, statusCode int, errorCode, errorMessage string) {
	c.JSON(statusCode, Response{
		Success: false,
		Error: &ErrorDetail{
			Code:    errorCode,
			Message: errorMessage,
		},
		Meta: Meta{
			Timestamp: time.Now().UTC(),
			RequestID: getRequestID(c),
		},
	})
}

// FromError maps any error to the envelope, using the AppError status when present
func FromError(c *gin.Context, err error) {
	appErr := errors.GetAppError(err)
	status := appErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}

	c.JSON(status, Response{
		Success: false,
		Error: &ErrorDetail{
			Code:    string(appErr.Code),
			Message: appErr.Message,
			Details: appErr.Details,
		},
		Meta: Meta{
			Timestamp: time.Now().UTC(),
			RequestID: getRequestID(c),
		},
	})
}

// ValidationError sends a validation error response (400)
func ValidationError(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, "VALIDATION_ERROR", message)
}

// Unauthorized sends unauthorized error (401)
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, "UNAUTHORIZED", message)
}

// Forbidden sends forbidden error (403)
func Forbidden(c *gin.Context, message string) {
	Error(c, http.StatusForbidden, "FORBIDDEN", message)
}

// NotFound sends not found error (404)
func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, "NOT_FOUND", message)
}

// InternalError sends internal server error (500)
func InternalError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", message)
}

// getRequestID extracts request ID from context
func getRequestID(c *gin.Context) string {
	if requestID, exists := c.Get("request_id"); exists {
		if id, ok := requestID.(string); ok {
			return id
		}
	}
	return ""
}
