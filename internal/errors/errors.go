package errors

import (
	"net/http"

	"github.com/go-chi/render"
)

// APIError represents a structured API error response
type APIError struct {
	StatusCode int         `json:"status_code"`
	ErrorCode  string      `json:"error_code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// Render implements the render.Renderer interface for chi/render
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// New creates a new APIError with the given parameters
func New(statusCode int, errorCode, message string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
	}
}

// NewWithDetails creates a new APIError with additional details
func NewWithDetails(statusCode int, errorCode, message string, details interface{}) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
		Details:    details,
	}
}

// Predefined error types for common scenarios
var (
	ErrInvalidRequest  = New(http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format")
	ErrValidationError = New(http.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed")
	ErrRateLimited     = New(http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Too many activation attempts. Please try again later")
	ErrInternalServer  = New(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Internal server error")
)

// InvalidRequestWithError creates an invalid request error with details
func InvalidRequestWithError(err error) *APIError {
	return NewWithDetails(http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format", err.Error())
}

// ErrActivation creates a license activation error response
func ErrActivation(err error) *APIError {
	return NewWithDetails(http.StatusBadRequest, "LICENSE_ACTIVATION_FAILED", "Failed to activate license", err.Error())
}
