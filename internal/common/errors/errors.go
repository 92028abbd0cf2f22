package errors

import (
	"fmt"
)

type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Status  int    `json:"status"`
}

func (e *AppError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
}

// Common error codes
const (
	CodeValidation    = "VALIDATION_ERROR"
	CodeNotFound      = "NOT_FOUND"
	CodeConflict      = "CONFLICT"
	CodeStorage       = "STORAGE_ERROR"
	CodeInternalError = "INTERNAL_ERROR"
	CodeBadRequest    = "BAD_REQUEST"
)

// Error constructors
func Validation(message string, details string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
		Details: details,
		Status:  400,
	}
}

func NotFound(resource string) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Status:  404,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Code:    CodeConflict,
		Message: message,
		Status:  409,
	}
}

// Storage wraps a database failure. Presence tracking treats these as
// recoverable: callers degrade to a cached snapshot instead of failing.
func Storage(message string, cause error) *AppError {
	details := ""
	if cause != nil {
		details = cause.Error()
	}
	return &AppError{
		Code:    CodeStorage,
		Message: message,
		Details: details,
		Status:  503,
	}
}

func Internal(message string, details string) *AppError {
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Details: details,
		Status:  500,
	}
}

func BadRequest(message string) *AppError {
	return &AppError{
		Code:    CodeBadRequest,
		Message: message,
		Status:  400,
	}
}
