// Package apperror provides structured error handling following RFC 7807 Problem Details.
// All business errors must use AppError so callers can pattern-match on codes
// instead of backend-specific error shapes.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes following domain-driven design
const (
	// Infrastructure errors (5xx)
	CodeInternal       = "INTERNAL_ERROR"
	CodeDatabase       = "DATABASE_ERROR"
	CodeTransientStore = "TRANSIENT_STORE_ERROR"
	CodeTxTimeout      = "TRANSACTION_TIMEOUT"

	// Validation errors (400)
	CodeValidation    = "VALIDATION_ERROR"
	CodeInvalidFilter = "INVALID_FILTER"
	CodeInvalidCursor = "INVALID_CURSOR"

	// Business rule violations (422)
	CodeAlreadyDeleted = "ALREADY_DELETED"
	CodeNotDeleted     = "NOT_DELETED"

	// Authorization errors (403)
	CodeForbidden = "FORBIDDEN"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict (409)
	CodeConflict     = "CONFLICT"
	CodeDuplicate    = "DUPLICATE_ENTITY"
	CodeStaleVersion = "STALE_VERSION"

	// Method not allowed (405)
	CodeUnsupported = "UNSUPPORTED_OPERATION"
)

// AppError is the standard error type for the platform.
// It implements error interface and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (field errors, conflicting keys, etc.)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions for common errors ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFound creates a not found error (404).
// Raised when no row matches under the effective soft-delete scope.
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewDuplicateEntity creates a uniqueness violation error for the
// (code, description, division) business key (409).
func NewDuplicateEntity(entity, code, description string, divisionID any) *AppError {
	return &AppError{
		Code:       CodeDuplicate,
		Message:    fmt.Sprintf("%s with this code and description already exists in division", entity),
		HTTPStatus: http.StatusConflict,
		Details: map[string]any{
			"entity":      entity,
			"code":        code,
			"description": description,
			"division_id": divisionID,
		},
	}
}

// NewStaleVersion creates an optimistic locking conflict error (409).
func NewStaleVersion(entity string, id any, expected int) *AppError {
	return &AppError{
		Code:       CodeStaleVersion,
		Message:    "Record was modified by another caller. Please refresh and try again.",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "id": id, "expected_version": expected},
	}
}

// NewInvalidFilter rejects a filter referencing an unknown field (400).
func NewInvalidFilter(field string) *AppError {
	return &AppError{
		Code:       CodeInvalidFilter,
		Message:    fmt.Sprintf("unknown filter field %q", field),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"field": field},
	}
}

// NewInvalidCursor rejects a malformed or tampered pagination cursor (400).
func NewInvalidCursor() *AppError {
	return &AppError{
		Code:       CodeInvalidCursor,
		Message:    "pagination cursor is invalid",
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewAlreadyDeleted signals a soft-delete transition on an inactive entity (422).
func NewAlreadyDeleted(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeAlreadyDeleted,
		Message:    fmt.Sprintf("%s is already deleted", entity),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewNotDeleted signals a restore transition on an active entity (422).
func NewNotDeleted(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotDeleted,
		Message:    fmt.Sprintf("%s is not deleted", entity),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewTransientStore wraps a deadlock/serialization failure after retries
// were exhausted (503). Attempts count tells upstream how hard we tried.
func NewTransientStore(attempts int, err error) *AppError {
	return &AppError{
		Code:       CodeTransientStore,
		Message:    "Storage contention, try again",
		HTTPStatus: http.StatusServiceUnavailable,
		Details:    map[string]any{"attempts": attempts},
		Err:        err,
	}
}

// NewTransactionTimeout creates a deadline-exceeded error for a unit of work (504).
// Never retried: retrying a slow operation blindly worsens contention.
func NewTransactionTimeout(timeout any) *AppError {
	return &AppError{
		Code:       CodeTxTimeout,
		Message:    "Transaction deadline exceeded",
		HTTPStatus: http.StatusGatewayTimeout,
		Details:    map[string]any{"timeout": timeout},
	}
}

// NewUnsupported marks an operation the platform refuses by contract,
// e.g. physical row deletion (405).
func NewUnsupported(operation string) *AppError {
	return &AppError{
		Code:       CodeUnsupported,
		Message:    fmt.Sprintf("operation %q is not supported", operation),
		HTTPStatus: http.StatusMethodNotAllowed,
		Details:    map[string]any{"operation": operation},
	}
}

// NewConflict creates a conflict error (409)
func NewConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// NewForbidden creates an authorization error (403)
func NewForbidden(message string) *AppError {
	return &AppError{
		Code:       CodeForbidden,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

func hasCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool { return hasCode(err, CodeNotFound) }

// IsDuplicateEntity checks if error is CodeDuplicate
func IsDuplicateEntity(err error) bool { return hasCode(err, CodeDuplicate) }

// IsStaleVersion checks if error is CodeStaleVersion
func IsStaleVersion(err error) bool { return hasCode(err, CodeStaleVersion) }

// IsAlreadyDeleted checks if error is CodeAlreadyDeleted
func IsAlreadyDeleted(err error) bool { return hasCode(err, CodeAlreadyDeleted) }

// IsNotDeleted checks if error is CodeNotDeleted
func IsNotDeleted(err error) bool { return hasCode(err, CodeNotDeleted) }

// IsTransientStore checks if error is CodeTransientStore
func IsTransientStore(err error) bool { return hasCode(err, CodeTransientStore) }

// IsTransactionTimeout checks if error is CodeTxTimeout
func IsTransactionTimeout(err error) bool { return hasCode(err, CodeTxTimeout) }

// IsInvalidCursor checks if error is CodeInvalidCursor
func IsInvalidCursor(err error) bool { return hasCode(err, CodeInvalidCursor) }
