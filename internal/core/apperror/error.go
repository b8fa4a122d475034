// Package apperror provides structured error handling following RFC 7807 Problem Details.
// All business errors must use AppError for consistent reporting at the boundary.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes following domain-driven design
const (
	// Infrastructure errors (5xx)
	CodeInternal = "INTERNAL_ERROR"
	CodeDatabase = "DATABASE_ERROR"
	CodeTimeout  = "TIMEOUT_ERROR"

	// Validation errors (400)
	CodeValidation   = "VALIDATION_ERROR"
	CodeInvalidInput = "INVALID_INPUT"

	// Numbering errors
	CodeUnknownType      = "UNKNOWN_DOCUMENT_TYPE"
	CodeSequenceConflict = "SEQUENCE_CONFLICT"
	CodeInvalidFormat    = "INVALID_NUMBER_FORMAT"

	// Lifecycle violations (422)
	CodeDocumentLocked       = "DOCUMENT_LOCKED"
	CodeInvalidDocumentState = "INVALID_DOCUMENT_STATE"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict (409)
	CodeConflict               = "CONFLICT"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
)

// AppError is the standard error type for the platform.
// It implements error interface and provides structured details for callers.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (document numbers, field errors, etc.)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code for boundary layers
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

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewUnknownType is returned when a document type has no numbering configuration.
// Not retryable.
func NewUnknownType(docType string) *AppError {
	return &AppError{
		Code:       CodeUnknownType,
		Message:    fmt.Sprintf("Unknown document type: %s", docType),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"type": docType},
	}
}

// NewSequenceConflict is returned after allocation retries are exhausted.
// Indicates transient contention; the caller may retry the whole operation.
func NewSequenceConflict(docType string) *AppError {
	return &AppError{
		Code:       CodeSequenceConflict,
		Message:    fmt.Sprintf("Sequence conflict for type %s. Please retry.", docType),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"type": docType},
	}
}

// NewInvalidFormat flags a generated number that failed its own pattern check.
// Always a programming defect, never suppressed.
func NewInvalidFormat(number, expectedPattern string) *AppError {
	return &AppError{
		Code:       CodeInvalidFormat,
		Message:    fmt.Sprintf("Generated number %q does not match expected pattern: %s", number, expectedPattern),
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"number": number, "pattern": expectedPattern},
	}
}

// NewDocumentLocked is returned for any mutation attempt against a locked
// or already-issued document. Carries the number for operator messaging.
func NewDocumentLocked(documentID any, number string) *AppError {
	return &AppError{
		Code:       CodeDocumentLocked,
		Message:    fmt.Sprintf("Document %s is locked and cannot be modified.", number),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"document_id": documentID, "number": number},
	}
}

// NewAlreadyIssued is returned when issuance is attempted against a document
// that already left the draft state. Non-retryable business rule violation.
func NewAlreadyIssued(documentID any, number string) *AppError {
	return &AppError{
		Code:       CodeDocumentLocked,
		Message:    fmt.Sprintf("Document %s has already been issued.", number),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"document_id": documentID, "number": number},
	}
}

// NewInvalidDocumentState is returned when issuance or unlock is attempted
// against a document in an incompatible state.
func NewInvalidDocumentState(message string) *AppError {
	return &AppError{
		Code:       CodeInvalidDocumentState,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// NewConcurrentModification creates an optimistic locking error
func NewConcurrentModification(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeConcurrentModification,
		Message:    "Record was modified by another user. Please refresh and try again.",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "id": id},
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

// NewConflict creates a conflict error (409)
func NewConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
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

// HasCode checks if error carries the given code.
func HasCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return HasCode(err, CodeNotFound)
}

// IsSequenceConflict checks if error is CodeSequenceConflict
func IsSequenceConflict(err error) bool {
	return HasCode(err, CodeSequenceConflict)
}

// IsConcurrentModification checks if error is CodeConcurrentModification
func IsConcurrentModification(err error) bool {
	return HasCode(err, CodeConcurrentModification)
}
