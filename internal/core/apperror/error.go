// Package apperror provides structured error handling following RFC 7807 Problem Details.
// All schema, write and validation failures surface as AppError so callers can
// branch on Code without string matching.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error codes
const (
	// Infrastructure errors (5xx)
	CodeInternal = "INTERNAL_ERROR"
	CodeDatabase = "DATABASE_ERROR"

	// Schema construction errors
	CodeInvalidDefinition = "INVALID_DEFINITION"
	CodeCyclicDependency  = "CYCLIC_DEPENDENCY"
	CodeCrossEntitySource = "CROSS_ENTITY_SOURCE"

	// Write errors
	CodeTypeMismatch      = "TYPE_MISMATCH"
	CodeNotWritable       = "NOT_WRITABLE"
	CodeUnknownAttribute  = "UNKNOWN_ATTRIBUTE"
	CodeCircularReference = "CIRCULAR_REFERENCE"
	CodeReentrantWrite    = "REENTRANT_WRITE"

	// Validation errors (400)
	CodeValidation   = "VALIDATION_ERROR"
	CodeInvalidInput = "INVALID_INPUT"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict (409)
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
)

// AppError is the standard error type for the platform.
// It implements error interface and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (attribute, value, constraint, cycle...)
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

// --- Factory functions ---

// NewValidation creates a validation error (400).
// Validation errors are advisory: they are returned by explicit validate calls
// and never block a write.
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewInvalidInput creates an error for malformed caller input (400).
func NewInvalidInput(message string) *AppError {
	return &AppError{
		Code:       CodeInvalidInput,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewInvalidDefinition creates an error for an inconsistent attribute or entity definition.
func NewInvalidDefinition(attribute, message string) *AppError {
	return &AppError{
		Code:       CodeInvalidDefinition,
		Message:    fmt.Sprintf("invalid definition of %s: %s", attribute, message),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"attribute": attribute},
	}
}

// NewCyclicDependency reports a cycle among derived attributes.
// cycle is a closed path: its first and last element are the same attribute.
func NewCyclicDependency(entityType string, cycle []string) *AppError {
	return &AppError{
		Code:       CodeCyclicDependency,
		Message:    fmt.Sprintf("cyclic dependency in %s: %s", entityType, strings.Join(cycle, " -> ")),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"entity": entityType, "cycle": cycle},
	}
}

// NewCrossEntitySource reports a derived attribute sourced from another entity type.
func NewCrossEntitySource(attribute, source string) *AppError {
	return &AppError{
		Code:       CodeCrossEntitySource,
		Message:    fmt.Sprintf("derived attribute %s has source %s from a different entity type", attribute, source),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"attribute": attribute, "source": source},
	}
}

// NewTypeMismatch reports a value whose runtime type disagrees with the attribute type.
func NewTypeMismatch(attribute, expected string, value any) *AppError {
	return &AppError{
		Code:       CodeTypeMismatch,
		Message:    fmt.Sprintf("value of type %s expected for %s, got %T", expected, attribute, value),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"attribute": attribute, "expected": expected, "actual": fmt.Sprintf("%T", value)},
	}
}

// NewNotWritable reports a direct write to a derived or read-only attribute.
func NewNotWritable(attribute, reason string) *AppError {
	return &AppError{
		Code:       CodeNotWritable,
		Message:    fmt.Sprintf("attribute %s is not writable: %s", attribute, reason),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"attribute": attribute},
	}
}

// NewUnknownAttribute reports an attribute that is not part of the entity type.
func NewUnknownAttribute(entityType, attribute string) *AppError {
	return &AppError{
		Code:       CodeUnknownAttribute,
		Message:    fmt.Sprintf("%s has no attribute %s", entityType, attribute),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"entity": entityType, "attribute": attribute},
	}
}

// NewCircularReference reports an entity referencing itself through a foreign key.
func NewCircularReference(attribute string) *AppError {
	return &AppError{
		Code:       CodeCircularReference,
		Message:    fmt.Sprintf("circular entity reference detected via %s", attribute),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"attribute": attribute},
	}
}

// NewReentrantWrite reports a write issued from a notification handler while an
// outer write on the same entity is still in progress. This is a programming error.
func NewReentrantWrite(entityType, attribute string) *AppError {
	return &AppError{
		Code:       CodeReentrantWrite,
		Message:    fmt.Sprintf("reentrant write to %s.%s while another write is in progress", entityType, attribute),
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"entity": entityType, "attribute": attribute},
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

// NewDatabase wraps a storage failure.
func NewDatabase(op string, err error) *AppError {
	return &AppError{
		Code:       CodeDatabase,
		Message:    fmt.Sprintf("database operation %s failed", op),
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

// Is reports whether err is an AppError carrying code.
func Is(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok && appErr.HTTPStatus != 0 {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return Is(err, CodeNotFound)
}
