// Package apperrors defines the error values shared across the engine.
// Errors are plain values; callers discriminate with errors.Is and map to
// wire codes via CodeFor.
package apperrors

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict")
	ErrValidation      = errors.New("validation failed")
	ErrConflict        = errors.New("conflict")
	ErrDependency      = errors.New("dependency not satisfied")
	ErrGateBlocked     = errors.New("verification gate blocked")
)

// ErrorCode is the wire-level error code surfaced to MCP clients.
type ErrorCode string

const (
	CodeValidationError  ErrorCode = "VALIDATION_ERROR"
	CodeResourceNotFound ErrorCode = "RESOURCE_NOT_FOUND"
	CodeDependencyError  ErrorCode = "DEPENDENCY_ERROR"
	CodeConflictError    ErrorCode = "CONFLICT_ERROR"
	CodeDatabaseError    ErrorCode = "DATABASE_ERROR"
	CodeInternalError    ErrorCode = "INTERNAL_ERROR"
)

// CodeFor maps an error to its wire code. Repository errors that are not
// one of the sentinel values surface as DATABASE_ERROR at the store
// boundary; anything else is internal.
func CodeFor(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrNotFound):
		return CodeResourceNotFound
	case errors.Is(err, ErrVersionConflict), errors.Is(err, ErrConflict):
		return CodeConflictError
	case errors.Is(err, ErrValidation), errors.Is(err, ErrGateBlocked):
		return CodeValidationError
	case errors.Is(err, ErrDependency):
		return CodeDependencyError
	default:
		return CodeInternalError
	}
}
