// Package errors defines the error kinds surfaced by the trace engine.
//
// Unknown values are never errors; they are ordinary results. The kinds
// below separate recoverable I/O problems from ingestion defects.
package errors

import (
	"errors"
	"fmt"
)

// Error codes for the engine.
const (
	CodeUnknown      = "UNKNOWN_ERROR"
	CodeLoadFailure  = "LOAD_FAILURE"
	CodeDefect       = "INTERNAL_DEFECT"
	CodeBlockIO      = "BLOCK_IO_ERROR"
	CodeCancelled    = "CANCELLED"
	CodeInvalidInput = "INVALID_INPUT"
	CodeNotFound     = "NOT_FOUND"
	CodeConfigError  = "CONFIG_ERROR"
	CodeCatalogError = "CATALOG_ERROR"
)

// AppError represents an engine error with a code and message.
type AppError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target carries the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError.
func New(code string, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new AppError with a formatted message.
func Newf(code string, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with an AppError.
func Wrap(code string, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Defectf reports a violated ingestion or lookup invariant.
func Defectf(format string, args ...interface{}) *AppError {
	return Newf(CodeDefect, format, args...)
}

// Sentinel instances for errors.Is comparisons.
var (
	ErrLoadFailure  = New(CodeLoadFailure, "trace load failed")
	ErrDefect       = New(CodeDefect, "internal defect")
	ErrBlockIO      = New(CodeBlockIO, "block i/o failed")
	ErrCancelled    = New(CodeCancelled, "operation cancelled")
	ErrInvalidInput = New(CodeInvalidInput, "invalid input")
	ErrNotFound     = New(CodeNotFound, "resource not found")
	ErrConfigError  = New(CodeConfigError, "configuration error")
	ErrCatalogError = New(CodeCatalogError, "catalog error")
)

// IsLoadFailure checks if the error aborted a load.
func IsLoadFailure(err error) bool {
	return errors.Is(err, ErrLoadFailure)
}

// IsDefect checks if the error is an internal defect.
func IsDefect(err error) bool {
	return errors.Is(err, ErrDefect)
}

// IsBlockIO checks if the error came from block paging.
func IsBlockIO(err error) bool {
	return errors.Is(err, ErrBlockIO)
}

// IsCancelled checks if the error is a cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// GetErrorMessage extracts the error message from an error.
func GetErrorMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
