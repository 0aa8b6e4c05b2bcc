// Package errors defines the typed failures reported by the index engine.
// Callers match them with errors.Is against the exported sentinels.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrSchemaViolation   = errors.New("schema violation")
	ErrSchemaMismatch    = errors.New("schema mismatch")
	ErrUnknownField      = errors.New("unknown field")
	ErrTypeMismatch      = errors.New("type mismatch")
	ErrEmptyBooleanQuery = errors.New("empty boolean query")
	ErrWriterLockHeld    = errors.New("writer lock held")
	ErrCommitFailure     = errors.New("commit failure")
	ErrStorageIO         = errors.New("storage i/o error")
	ErrDocumentNotFound  = errors.New("document not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrClosed            = errors.New("index closed")
	ErrTimeout           = errors.New("timed out")
)

// AppError pairs a sentinel with a human readable message and an optional
// underlying cause. Both the sentinel and the cause are reachable through
// errors.Is / errors.As.
type AppError struct {
	Err     error
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Err.Error(), e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

func New(sentinel error, message string) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: message,
	}
}

func Newf(sentinel error, format string, args ...any) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap attaches cause to a new AppError for sentinel.
func Wrap(sentinel error, cause error, message string) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: message,
		Cause:   cause,
	}
}

// StorageIO wraps a filesystem failure as ErrStorageIO.
func StorageIO(cause error, format string, args ...any) *AppError {
	return Wrap(ErrStorageIO, cause, fmt.Sprintf(format, args...))
}

// ExitCode maps an error to the process exit status used by the command line
// tools.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrUnknownField),
		errors.Is(err, ErrTypeMismatch),
		errors.Is(err, ErrEmptyBooleanQuery),
		errors.Is(err, ErrSchemaViolation):
		return 2
	case errors.Is(err, ErrSchemaMismatch):
		return 3
	case errors.Is(err, ErrWriterLockHeld):
		return 4
	case errors.Is(err, ErrCommitFailure), errors.Is(err, ErrStorageIO):
		return 5
	case errors.Is(err, ErrDocumentNotFound):
		return 6
	case errors.Is(err, ErrTimeout):
		return 7
	default:
		return 1
	}
}
