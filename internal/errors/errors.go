// Package errors provides structured error types for the padsync system.
// All errors include a category, code, message, and retryable flag for
// consistent error handling across components.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by failure kind. Categories map onto the
// error kinds surfaced over the socket protocol.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryPermission ErrorCategory = "PERMISSION"
	ErrCategoryNotFound   ErrorCategory = "NOT_FOUND"
	ErrCategoryBbox       ErrorCategory = "BBOX"
	ErrCategoryStorage    ErrorCategory = "STORAGE"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeInvalidObject  = "INVALID_OBJECT"
	CodeInvalidTokens  = "INVALID_TOKENS"
	CodeTypeInUse      = "TYPE_IN_USE"
	CodeDuplicateField = "DUPLICATE_FIELD"

	// Permission codes
	CodeReadOnly      = "READ_ONLY"
	CodeAdminRequired = "ADMIN_REQUIRED"

	// Not-found codes
	CodePadNotFound    = "PAD_NOT_FOUND"
	CodeObjectNotFound = "OBJECT_NOT_FOUND"
	CodeEntryNotFound  = "ENTRY_NOT_FOUND"

	// Bbox codes
	CodeInvalidBbox = "INVALID_BBOX"

	// Storage codes
	CodeReadFailed  = "READ_FAILED"
	CodeWriteFailed = "WRITE_FAILED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// SyncError is the structured error type used throughout the system.
type SyncError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *SyncError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *SyncError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *SyncError) Is(target error) bool {
	var t *SyncError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new SyncError.
func New(category ErrorCategory, code, message string) *SyncError {
	return &SyncError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category),
	}
}

// Wrap creates a new SyncError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *SyncError {
	return &SyncError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category),
	}
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a SyncError.
func GetCategory(err error) ErrorCategory {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a SyncError.
func GetCode(err error) string {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// isRetryable determines retryability by category. Only storage failures are
// worth retrying; everything else reflects caller input or a logic fault.
func isRetryable(category ErrorCategory) bool {
	return category == ErrCategoryStorage
}

// Convenience constructors for common errors.

func NewValidationError(code, message string, cause error) *SyncError {
	return Wrap(ErrCategoryValidation, code, message, cause)
}

func NewPermissionError(code, message string) *SyncError {
	return New(ErrCategoryPermission, code, message)
}

func NewNotFoundError(code, message string) *SyncError {
	return New(ErrCategoryNotFound, code, message)
}

// NewBboxError marks a malformed viewport. The caller's previous viewport is
// retained when this is returned.
func NewBboxError(message string, cause error) *SyncError {
	return Wrap(ErrCategoryBbox, CodeInvalidBbox, message, cause)
}

func NewStorageError(code, message string, cause error) *SyncError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewInternalError(message string, cause error) *SyncError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
