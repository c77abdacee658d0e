// Package errors provides the structured error system for semcache with
// error codes, categories, and context.
//
// The engine's error policy is deliberately narrow: tier-local failures
// (connectivity, corruption, capacity) are recovered inside the tier and
// logged, never returned to callers. The codes in this package classify
// those failures for logs and metrics. The one class that does surface as a
// hard error is programmer misuse, such as using a cache before it was
// initialized.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode represents a structured error code for cache operations.
type ErrorCode string

const (
	// Configuration errors
	ErrCodeInvalidConfig    ErrorCode = "INVALID_CONFIG"
	ErrCodeConfigLoad       ErrorCode = "CONFIG_LOAD"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"

	// Connectivity errors: the remote tier is unreachable or slow. These are
	// recovered locally by entering degraded mode.
	ErrCodeConnectionFailed  ErrorCode = "CONNECTION_FAILED"
	ErrCodeConnectionTimeout ErrorCode = "CONNECTION_TIMEOUT"
	ErrCodeRemoteDegraded    ErrorCode = "REMOTE_DEGRADED"
	ErrCodeOperationTimeout  ErrorCode = "OPERATION_TIMEOUT"

	// Storage errors: a stored entry is unreadable or unstorable. These are
	// recovered locally by treating the entry as a miss or skipping the
	// write for that tier only.
	ErrCodeEntryCorrupt  ErrorCode = "ENTRY_CORRUPT"
	ErrCodeEntryTooLarge ErrorCode = "ENTRY_TOO_LARGE"
	ErrCodeStorageRead   ErrorCode = "STORAGE_READ"
	ErrCodeStorageWrite  ErrorCode = "STORAGE_WRITE"

	// State errors: programmer misuse. These surface as hard errors.
	ErrCodeNotInitialized ErrorCode = "NOT_INITIALIZED"
	ErrCodeAlreadyClosed  ErrorCode = "ALREADY_CLOSED"

	// Operation errors
	ErrCodeInvalidPattern ErrorCode = "INVALID_PATTERN"
	ErrCodeRetryExhausted ErrorCode = "RETRY_EXHAUSTED"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryConnection    ErrorCategory = "connection"
	CategoryStorage       ErrorCategory = "storage"
	CategoryState         ErrorCategory = "state"
	CategoryOperation     ErrorCategory = "operation"
	CategoryInternal      ErrorCategory = "internal"
)

// CacheError represents a structured error with context and metadata.
type CacheError struct {
	Code      ErrorCode         `json:"code"`
	Category  ErrorCategory     `json:"category"`
	Message   string            `json:"message"`
	Component string            `json:"component,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Cause     error             `json:"-"`
}

// Error implements the error interface.
func (e *CacheError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As chains.
func (e *CacheError) Unwrap() error {
	return e.Cause
}

// Is reports whether target carries the same error code, so that
// errors.Is(err, errors.New(ErrCodeNotInitialized, ...)) style comparisons
// and the package sentinels work across wrapping.
func (e *CacheError) Is(target error) bool {
	var ce *CacheError
	if errors.As(target, &ce) {
		return e.Code == ce.Code
	}
	return false
}

// WithComponent attaches the originating component name.
func (e *CacheError) WithComponent(component string) *CacheError {
	e.Component = component
	return e
}

// WithDetail attaches a key/value detail.
func (e *CacheError) WithDetail(key, value string) *CacheError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a structured error.
func New(code ErrorCode, message string) *CacheError {
	return &CacheError{
		Code:      code,
		Category:  categoryFor(code),
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Newf creates a structured error with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *CacheError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap creates a structured error wrapping an underlying cause.
func Wrap(code ErrorCode, message string, cause error) *CacheError {
	e := New(code, message)
	e.Cause = cause
	return e
}

// categoryFor maps an error code to its category.
func categoryFor(code ErrorCode) ErrorCategory {
	switch code {
	case ErrCodeInvalidConfig, ErrCodeConfigLoad, ErrCodeConfigValidation:
		return CategoryConfiguration
	case ErrCodeConnectionFailed, ErrCodeConnectionTimeout, ErrCodeRemoteDegraded, ErrCodeOperationTimeout:
		return CategoryConnection
	case ErrCodeEntryCorrupt, ErrCodeEntryTooLarge, ErrCodeStorageRead, ErrCodeStorageWrite:
		return CategoryStorage
	case ErrCodeNotInitialized, ErrCodeAlreadyClosed:
		return CategoryState
	case ErrCodeInvalidPattern, ErrCodeRetryExhausted:
		return CategoryOperation
	default:
		return CategoryInternal
	}
}

// IsCode reports whether err (or anything it wraps) carries the given code.
func IsCode(err error, code ErrorCode) bool {
	var ce *CacheError
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// IsRetryable reports whether an error is worth retrying. Only transient
// connectivity failures qualify; corruption and misuse never do.
func IsRetryable(err error) bool {
	var ce *CacheError
	if errors.As(err, &ce) {
		switch ce.Code {
		case ErrCodeConnectionFailed, ErrCodeConnectionTimeout, ErrCodeOperationTimeout:
			return true
		}
		return false
	}
	// Unclassified errors from the store client are assumed transient.
	return err != nil
}

// Package sentinels for the errors callers are expected to test against.
var (
	// ErrNotInitialized is returned when a cache is used before Initialize.
	ErrNotInitialized = New(ErrCodeNotInitialized, "cache not initialized")

	// ErrAlreadyClosed is returned when a cache is used after Close.
	ErrAlreadyClosed = New(ErrCodeAlreadyClosed, "cache already closed")
)
