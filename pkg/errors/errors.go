// Package errors provides structured error handling for cartsync
package errors

import (
	"errors"
	"runtime"

	stringpool "github.com/ajitpratap0/cartsync/pkg/strings"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeInternal represents internal system errors
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeValidation represents validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeTransient represents single-attempt request failures that the
	// executor retries internally
	ErrorTypeTransient ErrorType = "transient"
	// ErrorTypeThrottled represents rate limit signals from the remote API
	ErrorTypeThrottled ErrorType = "throttled"
	// ErrorTypeTimeout represents request timeout errors
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeExhaustedRetries represents a request that failed every
	// configured attempt; wraps the final cause
	ErrorTypeExhaustedRetries ErrorType = "exhausted_retries"
	// ErrorTypeInvalidMode represents an unrecognized sync mode
	ErrorTypeInvalidMode ErrorType = "invalid_mode"
	// ErrorTypePersistence represents bulk upsert failures
	ErrorTypePersistence ErrorType = "persistence"
	// ErrorTypeConflict represents conflicting operations, such as a sync
	// requested while another is in flight
	ErrorTypeConflict ErrorType = "conflict"
	// ErrorTypeData represents record transform and coercion errors
	ErrorTypeData ErrorType = "data"
	// ErrorTypeQuery represents malformed or rejected remote queries
	ErrorTypeQuery ErrorType = "query"
)

// Error represents a structured error with context
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return stringpool.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return stringpool.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the stack
	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// IsRetryable returns true if the error is retryable within a request cycle
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	switch e.Type {
	case ErrorTypeTransient, ErrorTypeThrottled, ErrorTypeTimeout:
		return true
	default:
		return false
	}
}

// IsType checks if the error is of the given type
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// captureStack captures the current call stack
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
