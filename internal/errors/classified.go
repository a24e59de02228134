package errors

import (
	stderrors "errors"
	"fmt"
)

// ClassifiedError is a structured error with category, severity, and context.
type ClassifiedError struct {
	category ErrorCategory
	severity ErrorSeverity
	retry    RetryStrategy
	message  string
	cause    error
	context  ErrorContext
}

// Error implements the standard error interface.
func (e *ClassifiedError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.category, e.severity, e.message, e.cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.category, e.severity, e.message)
}

// Unwrap implements Go 1.13+ error unwrapping.
func (e *ClassifiedError) Unwrap() error {
	return e.cause
}

// Category returns the error category.
func (e *ClassifiedError) Category() ErrorCategory {
	return e.category
}

// Severity returns the error severity.
func (e *ClassifiedError) Severity() ErrorSeverity {
	return e.severity
}

// RetryStrategy returns the recommended retry strategy.
func (e *ClassifiedError) RetryStrategy() RetryStrategy {
	return e.retry
}

// Message returns the error message without classification noise.
func (e *ClassifiedError) Message() string {
	return e.message
}

// Context returns the structured error context.
func (e *ClassifiedError) Context() ErrorContext {
	return e.context
}

// WithContext adds a context value and returns the error for chaining.
func (e *ClassifiedError) WithContext(key string, value any) *ClassifiedError {
	e.context = e.context.Set(key, value)
	return e
}

// Is implements error comparison based on category and message.
func (e *ClassifiedError) Is(target error) bool {
	if other, ok := target.(*ClassifiedError); ok {
		return e.category == other.category && e.message == other.message
	}
	return false
}

// IsCategory checks if the error belongs to a specific category.
func (e *ClassifiedError) IsCategory(category ErrorCategory) bool {
	return e.category == category
}

// CanRetry reports whether the error allows retry operations.
func (e *ClassifiedError) CanRetry() bool {
	return e.retry != RetryNever
}

// AsClassified extracts a ClassifiedError from an error chain.
func AsClassified(err error) (*ClassifiedError, bool) {
	var classified *ClassifiedError
	if stderrors.As(err, &classified) {
		return classified, true
	}
	return nil, false
}

// IsCategory checks whether err (or anything it wraps) carries the given category.
func IsCategory(err error, category ErrorCategory) bool {
	if c, ok := AsClassified(err); ok {
		return c.IsCategory(category)
	}
	return false
}

// GetCategory extracts the category from an error, defaulting to CategoryInternal.
func GetCategory(err error) ErrorCategory {
	if c, ok := AsClassified(err); ok {
		return c.Category()
	}
	return CategoryInternal
}
