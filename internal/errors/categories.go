package errors

import "maps"

// ErrorCategory represents the broad category of an error for classification and routing.
type ErrorCategory string

const (
	// User-facing configuration and input errors.
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"
	CategoryAuth       ErrorCategory = "auth"
	CategoryNotFound   ErrorCategory = "not_found"

	// External system integration errors.
	CategoryNetwork  ErrorCategory = "network"
	CategoryGit      ErrorCategory = "git"
	CategoryRegistry ErrorCategory = "registry"

	// Dispatch and build scheduling errors.
	CategoryDispatch   ErrorCategory = "dispatch"
	CategoryQueue      ErrorCategory = "queue"
	CategoryEventStore ErrorCategory = "eventstore"

	// Runtime and infrastructure errors.
	CategoryRuntime  ErrorCategory = "runtime"
	CategoryDaemon   ErrorCategory = "daemon"
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates the impact level of an error.
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops execution completely
	SeverityError   ErrorSeverity = "error"   // Fails the current operation
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
	SeverityInfo    ErrorSeverity = "info"    // Informational, no impact
)

// RetryStrategy indicates how an error should be handled in retry scenarios.
type RetryStrategy string

const (
	RetryNever     RetryStrategy = "never"     // Permanent failure, don't retry
	RetryImmediate RetryStrategy = "immediate" // Retry immediately
	RetryBackoff   RetryStrategy = "backoff"   // Retry with exponential backoff
)

// ErrorContext provides structured context for errors.
type ErrorContext map[string]any

// Set adds or updates a context value.
func (c ErrorContext) Set(key string, value any) ErrorContext {
	if c == nil {
		c = make(ErrorContext)
	}
	c[key] = value
	return c
}

// Get retrieves a context value.
func (c ErrorContext) Get(key string) (any, bool) {
	if c == nil {
		return nil, false
	}
	value, exists := c[key]
	return value, exists
}

// Merge returns a new ErrorContext containing all entries of c overlaid with other.
func (c ErrorContext) Merge(other ErrorContext) ErrorContext {
	merged := make(ErrorContext, len(c)+len(other))
	maps.Copy(merged, c)
	maps.Copy(merged, other)
	return merged
}
