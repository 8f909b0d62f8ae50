package core

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors for handling decisions.
type ErrorCategory string

const (
	ErrCatValidation   ErrorCategory = "validation"   // Invalid configuration or arguments
	ErrCatPrecondition ErrorCategory = "precondition" // Input document refused before a run
	ErrCatExecution    ErrorCategory = "execution"    // Runtime failure inside a task
	ErrCatTimeout      ErrorCategory = "timeout"      // Deadline exceeded
	ErrCatRateLimit    ErrorCategory = "rate_limit"   // Backend rate limited
	ErrCatSynthesis    ErrorCategory = "synthesis"    // Stage-2 aggregation failed
	ErrCatState        ErrorCategory = "state"        // Illegal run state transition
	ErrCatAuth         ErrorCategory = "auth"         // Backend authentication failure
	ErrCatNetwork      ErrorCategory = "network"      // Backend connectivity
	ErrCatNotFound     ErrorCategory = "not_found"    // Resource not found
	ErrCatInternal     ErrorCategory = "internal"     // Unexpected internal error
)

// DomainError represents a structured error from the domain layer.
type DomainError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Retryable bool
	Cause     error
	Details   map[string]interface{}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause wraps an underlying error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithDetail adds contextual information.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ErrValidation creates a validation error.
func ErrValidation(code, message string) *DomainError {
	return &DomainError{
		Category: ErrCatValidation,
		Code:     code,
		Message:  message,
	}
}

// ErrInputPrecondition creates an error for a document refused before stage 1.
func ErrInputPrecondition(code, message string) *DomainError {
	return &DomainError{
		Category: ErrCatPrecondition,
		Code:     code,
		Message:  message,
	}
}

// ErrDuplicateIdentity reports a task identity submitted twice in one run.
func ErrDuplicateIdentity(id TaskID) *DomainError {
	return &DomainError{
		Category: ErrCatValidation,
		Code:     CodeDuplicateIdentity,
		Message:  fmt.Sprintf("task identity %q submitted more than once", id),
		Details:  map[string]interface{}{"task_id": string(id)},
	}
}

// ErrSynthesisFailed reports a failed stage-2 aggregation. The run has no report.
func ErrSynthesisFailed(id TaskID, description string) *DomainError {
	return &DomainError{
		Category: ErrCatSynthesis,
		Code:     CodeSynthesisFailed,
		Message:  fmt.Sprintf("synthesis task %s failed: %s", id, description),
		Details:  map[string]interface{}{"task_id": string(id)},
	}
}

// ErrExecution creates an execution error.
func ErrExecution(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatExecution,
		Code:      code,
		Message:   message,
		Retryable: true,
	}
}

// ErrTimeout creates a timeout error.
func ErrTimeout(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatTimeout,
		Code:      CodeTimeout,
		Message:   message,
		Retryable: true,
	}
}

// ErrRateLimit creates a rate limit error.
func ErrRateLimit(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatRateLimit,
		Code:      "RATE_LIMITED",
		Message:   message,
		Retryable: true,
	}
}

// ErrNetwork creates a network error.
func ErrNetwork(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatNetwork,
		Code:      "NETWORK",
		Message:   message,
		Retryable: true,
	}
}

// ErrState creates a state error.
func ErrState(code, message string) *DomainError {
	return &DomainError{
		Category: ErrCatState,
		Code:     code,
		Message:  message,
	}
}

// ErrAuth creates an authentication error.
func ErrAuth(message string) *DomainError {
	return &DomainError{
		Category: ErrCatAuth,
		Code:     "AUTH_FAILED",
		Message:  message,
	}
}

// ErrNotFound creates a not found error.
func ErrNotFound(resource, id string) *DomainError {
	return &DomainError{
		Category: ErrCatNotFound,
		Code:     "NOT_FOUND",
		Message:  fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Retryable
	}
	return false
}

// GetCategory extracts the error category.
func GetCategory(err error) ErrorCategory {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Category
	}
	return ErrCatInternal
}

// GetCode extracts the error code, or "" for non-domain errors.
func GetCode(err error) string {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Code
	}
	return ""
}

// IsCategory checks if an error belongs to a category.
func IsCategory(err error, cat ErrorCategory) bool {
	return GetCategory(err) == cat
}

// IsSynthesisFailure reports whether err ended a run at the synthesis stage.
func IsSynthesisFailure(err error) bool {
	return IsCategory(err, ErrCatSynthesis)
}

// IsDuplicateIdentity reports whether err is a duplicate task identity rejection.
func IsDuplicateIdentity(err error) bool {
	return GetCode(err) == CodeDuplicateIdentity
}

// IsInputPrecondition reports whether err is a refused input document.
func IsInputPrecondition(err error) bool {
	return IsCategory(err, ErrCatPrecondition)
}

// Predefined error codes
const (
	CodeDuplicateIdentity = "DUPLICATE_IDENTITY"
	CodeSynthesisFailed   = "SYNTHESIS_FAILED"
	CodeNoSpecialists     = "NO_SPECIALISTS"
	CodeInvalidTask       = "INVALID_TASK"
	CodeInvalidConfig     = "INVALID_CONFIG"
	CodeRunAlreadyStarted = "RUN_ALREADY_STARTED"
	CodeInvalidState      = "INVALID_STATE"
	CodeRunNotFound       = "RUN_NOT_FOUND"
	CodeAgentUnavailable  = "AGENT_UNAVAILABLE"
	CodeInvalidRequest    = "INVALID_REQUEST"

	// Input precondition codes
	CodeEmptyDocument     = "EMPTY_DOCUMENT"
	CodeDocumentTooLarge  = "DOCUMENT_TOO_LARGE"
	CodeUnsupportedFormat = "UNSUPPORTED_FORMAT"

	// Task failure codes
	CodeTaskFailed    = "TASK_FAILED"
	CodeTaskPanicked  = "TASK_PANICKED"
	CodeTimeout       = "TIMEOUT"
	CodeInvalidOutput = "INVALID_OUTPUT"
	CodeCancelled     = "CANCELLED"
)

// DefaultMaxDocumentBytes bounds the size of a document accepted for a run.
const DefaultMaxDocumentBytes = 100000
