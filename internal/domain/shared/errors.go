// Package shared contains the error taxonomy used across the roll return
// domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base error kinds that can be used for error checking with errors.Is().
var (
	// ErrConfiguration covers unknown month codes, malformed configuration and
	// metadata. Raised before any I/O.
	ErrConfiguration = errors.New("configuration error")

	// ErrValidation covers missing or malformed student fields used in
	// classification. Aborts the whole batch.
	ErrValidation = errors.New("validation error")

	// ErrConcurrency covers version-assignment races and lock acquisition
	// failures. The caller may retry the whole operation.
	ErrConcurrency = errors.New("concurrency error")

	// ErrIO covers directory and file creation or write failures.
	ErrIO = errors.New("io error")

	ErrNotFound        = errors.New("entity not found")
	ErrStateTransition = errors.New("invalid state transition")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "roll", "registry", "moefile"
	Op      string // Operation that failed, e.g., "Aggregate", "AssignVersion"
	Kind    error  // Base error kind for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching against both the kind and the cause.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Configuration is shorthand for a formatted ErrConfiguration.
func Configuration(domain, op, format string, args ...any) *DomainError {
	return NewDomainError(domain, op, ErrConfiguration, fmt.Sprintf(format, args...))
}

// Validation is shorthand for a formatted ErrValidation.
func Validation(domain, op, format string, args ...any) *DomainError {
	return NewDomainError(domain, op, ErrValidation, fmt.Sprintf(format, args...))
}

// Concurrency wraps err as an ErrConcurrency.
func Concurrency(domain, op, message string, err error) *DomainError {
	return WrapError(domain, op, ErrConcurrency, message, err)
}

// IO wraps err as an ErrIO.
func IO(domain, op, message string, err error) *DomainError {
	return WrapError(domain, op, ErrIO, message, err)
}

// IsConfiguration checks if the error is a configuration error.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsConcurrency checks if the error is a concurrency error. These are the
// only errors worth retrying, and only by re-running the whole generation.
func IsConcurrency(err error) bool {
	return errors.Is(err, ErrConcurrency)
}

// IsIO checks if the error is an I/O error.
func IsIO(err error) bool {
	return errors.Is(err, ErrIO)
}

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
