package domain

import (
	"errors"
	"fmt"
)

// Common domain errors raised while building queries and validation records.
var (
	// ErrInvalidQuery indicates that a PartQuery failed validation.
	ErrInvalidQuery = errors.New("invalid part query")

	// ErrEmptyValue indicates that a required value is empty.
	ErrEmptyValue = errors.New("empty value")

	// ErrInvalidConfiguration indicates that configuration is invalid or incomplete.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrUnknownValue indicates an enum name that no value renders to.
	ErrUnknownValue = errors.New("unknown value")
)

// parseEnum returns the value among candidates whose String matches name.
func parseEnum[T fmt.Stringer](kind, name string, candidates ...T) (T, error) {
	for _, c := range candidates {
		if c.String() == name {
			return c, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("%s %q: %w", kind, name, ErrUnknownValue)
}

// QueryError ties a failure to the part number it was raised for.
type QueryError struct {
	// PartNumber is the manufacturer part number of the offending query.
	PartNumber string

	// Operation describes what was being done when the error occurred.
	Operation string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface for QueryError.
func (e *QueryError) Error() string {
	return fmt.Sprintf("query error: operation=%s, mpn=%s, err=%v", e.Operation, e.PartNumber, e.Err)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error { return e.Err }

// NewQueryError creates a new QueryError with the given details.
func NewQueryError(partNumber, operation string, err error) *QueryError {
	return &QueryError{
		PartNumber: partNumber,
		Operation:  operation,
		Err:        err,
	}
}

// ValidationError represents an error that occurred during validation.
// It can contain multiple validation failures.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// Unwrap lets errors.Is match ErrInvalidQuery for query validation failures.
func (e *ValidationError) Unwrap() error {
	if e.Entity == "PartQuery" {
		return ErrInvalidQuery
	}
	return nil
}

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}
