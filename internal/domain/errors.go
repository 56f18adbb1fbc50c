package domain

import (
	"errors"
	"fmt"
)

// ValidationError reports missing or malformed caller input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ExternalServiceError wraps failures of the OCR or object-storage
// collaborators, timeouts included. Callers may retry.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

// ExternalFailure builds an ExternalServiceError.
func ExternalFailure(service string, err error) error {
	return &ExternalServiceError{Service: service, Err: err}
}

// NotFoundError reports a lookup miss scoped to the caller.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// NotFound builds a NotFoundError.
func NotFound(entity string, id int64) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// ConsistencyError reports a detected race or a broken aggregate invariant.
type ConsistencyError struct {
	Message string
	Err     error
}

func (e *ConsistencyError) Error() string {
	if e.Err == nil {
		return "consistency: " + e.Message
	}
	return fmt.Sprintf("consistency: %s: %v", e.Message, e.Err)
}

func (e *ConsistencyError) Unwrap() error {
	return e.Err
}

// Inconsistent builds a ConsistencyError.
func Inconsistent(err error, format string, args ...interface{}) error {
	return &ConsistencyError{Message: fmt.Sprintf(format, args...), Err: err}
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsExternal(err error) bool {
	var target *ExternalServiceError
	return errors.As(err, &target)
}

func IsConsistency(err error) bool {
	var target *ConsistencyError
	return errors.As(err, &target)
}
