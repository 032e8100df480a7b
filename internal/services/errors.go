package services

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError represents a validation failure on a single field
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// ValidationErrors collects field-by-field failures found before any mutation
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	parts := make([]string, len(e))
	for i, v := range e {
		parts[i] = v.Error()
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Fields maps each failing field to its message
func (e ValidationErrors) Fields() map[string]string {
	out := make(map[string]string, len(e))
	for _, v := range e {
		out[v.Field] = v.Message
	}
	return out
}

// AsValidationErrors returns the field failures carried by err, if any
func AsValidationErrors(err error) (ValidationErrors, bool) {
	var many ValidationErrors
	if errors.As(err, &many) {
		return many, true
	}
	var single *ValidationError
	if errors.As(err, &single) {
		return ValidationErrors{single}, true
	}
	return nil, false
}

// PermissionDeniedError is returned when a policy refuses an action
type PermissionDeniedError struct {
	Action string `json:"action"`
	Reason string `json:"reason"`
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied to %s: %s", e.Action, e.Reason)
}

// NewPermissionDeniedError creates a new permission denied error
func NewPermissionDeniedError(action, reason string) *PermissionDeniedError {
	return &PermissionDeniedError{Action: action, Reason: reason}
}

// IsPermissionDenied checks if an error is a PermissionDeniedError
func IsPermissionDenied(err error) (*PermissionDeniedError, bool) {
	var denied *PermissionDeniedError
	if errors.As(err, &denied) {
		return denied, true
	}
	return nil, false
}

// NotFoundError is returned by operations that require an existing record
type NotFoundError struct {
	Resource string `json:"resource"`
	ID       string `json:"id"`
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(resource string, id fmt.Stringer) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id.String()}
}

// IsNotFound checks if an error is a NotFoundError
func IsNotFound(err error) (*NotFoundError, bool) {
	var notFound *NotFoundError
	if errors.As(err, &notFound) {
		return notFound, true
	}
	return nil, false
}

// ConflictError represents a resource conflict (e.g., already exists)
type ConflictError struct {
	Resource string `json:"resource"`
	Message  string `json:"message"`
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s conflict: %s", e.Resource, e.Message)
}

// NewConflictError creates a new conflict error
func NewConflictError(resource, message string) *ConflictError {
	return &ConflictError{Resource: resource, Message: message}
}

// IsConflictError checks if an error is a ConflictError
func IsConflictError(err error) (*ConflictError, bool) {
	var conflictErr *ConflictError
	if errors.As(err, &conflictErr) {
		return conflictErr, true
	}
	return nil, false
}

// ErrTenantCodeExhausted means no free tenant code was found within the attempt bound
var ErrTenantCodeExhausted = errors.New("could not generate a unique tenant code")
