package domain

import "fmt"

// ValidationError reports a bad field on an incoming intent. It is raised
// before any store access, so a validation failure never leaves a partial
// write behind.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError creates a ValidationError.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError reports a missing symbol or portfolio.
type NotFoundError struct {
	Kind string // "position" or "portfolio"
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

// NewNotFoundError creates a NotFoundError.
func NewNotFoundError(kind, name string) *NotFoundError {
	return &NotFoundError{Kind: kind, Name: name}
}

// UpstreamError reports a text-generation service failure (unreachable,
// timed out, or unparseable reply).
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("text generation %s failed: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// PartialFailure reports a bulk operation where some symbols succeeded and
// others failed. Callers must not treat it as a hard failure.
type PartialFailure struct {
	Succeeded []string
	Errors    []string
}

func (e *PartialFailure) Error() string {
	return fmt.Sprintf("%d of %d positions failed", len(e.Errors), len(e.Succeeded)+len(e.Errors))
}

// UnsupportedActionError is a defensive fallback for an action outside the
// closed set. Unreachable through normal parsing.
type UnsupportedActionError struct {
	Action string
}

func (e *UnsupportedActionError) Error() string {
	return fmt.Sprintf("unsupported action %q", e.Action)
}
