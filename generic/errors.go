/*
errors.go - Centralized error taxonomy for the engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every package returns one of four classes so that callers (the HTTP
  layer, the job consumer, the CLI) can react without string matching.

ERROR CATEGORIES:
  1. Unauthorized - caller lacks admin/owner rights or crosses workspaces
  2. NotFound     - referenced member/schedule/allowance/workspace absent
  3. IllegalState - invariant violation (missing workspace schedule,
                    duplicate default configuration)
  4. Validation   - malformed input (start >= end within a half-day)

USAGE:
  if generic.IsNotFound(err) {
      // 404
  }

  return generic.Validation("monday_am_end", "must be after monday_am_start")
*/
package generic

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUnauthorized is returned when the caller may not perform the operation.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrIllegalState is returned when stored data breaks an invariant.
	ErrIllegalState = errors.New("illegal state")

	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names the missing resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// UnauthorizedError explains why access was refused.
type UnauthorizedError struct {
	Reason string
}

func (e *UnauthorizedError) Error() string { return "unauthorized: " + e.Reason }

func (e *UnauthorizedError) Unwrap() error { return ErrUnauthorized }

// IllegalStateError describes a broken invariant.
type IllegalStateError struct {
	Message string
}

func (e *IllegalStateError) Error() string { return "illegal state: " + e.Message }

func (e *IllegalStateError) Unwrap() error { return ErrIllegalState }

// ValidationError carries per-field messages.
type ValidationError struct {
	Details map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Details[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// =============================================================================
// CONSTRUCTORS
// =============================================================================

func NotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

func Unauthorized(reason string) error {
	return &UnauthorizedError{Reason: reason}
}

func IllegalState(format string, args ...any) error {
	return &IllegalStateError{Message: fmt.Sprintf(format, args...)}
}

func Validation(field, message string) error {
	return &ValidationError{Details: map[string]string{field: message}}
}

func ValidationDetails(details map[string]string) error {
	return &ValidationError{Details: details}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

func IsUnauthorized(err error) bool { return errors.Is(err, ErrUnauthorized) }
func IsNotFound(err error) bool     { return errors.Is(err, ErrNotFound) }
func IsIllegalState(err error) bool { return errors.Is(err, ErrIllegalState) }
func IsValidation(err error) bool   { return errors.Is(err, ErrValidation) }

// IsClientError returns true if the error is due to the caller's input or rights.
func IsClientError(err error) bool {
	return IsUnauthorized(err) || IsNotFound(err) || IsValidation(err)
}

// ValidationDetailsOf extracts the per-field messages, if any.
func ValidationDetailsOf(err error) map[string]string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Details
	}
	return nil
}
