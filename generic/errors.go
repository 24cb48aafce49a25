/*
errors.go - Error kinds for the engine

PURPOSE:
  Every failure a workflow reports is one of a small set of kinds. Callers
  branch on the kind with errors.Is, and read details with errors.As.

ERROR KINDS:
  ErrValidation              bad date order, missing field, out-of-range day count
  ErrConflict                overlapping interval for the same subject
  ErrInsufficientBalance     requested days exceed remaining
  ErrForbidden               actor lacks scope for the subject
  ErrNotFound                referenced record, user or schedule absent
  ErrInvalidStateTransition  edit/delete/approve on a record that is no longer PENDING
  ErrConcurrentModification  a conditional write lost a race

USAGE:
  if errors.Is(err, generic.ErrConflict) { ... }

  var ib *generic.InsufficientBalanceError
  if errors.As(err, &ib) {
      fmt.Println(ib.Remaining, ib.Requested)
  }

SEE ALSO:
  - api/errors.go: maps kinds to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation             = errors.New("validation failed")
	ErrConflict               = errors.New("interval conflict")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrForbidden              = errors.New("forbidden")
	ErrNotFound               = errors.New("not found")
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrConcurrentModification is returned when a conditional write finds the
	// row changed since it was read.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ConflictError reports the existing record a candidate interval collides with.
type ConflictError struct {
	SubjectID  UserID
	Candidate  Interval
	ExistingID RecordID
	Existing   Interval
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("interval %s for user %s overlaps existing record %s %s",
		e.Candidate, e.SubjectID, e.ExistingID, e.Existing)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

type InsufficientBalanceError struct {
	UserID    UserID
	Year      int
	LeaveType string
	Remaining decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance for %d: remaining %s, requested %s",
		e.LeaveType, e.Year, e.Remaining, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

type ForbiddenError struct {
	ActorID   UserID
	SubjectID UserID
	Action    string
}

func (e *ForbiddenError) Error() string {
	if e.SubjectID == "" {
		return fmt.Sprintf("user %s may not %s", e.ActorID, e.Action)
	}
	return fmt.Sprintf("user %s may not %s for user %s", e.ActorID, e.Action, e.SubjectID)
}

func (e *ForbiddenError) Unwrap() error { return ErrForbidden }

type NotFoundError struct {
	Kind string // "user", "leave request", ...
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

type InvalidStateTransitionError struct {
	RecordID RecordID
	From     string
	Action   string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("cannot %s record %s: status is %s", e.Action, e.RecordID, e.From)
}

func (e *InvalidStateTransitionError) Unwrap() error { return ErrInvalidStateTransition }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// Stable error codes, used by the API and in logs.
const (
	CodeValidation          = "VALIDATION"
	CodeConflict            = "CONFLICT"
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeForbidden           = "FORBIDDEN"
	CodeNotFound            = "NOT_FOUND"
	CodeInvalidState        = "INVALID_STATE"
	CodeConcurrent          = "CONCURRENT_MODIFICATION"
	CodeInternal            = "INTERNAL"
)

// Kind returns the stable code for err, CodeInternal for anything unclassified.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrInsufficientBalance):
		return CodeInsufficientBalance
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrInvalidStateTransition):
		return CodeInvalidState
	case errors.Is(err, ErrConcurrentModification):
		return CodeConcurrent
	default:
		return CodeInternal
	}
}

// IsClientError returns true if the error is a reported outcome rather than a fault.
func IsClientError(err error) bool {
	k := Kind(err)
	return k != "" && k != CodeInternal
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
