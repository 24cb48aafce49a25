/*
conflict.go - IntervalConflictChecker

PURPOSE:
  One overlap check shared by leave requests and work-schedule assignments.
  The domains differ only in which records still count ("active"), so the
  checker is parameterized by a status predicate instead of being written
  once per route.

RULE:
  existing.start <= candidate.end AND existing.end >= candidate.start
  with a missing end treated as +infinity on either side.

TRANSACTIONS:
  The checker is read-only. Callers run it against the transactional view
  of their store, in the same WithTx callback as the write that depends on
  it, so two concurrent submissions cannot both pass.

SEE ALSO:
  - interval.go: Overlaps
  - timeoff/request.go, schedule/assignment.go: callers
*/
package generic

import "context"

// Span is one existing time-bound record as seen by the checker.
type Span struct {
	ID        RecordID
	SubjectID UserID
	Interval  Interval
	Status    string // empty for records without a status
}

// IntervalSource lists a subject's records that may overlap window.
// Implementations may return extra rows; the checker filters again.
type IntervalSource interface {
	IntervalsForSubject(ctx context.Context, subject UserID, window Interval) ([]Span, error)
}

// ActivePredicate decides whether a record with the given status blocks others.
type ActivePredicate func(status string) bool

// AllActive treats every record as active.
func AllActive(string) bool { return true }

// StatusIn builds a predicate matching any of the given statuses.
func StatusIn(statuses ...string) ActivePredicate {
	set := make(map[string]struct{}, len(statuses))
	for _, s := range statuses {
		set[s] = struct{}{}
	}
	return func(status string) bool {
		_, ok := set[status]
		return ok
	}
}

// ConflictChecker finds overlapping active intervals for a subject.
type ConflictChecker struct {
	IsActive ActivePredicate
}

func NewConflictChecker(isActive ActivePredicate) *ConflictChecker {
	if isActive == nil {
		isActive = AllActive
	}
	return &ConflictChecker{IsActive: isActive}
}

// FindConflict returns the first active span of subject overlapping candidate,
// ignoring excludeID. It returns nil when there is none.
func (c *ConflictChecker) FindConflict(
	ctx context.Context,
	src IntervalSource,
	subject UserID,
	candidate Interval,
	excludeID RecordID,
) (*Span, error) {
	spans, err := src.IntervalsForSubject(ctx, subject, candidate)
	if err != nil {
		return nil, err
	}
	for i := range spans {
		s := spans[i]
		if s.SubjectID != subject {
			continue
		}
		if excludeID != "" && s.ID == excludeID {
			continue
		}
		if !c.IsActive(s.Status) {
			continue
		}
		if s.Interval.Overlaps(candidate) {
			return &s, nil
		}
	}
	return nil, nil
}

// HasConflict is the boolean form of FindConflict.
func (c *ConflictChecker) HasConflict(
	ctx context.Context,
	src IntervalSource,
	subject UserID,
	candidate Interval,
	excludeID RecordID,
) (bool, error) {
	span, err := c.FindConflict(ctx, src, subject, candidate, excludeID)
	return span != nil, err
}

// Check is FindConflict returning a *ConflictError when an overlap exists.
func (c *ConflictChecker) Check(
	ctx context.Context,
	src IntervalSource,
	subject UserID,
	candidate Interval,
	excludeID RecordID,
) error {
	span, err := c.FindConflict(ctx, src, subject, candidate, excludeID)
	if err != nil {
		return err
	}
	if span != nil {
		return &ConflictError{
			SubjectID:  subject,
			Candidate:  candidate,
			ExistingID: span.ID,
			Existing:   span.Interval,
		}
	}
	return nil
}
