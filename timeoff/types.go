// Package timeoff implements leave requests and the leave balance ledger
// on top of the generic interval engine.
package timeoff

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/timekeeper/generic"
)

// =============================================================================
// LEAVE TYPES
// =============================================================================

type LeaveType string

const (
	PaidLeave     LeaveType = "PAID_LEAVE"
	SickLeave     LeaveType = "SICK_LEAVE"
	PersonalLeave LeaveType = "PERSONAL_LEAVE"
	Maternity     LeaveType = "MATERNITY"
	Paternity     LeaveType = "PATERNITY"
	Special       LeaveType = "SPECIAL"
	Unpaid        LeaveType = "UNPAID"
)

// AllLeaveTypes lists every leave type in display order.
var AllLeaveTypes = []LeaveType{PaidLeave, SickLeave, PersonalLeave, Maternity, Paternity, Special, Unpaid}

func (t LeaveType) Valid() bool {
	for _, lt := range AllLeaveTypes {
		if lt == t {
			return true
		}
	}
	return false
}

// =============================================================================
// REQUEST STATUS
// =============================================================================

type RequestStatus string

const (
	StatusPending  RequestStatus = "PENDING"
	StatusApproved RequestStatus = "APPROVED"
	StatusRejected RequestStatus = "REJECTED"
)

// IsTerminal reports whether no further transition is possible.
func (s RequestStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// activeStatuses block other requests of the same subject. Rejected ones never do.
var activeStatuses = generic.StatusIn(string(StatusPending), string(StatusApproved))

// =============================================================================
// LEAVE REQUEST
// =============================================================================

// LeaveRequest is a time-bound absence of one subject. End is always set.
type LeaveRequest struct {
	ID        generic.RecordID
	UserID    generic.UserID
	LeaveType LeaveType
	Interval  generic.Interval
	Days      decimal.Decimal
	Reason    string
	Status    RequestStatus

	// Year of the balance row this request draws on. Fixed at submission.
	BalanceYear int

	ApproverID   generic.UserID
	ApprovedAt   *time.Time
	RejectedAt   *time.Time
	RejectReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Span exposes the request to the conflict checker.
func (r LeaveRequest) Span() generic.Span {
	return generic.Span{ID: r.ID, SubjectID: r.UserID, Interval: r.Interval, Status: string(r.Status)}
}

// RequestFilter narrows ListRequests. Subjects is applied first and is
// produced by AccessScopeResolver.ScopeListQuery.
type RequestFilter struct {
	Subjects generic.SubjectFilter
	Status   RequestStatus
	Year     int // requests whose interval touches this calendar year, 0 = any
}

// Matches applies the filter in memory.
func (f RequestFilter) Matches(r LeaveRequest) bool {
	if !f.Subjects.Allows(r.UserID) {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.Year != 0 && !r.Interval.Overlaps(generic.Bounded(generic.StartOfYear(f.Year), generic.EndOfYear(f.Year))) {
		return false
	}
	return true
}

// =============================================================================
// LEAVE BALANCE
// =============================================================================

type BalanceKey struct {
	UserID    generic.UserID
	Year      int
	LeaveType LeaveType
}

// LeaveBalance is the denormalized ledger row for one (user, year, leave type).
// Only BalanceLedger writes it. UsedDays + RemainingDays == TotalDays and
// RemainingDays >= 0 after every mutation.
type LeaveBalance struct {
	ID            generic.RecordID
	Key           BalanceKey
	TotalDays     decimal.Decimal
	UsedDays      decimal.Decimal
	RemainingDays decimal.Decimal
	ExpiryDate    generic.Date

	// Version increments on every write. Updates are conditional on it.
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Consistent reports whether the row satisfies the ledger invariants.
func (b LeaveBalance) Consistent() bool {
	return !b.RemainingDays.IsNegative() &&
		!b.UsedDays.IsNegative() &&
		b.UsedDays.Add(b.RemainingDays).Equal(b.TotalDays)
}
