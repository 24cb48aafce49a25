package timeoff

import (
	"github.com/shopspring/decimal"
	"github.com/warp/timekeeper/generic"
)

// =============================================================================
// LEAVE POLICY TABLE
// =============================================================================

// DefaultAllotment is the yearly PAID_LEAVE allotment created on first use.
var DefaultAllotment = decimal.NewFromInt(20)

// Policy says whether a leave type consumes a balance and how large the
// lazily created balance is.
type Policy struct {
	LeaveType        LeaveType
	LedgerTracked    bool
	DefaultAllotment decimal.Decimal
}

// PolicyTable maps every leave type to its policy. Types missing from the
// table are not ledger-tracked.
type PolicyTable map[LeaveType]Policy

// DefaultPolicies tracks only PAID_LEAVE.
func DefaultPolicies() PolicyTable {
	return DefaultPoliciesWithAllotment(DefaultAllotment)
}

// DefaultPoliciesWithAllotment is DefaultPolicies with a custom PAID_LEAVE allotment.
func DefaultPoliciesWithAllotment(allotment decimal.Decimal) PolicyTable {
	t := make(PolicyTable, len(AllLeaveTypes))
	for _, lt := range AllLeaveTypes {
		t[lt] = Policy{LeaveType: lt, DefaultAllotment: decimal.Zero}
	}
	t[PaidLeave] = Policy{LeaveType: PaidLeave, LedgerTracked: true, DefaultAllotment: allotment}
	return t
}

// Lookup returns the policy for lt; unknown types get an untracked policy.
func (t PolicyTable) Lookup(lt LeaveType) Policy {
	if p, ok := t[lt]; ok {
		return p
	}
	return Policy{LeaveType: lt, DefaultAllotment: decimal.Zero}
}

func (t PolicyTable) IsTracked(lt LeaveType) bool { return t.Lookup(lt).LedgerTracked }

// Merge returns a copy of t with overrides applied on top.
func (t PolicyTable) Merge(overrides PolicyTable) PolicyTable {
	out := make(PolicyTable, len(t)+len(overrides))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// Validate rejects negative allotments and unknown leave types.
func (t PolicyTable) Validate() error {
	for lt, p := range t {
		if !lt.Valid() {
			return &generic.ValidationError{Field: "leave_type", Reason: "unknown leave type " + string(lt)}
		}
		if p.LeaveType != lt {
			return &generic.ValidationError{Field: "leave_type", Reason: "policy registered under " + string(lt) + " describes " + string(p.LeaveType)}
		}
		if p.DefaultAllotment.IsNegative() {
			return &generic.ValidationError{Field: "default_allotment", Reason: "must not be negative for " + string(lt)}
		}
	}
	return nil
}
