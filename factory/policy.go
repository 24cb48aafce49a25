/*
Package factory provides JSON to Go leave-policy conversion.

PURPOSE:
  Converts JSON leave-policy definitions into a timeoff.PolicyTable so HR can
  change which leave types consume a balance, and how large the lazily
  created balance is, without a code change.

JSON SCHEMA:
  [
    {"leave_type": "PAID_LEAVE", "ledger_tracked": true, "default_allotment": 25},
    {"leave_type": "SICK_LEAVE", "ledger_tracked": true, "default_allotment": 10}
  ]

  Entries override timeoff.DefaultPolicies(); leave types that are not
  listed keep their default policy. default_allotment accepts a number or a
  decimal string and must be a multiple of 0.5.

USAGE:
  table, err := factory.ParseLeavePolicies(data)
  table, err := factory.LoadLeavePolicies("policies.json", timeoff.DefaultPolicies())

SEE ALSO:
  - timeoff/policies.go: PolicyTable
  - config/config.go: [leave].policies_file
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"github.com/warp/timekeeper/generic"
	"github.com/warp/timekeeper/timeoff"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// PolicyJSON is the JSON representation of one leave-type policy.
type PolicyJSON struct {
	LeaveType        string           `json:"leave_type"`
	LedgerTracked    bool             `json:"ledger_tracked"`
	DefaultAllotment *decimal.Decimal `json:"default_allotment,omitempty"`
}

// =============================================================================
// PARSING
// =============================================================================

// ParseLeavePolicies parses a JSON policy list over timeoff.DefaultPolicies().
func ParseLeavePolicies(data []byte) (timeoff.PolicyTable, error) {
	return ParseLeavePoliciesOver(data, timeoff.DefaultPolicies())
}

// ParseLeavePoliciesOver parses a JSON policy list over base.
func ParseLeavePoliciesOver(data []byte, base timeoff.PolicyTable) (timeoff.PolicyTable, error) {
	var list []PolicyJSON
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse leave policy JSON: %w", err)
	}

	overrides := make(timeoff.PolicyTable, len(list))
	for i, pj := range list {
		p, err := FromJSON(pj)
		if err != nil {
			return nil, fmt.Errorf("policy %d: %w", i, err)
		}
		if _, dup := overrides[p.LeaveType]; dup {
			return nil, fmt.Errorf("policy %d: %w", i, &generic.ValidationError{
				Field:  "leave_type",
				Reason: "duplicate entry for " + string(p.LeaveType),
			})
		}
		overrides[p.LeaveType] = p
	}

	table := base.Merge(overrides)
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

// LoadLeavePolicies reads and parses a policy file. An empty path returns base.
func LoadLeavePolicies(path string, base timeoff.PolicyTable) (timeoff.PolicyTable, error) {
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read leave policies %s: %w", path, err)
	}
	return ParseLeavePoliciesOver(data, base)
}

// FromJSON converts one PolicyJSON to a timeoff.Policy.
func FromJSON(pj PolicyJSON) (timeoff.Policy, error) {
	lt := timeoff.LeaveType(pj.LeaveType)
	if !lt.Valid() {
		return timeoff.Policy{}, &generic.ValidationError{Field: "leave_type", Reason: fmt.Sprintf("unknown leave type %q", pj.LeaveType)}
	}

	allotment := decimal.Zero
	if pj.DefaultAllotment != nil {
		allotment = *pj.DefaultAllotment
	}
	if pj.LedgerTracked && pj.DefaultAllotment == nil {
		allotment = timeoff.DefaultAllotment
	}
	if !generic.IsHalfDayMultiple(allotment) {
		return timeoff.Policy{}, &generic.ValidationError{Field: "default_allotment", Reason: "must be a multiple of 0.5"}
	}

	return timeoff.Policy{
		LeaveType:        lt,
		LedgerTracked:    pj.LedgerTracked,
		DefaultAllotment: allotment,
	}, nil
}

// ToJSON converts a table to its JSON list form, in timeoff.AllLeaveTypes order.
func ToJSON(t timeoff.PolicyTable) []PolicyJSON {
	out := make([]PolicyJSON, 0, len(t))
	for _, lt := range timeoff.AllLeaveTypes {
		p, ok := t[lt]
		if !ok {
			continue
		}
		allotment := p.DefaultAllotment
		out = append(out, PolicyJSON{
			LeaveType:        string(lt),
			LedgerTracked:    p.LedgerTracked,
			DefaultAllotment: &allotment,
		})
	}
	return out
}
