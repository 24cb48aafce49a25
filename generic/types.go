/*
Package generic provides the domain-agnostic core of the time management engine.

PURPOSE:
  Leave requests and work-schedule assignments are both time-bound records
  owned by a subject user. This package holds everything the two domains
  share: dates and intervals, the overlap checker, the access scope
  resolver, error kinds and the status-change facts emitted after writes.

KEY CONCEPTS IN THIS FILE (types.go):
  - Identifiers: UserID, CompanyID, RecordID
  - Day counts: decimal.Decimal values, half days are 0.5
  - Users and actors: who a record is about vs. who is calling

DESIGN PRINCIPLES:
  1. Precision: day counts use decimal.Decimal, never float64
  2. Type Safety: distinct id types so a user id cannot be passed as a record id
  3. Injection: time comes from a Clock, storage from interfaces

SEE ALSO:
  - interval.go: Interval overlap rules
  - conflict.go: IntervalConflictChecker
  - access.go: AccessScopeResolver
*/
package generic

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type CompanyID string
type RecordID string

// NewRecordID returns a fresh random record id.
func NewRecordID() RecordID { return RecordID(uuid.NewString()) }

// =============================================================================
// DAY COUNTS
// =============================================================================

var (
	HalfDay = decimal.RequireFromString("0.5")
	OneDay  = decimal.NewFromInt(1)
)

// Days converts a float literal into a day count. Intended for tests and defaults.
func Days(n float64) decimal.Decimal { return decimal.NewFromFloat(n) }

// IsHalfDayMultiple reports whether d is a whole multiple of half a day.
func IsHalfDayMultiple(d decimal.Decimal) bool {
	return d.Mod(HalfDay).IsZero()
}

// =============================================================================
// ROLES
// =============================================================================

// Role is an actor's authorization scope. Roles are ordered: each one sees
// everything the previous one sees and more.
type Role string

const (
	RoleMember  Role = "MEMBER"  // self only
	RoleManager Role = "MANAGER" // self + direct reports
	RoleCompany Role = "COMPANY" // self + every user of the managed company
	RoleAdmin   Role = "ADMIN"   // unrestricted
)

func (r Role) rank() int {
	switch r {
	case RoleMember:
		return 1
	case RoleManager:
		return 2
	case RoleCompany:
		return 3
	case RoleAdmin:
		return 4
	default:
		return 0
	}
}

func (r Role) Valid() bool { return r.rank() > 0 }

// AtLeast reports whether r is min or a wider role.
func (r Role) AtLeast(min Role) bool { return r.Valid() && r.rank() >= min.rank() }

// ParseRole parses a role name. Unknown names return an invalid role.
func ParseRole(s string) Role {
	r := Role(s)
	if !r.Valid() {
		return ""
	}
	return r
}

// =============================================================================
// USERS AND ACTORS
// =============================================================================

// User is a directory entry. ManagerID and CompanyID are empty when unset.
type User struct {
	ID        UserID
	Name      string
	Email     string
	Role      Role
	ManagerID UserID
	CompanyID CompanyID
}

// Actor is the authenticated caller as supplied by the identity collaborator.
// For RoleCompany, CompanyID is the managed company.
type Actor struct {
	ID        UserID
	Role      Role
	CompanyID CompanyID
}

// ActorFor builds the actor view of a directory user.
func ActorFor(u User) Actor {
	return Actor{ID: u.ID, Role: u.Role, CompanyID: u.CompanyID}
}

// UserFilter narrows ListUsers. Zero fields do not filter.
type UserFilter struct {
	IDs       []UserID
	ManagerID UserID
	CompanyID CompanyID
}
