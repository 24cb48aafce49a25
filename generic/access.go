/*
access.go - AccessScopeResolver

PURPOSE:
  Single place that decides which subjects an actor may see and act on.
  Leave and schedule workflows both call it, so their authorization rules
  cannot drift apart.

SCOPES (ascending):
  MEMBER   self only
  MANAGER  self + users whose ManagerID is the manager
  COMPANY  self + users whose CompanyID is the managed company
  ADMIN    everyone

FORBIDDEN vs NOT FOUND:
  When a caller targets a specific subject, a subject that exists but is out
  of scope is ErrForbidden; only a subject that does not exist at all is
  ErrNotFound. An explicit target never collapses into an empty result.

SEE ALSO:
  - store.go: UserDirectory
*/
package generic

import (
	"context"
	"fmt"
	"slices"
)

// SubjectFilter is the visible subject set of an actor. Unrestricted means no filter.
type SubjectFilter struct {
	Unrestricted bool
	SubjectIDs   []UserID
}

// Allows reports whether id is inside the filter.
func (f SubjectFilter) Allows(id UserID) bool {
	return f.Unrestricted || slices.Contains(f.SubjectIDs, id)
}

// AccessScopeResolver decides visibility from the actor's role and the user directory.
type AccessScopeResolver struct {
	Users UserDirectory
}

func NewAccessScopeResolver(users UserDirectory) *AccessScopeResolver {
	return &AccessScopeResolver{Users: users}
}

// CanView reports whether actor may read subject's records.
func (r *AccessScopeResolver) CanView(ctx context.Context, actor Actor, subject UserID) (bool, error) {
	return r.inScope(ctx, actor, subject)
}

// CanAct reports whether actor may approve, assign or initialize balances for subject.
// Same scoping as CanView today; kept separate so the two can diverge.
func (r *AccessScopeResolver) CanAct(ctx context.Context, actor Actor, subject UserID) (bool, error) {
	return r.inScope(ctx, actor, subject)
}

// AuthorizeView returns nil, a *NotFoundError or a *ForbiddenError.
func (r *AccessScopeResolver) AuthorizeView(ctx context.Context, actor Actor, subject UserID) error {
	return r.authorize(ctx, actor, subject, "view records", r.CanView)
}

// AuthorizeAct returns nil, a *NotFoundError or a *ForbiddenError.
func (r *AccessScopeResolver) AuthorizeAct(ctx context.Context, actor Actor, subject UserID, action string) error {
	return r.authorize(ctx, actor, subject, action, r.CanAct)
}

// RequireUser fails with a *NotFoundError when id is not in the directory.
func (r *AccessScopeResolver) RequireUser(ctx context.Context, id UserID) (*User, error) {
	u, err := r.Users.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", id, err)
	}
	if u == nil {
		return nil, &NotFoundError{Kind: "user", ID: string(id)}
	}
	return u, nil
}

// RequireRole fails with a *ForbiddenError unless actor holds min or wider.
func RequireRole(actor Actor, min Role, action string) error {
	if !actor.Role.AtLeast(min) {
		return &ForbiddenError{ActorID: actor.ID, Action: action}
	}
	return nil
}

// CanManageCompany reports whether actor may write company-scoped configuration.
func CanManageCompany(actor Actor, company CompanyID) bool {
	switch actor.Role {
	case RoleAdmin:
		return true
	case RoleCompany:
		return actor.CompanyID != "" && actor.CompanyID == company
	default:
		return false
	}
}

// ScopeListQuery resolves the actor's visible subject set. List queries apply
// it before any other predicate.
func (r *AccessScopeResolver) ScopeListQuery(ctx context.Context, actor Actor) (SubjectFilter, error) {
	switch actor.Role {
	case RoleAdmin:
		return SubjectFilter{Unrestricted: true}, nil
	case RoleMember:
		return SubjectFilter{SubjectIDs: []UserID{actor.ID}}, nil
	case RoleManager:
		reports, err := r.Users.ListUsers(ctx, UserFilter{ManagerID: actor.ID})
		if err != nil {
			return SubjectFilter{}, fmt.Errorf("list direct reports: %w", err)
		}
		return SubjectFilter{SubjectIDs: withSelf(actor.ID, reports)}, nil
	case RoleCompany:
		if actor.CompanyID == "" {
			return SubjectFilter{SubjectIDs: []UserID{actor.ID}}, nil
		}
		members, err := r.Users.ListUsers(ctx, UserFilter{CompanyID: actor.CompanyID})
		if err != nil {
			return SubjectFilter{}, fmt.Errorf("list company users: %w", err)
		}
		return SubjectFilter{SubjectIDs: withSelf(actor.ID, members)}, nil
	default:
		return SubjectFilter{}, nil
	}
}

// NarrowTo applies an explicitly requested subject to the actor's scope.
// An empty requested id returns the scope unchanged.
func (r *AccessScopeResolver) NarrowTo(ctx context.Context, actor Actor, scope SubjectFilter, requested UserID) (SubjectFilter, error) {
	if requested == "" {
		return scope, nil
	}
	if !scope.Allows(requested) {
		if err := r.AuthorizeView(ctx, actor, requested); err != nil {
			return SubjectFilter{}, err
		}
	}
	return SubjectFilter{SubjectIDs: []UserID{requested}}, nil
}

func (r *AccessScopeResolver) inScope(ctx context.Context, actor Actor, subject UserID) (bool, error) {
	if !actor.Role.Valid() {
		return false, nil
	}
	if actor.Role == RoleAdmin || actor.ID == subject {
		return true, nil
	}
	if actor.Role == RoleMember {
		return false, nil
	}
	u, err := r.Users.GetUser(ctx, subject)
	if err != nil {
		return false, fmt.Errorf("load user %s: %w", subject, err)
	}
	if u == nil {
		return false, nil
	}
	switch actor.Role {
	case RoleManager:
		return u.ManagerID == actor.ID, nil
	case RoleCompany:
		return actor.CompanyID != "" && u.CompanyID == actor.CompanyID, nil
	}
	return false, nil
}

func (r *AccessScopeResolver) authorize(
	ctx context.Context,
	actor Actor,
	subject UserID,
	action string,
	check func(context.Context, Actor, UserID) (bool, error),
) error {
	ok, err := check(ctx, actor, subject)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	u, err := r.Users.GetUser(ctx, subject)
	if err != nil {
		return fmt.Errorf("load user %s: %w", subject, err)
	}
	if u == nil {
		return &NotFoundError{Kind: "user", ID: string(subject)}
	}
	return &ForbiddenError{ActorID: actor.ID, SubjectID: subject, Action: action}
}

func withSelf(self UserID, users []User) []UserID {
	ids := make([]UserID, 0, len(users)+1)
	ids = append(ids, self)
	for _, u := range users {
		if u.ID != self {
			ids = append(ids, u.ID)
		}
	}
	return ids
}
