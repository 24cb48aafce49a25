package timeoff

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/warp/timekeeper/generic"
)

// =============================================================================
// YEARLY SUMMARY
// =============================================================================

// summaryParallelism bounds the per-user reads in flight.
const summaryParallelism = 8

// UserLeaveSummary aggregates one user's requests starting in a calendar year.
// A request crossing into the next year counts once, in its start year.
type UserLeaveSummary struct {
	UserID       generic.UserID
	Year         int
	ApprovedDays decimal.Decimal
	PendingDays  decimal.Decimal
	ByType       map[LeaveType]decimal.Decimal // approved days per leave type
	PaidBalance  *LeaveBalance                 // nil until the balance row exists
}

// YearSummary builds a summary for every user visible to the actor. Reads
// only, so users are processed in parallel.
func (s *RequestService) YearSummary(ctx context.Context, actor generic.Actor, year int) ([]UserLeaveSummary, error) {
	if year < 1 {
		return nil, &generic.ValidationError{Field: "year", Reason: "must be a calendar year"}
	}
	subjects, err := s.visibleSubjects(ctx, actor)
	if err != nil {
		return nil, err
	}

	out := make([]UserLeaveSummary, len(subjects))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(summaryParallelism)
	for i, id := range subjects {
		g.Go(func() error {
			sum, err := s.summarize(gctx, id, year)
			if err != nil {
				return fmt.Errorf("summarize %s: %w", id, err)
			}
			out[i] = sum
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *RequestService) visibleSubjects(ctx context.Context, actor generic.Actor) ([]generic.UserID, error) {
	scope, err := s.Access.ScopeListQuery(ctx, actor)
	if err != nil {
		return nil, err
	}
	if !scope.Unrestricted {
		return scope.SubjectIDs, nil
	}
	users, err := s.Access.Users.ListUsers(ctx, generic.UserFilter{})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	ids := make([]generic.UserID, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids, nil
}

func (s *RequestService) summarize(ctx context.Context, id generic.UserID, year int) (UserLeaveSummary, error) {
	sum := UserLeaveSummary{
		UserID:       id,
		Year:         year,
		ApprovedDays: decimal.Zero,
		PendingDays:  decimal.Zero,
		ByType:       map[LeaveType]decimal.Decimal{},
	}
	reqs, err := s.Store.ListRequests(ctx, RequestFilter{
		Subjects: generic.SubjectFilter{SubjectIDs: []generic.UserID{id}},
		Year:     year,
	})
	if err != nil {
		return sum, err
	}
	for _, r := range reqs {
		if r.Interval.Start.Year() != year {
			continue
		}
		switch r.Status {
		case StatusApproved:
			sum.ApprovedDays = sum.ApprovedDays.Add(r.Days)
			sum.ByType[r.LeaveType] = sum.ByType[r.LeaveType].Add(r.Days)
		case StatusPending:
			sum.PendingDays = sum.PendingDays.Add(r.Days)
		}
	}
	b, err := s.Store.GetBalance(ctx, BalanceKey{UserID: id, Year: year, LeaveType: PaidLeave})
	if err != nil {
		return sum, err
	}
	sum.PaidBalance = b
	return sum, nil
}
