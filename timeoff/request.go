/*
request.go - LeaveRequestWorkflow

PURPOSE:
  Drives a leave request through its approval state machine:

      ┌─────────┐  approve (debit)  ┌──────────┐
      │ PENDING │ ────────────────▶ │ APPROVED │
      └─────────┘                   └──────────┘
           │        reject          ┌──────────┐
           └──────────────────────▶ │ REJECTED │
                                    └──────────┘

  PENDING requests can be edited or deleted by their subject only.
  APPROVED and REJECTED are terminal and immutable for everyone.

ORDER OF CHECKS:
  access scope → conflict check → balance → write. Everything after the
  access check runs inside one Store.WithTx callback so the check and the
  write it guards commit together.

BALANCE:
  Submission and edits check sufficiency without debiting. Approval debits
  before flipping the status, so a failed debit aborts the approval with no
  partial write. Rejection never touches the ledger.

SEE ALSO:
  - ledger.go: BalanceLedger
  - generic/conflict.go: ConflictChecker
  - generic/access.go: AccessScopeResolver
*/
package timeoff

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/timekeeper/generic"
)

// SubmitInput is the mutable part of a leave request. UserID defaults to the actor.
type SubmitInput struct {
	UserID    generic.UserID
	LeaveType LeaveType
	Interval  generic.Interval
	Days      decimal.Decimal
	Reason    string
}

// RequestService implements the leave request lifecycle.
type RequestService struct {
	Store   TxStore
	Access  *generic.AccessScopeResolver
	Ledger  *BalanceLedger
	Checker *generic.ConflictChecker
	Events  generic.EventSink
	Audit   generic.StatusChangeLog // optional, backs History

	logger *zap.Logger
}

func NewRequestService(
	store TxStore,
	access *generic.AccessScopeResolver,
	ledger *BalanceLedger,
	events generic.EventSink,
	logger ...*zap.Logger,
) *RequestService {
	l := zap.L().Named("leave.service")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("leave.service")
	}
	if events == nil {
		events = generic.NopSink{}
	}
	return &RequestService{
		Store:   store,
		Access:  access,
		Ledger:  ledger,
		Checker: generic.NewConflictChecker(activeStatuses),
		Events:  events,
		logger:  l,
	}
}

// =============================================================================
// SUBMIT / EDIT / DELETE - by the subject, while PENDING
// =============================================================================

// Submit creates a PENDING request for the actor.
func (s *RequestService) Submit(ctx context.Context, actor generic.Actor, in SubmitInput) (*LeaveRequest, error) {
	if in.UserID == "" {
		in.UserID = actor.ID
	}
	s.logger.Debug("submit leave requested",
		zap.String("actor_id", string(actor.ID)),
		zap.String("user_id", string(in.UserID)),
		zap.String("leave_type", string(in.LeaveType)),
		zap.Stringer("interval", in.Interval),
	)

	if in.UserID != actor.ID {
		return nil, s.refused("submit", &generic.ForbiddenError{ActorID: actor.ID, SubjectID: in.UserID, Action: "submit leave"})
	}
	if err := validateInput(in); err != nil {
		return nil, s.refused("submit", err)
	}

	now := s.Ledger.Clock.Now()
	req := LeaveRequest{
		ID:          generic.NewRecordID(),
		UserID:      in.UserID,
		LeaveType:   in.LeaveType,
		Interval:    in.Interval,
		Days:        in.Days,
		Reason:      strings.TrimSpace(in.Reason),
		Status:      StatusPending,
		BalanceYear: now.Year(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.Store.WithTx(ctx, func(tx Store) error {
		if err := s.checkSufficient(ctx, tx, req); err != nil {
			return err
		}
		if err := s.Checker.Check(ctx, tx, req.UserID, req.Interval, ""); err != nil {
			return err
		}
		return tx.InsertRequest(ctx, req)
	})
	if err != nil {
		return nil, s.refused("submit", err, zap.String("user_id", string(req.UserID)))
	}

	s.logger.Info("submit leave success",
		zap.String("request_id", string(req.ID)),
		zap.String("user_id", string(req.UserID)),
		zap.String("days", req.Days.String()),
	)
	s.publish(ctx, actor, req, "", "")
	return &req, nil
}

// Edit replaces the mutable fields of a PENDING request, re-running every
// submission check with the request's own id excluded from the conflict check.
func (s *RequestService) Edit(ctx context.Context, actor generic.Actor, id generic.RecordID, in SubmitInput) (*LeaveRequest, error) {
	s.logger.Debug("edit leave requested",
		zap.String("actor_id", string(actor.ID)),
		zap.String("request_id", string(id)),
	)

	var out LeaveRequest
	err := s.Store.WithTx(ctx, func(tx Store) error {
		cur, err := s.loadOwnPending(ctx, tx, actor, id, "edit")
		if err != nil {
			return err
		}
		in.UserID = cur.UserID
		if err := validateInput(in); err != nil {
			return err
		}

		next := *cur
		next.LeaveType = in.LeaveType
		next.Interval = in.Interval
		next.Days = in.Days
		next.Reason = strings.TrimSpace(in.Reason)
		next.UpdatedAt = s.Ledger.Clock.Now()

		if err := s.checkSufficient(ctx, tx, next); err != nil {
			return err
		}
		if err := s.Checker.Check(ctx, tx, next.UserID, next.Interval, next.ID); err != nil {
			return err
		}
		if err := tx.UpdateRequest(ctx, next, StatusPending); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, s.refused("edit", err, zap.String("request_id", string(id)))
	}

	s.logger.Info("edit leave success", zap.String("request_id", string(id)))
	s.publish(ctx, actor, out, StatusPending, "edited")
	return &out, nil
}

// Delete removes a PENDING request. Decided requests stay as the audit trail.
func (s *RequestService) Delete(ctx context.Context, actor generic.Actor, id generic.RecordID) error {
	var removed LeaveRequest
	err := s.Store.WithTx(ctx, func(tx Store) error {
		cur, err := s.loadOwnPending(ctx, tx, actor, id, "delete")
		if err != nil {
			return err
		}
		removed = *cur
		return tx.DeleteRequest(ctx, id, StatusPending)
	})
	if err != nil {
		return s.refused("delete", err, zap.String("request_id", string(id)))
	}

	s.logger.Info("delete leave success", zap.String("request_id", string(id)))
	s.Events.Publish(ctx, generic.StatusChanged{
		Kind:      generic.KindLeaveRequest,
		RecordID:  removed.ID,
		SubjectID: removed.UserID,
		ActorID:   actor.ID,
		From:      string(StatusPending),
		To:        generic.StatusDeleted,
		At:        s.Ledger.Clock.Now(),
	})
	return nil
}

// =============================================================================
// APPROVE / REJECT - by an authorized approver, while PENDING
// =============================================================================

// Approve debits the balance (for tracked leave types) and marks the request APPROVED.
func (s *RequestService) Approve(ctx context.Context, actor generic.Actor, id generic.RecordID) (*LeaveRequest, error) {
	return s.decide(ctx, actor, id, StatusApproved, "")
}

// Reject marks the request REJECTED. A reason is required.
func (s *RequestService) Reject(ctx context.Context, actor generic.Actor, id generic.RecordID, reason string) (*LeaveRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, s.refused("reject", &generic.ValidationError{Field: "reject_reason", Reason: "a reason is required to reject"})
	}
	return s.decide(ctx, actor, id, StatusRejected, reason)
}

func (s *RequestService) decide(ctx context.Context, actor generic.Actor, id generic.RecordID, to RequestStatus, reason string) (*LeaveRequest, error) {
	action := "approve"
	if to == StatusRejected {
		action = "reject"
	}
	s.logger.Debug(action+" leave requested",
		zap.String("actor_id", string(actor.ID)),
		zap.String("request_id", string(id)),
	)

	// Authorization reads the user directory, so it runs before the write
	// transaction opens. The subject of a request never changes.
	cur, err := s.Store.GetRequest(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load leave request %s: %w", id, err)
	}
	if cur == nil {
		return nil, s.refused(action, &generic.NotFoundError{Kind: "leave request", ID: string(id)})
	}
	if err := s.authorizeApprover(ctx, actor, cur.UserID, action); err != nil {
		return nil, s.refused(action, err, zap.String("request_id", string(id)))
	}

	var out LeaveRequest
	err = s.Store.WithTx(ctx, func(tx Store) error {
		cur, err := tx.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if cur == nil {
			return &generic.NotFoundError{Kind: "leave request", ID: string(id)}
		}
		if cur.Status.IsTerminal() {
			return &generic.InvalidStateTransitionError{RecordID: id, From: string(cur.Status), Action: action}
		}

		now := s.Ledger.Clock.Now()
		next := *cur
		next.ApproverID = actor.ID
		next.UpdatedAt = now

		switch to {
		case StatusApproved:
			if s.Ledger.Policies.IsTracked(cur.LeaveType) {
				key := BalanceKey{UserID: cur.UserID, Year: cur.BalanceYear, LeaveType: cur.LeaveType}
				b, err := s.Ledger.EnsureBalance(ctx, tx, key)
				if err != nil {
					return err
				}
				if err := s.Ledger.Debit(ctx, tx, b, cur.Days); err != nil {
					return err
				}
			}
			next.Status = StatusApproved
			next.ApprovedAt = &now
		case StatusRejected:
			next.Status = StatusRejected
			next.RejectedAt = &now
			next.RejectReason = reason
		}

		if err := tx.UpdateRequest(ctx, next, StatusPending); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, s.refused(action, err, zap.String("request_id", string(id)))
	}

	s.logger.Info(action+" leave success",
		zap.String("request_id", string(id)),
		zap.String("approver_id", string(actor.ID)),
	)
	s.publish(ctx, actor, out, StatusPending, reason)
	return &out, nil
}

// authorizeApprover: managers and wider, in scope, never on their own request.
func (s *RequestService) authorizeApprover(ctx context.Context, actor generic.Actor, subject generic.UserID, action string) error {
	if err := generic.RequireRole(actor, generic.RoleManager, action+" leave requests"); err != nil {
		return err
	}
	if actor.ID == subject {
		return &generic.ForbiddenError{ActorID: actor.ID, SubjectID: subject, Action: action + " own leave request"}
	}
	return s.Access.AuthorizeAct(ctx, actor, subject, action+" leave requests")
}

// =============================================================================
// READS
// =============================================================================

// Get returns a request the actor may view.
func (s *RequestService) Get(ctx context.Context, actor generic.Actor, id generic.RecordID) (*LeaveRequest, error) {
	r, err := s.Store.GetRequest(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load leave request %s: %w", id, err)
	}
	if r == nil {
		return nil, &generic.NotFoundError{Kind: "leave request", ID: string(id)}
	}
	if err := s.Access.AuthorizeView(ctx, actor, r.UserID); err != nil {
		return nil, err
	}
	return r, nil
}

// List returns requests inside the actor's scope. A non-empty userID narrows the
// scope to that subject and fails with ErrForbidden when it is out of scope.
func (s *RequestService) List(ctx context.Context, actor generic.Actor, userID generic.UserID, status RequestStatus, year int) ([]LeaveRequest, error) {
	scope, err := s.Access.ScopeListQuery(ctx, actor)
	if err != nil {
		return nil, err
	}
	scope, err = s.Access.NarrowTo(ctx, actor, scope, userID)
	if err != nil {
		return nil, err
	}
	return s.Store.ListRequests(ctx, RequestFilter{Subjects: scope, Status: status, Year: year})
}

// Balances returns the stored balance rows of a user for a year.
func (s *RequestService) Balances(ctx context.Context, actor generic.Actor, userID generic.UserID, year int) ([]LeaveBalance, error) {
	if err := s.Access.AuthorizeView(ctx, actor, userID); err != nil {
		return nil, err
	}
	return s.Store.ListBalances(ctx, userID, year)
}

// History returns the status-change trail of a request the actor may view.
func (s *RequestService) History(ctx context.Context, actor generic.Actor, id generic.RecordID) ([]generic.StatusChanged, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	if s.Audit == nil {
		return []generic.StatusChanged{}, nil
	}
	return s.Audit.StatusChangesFor(ctx, generic.KindLeaveRequest, id)
}

// =============================================================================
// ADMIN - initialize / adjust allotment
// =============================================================================

// SetAllotment initializes or adjusts a user's yearly allotment. Company admins
// and wider only.
func (s *RequestService) SetAllotment(ctx context.Context, actor generic.Actor, key BalanceKey, total decimal.Decimal) (*LeaveBalance, error) {
	if key.LeaveType == "" {
		key.LeaveType = PaidLeave
	}
	if err := generic.RequireRole(actor, generic.RoleCompany, "set leave allotments"); err != nil {
		return nil, s.refused("set allotment", err)
	}
	if _, err := s.Access.RequireUser(ctx, key.UserID); err != nil {
		return nil, s.refused("set allotment", err)
	}
	if err := s.Access.AuthorizeAct(ctx, actor, key.UserID, "set leave allotments"); err != nil {
		return nil, s.refused("set allotment", err)
	}
	if key.Year < 1 {
		return nil, s.refused("set allotment", &generic.ValidationError{Field: "year", Reason: "must be a calendar year"})
	}

	var out LeaveBalance
	var before decimal.Decimal
	err := s.Store.WithTx(ctx, func(tx Store) error {
		if prev, err := tx.GetBalance(ctx, key); err != nil {
			return err
		} else if prev != nil {
			before = prev.TotalDays
		}
		b, err := s.Ledger.SetAllotment(ctx, tx, key, total)
		if err != nil {
			return err
		}
		out = *b
		return nil
	})
	if err != nil {
		return nil, s.refused("set allotment", err, zap.String("user_id", string(key.UserID)))
	}

	s.logger.Info("set allotment success",
		zap.String("user_id", string(key.UserID)),
		zap.Int("year", key.Year),
		zap.String("total_days", out.TotalDays.String()),
	)
	s.Events.Publish(ctx, generic.StatusChanged{
		Kind:      generic.KindLeaveBalance,
		RecordID:  out.ID,
		SubjectID: key.UserID,
		ActorID:   actor.ID,
		From:      before.String(),
		To:        out.TotalDays.String(),
		Reason:    "allotment",
		At:        s.Ledger.Clock.Now(),
	})
	return &out, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func validateInput(in SubmitInput) error {
	if !in.LeaveType.Valid() {
		return &generic.ValidationError{Field: "leave_type", Reason: fmt.Sprintf("unknown leave type %q", in.LeaveType)}
	}
	if in.Interval.End == nil {
		return &generic.ValidationError{Field: "end_date", Reason: "leave requests need an end date"}
	}
	if err := in.Interval.Validate(); err != nil {
		return err
	}
	if in.Days.LessThan(generic.HalfDay) {
		return &generic.ValidationError{Field: "days", Reason: "must be at least 0.5"}
	}
	if !generic.IsHalfDayMultiple(in.Days) {
		return &generic.ValidationError{Field: "days", Reason: "must be a multiple of 0.5"}
	}
	span := decimal.NewFromInt(int64(in.Interval.CalendarDays()))
	if in.Days.GreaterThan(span) {
		return &generic.ValidationError{
			Field:  "days",
			Reason: fmt.Sprintf("%s days do not fit in %s", in.Days, in.Interval),
		}
	}
	return nil
}

// loadOwnPending loads a request for a subject-only mutation.
func (s *RequestService) loadOwnPending(ctx context.Context, tx Store, actor generic.Actor, id generic.RecordID, action string) (*LeaveRequest, error) {
	cur, err := tx.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, &generic.NotFoundError{Kind: "leave request", ID: string(id)}
	}
	if cur.UserID != actor.ID {
		return nil, &generic.ForbiddenError{ActorID: actor.ID, SubjectID: cur.UserID, Action: action + " leave request"}
	}
	if cur.Status.IsTerminal() {
		return nil, &generic.InvalidStateTransitionError{RecordID: id, From: string(cur.Status), Action: action}
	}
	return cur, nil
}

// checkSufficient is the advisory balance check run at submission and edit.
func (s *RequestService) checkSufficient(ctx context.Context, tx Store, req LeaveRequest) error {
	if !s.Ledger.Policies.IsTracked(req.LeaveType) {
		return nil
	}
	key := BalanceKey{UserID: req.UserID, Year: req.BalanceYear, LeaveType: req.LeaveType}
	b, err := s.Ledger.EnsureBalance(ctx, tx, key)
	if err != nil {
		return err
	}
	if !CheckSufficient(b, req.Days) {
		return insufficient(b, req.Days)
	}
	return nil
}

func (s *RequestService) publish(ctx context.Context, actor generic.Actor, r LeaveRequest, from RequestStatus, reason string) {
	s.Events.Publish(ctx, generic.StatusChanged{
		Kind:      generic.KindLeaveRequest,
		RecordID:  r.ID,
		SubjectID: r.UserID,
		ActorID:   actor.ID,
		From:      string(from),
		To:        string(r.Status),
		Reason:    reason,
		At:        r.UpdatedAt,
	})
}

// refused logs a reported outcome at Warn and infrastructure faults at Error.
func (s *RequestService) refused(op string, err error, fields ...zap.Field) error {
	fields = append(fields, zap.String("code", generic.Kind(err)), zap.Error(err))
	if generic.IsClientError(err) {
		s.logger.Warn(op+" leave refused", fields...)
	} else {
		s.logger.Error(op+" leave failed", fields...)
	}
	return err
}
