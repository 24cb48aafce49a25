/*
assignment.go - WorkScheduleAssignmentWorkflow

PURPOSE:
  Assigns work-schedule templates to users over date ranges and resolves the
  schedule in force on a given day.

RULES:
  - An assignment may be open-ended (End nil, read as +∞).
  - No two assignments of a user overlap. Every row is active: there is no
    status, and Remove is a hard delete.
  - Update excludes the record's own id from the conflict check.
  - The template must belong to the subject's company.

RESOLVE CURRENT:
  1. assignment containing today (most recent start wins)
  2. the default template of the subject's company
  3. ErrNoScheduleResolved

SEE ALSO:
  - template.go: default toggling
  - generic/conflict.go: the shared overlap check
*/
package schedule

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/warp/timekeeper/generic"
)

// ErrNoScheduleResolved is returned when a user has neither a current
// assignment nor a company default.
var ErrNoScheduleResolved = fmt.Errorf("no schedule resolved: %w", generic.ErrNotFound)

// AssignInput describes an assignment. A nil Interval.End is open-ended.
type AssignInput struct {
	WorkScheduleID generic.RecordID
	Interval       generic.Interval
}

// AssignmentService implements the assignment workflow.
type AssignmentService struct {
	Store   TxStore
	Access  *generic.AccessScopeResolver
	Checker *generic.ConflictChecker
	Clock   generic.Clock
	Events  generic.EventSink

	logger *zap.Logger
}

func NewAssignmentService(
	store TxStore,
	access *generic.AccessScopeResolver,
	clock generic.Clock,
	events generic.EventSink,
	logger ...*zap.Logger,
) *AssignmentService {
	l := zap.L().Named("schedule.assignment")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("schedule.assignment")
	}
	if clock == nil {
		clock = generic.SystemClock{}
	}
	if events == nil {
		events = generic.NopSink{}
	}
	return &AssignmentService{
		Store:   store,
		Access:  access,
		Checker: generic.NewConflictChecker(generic.AllActive),
		Clock:   clock,
		Events:  events,
		logger:  l,
	}
}

// =============================================================================
// WRITES
// =============================================================================

// Assign creates an assignment for userID.
func (s *AssignmentService) Assign(ctx context.Context, actor generic.Actor, userID generic.UserID, in AssignInput) (*UserWorkSchedule, error) {
	s.logger.Debug("assign schedule requested",
		zap.String("actor_id", string(actor.ID)),
		zap.String("user_id", string(userID)),
		zap.String("work_schedule_id", string(in.WorkScheduleID)),
		zap.Stringer("interval", in.Interval),
	)

	subject, err := s.authorize(ctx, actor, userID)
	if err != nil {
		return nil, s.refused("assign", err, zap.String("user_id", string(userID)))
	}
	if err := in.Interval.Validate(); err != nil {
		return nil, s.refused("assign", err)
	}

	now := s.Clock.Now()
	a := UserWorkSchedule{
		ID:             generic.NewRecordID(),
		UserID:         subject.ID,
		WorkScheduleID: in.WorkScheduleID,
		Interval:       in.Interval,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err = s.Store.WithTx(ctx, func(tx Store) error {
		if err := checkTemplate(ctx, tx, subject, in.WorkScheduleID); err != nil {
			return err
		}
		if err := s.Checker.Check(ctx, tx, a.UserID, a.Interval, ""); err != nil {
			return err
		}
		return tx.InsertAssignment(ctx, a)
	})
	if err != nil {
		return nil, s.refused("assign", err, zap.String("user_id", string(userID)))
	}

	s.logger.Info("assign schedule success",
		zap.String("assignment_id", string(a.ID)),
		zap.String("user_id", string(a.UserID)),
	)
	s.publish(ctx, actor, a, "", "ASSIGNED")
	return &a, nil
}

// Update moves an assignment to a new template and/or range.
func (s *AssignmentService) Update(ctx context.Context, actor generic.Actor, id generic.RecordID, in AssignInput) (*UserWorkSchedule, error) {
	cur, subject, err := s.loadAuthorized(ctx, actor, id)
	if err != nil {
		return nil, s.refused("update", err, zap.String("assignment_id", string(id)))
	}
	if err := in.Interval.Validate(); err != nil {
		return nil, s.refused("update", err)
	}

	var out UserWorkSchedule
	err = s.Store.WithTx(ctx, func(tx Store) error {
		fresh, err := tx.GetAssignment(ctx, id)
		if err != nil {
			return err
		}
		if fresh == nil {
			return &generic.NotFoundError{Kind: "work schedule assignment", ID: string(id)}
		}
		if err := checkTemplate(ctx, tx, subject, in.WorkScheduleID); err != nil {
			return err
		}
		if err := s.Checker.Check(ctx, tx, fresh.UserID, in.Interval, fresh.ID); err != nil {
			return err
		}
		next := *fresh
		next.WorkScheduleID = in.WorkScheduleID
		next.Interval = in.Interval
		next.UpdatedAt = s.Clock.Now()
		if err := tx.UpdateAssignment(ctx, next); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, s.refused("update", err, zap.String("assignment_id", string(id)))
	}

	s.logger.Info("update schedule success",
		zap.String("assignment_id", string(id)),
		zap.String("user_id", string(cur.UserID)),
	)
	s.publish(ctx, actor, out, "ASSIGNED", "UPDATED")
	return &out, nil
}

// Remove hard-deletes an assignment.
func (s *AssignmentService) Remove(ctx context.Context, actor generic.Actor, id generic.RecordID) error {
	cur, _, err := s.loadAuthorized(ctx, actor, id)
	if err != nil {
		return s.refused("remove", err, zap.String("assignment_id", string(id)))
	}
	err = s.Store.WithTx(ctx, func(tx Store) error {
		return tx.DeleteAssignment(ctx, id)
	})
	if err != nil {
		return s.refused("remove", err, zap.String("assignment_id", string(id)))
	}

	s.logger.Info("remove schedule success", zap.String("assignment_id", string(id)))
	s.publish(ctx, actor, *cur, "ASSIGNED", generic.StatusDeleted)
	return nil
}

// =============================================================================
// READS
// =============================================================================

// List returns the assignments of a user, ordered by start date.
func (s *AssignmentService) List(ctx context.Context, actor generic.Actor, userID generic.UserID) ([]UserWorkSchedule, error) {
	if err := s.Access.AuthorizeView(ctx, actor, userID); err != nil {
		return nil, err
	}
	return s.Store.ListAssignments(ctx, userID)
}

// ResolveCurrent returns the schedule in force for userID today.
func (s *AssignmentService) ResolveCurrent(ctx context.Context, actor generic.Actor, userID generic.UserID) (*Resolution, error) {
	if err := s.Access.AuthorizeView(ctx, actor, userID); err != nil {
		return nil, err
	}
	subject, err := s.Access.RequireUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.ResolveOn(ctx, *subject, generic.Today(s.Clock))
}

// ResolveOn resolves the schedule of u on day without access checks.
func (s *AssignmentService) ResolveOn(ctx context.Context, u generic.User, day generic.Date) (*Resolution, error) {
	all, err := s.Store.ListAssignments(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}

	var current *UserWorkSchedule
	for i := range all {
		a := all[i]
		if !a.Interval.Contains(day) {
			continue
		}
		if current == nil || a.Interval.Start.After(current.Interval.Start) {
			current = &a
		}
	}
	if current != nil {
		w, err := s.Store.GetTemplate(ctx, current.WorkScheduleID)
		if err != nil {
			return nil, fmt.Errorf("load template %s: %w", current.WorkScheduleID, err)
		}
		if w != nil {
			return &Resolution{UserID: u.ID, Date: day, Source: SourceAssignment, Schedule: *w, Assignment: current}, nil
		}
		s.logger.Warn("assigned template missing, falling back to company default",
			zap.String("assignment_id", string(current.ID)),
			zap.String("work_schedule_id", string(current.WorkScheduleID)),
		)
	}

	if u.CompanyID != "" {
		def, err := s.Store.DefaultTemplate(ctx, u.CompanyID)
		if err != nil {
			return nil, fmt.Errorf("load default template: %w", err)
		}
		if def != nil {
			return &Resolution{UserID: u.ID, Date: day, Source: SourceCompanyDefault, Schedule: *def}, nil
		}
	}
	return nil, ErrNoScheduleResolved
}

// =============================================================================
// HELPERS
// =============================================================================

// authorize resolves the subject and checks the actor may assign to them.
// It reads the user directory and therefore runs before WithTx.
func (s *AssignmentService) authorize(ctx context.Context, actor generic.Actor, userID generic.UserID) (*generic.User, error) {
	subject, err := s.Access.RequireUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.Access.AuthorizeAct(ctx, actor, userID, "assign work schedules"); err != nil {
		return nil, err
	}
	return subject, nil
}

func (s *AssignmentService) loadAuthorized(ctx context.Context, actor generic.Actor, id generic.RecordID) (*UserWorkSchedule, *generic.User, error) {
	cur, err := s.Store.GetAssignment(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("load assignment %s: %w", id, err)
	}
	if cur == nil {
		return nil, nil, &generic.NotFoundError{Kind: "work schedule assignment", ID: string(id)}
	}
	subject, err := s.authorize(ctx, actor, cur.UserID)
	if err != nil {
		return nil, nil, err
	}
	return cur, subject, nil
}

// checkTemplate requires the template to exist and belong to the subject's company.
func checkTemplate(ctx context.Context, tx Store, subject *generic.User, id generic.RecordID) error {
	if id == "" {
		return &generic.ValidationError{Field: "work_schedule_id", Reason: "required"}
	}
	w, err := tx.GetTemplate(ctx, id)
	if err != nil {
		return err
	}
	if w == nil {
		return &generic.NotFoundError{Kind: "work schedule", ID: string(id)}
	}
	if w.CompanyID != subject.CompanyID {
		return &generic.ValidationError{
			Field:  "work_schedule_id",
			Reason: fmt.Sprintf("work schedule %s belongs to another company", id),
		}
	}
	return nil
}

func (s *AssignmentService) publish(ctx context.Context, actor generic.Actor, a UserWorkSchedule, from, to string) {
	s.Events.Publish(ctx, generic.StatusChanged{
		Kind:      generic.KindScheduleAssignment,
		RecordID:  a.ID,
		SubjectID: a.UserID,
		ActorID:   actor.ID,
		From:      from,
		To:        to,
		At:        s.Clock.Now(),
	})
}

func (s *AssignmentService) refused(op string, err error, fields ...zap.Field) error {
	return logOutcome(s.logger, op+" schedule", err, fields...)
}
