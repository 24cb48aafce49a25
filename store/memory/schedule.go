package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/warp/timekeeper/generic"
	"github.com/warp/timekeeper/schedule"
)

// ScheduleStore is the schedule.TxStore view of a memory Store.
type ScheduleStore struct {
	scheduleView
}

// Schedules returns the work-schedule view.
func (s *Store) Schedules() *ScheduleStore {
	return &ScheduleStore{scheduleView{view{s: s}}}
}

func (ss *ScheduleStore) WithTx(_ context.Context, fn func(schedule.Store) error) error {
	return ss.s.withTx(func() error {
		return fn(scheduleView{view{s: ss.s, inTx: true}})
	})
}

type scheduleView struct {
	view
}

func (v scheduleView) IntervalsForSubject(_ context.Context, subject generic.UserID, window generic.Interval) ([]generic.Span, error) {
	defer v.rlock()()
	var spans []generic.Span
	for _, a := range v.s.data.assignments {
		if a.UserID == subject {
			spans = append(spans, a.Span())
		}
	}
	return overlapping(spans, window), nil
}

// =============================================================================
// TEMPLATES
// =============================================================================

func (v scheduleView) GetTemplate(_ context.Context, id generic.RecordID) (*schedule.WorkSchedule, error) {
	defer v.rlock()()
	w, ok := v.s.data.templates[id]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (v scheduleView) ListTemplates(_ context.Context, company generic.CompanyID) ([]schedule.WorkSchedule, error) {
	defer v.rlock()()
	out := []schedule.WorkSchedule{}
	for _, w := range v.s.data.templates {
		if company == "" || w.CompanyID == company {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CompanyID != out[j].CompanyID {
			return out[i].CompanyID < out[j].CompanyID
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (v scheduleView) InsertTemplate(_ context.Context, w schedule.WorkSchedule) error {
	defer v.lock()()
	if _, exists := v.s.data.templates[w.ID]; exists {
		return fmt.Errorf("work schedule %s already exists: %w", w.ID, generic.ErrConcurrentModification)
	}
	if err := v.checkSingleDefault(w); err != nil {
		return err
	}
	v.s.data.templates[w.ID] = w
	return nil
}

func (v scheduleView) UpdateTemplate(_ context.Context, w schedule.WorkSchedule) error {
	defer v.lock()()
	if _, ok := v.s.data.templates[w.ID]; !ok {
		return &generic.NotFoundError{Kind: "work schedule", ID: string(w.ID)}
	}
	if err := v.checkSingleDefault(w); err != nil {
		return err
	}
	v.s.data.templates[w.ID] = w
	return nil
}

// checkSingleDefault mirrors the partial unique index of the SQLite schema.
func (v scheduleView) checkSingleDefault(w schedule.WorkSchedule) error {
	if !w.IsDefault {
		return nil
	}
	for id, other := range v.s.data.templates {
		if id != w.ID && other.CompanyID == w.CompanyID && other.IsDefault {
			return fmt.Errorf("company %s already has default %s: %w", w.CompanyID, id, generic.ErrConcurrentModification)
		}
	}
	return nil
}

func (v scheduleView) ClearDefault(_ context.Context, company generic.CompanyID, keep generic.RecordID) error {
	defer v.lock()()
	for id, w := range v.s.data.templates {
		if w.CompanyID == company && w.IsDefault && id != keep {
			w.IsDefault = false
			v.s.data.templates[id] = w
		}
	}
	return nil
}

func (v scheduleView) DefaultTemplate(_ context.Context, company generic.CompanyID) (*schedule.WorkSchedule, error) {
	defer v.rlock()()
	for _, w := range v.s.data.templates {
		if w.CompanyID == company && w.IsDefault {
			return &w, nil
		}
	}
	return nil, nil
}

// =============================================================================
// ASSIGNMENTS
// =============================================================================

func (v scheduleView) GetAssignment(_ context.Context, id generic.RecordID) (*schedule.UserWorkSchedule, error) {
	defer v.rlock()()
	a, ok := v.s.data.assignments[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (v scheduleView) ListAssignments(_ context.Context, userID generic.UserID) ([]schedule.UserWorkSchedule, error) {
	defer v.rlock()()
	out := []schedule.UserWorkSchedule{}
	for _, a := range v.s.data.assignments {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Interval.Start.Before(out[j].Interval.Start) })
	return out, nil
}

func (v scheduleView) InsertAssignment(_ context.Context, a schedule.UserWorkSchedule) error {
	defer v.lock()()
	if _, exists := v.s.data.assignments[a.ID]; exists {
		return fmt.Errorf("assignment %s already exists: %w", a.ID, generic.ErrConcurrentModification)
	}
	v.s.data.assignments[a.ID] = a
	return nil
}

func (v scheduleView) UpdateAssignment(_ context.Context, a schedule.UserWorkSchedule) error {
	defer v.lock()()
	if _, ok := v.s.data.assignments[a.ID]; !ok {
		return &generic.NotFoundError{Kind: "work schedule assignment", ID: string(a.ID)}
	}
	v.s.data.assignments[a.ID] = a
	return nil
}

func (v scheduleView) DeleteAssignment(_ context.Context, id generic.RecordID) error {
	defer v.lock()()
	if _, ok := v.s.data.assignments[id]; !ok {
		return &generic.NotFoundError{Kind: "work schedule assignment", ID: string(id)}
	}
	delete(v.s.data.assignments, id)
	return nil
}
