package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/warp/timekeeper/generic"
	"github.com/warp/timekeeper/schedule"
)

// =============================================================================
// SCHEDULE STORE (schedule.TxStore)
// =============================================================================

// ScheduleStore is the work-schedule view of the database.
type ScheduleStore struct {
	scheduleRepo
	parent *Store
}

// Schedules returns the schedule.TxStore view.
func (s *Store) Schedules() *ScheduleStore {
	return &ScheduleStore{scheduleRepo: scheduleRepo{q: s.db}, parent: s}
}

// WithTx executes fn within a database transaction.
func (ss *ScheduleStore) WithTx(ctx context.Context, fn func(schedule.Store) error) error {
	return ss.parent.withTx(ctx, func(q querier) error {
		return fn(scheduleRepo{q: q})
	})
}

type scheduleRepo struct {
	q querier
}

// IntervalsForSubject returns the subject's assignments overlapping window.
// A NULL end_date is open-ended.
func (r scheduleRepo) IntervalsForSubject(ctx context.Context, subject generic.UserID, window generic.Interval) ([]generic.Span, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+assignmentColumns+`
		FROM user_work_schedules
		WHERE user_id = ? AND start_date <= ? AND (end_date IS NULL OR end_date >= ?)`,
		subject, window.EndOrFarFuture().String(), window.Start.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignment intervals: %w", err)
	}
	as, err := scanAssignments(rows)
	if err != nil {
		return nil, err
	}
	spans := make([]generic.Span, 0, len(as))
	for _, a := range as {
		spans = append(spans, a.Span())
	}
	return spans, nil
}

// =============================================================================
// TEMPLATES
// =============================================================================

const templateColumns = `id, company_id, name, standard_hours, overtime_threshold, break_minutes,
	is_flex_time, flex_time_start, flex_time_end, core_time_start, core_time_end,
	is_default, created_at, updated_at`

func (r scheduleRepo) GetTemplate(ctx context.Context, id generic.RecordID) (*schedule.WorkSchedule, error) {
	rows, err := r.q.QueryContext(ctx, "SELECT "+templateColumns+" FROM work_schedules WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("failed to get work schedule: %w", err)
	}
	ws, err := scanTemplates(rows)
	if err != nil || len(ws) == 0 {
		return nil, err
	}
	return &ws[0], nil
}

func (r scheduleRepo) ListTemplates(ctx context.Context, company generic.CompanyID) ([]schedule.WorkSchedule, error) {
	query := "SELECT " + templateColumns + " FROM work_schedules"
	var args []any
	if company != "" {
		query += " WHERE company_id = ?"
		args = append(args, company)
	}
	query += " ORDER BY company_id ASC, name ASC"

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list work schedules: %w", err)
	}
	return scanTemplates(rows)
}

func (r scheduleRepo) InsertTemplate(ctx context.Context, w schedule.WorkSchedule) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO work_schedules (`+templateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.CompanyID, w.Name, w.StandardHours.String(), w.OvertimeThreshold.String(), w.BreakMinutes,
		w.IsFlexTime, w.FlexTimeStart, w.FlexTimeEnd, w.CoreTimeStart, w.CoreTimeEnd,
		w.IsDefault, formatTime(w.CreatedAt), formatTime(w.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("work schedule %s: %w", w.ID, generic.ErrConcurrentModification)
		}
		return fmt.Errorf("failed to insert work schedule: %w", err)
	}
	return nil
}

func (r scheduleRepo) UpdateTemplate(ctx context.Context, w schedule.WorkSchedule) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE work_schedules SET
			name = ?, standard_hours = ?, overtime_threshold = ?, break_minutes = ?,
			is_flex_time = ?, flex_time_start = ?, flex_time_end = ?, core_time_start = ?, core_time_end = ?,
			is_default = ?, updated_at = ?
		WHERE id = ?`,
		w.Name, w.StandardHours.String(), w.OvertimeThreshold.String(), w.BreakMinutes,
		w.IsFlexTime, w.FlexTimeStart, w.FlexTimeEnd, w.CoreTimeStart, w.CoreTimeEnd,
		w.IsDefault, formatTime(w.UpdatedAt),
		w.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("company %s already has a default work schedule: %w", w.CompanyID, generic.ErrConcurrentModification)
		}
		return fmt.Errorf("failed to update work schedule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &generic.NotFoundError{Kind: "work schedule", ID: string(w.ID)}
	}
	return nil
}

func (r scheduleRepo) ClearDefault(ctx context.Context, company generic.CompanyID, keep generic.RecordID) error {
	_, err := r.q.ExecContext(ctx,
		"UPDATE work_schedules SET is_default = FALSE WHERE company_id = ? AND is_default AND id <> ?",
		company, keep,
	)
	if err != nil {
		return fmt.Errorf("failed to clear default work schedule: %w", err)
	}
	return nil
}

func (r scheduleRepo) DefaultTemplate(ctx context.Context, company generic.CompanyID) (*schedule.WorkSchedule, error) {
	rows, err := r.q.QueryContext(ctx,
		"SELECT "+templateColumns+" FROM work_schedules WHERE company_id = ? AND is_default",
		company,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get default work schedule: %w", err)
	}
	ws, err := scanTemplates(rows)
	if err != nil || len(ws) == 0 {
		return nil, err
	}
	return &ws[0], nil
}

func scanTemplates(rows *sql.Rows) ([]schedule.WorkSchedule, error) {
	defer rows.Close()

	out := []schedule.WorkSchedule{}
	for rows.Next() {
		var (
			w                    schedule.WorkSchedule
			hours, overtime      string
			createdAt, updatedAt string
		)
		err := rows.Scan(
			&w.ID, &w.CompanyID, &w.Name, &hours, &overtime, &w.BreakMinutes,
			&w.IsFlexTime, &w.FlexTimeStart, &w.FlexTimeEnd, &w.CoreTimeStart, &w.CoreTimeEnd,
			&w.IsDefault, &createdAt, &updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan work schedule: %w", err)
		}
		if w.StandardHours, err = parseDecimal(hours); err != nil {
			return nil, err
		}
		if w.OvertimeThreshold, err = parseDecimal(overtime); err != nil {
			return nil, err
		}
		if err := parseStamps(&w.CreatedAt, &w.UpdatedAt, createdAt, updatedAt); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// =============================================================================
// ASSIGNMENTS
// =============================================================================

const assignmentColumns = `id, user_id, work_schedule_id, start_date, end_date, created_at, updated_at`

func (r scheduleRepo) GetAssignment(ctx context.Context, id generic.RecordID) (*schedule.UserWorkSchedule, error) {
	rows, err := r.q.QueryContext(ctx, "SELECT "+assignmentColumns+" FROM user_work_schedules WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	as, err := scanAssignments(rows)
	if err != nil || len(as) == 0 {
		return nil, err
	}
	return &as[0], nil
}

func (r scheduleRepo) ListAssignments(ctx context.Context, userID generic.UserID) ([]schedule.UserWorkSchedule, error) {
	rows, err := r.q.QueryContext(ctx,
		"SELECT "+assignmentColumns+" FROM user_work_schedules WHERE user_id = ? ORDER BY start_date ASC",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	return scanAssignments(rows)
}

func (r scheduleRepo) InsertAssignment(ctx context.Context, a schedule.UserWorkSchedule) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO user_work_schedules (`+assignmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.WorkScheduleID, a.Interval.Start.String(), formatDatePtr(a.Interval.End),
		formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("assignment %s already exists: %w", a.ID, generic.ErrConcurrentModification)
		}
		return fmt.Errorf("failed to insert assignment: %w", err)
	}
	return nil
}

func (r scheduleRepo) UpdateAssignment(ctx context.Context, a schedule.UserWorkSchedule) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE user_work_schedules SET work_schedule_id = ?, start_date = ?, end_date = ?, updated_at = ?
		WHERE id = ?`,
		a.WorkScheduleID, a.Interval.Start.String(), formatDatePtr(a.Interval.End), formatTime(a.UpdatedAt),
		a.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update assignment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &generic.NotFoundError{Kind: "work schedule assignment", ID: string(a.ID)}
	}
	return nil
}

func (r scheduleRepo) DeleteAssignment(ctx context.Context, id generic.RecordID) error {
	res, err := r.q.ExecContext(ctx, "DELETE FROM user_work_schedules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete assignment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &generic.NotFoundError{Kind: "work schedule assignment", ID: string(id)}
	}
	return nil
}

func scanAssignments(rows *sql.Rows) ([]schedule.UserWorkSchedule, error) {
	defer rows.Close()

	out := []schedule.UserWorkSchedule{}
	for rows.Next() {
		var (
			a                    schedule.UserWorkSchedule
			start                string
			end                  sql.NullString
			createdAt, updatedAt string
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.WorkScheduleID, &start, &end, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		s, err := parseDate(start)
		if err != nil {
			return nil, err
		}
		e, err := parseDatePtr(end)
		if err != nil {
			return nil, err
		}
		a.Interval = generic.Interval{Start: s, End: e}
		if err := parseStamps(&a.CreatedAt, &a.UpdatedAt, createdAt, updatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
