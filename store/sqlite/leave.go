package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/warp/timekeeper/generic"
	"github.com/warp/timekeeper/timeoff"
)

// =============================================================================
// LEAVE STORE (timeoff.TxStore)
// =============================================================================

// LeaveStore is the leave-domain view of the database.
type LeaveStore struct {
	leaveRepo
	parent *Store
}

// Leave returns the timeoff.TxStore view.
func (s *Store) Leave() *LeaveStore {
	return &LeaveStore{leaveRepo: leaveRepo{q: s.db}, parent: s}
}

// WithTx executes fn within a database transaction.
func (ls *LeaveStore) WithTx(ctx context.Context, fn func(timeoff.Store) error) error {
	return ls.parent.withTx(ctx, func(q querier) error {
		return fn(leaveRepo{q: q})
	})
}

type leaveRepo struct {
	q querier
}

const requestColumns = `id, user_id, leave_type, start_date, end_date, days, reason, status, balance_year,
	approver_id, approved_at, rejected_at, reject_reason, created_at, updated_at`

// IntervalsForSubject returns the subject's requests that overlap window.
// Status filtering is left to the conflict checker.
func (r leaveRepo) IntervalsForSubject(ctx context.Context, subject generic.UserID, window generic.Interval) ([]generic.Span, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, user_id, start_date, end_date, status
		FROM leave_requests
		WHERE user_id = ? AND start_date <= ? AND end_date >= ?`,
		subject, window.EndOrFarFuture().String(), window.Start.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query leave intervals: %w", err)
	}
	defer rows.Close()

	var spans []generic.Span
	for rows.Next() {
		var sp generic.Span
		var start, end string
		if err := rows.Scan(&sp.ID, &sp.SubjectID, &start, &end, &sp.Status); err != nil {
			return nil, fmt.Errorf("failed to scan leave interval: %w", err)
		}
		s, err := parseDate(start)
		if err != nil {
			return nil, err
		}
		e, err := parseDate(end)
		if err != nil {
			return nil, err
		}
		sp.Interval = generic.Bounded(s, e)
		spans = append(spans, sp)
	}
	return spans, rows.Err()
}

func (r leaveRepo) GetRequest(ctx context.Context, id generic.RecordID) (*timeoff.LeaveRequest, error) {
	rows, err := r.q.QueryContext(ctx, "SELECT "+requestColumns+" FROM leave_requests WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("failed to get leave request: %w", err)
	}
	reqs, err := scanRequests(rows)
	if err != nil || len(reqs) == 0 {
		return nil, err
	}
	return &reqs[0], nil
}

func (r leaveRepo) ListRequests(ctx context.Context, f timeoff.RequestFilter) ([]timeoff.LeaveRequest, error) {
	var where []string
	var args []any
	if !f.Subjects.Unrestricted {
		if len(f.Subjects.SubjectIDs) == 0 {
			return []timeoff.LeaveRequest{}, nil
		}
		where = append(where, "user_id IN ("+placeholders(len(f.Subjects.SubjectIDs))+")")
		for _, id := range f.Subjects.SubjectIDs {
			args = append(args, id)
		}
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.Year != 0 {
		where = append(where, "start_date <= ? AND end_date >= ?")
		args = append(args, generic.EndOfYear(f.Year).String(), generic.StartOfYear(f.Year).String())
	}

	query := "SELECT " + requestColumns + " FROM leave_requests"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY start_date ASC, created_at ASC"

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list leave requests: %w", err)
	}
	return scanRequests(rows)
}

func (r leaveRepo) InsertRequest(ctx context.Context, lr timeoff.LeaveRequest) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO leave_requests (`+requestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lr.ID, lr.UserID, lr.LeaveType,
		lr.Interval.Start.String(), formatDatePtr(lr.Interval.End),
		lr.Days.String(), lr.Reason, lr.Status, lr.BalanceYear,
		lr.ApproverID, formatTimePtr(lr.ApprovedAt), formatTimePtr(lr.RejectedAt), lr.RejectReason,
		formatTime(lr.CreatedAt), formatTime(lr.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("leave request %s already exists: %w", lr.ID, generic.ErrConcurrentModification)
		}
		return fmt.Errorf("failed to insert leave request: %w", err)
	}
	return nil
}

// UpdateRequest rewrites a request only if it is still in the expected status.
func (r leaveRepo) UpdateRequest(ctx context.Context, lr timeoff.LeaveRequest, expected timeoff.RequestStatus) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE leave_requests SET
			leave_type = ?, start_date = ?, end_date = ?, days = ?, reason = ?, status = ?,
			approver_id = ?, approved_at = ?, rejected_at = ?, reject_reason = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		lr.LeaveType, lr.Interval.Start.String(), formatDatePtr(lr.Interval.End), lr.Days.String(), lr.Reason, lr.Status,
		lr.ApproverID, formatTimePtr(lr.ApprovedAt), formatTimePtr(lr.RejectedAt), lr.RejectReason, formatTime(lr.UpdatedAt),
		lr.ID, expected,
	)
	if err != nil {
		return fmt.Errorf("failed to update leave request: %w", err)
	}
	return r.checkRequestWrite(ctx, res, lr.ID, expected)
}

func (r leaveRepo) DeleteRequest(ctx context.Context, id generic.RecordID, expected timeoff.RequestStatus) error {
	res, err := r.q.ExecContext(ctx, "DELETE FROM leave_requests WHERE id = ? AND status = ?", id, expected)
	if err != nil {
		return fmt.Errorf("failed to delete leave request: %w", err)
	}
	return r.checkRequestWrite(ctx, res, id, expected)
}

// checkRequestWrite tells a missing row apart from one in another status.
func (r leaveRepo) checkRequestWrite(ctx context.Context, res sql.Result, id generic.RecordID, expected timeoff.RequestStatus) error {
	err := affectedOne(res, fmt.Sprintf("leave request %s not %s", id, expected))
	if !errors.Is(err, generic.ErrConcurrentModification) {
		return err
	}
	var status string
	switch qerr := r.q.QueryRowContext(ctx, "SELECT status FROM leave_requests WHERE id = ?", id).Scan(&status); {
	case errors.Is(qerr, sql.ErrNoRows):
		return &generic.NotFoundError{Kind: "leave request", ID: string(id)}
	case qerr != nil:
		return fmt.Errorf("failed to reload leave request: %w", qerr)
	}
	return err
}

func scanRequests(rows *sql.Rows) ([]timeoff.LeaveRequest, error) {
	defer rows.Close()

	out := []timeoff.LeaveRequest{}
	for rows.Next() {
		var (
			lr                     timeoff.LeaveRequest
			start, end, days       string
			approvedAt, rejectedAt sql.NullString
			createdAt, updatedAt   string
		)
		err := rows.Scan(
			&lr.ID, &lr.UserID, &lr.LeaveType, &start, &end, &days, &lr.Reason, &lr.Status, &lr.BalanceYear,
			&lr.ApproverID, &approvedAt, &rejectedAt, &lr.RejectReason, &createdAt, &updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan leave request: %w", err)
		}
		s, err := parseDate(start)
		if err != nil {
			return nil, err
		}
		e, err := parseDate(end)
		if err != nil {
			return nil, err
		}
		lr.Interval = generic.Bounded(s, e)
		if lr.Days, err = parseDecimal(days); err != nil {
			return nil, err
		}
		if lr.ApprovedAt, err = parseTimePtr(approvedAt); err != nil {
			return nil, err
		}
		if lr.RejectedAt, err = parseTimePtr(rejectedAt); err != nil {
			return nil, err
		}
		if err := parseStamps(&lr.CreatedAt, &lr.UpdatedAt, createdAt, updatedAt); err != nil {
			return nil, err
		}
		out = append(out, lr)
	}
	return out, rows.Err()
}

// =============================================================================
// BALANCES
// =============================================================================

const balanceColumns = `id, user_id, year, leave_type, total_days, used_days, remaining_days,
	expiry_date, version, created_at, updated_at`

func (r leaveRepo) GetBalance(ctx context.Context, key timeoff.BalanceKey) (*timeoff.LeaveBalance, error) {
	rows, err := r.q.QueryContext(ctx,
		"SELECT "+balanceColumns+" FROM leave_balances WHERE user_id = ? AND year = ? AND leave_type = ?",
		key.UserID, key.Year, key.LeaveType,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	bs, err := scanBalances(rows)
	if err != nil || len(bs) == 0 {
		return nil, err
	}
	return &bs[0], nil
}

// ListBalances returns a user's balances; year 0 means every year.
func (r leaveRepo) ListBalances(ctx context.Context, userID generic.UserID, year int) ([]timeoff.LeaveBalance, error) {
	query := "SELECT " + balanceColumns + " FROM leave_balances WHERE user_id = ?"
	args := []any{userID}
	if year != 0 {
		query += " AND year = ?"
		args = append(args, year)
	}
	query += " ORDER BY year ASC, leave_type ASC"

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list balances: %w", err)
	}
	return scanBalances(rows)
}

func (r leaveRepo) InsertBalance(ctx context.Context, b timeoff.LeaveBalance) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO leave_balances (`+balanceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Key.UserID, b.Key.Year, b.Key.LeaveType,
		b.TotalDays.String(), b.UsedDays.String(), b.RemainingDays.String(),
		b.ExpiryDate.String(), b.Version, formatTime(b.CreatedAt), formatTime(b.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("balance %s/%d/%s already exists: %w", b.Key.UserID, b.Key.Year, b.Key.LeaveType, generic.ErrConcurrentModification)
		}
		return fmt.Errorf("failed to insert balance: %w", err)
	}
	return nil
}

// UpdateBalance writes b only if the stored row is still at expectedVersion.
func (r leaveRepo) UpdateBalance(ctx context.Context, b timeoff.LeaveBalance, expectedVersion int64) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE leave_balances SET
			total_days = ?, used_days = ?, remaining_days = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?`,
		b.TotalDays.String(), b.UsedDays.String(), b.RemainingDays.String(), b.Version, formatTime(b.UpdatedAt),
		b.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	return affectedOne(res, fmt.Sprintf("balance %s not at version %d", b.ID, expectedVersion))
}

func scanBalances(rows *sql.Rows) ([]timeoff.LeaveBalance, error) {
	defer rows.Close()

	out := []timeoff.LeaveBalance{}
	for rows.Next() {
		var (
			b                      timeoff.LeaveBalance
			total, used, remaining string
			expiry                 string
			createdAt, updatedAt   string
		)
		err := rows.Scan(
			&b.ID, &b.Key.UserID, &b.Key.Year, &b.Key.LeaveType,
			&total, &used, &remaining, &expiry, &b.Version, &createdAt, &updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		if b.TotalDays, err = parseDecimal(total); err != nil {
			return nil, err
		}
		if b.UsedDays, err = parseDecimal(used); err != nil {
			return nil, err
		}
		if b.RemainingDays, err = parseDecimal(remaining); err != nil {
			return nil, err
		}
		if b.ExpiryDate, err = parseDate(expiry); err != nil {
			return nil, err
		}
		if err := parseStamps(&b.CreatedAt, &b.UpdatedAt, createdAt, updatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
