/*
Package sqlite provides a SQLite-backed implementation of the record stores.

PURPOSE:
  Implements the persistence interfaces of both domains using SQLite:

    generic.UserStore        users
    generic.StatusChangeLog  status_changes (append-only audit trail)
    timeoff.TxStore          Store.Leave():     leave_requests, leave_balances
    schedule.TxStore         Store.Schedules(): work_schedules, user_work_schedules

  The domain views are separate types because both domains expose an
  IntervalsForSubject method over different tables.

TRANSACTIONS:
  The DSN sets _txlock=immediate, so BeginTx issues BEGIN IMMEDIATE and takes
  the database write lock before the first read. Two check-then-write
  transactions therefore run one after the other and the second one sees
  the first one's rows. _busy_timeout makes the loser wait instead of
  failing with SQLITE_BUSY.

  Inside WithTx every statement goes through the *sql.Tx; never call the
  parent Store from within fn (a ":memory:" database has one connection).

CONDITIONAL WRITES:
  - leave_requests updates/deletes match on the expected status
  - leave_balances updates match on version
  - at most one default work schedule per company (partial unique index)
  A write that matches no row returns generic.ErrConcurrentModification.

ENCODING:
  Dates are TEXT "YYYY-MM-DD" (ordered lexically), a NULL end_date is
  open-ended, decimals are TEXT, timestamps are RFC3339Nano UTC.

WAL MODE:
  File databases use WAL: readers don't block the single writer.

USAGE:
  store, err := sqlite.New("./data/timekeeper.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  leave := store.Leave()       // timeoff.TxStore
  schedules := store.Schedules() // schedule.TxStore

SEE ALSO:
  - timeoff/store.go, schedule/store.go, generic/store.go: interfaces
  - store/memory: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/timekeeper/generic"
)

const busyTimeoutMS = 5000

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if isMemory(dbPath) {
		// Every new connection to ":memory:" is a fresh, empty database.
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func dsn(dbPath string) string {
	params := fmt.Sprintf("_foreign_keys=on&_txlock=immediate&_busy_timeout=%d", busyTimeoutMS)
	if !isMemory(dbPath) {
		params += "&_journal_mode=WAL"
	}
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + params
}

func isMemory(dbPath string) bool {
	return dbPath == ":memory:" || strings.Contains(dbPath, "mode=memory")
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection; used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Users (directory for access scoping)
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL,
		manager_id TEXT NOT NULL DEFAULT '',
		company_id TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_users_manager ON users(manager_id);
	CREATE INDEX IF NOT EXISTS idx_users_company ON users(company_id);

	-- Leave requests (decided rows are kept as the audit trail)
	CREATE TABLE IF NOT EXISTS leave_requests (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		leave_type TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		days TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		balance_year INTEGER NOT NULL,
		approver_id TEXT NOT NULL DEFAULT '',
		approved_at TEXT,
		rejected_at TEXT,
		reject_reason TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		CHECK (start_date <= end_date)
	);

	-- Conflict checks scan a subject's requests by date (hot path)
	CREATE INDEX IF NOT EXISTS idx_leave_requests_user_dates
		ON leave_requests(user_id, start_date, end_date);
	CREATE INDEX IF NOT EXISTS idx_leave_requests_status
		ON leave_requests(status);

	-- Leave balances (one row per user, year and leave type)
	CREATE TABLE IF NOT EXISTS leave_balances (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		leave_type TEXT NOT NULL,
		total_days TEXT NOT NULL,
		used_days TEXT NOT NULL,
		remaining_days TEXT NOT NULL,
		expiry_date TEXT NOT NULL,
		version INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(user_id, year, leave_type)
	);

	-- Work schedule templates
	CREATE TABLE IF NOT EXISTS work_schedules (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		name TEXT NOT NULL,
		standard_hours TEXT NOT NULL,
		overtime_threshold TEXT NOT NULL,
		break_minutes INTEGER NOT NULL DEFAULT 0,
		is_flex_time BOOLEAN NOT NULL DEFAULT FALSE,
		flex_time_start TEXT NOT NULL DEFAULT '',
		flex_time_end TEXT NOT NULL DEFAULT '',
		core_time_start TEXT NOT NULL DEFAULT '',
		core_time_end TEXT NOT NULL DEFAULT '',
		is_default BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_work_schedules_company
		ON work_schedules(company_id);

	-- CRITICAL: at most one default template per company
	CREATE UNIQUE INDEX IF NOT EXISTS idx_work_schedules_one_default
		ON work_schedules(company_id) WHERE is_default;

	-- Work schedule assignments (NULL end_date = open-ended)
	CREATE TABLE IF NOT EXISTS user_work_schedules (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		work_schedule_id TEXT NOT NULL REFERENCES work_schedules(id),
		start_date TEXT NOT NULL,
		end_date TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		CHECK (end_date IS NULL OR start_date <= end_date)
	);

	CREATE INDEX IF NOT EXISTS idx_user_work_schedules_user_dates
		ON user_work_schedules(user_id, start_date, end_date);

	-- Status changes (append-only)
	CREATE TABLE IF NOT EXISTS status_changes (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		record_id TEXT NOT NULL,
		subject_id TEXT NOT NULL DEFAULT '',
		actor_id TEXT NOT NULL DEFAULT '',
		from_status TEXT NOT NULL DEFAULT '',
		to_status TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_status_changes_record
		ON status_changes(kind, record_id, at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// QUERIER - *sql.DB or *sql.Tx
// =============================================================================

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn inside BEGIN IMMEDIATE ... COMMIT.
func (s *Store) withTx(ctx context.Context, fn func(q querier) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(sqlTx); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// =============================================================================
// USER STORE (generic.UserStore)
// =============================================================================

// SaveUser inserts or replaces a user.
func (s *Store) SaveUser(ctx context.Context, u generic.User) error {
	if u.ID == "" {
		return &generic.ValidationError{Field: "id", Reason: "required"}
	}
	query := `
		INSERT INTO users (id, name, email, role, manager_id, company_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			role = excluded.role,
			manager_id = excluded.manager_id,
			company_id = excluded.company_id
	`
	_, err := s.db.ExecContext(ctx, query,
		u.ID, u.Name, u.Email, u.Role, u.ManagerID, u.CompanyID,
	)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id generic.UserID) (*generic.User, error) {
	var u generic.User
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, email, role, manager_id, company_id FROM users WHERE id = ?",
		id,
	).Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.ManagerID, &u.CompanyID)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// ListUsers returns users matching every non-zero field of f.
func (s *Store) ListUsers(ctx context.Context, f generic.UserFilter) ([]generic.User, error) {
	var where []string
	var args []any
	if len(f.IDs) > 0 {
		where = append(where, "id IN ("+placeholders(len(f.IDs))+")")
		for _, id := range f.IDs {
			args = append(args, id)
		}
	}
	if f.ManagerID != "" {
		where = append(where, "manager_id = ?")
		args = append(args, f.ManagerID)
	}
	if f.CompanyID != "" {
		where = append(where, "company_id = ?")
		args = append(args, f.CompanyID)
	}

	query := "SELECT id, name, email, role, manager_id, company_id FROM users"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []generic.User{}
	for rows.Next() {
		var u generic.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.ManagerID, &u.CompanyID); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// =============================================================================
// STATUS CHANGE LOG (generic.StatusChangeLog)
// =============================================================================

// AppendStatusChange persists one status change. Its signature matches
// generic.Subscriber, so it can be subscribed to a Bus directly.
func (s *Store) AppendStatusChange(ctx context.Context, e generic.StatusChanged) error {
	if e.ID == "" {
		e.ID = string(generic.NewRecordID())
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO status_changes (id, kind, record_id, subject_id, actor_id, from_status, to_status, reason, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Kind, e.RecordID, e.SubjectID, e.ActorID, e.From, e.To, e.Reason, formatTime(e.At),
	)
	if err != nil {
		return fmt.Errorf("failed to append status change: %w", err)
	}
	return nil
}

// StatusChangesFor returns the trail of one record, oldest first.
func (s *Store) StatusChangesFor(ctx context.Context, kind generic.RecordKind, id generic.RecordID) ([]generic.StatusChanged, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, record_id, subject_id, actor_id, from_status, to_status, reason, at
		FROM status_changes
		WHERE kind = ? AND record_id = ?
		ORDER BY at ASC, rowid ASC`,
		kind, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query status changes: %w", err)
	}
	defer rows.Close()

	out := []generic.StatusChanged{}
	for rows.Next() {
		var e generic.StatusChanged
		var at string
		if err := rows.Scan(&e.ID, &e.Kind, &e.RecordID, &e.SubjectID, &e.ActorID, &e.From, &e.To, &e.Reason, &at); err != nil {
			return nil, fmt.Errorf("failed to scan status change: %w", err)
		}
		if e.At, err = parseTime(at); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt timestamp %q: %w", s, err)
	}
	return t, nil
}

// parseStamps parses created_at and updated_at.
func parseStamps(created, updated *time.Time, createdAt, updatedAt string) error {
	var err error
	if *created, err = parseTime(createdAt); err != nil {
		return err
	}
	*updated, err = parseTime(updatedAt)
	return err
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func formatDatePtr(d *generic.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseDate(s string) (generic.Date, error) {
	d, err := generic.ParseDate(s)
	if err != nil {
		return generic.Date{}, fmt.Errorf("corrupt date %q: %w", s, err)
	}
	return d, nil
}

func parseDatePtr(s sql.NullString) (*generic.Date, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	d, err := parseDate(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("corrupt decimal %q: %w", s, err)
	}
	return d, nil
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// affectedOne maps a conditional write that matched no row to ErrConcurrentModification.
func affectedOne(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, generic.ErrConcurrentModification)
	}
	return nil
}
