// Package memory provides an in-memory record store for tests and development.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/timekeeper/generic"
	"github.com/warp/timekeeper/schedule"
	"github.com/warp/timekeeper/timeoff"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Store holds users, leave records, schedules and the status-change log.
// Leave() and Schedules() return the domain views; both share one lock, so a
// WithTx on either view is atomic against every other record.
type Store struct {
	mu   sync.RWMutex
	data *records

	usersMu sync.RWMutex
	users   map[generic.UserID]generic.User

	auditMu sync.RWMutex
	changes []generic.StatusChanged
}

type records struct {
	requests    map[generic.RecordID]timeoff.LeaveRequest
	balances    map[timeoff.BalanceKey]timeoff.LeaveBalance
	templates   map[generic.RecordID]schedule.WorkSchedule
	assignments map[generic.RecordID]schedule.UserWorkSchedule
}

func New() *Store {
	return &Store{
		data:  newRecords(),
		users: make(map[generic.UserID]generic.User),
	}
}

func newRecords() *records {
	return &records{
		requests:    make(map[generic.RecordID]timeoff.LeaveRequest),
		balances:    make(map[timeoff.BalanceKey]timeoff.LeaveBalance),
		templates:   make(map[generic.RecordID]schedule.WorkSchedule),
		assignments: make(map[generic.RecordID]schedule.UserWorkSchedule),
	}
}

// snapshot copies every map. Values are plain structs, so a shallow copy per
// entry is enough; pointer fields are never mutated in place.
func (r *records) snapshot() *records {
	c := newRecords()
	for k, v := range r.requests {
		c.requests[k] = v
	}
	for k, v := range r.balances {
		c.balances[k] = v
	}
	for k, v := range r.templates {
		c.templates[k] = v
	}
	for k, v := range r.assignments {
		c.assignments[k] = v
	}
	return c
}

// withTx runs fn with the write lock held and restores the snapshot on error.
func (s *Store) withTx(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.data.snapshot()
	if err := fn(); err != nil {
		s.data = snap
		return err
	}
	return nil
}

// view carries the locking mode shared by the domain views. Inside WithTx the
// lock is already held, so lock and rlock are no-ops.
type view struct {
	s    *Store
	inTx bool
}

func (v view) rlock() func() {
	if v.inTx {
		return func() {}
	}
	v.s.mu.RLock()
	return v.s.mu.RUnlock
}

func (v view) lock() func() {
	if v.inTx {
		return func() {}
	}
	v.s.mu.Lock()
	return v.s.mu.Unlock
}

// =============================================================================
// USER DIRECTORY
// =============================================================================

func (s *Store) GetUser(_ context.Context, id generic.UserID) (*generic.User, error) {
	s.usersMu.RLock()
	defer s.usersMu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *Store) ListUsers(_ context.Context, f generic.UserFilter) ([]generic.User, error) {
	s.usersMu.RLock()
	defer s.usersMu.RUnlock()

	out := []generic.User{}
	for _, u := range s.users {
		if len(f.IDs) > 0 && !containsUser(f.IDs, u.ID) {
			continue
		}
		if f.ManagerID != "" && u.ManagerID != f.ManagerID {
			continue
		}
		if f.CompanyID != "" && u.CompanyID != f.CompanyID {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveUser inserts or replaces a user.
func (s *Store) SaveUser(_ context.Context, u generic.User) error {
	if u.ID == "" {
		return &generic.ValidationError{Field: "id", Reason: "required"}
	}
	s.usersMu.Lock()
	defer s.usersMu.Unlock()
	s.users[u.ID] = u
	return nil
}

func containsUser(ids []generic.UserID, id generic.UserID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

// =============================================================================
// STATUS CHANGE LOG
// =============================================================================

func (s *Store) AppendStatusChange(_ context.Context, e generic.StatusChanged) error {
	s.auditMu.Lock()
	defer s.auditMu.Unlock()
	s.changes = append(s.changes, e)
	return nil
}

func (s *Store) StatusChangesFor(_ context.Context, kind generic.RecordKind, id generic.RecordID) ([]generic.StatusChanged, error) {
	s.auditMu.RLock()
	defer s.auditMu.RUnlock()
	out := []generic.StatusChanged{}
	for _, e := range s.changes {
		if e.Kind == kind && e.RecordID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

// overlapping keeps spans of subject that overlap window.
func overlapping(spans []generic.Span, window generic.Interval) []generic.Span {
	out := spans[:0]
	for _, sp := range spans {
		if sp.Interval.Overlaps(window) {
			out = append(out, sp)
		}
	}
	return out
}
