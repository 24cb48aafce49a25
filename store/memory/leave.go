package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/warp/timekeeper/generic"
	"github.com/warp/timekeeper/timeoff"
)

// LeaveStore is the timeoff.TxStore view of a memory Store.
type LeaveStore struct {
	leaveView
}

// Leave returns the leave-domain view.
func (s *Store) Leave() *LeaveStore {
	return &LeaveStore{leaveView{view{s: s}}}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (ls *LeaveStore) WithTx(_ context.Context, fn func(timeoff.Store) error) error {
	return ls.s.withTx(func() error {
		return fn(leaveView{view{s: ls.s, inTx: true}})
	})
}

type leaveView struct {
	view
}

func (v leaveView) IntervalsForSubject(_ context.Context, subject generic.UserID, window generic.Interval) ([]generic.Span, error) {
	defer v.rlock()()
	var spans []generic.Span
	for _, r := range v.s.data.requests {
		if r.UserID == subject {
			spans = append(spans, r.Span())
		}
	}
	return overlapping(spans, window), nil
}

func (v leaveView) GetRequest(_ context.Context, id generic.RecordID) (*timeoff.LeaveRequest, error) {
	defer v.rlock()()
	r, ok := v.s.data.requests[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (v leaveView) ListRequests(_ context.Context, f timeoff.RequestFilter) ([]timeoff.LeaveRequest, error) {
	defer v.rlock()()
	out := []timeoff.LeaveRequest{}
	for _, r := range v.s.data.requests {
		if f.Matches(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Interval.Start.Equal(out[j].Interval.Start) {
			return out[i].Interval.Start.Before(out[j].Interval.Start)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (v leaveView) InsertRequest(_ context.Context, r timeoff.LeaveRequest) error {
	defer v.lock()()
	if _, exists := v.s.data.requests[r.ID]; exists {
		return fmt.Errorf("leave request %s already exists: %w", r.ID, generic.ErrConcurrentModification)
	}
	v.s.data.requests[r.ID] = r
	return nil
}

func (v leaveView) UpdateRequest(_ context.Context, r timeoff.LeaveRequest, expected timeoff.RequestStatus) error {
	defer v.lock()()
	cur, ok := v.s.data.requests[r.ID]
	if !ok {
		return &generic.NotFoundError{Kind: "leave request", ID: string(r.ID)}
	}
	if cur.Status != expected {
		return fmt.Errorf("leave request %s is %s, expected %s: %w", r.ID, cur.Status, expected, generic.ErrConcurrentModification)
	}
	v.s.data.requests[r.ID] = r
	return nil
}

func (v leaveView) DeleteRequest(_ context.Context, id generic.RecordID, expected timeoff.RequestStatus) error {
	defer v.lock()()
	cur, ok := v.s.data.requests[id]
	if !ok {
		return &generic.NotFoundError{Kind: "leave request", ID: string(id)}
	}
	if cur.Status != expected {
		return fmt.Errorf("leave request %s is %s, expected %s: %w", id, cur.Status, expected, generic.ErrConcurrentModification)
	}
	delete(v.s.data.requests, id)
	return nil
}

func (v leaveView) GetBalance(_ context.Context, key timeoff.BalanceKey) (*timeoff.LeaveBalance, error) {
	defer v.rlock()()
	b, ok := v.s.data.balances[key]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (v leaveView) ListBalances(_ context.Context, userID generic.UserID, year int) ([]timeoff.LeaveBalance, error) {
	defer v.rlock()()
	out := []timeoff.LeaveBalance{}
	for k, b := range v.s.data.balances {
		if k.UserID == userID && (year == 0 || k.Year == year) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.Year != out[j].Key.Year {
			return out[i].Key.Year < out[j].Key.Year
		}
		return out[i].Key.LeaveType < out[j].Key.LeaveType
	})
	return out, nil
}

func (v leaveView) InsertBalance(_ context.Context, b timeoff.LeaveBalance) error {
	defer v.lock()()
	if _, exists := v.s.data.balances[b.Key]; exists {
		return fmt.Errorf("balance %s/%d/%s already exists: %w", b.Key.UserID, b.Key.Year, b.Key.LeaveType, generic.ErrConcurrentModification)
	}
	v.s.data.balances[b.Key] = b
	return nil
}

func (v leaveView) UpdateBalance(_ context.Context, b timeoff.LeaveBalance, expectedVersion int64) error {
	defer v.lock()()
	cur, ok := v.s.data.balances[b.Key]
	if !ok {
		return &generic.NotFoundError{Kind: "leave balance", ID: string(b.ID)}
	}
	if cur.Version != expectedVersion {
		return fmt.Errorf("balance %s at version %d, expected %d: %w", b.ID, cur.Version, expectedVersion, generic.ErrConcurrentModification)
	}
	v.s.data.balances[b.Key] = b
	return nil
}
