package timeoff

import (
	"context"

	"github.com/warp/timekeeper/generic"
)

// =============================================================================
// STORE - Record store for leave requests and balances
// =============================================================================

// Store persists leave requests and balances. Getters return (nil, nil) when
// the row does not exist.
//
// The conditional writes (UpdateRequest, DeleteRequest, UpdateBalance)
// return generic.ErrConcurrentModification when the row no longer matches
// the expected state, so a lost race is never silently overwritten.
type Store interface {
	// IntervalsForSubject lets the conflict checker read the subject's requests.
	generic.IntervalSource

	GetRequest(ctx context.Context, id generic.RecordID) (*LeaveRequest, error)
	ListRequests(ctx context.Context, filter RequestFilter) ([]LeaveRequest, error)
	InsertRequest(ctx context.Context, r LeaveRequest) error
	UpdateRequest(ctx context.Context, r LeaveRequest, expected RequestStatus) error
	DeleteRequest(ctx context.Context, id generic.RecordID, expected RequestStatus) error

	GetBalance(ctx context.Context, key BalanceKey) (*LeaveBalance, error)
	ListBalances(ctx context.Context, userID generic.UserID, year int) ([]LeaveBalance, error)
	// InsertBalance fails with ErrConcurrentModification if the key already exists.
	InsertBalance(ctx context.Context, b LeaveBalance) error
	UpdateBalance(ctx context.Context, b LeaveBalance, expectedVersion int64) error
}

// TxStore runs a callback atomically. If fn returns an error every write made
// through the Store passed to fn is rolled back.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}
