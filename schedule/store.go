package schedule

import (
	"context"

	"github.com/warp/timekeeper/generic"
)

// Store persists templates and assignments. Getters return (nil, nil) when
// the row does not exist; updates and deletes of a missing row return a
// *generic.NotFoundError.
type Store interface {
	// IntervalsForSubject lets the conflict checker read the subject's assignments.
	generic.IntervalSource

	GetTemplate(ctx context.Context, id generic.RecordID) (*WorkSchedule, error)
	// ListTemplates returns the templates of a company, or all of them for "".
	ListTemplates(ctx context.Context, company generic.CompanyID) ([]WorkSchedule, error)
	InsertTemplate(ctx context.Context, w WorkSchedule) error
	UpdateTemplate(ctx context.Context, w WorkSchedule) error
	// ClearDefault unsets IsDefault on every template of company except keep.
	ClearDefault(ctx context.Context, company generic.CompanyID, keep generic.RecordID) error
	DefaultTemplate(ctx context.Context, company generic.CompanyID) (*WorkSchedule, error)

	GetAssignment(ctx context.Context, id generic.RecordID) (*UserWorkSchedule, error)
	ListAssignments(ctx context.Context, userID generic.UserID) ([]UserWorkSchedule, error)
	InsertAssignment(ctx context.Context, a UserWorkSchedule) error
	UpdateAssignment(ctx context.Context, a UserWorkSchedule) error
	DeleteAssignment(ctx context.Context, id generic.RecordID) error
}

// TxStore runs fn atomically; an error from fn rolls back its writes.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}
