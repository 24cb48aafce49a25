/*
store.go - Persistence contracts shared by the domains

PURPOSE:
  The engine consumes a generic record store. Domain packages define their
  own record interfaces (timeoff.Store, schedule.Store); this file holds the
  pieces every domain needs: the user directory and the status-change log.

IMPLEMENTATIONS:
  - store/sqlite: SQLite
  - store/memory: in-memory, for tests and development

SEE ALSO:
  - access.go: reads the directory to resolve scope
  - events.go: StatusChanged, the entries of the log
*/
package generic

import "context"

// UserDirectory resolves users for authorization. GetUser returns (nil, nil)
// when the user does not exist.
type UserDirectory interface {
	GetUser(ctx context.Context, id UserID) (*User, error)
	ListUsers(ctx context.Context, filter UserFilter) ([]User, error)
}

// UserStore is a directory that can also be written to.
type UserStore interface {
	UserDirectory
	SaveUser(ctx context.Context, u User) error
}

// StatusChangeLog persists status-change facts. Append-only.
type StatusChangeLog interface {
	AppendStatusChange(ctx context.Context, e StatusChanged) error
	StatusChangesFor(ctx context.Context, kind RecordKind, id RecordID) ([]StatusChanged, error)
}
