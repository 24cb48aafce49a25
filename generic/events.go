package generic

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// STATUS CHANGED - The only fact the engine emits
// =============================================================================

type RecordKind string

const (
	KindLeaveRequest       RecordKind = "leave_request"
	KindScheduleAssignment RecordKind = "work_schedule_assignment"
	KindLeaveBalance       RecordKind = "leave_balance"
	KindWorkSchedule       RecordKind = "work_schedule"
)

// StatusChanged records that a time-bound record was created, moved between
// states or removed. From is empty on creation, To is "DELETED" on removal.
// Notification and export collaborators subscribe to it; the engine never calls them.
type StatusChanged struct {
	ID        string
	Kind      RecordKind
	RecordID  RecordID
	SubjectID UserID
	ActorID   UserID
	From      string
	To        string
	Reason    string
	At        time.Time
}

const StatusDeleted = "DELETED"

// EventSink receives status changes after the write they describe has committed.
type EventSink interface {
	Publish(ctx context.Context, e StatusChanged)
}

// NopSink drops every event.
type NopSink struct{}

func (NopSink) Publish(context.Context, StatusChanged) {}

// =============================================================================
// BUS - In-process fan-out to subscribers
// =============================================================================

// Subscriber handles one event. A returned error is logged, never propagated:
// the write has already committed.
type Subscriber func(ctx context.Context, e StatusChanged) error

// Bus delivers each event to every subscriber in registration order.
// A panicking subscriber is recovered and logged so it cannot break the others.
type Bus struct {
	mu     sync.RWMutex
	subs   []Subscriber
	logger *zap.Logger
}

func NewBus(logger ...*zap.Logger) *Bus {
	l := zap.L().Named("eventbus")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("eventbus")
	}
	return &Bus{logger: l}
}

func (b *Bus) Subscribe(s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, s)
}

func (b *Bus) SubscribersCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus) Publish(ctx context.Context, e StatusChanged) {
	if e.ID == "" {
		e.ID = string(NewRecordID())
	}
	b.mu.RLock()
	subs := append([]Subscriber(nil), b.subs...)
	b.mu.RUnlock()

	for i, s := range subs {
		if err := b.deliver(ctx, s, e); err != nil {
			b.logger.Error("subscriber failed",
				zap.Int("subscriber", i),
				zap.String("kind", string(e.Kind)),
				zap.String("record_id", string(e.RecordID)),
				zap.Error(err),
			)
		}
	}
}

func (b *Bus) deliver(ctx context.Context, s Subscriber, e StatusChanged) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panicked: %v", r)
		}
	}()
	return s(ctx, e)
}
