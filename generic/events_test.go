package generic_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/warp/timekeeper/generic"
)

func TestBus_DeliversInOrderAndAssignsID(t *testing.T) {
	bus := generic.NewBus(zap.NewNop())
	var seen []string
	bus.Subscribe(func(_ context.Context, e generic.StatusChanged) error {
		seen = append(seen, "first:"+e.To)
		assert.NotEmpty(t, e.ID)
		return nil
	})
	bus.Subscribe(func(_ context.Context, e generic.StatusChanged) error {
		seen = append(seen, "second:"+e.To)
		return nil
	})

	bus.Publish(context.Background(), generic.StatusChanged{Kind: generic.KindLeaveRequest, RecordID: "r1", To: "PENDING"})

	assert.Equal(t, []string{"first:PENDING", "second:PENDING"}, seen)
	assert.Equal(t, 2, bus.SubscribersCount())
}

func TestBus_FailingSubscriberDoesNotStopOthers(t *testing.T) {
	// GIVEN: a panicking and an erroring subscriber before a healthy one
	core, logs := observer.New(zap.ErrorLevel)
	bus := generic.NewBus(zap.New(core))
	delivered := 0
	bus.Subscribe(func(context.Context, generic.StatusChanged) error { panic("boom") })
	bus.Subscribe(func(context.Context, generic.StatusChanged) error { return errors.New("disk full") })
	bus.Subscribe(func(context.Context, generic.StatusChanged) error { delivered++; return nil })

	// WHEN: publishing
	require.NotPanics(t, func() {
		bus.Publish(context.Background(), generic.StatusChanged{Kind: generic.KindScheduleAssignment, RecordID: "a1", To: "ASSIGNED"})
	})

	// THEN: the healthy subscriber still ran and both failures were logged
	assert.Equal(t, 1, delivered)
	assert.Equal(t, 2, logs.FilterMessage("subscriber failed").Len())
}

func TestNopSink(t *testing.T) {
	var sink generic.EventSink = generic.NopSink{}
	assert.NotPanics(t, func() { sink.Publish(context.Background(), generic.StatusChanged{}) })
}
