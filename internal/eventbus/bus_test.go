package eventbus

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codenerd-labs/evolution-engine/internal/evotypes"
)

func TestEmitDispatchesToAllSubscribersInOrder(t *testing.T) {
	b := New()
	var order []int
	b.Subscribe(func(evotypes.ApplicationEvent) { order = append(order, 1) })
	b.Subscribe(func(evotypes.ApplicationEvent) { order = append(order, 2) })
	b.Subscribe(func(evotypes.ApplicationEvent) { order = append(order, 3) })

	b.Emit(evotypes.ApplicationEvent{Kind: evotypes.EventSchedulerTick})

	require.Equal(t, []int{1, 2, 3}, order)
}

func TestUnsubscribeStopsFurtherDelivery(t *testing.T) {
	b := New()
	calls := 0
	sub := b.Subscribe(func(evotypes.ApplicationEvent) { calls++ })

	b.Emit(evotypes.ApplicationEvent{Kind: evotypes.EventSchedulerTick})
	sub.Unsubscribe()
	b.Emit(evotypes.ApplicationEvent{Kind: evotypes.EventSchedulerTick})

	require.Equal(t, 1, calls)
	require.Equal(t, 0, b.SubscriberCount())
}

func TestPanickingSubscriberDoesNotStopOthers(t *testing.T) {
	b := New()
	secondCalled := false
	b.Subscribe(func(evotypes.ApplicationEvent) { panic("boom") })
	b.Subscribe(func(evotypes.ApplicationEvent) { secondCalled = true })

	require.NotPanics(t, func() {
		b.Emit(evotypes.ApplicationEvent{Kind: evotypes.EventExecutionFailed})
	})
	require.True(t, secondCalled)
}

func TestDeliveredCountsEmitCalls(t *testing.T) {
	b := New()
	b.Emit(evotypes.ApplicationEvent{Kind: evotypes.EventHealthCheck})
	b.Emit(evotypes.ApplicationEvent{Kind: evotypes.EventHealthCheck})
	require.Equal(t, uint64(2), b.Delivered())
}
