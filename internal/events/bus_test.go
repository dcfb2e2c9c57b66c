package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startBus(t *testing.T, cfg EventBusConfig) EventBus {
	t.Helper()
	bus := NewEventBus(cfg, nil)
	require.NoError(t, bus.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = bus.Stop(ctx)
	})
	return bus
}

func TestSubscribeReceivesMatchingEvents(t *testing.T) {
	bus := startBus(t, DefaultEventBusConfig())

	var (
		mu       sync.Mutex
		received []EventType
	)
	_, err := bus.Subscribe(context.Background(), EventFilter{Types: []EventType{EventScanCompleted}}, func(e Event) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, e.Type)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.PublishAsync(NewSystemEvent(EventScanStarted, "start", "")))
	require.NoError(t, bus.Publish(context.Background(), NewSystemEvent(EventScanCompleted, "done", "")))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		return bus.GetStats().TotalEvents == 2
	}, time.Second, 10*time.Millisecond)

	stats := bus.GetStats()
	assert.Equal(t, int64(1), stats.EventsByType[string(EventScanCompleted)])
	assert.Equal(t, 1, stats.ActiveSubscriptions)
}

func TestPublishValidation(t *testing.T) {
	bus := startBus(t, DefaultEventBusConfig())

	assert.Error(t, bus.PublishAsync(Event{Source: "system"}))
	assert.Error(t, bus.PublishAsync(Event{Type: EventScanStarted}))
}

func TestPublishBeforeStart(t *testing.T) {
	bus := NewEventBus(DefaultEventBusConfig(), nil)
	assert.Error(t, bus.PublishAsync(NewSystemEvent(EventScanStarted, "", "")))
}

func TestGetEventsPagination(t *testing.T) {
	bus := startBus(t, EventBusConfig{BufferSize: 16, MaxRecentEvents: 3})

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.PublishAsync(NewSystemEvent(EventScanStarted, "", "")))
	}

	assert.Eventually(t, func() bool {
		return bus.GetStats().TotalEvents == 5
	}, time.Second, 10*time.Millisecond)

	all, total, err := bus.GetEvents(EventFilter{}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, all, 3)

	page, _, err := bus.GetEvents(EventFilter{}, 2, 2)
	require.NoError(t, err)
	assert.Len(t, page, 1)
}

func TestUnsubscribe(t *testing.T) {
	bus := startBus(t, DefaultEventBusConfig())

	sub, err := bus.Subscribe(context.Background(), EventFilter{}, func(Event) error { return nil })
	require.NoError(t, err)
	require.NoError(t, bus.Unsubscribe(sub.ID))
	assert.Error(t, bus.Unsubscribe(sub.ID))
}

func TestMatchesFilter(t *testing.T) {
	e := Event{Type: EventScanFailed, Source: "scanner"}

	assert.True(t, MatchesFilter(e, EventFilter{}))
	assert.True(t, MatchesFilter(e, EventFilter{Types: []EventType{EventScanFailed}, Sources: []string{"scanner"}}))
	assert.False(t, MatchesFilter(e, EventFilter{Types: []EventType{EventScanStarted}}))
	assert.False(t, MatchesFilter(e, EventFilter{Sources: []string{"system"}}))
}
