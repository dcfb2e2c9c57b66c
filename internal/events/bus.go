package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

// eventBus implements the EventBus interface
type eventBus struct {
	config EventBusConfig
	logger hclog.Logger

	mu            sync.RWMutex
	subscriptions map[string]*Subscription
	eventChannel  chan Event
	running       bool
	stopCh        chan struct{}
	wg            sync.WaitGroup

	recentEvents []Event
	eventStats   EventStats
	dropped      atomic.Int64
}

// NewEventBus creates a new event bus instance
func NewEventBus(config EventBusConfig, logger hclog.Logger) EventBus {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultEventBusConfig().BufferSize
	}
	if config.MaxRecentEvents <= 0 {
		config.MaxRecentEvents = DefaultEventBusConfig().MaxRecentEvents
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &eventBus{
		config:        config,
		logger:        logger,
		subscriptions: make(map[string]*Subscription),
		eventChannel:  make(chan Event, config.BufferSize),
		recentEvents:  make([]Event, 0, config.MaxRecentEvents),
		eventStats:    EventStats{EventsByType: make(map[string]int64)},
	}
}

// Start starts the event bus
func (eb *eventBus) Start(ctx context.Context) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.running {
		return fmt.Errorf("event bus is already running")
	}

	eb.running = true
	eb.stopCh = make(chan struct{})

	eb.wg.Add(1)
	go eb.processEvents(ctx)

	eb.logger.Info("Event bus started", "buffer_size", eb.config.BufferSize)
	return nil
}

// Stop drains queued events and stops the processor
func (eb *eventBus) Stop(ctx context.Context) error {
	eb.mu.Lock()
	if !eb.running {
		eb.mu.Unlock()
		return nil
	}
	eb.running = false
	close(eb.stopCh)
	eb.mu.Unlock()

	done := make(chan struct{})
	go func() {
		eb.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		eb.logger.Info("Event bus stopped gracefully")
		return nil
	case <-ctx.Done():
		eb.logger.Warn("Event bus stop timed out")
		return ctx.Err()
	}
}

// Publish publishes an event to the event bus
func (eb *eventBus) Publish(ctx context.Context, event Event) error {
	event, err := eb.prepare(event)
	if err != nil {
		return err
	}

	eb.mu.RLock()
	defer eb.mu.RUnlock()
	if !eb.running {
		return fmt.Errorf("event bus is not running")
	}

	select {
	case eb.eventChannel <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishAsync publishes an event without blocking; a full queue drops it
func (eb *eventBus) PublishAsync(event Event) error {
	event, err := eb.prepare(event)
	if err != nil {
		return err
	}

	eb.mu.RLock()
	defer eb.mu.RUnlock()
	if !eb.running {
		return fmt.Errorf("event bus is not running")
	}

	select {
	case eb.eventChannel <- event:
		return nil
	default:
		eb.logger.Warn("Event channel full, dropping event", "event_type", event.Type, "event_id", event.ID)
		eb.dropped.Add(1)
		return fmt.Errorf("event channel full")
	}
}

// Subscribe subscribes to events matching the filter
func (eb *eventBus) Subscribe(ctx context.Context, filter EventFilter, handler EventHandler) (*Subscription, error) {
	if handler == nil {
		return nil, fmt.Errorf("handler is required")
	}

	eb.mu.Lock()
	defer eb.mu.Unlock()

	subscription := &Subscription{
		ID:      "sub-" + uuid.NewString(),
		Filter:  filter,
		Handler: handler,
		Created: time.Now(),
	}
	eb.subscriptions[subscription.ID] = subscription
	return subscription, nil
}

// Unsubscribe removes a subscription
func (eb *eventBus) Unsubscribe(subscriptionID string) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if _, ok := eb.subscriptions[subscriptionID]; !ok {
		return fmt.Errorf("subscription %s not found", subscriptionID)
	}
	delete(eb.subscriptions, subscriptionID)
	return nil
}

// GetEvents returns recent events matching the filter
func (eb *eventBus) GetEvents(filter EventFilter, limit, offset int) ([]Event, int64, error) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	var matched []Event
	for _, event := range eb.recentEvents {
		if MatchesFilter(event, filter) {
			matched = append(matched, event)
		}
	}

	total := int64(len(matched))
	if offset >= len(matched) {
		return []Event{}, total, nil
	}
	end := len(matched)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return matched[offset:end], total, nil
}

// GetStats returns event bus statistics
func (eb *eventBus) GetStats() EventStats {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	stats := EventStats{
		TotalEvents:         eb.eventStats.TotalEvents,
		DroppedEvents:       eb.dropped.Load(),
		EventsByType:        make(map[string]int64, len(eb.eventStats.EventsByType)),
		ActiveSubscriptions: len(eb.subscriptions),
	}
	for k, v := range eb.eventStats.EventsByType {
		stats.EventsByType[k] = v
	}
	return stats
}

func (eb *eventBus) prepare(event Event) (Event, error) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Type == "" {
		return event, fmt.Errorf("invalid event: event type is required")
	}
	if event.Source == "" {
		return event, fmt.Errorf("invalid event: event source is required")
	}
	return event, nil
}

// processEvents processes events from the channel
func (eb *eventBus) processEvents(ctx context.Context) {
	defer eb.wg.Done()

	for {
		select {
		case event := <-eb.eventChannel:
			eb.handleEvent(event)
		case <-eb.stopCh:
			eb.drain()
			return
		case <-ctx.Done():
			eb.drain()
			return
		}
	}
}

func (eb *eventBus) drain() {
	for {
		select {
		case event := <-eb.eventChannel:
			eb.handleEvent(event)
		default:
			return
		}
	}
}

// handleEvent records a single event and fans it out to subscribers
func (eb *eventBus) handleEvent(event Event) {
	eb.logger.Debug("Processing event", "type", event.Type, "id", event.ID, "source", event.Source)

	eb.mu.Lock()
	eb.recentEvents = append(eb.recentEvents, event)
	if len(eb.recentEvents) > eb.config.MaxRecentEvents {
		eb.recentEvents = eb.recentEvents[1:]
	}
	eb.eventStats.TotalEvents++
	eb.eventStats.EventsByType[string(event.Type)]++

	var matching []*Subscription
	for _, sub := range eb.subscriptions {
		if MatchesFilter(event, sub.Filter) {
			matching = append(matching, sub)
		}
	}
	eb.mu.Unlock()

	for _, sub := range matching {
		eb.notifySubscriber(sub, event)
	}
}

// notifySubscriber notifies a subscriber about an event
func (eb *eventBus) notifySubscriber(subscription *Subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			eb.logger.Error("Panic in event handler", "subscription_id", subscription.ID, "error", r, "event_id", event.ID)
		}
	}()

	if err := subscription.Handler(event); err != nil {
		eb.logger.Error("Event handler error", "subscription_id", subscription.ID, "error", err, "event_id", event.ID)
		return
	}

	eb.mu.Lock()
	subscription.TriggerCount++
	now := time.Now()
	subscription.LastTriggered = &now
	eb.mu.Unlock()
}
