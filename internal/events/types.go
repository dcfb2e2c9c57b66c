// Package events provides the in-process event bus used to announce scan
// lifecycle changes to interested components.
package events

import (
	"context"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	// Scan events
	EventScanStarted   EventType = "scan.started"
	EventScanCompleted EventType = "scan.completed"
	EventScanFailed    EventType = "scan.failed"
	EventScanSkipped   EventType = "scan.skipped"

	// Catalog events
	EventCourseCreated EventType = "course.created"
	EventCourseUpdated EventType = "course.updated"
	EventCourseDeleted EventType = "course.deleted"

	// File monitor events
	EventCourseChanged EventType = "course.files.changed"

	// System events
	EventSystemStarted EventType = "system.started"
	EventSystemStopped EventType = "system.stopped"
)

// Event represents a system event
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Source    string                 `json:"source"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

// EventHandler represents a function that handles events
type EventHandler func(event Event) error

// EventFilter represents filters for event subscriptions
type EventFilter struct {
	Types   []EventType `json:"types,omitempty"`
	Sources []string    `json:"sources,omitempty"`
}

// Subscription represents an event subscription
type Subscription struct {
	ID            string       `json:"id"`
	Filter        EventFilter  `json:"filter"`
	Handler       EventHandler `json:"-"`
	Created       time.Time    `json:"created"`
	LastTriggered *time.Time   `json:"last_triggered,omitempty"`
	TriggerCount  int64        `json:"trigger_count"`
}

// EventStats represents statistics about events
type EventStats struct {
	TotalEvents         int64            `json:"total_events"`
	DroppedEvents       int64            `json:"dropped_events"`
	EventsByType        map[string]int64 `json:"events_by_type"`
	ActiveSubscriptions int              `json:"active_subscriptions"`
}

// EventBusConfig represents configuration for the event bus
type EventBusConfig struct {
	BufferSize      int `json:"buffer_size"`
	MaxRecentEvents int `json:"max_recent_events"`
}

// DefaultEventBusConfig returns default configuration
func DefaultEventBusConfig() EventBusConfig {
	return EventBusConfig{
		BufferSize:      256,
		MaxRecentEvents: 100,
	}
}

// EventBus defines the interface for the event bus system
type EventBus interface {
	// Publish queues an event, honoring ctx while the queue is full
	Publish(ctx context.Context, event Event) error

	// PublishAsync queues an event without blocking
	PublishAsync(event Event) error

	// Subscribe registers a handler for events matching the filter
	Subscribe(ctx context.Context, filter EventFilter, handler EventHandler) (*Subscription, error)

	// Unsubscribe removes a subscription
	Unsubscribe(subscriptionID string) error

	// GetEvents returns recent events matching the filter, newest last
	GetEvents(filter EventFilter, limit, offset int) ([]Event, int64, error)

	// GetStats returns event bus statistics
	GetStats() EventStats

	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// NewSystemEvent creates an event originating from the server itself
func NewSystemEvent(eventType EventType, title, message string) Event {
	return Event{
		Type:      eventType,
		Source:    "system",
		Title:     title,
		Message:   message,
		Data:      make(map[string]interface{}),
		Timestamp: time.Now(),
	}
}

// MatchesFilter checks if an event matches the given filter
func MatchesFilter(event Event, filter EventFilter) bool {
	if len(filter.Types) > 0 {
		found := false
		for _, t := range filter.Types {
			if t == event.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(filter.Sources) > 0 {
		found := false
		for _, s := range filter.Sources {
			if s == event.Source {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}
