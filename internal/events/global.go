package events

import (
	"sync"
)

var (
	globalBus     EventBus
	globalBusLock sync.RWMutex
)

// SetGlobalEventBus sets the process-wide event bus instance
func SetGlobalEventBus(bus EventBus) {
	globalBusLock.Lock()
	defer globalBusLock.Unlock()
	globalBus = bus
}

// GetGlobalEventBus returns the process-wide event bus, or nil before startup
func GetGlobalEventBus() EventBus {
	globalBusLock.RLock()
	defer globalBusLock.RUnlock()
	return globalBus
}

// PublishAsync publishes on bus when it is non-nil. Errors are returned
// for callers that care; most ignore them.
func PublishAsync(bus EventBus, event Event) error {
	if bus == nil {
		return nil
	}
	return bus.PublishAsync(event)
}
