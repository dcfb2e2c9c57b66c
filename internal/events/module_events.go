package events

import (
	"fmt"
	"time"
)

// Module lifecycle events
const (
	EventModuleInitialized EventType = "module.initialized"
	EventModuleStopped     EventType = "module.stopped"
	EventModuleError       EventType = "module.error"
)

// NewModuleLifecycleEvent creates a new module lifecycle event
func NewModuleLifecycleEvent(eventType EventType, moduleID, moduleName, state string) Event {
	return Event{
		Type:    eventType,
		Source:  fmt.Sprintf("module:%s", moduleID),
		Title:   "Module Lifecycle",
		Message: fmt.Sprintf("Module '%s' %s", moduleName, state),
		Data: map[string]interface{}{
			"module_id":   moduleID,
			"module_name": moduleName,
			"state":       state,
		},
		Timestamp: time.Now(),
	}
}

// NewModuleErrorEvent reports a module that failed to stop cleanly
func NewModuleErrorEvent(moduleID, moduleName string, err error) Event {
	event := NewModuleLifecycleEvent(EventModuleError, moduleID, moduleName, "failed")
	event.Message = fmt.Sprintf("Module '%s' failed: %v", moduleName, err)
	event.Data["error"] = err.Error()
	return event
}
