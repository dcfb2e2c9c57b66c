// Package modulemanager wires application modules together: registration,
// dependency-ordered initialization, route registration, health and shutdown.
package modulemanager

import (
	"context"
	"time"
)

// HealthChecker is an optional interface for modules that can report health status
type HealthChecker interface {
	HealthCheck(ctx context.Context) HealthStatus
}

// Shutdowner is an optional interface for modules holding background work
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// HealthStatus represents the health of a module
type HealthStatus struct {
	Status      HealthState            `json:"status"`
	Message     string                 `json:"message,omitempty"`
	LastChecked time.Time              `json:"last_checked"`
	Details     map[string]interface{} `json:"details,omitempty"`
}

// HealthState represents the state of a module's health
type HealthState string

const (
	HealthStateHealthy   HealthState = "healthy"
	HealthStateDegraded  HealthState = "degraded"
	HealthStateUnhealthy HealthState = "unhealthy"
	HealthStateUnknown   HealthState = "unknown"
)
