package component

import "context"

// HealthStatus is the coarse state a component reports.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusUnhealthy HealthStatus = "unhealthy"
	StatusDegraded  HealthStatus = "degraded"
)

// Health is one component's report. Message carries the detail an
// operator needs, such as "3 cached entries" or a ping error.
type Health struct {
	Name    string       `json:"name"`
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// Component is a lifecycle-managed part of the subsystem: a store
// connection, the durable cache sweep, the monitoring loops.
type Component interface {
	// Name is the registry key and must be unique.
	Name() string
	Start(ctx context.Context) error
	// Stop must be safe to call on a component that failed to start.
	Stop(ctx context.Context) error
	Health(ctx context.Context) Health
}

// Description is what a component shows in the startup summary.
type Description struct {
	// Name defaults to the component's Name().
	Name string
	// Type is "database", "redis" or "client".
	Type string
	// Details is a one-line summary, e.g. "localhost:6379 db=0 pool=10".
	Details string
}

// Describable is implemented by components that appear in the startup
// summary with more than their name.
type Describable interface {
	Describe() Description
}
