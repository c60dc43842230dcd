package ports

import "context"

// HealthChecker reports connectivity to a backing dependency. The health
// endpoint aggregates one checker per dependency.
type HealthChecker interface {
	// Ping returns nil when the dependency is reachable.
	Ping(ctx context.Context) error
	// Name identifies the dependency in health responses.
	Name() string
}
