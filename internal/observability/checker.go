package observability

import "context"

// Checker is implemented by any component that reports its health status.
// Implementations must be thread-safe and respect the context deadline.
type Checker interface {
	// Name returns the unique identifier of the component (e.g., "postgres", "redis").
	Name() string
	// Check performs the health verification. Returns nil if healthy.
	Check(ctx context.Context) error
}
