package database

import (
	"context"
	"errors"
	"fmt"
)

// Pinger is the slice of pgxpool.Pool the readiness probe needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker reports whether the idempotency backend's postgres pool is
// reachable. It implements the observability.Checker interface.
type HealthChecker struct {
	pinger Pinger
}

// NewHealthChecker wraps a connection pool for the readiness probe.
func NewHealthChecker(pinger Pinger) *HealthChecker {
	return &HealthChecker{pinger: pinger}
}

// Name returns the component name.
func (h *HealthChecker) Name() string {
	return "postgres"
}

// Check pings the pool. A missing pool reports down instead of panicking so
// a miswired readiness registration stays visible in the probe output.
func (h *HealthChecker) Check(ctx context.Context) error {
	if h.pinger == nil {
		return errors.New("connection pool not configured")
	}
	if err := h.pinger.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}
