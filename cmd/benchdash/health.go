package main

import (
	"context"
	"fmt"
	"time"
)

const (
	// healthCheckInterval is how often the optional backends are probed.
	healthCheckInterval = 30 * time.Second

	// healthCheckTimeout bounds one round of checks.
	healthCheckTimeout = 5 * time.Second
)

// healthLogger is the slice of logging.Logger the monitor uses.
type healthLogger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// healthCheck probes one backend.
type healthCheck struct {
	name  string
	check func(ctx context.Context) error
}

// healthCheckAll runs every check in order.
//
// Returns:
//   - error: First failure, prefixed with the backend name, or nil
func healthCheckAll(ctx context.Context, checks []healthCheck) error {
	for _, hc := range checks {
		if err := hc.check(ctx); err != nil {
			return fmt.Errorf("%s: %w", hc.name, err)
		}
	}
	return nil
}

// monitorHealth runs checks every interval until ctx is done and logs each
// backend's transitions between healthy and unhealthy. Backends start out
// assumed healthy, so a steady healthy state logs nothing.
//
// Parameters:
//   - ctx: Stops the monitor
//   - interval: Time between rounds; non-positive disables the monitor
//   - log: Receives transition events
//   - checks: Backends to probe; none disables the monitor
func monitorHealth(ctx context.Context, interval time.Duration, log healthLogger, checks []healthCheck) {
	if interval <= 0 || len(checks) == 0 {
		return
	}

	down := make(map[string]bool, len(checks))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for _, hc := range checks {
			checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
			err := hc.check(checkCtx)
			cancel()
			if ctx.Err() != nil {
				return
			}

			switch {
			case err != nil && !down[hc.name]:
				down[hc.name] = true
				log.Warn("backend unhealthy", "backend", hc.name, "error", err)
			case err == nil && down[hc.name]:
				down[hc.name] = false
				log.Info("backend recovered", "backend", hc.name)
			}
		}
	}
}
