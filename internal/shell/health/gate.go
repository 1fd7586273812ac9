// Package health waits for deployed services to become ready.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrTimedOut is returned when a service is not ready within the wait limit.
var ErrTimedOut = errors.New("service not ready in time")

// DefaultInterval is the polling interval.
const DefaultInterval = 5 * time.Second

// Probe checks one service once.
type Probe interface {
	// Ready reports whether the service is ready. An error means the check
	// itself could not complete; the gate treats it as not ready.
	Ready(ctx context.Context) (bool, error)

	// Describe names what the probe checks, for logs.
	Describe() string
}

// Gate polls probes until they pass.
type Gate struct {
	logger   *slog.Logger
	interval time.Duration
}

// NewGate creates a gate polling every interval.
func NewGate(logger *slog.Logger, interval time.Duration) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Gate{logger: logger.With("component", "health"), interval: interval}
}

// WaitUntilReady polls probe until it reports ready, checking once right
// away and then every interval. It returns an error wrapping ErrTimedOut
// when maxWait elapses first, and the context error when ctx ends.
func (g *Gate) WaitUntilReady(ctx context.Context, service string, probe Probe, maxWait time.Duration) error {
	deadline := time.NewTimer(maxWait)
	defer deadline.Stop()
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	started := time.Now()
	var lastErr error
	checks := 0

	for {
		checks++
		ready, err := probe.Ready(ctx)
		if err == nil && ready {
			g.logger.Debug("service ready",
				"service", service,
				"probe", probe.Describe(),
				"checks", checks,
				"elapsed", time.Since(started).Round(time.Millisecond),
			)
			return nil
		}
		if err != nil {
			lastErr = err
		}
		g.logger.Debug("service not ready yet", "service", service, "probe", probe.Describe(), "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			if lastErr != nil {
				return fmt.Errorf("%w: %s after %s (%s): %v", ErrTimedOut, service, maxWait, probe.Describe(), lastErr)
			}
			return fmt.Errorf("%w: %s after %s (%s)", ErrTimedOut, service, maxWait, probe.Describe())
		case <-ticker.C:
		}
	}
}
