// Package monitoring provides pure functions for evaluating service health.
// It contains no I/O: the shell inspects containers and passes the observed
// state in.
package monitoring

import (
	"fmt"
	"sort"
	"strings"

	"github.com/artpar/flowstack/internal/core/domain"
)

// =============================================================================
// Health Aggregation (Pure Functions)
// =============================================================================

// AggregateHealth determines overall stack health from service states.
func AggregateHealth(services []domain.ServiceHealth) domain.HealthStatus {
	if len(services) == 0 {
		return domain.HealthStatusUnknown
	}

	unhealthy := 0
	degraded := 0

	for _, s := range services {
		switch s.Health {
		case domain.HealthStatusUnhealthy:
			unhealthy++
		case domain.HealthStatusDegraded, domain.HealthStatusUnknown:
			degraded++
		}
	}

	if unhealthy == len(services) {
		return domain.HealthStatusUnhealthy
	}
	if unhealthy > 0 || degraded > 0 {
		return domain.HealthStatusDegraded
	}
	return domain.HealthStatusHealthy
}

// DetermineContainerHealth maps container state to a health status.
//
// Parameters:
//   - status: container state (running, created, restarting, exited, ...)
//   - healthCheck: the runtime's health check result, nil when the image has none
//   - restarts: restarts since the container was created
func DetermineContainerHealth(status string, healthCheck *string, restarts int) domain.HealthStatus {
	if status != "running" {
		return domain.HealthStatusUnhealthy
	}

	if healthCheck != nil && *healthCheck == "unhealthy" {
		return domain.HealthStatusUnhealthy
	}

	// Many restarts indicate a crash loop.
	if restarts > 3 {
		return domain.HealthStatusDegraded
	}

	if healthCheck != nil && *healthCheck == "starting" {
		return domain.HealthStatusDegraded
	}

	return domain.HealthStatusHealthy
}

// Ready reports whether a container may be considered up. Without a health
// check, running is enough; with one, it must have passed.
func Ready(status string, healthCheck *string) bool {
	if status != "running" {
		return false
	}
	return healthCheck == nil || *healthCheck == "healthy"
}

// =============================================================================
// Summaries
// =============================================================================

// Summary renders one line per service that is not healthy, sorted by
// service name. It returns "" when every service is healthy.
func Summary(services []domain.ServiceHealth) string {
	var lines []string
	for _, s := range services {
		if s.Health == domain.HealthStatusHealthy {
			continue
		}
		line := fmt.Sprintf("%s: %s (%s", s.Service, s.Health, s.Status)
		if s.Restarts > 0 {
			line += fmt.Sprintf(", %d restarts", s.Restarts)
		}
		lines = append(lines, line+")")
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}
