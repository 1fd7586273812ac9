package domain

// =============================================================================
// Health Types
// =============================================================================

// HealthStatus represents the health of a service or of the whole stack.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnknown   HealthStatus = "unknown"
)

// ServiceHealth is the observed health of one deployed service.
type ServiceHealth struct {
	Service  string       `json:"service"`
	Status   string       `json:"status"` // running, exited, restarting, ...
	Health   HealthStatus `json:"health"`
	Restarts int          `json:"restarts"`
}
