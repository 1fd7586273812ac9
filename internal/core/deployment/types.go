package deployment

import (
	"time"

	"github.com/artpar/flowstack/internal/core/compose"
)

// =============================================================================
// Container Plan Types
// =============================================================================

// ContainerPlan represents a planned container configuration.
// This is the pure output of planning, ready for the shell to execute.
type ContainerPlan struct {
	Name           string
	Service        string
	Image          string
	Command        []string
	Entrypoint     []string
	Env            map[string]string
	Labels         map[string]string
	Ports          []PortPlan
	Volumes        []VolumePlan
	Networks       []string
	NetworkAliases []string
	RestartPolicy  RestartPolicyPlan
	Resources      ResourcePlan
	HealthCheck    *HealthCheckPlan
}

// PortPlan represents a planned port binding.
type PortPlan struct {
	ContainerPort int
	HostPort      int
	Protocol      string
	HostIP        string
}

// VolumePlan represents a planned volume or bind mount.
type VolumePlan struct {
	Source   string
	Target   string
	ReadOnly bool
	Bind     bool
}

// RestartPolicyPlan represents a restart policy.
type RestartPolicyPlan struct {
	Name              string
	MaximumRetryCount int
}

// ResourcePlan represents resource limits.
type ResourcePlan struct {
	CPULimit    float64
	MemoryLimit int64
}

// HealthCheckPlan represents a health check configuration.
type HealthCheckPlan struct {
	Test        []string
	Interval    time.Duration
	Timeout     time.Duration
	Retries     int
	StartPeriod time.Duration
}

// =============================================================================
// Builder Parameter Types
// =============================================================================

// BuildContainerPlanParams contains all inputs for building a container plan.
type BuildContainerPlanParams struct {
	Installation string
	Service      compose.Service
	Variables    map[string]string
	NetworkName  string
	// ProjectDir resolves relative bind mount sources such as ./Caddyfile.
	ProjectDir string
}

// =============================================================================
// Container Labels
// =============================================================================

// Label keys used to identify flowstack containers.
const (
	LabelManaged      = "com.flowstack.managed"
	LabelInstallation = "com.flowstack.installation"
	LabelService      = "com.flowstack.service"
	LabelConfigHash   = "com.flowstack.config-hash"

	// The compose labels let the generated manage.sh operate on containers
	// created through the API.
	LabelComposeProject = "com.docker.compose.project"
	LabelComposeService = "com.docker.compose.service"
)
