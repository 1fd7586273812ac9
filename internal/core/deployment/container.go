package deployment

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"path/filepath"
	"strings"
	"time"

	"github.com/artpar/flowstack/internal/core/compose"
)

// =============================================================================
// Container Plan Building Functions
// =============================================================================

// BuildContainerPlan builds a ContainerPlan from a parsed manifest service.
//
// The function:
//   - Names the container with ContainerName()
//   - Resolves ${VAR} placeholders in the environment from the env file
//   - Prefixes named volumes with the installation name
//   - Resolves relative bind mounts against the project directory
//   - Parses health check durations
//   - Maps the restart policy to the runtime's names
//   - Adds identification labels and a hash of the resulting configuration
//
// Example:
//
//	plan := BuildContainerPlan(BuildContainerPlanParams{
//	    Installation: "flowstack",
//	    Service:      compose.Service{Name: "n8n", Image: "n8nio/n8n:latest"},
//	    Variables:    env,
//	    NetworkName:  "flowstack_network",
//	    ProjectDir:   "/opt/flowstack",
//	})
func BuildContainerPlan(params BuildContainerPlanParams) ContainerPlan {
	svc := params.Service

	plan := ContainerPlan{
		Name:       ContainerName(params.Installation, svc.Name),
		Service:    svc.Name,
		Image:      svc.Image,
		Command:    svc.Command,
		Entrypoint: svc.Entrypoint,
		Env:        make(map[string]string, len(svc.Environment)),
		Labels: map[string]string{
			LabelManaged:        "true",
			LabelInstallation:   params.Installation,
			LabelService:        svc.Name,
			LabelComposeProject: params.Installation,
			LabelComposeService: svc.Name,
		},
		Networks:       []string{params.NetworkName},
		NetworkAliases: []string{svc.Name},
	}

	for k, v := range svc.Environment {
		plan.Env[k] = SubstituteVariables(v, params.Variables)
	}

	for _, p := range svc.Ports {
		plan.Ports = append(plan.Ports, PortPlan{
			ContainerPort: int(p.Target),
			HostPort:      int(p.Published),
			Protocol:      p.Protocol,
			HostIP:        p.HostIP,
		})
	}

	for _, v := range svc.Volumes {
		mount := VolumePlan{Source: v.Source, Target: v.Target, ReadOnly: v.ReadOnly}
		switch v.Type {
		case compose.VolumeMountTypeVolume:
			mount.Source = VolumeName(params.Installation, v.Source)
		case compose.VolumeMountTypeBind:
			mount.Bind = true
			if !filepath.IsAbs(v.Source) && params.ProjectDir != "" {
				mount.Source = filepath.Join(params.ProjectDir, strings.TrimPrefix(v.Source, "./"))
			}
		}
		plan.Volumes = append(plan.Volumes, mount)
	}

	if svc.HealthCheck != nil {
		plan.HealthCheck = &HealthCheckPlan{
			Test:        svc.HealthCheck.Test,
			Retries:     svc.HealthCheck.Retries,
			Interval:    parseDuration(svc.HealthCheck.Interval),
			Timeout:     parseDuration(svc.HealthCheck.Timeout),
			StartPeriod: parseDuration(svc.HealthCheck.StartPeriod),
		}
	}

	if svc.Resources.CPULimit > 0 {
		plan.Resources.CPULimit = svc.Resources.CPULimit
	}
	if svc.Resources.MemoryLimit > 0 {
		plan.Resources.MemoryLimit = svc.Resources.MemoryLimit
	}

	plan.RestartPolicy = mapRestartPolicy(svc.Restart)

	for k, v := range svc.Labels {
		plan.Labels[k] = v
	}

	plan.Labels[LabelConfigHash] = ConfigHash(plan)

	return plan
}

// ConfigHash fingerprints everything in a plan except the hash label itself.
// Two plans with the same hash produce the same container.
func ConfigHash(plan ContainerPlan) string {
	labels := make(map[string]string, len(plan.Labels))
	for k, v := range plan.Labels {
		if k != LabelConfigHash {
			labels[k] = v
		}
	}
	plan.Labels = labels

	// Maps marshal with sorted keys, so the encoding is stable.
	data, _ := json.Marshal(plan)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func parseDuration(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

// mapRestartPolicy maps compose restart policy to Docker restart policy name.
func mapRestartPolicy(policy compose.RestartPolicy) RestartPolicyPlan {
	switch policy {
	case compose.RestartAlways:
		return RestartPolicyPlan{Name: "always"}
	case compose.RestartOnFailure:
		return RestartPolicyPlan{Name: "on-failure"}
	case compose.RestartUnlessStopped:
		return RestartPolicyPlan{Name: "unless-stopped"}
	default:
		return RestartPolicyPlan{Name: "no"}
	}
}
