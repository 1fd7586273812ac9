package compose

import (
	"fmt"
	"strconv"
	"time"

	"github.com/compose-spec/compose-go/v2/types"
)

// =============================================================================
// Rendering
// =============================================================================

// Render serializes a spec into a compose document.
//
// The document is built as a compose-go Project and marshaled by compose-go,
// so map keys come out sorted and the same spec always renders to the same
// bytes. A depends_on edge waits for service_healthy when the dependency
// declares a health check and for service_started otherwise.
func Render(spec *ParsedSpec) ([]byte, error) {
	if spec == nil || len(spec.Services) == 0 {
		return nil, ErrNoServices
	}

	project, err := ToProject(spec)
	if err != nil {
		return nil, err
	}

	out, err := project.MarshalYAML()
	if err != nil {
		return nil, fmt.Errorf("marshal compose project: %w", err)
	}
	return out, nil
}

// ToProject converts a spec into a compose-go Project.
func ToProject(spec *ParsedSpec) (*types.Project, error) {
	healthy := make(map[string]bool, len(spec.Services))
	for _, svc := range spec.Services {
		healthy[svc.Name] = svc.HealthCheck != nil
	}

	project := &types.Project{
		Name:     spec.Name,
		Services: types.Services{},
		Networks: types.Networks{},
		Volumes:  types.Volumes{},
	}

	for _, svc := range spec.Services {
		if _, dup := project.Services[svc.Name]; dup {
			return nil, NewParseError("services."+svc.Name, "duplicate service", ErrInvalidYAML)
		}
		converted, err := toServiceConfig(svc, healthy)
		if err != nil {
			return nil, err
		}
		project.Services[svc.Name] = converted
	}

	for _, net := range spec.Networks {
		project.Networks[net.Key] = types.NetworkConfig{
			Name:   net.Name,
			Driver: net.Driver,
			Labels: net.Labels,
		}
	}

	for _, vol := range spec.Volumes {
		project.Volumes[vol.Key] = types.VolumeConfig{
			Name:     vol.Name,
			Driver:   vol.Driver,
			External: types.External(vol.External),
			Labels:   vol.Labels,
		}
	}

	return project, nil
}

func toServiceConfig(svc Service, healthy map[string]bool) (types.ServiceConfig, error) {
	if svc.Image == "" && svc.Build == nil {
		return types.ServiceConfig{}, NewParseError("services."+svc.Name, "service must have image or build", ErrServiceNoImage)
	}

	out := types.ServiceConfig{
		Name:          svc.Name,
		ContainerName: svc.ContainerName,
		Image:         svc.Image,
		Command:       svc.Command,
		Entrypoint:    svc.Entrypoint,
		Restart:       string(svc.Restart),
	}

	if svc.Build != nil {
		out.Build = &types.BuildConfig{
			Context:    svc.Build.Context,
			Dockerfile: svc.Build.Dockerfile,
		}
	}

	for i, p := range svc.Ports {
		if p.Target == 0 {
			return types.ServiceConfig{}, NewParseError(fmt.Sprintf("services.%s.ports[%d]", svc.Name, i),
				"target port must be set", ErrServiceInvalidPort)
		}
		port := types.ServicePortConfig{
			Target:   p.Target,
			Protocol: p.Protocol,
			HostIP:   p.HostIP,
		}
		if p.Published != 0 {
			port.Published = strconv.FormatUint(uint64(p.Published), 10)
		}
		out.Ports = append(out.Ports, port)
	}

	if len(svc.Environment) > 0 {
		out.Environment = types.MappingWithEquals{}
		for k, v := range svc.Environment {
			value := v
			out.Environment[k] = &value
		}
	}

	for _, v := range svc.Volumes {
		out.Volumes = append(out.Volumes, types.ServiceVolumeConfig{
			Type:     string(v.Type),
			Source:   v.Source,
			Target:   v.Target,
			ReadOnly: v.ReadOnly,
		})
	}

	if len(svc.Networks) > 0 {
		out.Networks = make(map[string]*types.ServiceNetworkConfig, len(svc.Networks))
		for _, net := range svc.Networks {
			out.Networks[net] = nil
		}
	}

	if len(svc.DependsOn) > 0 {
		out.DependsOn = types.DependsOnConfig{}
		for _, dep := range svc.DependsOn {
			condition := types.ServiceConditionStarted
			if healthy[dep] {
				condition = types.ServiceConditionHealthy
			}
			out.DependsOn[dep] = types.ServiceDependency{Condition: condition, Required: true}
		}
	}

	if len(svc.Labels) > 0 {
		out.Labels = types.Labels{}
		for k, v := range svc.Labels {
			out.Labels[k] = v
		}
	}

	if hc := svc.HealthCheck; hc != nil {
		cfg := &types.HealthCheckConfig{Test: hc.Test}
		if hc.Retries > 0 {
			retries := uint64(hc.Retries)
			cfg.Retries = &retries
		}
		cfg.Interval = durationPtr(hc.Interval)
		cfg.Timeout = durationPtr(hc.Timeout)
		cfg.StartPeriod = durationPtr(hc.StartPeriod)
		out.HealthCheck = cfg
	}

	return out, nil
}

func durationPtr(s string) *types.Duration {
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return nil
	}
	td := types.Duration(d)
	return &td
}
