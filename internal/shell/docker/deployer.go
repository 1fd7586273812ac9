package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/artpar/flowstack/internal/core/compose"
	"github.com/artpar/flowstack/internal/core/deployment"
	"github.com/artpar/flowstack/internal/core/domain"
	"github.com/artpar/flowstack/internal/core/monitoring"
	"github.com/docker/docker/pkg/stdcopy"
)

// =============================================================================
// Deployer - Brings an Installation Up
// =============================================================================

// Deployer creates the network, volumes, images and containers described by
// a compose document.
type Deployer struct {
	docker Client
	logger *slog.Logger
}

// NewDeployer creates a new deployer.
func NewDeployer(docker Client, logger *slog.Logger) *Deployer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deployer{docker: docker, logger: logger.With("component", "deployer")}
}

// DeployRequest is one deployment of a written compose document.
type DeployRequest struct {
	Installation string
	ProjectDir   string // absolute; relative bind mounts and build contexts resolve here
	Compose      []byte
	Env          map[string]string
}

// ContainerAction records what Deploy did with a container.
type ContainerAction string

const (
	ActionCreated   ContainerAction = "created"
	ActionRecreated ContainerAction = "recreated"
	ActionUnchanged ContainerAction = "unchanged"
)

// DeployedContainer is one container brought up by Deploy.
type DeployedContainer struct {
	Service string
	Name    string
	ID      string
	Action  ContainerAction
}

// Deploy brings every service of the document up, in dependency order.
//
// Deploy is idempotent: existing resources are reused, and a container whose
// configuration hash matches the plan is only started. A container with a
// different hash is replaced. Nothing is rolled back on failure; a second
// call picks up where the first stopped.
func (d *Deployer) Deploy(ctx context.Context, req DeployRequest) ([]DeployedContainer, error) {
	spec, err := compose.ParseComposeSpec(string(req.Compose))
	if err != nil {
		return nil, fmt.Errorf("parse compose document: %w", err)
	}
	if err := compose.CheckVariables(string(req.Compose), req.Env); err != nil {
		return nil, err
	}

	ordered, err := deployment.TopologicalSort(spec.Services)
	if err != nil {
		return nil, err
	}

	d.logger.Info("deploying",
		"installation", req.Installation,
		"services", len(ordered),
		"volumes", len(spec.Volumes),
	)

	networkName := deployment.NetworkName(req.Installation)
	if len(spec.Networks) > 0 {
		networkName = spec.Networks[0].Name
	}
	if err := d.ensureNetwork(ctx, req.Installation, networkName); err != nil {
		return nil, err
	}

	for _, vol := range spec.Volumes {
		if vol.External {
			continue
		}
		if err := d.ensureVolume(ctx, req.Installation, deployment.VolumeName(req.Installation, vol.Key)); err != nil {
			return nil, err
		}
	}

	for _, svc := range ordered {
		if err := d.ensureImage(ctx, req.ProjectDir, svc); err != nil {
			return nil, err
		}
	}

	deployed := make([]DeployedContainer, 0, len(ordered))
	for _, svc := range ordered {
		plan := deployment.BuildContainerPlan(deployment.BuildContainerPlanParams{
			Installation: req.Installation,
			Service:      svc,
			Variables:    req.Env,
			NetworkName:  networkName,
			ProjectDir:   req.ProjectDir,
		})

		c, err := d.ensureContainer(ctx, plan)
		if err != nil {
			return deployed, fmt.Errorf("service %s: %w", svc.Name, err)
		}
		deployed = append(deployed, c)
		d.logger.Debug("container up", "service", c.Service, "action", c.Action)
	}

	return deployed, nil
}

// =============================================================================
// Status
// =============================================================================

// Status evaluates the health of each service's container.
// A missing container is unhealthy.
func (d *Deployer) Status(ctx context.Context, installation string, services []string) ([]domain.ServiceHealth, error) {
	result := make([]domain.ServiceHealth, 0, len(services))
	for _, svc := range services {
		info, err := d.docker.InspectContainer(ctx, deployment.ContainerName(installation, svc))
		if err != nil {
			if !errors.Is(err, ErrContainerNotFound) {
				return nil, err
			}
			result = append(result, domain.ServiceHealth{
				Service: svc,
				Status:  "missing",
				Health:  domain.HealthStatusUnhealthy,
			})
			continue
		}
		result = append(result, domain.ServiceHealth{
			Service:  svc,
			Status:   string(info.Status),
			Health:   monitoring.DetermineContainerHealth(string(info.Status), info.HealthPtr(), info.RestartCount),
			Restarts: info.RestartCount,
		})
	}
	return result, nil
}

// Logs returns the last lines of a container's combined output.
func (d *Deployer) Logs(ctx context.Context, containerName string, tail int) (string, error) {
	reader, err := d.docker.ContainerLogs(ctx, containerName, LogOptions{Tail: fmt.Sprintf("%d", tail)})
	if err != nil {
		return "", err
	}
	defer reader.Close()

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, reader); err != nil {
		return "", fmt.Errorf("read logs of %s: %w", containerName, err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// =============================================================================
// Helper Methods
// =============================================================================

func (d *Deployer) ensureNetwork(ctx context.Context, installation, name string) error {
	_, err := d.docker.CreateNetwork(ctx, NetworkSpec{
		Name:   name,
		Driver: "bridge",
		Labels: managedLabels(installation),
	})
	if err != nil {
		if errors.Is(err, ErrNetworkAlreadyExists) {
			d.logger.Debug("network already exists, reusing", "network", name)
			return nil
		}
		return err
	}
	d.logger.Info("created network", "network", name)
	return nil
}

func (d *Deployer) ensureVolume(ctx context.Context, installation, name string) error {
	// Creating an existing local volume is a no-op in the engine.
	if _, err := d.docker.CreateVolume(ctx, VolumeSpec{Name: name, Labels: managedLabels(installation)}); err != nil {
		return err
	}
	d.logger.Debug("volume ready", "volume", name)
	return nil
}

func (d *Deployer) ensureImage(ctx context.Context, projectDir string, svc compose.Service) error {
	exists, err := d.docker.ImageExists(ctx, svc.Image)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	if svc.Build != nil {
		contextDir := svc.Build.Context
		if !filepath.IsAbs(contextDir) {
			contextDir = filepath.Join(projectDir, strings.TrimPrefix(contextDir, "./"))
		}
		d.logger.Info("building image", "image", svc.Image, "context", contextDir)
		return d.docker.BuildImage(ctx, BuildSpec{
			ContextDir: contextDir,
			Dockerfile: svc.Build.Dockerfile,
			Tag:        svc.Image,
		})
	}

	d.logger.Info("pulling image", "image", svc.Image)
	return d.docker.PullImage(ctx, svc.Image, PullOptions{})
}

func (d *Deployer) ensureContainer(ctx context.Context, plan deployment.ContainerPlan) (DeployedContainer, error) {
	out := DeployedContainer{Service: plan.Service, Name: plan.Name, Action: ActionCreated}

	existing, err := d.docker.InspectContainer(ctx, plan.Name)
	switch {
	case err == nil && existing.Labels[deployment.LabelConfigHash] == plan.Labels[deployment.LabelConfigHash]:
		out.ID = existing.ID
		out.Action = ActionUnchanged
	case err == nil:
		d.logger.Info("configuration changed, replacing container", "container", plan.Name)
		if err := d.docker.RemoveContainer(ctx, existing.ID, RemoveOptions{Force: true}); err != nil && !IsNotFound(err) {
			return out, err
		}
		out.Action = ActionRecreated
	case !errors.Is(err, ErrContainerNotFound):
		return out, err
	}

	if out.ID == "" {
		id, err := d.docker.CreateContainer(ctx, containerSpec(plan))
		if err != nil {
			return out, err
		}
		out.ID = id
	}

	if err := d.docker.StartContainer(ctx, out.ID); err != nil && !errors.Is(err, ErrContainerAlreadyRunning) {
		return out, err
	}
	return out, nil
}

// containerSpec converts a plan into the client's create request.
func containerSpec(plan deployment.ContainerPlan) ContainerSpec {
	spec := ContainerSpec{
		Name:       plan.Name,
		Image:      plan.Image,
		Command:    plan.Command,
		Entrypoint: plan.Entrypoint,
		Env:        plan.Env,
		Labels:     plan.Labels,
		Networks:   plan.Networks,
		RestartPolicy: RestartPolicy{
			Name:              plan.RestartPolicy.Name,
			MaximumRetryCount: plan.RestartPolicy.MaximumRetryCount,
		},
		Resources: ResourceLimits{
			CPULimit:    plan.Resources.CPULimit,
			MemoryLimit: plan.Resources.MemoryLimit,
		},
	}

	if len(plan.NetworkAliases) > 0 {
		spec.NetworkAliases = make(map[string][]string, len(plan.Networks))
		for _, n := range plan.Networks {
			spec.NetworkAliases[n] = plan.NetworkAliases
		}
	}

	for _, p := range plan.Ports {
		spec.Ports = append(spec.Ports, PortBinding{
			ContainerPort: p.ContainerPort,
			HostPort:      p.HostPort,
			Protocol:      p.Protocol,
			HostIP:        p.HostIP,
		})
	}

	for _, v := range plan.Volumes {
		spec.Volumes = append(spec.Volumes, VolumeMount{
			Source:   v.Source,
			Target:   v.Target,
			ReadOnly: v.ReadOnly,
			Bind:     v.Bind,
		})
	}

	if plan.HealthCheck != nil {
		spec.HealthCheck = &HealthCheck{
			Test:        plan.HealthCheck.Test,
			Interval:    plan.HealthCheck.Interval,
			Timeout:     plan.HealthCheck.Timeout,
			Retries:     plan.HealthCheck.Retries,
			StartPeriod: plan.HealthCheck.StartPeriod,
		}
	}

	return spec
}

func managedLabels(installation string) map[string]string {
	return map[string]string{
		deployment.LabelManaged:      "true",
		deployment.LabelInstallation: installation,
	}
}
