package docker

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/artpar/flowstack/internal/core/deployment"
	"github.com/artpar/flowstack/internal/core/domain"
)

// =============================================================================
// Resource Inspectors
// =============================================================================

// An unreachable daemon is reported as an empty result: on a fresh host the
// runtime is not installed yet, so nothing of the installation can exist.

// ContainerInspector finds every container of an installation, in any state.
type ContainerInspector struct {
	client Client
	prefix string
}

// NewContainerInspector creates an inspector for the named installation.
func NewContainerInspector(client Client, installation string) *ContainerInspector {
	return &ContainerInspector{client: client, prefix: deployment.ResourcePrefix(installation)}
}

// Kind implements the inspector contract.
func (i *ContainerInspector) Kind() domain.ResourceKind { return domain.ResourceContainers }

// Inspect lists the names of matching containers.
func (i *ContainerInspector) Inspect(ctx context.Context) ([]string, error) {
	containers, err := i.client.ListContainers(ctx, ListOptions{
		All:     true,
		Filters: map[string]string{"name": i.prefix},
	})
	if err != nil {
		return absentOnConnectionFailure(err)
	}

	// The name filter is a substring match.
	var names []string
	for _, c := range containers {
		if strings.HasPrefix(c.Name, i.prefix) {
			names = append(names, c.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// VolumeInspector finds every named volume of an installation.
type VolumeInspector struct {
	client Client
	prefix string
}

// NewVolumeInspector creates an inspector for the named installation.
func NewVolumeInspector(client Client, installation string) *VolumeInspector {
	return &VolumeInspector{client: client, prefix: deployment.ResourcePrefix(installation)}
}

// Kind implements the inspector contract.
func (i *VolumeInspector) Kind() domain.ResourceKind { return domain.ResourceVolumes }

// Inspect lists the names of matching volumes.
func (i *VolumeInspector) Inspect(ctx context.Context) ([]string, error) {
	volumes, err := i.client.ListVolumes(ctx, ListOptions{Filters: map[string]string{"name": i.prefix}})
	if err != nil {
		return absentOnConnectionFailure(err)
	}

	var names []string
	for _, v := range volumes {
		if strings.HasPrefix(v.Name, i.prefix) {
			names = append(names, v.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// NetworkInspector finds the shared network of an installation.
type NetworkInspector struct {
	client Client
	name   string
}

// NewNetworkInspector creates an inspector for the named installation.
func NewNetworkInspector(client Client, installation string) *NetworkInspector {
	return &NetworkInspector{client: client, name: deployment.NetworkName(installation)}
}

// Kind implements the inspector contract.
func (i *NetworkInspector) Kind() domain.ResourceKind { return domain.ResourceNetwork }

// Inspect returns the network name when it exists.
func (i *NetworkInspector) Inspect(ctx context.Context) ([]string, error) {
	networks, err := i.client.ListNetworks(ctx, ListOptions{Filters: map[string]string{"name": i.name}})
	if err != nil {
		return absentOnConnectionFailure(err)
	}

	for _, n := range networks {
		if n.Name == i.name {
			return []string{n.Name}, nil
		}
	}
	return nil, nil
}

func absentOnConnectionFailure(err error) ([]string, error) {
	if errors.Is(err, ErrConnectionFailed) {
		return nil, nil
	}
	return nil, err
}
