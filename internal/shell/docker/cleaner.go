package docker

import (
	"context"
	"log/slog"
	"time"

	"github.com/artpar/flowstack/internal/core/domain"
	"github.com/hashicorp/go-multierror"
)

// =============================================================================
// Cleaner
// =============================================================================

// stopTimeout bounds graceful shutdown before a container is killed.
const stopTimeout = 10 * time.Second

// Cleaner removes the runtime resources of an installation.
type Cleaner struct {
	client Client
	logger *slog.Logger
}

// NewCleaner creates a cleaner.
func NewCleaner(client Client, logger *slog.Logger) *Cleaner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cleaner{client: client, logger: logger.With("component", "cleaner")}
}

// Clean removes the containers, network and volumes listed in state.
// Order: containers → network → volumes.
//
// Every resource is attempted even when an earlier one fails; failures are
// returned together. A resource that is already gone counts as removed, so
// calling Clean again after a partial failure converges.
func (c *Cleaner) Clean(ctx context.Context, state domain.InstallationState) error {
	var result *multierror.Error
	timeout := stopTimeout

	for _, name := range state.Names(domain.ResourceContainers) {
		if err := c.client.StopContainer(ctx, name, &timeout); err != nil && !IsNotFound(err) {
			c.logger.Debug("stop before remove failed", "container", name, "error", err)
		}
		if err := c.client.RemoveContainer(ctx, name, RemoveOptions{Force: true}); err != nil && !IsNotFound(err) {
			result = multierror.Append(result, err)
			continue
		}
		c.logger.Info("removed container", "container", name)
	}

	for _, name := range state.Names(domain.ResourceNetwork) {
		if err := c.client.RemoveNetwork(ctx, name); err != nil && !IsNotFound(err) {
			result = multierror.Append(result, err)
			continue
		}
		c.logger.Info("removed network", "network", name)
	}

	for _, name := range state.Names(domain.ResourceVolumes) {
		if err := c.client.RemoveVolume(ctx, name, true); err != nil && !IsNotFound(err) {
			result = multierror.Append(result, err)
			continue
		}
		c.logger.Info("removed volume", "volume", name)
	}

	return result.ErrorOrNil()
}
