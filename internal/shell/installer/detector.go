// Package installer wires the installation phases: detection, cleanup,
// configuration, manifest generation, host provisioning, deployment and
// health verification.
package installer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/artpar/flowstack/internal/core/domain"
)

// =============================================================================
// Detection
// =============================================================================

// ResourceInspector finds the resources of one kind that belong to the
// installation. Inspection is read-only.
type ResourceInspector interface {
	Kind() domain.ResourceKind
	Inspect(ctx context.Context) ([]string, error)
}

// Detector builds the installation state from a set of inspectors.
type Detector struct {
	inspectors []ResourceInspector
	logger     *slog.Logger
}

// NewDetector creates a detector.
func NewDetector(logger *slog.Logger, inspectors ...ResourceInspector) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{inspectors: inspectors, logger: logger.With("component", "detector")}
}

// Detect runs every inspector. Any inspector error fails detection.
func (d *Detector) Detect(ctx context.Context) (domain.InstallationState, error) {
	state := domain.NewInstallationState()
	for _, inspector := range d.inspectors {
		names, err := inspector.Inspect(ctx)
		if err != nil {
			return domain.InstallationState{}, fmt.Errorf("inspect %s: %w", inspector.Kind(), err)
		}
		if len(names) > 0 {
			state = state.With(inspector.Kind(), names...)
		}
	}
	d.logger.Info("installation state detected", "exists", state.Exists(), "resources", state.Summary())
	return state, nil
}

// =============================================================================
// Disposition
// =============================================================================

// ErrNoDisposition is returned when an installation exists, nobody can be
// asked and no disposition is configured.
var ErrNoDisposition = fmt.Errorf("%w: existing installation found while unattended and no disposition configured", domain.ErrValidation)

// DispositionChooser asks the operator what to do with an existing installation.
type DispositionChooser interface {
	ChooseDisposition(ctx context.Context, state domain.InstallationState) (domain.Disposition, error)
}

// DispositionPolicy decides the disposition when an installation exists.
type DispositionPolicy struct {
	// Configured is honored in both modes when set.
	Configured domain.Disposition

	// UnattendedDefault applies when unattended and nothing is configured:
	// fail, keep or reuse.
	UnattendedDefault domain.Disposition

	// Chooser is asked when attended. Nil means unattended.
	Chooser DispositionChooser
}

// Resolve returns DispositionNone when nothing exists. Otherwise the
// configured disposition wins, then the operator's answer, then the
// unattended default. A fail default is ErrNoDisposition.
func (p DispositionPolicy) Resolve(ctx context.Context, state domain.InstallationState) (domain.Disposition, error) {
	if !state.Exists() {
		return domain.DispositionNone, nil
	}

	d := p.Configured
	if d == domain.DispositionNone && p.Chooser != nil {
		chosen, err := p.Chooser.ChooseDisposition(ctx, state)
		if err != nil {
			return domain.DispositionNone, fmt.Errorf("choose disposition: %w", err)
		}
		d = chosen
	}
	if d == domain.DispositionNone {
		d = p.UnattendedDefault
	}

	switch d {
	case domain.DispositionKeep, domain.DispositionClean, domain.DispositionExit, domain.DispositionReuse:
		return d, nil
	}
	return domain.DispositionNone, ErrNoDisposition
}
