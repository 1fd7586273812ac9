// Package manifest turns an InstallationTarget into the service definitions,
// routes and credentials of one installation, and bundles them into the
// files written to the config directory.
//
// Generation is part of the functional core. For the same target, input and
// existing credentials it returns the same definitions in the same order.
package manifest

import (
	"errors"
	"fmt"

	"github.com/artpar/flowstack/internal/core/deployment"
)

// =============================================================================
// Errors
// =============================================================================

var (
	ErrUnknownComponent   = errors.New("component not in catalog")
	ErrCircularDependency = deployment.ErrCircularDependency
	ErrMissingCore        = errors.New("core component missing from manifest")
	ErrDuplicateService   = errors.New("duplicate service definition")
	ErrDanglingRoute      = errors.New("route targets a service that is not defined")
	ErrMixedExposure      = errors.New("ports and routes are mixed")
)

// GenerationError reports which component failed to generate.
type GenerationError struct {
	Component string
	Message   string
	Err       error
}

func (e *GenerationError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("generate %s: %s", e.Component, e.Message)
	}
	return "generate manifest: " + e.Message
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// NewGenerationError creates a new GenerationError.
func NewGenerationError(component, message string, err error) *GenerationError {
	return &GenerationError{
		Component: component,
		Message:   message,
		Err:       err,
	}
}
