package domain

import (
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// Installation State
// =============================================================================

// ResourceKind is a kind of host resource the installer may have created.
type ResourceKind string

const (
	ResourceContainers ResourceKind = "containers"
	ResourceVolumes    ResourceKind = "volumes"
	ResourceNetwork    ResourceKind = "network"
	ResourceConfigDir  ResourceKind = "config_dir"
)

// ResourceKinds lists every kind in inspection order.
func ResourceKinds() []ResourceKind {
	return []ResourceKind{ResourceContainers, ResourceVolumes, ResourceNetwork, ResourceConfigDir}
}

// InstallationState is a snapshot of which resources of an installation exist.
type InstallationState struct {
	resources map[ResourceKind][]string
}

// NewInstallationState creates an empty state.
func NewInstallationState() InstallationState {
	return InstallationState{resources: make(map[ResourceKind][]string)}
}

// With returns a copy of the state with names recorded under kind.
func (s InstallationState) With(kind ResourceKind, names ...string) InstallationState {
	next := make(map[ResourceKind][]string, len(s.resources)+1)
	for k, v := range s.resources {
		next[k] = v
	}
	merged := append(append([]string{}, s.resources[kind]...), names...)
	sort.Strings(merged)
	next[kind] = merged
	return InstallationState{resources: next}
}

// Names returns the resources found for kind.
func (s InstallationState) Names(kind ResourceKind) []string {
	return append([]string{}, s.resources[kind]...)
}

// Present reports whether any resource of kind was found.
func (s InstallationState) Present(kind ResourceKind) bool {
	return len(s.resources[kind]) > 0
}

// Exists reports whether any resource at all was found.
func (s InstallationState) Exists() bool {
	for _, names := range s.resources {
		if len(names) > 0 {
			return true
		}
	}
	return false
}

// Summary renders the state as "kind=n" pairs for logs.
func (s InstallationState) Summary() string {
	parts := make([]string, 0, len(s.resources))
	for _, kind := range ResourceKinds() {
		parts = append(parts, fmt.Sprintf("%s=%d", kind, len(s.resources[kind])))
	}
	return strings.Join(parts, " ")
}

// =============================================================================
// Disposition
// =============================================================================

// Disposition is what to do with an installation that already exists.
type Disposition string

const (
	DispositionNone Disposition = ""
	// DispositionKeep leaves everything in place and ends the run successfully.
	DispositionKeep Disposition = "keep"
	// DispositionClean removes every resource and installs from scratch.
	DispositionClean Disposition = "clean"
	// DispositionExit aborts the run without changes.
	DispositionExit Disposition = "exit"
	// DispositionReuse installs over the existing resources and keeps credentials.
	DispositionReuse Disposition = "reuse"
	// DispositionFail is only valid as the unattended default: the run fails.
	DispositionFail Disposition = "fail"
)

// ParseDisposition parses a configured disposition. An empty string yields
// DispositionNone.
func ParseDisposition(s string) (Disposition, error) {
	d := Disposition(strings.ToLower(strings.TrimSpace(s)))
	switch d {
	case DispositionNone, DispositionKeep, DispositionClean, DispositionExit, DispositionReuse, DispositionFail:
		return d, nil
	}
	return DispositionNone, NewValidationError("disposition", s, fmt.Sprintf("unknown disposition %q", s), ErrInvalidDisposition)
}
