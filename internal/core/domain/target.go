package domain

import (
	"strings"
)

// =============================================================================
// Installation Target
// =============================================================================

// DefaultInstallationName is the resource prefix used when none is configured.
const DefaultInstallationName = "flowstack"

// Features holds cross-cutting feature flags.
type Features struct {
	// MediaTools swaps the core image for a locally built variant with ffmpeg.
	MediaTools bool
}

// DomainConfig is the root domain plus per-component subdomain overrides.
type DomainConfig struct {
	Root       string
	Subdomains map[ComponentID]string
}

// Label returns the subdomain label for a component, or def when not overridden.
func (d DomainConfig) Label(id ComponentID, def string) string {
	if label, ok := d.Subdomains[id]; ok && label != "" {
		return label
	}
	return def
}

// Hostname joins a component label with the root domain.
func (d DomainConfig) Hostname(id ComponentID, defaultLabel string) string {
	return d.Label(id, defaultLabel) + "." + d.Root
}

// TargetParams are the collected, unvalidated inputs for a run.
type TargetParams struct {
	Name          string
	Components    []ComponentID
	Domain        string
	Subdomains    map[ComponentID]string
	AdminIdentity string
	Timezone      string
	MediaTools    bool
	ConfigDir     string
}

// InstallationTarget is the per-run installation intent. It is built once
// from collected configuration and exposes read-only accessors.
type InstallationTarget struct {
	name          string
	components    []ComponentID
	domain        *DomainConfig
	adminIdentity string
	timezone      string
	features      Features
	configDir     string
}

// NewInstallationTarget normalizes params into a target.
//
// The core component is always present. The reverse proxy is added when a
// domain is configured and dropped when it is not, since it has nothing to
// route without one. Subdomain overrides for components that are not
// selected are ignored.
//
// Inputs are expected to be validated already (see validation.NewTarget).
func NewInstallationTarget(p TargetParams) InstallationTarget {
	root := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(p.Domain)), ".")

	selected := map[ComponentID]bool{CoreComponent: true}
	for _, c := range p.Components {
		selected[c] = true
	}
	if root != "" {
		selected[ComponentCaddy] = true
	} else {
		delete(selected, ComponentCaddy)
	}

	components := make([]ComponentID, 0, len(selected))
	for _, c := range allComponents {
		if selected[c] {
			components = append(components, c)
		}
	}

	var dc *DomainConfig
	if root != "" {
		dc = &DomainConfig{Root: root, Subdomains: make(map[ComponentID]string)}
		for id, label := range p.Subdomains {
			label = strings.ToLower(strings.TrimSpace(label))
			if selected[id] && label != "" {
				dc.Subdomains[id] = label
			}
		}
	}

	name := strings.TrimSpace(p.Name)
	if name == "" {
		name = DefaultInstallationName
	}

	return InstallationTarget{
		name:          name,
		components:    components,
		domain:        dc,
		adminIdentity: strings.TrimSpace(p.AdminIdentity),
		timezone:      p.Timezone,
		features:      Features{MediaTools: p.MediaTools},
		configDir:     p.ConfigDir,
	}
}

// Name is the resource prefix of the installation.
func (t InstallationTarget) Name() string { return t.name }

// Components returns the selected components in catalog order.
func (t InstallationTarget) Components() []ComponentID {
	out := make([]ComponentID, len(t.components))
	copy(out, t.components)
	return out
}

// Has reports whether a component is selected.
func (t InstallationTarget) Has(id ComponentID) bool {
	for _, c := range t.components {
		if c == id {
			return true
		}
	}
	return false
}

// DomainMode reports whether a root domain is configured.
func (t InstallationTarget) DomainMode() bool { return t.domain != nil }

// Domain returns a copy of the domain configuration, or nil in port mode.
func (t InstallationTarget) Domain() *DomainConfig {
	if t.domain == nil {
		return nil
	}
	subs := make(map[ComponentID]string, len(t.domain.Subdomains))
	for k, v := range t.domain.Subdomains {
		subs[k] = v
	}
	return &DomainConfig{Root: t.domain.Root, Subdomains: subs}
}

// AdminIdentity is the admin email or identifier.
func (t InstallationTarget) AdminIdentity() string { return t.adminIdentity }

// Timezone is the IANA timezone passed to the services.
func (t InstallationTarget) Timezone() string { return t.timezone }

// Features returns the feature flags.
func (t InstallationTarget) Features() Features { return t.features }

// ConfigDir is where generated artifacts are written.
func (t InstallationTarget) ConfigDir() string { return t.configDir }
