// Package domain contains the core domain types for flowstack.
package domain

import (
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// Component Identifiers
// =============================================================================

// ComponentID identifies one installable service of the stack.
type ComponentID string

const (
	// ComponentN8N is the workflow automation platform. It is always installed.
	ComponentN8N        ComponentID = "n8n"
	ComponentQdrant     ComponentID = "qdrant"
	ComponentCaddy      ComponentID = "caddy"
	ComponentPortainer  ComponentID = "portainer"
	ComponentDozzle     ComponentID = "dozzle"
	ComponentWatchtower ComponentID = "watchtower"
)

// CoreComponent is the mandatory component of every installation.
const CoreComponent = ComponentN8N

var allComponents = []ComponentID{
	ComponentN8N,
	ComponentQdrant,
	ComponentCaddy,
	ComponentPortainer,
	ComponentDozzle,
	ComponentWatchtower,
}

// AllComponents returns every known component in catalog order.
func AllComponents() []ComponentID {
	out := make([]ComponentID, len(allComponents))
	copy(out, allComponents)
	return out
}

// OptionalComponents returns every component except the core one.
func OptionalComponents() []ComponentID {
	out := make([]ComponentID, 0, len(allComponents)-1)
	for _, c := range allComponents {
		if c != CoreComponent {
			out = append(out, c)
		}
	}
	return out
}

// ParseComponentID converts user input into a known ComponentID.
func ParseComponentID(s string) (ComponentID, error) {
	id := ComponentID(strings.ToLower(strings.TrimSpace(s)))
	for _, c := range allComponents {
		if c == id {
			return id, nil
		}
	}
	return "", NewValidationError("component", s, fmt.Sprintf("unknown component %q", s), ErrUnknownComponent)
}

// IsCore reports whether the component is the mandatory one.
func (c ComponentID) IsCore() bool {
	return c == CoreComponent
}

// String implements fmt.Stringer.
func (c ComponentID) String() string {
	return string(c)
}

// SortComponents sorts ids in place by name and returns the slice.
func SortComponents(ids []ComponentID) []ComponentID {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
