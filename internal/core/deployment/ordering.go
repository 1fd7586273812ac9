package deployment

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/artpar/flowstack/internal/core/compose"
)

// =============================================================================
// Service Ordering Functions
// =============================================================================

var (
	// ErrCircularDependency is returned when dependency edges form a cycle.
	ErrCircularDependency = compose.ErrCircularDependency

	// ErrUnknownDependency is returned when a node depends on a missing node.
	ErrUnknownDependency = errors.New("dependency on unknown service")
)

// Node is one vertex of a dependency graph.
type Node struct {
	Name      string
	DependsOn []string
}

// Order returns node names so that every node follows its dependencies,
// using Kahn's algorithm.
//
// Ties are broken by name so the output is deterministic for a given input.
// Duplicate edges are counted once. A cycle or a dependency on a name that
// is not in nodes is an error; the error names the offending nodes.
//
// Example:
//
//	Order([]Node{
//	    {Name: "caddy", DependsOn: []string{"n8n", "qdrant"}},
//	    {Name: "n8n", DependsOn: []string{"qdrant"}},
//	    {Name: "qdrant"},
//	})
//	// Result: [qdrant n8n caddy]
func Order(nodes []Node) ([]string, error) {
	inDegree := make(map[string]int, len(nodes))
	for _, n := range nodes {
		inDegree[n.Name] = 0
	}

	dependents := make(map[string][]string)
	for _, n := range nodes {
		seen := make(map[string]bool)
		for _, dep := range n.DependsOn {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			if _, ok := inDegree[dep]; !ok {
				return nil, fmt.Errorf("%w: %s depends on %s", ErrUnknownDependency, n.Name, dep)
			}
			inDegree[n.Name]++
			dependents[dep] = append(dependents[dep], n.Name)
		}
	}

	var ready []string
	for name, degree := range inDegree {
		if degree == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	result := make([]string, 0, len(nodes))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		result = append(result, name)

		var unlocked []string
		for _, dep := range dependents[name] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				unlocked = append(unlocked, dep)
			}
		}
		if len(unlocked) > 0 {
			ready = append(ready, unlocked...)
			sort.Strings(ready)
		}
	}

	if len(result) < len(inDegree) {
		var stuck []string
		for name, degree := range inDegree {
			if degree > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("%w between %s", ErrCircularDependency, strings.Join(stuck, ", "))
	}

	return result, nil
}

// TopologicalSort sorts parsed services so that every service follows the
// services it depends on.
//
// Example:
//
//	// Services: caddy → n8n → qdrant
//	sorted, err := TopologicalSort(spec.Services)
//	// Result: [qdrant, n8n, caddy]
func TopologicalSort(services []compose.Service) ([]compose.Service, error) {
	if len(services) == 0 {
		return services, nil
	}

	byName := make(map[string]compose.Service, len(services))
	nodes := make([]Node, 0, len(services))
	for _, svc := range services {
		byName[svc.Name] = svc
		nodes = append(nodes, Node{Name: svc.Name, DependsOn: svc.DependsOn})
	}

	order, err := Order(nodes)
	if err != nil {
		return nil, err
	}

	result := make([]compose.Service, 0, len(order))
	for _, name := range order {
		result = append(result, byName[name])
	}
	return result, nil
}
