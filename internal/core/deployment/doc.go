// Package deployment provides pure functions for deployment planning.
//
// This package turns the parsed service manifest into container execution
// plans. All functions are pure (no I/O, no side effects); the docker shell
// executes the plans.
//
// # Functions
//
//   - Naming: Resource names under the installation prefix (NetworkName, VolumeName, ContainerName)
//   - Ordering: Dependency order with cycle detection (Order, TopologicalSort)
//   - Variables: Resolve ${VAR} placeholders from the env file (SubstituteVariables)
//   - Container: Build container plans from manifest services (BuildContainerPlan)
//
// # Usage
//
//	ordered, err := deployment.TopologicalSort(spec.Services)
//	if err != nil {
//	    return err
//	}
//	for _, svc := range ordered {
//	    plan := deployment.BuildContainerPlan(params)
//	}
package deployment
