package engine

import (
	"fmt"
	"sort"
)

// dependencyOrder resolves the order resource types must be pulled in so
// that every type follows the types it depends on. Kahn's algorithm with
// alphabetical tie-breaking so the order is deterministic across runs.
func dependencyOrder(resources []Resource) ([]string, error) {
	known := make(map[string]bool, len(resources))
	for _, r := range resources {
		if known[r.Type] {
			return nil, fmt.Errorf("resource type %q declared twice", r.Type)
		}
		known[r.Type] = true
	}

	indegree := make(map[string]int, len(resources))
	dependents := make(map[string][]string, len(resources))
	for _, r := range resources {
		if _, ok := indegree[r.Type]; !ok {
			indegree[r.Type] = 0
		}
		for _, dep := range r.DependsOn {
			if !known[dep] {
				return nil, fmt.Errorf("resource type %q depends on undeclared type %q", r.Type, dep)
			}
			indegree[r.Type]++
			dependents[dep] = append(dependents[dep], r.Type)
		}
	}

	var ready []string
	for t, d := range indegree {
		if d == 0 {
			ready = append(ready, t)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(resources))
	for len(ready) > 0 {
		t := ready[0]
		ready = ready[1:]
		order = append(order, t)

		var freed []string
		for _, next := range dependents[t] {
			indegree[next]--
			if indegree[next] == 0 {
				freed = append(freed, next)
			}
		}
		sort.Strings(freed)
		ready = append(ready, freed...)
	}

	if len(order) != len(resources) {
		return nil, fmt.Errorf("dependency cycle among resource types")
	}
	return order, nil
}
