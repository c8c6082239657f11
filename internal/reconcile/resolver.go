/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package reconcile

import (
	"fmt"
	"sort"
	"strings"
)

// Order returns every declared artifact in dependency order: artifacts with
// no dependents first, so identity values are established before the
// artifacts that reference them. A cycle in the static table is a
// configuration error and fails the whole run up front.
func (t *Table) Order() ([]string, error) {
	indegree := make(map[string]int, len(t.Artifacts))
	dependents := make(map[string][]string, len(t.Artifacts))
	for id := range t.Artifacts {
		indegree[id] = 0
	}
	for id, spec := range t.Artifacts {
		for _, dep := range spec.DependsOn {
			indegree[id]++
			dependents[dep] = append(dependents[dep], id)
		}
	}

	// Kahn's algorithm with a sorted frontier for deterministic output.
	var frontier []string
	for id, deg := range indegree {
		if deg == 0 {
			frontier = append(frontier, id)
		}
	}
	sort.Strings(frontier)

	order := make([]string, 0, len(t.Artifacts))
	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		order = append(order, id)

		next := dependents[id]
		sort.Strings(next)
		for _, dep := range next {
			indegree[dep]--
			if indegree[dep] == 0 {
				frontier = append(frontier, dep)
				sort.Strings(frontier)
			}
		}
	}

	if len(order) != len(t.Artifacts) {
		var cyclic []string
		for id, deg := range indegree {
			if deg > 0 {
				cyclic = append(cyclic, id)
			}
		}
		sort.Strings(cyclic)
		return nil, fmt.Errorf("dependency cycle in requirement table involving: %s", strings.Join(cyclic, ", "))
	}
	return order, nil
}
