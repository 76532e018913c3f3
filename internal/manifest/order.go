package manifest

import (
	"context"
	"fmt"
	"slices"
	"sort"
)

// Catalog reports foreign key references. *store.Store satisfies it.
type Catalog interface {
	ForeignKeys(ctx context.Context, table string) ([]string, error)
}

// FromForeignKeys derives tiers from the foreign keys among tables.
//
// Tables referenced by another listed table go to the sequential tier in
// topological order (referenced before referencing); the rest go to the
// parallel tier. References to unlisted tables and self references are
// ignored. A reference cycle is an error. Ties keep the input order, so the
// result is deterministic.
func FromForeignKeys(ctx context.Context, cat Catalog, tables []string) (Manifest, error) {
	if len(tables) == 0 {
		return Manifest{}, fmt.Errorf("manifest has no tables")
	}

	pos := make(map[string]int, len(tables))
	for i, t := range tables {
		if _, dup := pos[t]; dup {
			return Manifest{}, fmt.Errorf("table %q listed more than once", t)
		}
		pos[t] = i
	}

	// edges: referenced -> referencing
	dependents := make(map[string][]string)
	indegree := make(map[string]int, len(tables))
	referenced := make(map[string]bool)

	for _, t := range tables {
		refs, err := cat.ForeignKeys(ctx, t)
		if err != nil {
			return Manifest{}, fmt.Errorf("failed to read foreign keys of %s: %w", t, err)
		}
		for _, ref := range refs {
			if ref == t {
				continue
			}
			if _, listed := pos[ref]; !listed {
				continue
			}
			if slices.Contains(dependents[ref], t) {
				continue
			}
			dependents[ref] = append(dependents[ref], t)
			indegree[t]++
			referenced[ref] = true
		}
	}

	// Kahn's algorithm, always taking the ready table listed first.
	var ready []string
	for _, t := range tables {
		if indegree[t] == 0 {
			ready = append(ready, t)
		}
	}

	order := make([]string, 0, len(tables))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return pos[ready[i]] < pos[ready[j]] })
		t := ready[0]
		ready = ready[1:]
		order = append(order, t)

		for _, dep := range dependents[t] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(order) != len(tables) {
		var cyclic []string
		for _, t := range tables {
			if indegree[t] > 0 {
				cyclic = append(cyclic, t)
			}
		}
		return Manifest{}, fmt.Errorf("foreign key cycle among tables %v", cyclic)
	}

	var m Manifest
	for _, t := range order {
		if referenced[t] {
			m.Sequential = append(m.Sequential, TableSpec{Name: t, Tier: Sequential})
		} else {
			m.Parallel = append(m.Parallel, TableSpec{Name: t, Tier: Parallel})
		}
	}
	return m, nil
}
