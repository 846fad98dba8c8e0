package graph

import (
	"sort"

	"github.com/forge/furnace-sub000/internal/addon"
)

// TopologicalOrder sorts vertices so that required dependencies come before
// their dependents, breaking ties by id. Vertices on a cycle of required
// dependencies, and everything requiring them, cannot be ordered and are
// returned in cyclic instead.
func (m *MasterGraph) TopologicalOrder() (order, cyclic []addon.ID) {
	ids := m.IDs()
	index := make(map[addon.Key]int, len(ids))
	for i, id := range ids {
		index[id.Key()] = i
	}

	indegree := make([]int, len(ids))
	dependents := make([][]int, len(ids))
	for k, e := range m.edges {
		if e.Optional() {
			continue
		}
		from, to := index[k.from], index[k.to]
		indegree[from]++
		dependents[to] = append(dependents[to], from)
	}

	var ready []int
	for i := range ids {
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}

	done := make([]bool, len(ids))
	for len(ready) > 0 {
		sort.Ints(ready)
		i := ready[0]
		ready = ready[1:]
		done[i] = true
		order = append(order, ids[i])
		for _, d := range dependents[i] {
			indegree[d]--
			if indegree[d] == 0 {
				ready = append(ready, d)
			}
		}
	}

	for i, id := range ids {
		if !done[i] {
			cyclic = append(cyclic, id)
		}
	}
	return order, cyclic
}
