package graph

import (
	"github.com/forge/furnace-sub000/internal/addon"
)

// Plan is the set of lifecycle operations turning one master graph into
// the next.
type Plan struct {
	// Stop lists addons to stop, dependents before their dependencies.
	Stop []addon.ID
	// Start lists addons to load and start, dependencies first.
	Start []addon.ID
	// Cyclic lists addons of the new graph that cannot be ordered because
	// of a required dependency cycle. They are never started.
	Cyclic []addon.ID
	// Unchanged lists addons of the new graph that keep running as they are.
	Unchanged []addon.ID
	// Order is the dependency order of the whole new graph.
	Order []addon.ID
}

// IsEmpty reports whether the plan stops and starts nothing.
func (p Plan) IsEmpty() bool {
	return len(p.Stop) == 0 && len(p.Start) == 0
}

// Diff compares two master graphs. Vertices only in prev are stopped,
// vertices only in next are started, and vertices in both whose signature
// changed are restarted together with everything depending on them. A nil
// prev is an empty graph.
func Diff(prev, next *MasterGraph) Plan {
	if prev == nil {
		prev = NewMasterGraph(0)
	}
	if next == nil {
		next = NewMasterGraph(prev.generation)
	}

	restart := make(map[addon.Key]bool)
	var queue []addon.ID
	for k, nv := range next.vertices {
		pv, ok := prev.vertices[k]
		if ok && prev.signature(pv) != next.signature(nv) {
			restart[k] = true
			queue = append(queue, nv.ID)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, e := range next.Dependents(id) {
			k := e.From.Key()
			if restart[k] || !prev.Contains(e.From) {
				continue
			}
			restart[k] = true
			queue = append(queue, e.From)
		}
	}

	var plan Plan

	prevOrder, prevCyclic := prev.TopologicalOrder()
	stopping := func(id addon.ID) bool {
		return !next.Contains(id) || restart[id.Key()]
	}
	for _, id := range prevCyclic {
		if stopping(id) {
			plan.Stop = append(plan.Stop, id)
		}
	}
	for i := len(prevOrder) - 1; i >= 0; i-- {
		if stopping(prevOrder[i]) {
			plan.Stop = append(plan.Stop, prevOrder[i])
		}
	}

	plan.Order, plan.Cyclic = next.TopologicalOrder()
	for _, id := range plan.Order {
		if !prev.Contains(id) || restart[id.Key()] {
			plan.Start = append(plan.Start, id)
		} else {
			plan.Unchanged = append(plan.Unchanged, id)
		}
	}
	for _, id := range plan.Cyclic {
		if prev.Contains(id) && !restart[id.Key()] {
			plan.Unchanged = append(plan.Unchanged, id)
		}
	}
	addon.SortIDs(plan.Unchanged)
	return plan
}
