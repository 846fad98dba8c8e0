package graph

import (
	"fmt"
	"sort"

	"github.com/forge/furnace-sub000/internal/addon"
	"github.com/forge/furnace-sub000/internal/versions"
)

// OptimizedGraph is a view's graph reduced to one version per addon name.
type OptimizedGraph struct {
	vertexSet
	conflicts []Conflict
}

// Conflict explains why an addon name was left out of an optimized graph.
type Conflict struct {
	Name string
	Err  error
}

// Conflicts returns the excluded names, sorted.
func (g *OptimizedGraph) Conflicts() []Conflict {
	return append([]Conflict(nil), g.conflicts...)
}

// constraint is a dependency declared by a selected vertex on another name.
type constraint struct {
	from addon.ID
	rng  versions.Range
}

type optimizer struct {
	c        *CandidateGraph
	names    []string
	selected map[string]addon.ID
	excluded map[string]error
}

// Optimize selects one version per addon name. For each name it ranks the
// available versions by the number of required constraints they satisfy,
// then optional ones, then version, considering only constraints declared
// by the versions currently selected for other names. A name whose best
// version still violates a required constraint is excluded, and dependents
// see it as missing. Selection repeats until stable, so the result depends
// only on the candidate graph.
func Optimize(c *CandidateGraph) *OptimizedGraph {
	o := &optimizer{
		c:        c,
		names:    c.Names(),
		selected: make(map[string]addon.ID, len(c.byName)),
	}
	for _, name := range o.names {
		o.selected[name] = c.byName[name][0]
	}

	// Each round can only react to the previous one; the bound guards
	// against two names flipping each other forever.
	for round := 0; round <= len(o.names)+1; round++ {
		if !o.round() {
			break
		}
	}

	g := &OptimizedGraph{vertexSet: newVertexSet()}
	for _, name := range o.names {
		if err, ok := o.excluded[name]; ok {
			g.conflicts = append(g.conflicts, Conflict{Name: name, Err: err})
			continue
		}
		id := o.selected[name]
		g.vertices[id.Key()] = c.vertices[id.Key()]
	}
	g.link(func(dep addon.DependencyEntry) (addon.ID, bool) {
		if _, gone := o.excluded[dep.Name]; gone {
			return addon.ID{}, false
		}
		id, ok := o.selected[dep.Name]
		if !ok || !dep.VersionRange().Includes(id.Version) {
			return addon.ID{}, false
		}
		return id, true
	})
	return g
}

// round recomputes every selection from the previous one and reports
// whether anything changed.
func (o *optimizer) round() bool {
	next := make(map[string]addon.ID, len(o.selected))
	excluded := make(map[string]error)
	for _, name := range o.names {
		id, err := o.choose(name)
		if err != nil {
			excluded[name] = err
			next[name] = o.selected[name]
			continue
		}
		next[name] = id
	}

	changed := len(excluded) != len(o.excluded)
	for name, id := range next {
		if !id.Equal(o.selected[name]) {
			changed = true
		}
		_, was := o.excluded[name]
		_, is := excluded[name]
		if was != is {
			changed = true
		}
	}
	o.selected, o.excluded = next, excluded
	return changed
}

func (o *optimizer) constraints(name string) (required, optional []constraint) {
	for _, other := range o.names {
		if other == name {
			continue
		}
		if _, gone := o.excluded[other]; gone {
			continue
		}
		v := o.c.vertices[o.selected[other].Key()]
		for _, dep := range v.Dependencies {
			if dep.Name != name {
				continue
			}
			cst := constraint{from: v.ID, rng: dep.VersionRange()}
			if dep.Required() {
				required = append(required, cst)
			} else {
				optional = append(optional, cst)
			}
		}
	}
	return required, optional
}

type ranked struct {
	id       addon.ID
	required int
	optional int
}

func (o *optimizer) choose(name string) (addon.ID, error) {
	required, optional := o.constraints(name)

	if len(required) > 1 {
		ranges := make([]versions.Range, len(required))
		for i, cst := range required {
			ranges[i] = cst.rng
		}
		if common := versions.Intersection(ranges...); common.IsEmpty() {
			return addon.ID{}, &versions.VersionError{Reason: fmt.Sprintf("%s is required in disjoint ranges by %s", name, describe(required))}
		}
	}

	candidates := make([]ranked, 0, len(o.c.byName[name]))
	for _, id := range o.c.byName[name] {
		r := ranked{id: id}
		for _, cst := range required {
			if cst.rng.Includes(id.Version) {
				r.required++
			}
		}
		for _, cst := range optional {
			if cst.rng.Includes(id.Version) {
				r.optional++
			}
		}
		candidates = append(candidates, r)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.required != b.required {
			return a.required > b.required
		}
		if a.optional != b.optional {
			return a.optional > b.optional
		}
		return a.id.Version.Compare(b.id.Version) > 0
	})

	best := candidates[0]
	if best.required < len(required) {
		return addon.ID{}, &versions.VersionError{Reason: fmt.Sprintf("no available version of %s satisfies %s", name, describe(required))}
	}
	return best.id, nil
}

func describe(cs []constraint) string {
	s := ""
	for i, cst := range cs {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%s %s", cst.from, cst.rng)
	}
	return s
}
