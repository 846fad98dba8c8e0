package graph

import (
	"sort"
	"strings"

	"github.com/forge/furnace-sub000/internal/addon"
)

// MasterVertex is an addon selected in at least one view.
type MasterVertex struct {
	ID         addon.ID
	Repository addon.Repository

	views   map[string]struct{}
	missing map[string]addon.DependencyEntry
}

// Views returns the names of the views selecting this addon, sorted.
func (v *MasterVertex) Views() []string {
	out := make([]string, 0, len(v.views))
	for name := range v.views {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// InView reports whether view selects this addon.
func (v *MasterVertex) InView(view string) bool {
	_, ok := v.views[view]
	return ok
}

// Missing returns the unresolved required dependencies across all views.
func (v *MasterVertex) Missing() []addon.DependencyEntry {
	out := make([]addon.DependencyEntry, 0, len(v.missing))
	for _, e := range v.missing {
		out = append(out, e)
	}
	addon.SortEntries(out)
	return out
}

// RepositoryName returns the owning repository name, or "".
func (v *MasterVertex) RepositoryName() string {
	if v.Repository == nil {
		return ""
	}
	return v.Repository.Name()
}

// MasterGraph is the union of the optimized graphs of all views. A new
// master graph is built on every update cycle and not modified once the
// cycle has published it.
type MasterGraph struct {
	generation int64
	vertices   map[addon.Key]*MasterVertex
	edges      map[edgeKey]Edge
}

// NewMasterGraph creates an empty graph for the given update generation.
func NewMasterGraph(generation int64) *MasterGraph {
	return &MasterGraph{
		generation: generation,
		vertices:   make(map[addon.Key]*MasterVertex),
		edges:      make(map[edgeKey]Edge),
	}
}

// Generation returns the update cycle that produced the graph.
func (m *MasterGraph) Generation() int64 {
	return m.generation
}

// Merge adds the vertices and edges of a view's optimized graph. Merging
// the same graph again changes nothing.
func (m *MasterGraph) Merge(view string, g *OptimizedGraph) {
	for _, v := range g.Vertices() {
		mv, ok := m.vertices[v.ID.Key()]
		if !ok {
			mv = &MasterVertex{
				ID:         v.ID,
				Repository: v.Repository,
				views:      make(map[string]struct{}),
				missing:    make(map[string]addon.DependencyEntry),
			}
			m.vertices[v.ID.Key()] = mv
		}
		mv.views[view] = struct{}{}
		for _, dep := range g.missing[v.ID.Key()] {
			mv.missing[dep.String()] = dep
		}
	}

	for _, e := range g.edges {
		k := e.key()
		prev, ok := m.edges[k]
		if !ok {
			m.edges[k] = e
			continue
		}
		// the strongest declaration wins: required over optional,
		// exported over private
		prev.Dependency.Optional = prev.Dependency.Optional && e.Dependency.Optional
		prev.Dependency.Exported = prev.Dependency.Exported || e.Dependency.Exported
		m.edges[k] = prev
	}
}

// Len returns the number of vertices.
func (m *MasterGraph) Len() int {
	return len(m.vertices)
}

// Contains reports whether id is selected in any view.
func (m *MasterGraph) Contains(id addon.ID) bool {
	_, ok := m.vertices[id.Key()]
	return ok
}

// Vertex looks up id.
func (m *MasterGraph) Vertex(id addon.ID) (*MasterVertex, bool) {
	v, ok := m.vertices[id.Key()]
	return v, ok
}

// IDs returns all vertex ids, sorted.
func (m *MasterGraph) IDs() []addon.ID {
	ids := make([]addon.ID, 0, len(m.vertices))
	for _, v := range m.vertices {
		ids = append(ids, v.ID)
	}
	addon.SortIDs(ids)
	return ids
}

// Edges returns all edges, sorted.
func (m *MasterGraph) Edges() []Edge {
	out := make([]Edge, 0, len(m.edges))
	for _, e := range m.edges {
		out = append(out, e)
	}
	sortEdges(out)
	return out
}

// Dependencies returns the outgoing edges of id.
func (m *MasterGraph) Dependencies(id addon.ID) []Edge {
	var out []Edge
	for k, e := range m.edges {
		if k.from == id.Key() {
			out = append(out, e)
		}
	}
	sortEdges(out)
	return out
}

// Dependents returns the incoming edges of id.
func (m *MasterGraph) Dependents(id addon.ID) []Edge {
	var out []Edge
	for k, e := range m.edges {
		if k.to == id.Key() {
			out = append(out, e)
		}
	}
	sortEdges(out)
	return out
}

// signature captures everything about a vertex whose change requires a
// restart: owning repository, views, dependency edges and missing entries.
func (m *MasterGraph) signature(v *MasterVertex) string {
	var b strings.Builder
	b.WriteString(v.RepositoryName())
	b.WriteString("|views:")
	b.WriteString(strings.Join(v.Views(), ","))
	b.WriteString("|deps:")
	for _, e := range m.Dependencies(v.ID) {
		b.WriteString(e.To.String())
		if e.Optional() {
			b.WriteString("?")
		}
		if e.Exported() {
			b.WriteString("^")
		}
		b.WriteString(",")
	}
	b.WriteString("|missing:")
	for _, dep := range v.Missing() {
		b.WriteString(dep.String())
		b.WriteString(",")
	}
	return b.String()
}
