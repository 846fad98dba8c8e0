// Package graph computes which addon versions should run.
//
// Each update cycle builds a CandidateGraph per view from the view's
// repositories, reduces it with Optimize to one version per addon name,
// merges all views into a MasterGraph and compares that with the previous
// master graph using Diff. Graphs are plain data keyed by addon.Key with
// edges stored as id pairs, so dependency cycles need no special handling
// until TopologicalOrder reports them.
package graph

import (
	"sort"

	"github.com/forge/furnace-sub000/internal/addon"
)

// Vertex is one addon version together with its declared dependencies.
type Vertex struct {
	ID           addon.ID
	Repository   addon.Repository
	Dependencies []addon.DependencyEntry
}

// RepositoryName returns the owning repository name, or "".
func (v *Vertex) RepositoryName() string {
	if v.Repository == nil {
		return ""
	}
	return v.Repository.Name()
}

// Edge links a dependent to the dependency version it resolved to.
type Edge struct {
	From       addon.ID
	To         addon.ID
	Dependency addon.DependencyEntry
}

// Optional reports whether the edge does not gate starting From.
func (e Edge) Optional() bool { return e.Dependency.Optional }

// Exported reports whether To is visible to the dependents of From.
func (e Edge) Exported() bool { return e.Dependency.Exported }

type edgeKey struct {
	from, to addon.Key
}

func (e Edge) key() edgeKey {
	return edgeKey{from: e.From.Key(), to: e.To.Key()}
}

func sortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool {
		if c := edges[i].From.Compare(edges[j].From); c != 0 {
			return c < 0
		}
		return edges[i].To.Compare(edges[j].To) < 0
	})
}

// Problem records an addon left out of a graph and why.
type Problem struct {
	ID         addon.ID
	Repository string
	Err        error
}

// vertexSet is the shared storage of candidate and optimized graphs.
type vertexSet struct {
	vertices map[addon.Key]*Vertex
	edges    []Edge
	missing  map[addon.Key][]addon.DependencyEntry
}

func newVertexSet() vertexSet {
	return vertexSet{
		vertices: make(map[addon.Key]*Vertex),
		missing:  make(map[addon.Key][]addon.DependencyEntry),
	}
}

// Vertices returns all vertices ordered by id.
func (s *vertexSet) Vertices() []*Vertex {
	out := make([]*Vertex, 0, len(s.vertices))
	for _, v := range s.vertices {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Compare(out[j].ID) < 0 })
	return out
}

// Vertex looks up id.
func (s *vertexSet) Vertex(id addon.ID) (*Vertex, bool) {
	v, ok := s.vertices[id.Key()]
	return v, ok
}

// Len returns the number of vertices.
func (s *vertexSet) Len() int {
	return len(s.vertices)
}

// Edges returns all resolved dependency edges ordered by endpoints.
func (s *vertexSet) Edges() []Edge {
	return append([]Edge(nil), s.edges...)
}

// Missing returns the required dependencies of id that did not resolve.
func (s *vertexSet) Missing(id addon.ID) []addon.DependencyEntry {
	return append([]addon.DependencyEntry(nil), s.missing[id.Key()]...)
}

// link resolves the dependencies of every vertex with resolve and records
// edges or missing markers.
func (s *vertexSet) link(resolve func(dep addon.DependencyEntry) (addon.ID, bool)) {
	for _, v := range s.Vertices() {
		for _, dep := range v.Dependencies {
			if target, ok := resolve(dep); ok {
				s.edges = append(s.edges, Edge{From: v.ID, To: target, Dependency: dep})
				continue
			}
			if dep.Required() {
				s.missing[v.ID.Key()] = append(s.missing[v.ID.Key()], dep)
			}
		}
	}
	sortEdges(s.edges)
}
