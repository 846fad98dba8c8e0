package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forge/furnace-sub000/internal/addon"
)

func TestMergeIsIdempotent(t *testing.T) {
	g := optimize(t, repo(t, "local", map[string][]addon.DependencyEntry{
		"foo:1.0": {dep("bar", ""), optional(dep("baz", ""))},
		"bar:1.0": {dep("missing", "")},
		"baz:1.0": nil,
	}))

	once := NewMasterGraph(1)
	once.Merge("default", g)
	twice := NewMasterGraph(1)
	twice.Merge("default", g)
	twice.Merge("default", g)

	assert.Equal(t, idStrings(once.IDs()), idStrings(twice.IDs()))
	assert.Equal(t, edgeStrings(once.Edges()), edgeStrings(twice.Edges()))
	for _, i := range once.IDs() {
		a, _ := once.Vertex(i)
		b, _ := twice.Vertex(i)
		assert.Equal(t, a.Views(), b.Views())
		assert.Equal(t, a.Missing(), b.Missing())
		assert.Equal(t, once.signature(a), twice.signature(b))
	}
	assert.True(t, Diff(once, twice).IsEmpty())
}

func TestMergeUnionsViews(t *testing.T) {
	core := repo(t, "core", map[string][]addon.DependencyEntry{"lib:1.0": nil})
	extra := repo(t, "extra", map[string][]addon.DependencyEntry{
		"lib:2.0": nil,
		"app:1.0": {exported(dep("lib", ""))},
	})

	m := master(t, 3, map[string][]addon.Repository{
		"core": {core},
		"all":  {core, extra},
	})

	assert.Equal(t, int64(3), m.Generation())
	assert.Equal(t, []string{"app:1.0", "lib:1.0", "lib:2.0"}, idStrings(m.IDs()))

	lib1, ok := m.Vertex(id("lib:1.0"))
	require.True(t, ok)
	assert.Equal(t, []string{"core"}, lib1.Views())
	assert.True(t, lib1.InView("core"))
	assert.False(t, lib1.InView("all"))

	lib2, _ := m.Vertex(id("lib:2.0"))
	assert.Equal(t, []string{"all"}, lib2.Views())
	assert.Equal(t, "extra", lib2.RepositoryName())

	deps := m.Dependencies(id("app:1.0"))
	require.Len(t, deps, 1)
	assert.True(t, deps[0].Exported())
	assert.Equal(t, []string{"app:1.0->lib:2.0"}, edgeStrings(m.Dependents(id("lib:2.0"))))
}

func TestMergeKeepsStrongestEdge(t *testing.T) {
	strict := optimize(t, repo(t, "a", map[string][]addon.DependencyEntry{"app:1.0": {dep("lib", "")}, "lib:1.0": nil}))
	loose := optimize(t, repo(t, "b", map[string][]addon.DependencyEntry{"app:1.0": {optional(dep("lib", ""))}, "lib:1.0": nil}))

	m := NewMasterGraph(1)
	m.Merge("loose", loose)
	m.Merge("strict", strict)

	edges := m.Edges()
	require.Len(t, edges, 1)
	assert.False(t, edges[0].Optional())
}

func TestTopologicalOrder(t *testing.T) {
	m := master(t, 1, map[string][]addon.Repository{"default": {repo(t, "local", map[string][]addon.DependencyEntry{
		"app:1.0":  {dep("lib", ""), dep("log", "")},
		"lib:1.0":  {dep("log", "")},
		"log:1.0":  nil,
		"plug:1.0": {optional(dep("app", ""))},
		"x:1.0":    {dep("y", "")},
		"y:1.0":    {dep("x", "")},
		"z:1.0":    {dep("x", "")},
	})}})

	order, cyclic := m.TopologicalOrder()

	assert.Equal(t, []string{"log:1.0", "lib:1.0", "app:1.0", "plug:1.0"}, idStrings(order))
	assert.Equal(t, []string{"x:1.0", "y:1.0", "z:1.0"}, idStrings(cyclic))
}
