package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/forge/furnace-sub000/internal/addon"
)

func TestDiffOfIdenticalGraphsIsEmpty(t *testing.T) {
	r := repo(t, "local", map[string][]addon.DependencyEntry{
		"app:1.0": {dep("lib", "")},
		"lib:1.0": nil,
		"x:1.0":   {dep("y", "")},
		"y:1.0":   {dep("x", "")},
	})
	prev := master(t, 1, map[string][]addon.Repository{"default": {r}})
	next := master(t, 2, map[string][]addon.Repository{"default": {r}})

	plan := Diff(prev, next)

	assert.True(t, plan.IsEmpty())
	assert.Empty(t, plan.Stop)
	assert.Empty(t, plan.Start)
	assert.Equal(t, []string{"app:1.0", "lib:1.0", "x:1.0", "y:1.0"}, idStrings(plan.Unchanged))
	assert.Equal(t, []string{"x:1.0", "y:1.0"}, idStrings(plan.Cyclic))
}

func TestDiffFromNothingStartsInDependencyOrder(t *testing.T) {
	next := master(t, 1, map[string][]addon.Repository{"default": {repo(t, "local", map[string][]addon.DependencyEntry{
		"app:1.0": {dep("lib", "")},
		"lib:1.0": {dep("log", "")},
		"log:1.0": nil,
	})}})

	plan := Diff(nil, next)

	assert.Empty(t, plan.Stop)
	assert.Equal(t, []string{"log:1.0", "lib:1.0", "app:1.0"}, idStrings(plan.Start))
}

func TestDiffStopsRemovedInReverseDependencyOrder(t *testing.T) {
	prev := master(t, 1, map[string][]addon.Repository{"default": {repo(t, "local", map[string][]addon.DependencyEntry{
		"app:1.0": {dep("lib", "")},
		"lib:1.0": {dep("log", "")},
		"log:1.0": nil,
	})}})

	plan := Diff(prev, NewMasterGraph(2))

	assert.Equal(t, []string{"app:1.0", "lib:1.0", "log:1.0"}, idStrings(plan.Stop))
	assert.Empty(t, plan.Start)
}

func TestDiffHotSwapRestartsDependentsOnly(t *testing.T) {
	r := repo(t, "local", map[string][]addon.DependencyEntry{
		"foo:1.0":   nil,
		"user:1.0":  {dep("foo", "")},
		"other:1.0": nil,
	})
	prev := master(t, 1, map[string][]addon.Repository{"default": {r}})

	assert.NoError(t, r.Disable(id("foo:1.0")))
	assert.NoError(t, r.DeployEnabled(id("foo:2.0")))
	next := master(t, 2, map[string][]addon.Repository{"default": {r}})

	plan := Diff(prev, next)

	assert.Equal(t, []string{"user:1.0", "foo:1.0"}, idStrings(plan.Stop))
	assert.Equal(t, []string{"foo:2.0", "user:1.0"}, idStrings(plan.Start))
	assert.Equal(t, []string{"other:1.0"}, idStrings(plan.Unchanged))
}

func TestDiffRestartsOnViewChangeAndPropagates(t *testing.T) {
	core := repo(t, "core", map[string][]addon.DependencyEntry{
		"lib:1.0": nil,
		"app:1.0": {dep("lib", "")},
	})
	prev := master(t, 1, map[string][]addon.Repository{"a": {core}})
	next := master(t, 2, map[string][]addon.Repository{"a": {core}, "b": {core}})

	plan := Diff(prev, next)

	assert.Equal(t, []string{"app:1.0", "lib:1.0"}, idStrings(plan.Stop))
	assert.Equal(t, []string{"lib:1.0", "app:1.0"}, idStrings(plan.Start))
}

func TestDiffRestartsWhenDependencyAppears(t *testing.T) {
	r := repo(t, "local", map[string][]addon.DependencyEntry{
		"app:1.0": {dep("lib", "")},
	})
	prev := master(t, 1, map[string][]addon.Repository{"default": {r}})
	v, _ := prev.Vertex(id("app:1.0"))
	assert.Len(t, v.Missing(), 1)

	assert.NoError(t, r.DeployEnabled(id("lib:1.0")))
	next := master(t, 2, map[string][]addon.Repository{"default": {r}})

	plan := Diff(prev, next)

	assert.Equal(t, []string{"app:1.0"}, idStrings(plan.Stop))
	assert.Equal(t, []string{"lib:1.0", "app:1.0"}, idStrings(plan.Start))
}

func TestDiffExcludesCyclesFromStart(t *testing.T) {
	next := master(t, 1, map[string][]addon.Repository{"default": {repo(t, "local", map[string][]addon.DependencyEntry{
		"a:1.0":    {dep("b", "")},
		"b:1.0":    {dep("a", "")},
		"free:1.0": nil,
	})}})

	plan := Diff(nil, next)

	assert.Equal(t, []string{"free:1.0"}, idStrings(plan.Start))
	assert.Equal(t, []string{"a:1.0", "b:1.0"}, idStrings(plan.Cyclic))
}
