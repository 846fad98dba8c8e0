package graph

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/forge/furnace-sub000/internal/addon"
	"github.com/forge/furnace-sub000/internal/repository"
	"github.com/forge/furnace-sub000/internal/versions"
)

func id(s string) addon.ID {
	parsed, err := addon.ParseID(s)
	if err != nil {
		panic(err)
	}
	return parsed
}

func dep(name, rng string) addon.DependencyEntry {
	r, err := versions.ParseRange(rng)
	if err != nil {
		panic(err)
	}
	return addon.DependencyEntry{Name: name, Range: r}
}

func optional(e addon.DependencyEntry) addon.DependencyEntry {
	e.Optional = true
	return e
}

func exported(e addon.DependencyEntry) addon.DependencyEntry {
	e.Exported = true
	return e
}

// repo builds a memory repository. Keys are "name:version".
func repo(t *testing.T, name string, addons map[string][]addon.DependencyEntry) *repository.Memory {
	t.Helper()
	r := repository.NewMemory(name)
	for s, deps := range addons {
		require.NoError(t, r.DeployEnabled(id(s), deps...))
	}
	return r
}

func build(t *testing.T, repos ...addon.Repository) *CandidateGraph {
	t.Helper()
	b, err := NewBuilder(versions.Empty, nil, 0)
	require.NoError(t, err)
	g, err := b.Build(context.Background(), repos)
	require.NoError(t, err)
	return g
}

func optimize(t *testing.T, repos ...addon.Repository) *OptimizedGraph {
	t.Helper()
	return Optimize(build(t, repos...))
}

func master(t *testing.T, generation int64, views map[string][]addon.Repository) *MasterGraph {
	t.Helper()
	m := NewMasterGraph(generation)
	for name, repos := range views {
		m.Merge(name, optimize(t, repos...))
	}
	return m
}

func idStrings(ids []addon.ID) []string {
	out := make([]string, 0, len(ids))
	for _, i := range ids {
		out = append(out, i.String())
	}
	return out
}

func edgeStrings(edges []Edge) []string {
	out := make([]string, 0, len(edges))
	for _, e := range edges {
		s := fmt.Sprintf("%s->%s", e.From, e.To)
		if e.Optional() {
			s += "?"
		}
		out = append(out, s)
	}
	return out
}

func vertexStrings(vs []*Vertex) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.ID.String())
	}
	return out
}
