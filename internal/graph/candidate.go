package graph

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/forge/furnace-sub000/internal/addon"
	"github.com/forge/furnace-sub000/internal/logging"
	"github.com/forge/furnace-sub000/internal/versions"
)

// CandidateGraph holds every enabled and deployed addon version of a view.
// Each dependency edge points at the highest version in range; unresolved
// required dependencies are kept as missing markers.
type CandidateGraph struct {
	vertexSet
	byName   map[string][]addon.ID
	problems []Problem
}

// Names returns the distinct addon names, sorted.
func (c *CandidateGraph) Names() []string {
	names := make([]string, 0, len(c.byName))
	for name := range c.byName {
		names = append(names, name)
	}
	sortStrings(names)
	return names
}

// VersionsOf returns the ids named name from highest to lowest version.
func (c *CandidateGraph) VersionsOf(name string) []addon.ID {
	return append([]addon.ID(nil), c.byName[name]...)
}

// Problems lists addons that were left out, such as those with unreadable
// descriptors or an incompatible API version.
func (c *CandidateGraph) Problems() []Problem {
	return append([]Problem(nil), c.problems...)
}

// DefaultSnapshotCacheSize bounds the number of cached repository snapshots.
const DefaultSnapshotCacheSize = 64

// Builder creates candidate graphs.
type Builder struct {
	runtime versions.Version
	compat  versions.CompatibilityStrategy
	cache   *lru.Cache[snapshotKey, *snapshot]
	logger  *logging.Logger
}

// NewBuilder creates a builder for a container running runtime. A nil
// strategy accepts every addon.
func NewBuilder(runtime versions.Version, compat versions.CompatibilityStrategy, cacheSize int) (*Builder, error) {
	if compat == nil {
		compat = versions.AllCompatible{}
	}
	if cacheSize <= 0 {
		cacheSize = DefaultSnapshotCacheSize
	}
	cache, err := lru.New[snapshotKey, *snapshot](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot cache: %w", err)
	}
	return &Builder{
		runtime: runtime,
		compat:  compat,
		cache:   cache,
		logger:  logging.GetLogger("graph"),
	}, nil
}

// Build scans repos, in precedence order, and links the result. When the
// same id is present in several repositories the first one owns it.
func (b *Builder) Build(ctx context.Context, repos []addon.Repository) (*CandidateGraph, error) {
	snapshots, err := b.snapshots(ctx, repos)
	if err != nil {
		return nil, err
	}

	g := &CandidateGraph{vertexSet: newVertexSet(), byName: make(map[string][]addon.ID)}
	for i, snap := range snapshots {
		repo := repos[i]
		for _, entry := range snap.entries {
			if entry.err != nil {
				g.problems = append(g.problems, Problem{ID: entry.id, Repository: repo.Name(), Err: entry.err})
				b.logger.WarnWithFields("Skipping addon with unreadable descriptor",
					logging.Field("addon", entry.id), logging.Field("repository", repo.Name()), logging.Field("error", entry.err))
				continue
			}
			if !b.compat.IsCompatible(b.runtime, entry.id.APIVersion) {
				err := fmt.Errorf("addon %s requires API %s, incompatible with runtime %s (%s)",
					entry.id, entry.id.APIVersion, b.runtime, b.compat.Name())
				g.problems = append(g.problems, Problem{ID: entry.id, Repository: repo.Name(), Err: err})
				b.logger.WarnWithFields("Skipping incompatible addon",
					logging.Field("addon", entry.id), logging.Field("repository", repo.Name()))
				continue
			}
			if _, exists := g.vertices[entry.id.Key()]; exists {
				continue
			}
			g.vertices[entry.id.Key()] = &Vertex{ID: entry.id, Repository: repo, Dependencies: entry.deps}
			g.byName[entry.id.Name] = append(g.byName[entry.id.Name], entry.id)
		}
	}
	for name := range g.byName {
		sortDescending(g.byName[name])
	}

	g.link(func(dep addon.DependencyEntry) (addon.ID, bool) {
		for _, id := range g.byName[dep.Name] {
			if dep.VersionRange().Includes(id.Version) {
				return id, true
			}
		}
		return addon.ID{}, false
	})
	return g, nil
}

// snapshots reads all repositories concurrently, reusing cached snapshots
// of unchanged repositories.
func (b *Builder) snapshots(ctx context.Context, repos []addon.Repository) ([]*snapshot, error) {
	out := make([]*snapshot, len(repos))
	g, ctx := errgroup.WithContext(ctx)
	for i, repo := range repos {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := snapshotKey{repository: repo.Name(), version: repo.Version()}
			if snap, ok := b.cache.Get(key); ok {
				out[i] = snap
				return nil
			}
			snap, err := takeSnapshot(repo)
			if err != nil {
				return fmt.Errorf("failed to scan repository %q: %w", repo.Name(), err)
			}
			b.cache.Add(key, snap)
			out[i] = snap
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
