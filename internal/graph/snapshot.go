package graph

import (
	"sort"

	"github.com/forge/furnace-sub000/internal/addon"
)

type snapshotKey struct {
	repository string
	version    int64
}

type snapshotEntry struct {
	id   addon.ID
	deps []addon.DependencyEntry
	err  error
}

// snapshot is the enabled and deployed content of a repository at one
// version.
type snapshot struct {
	entries []snapshotEntry
}

// takeSnapshot reads repo. Only a failure to list enabled addons fails the
// snapshot; descriptor errors are kept per entry.
func takeSnapshot(repo addon.Repository) (*snapshot, error) {
	ids, err := repo.ListEnabled()
	if err != nil {
		return nil, err
	}
	snap := &snapshot{}
	for _, id := range ids {
		if !repo.IsDeployed(id) {
			continue
		}
		deps, err := repo.Dependencies(id)
		snap.entries = append(snap.entries, snapshotEntry{id: id, deps: deps, err: err})
	}
	return snap, nil
}

func sortDescending(ids []addon.ID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Version.Compare(ids[j].Version) > 0 })
}

func sortStrings(s []string) {
	sort.Strings(s)
}
