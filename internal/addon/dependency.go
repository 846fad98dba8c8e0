package addon

import (
	"fmt"
	"sort"

	"github.com/forge/furnace-sub000/internal/versions"
)

// DependencyEntry is a dependency as declared by an addon descriptor.
// Exported dependencies are visible to the dependents of the declaring
// addon; optional ones never block it from starting.
type DependencyEntry struct {
	Name     string
	Range    versions.Range
	Exported bool
	Optional bool
}

// Required reports whether the entry must be satisfied before start.
func (e DependencyEntry) Required() bool {
	return !e.Optional
}

// VersionRange returns the declared range, or the unbounded range when none
// was declared.
func (e DependencyEntry) VersionRange() versions.Range {
	if e.Range == nil {
		return versions.Any()
	}
	return e.Range
}

func (e DependencyEntry) String() string {
	s := fmt.Sprintf("%s %s", e.Name, e.VersionRange())
	if e.Optional {
		s += " optional"
	}
	if e.Exported {
		s += " exported"
	}
	return s
}

// SortEntries sorts entries by name, then range text.
func SortEntries(entries []DependencyEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Name != entries[j].Name {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].VersionRange().String() < entries[j].VersionRange().String()
	})
}
