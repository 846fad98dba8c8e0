// Package addon defines addon identity, declared dependencies, runtime
// status and the repository contracts the container reads addons from.
package addon

import (
	"fmt"
	"sort"
	"strings"

	"github.com/forge/furnace-sub000/internal/versions"
)

// ID identifies one addon version. Two IDs are equal when name and version
// match; APIVersion is metadata describing the container API the addon was
// built against.
type ID struct {
	Name       string
	Version    versions.Version
	APIVersion versions.Version
}

// NewID builds an ID from strings.
func NewID(name, version, apiVersion string) ID {
	return ID{Name: name, Version: versions.Parse(version), APIVersion: versions.Parse(apiVersion)}
}

// ParseID parses "name:version". Names may themselves contain ':', as in
// "org.example:bar:1.2.0"; the version follows the last separator.
func ParseID(s string) (ID, error) {
	s = strings.TrimSpace(s)
	i := strings.LastIndexByte(s, ':')
	if i < 0 {
		return ID{}, fmt.Errorf("invalid addon id %q: expected name:version", s)
	}
	name, version := s[:i], s[i+1:]
	if name == "" || version == "" {
		return ID{}, fmt.Errorf("invalid addon id %q: expected name:version", s)
	}
	return ID{Name: name, Version: versions.Parse(version)}, nil
}

// Key is the comparable identity of an ID, usable as a map key.
type Key struct {
	Name    string
	Version string
}

// Key returns the identity of id.
func (id ID) Key() Key {
	return Key{Name: id.Name, Version: id.Version.String()}
}

// Equal compares name and version only.
func (id ID) Equal(o ID) bool {
	return id.Name == o.Name && id.Version.Equal(o.Version)
}

// Compare orders by name, then version.
func (id ID) Compare(o ID) int {
	if c := strings.Compare(id.Name, o.Name); c != 0 {
		return c
	}
	return id.Version.Compare(o.Version)
}

// IsZero reports whether id has no name.
func (id ID) IsZero() bool {
	return id.Name == ""
}

func (id ID) String() string {
	return id.Name + ":" + id.Version.String()
}

// SortIDs sorts ids in place by name and version.
func SortIDs(ids []ID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Compare(ids[j]) < 0 })
}
