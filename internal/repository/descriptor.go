package repository

import (
	"fmt"

	"github.com/forge/furnace-sub000/internal/addon"
	"github.com/forge/furnace-sub000/internal/versions"
)

const schemaVersion = "v1"

// InstalledFile is the repository index, stored as installed.yaml:
//
//	schema_version: v1
//	addons:
//	  - name: org.example:foo
//	    version: 1.0.0
//	    api_version: 2.0.0
//	    enabled: true
//
// Versions that YAML would read as numbers, such as 1.0, must be quoted.
type InstalledFile struct {
	SchemaVersion string           `yaml:"schema_version"`
	Addons        []InstalledAddon `yaml:"addons"`
}

// InstalledAddon is one deployed addon in the index.
type InstalledAddon struct {
	Name       string `yaml:"name"`
	Version    string `yaml:"version"`
	APIVersion string `yaml:"api_version,omitempty"`
	Enabled    bool   `yaml:"enabled"`
}

// ID converts the entry to an addon id.
func (a InstalledAddon) ID() addon.ID {
	return addon.NewID(a.Name, a.Version, a.APIVersion)
}

// Validate checks the index for unsupported schemas and duplicates.
func (f *InstalledFile) Validate() error {
	if f.SchemaVersion != schemaVersion {
		return fmt.Errorf("unsupported schema_version: %q (expected %q)", f.SchemaVersion, schemaVersion)
	}
	seen := make(map[addon.Key]bool, len(f.Addons))
	for i, a := range f.Addons {
		if a.Name == "" || a.Version == "" {
			return fmt.Errorf("addons[%d]: name and version are required", i)
		}
		key := a.ID().Key()
		if seen[key] {
			return fmt.Errorf("addons[%d]: duplicate addon %s", i, a.ID())
		}
		seen[key] = true
	}
	return nil
}

// Descriptor is the per-addon addon.yaml file.
type Descriptor struct {
	SchemaVersion string                 `yaml:"schema_version"`
	Name          string                 `yaml:"name"`
	Version       string                 `yaml:"version"`
	APIVersion    string                 `yaml:"api_version,omitempty"`
	Dependencies  []DescriptorDependency `yaml:"dependencies,omitempty"`
	Resources     []string               `yaml:"resources,omitempty"`
}

// DescriptorDependency is the persisted form of a dependency entry.
type DescriptorDependency struct {
	Name     string `yaml:"name"`
	Version  string `yaml:"version,omitempty"`
	Exported bool   `yaml:"exported,omitempty"`
	Optional bool   `yaml:"optional,omitempty"`
}

func newDescriptor(id addon.ID, deps []addon.DependencyEntry, resources []string) *Descriptor {
	d := &Descriptor{
		SchemaVersion: schemaVersion,
		Name:          id.Name,
		Version:       id.Version.String(),
		APIVersion:    id.APIVersion.String(),
		Resources:     resources,
	}
	for _, dep := range deps {
		var rng string
		if dep.Range != nil {
			rng = dep.Range.String()
		}
		d.Dependencies = append(d.Dependencies, DescriptorDependency{
			Name:     dep.Name,
			Version:  rng,
			Exported: dep.Exported,
			Optional: dep.Optional,
		})
	}
	return d
}

// Entries parses the declared dependencies. A malformed range fails the
// whole descriptor.
func (d *Descriptor) Entries() ([]addon.DependencyEntry, error) {
	entries := make([]addon.DependencyEntry, 0, len(d.Dependencies))
	for _, dep := range d.Dependencies {
		if dep.Name == "" {
			return nil, fmt.Errorf("dependency without name in %s:%s", d.Name, d.Version)
		}
		r, err := versions.ParseRange(dep.Version)
		if err != nil {
			return nil, fmt.Errorf("dependency %s of %s:%s: %w", dep.Name, d.Name, d.Version, err)
		}
		entries = append(entries, addon.DependencyEntry{
			Name:     dep.Name,
			Range:    r,
			Exported: dep.Exported,
			Optional: dep.Optional,
		})
	}
	return entries, nil
}
