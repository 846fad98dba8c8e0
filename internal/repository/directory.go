package repository

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/forge/furnace-sub000/internal/addon"
)

const (
	// IndexFile is the name of the repository index under the root.
	IndexFile = "installed.yaml"
	// DescriptorFile is the name of the per-addon descriptor.
	DescriptorFile = "addon.yaml"
)

// Directory is a repository persisted under a root directory:
//
//	<root>/installed.yaml
//	<root>/<name>/<version>/addon.yaml
//
// Every mutation rewrites installed.yaml, so watching the root directory is
// enough to notice changes made by other processes.
type Directory struct {
	changeTracker

	name string
	root string
	mu   sync.Mutex

	statMu    sync.Mutex
	indexStat indexStamp
}

type indexStamp struct {
	modTime int64
	size    int64
}

var (
	_ addon.MutableRepository = (*Directory)(nil)
	_ addon.DirtyChecker      = (*Directory)(nil)
)

// NewDirectory opens the repository at root, creating the directory when it
// does not exist.
func NewDirectory(name, root string) (*Directory, error) {
	if name == "" {
		return nil, fmt.Errorf("repository name cannot be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create repository root %q: %w", root, err)
	}
	d := &Directory{name: name, root: root}
	d.indexStat = d.stamp()
	return d, nil
}

func (d *Directory) Name() string { return d.name }

// Root returns the repository directory.
func (d *Directory) Root() string { return d.root }

// MarkChanged records a change made outside this process.
func (d *Directory) MarkChanged() {
	d.markChanged()
}

// Version returns the change counter. An index rewritten by another process
// counts as a change even when no watcher is running.
func (d *Directory) Version() int64 {
	d.refresh()
	return d.changeTracker.Version()
}

// IsDirty reports whether the repository changed since the last reset.
func (d *Directory) IsDirty() bool {
	d.refresh()
	return d.changeTracker.IsDirty()
}

func (d *Directory) stamp() indexStamp {
	info, err := os.Stat(filepath.Join(d.root, IndexFile))
	if err != nil {
		return indexStamp{}
	}
	return indexStamp{modTime: info.ModTime().UnixNano(), size: info.Size()}
}

func (d *Directory) refresh() {
	stamp := d.stamp()
	d.statMu.Lock()
	changed := stamp != d.indexStat
	d.indexStat = stamp
	d.statMu.Unlock()
	if changed {
		d.markChanged()
	}
}

// AddonDir returns the directory holding the descriptor of id.
func (d *Directory) AddonDir(id addon.ID) string {
	return filepath.Join(d.root, pathSegment(id.Name), pathSegment(id.Version.String()))
}

func pathSegment(s string) string {
	return strings.NewReplacer(":", "-", "/", "-", "\\", "-").Replace(s)
}

// LoadIndex reads installed.yaml. A missing index is an empty repository.
func (d *Directory) LoadIndex() (*InstalledFile, error) {
	path := filepath.Join(d.root, IndexFile)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return &InstalledFile{SchemaVersion: schemaVersion}, nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load repository index %q: %w", path, err)
	}
	var index InstalledFile
	if err := k.UnmarshalWithConf("", &index, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("failed to parse repository index %q: %w", path, err)
	}
	if err := index.Validate(); err != nil {
		return nil, fmt.Errorf("repository index validation failed for %q: %w", path, err)
	}
	return &index, nil
}

// LoadDescriptor reads the descriptor of id.
func (d *Directory) LoadDescriptor(id addon.ID) (*Descriptor, error) {
	path := filepath.Join(d.AddonDir(id), DescriptorFile)
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load descriptor of %s: %w", id, err)
	}
	var desc Descriptor
	if err := k.UnmarshalWithConf("", &desc, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("failed to parse descriptor of %s: %w", id, err)
	}
	if desc.Name != id.Name || desc.Version != id.Version.String() {
		return nil, fmt.Errorf("descriptor at %q declares %s:%s, expected %s", path, desc.Name, desc.Version, id)
	}
	return &desc, nil
}

func (d *Directory) ListEnabled() ([]addon.ID, error) {
	index, err := d.LoadIndex()
	if err != nil {
		return nil, err
	}
	var ids []addon.ID
	for _, a := range index.Addons {
		if a.Enabled {
			ids = append(ids, a.ID())
		}
	}
	addon.SortIDs(ids)
	return ids, nil
}

func (d *Directory) IsDeployed(id addon.ID) bool {
	info, err := os.Stat(filepath.Join(d.AddonDir(id), DescriptorFile))
	return err == nil && info.Mode().IsRegular()
}

func (d *Directory) Dependencies(id addon.ID) ([]addon.DependencyEntry, error) {
	desc, err := d.LoadDescriptor(id)
	if err != nil {
		return nil, err
	}
	return desc.Entries()
}

// Resources returns descriptor resources resolved against the addon
// directory.
func (d *Directory) Resources(id addon.ID) ([]string, error) {
	desc, err := d.LoadDescriptor(id)
	if err != nil {
		return nil, err
	}
	dir := d.AddonDir(id)
	paths := make([]string, 0, len(desc.Resources))
	for _, r := range desc.Resources {
		if filepath.IsAbs(r) {
			paths = append(paths, r)
			continue
		}
		paths = append(paths, filepath.Join(dir, r))
	}
	return paths, nil
}

// Deploy writes the descriptor of id and records it, disabled, in the index
// unless it is already listed.
func (d *Directory) Deploy(id addon.ID, deps []addon.DependencyEntry, resources []string) error {
	if id.IsZero() {
		return fmt.Errorf("cannot deploy addon without a name")
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	dir := d.AddonDir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create addon directory %q: %w", dir, err)
	}
	if err := WriteYAML(filepath.Join(dir, DescriptorFile), newDescriptor(id, deps, resources)); err != nil {
		return fmt.Errorf("failed to write descriptor of %s: %w", id, err)
	}

	return d.updateIndex(func(index *InstalledFile) bool {
		for _, a := range index.Addons {
			if a.ID().Equal(id) {
				return false
			}
		}
		index.Addons = append(index.Addons, InstalledAddon{
			Name:       id.Name,
			Version:    id.Version.String(),
			APIVersion: id.APIVersion.String(),
		})
		return true
	}, true)
}

// Undeploy removes the addon directory and its index entry.
func (d *Directory) Undeploy(id addon.ID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.RemoveAll(d.AddonDir(id)); err != nil {
		return fmt.Errorf("failed to remove addon directory of %s: %w", id, err)
	}
	_ = os.Remove(filepath.Dir(d.AddonDir(id)))

	return d.updateIndex(func(index *InstalledFile) bool {
		kept := index.Addons[:0]
		removed := false
		for _, a := range index.Addons {
			if a.ID().Equal(id) {
				removed = true
				continue
			}
			kept = append(kept, a)
		}
		index.Addons = kept
		return removed
	}, true)
}

// Enable marks a deployed addon as enabled.
func (d *Directory) Enable(id addon.ID) error {
	if !d.IsDeployed(id) {
		return fmt.Errorf("addon %s is not deployed in repository %q", id, d.name)
	}
	return d.setEnabled(id, true)
}

// Disable marks an addon as disabled.
func (d *Directory) Disable(id addon.ID) error {
	return d.setEnabled(id, false)
}

func (d *Directory) setEnabled(id addon.ID, enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.updateIndex(func(index *InstalledFile) bool {
		for i, a := range index.Addons {
			if a.ID().Equal(id) {
				if a.Enabled == enabled {
					return false
				}
				index.Addons[i].Enabled = enabled
				return true
			}
		}
		return false
	}, false)
}

// updateIndex applies mutate and rewrites the index when it reports a
// change, or unconditionally when force is set.
func (d *Directory) updateIndex(mutate func(*InstalledFile) bool, force bool) error {
	index, err := d.LoadIndex()
	if err != nil {
		return err
	}
	changed := mutate(index)
	if !changed && !force {
		return nil
	}
	index.SchemaVersion = schemaVersion
	if err := WriteYAML(filepath.Join(d.root, IndexFile), index); err != nil {
		return fmt.Errorf("failed to write repository index: %w", err)
	}
	d.markChanged()
	return nil
}
