package repository

import (
	"fmt"
	"sync"

	"github.com/forge/furnace-sub000/internal/addon"
)

type memoryAddon struct {
	id        addon.ID
	deps      []addon.DependencyEntry
	resources []string
	deployed  bool
	enabled   bool
}

// Memory is a mutable repository held in memory.
type Memory struct {
	changeTracker

	name   string
	mu     sync.RWMutex
	addons map[addon.Key]*memoryAddon
}

var (
	_ addon.MutableRepository = (*Memory)(nil)
	_ addon.DirtyChecker      = (*Memory)(nil)
)

// NewMemory creates an empty in-memory repository.
func NewMemory(name string) *Memory {
	return &Memory{
		name:   name,
		addons: make(map[addon.Key]*memoryAddon),
	}
}

func (m *Memory) Name() string { return m.name }

// Deploy stores the descriptor of id, replacing any previous deployment.
// The enabled flag of an existing entry is kept.
func (m *Memory) Deploy(id addon.ID, deps []addon.DependencyEntry, resources []string) error {
	if id.IsZero() {
		return fmt.Errorf("cannot deploy addon without a name")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.addons[id.Key()]
	if !ok {
		entry = &memoryAddon{}
		m.addons[id.Key()] = entry
	}
	entry.id = id
	entry.deps = append([]addon.DependencyEntry(nil), deps...)
	entry.resources = append([]string(nil), resources...)
	entry.deployed = true
	m.markChanged()
	return nil
}

// Undeploy removes id entirely. Removing an unknown id is a no-op.
func (m *Memory) Undeploy(id addon.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.addons[id.Key()]; ok {
		delete(m.addons, id.Key())
		m.markChanged()
	}
	return nil
}

// Enable marks a deployed addon as enabled.
func (m *Memory) Enable(id addon.ID) error {
	return m.setEnabled(id, true)
}

// Disable marks an addon as disabled.
func (m *Memory) Disable(id addon.ID) error {
	return m.setEnabled(id, false)
}

func (m *Memory) setEnabled(id addon.ID, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.addons[id.Key()]
	if !ok || !entry.deployed {
		if !enabled {
			return nil
		}
		return fmt.Errorf("addon %s is not deployed in repository %q", id, m.name)
	}
	if entry.enabled != enabled {
		entry.enabled = enabled
		m.markChanged()
	}
	return nil
}

// DeployEnabled deploys and enables id in one step.
func (m *Memory) DeployEnabled(id addon.ID, deps ...addon.DependencyEntry) error {
	if err := m.Deploy(id, deps, nil); err != nil {
		return err
	}
	return m.Enable(id)
}

func (m *Memory) ListEnabled() ([]addon.ID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []addon.ID
	for _, entry := range m.addons {
		if entry.enabled {
			ids = append(ids, entry.id)
		}
	}
	addon.SortIDs(ids)
	return ids, nil
}

func (m *Memory) IsDeployed(id addon.ID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.addons[id.Key()]
	return ok && entry.deployed
}

func (m *Memory) Dependencies(id addon.ID) ([]addon.DependencyEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.addons[id.Key()]
	if !ok || !entry.deployed {
		return nil, fmt.Errorf("addon %s is not deployed in repository %q", id, m.name)
	}
	return append([]addon.DependencyEntry(nil), entry.deps...), nil
}

func (m *Memory) Resources(id addon.ID) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.addons[id.Key()]
	if !ok || !entry.deployed {
		return nil, fmt.Errorf("addon %s is not deployed in repository %q", id, m.name)
	}
	return append([]string(nil), entry.resources...), nil
}
