package furnace

import (
	"sort"
	"sync"

	"github.com/forge/furnace-sub000/internal/addon"
	"github.com/forge/furnace-sub000/internal/codeunit"
	"github.com/forge/furnace-sub000/internal/graph"
	"github.com/forge/furnace-sub000/internal/services"
)

// addonState is the runtime state of one addon version. It is only read
// under the read lock and only changed under the write lock.
type addonState struct {
	id         addon.ID
	repository addon.Repository
	views      []string

	status addon.Status
	err    error

	// dependencies are the resolved edges of the current master graph;
	// missing are the required dependencies that did not resolve or could
	// not be loaded.
	dependencies []graph.Edge
	missing      []addon.DependencyEntry

	unit     codeunit.Unit
	future   *future
	services *services.Registry
}

func (s *addonState) inView(view string) bool {
	for _, v := range s.views {
		if v == view {
			return true
		}
	}
	return false
}

// loadView is the view the code unit is loaded for.
func (s *addonState) loadView() string {
	if len(s.views) == 0 {
		return ""
	}
	return s.views[0]
}

func (s *addonState) requiredDependencies() []addon.ID {
	var out []addon.ID
	for _, e := range s.dependencies {
		if !e.Optional() {
			out = append(out, e.To)
		}
	}
	return out
}

func (s *addonState) reset() {
	s.status = addon.StatusMissing
	s.err = nil
	s.unit = nil
	s.future = nil
	s.services = nil
}

// stateManager owns all addon states and the current master graph.
type stateManager struct {
	addons map[addon.Key]*addonState
	graph  *graph.MasterGraph

	changedMu sync.Mutex
	changed   chan struct{}
}

func newStateManager() *stateManager {
	return &stateManager{
		addons:  make(map[addon.Key]*addonState),
		changed: make(chan struct{}),
	}
}

func (m *stateManager) get(id addon.ID) (*addonState, bool) {
	s, ok := m.addons[id.Key()]
	return s, ok
}

func (m *stateManager) getOrCreate(id addon.ID) *addonState {
	s, ok := m.addons[id.Key()]
	if !ok {
		s = &addonState{id: id, status: addon.StatusMissing}
		m.addons[id.Key()] = s
	}
	return s
}

func (m *stateManager) remove(id addon.ID) {
	delete(m.addons, id.Key())
}

// sorted returns all states ordered by id.
func (m *stateManager) sorted() []*addonState {
	out := make([]*addonState, 0, len(m.addons))
	for _, s := range m.addons {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id.Compare(out[j].id) < 0 })
	return out
}

func (m *stateManager) counts() map[addon.Status]int {
	counts := make(map[addon.Status]int, len(addon.Statuses))
	for _, s := range m.addons {
		counts[s.status]++
	}
	return counts
}

// notify wakes everyone waiting for a state change.
func (m *stateManager) notify() {
	m.changedMu.Lock()
	defer m.changedMu.Unlock()
	close(m.changed)
	m.changed = make(chan struct{})
}

// changes returns a channel closed on the next state change.
func (m *stateManager) changes() <-chan struct{} {
	m.changedMu.Lock()
	defer m.changedMu.Unlock()
	return m.changed
}
