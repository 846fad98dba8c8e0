package furnace

import (
	"context"
	"fmt"

	"github.com/forge/furnace-sub000/internal/addon"
	"github.com/forge/furnace-sub000/internal/lock"
)

// Addon is a handle on one addon version as seen from a view. It holds no
// state itself; every query reads the container state under the read lock.
// A handle stays valid after the addon is removed and then reports MISSING.
type Addon struct {
	f    *Furnace
	id   addon.ID
	view string
}

// Dependency is a resolved dependency of an addon.
type Dependency struct {
	ID       addon.ID
	Optional bool
	Exported bool
}

// Info is a snapshot of an addon's runtime state.
type Info struct {
	ID           addon.ID
	Status       addon.Status
	Err          error
	Repository   string
	Views        []string
	Dependencies []Dependency
	Missing      []addon.DependencyEntry
	Services     []string
}

func (a *Addon) ID() addon.ID   { return a.id }
func (a *Addon) View() string   { return a.view }
func (a *Addon) String() string { return a.id.String() }

// Info returns a snapshot of the addon's state.
func (a *Addon) Info(ctx context.Context) (Info, error) {
	return lock.Read(ctx, a.f.lock, func(context.Context) (Info, error) {
		info := Info{ID: a.id, Status: addon.StatusMissing}
		st, ok := a.f.state.get(a.id)
		if !ok {
			return info, nil
		}
		info.Status = st.status
		info.Err = st.err
		info.Repository = repositoryName(st.repository)
		info.Views = append([]string(nil), st.views...)
		for _, e := range st.dependencies {
			info.Dependencies = append(info.Dependencies, Dependency{ID: e.To, Optional: e.Optional(), Exported: e.Exported()})
		}
		info.Missing = append([]addon.DependencyEntry(nil), st.missing...)
		info.Services = st.services.Names()
		return info, nil
	})
}

// Status returns the lifecycle state of the addon.
func (a *Addon) Status(ctx context.Context) (addon.Status, error) {
	info, err := a.Info(ctx)
	return info.Status, err
}

// MissingDependencies returns the required dependencies keeping the addon
// from loading.
func (a *Addon) MissingDependencies(ctx context.Context) ([]addon.DependencyEntry, error) {
	info, err := a.Info(ctx)
	return info.Missing, err
}

// Lookup finds a service visible to the addon: its own services first,
// then those of its direct dependencies, then those its dependencies
// export, transitively. Only started addons contribute services.
func (a *Addon) Lookup(ctx context.Context, name string) (any, error) {
	return lock.Read(ctx, a.f.lock, func(context.Context) (any, error) {
		st, ok := a.f.state.get(a.id)
		if !ok {
			return nil, fmt.Errorf("%w: %q is not visible to %s", ErrServiceNotFound, name, a.id)
		}
		if svc, ok := a.f.startedService(st.id, name); ok {
			return svc, nil
		}

		var queue []addon.ID
		seen := map[addon.Key]bool{st.id.Key(): true}
		for _, e := range st.dependencies {
			if svc, ok := a.f.startedService(e.To, name); ok {
				return svc, nil
			}
			if !seen[e.To.Key()] {
				seen[e.To.Key()] = true
				queue = append(queue, e.To)
			}
		}

		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			dep, ok := a.f.state.get(id)
			if !ok {
				continue
			}
			for _, e := range dep.dependencies {
				if !e.Exported() || seen[e.To.Key()] {
					continue
				}
				seen[e.To.Key()] = true
				if svc, ok := a.f.startedService(e.To, name); ok {
					return svc, nil
				}
				queue = append(queue, e.To)
			}
		}
		return nil, fmt.Errorf("%w: %q is not visible to %s", ErrServiceNotFound, name, a.id)
	})
}

// startedService looks up name among the services of id. Caller holds the
// read lock.
func (f *Furnace) startedService(id addon.ID, name string) (any, bool) {
	st, ok := f.state.get(id)
	if !ok || st.status != addon.StatusStarted {
		return nil, false
	}
	return st.services.Lookup(name)
}

// WaitUntilStarted blocks until the addon is started. It fails when the
// addon fails or ctx ends first.
func (a *Addon) WaitUntilStarted(ctx context.Context) error {
	for {
		changes := a.f.state.changes()
		st, err := lock.Read(ctx, a.f.lock, func(context.Context) (dependencyState, error) {
			s, ok := a.f.state.get(a.id)
			if !ok {
				return dependencyState{status: addon.StatusMissing}, nil
			}
			if s.status == addon.StatusFailed {
				if s.err == nil {
					return dependencyState{}, fmt.Errorf("status %s", s.status)
				}
				return dependencyState{}, s.err
			}
			return dependencyState{status: s.status, future: s.future}, nil
		})
		if err != nil {
			return fmt.Errorf("addon %s did not start: %w", a.id, err)
		}
		if st.future != nil && !st.future.isDone() {
			_ = st.future.wait(ctx)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		if st.status == addon.StatusStarted {
			return nil
		}
		select {
		case <-changes:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
