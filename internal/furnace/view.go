package furnace

import (
	"context"
	"fmt"

	"github.com/forge/furnace-sub000/internal/addon"
	"github.com/forge/furnace-sub000/internal/lock"
	"github.com/forge/furnace-sub000/internal/services"
)

// View is the registry of addons selected from one set of repositories.
type View struct {
	f     *Furnace
	name  string
	repos []addon.Repository
	all   bool
}

// Name returns the view name.
func (v *View) Name() string {
	return v.name
}

// Repositories returns the view's repositories in precedence order.
func (v *View) Repositories() []addon.Repository {
	if v.all {
		return v.f.Repositories()
	}
	return append([]addon.Repository(nil), v.repos...)
}

// Version changes whenever the addons of the container change. Callers use
// it to invalidate what they derived from the registry.
func (v *View) Version() int64 {
	return v.f.Version()
}

// Addon returns the handle of id, or ErrAddonNotFound when the view does
// not select that addon version.
func (v *View) Addon(ctx context.Context, id addon.ID) (*Addon, error) {
	return lock.Read(ctx, v.f.lock, func(context.Context) (*Addon, error) {
		st, ok := v.f.state.get(id)
		if !ok || !st.inView(v.name) {
			return nil, fmt.Errorf("%w: %s in view %q", ErrAddonNotFound, id, v.name)
		}
		return &Addon{f: v.f, id: st.id, view: v.name}, nil
	})
}

// Addons returns the addons of the view accepted by all filters, ordered
// by id.
func (v *View) Addons(ctx context.Context, filters ...addon.Filter) ([]*Addon, error) {
	return lock.Read(ctx, v.f.lock, func(context.Context) ([]*Addon, error) {
		var out []*Addon
		for _, st := range v.f.state.sorted() {
			if st.inView(v.name) && addon.Match(st.id, st.status, filters...) {
				out = append(out, &Addon{f: v.f, id: st.id, view: v.name})
			}
		}
		return out, nil
	})
}

// Services returns every instance of the named service published by a
// started addon of the view, ordered by addon id.
func (v *View) Services(ctx context.Context, name string) ([]services.Instance, error) {
	version := v.f.Version()
	if cached, ok := v.f.lookups.Get(v.name, name, version); ok {
		return cached, nil
	}

	instances, err := lock.Read(ctx, v.f.lock, func(context.Context) ([]services.Instance, error) {
		var out []services.Instance
		for _, st := range v.f.state.sorted() {
			if !st.inView(v.name) || st.status != addon.StatusStarted {
				continue
			}
			if svc, ok := st.services.Lookup(name); ok {
				out = append(out, services.Instance{Addon: st.id, Service: svc})
			}
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	v.f.lookups.Put(v.name, name, version, instances)
	return instances, nil
}
