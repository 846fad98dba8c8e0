// Package furnace is the addon container.
//
// A Furnace owns a set of repositories and views over them. Every update
// cycle (ForceUpdate) builds the candidate graph of each view, optimizes it
// to one version per addon name, merges all views into a new master graph
// and diffs it against the previous one. Addons that disappeared or changed
// are stopped synchronously; added and changed addons are loaded and their
// start tasks run on a worker pool once the update released the graph lock.
//
// All graph and state mutation happens under the write lock of Lock();
// registry reads share its read lock. Read methods take a context so a
// caller already holding the lock can pass the context it was given.
package furnace

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"

	"github.com/forge/furnace-sub000/internal/addon"
	"github.com/forge/furnace-sub000/internal/events"
	"github.com/forge/furnace-sub000/internal/graph"
	"github.com/forge/furnace-sub000/internal/lock"
	"github.com/forge/furnace-sub000/internal/logging"
	"github.com/forge/furnace-sub000/internal/services"
)

// ContainerStatus is the lifecycle state of the container itself.
type ContainerStatus int32

const (
	Stopped ContainerStatus = iota
	Starting
	Started
	Stopping
)

func (s ContainerStatus) String() string {
	switch s {
	case Stopped:
		return "STOPPED"
	case Starting:
		return "STARTING"
	case Started:
		return "STARTED"
	case Stopping:
		return "STOPPING"
	default:
		return "UNKNOWN"
	}
}

// DefaultViewName names the view over all repositories of the container.
const DefaultViewName = "default"

// Furnace is the addon container.
type Furnace struct {
	opts    Options
	logger  *logging.Logger
	lock    *lock.Manager
	events  *events.Manager
	builder *graph.Builder
	lookups *services.LookupCache
	state   *stateManager

	status   atomic.Int32
	starting atomic.Int64
	version  atomic.Int64
	dirty    atomic.Bool

	// generation numbers master graphs; guarded by the write lock.
	generation int64

	reposMu sync.RWMutex
	repos   []addon.Repository
	views   []*View

	runMu      sync.Mutex
	runCtx     context.Context
	runCancel  context.CancelFunc
	pool       *pool
	loopCancel context.CancelFunc
	loopDone   chan struct{}
}

// New creates a stopped container.
func New(opts Options) (*Furnace, error) {
	opts = opts.withDefaults()

	builder, err := graph.NewBuilder(opts.RuntimeVersion, opts.Compatibility, opts.SnapshotCacheSize)
	if err != nil {
		return nil, err
	}
	lookups, err := services.NewLookupCache(opts.LookupCacheSize)
	if err != nil {
		return nil, err
	}

	f := &Furnace{
		opts:    opts,
		logger:  logging.GetLogger("furnace"),
		lock:    lock.New(),
		events:  events.NewManager(),
		builder: builder,
		lookups: lookups,
		state:   newStateManager(),
	}
	f.views = []*View{{f: f, name: DefaultViewName, all: true}}
	return f, nil
}

// Lock returns the container's global lock.
func (f *Furnace) Lock() *lock.Manager {
	return f.lock
}

// AddListener registers a lifecycle listener and returns a function
// removing it.
func (f *Furnace) AddListener(l events.Listener) (remove func()) {
	return f.events.Add(l)
}

// Status returns the container status.
func (f *Furnace) Status() ContainerStatus {
	return ContainerStatus(f.status.Load())
}

// IsStartingAddons reports whether start tasks are in flight.
func (f *Furnace) IsStartingAddons() bool {
	return f.starting.Load() > 0
}

// Version increases whenever the set or the state of addons changes.
func (f *Furnace) Version() int64 {
	return f.version.Load()
}

func (f *Furnace) bumpVersion() {
	f.version.Add(1)
	f.state.notify()
}

// AddRepository adds repo to the default view. The change takes effect on
// the next update.
func (f *Furnace) AddRepository(repo addon.Repository) error {
	if repo == nil {
		return errors.New("repository cannot be nil")
	}
	f.reposMu.Lock()
	defer f.reposMu.Unlock()
	for _, r := range f.repos {
		if r.Name() == repo.Name() {
			return fmt.Errorf("repository %q is already registered", repo.Name())
		}
	}
	f.repos = append(f.repos, repo)
	f.dirty.Store(true)
	f.logger.InfoWithFields("Added repository", logging.Field("repository", repo.Name()))
	return nil
}

// Repositories returns the repositories of the default view in precedence
// order.
func (f *Furnace) Repositories() []addon.Repository {
	f.reposMu.RLock()
	defer f.reposMu.RUnlock()
	return append([]addon.Repository(nil), f.repos...)
}

// Registry returns the default view.
func (f *Furnace) Registry() *View {
	f.reposMu.RLock()
	defer f.reposMu.RUnlock()
	return f.views[0]
}

// Views returns all views, the default one first.
func (f *Furnace) Views() []*View {
	f.reposMu.RLock()
	defer f.reposMu.RUnlock()
	return append([]*View(nil), f.views...)
}

// View returns the view over repos, creating it when needed. The view is
// named after its repositories, and asking again for the same set of
// repositories returns the same view. Without repositories it returns the
// default view.
func (f *Furnace) View(ctx context.Context, repos ...addon.Repository) (*View, error) {
	if len(repos) == 0 {
		return f.Registry(), nil
	}
	names := make([]string, len(repos))
	for i, r := range repos {
		names[i] = r.Name()
	}
	return f.AddView(ctx, strings.Join(names, ","), repos...)
}

// AddView creates a named view over repos, in precedence order. Adding the
// same name with the same repositories again returns the existing view.
// When the container runs, the new view is resolved before AddView returns.
func (f *Furnace) AddView(ctx context.Context, name string, repos ...addon.Repository) (*View, error) {
	v, created, err := f.addView(name, repos)
	if err != nil || !created {
		return v, err
	}
	if f.Status() == Started {
		if err := f.ForceUpdate(ctx); err != nil {
			return v, err
		}
	}
	return v, nil
}

func (f *Furnace) addView(name string, repos []addon.Repository) (*View, bool, error) {
	if name == "" || name == DefaultViewName {
		return nil, false, fmt.Errorf("invalid view name %q", name)
	}
	if len(repos) == 0 {
		return nil, false, fmt.Errorf("view %q has no repositories", name)
	}
	key := repositoryKey(repos)

	f.reposMu.Lock()
	defer f.reposMu.Unlock()
	for _, v := range f.views {
		if v.all {
			continue
		}
		if v.name == name || repositoryKey(v.repos) == key {
			if v.name != name || repositoryKey(v.repos) != key {
				return nil, false, fmt.Errorf("view %q conflicts with existing view %q", name, v.name)
			}
			return v, false, nil
		}
	}

	v := &View{f: f, name: name, repos: append([]addon.Repository(nil), repos...)}
	f.views = append(f.views, v)
	f.dirty.Store(true)
	f.logger.InfoWithFields("Added view", logging.Field("view", name))
	return v, true, nil
}

func repositoryKey(repos []addon.Repository) string {
	names := make([]string, len(repos))
	for i, r := range repos {
		names[i] = r.Name()
	}
	sort.Strings(names)
	return strings.Join(names, "\x00")
}

// dirtyCheckers returns every distinct repository of every view that can
// report changes.
func (f *Furnace) dirtyCheckers() []addon.DirtyChecker {
	f.reposMu.RLock()
	defer f.reposMu.RUnlock()
	seen := make(map[addon.Repository]bool)
	var out []addon.DirtyChecker
	for _, v := range f.views {
		repos := v.repos
		if v.all {
			repos = f.repos
		}
		for _, r := range repos {
			if seen[r] {
				continue
			}
			seen[r] = true
			if dc, ok := r.(addon.DirtyChecker); ok {
				out = append(out, dc)
			}
		}
	}
	return out
}

// IsDirty reports whether a repository or view changed since the last
// update.
func (f *Furnace) IsDirty() bool {
	if f.dirty.Load() {
		return true
	}
	for _, dc := range f.dirtyCheckers() {
		if dc.IsDirty() {
			return true
		}
	}
	return false
}

// Start starts the container: it runs the first update and, with a scan
// interval configured, the background loop applying repository changes.
func (f *Furnace) Start(ctx context.Context) error {
	if !f.status.CompareAndSwap(int32(Stopped), int32(Starting)) {
		return fmt.Errorf("cannot start furnace in status %s", f.Status())
	}
	f.logger.Info("Starting furnace")
	f.events.FireBeforeStart(ctx)

	f.runMu.Lock()
	// Task contexts carry the caller's span but none of its values; a
	// lock hold of the caller must not leak into start tasks.
	f.runCtx, f.runCancel = context.WithCancel(trace.ContextWithSpan(context.Background(), trace.SpanFromContext(ctx)))
	f.pool = newPool(f.opts.Workers)
	f.runMu.Unlock()

	if err := f.ForceUpdate(ctx); err != nil {
		f.logger.ErrorWithErr("Initial update failed", err)
		_ = f.shutdown(ctx)
		return fmt.Errorf("initial update failed: %w", err)
	}

	f.status.Store(int32(Started))
	if f.opts.ScanInterval > 0 {
		f.runMu.Lock()
		loopCtx, cancel := context.WithCancel(f.runCtx)
		f.loopCancel = cancel
		f.loopDone = make(chan struct{})
		go f.scanLoop(loopCtx, f.loopDone)
		f.runMu.Unlock()
	}

	f.events.FireAfterStart(ctx)
	f.logger.Info("Furnace started")
	return nil
}

// Stop stops every addon in reverse dependency order and shuts down the
// worker pool. Stopping a stopped container is a no-op.
func (f *Furnace) Stop(ctx context.Context) error {
	if f.Status() == Stopped {
		return nil
	}
	if !f.status.CompareAndSwap(int32(Started), int32(Stopping)) {
		return fmt.Errorf("cannot stop furnace in status %s", f.Status())
	}
	f.logger.Info("Stopping furnace")
	f.events.FireBeforeStop(ctx)

	f.runMu.Lock()
	if f.loopCancel != nil {
		f.loopCancel()
		<-f.loopDone
		f.loopCancel, f.loopDone = nil, nil
	}
	f.runMu.Unlock()

	err := f.shutdown(ctx)
	f.events.FireAfterStop(ctx)
	if err != nil {
		f.logger.ErrorWithErr("Furnace stopped with errors", err)
		return err
	}
	f.logger.Info("Furnace stopped")
	return nil
}

func (f *Furnace) shutdown(ctx context.Context) error {
	var errs error
	errs = multierr.Append(errs, f.lock.PerformWrite(ctx, func(ctx context.Context) error {
		f.stopAll(ctx)
		return nil
	}))

	f.runMu.Lock()
	if f.pool != nil {
		errs = multierr.Append(errs, f.pool.shutdown(ctx))
		f.pool = nil
	}
	if f.runCancel != nil {
		f.runCancel()
	}
	f.runMu.Unlock()

	f.status.Store(int32(Stopped))
	return errs
}

// stopAll stops and forgets every addon. Caller holds the write lock.
func (f *Furnace) stopAll(ctx context.Context) {
	plan := graph.Diff(f.state.graph, nil)
	for _, id := range plan.Stop {
		if st, ok := f.state.get(id); ok {
			f.stopAddon(ctx, st)
		}
	}
	for _, st := range f.state.sorted() {
		f.stopAddon(ctx, st)
		f.state.remove(st.id)
	}
	f.state.graph = nil
	f.dirty.Store(true)
	f.bumpVersion()
	f.opts.Metrics.SetAddons(f.state.counts())
	f.opts.Metrics.SetGraph(0, 0)
}

func (f *Furnace) scanLoop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(f.opts.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if f.IsStartingAddons() || !f.IsDirty() {
			continue
		}
		if err := f.ForceUpdate(ctx); err != nil && ctx.Err() == nil {
			f.logger.ErrorWithErr("Scheduled update failed", err)
		}
	}
}

func (f *Furnace) running() bool {
	s := f.Status()
	return s == Starting || s == Started
}

// submit queues a start task. It reports false when the pool is gone.
func (f *Furnace) submit(job func()) bool {
	f.runMu.Lock()
	p := f.pool
	f.runMu.Unlock()
	return p != nil && p.submit(job)
}

func (f *Furnace) taskContext() (context.Context, context.CancelFunc) {
	f.runMu.Lock()
	defer f.runMu.Unlock()
	parent := f.runCtx
	if parent == nil {
		parent = context.Background()
	}
	return context.WithCancel(parent)
}
