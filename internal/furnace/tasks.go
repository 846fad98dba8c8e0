package furnace

import (
	"context"
	"errors"
	"fmt"

	"github.com/forge/furnace-sub000/internal/addon"
	"github.com/forge/furnace-sub000/internal/codeunit"
	"github.com/forge/furnace-sub000/internal/lock"
	"github.com/forge/furnace-sub000/internal/logging"
	"github.com/forge/furnace-sub000/internal/services"
)

var errSuperseded = errors.New("start superseded by a newer update")

func (f *Furnace) addonLogger(ctx context.Context, st *addonState) *logging.Logger {
	return f.logger.WithContext(ctx).WithFields(
		logging.Field("addon", st.id.String()),
		logging.Field("repository", repositoryName(st.repository)),
		logging.Field("view", st.loadView()),
	)
}

// load attaches the code unit of st and returns its start task. It returns
// nil when the addon cannot be loaded yet. Caller holds the write lock.
func (f *Furnace) load(ctx context.Context, st *addonState) func() {
	logger := f.addonLogger(ctx, st)

	if len(st.missing) > 0 {
		logger.DebugWithFields("Addon has unresolved dependencies", logging.Field("missing", entryNames(st.missing)))
		return nil
	}
	var unloaded []addon.DependencyEntry
	for _, e := range st.dependencies {
		if e.Optional() {
			continue
		}
		dep, ok := f.state.get(e.To)
		if !ok || !dep.status.IsLoaded() {
			unloaded = append(unloaded, e.Dependency)
		}
	}
	if len(unloaded) > 0 {
		st.missing = unloaded
		st.status = addon.StatusMissing
		logger.InfoWithFields("Addon waits for dependencies to load", logging.Field("missing", entryNames(unloaded)))
		return nil
	}

	var unit codeunit.Unit
	resources, err := st.repository.Resources(st.id)
	if err == nil {
		err = safely(func() error {
			var loadErr error
			unit, loadErr = f.opts.Provider.Load(ctx, st.loadView(), st.id, resources)
			return loadErr
		})
	}
	f.opts.Metrics.Transition("load", err)
	if err != nil {
		st.status = addon.StatusFailed
		st.err = fmt.Errorf("failed to load %s: %w", st.id, err)
		logger.ErrorWithFields("Failed to load addon", logging.Field("error", err))
		return nil
	}

	st.unit = unit
	st.status = addon.StatusLoaded
	st.err = nil
	st.missing = nil

	taskCtx, cancel := f.taskContext()
	fut := newFuture(cancel)
	st.future = fut
	f.starting.Add(1)
	f.opts.Metrics.AddStarting(1)

	deps := st.requiredDependencies()
	return func() {
		defer func() {
			f.starting.Add(-1)
			f.opts.Metrics.AddStarting(-1)
		}()
		if !fut.claim() {
			// Stopped before a worker picked the task up.
			return
		}
		f.runStart(taskCtx, logger, st, unit, deps, fut)
	}
}

// runStart is the start task of one addon. It waits for its required
// dependencies, runs the startup hook and publishes the result.
// logger is built by load under the write lock; the task must not read
// the repository or views of st on its own.
func (f *Furnace) runStart(ctx context.Context, logger *logging.Logger, st *addonState, unit codeunit.Unit, deps []addon.ID, fut *future) {
	hookCtx, cancel := context.WithTimeout(ctx, f.opts.StartTimeout)
	defer cancel()

	err := hookCtx.Err()
	if err == nil {
		err = f.awaitDependencies(hookCtx, deps)
	}
	if err == nil {
		err = safely(func() error { return unit.Start(hookCtx) })
	}
	if err != nil {
		f.failStart(ctx, logger, st, fut, err)
		return
	}

	err = f.lock.PerformWrite(ctx, func(ctx context.Context) error {
		if st.future != fut {
			return errSuperseded
		}
		st.status = addon.StatusStarted
		st.services = services.NewRegistry(unit.Services())
		f.bumpVersion()
		f.opts.Metrics.SetAddons(f.state.counts())
		return nil
	})
	if err != nil {
		// Stopped while the hook ran; the stop saw no started addon.
		logger.WarnWithFields("Addon start was cancelled after its startup hook ran", logging.Field("reason", err))
		f.stopUnit(st.id, unit)
		fut.complete(err)
		return
	}

	f.opts.Metrics.Transition("start", nil)
	f.events.FirePostStartup(ctx, st.id)
	fut.complete(nil)
	logger.Info("Addon started")
}

func (f *Furnace) failStart(ctx context.Context, logger *logging.Logger, st *addonState, fut *future, cause error) {
	if ctx.Err() != nil {
		fut.complete(fmt.Errorf("start of %s cancelled: %w", st.id, cause))
		return
	}

	err := fmt.Errorf("failed to start %s: %w", st.id, cause)
	if werr := f.lock.PerformWrite(ctx, func(context.Context) error {
		if st.future != fut {
			return errSuperseded
		}
		st.status = addon.StatusFailed
		st.err = err
		f.bumpVersion()
		f.opts.Metrics.SetAddons(f.state.counts())
		return nil
	}); werr != nil {
		logger.DebugWithFields("Dropping start failure of a stopped addon", logging.Field("error", cause))
		fut.complete(fmt.Errorf("start of %s dropped: %w", st.id, werr))
		return
	}
	f.opts.Metrics.Transition("start", err)
	logger.ErrorWithFields("Addon failed to start", logging.Field("error", cause))
	fut.complete(err)
}

type dependencyState struct {
	status addon.Status
	future *future
}

// awaitDependencies blocks until every addon in deps is started. It fails
// as soon as one of them fails or ctx ends.
func (f *Furnace) awaitDependencies(ctx context.Context, deps []addon.ID) error {
	for _, dep := range deps {
		for {
			changes := f.state.changes()
			ds, err := lock.Read(ctx, f.lock, func(context.Context) (dependencyState, error) {
				st, ok := f.state.get(dep)
				if !ok {
					return dependencyState{status: addon.StatusMissing}, nil
				}
				return dependencyState{status: st.status, future: st.future}, nil
			})
			if err != nil {
				return fmt.Errorf("waiting for dependency %s: %w", dep, err)
			}

			// A started dependency counts once its start task completed,
			// which is after its post-startup notification.
			if ds.future != nil && !ds.future.isDone() {
				if err := ds.future.wait(ctx); err != nil {
					return fmt.Errorf("dependency %s did not start: %w", dep, err)
				}
				continue
			}
			if ds.status == addon.StatusStarted {
				break
			}
			if ds.status == addon.StatusFailed {
				return fmt.Errorf("dependency %s failed to start", dep)
			}
			if ds.future != nil && ds.future.err != nil {
				return fmt.Errorf("dependency %s did not start: %w", dep, ds.future.err)
			}

			select {
			case <-changes:
			case <-ctx.Done():
				return fmt.Errorf("waiting for dependency %s: %w", dep, ctx.Err())
			}
		}
	}
	return nil
}

// stopAddon cancels a pending start, runs the shutdown hook of a started
// addon and releases its code unit. Stopping an addon without code unit or
// start task does nothing. Caller holds the write lock.
func (f *Furnace) stopAddon(ctx context.Context, st *addonState) {
	if st.unit == nil && st.future == nil && st.status == addon.StatusMissing {
		return
	}
	logger := f.addonLogger(ctx, st)

	if fut := st.future; fut != nil && fut.claim() {
		// Still queued: no worker will run it.
		fut.complete(fmt.Errorf("start of %s: %w", st.id, context.Canceled))
	} else if fut != nil && !fut.isDone() {
		fut.cancel()
		waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.opts.StopTimeout)
		_ = fut.wait(waitCtx)
		cancel()
		if !fut.isDone() {
			logger.Warn("Start task did not finish within %s after cancellation", f.opts.StopTimeout)
		}
	}

	if st.status == addon.StatusStarted {
		f.events.FirePreShutdown(ctx, st.id)
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.opts.StopTimeout)
		err := safely(func() error { return st.unit.Stop(stopCtx) })
		cancel()
		f.opts.Metrics.Transition("stop", err)
		if err != nil {
			logger.ErrorWithFields("Addon shutdown hook failed", logging.Field("error", err))
		} else {
			logger.Info("Addon stopped")
		}
	}

	if st.unit != nil {
		f.opts.Provider.Release(st.id)
	}
	st.reset()
	f.bumpVersion()
}

// stopUnit runs the shutdown hook of a unit whose start was superseded.
func (f *Furnace) stopUnit(id addon.ID, unit codeunit.Unit) {
	ctx, cancel := context.WithTimeout(context.Background(), f.opts.StopTimeout)
	defer cancel()
	if err := safely(func() error { return unit.Stop(ctx) }); err != nil {
		f.logger.ErrorWithFields("Shutdown hook of cancelled addon failed",
			logging.Field("addon", id.String()), logging.Field("error", err))
	}
}

func safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func entryNames(entries []addon.DependencyEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.String()
	}
	return out
}
