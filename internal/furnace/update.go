package furnace

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/forge/furnace-sub000/internal/addon"
	"github.com/forge/furnace-sub000/internal/graph"
	"github.com/forge/furnace-sub000/internal/logging"
)

// ForceUpdate rebuilds the master graph from all views and applies the
// difference to the previous one. Stops run before ForceUpdate returns;
// start tasks are queued once the write lock is released.
func (f *Furnace) ForceUpdate(ctx context.Context) error {
	if !f.running() {
		return ErrNotRunning
	}

	cycle := uuid.NewString()
	ctx, span := f.opts.Tracer.Start(ctx, "furnace.ForceUpdate",
		trace.WithAttributes(attribute.String("furnace.cycle", cycle)))
	defer span.End()

	began := time.Now()
	var jobs []func()
	err := f.lock.PerformWrite(ctx, func(ctx context.Context) error {
		var err error
		jobs, err = f.update(ctx, cycle)
		return err
	})
	f.opts.Metrics.ObserveUpdate(time.Since(began), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetAttributes(attribute.Int("furnace.starts", len(jobs)))
	for _, job := range jobs {
		if !f.submit(job) {
			go job()
		}
	}
	return nil
}

// update runs one cycle. Caller holds the write lock.
func (f *Furnace) update(ctx context.Context, cycle string) ([]func(), error) {
	logger := f.logger.WithContext(ctx).WithField("cycle", cycle)
	f.events.FireBeforeConfigurationScan(ctx)

	// Changes arriving while the graph is built are seen by the next cycle.
	f.dirty.Store(false)
	for _, dc := range f.dirtyCheckers() {
		dc.ResetDirtyStatus()
	}

	next, conflicts, err := f.buildMasterGraph(ctx, logger)
	if err != nil {
		f.dirty.Store(true)
		return nil, err
	}
	f.events.FireAfterConfigurationScan(ctx)

	prev := f.state.graph
	plan := graph.Diff(prev, next)
	logger.InfoWithFields("Computed update plan",
		logging.Field("generation", next.Generation()),
		logging.Field("addons", next.Len()),
		logging.Field("stop", len(plan.Stop)),
		logging.Field("start", len(plan.Start)),
		logging.Field("cyclic", len(plan.Cyclic)))

	for _, id := range plan.Stop {
		if st, ok := f.state.get(id); ok {
			f.stopAddon(ctx, st)
		}
	}

	f.syncStates(ctx, next)
	f.markCycles(logger, next, plan.Cyclic)

	starting := make(map[addon.Key]bool, len(plan.Start))
	for _, id := range plan.Start {
		starting[id.Key()] = true
	}
	var jobs []func()
	for _, id := range plan.Order {
		st, _ := f.state.get(id)
		if !starting[id.Key()] && !f.retryable(next, st) {
			continue
		}
		if st.status == addon.StatusFailed {
			f.stopAddon(ctx, st)
		}
		if job := f.load(ctx, st); job != nil {
			jobs = append(jobs, job)
		}
	}

	f.state.graph = next
	f.bumpVersion()
	f.opts.Metrics.SetGraph(next.Len(), conflicts)
	f.opts.Metrics.SetAddons(f.state.counts())
	return jobs, nil
}

func (f *Furnace) buildMasterGraph(ctx context.Context, logger *logging.Logger) (*graph.MasterGraph, int, error) {
	f.generation++
	next := graph.NewMasterGraph(f.generation)
	conflicts := 0
	for _, v := range f.Views() {
		repos := v.Repositories()
		candidates, err := f.builder.Build(ctx, repos)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to build graph of view %q: %w", v.Name(), err)
		}
		optimized := graph.Optimize(candidates)
		for _, c := range optimized.Conflicts() {
			logger.WarnWithFields("Excluded addon with conflicting version requirements",
				logging.Field("view", v.Name()),
				logging.Field("addon", c.Name),
				logging.Field("error", c.Err))
		}
		conflicts += len(optimized.Conflicts())
		next.Merge(v.Name(), optimized)
	}
	return next, conflicts, nil
}

// syncStates creates states for new vertices, refreshes the graph data of
// all others and drops states of addons no longer in any view.
func (f *Furnace) syncStates(ctx context.Context, next *graph.MasterGraph) {
	for _, id := range next.IDs() {
		v, _ := next.Vertex(id)
		st := f.state.getOrCreate(id)
		st.repository = v.Repository
		st.views = v.Views()
		st.dependencies = next.Dependencies(id)
		if st.status != addon.StatusStarted && st.status != addon.StatusLoaded {
			st.missing = v.Missing()
		}
	}
	for _, st := range f.state.sorted() {
		if next.Contains(st.id) {
			continue
		}
		f.stopAddon(ctx, st)
		f.state.remove(st.id)
	}
}

// markCycles records, for every addon that cannot be ordered, the required
// dependencies keeping it from starting.
func (f *Furnace) markCycles(logger *logging.Logger, next *graph.MasterGraph, cyclic []addon.ID) {
	if len(cyclic) == 0 {
		return
	}
	blocked := make(map[addon.Key]bool, len(cyclic))
	for _, id := range cyclic {
		blocked[id.Key()] = true
	}
	for _, id := range cyclic {
		st, ok := f.state.get(id)
		if !ok {
			continue
		}
		v, _ := next.Vertex(id)
		missing := v.Missing()
		for _, e := range st.dependencies {
			if !e.Optional() && blocked[e.To.Key()] {
				missing = append(missing, e.Dependency)
			}
		}
		addon.SortEntries(missing)
		st.missing = missing
		logger.WarnWithFields("Addon is part of a dependency cycle and will not start",
			logging.Field("addon", id.String()),
			logging.Field("repository", repositoryName(st.repository)))
	}
}

// retryable reports whether an addon the plan left alone should be loaded
// again: it failed before, or it is missing although the graph resolved all
// of its dependencies.
func (f *Furnace) retryable(next *graph.MasterGraph, st *addonState) bool {
	switch st.status {
	case addon.StatusFailed:
		return true
	case addon.StatusMissing:
		v, _ := next.Vertex(st.id)
		return st.unit == nil && st.future == nil && len(v.Missing()) == 0
	default:
		return false
	}
}

func repositoryName(r addon.Repository) string {
	if r == nil {
		return ""
	}
	return r.Name()
}
