// Package metrics exposes Prometheus instrumentation of the container.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/forge/furnace-sub000/internal/addon"
)

// Metrics holds the container's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	UpdatesTotal     *prometheus.CounterVec // Update cycles by result
	UpdateDuration   prometheus.Histogram   // Duration of update cycles
	GraphVertices    prometheus.Gauge       // Vertices of the current master graph
	GraphConflicts   prometheus.Gauge       // Names excluded by the optimizer in the last cycle
	Addons           *prometheus.GaugeVec   // Tracked addons by status
	StartingAddons   prometheus.Gauge       // Start tasks in flight
	TransitionsTotal *prometheus.CounterVec // Load, start and stop operations by result
}

// NewMetrics creates and registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	updatesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "furnace_updates_total",
		Help: "Total number of graph update cycles",
	}, []string{"result"})

	updateDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "furnace_update_duration_seconds",
		Help:    "Duration of graph update cycles",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
	})

	graphVertices := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "furnace_graph_vertices",
		Help: "Number of addons selected in the master graph",
	})

	graphConflicts := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "furnace_graph_conflicts",
		Help: "Number of addon names excluded by version conflicts in the last update",
	})

	addons := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "furnace_addons",
		Help: "Number of tracked addons by status",
	}, []string{"status"})

	startingAddons := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "furnace_addons_starting",
		Help: "Number of addon start tasks in flight",
	})

	transitionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "furnace_addon_transitions_total",
		Help: "Total number of addon load, start and stop operations",
	}, []string{"operation", "result"})

	reg.MustRegister(updatesTotal, updateDuration, graphVertices, graphConflicts, addons, startingAddons, transitionsTotal)

	return &Metrics{
		UpdatesTotal:     updatesTotal,
		UpdateDuration:   updateDuration,
		GraphVertices:    graphVertices,
		GraphConflicts:   graphConflicts,
		Addons:           addons,
		StartingAddons:   startingAddons,
		TransitionsTotal: transitionsTotal,
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveUpdate records a finished update cycle.
func (m *Metrics) ObserveUpdate(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.UpdatesTotal.WithLabelValues(result(err)).Inc()
	m.UpdateDuration.Observe(d.Seconds())
}

// SetGraph records the size of the published master graph.
func (m *Metrics) SetGraph(vertices, conflicts int) {
	if m == nil {
		return
	}
	m.GraphVertices.Set(float64(vertices))
	m.GraphConflicts.Set(float64(conflicts))
}

// SetAddons replaces the per-status addon counts. Statuses absent from
// counts are reported as zero.
func (m *Metrics) SetAddons(counts map[addon.Status]int) {
	if m == nil {
		return
	}
	for _, s := range addon.Statuses {
		m.Addons.WithLabelValues(s.String()).Set(float64(counts[s]))
	}
}

// AddStarting adjusts the number of start tasks in flight.
func (m *Metrics) AddStarting(delta int) {
	if m == nil {
		return
	}
	m.StartingAddons.Add(float64(delta))
}

// Transition counts one load, start or stop operation.
func (m *Metrics) Transition(operation string, err error) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(operation, result(err)).Inc()
}
