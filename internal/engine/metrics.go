package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors that report engine activity. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	eventsApplied *prometheus.CounterVec
	eventsIgnored *prometheus.CounterVec
	pointFetches  *prometheus.CounterVec
	snapshots     *prometheus.CounterVec
	tasks         prometheus.Gauge
}

// MustNewMetrics constructs and registers the collectors. Registration
// errors other than AlreadyRegistered panic.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		eventsApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "taskdeck",
				Subsystem: "engine",
				Name:      "events_applied_total",
				Help:      "Stream events that changed the task table.",
			},
			[]string{"kind"},
		),
		eventsIgnored: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "taskdeck",
				Subsystem: "engine",
				Name:      "events_ignored_total",
				Help:      "Stream events that had no effect.",
			},
			[]string{"reason"},
		),
		pointFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "taskdeck",
				Subsystem: "engine",
				Name:      "point_fetches_total",
				Help:      "Single-task fetches issued for newly announced tasks.",
			},
			[]string{"result"},
		),
		snapshots: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "taskdeck",
				Subsystem: "engine",
				Name:      "snapshots_total",
				Help:      "Bulk snapshot loads.",
			},
			[]string{"result"},
		),
		tasks: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "taskdeck",
				Subsystem: "engine",
				Name:      "tasks",
				Help:      "Tasks currently in the table.",
			},
		),
	}

	counters := []**prometheus.CounterVec{&m.eventsApplied, &m.eventsIgnored, &m.pointFetches, &m.snapshots}
	for _, c := range counters {
		if err := reg.Register(*c); err != nil {
			already, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				panic(err)
			}
			*c = already.ExistingCollector.(*prometheus.CounterVec)
		}
	}
	if err := reg.Register(m.tasks); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			panic(err)
		}
		m.tasks = already.ExistingCollector.(prometheus.Gauge)
	}
	return m
}

// ObserveEvent records the outcome of one applied event.
func (m *Metrics) ObserveEvent(kind, ignored string) {
	if m == nil {
		return
	}
	if ignored != "" {
		m.eventsIgnored.WithLabelValues(ignored).Inc()
		return
	}
	m.eventsApplied.WithLabelValues(kind).Inc()
}

// IncPointFetch counts a point fetch by result ("ok", "error", "stale").
func (m *Metrics) IncPointFetch(result string) {
	if m == nil {
		return
	}
	m.pointFetches.WithLabelValues(result).Inc()
}

// IncSnapshot counts a snapshot load by result ("ok", "error").
func (m *Metrics) IncSnapshot(result string) {
	if m == nil {
		return
	}
	m.snapshots.WithLabelValues(result).Inc()
}

// SetTasks records the table size.
func (m *Metrics) SetTasks(n int) {
	if m == nil {
		return
	}
	m.tasks.Set(float64(n))
}
