package runtime

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the engine's Prometheus collectors. All methods are
// nil-receiver safe so the runtime can run unmetered.
type Metrics struct {
	eventsProcessed prometheus.Counter
	internalEvents  prometheus.Counter
	flowTransitions *prometheus.CounterVec
	actionsStarted  prometheus.Counter
	actionsStopped  prometheus.Counter
	conflicts       prometheus.Counter
	processSeconds  prometheus.Histogram
}

// NewMetrics creates and registers the engine collectors. A nil
// registerer means the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		eventsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "weft_events_processed_total",
			Help: "External events admitted to the dispatcher",
		}),
		internalEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "weft_internal_events_total",
			Help: "Internal events generated while processing",
		}),
		flowTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weft_flow_transitions_total",
			Help: "Flow instance terminal transitions",
		}, []string{"status"}),
		actionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "weft_actions_started_total",
			Help: "Action start events emitted",
		}),
		actionsStopped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "weft_actions_stopped_total",
			Help: "Action stop events emitted on cancellation",
		}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "weft_conflicts_resolved_total",
			Help: "Action-send conflicts adjudicated",
		}),
		processSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "weft_process_duration_seconds",
			Help:    "Wall time spent processing one external event",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		m.eventsProcessed, m.internalEvents, m.flowTransitions,
		m.actionsStarted, m.actionsStopped, m.conflicts, m.processSeconds,
	)
	return m
}

func (m *Metrics) observeProcess(seconds float64) {
	if m == nil {
		return
	}
	m.eventsProcessed.Inc()
	m.processSeconds.Observe(seconds)
}

func (m *Metrics) incInternal() {
	if m == nil {
		return
	}
	m.internalEvents.Inc()
}

func (m *Metrics) incTransition(status string) {
	if m == nil {
		return
	}
	m.flowTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) incActionStarted() {
	if m == nil {
		return
	}
	m.actionsStarted.Inc()
}

func (m *Metrics) incActionStopped() {
	if m == nil {
		return
	}
	m.actionsStopped.Inc()
}

func (m *Metrics) incConflict() {
	if m == nil {
		return
	}
	m.conflicts.Inc()
}
