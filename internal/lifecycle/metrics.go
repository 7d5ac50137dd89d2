package lifecycle

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for coordinator observability.
type Metrics struct {
	State             prometheus.Gauge   // Current coordinator state as an integer
	ComponentsRunning prometheus.Gauge   // Number of components currently running
	StartsTotal       prometheus.Counter // Total successful component starts
	StopsTotal        prometheus.Counter // Total successful component stops
	FailuresTotal     prometheus.Counter // Total component start/stop failures
	ShutdownDuration  prometheus.Gauge   // Duration of the last shutdown in seconds
}

// NewMetrics creates Prometheus metrics for a coordinator.
// The registerer parameter allows flexible registration (global registry,
// test registry). The instance parameter distinguishes daemons via
// ConstLabels.
func NewMetrics(reg prometheus.Registerer, instance string) *Metrics {
	labels := prometheus.Labels{"instance": instance}

	state := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "conductor_state",
		Help:        "Current coordinator lifecycle state (0=not-started 1=starting 2=running 3=stopping-graceful 4=stopping-forced 5=stopped 6=start-failed)",
		ConstLabels: labels,
	})

	componentsRunning := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "conductor_components_running",
		Help:        "Number of components currently running",
		ConstLabels: labels,
	})

	startsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "conductor_component_starts_total",
		Help:        "Total successful component starts",
		ConstLabels: labels,
	})

	stopsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "conductor_component_stops_total",
		Help:        "Total successful component stops",
		ConstLabels: labels,
	})

	failuresTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "conductor_component_failures_total",
		Help:        "Total component start and stop failures",
		ConstLabels: labels,
	})

	shutdownDuration := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "conductor_shutdown_duration_seconds",
		Help:        "Duration of the last shutdown in seconds",
		ConstLabels: labels,
	})

	reg.MustRegister(state)
	reg.MustRegister(componentsRunning)
	reg.MustRegister(startsTotal)
	reg.MustRegister(stopsTotal)
	reg.MustRegister(failuresTotal)
	reg.MustRegister(shutdownDuration)

	return &Metrics{
		State:             state,
		ComponentsRunning: componentsRunning,
		StartsTotal:       startsTotal,
		StopsTotal:        stopsTotal,
		FailuresTotal:     failuresTotal,
		ShutdownDuration:  shutdownDuration,
	}
}

// Nil-safe recording helpers: a coordinator without metrics passes nil.

func (m *Metrics) observeState(s State) {
	if m == nil {
		return
	}
	m.State.Set(float64(s))
}

func (m *Metrics) observeRunning(n int) {
	if m == nil {
		return
	}
	m.ComponentsRunning.Set(float64(n))
}

func (m *Metrics) observeStart() {
	if m == nil {
		return
	}
	m.StartsTotal.Inc()
}

func (m *Metrics) observeStop() {
	if m == nil {
		return
	}
	m.StopsTotal.Inc()
}

func (m *Metrics) observeFailure() {
	if m == nil {
		return
	}
	m.FailuresTotal.Inc()
}

func (m *Metrics) observeShutdownDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.ShutdownDuration.Set(d.Seconds())
}
