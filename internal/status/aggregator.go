package status

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rauhl/conductor/internal/lifecycle"
	"github.com/rauhl/conductor/internal/logging"
)

const (
	defaultProbeTimeout     = 2 * time.Second
	defaultProbeConcurrency = 8
)

// Config carries tuning knobs for an Aggregator. The zero value is valid.
type Config struct {
	// ProbeTimeout bounds each component probe. Defaults to 2s.
	ProbeTimeout time.Duration
	// ProbeConcurrency bounds how many probes run at once. Defaults to 8.
	ProbeConcurrency int
}

// Aggregator assembles status snapshots from the coordinator's view and
// per-component probes. Snapshots are pure reads: they take no lifecycle
// locks and can be captured at any time, in any state, as often as needed.
type Aggregator struct {
	coordinator      *lifecycle.Coordinator
	logger           *logging.Logger
	probeTimeout     time.Duration
	probeConcurrency int
}

// NewAggregator creates an aggregator over the given coordinator.
func NewAggregator(coordinator *lifecycle.Coordinator, cfg Config) *Aggregator {
	timeout := cfg.ProbeTimeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	concurrency := cfg.ProbeConcurrency
	if concurrency <= 0 {
		concurrency = defaultProbeConcurrency
	}
	return &Aggregator{
		coordinator:      coordinator,
		logger:           logging.GetLogger("status.aggregator"),
		probeTimeout:     timeout,
		probeConcurrency: concurrency,
	}
}

// Snapshot captures the current system status. Components implementing
// Prober are asked directly whether they run; everything else falls back to
// the coordinator's bookkeeping. Session counts from SessionReporter
// components are summed per session kind.
func (a *Aggregator) Snapshot(ctx context.Context) Snapshot {
	state := a.coordinator.State()

	components := make(map[string]bool)
	sessions := make(map[string]int)

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.probeConcurrency)

	for _, component := range a.coordinator.Registry().StartOrder() {
		component := component
		g.Go(func() error {
			name := component.Name()
			running := a.probe(ctx, component)

			var reported map[string]int
			if reporter, ok := component.(lifecycle.SessionReporter); ok && running {
				reported = reporter.ActiveSessions()
			}

			mu.Lock()
			components[name] = running
			for kind, count := range reported {
				sessions[kind] += count
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return Snapshot{
		OverallHealth:   deriveHealth(state, components),
		State:           state.String(),
		RunID:           a.coordinator.RunID(),
		FailedComponent: a.coordinator.FailedComponent(),
		Components:      components,
		ActiveSessions:  sessions,
		CapturedAt:      time.Now().UTC(),
	}
}

// probe asks a Prober component whether it runs, bounded by the probe
// timeout so a wedged component cannot stall status reporting. Non-probers
// use the coordinator's bookkeeping.
func (a *Aggregator) probe(ctx context.Context, component lifecycle.Component) bool {
	prober, ok := component.(lifecycle.Prober)
	if !ok {
		return a.coordinator.IsRunning(component.Name())
	}

	result := make(chan bool, 1)
	go func() {
		result <- prober.Running()
	}()

	select {
	case running := <-result:
		return running
	case <-time.After(a.probeTimeout):
		a.logger.Warn("Probe for %s timed out after %s, reporting not running", component.Name(), a.probeTimeout)
		return false
	case <-ctx.Done():
		return false
	}
}

// deriveHealth reduces the coordinator state plus per-component results to a
// single operator-facing value.
func deriveHealth(state lifecycle.State, components map[string]bool) Health {
	switch state {
	case lifecycle.StateNotStarted:
		return HealthNotStarted
	case lifecycle.StateStarting:
		return HealthStarting
	case lifecycle.StateRunning:
		for _, running := range components {
			if !running {
				return HealthDegraded
			}
		}
		return HealthHealthy
	case lifecycle.StateStoppingGraceful, lifecycle.StateStoppingForced:
		return HealthStopping
	case lifecycle.StateStopped:
		return HealthStopped
	case lifecycle.StateStartFailed:
		return HealthFailed
	default:
		return HealthDegraded
	}
}
