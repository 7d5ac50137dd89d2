package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rauhl/conductor/internal/logging"
)

const (
	defaultJournalCapacity = 512

	// rollbackStopTimeout bounds each Stop call made outside a normal
	// shutdown (startup rollback, component restart).
	rollbackStopTimeout = 5 * time.Second
)

// CoordinatorConfig carries optional collaborators for a Coordinator.
// The zero value is valid: no metrics, a no-op tracer, default journal size.
type CoordinatorConfig struct {
	// Metrics receives coordinator observations when non-nil.
	Metrics *Metrics
	// Tracer creates spans around lifecycle operations. Defaults to the
	// global tracer provider, which is a no-op unless tracing is enabled.
	Tracer trace.Tracer
	// JournalCapacity bounds the in-memory event journal. Defaults to 512.
	JournalCapacity int
}

// Coordinator drives all registered components through start and stop
// transitions with defined ordering and failure semantics.
//
// Components start sequentially in registration order and stop sequentially
// in reverse registration order. A graceful shutdown races the whole
// drain-then-stop sequence against one timer and escalates to a forced stop
// when the timer wins or a component fails. A forced stop is best-effort:
// every component gets a stop attempt regardless of individual failures.
type Coordinator struct {
	registry *Registry
	journal  *Journal
	metrics  *Metrics
	tracer   trace.Tracer
	logger   *logging.Logger

	// opMu serializes StartAll, GracefulStopAll, ForceStopAll, and
	// RestartComponent end to end.
	opMu sync.Mutex

	// stateMu guards the fields below so status readers never block on an
	// in-flight lifecycle operation.
	stateMu      sync.RWMutex
	state        State
	failedAt     string
	runID        string
	running      map[string]bool
	startedOrder []Component
}

// NewCoordinator creates a coordinator owning the given registry.
// The registry freezes on the first lifecycle operation.
func NewCoordinator(registry *Registry, cfg CoordinatorConfig) (*Coordinator, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry must not be nil")
	}

	capacity := cfg.JournalCapacity
	if capacity <= 0 {
		capacity = defaultJournalCapacity
	}
	journal, err := NewJournal(capacity)
	if err != nil {
		return nil, err
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer("conductor/lifecycle")
	}

	return &Coordinator{
		registry: registry,
		journal:  journal,
		metrics:  cfg.Metrics,
		tracer:   tracer,
		logger:   logging.GetLogger("lifecycle.coordinator"),
		state:    StateNotStarted,
		running:  make(map[string]bool),
	}, nil
}

// StartAll starts every registered component sequentially in registration
// order. Later components may assume earlier ones are ready.
//
// On the first failure the coordinator stops the already-started components
// in reverse order (best-effort, errors logged), transitions to
// StateStartFailed, and returns a ComponentStartError. On full success it
// transitions to StateRunning. An empty registry goes straight to
// StateRunning.
//
// Legal only from StateNotStarted; otherwise returns InvalidTransitionError
// without touching any component.
func (c *Coordinator) StartAll(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.transitionTo(StateStarting, "start"); err != nil {
		return err
	}
	c.registry.freeze()

	runID := uuid.NewString()
	c.stateMu.Lock()
	c.runID = runID
	c.startedOrder = nil
	c.stateMu.Unlock()

	ctx, span := c.tracer.Start(ctx, "coordinator.start_all",
		trace.WithAttributes(attribute.String("run_id", runID)))
	defer span.End()

	order := c.registry.StartOrder()
	c.logger.InfoWithFields("Starting components",
		logging.Field("count", len(order)),
		logging.Field("run_id", runID),
	)

	for _, component := range order {
		name := component.Name()
		c.logger.Info("Starting %s", name)
		startTime := time.Now()

		if err := c.startComponent(ctx, component); err != nil {
			startErr := &ComponentStartError{Name: name, Err: err}
			c.logger.ErrorWithErr("Failed to start "+name, err)
			c.journal.Record(EventComponentStartFailed, name, err.Error())
			c.metrics.observeFailure()
			span.RecordError(startErr)

			c.rollbackStarted()

			c.stateMu.Lock()
			c.failedAt = name
			c.stateMu.Unlock()
			if terr := c.transitionTo(StateStartFailed, "start"); terr != nil {
				c.logger.Warn("Unexpected state after start failure: %v", terr)
			}
			return startErr
		}

		c.stateMu.Lock()
		c.running[name] = true
		c.startedOrder = append(c.startedOrder, component)
		c.stateMu.Unlock()

		c.journal.Record(EventComponentStarted, name, "")
		c.metrics.observeStart()
		c.metrics.observeRunning(c.runningCount())

		c.logger.Info("%s started successfully (took %dms)", name, time.Since(startTime).Milliseconds())
	}

	if err := c.transitionTo(StateRunning, "start"); err != nil {
		return err
	}
	c.logger.Info("All components started successfully")
	return nil
}

// GracefulStopAll drains every component, then stops every component, both
// in reverse registration order. The whole sequence races against timeout,
// measured from invocation and covering both phases combined.
//
// Returns OutcomeGraceful when the sequence finishes in time.
// Returns OutcomeForcedAfterTimeout with a nil error when the timer fires
// first or ctx is cancelled: the coordinator escalates to a forced stop so
// the system never stays partially stopped.
// Returns OutcomeForcedAfterError and the component's error when a drain or
// stop fails on the graceful path; the forced escalation still runs.
//
// Legal only from StateRunning.
func (c *Coordinator) GracefulStopAll(ctx context.Context, timeout time.Duration) (Outcome, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.transitionTo(StateStoppingGraceful, "graceful stop"); err != nil {
		return OutcomeNone, err
	}

	ctx, span := c.tracer.Start(ctx, "coordinator.graceful_stop_all",
		trace.WithAttributes(attribute.String("timeout", timeout.String())))
	defer span.End()

	begin := time.Now()
	defer func() {
		c.metrics.observeShutdownDuration(time.Since(begin))
	}()

	c.logger.InfoWithFields("Graceful shutdown started",
		logging.Field("timeout", timeout.String()),
		logging.Field("components", c.registry.Len()),
	)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	done := make(chan error, 1)
	go func() {
		done <- c.runGracefulSequence(ctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			c.logger.ErrorWithErr("Graceful shutdown failed, escalating to forced stop", err)
			span.RecordError(err)
			c.escalateToForced(context.Background())
			return OutcomeForcedAfterError, err
		}
		if terr := c.transitionTo(StateStopped, "graceful stop"); terr != nil {
			return OutcomeNone, terr
		}
		c.logger.Info("All components stopped gracefully (took %dms)", time.Since(begin).Milliseconds())
		return OutcomeGraceful, nil

	case <-timer.C:
		c.logger.Warn("Graceful shutdown exceeded %s timeout, escalating to forced stop", timeout)
		span.RecordError(ErrShutdownTimedOut)
		c.escalateToForced(context.Background())
		return OutcomeForcedAfterTimeout, nil

	case <-ctx.Done():
		c.logger.Warn("Graceful shutdown cancelled (%v), escalating to forced stop", ctx.Err())
		c.escalateToForced(context.Background())
		return OutcomeForcedAfterTimeout, nil
	}
}

// ForceStopAll interrupts and stops every component in reverse registration
// order, sequentially. Individual stop errors are logged and suppressed so
// one stuck component cannot prevent the others from stopping. The
// coordinator reaches StateStopped unconditionally and the returned error
// only reflects an illegal starting state.
func (c *Coordinator) ForceStopAll(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.transitionTo(StateStoppingForced, "forced stop"); err != nil {
		return err
	}

	ctx, span := c.tracer.Start(ctx, "coordinator.force_stop_all")
	defer span.End()

	begin := time.Now()
	c.forceStopSequence(ctx)
	c.metrics.observeShutdownDuration(time.Since(begin))
	return nil
}

// RestartComponent stops and starts a single component while the coordinator
// keeps running. Returns ErrCoordinatorBusy without blocking when a
// lifecycle operation is in flight; callers skip and retry later.
func (c *Coordinator) RestartComponent(ctx context.Context, name string) error {
	if !c.opMu.TryLock() {
		return ErrCoordinatorBusy
	}
	defer c.opMu.Unlock()

	if state := c.State(); state != StateRunning {
		return &InvalidTransitionError{From: state, To: StateRunning, Op: "restart " + name}
	}

	component, err := c.registry.Get(name)
	if err != nil {
		return err
	}

	c.logger.Info("Restarting %s", name)

	stopCtx, cancel := context.WithTimeout(ctx, rollbackStopTimeout)
	if err := component.Stop(stopCtx); err != nil {
		c.logger.Warn("Error stopping %s before restart: %v", name, err)
	}
	cancel()
	c.markStopped(name)

	if err := component.Start(ctx); err != nil {
		c.journal.Record(EventComponentStartFailed, name, err.Error())
		c.metrics.observeFailure()
		return &ComponentStartError{Name: name, Err: err}
	}

	c.stateMu.Lock()
	c.running[name] = true
	c.stateMu.Unlock()
	c.metrics.observeRunning(c.runningCount())
	c.journal.Record(EventComponentRestarted, name, "")

	c.logger.Info("%s restarted successfully", name)
	return nil
}

// runGracefulSequence drains every component, then stops every component,
// both in stop order. The caller races it against the shutdown timer; the
// sequence itself never transitions coordinator state.
func (c *Coordinator) runGracefulSequence(ctx context.Context) error {
	order := c.registry.StopOrder()

	for _, component := range order {
		drainer, ok := component.(Drainer)
		if !ok {
			continue
		}
		c.logger.Debug("Draining %s", component.Name())
		if err := drainer.Drain(ctx); err != nil {
			c.metrics.observeFailure()
			return &ComponentStopError{Name: component.Name(), Err: err}
		}
	}

	for _, component := range order {
		name := component.Name()
		c.logger.Info("Stopping %s", name)
		startTime := time.Now()

		if err := c.stopComponent(ctx, component); err != nil {
			c.journal.Record(EventComponentStopFailed, name, err.Error())
			c.metrics.observeFailure()
			return &ComponentStopError{Name: name, Err: err}
		}

		c.markStopped(name)
		c.journal.Record(EventComponentStopped, name, "")
		c.metrics.observeStop()
		c.logger.Info("%s stopped successfully (took %dms)", name, time.Since(startTime).Milliseconds())
	}

	return nil
}

// escalateToForced moves an in-flight graceful shutdown to the forced path.
// Called with opMu held. The abandoned graceful goroutine may still be
// blocked inside a component call; components tolerate overlapping Stop.
func (c *Coordinator) escalateToForced(ctx context.Context) {
	if err := c.transitionTo(StateStoppingForced, "forced stop"); err != nil {
		c.logger.Warn("Skipping forced escalation: %v", err)
		return
	}
	c.forceStopSequence(ctx)
}

// forceStopSequence interrupts and stops every component in stop order,
// swallowing individual errors, then transitions to StateStopped.
func (c *Coordinator) forceStopSequence(ctx context.Context) {
	for _, component := range c.registry.StopOrder() {
		name := component.Name()

		if interrupter, ok := component.(Interrupter); ok {
			c.logger.Debug("Interrupting %s", name)
			if err := interrupter.Interrupt(ctx); err != nil {
				c.logger.Warn("Error interrupting %s: %v", name, err)
			}
		}

		c.logger.Info("Stopping %s (forced)", name)
		if err := c.stopComponent(ctx, component); err != nil {
			c.logger.Warn("Error stopping %s during forced shutdown: %v", name, err)
			c.journal.Record(EventComponentStopFailed, name, err.Error())
			c.metrics.observeFailure()
		} else {
			c.journal.Record(EventComponentStopped, name, "forced")
			c.metrics.observeStop()
		}

		c.markStopped(name)
	}

	if err := c.transitionTo(StateStopped, "forced stop"); err != nil {
		c.logger.Warn("Unexpected state after forced stop: %v", err)
	}
	c.logger.Info("All components stopped (forced)")
}

// rollbackStarted stops the components a failed StartAll already started,
// in reverse start order. Errors are logged, not propagated: the original
// start error is what the caller sees.
func (c *Coordinator) rollbackStarted() {
	c.stateMu.RLock()
	started := make([]Component, len(c.startedOrder))
	copy(started, c.startedOrder)
	c.stateMu.RUnlock()

	for i := len(started) - 1; i >= 0; i-- {
		component := started[i]
		name := component.Name()
		c.logger.Debug("Rolling back: stopping %s", name)

		stopCtx, cancel := context.WithTimeout(context.Background(), rollbackStopTimeout)
		if err := component.Stop(stopCtx); err != nil {
			c.logger.Warn("Error stopping %s during rollback: %v", name, err)
			c.journal.Record(EventComponentStopFailed, name, err.Error())
			c.metrics.observeFailure()
		} else {
			c.journal.Record(EventComponentStopped, name, "rollback")
			c.metrics.observeStop()
		}
		cancel()

		c.markStopped(name)
	}
}

func (c *Coordinator) startComponent(ctx context.Context, component Component) error {
	ctx, span := c.tracer.Start(ctx, "component.start",
		trace.WithAttributes(attribute.String("component", component.Name())))
	defer span.End()

	err := component.Start(ctx)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (c *Coordinator) stopComponent(ctx context.Context, component Component) error {
	ctx, span := c.tracer.Start(ctx, "component.stop",
		trace.WithAttributes(attribute.String("component", component.Name())))
	defer span.End()

	err := component.Stop(ctx)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// transitionTo moves the coordinator to target after checking legality,
// recording the change in the journal and metrics.
func (c *Coordinator) transitionTo(target State, op string) error {
	c.stateMu.Lock()
	if !c.state.CanTransitionTo(target) {
		err := &InvalidTransitionError{From: c.state, To: target, Op: op}
		c.stateMu.Unlock()
		return err
	}
	from := c.state
	c.state = target
	c.stateMu.Unlock()

	c.logger.Debug("State transition %s -> %s", from, target)
	c.journal.Record(EventStateChange, "", fmt.Sprintf("%s -> %s", from, target))
	c.metrics.observeState(target)
	return nil
}

func (c *Coordinator) markStopped(name string) {
	c.stateMu.Lock()
	c.running[name] = false
	c.stateMu.Unlock()
	c.metrics.observeRunning(c.runningCount())
}

func (c *Coordinator) runningCount() int {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()

	n := 0
	for _, running := range c.running {
		if running {
			n++
		}
	}
	return n
}

// State returns the coordinator's current lifecycle state. Never blocks on
// an in-flight operation.
func (c *Coordinator) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// FailedComponent returns the name of the component whose Start failed, or
// "" when the coordinator is not in StateStartFailed.
func (c *Coordinator) FailedComponent() string {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	if c.state != StateStartFailed {
		return ""
	}
	return c.failedAt
}

// RunID returns the identifier assigned by the last StartAll, or "" before
// the first start.
func (c *Coordinator) RunID() string {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.runID
}

// IsRunning reports whether the named component started successfully and
// has not stopped, as tracked by the coordinator. Components implementing
// Prober can report more precisely; status aggregation prefers the probe.
func (c *Coordinator) IsRunning(name string) bool {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.running[name]
}

// Registry returns the component registry.
func (c *Coordinator) Registry() *Registry {
	return c.registry
}

// Events returns up to n recent journal entries, oldest first.
func (c *Coordinator) Events(n int) []Event {
	return c.journal.Recent(n)
}
