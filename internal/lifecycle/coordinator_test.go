package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// callRecorder records the global order of component invocations across all
// mocks in a test. Safe for concurrent use: an escalated shutdown can invoke
// Stop from two goroutines.
type callRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *callRecorder) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *callRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

func (r *callRecorder) count(call string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == call {
			n++
		}
	}
	return n
}

// assertOrder verifies the given calls appear in the recorder in the given
// relative order (other calls may be interleaved).
func assertOrder(t *testing.T, rec *callRecorder, calls ...string) {
	t.Helper()
	recorded := rec.snapshot()
	pos := -1
	for _, want := range calls {
		found := -1
		for i := pos + 1; i < len(recorded); i++ {
			if recorded[i] == want {
				found = i
				break
			}
		}
		if found < 0 {
			t.Fatalf("call %q missing or out of order after position %d; recorded: %v", want, pos, recorded)
		}
		pos = found
	}
}

// mockComponent implements Component only; optional capabilities come from
// the wrapper types below.
type mockComponent struct {
	name      string
	rec       *callRecorder
	startErr  error
	stopErr   error
	stopDelay time.Duration
}

func (m *mockComponent) Start(ctx context.Context) error {
	m.rec.record(m.name + ".start")
	return m.startErr
}

func (m *mockComponent) Stop(ctx context.Context) error {
	m.rec.record(m.name + ".stop")
	if m.stopDelay > 0 {
		time.Sleep(m.stopDelay)
	}
	return m.stopErr
}

func (m *mockComponent) Name() string { return m.name }

// drainingComponent adds the Drainer capability.
type drainingComponent struct {
	mockComponent
	drainErr error
}

func (d *drainingComponent) Drain(ctx context.Context) error {
	d.rec.record(d.name + ".drain")
	return d.drainErr
}

// interruptibleComponent adds the Interrupter capability.
type interruptibleComponent struct {
	mockComponent
}

func (i *interruptibleComponent) Interrupt(ctx context.Context) error {
	i.rec.record(i.name + ".interrupt")
	return nil
}

func newTestCoordinator(t *testing.T, components ...Component) *Coordinator {
	t.Helper()
	reg := NewRegistry()
	for _, c := range components {
		if err := reg.Register(c); err != nil {
			t.Fatalf("Register(%s) error = %v", c.Name(), err)
		}
	}
	coord, err := NewCoordinator(reg, CoordinatorConfig{})
	if err != nil {
		t.Fatalf("NewCoordinator error = %v", err)
	}
	return coord
}

func TestStartAllRunsInRegistrationOrder(t *testing.T) {
	rec := &callRecorder{}
	a := &mockComponent{name: "a", rec: rec}
	b := &mockComponent{name: "b", rec: rec}
	c := &mockComponent{name: "c", rec: rec}
	coord := newTestCoordinator(t, a, b, c)

	if err := coord.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll error = %v", err)
	}

	assertOrder(t, rec, "a.start", "b.start", "c.start")
	if got := coord.State(); got != StateRunning {
		t.Errorf("State() = %s, want running", got)
	}
	for _, name := range []string{"a", "b", "c"} {
		if !coord.IsRunning(name) {
			t.Errorf("IsRunning(%s) = false, want true", name)
		}
	}
}

func TestStartAllEmptyRegistry(t *testing.T) {
	coord := newTestCoordinator(t)

	if err := coord.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll on empty registry error = %v", err)
	}
	if got := coord.State(); got != StateRunning {
		t.Fatalf("State() = %s, want running", got)
	}

	outcome, err := coord.GracefulStopAll(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("GracefulStopAll error = %v", err)
	}
	if outcome != OutcomeGraceful {
		t.Errorf("outcome = %s, want graceful", outcome)
	}
	if got := coord.State(); got != StateStopped {
		t.Errorf("State() = %s, want stopped", got)
	}
}

func TestStartAllFailFastAndRollsBack(t *testing.T) {
	rec := &callRecorder{}
	bootErr := errors.New("port already in use")
	a := &mockComponent{name: "a", rec: rec}
	b := &mockComponent{name: "b", rec: rec, startErr: bootErr}
	c := &mockComponent{name: "c", rec: rec}
	coord := newTestCoordinator(t, a, b, c)

	err := coord.StartAll(context.Background())
	if err == nil {
		t.Fatal("expected start error, got nil")
	}

	var startErr *ComponentStartError
	if !errors.As(err, &startErr) {
		t.Fatalf("error type = %T, want *ComponentStartError", err)
	}
	if startErr.Name != "b" {
		t.Errorf("failed component = %s, want b", startErr.Name)
	}
	if !errors.Is(err, bootErr) {
		t.Error("start error should wrap the component's error")
	}

	// Components after the failure never start
	if rec.count("c.start") != 0 {
		t.Error("c.start must not run after b failed")
	}

	// Already-started components roll back in reverse order
	assertOrder(t, rec, "a.start", "b.start", "a.stop")
	if rec.count("b.stop") != 0 {
		t.Error("the component that failed to start must not be stopped")
	}

	if got := coord.State(); got != StateStartFailed {
		t.Errorf("State() = %s, want start-failed", got)
	}
	if got := coord.FailedComponent(); got != "b" {
		t.Errorf("FailedComponent() = %s, want b", got)
	}
	if coord.IsRunning("a") {
		t.Error("a should be marked stopped after rollback")
	}
}

func TestStartAllTwiceRejected(t *testing.T) {
	rec := &callRecorder{}
	a := &mockComponent{name: "a", rec: rec}
	coord := newTestCoordinator(t, a)

	if err := coord.StartAll(context.Background()); err != nil {
		t.Fatalf("first StartAll error = %v", err)
	}

	err := coord.StartAll(context.Background())
	var transErr *InvalidTransitionError
	if !errors.As(err, &transErr) {
		t.Fatalf("second StartAll error = %T(%v), want *InvalidTransitionError", err, err)
	}
	if transErr.From != StateRunning {
		t.Errorf("InvalidTransitionError.From = %s, want running", transErr.From)
	}

	if got := rec.count("a.start"); got != 1 {
		t.Errorf("a.start called %d times, want 1 (no re-invocation)", got)
	}
	if got := coord.State(); got != StateRunning {
		t.Errorf("State() = %s, want running (unchanged)", got)
	}
}

func TestStartFailedIsTerminal(t *testing.T) {
	rec := &callRecorder{}
	a := &mockComponent{name: "a", rec: rec, startErr: errors.New("boom")}
	coord := newTestCoordinator(t, a)

	if err := coord.StartAll(context.Background()); err == nil {
		t.Fatal("expected start error")
	}

	var transErr *InvalidTransitionError
	if err := coord.StartAll(context.Background()); !errors.As(err, &transErr) {
		t.Errorf("StartAll after failure = %v, want InvalidTransitionError", err)
	}
	if _, err := coord.GracefulStopAll(context.Background(), time.Second); !errors.As(err, &transErr) {
		t.Errorf("GracefulStopAll after failure = %v, want InvalidTransitionError", err)
	}
}

func TestGracefulStopReverseOrder(t *testing.T) {
	rec := &callRecorder{}
	a := &mockComponent{name: "a", rec: rec}
	b := &mockComponent{name: "b", rec: rec}
	c := &mockComponent{name: "c", rec: rec}
	coord := newTestCoordinator(t, a, b, c)

	if err := coord.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll error = %v", err)
	}

	outcome, err := coord.GracefulStopAll(context.Background(), 5*time.Second)
	if err != nil {
		t.Fatalf("GracefulStopAll error = %v", err)
	}
	if outcome != OutcomeGraceful {
		t.Fatalf("outcome = %s, want graceful", outcome)
	}

	assertOrder(t, rec, "c.stop", "b.stop", "a.stop")
	if got := coord.State(); got != StateStopped {
		t.Errorf("State() = %s, want stopped", got)
	}
	for _, name := range []string{"a", "b", "c"} {
		if coord.IsRunning(name) {
			t.Errorf("IsRunning(%s) = true after stop", name)
		}
	}
}

func TestGracefulStopDrainsBeforeStops(t *testing.T) {
	rec := &callRecorder{}
	a := &drainingComponent{mockComponent: mockComponent{name: "a", rec: rec}}
	b := &mockComponent{name: "b", rec: rec}
	c := &drainingComponent{mockComponent: mockComponent{name: "c", rec: rec}}
	coord := newTestCoordinator(t, a, b, c)

	if err := coord.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll error = %v", err)
	}
	if _, err := coord.GracefulStopAll(context.Background(), 5*time.Second); err != nil {
		t.Fatalf("GracefulStopAll error = %v", err)
	}

	// Drain phase runs fully, in stop order, before any Stop call.
	assertOrder(t, rec, "c.drain", "a.drain", "c.stop", "b.stop", "a.stop")
	recorded := rec.snapshot()
	firstStop := -1
	lastDrain := -1
	for i, call := range recorded {
		switch call {
		case "c.drain", "a.drain":
			lastDrain = i
		case "c.stop", "b.stop", "a.stop":
			if firstStop < 0 {
				firstStop = i
			}
		}
	}
	if lastDrain > firstStop {
		t.Errorf("drain phase must finish before the stop phase: %v", recorded)
	}
}

func TestGracefulTimeoutEscalatesToForced(t *testing.T) {
	rec := &callRecorder{}
	a := &mockComponent{name: "a", rec: rec}
	b := &mockComponent{name: "b", rec: rec, stopDelay: 300 * time.Millisecond}
	c := &mockComponent{name: "c", rec: rec}
	coord := newTestCoordinator(t, a, b, c)

	if err := coord.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll error = %v", err)
	}

	begin := time.Now()
	outcome, err := coord.GracefulStopAll(context.Background(), 50*time.Millisecond)
	if err != nil {
		t.Fatalf("GracefulStopAll error = %v, want nil (timeout is a degraded success)", err)
	}
	if outcome != OutcomeForcedAfterTimeout {
		t.Fatalf("outcome = %s, want forced-after-timeout", outcome)
	}
	if elapsed := time.Since(begin); elapsed > 2*time.Second {
		t.Errorf("escalation took %s, timer does not seem to fire", elapsed)
	}

	// Every component received at least one Stop via the forced fallback.
	for _, name := range []string{"a", "b", "c"} {
		if rec.count(name+".stop") < 1 {
			t.Errorf("%s.stop never invoked", name)
		}
	}
	if got := coord.State(); got != StateStopped {
		t.Errorf("State() = %s, want stopped", got)
	}
}

func TestGracefulStopErrorEscalates(t *testing.T) {
	rec := &callRecorder{}
	stuckErr := errors.New("flush failed")
	a := &mockComponent{name: "a", rec: rec}
	b := &mockComponent{name: "b", rec: rec, stopErr: stuckErr}
	c := &mockComponent{name: "c", rec: rec}
	coord := newTestCoordinator(t, a, b, c)

	if err := coord.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll error = %v", err)
	}

	outcome, err := coord.GracefulStopAll(context.Background(), 5*time.Second)
	if outcome != OutcomeForcedAfterError {
		t.Fatalf("outcome = %s, want forced-after-error", outcome)
	}

	var stopErr *ComponentStopError
	if !errors.As(err, &stopErr) {
		t.Fatalf("error type = %T, want *ComponentStopError", err)
	}
	if stopErr.Name != "b" {
		t.Errorf("failed component = %s, want b", stopErr.Name)
	}
	if !errors.Is(err, stuckErr) {
		t.Error("stop error should wrap the component's error")
	}

	// a only stops on the forced path; the graceful pass aborted at b.
	if rec.count("a.stop") != 1 {
		t.Errorf("a.stop called %d times, want 1", rec.count("a.stop"))
	}
	if rec.count("c.stop") != 2 {
		t.Errorf("c.stop called %d times, want 2 (graceful then forced)", rec.count("c.stop"))
	}
	if got := coord.State(); got != StateStopped {
		t.Errorf("State() = %s, want stopped", got)
	}
}

func TestGracefulDrainErrorEscalates(t *testing.T) {
	rec := &callRecorder{}
	drainErr := errors.New("sessions refuse to finish")
	a := &mockComponent{name: "a", rec: rec}
	b := &drainingComponent{mockComponent: mockComponent{name: "b", rec: rec}, drainErr: drainErr}
	coord := newTestCoordinator(t, a, b)

	if err := coord.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll error = %v", err)
	}

	outcome, err := coord.GracefulStopAll(context.Background(), 5*time.Second)
	if outcome != OutcomeForcedAfterError {
		t.Fatalf("outcome = %s, want forced-after-error", outcome)
	}
	if !errors.Is(err, drainErr) {
		t.Errorf("error should wrap the drain error, got %v", err)
	}

	// Both components still stopped via the forced path.
	for _, name := range []string{"a", "b"} {
		if rec.count(name+".stop") != 1 {
			t.Errorf("%s.stop called %d times, want 1", name, rec.count(name+".stop"))
		}
	}
	if got := coord.State(); got != StateStopped {
		t.Errorf("State() = %s, want stopped", got)
	}
}

func TestForceStopBestEffort(t *testing.T) {
	rec := &callRecorder{}
	a := &mockComponent{name: "a", rec: rec}
	b := &mockComponent{name: "b", rec: rec, stopErr: errors.New("stuck")}
	c := &mockComponent{name: "c", rec: rec}
	coord := newTestCoordinator(t, a, b, c)

	if err := coord.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll error = %v", err)
	}

	if err := coord.ForceStopAll(context.Background()); err != nil {
		t.Fatalf("ForceStopAll error = %v, want nil (errors are swallowed)", err)
	}

	assertOrder(t, rec, "c.stop", "b.stop", "a.stop")
	for _, name := range []string{"a", "b", "c"} {
		if got := rec.count(name + ".stop"); got != 1 {
			t.Errorf("%s.stop called %d times, want 1", name, got)
		}
	}
	if got := coord.State(); got != StateStopped {
		t.Errorf("State() = %s, want stopped", got)
	}
}

func TestForceStopInterruptsBeforeStop(t *testing.T) {
	rec := &callRecorder{}
	a := &interruptibleComponent{mockComponent{name: "a", rec: rec}}
	b := &interruptibleComponent{mockComponent{name: "b", rec: rec}}
	coord := newTestCoordinator(t, a, b)

	if err := coord.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll error = %v", err)
	}
	if err := coord.ForceStopAll(context.Background()); err != nil {
		t.Fatalf("ForceStopAll error = %v", err)
	}

	assertOrder(t, rec, "b.interrupt", "b.stop", "a.interrupt", "a.stop")
}

func TestStopBeforeStartRejected(t *testing.T) {
	rec := &callRecorder{}
	a := &mockComponent{name: "a", rec: rec}
	coord := newTestCoordinator(t, a)

	var transErr *InvalidTransitionError
	if _, err := coord.GracefulStopAll(context.Background(), time.Second); !errors.As(err, &transErr) {
		t.Errorf("GracefulStopAll before start = %v, want InvalidTransitionError", err)
	}
	if err := coord.ForceStopAll(context.Background()); !errors.As(err, &transErr) {
		t.Errorf("ForceStopAll before start = %v, want InvalidTransitionError", err)
	}
	if rec.count("a.stop") != 0 {
		t.Error("no component may be stopped from not-started")
	}
}

func TestRestartComponent(t *testing.T) {
	rec := &callRecorder{}
	a := &mockComponent{name: "a", rec: rec}
	b := &mockComponent{name: "b", rec: rec}
	coord := newTestCoordinator(t, a, b)

	if err := coord.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll error = %v", err)
	}
	if err := coord.RestartComponent(context.Background(), "b"); err != nil {
		t.Fatalf("RestartComponent error = %v", err)
	}

	assertOrder(t, rec, "b.start", "b.stop", "b.start")
	if got := coord.State(); got != StateRunning {
		t.Errorf("State() = %s, want running", got)
	}
	if !coord.IsRunning("b") {
		t.Error("b should be running after restart")
	}
}

func TestRestartComponentWhileBusy(t *testing.T) {
	rec := &callRecorder{}
	a := &mockComponent{name: "a", rec: rec}
	coord := newTestCoordinator(t, a)

	if err := coord.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll error = %v", err)
	}

	// Simulate an in-flight lifecycle operation holding the lock.
	coord.opMu.Lock()
	err := coord.RestartComponent(context.Background(), "a")
	coord.opMu.Unlock()

	if !errors.Is(err, ErrCoordinatorBusy) {
		t.Fatalf("RestartComponent while busy = %v, want ErrCoordinatorBusy", err)
	}
	if got := rec.count("a.stop"); got != 0 {
		t.Error("busy restart must not touch the component")
	}
}

func TestRestartUnknownComponent(t *testing.T) {
	coord := newTestCoordinator(t, &mockComponent{name: "a", rec: &callRecorder{}})

	if err := coord.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll error = %v", err)
	}
	if err := coord.RestartComponent(context.Background(), "nope"); !errors.Is(err, ErrUnknownComponent) {
		t.Errorf("RestartComponent(nope) = %v, want ErrUnknownComponent", err)
	}
}

func TestRestartRequiresRunning(t *testing.T) {
	coord := newTestCoordinator(t, &mockComponent{name: "a", rec: &callRecorder{}})

	var transErr *InvalidTransitionError
	if err := coord.RestartComponent(context.Background(), "a"); !errors.As(err, &transErr) {
		t.Errorf("RestartComponent before start = %v, want InvalidTransitionError", err)
	}
}

func TestRegistryFrozenAfterStart(t *testing.T) {
	rec := &callRecorder{}
	coord := newTestCoordinator(t, &mockComponent{name: "a", rec: rec})

	if err := coord.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll error = %v", err)
	}

	err := coord.Registry().Register(&mockComponent{name: "late", rec: rec})
	if !errors.Is(err, ErrRegistryFrozen) {
		t.Errorf("Register after start = %v, want ErrRegistryFrozen", err)
	}
}

func TestRunIDAssignedOnStart(t *testing.T) {
	coord := newTestCoordinator(t, &mockComponent{name: "a", rec: &callRecorder{}})

	if got := coord.RunID(); got != "" {
		t.Errorf("RunID() before start = %q, want empty", got)
	}
	if err := coord.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll error = %v", err)
	}
	if got := coord.RunID(); got == "" {
		t.Error("RunID() empty after start")
	}
}

func TestStateReadableDuringOperation(t *testing.T) {
	coord := newTestCoordinator(t, &mockComponent{name: "a", rec: &callRecorder{}})

	coord.opMu.Lock()
	defer coord.opMu.Unlock()

	done := make(chan State, 1)
	go func() { done <- coord.State() }()

	select {
	case got := <-done:
		if got != StateNotStarted {
			t.Errorf("State() = %s, want not-started", got)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("State() blocked on the operation lock")
	}
}

func TestJournalCapturesLifecycle(t *testing.T) {
	rec := &callRecorder{}
	coord := newTestCoordinator(t, &mockComponent{name: "a", rec: rec})

	if err := coord.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll error = %v", err)
	}
	if _, err := coord.GracefulStopAll(context.Background(), time.Second); err != nil {
		t.Fatalf("GracefulStopAll error = %v", err)
	}

	events := coord.Events(0)
	if len(events) == 0 {
		t.Fatal("journal is empty after a full lifecycle")
	}

	kinds := make(map[string]int)
	for _, e := range events {
		kinds[e.Kind]++
	}
	if kinds[EventStateChange] < 4 {
		t.Errorf("state-change events = %d, want >= 4 (starting, running, stopping, stopped)", kinds[EventStateChange])
	}
	if kinds[EventComponentStarted] != 1 {
		t.Errorf("component-started events = %d, want 1", kinds[EventComponentStarted])
	}
	if kinds[EventComponentStopped] != 1 {
		t.Errorf("component-stopped events = %d, want 1", kinds[EventComponentStopped])
	}

	if events[0].Kind != EventStateChange || events[0].Detail != "not-started -> starting" {
		t.Errorf("first event = %+v, want the initial state change", events[0])
	}
	last := events[len(events)-1]
	if last.Detail != "stopping-graceful -> stopped" {
		t.Errorf("last event detail = %q, want %q", last.Detail, "stopping-graceful -> stopped")
	}
}

func TestCoordinatorMetrics(t *testing.T) {
	promReg := prometheus.NewRegistry()
	metrics := NewMetrics(promReg, "test")

	rec := &callRecorder{}
	reg := NewRegistry()
	for _, name := range []string{"a", "b", "c"} {
		if err := reg.Register(&mockComponent{name: name, rec: rec}); err != nil {
			t.Fatalf("Register error = %v", err)
		}
	}
	coord, err := NewCoordinator(reg, CoordinatorConfig{Metrics: metrics})
	if err != nil {
		t.Fatalf("NewCoordinator error = %v", err)
	}

	if err := coord.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll error = %v", err)
	}
	if _, err := coord.GracefulStopAll(context.Background(), time.Second); err != nil {
		t.Fatalf("GracefulStopAll error = %v", err)
	}

	families, err := promReg.Gather()
	if err != nil {
		t.Fatalf("Gather error = %v", err)
	}

	get := func(name string) float64 {
		t.Helper()
		for _, mf := range families {
			if mf.GetName() == name {
				return mf.GetMetric()[0].GetGauge().GetValue() + mf.GetMetric()[0].GetCounter().GetValue()
			}
		}
		t.Fatalf("metric %s not found", name)
		return 0
	}

	if got := get("conductor_state"); got != float64(StateStopped) {
		t.Errorf("conductor_state = %v, want %v", got, float64(StateStopped))
	}
	if got := get("conductor_component_starts_total"); got != 3 {
		t.Errorf("conductor_component_starts_total = %v, want 3", got)
	}
	if got := get("conductor_component_stops_total"); got != 3 {
		t.Errorf("conductor_component_stops_total = %v, want 3", got)
	}
	if got := get("conductor_components_running"); got != 0 {
		t.Errorf("conductor_components_running = %v, want 0", got)
	}
}

func TestForceStopAllSwallowsEveryError(t *testing.T) {
	rec := &callRecorder{}
	components := make([]Component, 0, 4)
	for i := 0; i < 4; i++ {
		components = append(components, &mockComponent{
			name:    fmt.Sprintf("c%d", i),
			rec:     rec,
			stopErr: fmt.Errorf("c%d refuses", i),
		})
	}
	coord := newTestCoordinator(t, components...)

	if err := coord.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll error = %v", err)
	}
	if err := coord.ForceStopAll(context.Background()); err != nil {
		t.Fatalf("ForceStopAll error = %v, want nil despite all components failing", err)
	}
	if got := coord.State(); got != StateStopped {
		t.Errorf("State() = %s, want stopped", got)
	}
}
