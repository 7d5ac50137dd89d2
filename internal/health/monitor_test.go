package health

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rauhl/conductor/internal/lifecycle"
)

// flakyComponent is a Prober whose running flag tests flip to simulate a
// crashed service.
type flakyComponent struct {
	name string

	mu         sync.Mutex
	running    bool
	startCalls int
}

func (f *flakyComponent) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	f.running = true
	return nil
}

func (f *flakyComponent) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	return nil
}

func (f *flakyComponent) Name() string { return f.name }

func (f *flakyComponent) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *flakyComponent) crash() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
}

func (f *flakyComponent) starts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startCalls
}

func newRunningCoordinator(t *testing.T, components ...lifecycle.Component) *lifecycle.Coordinator {
	t.Helper()
	reg := lifecycle.NewRegistry()
	for _, c := range components {
		if err := reg.Register(c); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}
	coord, err := lifecycle.NewCoordinator(reg, lifecycle.CoordinatorConfig{})
	if err != nil {
		t.Fatalf("NewCoordinator failed: %v", err)
	}
	if err := coord.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll failed: %v", err)
	}
	return coord
}

func startedMonitor(t *testing.T, coord *lifecycle.Coordinator, cfg MonitorConfig) *Monitor {
	t.Helper()
	m := NewMonitor(coord, cfg)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("monitor Start failed: %v", err)
	}
	t.Cleanup(func() {
		if err := m.Stop(context.Background()); err != nil {
			t.Errorf("monitor Stop failed: %v", err)
		}
	})
	return m
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestMonitorName(t *testing.T) {
	m := NewMonitor(nil, MonitorConfig{})
	if m.Name() != "health-monitor" {
		t.Errorf("Name() = %q, want health-monitor", m.Name())
	}
}

func TestMonitorRestartsCrashedComponent(t *testing.T) {
	worker := &flakyComponent{name: "worker"}
	coord := newRunningCoordinator(t, worker)

	startedMonitor(t, coord, MonitorConfig{
		Interval:    30 * time.Millisecond,
		AutoRestart: true,
		Restartable: []string{"worker"},
	})

	worker.crash()

	waitFor(t, 3*time.Second, "worker restart", func() bool {
		return worker.Running() && worker.starts() >= 2
	})
	if got := coord.State(); got != lifecycle.StateRunning {
		t.Errorf("coordinator state = %s, want running", got)
	}
}

func TestMonitorHonorsAutoRestartOff(t *testing.T) {
	worker := &flakyComponent{name: "worker"}
	coord := newRunningCoordinator(t, worker)

	startedMonitor(t, coord, MonitorConfig{
		Interval:    30 * time.Millisecond,
		AutoRestart: false,
		Restartable: []string{"worker"},
	})

	worker.crash()
	time.Sleep(300 * time.Millisecond)

	if got := worker.starts(); got != 1 {
		t.Errorf("worker started %d times, want 1 (auto-restart off)", got)
	}
	if worker.Running() {
		t.Error("worker should stay down")
	}
}

func TestMonitorOnlyRestartsListedComponents(t *testing.T) {
	worker := &flakyComponent{name: "worker"}
	gateway := &flakyComponent{name: "api-gateway"}
	coord := newRunningCoordinator(t, worker, gateway)

	startedMonitor(t, coord, MonitorConfig{
		Interval:    30 * time.Millisecond,
		AutoRestart: true,
		Restartable: []string{"worker"},
	})

	worker.crash()
	gateway.crash()

	waitFor(t, 3*time.Second, "worker restart", func() bool { return worker.starts() >= 2 })

	time.Sleep(150 * time.Millisecond)
	if got := gateway.starts(); got != 1 {
		t.Errorf("api-gateway started %d times, want 1 (not restartable)", got)
	}
}

func TestMonitorIdlesOutsideRunning(t *testing.T) {
	worker := &flakyComponent{name: "worker"}
	reg := lifecycle.NewRegistry()
	if err := reg.Register(worker); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	coord, err := lifecycle.NewCoordinator(reg, lifecycle.CoordinatorConfig{})
	if err != nil {
		t.Fatalf("NewCoordinator failed: %v", err)
	}

	// Coordinator never started; the monitor must not touch anything.
	startedMonitor(t, coord, MonitorConfig{
		Interval:    30 * time.Millisecond,
		AutoRestart: true,
		Restartable: []string{"worker"},
	})

	time.Sleep(200 * time.Millisecond)
	if got := worker.starts(); got != 0 {
		t.Errorf("worker started %d times, want 0", got)
	}
}

func TestMonitorQuietAfterShutdown(t *testing.T) {
	worker := &flakyComponent{name: "worker"}
	coord := newRunningCoordinator(t, worker)

	startedMonitor(t, coord, MonitorConfig{
		Interval:    30 * time.Millisecond,
		AutoRestart: true,
		Restartable: []string{"worker"},
	})

	if _, err := coord.GracefulStopAll(context.Background(), time.Second); err != nil {
		t.Fatalf("GracefulStopAll failed: %v", err)
	}
	startsAfterStop := worker.starts()

	time.Sleep(200 * time.Millisecond)
	if got := worker.starts(); got != startsAfterStop {
		t.Errorf("monitor restarted components after shutdown: %d -> %d", startsAfterStop, got)
	}
}

func TestMonitorStopTerminatesLoop(t *testing.T) {
	worker := &flakyComponent{name: "worker"}
	coord := newRunningCoordinator(t, worker)

	m := NewMonitor(coord, MonitorConfig{Interval: 30 * time.Millisecond})
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	select {
	case <-m.stopped:
	default:
		t.Error("check loop still running after Stop")
	}
}
