package health

import (
	"context"
	"errors"
	"time"

	"github.com/rauhl/conductor/internal/lifecycle"
	"github.com/rauhl/conductor/internal/logging"
)

const defaultInterval = 30 * time.Second

// MonitorConfig holds settings for a Monitor.
type MonitorConfig struct {
	// Interval between health checks. Defaults to 30s.
	Interval time.Duration

	// AutoRestart enables restarting failed restartable components.
	AutoRestart bool

	// Restartable names the components eligible for auto-restart,
	// typically the supervised services.
	Restartable []string
}

// Monitor periodically probes components and optionally restarts supervised
// services that stopped running. It is itself a component: checks only
// happen between its Start and Stop, and only while the coordinator reports
// Running.
//
// A restart attempt never waits for an in-flight lifecycle operation; when
// the coordinator is busy the tick is skipped, not queued.
type Monitor struct {
	coordinator *lifecycle.Coordinator
	interval    time.Duration
	autoRestart bool
	restartable map[string]bool
	logger      *logging.Logger

	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewMonitor creates a monitor over the given coordinator.
func NewMonitor(coordinator *lifecycle.Coordinator, cfg MonitorConfig) *Monitor {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}

	restartable := make(map[string]bool, len(cfg.Restartable))
	for _, name := range cfg.Restartable {
		restartable[name] = true
	}

	return &Monitor{
		coordinator: coordinator,
		interval:    interval,
		autoRestart: cfg.AutoRestart,
		restartable: restartable,
		logger:      logging.GetLogger("health.monitor"),
		stopped:     make(chan struct{}),
	}
}

// Name identifies the monitor in the component registry.
func (m *Monitor) Name() string {
	return "health-monitor"
}

// Start launches the check loop.
func (m *Monitor) Start(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	go m.loop(loopCtx)

	m.logger.Info("Health monitor started (interval: %s, auto-restart: %t)", m.interval, m.autoRestart)
	return nil
}

// Stop cancels the check loop and waits for it to exit.
func (m *Monitor) Stop(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}

	select {
	case <-m.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.stopped)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

// check probes every Prober component once. Checks are only meaningful
// while the coordinator runs; during startup or shutdown the tick is a
// no-op.
func (m *Monitor) check(ctx context.Context) {
	if m.coordinator.State() != lifecycle.StateRunning {
		return
	}

	for _, component := range m.coordinator.Registry().StartOrder() {
		prober, ok := component.(lifecycle.Prober)
		if !ok {
			continue
		}
		if prober.Running() {
			continue
		}

		name := component.Name()
		m.logger.Warn("Component %s is not running", name)

		if !m.autoRestart || !m.restartable[name] {
			continue
		}
		m.restart(ctx, name)
	}
}

func (m *Monitor) restart(ctx context.Context, name string) {
	m.logger.Info("Auto-restarting %s", name)

	err := m.coordinator.RestartComponent(ctx, name)
	if err == nil {
		return
	}

	var transErr *lifecycle.InvalidTransitionError
	switch {
	case errors.Is(err, lifecycle.ErrCoordinatorBusy):
		m.logger.Debug("Coordinator busy, skipping restart of %s this tick", name)
	case errors.As(err, &transErr):
		// A shutdown began between the state check and the restart.
		m.logger.Debug("Skipping restart of %s: %v", name, err)
	default:
		m.logger.ErrorWithErr("Failed to restart "+name, err)
	}
}
