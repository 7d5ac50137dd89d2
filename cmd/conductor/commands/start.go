package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rauhl/conductor/internal/adminserver"
	"github.com/rauhl/conductor/internal/config"
	"github.com/rauhl/conductor/internal/health"
	"github.com/rauhl/conductor/internal/lifecycle"
	"github.com/rauhl/conductor/internal/logging"
	"github.com/rauhl/conductor/internal/service"
	"github.com/rauhl/conductor/internal/status"
	"github.com/rauhl/conductor/internal/tracing"
	"github.com/spf13/cobra"
)

var (
	startConfigPath string
	startDaemon     bool
	startPort       int
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the conductor daemon",
	Long: `Start the conductor daemon, which starts the configured components in
order, serves the admin API, and supervises everything until a shutdown
signal or an admin API shutdown request arrives.`,
	Run: runStart,
}

func init() {
	startCmd.Flags().StringVar(&startConfigPath, "config", "conductor.yaml", "Path to the YAML configuration file")
	startCmd.Flags().BoolVar(&startDaemon, "daemon", false, "Detach stdin and append logs to the configured log_file")
	startCmd.Flags().IntVar(&startPort, "port", 0, "Override the admin API port from the config")
}

func runStart(cmd *cobra.Command, args []string) {
	// Load configuration
	cfg, err := config.Load(startConfigPath)
	if err != nil {
		HandleConfigError(err, "Configuration error")
	}

	if startPort > 0 {
		if err := cfg.SetAdminPort(startPort); err != nil {
			HandleConfigError(err, "Invalid --port")
		}
	}

	// Setup logging: config file levels first, CLI flags on top
	if err := applyLogLevels(cfg); err != nil {
		HandleError(err, "Failed to setup logging")
	}
	logger := logging.GetLogger("cli.start")

	if startDaemon {
		if err := daemonize(cfg.LogFile); err != nil {
			HandleError(err, "Failed to enter daemon mode")
		}
	}

	logger.Info("Starting conductor v%s", Version)
	logger.Debug("Configuration loaded: admin=%s services=%d", cfg.Admin.ListenAddr, len(cfg.Services))

	promRegistry := prometheus.NewRegistry()
	metrics := lifecycle.NewMetrics(promRegistry, "conductor")

	// Initialize tracing provider
	tracingProvider, err := tracing.NewProvider(tracing.Config{
		Enabled:        cfg.Tracing.Enabled,
		Endpoint:       cfg.Tracing.Endpoint,
		TLSCAPath:      cfg.Tracing.TLSCAPath,
		TLSInsecure:    cfg.Tracing.TLSInsecure,
		ServiceVersion: Version,
	})
	if err != nil {
		logger.Warn("Failed to initialize tracing (continuing without tracing): %v", err)
		tracingProvider = nil
	}

	registry := lifecycle.NewRegistry()

	coordinatorCfg := lifecycle.CoordinatorConfig{Metrics: metrics}
	if tracingProvider != nil {
		coordinatorCfg.Tracer = tracingProvider.GetTracer("conductor/lifecycle")
	}
	coordinator, err := lifecycle.NewCoordinator(registry, coordinatorCfg)
	if err != nil {
		logger.Error("Failed to create coordinator: %v", err)
		HandleError(err, "Coordinator error")
	}

	aggregator := status.NewAggregator(coordinator, status.Config{})
	adminServer := adminserver.NewServer(cfg.Admin.ListenAddr, coordinator, aggregator, promRegistry)

	// Registration order is start order; stop order is the exact reverse.
	// The admin server goes first so status stays reachable until the very
	// end of a shutdown.
	if err := registry.Register(adminServer); err != nil {
		logger.Error("Failed to register admin server: %v", err)
		HandleError(err, "Admin server registration error")
	}

	if tracingProvider != nil {
		if err := registry.Register(tracingProvider); err != nil {
			logger.Error("Failed to register tracing provider: %v", err)
			HandleError(err, "Tracing registration error")
		}
	}

	configWatcher, err := config.NewWatcher(config.WatcherConfig{FilePath: startConfigPath}, applyLogLevels)
	if err != nil {
		logger.Error("Failed to create config watcher: %v", err)
		HandleError(err, "Config watcher error")
	}
	if err := registry.Register(configWatcher); err != nil {
		logger.Error("Failed to register config watcher: %v", err)
		HandleError(err, "Config watcher registration error")
	}

	serviceNames := make([]string, 0, len(cfg.Services))
	for _, spec := range cfg.Services {
		process := service.NewProcess(spec)
		if err := registry.Register(process); err != nil {
			logger.Error("Failed to register service %q: %v", spec.Name, err)
			HandleError(err, "Service registration error")
		}
		serviceNames = append(serviceNames, spec.Name)
	}

	monitor := health.NewMonitor(coordinator, health.MonitorConfig{
		Interval:    cfg.HealthCheckInterval,
		AutoRestart: cfg.AutoRestart,
		Restartable: serviceNames,
	})
	if err := registry.Register(monitor); err != nil {
		logger.Error("Failed to register health monitor: %v", err)
		HandleError(err, "Health monitor registration error")
	}

	logger.Info("All components registered")
	if err := coordinator.StartAll(context.Background()); err != nil {
		logger.Error("Failed to start components: %v", err)
		HandleError(err, "Startup error")
	}

	logger.Info("All components running (run %s)", coordinator.RunID())
	logger.Info("Admin API listening on %s", adminServer.Addr())

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Wait for a shutdown signal or an admin API shutdown request
	mode := adminserver.ShutdownGraceful
	timeout := cfg.ShutdownTimeout
	select {
	case sig := <-sigChan:
		logger.Info("Received %s, gracefully shutting down...", sig)
	case request := <-adminServer.ShutdownRequests():
		mode = request.Mode
		if request.Timeout > 0 {
			timeout = request.Timeout
		}
		logger.Info("Shutdown requested via admin API (mode=%s)", mode)
	}

	if mode == adminserver.ShutdownForce {
		if err := coordinator.ForceStopAll(context.Background()); err != nil {
			logger.Error("Error during forced shutdown: %v", err)
		}
		logger.Info("Forced shutdown complete")
		return
	}

	outcome, err := coordinator.GracefulStopAll(context.Background(), timeout)
	if err != nil {
		logger.Error("Error during shutdown: %v", err)
	}
	switch outcome {
	case lifecycle.OutcomeGraceful:
		logger.Info("Shutdown complete")
	case lifecycle.OutcomeForcedAfterTimeout:
		logger.Warn("Graceful shutdown exceeded %s, components were force-stopped", timeout)
		os.Exit(ExitForced)
	case lifecycle.OutcomeForcedAfterError:
		logger.Warn("Component failed during graceful shutdown, remaining components were force-stopped")
		os.Exit(ExitForced)
	default:
		os.Exit(ExitError)
	}
}

// applyLogLevels applies the log_level entries from a loaded config with the
// CLI flags layered on top, so an operator override survives hot reloads.
// Doubles as the config watcher reload callback: other config fields need a
// restart, only log levels take effect live.
func applyLogLevels(cfg *config.Config) error {
	merged := make([]string, 0, len(cfg.LogLevel)+len(logLevelFlags))
	merged = append(merged, cfg.LogLevel...)
	merged = append(merged, logLevelFlags...)
	return setupLog(merged)
}

// daemonize detaches stdin and redirects log output to the configured file.
// Conductor stays in the foreground process group; run it under a process
// manager or with a shell & for true backgrounding.
func daemonize(logFile string) error {
	devNull, err := os.OpenFile(os.DevNull, os.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", os.DevNull, err)
	}
	os.Stdin = devNull

	if logFile == "" {
		return nil
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", logFile, err)
	}
	logging.SetOutput(f)
	return nil
}
