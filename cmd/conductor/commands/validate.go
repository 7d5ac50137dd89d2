package commands

import (
	"fmt"

	"github.com/rauhl/conductor/internal/config"
	"github.com/spf13/cobra"
)

var (
	validateConfigPath string
	validateInit       bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Validate loads the configuration file, applies defaults, and prints the
normalized result without starting anything. --init writes a commented
starter config instead.`,
	Run: runValidate,
}

func init() {
	validateCmd.Flags().StringVar(&validateConfigPath, "config", "conductor.yaml", "Path to the YAML configuration file")
	validateCmd.Flags().BoolVar(&validateInit, "init", false, "Write a starter config to --config and exit")
}

func runValidate(cmd *cobra.Command, args []string) {
	if err := setupLog(logLevelFlags); err != nil {
		HandleError(err, "Failed to setup logging")
	}

	if validateInit {
		if err := config.WriteDefault(validateConfigPath); err != nil {
			HandleError(err, "Failed to write starter config")
		}
		fmt.Printf("Wrote starter configuration to %s\n", validateConfigPath)
		return
	}

	cfg, err := config.Load(validateConfigPath)
	if err != nil {
		HandleConfigError(err, "Configuration invalid")
	}

	fmt.Printf("%s is valid\n", validateConfigPath)
	fmt.Printf("  admin API:       %s\n", cfg.Admin.ListenAddr)
	fmt.Printf("  shutdown budget: %s\n", cfg.ShutdownTimeout)
	fmt.Printf("  health checks:   every %s (auto-restart %v)\n", cfg.HealthCheckInterval, cfg.AutoRestart)
	fmt.Printf("  tracing:         enabled=%v\n", cfg.Tracing.Enabled)
	fmt.Printf("  services:        %d\n", len(cfg.Services))
	for _, svc := range cfg.Services {
		fmt.Printf("    - %s (%s, drain %s)\n", svc.Name, svc.GracefulSignal, svc.DrainTimeout)
	}
}
