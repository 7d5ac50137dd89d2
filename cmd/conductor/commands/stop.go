package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/rauhl/conductor/internal/adminserver"
	"github.com/rauhl/conductor/internal/config"
	"github.com/spf13/cobra"
)

var (
	stopAddr        string
	stopForce       bool
	stopTimeoutSecs int
	stopWait        time.Duration
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running conductor daemon",
	Long: `Stop asks a running daemon to shut down through its admin API. The
default is a graceful shutdown: components drain first, then stop in
reverse start order, with the whole sequence bounded by a timeout.
--force skips draining and stops everything immediately.`,
	Run: runStop,
}

func init() {
	stopCmd.Flags().StringVar(&stopAddr, "addr", config.DefaultListenAddr, "Admin API address of the daemon")
	stopCmd.Flags().BoolVar(&stopForce, "force", false, "Skip draining and stop components immediately")
	stopCmd.Flags().IntVar(&stopTimeoutSecs, "timeout", 0, "Graceful shutdown timeout in seconds (0 uses the daemon's configured timeout)")
	stopCmd.Flags().DurationVar(&stopWait, "wait", 30*time.Second, "How long to wait for the daemon to finish stopping (0 returns right after acceptance)")
}

func runStop(cmd *cobra.Command, args []string) {
	if err := setupLog(logLevelFlags); err != nil {
		HandleError(err, "Failed to setup logging")
	}

	if stopTimeoutSecs < 0 {
		HandleConfigError(fmt.Errorf("--timeout must not be negative"), "Invalid flags")
	}

	client := adminserver.NewClient(stopAddr, adminserver.DefaultClientTimeout)

	mode := adminserver.ShutdownGraceful
	if stopForce {
		mode = adminserver.ShutdownForce
	}

	response, err := client.Shutdown(context.Background(), mode, time.Duration(stopTimeoutSecs)*time.Second)
	if err != nil {
		HandleError(err, "Failed to request shutdown")
	}
	fmt.Printf("Shutdown accepted (mode=%s)\n", response.Mode)

	if stopWait <= 0 {
		return
	}
	waitForExit(client, stopWait)
}

// waitForExit polls the daemon until the admin API stops answering. The
// admin server is the last component to stop, so a connection failure after
// an accepted shutdown means the daemon is gone.
func waitForExit(client *adminserver.Client, wait time.Duration) {
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		if err := client.Healthy(context.Background()); err != nil {
			fmt.Println("Daemon stopped")
			return
		}
		if time.Now().After(deadline) {
			fmt.Println("Daemon is still stopping, not waiting any longer")
			return
		}
	}
}
