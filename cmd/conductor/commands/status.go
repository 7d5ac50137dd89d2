package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rauhl/conductor/internal/adminserver"
	"github.com/rauhl/conductor/internal/config"
	"github.com/rauhl/conductor/internal/statuswatch"
	"github.com/spf13/cobra"
)

var (
	statusAddr     string
	statusDetailed bool
	statusFormat   string
	statusWatch    bool
	statusInterval time.Duration
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of a running conductor daemon",
	Long: `Status fetches a snapshot from the daemon's admin API: overall health,
per-component liveness, active sessions, and with --detailed the recent
lifecycle events. --watch keeps a live view open in the terminal.`,
	Run: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", config.DefaultListenAddr, "Admin API address of the daemon")
	statusCmd.Flags().BoolVar(&statusDetailed, "detailed", false, "Include recent lifecycle events")
	statusCmd.Flags().StringVar(&statusFormat, "format", "human", "Output format: human or json")
	statusCmd.Flags().BoolVar(&statusWatch, "watch", false, "Keep a live status view open (requires a terminal)")
	statusCmd.Flags().DurationVar(&statusInterval, "interval", 2*time.Second, "Refresh interval for --watch")
}

func runStatus(cmd *cobra.Command, args []string) {
	if err := setupLog(logLevelFlags); err != nil {
		HandleError(err, "Failed to setup logging")
	}

	client := adminserver.NewClient(statusAddr, adminserver.DefaultClientTimeout)

	if statusWatch {
		if statusFormat != "human" {
			HandleConfigError(fmt.Errorf("--watch only supports the human format"), "Invalid flags")
		}
		if err := statuswatch.Run(context.Background(), client, statusAddr, statusInterval); err != nil {
			HandleError(err, "Status watch failed")
		}
		return
	}

	response, err := client.Status(context.Background(), statusDetailed)
	if err != nil {
		HandleError(err, "Failed to fetch status")
	}

	switch statusFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			HandleError(err, "Failed to encode status")
		}
	case "human":
		printHumanStatus(response, statusDetailed)
	default:
		HandleConfigError(fmt.Errorf("unknown format %q (must be human or json)", statusFormat), "Invalid flags")
	}
}

func printHumanStatus(response *adminserver.StatusResponse, detailed bool) {
	fmt.Printf("Health:  %s\n", response.OverallHealth)
	fmt.Printf("State:   %s\n", response.State)
	if response.RunID != "" {
		fmt.Printf("Run ID:  %s\n", response.RunID)
	}
	if response.FailedComponent != "" {
		fmt.Printf("Failed:  %s\n", response.FailedComponent)
	}

	if len(response.Components) > 0 {
		fmt.Println("Components:")
		names := make([]string, 0, len(response.Components))
		for name := range response.Components {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			marker := "down"
			if response.Components[name] {
				marker = "up"
			}
			fmt.Printf("  %-24s %s\n", name, marker)
		}
	}

	if len(response.ActiveSessions) > 0 {
		kinds := make([]string, 0, len(response.ActiveSessions))
		for kind := range response.ActiveSessions {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		parts := make([]string, 0, len(kinds))
		for _, kind := range kinds {
			parts = append(parts, fmt.Sprintf("%s=%d", kind, response.ActiveSessions[kind]))
		}
		fmt.Printf("Sessions: %s\n", strings.Join(parts, " "))
	}

	if detailed && len(response.Events) > 0 {
		fmt.Println("Recent events:")
		for _, event := range response.Events {
			line := fmt.Sprintf("  %s %-12s %s", event.Time.Format("15:04:05"), event.Kind, event.Detail)
			if event.Component != "" {
				line += fmt.Sprintf(" (%s)", event.Component)
			}
			fmt.Println(line)
		}
	}

	fmt.Printf("Captured: %s\n", response.CapturedAt.Format(time.RFC3339))
}
