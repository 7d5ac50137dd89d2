package statuswatch

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/rauhl/conductor/internal/adminserver"
)

// IsTerminal returns true if stdout is a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// Run blocks rendering the live status view until the user quits or ctx is
// cancelled. Requires a terminal on stdout.
func Run(ctx context.Context, client *adminserver.Client, addr string, interval time.Duration) error {
	if !IsTerminal() {
		return fmt.Errorf("watch mode requires a terminal")
	}

	model := NewModel(client, addr, interval)
	program := tea.NewProgram(
		&model,
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("status watch error: %w", err)
	}
	return nil
}
