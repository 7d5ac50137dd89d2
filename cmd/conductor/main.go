package main

import (
	"os"

	"github.com/rauhl/conductor/cmd/conductor/commands"
)

func main() {
	// Subcommands exit with their own codes. An error surfacing here means
	// cobra rejected the invocation itself (unknown flag or command).
	if err := commands.Execute(); err != nil {
		os.Exit(commands.ExitUsage)
	}
}
