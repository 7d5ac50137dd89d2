package statuswatch

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	colorPrimary = lipgloss.Color("#00D4FF") // Cyan
	colorSuccess = lipgloss.Color("#10B981") // Green
	colorWarning = lipgloss.Color("#F59E0B") // Yellow/Orange
	colorError   = lipgloss.Color("#EF4444") // Red
	colorMuted   = lipgloss.Color("#6B7280") // Gray
	colorText    = lipgloss.Color("#E5E7EB") // Light gray
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary)

	addrStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	healthyStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorSuccess)

	degradedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorWarning)

	failedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorError)

	neutralStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorMuted)

	componentUpStyle = lipgloss.NewStyle().
				Foreground(colorSuccess)

	componentDownStyle = lipgloss.NewStyle().
				Foreground(colorError)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorText)

	eventStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorError)

	helpStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			MarginTop(1)

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(colorPrimary)
)
