package statuswatch

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/rauhl/conductor/internal/status"
)

const (
	iconUp   = "✓"
	iconDown = "✗"

	// eventRows bounds the journal tail shown at the bottom of the view.
	eventRows = 6
)

// View renders the entire status screen.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")

	switch {
	case m.snapshot == nil && m.fetchErr == nil:
		b.WriteString(m.spinner.View())
		b.WriteString(" Connecting...\n")
	case m.fetchErr != nil:
		b.WriteString(errorStyle.Render(fmt.Sprintf("Cannot reach daemon: %v", m.fetchErr)))
		b.WriteString("\n")
		b.WriteString(eventStyle.Render("Retrying on the next tick."))
		b.WriteString("\n")
	default:
		b.WriteString(m.renderSnapshot())
	}

	b.WriteString(m.renderHelp())

	return b.String()
}

// renderHeader renders the title line with the daemon address.
func (m *Model) renderHeader() string {
	title := titleStyle.Render("CONDUCTOR")
	addr := addrStyle.Render(m.addr)

	spacing := m.width - lipgloss.Width(title) - lipgloss.Width(addr) - 2
	if spacing < 1 {
		spacing = 1
	}

	return title + strings.Repeat(" ", spacing) + addr
}

// renderSnapshot renders the health badge, component table, session counts
// and the tail of the lifecycle journal.
func (m *Model) renderSnapshot() string {
	var b strings.Builder
	snapshot := m.snapshot

	b.WriteString(labelStyle.Render("Health: "))
	b.WriteString(healthStyleFor(snapshot.OverallHealth).Render(string(snapshot.OverallHealth)))
	b.WriteString(labelStyle.Render("   State: "))
	b.WriteString(labelStyle.Render(snapshot.State))
	if snapshot.RunID != "" {
		b.WriteString(addrStyle.Render(fmt.Sprintf("   run %s", snapshot.RunID)))
	}
	b.WriteString("\n\n")

	names := make([]string, 0, len(snapshot.Components))
	for name := range snapshot.Components {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if snapshot.Components[name] {
			b.WriteString(componentUpStyle.Render(fmt.Sprintf("  %s %s", iconUp, name)))
		} else {
			b.WriteString(componentDownStyle.Render(fmt.Sprintf("  %s %s", iconDown, name)))
		}
		b.WriteString("\n")
	}
	if snapshot.FailedComponent != "" {
		b.WriteString(failedStyle.Render(fmt.Sprintf("  failed: %s", snapshot.FailedComponent)))
		b.WriteString("\n")
	}

	if len(snapshot.ActiveSessions) > 0 {
		b.WriteString("\n")
		b.WriteString(labelStyle.Render(fmt.Sprintf("Sessions: %d", snapshot.TotalSessions())))

		kinds := make([]string, 0, len(snapshot.ActiveSessions))
		for kind := range snapshot.ActiveSessions {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			b.WriteString(addrStyle.Render(fmt.Sprintf("  %s=%d", kind, snapshot.ActiveSessions[kind])))
		}
		b.WriteString("\n")
	}

	if len(snapshot.Events) > 0 {
		b.WriteString("\n")
		b.WriteString(labelStyle.Render("Recent events"))
		b.WriteString("\n")

		events := snapshot.Events
		if len(events) > eventRows {
			events = events[len(events)-eventRows:]
		}
		for _, event := range events {
			line := fmt.Sprintf("  %s %-12s %s", event.Time.Format("15:04:05"), event.Kind, event.Detail)
			if event.Component != "" {
				line += fmt.Sprintf(" (%s)", event.Component)
			}
			b.WriteString(eventStyle.Render(line))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(addrStyle.Render(fmt.Sprintf("Captured %s", snapshot.CapturedAt.Local().Format("15:04:05"))))
	b.WriteString("\n")

	return b.String()
}

// renderHelp renders the key binding hint.
func (m *Model) renderHelp() string {
	return helpStyle.Render(helpKeyStyle.Render("q") + " quit")
}

// healthStyleFor picks the badge style for a health value.
func healthStyleFor(health status.Health) lipgloss.Style {
	switch health {
	case status.HealthHealthy:
		return healthyStyle
	case status.HealthDegraded:
		return degradedStyle
	case status.HealthFailed:
		return failedStyle
	default:
		return neutralStyle
	}
}
