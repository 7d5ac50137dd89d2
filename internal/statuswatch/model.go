// Package statuswatch renders a live daemon status view in the terminal
// using Bubble Tea. It polls the admin API on an interval and repaints.
package statuswatch

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/rauhl/conductor/internal/adminserver"
)

const defaultInterval = time.Second

// statusMsg carries one poll result into the update loop.
type statusMsg struct {
	response *adminserver.StatusResponse
	err      error
}

// tickMsg triggers the next poll.
type tickMsg time.Time

// Model is the Bubble Tea model for the live status view.
type Model struct {
	client   *adminserver.Client
	addr     string
	interval time.Duration

	width  int
	height int

	spinner   spinner.Model
	snapshot  *adminserver.StatusResponse
	fetchErr  error
	fetchedAt time.Time
	quitting  bool
}

// NewModel creates a status view polling the given daemon address.
func NewModel(client *adminserver.Client, addr string, interval time.Duration) Model {
	if interval <= 0 {
		interval = defaultInterval
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = titleStyle

	return Model{
		client:   client,
		addr:     addr,
		interval: interval,
		spinner:  s,
	}
}

// Init starts the spinner and the first poll.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetch())
}

// Update handles all incoming messages and updates the model accordingly.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case statusMsg:
		m.snapshot = msg.response
		m.fetchErr = msg.err
		m.fetchedAt = time.Now()
		return m, tea.Tick(m.interval, func(t time.Time) tea.Msg {
			return tickMsg(t)
		})

	case tickMsg:
		return m, m.fetch()
	}

	return m, nil
}

// fetch polls the admin API once. Errors surface in the view instead of
// terminating the program, so a restarting daemon can be watched through
// its downtime.
func (m *Model) fetch() tea.Cmd {
	return func() tea.Msg {
		response, err := m.client.Status(context.Background(), true)
		return statusMsg{response: response, err: err}
	}
}
