// Package app is the root Bubble Tea model: it routes cache updates and
// key presses to the bell and the notification center, and owns the
// frame layout.
package app

import (
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/notification-sync/internal/coordinator"
	"github.com/nhle/notification-sync/internal/keys"
	"github.com/nhle/notification-sync/internal/theme"
	"github.com/nhle/notification-sync/internal/ui"
	"github.com/nhle/notification-sync/internal/ui/bell"
	"github.com/nhle/notification-sync/internal/ui/center"
)

// Model is the root application model.
type Model struct {
	layout   ui.Layout
	keys     *keys.KeyMap
	bell     bell.Model
	center   center.Model
	help     help.Model
	showHelp bool
	ready    bool
}

// New creates the root model. The refresh callback triggers an
// on-demand list pull; it is safe to call from the UI goroutine.
func New(coord *coordinator.Coordinator, refresh func(), bellLimit int) Model {
	kmap := keys.DefaultKeyMap()
	return Model{
		layout: ui.NewLayout(80, 24),
		keys:   kmap,
		bell:   bell.New(bellLimit),
		center: center.New(coord, refresh, kmap, 80, 22),
		help:   help.New(),
	}
}

// Init returns the initial commands.
func (m Model) Init() tea.Cmd {
	return m.center.Init()
}

// Update routes messages to the views.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.center.SetSize(msg.Width, m.layout.ContentHeight())
		m.help.Width = msg.Width
		m.ready = true
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp
			return m, nil
		case key.Matches(msg, m.keys.Back):
			if m.showHelp {
				m.showHelp = false
				return m, nil
			}
		}

	case ui.SnapshotMsg, ui.CountMsg:
		var bellCmd, centerCmd tea.Cmd
		m.bell, bellCmd = m.bell.Update(msg)
		m.center, centerCmd = m.center.Update(msg)
		return m, tea.Batch(bellCmd, centerCmd)
	}

	var cmd tea.Cmd
	m.center, cmd = m.center.Update(msg)
	return m, cmd
}

// View renders the full frame.
func (m Model) View() string {
	if !m.ready {
		return "Starting..."
	}

	header := m.layout.RenderHeader("Notifications", m.bell.View())

	var content string
	if m.showHelp {
		m.help.ShowAll = true
		content = theme.PanelStyle.
			Width(m.layout.Width - 4).
			Render(m.help.View(m.keys))
	} else {
		content = m.center.View()
	}

	m.help.ShowAll = false
	statusBar := m.layout.RenderStatusBar(m.help.View(m.keys))

	return m.layout.RenderWithFrame(header, content, statusBar)
}
