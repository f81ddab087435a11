// Package center is the full notification center view: the complete
// list with read-state styling, unread-only filtering, and the three
// write operations, all routed through the mutation coordinator.
package center

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/notification-sync/internal/coordinator"
	"github.com/nhle/notification-sync/internal/keys"
	"github.com/nhle/notification-sync/internal/model"
	"github.com/nhle/notification-sync/internal/theme"
	"github.com/nhle/notification-sync/internal/ui"
)

// mutationTimeout bounds a single coordinator call issued from a key press.
const mutationTimeout = 15 * time.Second

// Model is the notification center view.
type Model struct {
	coord   *coordinator.Coordinator
	refresh func()
	keys    *keys.KeyMap

	records    []model.Notification
	cursor     int
	unreadOnly bool
	loaded     bool
	errText    string

	spin   spinner.Model
	width  int
	height int
}

// New creates a notification center over the given coordinator. The
// refresh callback triggers an on-demand list pull (coalesced by the
// refresh loop).
func New(coord *coordinator.Coordinator, refresh func(), k *keys.KeyMap, width, height int) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		coord:   coord,
		refresh: refresh,
		keys:    k,
		spin:    sp,
		width:   width,
		height:  height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return m.spin.Tick
}

// visible returns the records the current filter admits.
func (m Model) visible() []model.Notification {
	if !m.unreadOnly {
		return m.records
	}
	var out []model.Notification
	for _, r := range m.records {
		if !r.Read {
			out = append(out, r)
		}
	}
	return out
}

// Update handles cache updates and key presses.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case ui.SnapshotMsg:
		m.records = msg.Snapshot.Records
		m.loaded = true
		if max := len(m.visible()) - 1; m.cursor > max {
			m.cursor = max
		}
		if m.cursor < 0 {
			m.cursor = 0
		}
		return m, nil

	case ui.MutationErrMsg:
		m.errText = msg.Err.Error()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	// Any key dismisses the transient error indicator.
	m.errText = ""

	visible := m.visible()

	switch {
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(visible)-1 {
			m.cursor++
		}

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, m.keys.ToggleUnread):
		m.unreadOnly = !m.unreadOnly
		m.cursor = 0

	case key.Matches(msg, m.keys.Refresh):
		if m.refresh != nil {
			m.refresh()
		}

	case key.Matches(msg, m.keys.MarkRead):
		if m.cursor < len(visible) {
			return m, m.markRead(visible[m.cursor].ID)
		}

	case key.Matches(msg, m.keys.MarkAllRead):
		return m, m.markAllRead()

	case key.Matches(msg, m.keys.Delete):
		if m.cursor < len(visible) {
			return m, m.deleteOne(visible[m.cursor].ID)
		}
	}

	return m, nil
}

// markRead returns a command performing the optimistic mutation. The
// cache re-renders immediately through its subscription; only failures
// come back as messages.
func (m Model) markRead(id string) tea.Cmd {
	coord := m.coord
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), mutationTimeout)
		defer cancel()
		if err := coord.MarkRead(ctx, id); err != nil {
			return ui.MutationErrMsg{Err: err}
		}
		return nil
	}
}

func (m Model) markAllRead() tea.Cmd {
	coord := m.coord
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), mutationTimeout)
		defer cancel()
		if err := coord.MarkAllRead(ctx); err != nil {
			return ui.MutationErrMsg{Err: err}
		}
		return nil
	}
}

func (m Model) deleteOne(id string) tea.Cmd {
	coord := m.coord
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), mutationTimeout)
		defer cancel()
		if err := coord.DeleteOne(ctx, id); err != nil {
			return ui.MutationErrMsg{Err: err}
		}
		return nil
	}
}

// View renders the notification list.
func (m Model) View() string {
	if !m.loaded {
		return theme.HelpStyle.Render(m.spin.View() + " loading notifications...")
	}

	visible := m.visible()
	if len(visible) == 0 {
		label := "No notifications"
		if m.unreadOnly {
			label = "No unread notifications"
		}
		return theme.HelpStyle.Render(label)
	}

	var b strings.Builder

	if m.errText != "" {
		b.WriteString(theme.ErrorStyle.Render("⚠ " + m.errText))
		b.WriteString("\n")
	}

	start, end := m.window(len(visible))
	for i := start; i < end; i++ {
		b.WriteString(m.renderRow(visible[i], i == m.cursor))
		b.WriteString("\n")
	}

	return b.String()
}

// window returns the slice bounds keeping the cursor in view.
func (m Model) window(total int) (int, int) {
	rows := m.height
	if m.errText != "" {
		rows--
	}
	if rows < 1 {
		rows = 1
	}
	if total <= rows {
		return 0, total
	}

	start := m.cursor - rows/2
	if start < 0 {
		start = 0
	}
	if start+rows > total {
		start = total - rows
	}
	return start, start + rows
}

func (m Model) renderRow(r model.Notification, selected bool) string {
	title := theme.ReadTitleStyle.Render(r.Title)
	if !r.Read {
		title = theme.UnreadTitleStyle.Render(r.Title)
	}

	line := fmt.Sprintf("%s %s  %s",
		theme.KindStyle(r.Kind).Render(theme.KindIcon(r.Kind)),
		title,
		theme.HelpStyle.Render(r.CreatedAt.Format("Jan 2 15:04")),
	)
	if r.Scope == model.ScopeGlobal {
		line += theme.HelpStyle.Render("  [all]")
	}

	if selected {
		return theme.SelectedItemStyle.Render(line)
	}
	return theme.ListItemStyle.Render(line)
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}
