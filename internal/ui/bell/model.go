// Package bell renders the header bell: an unread badge plus the few
// most recent notifications. It is a read-only cache consumer; no key
// handled here mutates anything.
package bell

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/notification-sync/internal/model"
	"github.com/nhle/notification-sync/internal/theme"
	"github.com/nhle/notification-sync/internal/ui"
)

// Model is the bell badge view.
type Model struct {
	unread int
	recent []model.Notification
	limit  int
}

// New creates a bell showing at most limit recent notifications in its
// dropdown.
func New(limit int) Model {
	if limit <= 0 {
		limit = 5
	}
	return Model{limit: limit}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update reacts to cache updates. A counter-only update moves the badge
// without touching the recent list, mirroring the dual refresh paths.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case ui.SnapshotMsg:
		m.unread = msg.Snapshot.UnreadCount
		recent := msg.Snapshot.Records
		if len(recent) > m.limit {
			recent = recent[:m.limit]
		}
		m.recent = recent
	case ui.CountMsg:
		m.unread = msg.Count
	}
	return m, nil
}

// View renders the bell with its badge for the header bar.
func (m Model) View() string {
	if m.unread == 0 {
		return "🔔"
	}
	return fmt.Sprintf("🔔 %s", theme.BadgeStyle.Render(fmt.Sprintf("%d", m.unread)))
}

// Unread returns the current badge value.
func (m Model) Unread() int {
	return m.unread
}

// Recent returns the most recent notifications for the dropdown.
func (m Model) Recent() []model.Notification {
	return m.recent
}
