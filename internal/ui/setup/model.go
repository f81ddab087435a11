// Package setup is the first-run wizard: it asks for the server base
// URL and API token, so the main program can persist them (config file
// and keyring respectively) before the sync core starts.
package setup

import (
	"fmt"
	"net/url"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/notification-sync/internal/theme"
)

// DoneMsg is dispatched when the wizard completes.
type DoneMsg struct {
	BaseURL string
	Token   string
}

// CancelMsg is dispatched when the user aborts the wizard.
type CancelMsg struct{}

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	baseURL string
	token   string
}

// Model is the Bubble Tea model for the first-run setup form.
type Model struct {
	form *huh.Form
	fb   *formBindings

	// Done and the captured values are read by the caller after the
	// program exits.
	Done    bool
	BaseURL string
	Token   string

	width  int
	height int
}

// New creates the setup form, pre-filled with any known base URL.
func New(baseURL string, width, height int) Model {
	fb := &formBindings{baseURL: baseURL}
	m := Model{fb: fb, width: width, height: height}
	m.form = m.buildForm()
	return m
}

func (m *Model) buildForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Server URL").
				Description("Root URL of the school administration API").
				Placeholder("https://school.example.com").
				Validate(validateURL).
				Value(&m.fb.baseURL),
			huh.NewInput().
				Title("API token").
				Description("Stored in the system keyring").
				EchoMode(huh.EchoModePassword).
				Validate(validateToken).
				Value(&m.fb.token),
		),
	).WithWidth(m.width - 4)
}

func validateURL(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("enter a full URL including scheme")
	}
	return nil
}

func validateToken(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("token must not be empty")
	}
	return nil
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return m.form.Init()
}

// Update handles messages for the setup form.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		m.Done = true
		m.BaseURL = strings.TrimRight(strings.TrimSpace(m.fb.baseURL), "/")
		m.Token = strings.TrimSpace(m.fb.token)
		return m, tea.Sequence(
			func() tea.Msg { return DoneMsg{BaseURL: m.BaseURL, Token: m.Token} },
			tea.Quit,
		)
	}
	if m.form.State == huh.StateAborted {
		return m, tea.Sequence(
			func() tea.Msg { return CancelMsg{} },
			tea.Quit,
		)
	}

	return m, cmd
}

// View renders the setup form.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	content := titleStyle.Render("Notification Center Setup") + "\n" + m.form.View()

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(content)
}
