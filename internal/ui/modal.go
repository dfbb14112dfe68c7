package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Modal is the interface for modal dialogs.
// Update returns the updated modal, a command, and whether the modal closed.
type Modal interface {
	Update(msg tea.Msg, keys keyMap) (Modal, tea.Cmd, bool)
	View(theme Theme, width, height int) string
}

// confirmModal asks a yes/no question. onYes runs only on an explicit yes.
type confirmModal struct {
	question string
	onYes    func() tea.Cmd
}

func newConfirmModal(question string, onYes func() tea.Cmd) confirmModal {
	return confirmModal{question: question, onYes: onYes}
}

func (c confirmModal) Update(msg tea.Msg, keys keyMap) (Modal, tea.Cmd, bool) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return c, nil, false
	}
	switch {
	case key.Matches(keyMsg, keys.Yes):
		var cmd tea.Cmd
		if c.onYes != nil {
			cmd = c.onYes()
		}
		return c, cmd, true
	case key.Matches(keyMsg, keys.No):
		return c, nil, true
	}
	return c, nil, false
}

func (c confirmModal) View(theme Theme, width, height int) string {
	styles := theme.Styles()
	body := styles.Text.Render(c.question) + "\n\n" +
		styles.WarningText.Render("y") + styles.MutedText.Render(" confirm   ") +
		styles.WarningText.Render("n") + styles.MutedText.Render(" cancel")
	return placeModal(theme, width, height, body)
}

// inputModal collects one line of text. Blank submissions are ignored.
type inputModal struct {
	title    string
	input    textinput.Model
	onSubmit func(string) tea.Cmd
}

func newInputModal(title, placeholder string, limit int, onSubmit func(string) tea.Cmd) (inputModal, tea.Cmd) {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.CharLimit = limit
	ti.Width = 40
	cmd := ti.Focus()
	return inputModal{title: title, input: ti, onSubmit: onSubmit}, cmd
}

func (m inputModal) Update(msg tea.Msg, keys keyMap) (Modal, tea.Cmd, bool) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case keyMsg.Type == tea.KeyEsc:
			return m, nil, true
		case key.Matches(keyMsg, keys.Confirm):
			value := strings.TrimSpace(m.input.Value())
			if value == "" {
				return m, nil, false
			}
			var cmd tea.Cmd
			if m.onSubmit != nil {
				cmd = m.onSubmit(value)
			}
			return m, cmd, true
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd, false
}

func (m inputModal) View(theme Theme, width, height int) string {
	styles := theme.Styles()
	body := styles.AccentText.Bold(true).Render(m.title) + "\n\n" +
		m.input.View() + "\n\n" +
		styles.MutedText.Render("enter submit · esc cancel")
	return placeModal(theme, width, height, body)
}

func placeModal(theme Theme, width, height int, body string) string {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(theme.Accent)).
		Padding(1, 2).
		Width(50).
		Render(body)
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box,
		lipgloss.WithWhitespaceChars(" "),
		lipgloss.WithWhitespaceForeground(lipgloss.Color(theme.Background)),
	)
}
