package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines all keyboard bindings for the application.
type keyMap struct {
	// Global
	Quit       key.Binding
	Help       key.Binding
	CycleTheme key.Binding
	Logs       key.Binding
	Tab        key.Binding
	Escape     key.Binding

	// Navigation
	Up       key.Binding
	Down     key.Binding
	PageUp   key.Binding
	PageDown key.Binding

	// Friends pane
	AddFriend    key.Binding
	DeleteFriend key.Binding
	OpenChat     key.Binding

	// Requests pane
	Accept key.Binding
	Reject key.Binding

	// Chat
	Compose key.Binding

	// Modals
	Confirm key.Binding
	Yes     key.Binding
	No      key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "Quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("h", "?"),
			key.WithHelp("h/?", "Toggle help"),
		),
		CycleTheme: key.NewBinding(
			key.WithKeys("T"),
			key.WithHelp("T", "Cycle theme"),
		),
		Logs: key.NewBinding(
			key.WithKeys("L"),
			key.WithHelp("L", "Toggle log view"),
		),
		Tab: key.NewBinding(
			key.WithKeys("tab", "shift+tab"),
			key.WithHelp("tab", "Switch pane"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "Close chat / back"),
		),

		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/up", "Move up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/down", "Move down"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup", "ctrl+u"),
			key.WithHelp("pgup", "Scroll chat up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown", "ctrl+d"),
			key.WithHelp("pgdown", "Scroll chat down"),
		),

		AddFriend: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "Add friend"),
		),
		DeleteFriend: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "Delete friend"),
		),
		OpenChat: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "Open chat"),
		),

		Accept: key.NewBinding(
			key.WithKeys("y"),
			key.WithHelp("y", "Accept request"),
		),
		Reject: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "Reject request"),
		),

		Compose: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "Compose message"),
		),

		Confirm: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "Confirm"),
		),
		Yes: key.NewBinding(
			key.WithKeys("y", "Y"),
			key.WithHelp("y", "Yes"),
		),
		No: key.NewBinding(
			key.WithKeys("n", "N", "esc"),
			key.WithHelp("n/esc", "No"),
		),
	}
}

// ShortHelp returns key bindings for the footer.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Tab, k.OpenChat, k.AddFriend, k.Compose, k.Help, k.Quit}
}

// FullHelp returns key bindings grouped for the help overlay.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Tab, k.Up, k.Down, k.Escape},
		{k.AddFriend, k.DeleteFriend, k.OpenChat},
		{k.Accept, k.Reject},
		{k.Compose, k.PageUp, k.PageDown},
		{k.Logs, k.CycleTheme, k.Help, k.Quit},
	}
}
