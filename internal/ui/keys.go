package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the console key bindings.
type keyMap struct {
	Quit       key.Binding
	Help       key.Binding
	CycleTheme key.Binding

	// Actions
	SyncAll       key.Binding
	RefreshAll    key.Binding
	RequeueFailed key.Binding
	Follow        key.Binding
	Unfollow      key.Binding

	// Log navigation
	Up       key.Binding
	Down     key.Binding
	Top      key.Binding
	Bottom   key.Binding
	PageUp   key.Binding
	PageDown key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "Quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("h", "?"),
			key.WithHelp("h/?", "Toggle help"),
		),
		CycleTheme: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "Cycle theme"),
		),

		SyncAll: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "Flush queue"),
		),
		RefreshAll: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "Force-refresh cache"),
		),
		RequeueFailed: key.NewBinding(
			key.WithKeys("R"),
			key.WithHelp("R", "Requeue failed items"),
		),
		Follow: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "Follow an animal"),
		),
		Unfollow: key.NewBinding(
			key.WithKeys("u"),
			key.WithHelp("u", "Unfollow an animal"),
		),

		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/up", "Scroll logs up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/down", "Scroll logs down"),
		),
		Top: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g", "Oldest log line"),
		),
		Bottom: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "Follow logs"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("pgup", "Page up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("pgdown", "Page down"),
		),
	}
}

// helpGroups returns bindings grouped for the help overlay.
func (k keyMap) helpGroups() [][]key.Binding {
	return [][]key.Binding{
		{k.SyncAll, k.RefreshAll, k.RequeueFailed},
		{k.Follow, k.Unfollow},
		{k.Up, k.Down, k.Top, k.Bottom, k.PageUp, k.PageDown},
		{k.CycleTheme, k.Help, k.Quit},
	}
}
