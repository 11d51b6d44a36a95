package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the keybindings shared by the monitor and the wizard.
type keyMap struct {
	Quit      key.Binding
	Up        key.Binding
	Down      key.Binding
	PageUp    key.Binding
	PageDown  key.Binding
	Top       key.Binding
	Bottom    key.Binding
	Enter     key.Binding
	Back      key.Binding
	Filter    key.Binding
	Render    key.Binding
	Clear     key.Binding
	Keepalive key.Binding
	Nudge     key.Binding
	Toggle    key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("k/up", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("j/down", "down"),
	),
	PageUp: key.NewBinding(
		key.WithKeys("pgup", "b"),
		key.WithHelp("b", "page up"),
	),
	PageDown: key.NewBinding(
		key.WithKeys("pgdown", "f", " "),
		key.WithHelp("f", "page down"),
	),
	Top: key.NewBinding(
		key.WithKeys("home", "g"),
		key.WithHelp("g", "top"),
	),
	Bottom: key.NewBinding(
		key.WithKeys("end", "G"),
		key.WithHelp("G", "follow"),
	),
	Enter: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "select"),
	),
	Back: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "back"),
	),
	Filter: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "provider"),
	),
	Render: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "raw/markdown"),
	),
	Clear: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "clear"),
	),
	Keepalive: key.NewBinding(
		key.WithKeys("a"),
		key.WithHelp("a", "keepalive"),
	),
	Nudge: key.NewBinding(
		key.WithKeys("n"),
		key.WithHelp("n", "nudge"),
	),
	Toggle: key.NewBinding(
		key.WithKeys(" ", "x"),
		key.WithHelp("space/x", "toggle"),
	),
}

// ---------------------------------------------------------------------------
// Per-view help keymaps for the help.Model component.
// ---------------------------------------------------------------------------

// monitorHelpKeyMap is shown under the reply stream.
type monitorHelpKeyMap struct {
	keepalive bool // keepalive loop configured
}

func (k monitorHelpKeyMap) ShortHelp() []key.Binding {
	bindings := []key.Binding{
		keys.Up, keys.Down, keys.PageUp, keys.PageDown, keys.Top, keys.Bottom,
		keys.Filter, keys.Render, keys.Clear,
	}
	if k.keepalive {
		bindings = append(bindings, keys.Keepalive, keys.Nudge)
	}
	return append(bindings, keys.Quit)
}

func (k monitorHelpKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

// choiceHelpKeyMap is shown on single-choice wizard steps.
type choiceHelpKeyMap struct{}

func (k choiceHelpKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{keys.Up, keys.Down, keys.Enter, keys.Back}
}

func (k choiceHelpKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

// multiHelpKeyMap is shown on the provider selection step.
type multiHelpKeyMap struct{}

func (k multiHelpKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{keys.Up, keys.Down, keys.Toggle, keys.Enter, keys.Back}
}

func (k multiHelpKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

// inputHelpKeyMap is shown on text input steps.
type inputHelpKeyMap struct{}

func (k inputHelpKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{keys.Enter, keys.Back}
}

func (k inputHelpKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}
