package tui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// confirmModel is a centered yes/no dialog. While active it consumes every
// key.
//
// left/right/tab/shift+tab move focus between the buttons, enter presses
// the focused one, and y/n/esc are accelerators.
//
//	m.confirm = m.confirm.show("Overwrite .ccb-config.json?", "Overwrite", "Keep", saveCmd)
type confirmModel struct {
	active    bool
	message   string
	yesLabel  string
	noLabel   string
	onConfirm tea.Cmd
	focusYes  bool

	width  int
	height int
}

// confirmResultMsg is sent after the user answers.
type confirmResultMsg struct {
	confirmed bool
}

func newConfirmModel() confirmModel {
	return confirmModel{}
}

// show opens the dialog with focus on the "no" button. Empty labels
// default to Yes and No.
func (m confirmModel) show(message, yesLabel, noLabel string, onConfirm tea.Cmd) confirmModel {
	if yesLabel == "" {
		yesLabel = "Yes"
	}
	if noLabel == "" {
		noLabel = "No"
	}
	m.active = true
	m.message = message
	m.yesLabel = yesLabel
	m.noLabel = noLabel
	m.onConfirm = onConfirm
	m.focusYes = false
	return m
}

func (m confirmModel) setSize(width, height int) confirmModel {
	m.width = width
	m.height = height
	return m
}

func (m confirmModel) dismiss() confirmModel {
	m.active = false
	m.message = ""
	m.onConfirm = nil
	m.focusYes = false
	return m
}

func (m confirmModel) confirm() (confirmModel, tea.Cmd) {
	cmd := m.onConfirm
	m = m.dismiss()
	return m, tea.Batch(cmd, func() tea.Msg {
		return confirmResultMsg{confirmed: true}
	})
}

func (m confirmModel) cancel() (confirmModel, tea.Cmd) {
	m = m.dismiss()
	return m, func() tea.Msg {
		return confirmResultMsg{confirmed: false}
	}
}

// update handles keys while active. The bool reports whether msg was
// consumed.
func (m confirmModel) update(msg tea.Msg) (confirmModel, tea.Cmd, bool) {
	if !m.active {
		return m, nil, false
	}
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil, false
	}

	switch {
	case key.Matches(keyMsg, confirmYesKey):
		m, cmd := m.confirm()
		return m, cmd, true
	case key.Matches(keyMsg, confirmNoKey), key.Matches(keyMsg, keys.Back):
		m, cmd := m.cancel()
		return m, cmd, true
	case key.Matches(keyMsg, keys.Enter):
		if m.focusYes {
			m, cmd := m.confirm()
			return m, cmd, true
		}
		m, cmd := m.cancel()
		return m, cmd, true
	case key.Matches(keyMsg, confirmSwitch):
		m.focusYes = !m.focusYes
	}
	return m, nil, true
}

// view renders the dialog centered in the configured area.
func (m confirmModel) view() string {
	if !m.active {
		return ""
	}

	question := lipgloss.NewStyle().
		Width(40).
		Align(lipgloss.Center).
		Render(m.message)

	yesStyle, noStyle := dialogButtonStyle, dialogActiveButtonStyle
	if m.focusYes {
		yesStyle, noStyle = dialogActiveButtonStyle, dialogButtonStyle
	}
	buttons := lipgloss.JoinHorizontal(lipgloss.Top, yesStyle.Render(m.yesLabel), "  ", noStyle.Render(m.noLabel))
	dialog := dialogBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Center, question, "", buttons))

	if m.width <= 0 || m.height <= 0 {
		return dialog
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, dialog)
}

// Dialog-only bindings.
var (
	confirmYesKey = key.NewBinding(
		key.WithKeys("y", "Y"),
		key.WithHelp("y", "confirm"),
	)
	confirmNoKey = key.NewBinding(
		key.WithKeys("n", "N"),
		key.WithHelp("n", "cancel"),
	)
	confirmSwitch = key.NewBinding(
		key.WithKeys("left", "h", "right", "l", "tab", "shift+tab"),
	)
)
