package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// toastType selects the style and lifetime of a toast.
type toastType int

const (
	toastInfo    toastType = iota // keepalive sent, wizard saved
	toastError                    // watcher or send failures
	toastWarning                  // reply while filtered out, busy pane
	toastLoading                  // spinner; stays until replaced or dismissed
)

// toastAutoDismiss is how long non-loading toasts stay visible.
const toastAutoDismiss = 4 * time.Second

// toastModel is a one-line notification above the help bar. Showing a
// toast replaces the current one.
type toastModel struct {
	active  bool
	message string
	kind    toastType
	id      int // ignores dismiss timers of replaced toasts
	nextID  int

	spinner spinner.Model
}

// toastDismissMsg is sent by the auto-dismiss timer.
type toastDismissMsg struct {
	id int
}

func newToastModel() toastModel {
	return toastModel{
		spinner: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(spinnerStyle),
		),
	}
}

// show displays message and returns the spinner tick or dismiss timer.
func (m toastModel) show(message string, kind toastType) (toastModel, tea.Cmd) {
	m.active = true
	m.message = message
	m.kind = kind
	m.id = m.nextID
	m.nextID++

	if kind == toastLoading {
		return m, m.spinner.Tick
	}
	id := m.id
	return m, tea.Tick(toastAutoDismiss, func(time.Time) tea.Msg {
		return toastDismissMsg{id: id}
	})
}

func (m toastModel) dismiss() toastModel {
	m.active = false
	m.message = ""
	return m
}

func (m toastModel) update(msg tea.Msg) (toastModel, tea.Cmd) {
	switch msg := msg.(type) {
	case toastDismissMsg:
		if msg.id == m.id {
			m = m.dismiss()
		}
	case spinner.TickMsg:
		if m.active && m.kind == toastLoading {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
	}
	return m, nil
}

// view renders the toast with a one column indent, or "" when inactive.
func (m toastModel) view() string {
	if !m.active {
		return ""
	}
	var style lipgloss.Style
	switch m.kind {
	case toastInfo:
		style = installedStyle
	case toastError:
		style = errorStyle
	case toastWarning:
		style = warningStyle
	case toastLoading:
		return " " + m.spinner.View() + mutedStyle.Render(m.message)
	}
	return " " + style.Render(m.message)
}
