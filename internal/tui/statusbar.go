package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// statusBarModel is the bottom line of the monitor.
//
// Layout: [left: watch state] [center: help keybindings] [right: keepalive]
//
// The left zone spins while the transcript watcher runs and turns into a
// warning once it stops. The right zone shows the keepalive state.
type statusBarModel struct {
	width int

	watching  []string
	following bool
	stopped   bool

	keepalive string
	spinner   spinner.Model
}

func newStatusBarModel() statusBarModel {
	return statusBarModel{
		spinner: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(spinnerStyle),
		),
	}
}

// start marks the watcher as running for names and starts the spinner.
func (m statusBarModel) start(names []string) (statusBarModel, tea.Cmd) {
	m.watching = names
	m.following = true
	m.stopped = false
	return m, m.spinner.Tick
}

// stop marks the watcher as gone.
func (m statusBarModel) stop() statusBarModel {
	m.following = false
	m.stopped = true
	return m
}

func (m statusBarModel) setKeepalive(text string) statusBarModel {
	m.keepalive = text
	return m
}

func (m statusBarModel) update(msg tea.Msg) (statusBarModel, tea.Cmd) {
	if tick, ok := msg.(spinner.TickMsg); ok && m.following {
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(tick)
		return m, cmd
	}
	return m, nil
}

// view joins the three zones, padding the gap before the right zone.
func (m statusBarModel) view(helpContent string) string {
	left := m.renderLeft()
	if left != "" && helpContent != "" {
		left += "  "
	}
	left += helpContent

	right := m.renderRight()
	if right == "" {
		return left
	}
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 2 {
		gap = 2
	}
	return left + fmt.Sprintf("%*s", gap, "") + right
}

func (m statusBarModel) renderLeft() string {
	switch {
	case m.stopped:
		return warningStyle.Render(" ⚠ watcher stopped")
	case m.following:
		return " " + m.spinner.View() + statusTaskStyle.Render("watching "+strings.Join(m.watching, ", "))
	}
	return ""
}

func (m statusBarModel) renderRight() string {
	if m.keepalive == "" {
		return ""
	}
	return statusTaskStyle.Render(m.keepalive + " ")
}
