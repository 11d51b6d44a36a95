// Package tui holds the bubbletea front ends of ccb: the reply monitor and
// the project init wizard.
package tui

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"

	"github.com/gitmzc/claude-code-bridge/internal/core"
	"github.com/gitmzc/claude-code-bridge/internal/core/provider"
	"github.com/gitmzc/claude-code-bridge/internal/core/session"
)

const (
	defaultMaxEntries = 200
	keepaliveInterval = time.Second
	nudgeMessage      = "[KEEPALIVE] Continue your work."
)

// MonitorOptions configure the reply monitor.
type MonitorOptions struct {
	WorkDir   string
	Providers []provider.Provider
	Interval  time.Duration // transcript poll fallback
	Render    bool          // render replies as markdown

	// Keepalive enables the reminder loop; Send and Busy deliver and gate
	// the reminders.
	Keepalive *core.Keepalive
	Send      func(name, msg string) error
	Busy      func(name string) bool

	MaxEntries int
	// Events replaces the transcript watcher; used by tests.
	Events <-chan provider.Event
}

type monitorEntry struct {
	provider string
	at       time.Time
	text     string

	// Render cache.
	rendered string
	width    int
	markdown bool
}

// Monitor is the bubbletea model of `ccb monitor`: a scrolling stream of
// provider replies as they land in the transcripts.
type Monitor struct {
	opts   MonitorOptions
	names  []string
	events <-chan provider.Event
	cancel context.CancelFunc

	width, height int
	ready         bool

	viewport viewport.Model
	entries  []*monitorEntry
	filter   string // provider name; "" shows all
	render   bool
	follow   bool // stick to the bottom on new replies

	renderer      *glamour.TermRenderer
	rendererWidth int

	keepaliveOn bool
	ticking     bool

	help    help.Model
	status  statusBarModel
	toast   toastModel
	confirm confirmModel
}

// --- Messages ---

type replyMsg struct {
	event provider.Event
}

type followDoneMsg struct{}

type keepaliveTickMsg struct {
	at time.Time
}

type keepaliveSentMsg struct {
	names []string
	err   error
}

// NewMonitor prepares the monitor and starts following the providers'
// transcripts. Replies already present are not shown.
func NewMonitor(opts MonitorOptions) Monitor {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = defaultMaxEntries
	}
	ctx, cancel := context.WithCancel(context.Background())
	events := opts.Events
	if events == nil {
		events = provider.Follow(ctx, MonitorSources(opts.Providers, opts.WorkDir), opts.Interval)
	}

	h := help.New()
	h.ShortSeparator = "  |  "

	return Monitor{
		opts:        opts,
		names:       provider.Names(opts.Providers),
		events:      events,
		cancel:      cancel,
		render:      opts.Render,
		follow:      true,
		keepaliveOn: opts.Keepalive != nil && opts.Keepalive.Enabled,
		help:        h,
		status:      newStatusBarModel(),
		toast:       newToastModel(),
		confirm:     newConfirmModel(),
	}
}

// MonitorSources builds one transcript source per provider, bound to the
// project session when there is one.
func MonitorSources(ps []provider.Provider, workDir string) []provider.Source {
	var out []provider.Source
	for _, p := range ps {
		info, err := session.Load(p.Name(), workDir)
		if err != nil {
			log.Debug().Err(err).Str("provider", p.Name()).Msg("monitor without session binding")
			info = nil
		}
		out = append(out, provider.Source{Provider: p.Name(), Reader: p.NewReader(info, workDir)})
	}
	return out
}

// RunMonitor runs the monitor full screen until the user quits.
func RunMonitor(opts MonitorOptions) error {
	m := NewMonitor(opts)
	defer m.cancel()
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

// --- Init / Update / View ---

func (m Monitor) Init() tea.Cmd {
	_, startCmd := m.status.start(m.names)
	cmds := []tea.Cmd{m.waitForEvent(), startCmd}
	if m.opts.Keepalive != nil {
		cmds = append(cmds, keepaliveTick())
	}
	return tea.Batch(cmds...)
}

func (m Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	if c, cmd, consumed := m.confirm.update(msg); consumed {
		m.confirm = c
		return m, cmd
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.status.width = msg.Width
		m.confirm = m.confirm.setSize(msg.Width, m.bodyHeight())
		if !m.ready {
			m.viewport = viewport.New(msg.Width, m.bodyHeight())
			m.ready = true
			m.status, _ = m.status.start(m.names)
		} else {
			m.viewport.Width, m.viewport.Height = msg.Width, m.bodyHeight()
		}
		m.refresh()
		return m, nil

	case replyMsg:
		m.addEntry(msg.event)
		if k := m.opts.Keepalive; k != nil && m.keepaliveOn {
			k.OnMessage(msg.event.Provider, msg.event.Message, msg.event.At)
		}
		if m.filter != "" && m.filter != msg.event.Provider {
			var cmd tea.Cmd
			m.toast, cmd = m.toast.show("New reply from "+displayName(msg.event.Provider)+" (filtered out)", toastWarning)
			cmds = append(cmds, cmd)
		}
		m.refresh()
		cmds = append(cmds, m.waitForEvent())
		return m, tea.Batch(cmds...)

	case followDoneMsg:
		m.status = m.status.stop()
		var cmd tea.Cmd
		m.toast, cmd = m.toast.show("Transcript watcher stopped", toastError)
		return m, cmd

	case keepaliveTickMsg:
		m.status = m.status.setKeepalive(m.keepaliveStatus(msg.at))
		cmds = append(cmds, keepaliveTick())
		if m.keepaliveOn && !m.ticking && m.opts.Send != nil {
			m.ticking = true
			cmds = append(cmds, m.runKeepalive(msg.at))
		}
		return m, tea.Batch(cmds...)

	case keepaliveSentMsg:
		m.ticking = false
		var cmd tea.Cmd
		switch {
		case msg.err != nil:
			m.toast, cmd = m.toast.show("Keepalive failed: "+msg.err.Error(), toastError)
		case len(msg.names) > 0:
			m.toast, cmd = m.toast.show("Keepalive sent to "+strings.Join(msg.names, ", "), toastInfo)
		}
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.toast, cmd = m.toast.update(msg)
	cmds = append(cmds, cmd)
	m.status, cmd = m.status.update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Monitor) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		m.cancel()
		return m, tea.Quit

	case key.Matches(msg, keys.Filter):
		m.filter = nextFilter(m.filter, m.names)
		m.refresh()
		return m, nil

	case key.Matches(msg, keys.Render):
		m.render = !m.render
		m.refresh()
		return m, nil

	case key.Matches(msg, keys.Clear):
		m.entries = nil
		m.refresh()
		return m, nil

	case key.Matches(msg, keys.Bottom):
		m.follow = true
		m.viewport.GotoBottom()
		return m, nil

	case key.Matches(msg, keys.Top):
		m.viewport.GotoTop()
		m.follow = m.viewport.AtBottom()
		return m, nil

	case key.Matches(msg, keys.PageUp):
		m.viewport.PageUp()
		m.follow = m.viewport.AtBottom()
		return m, nil

	case key.Matches(msg, keys.PageDown):
		m.viewport.PageDown()
		m.follow = m.viewport.AtBottom()
		return m, nil

	case key.Matches(msg, keys.Keepalive) && m.opts.Keepalive != nil:
		m.keepaliveOn = !m.keepaliveOn
		if !m.keepaliveOn {
			for _, n := range m.names {
				m.opts.Keepalive.Cancel(n)
			}
		}
		m.status = m.status.setKeepalive(m.keepaliveStatus(time.Now()))
		return m, nil

	case key.Matches(msg, keys.Nudge) && m.opts.Send != nil:
		targets := m.names
		if m.filter != "" {
			targets = []string{m.filter}
		}
		m.confirm = m.confirm.show("Send a keepalive to "+strings.Join(targets, ", ")+"?", "Send", "Cancel", m.nudge(targets))
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	m.follow = m.viewport.AtBottom()
	return m, cmd
}

func (m Monitor) View() string {
	if !m.ready {
		return "Starting monitor..."
	}

	body := m.viewport.View()
	if m.confirm.active {
		body = m.confirm.view()
	}

	helpLine := helpStyle.Render(m.help.View(monitorHelpKeyMap{keepalive: m.opts.Keepalive != nil}))
	return lipgloss.JoinVertical(lipgloss.Left,
		m.header(),
		body,
		m.toast.view(),
		m.status.view(helpLine),
	)
}

// --- Helpers ---

// header is one line; the toast and status bar below it one line each.
const monitorChromeHeight = 3

func (m Monitor) bodyHeight() int {
	return max(1, m.height-monitorChromeHeight)
}

func (m Monitor) header() string {
	filter := "all providers"
	if m.filter != "" {
		filter = m.filter
	}
	mode := "raw"
	if m.render {
		mode = "markdown"
	}
	return logoStyle.Render("ccb monitor") +
		headerPathStyle.Render(m.opts.WorkDir) +
		headerHintStyle.Render(fmt.Sprintf("%s · %s · %d replies", filter, mode, len(m.entries)))
}

func (m Monitor) waitForEvent() tea.Cmd {
	ch := m.events
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return followDoneMsg{}
		}
		return replyMsg{event: ev}
	}
}

func keepaliveTick() tea.Cmd {
	return tea.Tick(keepaliveInterval, func(t time.Time) tea.Msg {
		return keepaliveTickMsg{at: t}
	})
}

// runKeepalive sends the due reminders off the UI goroutine; the busy
// check may block for the idle timeout.
func (m Monitor) runKeepalive(now time.Time) tea.Cmd {
	k, send, busy := m.opts.Keepalive, m.opts.Send, m.opts.Busy
	return func() tea.Msg {
		return keepaliveSentMsg{names: k.Tick(now, send, busy)}
	}
}

func (m Monitor) nudge(targets []string) tea.Cmd {
	send := m.opts.Send
	return func() tea.Msg {
		var sent []string
		for _, name := range targets {
			if err := send(name, nudgeMessage); err != nil {
				return keepaliveSentMsg{names: sent, err: fmt.Errorf("%s: %w", name, err)}
			}
			sent = append(sent, name)
		}
		return keepaliveSentMsg{names: sent}
	}
}

func (m Monitor) keepaliveStatus(now time.Time) string {
	if m.opts.Keepalive == nil {
		return ""
	}
	if !m.keepaliveOn {
		return "keepalive off"
	}
	var due []string
	for _, n := range m.names {
		if left, ok := m.opts.Keepalive.Until(n, now); ok {
			due = append(due, fmt.Sprintf("%s %ds", n, max(0, int(left.Seconds()))))
		}
	}
	if len(due) == 0 {
		return "keepalive on"
	}
	return "keepalive: " + strings.Join(due, ", ")
}

func (m *Monitor) addEntry(ev provider.Event) {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	m.entries = append(m.entries, &monitorEntry{provider: ev.Provider, at: at, text: ev.Message})
	if over := len(m.entries) - m.opts.MaxEntries; over > 0 {
		m.entries = slices.Delete(m.entries, 0, over)
	}
}

// refresh re-renders the visible entries into the viewport.
func (m *Monitor) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.content())
	if m.follow {
		m.viewport.GotoBottom()
	}
}

func (m *Monitor) content() string {
	var blocks []string
	for _, e := range m.entries {
		if m.filter != "" && e.provider != m.filter {
			continue
		}
		head := renderSectionHeader(strings.ToUpper(e.provider), providerColor(e.provider)) +
			" " + timestampStyle.Render(e.at.Format("15:04:05"))
		blocks = append(blocks, head+"\n"+m.renderBody(e))
	}
	if len(blocks) == 0 {
		who := strings.Join(m.names, ", ")
		if m.filter != "" {
			who = m.filter
		}
		return "\n" + mutedStyle.Render("  Waiting for replies from "+who+"...")
	}
	return strings.Join(blocks, "\n")
}

func (m *Monitor) renderBody(e *monitorEntry) string {
	width := max(20, m.width-4)
	if e.rendered != "" && e.width == width && e.markdown == m.render {
		return e.rendered
	}
	out := ""
	if m.render {
		if r := m.markdownRenderer(width); r != nil {
			if s, err := r.Render(e.text); err == nil {
				out = strings.TrimRight(s, "\n")
			}
		}
	}
	if out == "" {
		out = lipgloss.NewStyle().Width(width).PaddingLeft(2).Render(e.text)
	}
	e.rendered, e.width, e.markdown = out, width, m.render
	return out
}

func (m *Monitor) markdownRenderer(width int) *glamour.TermRenderer {
	if m.renderer != nil && m.rendererWidth == width {
		return m.renderer
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		log.Debug().Err(err).Msg("markdown renderer")
		return nil
	}
	m.renderer, m.rendererWidth = r, width
	return r
}

// nextFilter cycles "" → names[0] → ... → "".
func nextFilter(current string, names []string) string {
	if current == "" {
		if len(names) == 0 {
			return ""
		}
		return names[0]
	}
	i := slices.Index(names, current)
	if i < 0 || i+1 >= len(names) {
		return ""
	}
	return names[i+1]
}

func displayName(name string) string {
	if p, ok := provider.ByName(name); ok {
		return p.DisplayName()
	}
	return name
}
