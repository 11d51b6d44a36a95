package tui

import (
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/gitmzc/claude-code-bridge/internal/core"
	"github.com/gitmzc/claude-code-bridge/internal/core/provider"
)

type fakeTargets struct {
	mu   sync.Mutex
	sent []string
	fail string
}

func (f *fakeTargets) send(name, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if name == f.fail {
		return errors.New("pane is gone")
	}
	f.sent = append(f.sent, name+"|"+msg)
	return nil
}

func newTestMonitor(t *testing.T, opts MonitorOptions) (Monitor, chan provider.Event) {
	t.Helper()
	ps, err := provider.ByNames([]string{"codex", "gemini"})
	if err != nil {
		t.Fatalf("ByNames() error: %v", err)
	}
	events := make(chan provider.Event, 4)
	opts.Providers = ps
	opts.Events = events
	if opts.WorkDir == "" {
		opts.WorkDir = t.TempDir()
	}
	m := NewMonitor(opts)
	t.Cleanup(m.cancel)

	model, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return model.(Monitor), events
}

func update(t *testing.T, m Monitor, msg tea.Msg) (Monitor, tea.Cmd) {
	t.Helper()
	model, cmd := m.Update(msg)
	return model.(Monitor), cmd
}

func reply(name, text string) replyMsg {
	return replyMsg{event: provider.Event{Provider: name, Message: text, At: time.Date(2026, 3, 1, 14, 5, 9, 0, time.Local)}}
}

// ---------------------------------------------------------------------------
// Reply stream
// ---------------------------------------------------------------------------

func TestMonitor_WaitingPlaceholder(t *testing.T) {
	m, _ := newTestMonitor(t, MonitorOptions{})
	v := m.View()
	if !strings.Contains(v, "Waiting for replies from codex, gemini...") {
		t.Errorf("View() = %q, want waiting placeholder", v)
	}
	if !strings.Contains(v, "watching codex, gemini") {
		t.Errorf("View() missing status bar: %q", v)
	}
}

func TestMonitor_Reply(t *testing.T) {
	m, _ := newTestMonitor(t, MonitorOptions{})
	m, cmd := update(t, m, reply("codex", "Refactored the parser."))
	if cmd == nil {
		t.Error("a reply should re-arm the event listener")
	}
	if len(m.entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(m.entries))
	}

	v := m.View()
	for _, want := range []string{"CODEX", "14:05:09", "Refactored the parser.", "1 replies"} {
		if !strings.Contains(v, want) {
			t.Errorf("View() missing %q", want)
		}
	}
}

func TestMonitor_WaitForEvent(t *testing.T) {
	m, events := newTestMonitor(t, MonitorOptions{})

	events <- provider.Event{Provider: "gemini", Message: "hi"}
	msg := m.waitForEvent()()
	got, ok := msg.(replyMsg)
	if !ok || got.event.Message != "hi" {
		t.Fatalf("waitForEvent() = %#v, want replyMsg", msg)
	}

	close(events)
	if msg := m.waitForEvent()(); msg != (followDoneMsg{}) {
		t.Errorf("waitForEvent() after close = %#v, want followDoneMsg", msg)
	}
}

func TestMonitor_FollowDone(t *testing.T) {
	m, _ := newTestMonitor(t, MonitorOptions{})
	m, _ = update(t, m, followDoneMsg{})
	v := m.View()
	if !strings.Contains(v, "watcher stopped") {
		t.Errorf("View() = %q, want stopped status", v)
	}
	if !strings.Contains(v, "Transcript watcher stopped") {
		t.Errorf("View() = %q, want error toast", v)
	}
}

func TestMonitor_Filter(t *testing.T) {
	m, _ := newTestMonitor(t, MonitorOptions{})
	m, _ = update(t, m, reply("codex", "from codex"))
	m, _ = update(t, m, reply("gemini", "from gemini"))

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	if m.filter != "codex" {
		t.Fatalf("filter = %q, want codex", m.filter)
	}
	v := m.View()
	if !strings.Contains(v, "from codex") || strings.Contains(v, "from gemini") {
		t.Errorf("filtered View() = %q", v)
	}

	m, _ = update(t, m, reply("gemini", "late gemini"))
	if v := m.View(); !strings.Contains(v, "New reply from Gemini (filtered out)") {
		t.Errorf("View() = %q, want filtered-out toast", v)
	}
}

func TestNextFilter(t *testing.T) {
	names := []string{"codex", "gemini"}
	tests := []struct {
		current string
		want    string
	}{
		{"", "codex"},
		{"codex", "gemini"},
		{"gemini", ""},
		{"claude", ""},
	}
	for _, tt := range tests {
		if got := nextFilter(tt.current, names); got != tt.want {
			t.Errorf("nextFilter(%q) = %q, want %q", tt.current, got, tt.want)
		}
	}
	if got := nextFilter("", nil); got != "" {
		t.Errorf("nextFilter with no providers = %q, want empty", got)
	}
}

func TestMonitor_ClearAndRender(t *testing.T) {
	m, _ := newTestMonitor(t, MonitorOptions{})
	m, _ = update(t, m, reply("codex", "one"))

	m, _ = update(t, m, runeKey("r"))
	if !m.render {
		t.Error("r should switch to markdown rendering")
	}
	m, _ = update(t, m, runeKey("r"))

	m, _ = update(t, m, runeKey("c"))
	if len(m.entries) != 0 {
		t.Errorf("entries = %d after clear, want 0", len(m.entries))
	}
}

func TestMonitor_MaxEntries(t *testing.T) {
	m, _ := newTestMonitor(t, MonitorOptions{MaxEntries: 2})
	for _, text := range []string{"a", "b", "c"} {
		m, _ = update(t, m, reply("codex", text))
	}
	if len(m.entries) != 2 || m.entries[0].text != "b" {
		t.Errorf("entries = %d (first %q), want the last two", len(m.entries), m.entries[0].text)
	}
}

func TestMonitor_Scrolling(t *testing.T) {
	m, _ := newTestMonitor(t, MonitorOptions{})
	for i := range 30 {
		m, _ = update(t, m, reply("codex", strings.Repeat("line\n", 3)+string(rune('a'+i%26))))
	}
	if !m.follow || !m.viewport.AtBottom() {
		t.Fatal("monitor should follow new replies")
	}

	m, _ = update(t, m, runeKey("g"))
	if m.viewport.YOffset != 0 || m.follow {
		t.Errorf("g: YOffset = %d, follow = %v; want top without follow", m.viewport.YOffset, m.follow)
	}
	m, _ = update(t, m, runeKey("f"))
	if m.viewport.YOffset == 0 {
		t.Error("f should page down")
	}
	m, _ = update(t, m, runeKey("b"))
	if m.viewport.YOffset != 0 {
		t.Errorf("b: YOffset = %d, want back at the top", m.viewport.YOffset)
	}
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnd})
	if !m.follow || !m.viewport.AtBottom() {
		t.Error("end should resume following")
	}
}

func TestMonitorHelp_ListsScrollKeys(t *testing.T) {
	var help []string
	for _, b := range (monitorHelpKeyMap{}).ShortHelp() {
		help = append(help, b.Help().Key)
	}
	for _, want := range []string{"b", "f", "g", "G"} {
		if !slices.Contains(help, want) {
			t.Errorf("help %v lacks %q", help, want)
		}
	}
}

func TestMonitor_Quit(t *testing.T) {
	m, _ := newTestMonitor(t, MonitorOptions{})
	_, cmd := update(t, m, runeKey("q"))
	if cmd == nil {
		t.Fatal("q should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should return tea.Quit")
	}
}

// ---------------------------------------------------------------------------
// Keepalive
// ---------------------------------------------------------------------------

func newMonitorKeepalive() *core.Keepalive {
	k := core.NewKeepalive()
	k.Delay = time.Minute
	k.Enabled = true
	return k
}

func TestMonitor_KeepaliveTick(t *testing.T) {
	k := newMonitorKeepalive()
	ft := &fakeTargets{}
	m, _ := newTestMonitor(t, MonitorOptions{Keepalive: k, Send: ft.send})

	r := reply("codex", "Parser done.\nNext: run go vet")
	m, _ = update(t, m, r)
	if _, ok := k.Until("codex", r.event.At); !ok {
		t.Fatal("a Next: declaration should schedule a reminder")
	}

	m, _ = update(t, m, keepaliveTickMsg{at: r.event.At.Add(20 * time.Second)})
	if !m.ticking {
		t.Fatal("tick should start a keepalive round")
	}
	if !strings.Contains(m.View(), "keepalive: codex 40s") {
		t.Errorf("View() missing countdown: %q", m.View())
	}

	// A second tick while the first round runs does not start another.
	m2, _ := update(t, m, keepaliveTickMsg{at: r.event.At.Add(21 * time.Second)})
	if !m2.ticking {
		t.Error("ticking should stay set until the round reports back")
	}

	msg := m.runKeepalive(r.event.At.Add(time.Minute))()
	sent, ok := msg.(keepaliveSentMsg)
	if !ok || !slices.Equal(sent.names, []string{"codex"}) {
		t.Fatalf("runKeepalive() = %#v, want codex", msg)
	}
	if !slices.Equal(ft.sent, []string{"codex|[KEEPALIVE] Continue: run go vet"}) {
		t.Errorf("sent = %v", ft.sent)
	}

	m, _ = update(t, m, sent)
	if m.ticking {
		t.Error("ticking should clear once the round reports back")
	}
	if !strings.Contains(m.View(), "Keepalive sent to codex") {
		t.Errorf("View() = %q, want sent toast", m.View())
	}
}

func TestMonitor_KeepaliveToggle(t *testing.T) {
	k := newMonitorKeepalive()
	m, _ := newTestMonitor(t, MonitorOptions{Keepalive: k, Send: (&fakeTargets{}).send})
	r := reply("gemini", "Next: update docs")
	m, _ = update(t, m, r)

	m, _ = update(t, m, runeKey("a"))
	if m.keepaliveOn {
		t.Fatal("a should turn keepalive off")
	}
	if _, ok := k.Until("gemini", r.event.At); ok {
		t.Error("turning keepalive off should cancel pending reminders")
	}
	if !strings.Contains(m.View(), "keepalive off") {
		t.Errorf("View() = %q, want keepalive off", m.View())
	}

	m, _ = update(t, m, keepaliveTickMsg{at: r.event.At})
	if m.ticking {
		t.Error("no keepalive round while disabled")
	}

	// Replies are not tracked while off.
	m, _ = update(t, m, reply("codex", "Next: more"))
	if _, ok := k.Until("codex", r.event.At); ok {
		t.Error("reply scheduled a reminder while keepalive is off")
	}
}

func TestMonitor_Nudge(t *testing.T) {
	ft := &fakeTargets{}
	m, _ := newTestMonitor(t, MonitorOptions{Keepalive: newMonitorKeepalive(), Send: ft.send})

	m, _ = update(t, m, runeKey("n"))
	if !m.confirm.active {
		t.Fatal("n should ask for confirmation")
	}
	if !strings.Contains(m.View(), "Send a keepalive to codex, gemini?") {
		t.Errorf("View() = %q, want nudge dialog", m.View())
	}

	m, cmd := update(t, m, runeKey("y"))
	if m.confirm.active {
		t.Error("dialog should close after y")
	}
	var sent keepaliveSentMsg
	for _, msg := range collectMsgs(cmd) {
		if s, ok := msg.(keepaliveSentMsg); ok {
			sent = s
		}
	}
	if !slices.Equal(sent.names, []string{"codex", "gemini"}) {
		t.Errorf("nudged = %v, want codex and gemini", sent.names)
	}
	if len(ft.sent) != 2 || ft.sent[0] != "codex|"+nudgeMessage {
		t.Errorf("sent = %v", ft.sent)
	}
}

func TestMonitor_NudgeFailure(t *testing.T) {
	ft := &fakeTargets{fail: "codex"}
	m, _ := newTestMonitor(t, MonitorOptions{Send: ft.send})
	m.filter = "codex"

	msg := m.nudge([]string{"codex"})()
	sent := msg.(keepaliveSentMsg)
	if sent.err == nil || !strings.Contains(sent.err.Error(), "codex: pane is gone") {
		t.Fatalf("nudge() err = %v", sent.err)
	}
	m, _ = update(t, m, sent)
	if !strings.Contains(m.View(), "Keepalive failed: codex: pane is gone") {
		t.Errorf("View() = %q, want failure toast", m.View())
	}
}

func TestMonitor_NoKeepaliveKeys(t *testing.T) {
	m, _ := newTestMonitor(t, MonitorOptions{})
	m, _ = update(t, m, runeKey("n"))
	if m.confirm.active {
		t.Error("nudge needs a sender")
	}
	if got := m.keepaliveStatus(time.Now()); got != "" {
		t.Errorf("keepaliveStatus() = %q, want empty", got)
	}
}
