package tui

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/gitmzc/claude-code-bridge/internal/core"
)

type savedConfig struct {
	cfg       *core.Config
	overwrite bool
}

func newTestWizard(t *testing.T, exists bool, initial *core.Config) (InitWizard, *[]savedConfig) {
	t.Helper()
	var saves []savedConfig
	w := NewInitWizard(InitOptions{
		WorkDir: "/work/project",
		Exists:  exists,
		Initial: initial,
		Save: func(cfg *core.Config, overwrite bool) (string, []string, error) {
			saves = append(saves, savedConfig{cfg, overwrite})
			return "/work/project/.ccb-config.json", []string{".codex-session"}, nil
		},
	})
	m, _ := w.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return m.(InitWizard), &saves
}

// press feeds each msg to the wizard and, before the next one, every
// message its command produces, the way the bubbletea runtime would.
func press(t *testing.T, w InitWizard, msgs ...tea.Msg) (InitWizard, bool) {
	t.Helper()
	quit := false
	for _, key := range msgs {
		queue := []tea.Msg{key}
		for len(queue) > 0 {
			msg := queue[0]
			queue = queue[1:]
			if _, ok := msg.(tea.QuitMsg); ok {
				quit = true
				continue
			}
			model, cmd := w.Update(msg)
			w = model.(InitWizard)
			for _, next := range collectMsgs(cmd) {
				if next == nil || isBlink(next) {
					continue
				}
				queue = append(queue, next)
			}
		}
	}
	return w, quit
}

// isBlink reports cursor blink messages, which re-arm forever.
func isBlink(msg tea.Msg) bool {
	t := fmt.Sprintf("%T", msg)
	return strings.HasPrefix(t, "cursor.") || strings.HasPrefix(t, "textinput.")
}

var enter = tea.KeyMsg{Type: tea.KeyEnter}

func TestInitWizard_Defaults(t *testing.T) {
	w, saves := newTestWizard(t, false, nil)
	if !strings.Contains(w.View(), "Terminal → Providers → Mode → Heartbeat → Review") {
		t.Errorf("View() missing breadcrumb:\n%s", w.View())
	}

	w, _ = press(t, w, enter, enter, enter, enter)
	if w.wizard.activeIdx != stepReview {
		t.Fatalf("activeIdx = %d, want review", w.wizard.activeIdx)
	}
	v := w.View()
	for _, want := range []string{"auto", "codex", "ask", "off", "/work/project/.ccb-config.json"} {
		if !strings.Contains(v, want) {
			t.Errorf("review missing %q:\n%s", want, v)
		}
	}

	w, quit := press(t, w, enter)
	if !quit {
		t.Fatal("wizard should quit after saving")
	}
	if len(*saves) != 1 || (*saves)[0].overwrite {
		t.Fatalf("saves = %+v, want one non-overwriting save", *saves)
	}
	cfg := (*saves)[0].cfg
	if cfg.Terminal != "" || cfg.AutoMode || cfg.HeartbeatInterval != 0 {
		t.Errorf("saved config = %+v, want defaults", cfg)
	}
	if !slices.Equal(cfg.DefaultProviders, []string{"codex"}) {
		t.Errorf("DefaultProviders = %v, want [codex]", cfg.DefaultProviders)
	}

	res := w.Result()
	if res.Cancelled || res.Err != nil || res.Path != "/work/project/.ccb-config.json" {
		t.Errorf("Result() = %+v", res)
	}
	if !slices.Equal(res.Ignored, []string{".codex-session"}) {
		t.Errorf("Ignored = %v", res.Ignored)
	}
}

func TestInitWizard_Choices(t *testing.T) {
	w, saves := newTestWizard(t, false, nil)

	down := tea.KeyMsg{Type: tea.KeyDown}
	// Terminal: second entry is the first backend name.
	w, _ = press(t, w, down, enter)
	// Providers: add gemini.
	w, _ = press(t, w, down, runeKey("x"), enter)
	// Mode: full auto.
	w, _ = press(t, w, down, enter)
	// Heartbeat.
	w, _ = press(t, w, runeKey("30"), enter)
	w, _ = press(t, w, enter)

	if len(*saves) != 1 {
		t.Fatalf("saves = %d, want 1", len(*saves))
	}
	cfg := (*saves)[0].cfg
	if cfg.Terminal == "" || cfg.Terminal == "auto" {
		t.Errorf("Terminal = %q, want a concrete backend", cfg.Terminal)
	}
	if !slices.Equal(cfg.DefaultProviders, []string{"codex", "gemini"}) {
		t.Errorf("DefaultProviders = %v", cfg.DefaultProviders)
	}
	if !cfg.AutoMode {
		t.Error("AutoMode = false, want true")
	}
	if cfg.HeartbeatInterval != 30 {
		t.Errorf("HeartbeatInterval = %v, want 30", cfg.HeartbeatInterval)
	}
	if w.Result().Config.HeartbeatInterval != 30 {
		t.Error("Result().Config should carry the answers")
	}
}

func TestInitWizard_InitialValues(t *testing.T) {
	keep := false
	initial := &core.Config{Terminal: "tmux", DefaultProviders: []string{"gemini"}, AutoMode: true, HeartbeatInterval: 15, KeepOpen: &keep}
	w, _ := newTestWizard(t, false, initial)

	cfg := w.Config()
	if cfg.Terminal != "tmux" || !cfg.AutoMode || cfg.HeartbeatInterval != 15 {
		t.Errorf("Config() = %+v, want the initial answers", cfg)
	}
	if !slices.Equal(cfg.DefaultProviders, []string{"gemini"}) {
		t.Errorf("DefaultProviders = %v", cfg.DefaultProviders)
	}
	if cfg.KeepOpen == nil || *cfg.KeepOpen {
		t.Error("fields without a step should be carried over")
	}
}

func TestInitWizard_ProvidersRequired(t *testing.T) {
	w, _ := newTestWizard(t, false, nil)
	w, _ = press(t, w, enter)
	// Untoggle codex, the only default.
	w, _ = press(t, w, runeKey("x"), enter)
	if w.wizard.activeIdx != stepProviders {
		t.Fatalf("activeIdx = %d, want to stay on providers", w.wizard.activeIdx)
	}
	if !strings.Contains(w.View(), "Select at least one provider") {
		t.Errorf("View() missing validation error:\n%s", w.View())
	}
}

func TestInitWizard_HeartbeatValidation(t *testing.T) {
	w, _ := newTestWizard(t, false, nil)
	w, _ = press(t, w, enter, enter, enter, runeKey("soon"), enter)
	if w.wizard.activeIdx != stepHeartbeat {
		t.Fatalf("activeIdx = %d, want to stay on heartbeat", w.wizard.activeIdx)
	}
	if !strings.Contains(w.View(), "Enter a number of seconds") {
		t.Errorf("View() missing validation error:\n%s", w.View())
	}
}

func TestValidateHeartbeat(t *testing.T) {
	for _, ok := range []string{"", "0", "2.5", "600"} {
		if err := validateHeartbeat(ok); err != nil {
			t.Errorf("validateHeartbeat(%q) = %v", ok, err)
		}
	}
	for _, bad := range []string{"-1", "abc", "10s"} {
		if err := validateHeartbeat(bad); err == nil {
			t.Errorf("validateHeartbeat(%q) = nil, want error", bad)
		}
	}
}

func TestInitWizard_BackAndCancel(t *testing.T) {
	esc := tea.KeyMsg{Type: tea.KeyEsc}
	w, _ := newTestWizard(t, false, nil)
	w, _ = press(t, w, enter, esc)
	if w.wizard.activeIdx != stepTerminal {
		t.Fatalf("activeIdx = %d after esc, want terminal", w.wizard.activeIdx)
	}
	w, quit := press(t, w, esc)
	if !quit || !w.Result().Cancelled {
		t.Error("esc on the first step should cancel the wizard")
	}
}

func TestInitWizard_OverwritePrompt(t *testing.T) {
	w, saves := newTestWizard(t, true, nil)
	w, _ = press(t, w, enter, enter, enter, enter, enter)
	if !w.confirm.active {
		t.Fatal("an existing config should trigger the overwrite prompt")
	}
	if !strings.Contains(w.View(), ".ccb-config.json exists. Overwrite it?") {
		t.Errorf("View() = %q", w.View())
	}

	w, quit := press(t, w, runeKey("y"))
	if !quit {
		t.Error("wizard should quit after saving")
	}
	if len(*saves) != 1 || !(*saves)[0].overwrite {
		t.Errorf("saves = %+v, want one overwriting save", *saves)
	}
}

func TestInitWizard_KeepExisting(t *testing.T) {
	w, saves := newTestWizard(t, true, nil)
	w, _ = press(t, w, enter, enter, enter, enter, enter)
	w, quit := press(t, w, runeKey("n"))
	if !quit || !w.Result().Cancelled {
		t.Error("declining the overwrite should cancel")
	}
	if len(*saves) != 0 {
		t.Errorf("saves = %d, want none", len(*saves))
	}
}

func TestInitWizard_SaveError(t *testing.T) {
	w := NewInitWizard(InitOptions{
		WorkDir: "/work/project",
		Save: func(*core.Config, bool) (string, []string, error) {
			return "", nil, errors.New("read-only file system")
		},
	})
	w, _ = press(t, w, enter, enter, enter, enter, enter)
	if err := w.Result().Err; err == nil || !strings.Contains(err.Error(), "read-only") {
		t.Errorf("Result().Err = %v", err)
	}
}
