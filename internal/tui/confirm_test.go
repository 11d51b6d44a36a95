package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func runeKey(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// collectMsgs runs cmd and flattens batches. Only use it on commands that
// return immediately.
func collectMsgs(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, collectMsgs(c)...)
		}
		return out
	}
	return []tea.Msg{msg}
}

type sentinelMsg struct{}

func sentinel() tea.Msg { return sentinelMsg{} }

func hasMsg[T any](msgs []tea.Msg) bool {
	for _, m := range msgs {
		if _, ok := m.(T); ok {
			return true
		}
	}
	return false
}

func TestConfirmShow_Defaults(t *testing.T) {
	m := newConfirmModel().show("Send a keepalive to codex?", "", "", sentinel)
	if !m.active {
		t.Fatal("confirm should be active after show")
	}
	if m.yesLabel != "Yes" || m.noLabel != "No" {
		t.Errorf("labels = %q/%q, want Yes/No", m.yesLabel, m.noLabel)
	}
	if m.focusYes {
		t.Error("focus should start on the no button")
	}

	v := m.view()
	for _, want := range []string{"Send a keepalive to codex?", "Yes", "No"} {
		if !strings.Contains(v, want) {
			t.Errorf("view() missing %q", want)
		}
	}
}

func TestConfirmUpdate(t *testing.T) {
	tests := []struct {
		name      string
		keys      []tea.KeyMsg
		confirmed bool
	}{
		{"y accelerator", []tea.KeyMsg{runeKey("y")}, true},
		{"n accelerator", []tea.KeyMsg{runeKey("n")}, false},
		{"esc", []tea.KeyMsg{{Type: tea.KeyEsc}}, false},
		{"enter on default focus", []tea.KeyMsg{{Type: tea.KeyEnter}}, false},
		{"tab then enter", []tea.KeyMsg{{Type: tea.KeyTab}, {Type: tea.KeyEnter}}, true},
		{"left right enter", []tea.KeyMsg{runeKey("h"), runeKey("l"), {Type: tea.KeyEnter}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newConfirmModel().show("Overwrite?", "Overwrite", "Keep", sentinel)
			var cmd tea.Cmd
			for _, k := range tt.keys {
				var consumed bool
				m, cmd, consumed = m.update(k)
				if !consumed {
					t.Fatalf("key %q not consumed while active", k.String())
				}
			}
			if m.active {
				t.Error("dialog should close after an answer")
			}

			msgs := collectMsgs(cmd)
			if got := hasMsg[sentinelMsg](msgs); got != tt.confirmed {
				t.Errorf("onConfirm ran = %v, want %v", got, tt.confirmed)
			}
			var result *confirmResultMsg
			for _, msg := range msgs {
				if r, ok := msg.(confirmResultMsg); ok {
					result = &r
				}
			}
			if result == nil || result.confirmed != tt.confirmed {
				t.Errorf("confirmResultMsg = %+v, want confirmed=%v", result, tt.confirmed)
			}
		})
	}
}

func TestConfirmUpdate_Inactive(t *testing.T) {
	m := newConfirmModel()
	if _, _, consumed := m.update(runeKey("y")); consumed {
		t.Error("inactive dialog should not consume keys")
	}

	m = m.show("Overwrite?", "", "", sentinel)
	if _, _, consumed := m.update(tea.WindowSizeMsg{Width: 80, Height: 24}); consumed {
		t.Error("dialog should not consume non-key messages")
	}
	if m2, cmd, consumed := m.update(runeKey("z")); !consumed || cmd != nil || !m2.active {
		t.Error("unbound keys are swallowed without closing the dialog")
	}
}

func TestConfirmView_Centered(t *testing.T) {
	m := newConfirmModel().show("Overwrite?", "", "", sentinel).setSize(60, 12)
	lines := strings.Split(m.view(), "\n")
	if len(lines) != 12 {
		t.Errorf("view() has %d lines, want 12", len(lines))
	}
	if v := newConfirmModel().view(); v != "" {
		t.Errorf("inactive view() = %q, want empty", v)
	}
}
