package system

import (
	"strings"
	"testing"

	"github.com/gitmzc/claude-code-bridge/internal/core/asset"
)

func TestSystemRegistry(t *testing.T) {
	got := strings.Join(Names(All()), ",")
	if got != "claude,codex,gemini" {
		t.Errorf("Names(All()) = %q, want %q", got, "claude,codex,gemini")
	}
}

func TestByName(t *testing.T) {
	s, ok := ByName("gemini")
	if !ok {
		t.Fatal("ByName(gemini) not found")
	}
	if s.DisplayName() != "Gemini CLI" {
		t.Errorf("DisplayName() = %q", s.DisplayName())
	}
	if _, ok := ByName("cursor"); ok {
		t.Error("expected ByName for unknown to return false")
	}
}

func TestByNames_Unknown(t *testing.T) {
	_, err := ByNames([]string{"codex", "cursor"})
	if err == nil {
		t.Fatal("expected error for unknown system name")
	}
	want := `unknown system "cursor"; available: claude, codex, gemini`
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
}

func TestSupporting(t *testing.T) {
	tests := []struct {
		kind asset.Kind
		want string
	}{
		{asset.KindCommand, "claude"},
		{asset.KindSkill, "claude"},
		{asset.KindRule, "claude,codex,gemini"},
	}
	for _, tt := range tests {
		if got := strings.Join(Names(Supporting(tt.kind)), ","); got != tt.want {
			t.Errorf("Supporting(%s) = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestDisplayNames(t *testing.T) {
	got := strings.Join(DisplayNames(All()), ", ")
	if got != "Claude Code, Codex, Gemini CLI" {
		t.Errorf("DisplayNames() = %q", got)
	}
}

func TestHome_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CODEX_HOME", dir)
	s, _ := ByName("codex")
	if s.Home() != dir {
		t.Errorf("Home() = %q, want %q", s.Home(), dir)
	}
	if !s.IsInstalled() {
		t.Error("IsInstalled() = false with an existing home")
	}

	t.Setenv("HOME", dir)
	t.Setenv("GEMINI_HOME", "")
	g, _ := ByName("gemini")
	if want := dir + "/.gemini"; g.Home() != want {
		t.Errorf("Home() = %q, want %q", g.Home(), want)
	}
}

func TestSettingsEntries(t *testing.T) {
	c := NewClaudeCode()
	entries := c.SettingsEntries()
	if len(entries) != 8 {
		t.Fatalf("got %d entries, want 8", len(entries))
	}
	if entries[0] != "Bash(cask:*)" {
		t.Errorf("entries[0] = %q", entries[0])
	}
	g := NewGeminiCLI()
	if got := g.SettingsEntries()[2]; got != "run_shell_command(cpend)" {
		t.Errorf("gemini entry = %q", got)
	}
	if NewCodex().SettingsEntries() != nil {
		t.Error("codex has no settings entries")
	}
}
