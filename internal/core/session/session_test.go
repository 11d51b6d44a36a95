package session

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"CODEX_SESSION_ID", "CODEX_RUNTIME_DIR", "CODEX_TERMINAL", "CODEX_WEZTERM_PANE", "CODEX_ITERM2_PANE", "CODEX_TMUX_PANE"} {
		t.Setenv(k, "")
	}
}

func writeSession(t *testing.T, dir string, info *Info) string {
	t.Helper()
	path := FilePath(dir, "codex")
	if err := Save(path, info); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	return path
}

func TestFileName(t *testing.T) {
	if got := FileName("gemini"); got != ".gemini-session" {
		t.Errorf("FileName(gemini) = %q, want %q", got, ".gemini-session")
	}
}

func TestPaneEnvVar(t *testing.T) {
	tests := []struct {
		terminal, want string
	}{
		{"wezterm", "CODEX_WEZTERM_PANE"},
		{"iterm2", "CODEX_ITERM2_PANE"},
		{"tmux", "CODEX_TMUX_PANE"},
		{"", "CODEX_WEZTERM_PANE"},
	}
	for _, tt := range tests {
		if got := PaneEnvVar("codex", tt.terminal); got != tt.want {
			t.Errorf("PaneEnvVar(codex, %q) = %q, want %q", tt.terminal, got, tt.want)
		}
	}
}

func TestLoad_FromFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	runtime := filepath.Join(dir, "run")
	os.MkdirAll(runtime, 0o755)
	writeSession(t, dir, &Info{
		SessionID:  "abc",
		RuntimeDir: runtime,
		Terminal:   "tmux",
		PaneID:     "%3",
		WorkDir:    dir,
		Active:     true,
		StartedAt:  time.Now(),
	})

	info, err := Load("codex", dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if info.PaneID != "%3" || info.Terminal != "tmux" {
		t.Errorf("Load() = %+v", info)
	}
	if info.FromEnv() {
		t.Error("FromEnv() = true for a file session")
	}
}

func TestLoad_EnvWins(t *testing.T) {
	clearEnv(t)
	t.Setenv("CODEX_SESSION_ID", "env-id")
	t.Setenv("CODEX_TERMINAL", "iterm2")
	t.Setenv("CODEX_ITERM2_PANE", "ABC-123")
	t.Setenv("CODEX_RUNTIME_DIR", "/tmp/rt")

	info, err := Load("codex", t.TempDir())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if info.SessionID != "env-id" || info.PaneID != "ABC-123" || info.RuntimeDir != "/tmp/rt" {
		t.Errorf("Load() = %+v", info)
	}
	if !info.FromEnv() {
		t.Error("FromEnv() = false for an env session")
	}
	if err := info.Remember(map[string]any{"codex_session_id": "x"}); err != nil {
		t.Errorf("Remember() on env session error: %v", err)
	}
}

func TestLoad_Missing(t *testing.T) {
	clearEnv(t)
	_, err := Load("codex", t.TempDir())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestLoad_Inactive(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeSession(t, dir, &Info{SessionID: "a", RuntimeDir: dir, Active: false})

	_, err := Load("codex", dir)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestLoad_MissingRuntimeDir(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeSession(t, dir, &Info{SessionID: "a", RuntimeDir: filepath.Join(dir, "gone"), Active: true})

	_, err := Load("codex", dir)
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("Load() error = %v, want ErrInvalid", err)
	}
}

func TestLoad_Garbage(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	os.WriteFile(FilePath(dir, "codex"), []byte("not json"), 0o600)

	_, err := Load("codex", dir)
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("Load() error = %v, want ErrInvalid", err)
	}
}

func TestRead_BOM(t *testing.T) {
	dir := t.TempDir()
	path := FilePath(dir, "codex")
	content := append([]byte{0xEF, 0xBB, 0xBF}, `{"session_id":"bom","active":true}`...)
	os.WriteFile(path, content, 0o600)

	info, err := Read(path)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if info.SessionID != "bom" {
		t.Errorf("SessionID = %q, want bom", info.SessionID)
	}
}

func TestUpdateBinding_PreservesUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := FilePath(dir, "codex")
	os.WriteFile(path, []byte(`{"session_id":"a","active":true,"custom":{"k":1}}`), 0o600)

	if err := UpdateBinding(path, map[string]any{"codex_session_id": "sess-1", "codex_session_path": "/x.jsonl"}); err != nil {
		t.Fatalf("UpdateBinding() error: %v", err)
	}
	data, _ := os.ReadFile(path)
	for _, want := range []string{`"custom":{"k":1}`, `"codex_session_id":"sess-1"`, `"codex_session_path":"/x.jsonl"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("session file missing %s:\n%s", want, data)
		}
	}
}

func TestMarkInactive(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeSession(t, dir, &Info{SessionID: "a", RuntimeDir: dir, Active: true})

	if err := MarkInactive(path); err != nil {
		t.Fatalf("MarkInactive() error: %v", err)
	}
	info, err := Read(path)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if info.Active {
		t.Error("Active = true after MarkInactive")
	}
	if info.EndedAt == nil {
		t.Error("EndedAt not set")
	}
}

func TestMarkInactive_MissingFile(t *testing.T) {
	if err := MarkInactive(filepath.Join(t.TempDir(), ".codex-session")); err != nil {
		t.Errorf("MarkInactive(missing) error: %v", err)
	}
}

func TestInfoEnv(t *testing.T) {
	info := &Info{SessionID: "s", RuntimeDir: "/r", Terminal: "tmux", PaneID: "%1"}
	got := strings.Join(info.Env("gemini"), " ")
	want := "GEMINI_SESSION_ID=s GEMINI_RUNTIME_DIR=/r GEMINI_TERMINAL=tmux GEMINI_TMUX_PANE=%1"
	if got != want {
		t.Errorf("Env() = %q, want %q", got, want)
	}
}
