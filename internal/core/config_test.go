package core

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func isolateConfig(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	return home
}

func TestConfigManager_DefaultConfig(t *testing.T) {
	isolateConfig(t)
	cm := NewConfigManagerWithDir(t.TempDir())

	cfg, path, err := cm.Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if path != "" {
		t.Errorf("path = %q, want empty", path)
	}
	if got := cfg.Providers(); len(got) != 1 || got[0] != "codex" {
		t.Errorf("Providers() = %v, want [codex]", got)
	}
	if !cfg.KeepPanesOpen() {
		t.Error("KeepPanesOpen() = false, want true by default")
	}
	if cfg.Warmup() != 8*time.Second {
		t.Errorf("Warmup() = %v, want 8s", cfg.Warmup())
	}
	if cfg.Heartbeat() != 0 {
		t.Errorf("Heartbeat() = %v, want 0", cfg.Heartbeat())
	}
}

func TestConfigManager_SaveAndLoad(t *testing.T) {
	isolateConfig(t)
	work := t.TempDir()
	cm := NewConfigManagerWithDir(t.TempDir())

	keep := false
	cfg := &Config{
		Terminal:          "tmux",
		DefaultProviders:  []string{"codex", "gemini"},
		AutoMode:          true,
		KeepOpen:          &keep,
		WarmupTimeout:     2.5,
		HeartbeatInterval: 30,
		TimeoutAction:     "background",
	}
	path := ProjectConfigPath(work)
	if err := cm.Save(path, cfg); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	loaded, gotPath, err := cm.Load(work)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if gotPath != path {
		t.Errorf("path = %q, want %q", gotPath, path)
	}
	if loaded.Terminal != "tmux" || !loaded.AutoMode || loaded.TimeoutAction != "background" {
		t.Errorf("loaded = %+v", loaded)
	}
	if len(loaded.DefaultProviders) != 2 {
		t.Errorf("DefaultProviders = %v", loaded.DefaultProviders)
	}
	if loaded.KeepPanesOpen() {
		t.Error("KeepPanesOpen() = true, want false")
	}
	if loaded.Warmup() != 2500*time.Millisecond {
		t.Errorf("Warmup() = %v, want 2.5s", loaded.Warmup())
	}
	if loaded.Heartbeat() != 30*time.Second {
		t.Errorf("Heartbeat() = %v, want 30s", loaded.Heartbeat())
	}
}

func TestLoadConfigFile_JSONC(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".ccb-config.json")
	content := `{
  // pinned terminal
  "terminal": "wezterm",
  "default_providers": ["gemini",],
}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile() error: %v", err)
	}
	if cfg.Terminal != "wezterm" || cfg.Providers()[0] != "gemini" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadConfigFile_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"syntax", `{"terminal": `},
		{"unknown key", `{"colour": "blue"}`},
		{"bad terminal", `{"terminal": "kitty"}`},
		{"bad provider", `{"default_providers": ["claude"]}`},
		{"bad warmup", `{"warmup_timeout": -1}`},
		{"bad action", `{"timeout_action": "retry"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			_, err := LoadConfigFile(path)
			if !errors.Is(err, ErrConfigInvalid) {
				t.Fatalf("LoadConfigFile() error = %v, want ErrConfigInvalid", err)
			}
			if code := ExitCodeFor(err); code != ExitConfigInvalid {
				t.Errorf("ExitCodeFor() = %d, want %d", code, ExitConfigInvalid)
			}
		})
	}
}

func TestFindConfig_Order(t *testing.T) {
	home := isolateConfig(t)
	work := t.TempDir()

	if got := FindConfig(work); got != "" {
		t.Fatalf("FindConfig() = %q, want empty", got)
	}

	homeCfg := filepath.Join(home, ".ccb-config.json")
	writeEnv(t, homeCfg, "{}")
	if got := FindConfig(work); got != homeCfg {
		t.Errorf("FindConfig() = %q, want %q", got, homeCfg)
	}

	xdgCfg := filepath.Join(home, ".config", "ccb", "config.json")
	writeEnv(t, xdgCfg, "{}")
	if got := FindConfig(work); got != xdgCfg {
		t.Errorf("FindConfig() = %q, want %q", got, xdgCfg)
	}

	projectCfg := ProjectConfigPath(work)
	writeEnv(t, projectCfg, "{}")
	if got := FindConfig(work); got != projectCfg {
		t.Errorf("FindConfig() = %q, want %q", got, projectCfg)
	}
}

func TestConfigManager_Dirs(t *testing.T) {
	dir := t.TempDir()
	cm := NewConfigManagerWithDir(dir)
	if cm.ConfigDir() != dir {
		t.Errorf("ConfigDir() = %q", cm.ConfigDir())
	}
	if cm.HistoryPath() != filepath.Join(dir, "history.db") {
		t.Errorf("HistoryPath() = %q", cm.HistoryPath())
	}
	if cm.LogDir() != filepath.Join(dir, "logs") {
		t.Errorf("LogDir() = %q", cm.LogDir())
	}
}

func TestNewConfigManager_CCBHome(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CCB_HOME", dir)
	cm, err := NewConfigManager()
	if err != nil {
		t.Fatal(err)
	}
	if cm.ConfigDir() != dir {
		t.Errorf("ConfigDir() = %q, want %q", cm.ConfigDir(), dir)
	}
}

func TestConfigManager_SaveRejectsInvalid(t *testing.T) {
	cm := NewConfigManagerWithDir(t.TempDir())
	path := filepath.Join(t.TempDir(), ".ccb-config.json")
	err := cm.Save(path, &Config{Terminal: "kitty"})
	if !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("Save() error = %v, want ErrConfigInvalid", err)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("invalid config was written")
	}
}

func TestInitProject(t *testing.T) {
	isolateConfig(t)
	work := t.TempDir()
	if err := os.Mkdir(filepath.Join(work, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}
	cm := NewConfigManagerWithDir(t.TempDir())

	path, added, err := cm.InitProject(work, &Config{DefaultProviders: []string{"codex"}}, false)
	if err != nil {
		t.Fatalf("InitProject() error: %v", err)
	}
	if path != ProjectConfigPath(work) {
		t.Errorf("path = %q", path)
	}
	if len(added) == 0 {
		t.Error("no .gitignore entries added")
	}
	data, _ := os.ReadFile(filepath.Join(work, ".gitignore"))
	for _, want := range []string{".codex-session", ".gemini-session", ".claude-session", ".ccb.env"} {
		if !strings.Contains(string(data), want+"\n") {
			t.Errorf(".gitignore missing %s", want)
		}
	}

	_, _, err = cm.InitProject(work, &Config{}, false)
	if !errors.Is(err, ErrConfigExists) {
		t.Errorf("second InitProject() error = %v, want ErrConfigExists", err)
	}
	if _, _, err := cm.InitProject(work, &Config{AutoMode: true}, true); err != nil {
		t.Errorf("InitProject(overwrite) error: %v", err)
	}
}

func TestInitProject_NoGitRepo(t *testing.T) {
	isolateConfig(t)
	work := t.TempDir()
	cm := NewConfigManagerWithDir(t.TempDir())
	if _, added, err := cm.InitProject(work, &Config{}, false); err != nil || added != nil {
		t.Fatalf("InitProject() = %v, %v", added, err)
	}
	if _, err := os.Stat(filepath.Join(work, ".gitignore")); !os.IsNotExist(err) {
		t.Error(".gitignore written outside a git repository")
	}
}
