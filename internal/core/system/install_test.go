package system

import (
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

// setHomes points every system at a fresh directory.
func setHomes(t *testing.T) map[string]string {
	t.Helper()
	root := t.TempDir()
	homes := map[string]string{
		"claude": filepath.Join(root, "claude"),
		"codex":  filepath.Join(root, "codex"),
		"gemini": filepath.Join(root, "gemini"),
	}
	t.Setenv("CLAUDE_CONFIG_DIR", homes["claude"])
	t.Setenv("CODEX_HOME", homes["codex"])
	t.Setenv("GEMINI_HOME", homes["gemini"])
	return homes
}

func installAll(t *testing.T, opts InstallOptions) []Change {
	t.Helper()
	var all []Change
	for _, s := range All() {
		changes, err := s.Install(opts)
		if err != nil {
			t.Fatalf("%s Install() error: %v", s.Name(), err)
		}
		all = append(all, changes...)
	}
	return all
}

// ownedBy collects what install changes recorded, the way the installer
// manifest does.
func ownedBy(changes []Change) map[string]Ownership {
	owned := map[string]Ownership{}
	for _, c := range changes {
		if c.Owned != nil {
			owned[c.Target] = owned[c.Target].Merge(*c.Owned)
		}
	}
	return owned
}

func uninstallAll(t *testing.T, owned map[string]Ownership) []Change {
	t.Helper()
	var all []Change
	for _, s := range All() {
		changes, err := s.Uninstall(InstallOptions{Owned: owned})
		if err != nil {
			t.Fatalf("%s Uninstall() error: %v", s.Name(), err)
		}
		all = append(all, changes...)
	}
	return all
}

func TestInstall_WritesEverything(t *testing.T) {
	homes := setHomes(t)
	installAll(t, InstallOptions{Lang: "en"})

	for _, p := range []string{
		"claude/commands/cask.md",
		"claude/commands/gping.md",
		"claude/skills/ask-codex/SKILL.md",
		"claude/CLAUDE.md",
		"claude/settings.json",
		"codex/AGENTS.md",
		"codex/config.toml",
		"gemini/GEMINI.md",
		"gemini/settings.json",
	} {
		name, rel, _ := strings.Cut(p, "/")
		if _, err := os.Stat(filepath.Join(homes[name], rel)); err != nil {
			t.Errorf("%s not written: %v", p, err)
		}
	}

	toml, _ := os.ReadFile(filepath.Join(homes["codex"], "config.toml"))
	if want := "# CCB_CONFIG_START\ndisable_paste_burst = true\n# CCB_CONFIG_END\n"; string(toml) != want {
		t.Errorf("config.toml = %q, want %q", toml, want)
	}
	agents, _ := os.ReadFile(filepath.Join(homes["codex"], "AGENTS.md"))
	if !strings.Contains(string(agents), "[CCB_REPLY_END]") {
		t.Error("AGENTS.md lacks the reply protocol")
	}

	for _, s := range All() {
		for _, f := range s.Inspect() {
			if !f.OK {
				t.Errorf("%s: %s not ok: %s", s.Name(), f.Name, f.Detail)
			}
		}
	}
}

func TestInstall_Idempotent(t *testing.T) {
	homes := setHomes(t)
	installAll(t, InstallOptions{Lang: "zh"})
	claudeMD, _ := os.ReadFile(filepath.Join(homes["claude"], "CLAUDE.md"))

	for _, c := range installAll(t, InstallOptions{Lang: "zh"}) {
		if c.Action != ActionUnchanged {
			t.Errorf("second install: %s %s", c.Action, c.Target)
		}
	}
	again, _ := os.ReadFile(filepath.Join(homes["claude"], "CLAUDE.md"))
	if string(again) != string(claudeMD) {
		t.Error("CLAUDE.md changed on second install")
	}
	if n := strings.Count(string(again), MarkdownMarkers.Start); n != 1 {
		t.Errorf("block appears %d times", n)
	}
}

func TestInstall_LanguageSwitchReplacesBlock(t *testing.T) {
	homes := setHomes(t)
	installAll(t, InstallOptions{Lang: "zh"})
	installAll(t, InstallOptions{Lang: "en"})
	data, _ := os.ReadFile(filepath.Join(homes["claude"], "CLAUDE.md"))
	if strings.Contains(string(data), "协作") {
		t.Error("zh block not replaced")
	}
	if n := strings.Count(string(data), MarkdownMarkers.Start); n != 1 {
		t.Errorf("block appears %d times", n)
	}
}

func TestInstall_DryRunWritesNothing(t *testing.T) {
	homes := setHomes(t)
	for _, c := range installAll(t, InstallOptions{DryRun: true}) {
		if c.Action != ActionWrote {
			t.Errorf("dry run: %s %s", c.Action, c.Target)
		}
	}
	for name, dir := range homes {
		if _, err := os.Stat(dir); !os.IsNotExist(err) {
			t.Errorf("%s home created by dry run", name)
		}
	}
}

func TestUninstall_RestoresUserFiles(t *testing.T) {
	homes := setHomes(t)
	originals := map[string]string{
		filepath.Join(homes["claude"], "CLAUDE.md"):     "# My rules\n\nBe brief.\n",
		filepath.Join(homes["codex"], "AGENTS.md"):      "# Agents\n",
		filepath.Join(homes["codex"], "config.toml"):    "model = \"o3\"\n\n[history]\npersistence = \"none\"\n",
		filepath.Join(homes["gemini"], "GEMINI.md"):     "Use tabs.",
		filepath.Join(homes["claude"], "commands/x.md"): "mine\n",
	}
	for path, content := range originals {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	settings := filepath.Join(homes["claude"], "settings.json")
	if err := os.WriteFile(settings, []byte("{\n  // keep me\n  \"model\": \"opus\"\n}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	owned := ownedBy(installAll(t, InstallOptions{Lang: "en"}))
	toml, _ := os.ReadFile(filepath.Join(homes["codex"], "config.toml"))
	if !strings.HasPrefix(string(toml), HashMarkers.Start) {
		t.Errorf("toml block not at top:\n%s", toml)
	}
	uninstallAll(t, owned)

	for path, want := range originals {
		got, err := os.ReadFile(path)
		if err != nil {
			t.Errorf("%s: %v", path, err)
			continue
		}
		if string(got) != want {
			t.Errorf("%s = %q, want %q", path, got, want)
		}
	}
	data, _ := os.ReadFile(settings)
	if !strings.Contains(string(data), "// keep me") || strings.Contains(string(data), "permissions") {
		t.Errorf("settings.json not restored:\n%s", data)
	}
	if _, err := os.Stat(filepath.Join(homes["claude"], "skills")); !os.IsNotExist(err) {
		t.Error("empty skills dir left behind")
	}
	if _, err := os.Stat(filepath.Join(homes["gemini"], "settings.json")); !os.IsNotExist(err) {
		t.Error("settings.json created by install not removed")
	}
}

func TestUninstall_Twice(t *testing.T) {
	setHomes(t)
	owned := ownedBy(installAll(t, InstallOptions{}))
	uninstallAll(t, owned)
	for _, c := range uninstallAll(t, owned) {
		if c.Action != ActionSkipped {
			t.Errorf("second uninstall: %s %s", c.Action, c.Target)
		}
	}
}

func TestUninstall_KeepsPreexistingSettings(t *testing.T) {
	homes := setHomes(t)
	settings := filepath.Join(homes["claude"], "settings.json")
	if err := os.MkdirAll(homes["claude"], 0o755); err != nil {
		t.Fatal(err)
	}
	original := `{"permissions": {"allow": ["Bash(cask:*)"]}}`
	if err := os.WriteFile(settings, []byte(original), 0o644); err != nil {
		t.Fatal(err)
	}

	first := ownedBy(installAll(t, InstallOptions{}))
	// A second install adds nothing; the first record still applies.
	for path, own := range ownedBy(installAll(t, InstallOptions{})) {
		first[path] = first[path].Merge(own)
	}
	if slices.Contains(first[settings].Entries, "Bash(cask:*)") {
		t.Fatalf("user entry recorded as ccb's: %v", first[settings].Entries)
	}
	uninstallAll(t, first)

	data, err := os.ReadFile(settings)
	if err != nil {
		t.Fatalf("settings.json deleted: %v", err)
	}
	var got struct {
		Permissions struct {
			Allow []string `json:"allow"`
		} `json:"permissions"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if strings.Join(got.Permissions.Allow, ",") != "Bash(cask:*)" {
		t.Errorf("allow = %v, want the user's entry only", got.Permissions.Allow)
	}
}

func TestUninstall_WithoutRecordKeepsFiles(t *testing.T) {
	homes := setHomes(t)
	installAll(t, InstallOptions{})
	uninstallAll(t, nil)

	settings := filepath.Join(homes["gemini"], "settings.json")
	missing, err := MissingArrayEntries(settings, "/tools/allowed", NewGeminiCLI().SettingsEntries())
	if err != nil {
		t.Fatal(err)
	}
	if len(missing) != len(NewGeminiCLI().SettingsEntries()) {
		t.Errorf("ccb entries left: %d of %d removed", len(missing), len(NewGeminiCLI().SettingsEntries()))
	}
	if _, err := os.Stat(settings); err != nil {
		t.Errorf("settings.json removed without an install record: %v", err)
	}
}

func TestInstall_TOMLKeyAlreadySet(t *testing.T) {
	homes := setHomes(t)
	path := filepath.Join(homes["codex"], "config.toml")
	if err := os.MkdirAll(homes["codex"], 0o755); err != nil {
		t.Fatal(err)
	}
	original := "disable_paste_burst = false\nmodel = \"o3\"\n\n[history]\npersistence = \"none\"\n"
	if err := os.WriteFile(path, []byte(original), 0o644); err != nil {
		t.Fatal(err)
	}

	changes, err := NewCodex().Install(InstallOptions{})
	if err != nil {
		t.Fatal(err)
	}
	var tomlChange Change
	for _, c := range changes {
		if c.Target == path {
			tomlChange = c
		}
	}
	if tomlChange.Action != ActionSkipped || !strings.Contains(tomlChange.Detail, "disable_paste_burst") {
		t.Errorf("config.toml change = %+v, want skipped", tomlChange)
	}
	got, _ := os.ReadFile(path)
	if string(got) != original {
		t.Errorf("config.toml = %q, want it untouched", got)
	}
	for _, f := range NewCodex().Inspect() {
		if f.Name == "config.toml block" && !f.OK {
			t.Errorf("inspect: %s", f.Detail)
		}
	}
}

func TestInstall_TOMLKeyAddedAfterInstall(t *testing.T) {
	homes := setHomes(t)
	path := filepath.Join(homes["codex"], "config.toml")
	installAll(t, InstallOptions{})
	data, _ := os.ReadFile(path)
	if err := os.WriteFile(path, append(data, "disable_paste_burst = false\n"...), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewCodex().Install(InstallOptions{}); err != nil {
		t.Fatal(err)
	}
	got, _ := os.ReadFile(path)
	if strings.Count(string(got), "disable_paste_burst") != 1 || HasBlock(string(got), HashMarkers) {
		t.Errorf("config.toml = %q, want the ccb block gone", got)
	}
}

func TestUserTOMLKey(t *testing.T) {
	body := "disable_paste_burst = true"
	tests := []struct {
		name    string
		content string
		want    bool
	}{
		{"empty", "", false},
		{"top level", "disable_paste_burst = true\n", true},
		{"quoted key", "\"disable_paste_burst\" = false\n", true},
		{"inside a table", "[tui]\ndisable_paste_burst = true\n", false},
		{"commented", "# disable_paste_burst = true\n", false},
		{"only the ccb block", HashMarkers.Render(body) + "\nmodel = \"o3\"\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, got := userTOMLKey(tt.content, body); got != tt.want {
				t.Errorf("userTOMLKey(%q) = %v, want %v", tt.content, got, tt.want)
			}
		})
	}
}
