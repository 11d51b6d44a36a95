package system

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readJSON(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var v map[string]any
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("%s is not strict JSON: %v\n%s", path, err, data)
	}
	return v
}

func TestAddArrayEntries_NewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	c, err := AddArrayEntries(path, "/permissions/allow", []string{"Bash(cask:*)", "Bash(cpend:*)"}, false)
	if err != nil {
		t.Fatalf("AddArrayEntries() error: %v", err)
	}
	if c.Action != ActionWrote {
		t.Errorf("Action = %q, want %q", c.Action, ActionWrote)
	}
	allow := readJSON(t, path)["permissions"].(map[string]any)["allow"].([]any)
	if len(allow) != 2 || allow[1] != "Bash(cpend:*)" {
		t.Errorf("allow = %v", allow)
	}
}

func TestAddArrayEntries_PreservesCommentsAndDedupes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	original := `{
  // my model
  "model": "opus",
  "permissions": {
    "allow": ["Bash(ls:*)", "Bash(cask:*)"]
  }
}
`
	if err := os.WriteFile(path, []byte(original), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := AddArrayEntries(path, "/permissions/allow", []string{"Bash(cask:*)", "Bash(gask:*)"}, false)
	if err != nil {
		t.Fatal(err)
	}
	if c.Action != ActionUpdated || !strings.Contains(c.Detail, "Bash(gask:*)") {
		t.Errorf("change = %+v", c)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "// my model") {
		t.Errorf("comment lost:\n%s", data)
	}
	if n := strings.Count(string(data), "Bash(cask:*)"); n != 1 {
		t.Errorf("Bash(cask:*) appears %d times", n)
	}

	c, _ = AddArrayEntries(path, "/permissions/allow", []string{"Bash(cask:*)", "Bash(gask:*)"}, false)
	if c.Action != ActionUnchanged {
		t.Errorf("second Action = %q, want %q", c.Action, ActionUnchanged)
	}
}

func TestAddArrayEntries_NotAnArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{"tools": {"allowed": "all"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := AddArrayEntries(path, "/tools/allowed", []string{"x"}, false)
	if err == nil {
		t.Fatal("expected error for a non-array target")
	}
	if c.Action != ActionError {
		t.Errorf("Action = %q, want %q", c.Action, ActionError)
	}
}

func TestAddArrayEntries_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{"a": `), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := AddArrayEntries(path, "/a", []string{"x"}, false); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestRemoveArrayEntries_PrunesAndKeepsOthers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	original := `{
  "theme": "dark",
  "tools": {"allowed": ["run_shell_command(ls)"]}
}
`
	if err := os.WriteFile(path, []byte(original), 0o644); err != nil {
		t.Fatal(err)
	}
	entries := []string{"run_shell_command(cask)", "run_shell_command(gpend)"}
	added, err := AddArrayEntries(path, "/tools/allowed", entries, false)
	if err != nil {
		t.Fatal(err)
	}
	c, err := RemoveArrayEntries(path, "/tools/allowed", *added.Owned, false)
	if err != nil {
		t.Fatal(err)
	}
	if c.Action != ActionRemoved || c.Detail != "2 entries" {
		t.Errorf("change = %+v", c)
	}
	allowed := readJSON(t, path)["tools"].(map[string]any)["allowed"].([]any)
	if len(allowed) != 1 || allowed[0] != "run_shell_command(ls)" {
		t.Errorf("allowed = %v", allowed)
	}
}

func TestRemoveArrayEntries_DeletesEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	entries := []string{"Bash(cask:*)"}
	added, err := AddArrayEntries(path, "/permissions/allow", entries, false)
	if err != nil {
		t.Fatal(err)
	}
	own := *added.Owned
	if !own.Created || own.Container != "/permissions" {
		t.Errorf("Owned = %+v, want created with container /permissions", own)
	}
	c, err := RemoveArrayEntries(path, "/permissions/allow", own, false)
	if err != nil {
		t.Fatal(err)
	}
	if c.Detail != "file deleted" {
		t.Errorf("Detail = %q, want file deleted", c.Detail)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("settings file left behind")
	}

	c, _ = RemoveArrayEntries(path, "/permissions/allow", own, false)
	if c.Action != ActionSkipped {
		t.Errorf("second Action = %q, want %q", c.Action, ActionSkipped)
	}
}

func TestRemoveArrayEntries_KeepsParentWithOtherKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{"permissions": {"deny": ["x"]}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	entries := []string{"Bash(cask:*)"}
	added, err := AddArrayEntries(path, "/permissions/allow", entries, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := RemoveArrayEntries(path, "/permissions/allow", *added.Owned, false); err != nil {
		t.Fatal(err)
	}
	perms := readJSON(t, path)["permissions"].(map[string]any)
	if _, ok := perms["allow"]; ok {
		t.Error("empty allow array not pruned")
	}
	if _, ok := perms["deny"]; !ok {
		t.Error("deny removed")
	}
}

func TestRemoveArrayEntries_KeepsUserEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	original := `{"permissions": {"allow": ["Bash(cask:*)"]}}`
	if err := os.WriteFile(path, []byte(original), 0o644); err != nil {
		t.Fatal(err)
	}
	added, err := AddArrayEntries(path, "/permissions/allow", []string{"Bash(cask:*)", "Bash(cpend:*)"}, false)
	if err != nil {
		t.Fatal(err)
	}
	own := *added.Owned
	if strings.Join(own.Entries, ",") != "Bash(cpend:*)" || own.Created || own.Container != "" {
		t.Fatalf("Owned = %+v, want only Bash(cpend:*)", own)
	}
	if _, err := RemoveArrayEntries(path, "/permissions/allow", own, false); err != nil {
		t.Fatal(err)
	}
	allow := readJSON(t, path)["permissions"].(map[string]any)["allow"].([]any)
	if len(allow) != 1 || allow[0] != "Bash(cask:*)" {
		t.Errorf("allow = %v, want the user's entry kept", allow)
	}
}

func TestRemoveArrayEntries_KeepsEmptiedUserFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	added, err := AddArrayEntries(path, "/permissions/allow", []string{"Bash(cask:*)"}, false)
	if err != nil {
		t.Fatal(err)
	}
	c, err := RemoveArrayEntries(path, "/permissions/allow", *added.Owned, false)
	if err != nil {
		t.Fatal(err)
	}
	if c.Detail == "file deleted" {
		t.Fatal("settings file that existed before install was deleted")
	}
	if got := readJSON(t, path); len(got) != 0 {
		t.Errorf("settings = %v, want {}", got)
	}
}

func TestMissingArrayEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	missing, err := MissingArrayEntries(path, "/a/b", []string{"x", "y"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(missing, ",") != "x,y" {
		t.Errorf("missing = %v", missing)
	}
	if _, err := AddArrayEntries(path, "/a/b", []string{"x"}, false); err != nil {
		t.Fatal(err)
	}
	missing, _ = MissingArrayEntries(path, "/a/b", []string{"x", "y"})
	if strings.Join(missing, ",") != "y" {
		t.Errorf("missing = %v", missing)
	}
}
