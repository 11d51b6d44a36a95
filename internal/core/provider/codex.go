package provider

import (
	"bufio"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/gitmzc/claude-code-bridge/internal/core/osutil"
	"github.com/gitmzc/claude-code-bridge/internal/core/session"
)

// maxResumeScan bounds how many Codex logs are inspected when looking for a
// conversation to resume.
const maxResumeScan = 400

var sessionIDPattern = regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)

// Codex bridges to the OpenAI Codex CLI.
type Codex struct {
	BaseProvider
}

// NewCodex creates a configured Codex provider.
func NewCodex() *Codex {
	return &Codex{BaseProvider{
		name:           "codex",
		displayName:    "Codex",
		command:        "codex",
		letter:         "c",
		installHint:    "npm install -g @openai/codex",
		defaultTimeout: 30 * time.Second,
	}}
}

func init() { Register(NewCodex()) }

// CodexSessionRoot returns the directory holding Codex JSONL logs.
func CodexSessionRoot() string {
	if root := osutil.EnvString("CODEX_SESSION_ROOT"); root != "" {
		return osutil.ExpandPath(root)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".codex", "sessions")
}

// StartCommand disables Codex paste-burst detection, since injected text
// otherwise arrives as a paste and Enter only inserts a newline.
func (c *Codex) StartCommand(opts StartOptions) (string, bool) {
	cmd := "codex -c disable_paste_burst=true"
	if opts.Auto {
		cmd += " --full-auto"
	}
	if opts.Resume {
		if id := LatestCodexSessionID(CodexSessionRoot(), opts.WorkDir); id != "" {
			return cmd + " resume " + id, true
		}
	}
	return cmd, false
}

func (c *Codex) NewReader(info *session.Info, workDir string) Reader {
	r := NewCodexReader(CodexSessionRoot())
	if info != nil && info.CodexSessionPath != "" {
		r.SetPreferred(info.CodexSessionPath)
	}
	return r
}

func (c *Codex) Binding(transcript string) map[string]any {
	values := map[string]any{"codex_session_path": transcript}
	if id := CodexSessionID(transcript); id != "" {
		values["codex_session_id"] = id
	}
	return values
}

// CodexSessionID extracts the Codex session UUID from a log file name,
// falling back to its first line.
func CodexSessionID(path string) string {
	if m := sessionIDPattern.FindString(filepath.Base(path)); m != "" {
		return m
	}
	first, err := readFirstLine(path)
	if err != nil {
		return ""
	}
	return sessionIDPattern.FindString(first)
}

// LatestCodexSessionID returns the id of the newest Codex log whose
// session_meta cwd matches workDir.
func LatestCodexSessionID(root, workDir string) string {
	keys := osutil.WorkDirMatchKeys(workDir)
	if len(keys) == 0 {
		return ""
	}

	logs := codexLogsByAge(root)
	if len(logs) > maxResumeScan {
		logs = logs[:maxResumeScan]
	}
	for _, path := range logs {
		first, err := readFirstLine(path)
		if err != nil || first == "" || !gjson.Valid(first) {
			continue
		}
		entry := gjson.Parse(first)
		if entry.Get("type").String() != "session_meta" {
			continue
		}
		cwd := strings.TrimSpace(entry.Get("payload.cwd").String())
		if cwd == "" || !osutil.MatchesWorkDir(cwd, keys) {
			continue
		}
		if id := entry.Get("payload.id").String(); id != "" {
			return id
		}
	}
	return ""
}

// codexLogsByAge lists *.jsonl files under root, newest first.
func codexLogsByAge(root string) []string {
	type entry struct {
		path  string
		mtime time.Time
	}
	var entries []entry
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(d.Name(), ".jsonl") {
			return nil
		}
		info, err := d.Info()
		if err != nil || !info.Mode().IsRegular() {
			return nil
		}
		entries = append(entries, entry{path, info.ModTime()})
		return nil
	})
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].mtime.After(entries[j].mtime) })

	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.path
	}
	return out
}

func readFirstLine(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(strings.ToValidUTF8(line, "")), nil
}
