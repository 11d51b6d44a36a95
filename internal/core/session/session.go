// Package session manages the project session files that bind a working
// directory to the terminal pane hosting a provider CLI.
//
// A session file (.codex-session, .gemini-session, ...) is written by
// `ccb up` and read by every ask/pend/ping command run from the same
// directory. The same binding can also be passed through environment
// variables (CODEX_SESSION_ID, CODEX_RUNTIME_DIR, CODEX_WEZTERM_PANE, ...),
// which take precedence over the file.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/tidwall/sjson"

	"github.com/gitmzc/claude-code-bridge/internal/core/osutil"
)

var (
	// ErrNotFound means no session file or env binding exists for the provider.
	ErrNotFound = errors.New("no active session")
	// ErrInvalid means the session file exists but is unusable.
	ErrInvalid = errors.New("invalid session file")
)

// Info is the content of a project session file.
type Info struct {
	SessionID   string     `json:"session_id"`
	RuntimeDir  string     `json:"runtime_dir"`
	Terminal    string     `json:"terminal"`
	PaneID      string     `json:"pane_id"`
	WorkDir     string     `json:"work_dir"`
	WorkDirNorm string     `json:"work_dir_norm,omitempty"`
	Active      bool       `json:"active"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`

	// Transcript binding, remembered after the first reply.
	CodexSessionPath  string `json:"codex_session_path,omitempty"`
	CodexSessionID    string `json:"codex_session_id,omitempty"`
	GeminiSessionPath string `json:"gemini_session_path,omitempty"`
	GeminiProjectHash string `json:"gemini_project_hash,omitempty"`
	GeminiSessionID   string `json:"gemini_session_id,omitempty"`

	// Path is the file the session was loaded from; empty for env bindings.
	Path string `json:"-"`
}

// FromEnv reports whether the session came from environment variables.
func (i *Info) FromEnv() bool { return i.Path == "" }

// FileName returns the session file name for a provider, e.g. ".codex-session".
func FileName(provider string) string {
	return "." + provider + "-session"
}

// FilePath returns the session file path for a provider in workDir.
func FilePath(workDir, provider string) string {
	return filepath.Join(workDir, FileName(provider))
}

// EnvPrefix returns the environment variable prefix for a provider, e.g. "CODEX".
func EnvPrefix(provider string) string {
	return strings.ToUpper(strings.ReplaceAll(provider, "-", "_"))
}

// PaneEnvVar returns the variable holding the pane id for a provider on a terminal.
func PaneEnvVar(provider, terminal string) string {
	switch terminal {
	case "iterm2":
		return EnvPrefix(provider) + "_ITERM2_PANE"
	case "tmux":
		return EnvPrefix(provider) + "_TMUX_PANE"
	default:
		return EnvPrefix(provider) + "_WEZTERM_PANE"
	}
}

// Env returns the variables that bind a child process to this session.
func (i *Info) Env(provider string) []string {
	p := EnvPrefix(provider)
	return []string{
		p + "_SESSION_ID=" + i.SessionID,
		p + "_RUNTIME_DIR=" + i.RuntimeDir,
		p + "_TERMINAL=" + i.Terminal,
		PaneEnvVar(provider, i.Terminal) + "=" + i.PaneID,
	}
}

// Load resolves the active session for provider, preferring the environment
// binding over the session file in workDir.
func Load(provider, workDir string) (*Info, error) {
	if info := loadEnv(provider); info != nil {
		return info, nil
	}
	return LoadFile(FilePath(workDir, provider))
}

func loadEnv(provider string) *Info {
	p := EnvPrefix(provider)
	id := os.Getenv(p + "_SESSION_ID")
	if id == "" {
		return nil
	}
	terminal := os.Getenv(p + "_TERMINAL")
	if terminal == "" {
		terminal = "wezterm"
	}
	return &Info{
		SessionID:  id,
		RuntimeDir: os.Getenv(p + "_RUNTIME_DIR"),
		Terminal:   terminal,
		PaneID:     os.Getenv(PaneEnvVar(provider, terminal)),
		Active:     true,
	}
}

// LoadFile reads a session file. It fails with ErrNotFound when the file is
// missing or inactive and ErrInvalid when it cannot be parsed or its runtime
// directory is gone.
func LoadFile(path string) (*Info, error) {
	info, err := Read(path)
	if err != nil {
		return nil, err
	}
	if !info.Active {
		return nil, fmt.Errorf("%s is inactive: %w", filepath.Base(path), ErrNotFound)
	}
	if info.RuntimeDir == "" || !osutil.DirExists(info.RuntimeDir) {
		return nil, fmt.Errorf("runtime directory %q missing: %w", info.RuntimeDir, ErrInvalid)
	}
	return info, nil
}

// Read parses a session file without checking whether it is active.
func Read(path string) (*Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrNotFound)
		}
		return nil, fmt.Errorf("reading session file: %w", err)
	}
	text := osutil.SmartDecode(data).Text

	var info Info
	if err := json.Unmarshal([]byte(text), &info); err != nil {
		return nil, fmt.Errorf("parsing %s: %v: %w", filepath.Base(path), err, ErrInvalid)
	}
	info.Path = path
	return &info, nil
}

// Save writes the session file atomically.
func Save(path string, info *Info) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	if err := osutil.WriteFileAtomic(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("writing session file: %w", err)
	}
	info.Path = path
	return nil
}

// UpdateBinding sets top-level keys in an existing session file, leaving every
// other key (including ones this package does not know about) untouched.
func UpdateBinding(path string, values map[string]any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading session file: %w", err)
	}
	data = []byte(osutil.SmartDecode(data).Text)
	opts := &sjson.Options{Optimistic: true}
	for _, key := range slices.Sorted(maps.Keys(values)) {
		data, err = sjson.SetBytesOptions(data, key, values[key], opts)
		if err != nil {
			return fmt.Errorf("setting %s: %w", key, err)
		}
	}
	return osutil.WriteFileAtomic(path, data, 0o600)
}

// MarkInactive flags the session as ended.
func MarkInactive(path string) error {
	if !osutil.FileExists(path) {
		return nil
	}
	return UpdateBinding(path, map[string]any{
		"active":   false,
		"ended_at": time.Now().Format(time.RFC3339),
	})
}

// Remember records the provider transcript a session is talking to.
func (i *Info) Remember(values map[string]any) error {
	if i.FromEnv() {
		return nil
	}
	return UpdateBinding(i.Path, values)
}
