package provider

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"time"

	"github.com/gitmzc/claude-code-bridge/internal/core/osutil"
	"github.com/gitmzc/claude-code-bridge/internal/core/session"
)

// Gemini bridges to the Google Gemini CLI.
type Gemini struct {
	BaseProvider
}

// NewGemini creates a configured Gemini provider.
func NewGemini() *Gemini {
	return &Gemini{BaseProvider{
		name:           "gemini",
		displayName:    "Gemini",
		command:        "gemini",
		letter:         "g",
		installHint:    "npm install -g @google/gemini-cli",
		defaultTimeout: 60 * time.Second,
	}}
}

func init() { Register(NewGemini()) }

// GeminiRoot returns the directory holding per-project Gemini chats.
func GeminiRoot() string {
	if root := osutil.EnvString("GEMINI_ROOT"); root != "" {
		return osutil.ExpandPath(root)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".gemini", "tmp")
}

// ProjectHash mirrors how the Gemini CLI names its per-project directory:
// sha256 of the absolute (not symlink-resolved) working directory.
func ProjectHash(workDir string) string {
	abs, err := filepath.Abs(osutil.ExpandPath(workDir))
	if err != nil {
		abs = workDir
	}
	sum := sha256.Sum256([]byte(abs))
	return hex.EncodeToString(sum[:])
}

func (g *Gemini) StartCommand(opts StartOptions) (string, bool) {
	cmd := "gemini"
	if opts.Auto {
		cmd += " --yolo"
	}
	if opts.Resume && GeminiHasHistory(GeminiRoot(), opts.WorkDir) {
		return cmd + " --resume latest", true
	}
	return cmd, false
}

func (g *Gemini) NewReader(info *session.Info, workDir string) Reader {
	if info != nil && info.WorkDir != "" {
		workDir = info.WorkDir
	}
	r := NewGeminiReader(GeminiRoot(), workDir)
	if info != nil && info.GeminiSessionPath != "" {
		r.SetPreferred(info.GeminiSessionPath)
	}
	return r
}

func (g *Gemini) Binding(transcript string) map[string]any {
	values := map[string]any{"gemini_session_path": transcript}
	if hash := filepath.Base(filepath.Dir(filepath.Dir(transcript))); hash != "" && hash != "." {
		values["gemini_project_hash"] = hash
	}
	if data, ok := readGeminiSession(transcript); ok {
		if id := data.Get("sessionId").String(); id != "" {
			values["gemini_session_id"] = id
		}
	}
	return values
}

// GeminiHasHistory reports whether Gemini has saved chats for workDir under
// any of its spellings (absolute, resolved, $PWD).
func GeminiHasHistory(root, workDir string) bool {
	var candidates []string
	if abs, err := filepath.Abs(workDir); err == nil {
		candidates = append(candidates, abs)
	}
	if resolved, err := filepath.EvalSymlinks(workDir); err == nil {
		candidates = append(candidates, resolved)
	}
	if pwd := os.Getenv("PWD"); pwd != "" {
		candidates = append(candidates, pwd)
	}

	seen := map[string]bool{}
	for _, c := range candidates {
		if seen[c] {
			continue
		}
		seen[c] = true
		matches, _ := filepath.Glob(filepath.Join(root, ProjectHash(c), "chats", "session-*.json"))
		if len(matches) > 0 {
			return true
		}
	}
	return false
}
