// Package provider defines the AI CLIs ccb can talk to (Codex, Gemini).
//
// A Provider knows how to start its CLI in a pane, where the CLI writes its
// session transcript and how to read replies back out of it. Providers are
// self-contained Go structs registered at init time.
package provider

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/gitmzc/claude-code-bridge/internal/core/osutil"
	"github.com/gitmzc/claude-code-bridge/internal/core/session"
)

// ReplyEndMarker terminates a reply. The installed rule blocks ask each
// provider to end its answers with it.
const ReplyEndMarker = "[CCB_REPLY_END]"

// geminiTurnEnd is an older marker still stripped from Gemini replies.
const geminiTurnEnd = "[GEMINI_TURN_END]"

var (
	// ErrNoReply is returned when a transcript holds no assistant reply.
	ErrNoReply = errors.New("no reply available")
	// ErrPaneDead means the pane recorded in the session is gone.
	ErrPaneDead = errors.New("provider pane is not running")
	// ErrTimeout is returned by AskWait when the wait was given up.
	ErrTimeout = errors.New("timed out waiting for reply")
	// ErrBackground is returned by AskWait when the user chose to stop
	// waiting but leave the request running.
	ErrBackground = errors.New("moved to background")
)

// Provider describes one AI CLI ccb can bridge to.
type Provider interface {
	Name() string        // machine name: "codex", "gemini"
	DisplayName() string // human name: "Codex", "Gemini"
	Command() string     // CLI binary started in the pane
	Letter() string      // command prefix: "c" for cask/cpend, "g" for gask/gpend
	InstallHint() string

	// DefaultTimeout is the AskWait timeout when neither a flag nor
	// <PROVIDER>_SYNC_TIMEOUT is set.
	DefaultTimeout() time.Duration

	// StartCommand builds the shell command that launches the CLI. The
	// second result reports whether a previous conversation is resumed.
	StartCommand(opts StartOptions) (string, bool)

	// NewReader returns a transcript reader for a session.
	NewReader(info *session.Info, workDir string) Reader

	// Binding returns the session file keys that pin the session to a
	// transcript file.
	Binding(transcript string) map[string]any
}

// StartOptions controls how a provider CLI is launched.
type StartOptions struct {
	WorkDir string
	Auto    bool // skip the CLI's own permission prompts
	Resume  bool // continue the latest conversation for WorkDir
}

// Conversation is one question/answer pair read from a transcript.
type Conversation struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// State is a reader's position in a transcript. Codex readers use Offset
// and Partial; Gemini readers use the message count and file fingerprint.
type State struct {
	Path     string
	Offset   int64
	Partial  []string
	MsgCount int
	ModTime  time.Time
	Size     int64
	LastID   string
	LastHash string
}

// Reader reads assistant replies from a provider transcript.
type Reader interface {
	// CurrentLog returns the transcript the reader is bound to, or "".
	CurrentLog() string
	// SetPreferred pins the reader to a transcript file.
	SetPreferred(path string)
	// Capture records the current end of the transcript.
	Capture() State
	// Wait blocks until a reply newer than st appears or ctx is done.
	Wait(ctx context.Context, st State) (string, State, error)
	// Poll is the non-blocking form of Wait.
	Poll(st State) (string, State)
	// Messages returns each assistant message appended after st as it
	// arrives, without waiting for the end marker.
	Messages(st State) ([]string, State)
	// Latest returns the most recent reply.
	Latest() (string, error)
	// Conversations returns the last n question/answer pairs (all if n <= 0).
	Conversations(n int) ([]Conversation, error)
	// Roots are the directories holding transcripts, for watching.
	Roots() []string
	// SetWake registers a channel that interrupts poll sleeps early.
	SetWake(wake <-chan struct{})
}

// BaseProvider provides the common identity fields.
type BaseProvider struct {
	name           string
	displayName    string
	command        string
	letter         string
	installHint    string
	defaultTimeout time.Duration
}

func (b *BaseProvider) Name() string                  { return b.name }
func (b *BaseProvider) DisplayName() string           { return b.displayName }
func (b *BaseProvider) Command() string               { return b.command }
func (b *BaseProvider) Letter() string                { return b.letter }
func (b *BaseProvider) InstallHint() string           { return b.installHint }
func (b *BaseProvider) DefaultTimeout() time.Duration { return b.defaultTimeout }

// --- Registry ---

var providers []Provider

// Register adds a provider to the global registry.
func Register(p Provider) { providers = append(providers, p) }

// All returns all registered providers.
func All() []Provider { return providers }

// ByName returns the provider with the given machine name, if registered.
func ByName(name string) (Provider, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, p := range providers {
		if p.Name() == name {
			return p, true
		}
	}
	return nil, false
}

// ByNames resolves a list of provider names. Returns an error if any name
// is unknown.
func ByNames(names []string) ([]Provider, error) {
	result := make([]Provider, 0, len(names))
	for _, name := range names {
		p, ok := ByName(name)
		if !ok {
			return nil, fmt.Errorf("unknown provider %q; available: %s",
				name, strings.Join(Names(providers), ", "))
		}
		result = append(result, p)
	}
	return result, nil
}

// ByCommand resolves a bridge command name such as "cask-w" or "gpend"
// to its provider and verb ("ask", "ask-w", "pend", "ping").
func ByCommand(cmd string) (Provider, string, bool) {
	for _, p := range providers {
		for _, verb := range Verbs {
			if cmd == p.Letter()+verb {
				return p, verb, true
			}
		}
	}
	return nil, "", false
}

// Verbs are the bridge command suffixes.
var Verbs = []string{"ask", "ask-w", "pend", "ping"}

// Commands returns the bridge command names for p, e.g. cask, cask-w, cpend, cping.
func Commands(p Provider) []string {
	out := make([]string, len(Verbs))
	for i, v := range Verbs {
		out[i] = p.Letter() + v
	}
	return out
}

// AllCommands returns the bridge commands of every registered provider.
func AllCommands() []string {
	var out []string
	for _, p := range providers {
		out = append(out, Commands(p)...)
	}
	return out
}

// PendCommand returns the command that shows p's latest reply.
func PendCommand(p Provider) string { return p.Letter() + "pend" }

// Names returns the machine names of the given providers.
func Names(ps []Provider) []string {
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = p.Name()
	}
	return names
}

// Installed reports whether the provider CLI is on PATH.
func Installed(p Provider) bool {
	_, err := exec.LookPath(p.Command())
	return err == nil
}

// SyncTimeout returns the AskWait timeout from <PROVIDER>_SYNC_TIMEOUT,
// falling back to the provider default. Zero means wait forever.
func SyncTimeout(p Provider) time.Duration {
	return osutil.EnvSeconds(session.EnvPrefix(p.Name())+"_SYNC_TIMEOUT", p.DefaultTimeout(), 0, 0)
}

// stripMarkers removes reply terminators and trailing whitespace.
func stripMarkers(s string) string {
	s = strings.ReplaceAll(s, ReplyEndMarker, "")
	s = strings.ReplaceAll(s, geminiTurnEnd, "")
	return strings.TrimSpace(s)
}
