package core

import (
	"errors"
	"fmt"
	"os"

	units "github.com/docker/go-units"
	"github.com/rs/zerolog/log"

	"github.com/gitmzc/claude-code-bridge/internal/core/provider"
	"github.com/gitmzc/claude-code-bridge/internal/core/session"
	"github.com/gitmzc/claude-code-bridge/internal/core/terminal"
)

// SessionNames returns every name ccb writes a session file for: the
// providers followed by claude.
func SessionNames() []string {
	return append(provider.Names(provider.All()), claudeSessionName)
}

// SessionStatus describes one session file in a project.
type SessionStatus struct {
	Name       string `json:"name"`
	State      string `json:"state"` // running, dead, stopped, invalid
	Terminal   string `json:"terminal,omitempty"`
	Pane       string `json:"pane,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	Size       string `json:"size,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// Session states reported by Status.
const (
	StateRunning = "running"
	StateDead    = "dead"
	StateStopped = "stopped"
	StateInvalid = "invalid"
)

// Status reports every session of workDir. Panes are probed through the
// terminal recorded in each session file.
func Status(workDir string, r terminal.Runner) []SessionStatus {
	var out []SessionStatus
	for _, name := range SessionNames() {
		out = append(out, sessionStatus(session.FilePath(workDir, name), name, r))
	}
	return out
}

func sessionStatus(path, name string, r terminal.Runner) SessionStatus {
	st := SessionStatus{Name: name, State: StateStopped}
	info, err := session.Read(path)
	switch {
	case errors.Is(err, session.ErrNotFound):
		return st
	case err != nil:
		st.State, st.Detail = StateInvalid, err.Error()
		return st
	}
	st.Terminal, st.Pane, st.SessionID = info.Terminal, info.PaneID, info.SessionID
	st.Transcript = info.CodexSessionPath
	if st.Transcript == "" {
		st.Transcript = info.GeminiSessionPath
	}
	if st.Transcript != "" {
		if fi, err := os.Stat(st.Transcript); err == nil {
			st.Size = units.HumanSize(float64(fi.Size()))
		}
	}
	if !info.Active {
		return st
	}

	b, err := terminal.New(info.Terminal, r)
	if err != nil {
		st.State, st.Detail = StateInvalid, err.Error()
		return st
	}
	if info.PaneID != "" && b.IsAlive(info.PaneID) {
		st.State = StateRunning
	} else {
		st.State = StateDead
	}
	return st
}

// KillResult is the outcome of killing one session.
type KillResult struct {
	Name   string `json:"name"`
	Killed bool   `json:"killed"`
	Detail string `json:"detail,omitempty"`
}

// Kill closes the panes of the named sessions (every session when names is
// empty), marks their files inactive and removes their runtime directories.
func Kill(workDir string, names []string, r terminal.Runner) ([]KillResult, error) {
	if len(names) == 0 {
		names = SessionNames()
	}
	for _, n := range names {
		if !knownProvider(n) && n != claudeSessionName {
			return nil, NewExitError(ExitUsageError, fmt.Errorf("unknown session %q; available: %v", n, SessionNames()))
		}
	}

	var out []KillResult
	for _, name := range names {
		path := session.FilePath(workDir, name)
		res := KillResult{Name: name}
		info, err := session.Read(path)
		if err != nil || !info.Active {
			res.Detail = "not running"
			out = append(out, res)
			continue
		}

		// Claude's pane is the one ccb kill itself may run in; leave it.
		if name != claudeSessionName && info.PaneID != "" {
			b, err := terminal.New(info.Terminal, r)
			if err == nil {
				if err := b.KillPane(info.PaneID); err != nil {
					log.Debug().Err(err).Str("session", name).Msg("kill pane")
					res.Detail = "pane already gone"
				}
			} else {
				res.Detail = err.Error()
			}
		}
		if err := session.MarkInactive(path); err != nil {
			return out, NewExitError(ExitSessionWriteError, err)
		}
		if info.RuntimeDir != "" {
			_ = os.RemoveAll(info.RuntimeDir)
		}
		res.Killed = true
		out = append(out, res)
		log.Info().Str("session", name).Str("pane", info.PaneID).Msg("session killed")
	}
	return out, nil
}
