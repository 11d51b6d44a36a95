// Package terminal drives the terminal multiplexers that host provider panes.
//
// A Backend knows how to inject text into a pane, create and kill panes, and
// read back what a pane is showing. Backends shell out to the multiplexer's
// own CLI (wezterm cli, it2, tmux) through a Runner so tests can replace the
// process layer.
package terminal

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// ErrUnsupported is returned by operations a backend cannot perform.
var ErrUnsupported = errors.New("not supported by this terminal")

// ErrNotDetected is returned by Detect when no backend is usable.
var ErrNotDetected = errors.New("no supported terminal detected")

// Direction is where a new pane is placed relative to its parent.
type Direction string

const (
	Right  Direction = "right"
	Bottom Direction = "bottom"
)

// PaneOptions describes a pane to create.
type PaneOptions struct {
	Command    string    // shell command line to run in the pane
	Cwd        string    // working directory
	Direction  Direction // split direction
	Percent    int       // size of the new pane, 0 means 50
	ParentPane string    // pane to split; empty means the current pane
	NewTab     bool      // spawn a new tab instead of splitting
}

// PaneInfo is one pane as reported by a backend that can list panes.
type PaneInfo struct {
	ID    string
	Title string
	Cwd   string
	Cols  int
	Rows  int
}

// Backend is a terminal multiplexer that can host provider panes.
type Backend interface {
	Name() string

	// SendText types text into a pane and submits it.
	SendText(paneID, text string) error
	// IsAlive reports whether the pane still exists.
	IsAlive(paneID string) bool
	// CreatePane creates a pane and returns its id.
	CreatePane(opts PaneOptions) (string, error)
	KillPane(paneID string) error
	Activate(paneID string) error
	// GetText returns the last n lines shown in a pane.
	GetText(paneID string, lines int) (string, error)
}

// PaneLister is implemented by backends that can enumerate panes.
type PaneLister interface {
	ListPanes() ([]PaneInfo, error)
}

// Names lists the known backend names in preference order.
func Names() []string {
	return []string{"wezterm", "iterm2", "tmux"}
}

// New returns the backend with the given name.
func New(name string, r Runner) (Backend, error) {
	if r == nil {
		r = DefaultRunner()
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "wezterm":
		return NewWezTerm(r), nil
	case "iterm2", "iterm":
		return NewITerm2(r), nil
	case "tmux":
		return NewTmux(r), nil
	default:
		return nil, fmt.Errorf("unknown terminal %q (available: %s): %w", name, strings.Join(Names(), ", "), ErrUnsupported)
	}
}

// DetectName picks a backend name from the environment.
//
// Precedence: CCB_TERMINAL, CODEX_TERMINAL, the pane variable of the terminal
// ccb is running in (WEZTERM_PANE, ITERM_SESSION_ID, TMUX), then the first
// multiplexer CLI found on PATH.
func DetectName() (string, error) {
	for _, key := range []string{"CCB_TERMINAL", "CODEX_TERMINAL"} {
		if v := strings.ToLower(strings.TrimSpace(os.Getenv(key))); v != "" {
			if v == "iterm" {
				v = "iterm2"
			}
			for _, n := range Names() {
				if n == v {
					return v, nil
				}
			}
			return "", fmt.Errorf("%s=%q is not a known terminal (available: %s): %w", key, v, strings.Join(Names(), ", "), ErrUnsupported)
		}
	}

	switch {
	case os.Getenv("WEZTERM_PANE") != "":
		return "wezterm", nil
	case os.Getenv("ITERM_SESSION_ID") != "":
		return "iterm2", nil
	case os.Getenv("TMUX") != "":
		return "tmux", nil
	}

	if found := Available(); len(found) > 0 {
		return found[0], nil
	}
	return "", ErrNotDetected
}

// Detect returns the backend selected by DetectName.
func Detect(r Runner) (Backend, error) {
	name, err := DetectName()
	if err != nil {
		return nil, err
	}
	return New(name, r)
}

// Available returns the backends whose CLI is installed, in preference order.
func Available() []string {
	var found []string
	if _, err := exec.LookPath("wezterm"); err == nil {
		found = append(found, "wezterm")
	}
	if runtime.GOOS == "darwin" {
		if _, err := exec.LookPath("it2"); err == nil {
			found = append(found, "iterm2")
		}
	}
	if _, err := exec.LookPath("tmux"); err == nil {
		found = append(found, "tmux")
	}
	return found
}

// CurrentPane returns the id of the pane ccb itself runs in, if known.
func CurrentPane(name string) string {
	switch name {
	case "wezterm":
		return os.Getenv("WEZTERM_PANE")
	case "iterm2":
		// ITERM_SESSION_ID looks like "w0t0p0:UUID"; it2 wants the UUID.
		id := os.Getenv("ITERM_SESSION_ID")
		if i := strings.IndexByte(id, ':'); i >= 0 {
			return id[i+1:]
		}
		return id
	case "tmux":
		return os.Getenv("TMUX_PANE")
	}
	return ""
}

// SplitDirection chooses where the first provider pane goes: to the right
// when the parent pane is wide (cols > rows*2), otherwise below.
func SplitDirection(b Backend, parent string) Direction {
	lister, ok := b.(PaneLister)
	if !ok || parent == "" {
		return Right
	}
	panes, err := lister.ListPanes()
	if err != nil {
		return Right
	}
	for _, p := range panes {
		if p.ID == parent {
			if p.Cols > p.Rows*2 {
				return Right
			}
			return Bottom
		}
	}
	return Right
}

// KeepOpen wraps a command so the pane drops into a shell when it exits.
func KeepOpen(command string) string {
	if runtime.GOOS == "windows" {
		return command
	}
	return command + "; exec \"${SHELL:-/bin/sh}\""
}
