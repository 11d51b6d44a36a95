package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"

	"github.com/gitmzc/claude-code-bridge/internal/core"
	"github.com/gitmzc/claude-code-bridge/internal/core/provider"
)

// isTerminal reports whether f is an interactive terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// terminalWidth returns the width of stdout, or 80.
func terminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 80
}

// readMessage joins args, or reads stdin when there are none and stdin is
// piped.
func readMessage(args []string, stdin io.Reader) (string, error) {
	msg := strings.TrimSpace(strings.Join(args, " "))
	if msg == "" && stdin != nil {
		if f, ok := stdin.(*os.File); !ok || !isTerminal(f) {
			data, err := io.ReadAll(stdin)
			if err != nil {
				return "", fmt.Errorf("reading message from stdin: %w", err)
			}
			msg = strings.TrimSpace(string(data))
		}
	}
	if msg == "" {
		return "", core.NewExitError(core.ExitUsageError, errors.New("message is empty"))
	}
	return msg, nil
}

// resolveProviders parses a comma-separated provider list. Empty selects
// fallback.
func resolveProviders(flag string, fallback []string) ([]provider.Provider, error) {
	names := fallback
	if flag != "" {
		names = nil
		for _, n := range strings.Split(flag, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
	}
	ps, err := provider.ByNames(names)
	if err != nil {
		return nil, core.NewExitError(core.ExitUsageError, err)
	}
	return ps, nil
}

// renderMarkdown renders text for the terminal, falling back to the raw
// text when glamour fails.
func renderMarkdown(text string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(terminalWidth()-4),
	)
	if err != nil {
		return text
	}
	s, err := r.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(s, "\n")
}

// check renders a pass/fail mark.
func check(ok bool) string {
	if ok {
		return "✓"
	}
	return "✗"
}

// tildePath shortens paths under the home directory to ~/...
func tildePath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if path == home {
		return "~"
	}
	if rel, ok := strings.CutPrefix(path, home+string(os.PathSeparator)); ok {
		return "~/" + filepath.ToSlash(rel)
	}
	return path
}

var errNoProviderReplied = errors.New("no provider replied")
