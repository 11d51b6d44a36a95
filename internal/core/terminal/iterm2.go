package terminal

import (
	"fmt"
	"strings"
)

// ITerm2 drives iTerm2 sessions through the `it2` CLI.
type ITerm2 struct {
	run Runner
}

func NewITerm2(r Runner) *ITerm2 { return &ITerm2{run: r} }

func (i *ITerm2) Name() string { return "iterm2" }

func (i *ITerm2) it2(args ...string) (string, error) {
	return i.run.Run("", "it2", args...)
}

func (i *ITerm2) SendText(paneID, text string) error {
	text = strings.TrimRight(text, "\r\n")
	if _, err := i.it2("session", "send", "--session", paneID, "--", text); err != nil {
		return fmt.Errorf("sending text: %w", err)
	}
	if _, err := i.it2("session", "send", "--session", paneID, "\r"); err != nil {
		return fmt.Errorf("sending enter: %w", err)
	}
	return nil
}

func (i *ITerm2) IsAlive(paneID string) bool {
	if paneID == "" {
		return false
	}
	out, err := i.it2("session", "list")
	if err != nil {
		return false
	}
	return strings.Contains(out, paneID)
}

// CreatePane splits a session, then starts the command inside it. it2 has no
// way to pass a command at split time.
func (i *ITerm2) CreatePane(opts PaneOptions) (string, error) {
	var args []string
	if opts.NewTab {
		args = []string{"tab", "new"}
	} else {
		args = []string{"session", "split"}
		if opts.ParentPane != "" {
			args = append(args, "--session", opts.ParentPane)
		}
		if opts.Direction == Right {
			args = append(args, "--vertical")
		}
	}
	out, err := i.it2(args...)
	if err != nil {
		return "", fmt.Errorf("creating pane: %w", err)
	}
	id := lastField(out)
	if id == "" {
		return "", fmt.Errorf("creating pane: it2 returned no session id")
	}

	command := opts.Command
	if opts.Cwd != "" {
		command = "cd " + ShellQuote(opts.Cwd) + " && " + command
	}
	if strings.TrimSpace(opts.Command) != "" {
		if err := i.SendText(id, command); err != nil {
			return id, fmt.Errorf("starting command: %w", err)
		}
	}
	return id, nil
}

func (i *ITerm2) KillPane(paneID string) error {
	_, err := i.it2("session", "close", "--session", paneID)
	return err
}

func (i *ITerm2) Activate(paneID string) error {
	_, err := i.it2("session", "focus", paneID)
	return err
}

func (i *ITerm2) GetText(string, int) (string, error) {
	return "", ErrUnsupported
}

func lastField(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

// ShellQuote single-quotes s for POSIX shells.
func ShellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$`!*?[]{}()<>|&;#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
