package terminal

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Tmux drives panes through the tmux CLI.
type Tmux struct {
	run Runner
}

func NewTmux(r Runner) *Tmux { return &Tmux{run: r} }

func (t *Tmux) Name() string { return "tmux" }

func (t *Tmux) tmux(stdin string, args ...string) (string, error) {
	return t.run.Run(stdin, "tmux", args...)
}

// SendText loads text into a named buffer and pastes it, so multi-line
// messages are not split into several submissions.
func (t *Tmux) SendText(paneID, text string) error {
	text = strings.TrimRight(text, "\r\n")
	buf := fmt.Sprintf("ccb-send-%d", time.Now().UnixNano())
	if _, err := t.tmux(text, "load-buffer", "-b", buf, "-"); err != nil {
		return fmt.Errorf("loading tmux buffer: %w", err)
	}
	if _, err := t.tmux("", "paste-buffer", "-d", "-b", buf, "-t", paneID); err != nil {
		_, _ = t.tmux("", "delete-buffer", "-b", buf)
		return fmt.Errorf("pasting tmux buffer: %w", err)
	}
	if _, err := t.tmux("", "send-keys", "-t", paneID, "Enter"); err != nil {
		return fmt.Errorf("sending enter: %w", err)
	}
	return nil
}

func (t *Tmux) IsAlive(paneID string) bool {
	if paneID == "" {
		return false
	}
	out, err := t.tmux("", "display-message", "-p", "-t", paneID, "#{pane_id} #{pane_dead}")
	if err != nil {
		return false
	}
	fields := strings.Fields(out)
	return len(fields) == 2 && fields[0] == paneID && fields[1] != "1"
}

func (t *Tmux) ListPanes() ([]PaneInfo, error) {
	out, err := t.tmux("", "list-panes", "-a", "-F", "#{pane_id}\t#{pane_width}\t#{pane_height}\t#{pane_current_path}\t#{pane_title}")
	if err != nil {
		return nil, err
	}
	var panes []PaneInfo
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		parts := strings.SplitN(line, "\t", 5)
		if len(parts) < 3 {
			continue
		}
		cols, _ := strconv.Atoi(parts[1])
		rows, _ := strconv.Atoi(parts[2])
		p := PaneInfo{ID: parts[0], Cols: cols, Rows: rows}
		if len(parts) > 3 {
			p.Cwd = parts[3]
		}
		if len(parts) > 4 {
			p.Title = parts[4]
		}
		panes = append(panes, p)
	}
	return panes, nil
}

func (t *Tmux) CreatePane(opts PaneOptions) (string, error) {
	var args []string
	if opts.NewTab {
		args = []string{"new-window", "-P", "-F", "#{pane_id}"}
	} else {
		args = []string{"split-window", "-P", "-F", "#{pane_id}"}
		if opts.Direction == Bottom {
			args = append(args, "-v")
		} else {
			args = append(args, "-h")
		}
		percent := opts.Percent
		if percent <= 0 {
			percent = 50
		}
		args = append(args, "-l", strconv.Itoa(percent)+"%")
		if opts.ParentPane != "" {
			args = append(args, "-t", opts.ParentPane)
		}
	}
	if opts.Cwd != "" {
		args = append(args, "-c", opts.Cwd)
	}
	if opts.Command != "" {
		args = append(args, opts.Command)
	}

	out, err := t.tmux("", args...)
	if err != nil {
		return "", fmt.Errorf("creating pane: %w", err)
	}
	id := strings.TrimSpace(out)
	if id == "" {
		return "", fmt.Errorf("creating pane: tmux returned no pane id")
	}
	return id, nil
}

func (t *Tmux) KillPane(paneID string) error {
	_, err := t.tmux("", "kill-pane", "-t", paneID)
	return err
}

func (t *Tmux) Activate(paneID string) error {
	_, err := t.tmux("", "select-pane", "-t", paneID)
	return err
}

func (t *Tmux) GetText(paneID string, lines int) (string, error) {
	if lines <= 0 {
		lines = 500
	}
	return t.tmux("", "capture-pane", "-p", "-J", "-t", paneID, "-S", "-"+strconv.Itoa(lines))
}
