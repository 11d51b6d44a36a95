package terminal

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// WezTerm drives panes through `wezterm cli`.
type WezTerm struct {
	run Runner
	bin string
}

// NewWezTerm creates a WezTerm backend. CCB_WEZTERM_BIN overrides the binary.
func NewWezTerm(r Runner) *WezTerm {
	bin := os.Getenv("CCB_WEZTERM_BIN")
	if bin == "" {
		bin = "wezterm"
	}
	return &WezTerm{run: r, bin: bin}
}

func (w *WezTerm) Name() string { return "wezterm" }

func (w *WezTerm) cli(stdin string, args ...string) (string, error) {
	return w.run.Run(stdin, w.bin, append([]string{"cli"}, args...)...)
}

// SendText injects text and submits it with a separate carriage return.
// Single-line text is typed with --no-paste after "--", so text starting
// with a dash is not read as a flag. Multi-line text goes through a
// bracketed paste so the CLI on the other side receives it as one message.
func (w *WezTerm) SendText(paneID, text string) error {
	text = strings.TrimRight(text, "\r\n")
	if strings.Contains(text, "\n") {
		if _, err := w.cli(text, "send-text", "--pane-id", paneID); err != nil {
			return fmt.Errorf("pasting text: %w", err)
		}
	} else {
		if _, err := w.cli("", "send-text", "--pane-id", paneID, "--no-paste", "--", text); err != nil {
			return fmt.Errorf("sending text: %w", err)
		}
	}
	if _, err := w.cli("", "send-text", "--pane-id", paneID, "--no-paste", "\r"); err != nil {
		return fmt.Errorf("sending enter: %w", err)
	}
	return nil
}

func (w *WezTerm) IsAlive(paneID string) bool {
	if paneID == "" {
		return false
	}
	panes, err := w.ListPanes()
	if err != nil {
		return false
	}
	for _, p := range panes {
		if p.ID == paneID {
			return true
		}
	}
	return false
}

// ListPanes parses `wezterm cli list --format json`.
func (w *WezTerm) ListPanes() ([]PaneInfo, error) {
	out, err := w.cli("", "list", "--format", "json")
	if err != nil {
		return nil, err
	}
	if !gjson.Valid(out) {
		return nil, fmt.Errorf("wezterm cli list: unexpected output")
	}
	var panes []PaneInfo
	gjson.Parse(out).ForEach(func(_, v gjson.Result) bool {
		panes = append(panes, PaneInfo{
			ID:    v.Get("pane_id").String(),
			Title: v.Get("title").String(),
			Cwd:   v.Get("cwd").String(),
			Cols:  int(v.Get("size.cols").Int()),
			Rows:  int(v.Get("size.rows").Int()),
		})
		return true
	})
	return panes, nil
}

func (w *WezTerm) CreatePane(opts PaneOptions) (string, error) {
	var args []string
	if opts.NewTab {
		args = []string{"spawn"}
		if opts.ParentPane != "" {
			args = append(args, "--pane-id", opts.ParentPane)
		}
	} else {
		args = []string{"split-pane"}
		if opts.ParentPane != "" {
			args = append(args, "--pane-id", opts.ParentPane)
		}
		if opts.Direction == Bottom {
			args = append(args, "--bottom")
		} else {
			args = append(args, "--right")
		}
		percent := opts.Percent
		if percent <= 0 {
			percent = 50
		}
		args = append(args, "--percent", strconv.Itoa(percent))
	}
	if opts.Cwd != "" {
		args = append(args, "--cwd", opts.Cwd)
	}
	args = append(args, "--")
	args = append(args, shellArgs(opts.Command)...)

	out, err := w.cli("", args...)
	if err != nil {
		return "", fmt.Errorf("creating pane: %w", err)
	}
	id := strings.TrimSpace(out)
	if id == "" {
		return "", fmt.Errorf("creating pane: wezterm returned no pane id")
	}
	return id, nil
}

func (w *WezTerm) KillPane(paneID string) error {
	_, err := w.cli("", "kill-pane", "--pane-id", paneID)
	return err
}

func (w *WezTerm) Activate(paneID string) error {
	_, err := w.cli("", "activate-pane", "--pane-id", paneID)
	return err
}

func (w *WezTerm) GetText(paneID string, lines int) (string, error) {
	if lines <= 0 {
		lines = 500
	}
	return w.cli("", "get-text", "--pane-id", paneID, "--start-line", "-"+strconv.Itoa(lines))
}

// shellArgs returns argv that runs command through the platform shell.
func shellArgs(command string) []string {
	if runtime.GOOS == "windows" {
		return []string{"cmd", "/c", command}
	}
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/sh"
	}
	return []string{shell, "-c", command}
}
