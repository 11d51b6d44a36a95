package core

import (
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"

	"github.com/charmbracelet/x/ansi"
	"github.com/rs/zerolog/log"

	"github.com/gitmzc/claude-code-bridge/internal/core/osutil"
	"github.com/gitmzc/claude-code-bridge/internal/core/provider"
)

// Notifier shows desktop notifications and sets the terminal title while
// a sync ask waits. CCB_NOTIFY and CCB_TITLE_UPDATE turn each part off.
type Notifier struct {
	Desktop bool
	Title   bool
	Out     io.Writer // where title escapes go; usually the TTY on stderr

	run func(name string, args ...string) error
}

// NewNotifier reads CCB_NOTIFY and CCB_TITLE_UPDATE (both default on).
func NewNotifier(out io.Writer) *Notifier {
	return &Notifier{
		Desktop: osutil.EnvBool("CCB_NOTIFY", true),
		Title:   osutil.EnvBool("CCB_TITLE_UPDATE", true),
		Out:     out,
		run: func(name string, args ...string) error {
			return exec.Command(name, args...).Run()
		},
	}
}

// Hooks returns the Communicator callbacks that drive the notifier.
func (n *Notifier) Hooks(opts *provider.Options) {
	opts.OnWaiting = func(p provider.Provider) {
		n.SetTitle("⏳ Waiting for " + p.DisplayName() + "...")
	}
	opts.OnReply = func(p provider.Provider, reply string) {
		n.Send(p.DisplayName()+" Replied", reply)
		n.SetTitle("✅ " + p.DisplayName() + ": Reply Received")
	}
}

// SetTitle writes the OSC 0 title sequence.
func (n *Notifier) SetTitle(title string) {
	if !n.Title || n.Out == nil {
		return
	}
	fmt.Fprint(n.Out, ansi.SetIconNameWindowTitle(title))
}

// Send shows a desktop notification. Failures are logged, never returned.
func (n *Notifier) Send(title, message string) {
	if !n.Desktop {
		return
	}
	message = ansi.Truncate(strings.Join(strings.Fields(message), " "), 100, "...")

	var err error
	switch runtime.GOOS {
	case "darwin":
		if _, lookErr := exec.LookPath("osascript"); lookErr != nil {
			return
		}
		script := fmt.Sprintf("display notification %s with title %s", appleQuote(message), appleQuote(title))
		err = n.run("osascript", "-e", script)
	case "linux":
		if _, lookErr := exec.LookPath("notify-send"); lookErr != nil {
			return
		}
		err = n.run("notify-send", title, message)
	default:
		return
	}
	if err != nil {
		log.Debug().Err(err).Msg("desktop notification failed")
	}
}

func appleQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
