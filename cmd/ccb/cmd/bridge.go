package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/gitmzc/claude-code-bridge/internal/core"
	"github.com/gitmzc/claude-code-bridge/internal/core/provider"
	"github.com/gitmzc/claude-code-bridge/internal/core/session"
)

// The bridge commands (cask, cask-w, cpend, cping and the g* twins) are
// generated per provider. The installer links shims with these names to
// the ccb binary; Main maps argv[0] back to the sub-command.
func init() {
	for _, p := range provider.All() {
		rootCmd.AddCommand(newAskCmd(p), newAskWaitCmd(p), newPendCmd(p), newPingCmd(p))
	}
}

func newAskCmd(p provider.Provider) *cobra.Command {
	name := p.Letter() + "ask"
	return &cobra.Command{
		Use:   name + " <message>",
		Short: fmt.Sprintf("Send a message to %s without waiting", p.DisplayName()),
		Long: fmt.Sprintf(`Send a message to the %s pane of this project and return immediately.
Use %s to read the reply once %s has answered.

The message is taken from the arguments, or from stdin when piped.`, p.DisplayName(), provider.PendCommand(p), p.DisplayName()),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := readMessage(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			c, done, err := openBridge(cmd, p)
			if err != nil {
				return err
			}
			defer done()

			if err := c.Ask(cmd.Context(), msg); err != nil {
				return err
			}
			out.Set("provider", p.Name())
			out.Set("sent", true)
			out.Result("Sent to " + p.DisplayName())
			out.Printf("Use %s to view the reply\n", provider.PendCommand(p))
			return nil
		},
	}
}

func newAskWaitCmd(p provider.Provider) *cobra.Command {
	name := p.Letter() + "ask-w"
	c := &cobra.Command{
		Use:   name + " <message>",
		Short: fmt.Sprintf("Send a message to %s and wait for the reply", p.DisplayName()),
		Long: fmt.Sprintf(`Send a message to the %s pane and block until the reply appears in
its session transcript.

The timeout comes from --timeout, else %s_SYNC_TIMEOUT, else %s.
A timeout of 0 waits forever. When the time is up an interactive terminal
offers to wait again, background the request or cancel; otherwise
CCB_TIMEOUT_ACTION decides (default cancel).`,
			p.DisplayName(), session.EnvPrefix(p.Name()), p.DefaultTimeout()),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := readMessage(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			timeout := provider.SyncTimeout(p)
			if secs, _ := cmd.Flags().GetFloat64("timeout"); secs >= 0 {
				timeout = time.Duration(secs * float64(time.Second))
			}

			c, done, err := openBridge(cmd, p)
			if err != nil {
				return err
			}
			defer done()

			start := time.Now()
			reply, err := c.AskWait(cmd.Context(), msg, timeout)
			if errors.Is(err, provider.ErrBackground) {
				out.Set("provider", p.Name())
				out.Set("background", true)
				out.Printf("%s is still working. Run %s later to get the reply.\n", p.DisplayName(), provider.PendCommand(p))
				return nil
			}
			if err != nil {
				return err
			}
			out.Set("provider", p.Name())
			out.Set("reply", reply)
			out.Set("elapsed", time.Since(start).Seconds())
			out.Result(reply)
			return nil
		},
	}
	c.Flags().Float64P("timeout", "t", -1, "Seconds to wait for the reply (0 = no limit)")
	return c
}

func newPendCmd(p provider.Provider) *cobra.Command {
	name := provider.PendCommand(p)
	c := &cobra.Command{
		Use:   name + " [N]",
		Short: fmt.Sprintf("Print the latest %s reply, or the last N exchanges", p.DisplayName()),
		Args:  usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			n := 0
			if len(args) == 1 {
				v, err := strconv.Atoi(args[0])
				if err != nil || v < 1 {
					return core.NewExitError(core.ExitUsageError, fmt.Errorf("N must be a positive number, got %q", args[0]))
				}
				n = v
			}

			c, done, err := openBridge(cmd, p)
			if err != nil {
				return err
			}
			defer done()

			text, err := c.Pending(n)
			if err != nil {
				if errors.Is(err, provider.ErrNoReply) {
					return fmt.Errorf("no reply from %s yet: %w", p.DisplayName(), err)
				}
				return err
			}
			out.Set("provider", p.Name())
			out.Set("reply", text)
			if render, _ := cmd.Flags().GetBool("render"); render && isTerminal(os.Stdout) {
				text = renderMarkdown(text)
			}
			out.Result(text)
			return nil
		},
	}
	c.Flags().Bool("render", false, "Render the reply as markdown")
	return c
}

func newPingCmd(p provider.Provider) *cobra.Command {
	name := p.Letter() + "ping"
	return &cobra.Command{
		Use:   name,
		Short: fmt.Sprintf("Check the %s session and pane", p.DisplayName()),
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, done, err := openBridge(cmd, p)
			if err != nil {
				return err
			}
			defer done()

			msg, err := c.Ping()
			if err != nil {
				return err
			}
			out.Set("provider", p.Name())
			out.Set("ok", true)
			out.Set("pane", c.Session.PaneID)
			out.Result(msg)
			return nil
		},
	}
}

// openBridge opens the provider session of the current directory with
// history, notifications and the project timeout action wired in. done
// releases the history database.
func openBridge(cmd *cobra.Command, p provider.Provider) (*provider.Communicator, func(), error) {
	d, err := newDeps()
	if err != nil {
		return nil, nil, err
	}
	cfg, err := d.projectConfig()
	if err != nil {
		return nil, nil, err
	}

	var status io.Writer = cmd.ErrOrStderr()
	if out.Quiet() || out.JSON() {
		status = io.Discard
	}
	opts := provider.Options{
		Status:        status,
		Input:         cmd.InOrStdin(),
		Interactive:   isTerminal(os.Stdin) && isTerminal(os.Stderr) && !out.JSON(),
		TimeoutAction: cfg.TimeoutAction,
		WaitIdle:      true,
	}

	var titles io.Writer
	if isTerminal(os.Stderr) {
		titles = os.Stderr
	}
	core.NewNotifier(titles).Hooks(&opts)

	done := func() {}
	if h := d.history(cmd.Context()); h != nil {
		opts.Recorder = h
		done = func() { _ = h.Close() }
	}

	c, err := provider.Open(p, d.workDir, opts)
	if err != nil {
		done()
		return nil, nil, err
	}
	return c, done, nil
}
