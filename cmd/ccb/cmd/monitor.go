package cmd

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gitmzc/claude-code-bridge/internal/core"
	"github.com/gitmzc/claude-code-bridge/internal/core/provider"
	"github.com/gitmzc/claude-code-bridge/internal/tui"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch provider replies as they arrive",
	Long: `Open a full-screen view that follows the session transcripts of this
project and shows every new provider reply.

With --keepalive, a provider whose reply announces a next step ("Next: ...")
is reminded to continue after CCB_KEEPALIVE_DELAY seconds (default 60),
unless it is still busy or replied again in the meantime.

Keys: tab filter, r markdown, c clear, G follow, a keepalive, n nudge, q quit.`,
	Args: usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !isTerminal(os.Stdout) {
			return core.NewExitError(core.ExitUsageError, errors.New("ccb monitor needs an interactive terminal"))
		}
		d, err := newDeps()
		if err != nil {
			return err
		}
		flag, _ := cmd.Flags().GetString("providers")
		ps, err := resolveProviders(flag, provider.Names(provider.All()))
		if err != nil {
			return err
		}

		ka := core.NewKeepalive()
		if cmd.Flags().Changed("keepalive") {
			ka.Enabled, _ = cmd.Flags().GetBool("keepalive")
		}
		if delay, _ := cmd.Flags().GetDuration("delay"); delay > 0 {
			ka.Delay = delay
		}
		targets := core.NewPaneTargets(cmd.Context(), d.workDir, provider.Options{Status: io.Discard})
		render, _ := cmd.Flags().GetBool("render")
		interval, _ := cmd.Flags().GetDuration("interval")

		return tui.RunMonitor(tui.MonitorOptions{
			WorkDir:   d.workDir,
			Providers: ps,
			Interval:  interval,
			Render:    render,
			Keepalive: ka,
			Send:      targets.Send,
			Busy:      targets.Busy,
		})
	},
}

func init() {
	monitorCmd.Flags().StringP("providers", "p", "", "Providers to watch (default codex,gemini)")
	monitorCmd.Flags().Bool("keepalive", false, "Remind providers to continue announced next steps")
	monitorCmd.Flags().Duration("delay", 0, "Keepalive delay (default CCB_KEEPALIVE_DELAY or 60s)")
	monitorCmd.Flags().Bool("render", false, "Render replies as markdown")
	monitorCmd.Flags().Duration("interval", 500*time.Millisecond, "Transcript poll interval")
	rootCmd.AddCommand(monitorCmd)
}
