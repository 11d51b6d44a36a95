package cmd

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gitmzc/claude-code-bridge/internal/core"
	"github.com/gitmzc/claude-code-bridge/internal/core/provider"
)

var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "Send one message to several providers and collect the replies",
	Long: `Send the same message to every selected provider at once and print each
reply under its own header. Providers default to default_providers in
.ccb-config.json.

The command succeeds when at least one provider replied.

Examples:
  ccb ask "review the diff in HEAD"
  ccb ask -p codex,gemini -t 120 "which approach is simpler?"
  ccb ask --no-wait "start on the migration"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		msg, err := readMessage(args, cmd.InOrStdin())
		if err != nil {
			return err
		}
		d, err := newDeps()
		if err != nil {
			return err
		}
		cfg, err := d.projectConfig()
		if err != nil {
			return err
		}
		flag, _ := cmd.Flags().GetString("providers")
		ps, err := resolveProviders(flag, cfg.Providers())
		if err != nil {
			return err
		}

		noWait, _ := cmd.Flags().GetBool("no-wait")
		opts := core.BroadcastOptions{NoWait: noWait, Timeout: broadcastTimeout(ps)}
		if secs, _ := cmd.Flags().GetFloat64("timeout"); secs >= 0 {
			opts.Timeout = time.Duration(secs * float64(time.Second))
		}
		if h := d.history(cmd.Context()); h != nil {
			defer h.Close()
			opts.Recorder = h
		}

		if !noWait {
			out.Printf("Asking %d providers...\n", len(ps))
		}
		results := core.Broadcast(cmd.Context(), ps, d.workDir, msg, opts)
		for _, r := range results {
			out.Set(r.Provider, r)
		}
		out.Result(core.FormatBroadcast(results, isTerminal(os.Stdout)))

		if !core.AnySucceeded(results) {
			return core.NewExitError(core.ExitGeneralError, errNoProviderReplied)
		}
		return nil
	},
}

// broadcastTimeout is the longest default timeout of ps, or zero when any
// of them waits forever.
func broadcastTimeout(ps []provider.Provider) time.Duration {
	var longest time.Duration
	for _, p := range ps {
		t := provider.SyncTimeout(p)
		if t == 0 {
			return 0
		}
		longest = max(longest, t)
	}
	return longest
}

func init() {
	askCmd.Flags().StringP("providers", "p", "", "Comma-separated providers (e.g. codex,gemini)")
	askCmd.Flags().Bool("no-wait", false, "Send without waiting for replies")
	askCmd.Flags().Float64P("timeout", "t", -1, "Seconds to wait for each reply (0 = no limit)")
	rootCmd.AddCommand(askCmd)
}
