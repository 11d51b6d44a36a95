package cmd

import (
	"github.com/spf13/cobra"

	"github.com/gitmzc/claude-code-bridge/internal/core"
)

var upCmd = &cobra.Command{
	Use:   "up [provider...]",
	Short: "Start provider panes and run Claude with the bridge",
	Long: `Start Codex and/or Gemini in new panes of the current terminal, write the
project session files and run Claude in the foreground with the bridge
environment. The panes are closed when Claude exits.

Providers default to default_providers in .ccb-config.json, else codex.

Examples:
  ccb up                 Codex only
  ccb up codex gemini    both providers
  ccb up -r -a gemini    resume the last Gemini chat in full-auto mode
  ccb up --no-claude     start the panes and return`,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDeps()
		if err != nil {
			return err
		}
		cfg, err := d.projectConfig()
		if err != nil {
			return err
		}

		resume, _ := cmd.Flags().GetBool("resume")
		auto, _ := cmd.Flags().GetBool("auto")
		noClaude, _ := cmd.Flags().GetBool("no-claude")
		newTab, _ := cmd.Flags().GetBool("new-tab")

		l, err := core.NewLauncher(cfg, nil, core.LaunchOptions{
			Providers: args,
			Resume:    resume,
			Auto:      auto || cfg.AutoMode,
			NoClaude:  noClaude,
			NewTab:    newTab,
			WorkDir:   d.workDir,
			Out:       out.Writer(),
		})
		if err != nil {
			return err
		}

		code, err := l.Up(cmd.Context())
		if err != nil {
			return err
		}
		out.Set("session_id", l.SessionID)
		out.Set("panes", l.Panes())
		if code != 0 {
			return &core.ExitError{Code: code, Detail: "claude exited with a failure status"}
		}
		return nil
	},
}

func init() {
	upCmd.Flags().BoolP("resume", "r", false, "Resume the previous provider and Claude conversations")
	upCmd.Flags().BoolP("auto", "a", false, "Start providers and Claude without approval prompts")
	upCmd.Flags().Bool("no-claude", false, "Only start the provider panes")
	upCmd.Flags().Bool("new-tab", false, "Open the providers in a new tab instead of splitting")
	rootCmd.AddCommand(upCmd)
}
