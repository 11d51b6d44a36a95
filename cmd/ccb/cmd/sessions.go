package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/gitmzc/claude-code-bridge/internal/core"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the bridge sessions of the current directory",
	Long: `Show every session file of the current directory with its pane, whether
the pane is still alive and the transcript it is bound to.

States:
  running   the pane is alive
  dead      the session is active but its pane is gone
  stopped   no session, or it was shut down cleanly
  invalid   the session file cannot be read`,
	Args: usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDeps()
		if err != nil {
			return err
		}
		sts := core.Status(d.workDir, nil)
		out.Set("work_dir", d.workDir)
		out.Set("sessions", sts)

		out.Printf("Sessions in %s\n\n", d.workDir)
		t := table.New().
			Border(lipgloss.HiddenBorder()).
			Headers("SESSION", "STATE", "TERMINAL", "PANE", "TRANSCRIPT", "SIZE").
			StyleFunc(func(row, col int) lipgloss.Style {
				s := lipgloss.NewStyle().PaddingRight(2)
				if row == table.HeaderRow {
					return s.Bold(true)
				}
				if col == 1 {
					return s.Foreground(stateColor(sts[row].State))
				}
				return s
			})
		for _, st := range sts {
			transcript := "-"
			if st.Transcript != "" {
				transcript = filepath.Base(st.Transcript)
			}
			t.Row(st.Name, st.State, dash(st.Terminal), dash(st.Pane), transcript, dash(st.Size))
		}
		out.Result(t.Render())

		for _, st := range sts {
			if st.Detail != "" {
				out.Printf("%s: %s\n", st.Name, st.Detail)
			}
		}
		return nil
	},
}

var killCmd = &cobra.Command{
	Use:   "kill [session...]",
	Short: "Close provider panes and end their sessions",
	Long: `Close the panes of the named sessions (all of them by default), mark the
session files inactive and remove their runtime directories.

The Claude pane is never closed; its session is only marked inactive.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDeps()
		if err != nil {
			return err
		}
		results, err := core.Kill(d.workDir, args, nil)
		if err != nil {
			return err
		}
		out.Set("results", results)
		for _, r := range results {
			mark := "-"
			if r.Killed {
				mark = check(true)
			}
			line := fmt.Sprintf("%s %s", mark, r.Name)
			if r.Detail != "" {
				line += " (" + r.Detail + ")"
			}
			out.Result(line)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(killCmd)
}

func stateColor(state string) lipgloss.Color {
	switch state {
	case core.StateRunning:
		return lipgloss.Color("10")
	case core.StateDead, core.StateInvalid:
		return lipgloss.Color("9")
	}
	return lipgloss.Color("8")
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
