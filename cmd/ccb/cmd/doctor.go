package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/gitmzc/claude-code-bridge/internal/core"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the terminal backend, provider CLIs and ccb integration",
	Long: `Run every environment check ccb depends on: a supported terminal backend,
the codex and gemini binaries, the project sessions and config, the
integration blocks in each AI CLI and the install itself.

Exits non-zero when a required check fails.`,
	Args: usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDeps()
		if err != nil {
			return err
		}
		checks := core.NewDoctor(d.workDir, d.config, core.NewInstaller(Version)).Run(cmd.Context())
		failed := core.Failed(checks)
		out.Set("checks", checks)
		out.Set("failed", failed)

		warn := lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
		bad := lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
		good := lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
		for _, c := range checks {
			mark := good.Render(check(true))
			switch {
			case !c.Passed && c.Required:
				mark = bad.Render(check(false))
			case !c.Passed:
				mark = warn.Render("!")
			}
			line := fmt.Sprintf("%s %s", mark, c.Name)
			if c.Message != "" {
				line += ": " + c.Message
			}
			out.Result(line)
			if !c.Passed && c.Suggestion != "" {
				out.Printf("    %s\n", c.Suggestion)
			}
		}

		if failed > 0 {
			return core.NewExitError(core.ExitGeneralError, fmt.Errorf("%d required check(s) failed", failed))
		}
		out.Printf("\nAll required checks passed.\n")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
