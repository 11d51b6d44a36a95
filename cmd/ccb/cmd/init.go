package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gitmzc/claude-code-bridge/internal/core"
	"github.com/gitmzc/claude-code-bridge/internal/core/osutil"
	"github.com/gitmzc/claude-code-bridge/internal/tui"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create .ccb-config.json for this project",
	Long: `Walk through the project settings (terminal, default providers, approval
mode and heartbeat) and write .ccb-config.json. In a git repository the
session files are added to .gitignore.

With --yes, or when stdin is not a terminal, the defaults (merged with
--providers and --auto) are written without asking.`,
	Args: usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDeps()
		if err != nil {
			return err
		}
		cfg, err := d.projectConfig()
		if err != nil {
			return err
		}
		if flag, _ := cmd.Flags().GetString("providers"); flag != "" {
			ps, err := resolveProviders(flag, nil)
			if err != nil {
				return err
			}
			cfg.DefaultProviders = nil
			for _, p := range ps {
				cfg.DefaultProviders = append(cfg.DefaultProviders, p.Name())
			}
		}
		if auto, _ := cmd.Flags().GetBool("auto"); auto {
			cfg.AutoMode = true
		}
		yes, _ := cmd.Flags().GetBool("yes")
		force, _ := cmd.Flags().GetBool("force")

		save := func(c *core.Config, overwrite bool) (string, []string, error) {
			return d.config.InitProject(d.workDir, c, overwrite)
		}

		if yes || out.JSON() || !isTerminal(os.Stdin) || !isTerminal(os.Stdout) {
			path, ignored, err := save(cfg, force)
			if errors.Is(err, core.ErrConfigExists) {
				return core.NewExitError(core.ExitGeneralError, fmt.Errorf("%w; pass --force to overwrite", err))
			}
			if err != nil {
				return err
			}
			reportInit(path, ignored)
			return nil
		}

		res, err := tui.RunInitWizard(tui.InitOptions{
			WorkDir: d.workDir,
			Exists:  osutil.FileExists(core.ProjectConfigPath(d.workDir)) && !force,
			Initial: cfg,
			Save:    save,
		})
		if err != nil {
			return err
		}
		if res.Err != nil {
			return res.Err
		}
		if res.Cancelled {
			out.Printf("Cancelled, nothing written.\n")
			return nil
		}
		reportInit(res.Path, res.Ignored)
		return nil
	},
}

func init() {
	initCmd.Flags().BoolP("yes", "y", false, "Write the defaults without prompting")
	initCmd.Flags().BoolP("force", "f", false, "Overwrite an existing config")
	initCmd.Flags().StringP("providers", "p", "", "Default providers (e.g. codex,gemini)")
	initCmd.Flags().BoolP("auto", "a", false, "Start providers in full-auto mode")
	rootCmd.AddCommand(initCmd)
}

func reportInit(path string, ignored []string) {
	out.Set("path", path)
	out.Set("gitignore", ignored)
	out.Result("Wrote " + path)
	if len(ignored) > 0 {
		out.Printf("Added to .gitignore: %s\n", strings.Join(ignored, ", "))
	}
}
