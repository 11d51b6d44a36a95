package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gitmzc/claude-code-bridge/internal/core"
	"github.com/gitmzc/claude-code-bridge/internal/core/system"
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install ccb, the bridge commands and the AI CLI integrations",
	Long: `Copy the ccb binary into the install prefix, link the bridge commands
(cask, cpend, gask, ...) into the bin directory and patch the user config of
each AI CLI:

  Claude Code   ~/.claude/CLAUDE.md rules, settings.json permissions, skills
  Codex         ~/.codex/AGENTS.md rules, config.toml block
  Gemini CLI    ~/.gemini/GEMINI.md rules

Every edit is a marked block that install replaces and uninstall removes.
Running install twice changes nothing.

The prefix is CODEX_INSTALL_PREFIX (default ~/.local/share/codex-dual) and
the bin directory CODEX_BIN_DIR (default ~/.local/bin).`,
	Args: usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := installOptions(cmd)
		if err != nil {
			return err
		}
		inst := core.NewInstaller(Version)
		res, err := inst.Install(opts)
		printChanges(res, opts.DryRun)
		if res != nil && res.PathHint != "" {
			out.Set("path_hint", res.PathHint)
			out.Printf("\n%s\n", res.PathHint)
		}
		if err != nil {
			return err
		}
		out.Printf("\nInstalled ccb %s to %s\n", Version, inst.Prefix)
		return nil
	},
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove ccb, its bridge commands and every integration block",
	Long: `Undo install: remove the bridge command links, the marked blocks in
CLAUDE.md, AGENTS.md, GEMINI.md, config.toml and the shell rc file, the
settings.json permissions ccb added and the install prefix.

Files that were not created by ccb are left alone.`,
	Args: usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := installOptions(cmd)
		if err != nil {
			return err
		}
		res, err := core.NewInstaller(Version).Uninstall(opts)
		printChanges(res, opts.DryRun)
		if err != nil {
			return err
		}
		out.Printf("\nccb uninstalled\n")
		return nil
	},
}

func init() {
	installCmd.Flags().Bool("skip-deps", false, "Install even when no terminal backend is found")
	for _, c := range []*cobra.Command{installCmd, uninstallCmd} {
		c.Flags().Bool("no-path", false, "Do not touch shell rc files")
		c.Flags().Bool("dry-run", false, "Show what would change without writing")
		c.Flags().StringSlice("systems", nil, "Only configure these CLIs ("+strings.Join(system.Names(system.All()), ", ")+")")
		rootCmd.AddCommand(c)
	}
}

func installOptions(cmd *cobra.Command) (core.InstallOptions, error) {
	var opts core.InstallOptions
	if f := cmd.Flags().Lookup("skip-deps"); f != nil {
		opts.SkipDeps, _ = cmd.Flags().GetBool("skip-deps")
	}
	opts.NoPath, _ = cmd.Flags().GetBool("no-path")
	opts.DryRun, _ = cmd.Flags().GetBool("dry-run")
	if names, _ := cmd.Flags().GetStringSlice("systems"); len(names) > 0 {
		ss, err := system.ByNames(names)
		if err != nil {
			return opts, core.NewExitError(core.ExitUsageError, err)
		}
		opts.Systems = ss
	}
	return opts, nil
}

// printChanges lists every file touched by install or uninstall.
func printChanges(res *core.InstallResult, dryRun bool) {
	if res == nil {
		return
	}
	out.Set("dry_run", dryRun)
	out.Set("changes", res.Changes)
	if dryRun {
		out.Printf("Dry run, nothing is written.\n\n")
	}
	width := 0
	for _, c := range res.Changes {
		width = max(width, len(c.Action))
	}
	for _, c := range res.Changes {
		line := fmt.Sprintf("  %-*s  %s", width, c.Action, tildePath(c.Target))
		if c.Detail != "" {
			line += "  (" + c.Detail + ")"
		}
		out.Printf("%s\n", line)
	}
}
