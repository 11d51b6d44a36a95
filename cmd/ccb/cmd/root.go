package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gitmzc/claude-code-bridge/internal/core"
	"github.com/gitmzc/claude-code-bridge/internal/core/provider"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

var (
	flagQuiet bool
	flagJSON  bool
	flagDebug bool

	// out is created before any command runs and flushed by Main.
	out       *core.Output
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "ccb",
	Short: "Claude Code Bridge - talk to Codex and Gemini panes from Claude",
	Long: `ccb lets Claude Code forward messages to Codex and Gemini CLI sessions
running in sibling terminal panes (WezTerm, iTerm2 or tmux) and read their
replies back from the session transcripts.

Start a bridged session with 'ccb up', then use the bridge commands:
  cask / gask       send a message and return immediately
  cask-w / gask-w   send a message and wait for the reply
  cpend / gpend     print the latest reply
  cping / gping     check the connection`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		info := core.VersionInfo{Version: Version, Commit: Commit, Date: Date}
		if out.JSON() {
			out.Set("version", info)
			return nil
		}
		out.Result("ccb " + info.String())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress informational output")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Print one JSON object instead of text")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Log debug output to stderr")
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return core.NewExitError(core.ExitUsageError, err)
	})
	rootCmd.AddCommand(versionCmd)
}

// setup runs before every command: output mode, logging and env files.
func setup(cmd *cobra.Command, _ []string) error {
	out = core.NewOutput(cmd.OutOrStdout(), cmd.ErrOrStderr(), flagQuiet, flagJSON)

	if cm, err := core.NewConfigManager(); err == nil {
		logCloser = core.SetupLogging(core.LogOptions{Dir: cm.LogDir(), Debug: flagDebug, Stderr: cmd.ErrOrStderr()})
	}
	if wd, err := os.Getwd(); err == nil {
		if err := core.NewEnvResolver(wd, "").Load(); err != nil {
			log.Warn().Err(err).Msg("env files")
		}
	}
	log.Debug().Str("command", cmd.CommandPath()).Str("version", Version).Msg("start")
	return nil
}

// Main runs ccb with the given argv and returns the exit code. Invoked as
// one of the bridge commands (cask, gpend, ...) it dispatches to that
// sub-command.
func Main(argv []string) int {
	args := argv[1:]
	name := strings.TrimSuffix(filepath.Base(argv[0]), ".exe")
	if _, _, ok := provider.ByCommand(name); ok {
		args = append([]string{name}, args...)
	}
	return Run(args, os.Stdout, os.Stderr)
}

// Run executes the command tree with args.
func Run(args []string, stdout, stderr io.Writer) int {
	out, logCloser = nil, nil
	flagQuiet, flagJSON, flagDebug = false, false, false

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	err := rootCmd.ExecuteContext(ctx)
	if err != nil && isCobraUsageError(err) {
		err = core.NewExitError(core.ExitUsageError, err)
	}

	if out == nil {
		// Failed before setup, e.g. an unknown command.
		out = core.NewOutput(stdout, stderr, false, flagJSON)
	}
	code := core.ExitCodeFor(err)
	if err != nil {
		log.Debug().Err(err).Int("code", code).Msg("command failed")
		if out.JSON() {
			out.SetError(err)
		} else if !errors.Is(err, provider.ErrBackground) {
			fmt.Fprintln(stderr, core.FormatError(err))
		}
	}
	code = out.Flush(code)
	if logCloser != nil {
		_ = logCloser.Close()
	}
	return code
}

func isCobraUsageError(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "unknown command") ||
		strings.HasPrefix(msg, "unknown flag") ||
		strings.HasPrefix(msg, "unknown shorthand flag")
}

// usageArgs turns argument validation failures into USAGE_ERROR.
func usageArgs(v cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := v(cmd, args); err != nil {
			return core.NewExitError(core.ExitUsageError, err)
		}
		return nil
	}
}
