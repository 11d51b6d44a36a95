package cmd

import (
	"github.com/spf13/cobra"

	"github.com/gitmzc/claude-code-bridge/internal/core"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update a git checkout install to the latest main",
	Long: `Compare the install prefix with the latest commit on GitHub and
fast-forward it with git pull. Installs that are not a git checkout are
told to download a new release instead.

Use --check to only report whether an update is available.`,
	Args: usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		u := core.NewUpdater(Version)
		checkOnly, _ := cmd.Flags().GetBool("check")

		if checkOnly {
			res, err := u.Check(cmd.Context())
			if err != nil {
				return err
			}
			out.Set("local", res.Local)
			out.Set("remote", res.Remote)
			out.Set("up_to_date", res.UpToDate)
			out.Printf("Local:  %s\n", res.Local)
			out.Printf("Remote: %s\n", res.Remote)
			if res.UpToDate {
				out.Result("ccb is up to date")
			} else {
				out.Result("An update is available. Run 'ccb update' to install it.")
			}
			return nil
		}

		before := u.Local(cmd.Context())
		summary, err := u.Update(cmd.Context())
		if err != nil {
			return err
		}
		after := u.Local(cmd.Context())
		out.Set("before", before)
		out.Set("after", after)
		out.Set("summary", summary)
		out.Result(summary)
		if before.Commit != after.Commit {
			out.Printf("Updated %s -> %s\n", before, after)
			out.Printf("Run 'ccb install' to refresh the integrations.\n")
		}
		return nil
	},
}

func init() {
	updateCmd.Flags().Bool("check", false, "Only check whether an update is available")
	rootCmd.AddCommand(updateCmd)
}
