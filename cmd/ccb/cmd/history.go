package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/gitmzc/claude-code-bridge/internal/core"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent asks and their replies",
	Long: `List the messages sent through the bridge commands and ccb ask, newest
first, with their outcome and how long the reply took. By default only the
current directory is shown.

Examples:
  ccb history
  ccb history -p gemini -n 50
  ccb history --all --search migration
  ccb history --prune 720h`,
	Args: usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDeps()
		if err != nil {
			return err
		}
		h, err := core.OpenHistory(cmd.Context(), d.config.HistoryPath())
		if err != nil {
			return err
		}
		defer h.Close()

		if prune, _ := cmd.Flags().GetDuration("prune"); prune > 0 {
			n, err := h.Prune(cmd.Context(), time.Now().Add(-prune))
			if err != nil {
				return err
			}
			out.Set("pruned", n)
			out.Result(fmt.Sprintf("Removed %d record(s) older than %s", n, units.HumanDuration(prune)))
			return nil
		}

		q := core.HistoryQuery{WorkDir: d.workDir}
		q.Limit, _ = cmd.Flags().GetInt("limit")
		q.Provider, _ = cmd.Flags().GetString("provider")
		q.Search, _ = cmd.Flags().GetString("search")
		if all, _ := cmd.Flags().GetBool("all"); all {
			q.WorkDir = ""
		}
		if q.Limit < 0 {
			return core.NewExitError(core.ExitUsageError, errors.New("--limit must not be negative"))
		}

		records, err := h.List(cmd.Context(), q)
		if err != nil {
			return err
		}
		out.Set("records", records)
		if len(records) == 0 {
			out.Printf("No history yet.\n")
			return nil
		}

		full, _ := cmd.Flags().GetBool("full")
		if full {
			for i, r := range records {
				if i > 0 {
					out.Printf("\n")
				}
				out.Result(fmt.Sprintf("[%s] %s %s (%s)", r.StartedAt.Format(time.DateTime), r.Provider, r.Status, elapsed(r)))
				out.Result("Q: " + r.Question)
				if r.Reply != "" {
					out.Result("A: " + r.Reply)
				}
			}
			return nil
		}

		now := time.Now()
		t := table.New().
			Border(lipgloss.HiddenBorder()).
			Headers("WHEN", "PROVIDER", "STATUS", "TOOK", "QUESTION").
			StyleFunc(func(row, col int) lipgloss.Style {
				s := lipgloss.NewStyle().PaddingRight(2)
				if row == table.HeaderRow {
					return s.Bold(true)
				}
				return s
			})
		width := max(20, terminalWidth()-60)
		for _, r := range records {
			t.Row(units.HumanDuration(now.Sub(r.StartedAt))+" ago", r.Provider, r.Status, elapsed(r), truncate(r.Question, width))
		}
		out.Result(t.Render())
		return nil
	},
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "Number of records to show")
	historyCmd.Flags().StringP("provider", "p", "", "Only show asks to this provider")
	historyCmd.Flags().String("search", "", "Only show asks whose question or reply contains this text")
	historyCmd.Flags().Bool("all", false, "Show every directory, not just the current one")
	historyCmd.Flags().Bool("full", false, "Print the full question and reply")
	historyCmd.Flags().Duration("prune", 0, "Delete records older than this (e.g. 720h) and exit")
	rootCmd.AddCommand(historyCmd)
}

func elapsed(r core.AskRecord) string {
	if r.FinishedAt == nil {
		return "-"
	}
	return (time.Duration(r.ElapsedMS) * time.Millisecond).Round(100 * time.Millisecond).String()
}

// truncate shortens s to one line of at most n runes.
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
