package main

import (
	"encoding/json"
	"fmt"

	"lintgate/internal/history"

	"github.com/spf13/cobra"
)

var (
	historyLimit int
	historyJSON  bool
	historyPrune int
)

// historyCmd shows recorded runs
var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Show recorded runs",
	Long: `Without arguments, lists recent runs recorded with 'lintgate run --record'.
With a run id (or a unique prefix of one), shows that run's results.`,
	Args: cobra.MaximumNArgs(1),
	RunE: showHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to list")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Print as JSON")
	historyCmd.Flags().IntVar(&historyPrune, "prune", -1, "Delete all but the newest N runs")
}

func showHistory(cmd *cobra.Command, args []string) error {
	store, err := history.Open(cfg.HistoryPath(root))
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if historyPrune >= 0 {
		n, err := store.Prune(ctx, historyPrune)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Pruned %d run(s)\n", n)
		return nil
	}

	if len(args) == 1 {
		report, err := store.Report(ctx, args[0])
		if err != nil {
			return err
		}
		if historyJSON {
			return report.WriteJSON(out)
		}
		fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("Run %s (%s) started %s", report.RunID, report.Suite,
			report.StartedAt.Format("2006-01-02 15:04:05"))))
		renderSummary(out, report, true)
		return nil
	}

	runs, err := store.ListRuns(ctx, historyLimit)
	if err != nil {
		return err
	}
	if historyJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No recorded runs. Use 'lintgate run --record'.")
		return nil
	}
	for _, run := range runs {
		label := passStyle.Render("PASS")
		if !run.OK() {
			label = failStyle.Render("FAIL")
		}
		fmt.Fprintf(out, "%s %s  %s  %-10s %d passed, %d failed, %d skipped  %s\n",
			label, shortID(run.ID), run.StartedAt.Format("2006-01-02 15:04:05"), run.Suite,
			run.Passed, run.Failed, run.Skipped, mutedStyle.Render(roundDuration(run.Duration).String()))
	}
	return nil
}
