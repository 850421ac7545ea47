package main

import (
	"context"
	"fmt"
	"io"

	"lintgate/internal/history"
	"lintgate/internal/lint"
	"lintgate/internal/logging"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	runOnly     []string
	runTools    []string
	runJobs     int
	runFailFast bool
	runJSON     bool
	runRecord   bool
	runQuiet    bool
)

// runCmd runs the suite
var runCmd = &cobra.Command{
	Use:   "run [names...]",
	Short: "Run the lint suite",
	Long: `Runs every invocation in the suite, or the ones named. Names may be
glob patterns such as 'pylint_*'. Exits non-zero if any invocation failed.

Examples:
  lintgate run
  lintgate run flake8_pkg mypy_pkg
  lintgate run --tool pylint --jobs 4`,
	RunE: runSuite,
}

func init() {
	runCmd.Flags().StringSliceVar(&runOnly, "only", nil, "Run only these invocations (names or globs)")
	runCmd.Flags().StringSliceVar(&runTools, "tool", nil, "Run only these tools (flake8, isort, mypy, pylint, module)")
	runCmd.Flags().IntVarP(&runJobs, "jobs", "j", 0, "Run up to N invocations concurrently (default from config)")
	runCmd.Flags().BoolVar(&runFailFast, "fail-fast", false, "Skip remaining invocations after the first failure")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Print the report as JSON")
	runCmd.Flags().BoolVar(&runRecord, "record", false, "Record the run in the history database")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Hide tool output of passing invocations")
}

func runSuite(cmd *cobra.Command, args []string) error {
	suite, err := loadSuite()
	if err != nil {
		return err
	}
	tools, err := parseTools(runTools)
	if err != nil {
		return err
	}

	opts := lint.RunOptions{
		Only:     append(append([]string(nil), args...), runOnly...),
		Tools:    tools,
		Jobs:     cfg.Run.Jobs,
		FailFast: runFailFast || cfg.Run.FailFast,
	}
	if runJobs > 0 {
		opts.Jobs = runJobs
	}

	report, err := executeSuite(cmd.Context(), cmd.OutOrStdout(), suite, opts, !runJSON && !runQuiet)
	if report == nil {
		return err
	}

	if runRecord || cfg.History.Enabled {
		recordRun(cmd.Context(), cmd.ErrOrStderr(), report)
	}

	if runJSON {
		if werr := report.WriteJSON(cmd.OutOrStdout()); werr != nil {
			return werr
		}
	} else {
		renderSummary(cmd.OutOrStdout(), report, runQuiet)
	}

	if err != nil {
		return err
	}
	if !report.Passed() {
		return fmt.Errorf("%w: %d of %d invocation(s) failed", errLintFailed, len(report.Failed()), len(report.Results))
	}
	return nil
}

// executeSuite runs the suite, streaming progress to out when live is set.
// It is shared by run and watch.
func executeSuite(ctx context.Context, out io.Writer, suite *lint.Suite, opts lint.RunOptions, live bool) (*lint.Report, error) {
	runner := newRunner()
	opts.RunID = uuid.NewString()

	if live {
		if opts.Jobs > 1 {
			opts.OnFinish = func(res *lint.Result, _ error) {
				renderStart(out, lint.Invocation{Name: res.Name}, res.Argv)
				renderOutput(out, res)
				renderResultLine(out, res, len(res.Name))
			}
		} else {
			opts.Output = out
			opts.OnStart = func(inv lint.Invocation) {
				renderStart(out, inv, runner.Argv(inv))
			}
			opts.OnFinish = func(res *lint.Result, _ error) {
				renderResultLine(out, res, len(res.Name))
			}
		}
	}

	audit := logging.AuditWithRun(opts.RunID)
	audit.RunStart(opts.RunID, suite.Name, len(suite.Invocations))
	logger.Debug("Running suite",
		zap.String("run_id", opts.RunID),
		zap.String("suite", suite.Name),
		zap.Int("jobs", opts.Jobs),
		zap.Bool("fail_fast", opts.FailFast))

	report, err := runner.RunSuite(ctx, suite, opts)
	if report != nil {
		passed, failed, skipped := report.Counts()
		audit.RunEnd(report.RunID, passed, failed, skipped, report.Duration().Milliseconds())
		logger.Info("Suite finished",
			zap.String("run_id", report.RunID),
			zap.Int("passed", passed),
			zap.Int("failed", failed),
			zap.Int("skipped", skipped))
	}
	return report, err
}

// recordRun stores report in the history database. Failures are reported
// but do not change the outcome of the run.
func recordRun(ctx context.Context, errOut io.Writer, report *lint.Report) {
	path := cfg.HistoryPath(root)
	store, err := history.Open(path)
	if err != nil {
		fmt.Fprintf(errOut, "lintgate: history disabled: %v\n", err)
		return
	}
	defer store.Close()

	if err := store.RecordReport(context.WithoutCancel(ctx), report); err != nil {
		fmt.Fprintf(errOut, "lintgate: failed to record run: %v\n", err)
		return
	}
	logger.Debug("Run recorded", zap.String("run_id", report.RunID), zap.String("db", path))
}
