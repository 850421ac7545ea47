package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"lintgate/internal/lint"
	"lintgate/internal/watch"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	watchTools     []string
	watchNoInitial bool
)

// watchCmd re-runs affected invocations on change
var watchCmd = &cobra.Command{
	Use:   "watch [names...]",
	Short: "Re-run invocations when their sources change",
	Long: `Watches the paths checked by the selected invocations and re-runs the
ones whose targets contain a changed file. A change that no target covers
(e.g. a shared config file) re-runs every selected invocation.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringSliceVar(&watchTools, "tool", nil, "Watch only these tools")
	watchCmd.Flags().BoolVar(&watchNoInitial, "no-initial", false, "Do not run the suite before the first change")
}

func runWatch(cmd *cobra.Command, args []string) error {
	suite, err := loadSuite()
	if err != nil {
		return err
	}
	tools, err := parseTools(watchTools)
	if err != nil {
		return err
	}
	selected, err := suite.Select(args, tools)
	if err != nil {
		return err
	}
	if len(selected) == 0 {
		return fmt.Errorf("nothing selected to watch")
	}
	watched, err := lint.NewSuite(suite.Name, selected)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	opts := lint.RunOptions{Jobs: cfg.Run.Jobs, FailFast: cfg.Run.FailFast}

	runOnce := func(ctx context.Context, names []string) {
		o := opts
		o.Only = names
		report, err := executeSuite(ctx, out, watched, o, true)
		if report != nil {
			renderSummary(out, report, false)
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(cmd.ErrOrStderr(), "lintgate: %v\n", err)
		}
	}

	if !watchNoInitial {
		runOnce(ctx, nil)
	}

	targets := watchTargets(watched.Invocations)
	w, err := watch.New(targets, func(ctx context.Context, changed []string) {
		names := affected(watched.Invocations, changed)
		printChanges(out, changed, names)
		runOnce(ctx, names)
	}, watch.Options{Debounce: cfg.GetDebounce()})
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer w.Stop()

	logger.Info("Watching", zap.Strings("targets", targets), zap.Strings("invocations", watched.Names()))
	fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("Watching %d path(s) for %d invocation(s). Press Ctrl-C to stop.", len(targets), len(selected))))

	select {
	case <-ctx.Done():
	case <-w.Done():
	}
	return nil
}

// watchTargets returns the de-duplicated target paths of invs followed by
// any checker config files in the root.
func watchTargets(invs []lint.Invocation) []string {
	seen := make(map[string]bool)
	var targets []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			targets = append(targets, p)
		}
	}
	for _, inv := range invs {
		for _, t := range inv.TargetPaths(root) {
			add(t)
		}
	}
	for _, name := range watch.ConfigFiles {
		p := filepath.Join(root, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			add(p)
		}
	}
	return targets
}

// affected returns the names of invocations covering any changed path, or
// nil (meaning all) when none does.
func affected(invs []lint.Invocation, changed []string) []string {
	var names []string
	for _, inv := range invs {
		for _, path := range changed {
			if inv.Covers(root, path) {
				names = append(names, inv.Name)
				break
			}
		}
	}
	return names
}

func printChanges(out io.Writer, changed, names []string) {
	fmt.Fprintln(out)
	for _, path := range changed {
		fmt.Fprintln(out, mutedStyle.Render("changed: "+relDir(path)))
	}
	if len(names) == 0 {
		fmt.Fprintln(out, mutedStyle.Render("re-running all invocations"))
	}
}
