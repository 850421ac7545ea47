package lint

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"lintgate/internal/logging"
	"lintgate/internal/tactile"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DefaultPython is used when no interpreter is configured.
const DefaultPython = "python3"

// Tags set on every tactile.Command the runner executes. TagRunID is only
// present for commands run as part of RunSuite.
const (
	TagInvocation = "invocation"
	TagTool       = "tool"
	TagRunID      = "run"
)

// RunnerConfig controls where and with what interpreter invocations run.
type RunnerConfig struct {
	// Root is the directory invocation paths are relative to.
	// Empty means the current working directory.
	Root string

	// Python is the interpreter used for `python -m` invocations.
	Python string
}

// Runner turns invocations into child processes.
type Runner struct {
	executor tactile.Executor
	root     string
	python   string
}

// NewRunner creates a runner that executes through executor.
func NewRunner(executor tactile.Executor, cfg RunnerConfig) *Runner {
	root := cfg.Root
	if root == "" {
		root, _ = os.Getwd()
	}
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	python := cfg.Python
	if python == "" {
		python = DefaultPython
	}
	return &Runner{executor: executor, root: root, python: python}
}

// Root returns the absolute root directory.
func (r *Runner) Root() string { return r.root }

// Python returns the configured interpreter.
func (r *Runner) Python() string { return r.python }

// Capabilities describes the executor behind the runner.
func (r *Runner) Capabilities() tactile.ExecutorCapabilities {
	return r.executor.Capabilities()
}

// Argv returns the command line inv would run, without resolving anything.
func (r *Runner) Argv(inv Invocation) []string {
	return inv.Argv(r.python)
}

// resolveArgv resolves the executable of inv to an absolute path. A
// relative path containing a separator, whether the interpreter or a
// Binary, is taken relative to the root so it does not depend on the
// invocation's working directory.
func (r *Runner) resolveArgv(inv Invocation) ([]string, error) {
	argv := inv.Argv(r.python)
	exe := argv[0]
	if strings.ContainsRune(exe, filepath.Separator) && !filepath.IsAbs(exe) {
		exe = filepath.Join(r.root, exe)
	}
	resolved, err := exec.LookPath(exe)
	if err != nil {
		return argv, fmt.Errorf("%w: %s: %v", ErrToolNotFound, exe, err)
	}
	if abs, err := filepath.Abs(resolved); err == nil {
		resolved = abs
	}
	argv[0] = resolved
	return argv, nil
}

// Run executes one invocation. It returns a nil error only when the tool
// exited zero. A non-zero exit yields a *ToolError carrying the tool's output.
func (r *Runner) Run(ctx context.Context, inv Invocation) (*Result, error) {
	return r.run(ctx, inv, "", nil, nil)
}

// RunStreaming is Run with the tool's output also copied to w as it is produced.
func (r *Runner) RunStreaming(ctx context.Context, inv Invocation, w io.Writer) (*Result, error) {
	return r.run(ctx, inv, "", w, w)
}

func (r *Runner) run(ctx context.Context, inv Invocation, runID string, stdout, stderr io.Writer) (*Result, error) {
	res := &Result{
		Name:      inv.Name,
		Tool:      inv.Tool,
		Argv:      inv.Argv(r.python),
		Dir:       inv.ResolveDir(r.root),
		Env:       inv.EnvList(),
		ExitCode:  -1,
		StartedAt: time.Now(),
	}
	fail := func(err error) (*Result, error) {
		res.Error = err.Error()
		res.Duration = time.Since(res.StartedAt)
		logging.SuiteWarn("%s: %v", inv.Name, err)
		return res, err
	}

	if err := inv.Validate(); err != nil {
		return fail(err)
	}

	argv, err := r.resolveArgv(inv)
	if err != nil {
		return fail(fmt.Errorf("%s: %w", inv.Name, err))
	}

	if info, err := os.Stat(res.Dir); err != nil {
		return fail(fmt.Errorf("%s: working directory: %w", inv.Name, err))
	} else if !info.IsDir() {
		return fail(fmt.Errorf("%s: working directory %s is not a directory", inv.Name, res.Dir))
	}

	cmd := tactile.Command{
		Binary:           argv[0],
		Arguments:        argv[1:],
		WorkingDirectory: res.Dir,
		Environment:      inv.Env,
		Stdout:           stdout,
		Stderr:           stderr,
		RequestID:        uuid.NewString(),
		Tags: map[string]string{
			TagInvocation: inv.Name,
			TagTool:       string(inv.Tool),
		},
	}
	if runID != "" {
		cmd.Tags[TagRunID] = runID
	}
	if inv.Timeout > 0 {
		// Sub-millisecond timeouts round up; zero would mean the default.
		ms := max(inv.Timeout.Milliseconds(), 1)
		cmd.Limits = &tactile.ResourceLimits{TimeoutMs: ms}
	}

	logging.SuiteDebug("%s: %s (dir=%s, env=%v)", inv.Name, cmd.CommandString(), res.Dir, res.Env)

	execRes, err := r.executor.Execute(ctx, cmd)
	if err != nil {
		return fail(fmt.Errorf("%s: %w", inv.Name, err))
	}

	res.Duration = execRes.Duration
	res.Output = execRes.Output()
	res.Truncated = execRes.Truncated
	res.ExitCode = execRes.ExitCode
	if ru := execRes.ResourceUsage; ru != nil {
		res.CPUTime = time.Duration(ru.TotalCPUTimeMs()) * time.Millisecond
		res.MaxRSSBytes = ru.MaxRSSBytes
	}

	switch {
	case execRes.IsError():
		return fail(fmt.Errorf("%s: %s", inv.Name, execRes.Error))

	case execRes.Killed && ctx.Err() != nil:
		res.Skipped = true
		res.Error = "canceled"
		return res, fmt.Errorf("%s: %w", inv.Name, ctx.Err())

	case execRes.Killed, execRes.ExitCode != 0:
		toolErr := &ToolError{
			Name:     inv.Name,
			Argv:     res.Argv,
			Dir:      res.Dir,
			ExitCode: execRes.ExitCode,
			Output:   res.Output,
			Killed:   execRes.Killed,
			Reason:   execRes.KillReason,
		}
		if toolErr.Killed {
			res.Error = "killed: " + toolErr.Reason
		} else {
			res.Error = fmt.Sprintf("exit status %d", toolErr.ExitCode)
		}
		logging.SuiteWarn("%s failed: %s", inv.Name, res.Error)
		return res, toolErr
	}

	res.Passed = true
	logging.Suite("%s passed in %s", inv.Name, res.Duration)
	return res, nil
}

// RunOptions controls suite execution.
type RunOptions struct {
	// RunID identifies the run. A random id is generated when empty.
	RunID string

	// Only selects invocations by name or glob pattern.
	Only []string

	// Tools selects invocations by tool kind.
	Tools []Tool

	// Jobs bounds concurrent invocations. Values below 2 run sequentially.
	Jobs int

	// FailFast skips remaining invocations after the first failure.
	FailFast bool

	// Output receives tool output live. It is only used for sequential runs;
	// concurrent runs leave output in each Result.
	Output io.Writer

	// OnStart and OnFinish are called around each invocation. Calls are
	// serialized, so they may write to a shared terminal.
	OnStart  func(inv Invocation)
	OnFinish func(res *Result, err error)
}

// RunSuite runs the selected invocations of suite and reports every result
// in table order. A failing tool never makes RunSuite return an error; check
// Report.Passed. An error is returned for a bad selection or when ctx is
// canceled, in which case the partial report is still returned.
func (r *Runner) RunSuite(ctx context.Context, suite *Suite, opts RunOptions) (*Report, error) {
	selected, err := suite.Select(opts.Only, opts.Tools)
	if err != nil {
		return nil, err
	}

	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	report := &Report{
		RunID:     runID,
		Suite:     suite.Name,
		Root:      r.root,
		Python:    r.python,
		StartedAt: time.Now(),
		Results:   make([]*Result, len(selected)),
	}

	logging.Suite("Run %s: %d invocation(s), jobs=%d, failFast=%v", report.RunID, len(selected), opts.Jobs, opts.FailFast)
	timer := logging.StartTimer(logging.CategorySuite, "suite "+suite.Name)

	var hookMu sync.Mutex
	onStart := func(inv Invocation) {
		if opts.OnStart != nil {
			hookMu.Lock()
			defer hookMu.Unlock()
			opts.OnStart(inv)
		}
	}
	onFinish := func(res *Result, err error) {
		if opts.OnFinish != nil {
			hookMu.Lock()
			defer hookMu.Unlock()
			opts.OnFinish(res, err)
		}
	}

	if opts.Jobs > 1 {
		r.runConcurrent(ctx, selected, report, opts, onStart, onFinish)
	} else {
		r.runSequential(ctx, selected, report, opts, onStart, onFinish)
	}

	report.FinishedAt = time.Now()
	timer.Stop()

	passed, failed, skipped := report.Counts()
	logging.Suite("Run %s finished: %d passed, %d failed, %d skipped", report.RunID, passed, failed, skipped)

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func (r *Runner) runSequential(ctx context.Context, selected []Invocation, report *Report, opts RunOptions,
	onStart func(Invocation), onFinish func(*Result, error)) {
	failed := false
	for i, inv := range selected {
		switch {
		case ctx.Err() != nil:
			report.Results[i] = skippedResult(inv, r, "canceled")
			continue
		case opts.FailFast && failed:
			report.Results[i] = skippedResult(inv, r, "skipped after earlier failure")
			continue
		}

		onStart(inv)
		res, err := r.run(ctx, inv, report.RunID, opts.Output, opts.Output)
		report.Results[i] = res
		onFinish(res, err)

		if !res.Passed && !res.Skipped {
			failed = true
		}
	}
}

var errStopAfterFailure = errors.New("stop after failure")

func (r *Runner) runConcurrent(ctx context.Context, selected []Invocation, report *Report, opts RunOptions,
	onStart func(Invocation), onFinish func(*Result, error)) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Jobs)

	for i, inv := range selected {
		i, inv := i, inv
		g.Go(func() error {
			if gctx.Err() != nil {
				reason := "canceled"
				if ctx.Err() == nil {
					reason = "skipped after earlier failure"
				}
				report.Results[i] = skippedResult(inv, r, reason)
				return nil
			}

			onStart(inv)
			res, err := r.run(gctx, inv, report.RunID, nil, nil)
			if res.Skipped && ctx.Err() == nil {
				res.Error = "canceled after earlier failure"
			}
			report.Results[i] = res
			onFinish(res, err)

			if opts.FailFast && !res.Passed && !res.Skipped {
				return errStopAfterFailure
			}
			return nil
		})
	}
	_ = g.Wait()
}

func skippedResult(inv Invocation, r *Runner, reason string) *Result {
	return &Result{
		Name:     inv.Name,
		Tool:     inv.Tool,
		Argv:     inv.Argv(r.python),
		Dir:      inv.ResolveDir(r.root),
		Env:      inv.EnvList(),
		ExitCode: -1,
		Skipped:  true,
		Error:    reason,
	}
}
