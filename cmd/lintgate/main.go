// Command lintgate runs a table of Python static-analysis tools (flake8,
// isort, mypy, pylint) as a pass/fail gate.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"lintgate/internal/config"
	"lintgate/internal/lint"
	"lintgate/internal/logging"
	"lintgate/internal/tactile"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose    bool
	configPath string
	rootFlag   string
	pythonFlag string
	timeout    time.Duration

	// Logger
	logger *zap.Logger

	// Resolved settings
	cfg  *config.Config
	root string
)

// errLintFailed is returned when at least one invocation failed.
var errLintFailed = errors.New("lint failed")

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "lintgate",
	Short: "Run Python static-analysis tools as a test gate",
	Long: `lintgate runs a fixed table of static-analysis tool invocations
(flake8, isort, mypy, pylint) against a Python source tree.

Each invocation is its own check: it passes when the tool exits zero and
fails otherwise, with the tool's output shown as the failure reason.
Environment overrides apply to a single tool process only.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		if verbose {
			zcfg = zap.NewDevelopmentConfig()
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return loadSettings()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: <root>/"+config.DefaultFileName+")")
	rootCmd.PersistentFlags().StringVarP(&rootFlag, "root", "r", "", "Python source root (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&pythonFlag, "python", "", "Python interpreter (default: "+lint.DefaultPython+")")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Per-invocation timeout (default from config)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(initCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "lintgate:", err)
		os.Exit(1)
	}
}

// loadSettings resolves config file, flags and environment into cfg and root.
func loadSettings() error {
	base := rootFlag
	if base == "" {
		var err error
		if base, err = os.Getwd(); err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}
	}

	path := configPath
	if path == "" {
		path = filepath.Join(base, config.DefaultFileName)
	}

	loaded, err := config.Load(path)
	if err != nil {
		return err
	}
	if rootFlag != "" {
		loaded.Root = rootFlag
	}
	if pythonFlag != "" {
		loaded.Python = pythonFlag
	}
	if timeout > 0 {
		loaded.Execution.DefaultTimeout = timeout.String()
	}
	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", path, err)
	}

	cfg = loaded
	root = loaded.RootDir(base)

	if err := logging.Initialize(root, cfg.LogConfig()); err != nil {
		logger.Warn("Category logging disabled", zap.Error(err))
	}
	logging.Boot("Config %s, root %s, python %s", path, root, cfg.Python)
	if logging.IsDebugMode() {
		logger.Debug("Category logs enabled", zap.String("dir", filepath.Join(root, ".lintgate", "logs")))
	}
	logger.Debug("Settings loaded",
		zap.String("config", path),
		zap.String("root", root),
		zap.String("python", cfg.Python),
		zap.Duration("timeout", cfg.GetTimeout()))
	return nil
}

// newRunner builds a runner whose executor reports to the audit log.
func newRunner() *lint.Runner {
	ec := cfg.ExecutorConfig()
	ec.AuditCallback = auditExecution
	executor := tactile.NewDirectExecutorWithConfig(ec)
	return lint.NewRunner(executor, lint.RunnerConfig{Root: root, Python: cfg.Python})
}

func auditExecution(e tactile.AuditEvent) {
	a := logging.AuditWithRun(e.Command.Tags[lint.TagRunID])
	name := e.Command.Tags[lint.TagInvocation]
	req := e.Command.RequestID
	switch e.Type {
	case tactile.AuditEventStart:
		a.ToolStart(req, name, e.Command.CommandString())
	case tactile.AuditEventComplete:
		a.ToolComplete(req, name, e.Result.ExitCode, e.Result.Duration.Milliseconds())
	case tactile.AuditEventKilled:
		a.ToolKilled(req, name, e.Result.KillReason, e.Result.Duration.Milliseconds())
	case tactile.AuditEventError:
		a.ToolError(req, name, e.Result.Error)
	}
}

// loadSuite returns the configured suite.
func loadSuite() (*lint.Suite, error) {
	suite, err := cfg.Suite()
	if err != nil {
		return nil, fmt.Errorf("failed to build suite: %w", err)
	}
	return suite, nil
}

func parseTools(names []string) ([]lint.Tool, error) {
	var tools []lint.Tool
	for _, name := range names {
		t, err := lint.ParseTool(name)
		if err != nil {
			return nil, err
		}
		tools = append(tools, t)
	}
	return tools, nil
}
