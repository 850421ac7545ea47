package tactile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"lintgate/internal/environ"
	"lintgate/internal/logging"
)

// waitDelay bounds how long Wait blocks on output pipes held open by
// grandchildren after the direct child has exited or been killed.
const waitDelay = 2 * time.Second

var _ Auditable = (*DirectExecutor)(nil)

// DirectExecutor runs commands on the host with os/exec.
type DirectExecutor struct {
	mu            sync.RWMutex
	config        ExecutorConfig
	auditCallback func(AuditEvent)
}

// NewDirectExecutor creates an executor with DefaultExecutorConfig.
func NewDirectExecutor() *DirectExecutor {
	return NewDirectExecutorWithConfig(DefaultExecutorConfig())
}

// NewDirectExecutorWithConfig creates an executor with config.
func NewDirectExecutorWithConfig(config ExecutorConfig) *DirectExecutor {
	logging.TactileDebug("Creating DirectExecutor: timeout=%s, maxOutput=%d bytes, inheritEnv=%v",
		config.DefaultTimeout, config.MaxOutputBytes, config.InheritEnvironment)
	return &DirectExecutor{
		config:        config,
		auditCallback: config.AuditCallback,
	}
}

// SetAuditCallback replaces the audit callback.
func (e *DirectExecutor) SetAuditCallback(callback func(AuditEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.auditCallback = callback
}

func (e *DirectExecutor) emitAudit(typ AuditEventType, cmd Command, result *ExecutionResult) {
	e.mu.RLock()
	callback := e.auditCallback
	e.mu.RUnlock()

	if callback != nil {
		callback(AuditEvent{
			Type:         typ,
			Timestamp:    time.Now(),
			Command:      cmd,
			Result:       result,
			ExecutorName: "direct",
		})
	}
}

// Capabilities implements Executor.
func (e *DirectExecutor) Capabilities() ExecutorCapabilities {
	return ExecutorCapabilities{
		Name:                  "direct",
		Platform:              runtime.GOOS,
		SupportsResourceUsage: runtime.GOOS != "windows" && e.config.EnableResourceUsage,
		DefaultTimeout:        e.config.DefaultTimeout,
		MaxTimeout:            e.config.MaxTimeout,
		MaxOutputBytes:        e.config.MaxOutputBytes,
	}
}

// Validate rejects commands without a binary and invalid environment keys.
func (e *DirectExecutor) Validate(cmd Command) error {
	if strings.TrimSpace(cmd.Binary) == "" {
		return fmt.Errorf("binary is required")
	}
	for key := range cmd.Environment {
		if !environ.ValidKey(key) {
			return fmt.Errorf("invalid environment key %q", key)
		}
	}
	return nil
}

// Execute runs cmd and waits for it. Only validation failures are returned
// as errors; everything else, including a missing binary, a timeout or a
// non-zero exit, is described by the result.
func (e *DirectExecutor) Execute(ctx context.Context, cmd Command) (*ExecutionResult, error) {
	timer := logging.StartTimer(logging.CategoryTactile, "Direct command execution")
	defer timer.Stop()

	if err := e.Validate(cmd); err != nil {
		logging.TactileWarn("Command validation failed: %s %v - %v", cmd.Binary, cmd.Arguments, err)
		return nil, err
	}

	cmd = e.config.Merge(cmd)
	timeout := time.Duration(cmd.Limits.TimeoutMs) * time.Millisecond

	logging.Tactile("Executing: %s (dir=%s, timeout=%s, env overrides=%d)",
		cmd.CommandString(), cmd.WorkingDirectory, timeout, len(cmd.Environment))

	var (
		execCtx context.Context
		cancel  context.CancelFunc
	)
	if timeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		execCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	execCmd := exec.CommandContext(execCtx, cmd.Binary, cmd.Arguments...)
	execCmd.Dir = cmd.WorkingDirectory
	execCmd.Env = e.buildEnvironment(cmd.Environment)
	execCmd.WaitDelay = waitDelay
	setupProcessGroup(execCmd)
	execCmd.Cancel = func() error { return killProcessGroup(execCmd) }

	var stdoutBuf, stderrBuf bytes.Buffer
	stdout := &limitedWriter{w: &stdoutBuf, max: cmd.Limits.MaxOutputBytes}
	stderr := &limitedWriter{w: &stderrBuf, max: cmd.Limits.MaxOutputBytes}
	// os/exec copies each stream in its own goroutine, and callers commonly
	// pass one writer for both.
	var liveMu sync.Mutex
	execCmd.Stdout = teeTo(stdout, cmd.Stdout, &liveMu)
	execCmd.Stderr = teeTo(stderr, cmd.Stderr, &liveMu)

	e.emitAudit(AuditEventStart, cmd, nil)

	result := &ExecutionResult{ExitCode: -1, Command: &cmd, StartedAt: time.Now()}
	err := execCmd.Run()
	result.FinishedAt = time.Now()
	result.Duration = result.FinishedAt.Sub(result.StartedAt)
	result.Stdout = stdoutBuf.String()
	result.Stderr = stderrBuf.String()
	result.Combined = combine(result.Stdout, result.Stderr)

	if stdout.truncated || stderr.truncated {
		result.Truncated = true
		result.TruncatedBytes = stdout.discarded + stderr.discarded
		logging.TactileWarn("Output of %s truncated: %d bytes discarded", cmd.Binary, result.TruncatedBytes)
	}

	event := e.classify(result, err, execCtx, timeout)
	if event == AuditEventComplete {
		result.ResourceUsage = e.getResourceUsage(execCmd)
		logging.Tactile("Command completed: %s -> exit=%d, duration=%s, output=%d bytes",
			cmd.Binary, result.ExitCode, result.Duration, len(result.Combined))
	}
	e.emitAudit(event, cmd, result)
	return result, nil
}

// classify fills in exit status fields from the Run error and returns the
// matching audit event type.
func (e *DirectExecutor) classify(result *ExecutionResult, err error, execCtx context.Context, timeout time.Duration) AuditEventType {
	if err == nil {
		result.Success = true
		result.ExitCode = 0
		return AuditEventComplete
	}

	var exitErr *exec.ExitError
	switch {
	case errors.Is(execCtx.Err(), context.DeadlineExceeded):
		result.Success = true
		result.Killed = true
		result.KillReason = fmt.Sprintf("timeout after %s", timeout)
		logging.TactileWarn("Command killed (timeout): %s after %s", result.Command.Binary, timeout)
		return AuditEventKilled
	case errors.Is(execCtx.Err(), context.Canceled):
		result.Success = true
		result.Killed = true
		result.KillReason = "context canceled"
		logging.TactileDebug("Command canceled: %s", result.Command.Binary)
		return AuditEventKilled
	case errors.As(err, &exitErr):
		result.Success = true
		result.ExitCode = exitErr.ExitCode()
		logging.TactileDebug("Command exited non-zero: %s -> %d", result.Command.Binary, result.ExitCode)
		return AuditEventComplete
	default:
		result.Error = err.Error()
		logging.TactileError("Command failed to run: %s - %v", result.Command.Binary, err)
		return AuditEventError
	}
}

// buildEnvironment creates the environment for one child. The parent
// environment is read, never written.
func (e *DirectExecutor) buildEnvironment(overrides map[string]string) []string {
	var base []string
	if e.config.InheritEnvironment {
		base = environ.Inherited()
	} else {
		base = environ.Allowlisted(e.config.AllowedEnvironment)
	}
	return environ.Overlay(base, overrides)
}

func (e *DirectExecutor) getResourceUsage(cmd *exec.Cmd) *ResourceUsage {
	if !e.config.EnableResourceUsage {
		return nil
	}
	return getProcessResourceUsage(cmd)
}

func combine(stdout, stderr string) string {
	if stderr == "" {
		return stdout
	}
	if stdout != "" && !strings.HasSuffix(stdout, "\n") {
		stdout += "\n"
	}
	return stdout + stderr
}

func teeTo(capture io.Writer, live io.Writer, mu *sync.Mutex) io.Writer {
	if live == nil {
		return capture
	}
	return io.MultiWriter(capture, &lockedWriter{mu: mu, w: live})
}

// lockedWriter serializes writes to w under a mutex shared with other
// lockedWriters of the same execution.
type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.w.Write(p)
}

// limitedWriter keeps the first max bytes and counts the rest. A max of
// zero or less keeps everything.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
	discarded int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if lw.max <= 0 {
		_, err := lw.w.Write(p)
		return n, err
	}

	remaining := lw.max - lw.written
	if remaining <= 0 {
		lw.truncated = true
		lw.discarded += int64(n)
		return n, nil
	}
	if int64(n) > remaining {
		lw.truncated = true
		lw.discarded += int64(n) - remaining
		p = p[:remaining]
	}

	written, err := lw.w.Write(p)
	lw.written += int64(written)
	// Report the full length so os/exec does not see a short write.
	return n, err
}
