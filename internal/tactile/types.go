// Package tactile launches external tools as child processes and reports
// what happened to them: exit status, captured output, timing and, on Unix,
// resource usage. Deciding what to run belongs to package lint.
package tactile

import (
	"io"
	"strings"
	"time"
)

// Command describes one child process.
type Command struct {
	// Binary is a path or a name looked up in PATH.
	Binary    string   `json:"binary"`
	Arguments []string `json:"arguments"`

	// WorkingDirectory defaults to ExecutorConfig.DefaultWorkingDir.
	WorkingDirectory string `json:"working_directory,omitempty"`

	// Environment holds overrides for this child only. They are laid over
	// the executor's base environment and never touch the parent's.
	Environment map[string]string `json:"environment,omitempty"`

	Limits *ResourceLimits `json:"limits,omitempty"`

	// Stdout and Stderr receive output live in addition to the copy
	// captured in ExecutionResult.
	Stdout io.Writer `json:"-"`
	Stderr io.Writer `json:"-"`

	// RequestID and Tags are passed through to audit events.
	RequestID string            `json:"request_id,omitempty"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// CommandString returns the command line for display.
func (c Command) CommandString() string {
	if len(c.Arguments) == 0 {
		return c.Binary
	}
	return c.Binary + " " + strings.Join(c.Arguments, " ")
}

// ResourceLimits bounds one execution. Zero values use executor defaults.
type ResourceLimits struct {
	TimeoutMs int64 `json:"timeout_ms,omitempty"`

	// MaxOutputBytes applies to stdout and stderr separately.
	MaxOutputBytes int64 `json:"max_output_bytes,omitempty"`
}

// ExecutionResult is what happened to a Command.
//
// Success reports whether the process could be run at all. A tool that ran
// and exited non-zero has Success set and a non-zero ExitCode; a binary that
// could not be started has Success unset and Error filled in.
type ExecutionResult struct {
	Success  bool `json:"success"`
	ExitCode int  `json:"exit_code"` // -1 when the process never exited normally

	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	Combined string `json:"combined"` // stdout followed by stderr

	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`

	Killed     bool   `json:"killed"`
	KillReason string `json:"kill_reason,omitempty"`

	Truncated      bool  `json:"truncated"`
	TruncatedBytes int64 `json:"truncated_bytes,omitempty"`

	ResourceUsage *ResourceUsage `json:"resource_usage,omitempty"`

	Error string `json:"error,omitempty"`

	// Command is the command after defaults were merged in.
	Command *Command `json:"command,omitempty"`
}

// IsError reports an infrastructure failure: the process could not be run.
func (r *ExecutionResult) IsError() bool {
	return !r.Success || r.Error != ""
}

// Failed reports a process that ran and exited non-zero.
func (r *ExecutionResult) Failed() bool {
	return r.Success && !r.Killed && r.ExitCode != 0
}

// Output returns stdout and stderr as one string.
func (r *ExecutionResult) Output() string {
	if r.Combined != "" {
		return r.Combined
	}
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// ResourceUsage is taken from the child's rusage.
type ResourceUsage struct {
	UserTimeMs   int64 `json:"user_time_ms"`
	SystemTimeMs int64 `json:"system_time_ms"`
	MaxRSSBytes  int64 `json:"max_rss_bytes"`
}

// TotalCPUTimeMs returns user plus system time.
func (r *ResourceUsage) TotalCPUTimeMs() int64 {
	return r.UserTimeMs + r.SystemTimeMs
}

// ExecutorCapabilities describes an executor for diagnostics.
type ExecutorCapabilities struct {
	Name                  string        `json:"name"`
	Platform              string        `json:"platform"`
	SupportsResourceUsage bool          `json:"supports_resource_usage"`
	DefaultTimeout        time.Duration `json:"default_timeout"`
	MaxTimeout            time.Duration `json:"max_timeout"`
	MaxOutputBytes        int64         `json:"max_output_bytes"`
}

// AuditEventType is the lifecycle stage an AuditEvent reports.
type AuditEventType string

const (
	AuditEventStart    AuditEventType = "start"
	AuditEventComplete AuditEventType = "complete"
	AuditEventKilled   AuditEventType = "killed"
	AuditEventError    AuditEventType = "error"
)

// AuditEvent is sent to the audit callback. Result is nil for start events.
type AuditEvent struct {
	Type         AuditEventType   `json:"type"`
	Timestamp    time.Time        `json:"timestamp"`
	Command      Command          `json:"command"`
	Result       *ExecutionResult `json:"result,omitempty"`
	ExecutorName string           `json:"executor_name"`
}

// ExecutorConfig holds executor-wide defaults.
type ExecutorConfig struct {
	DefaultWorkingDir string `json:"default_working_dir"`

	// DefaultTimeout applies when a command sets none. MaxTimeout caps every
	// timeout; zero leaves it uncapped.
	DefaultTimeout time.Duration `json:"default_timeout"`
	MaxTimeout     time.Duration `json:"max_timeout"`

	// InheritEnvironment passes the whole parent environment to children.
	// Otherwise only the variables named in AllowedEnvironment are passed.
	InheritEnvironment bool     `json:"inherit_environment"`
	AllowedEnvironment []string `json:"allowed_environment"`

	MaxOutputBytes int64 `json:"max_output_bytes"`

	AuditCallback func(AuditEvent) `json:"-"`

	EnableResourceUsage bool `json:"enable_resource_usage"`
}

// DefaultExecutorConfig returns defaults sized for linters. mypy and pylint
// on a large tree can take many minutes.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		DefaultWorkingDir:  ".",
		DefaultTimeout:     15 * time.Minute,
		MaxTimeout:         time.Hour,
		InheritEnvironment: true,
		AllowedEnvironment: []string{
			"PATH", "HOME", "USER", "LANG", "LC_ALL", "TMPDIR",
			"PYTHONPATH", "VIRTUAL_ENV", "MYPYPATH",
		},
		MaxOutputBytes:      10 << 20,
		EnableResourceUsage: true,
	}
}

// Merge fills unset fields of cmd from the config and applies MaxTimeout.
// The caller's Limits are copied, not modified.
func (c ExecutorConfig) Merge(cmd Command) Command {
	merged := cmd
	if merged.WorkingDirectory == "" {
		merged.WorkingDirectory = c.DefaultWorkingDir
	}

	limits := ResourceLimits{}
	if cmd.Limits != nil {
		limits = *cmd.Limits
	}
	if limits.TimeoutMs == 0 {
		limits.TimeoutMs = c.DefaultTimeout.Milliseconds()
	}
	if limits.MaxOutputBytes == 0 {
		limits.MaxOutputBytes = c.MaxOutputBytes
	}
	if c.MaxTimeout > 0 {
		if maxMs := c.MaxTimeout.Milliseconds(); limits.TimeoutMs <= 0 || limits.TimeoutMs > maxMs {
			limits.TimeoutMs = maxMs
		}
	}
	merged.Limits = &limits
	return merged
}
