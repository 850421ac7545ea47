package config

import (
	"lintgate/internal/tactile"
)

// ExecutionConfig configures the tactile executor.
type ExecutionConfig struct {
	// Default timeout for one invocation
	DefaultTimeout string `yaml:"default_timeout"`

	// Upper bound for any per-invocation timeout
	MaxTimeout string `yaml:"max_timeout"`

	// InheritEnv passes the full process environment to tools.
	// When false only AllowedEnvVars are passed.
	InheritEnv bool `yaml:"inherit_env"`

	// Environment variables to pass when InheritEnv is false
	AllowedEnvVars []string `yaml:"allowed_env_vars"`

	// Captured output per stream is capped at this many bytes
	MaxOutputBytes int64 `yaml:"max_output_bytes"`

	// ResourceUsage records rusage for each tool
	ResourceUsage bool `yaml:"resource_usage"`
}

// ExecutorConfig converts the execution section into executor settings.
func (c *Config) ExecutorConfig() tactile.ExecutorConfig {
	cfg := tactile.DefaultExecutorConfig()
	cfg.DefaultTimeout = c.GetTimeout()
	cfg.MaxTimeout = c.GetMaxTimeout()
	cfg.InheritEnvironment = c.Execution.InheritEnv
	if len(c.Execution.AllowedEnvVars) > 0 {
		cfg.AllowedEnvironment = append([]string(nil), c.Execution.AllowedEnvVars...)
	}
	if c.Execution.MaxOutputBytes > 0 {
		cfg.MaxOutputBytes = c.Execution.MaxOutputBytes
	}
	cfg.EnableResourceUsage = c.Execution.ResourceUsage
	return cfg
}
