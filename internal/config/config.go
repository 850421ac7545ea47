package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"lintgate/internal/lint"
	"lintgate/internal/logging"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is looked up in the root when --config is not given.
const DefaultFileName = ".lintgate.yaml"

// Config holds all lintgate configuration.
type Config struct {
	// Root is the directory invocation paths are relative to. A relative
	// root is resolved against the directory holding the config file.
	Root string `yaml:"root"`

	// Python is the interpreter used for `python -m` invocations.
	Python string `yaml:"python"`

	// IncludeDefaults starts the suite from the built-in table.
	IncludeDefaults bool `yaml:"include_defaults"`

	// Invocations replace built-in entries of the same name and are
	// appended otherwise.
	Invocations []lint.Invocation `yaml:"invocations,omitempty"`

	// Disable removes invocations by name.
	Disable []string `yaml:"disable,omitempty"`

	Run       RunConfig       `yaml:"run"`
	Execution ExecutionConfig `yaml:"execution"`
	History   HistoryConfig   `yaml:"history"`
	Watch     WatchConfig     `yaml:"watch"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// RunConfig holds defaults for `lintgate run` flags.
type RunConfig struct {
	Jobs     int  `yaml:"jobs"`
	FailFast bool `yaml:"fail_fast"`
}

// HistoryConfig configures the run history database.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	Debounce string `yaml:"debounce"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Python:          lint.DefaultPython,
		IncludeDefaults: true,
		Run: RunConfig{
			Jobs: 1,
		},
		Execution: ExecutionConfig{
			DefaultTimeout: "15m",
			MaxTimeout:     "1h",
			InheritEnv:     true,
			AllowedEnvVars: []string{"PATH", "HOME", "LANG", "LC_ALL", "TMPDIR", "VIRTUAL_ENV", "PYTHONPATH"},
			MaxOutputBytes: 10 * 1024 * 1024,
			ResourceUsage:  true,
		},
		History: HistoryConfig{
			Path: filepath.Join(".lintgate", "history.db"),
		},
		Watch: WatchConfig{
			Debounce: "500ms",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if cfg.Root != "" && !filepath.IsAbs(cfg.Root) {
		cfg.Root = filepath.Join(filepath.Dir(path), cfg.Root)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	logging.ConfigInfo("Saved config to %s", path)

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if python := os.Getenv("LINTGATE_PYTHON"); python != "" {
		c.Python = python
	}
	if root := os.Getenv("LINTGATE_ROOT"); root != "" {
		c.Root = root
	}
	if timeout := os.Getenv("LINTGATE_TIMEOUT"); timeout != "" {
		c.Execution.DefaultTimeout = timeout
	}
	if debug := os.Getenv("LINTGATE_DEBUG"); debug != "" {
		if on, err := strconv.ParseBool(debug); err == nil {
			c.Logging.DebugMode = on
		}
	}
	if path := os.Getenv("LINTGATE_HISTORY_DB"); path != "" {
		c.History.Path = path
	}
}

// GetTimeout returns the default per-invocation timeout as a duration.
func (c *Config) GetTimeout() time.Duration {
	return parseDuration(c.Execution.DefaultTimeout, 15*time.Minute)
}

// GetMaxTimeout returns the upper bound for any invocation timeout.
func (c *Config) GetMaxTimeout() time.Duration {
	return parseDuration(c.Execution.MaxTimeout, time.Hour)
}

// GetDebounce returns the watch debounce interval.
func (c *Config) GetDebounce() time.Duration {
	return parseDuration(c.Watch.Debounce, 500*time.Millisecond)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		logging.ConfigWarn("Invalid duration %q, using %s", s, fallback)
		return fallback
	}
	return d
}

// RootDir returns the absolute root, falling back to base when unset.
func (c *Config) RootDir(base string) string {
	root := c.Root
	if root == "" {
		root = base
	}
	if abs, err := filepath.Abs(root); err == nil {
		return abs
	}
	return root
}

// HistoryPath returns the history database path resolved under root.
func (c *Config) HistoryPath(root string) string {
	if filepath.IsAbs(c.History.Path) {
		return c.History.Path
	}
	return filepath.Join(root, c.History.Path)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Python == "" {
		return fmt.Errorf("python interpreter not configured (set python or LINTGATE_PYTHON)")
	}
	if c.Run.Jobs < 0 {
		return fmt.Errorf("run.jobs must not be negative: %d", c.Run.Jobs)
	}
	for field, value := range map[string]string{
		"execution.default_timeout": c.Execution.DefaultTimeout,
		"execution.max_timeout":     c.Execution.MaxTimeout,
		"watch.debounce":            c.Watch.Debounce,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s %q: %w", field, value, err)
		}
	}
	if c.GetTimeout() > c.GetMaxTimeout() {
		return fmt.Errorf("execution.default_timeout %s exceeds max_timeout %s", c.GetTimeout(), c.GetMaxTimeout())
	}
	if _, err := c.Suite(); err != nil {
		return err
	}
	return nil
}
