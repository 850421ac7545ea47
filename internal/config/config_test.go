package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"lintgate/internal/lint"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"LINTGATE_PYTHON", "LINTGATE_ROOT", "LINTGATE_TIMEOUT", "LINTGATE_DEBUG", "LINTGATE_HISTORY_DB"} {
		t.Setenv(key, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, lint.DefaultPython, cfg.Python)
	assert.True(t, cfg.IncludeDefaults)
	assert.Equal(t, 15*time.Minute, cfg.GetTimeout())
	assert.Equal(t, time.Hour, cfg.GetMaxTimeout())
	assert.Equal(t, 500*time.Millisecond, cfg.GetDebounce())
	assert.False(t, cfg.Logging.DebugMode)
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), DefaultFileName))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_ParseError(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte("python: [unclosed\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFileName)
	yml := `
root: python
python: /opt/venv/bin/python
disable: [mypy_iotests, pylint_iotests]
invocations:
  - name: flake8_pkg
    tool: flake8
    args: [--max-line-length=100, qemu/]
  - name: pylint_tools
    tool: pylint
    args: [tools/]
    env:
      SETUPTOOLS_USE_DISTUTILS: stdlib
    timeout: 2m
run:
  jobs: 4
  fail_fast: true
execution:
  default_timeout: 10m
watch:
  debounce: 1s
logging:
  debug_mode: true
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "python"), cfg.Root)
	assert.Equal(t, "/opt/venv/bin/python", cfg.Python)
	assert.Equal(t, 4, cfg.Run.Jobs)
	assert.True(t, cfg.Run.FailFast)
	assert.Equal(t, 10*time.Minute, cfg.GetTimeout())
	assert.Equal(t, time.Hour, cfg.GetMaxTimeout(), "unset keys keep defaults")
	assert.Equal(t, time.Second, cfg.GetDebounce())
	assert.True(t, cfg.LogConfig().DebugMode)
	assert.True(t, cfg.LogConfig().JSONFormat)

	suite, err := cfg.Suite()
	require.NoError(t, err)
	assert.Len(t, suite.Invocations, 14)

	flake8, ok := lookupInvocation(suite, "flake8_pkg")
	require.True(t, ok)
	assert.Equal(t, []string{"--max-line-length=100", "qemu/"}, flake8.Args)
	assert.Equal(t, "flake8_pkg", suite.Names()[0], "replacement keeps table position")

	tools, ok := lookupInvocation(suite, "pylint_tools")
	require.True(t, ok)
	assert.Equal(t, 2*time.Minute, tools.Timeout)
	assert.Equal(t, "stdlib", tools.Env["SETUPTOOLS_USE_DISTUTILS"])
	assert.Equal(t, "pylint_tools", suite.Names()[len(suite.Names())-1])

	_, ok = lookupInvocation(suite, "mypy_iotests")
	assert.False(t, ok)
}

func TestConfig_SaveLoad(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", DefaultFileName)

	cfg := DefaultConfig()
	cfg.Root = "/src/qemu/python"
	cfg.IncludeDefaults = false
	cfg.Invocations = []lint.Invocation{
		{Name: "mypy_only", Tool: lint.ToolMypy, Args: []string{"-p", "qemu"}, Timeout: 90 * time.Second},
	}
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	suite, err := loaded.Suite()
	require.NoError(t, err)
	assert.Equal(t, "custom", suite.Name)
	assert.Equal(t, []string{"mypy_only"}, suite.Names())
}

func TestConfig_SuiteErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Disable = []string{"flake9_pkg"}
	_, err := cfg.Suite()
	assert.ErrorIs(t, err, lint.ErrUnknownInvocation)

	cfg = DefaultConfig()
	cfg.Invocations = []lint.Invocation{{Name: "bad", Tool: "black"}}
	_, err = cfg.Suite()
	assert.ErrorIs(t, err, lint.ErrInvalidInvocation)
	assert.Error(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty python", func(c *Config) { c.Python = "" }},
		{"negative jobs", func(c *Config) { c.Run.Jobs = -1 }},
		{"bad timeout", func(c *Config) { c.Execution.DefaultTimeout = "soon" }},
		{"bad debounce", func(c *Config) { c.Watch.Debounce = "1 second" }},
		{"timeout above max", func(c *Config) { c.Execution.DefaultTimeout = "2h" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfig_Paths(t *testing.T) {
	cfg := DefaultConfig()
	root := filepath.FromSlash("/src/python")

	assert.Equal(t, root, cfg.RootDir(root))
	cfg.Root = filepath.FromSlash("/elsewhere")
	assert.Equal(t, cfg.Root, cfg.RootDir(root))

	assert.Equal(t, filepath.Join(root, ".lintgate", "history.db"), cfg.HistoryPath(root))
	cfg.History.Path = filepath.FromSlash("/var/lib/lintgate.db")
	assert.Equal(t, cfg.History.Path, cfg.HistoryPath(root))
}

func TestConfig_ExecutorConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Execution.InheritEnv = false
	cfg.Execution.MaxOutputBytes = 1024

	ec := cfg.ExecutorConfig()
	assert.Equal(t, 15*time.Minute, ec.DefaultTimeout)
	assert.Equal(t, time.Hour, ec.MaxTimeout)
	assert.False(t, ec.InheritEnvironment)
	assert.Contains(t, ec.AllowedEnvironment, "PATH")
	assert.Equal(t, int64(1024), ec.MaxOutputBytes)
	assert.True(t, ec.EnableResourceUsage)

	ec.AllowedEnvironment[0] = "CHANGED"
	assert.Equal(t, "PATH", cfg.Execution.AllowedEnvVars[0])
}

func lookupInvocation(s *lint.Suite, name string) (lint.Invocation, bool) {
	for _, inv := range s.Invocations {
		if inv.Name == name {
			return inv, true
		}
	}
	return lint.Invocation{}, false
}
