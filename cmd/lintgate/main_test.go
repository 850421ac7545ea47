package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"lintgate/internal/lint"
	"lintgate/internal/logging"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const fakePython = `#!/bin/sh
if [ "$1" = "-c" ]; then
  case "$3" in missing*) exit 1;; esac
  exit 0
fi
mod="$2"
shift 2
if [ "$1" = "--version" ]; then
  echo "$mod 1.0"
  exit 0
fi
echo "$mod $*"
for a in "$@"; do
  case "$a" in *bad*) echo "$a:1:1: E999 violation"; exit 1;; esac
done
exit 0
`

const testConfig = `include_defaults: false
invocations:
  - name: flake8_ok
    tool: flake8
    args: [pkg]
  - name: pylint_ok
    tool: pylint
    args: [pkg]
    env:
      SETUPTOOLS_USE_DISTUTILS: stdlib
  - name: mypy_bad
    tool: mypy
    args: [bad]
`

// setupCLI writes a project with a fake interpreter and points the global
// flags at it.
func setupCLI(t *testing.T, config string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake interpreter is a shell script")
	}
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	python := filepath.Join(dir, "bin", "python")
	require.NoError(t, os.MkdirAll(filepath.Dir(python), 0o755))
	require.NoError(t, os.WriteFile(python, []byte(fakePython), 0o755))
	for _, sub := range []string{"pkg", "bad"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, sub), 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".lintgate.yaml"), []byte(config), 0o644))

	for _, key := range []string{"LINTGATE_PYTHON", "LINTGATE_ROOT", "LINTGATE_TIMEOUT", "LINTGATE_DEBUG", "LINTGATE_HISTORY_DB"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	rootFlag, pythonFlag, configPath = dir, python, ""
	logger = zap.NewNop()
	t.Cleanup(func() {
		rootFlag, pythonFlag, configPath, verbose = "", "", "", false
		runOnly, runTools, runJobs, runFailFast, runJSON, runRecord, runQuiet = nil, nil, 0, false, false, false, false
		listTools, listJSON = nil, false
		doctorJSON, initForce = false, false
		historyLimit, historyJSON, historyPrune = 20, false, -1
		cfg, root = nil, ""
	})

	require.NoError(t, loadSettings())
	return dir
}

func testCommand() (*cobra.Command, *bytes.Buffer) {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetContext(context.Background())
	return cmd, &out
}

func TestLoadSettings(t *testing.T) {
	dir := setupCLI(t, testConfig)

	assert.Equal(t, dir, root)
	assert.Equal(t, filepath.Join(dir, "bin", "python"), cfg.Python)

	suite, err := loadSuite()
	require.NoError(t, err)
	assert.Equal(t, []string{"flake8_ok", "pylint_ok", "mypy_bad"}, suite.Names())
}

func TestRunSuite_Failure(t *testing.T) {
	setupCLI(t, testConfig)
	cmd, out := testCommand()

	err := runSuite(cmd, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errLintFailed))
	assert.Contains(t, err.Error(), "1 of 3")

	assert.Contains(t, out.String(), "E999 violation")
	assert.Contains(t, out.String(), "2 passed, 1 failed")
}

func TestRunSuite_SelectedPass(t *testing.T) {
	setupCLI(t, testConfig)
	cmd, out := testCommand()

	require.NoError(t, runSuite(cmd, []string{"*_ok"}))
	assert.Contains(t, out.String(), "2 passed")
	assert.NotContains(t, out.String(), "mypy_bad")
}

func TestRunSuite_UnknownName(t *testing.T) {
	setupCLI(t, testConfig)
	cmd, _ := testCommand()

	err := runSuite(cmd, []string{"nope"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, lint.ErrUnknownInvocation))
}

func TestRunSuite_JSON(t *testing.T) {
	setupCLI(t, testConfig)
	runJSON = true
	runJobs = 3
	cmd, out := testCommand()

	err := runSuite(cmd, nil)
	require.True(t, errors.Is(err, errLintFailed))

	var report lint.Report
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	require.Len(t, report.Results, 3)
	assert.Equal(t, "flake8_ok", report.Results[0].Name)
	assert.Equal(t, "fail", report.Results[2].Status())
	assert.Equal(t, []string{"SETUPTOOLS_USE_DISTUTILS=stdlib"}, report.Results[1].Env)
	assert.NotEmpty(t, report.RunID)
}

func TestRunSuite_RecordAndHistory(t *testing.T) {
	dir := setupCLI(t, testConfig)
	runRecord = true
	runQuiet = true

	cmd, _ := testCommand()
	require.NoError(t, runSuite(cmd, []string{"flake8_ok"}))
	assert.FileExists(t, filepath.Join(dir, ".lintgate", "history.db"))

	cmd, out := testCommand()
	require.NoError(t, showHistory(cmd, nil))
	assert.Contains(t, out.String(), "PASS")
	assert.Contains(t, out.String(), "1 passed, 0 failed")

	historyJSON = true
	cmd, out = testCommand()
	require.NoError(t, showHistory(cmd, nil))
	var runs []struct {
		ID string `json:"run_id"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &runs))
	require.Len(t, runs, 1)
	require.NotEmpty(t, runs[0].ID)

	historyJSON = false
	cmd, out = testCommand()
	require.NoError(t, showHistory(cmd, []string{runs[0].ID[:8]}))
	assert.Contains(t, out.String(), "flake8_ok")

	historyPrune = 0
	cmd, out = testCommand()
	require.NoError(t, showHistory(cmd, nil))
	assert.Contains(t, out.String(), "Pruned 1 run(s)")
}

func TestHistory_Empty(t *testing.T) {
	setupCLI(t, testConfig)
	cmd, out := testCommand()

	require.NoError(t, showHistory(cmd, nil))
	assert.Contains(t, out.String(), "No recorded runs")
}

func TestListInvocations(t *testing.T) {
	setupCLI(t, testConfig)
	listJSON = true
	cmd, out := testCommand()

	require.NoError(t, listInvocations(cmd, []string{"pylint_*"}))

	var entries []listEntry
	require.NoError(t, json.Unmarshal(out.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "pylint_ok", entries[0].Name)
	assert.Equal(t, map[string]string{"SETUPTOOLS_USE_DISTUTILS": "stdlib"}, entries[0].Env)
	assert.Equal(t, []string{"-m", "pylint", "pkg"}, entries[0].Argv[1:])
}

func TestDoctor(t *testing.T) {
	setupCLI(t, testConfig)
	cmd, out := testCommand()

	require.NoError(t, runDoctor(cmd, nil))
	assert.Contains(t, out.String(), "OK")
	assert.Contains(t, out.String(), "flake8 1.0")
	assert.Contains(t, out.String(), "Executor: direct")
}

func TestDoctor_Missing(t *testing.T) {
	setupCLI(t, `include_defaults: false
invocations:
  - name: wrapper
    tool: module
    module: missing_linters
`)
	cmd, out := testCommand()

	err := runDoctor(cmd, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errToolsMissing))
	assert.Contains(t, out.String(), "MISS")
}

func TestParseTools(t *testing.T) {
	tools, err := parseTools([]string{"flake8", "pylint"})
	require.NoError(t, err)
	assert.Equal(t, []lint.Tool{lint.ToolFlake8, lint.ToolPylint}, tools)

	_, err = parseTools([]string{"black"})
	assert.Error(t, err)
}

func TestAffected(t *testing.T) {
	dir := setupCLI(t, testConfig)
	suite, err := loadSuite()
	require.NoError(t, err)

	names := affected(suite.Invocations, []string{filepath.Join(dir, "pkg", "mod.py")})
	assert.Equal(t, []string{"flake8_ok", "pylint_ok"}, names)

	assert.Nil(t, affected(suite.Invocations, []string{filepath.Join(dir, "setup.cfg")}))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "setup.cfg"), nil, 0o644))
	targets := watchTargets(suite.Invocations)
	assert.Equal(t, []string{filepath.Join(dir, "pkg"), filepath.Join(dir, "bad"), filepath.Join(dir, "setup.cfg")}, targets)
}

func TestWriteConfig(t *testing.T) {
	dir := setupCLI(t, testConfig)
	path := filepath.Join(dir, ".lintgate.yaml")

	cmd, _ := testCommand()
	err := writeConfig(cmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	initForce = true
	cmd, out := testCommand()
	require.NoError(t, writeConfig(cmd, nil))
	assert.Contains(t, out.String(), path)

	require.NoError(t, loadSettings())
	suite, err := loadSuite()
	require.NoError(t, err)
	assert.Equal(t, lint.DefaultSuite().Names(), suite.Names())
}

func TestRunSuite_AuditCarriesRunID(t *testing.T) {
	dir := setupCLI(t, testConfig+`logging:
  debug_mode: true
`)
	t.Cleanup(logging.CloseAll)
	runJSON = true
	cmd, out := testCommand()

	require.NoError(t, runSuite(cmd, []string{"flake8_ok"}))
	logging.CloseAll()

	var report lint.Report
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))

	files, err := filepath.Glob(filepath.Join(dir, ".lintgate", "logs", "*_audit.jsonl"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	f, err := os.Open(files[0])
	require.NoError(t, err)
	defer f.Close()

	toolEvents := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e logging.AuditEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		assert.Equal(t, report.RunID, e.RunID, "event %s", e.EventType)
		if strings.HasPrefix(string(e.EventType), "tool_") {
			toolEvents++
		}
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, 2, toolEvents)
}
