// Package lint maps a table of static-analysis tool invocations onto child
// processes. Each Invocation is one (tool, arguments, working directory,
// environment) tuple; a non-zero exit of the tool is a failure of that
// invocation and nothing else.
package lint

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Tool identifies which external checker an invocation runs.
type Tool string

const (
	ToolFlake8 Tool = "flake8" // style checker
	ToolIsort  Tool = "isort"  // import-order checker
	ToolMypy   Tool = "mypy"   // type checker
	ToolPylint Tool = "pylint" // linter
	// ToolModule runs an arbitrary Python module, e.g. a project's own lint wrapper.
	ToolModule Tool = "module"
)

// KnownTools lists the checkers in the order they are usually run.
func KnownTools() []Tool {
	return []Tool{ToolFlake8, ToolIsort, ToolMypy, ToolPylint, ToolModule}
}

// ParseTool converts a string into a Tool.
func ParseTool(s string) (Tool, error) {
	t := Tool(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range KnownTools() {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown tool %q", s)
}

// Invocation is a single configured tool run.
type Invocation struct {
	// Name uniquely identifies the invocation within a suite (e.g. "flake8_pkg").
	Name string `yaml:"name" json:"name"`

	// Tool is the checker kind. It also names the Python module when Module is empty.
	Tool Tool `yaml:"tool" json:"tool"`

	// Module is run as `python -m <Module>`.
	Module string `yaml:"module,omitempty" json:"module,omitempty"`

	// Binary, when set, is executed directly instead of `python -m`.
	// A relative path containing a separator is resolved against the root.
	Binary string `yaml:"binary,omitempty" json:"binary,omitempty"`

	// Args are appended after the module (paths and flags).
	Args []string `yaml:"args,omitempty" json:"args,omitempty"`

	// Dir is the working directory, relative to the root. Empty means the root.
	Dir string `yaml:"dir,omitempty" json:"dir,omitempty"`

	// Env holds overrides applied to this invocation's child process only.
	Env map[string]string `yaml:"env,omitempty" json:"env,omitempty"`

	// Timeout overrides the executor default. Zero keeps the default.
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// Validate checks that the invocation is runnable in principle.
func (inv Invocation) Validate() error {
	if strings.TrimSpace(inv.Name) == "" {
		return fmt.Errorf("%w: invocation name is required", ErrInvalidInvocation)
	}
	if _, err := ParseTool(string(inv.Tool)); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidInvocation, inv.Name, err)
	}
	if inv.Tool == ToolModule && inv.Module == "" && inv.Binary == "" {
		return fmt.Errorf("%w: %s: tool %q needs a module or binary", ErrInvalidInvocation, inv.Name, ToolModule)
	}
	for key := range inv.Env {
		if key == "" || strings.ContainsAny(key, "=\x00") {
			return fmt.Errorf("%w: %s: invalid environment key %q", ErrInvalidInvocation, inv.Name, key)
		}
	}
	if inv.Timeout < 0 {
		return fmt.Errorf("%w: %s: negative timeout", ErrInvalidInvocation, inv.Name)
	}
	return nil
}

// ModuleName returns the Python module the invocation runs.
func (inv Invocation) ModuleName() string {
	if inv.Module != "" {
		return inv.Module
	}
	return string(inv.Tool)
}

// Argv returns the full command line for the given interpreter.
func (inv Invocation) Argv(python string) []string {
	if inv.Binary != "" {
		return append([]string{inv.Binary}, inv.Args...)
	}
	argv := make([]string, 0, len(inv.Args)+3)
	argv = append(argv, python, "-m", inv.ModuleName())
	return append(argv, inv.Args...)
}

// ResolveDir returns the absolute working directory under root.
func (inv Invocation) ResolveDir(root string) string {
	dir := root
	if inv.Dir != "" {
		if filepath.IsAbs(inv.Dir) {
			dir = inv.Dir
		} else {
			dir = filepath.Join(root, inv.Dir)
		}
	}
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return filepath.Clean(dir)
}

// EnvList returns the overrides as sorted KEY=VALUE pairs.
func (inv Invocation) EnvList() []string {
	if len(inv.Env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(inv.Env))
	for k := range inv.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+inv.Env[k])
	}
	return env
}

// TargetPaths returns the absolute filesystem paths the invocation checks.
// Any non-flag argument that exists on disk counts as a target, which also
// picks up package names passed as flag values (mypy -p qemu). When no
// argument names an existing path, the working directory is returned.
func (inv Invocation) TargetPaths(root string) []string {
	dir := inv.ResolveDir(root)
	var targets []string
	for _, arg := range inv.Args {
		if arg == "" || strings.HasPrefix(arg, "-") {
			continue
		}
		p := arg
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}
		if _, err := os.Stat(p); err == nil {
			targets = append(targets, filepath.Clean(p))
		}
	}
	if len(targets) == 0 {
		return []string{dir}
	}
	return targets
}

// Covers reports whether path lies inside one of the invocation's targets.
func (inv Invocation) Covers(root, path string) bool {
	path = filepath.Clean(path)
	for _, target := range inv.TargetPaths(root) {
		if path == target {
			return true
		}
		rel, err := filepath.Rel(target, path)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
