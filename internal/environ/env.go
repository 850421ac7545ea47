// Package environ builds the environment handed to each child process.
//
// Overrides are applied to a copy of the base environment and never written
// back with os.Setenv, so a variable one tool needs (for example
// SETUPTOOLS_USE_DISTUTILS for pylint) cannot leak into sibling invocations
// or into later runs of the same process.
package environ

import (
	"os"
	"sort"
	"strings"

	"lintgate/internal/logging"
)

// Inherited returns a copy of the current process environment.
func Inherited() []string {
	src := os.Environ()
	env := make([]string, len(src))
	copy(env, src)
	return env
}

// Allowlisted returns only the listed variables from the current process
// environment, in list order. Unset or empty variables are skipped.
func Allowlisted(keys []string) []string {
	env := make([]string, 0, len(keys))
	for _, key := range keys {
		if val := os.Getenv(key); val != "" {
			env = append(env, key+"="+val)
		}
	}
	return env
}

// Overlay returns a new environment with overrides applied on top of base.
// base is never modified. Keys are applied in sorted order so the result is
// deterministic for a given input.
func Overlay(base []string, overrides map[string]string) []string {
	result := make([]string, len(base))
	copy(result, base)

	if len(overrides) == 0 {
		return result
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if !ValidKey(key) {
			logging.EnvWarn("Skipping invalid environment key %q", key)
			continue
		}
		result = setEnvKey(result, key, overrides[key])
		logging.EnvDebug("Scoped override: %s", key)
	}
	return result
}

// ValidKey reports whether key can be used as an environment variable name.
func ValidKey(key string) bool {
	return key != "" && !strings.ContainsAny(key, "=\x00")
}

// setEnvKey sets or updates an environment variable.
// Duplicate entries for key are collapsed into the first position.
func setEnvKey(env []string, key, value string) []string {
	prefix := key + "="
	out := env[:0]
	replaced := false
	for _, e := range env {
		if strings.HasPrefix(e, prefix) {
			if replaced {
				continue
			}
			e = prefix + value
			replaced = true
		}
		out = append(out, e)
	}
	if !replaced {
		out = append(out, prefix+value)
	}
	return out
}
