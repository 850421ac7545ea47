package config

import (
	"fmt"

	"lintgate/internal/lint"
)

// Suite builds the invocation table: the built-in rows (unless disabled),
// overridden or extended by Invocations, minus Disable.
func (c *Config) Suite() (*lint.Suite, error) {
	var table []lint.Invocation
	if c.IncludeDefaults {
		table = lint.DefaultInvocations()
	}

	index := make(map[string]int, len(table))
	for i, inv := range table {
		index[inv.Name] = i
	}
	for _, inv := range c.Invocations {
		if i, ok := index[inv.Name]; ok {
			table[i] = inv
			continue
		}
		index[inv.Name] = len(table)
		table = append(table, inv)
	}

	disabled := make(map[string]bool, len(c.Disable))
	for _, name := range c.Disable {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("disable: %w: %s", lint.ErrUnknownInvocation, name)
		}
		disabled[name] = true
	}

	kept := table[:0]
	for _, inv := range table {
		if !disabled[inv.Name] {
			kept = append(kept, inv)
		}
	}

	name := "custom"
	if c.IncludeDefaults {
		name = lint.DefaultSuiteName
	}
	suite, err := lint.NewSuite(name, kept)
	if err != nil {
		return nil, fmt.Errorf("invalid suite: %w", err)
	}
	return suite, nil
}
