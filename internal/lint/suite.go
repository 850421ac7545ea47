package lint

import (
	"fmt"
	"path"
)

// Suite is an ordered table of invocations with unique names.
// Order affects only the order of output and results.
type Suite struct {
	Name        string
	Invocations []Invocation
}

// NewSuite validates invocations and returns a suite holding a copy of them.
func NewSuite(name string, invocations []Invocation) (*Suite, error) {
	seen := make(map[string]struct{}, len(invocations))
	copied := make([]Invocation, 0, len(invocations))
	for _, inv := range invocations {
		if err := inv.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[inv.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateInvocation, inv.Name)
		}
		seen[inv.Name] = struct{}{}
		copied = append(copied, inv)
	}
	return &Suite{Name: name, Invocations: copied}, nil
}

// DefaultSuite returns the built-in table as a suite.
func DefaultSuite() *Suite {
	s, err := NewSuite(DefaultSuiteName, DefaultInvocations())
	if err != nil {
		// The built-in table is static; a failure here is a programming error.
		panic(err)
	}
	return s
}

// Names returns invocation names in table order.
func (s *Suite) Names() []string {
	names := make([]string, len(s.Invocations))
	for i, inv := range s.Invocations {
		names[i] = inv.Name
	}
	return names
}

// Select returns the invocations matching the filters, in table order.
// only holds names or path.Match glob patterns ("pylint_*"); tools limits
// by tool kind. Empty filters select everything. Each entry of only must
// match at least one invocation.
func (s *Suite) Select(only []string, tools []Tool) ([]Invocation, error) {
	toolSet := make(map[Tool]struct{}, len(tools))
	for _, t := range tools {
		toolSet[t] = struct{}{}
	}

	matchedPattern := make([]bool, len(only))
	var selected []Invocation
	for _, inv := range s.Invocations {
		if len(toolSet) > 0 {
			if _, ok := toolSet[inv.Tool]; !ok {
				continue
			}
		}
		if len(only) > 0 {
			hit := false
			for i, pattern := range only {
				ok, err := path.Match(pattern, inv.Name)
				if err != nil {
					return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
				}
				if ok {
					matchedPattern[i] = true
					hit = true
				}
			}
			if !hit {
				continue
			}
		}
		selected = append(selected, inv)
	}

	for i, ok := range matchedPattern {
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownInvocation, only[i])
		}
	}
	return selected, nil
}
