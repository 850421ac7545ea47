package lint

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrToolFailed reports that a tool ran and exited non-zero.
	ErrToolFailed = errors.New("tool reported failure")

	// ErrToolNotFound reports that the interpreter or binary could not be resolved.
	ErrToolNotFound = errors.New("tool not found")

	// ErrTimeout reports that a tool was killed by its timeout.
	ErrTimeout = errors.New("tool timed out")

	// ErrInvalidInvocation reports a malformed invocation definition.
	ErrInvalidInvocation = errors.New("invalid invocation")

	// ErrDuplicateInvocation reports two invocations sharing a name.
	ErrDuplicateInvocation = errors.New("duplicate invocation name")

	// ErrUnknownInvocation reports a selection that matched nothing.
	ErrUnknownInvocation = errors.New("unknown invocation")
)

// outputTailLines bounds how much tool output is repeated in an error message.
const outputTailLines = 20

// ToolError describes a tool run that did not pass.
type ToolError struct {
	Name     string
	Argv     []string
	Dir      string
	ExitCode int
	Output   string

	// Killed is set when the process was terminated rather than exiting.
	Killed bool
	Reason string
}

func (e *ToolError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Name, strings.Join(e.Argv, " "))
	if e.Killed {
		fmt.Fprintf(&b, ": killed (%s)", e.Reason)
	} else {
		fmt.Fprintf(&b, ": exit status %d", e.ExitCode)
	}
	if tail := tailLines(e.Output, outputTailLines); tail != "" {
		b.WriteString("\n")
		b.WriteString(tail)
	}
	return b.String()
}

// Is makes errors.Is(err, ErrToolFailed) true for every ToolError and
// errors.Is(err, ErrTimeout) true for timed-out runs.
func (e *ToolError) Is(target error) bool {
	switch target {
	case ErrToolFailed:
		return true
	case ErrTimeout:
		return e.Killed && strings.HasPrefix(e.Reason, "timeout")
	}
	return false
}

func tailLines(s string, n int) string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return "...\n" + strings.Join(lines[len(lines)-n:], "\n")
}
