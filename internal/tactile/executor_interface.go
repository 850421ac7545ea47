package tactile

import "context"

// Executor runs commands. A non-zero exit is reported in the result; the
// returned error is reserved for commands that fail validation.
type Executor interface {
	Execute(ctx context.Context, cmd Command) (*ExecutionResult, error)
	Capabilities() ExecutorCapabilities
	Validate(cmd Command) error
}

// Auditable is an Executor whose lifecycle events can be observed.
type Auditable interface {
	Executor
	SetAuditCallback(callback func(AuditEvent))
}
