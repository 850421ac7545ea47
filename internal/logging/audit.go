package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// AuditEventType names one kind of audit event.
type AuditEventType string

const (
	AuditRunStart AuditEventType = "run_start"
	AuditRunEnd   AuditEventType = "run_end"

	AuditToolStart    AuditEventType = "tool_start"
	AuditToolComplete AuditEventType = "tool_complete"
	AuditToolKilled   AuditEventType = "tool_killed"
	AuditToolError    AuditEventType = "tool_error"
)

// AuditEvent is one JSON line in the audit log.
type AuditEvent struct {
	Timestamp  int64                  `json:"ts"`     // Unix milliseconds
	EventType  AuditEventType         `json:"event"`  // Event kind
	RunID      string                 `json:"run"`    // Suite run correlation
	RequestID  string                 `json:"req"`    // Per-process correlation
	Target     string                 `json:"target"` // Invocation name
	Action     string                 `json:"action"` // Command line
	Success    bool                   `json:"success"`
	ExitCode   int                    `json:"exit"`
	DurationMs int64                  `json:"dur_ms"`
	Error      string                 `json:"error,omitempty"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
	Line       string                 `json:"line"` // One-line summary for grep
}

var (
	auditFile *os.File
	auditMu   sync.Mutex
)

// AuditLogger writes audit events, optionally scoped to a run.
type AuditLogger struct {
	runID string
}

// InitAudit opens the audit log. It is a no-op unless debug mode is on and
// the audit category is enabled.
func InitAudit() error {
	if !IsCategoryEnabled(CategoryAudit) {
		return nil
	}

	loggersMu.RLock()
	dir := logsDir
	loggersMu.RUnlock()
	if dir == "" {
		return nil
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		return nil
	}

	date := time.Now().Format("2006-01-02")
	auditPath := filepath.Join(dir, fmt.Sprintf("%s_audit.jsonl", date))

	file, err := os.OpenFile(auditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	auditFile = file
	return nil
}

// CloseAudit closes the audit log file.
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

// AuditWithRun returns an audit logger that stamps every event with runID.
// An empty runID leaves events unattributed.
func AuditWithRun(runID string) *AuditLogger {
	return &AuditLogger{runID: runID}
}

// Log writes an audit event.
func (a *AuditLogger) Log(event AuditEvent) {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile == nil {
		return
	}

	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	if event.RunID == "" {
		event.RunID = a.runID
	}
	event.Line = formatAuditLine(event)

	data, err := json.Marshal(event)
	if err == nil {
		auditFile.Write(append(data, '\n'))
	}
}

// formatAuditLine renders e as one key=value line.
func formatAuditLine(e AuditEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s ts=%d", e.EventType, e.Timestamp)
	if e.RunID != "" {
		fmt.Fprintf(&b, " run=%s", e.RunID)
	}
	if e.Target != "" {
		fmt.Fprintf(&b, " target=\"%s\"", escapeString(e.Target))
	}
	switch e.EventType {
	case AuditRunStart, AuditRunEnd:
		fmt.Fprintf(&b, " ok=%v dur_ms=%d", e.Success, e.DurationMs)
	default:
		fmt.Fprintf(&b, " exit=%d ok=%v dur_ms=%d", e.ExitCode, e.Success, e.DurationMs)
	}
	if e.Error != "" {
		fmt.Fprintf(&b, " error=\"%s\"", escapeString(e.Error))
	}
	return b.String()
}

func escapeString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + len(s)/10)

	for _, c := range s {
		switch c {
		case '"':
			b.WriteString("\\\"")
		case '\\':
			b.WriteString("\\\\")
		case '\n':
			b.WriteString("\\n")
		case '\r':
			b.WriteString("\\r")
		case '\t':
			b.WriteString("\\t")
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}

// RunStart logs the start of a suite run.
func (a *AuditLogger) RunStart(runID, suite string, invocations int) {
	a.Log(AuditEvent{
		EventType: AuditRunStart,
		RunID:     runID,
		Target:    suite,
		Success:   true,
		Fields:    map[string]interface{}{"invocations": invocations},
	})
}

// RunEnd logs the end of a suite run.
func (a *AuditLogger) RunEnd(runID string, passed, failed, skipped int, durationMs int64) {
	a.Log(AuditEvent{
		EventType:  AuditRunEnd,
		RunID:      runID,
		Success:    failed == 0,
		DurationMs: durationMs,
		Fields:     map[string]interface{}{"passed": passed, "failed": failed, "skipped": skipped},
	})
}

// ToolStart logs a tool process being launched.
func (a *AuditLogger) ToolStart(requestID, name, commandLine string) {
	a.Log(AuditEvent{
		EventType: AuditToolStart,
		RequestID: requestID,
		Target:    name,
		Action:    commandLine,
		Success:   true,
		ExitCode:  -1,
	})
}

// ToolComplete logs a tool process that exited on its own.
func (a *AuditLogger) ToolComplete(requestID, name string, exitCode int, durationMs int64) {
	a.Log(AuditEvent{
		EventType:  AuditToolComplete,
		RequestID:  requestID,
		Target:     name,
		Success:    exitCode == 0,
		ExitCode:   exitCode,
		DurationMs: durationMs,
	})
}

// ToolKilled logs a tool process that was killed.
func (a *AuditLogger) ToolKilled(requestID, name, reason string, durationMs int64) {
	a.Log(AuditEvent{
		EventType:  AuditToolKilled,
		RequestID:  requestID,
		Target:     name,
		ExitCode:   -1,
		DurationMs: durationMs,
		Error:      reason,
	})
}

// ToolError logs a tool process that could not be run.
func (a *AuditLogger) ToolError(requestID, name, errMsg string) {
	a.Log(AuditEvent{
		EventType: AuditToolError,
		RequestID: requestID,
		Target:    name,
		ExitCode:  -1,
		Error:     errMsg,
	})
}
