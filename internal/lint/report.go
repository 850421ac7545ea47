package lint

import (
	"encoding/json"
	"io"
	"time"
)

// Result captures the outcome of one invocation.
type Result struct {
	Name      string        `json:"name"`
	Tool      Tool          `json:"tool"`
	Argv      []string      `json:"argv"`
	Dir       string        `json:"dir"`
	Env       []string      `json:"env,omitempty"`
	ExitCode  int           `json:"exit_code"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	// CPUTime and MaxRSSBytes come from rusage and are zero when unavailable.
	CPUTime     time.Duration `json:"cpu_time,omitempty"`
	MaxRSSBytes int64         `json:"max_rss_bytes,omitempty"`
	Passed      bool          `json:"passed"`
	Skipped     bool          `json:"skipped,omitempty"`
	Output      string        `json:"output,omitempty"`
	Truncated   bool          `json:"truncated,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// Status returns "pass", "fail" or "skip".
func (r *Result) Status() string {
	switch {
	case r.Skipped:
		return "skip"
	case r.Passed:
		return "pass"
	default:
		return "fail"
	}
}

// Report is the outcome of running a suite.
type Report struct {
	RunID      string    `json:"run_id"`
	Suite      string    `json:"suite"`
	Root       string    `json:"root"`
	Python     string    `json:"python"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Results    []*Result `json:"results"`
}

// Passed is true iff every result that ran passed.
func (r *Report) Passed() bool {
	for _, res := range r.Results {
		if !res.Skipped && !res.Passed {
			return false
		}
	}
	return true
}

// Counts returns the number of passed, failed and skipped results.
func (r *Report) Counts() (passed, failed, skipped int) {
	for _, res := range r.Results {
		switch res.Status() {
		case "pass":
			passed++
		case "fail":
			failed++
		default:
			skipped++
		}
	}
	return passed, failed, skipped
}

// Failed returns the failed results in table order.
func (r *Report) Failed() []*Result {
	var failed []*Result
	for _, res := range r.Results {
		if res.Status() == "fail" {
			failed = append(failed, res)
		}
	}
	return failed
}

// Duration is the wall time of the whole run.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
