package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"lintgate/internal/lint"

	"github.com/charmbracelet/lipgloss"
)

var (
	passColor  = lipgloss.Color("#8BC34A")
	failColor  = lipgloss.Color("#e53935")
	skipColor  = lipgloss.Color("#FFC107")
	mutedColor = lipgloss.Color("#6b7280")

	headerStyle = lipgloss.NewStyle().Bold(true)
	passStyle   = lipgloss.NewStyle().Bold(true).Foreground(passColor)
	failStyle   = lipgloss.NewStyle().Bold(true).Foreground(failColor)
	skipStyle   = lipgloss.NewStyle().Bold(true).Foreground(skipColor)
	mutedStyle  = lipgloss.NewStyle().Foreground(mutedColor)
)

func statusLabel(status string) string {
	switch status {
	case "pass":
		return passStyle.Render("PASS")
	case "fail":
		return failStyle.Render("FAIL")
	default:
		return skipStyle.Render("SKIP")
	}
}

// nameWidth returns the column width for invocation names.
func nameWidth(names []string) int {
	w := 0
	for _, n := range names {
		if len(n) > w {
			w = len(n)
		}
	}
	return w
}

func relDir(dir string) string {
	if rel, err := filepath.Rel(root, dir); err == nil {
		return rel
	}
	return dir
}

func roundDuration(d time.Duration) time.Duration {
	if d < time.Second {
		return d.Round(time.Millisecond)
	}
	return d.Round(100 * time.Millisecond)
}

// renderStart prints the banner shown before an invocation's live output.
func renderStart(w io.Writer, inv lint.Invocation, argv []string) {
	fmt.Fprintln(w, headerStyle.Render("=== "+inv.Name)+" "+mutedStyle.Render(strings.Join(argv, " ")))
}

// renderResultLine prints one status line.
func renderResultLine(w io.Writer, res *lint.Result, width int) {
	name := lipgloss.NewStyle().Width(width).Render(res.Name)
	line := fmt.Sprintf("%s %s", statusLabel(res.Status()), name)
	switch {
	case res.Status() == "skip":
		line += "  " + mutedStyle.Render(res.Error)
	case res.Passed:
		line += "  " + mutedStyle.Render(roundDuration(res.Duration).String())
	default:
		line += "  " + mutedStyle.Render(roundDuration(res.Duration).String()) + "  " + res.Error
	}
	fmt.Fprintln(w, line)
}

// renderOutput prints captured tool output, indented.
func renderOutput(w io.Writer, res *lint.Result) {
	out := strings.TrimRight(res.Output, "\n")
	if out == "" {
		return
	}
	for _, line := range strings.Split(out, "\n") {
		fmt.Fprintln(w, "    "+line)
	}
	if res.Truncated {
		fmt.Fprintln(w, "    "+mutedStyle.Render("[output truncated]"))
	}
}

// renderSummary prints every result and a totals line. Output of failed
// invocations is included when withOutput is set.
func renderSummary(w io.Writer, report *lint.Report, withOutput bool) {
	names := make([]string, len(report.Results))
	for i, res := range report.Results {
		names[i] = res.Name
	}
	width := nameWidth(names)

	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render("Summary"))
	for _, res := range report.Results {
		renderResultLine(w, res, width)
		if withOutput && res.Status() == "fail" {
			renderOutput(w, res)
		}
	}

	passed, failed, skipped := report.Counts()
	totals := fmt.Sprintf("%d invocation(s): %d passed, %d failed, %d skipped in %s",
		len(report.Results), passed, failed, skipped, roundDuration(report.Duration()))
	style := passStyle
	if failed > 0 {
		style = failStyle
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, style.Render(totals)+" "+mutedStyle.Render("(run "+shortID(report.RunID)+")"))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
