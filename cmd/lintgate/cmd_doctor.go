package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var doctorJSON bool

// errToolsMissing is returned when doctor finds a tool that cannot run.
var errToolsMissing = errors.New("tools missing")

// doctorCmd checks tool availability
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that every tool used by the suite can be launched",
	Long: `Checks that the interpreter can import each tool module (from the
invocation's working directory) and reports the tool's version.`,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "Print as JSON")
}

func runDoctor(cmd *cobra.Command, args []string) error {
	suite, err := loadSuite()
	if err != nil {
		return err
	}

	runner := newRunner()
	results := runner.CheckTools(cmd.Context(), suite)

	missing := 0
	for _, pr := range results {
		if !pr.Available {
			missing++
			logger.Debug("Tool unavailable", zap.String("tool", pr.Name), zap.String("error", pr.Error))
		}
	}

	out := cmd.OutOrStdout()
	if doctorJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		caps := runner.Capabilities()
		fmt.Fprintln(out, headerStyle.Render("Python: "+runner.Python()))
		fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("Executor: %s on %s, default timeout %s", caps.Name, caps.Platform, caps.DefaultTimeout)))
		names := make([]string, len(results))
		for i, pr := range results {
			names[i] = pr.Name
		}
		width := nameWidth(names)
		for _, pr := range results {
			label := passStyle.Render("OK  ")
			detail := pr.Version
			if !pr.Available {
				label = failStyle.Render("MISS")
				detail = pr.Error
			}
			line := fmt.Sprintf("%s %s  %s", label, padRight(pr.Name, width), detail)
			if dir := relDir(pr.Dir); dir != "." {
				line += "  " + mutedStyle.Render("[in "+dir+"]")
			}
			line += "  " + mutedStyle.Render("used by "+strings.Join(pr.UsedBy, ", "))
			fmt.Fprintln(out, line)
		}
	}

	if missing > 0 {
		return fmt.Errorf("%w: %d of %d unavailable", errToolsMissing, missing, len(results))
	}
	return nil
}
