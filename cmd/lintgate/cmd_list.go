package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"lintgate/internal/lint"

	"github.com/spf13/cobra"
)

var (
	listTools []string
	listJSON  bool
)

// listCmd prints the resolved invocation table
var listCmd = &cobra.Command{
	Use:   "list [names...]",
	Short: "Show the invocation table",
	Long: `Prints each invocation with the command line, working directory and
environment overrides it would run with.`,
	RunE: listInvocations,
}

func init() {
	listCmd.Flags().StringSliceVar(&listTools, "tool", nil, "Show only these tools")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Print as JSON")
}

type listEntry struct {
	Name string            `json:"name"`
	Tool lint.Tool         `json:"tool"`
	Argv []string          `json:"argv"`
	Dir  string            `json:"dir"`
	Env  map[string]string `json:"env,omitempty"`
}

func listInvocations(cmd *cobra.Command, args []string) error {
	suite, err := loadSuite()
	if err != nil {
		return err
	}
	tools, err := parseTools(listTools)
	if err != nil {
		return err
	}
	selected, err := suite.Select(args, tools)
	if err != nil {
		return err
	}

	runner := newRunner()
	entries := make([]listEntry, 0, len(selected))
	for _, inv := range selected {
		entries = append(entries, listEntry{
			Name: inv.Name,
			Tool: inv.Tool,
			Argv: runner.Argv(inv),
			Dir:  inv.ResolveDir(runner.Root()),
			Env:  inv.Env,
		})
	}

	out := cmd.OutOrStdout()
	if listJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	width := nameWidth(names)

	fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("Suite %q (%d invocations), root %s", suite.Name, len(entries), root)))
	for _, e := range entries {
		line := padRight(e.Name, width) + "  " + strings.Join(e.Argv, " ")
		if dir := relDir(e.Dir); dir != "." {
			line += "  " + mutedStyle.Render("[in "+dir+"]")
		}
		for _, kv := range (lint.Invocation{Env: e.Env}).EnvList() {
			line += "  " + mutedStyle.Render(kv)
		}
		fmt.Fprintln(out, line)
	}
	return nil
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
