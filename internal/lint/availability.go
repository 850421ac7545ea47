package lint

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// findSpecScript exits zero when the module named by argv[1] is importable.
const findSpecScript = "import importlib.util, sys; sys.exit(0 if importlib.util.find_spec(sys.argv[1]) else 1)"

// ToolStatus reports whether one tool of a suite can be launched.
type ToolStatus struct {
	// Name is the Python module or binary that was checked.
	Name      string   `json:"name"`
	Dir       string   `json:"dir"`
	Available bool     `json:"available"`
	Version   string   `json:"version,omitempty"`
	Error     string   `json:"error,omitempty"`
	UsedBy    []string `json:"used_by"`
}

type toolKey struct {
	name string
	dir  string
}

// CheckTools checks that the interpreter and every module or binary used by
// suite can be found. Modules are looked up from the invocation's working
// directory so local wrappers (e.g. a linters.py next to the tests) resolve.
func (r *Runner) CheckTools(ctx context.Context, suite *Suite) []ToolStatus {
	var (
		order   []toolKey
		results = make(map[toolKey]*ToolStatus)
	)

	for _, inv := range suite.Invocations {
		key := toolKey{dir: inv.ResolveDir(r.root)}
		if inv.Binary != "" {
			key.name = inv.Binary
		} else {
			key.name = inv.ModuleName()
		}
		if pr, ok := results[key]; ok {
			pr.UsedBy = append(pr.UsedBy, inv.Name)
			continue
		}
		order = append(order, key)
		results[key] = &ToolStatus{Name: key.name, Dir: key.dir, UsedBy: []string{inv.Name}}
		r.checkOne(ctx, inv, results[key])
	}

	out := make([]ToolStatus, 0, len(order))
	for _, key := range order {
		out = append(out, *results[key])
	}
	return out
}

func (r *Runner) checkOne(ctx context.Context, inv Invocation, pr *ToolStatus) {
	versionInv := inv
	if inv.Binary == "" {
		findInv := Invocation{Name: inv.Name, Tool: ToolModule, Binary: r.python, Dir: inv.Dir,
			Args: []string{"-c", findSpecScript, inv.ModuleName()}}
		if _, err := r.Run(ctx, findInv); err != nil {
			pr.Error = checkError(err, fmt.Sprintf("module %s is not importable", inv.ModuleName()))
			return
		}
		pr.Available = true
		if inv.Tool == ToolModule {
			// Project-local wrappers do not promise a --version flag.
			return
		}
	}

	versionInv.Args = []string{"--version"}
	versionInv.Env = nil
	res, err := r.Run(ctx, versionInv)
	if err != nil {
		if inv.Binary != "" {
			pr.Error = checkError(err, "")
		}
		return
	}
	pr.Available = true
	pr.Version = firstLine(res.Output)
}

func checkError(err error, fallback string) string {
	var toolErr *ToolError
	if fallback != "" && errors.As(err, &toolErr) && !toolErr.Killed {
		return fallback
	}
	return err.Error()
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
