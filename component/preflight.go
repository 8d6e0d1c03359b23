package component

import (
	"context"
	"fmt"
	"strings"

	"github.com/nomis52/gostack/action"
)

// PreconditionError lists environment inputs or tools a component needs but lacks.
type PreconditionError struct {
	Component string
	// Host is empty for environment variables, which are read on the control host.
	Host    string
	Missing []string
}

func (e *PreconditionError) Error() string {
	where := ""
	if e.Host != "" {
		where = " on " + e.Host
	}
	return fmt.Sprintf("%s: missing%s: %s", e.Component, where, strings.Join(e.Missing, ", "))
}

func (e *PreconditionError) Is(target error) bool {
	return target == action.ErrPreconditionMissing
}

// CheckEnv verifies every required environment input is present and non-empty
// in the snapshot taken at startup.
func (c *Component) CheckEnv(env map[string]string) error {
	var missing []string
	for _, name := range c.RequiredEnv {
		if env[name] == "" {
			missing = append(missing, "$"+name)
		}
	}
	if len(missing) > 0 {
		return &PreconditionError{Component: c.Name, Missing: missing}
	}
	return nil
}

// ToolCheck returns the action that looks up tool on a host's PATH.
func ToolCheck(tool string) action.Action {
	return action.Action{
		Name:    "require " + tool,
		Command: action.Command{Run: "command -v " + tool},
	}
}

// CheckTools verifies every required tool exists on host.
// A host that cannot be reached at all is reported as an error, not a missing tool.
func (c *Component) CheckTools(ctx context.Context, ex action.Executor, host string) error {
	var missing []string
	for _, tool := range c.RequiredTools {
		check := ToolCheck(tool)
		code, _, err := ex.Execute(ctx, host, check.Command)
		if err != nil {
			return fmt.Errorf("%s: checking %s on %s: %w", c.Name, tool, host, err)
		}
		if code != 0 {
			missing = append(missing, tool)
		}
	}
	if len(missing) > 0 {
		return &PreconditionError{Component: c.Name, Host: host, Missing: missing}
	}
	return nil
}
