package action

import (
	"context"
	"fmt"
)

// Privilege is the privilege level an Action requires on its host.
type Privilege int

const (
	// Normal runs the command as the connecting user.
	Normal Privilege = iota
	// Elevated runs the command through sudo.
	Elevated
)

// String returns a human-readable representation of the Privilege.
func (p Privilege) String() string {
	if p == Elevated {
		return "elevated"
	}
	return "normal"
}

// Scope selects which hosts of a role an Action targets.
type Scope int

const (
	// EachHost runs the Action on every host of the role.
	EachHost Scope = iota
	// PrimaryOnly runs the Action once, on the role's primary host.
	PrimaryOnly
)

// String returns a human-readable representation of the Scope.
func (s Scope) String() string {
	if s == PrimaryOnly {
		return "primary"
	}
	return "all"
}

// Command is the opaque command spec handed to an Executor.
type Command struct {
	// Run is the shell command line.
	Run string
	// Dir is the working directory. Empty means the login directory.
	Dir string
	// Privilege selects normal or elevated execution.
	Privilege Privilege
}

// Executor runs a command on a host.
//
// Execute returns the exit code and the combined output of the command. A
// non-nil error means the command could not be run at all (unreachable host,
// failed session) and the exit code is meaningless.
type Executor interface {
	Execute(ctx context.Context, host string, cmd Command) (exitCode int, output string, err error)
}

// Action is a single named operation against a host.
// Actions are side-effecting and not idempotent by themselves.
type Action struct {
	Name    string
	Command Command
	// Success decides whether a completed command counts as success.
	// A nil predicate means exit status 0.
	Success Predicate
	Scope   Scope
}

// Execute runs the Action on host through ex and applies the success predicate.
// There are no retries at this layer.
func (a Action) Execute(ctx context.Context, ex Executor, host string) Outcome {
	exitCode, output, err := ex.Execute(ctx, host, a.Command)
	if err != nil {
		if output != "" {
			output += "\n"
		}
		return Failed(-1, output+err.Error())
	}

	pred := a.Success
	if pred == nil {
		pred = ExitCode(0)
	}
	if pred.Satisfied(exitCode, output) {
		return Success(output)
	}
	return Failed(exitCode, output)
}

// String returns the Action name, falling back to the command line.
func (a Action) String() string {
	if a.Name != "" {
		return a.Name
	}
	return fmt.Sprintf("%q", a.Command.Run)
}
