package action

import (
	"fmt"
	"regexp"
	"strings"
)

// Outcome is the result of executing one Action on one host:
// either Success(output) or Failed(exitCode, output).
type Outcome struct {
	Succeeded bool   `json:"succeeded"`
	ExitCode  int    `json:"exit_code"`
	Output    string `json:"output,omitempty"`
}

// Success returns a successful Outcome.
func Success(output string) Outcome {
	return Outcome{Succeeded: true, Output: output}
}

// Failed returns a failed Outcome. An exit code of -1 means the command never ran.
func Failed(exitCode int, output string) Outcome {
	return Outcome{Succeeded: false, ExitCode: exitCode, Output: output}
}

// Predicate decides whether a completed command succeeded.
type Predicate interface {
	Satisfied(exitCode int, output string) bool
	String() string
}

// ExitCode is satisfied when the command exits with the given status.
type ExitCode int

func (e ExitCode) Satisfied(exitCode int, _ string) bool {
	return exitCode == int(e)
}

func (e ExitCode) String() string {
	return fmt.Sprintf("exit code %d", int(e))
}

// Contains is satisfied when the command exits 0 and its output contains the text.
type Contains string

func (c Contains) Satisfied(exitCode int, output string) bool {
	return exitCode == 0 && strings.Contains(output, string(c))
}

func (c Contains) String() string {
	return fmt.Sprintf("output contains %q", string(c))
}

// Matches is satisfied when the command exits 0 and its output matches the expression.
type Matches struct {
	Expr *regexp.Regexp
}

// MustMatch compiles expr into a Matches predicate, panicking on a bad expression.
func MustMatch(expr string) Matches {
	return Matches{Expr: regexp.MustCompile(expr)}
}

func (m Matches) Satisfied(exitCode int, output string) bool {
	return exitCode == 0 && m.Expr.MatchString(output)
}

func (m Matches) String() string {
	return fmt.Sprintf("output matches /%s/", m.Expr.String())
}

// All is satisfied when every predicate is.
type All []Predicate

func (a All) Satisfied(exitCode int, output string) bool {
	for _, p := range a {
		if !p.Satisfied(exitCode, output) {
			return false
		}
	}
	return true
}

func (a All) String() string {
	parts := make([]string, len(a))
	for i, p := range a {
		parts[i] = p.String()
	}
	return strings.Join(parts, " and ")
}
