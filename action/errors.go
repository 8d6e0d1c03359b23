package action

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUserDeclined is recorded when the operator answers "n" at a Gate.
	ErrUserDeclined = errors.New("declined by operator")
	// ErrPreconditionMissing indicates a required environment input or tool is absent.
	ErrPreconditionMissing = errors.New("precondition missing")
	// ErrActionFailure indicates an underlying command reported failure.
	ErrActionFailure = errors.New("action failed")
	// ErrReadinessTimeout indicates a readiness poll exhausted its budget.
	ErrReadinessTimeout = errors.New("readiness timeout")
	// ErrUsage indicates malformed operator input. It is never retried.
	ErrUsage = errors.New("usage error")
)

// Failure describes a failed Action on a host, with the command's captured output.
// It matches ErrActionFailure with errors.Is, as does anything it wraps.
type Failure struct {
	Action   string
	Host     string
	ExitCode int
	Output   string
	// Err is an optional more specific cause, e.g. ErrReadinessTimeout.
	Err error
}

func (f *Failure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s on %s", f.Action, f.Host)
	if f.Err != nil {
		fmt.Fprintf(&b, ": %v", f.Err)
	} else {
		fmt.Fprintf(&b, ": exit code %d", f.ExitCode)
	}
	if out := strings.TrimSpace(f.Output); out != "" {
		fmt.Fprintf(&b, "\n%s", out)
	}
	return b.String()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func (f *Failure) Is(target error) bool {
	return target == ErrActionFailure
}
