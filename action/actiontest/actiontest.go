// Package actiontest provides in-memory Executor and Prompter fakes for tests.
package actiontest

import (
	"context"
	"fmt"
	"sync"

	"github.com/nomis52/gostack/action"
)

// Reply is the canned response to a command.
type Reply struct {
	ExitCode int
	Output   string
	Err      error
}

// Call records one command execution.
type Call struct {
	Host    string
	Command action.Command
}

// Executor is a thread-safe fake action.Executor.
// Commands without a registered reply succeed with empty output.
type Executor struct {
	mu      sync.Mutex
	replies map[string]func(host string) Reply
	calls   []Call
}

// NewExecutor creates an empty fake Executor.
func NewExecutor() *Executor {
	return &Executor{replies: make(map[string]func(host string) Reply)}
}

// On registers a fixed reply for a command line on every host.
func (e *Executor) On(run string, r Reply) *Executor {
	return e.OnFunc(run, func(string) Reply { return r })
}

// OnFunc registers a per-host reply function for a command line.
func (e *Executor) OnFunc(run string, fn func(host string) Reply) *Executor {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.replies[run] = fn
	return e
}

// Execute implements action.Executor.
func (e *Executor) Execute(_ context.Context, host string, cmd action.Command) (int, string, error) {
	e.mu.Lock()
	e.calls = append(e.calls, Call{Host: host, Command: cmd})
	fn := e.replies[cmd.Run]
	e.mu.Unlock()

	if fn == nil {
		return 0, "", nil
	}
	r := fn(host)
	return r.ExitCode, r.Output, r.Err
}

// Calls returns a copy of all recorded calls in execution order.
func (e *Executor) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Call, len(e.calls))
	copy(out, e.calls)
	return out
}

// Count returns how many times a command line ran, across all hosts.
func (e *Executor) Count(run string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		if c.Command.Run == run {
			n++
		}
	}
	return n
}

// Ran returns the command lines run on host, in order.
func (e *Executor) Ran(host string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for _, c := range e.calls {
		if c.Host == host {
			out = append(out, c.Command.Run)
		}
	}
	return out
}

// State is a tiny model of host state: a set of present paths per host.
// It lets tests express guarded installs ("test -e X" / "touch X") that
// become no-ops on a second run.
type State struct {
	mu      sync.Mutex
	present map[string]bool
}

// NewState creates an empty State.
func NewState() *State {
	return &State{present: make(map[string]bool)}
}

// Set marks path present or absent on host.
func (s *State) Set(host, path string, present bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.present[host+":"+path] = present
}

// Has reports whether path is present on host.
func (s *State) Has(host, path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.present[host+":"+path]
}

// Exists returns a reply function that succeeds when path is present.
func (s *State) Exists(path string) func(string) Reply {
	return func(host string) Reply {
		if s.Has(host, path) {
			return Reply{}
		}
		return Reply{ExitCode: 1}
	}
}

// Absent returns a reply function that succeeds when path is absent.
func (s *State) Absent(path string) func(string) Reply {
	return func(host string) Reply {
		if s.Has(host, path) {
			return Reply{ExitCode: 1}
		}
		return Reply{}
	}
}

// Create returns a reply function that marks path present.
func (s *State) Create(path string) func(string) Reply {
	return func(host string) Reply {
		s.Set(host, path, true)
		return Reply{}
	}
}

// Remove returns a reply function that marks path absent.
func (s *State) Remove(path string) func(string) Reply {
	return func(host string) Reply {
		s.Set(host, path, false)
		return Reply{}
	}
}

// Prompter answers confirmation questions from a script.
// "y" confirms, "n" declines, anything else is a usage error.
// When the script runs out every further question is declined.
type Prompter struct {
	mu        sync.Mutex
	answers   []string
	questions []string
}

// NewPrompter creates a Prompter that replies with answers in order.
func NewPrompter(answers ...string) *Prompter {
	return &Prompter{answers: answers}
}

// Confirm implements action.Prompter.
func (p *Prompter) Confirm(_ context.Context, question string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.questions = append(p.questions, question)
	if len(p.answers) == 0 {
		return false, nil
	}
	answer := p.answers[0]
	p.answers = p.answers[1:]
	switch answer {
	case "y":
		return true, nil
	case "n":
		return false, nil
	default:
		return false, fmt.Errorf("%w: expected y or n, got %q", action.ErrUsage, answer)
	}
}

// Questions returns the questions asked so far.
func (p *Prompter) Questions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.questions))
	copy(out, p.questions)
	return out
}
