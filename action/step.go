package action

import (
	"context"
	"fmt"
)

// Prompter asks the operator a yes/no question.
// A malformed answer is reported as an error wrapping ErrUsage.
type Prompter interface {
	Confirm(ctx context.Context, question string) (bool, error)
}

// Invocation is one request to run an Action on a host.
type Invocation struct {
	Action   Action
	Host     string
	Executor Executor
	Prompter Prompter
}

// Handler runs an Invocation to a Result.
type Handler func(ctx context.Context, inv Invocation) Result

// Layer is a policy wrapped around an Action at declaration time.
type Layer interface {
	// Name identifies the layer in logs.
	Name() string
	// Wrap returns a Handler that applies the policy before delegating to next.
	Wrap(next Handler) Handler
}

// Run is the terminal Handler: it executes the Action once and maps the Outcome.
func Run(ctx context.Context, inv Invocation) Result {
	outcome := inv.Action.Execute(ctx, inv.Executor, inv.Host)
	r := Result{
		Action:   inv.Action.String(),
		Host:     inv.Host,
		Outcome:  outcome,
		Attempts: 1,
	}
	if outcome.Succeeded {
		r.Status = StatusSucceeded
		return r
	}
	r.Status = StatusFailed
	r.Err = &Failure{
		Action:   inv.Action.String(),
		Host:     inv.Host,
		ExitCode: outcome.ExitCode,
		Output:   outcome.Output,
	}
	return r
}

// Step is an Action plus the policy layers declared around it.
type Step struct {
	Action Action
	// Layers are ordered outermost first.
	Layers []Layer
}

// NewStep returns a Step with no layers.
func NewStep(a Action) Step {
	return Step{Action: a}
}

// Guarded returns a copy of the Step with a Guard as the new outermost layer.
func (s Step) Guarded(check Action) Step {
	return s.wrap(Guard{Check: check})
}

// Gated returns a copy of the Step with a Gate as the new outermost layer.
func (s Step) Gated(prompt string) Step {
	return s.wrap(Gate{Prompt: prompt})
}

func (s Step) wrap(l Layer) Step {
	layers := make([]Layer, 0, len(s.Layers)+1)
	layers = append(layers, l)
	layers = append(layers, s.Layers...)
	return Step{Action: s.Action, Layers: layers}
}

// HasGuard reports whether the Step carries an idempotency Guard.
func (s Step) HasGuard() bool {
	for _, l := range s.Layers {
		if _, ok := l.(Guard); ok {
			return true
		}
	}
	return false
}

// HasGate reports whether the Step carries a confirmation Gate.
func (s Step) HasGate() bool {
	for _, l := range s.Layers {
		if _, ok := l.(Gate); ok {
			return true
		}
	}
	return false
}

// Handler composes the layers around terminal. A nil terminal means Run.
func (s Step) Handler(terminal Handler) Handler {
	h := terminal
	if h == nil {
		h = Run
	}
	for i := len(s.Layers) - 1; i >= 0; i-- {
		h = s.Layers[i].Wrap(h)
	}
	return h
}

// Execute runs the Step on host with the plain terminal Handler.
func (s Step) Execute(ctx context.Context, host string, ex Executor, p Prompter) Result {
	return s.Handler(nil)(ctx, Invocation{Action: s.Action, Host: host, Executor: ex, Prompter: p})
}

// Guard short-circuits to StatusSkippedIdempotent when Check succeeds on the host.
type Guard struct {
	Check Action
}

func (g Guard) Name() string {
	return "guard(" + g.Check.String() + ")"
}

func (g Guard) Wrap(next Handler) Handler {
	return func(ctx context.Context, inv Invocation) Result {
		present := g.Check.Execute(ctx, inv.Executor, inv.Host)
		if present.Succeeded {
			return Result{
				Action:  inv.Action.String(),
				Host:    inv.Host,
				Status:  StatusSkippedIdempotent,
				Outcome: present,
			}
		}
		return next(ctx, inv)
	}
}

// Gate asks the operator before delegating. Each invocation prompts afresh.
type Gate struct {
	Prompt string
}

func (g Gate) Name() string {
	return "confirm(" + g.Prompt + ")"
}

func (g Gate) Wrap(next Handler) Handler {
	return func(ctx context.Context, inv Invocation) Result {
		r := Result{Action: inv.Action.String(), Host: inv.Host}
		if inv.Prompter == nil {
			r.Status = StatusFailed
			r.Err = fmt.Errorf("%w: no operator prompt available for %q", ErrUsage, g.Prompt)
			return r
		}

		question := fmt.Sprintf("%s [%s]", g.Prompt, inv.Host)
		ok, err := inv.Prompter.Confirm(ctx, question)
		switch {
		case err != nil:
			r.Status = StatusFailed
			r.Err = err
		case !ok:
			r.Status = StatusSkippedByUser
			r.Err = ErrUserDeclined
		default:
			return next(ctx, inv)
		}
		return r
	}
}
