package pipeline

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nomis52/gostack/action"
	"github.com/nomis52/gostack/component"
)

// ActionRecord is one step of a phase with its per-host results.
type ActionRecord struct {
	Name   string          `json:"name"`
	Scope  string          `json:"scope"`
	Status action.Status   `json:"status"`
	Hosts  []action.Result `json:"hosts"`
}

// Step is one (component, phase) entry of a run.
type Step struct {
	Seq       int             `json:"seq"`
	Component string          `json:"component"`
	Phase     component.Phase `json:"phase"`
	Status    action.Status   `json:"status"`
	// BestEffort marks a failure that was recorded as a warning.
	BestEffort bool           `json:"best_effort,omitempty"`
	Actions    []ActionRecord `json:"actions"`
	Started    time.Time      `json:"started"`
	Duration   time.Duration  `json:"duration"`
	Error      string         `json:"error,omitempty"`

	err error
}

// Err returns the failure behind a failed step.
func (s Step) Err() error {
	return s.err
}

// Transition is one lifecycle state change, ordered by Seq across the run.
type Transition struct {
	Seq       int             `json:"seq"`
	Component string          `json:"component"`
	From      component.State `json:"from"`
	To        component.State `json:"to"`
	At        time.Time       `json:"at"`
}

// Outcome summarizes what happened to one component in a run.
type Outcome string

const (
	// OutcomeCompleted means every phase of the operation finished.
	OutcomeCompleted Outcome = "completed"
	// OutcomeFailed means a phase failed or a precondition was missing.
	OutcomeFailed Outcome = "failed"
	// OutcomeFailedDownstream means a dependency failed so nothing ran.
	OutcomeFailedDownstream Outcome = "failed-downstream"
	// OutcomeDeclined means the operator declined a confirmation.
	OutcomeDeclined Outcome = "declined"
	// OutcomeKept means teardown was skipped because a dependent is still installed.
	OutcomeKept Outcome = "kept"
)

// ComponentResult is the final state of one component in a run.
type ComponentResult struct {
	Name    string          `json:"name"`
	Outcome Outcome         `json:"outcome"`
	State   component.State `json:"state"`
	// BlockedBy names the components that prevented this one from running.
	BlockedBy []string `json:"blocked_by,omitempty"`
	Error     string   `json:"error,omitempty"`

	err error
}

// Err returns the error that failed the component, if any.
func (c ComponentResult) Err() error {
	return c.err
}

// Run is the record of one operation. It is created fresh for every
// invocation and never persisted, so a run cannot be resumed.
type Run struct {
	ID          string            `json:"id"`
	Operation   string            `json:"operation"`
	Started     time.Time         `json:"started"`
	Finished    time.Time         `json:"finished"`
	Steps       []Step            `json:"steps"`
	Transitions []Transition      `json:"transitions"`
	Components  []ComponentResult `json:"components"`
	Warnings    []string          `json:"warnings,omitempty"`

	mu  sync.Mutex
	seq int
}

func newRun(operation string) *Run {
	return &Run{
		ID:        uuid.NewString(),
		Operation: operation,
		Started:   time.Now(),
	}
}

func (r *Run) next() int {
	r.seq++
	return r.seq
}

// RecordTransition implements component.Recorder.
func (r *Run) RecordTransition(name string, from, to component.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Transitions = append(r.Transitions, Transition{
		Seq:       r.next(),
		Component: name,
		From:      from,
		To:        to,
		At:        time.Now(),
	})
}

func (r *Run) addStep(s Step) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.Seq = r.next()
	if s.err != nil {
		s.Error = s.err.Error()
	}
	r.Steps = append(r.Steps, s)
}

func (r *Run) addWarning(w string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Warnings = append(r.Warnings, w)
}

func (r *Run) setResult(c ComponentResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.err != nil {
		c.Error = c.err.Error()
	}
	r.Components = append(r.Components, c)
}

// Result returns the named component's result.
func (r *Run) Result(name string) (ComponentResult, bool) {
	for _, c := range r.Components {
		if c.Name == name {
			return c, true
		}
	}
	return ComponentResult{}, false
}

// StepsWith returns the steps that ended in status.
func (r *Run) StepsWith(status action.Status) []Step {
	var out []Step
	for _, s := range r.Steps {
		if s.Status == status {
			out = append(out, s)
		}
	}
	return out
}

// TransitionSeq returns the sequence index of the component's transition into
// state, or 0 if it never happened.
func (r *Run) TransitionSeq(name string, to component.State) int {
	for _, t := range r.Transitions {
		if t.Component == name && t.To == to {
			return t.Seq
		}
	}
	return 0
}

// Duration is the wall-clock time of the run.
func (r *Run) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// Err joins the errors of every failed component. Best-effort failures,
// declines and blocked dependents do not count.
func (r *Run) Err() error {
	var errs []error
	for _, c := range r.Components {
		if c.Outcome == OutcomeFailed && c.err != nil {
			errs = append(errs, c.err)
		}
	}
	return errors.Join(errs...)
}

// Succeeded reports whether the run exits cleanly.
func (r *Run) Succeeded() bool {
	return r.Err() == nil
}
