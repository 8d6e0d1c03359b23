package component

import (
	"fmt"
	"sync"
)

// State is a component's position in its lifecycle for one pipeline run.
type State int

const (
	NotStarted State = iota
	InstallPending
	Installed
	Started
	Tested
	Stopped
	TornDown
	Failed
)

var stateNames = map[State]string{
	NotStarted:     "not-started",
	InstallPending: "install-pending",
	Installed:      "installed",
	Started:        "started",
	Tested:         "tested",
	Stopped:        "stopped",
	TornDown:       "torn-down",
	Failed:         "failed",
}

// String returns a human-readable representation of the State.
func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == TornDown || s == Failed
}

// AtLeast reports whether s is on the install path at or beyond other.
// Failed, Stopped and TornDown are never at least anything on that path.
func (s State) AtLeast(other State) bool {
	if s > Tested || other > Tested {
		return s == other
	}
	return s >= other
}

var transitions = map[State][]State{
	NotStarted:     {InstallPending},
	InstallPending: {Installed},
	Installed:      {Started},
	Started:        {Tested, Stopped},
	Tested:         {Stopped},
	Stopped:        {TornDown},
}

func allowed(from, to State) bool {
	if to == Failed {
		return !from.Terminal()
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Recorder receives every lifecycle transition of a run.
type Recorder interface {
	RecordTransition(component string, from, to State)
}

// Lifecycle is the state machine of one component in one run.
// It is safe for concurrent use.
type Lifecycle struct {
	mu        sync.Mutex
	component string
	state     State
	recorder  Recorder
}

// NewLifecycle starts a lifecycle in the given state.
// Runs that begin part way, such as remove, seed the state they assume.
func NewLifecycle(component string, initial State, rec Recorder) *Lifecycle {
	return &Lifecycle{component: component, state: initial, recorder: rec}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// To moves to the next state, rejecting transitions the lifecycle does not allow.
func (l *Lifecycle) To(next State) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !allowed(l.state, next) {
		return fmt.Errorf("component %s: invalid transition %s -> %s", l.component, l.state, next)
	}
	from := l.state
	l.state = next
	if l.recorder != nil {
		l.recorder.RecordTransition(l.component, from, next)
	}
	return nil
}

// Fail moves to Failed unless already terminal.
func (l *Lifecycle) Fail() {
	_ = l.To(Failed)
}
