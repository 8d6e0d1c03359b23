// Package component declares deployable units and tracks their lifecycle.
//
// A Component groups guarded and gated steps into the install, start, stop,
// test and uninstall phases, names the role whose hosts it runs on and lists
// the components it depends on. Components are built once at startup and
// never modified afterwards.
package component

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/nomis52/gostack/action"
	"github.com/nomis52/gostack/poll"
)

// Phase names a group of steps in a component's lifecycle.
type Phase string

const (
	Install   Phase = "install"
	Start     Phase = "start"
	Stop      Phase = "stop"
	Test      Phase = "test"
	Uninstall Phase = "uninstall"
)

// Phases lists all phases in lifecycle order.
var Phases = []Phase{Install, Start, Test, Stop, Uninstall}

// ParsePhase converts a config value to a Phase.
func ParsePhase(s string) (Phase, error) {
	p := Phase(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(Phases, p) {
		return "", fmt.Errorf("unknown phase %q", s)
	}
	return p, nil
}

// Step is an action.Step plus its retry budget for action failures.
type Step struct {
	action.Step
	// Retries is the number of extra attempts after an action failure.
	Retries int
}

// ProbeFunc builds the readiness probe for one host.
type ProbeFunc func(host string, ex action.Executor) poll.Probe

// Readiness describes a network-visible signal checked after start.
type Readiness struct {
	// Description is shown in logs, e.g. the probed URL.
	Description string
	Probe       ProbeFunc
	Timeout     time.Duration
	Period      time.Duration
}

// Component is one deployable unit.
type Component struct {
	Name      string
	Role      string
	DependsOn []string
	Steps     map[Phase][]Step
	// Readiness is optional. When set, start only completes once it holds on every host.
	Readiness *Readiness
	// BestEffort phases record failures as warnings instead of failing the component.
	BestEffort map[Phase]bool
	// RequiredEnv names environment inputs that must be set before any action runs.
	RequiredEnv []string
	// RequiredTools are executables that must be on PATH on every host.
	RequiredTools []string
}

// StepsFor returns the steps of a phase.
func (c *Component) StepsFor(p Phase) []Step {
	return c.Steps[p]
}

// IsBestEffort reports whether failures in phase p are only warnings.
func (c *Component) IsBestEffort(p Phase) bool {
	return c.BestEffort[p]
}

// Validate checks the declaration on its own. Cross-component checks such as
// unknown dependencies and cycles belong to the pipeline.
func (c *Component) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("component name is required")
	}
	if strings.ContainsAny(c.Name, " \t") {
		return fmt.Errorf("component %q: name must not contain whitespace", c.Name)
	}
	if c.Role == "" {
		return fmt.Errorf("component %s: role is required", c.Name)
	}
	if slices.Contains(c.DependsOn, c.Name) {
		return fmt.Errorf("component %s: depends on itself", c.Name)
	}
	if c.IsBestEffort(Install) {
		return fmt.Errorf("component %s: install cannot be best-effort", c.Name)
	}
	for i, s := range c.StepsFor(Install) {
		if !s.HasGuard() {
			return fmt.Errorf("component %s: install step %d (%s) has no existence check", c.Name, i+1, s.Action)
		}
		if s.HasGate() {
			return fmt.Errorf("component %s: install step %d (%s) must not ask for confirmation", c.Name, i+1, s.Action)
		}
	}
	for p, steps := range c.Steps {
		if !slices.Contains(Phases, p) {
			return fmt.Errorf("component %s: unknown phase %q", c.Name, p)
		}
		for i, s := range steps {
			if s.Retries < 0 {
				return fmt.Errorf("component %s: %s step %d: retries must not be negative", c.Name, p, i+1)
			}
		}
	}
	if r := c.Readiness; r != nil {
		if r.Probe == nil {
			return fmt.Errorf("component %s: readiness has no probe", c.Name)
		}
		if r.Timeout <= 0 || r.Period <= 0 {
			return fmt.Errorf("component %s: readiness timeout and period must be positive", c.Name)
		}
	}
	return nil
}
