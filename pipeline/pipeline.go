// Package pipeline runs component lifecycles across their host roles.
//
// Bootstrap installs, starts and tests every component in dependency order.
// Remove stops and uninstalls them in exactly the reverse order. A failed
// component blocks its dependents but not unrelated branches of the graph.
// Every invocation produces a fresh Run recording the steps, per-host results
// and lifecycle transitions.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/nomis52/gostack/action"
	"github.com/nomis52/gostack/component"
	"github.com/nomis52/gostack/hostrole"
	"github.com/nomis52/gostack/logging"
	"github.com/nomis52/gostack/metrics"
	"github.com/nomis52/gostack/status"
)

// Pipeline is built once from immutable declarations and can run any number
// of operations, one at a time.
type Pipeline struct {
	components map[string]*component.Component
	graph      *graph
	order      []string
	roles      *hostrole.Set

	executor   action.Executor
	prompter   action.Prompter
	env        map[string]string
	retryDelay time.Duration
	logger     *slog.Logger
	hook       logging.LoggerHook
	registry   metrics.Registry
	metrics    *runMetrics
	statuses   *status.Handler
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithExecutor sets how actions reach hosts. Required.
func WithExecutor(ex action.Executor) Option {
	return func(p *Pipeline) { p.executor = ex }
}

// WithPrompter sets the operator confirmation channel. Without one every
// confirmation gate fails with a usage error.
func WithPrompter(pr action.Prompter) Option {
	return func(p *Pipeline) { p.prompter = pr }
}

// WithEnv sets the environment snapshot used for required_env checks.
func WithEnv(env map[string]string) Option {
	return func(p *Pipeline) { p.env = env }
}

// WithRetryDelay sets the pause between retries of a failed action.
func WithRetryDelay(d time.Duration) Option {
	return func(p *Pipeline) { p.retryDelay = d }
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithLoggerHook derives per-component loggers, e.g. to capture them for the report.
func WithLoggerHook(hook logging.LoggerHook) Option {
	return func(p *Pipeline) { p.hook = hook }
}

// WithMetrics records run metrics in reg.
func WithMetrics(reg metrics.Registry) Option {
	return func(p *Pipeline) { p.registry = reg }
}

// WithStatusHandler publishes a live status line per component to h.
func WithStatusHandler(h *status.Handler) Option {
	return func(p *Pipeline) { p.statuses = h }
}

// New validates the declarations and computes the bootstrap order.
func New(components []*component.Component, roles *hostrole.Set, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		components: make(map[string]*component.Component, len(components)),
		roles:      roles,
		logger:     slog.Default(),
		registry:   metrics.Nop{},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.executor == nil {
		return nil, fmt.Errorf("no executor configured")
	}
	if roles == nil {
		return nil, fmt.Errorf("no host roles configured")
	}

	for _, c := range components {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if _, ok := roles.Get(c.Role); !ok {
			return nil, fmt.Errorf("component %s: unknown role %s", c.Name, c.Role)
		}
		p.components[c.Name] = c
	}

	g, err := newGraph(components)
	if err != nil {
		return nil, err
	}
	order, err := g.order()
	if err != nil {
		return nil, err
	}
	p.graph = g
	p.order = order

	if p.metrics, err = newRunMetrics(p.registry); err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}
	return p, nil
}

// Order returns the bootstrap order.
func (p *Pipeline) Order() []string {
	return slices.Clone(p.order)
}

// RemoveOrder returns the teardown order, the exact reverse of Order.
func (p *Pipeline) RemoveOrder() []string {
	order := p.Order()
	slices.Reverse(order)
	return order
}

// Bootstrap runs install, start and test for every component.
func (p *Pipeline) Bootstrap(ctx context.Context) *Run {
	run, _ := p.Execute(ctx, "bootstrap")
	return run
}

// Remove runs stop and uninstall for every component in reverse order.
func (p *Pipeline) Remove(ctx context.Context) *Run {
	run, _ := p.Execute(ctx, "remove")
	return run
}

// plan describes what an operation does to each selected component.
type plan struct {
	phases []component.Phase
	// initial is the lifecycle state assumed at the start, since no state
	// survives between runs.
	initial component.State
	reverse bool
}

var plans = map[string]plan{
	"bootstrap": {phases: []component.Phase{component.Install, component.Start, component.Test}, initial: component.NotStarted},
	"remove":    {phases: []component.Phase{component.Stop, component.Uninstall}, initial: component.Started, reverse: true},
	"install":   {phases: []component.Phase{component.Install}, initial: component.NotStarted},
	"start":     {phases: []component.Phase{component.Start}, initial: component.Installed},
	"test":      {phases: []component.Phase{component.Test}, initial: component.Started},
	"stop":      {phases: []component.Phase{component.Stop}, initial: component.Started, reverse: true},
	"uninstall": {phases: []component.Phase{component.Uninstall}, initial: component.Stopped, reverse: true},
}

var verbs = []string{"bootstrap", "remove", "install", "start", "test", "stop", "uninstall"}

// Operations lists every operation name the pipeline accepts.
func (p *Pipeline) Operations() []string {
	ops := slices.Clone(verbs)
	for _, name := range p.order {
		for _, v := range verbs {
			ops = append(ops, v+"_"+name)
		}
	}
	return ops
}

// resolve maps an operation name to its plan and the ordered components it touches.
// bootstrap_<c> brings in c's dependencies and remove_<c> c's dependents, so
// the ordering guarantees hold for single-component operations too.
func (p *Pipeline) resolve(op string) (plan, []string, error) {
	verb, name, scoped := strings.Cut(op, "_")
	pl, ok := plans[verb]
	if !ok {
		return plan{}, nil, fmt.Errorf("%w: unknown operation %q", action.ErrUsage, op)
	}

	var members map[string]bool
	if scoped {
		if _, ok := p.components[name]; !ok {
			return plan{}, nil, fmt.Errorf("%w: unknown component %q in operation %q", action.ErrUsage, name, op)
		}
		switch verb {
		case "bootstrap":
			members = p.graph.withDependencies(name)
		case "remove":
			members = p.graph.withDependents(name)
		default:
			members = map[string]bool{name: true}
		}
	}

	order := make([]string, 0, len(p.order))
	for _, n := range p.order {
		if members == nil || members[n] {
			order = append(order, n)
		}
	}
	if pl.reverse {
		slices.Reverse(order)
	}
	return pl, order, nil
}

// PlannedStep is one (component, phase) an operation would run.
type PlannedStep struct {
	Component string          `json:"component"`
	Phase     component.Phase `json:"phase"`
	Role      string          `json:"role"`
	Hosts     []string        `json:"hosts"`
	Actions   []string        `json:"actions"`
}

// Plan returns the steps op would run, in order, without running anything.
func (p *Pipeline) Plan(op string) ([]PlannedStep, error) {
	pl, order, err := p.resolve(op)
	if err != nil {
		return nil, err
	}
	var steps []PlannedStep
	for _, name := range order {
		c := p.components[name]
		role, _ := p.roles.Get(c.Role)
		for _, phase := range pl.phases {
			ps := PlannedStep{Component: name, Phase: phase, Role: role.Name, Hosts: slices.Clone(role.Hosts)}
			for _, s := range c.StepsFor(phase) {
				desc := s.Action.String()
				if s.Action.Scope == action.PrimaryOnly {
					desc += " (on " + role.PrimaryHost() + ")"
				}
				ps.Actions = append(ps.Actions, desc)
			}
			if phase == component.Start && c.Readiness != nil {
				ps.Actions = append(ps.Actions, "await "+c.Readiness.Description)
			}
			steps = append(steps, ps)
		}
	}
	return steps, nil
}

// Execute runs a named operation: bootstrap, remove, install, start, test,
// stop or uninstall, optionally suffixed with _<component>. The error is only
// for an unknown operation; failures during the run are in Run.Err.
func (p *Pipeline) Execute(ctx context.Context, op string) (*Run, error) {
	pl, order, err := p.resolve(op)
	if err != nil {
		return nil, err
	}

	run := newRun(op)
	logger := p.logger.With("operation", op, "run_id", run.ID)
	logger.Info("run started", "components", strings.Join(order, ","))

	e := &execution{
		p:          p,
		run:        run,
		plan:       pl,
		ledger:     hostrole.NewLedger(),
		outcomes:   make(map[string]Outcome, len(order)),
		lifecycles: make(map[string]*component.Lifecycle, len(order)),
	}
	for _, name := range order {
		e.lifecycles[name] = component.NewLifecycle(name, pl.initial, run)
	}
	for _, name := range order {
		res := e.component(ctx, p.components[name], logger)
		e.outcomes[name] = res.Outcome
		run.setResult(res)
		p.metrics.component(res)
	}

	run.Finished = time.Now()
	p.metrics.run(run)
	if err := run.Err(); err != nil {
		logger.Error("run failed", "duration", run.Duration(), "error", err)
	} else {
		logger.Info("run completed", "duration", run.Duration(), "warnings", len(run.Warnings))
	}
	return run, nil
}

func (p *Pipeline) loggerFor(c *component.Component, base *slog.Logger) *slog.Logger {
	if p.hook != nil {
		base = p.hook.LoggerFor(base, c.Name)
	}
	return base.With("component", c.Name)
}
