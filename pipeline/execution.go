package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nomis52/gostack/action"
	"github.com/nomis52/gostack/component"
	"github.com/nomis52/gostack/hostrole"
	"github.com/nomis52/gostack/poll"
	"github.com/nomis52/gostack/status"
)

// phaseTarget is the state a successful phase moves the lifecycle to.
var phaseTarget = map[component.Phase]component.State{
	component.Install:   component.Installed,
	component.Start:     component.Started,
	component.Test:      component.Tested,
	component.Stop:      component.Stopped,
	component.Uninstall: component.TornDown,
}

// execution holds the per-run state of one operation.
type execution struct {
	p          *Pipeline
	run        *Run
	plan       plan
	ledger     *hostrole.Ledger
	outcomes   map[string]Outcome
	lifecycles map[string]*component.Lifecycle
}

// blockers returns the components in this run that must have completed
// before c may proceed: its dependencies going forward, its dependents in reverse.
func (e *execution) blockers(c *component.Component) []string {
	related := e.p.graph.deps[c.Name]
	if e.plan.reverse {
		related = e.p.graph.dependents[c.Name]
	}
	var blocked []string
	for _, r := range related {
		outcome, inRun := e.outcomes[r]
		if inRun && outcome != OutcomeCompleted {
			blocked = append(blocked, r)
		}
	}
	return blocked
}

func (e *execution) component(ctx context.Context, c *component.Component, base *slog.Logger) ComponentResult {
	logger := e.p.loggerFor(c, base)
	line := status.NewLine(c.Name, logger, e.p.statuses)
	lc := e.lifecycles[c.Name]
	res := ComponentResult{Name: c.Name}
	finish := func(o Outcome, err error) ComponentResult {
		res.Outcome = o
		res.State = lc.State()
		res.err = err
		if err != nil {
			line.Set("❌ " + err.Error())
		} else {
			line.Set(string(o))
		}
		return res
	}

	if err := ctx.Err(); err != nil {
		lc.Fail()
		return finish(OutcomeFailed, fmt.Errorf("%s: not started: %w", c.Name, err))
	}

	if blocked := e.blockers(c); len(blocked) > 0 {
		res.BlockedBy = blocked
		if e.plan.reverse {
			logger.Warn("keeping component, dependents are still installed", "dependents", blocked)
			return finish(OutcomeKept, nil)
		}
		logger.Error("skipping component, dependencies did not complete", "dependencies", blocked)
		lc.Fail()
		return finish(OutcomeFailedDownstream, nil)
	}

	role, _ := e.p.roles.Get(c.Role)
	line.Set("checking preconditions")
	if err := e.preflight(ctx, c, role, logger); err != nil {
		logger.Error("precondition missing", "error", err)
		lc.Fail()
		return finish(OutcomeFailed, err)
	}

	for _, phase := range e.plan.phases {
		if phase == component.Install {
			if err := lc.To(component.InstallPending); err != nil {
				lc.Fail()
				return finish(OutcomeFailed, err)
			}
		}

		step := e.phase(ctx, c, role, phase, line, logger)
		switch {
		case step.Status == action.StatusFailed && !step.BestEffort:
			lc.Fail()
			return finish(OutcomeFailed, fmt.Errorf("%s %s: %w", c.Name, phase, step.err))
		case step.Status == action.StatusSkippedByUser:
			logger.Warn("component left as is, operator declined", "phase", phase)
			return finish(OutcomeDeclined, nil)
		}

		if err := lc.To(phaseTarget[phase]); err != nil {
			lc.Fail()
			return finish(OutcomeFailed, err)
		}
	}
	logger.Info("component completed", "state", lc.State())
	return finish(OutcomeCompleted, nil)
}

// preflight checks environment inputs and required tools before any action runs.
func (e *execution) preflight(ctx context.Context, c *component.Component, role hostrole.Role, logger *slog.Logger) error {
	if err := c.CheckEnv(e.p.env); err != nil {
		return err
	}
	if len(c.RequiredTools) == 0 {
		return nil
	}

	results := role.ForEachHost(ctx, role.Hosts, func(ctx context.Context, host string) action.Result {
		logger.Debug("checking required tools", "host", host, "tools", c.RequiredTools)
		r := action.Result{Action: "preflight", Host: host, Status: action.StatusSucceeded}
		if err := c.CheckTools(ctx, e.p.executor, host); err != nil {
			r.Status = action.StatusFailed
			r.Err = err
		}
		return r
	})

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errors.Join(errs...)
}

func (e *execution) phase(ctx context.Context, c *component.Component, role hostrole.Role, phase component.Phase, line *status.Line, base *slog.Logger) Step {
	logger := base.With("phase", string(phase))
	st := Step{Component: c.Name, Phase: phase, Started: time.Now()}
	logger.Info("phase started", "steps", len(c.StepsFor(phase)))
	line.Set(string(phase) + " running")

	var statuses []action.Status
	var errs []error
	for i, s := range c.StepsFor(phase) {
		rec := e.step(ctx, c, role, phase, i, s, logger)
		st.Actions = append(st.Actions, rec)
		statuses = append(statuses, rec.Status)
		if rec.Status == action.StatusFailed {
			errs = append(errs, hostErrors(rec)...)
			break
		}
	}

	if phase == component.Start && c.Readiness != nil {
		if status := action.Combine(statuses...); status.Ok() {
			line.Set("waiting for " + c.Readiness.Description)
			rec := e.readiness(ctx, c, role, logger)
			st.Actions = append(st.Actions, rec)
			statuses = append(statuses, rec.Status)
			errs = append(errs, hostErrors(rec)...)
		}
	}

	st.Status = action.Combine(statuses...)
	st.Duration = time.Since(st.Started)
	if st.Status == action.StatusFailed {
		st.err = errors.Join(errs...)
		if st.err == nil {
			st.err = action.ErrActionFailure
		}
		if c.IsBestEffort(phase) {
			st.BestEffort = true
			warning := fmt.Sprintf("%s %s failed (best-effort): %v", c.Name, phase, st.err)
			e.run.addWarning(warning)
			logger.Warn("best-effort phase failed", "error", st.err)
		} else {
			logger.Error("phase failed", "error", st.err)
		}
	} else {
		logger.Info("phase completed", "status", st.Status, "duration", st.Duration)
	}

	e.run.addStep(st)
	e.p.metrics.step(e.run.Operation, st)
	return st
}

func (e *execution) step(ctx context.Context, c *component.Component, role hostrole.Role, phase component.Phase, idx int, s component.Step, logger *slog.Logger) ActionRecord {
	logger = logger.With("action", s.Action.String())
	handler := s.Handler(e.p.retrying(s.Retries, logger))
	hosts := role.Targets(s.Action.Scope)

	runOn := func(ctx context.Context, host string) action.Result {
		hl := logger.With("host", host)
		hl.Debug("running action", "command", s.Action.Command.Run)
		res := handler(ctx, action.Invocation{
			Action:   s.Action,
			Host:     host,
			Executor: e.p.executor,
			Prompter: e.p.prompter,
		})
		logResult(hl, res)
		return res
	}

	var results []action.Result
	if s.Action.Scope == action.PrimaryOnly && len(hosts) > 0 {
		key := fmt.Sprintf("%s/%s/%d", c.Name, phase, idx)
		res, ran := e.ledger.Once(key, func() action.Result { return runOn(ctx, hosts[0]) })
		if !ran {
			logger.Debug("primary-only action already ran in this run", "host", res.Host)
		}
		results = []action.Result{res}
	} else {
		results = role.ForEachHost(ctx, hosts, runOn)
	}

	return ActionRecord{
		Name:   s.Action.String(),
		Scope:  s.Action.Scope.String(),
		Status: hostrole.Status(results),
		Hosts:  results,
	}
}

func (e *execution) readiness(ctx context.Context, c *component.Component, role hostrole.Role, logger *slog.Logger) ActionRecord {
	r := c.Readiness
	name := "await " + r.Description
	logger = logger.With("action", name)

	results := role.ForEachHost(ctx, role.Hosts, func(ctx context.Context, host string) action.Result {
		logger.Info("waiting for readiness", "host", host, "timeout", r.Timeout, "period", r.Period)
		res := action.Result{Action: name, Host: host, Attempts: 1}

		outcome, err := poll.WaitUntil(ctx, r.Probe(host, e.p.executor), r.Timeout, r.Period)
		if err == nil && outcome == poll.Satisfied {
			res.Status = action.StatusSucceeded
			res.Outcome = action.Success("")
			logger.Info("ready", "host", host)
			return res
		}

		cause := fmt.Errorf("%w after %s", action.ErrReadinessTimeout, r.Timeout)
		if err != nil {
			cause = fmt.Errorf("%w: %v", action.ErrReadinessTimeout, err)
		}
		res.Status = action.StatusFailed
		res.Outcome = action.Failed(-1, "")
		res.Err = &action.Failure{Action: name, Host: host, ExitCode: -1, Err: cause}
		logger.Error("readiness not reached", "host", host, "error", cause)
		return res
	})

	return ActionRecord{
		Name:   name,
		Scope:  action.EachHost.String(),
		Status: hostrole.Status(results),
		Hosts:  results,
	}
}

func hostErrors(rec ActionRecord) []error {
	var errs []error
	for _, h := range rec.Hosts {
		if h.Status == action.StatusFailed && h.Err != nil {
			errs = append(errs, h.Err)
		}
	}
	return errs
}

func logResult(logger *slog.Logger, res action.Result) {
	switch res.Status {
	case action.StatusSucceeded:
		logger.Info("action succeeded", "attempts", res.Attempts)
	case action.StatusSkippedIdempotent:
		logger.Info("already in place, skipped")
	case action.StatusSkippedByUser:
		logger.Warn("declined by operator")
	case action.StatusFailed:
		logger.Error("action failed", "attempts", res.Attempts, "error", res.Err)
	}
}
