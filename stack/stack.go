// Package stack turns a loaded config into the pieces a run needs: the
// component declarations, the host roles and an executor that reaches every
// host over its configured transport.
package stack

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/nomis52/gostack/action"
	"github.com/nomis52/gostack/clients/httpprobe"
	"github.com/nomis52/gostack/clients/shellclient"
	"github.com/nomis52/gostack/clients/sshclient"
	"github.com/nomis52/gostack/component"
	"github.com/nomis52/gostack/config"
	"github.com/nomis52/gostack/executor"
	"github.com/nomis52/gostack/hostrole"
	"github.com/nomis52/gostack/pipeline"
	"github.com/nomis52/gostack/poll"
)

// Stack is a config resolved into runtime declarations.
type Stack struct {
	Config     *config.Config
	Components []*component.Component
	Roles      *hostrole.Set
	Router     *executor.Router

	logger *slog.Logger
	pool   *sshclient.Pool
}

// Option configures Build.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	transports map[string]executor.Transport
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithTransport reaches host through t instead of its configured transport.
func WithTransport(host string, t executor.Transport) Option {
	return func(o *options) { o.transports[host] = t }
}

// Build resolves cfg. Ssh connections are opened lazily by the first command
// sent to each host.
func Build(cfg *config.Config, opts ...Option) (*Stack, error) {
	o := &options{logger: slog.Default(), transports: make(map[string]executor.Transport)}
	for _, opt := range opts {
		opt(o)
	}

	s := &Stack{
		Config: cfg,
		Router: executor.New(executor.WithSudo(cfg.SSH.Sudo), executor.WithLogger(o.logger)),
		logger: o.logger,
		pool:   sshclient.NewPool(o.logger),
	}
	if err := s.route(o.transports); err != nil {
		return nil, err
	}

	roles := make([]hostrole.Role, 0, len(cfg.Roles))
	for _, rc := range cfg.Roles {
		mode, err := hostrole.ParseMode(rc.Mode)
		if err != nil {
			return nil, fmt.Errorf("role %s: %w", rc.Name, err)
		}
		roles = append(roles, hostrole.Role{
			Name:        rc.Name,
			Hosts:       rc.Hosts,
			Mode:        mode,
			Primary:     rc.Primary,
			MaxParallel: rc.MaxParallel,
		})
	}
	set, err := hostrole.NewSet(roles...)
	if err != nil {
		return nil, err
	}
	s.Roles = set

	for _, cc := range cfg.Components {
		c, err := s.component(cc)
		if err != nil {
			return nil, err
		}
		s.Components = append(s.Components, c)
	}
	return s, nil
}

// Pipeline builds a pipeline over the stack. opts are applied after the
// stack's own executor, environment, retry delay and logger.
func (s *Stack) Pipeline(opts ...pipeline.Option) (*pipeline.Pipeline, error) {
	base := []pipeline.Option{
		pipeline.WithExecutor(s.Router),
		pipeline.WithEnv(s.Config.Env),
		pipeline.WithRetryDelay(s.Config.Behavior.RetryDelay),
		pipeline.WithLogger(s.logger),
	}
	return pipeline.New(s.Components, s.Roles, append(base, opts...)...)
}

// Close drops every open ssh connection.
func (s *Stack) Close() error {
	return s.pool.Close()
}

func (s *Stack) route(overrides map[string]executor.Transport) error {
	var local *shellclient.Client
	for _, h := range s.Config.Hosts {
		if t, ok := overrides[h.Name]; ok {
			s.Router.Route(h.Name, t)
			continue
		}
		switch h.Transport {
		case config.TransportLocal:
			if local == nil {
				local = shellclient.New(shellclient.WithLogger(s.logger))
			}
			shell := local
			s.Router.Route(h.Name, executor.TransportFunc(func(ctx context.Context, _ string, command string) (int, string, error) {
				return shell.Run(ctx, command)
			}))
		case config.TransportSSH:
			sc := sshclient.Config{
				User:                  h.User,
				KeyFile:               h.KeyFile,
				AgentSocket:           s.Config.Env["SSH_AUTH_SOCK"],
				KnownHostsFile:        s.Config.SSH.KnownHosts,
				InsecureIgnoreHostKey: s.Config.SSH.InsecureIgnoreHostKey,
				Timeout:               s.Config.SSH.Timeout,
			}
			clientCfg, err := sc.ClientConfig()
			if err != nil {
				return fmt.Errorf("host %s: %w", h.Name, err)
			}
			s.pool.Add(h.Name, net.JoinHostPort(h.Address, strconv.Itoa(h.Port)), clientCfg)
			s.Router.Route(h.Name, s.pool)
		default:
			return fmt.Errorf("host %s: unknown transport %q", h.Name, h.Transport)
		}
	}
	return nil
}

func (s *Stack) component(cc config.ComponentConfig) (*component.Component, error) {
	c := &component.Component{
		Name:          cc.Name,
		Role:          cc.Role,
		DependsOn:     cc.DependsOn,
		Steps:         make(map[component.Phase][]component.Step),
		BestEffort:    make(map[component.Phase]bool),
		RequiredEnv:   cc.RequiredEnv,
		RequiredTools: cc.RequiredTools,
	}

	bestEffort := []string{string(component.Test)}
	if cc.BestEffort != nil {
		bestEffort = *cc.BestEffort
	}
	for _, name := range bestEffort {
		p, err := component.ParsePhase(name)
		if err != nil {
			return nil, fmt.Errorf("component %s: %w", cc.Name, err)
		}
		c.BestEffort[p] = true
	}

	for name, steps := range cc.Phases {
		p, err := component.ParsePhase(name)
		if err != nil {
			return nil, fmt.Errorf("component %s: %w", cc.Name, err)
		}
		for _, sc := range steps {
			c.Steps[p] = append(c.Steps[p], s.step(sc))
		}
	}

	if cc.Readiness != nil {
		r, err := s.readiness(cc.Readiness)
		if err != nil {
			return nil, fmt.Errorf("component %s: %w", cc.Name, err)
		}
		c.Readiness = r
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Stack) step(sc config.StepConfig) component.Step {
	cmd := action.Command{Run: sc.Run, Dir: sc.Dir}
	if sc.Sudo {
		cmd.Privilege = action.Elevated
	}
	scope := action.EachHost
	if sc.On == "primary" {
		scope = action.PrimaryOnly
	}

	step := action.NewStep(action.Action{
		Name:    sc.Name,
		Command: cmd,
		Success: predicate(sc.Success),
		Scope:   scope,
	})
	if sc.Confirm != "" {
		step = step.Gated(sc.Confirm)
	}
	check := func(run string) action.Action {
		return action.Action{Command: action.Command{Run: run, Dir: sc.Dir, Privilege: cmd.Privilege}, Scope: scope}
	}
	if sc.Creates != "" {
		step = step.Guarded(check("test -e " + executor.Quote(sc.Creates)))
	}
	if sc.Removes != "" {
		step = step.Guarded(check("test ! -e " + executor.Quote(sc.Removes)))
	}
	if sc.SkipIf != "" {
		step = step.Guarded(check(sc.SkipIf))
	}

	retries := s.Config.Behavior.MaxRetries
	if sc.Retries != nil {
		retries = *sc.Retries
	}
	return component.Step{Step: step, Retries: retries}
}

func predicate(sc *config.SuccessConfig) action.Predicate {
	if sc == nil {
		return nil
	}
	var all action.All
	if sc.ExitCode != nil {
		all = append(all, action.ExitCode(*sc.ExitCode))
	}
	if sc.Contains != "" {
		all = append(all, action.Contains(sc.Contains))
	}
	if sc.Matches != "" {
		all = append(all, action.MustMatch(sc.Matches))
	}
	switch len(all) {
	case 0:
		return nil
	case 1:
		return all[0]
	}
	return all
}

func (s *Stack) readiness(rc *config.ReadinessConfig) (*component.Readiness, error) {
	r := &component.Readiness{Timeout: rc.Timeout, Period: rc.Period}
	if rc.Command != "" {
		check := action.Action{Name: "readiness", Command: action.Command{Run: rc.Command}}
		r.Description = rc.Command
		r.Probe = func(host string, ex action.Executor) poll.Probe {
			return poll.ActionProbe(check, ex, host)
		}
		return r, nil
	}

	// reject bad templates now rather than on every host
	if _, err := httpprobe.New(strings.ReplaceAll(rc.HTTP, "{host}", "localhost")); err != nil {
		return nil, err
	}
	r.Description = rc.HTTP
	r.Probe = func(host string, _ action.Executor) poll.Probe {
		url := strings.ReplaceAll(rc.HTTP, "{host}", s.address(host))
		checker, err := httpprobe.New(url, httpprobe.WithStatus(rc.Status), httpprobe.WithLogger(s.logger))
		if err != nil {
			s.logger.Warn("invalid readiness URL", "url", url, "error", err)
			return poll.ProbeFunc(func(context.Context) bool { return false })
		}
		return checker
	}
	return r, nil
}

func (s *Stack) address(host string) string {
	if h, ok := s.Config.Host(host); ok {
		return h.Address
	}
	return host
}
