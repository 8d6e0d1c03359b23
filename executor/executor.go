// Package executor implements action.Executor by routing each host to a
// transport: the local shell for the control host, SSH for everything else.
//
// Commands are rendered to a single shell line before they reach a transport,
// so both transports see the same thing:
//
//	cd /opt/asap && make install                    working directory
//	sudo -n sh -c 'cd /opt/asap && make install'    elevated
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nomis52/gostack/action"
)

// Transport runs a rendered command line on a host.
type Transport interface {
	Run(ctx context.Context, host, command string) (exitCode int, output string, err error)
}

// TransportFunc adapts a function to a Transport.
type TransportFunc func(ctx context.Context, host, command string) (int, string, error)

// Run implements Transport.
func (f TransportFunc) Run(ctx context.Context, host, command string) (int, string, error) {
	return f(ctx, host, command)
}

// Router dispatches commands to the transport registered for each host.
type Router struct {
	routes map[string]Transport
	sudo   string
	logger *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithSudo overrides the elevation prefix, "sudo -n" by default.
func WithSudo(prefix string) Option {
	return func(r *Router) { r.sudo = prefix }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) { r.logger = logger }
}

// New creates an empty Router.
func New(opts ...Option) *Router {
	r := &Router{
		routes: make(map[string]Transport),
		sudo:   "sudo -n",
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route registers the transport for host.
func (r *Router) Route(host string, t Transport) {
	r.routes[host] = t
}

// Execute implements action.Executor.
func (r *Router) Execute(ctx context.Context, host string, cmd action.Command) (int, string, error) {
	t, ok := r.routes[host]
	if !ok {
		return -1, "", fmt.Errorf("no transport for host %s", host)
	}
	line := r.Render(cmd)
	r.logger.Debug("executing", "host", host, "command", line)
	return t.Run(ctx, host, line)
}

// Render turns a Command into one shell line.
func (r *Router) Render(cmd action.Command) string {
	line := cmd.Run
	if cmd.Dir != "" {
		line = "cd " + Quote(cmd.Dir) + " && " + line
	}
	if cmd.Privilege == action.Elevated {
		line = r.sudo + " sh -c " + Quote(line)
	}
	return line
}

// Quote single-quotes s for a POSIX shell.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$`;&|<>()*?[]#~!{}") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
