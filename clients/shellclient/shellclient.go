// Package shellclient runs command lines on the control host through sh -c.
package shellclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
)

const defaultShell = "/bin/sh"

// CommandRunner executes an external command and returns its combined output.
type CommandRunner interface {
	Run(name string, args ...string) ([]byte, error)
}

// execCommandRunner is the default implementation using os/exec.
type execCommandRunner struct{}

func (execCommandRunner) Run(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).CombinedOutput()
}

// Client runs commands locally.
type Client struct {
	shell  string
	runner CommandRunner
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithShell overrides the shell binary, /bin/sh by default.
func WithShell(shell string) Option {
	return func(c *Client) { c.shell = shell }
}

// WithRunner replaces os/exec, for tests.
func WithRunner(r CommandRunner) Option {
	return func(c *Client) { c.runner = r }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a local Client.
func New(opts ...Option) *Client {
	c := &Client{
		shell:  defaultShell,
		runner: execCommandRunner{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run executes command and returns its exit code and combined output.
// A non-zero exit is not an error. ctx is only checked before the command
// starts; a running command is never interrupted.
func (c *Client) Run(ctx context.Context, command string) (int, string, error) {
	if err := ctx.Err(); err != nil {
		return -1, "", err
	}

	c.logger.Debug("running local command", "shell", c.shell, "command", command)
	out, err := c.runner.Run(c.shell, "-c", command)

	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		return exitErr.ExitCode(), string(out), nil
	case err != nil:
		return -1, string(out), fmt.Errorf("failed to run %s: %w", c.shell, err)
	}
	return 0, string(out), nil
}
