package sshclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/crypto/ssh"
)

type target struct {
	addr string
	cfg  *ssh.ClientConfig
}

// Pool keeps one connection per host and dials lazily on first use.
// It is safe for concurrent use by the workers of a parallel role.
type Pool struct {
	logger *slog.Logger

	mu      sync.Mutex
	targets map[string]target
	clients map[string]*Client
	dialing map[string]*sync.Mutex
}

// NewPool creates an empty Pool.
func NewPool(logger *slog.Logger) *Pool {
	return &Pool{
		logger:  logger,
		targets: make(map[string]target),
		clients: make(map[string]*Client),
		dialing: make(map[string]*sync.Mutex),
	}
}

// Add registers how to reach host.
func (p *Pool) Add(host, addr string, cfg *ssh.ClientConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.targets[host] = target{addr: addr, cfg: cfg}
	p.dialing[host] = &sync.Mutex{}
}

// Run executes command on host, connecting first if needed. A cached
// connection that can no longer open sessions is dropped and dialed again once.
func (p *Pool) Run(ctx context.Context, host, command string) (int, string, error) {
	if err := ctx.Err(); err != nil {
		return -1, "", err
	}
	c, err := p.client(ctx, host)
	if err != nil {
		return -1, "", err
	}
	code, out, err := c.Run(command)
	if !errors.Is(err, ErrSession) {
		return code, out, err
	}

	p.logger.Warn("ssh connection lost, reconnecting", "host", host, "error", err)
	p.forget(host, c)
	c, err = p.client(ctx, host)
	if err != nil {
		return -1, "", err
	}
	return c.Run(command)
}

// forget drops c if it is still the cached connection for host.
func (p *Pool) forget(host string, c *Client) {
	p.mu.Lock()
	if p.clients[host] == c {
		delete(p.clients, host)
	}
	p.mu.Unlock()
	c.Close()
}

func (p *Pool) client(ctx context.Context, host string) (*Client, error) {
	p.mu.Lock()
	t, ok := p.targets[host]
	lock := p.dialing[host]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no ssh target configured for host %s", host)
	}

	// One dial per host even when several workers ask at once.
	lock.Lock()
	defer lock.Unlock()

	p.mu.Lock()
	c := p.clients[host]
	p.mu.Unlock()
	if c != nil {
		return c, nil
	}

	p.logger.Debug("connecting", "host", host, "addr", t.addr, "user", t.cfg.User)
	c, err := Dial(ctx, t.addr, t.cfg)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.clients[host] = c
	p.mu.Unlock()
	return c, nil
}

// Close closes every open connection.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for host, c := range p.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", host, err))
		}
		delete(p.clients, host)
	}
	return errors.Join(errs...)
}
