// Package sshclient runs commands on remote hosts over persistent SSH connections.
package sshclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/mitchellh/go-homedir"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

const defaultDialTimeout = 10 * time.Second

// Config describes how to authenticate to a host.
type Config struct {
	User string
	// KeyFile is a PEM private key. "~" is expanded.
	KeyFile string
	// AgentSocket is the ssh-agent socket, usually $SSH_AUTH_SOCK.
	AgentSocket string
	// KnownHostsFile verifies host keys. Required unless InsecureIgnoreHostKey is set.
	KnownHostsFile        string
	InsecureIgnoreHostKey bool
	Timeout               time.Duration
}

// ClientConfig builds the x/crypto/ssh configuration.
func (c Config) ClientConfig() (*ssh.ClientConfig, error) {
	if c.User == "" {
		return nil, errors.New("ssh user is required")
	}

	var auth []ssh.AuthMethod
	if c.KeyFile != "" {
		signer, err := loadKey(c.KeyFile)
		if err != nil {
			return nil, err
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if c.AgentSocket != "" {
		auth = append(auth, ssh.PublicKeysCallback(func() ([]ssh.Signer, error) {
			conn, err := net.Dial("unix", c.AgentSocket)
			if err != nil {
				return nil, fmt.Errorf("failed to reach ssh agent: %w", err)
			}
			return agent.NewClient(conn).Signers()
		}))
	}
	if len(auth) == 0 {
		return nil, errors.New("no ssh key file or agent configured")
	}

	var hostKeys ssh.HostKeyCallback
	switch {
	case c.InsecureIgnoreHostKey:
		hostKeys = ssh.InsecureIgnoreHostKey()
	case c.KnownHostsFile != "":
		path, err := homedir.Expand(c.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to expand known_hosts path: %w", err)
		}
		hostKeys, err = knownhosts.New(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts: %w", err)
		}
	default:
		return nil, errors.New("known_hosts file is required to verify host keys")
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	return &ssh.ClientConfig{
		User:            c.User,
		Auth:            auth,
		HostKeyCallback: hostKeys,
		Timeout:         timeout,
	}, nil
}

func loadKey(path string) (ssh.Signer, error) {
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand key path: %w", err)
	}
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(pem)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return signer, nil
}

// ErrSession is returned by Run when the connection can no longer open
// sessions, e.g. after the remote sshd restarted.
var ErrSession = errors.New("failed to create SSH session")

// Client is one persistent SSH connection. Each command gets its own session.
type Client struct {
	addr   string
	client *ssh.Client
}

// Dial connects to addr (host:port).
func Dial(ctx context.Context, addr string, cfg *ssh.ClientConfig) (*Client, error) {
	d := net.Dialer{Timeout: cfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s failed: %w", addr, err)
	}
	return &Client{addr: addr, client: ssh.NewClient(c, chans, reqs)}, nil
}

// Run executes command in a new session and returns the exit status and the
// combined stdout and stderr. A non-zero exit is not an error.
func (c *Client) Run(command string) (int, string, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return -1, "", fmt.Errorf("%w: %w", ErrSession, err)
	}
	defer session.Close()

	out, err := session.CombinedOutput(command)
	var exitErr *ssh.ExitError
	switch {
	case errors.As(err, &exitErr):
		return exitErr.ExitStatus(), string(out), nil
	case err != nil:
		return -1, string(out), fmt.Errorf("failed to run command on %s: %w", c.addr, err)
	}
	return 0, string(out), nil
}

// Close closes the underlying SSH connection.
func (c *Client) Close() error {
	return c.client.Close()
}
