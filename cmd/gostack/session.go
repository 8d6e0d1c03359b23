package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"

	"github.com/nomis52/gostack/config"
	"github.com/nomis52/gostack/logging"
	"github.com/nomis52/gostack/metrics"
	"github.com/nomis52/gostack/stack"
)

// session is the loaded config, logger and stack a command works with.
type session struct {
	path   string
	cfg    *config.Config
	logger *slog.Logger
	stack  *stack.Stack
}

// load reads the config and creates the logger. Logs that would go to
// stderr go to the command's error stream.
func (o *rootOptions) load(cmd *cobra.Command) (*session, error) {
	path, err := homedir.Expand(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to expand config path: %w", err)
	}
	cfg, err := config.Load(path, config.Environ())
	if err != nil {
		return nil, err
	}

	logCfg := cfg.Logging
	if o.logLevel != "" {
		logCfg.Level = o.logLevel
	}
	if logCfg.Output == "stderr" {
		logCfg.Writer = cmd.ErrOrStderr()
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return &session{path: path, cfg: cfg, logger: logger}, nil
}

// open loads the config and builds the stack. Callers must close the session.
func (o *rootOptions) open(cmd *cobra.Command) (*session, error) {
	s, err := o.load(cmd)
	if err != nil {
		return nil, err
	}
	st, err := stack.Build(s.cfg, stack.WithLogger(s.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to build stack: %w", err)
	}
	s.stack = st
	return s, nil
}

func (s *session) close() {
	if s.stack == nil {
		return
	}
	if err := s.stack.Close(); err != nil {
		s.logger.Warn("failed to close stack", "error", err)
	}
}

// publishFunc delivers metrics once all runs have finished.
type publishFunc func(ctx context.Context) error

// openMetrics picks the registry for a command: a textfile when one is given on
// the command line or in the config, a remote write push when
// monitoring.remote_write_url is set, otherwise nothing.
func (s *session) openMetrics(textfile string) (metrics.Registry, publishFunc, error) {
	mon := s.cfg.Monitoring
	if textfile == "" {
		textfile = mon.Textfile
	}

	if textfile != "" {
		reg, err := metrics.NewLocalRegistry(metrics.WithPrefix(mon.MetricsPrefix))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create metrics registry: %w", err)
		}
		return reg, func(context.Context) error { return reg.WriteTextfile(textfile) }, nil
	}

	if mon.RemoteWriteURL != "" {
		instance := mon.Instance
		if instance == "" {
			hostname, err := os.Hostname()
			if err != nil {
				return nil, nil, fmt.Errorf("failed to get hostname: %w", err)
			}
			instance = hostname
		}
		reg := metrics.NewPushRegistry(metrics.PushConfig{
			URL:      mon.RemoteWriteURL,
			Prefix:   mon.MetricsPrefix,
			Job:      mon.JobName,
			Instance: instance,
		})
		return reg, reg.Flush, nil
	}

	return metrics.Nop{}, func(context.Context) error { return nil }, nil
}
