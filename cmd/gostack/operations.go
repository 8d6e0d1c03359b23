package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nomis52/gostack/buildinfo"
	"github.com/nomis52/gostack/logging"
	"github.com/nomis52/gostack/metrics"
	"github.com/nomis52/gostack/pipeline"
	"github.com/nomis52/gostack/prompt"
	"github.com/nomis52/gostack/report"
	"github.com/nomis52/gostack/workflow"
)

var verbs = []struct {
	name  string
	short string
}{
	{"bootstrap", "Install, start and test components in dependency order"},
	{"remove", "Stop and uninstall components in reverse dependency order"},
	{"install", "Install components"},
	{"start", "Start components and wait until they are ready"},
	{"test", "Run the smoke tests of components"},
	{"stop", "Stop components"},
	{"uninstall", "Uninstall components"},
}

// newOperationCommand runs verb on the whole stack, or as verb_<component>
// when a component is named. bootstrap of a component includes its
// dependencies and remove of a component includes its dependents.
func newOperationCommand(opts *rootOptions, verb, short string) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " [component]",
		Short: short,
		Args:  usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			op := verb
			if len(args) == 1 {
				op = verb + "_" + args[0]
			}
			return runOperations(cmd, opts, op)
		},
	}
}

func newRunCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run <operation>...",
		Short: "Run several operations in order",
		Long: `Run several operations in order, e.g. "stop_frontend start_frontend".
Later operations still run when an earlier one fails, and the command fails
if any of them did.`,
		Args: usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperations(cmd, opts, args...)
		},
	}
}

func runOperations(cmd *cobra.Command, opts *rootOptions, ops ...string) error {
	s, err := opts.open(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	registry, publish, err := s.openMetrics(opts.textfile)
	if err != nil {
		return err
	}
	pipeOpts := []pipeline.Option{
		pipeline.WithPrompter(prompt.New(opts.yes || s.cfg.Behavior.AutoApprove, os.Stdin, os.Stderr)),
		pipeline.WithMetrics(registry),
	}
	var collector *logging.LogCollector
	if opts.reportPath != "" {
		collector = logging.NewLogCollector()
		pipeOpts = append(pipeOpts, pipeline.WithLoggerHook(logging.NewCapturingLoggerHook(collector)))
	}
	p, err := s.stack.Pipeline(pipeOpts...)
	if err != nil {
		return err
	}

	// an unknown name fails the command before anything runs
	for _, op := range ops {
		if _, err := p.Plan(op); err != nil {
			return err
		}
	}

	props := buildinfo.Get()
	s.logger.Info("gostack started",
		"version", props.Version,
		"git_commit", props.GitCommit,
		"config_path", s.path,
		"operations", ops,
	)

	wf := workflow.Operations(p, ops...)
	runErr := wf.Execute(cmd.Context())
	runs := wf.Runs()

	out := cmd.OutOrStdout()
	for i, run := range runs {
		if i > 0 {
			fmt.Fprintln(out)
		}
		if err := report.WriteSummary(out, run); err != nil {
			return fmt.Errorf("failed to write summary: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), metrics.DefaultTimeout)
	defer cancel()
	if err := publish(ctx); err != nil {
		s.logger.Warn("failed to publish metrics", "error", err)
	}

	if opts.reportPath != "" {
		if err := report.New(runs, collector).WriteFile(opts.reportPath); err != nil {
			runErr = errors.Join(runErr, err)
		} else {
			s.logger.Info("report written", "path", opts.reportPath)
		}
	}
	return runErr
}
