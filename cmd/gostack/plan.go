package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nomis52/gostack/pipeline"
)

func newPlanCommand(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "plan [operation...]",
		Short: "Show the steps operations would run without running them",
		Long:  "Show the steps operations would run without running them. The default is bootstrap and remove.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{"bootstrap", "remove"}
			}
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.close()
			p, err := s.stack.Pipeline()
			if err != nil {
				return err
			}

			plans := make(map[string][]pipeline.PlannedStep, len(args))
			for _, op := range args {
				steps, err := p.Plan(op)
				if err != nil {
					return err
				}
				plans[op] = steps
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(plans)
			}
			for i, op := range args {
				if i > 0 {
					fmt.Fprintln(out)
				}
				writePlan(out, op, plans[op])
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the plans as JSON keyed by operation")
	return cmd
}

func writePlan(w io.Writer, op string, steps []pipeline.PlannedStep) {
	fmt.Fprintf(w, "%s:\n", op)
	if len(steps) == 0 {
		fmt.Fprintln(w, "  nothing to do")
		return
	}
	for i, s := range steps {
		fmt.Fprintf(w, "  %d. %s %s on %s [%s]\n", i+1, s.Component, s.Phase, s.Role, strings.Join(s.Hosts, ", "))
		for _, a := range s.Actions {
			fmt.Fprintf(w, "       %s\n", a)
		}
	}
}

func newValidateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config and the dependency graph",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.close()
			p, err := s.stack.Pipeline()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration validation successful: %s\n", s.path)
			fmt.Fprintf(out, "Bootstrap order: %s\n", strings.Join(p.Order(), " -> "))
			return nil
		},
	}
}
