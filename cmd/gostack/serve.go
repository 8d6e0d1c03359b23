package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nomis52/gostack/buildinfo"
	"github.com/nomis52/gostack/server"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var listen, trigger string
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"schedule"},
		Short:   "Serve the HTTP API and run operations on a schedule",
		Long: `Serve the HTTP API and run operations on a schedule.

Triggers come from server.cron in the config and from --trigger. A trigger
that fires while another run is in progress is skipped.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.load(cmd)
			if err != nil {
				return err
			}

			srvOpts := []server.Option{server.WithLogger(s.logger), server.WithCron(trigger)}
			if listen != "" {
				srvOpts = append(srvOpts, server.WithListenAddr(listen))
			}
			srv, err := server.New(s.path, srvOpts...)
			if err != nil {
				return fmt.Errorf("failed to create server: %w", err)
			}

			props := buildinfo.Get()
			s.logger.Info("gostack server started",
				"version", props.Version,
				"git_commit", props.GitCommit,
				"config_path", s.path,
			)
			return srv.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Address to listen on, overrides server.listen")
	cmd.Flags().StringVar(&trigger, "trigger", "", `Scheduled operations, e.g. "bootstrap:0 2 * * *;test_frontend:*/15 * * * *"`)
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), buildinfo.Get().String())
			return nil
		},
	}
}
