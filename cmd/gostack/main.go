// Command gostack brings a multi-host application stack up and down in
// dependency order.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/nomis52/gostack/action"
)

// envPrefix names the environment variables that stand in for flags, e.g.
// GOSTACK_LOG_LEVEL for --log-level.
const envPrefix = "GOSTACK"

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err := newRootCommand().ExecuteContext(ctx)
	handleError(os.Stderr, err)
	return exitCode(err)
}

// rootOptions are the flags shared by every command.
type rootOptions struct {
	configPath string
	logLevel   string
	yes        bool
	reportPath string
	textfile   string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "gostack",
		Short: "Bring a multi-host application stack up and down",
		Long: `gostack installs, starts, tests, stops and uninstalls the components of a
stack described in a YAML file. Components run in dependency order on the
hosts of their role, and every install step is guarded so re-running an
operation only does the work that is missing.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return applyEnv(cmd.Flags())
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", action.ErrUsage, err)
	})

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "stack.yaml", "Path to the stack config file")
	pf.StringVar(&opts.logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	pf.BoolVarP(&opts.yes, "yes", "y", false, "Answer yes to every confirmation")
	pf.StringVar(&opts.reportPath, "report", "", "Write a JSON report of the runs with captured component logs")
	pf.StringVar(&opts.textfile, "metrics-textfile", "", "Write metrics in the node_exporter textfile format")

	for _, v := range verbs {
		cmd.AddCommand(newOperationCommand(opts, v.name, v.short))
	}
	cmd.AddCommand(
		newRunCommand(opts),
		newPlanCommand(opts),
		newValidateCommand(opts),
		newServeCommand(opts),
		newVersionCommand(),
	)
	cmd.Example = `  # Bring the whole stack up
  gostack bootstrap -c stack.yaml

  # Restart one component
  gostack run stop_frontend start_frontend

  # Show what remove would do
  gostack plan remove`
	return cmd
}

// applyEnv sets flags left unset on the command line from their GOSTACK_*
// environment variables.
func applyEnv(fs *pflag.FlagSet) error {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Changed || !v.IsSet(f.Name) {
			return
		}
		if err := f.Value.Set(v.GetString(f.Name)); err != nil {
			name := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
			errs = append(errs, fmt.Errorf("%w: invalid %s: %v", action.ErrUsage, name, err))
		}
	})
	return errors.Join(errs...)
}

// usageArgs marks argument errors as usage errors.
func usageArgs(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			return fmt.Errorf("%w: %v", action.ErrUsage, err)
		}
		return nil
	}
}

func handleError(w io.Writer, err error) {
	if err == nil || errors.Is(err, pflag.ErrHelp) {
		return
	}
	message := err.Error()
	if errors.Is(err, action.ErrUsage) {
		message += "\nRun 'gostack --help' for usage."
	}
	fmt.Fprintf(w, "Error: %s\n", message)
}

// exitCode is 0 on success, 2 for bad invocations and 1 for anything that
// failed while running.
func exitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, pflag.ErrHelp):
		return 0
	case errors.Is(err, action.ErrUsage):
		return 2
	}
	return 1
}
