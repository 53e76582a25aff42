package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/formwalk/internal/harness"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	ShowTrace bool
	Persist   bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run one scenario and show each step",
		Long: `Drive a form through the steps of one scenario file and print what
each step did: the navigation result, the index and event reached and the
session state.

By default the run uses a throwaway in-memory store, so nothing is written
to the configured database. With --persist the run records into the
configured database, instances directory and cache directory, where the
instances, audit and recover commands find it.

Example:
  formwalk run ./scenarios/household_walk.yaml
  formwalk run ./scenarios/crash_recovery.yaml --trace
  formwalk run ./scenarios/crash_recovery.yaml --persist`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.ShowTrace, "trace", false, "print the audit trace")
	cmd.Flags().BoolVar(&opts.Persist, "persist", false, "record the run in the configured storage")

	return cmd
}

func runScenario(opts *RunOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		if f.JSON() {
			_ = f.Error(ErrCodeInvalid, err.Error(), map[string]string{"path": path})
		}
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	hopts, err := harnessOptions(opts.RootOptions)
	if err != nil {
		return err
	}
	if opts.Persist {
		cfg, err := opts.Config()
		if err != nil {
			return err
		}
		hopts = append(hopts, harness.WithStorage(cfg.Storage.Database, cfg.Storage.InstancesDir, cfg.Storage.CacheDir))
	}
	slog.Debug("running scenario", "name", scenario.Name, "form", scenario.Form, "steps", len(scenario.Steps))
	result, err := harness.Run(cmd.Context(), scenario, hopts...)
	if err != nil {
		if f.JSON() {
			_ = f.Error(ErrCodeGeneric, err.Error(), map[string]string{"scenario": scenario.Name})
		}
		return WrapExitError(ExitFailure, "scenario aborted", err)
	}

	if f.JSON() {
		if err := f.Success(result); err != nil {
			return err
		}
	} else {
		printRun(f, scenario, result, opts.ShowTrace)
	}

	if !result.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", scenario.Name))
	}
	return nil
}

// harnessOptions carries the configured navigation defaults and savepoint
// interval into scenario runs. Scenario settings still win.
func harnessOptions(opts *RootOptions) ([]harness.Option, error) {
	cfg, err := opts.Config()
	if err != nil {
		return nil, err
	}
	return []harness.Option{
		harness.WithNavigationDefaults(cfg.Navigation.AllowBackwards, cfg.Navigation.ValidateOnSwipe()),
		harness.WithSavepointInterval(cfg.Savepoint.Interval()),
	}, nil
}

func printRun(f *OutputFormatter, scenario *harness.Scenario, result *harness.Result, showTrace bool) {
	w := f.Writer
	fmt.Fprintf(w, "%s %s\n", scenario.Name, faint(result.InstanceID))
	for i, st := range result.Steps {
		action := st.Action
		if st.Target != "" {
			action += " " + st.Target
		}
		fmt.Fprintf(w, "%3d  %-24s %-8s %-20q %-18s %s", i+1, action, st.Result, st.Index, st.Event, st.State)
		if st.Error != "" {
			fmt.Fprintf(w, "  %s", red(st.Error))
		}
		fmt.Fprintln(w)
	}

	if showTrace {
		fmt.Fprintln(w, "\nTrace:")
		for _, ev := range result.Trace {
			fmt.Fprintf(w, "  %s %-20s %q", faint(fmt.Sprintf("[%d]", ev.Seq)), ev.Kind, ev.Index)
			if ev.Detail != "" {
				fmt.Fprintf(w, " %s", ev.Detail)
			}
			fmt.Fprintln(w)
		}
	}

	fmt.Fprintf(w, "\nstatus: %s  savepoint: %t\n", statusText(result.Status), result.SavepointExists)
	if result.Pass {
		fmt.Fprintf(w, "%s %s passed\n", passMark(), scenario.Name)
		return
	}
	fmt.Fprintf(w, "%s %s failed\n", failMark(), scenario.Name)
	for _, e := range result.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}
