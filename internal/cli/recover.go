package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/formwalk/internal/instance"
	"github.com/roach88/formwalk/internal/loader"
	"github.com/roach88/formwalk/internal/savepoint"
)

// OrphanReport describes a savepoint that can be recovered.
type OrphanReport struct {
	SavepointPath string    `json:"savepoint_path"`
	InstancePath  string    `json:"instance_path"`
	Index         string    `json:"index"`
	ModTime       time.Time `json:"mod_time"`
}

// RecoverOptions holds flags for the recover command.
type RecoverOptions struct {
	*RootOptions
	Discard bool
}

// NewRecoverCommand creates the recover command.
func NewRecoverCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecoverOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "recover <form.cue>",
		Short: "List savepoints left by sessions that were never saved",
		Long: `List the savepoints of a form whose instance was never saved, newest
first. Each was left by a session that crashed or was abandoned before the
first save; loading its instance path resumes at the recorded position.

With --discard the savepoints are deleted instead.

Example:
  formwalk recover ./forms/household.cue
  formwalk recover ./forms/household.cue --discard`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecover(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Discard, "discard", false, "delete the orphaned savepoints")

	return cmd
}

func runRecover(opts *RecoverOptions, formPath string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, err := opts.Config()
	if err != nil {
		return err
	}
	orphans, err := loader.Orphans(loader.Request{
		FormPath:     formPath,
		InstancesDir: cfg.Storage.InstancesDir,
		CacheDir:     cfg.Storage.CacheDir,
	})
	if err != nil {
		return WrapExitError(ExitFailure, "failed to scan savepoints", err)
	}

	reports := make([]OrphanReport, 0, len(orphans))
	for _, o := range orphans {
		r := OrphanReport{SavepointPath: o.SavepointPath, InstancePath: o.InstancePath, ModTime: o.ModTime}
		if sp, err := savepoint.Load(o.SavepointPath); err == nil {
			r.Index = sp.Index.String()
		} else {
			f.VerboseLog("unreadable savepoint %s: %v", o.SavepointPath, err)
		}
		reports = append(reports, r)
	}

	if opts.Discard {
		m := savepoint.New()
		paths := make([]string, 0, 2*len(reports))
		for _, r := range reports {
			paths = append(paths, r.SavepointPath,
				instance.IndexPath(cfg.Storage.CacheDir, formPath, r.InstancePath))
		}
		if err := m.Discard(paths...); err != nil {
			return WrapExitError(ExitFailure, "failed to discard savepoints", err)
		}
	}

	if f.JSON() {
		return f.Success(reports)
	}
	printOrphans(f, reports, opts.Discard)
	return nil
}

func printOrphans(f *OutputFormatter, reports []OrphanReport, discarded bool) {
	w := f.Writer
	if len(reports) == 0 {
		fmt.Fprintln(w, "No savepoints to recover.")
		return
	}
	for _, r := range reports {
		index := r.Index
		if index == "" {
			index = "?"
		}
		fmt.Fprintf(w, "%s  at %q\n", r.InstancePath, index)
		fmt.Fprintf(w, "  %s %s\n", faint(r.ModTime.Format(time.RFC3339)), r.SavepointPath)
	}
	if discarded {
		fmt.Fprintf(w, "%s discarded %d savepoint(s)\n", passMark(), len(reports))
	}
}
