package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/formwalk/internal/ir"
	"github.com/roach88/formwalk/internal/store"
)

// InstancesOptions holds flags for the instances command.
type InstancesOptions struct {
	*RootOptions
	FormID string
}

// NewInstancesCommand creates the instances command.
func NewInstancesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InstancesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "instances",
		Short: "List saved instances",
		Long: `List the instances recorded in the configured database, with their
form, completion status and logical clock of the last save.

Example:
  formwalk instances
  formwalk instances --form household --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstances(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.FormID, "form", "", "only list instances of this form id")

	return cmd
}

func runInstances(opts *InstancesOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	st, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	recs, err := st.ListInstances(cmd.Context(), opts.FormID)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list instances", err)
	}

	if f.JSON() {
		return f.Success(recs)
	}
	printInstances(f, recs)
	return nil
}

// openStore opens the configured database.
func openStore(opts *RootOptions) (*store.Store, error) {
	cfg, err := opts.Config()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(cfg.Storage.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func printInstances(f *OutputFormatter, recs []ir.InstanceRecord) {
	w := f.Writer
	if len(recs) == 0 {
		fmt.Fprintln(w, "No instances.")
		return
	}
	for _, rec := range recs {
		name := rec.DisplayName
		if name == "" {
			name = rec.FormID
		}
		fmt.Fprintf(w, "%s  %-24s %s v%s  %s\n", rec.ID, name, rec.FormID, rec.FormVersion, statusText(string(rec.Status)))
		if f.Verbose {
			fmt.Fprintf(w, "  %s %s\n", faint(fmt.Sprintf("seq %d", rec.Seq)), rec.Path)
		}
	}
}
