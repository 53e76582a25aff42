package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/formwalk/internal/ir"
)

// AuditOptions holds flags for the audit command.
type AuditOptions struct {
	*RootOptions
	Kind string
}

// NewAuditCommand creates the audit command.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AuditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "audit <instance-id>",
		Short: "Show the navigation audit trail of an instance",
		Long: `Print the audit events recorded for an instance in logical clock
order: screens shown, jumps, repeats added or deleted, constraint failures,
saves and exits.

Example:
  formwalk audit uuid:0b9d...
  formwalk audit uuid:0b9d... --kind constraint_error`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Kind, "kind", "", "only show events of this kind")

	return cmd
}

func runAudit(opts *AuditOptions, instanceID string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	st, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	if _, ok, err := st.Instance(ctx, instanceID); err != nil {
		return WrapExitError(ExitFailure, "failed to read instance", err)
	} else if !ok {
		f.VerboseLog("%s has never been saved", instanceID)
	}

	events, err := st.AuditLog(ctx, instanceID, ir.AuditKind(opts.Kind))
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read audit log", err)
	}
	if len(events) == 0 {
		if f.JSON() {
			_ = f.Error(ErrCodeNotFound, "no audit events", map[string]string{"instance_id": instanceID})
		}
		return NewExitError(ExitFailure, fmt.Sprintf("no audit events for %s", instanceID))
	}

	if f.JSON() {
		return f.Success(events)
	}
	for _, ev := range events {
		fmt.Fprintf(f.Writer, "%s %-20s %q", faint(fmt.Sprintf("[%d]", ev.Seq)), ev.Kind, ev.Index.String())
		if ev.Detail != "" {
			fmt.Fprintf(f.Writer, " %s", ev.Detail)
		}
		fmt.Fprintln(f.Writer)
	}
	return nil
}
