package cli

import (
	"github.com/spf13/cobra"
)

// NewSweepCommand creates the sweep command.
func NewSweepCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Mark users without a recent session inactive and clear their feeds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, closeFn, err := opts.OpenServices(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			res, err := svc.Inactivity.Sweep(ctx)
			if err != nil {
				return err
			}
			failed := res.Failed > 0
			if err := writeOutput(cmd.OutOrStdout(), opts.Format, jobOutput{Message: res.Message(), Failed: failed}); err != nil {
				return err
			}
			if failed {
				return errJobFailed
			}
			return nil
		},
	}
}
