package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewBackfillCommand creates the backfill command.
func NewBackfillCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "backfill <userId>",
		Short: "Seed a user's feed with the top posts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, closeFn, err := opts.OpenServices(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			n, err := svc.Feed.BackfillNewUser(ctx, args[0])
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), opts.Format, jobOutput{
				Message: fmt.Sprintf("backfilled %d feed entries for user %s", n, args[0]),
				Count:   &n,
			})
		},
	}
}
