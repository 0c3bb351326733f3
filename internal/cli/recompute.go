package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"pulse/internal/services"
)

var recomputeJobs = map[string]func(*services.RankingService, context.Context) services.BatchResult{
	"posts":  (*services.RankingService).RecomputeEachPostScore,
	"topics": (*services.RankingService).RecomputeEachTopicScore,
	"users":  (*services.RankingService).RecomputeEachUserScore,
}

// NewRecomputeCommand creates the recompute command.
func NewRecomputeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "recompute posts|topics|users",
		Short: "Rescan and rewrite every score of one kind",
		Long: `Recompute every post, topic or user score and propagate the new values
to all copies. The scan never stops early; failures are counted.

Examples:
  pulsectl recompute posts
  pulsectl recompute users --format json`,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"posts", "topics", "users"},
		RunE: func(cmd *cobra.Command, args []string) error {
			job, ok := recomputeJobs[args[0]]
			if !ok {
				return fmt.Errorf("unknown target %q", args[0])
			}
			ctx := cmd.Context()
			svc, closeFn, err := opts.OpenServices(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			res := job(svc.Ranking, ctx)
			if err := writeOutput(cmd.OutOrStdout(), opts.Format, jobOutput{Message: res.Message(), Failed: res.HadErrors()}); err != nil {
				return err
			}
			if res.HadErrors() {
				return errJobFailed
			}
			return nil
		},
	}
}
