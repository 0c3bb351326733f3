package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pulse/internal/config"
	"pulse/internal/db"
	"pulse/internal/services"
	"pulse/internal/triggers"
)

// EventPublisher sends events to the queue the server consumes.
type EventPublisher interface {
	Publish(ctx context.Context, e triggers.Event) error
	Close() error
}

// RootOptions holds global flags and the backends the commands run against.
type RootOptions struct {
	Format string // "json" | "text"

	// OpenServices builds the services on the configured store. The returned
	// func releases the store.
	OpenServices func(ctx context.Context) (*services.Services, func() error, error)
	// OpenPublisher connects to the event queue.
	OpenPublisher func(ctx context.Context) (EventPublisher, error)
}

var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command of the admin CLI.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWith(&RootOptions{
		OpenServices:  openServices,
		OpenPublisher: openPublisher,
	})
}

func NewRootCommandWith(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pulsectl",
		Short: "pulsectl - operate the pulse content backend",
		Long:  "Run score rescans, the inactivity sweep and feed backfills by hand, and replay events into the queue.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewRecomputeCommand(opts))
	cmd.AddCommand(NewSweepCommand(opts))
	cmd.AddCommand(NewBackfillCommand(opts))
	cmd.AddCommand(NewEmitCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func openServices(ctx context.Context) (*services.Services, func() error, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	cfg.SetupLogging(os.Stderr)
	h, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	svc := services.New(h.Store, services.Options{
		BatchSize:        cfg.MaxBatchWrites,
		FeedBackfillSize: cfg.FeedBackfillSize,
		InactiveAfter:    cfg.InactiveAfter,
		Ranking:          cfg.Ranking,
	})
	return svc, h.Close, nil
}

func openPublisher(ctx context.Context) (EventPublisher, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.AMQPURL == "" {
		return nil, fmt.Errorf("AMQP_URL is not set")
	}
	return triggers.DialPublisher(cfg.AMQPURL, cfg.AMQPQueue)
}
