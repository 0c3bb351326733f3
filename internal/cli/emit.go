package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"pulse/internal/triggers"
)

// EmitOptions holds flags for the emit command.
type EmitOptions struct {
	*RootOptions
	NewID bool
}

// NewEmitCommand creates the emit command.
func NewEmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "emit <event.json>",
		Short: "Publish an event to the queue the server consumes",
		Long: `Read one event from a JSON file and publish it to AMQP_QUEUE.

Examples:
  pulsectl emit ./post-created.json
  pulsectl emit ./post-created.json --new-id`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read event: %w", err)
			}
			if opts.NewID {
				raw, err = withFreshID(raw)
				if err != nil {
					return err
				}
			}
			e, err := triggers.DecodeEvent(raw)
			if err != nil {
				return err
			}
			if e.Time.IsZero() {
				e.Time = time.Now().UTC()
			}

			ctx := cmd.Context()
			pub, err := opts.OpenPublisher(ctx)
			if err != nil {
				return err
			}
			defer pub.Close()
			if err := pub.Publish(ctx, e); err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), opts.Format, jobOutput{Message: fmt.Sprintf("published event %s (%s)", e.ID, e.Kind)})
		},
	}

	cmd.Flags().BoolVar(&opts.NewID, "new-id", false, "replace the event id so the dedupe window does not drop it")

	return cmd
}

func withFreshID(raw []byte) ([]byte, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", triggers.ErrInvalidEvent, err)
	}
	doc["id"] = uuid.NewString()
	return json.Marshal(doc)
}
