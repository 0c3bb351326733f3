package services

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Step is one independent sub-operation of a handler.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// RunParallel runs every step concurrently and waits for all of them. A
// failing step is logged and never cancels its siblings; the first failure
// is returned.
func RunParallel(ctx context.Context, op string, steps ...Step) error {
	var g errgroup.Group
	for _, s := range steps {
		g.Go(func() error {
			if err := s.Run(ctx); err != nil {
				slog.Error("step failed", "op", op, "step", s.Name, "err", err)
				return fmt.Errorf("%s: %w", s.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}
