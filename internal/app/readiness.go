package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// ReadinessCheck probes one backing service.
type ReadinessCheck struct {
	Name  string
	Probe func(ctx context.Context) error
}

// AwaitReady runs every check once, concurrently, under a single deadline.
// The first failure cancels the rest and is returned with the check name.
func AwaitReady(ctx context.Context, timeout time.Duration, checks ...ReadinessCheck) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, check := range checks {
		if check.Probe == nil {
			continue
		}
		g.Go(func() error {
			if err := check.Probe(gctx); err != nil {
				return fmt.Errorf("%s not ready: %w", check.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}
