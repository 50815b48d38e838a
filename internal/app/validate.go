package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/fhcypma/ydag/internal/ctxlog"
)

// Validate loads and builds each configured path as an independent pipeline,
// in parallel, without executing anything. It returns the first failure.
func (a *App) Validate(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Validate method started.", "paths", len(a.cfg.PipelinePaths))

	eg, ctx := errgroup.WithContext(ctx)
	for _, path := range a.cfg.PipelinePaths {
		eg.Go(func() error {
			p, err := a.loader.Load(ctx, path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			if _, err := a.builder.Build(ctx, p); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			a.logger.Info("Pipeline is valid.", "path", path, "tasks", len(p.Tasks))
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	fmt.Fprintln(a.outW, "ok")
	return nil
}
