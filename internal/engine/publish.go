package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/invoice-report/internal/model"
	"github.com/Veraticus/invoice-report/internal/service"
	"golang.org/x/sync/errgroup"
)

// Publish writes report to every writer concurrently. The first failure
// cancels the context handed to the remaining writers and is returned.
func Publish(ctx context.Context, report *model.Report, writers ...service.ReportWriter) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, w := range writers {
		if w == nil {
			continue
		}
		g.Go(func() error {
			if err := w.Write(gctx, report); err != nil {
				return fmt.Errorf("%s: %w", w.Name(), err)
			}
			slog.Info("Published report", "writer", w.Name())
			return nil
		})
	}

	return g.Wait()
}
