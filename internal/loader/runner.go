// internal/loader/runner.go
package loader

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/geostac/geostac-ingest-go/internal/event"
	"github.com/geostac/geostac-ingest-go/internal/metrics"
)

// Runner is the pull loop driving a Loader from a change feed. Batches
// whose outcome was recorded are acknowledged; batches whose write-back
// failed are negatively acknowledged so the feed redelivers them.
type Runner struct {
	feed    event.Feed
	loader  *Loader
	metrics *metrics.Metrics
}

// NewRunner creates a runner consuming feed batches into the loader.
func NewRunner(feed event.Feed, loader *Loader) *Runner {
	return &Runner{feed: feed, loader: loader, metrics: metrics.NewMetrics()}
}

// Run consumes the feed until the context is cancelled. Feed errors are
// logged and retried after a short pause rather than ending the loop.
func (r *Runner) Run(ctx context.Context) error {
	for {
		batch, err := r.feed.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			slog.Error("failed to fetch feed batch", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		if len(batch.Events) == 0 {
			continue
		}

		if err := r.loader.HandleBatch(ctx, batch.Events); err != nil {
			slog.Warn("write-back failed, leaving batch for redelivery",
				"error", err, "batch_size", len(batch.Events))
			r.metrics.FeedBatchTotal.WithLabelValues("redelivered").Inc()
			r.metrics.FeedBatchSize.WithLabelValues("redelivered").Observe(float64(len(batch.Events)))
			batch.Nak()
			continue
		}
		r.metrics.FeedBatchTotal.WithLabelValues("handled").Inc()
		r.metrics.FeedBatchSize.WithLabelValues("handled").Observe(float64(len(batch.Events)))
		batch.Ack()
	}
}
