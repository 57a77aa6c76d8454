// Package loader drains the ingestion change feed into the catalog store.
// It is the only writer that moves records past queued: every record it
// picks up ends the attempt as succeeded or failed, and nothing here is
// ever raised back to an interactive caller.
package loader

import (
	"context"
	"log/slog"
	"time"

	"github.com/geostac/geostac-ingest-go/internal/catalog"
	"github.com/geostac/geostac-ingest-go/internal/event"
	"github.com/geostac/geostac-ingest-go/internal/metrics"
	"github.com/geostac/geostac-ingest-go/internal/model"
	"github.com/geostac/geostac-ingest-go/internal/storage"
)

// Loader bulk-loads queued ingestion records from feed micro-batches.
type Loader struct {
	store   storage.Store
	catalog catalog.Store
	metrics *metrics.Metrics
}

// New creates a batch loader writing through the given record store and
// catalog store.
func New(store storage.Store, cat catalog.Store) *Loader {
	return &Loader{store: store, catalog: cat, metrics: metrics.NewMetrics()}
}

// HandleBatch processes one micro-batch of change-feed events.
//
// Events decode through the decimal-safe path, records whose post-change
// status is not queued are ignored, and the remaining item payloads go to
// the catalog store in a single insert-ignore bulk load. Every record in
// the batch is then written back as succeeded, or as failed with the bulk
// load's error text. The batch shares one outcome.
//
// The returned error covers the write-back only. A bulk-load failure is
// recorded on the records, not returned; a write-back failure means the
// batch's outcome is unrecorded, so the caller must leave the events
// unacknowledged for redelivery.
func (l *Loader) HandleBatch(ctx context.Context, events []event.Change) error {
	queued := make([]model.IngestionRecord, 0, len(events))
	for _, ev := range events {
		rec, err := DecodeRecord(ev.NewImage)
		if err != nil {
			// An image that does not decode now never will; redelivery
			// cannot help it.
			slog.Warn("skipping undecodable change event", "error", err, "event_id", ev.EventID)
			continue
		}
		if rec.Status != model.StatusQueued {
			continue
		}
		queued = append(queued, rec)
	}

	// Nothing queued means nothing to do: no catalog call, no write-backs.
	if len(queued) == 0 {
		return nil
	}

	items := make([]map[string]interface{}, len(queued))
	for i, rec := range queued {
		items[i] = catalog.FloatifyItem(rec.Item)
	}

	// One bulk call for the whole batch. Insert-ignore keeps redelivered
	// events from overwriting catalog entries already loaded.
	status, message := model.StatusSucceeded, ""
	start := time.Now()
	err := l.catalog.LoadItems(ctx, items, catalog.InsertIgnore)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	l.metrics.BulkLoadTotal.WithLabelValues(outcome).Inc()
	l.metrics.BulkLoadDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	l.metrics.BulkLoadSize.WithLabelValues(outcome).Observe(float64(len(items)))
	if err != nil {
		slog.Error("bulk load failed", "error", err, "batch_size", len(queued))
		status, message = model.StatusFailed, err.Error()
	} else {
		l.refreshSummaries(ctx, items)
	}

	for i := range queued {
		queued[i].Status = status
		queued[i].Message = message
	}
	if _, err := l.store.PutMany(ctx, queued); err != nil {
		return err
	}

	slog.Info("batch loaded", "batch_size", len(queued), "status", status)
	return nil
}

// refreshSummaries recomputes extent summaries for every collection the
// batch touched. The items are already loaded at this point, so a failed
// refresh is logged and left for the next batch to repair.
func (l *Loader) refreshSummaries(ctx context.Context, items []map[string]interface{}) {
	seen := make(map[string]bool)
	for _, item := range items {
		id, _ := item["collection"].(string)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if err := l.catalog.UpdateCollectionSummaries(ctx, id); err != nil {
			slog.Warn("collection summary refresh failed", "collection", id, "error", err)
		}
	}
}
