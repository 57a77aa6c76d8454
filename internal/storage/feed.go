// internal/storage/feed.go
package storage

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/geostac/geostac-ingest-go/internal/event"
	"github.com/geostac/geostac-ingest-go/internal/model"
)

// feedStore decorates a Store so every successful Put emits a change event
// carrying the new record image. This is the producing side of the change
// feed the batch loader consumes.
type feedStore struct {
	inner Store
	pub   event.Publisher
}

// NewFeedStore wraps inner so its writes feed the change stream. Reads pass
// through untouched.
func NewFeedStore(inner Store, pub event.Publisher) Store {
	return &feedStore{inner: inner, pub: pub}
}

func (s *feedStore) Put(ctx context.Context, rec model.IngestionRecord) (model.IngestionRecord, error) {
	saved, err := s.inner.Put(ctx, rec)
	if err != nil {
		return saved, err
	}
	s.emit(ctx, saved)
	return saved, nil
}

func (s *feedStore) PutMany(ctx context.Context, recs []model.IngestionRecord) ([]model.IngestionRecord, error) {
	saved, err := s.inner.PutMany(ctx, recs)
	if err != nil {
		return saved, err
	}
	for _, rec := range saved {
		s.emit(ctx, rec)
	}
	return saved, nil
}

// emit publishes the change event for one saved record.
func (s *feedStore) emit(ctx context.Context, saved model.IngestionRecord) {
	// The first save stamps created_at and updated_at from the same instant,
	// so equality distinguishes inserts from overwrites.
	kind := event.KindUpdate
	if saved.CreatedAt.Equal(saved.UpdatedAt) {
		kind = event.KindInsert
	}

	image, err := json.Marshal(saved)
	if err != nil {
		slog.Warn("failed to serialize change event image", "error", err, "id", saved.ID)
		return
	}

	// A failed emit is not a failed write. The record is durable either way;
	// a missed event surfaces as a record stuck in queued, found by polling.
	if err := s.pub.PublishChange(ctx, kind, image); err != nil {
		slog.Warn("failed to publish change event", "error", err, "id", saved.ID, "kind", kind)
	}
}

func (s *feedStore) Get(ctx context.Context, createdBy, id string) (*model.IngestionRecord, error) {
	return s.inner.Get(ctx, createdBy, id)
}

func (s *feedStore) List(ctx context.Context, query model.ListIngestionsQuery) (*model.ListIngestionsResult, error) {
	return s.inner.List(ctx, query)
}
