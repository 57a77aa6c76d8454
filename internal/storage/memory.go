// internal/storage/memory.go
// Package storage provides implementations of the ingestion record Store
// for both in-memory and PostgreSQL storage backends.
package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/geostac/geostac-ingest-go/internal/model"
)

// Standard errors returned by the storage layer
var (
	ErrNotFound = errors.New("not found") // Returned when a record is not found
	ErrConflict = errors.New("conflict")  // Returned when a write collides with an existing key
)

// Store interface defines the durable queue operations for ingestion records.
// This interface is implemented by both in-memory and PostgreSQL backends.
type Store interface {
	// Put fully overwrites the record keyed by (created_by, id). There is no
	// optimistic-concurrency check: the last writer wins, including when a
	// user cancel races the loader's write-back. Put stamps updated_at on
	// every call and created_at once, on the first save of a key; both
	// timestamps carry the same instant on that first save.
	Put(ctx context.Context, rec model.IngestionRecord) (model.IngestionRecord, error)

	// PutMany overwrites a batch of records with Put semantics, in one
	// backend write where the backend supports it.
	PutMany(ctx context.Context, recs []model.IngestionRecord) ([]model.IngestionRecord, error)

	// Get retrieves one record, or ErrNotFound.
	Get(ctx context.Context, createdBy, id string) (*model.IngestionRecord, error)

	// List returns records in (status, created_at, created_by, id) ascending
	// order. An empty query status means all statuses; a non-positive limit
	// means unlimited. The result's Next token resumes after the last
	// returned record.
	List(ctx context.Context, query model.ListIngestionsQuery) (*model.ListIngestionsResult, error)
}

// memory implements the Store interface using in-memory storage.
// It's intended for development and testing purposes.
type memory struct {
	mu      sync.RWMutex                               // Protects concurrent access to records
	records map[string]map[string]model.IngestionRecord // created_by -> id -> record
}

// NewMemory creates a new in-memory storage implementation.
// Returns a Store interface that can be used for testing or development.
func NewMemory() Store {
	return &memory{
		records: make(map[string]map[string]model.IngestionRecord),
	}
}

func (m *memory) Put(ctx context.Context, rec model.IngestionRecord) (model.IngestionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.putLocked(rec), nil
}

func (m *memory) PutMany(ctx context.Context, recs []model.IngestionRecord) ([]model.IngestionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	saved := make([]model.IngestionRecord, len(recs))
	for i, rec := range recs {
		saved[i] = m.putLocked(rec)
	}
	return saved, nil
}

// putLocked writes one record. Callers hold the write lock.
func (m *memory) putLocked(rec model.IngestionRecord) model.IngestionRecord {
	now := time.Now().UTC()
	rec.UpdatedAt = now

	owner, ok := m.records[rec.CreatedBy]
	if !ok {
		owner = make(map[string]model.IngestionRecord)
		m.records[rec.CreatedBy] = owner
	}

	if existing, exists := owner[rec.ID]; exists {
		// created_at is set once at first save and survives overwrites.
		rec.CreatedAt = existing.CreatedAt
	} else if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}

	owner[rec.ID] = rec
	return rec
}

func (m *memory) Get(ctx context.Context, createdBy, id string) (*model.IngestionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	owner, ok := m.records[createdBy]
	if !ok {
		return nil, ErrNotFound
	}
	rec, ok := owner[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (m *memory) List(ctx context.Context, query model.ListIngestionsQuery) (*model.ListIngestionsResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]model.IngestionRecord, 0)
	for _, owner := range m.records {
		for _, rec := range owner {
			if query.Status != "" && rec.Status != query.Status {
				continue
			}
			matched = append(matched, rec)
		}
	}

	// Composite secondary ordering: (status, created_at) with the primary
	// key as tie-break so pagination is deterministic.
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.Status != b.Status {
			return a.Status < b.Status
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if a.CreatedBy != b.CreatedBy {
			return a.CreatedBy < b.CreatedBy
		}
		return a.ID < b.ID
	})

	if query.Next != "" {
		cursor, err := decodeCursor(query.Next)
		if err != nil {
			return nil, err
		}
		resume := len(matched)
		for i, rec := range matched {
			if afterCursor(rec, cursor) {
				resume = i
				break
			}
		}
		matched = matched[resume:]
	}

	limit := query.Limit
	if limit <= 0 || limit > len(matched) {
		limit = len(matched)
	}

	page := make([]model.IngestionRecord, limit)
	copy(page, matched[:limit])

	result := &model.ListIngestionsResult{Items: page}
	if limit < len(matched) && len(page) > 0 {
		result.Next = encodeCursor(page[len(page)-1])
	}
	return result, nil
}
