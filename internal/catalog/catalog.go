// Package catalog talks to the geospatial catalog database that ingested
// records ultimately land in. The loader bulk-loads items into it and the
// publisher creates and deletes collections; both go through the Store
// interface so tests can run against the in-memory implementation.
package catalog

import (
	"context"
	"errors"
)

// Common catalog errors.
var (
	// ErrNotFound is returned when a requested collection does not exist
	ErrNotFound = errors.New("collection not found")
	// ErrExists is returned when creating a collection whose id is taken
	ErrExists = errors.New("collection already exists")
)

// InsertMode selects the conflict behavior of a bulk item load.
type InsertMode string

const (
	// InsertIgnore keeps the existing row when an item id is already loaded.
	InsertIgnore InsertMode = "insert_ignore"
	// Upsert replaces the existing row with the incoming payload.
	Upsert InsertMode = "upsert"
)

// Store is the catalog database interface.
//
// LoadItems writes the whole batch in one call: either every item is
// handed to the database together or none are. Items must carry top-level
// "id" and "collection" string fields.
//
// CreateCollection inserts a new collection record and fails with ErrExists
// when the id is already registered. UpdateCollectionSummaries recomputes
// the stored spatial and temporal extent of a collection from the items
// loaded under it.
type Store interface {
	// LoadItems bulk-loads item payloads with the given insert mode.
	LoadItems(ctx context.Context, items []map[string]interface{}, mode InsertMode) error

	// CreateCollection registers a new collection record.
	CreateCollection(ctx context.Context, collection map[string]interface{}) error

	// GetCollection returns the stored collection record.
	// Returns ErrNotFound if no collection has the given id.
	GetCollection(ctx context.Context, id string) (map[string]interface{}, error)

	// DeleteCollection removes a collection record and its loaded items.
	// Returns ErrNotFound if no collection has the given id.
	DeleteCollection(ctx context.Context, id string) error

	// CollectionExists reports whether a collection id is registered.
	CollectionExists(ctx context.Context, id string) (bool, error)

	// UpdateCollectionSummaries refreshes the collection's stored extent
	// from the items currently loaded under it.
	UpdateCollectionSummaries(ctx context.Context, id string) error

	// Close releases database resources.
	Close()
}

// itemKey extracts the identifying fields of an item payload.
func itemKey(item map[string]interface{}) (id, collection string, ok bool) {
	id, ok = item["id"].(string)
	if !ok || id == "" {
		return "", "", false
	}
	collection, ok = item["collection"].(string)
	if !ok || collection == "" {
		return "", "", false
	}
	return id, collection, true
}

// collectionID extracts the id of a collection payload.
func collectionID(collection map[string]interface{}) (string, bool) {
	id, ok := collection["id"].(string)
	return id, ok && id != ""
}
