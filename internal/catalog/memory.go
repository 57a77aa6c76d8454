// internal/catalog/memory.go
// In-memory implementation of the catalog Store, intended for local
// development and testing. Mirrors the PostgreSQL implementation's
// semantics without persistence.
package catalog

import (
	"context"
	"fmt"
	"sync"
)

type memory struct {
	mu          sync.RWMutex
	collections map[string]map[string]interface{}
	// items keyed by collection id, then item id
	items map[string]map[string]map[string]interface{}
}

// NewMemory creates a new in-memory catalog store.
func NewMemory() Store {
	return &memory{
		collections: make(map[string]map[string]interface{}),
		items:       make(map[string]map[string]map[string]interface{}),
	}
}

// Close is a no-op for the in-memory store.
func (m *memory) Close() {}

// LoadItems bulk-loads item payloads. The whole batch is validated before
// anything is written, matching the all-or-nothing behavior of the
// PostgreSQL multi-row insert.
func (m *memory) LoadItems(ctx context.Context, items []map[string]interface{}, mode InsertMode) error {
	if len(items) == 0 {
		return nil
	}
	if mode != InsertIgnore && mode != Upsert {
		return fmt.Errorf("unknown insert mode %q", mode)
	}
	for i, item := range items {
		if _, _, ok := itemKey(item); !ok {
			return fmt.Errorf("item %d is missing id or collection", i)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range items {
		id, collection, _ := itemKey(item)
		if m.items[collection] == nil {
			m.items[collection] = make(map[string]map[string]interface{})
		}
		if _, taken := m.items[collection][id]; taken && mode == InsertIgnore {
			continue
		}
		m.items[collection][id] = item
	}
	return nil
}

// CreateCollection registers a new collection record.
func (m *memory) CreateCollection(ctx context.Context, collection map[string]interface{}) error {
	id, ok := collectionID(collection)
	if !ok {
		return fmt.Errorf("collection is missing an id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.collections[id]; taken {
		return ErrExists
	}
	m.collections[id] = collection
	return nil
}

// GetCollection returns the stored collection document.
func (m *memory) GetCollection(ctx context.Context, id string) (map[string]interface{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	collection, found := m.collections[id]
	if !found {
		return nil, ErrNotFound
	}
	return collection, nil
}

// DeleteCollection removes a collection record and its loaded items.
func (m *memory) DeleteCollection(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, found := m.collections[id]; !found {
		return ErrNotFound
	}
	delete(m.collections, id)
	delete(m.items, id)
	return nil
}

// CollectionExists reports whether a collection id is registered.
func (m *memory) CollectionExists(ctx context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, found := m.collections[id]
	return found, nil
}

// UpdateCollectionSummaries recomputes the collection's stored extent from
// its loaded items, with the same whole-globe and open-interval fallbacks
// as the PostgreSQL implementation.
func (m *memory) UpdateCollectionSummaries(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	collection, found := m.collections[id]
	if !found {
		return ErrNotFound
	}

	bbox := []float64{-180, -90, 180, 90}
	haveBBox := false
	var minDatetime, maxDatetime string
	for _, item := range m.items[id] {
		if b := itemBBox(item); b != nil {
			if !haveBBox {
				bbox = b
				haveBBox = true
			} else {
				if b[0] < bbox[0] {
					bbox[0] = b[0]
				}
				if b[1] < bbox[1] {
					bbox[1] = b[1]
				}
				if b[2] > bbox[2] {
					bbox[2] = b[2]
				}
				if b[3] > bbox[3] {
					bbox[3] = b[3]
				}
			}
		}
		// ISO-8601 UTC datetimes order lexicographically
		if dt := itemDatetime(item); dt != "" {
			if minDatetime == "" || dt < minDatetime {
				minDatetime = dt
			}
			if dt > maxDatetime {
				maxDatetime = dt
			}
		}
	}

	var interval [2]interface{}
	if minDatetime != "" {
		interval[0], interval[1] = minDatetime, maxDatetime
	}

	collection["extent"] = map[string]interface{}{
		"spatial": map[string]interface{}{
			"bbox": []interface{}{[]interface{}{bbox[0], bbox[1], bbox[2], bbox[3]}},
		},
		"temporal": map[string]interface{}{
			"interval": []interface{}{[]interface{}{interval[0], interval[1]}},
		},
	}
	return nil
}

// itemBBox extracts a 4-element bbox from an item payload.
func itemBBox(item map[string]interface{}) []float64 {
	raw, ok := item["bbox"].([]interface{})
	if !ok || len(raw) < 4 {
		return nil
	}
	bbox := make([]float64, 4)
	for i := 0; i < 4; i++ {
		f, ok := raw[i].(float64)
		if !ok {
			return nil
		}
		bbox[i] = f
	}
	return bbox
}

// itemDatetime extracts properties.datetime from an item payload.
func itemDatetime(item map[string]interface{}) string {
	props, ok := item["properties"].(map[string]interface{})
	if !ok {
		return ""
	}
	dt, _ := props["datetime"].(string)
	return dt
}
