// internal/validate/collection.go
package validate

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/geostac/geostac-ingest-go/internal/errors"
)

// defaultCollectionTTL bounds how long a confirmed collection id is
// trusted without re-checking. Collections are effectively append-only,
// but a long-lived process must not trust a confirmation forever.
const defaultCollectionTTL = 5 * time.Minute

// CollectionLookup answers whether a collection id is registered.
type CollectionLookup interface {
	CollectionExists(ctx context.Context, id string) (bool, error)
}

// CollectionChecker caches positive collection-existence checks for a
// bounded window. Negative results are never cached: a collection
// published moments after a miss must be visible to the next check.
type CollectionChecker struct {
	lookup CollectionLookup
	ttl    time.Duration

	mu    sync.Mutex
	known map[string]time.Time // collection id -> confirmation time
}

// NewCollectionChecker creates a checker over the given lookup.
// A non-positive ttl selects the default window.
func NewCollectionChecker(lookup CollectionLookup, ttl time.Duration) *CollectionChecker {
	if ttl <= 0 {
		ttl = defaultCollectionTTL
	}
	return &CollectionChecker{
		lookup: lookup,
		ttl:    ttl,
		known:  make(map[string]time.Time),
	}
}

// Known confirms a collection id is registered, consulting the cache
// first. An unregistered id fails with an unknown-collection error;
// lookup failures pass through unchanged.
func (c *CollectionChecker) Known(ctx context.Context, id string) error {
	c.mu.Lock()
	confirmedAt, cached := c.known[id]
	c.mu.Unlock()
	if cached && time.Since(confirmedAt) < c.ttl {
		return nil
	}

	exists, err := c.lookup.CollectionExists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return apperrors.Newf(apperrors.INGEST_UNKNOWN_COLLECTION, "unknown collection %q", id)
	}

	c.mu.Lock()
	c.known[id] = time.Now()
	c.mu.Unlock()
	return nil
}
