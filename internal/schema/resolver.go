// internal/schema/resolver.go
package schema

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Resolver fetches official published item schemas with a local cache.
// Fetched schemas are cached in memory for a short window and on disk
// indefinitely; a stale disk copy is preferred over failing when the
// schema host is unreachable.
type Resolver struct {
	baseURL      string
	cacheDir     string
	cacheTimeout time.Duration

	mu         sync.Mutex
	cached     map[string][]byte
	lastUpdate map[string]time.Time
}

// NewResolver creates a new schema resolver.
// Parameters:
//   - baseURL: Schema host root, e.g. https://schemas.stacspec.org
//   - cacheDir: Directory for the on-disk schema cache
func NewResolver(baseURL, cacheDir string) *Resolver {
	return &Resolver{
		baseURL:      strings.TrimRight(baseURL, "/"),
		cacheDir:     cacheDir,
		cacheTimeout: 5 * time.Minute, // 5-minute cache
		cached:       make(map[string][]byte),
		lastUpdate:   make(map[string]time.Time),
	}
}

// ItemSchema returns the published item schema for a spec version,
// e.g. "1.0.0".
func (r *Resolver) ItemSchema(version string) ([]byte, error) {
	path := fmt.Sprintf("v%s/item-spec/json-schema/item.json", version)
	return r.resolve(path)
}

// resolve returns a schema document by host-relative path.
func (r *Resolver) resolve(path string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check if we have a cached version that's still valid
	if data, ok := r.cached[path]; ok && time.Since(r.lastUpdate[path]) < r.cacheTimeout {
		return data, nil
	}

	// Try the local disk cache first
	if data, err := r.loadFromCache(path); err == nil {
		r.cached[path] = data
		r.lastUpdate[path] = time.Now()
		return data, nil
	}

	// Fetch from the schema host
	data, err := r.fetchFromRemote(path)
	if err != nil {
		// If the fetch fails but we hold a stale copy, use it
		if data, ok := r.cached[path]; ok {
			return data, nil
		}
		return nil, fmt.Errorf("failed to fetch schema %s: %w", path, err)
	}

	// Update caches
	r.cached[path] = data
	r.lastUpdate[path] = time.Now()
	r.saveToCache(path, data)

	return data, nil
}

// cachePath flattens a schema path into a cache file name.
func (r *Resolver) cachePath(path string) string {
	return filepath.Join(r.cacheDir, strings.ReplaceAll(path, "/", "_"))
}

// loadFromCache loads a schema document from the local disk cache.
func (r *Resolver) loadFromCache(path string) ([]byte, error) {
	return os.ReadFile(r.cachePath(path))
}

// saveToCache saves a schema document to the local disk cache.
func (r *Resolver) saveToCache(path string, data []byte) {
	// Ensure cache directory exists
	if err := os.MkdirAll(r.cacheDir, 0755); err != nil {
		return // Ignore cache errors
	}
	_ = os.WriteFile(r.cachePath(path), data, 0644) // Ignore errors
}

// fetchFromRemote fetches a schema document from the schema host.
func (r *Resolver) fetchFromRemote(path string) ([]byte, error) {
	resp, err := http.Get(r.baseURL + "/" + path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("schema host returned %s", resp.Status)
	}

	return io.ReadAll(resp.Body)
}
