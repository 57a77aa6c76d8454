// internal/catalog/pgstac.go
// PostgreSQL implementation of the catalog Store, shaped after a pgstac
// deployment: collections and items live in JSONB content columns and the
// collection extent is recomputed in SQL from the loaded items.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgstac struct {
	db *pgxpool.Pool // Connection pool to the catalog database
}

// NewPgstac creates a new PostgreSQL catalog store.
// It establishes a connection pool to the catalog database and initializes
// the schema.
// Parameters:
//   - dsn: Database connection string in PostgreSQL format
// Returns:
//   - Store: Implementation of the catalog interface
//   - error: Any error that occurred during initialization
func NewPgstac(dsn string) (Store, error) {
	// Parse the database connection string
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog DSN: %w", err)
	}

	// Configure connection pool settings for optimal performance
	// Maximum number of connections
	config.MaxConns = 20
	// Minimum number of connections
	config.MinConns = 5
	// Maximum lifetime of a connection
	config.MaxConnLifetime = time.Hour
	// Maximum idle time before closing
	config.MaxConnIdleTime = time.Minute * 30
	// How often to check connection health
	config.HealthCheckPeriod = time.Minute

	// Establish connection with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Create connection pool
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to catalog database: %w", err)
	}

	// Test the connection
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping catalog database: %w", err)
	}

	// Initialize database schema
	if err := initCatalogSchema(ctx, pool); err != nil {
		return nil, fmt.Errorf("failed to initialize catalog schema: %w", err)
	}

	return &pgstac{db: pool}, nil
}

// initCatalogSchema creates the collections and items tables if absent.
func initCatalogSchema(ctx context.Context, db *pgxpool.Pool) error {
	schema := `
		-- Collection records, one JSONB document per collection
		CREATE TABLE IF NOT EXISTS collections (
		    id TEXT PRIMARY KEY,                     -- Collection id
		    content JSONB NOT NULL                   -- Full collection document
		);

		-- Item records, partition-keyed by owning collection
		CREATE TABLE IF NOT EXISTS items (
		    collection TEXT NOT NULL,                -- Owning collection id
		    id TEXT NOT NULL,                        -- Item id, unique per collection
		    content JSONB NOT NULL,                  -- Full item document
		    PRIMARY KEY (collection, id)
		);
	`
	_, err := db.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool.
func (p *pgstac) Close() {
	p.db.Close()
}

// LoadItems bulk-loads item payloads in a single multi-row INSERT.
// InsertIgnore leaves already-loaded items untouched; Upsert replaces
// their content. An item without top-level id and collection strings
// fails the whole batch before anything is written.
func (p *pgstac) LoadItems(ctx context.Context, items []map[string]interface{}, mode InsertMode) error {
	if len(items) == 0 {
		return nil
	}

	// Build one VALUES list covering the whole batch
	values := make([]string, 0, len(items))
	args := make([]interface{}, 0, len(items)*3)
	for i, item := range items {
		id, collection, ok := itemKey(item)
		if !ok {
			return fmt.Errorf("item %d is missing id or collection", i)
		}
		content, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to marshal item %s: %w", id, err)
		}
		n := i * 3
		values = append(values, fmt.Sprintf("($%d, $%d, $%d)", n+1, n+2, n+3))
		args = append(args, collection, id, content)
	}

	query := fmt.Sprintf(
		"INSERT INTO items (collection, id, content) VALUES %s",
		strings.Join(values, ", "),
	)
	switch mode {
	case Upsert:
		query += " ON CONFLICT (collection, id) DO UPDATE SET content = EXCLUDED.content"
	case InsertIgnore:
		query += " ON CONFLICT (collection, id) DO NOTHING"
	default:
		return fmt.Errorf("unknown insert mode %q", mode)
	}

	if _, err := p.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("bulk load of %d items failed: %w", len(items), err)
	}
	return nil
}

// CreateCollection inserts a new collection record.
// Returns ErrExists when the id is already registered.
func (p *pgstac) CreateCollection(ctx context.Context, collection map[string]interface{}) error {
	id, ok := collectionID(collection)
	if !ok {
		return fmt.Errorf("collection is missing an id")
	}
	content, err := json.Marshal(collection)
	if err != nil {
		return fmt.Errorf("failed to marshal collection %s: %w", id, err)
	}

	_, err = p.db.Exec(ctx, "INSERT INTO collections (id, content) VALUES ($1, $2)", id, content)
	if err != nil {
		var pgErr *pgconn.PgError
		// 23505 is unique_violation
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrExists
		}
		return fmt.Errorf("failed to create collection %s: %w", id, err)
	}
	return nil
}

// GetCollection returns the stored collection document.
func (p *pgstac) GetCollection(ctx context.Context, id string) (map[string]interface{}, error) {
	var content []byte
	err := p.db.QueryRow(ctx, "SELECT content FROM collections WHERE id = $1", id).Scan(&content)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read collection %s: %w", id, err)
	}

	var collection map[string]interface{}
	if err := json.Unmarshal(content, &collection); err != nil {
		return nil, fmt.Errorf("failed to unmarshal collection %s: %w", id, err)
	}
	return collection, nil
}

// DeleteCollection removes a collection and its items in one transaction.
func (p *pgstac) DeleteCollection(ctx context.Context, id string) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM items WHERE collection = $1", id); err != nil {
		return fmt.Errorf("failed to delete items of collection %s: %w", id, err)
	}
	tag, err := tx.Exec(ctx, "DELETE FROM collections WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return tx.Commit(ctx)
}

// CollectionExists reports whether a collection id is registered.
func (p *pgstac) CollectionExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := p.db.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM collections WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check collection %s: %w", id, err)
	}
	return exists, nil
}

// UpdateCollectionSummaries recomputes the collection's stored extent from
// its loaded items and merges it into the collection document. With no
// items loaded the spatial extent falls back to the whole globe and the
// temporal interval to open-ended nulls.
func (p *pgstac) UpdateCollectionSummaries(ctx context.Context, id string) error {
	// ISO-8601 UTC datetimes order lexicographically, so text MIN/MAX
	// give the temporal interval directly.
	query := `
		UPDATE collections SET content = content || jsonb_build_object(
		    'extent', jsonb_build_object(
		        'spatial', jsonb_build_object('bbox', ext.bbox),
		        'temporal', jsonb_build_object('interval', ext.temporal)
		    )
		)
		FROM (
		    SELECT
		        jsonb_build_array(jsonb_build_array(
		            COALESCE(MIN((content->'bbox'->>0)::float8), -180),
		            COALESCE(MIN((content->'bbox'->>1)::float8), -90),
		            COALESCE(MAX((content->'bbox'->>2)::float8), 180),
		            COALESCE(MAX((content->'bbox'->>3)::float8), 90)
		        )) AS bbox,
		        jsonb_build_array(jsonb_build_array(
		            to_jsonb(MIN(content->'properties'->>'datetime')),
		            to_jsonb(MAX(content->'properties'->>'datetime'))
		        )) AS temporal
		    FROM items WHERE collection = $1
		) AS ext
		WHERE collections.id = $1
	`
	tag, err := p.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to update summaries of collection %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
