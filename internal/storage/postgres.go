// internal/storage/postgres.go
// PostgreSQL implementation of the Store interface, intended for production
// use with persistent data storage.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/geostac/geostac-ingest-go/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type postgres struct {
	db *pgxpool.Pool // Connection pool to PostgreSQL database
}

// NewPostgres creates a new PostgreSQL storage implementation.
// It establishes a connection pool to the database and initializes the schema.
// Parameters:
//   - dsn: Database connection string in PostgreSQL format
// Returns:
//   - Store: Implementation of the storage interface
//   - error: Any error that occurred during initialization
func NewPostgres(dsn string) (Store, error) {
	// Parse the database connection string
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid database DSN: %w", err)
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
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test the connection
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Initialize database schema
	if err := initSchema(ctx, pool); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &postgres{db: pool}, nil
}

// initSchema initializes the database schema.
// It creates the ingestions table and its secondary index if absent.
// This function is called automatically when creating a new PostgreSQL store.
func initSchema(ctx context.Context, db *pgxpool.Pool) error {
	schema := `
		-- Ingestion records, keyed by submitting principal and item id
		CREATE TABLE IF NOT EXISTS ingestions (
		    created_by TEXT NOT NULL,                -- Submitting principal
		    id TEXT NOT NULL,                        -- Caller-supplied item id
		    status TEXT NOT NULL,                    -- Lifecycle state
		    message TEXT NOT NULL DEFAULT '',        -- Failure explanation
		    item JSONB NOT NULL,                     -- Full catalog-item payload
		    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),  -- First save time
		    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),  -- Last save time
		    PRIMARY KEY (created_by, id)             -- Globally unique per owner
		);

		-- Secondary ordering used by list scans and the loader's filter
		CREATE INDEX IF NOT EXISTS idx_ingestions_status_created_at ON ingestions(status, created_at);
	`

	// Execute the schema creation SQL
	_, err := db.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool
func (p *postgres) Close() {
	p.db.Close()
}

// Put fully overwrites the record keyed by (created_by, id). created_at is
// written once on insert and left untouched on overwrite; updated_at is
// stamped on every call.
func (p *postgres) Put(ctx context.Context, rec model.IngestionRecord) (model.IngestionRecord, error) {
	itemJSON, err := json.Marshal(rec.Item)
	if err != nil {
		return rec, fmt.Errorf("failed to marshal item payload: %w", err)
	}

	now := time.Now().UTC()
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	query := `INSERT INTO ingestions (created_by, id, status, message, item, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)
	          ON CONFLICT (created_by, id) DO UPDATE
	          SET status = EXCLUDED.status, message = EXCLUDED.message,
	              item = EXCLUDED.item, updated_at = EXCLUDED.updated_at
	          RETURNING created_at, updated_at`

	err = p.db.QueryRow(ctx, query,
		rec.CreatedBy,
		rec.ID,
		rec.Status,
		rec.Message,
		itemJSON,
		createdAt,
		now).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return rec, fmt.Errorf("failed to put ingestion record: %w", err)
	}

	return rec, nil
}

// PutMany overwrites a batch of records in one multi-row upsert.
func (p *postgres) PutMany(ctx context.Context, recs []model.IngestionRecord) ([]model.IngestionRecord, error) {
	if len(recs) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	values := make([]string, 0, len(recs))
	args := make([]interface{}, 0, len(recs)*7)
	for i, rec := range recs {
		itemJSON, err := json.Marshal(rec.Item)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal item payload of %s: %w", rec.ID, err)
		}
		createdAt := rec.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		n := i * 7
		values = append(values, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			n+1, n+2, n+3, n+4, n+5, n+6, n+7))
		args = append(args, rec.CreatedBy, rec.ID, rec.Status, rec.Message, itemJSON, createdAt, now)
	}

	query := fmt.Sprintf(`INSERT INTO ingestions (created_by, id, status, message, item, created_at, updated_at)
	          VALUES %s
	          ON CONFLICT (created_by, id) DO UPDATE
	          SET status = EXCLUDED.status, message = EXCLUDED.message,
	              item = EXCLUDED.item, updated_at = EXCLUDED.updated_at
	          RETURNING created_by, id, created_at, updated_at`, strings.Join(values, ", "))

	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to put %d ingestion records: %w", len(recs), err)
	}
	defer rows.Close()

	// RETURNING order is not guaranteed to follow the VALUES list, so the
	// stamped timestamps are matched back by key.
	type stamp struct{ createdAt, updatedAt time.Time }
	stamps := make(map[string]stamp, len(recs))
	for rows.Next() {
		var createdBy, id string
		var s stamp
		if err := rows.Scan(&createdBy, &id, &s.createdAt, &s.updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan put results: %w", err)
		}
		stamps[createdBy+"\x00"+id] = s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read put results: %w", err)
	}

	saved := make([]model.IngestionRecord, len(recs))
	copy(saved, recs)
	for i := range saved {
		if s, ok := stamps[saved[i].CreatedBy+"\x00"+saved[i].ID]; ok {
			saved[i].CreatedAt = s.createdAt
			saved[i].UpdatedAt = s.updatedAt
		}
	}
	return saved, nil
}

// Get retrieves one record by its (created_by, id) primary key.
func (p *postgres) Get(ctx context.Context, createdBy, id string) (*model.IngestionRecord, error) {
	query := `SELECT created_by, id, status, message, item, created_at, updated_at
	          FROM ingestions WHERE created_by = $1 AND id = $2`

	rec, err := scanRecord(p.db.QueryRow(ctx, query, createdBy, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get ingestion record: %w", err)
	}
	return rec, nil
}

// rowScanner covers both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*model.IngestionRecord, error) {
	var rec model.IngestionRecord
	var status string
	var itemJSON []byte

	err := row.Scan(
		&rec.CreatedBy,
		&rec.ID,
		&status,
		&rec.Message,
		&itemJSON,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Status = model.ParseStatus(status)
	if err := json.Unmarshal(itemJSON, &rec.Item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item payload: %w", err)
	}
	return &rec, nil
}

// List lists records ordered by (status, created_at, created_by, id)
// ascending with cursor-based pagination.
func (p *postgres) List(ctx context.Context, query model.ListIngestionsQuery) (*model.ListIngestionsResult, error) {
	baseQuery := `SELECT created_by, id, status, message, item, created_at, updated_at
	              FROM ingestions`
	args := []interface{}{}
	argIndex := 1
	conds := []string{}

	// Add status filter if specified
	if query.Status != "" {
		conds = append(conds, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, string(query.Status))
		argIndex++
	}

	// Add cursor condition if provided
	if query.Next != "" {
		cursor, err := decodeCursor(query.Next)
		if err != nil {
			return nil, err
		}
		// Row-value comparison resumes strictly after the cursor position.
		conds = append(conds, fmt.Sprintf("(status, created_at, created_by, id) > ($%d, $%d, $%d, $%d)",
			argIndex, argIndex+1, argIndex+2, argIndex+3))
		args = append(args, string(cursor.Status), cursor.CreatedAt, cursor.CreatedBy, cursor.ID)
		argIndex += 4
	}

	for i, cond := range conds {
		if i == 0 {
			baseQuery += " WHERE " + cond
		} else {
			baseQuery += " AND " + cond
		}
	}

	baseQuery += " ORDER BY status ASC, created_at ASC, created_by ASC, id ASC"

	// A non-positive limit means unlimited. With a limit, fetch one extra
	// record to determine whether more results exist.
	limit := query.Limit
	if limit > 0 {
		baseQuery += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, limit+1)
	}

	rows, err := p.db.Query(ctx, baseQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list ingestion records: %w", err)
	}
	defer rows.Close()

	var records []model.IngestionRecord
	recordCount := 0

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ingestion record: %w", err)
		}

		recordCount++
		// Only add records up to the requested limit
		if limit <= 0 || recordCount <= limit {
			records = append(records, *rec)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ingestion records: %w", err)
	}

	result := &model.ListIngestionsResult{Items: records}

	// If we fetched more records than requested, there are more results available
	if limit > 0 && recordCount > limit && len(records) > 0 {
		result.Next = encodeCursor(records[len(records)-1])
	}

	return result, nil
}
