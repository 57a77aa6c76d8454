// internal/storage/cursor.go
package storage

import (
	"encoding/base64"
	"encoding/json"
	"time"

	apperrors "github.com/geostac/geostac-ingest-go/internal/errors"
	"github.com/geostac/geostac-ingest-go/internal/model"
)

// cursorData is the composite key of the last record returned on a page.
// Round-tripping it into a subsequent list call resumes exactly after that
// record. The field set and names are part of the cursor's wire format.
type cursorData struct {
	CreatedBy string       `json:"created_by"`
	ID        string       `json:"id"`
	Status    model.Status `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
}

// encodeCursor encodes the last returned record's key fields into an opaque
// base64 token.
func encodeCursor(rec model.IngestionRecord) string {
	data := cursorData{
		CreatedBy: rec.CreatedBy,
		ID:        rec.ID,
		Status:    rec.Status,
		CreatedAt: rec.CreatedAt,
	}
	jsonBytes, _ := json.Marshal(data)
	return base64.URLEncoding.EncodeToString(jsonBytes)
}

// decodeCursor decodes a pagination token. Malformed tokens fail with
// INGEST_CURSOR_INVALID rather than an internal error.
func decodeCursor(cursor string) (*cursorData, error) {
	dataBytes, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, apperrors.Newf(apperrors.INGEST_CURSOR_INVALID,
			"unable to decode next token: should be base64 encoded JSON")
	}

	var data cursorData
	if err := json.Unmarshal(dataBytes, &data); err != nil {
		return nil, apperrors.Newf(apperrors.INGEST_CURSOR_INVALID,
			"unable to decode next token: should be base64 encoded JSON")
	}

	return &data, nil
}

// afterCursor reports whether rec sorts strictly after the cursor position
// in (status, created_at, created_by, id) order.
func afterCursor(rec model.IngestionRecord, c *cursorData) bool {
	if rec.Status != c.Status {
		return rec.Status > c.Status
	}
	if !rec.CreatedAt.Equal(c.CreatedAt) {
		return rec.CreatedAt.After(c.CreatedAt)
	}
	if rec.CreatedBy != c.CreatedBy {
		return rec.CreatedBy > c.CreatedBy
	}
	return rec.ID > c.ID
}
