// internal/model/ingest.go
// Package model defines the data structures used throughout the ingestion service.
// These structures represent the core domain objects for ingestion records,
// dataset submissions, and workflow executions.
package model

import (
	"strings"
	"time"

	apperrors "github.com/geostac/geostac-ingest-go/internal/errors"
)

// Status represents the lifecycle state of an ingestion record.
// Records start queued and advance only along the transitions below.
type Status string

const (
	StatusQueued    Status = "queued"    // Accepted and waiting for the batch loader
	StatusStarted   Status = "started"   // Claimed by the batch loader
	StatusSucceeded Status = "succeeded" // Bulk load accepted the item (terminal)
	StatusFailed    Status = "failed"    // Bulk load raised for this batch (terminal)
	StatusCancelled Status = "cancelled" // Cancelled by the submitter while queued (terminal)
	StatusUnknown   Status = "unknown"   // Sentinel for unrecognized status strings
)

// ParseStatus normalizes a status string case-insensitively.
// Unrecognized values map to StatusUnknown; they are never rejected.
func ParseStatus(s string) Status {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusQueued:
		return StatusQueued
	case StatusStarted:
		return StatusStarted
	case StatusSucceeded:
		return StatusSucceeded
	case StatusFailed:
		return StatusFailed
	case StatusCancelled:
		return StatusCancelled
	default:
		return StatusUnknown
	}
}

// Terminal reports whether no further transitions are defined for the status.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IngestionRecord represents one submitted catalog item and its lifecycle.
// (CreatedBy, ID) is the primary key; (Status, CreatedAt) is the secondary
// ordering used for listing. This corresponds to the ingestions table in storage.
type IngestionRecord struct {
	ID        string                 `json:"id" db:"id"`                     // Caller-supplied, unique within the owner's namespace
	CreatedBy string                 `json:"created_by" db:"created_by"`     // Identity of the submitting principal
	Status    Status                 `json:"status" db:"status"`             // Current lifecycle state
	Message   string                 `json:"message,omitempty" db:"message"` // Failure explanation, set by the loader
	Item      map[string]interface{} `json:"item" db:"item"`                 // Full catalog-item payload
	CreatedAt time.Time              `json:"created_at" db:"created_at"`     // Set once at first save
	UpdatedAt time.Time              `json:"updated_at" db:"updated_at"`     // Refreshed on every save
}

// NewIngestion constructs a queued record for a validated item payload.
// Timestamps are stamped by the store on first save.
func NewIngestion(id, createdBy string, item map[string]interface{}) IngestionRecord {
	return IngestionRecord{
		ID:        id,
		CreatedBy: createdBy,
		Status:    StatusQueued,
		Item:      item,
	}
}

// Cancel transitions the record to cancelled. Cancellation is only legal
// while the record is still queued; any other state is rejected.
func (r *IngestionRecord) Cancel() error {
	if r.Status != StatusQueued {
		return apperrors.Newf(apperrors.INGEST_STATE_TRANSITION,
			"unable to cancel ingestion with status %q; only %q ingestions may be cancelled", r.Status, StatusQueued)
	}
	r.Status = StatusCancelled
	return nil
}

// ListIngestionsQuery represents the query parameters for listing ingestion records.
type ListIngestionsQuery struct {
	Status Status `json:"status"` // Filter by lifecycle state (defaults to queued at the API layer)
	Limit  int    `json:"limit"`  // Maximum number of records to return; <= 0 means unlimited
	Next   string `json:"next"`   // Opaque pagination cursor from a previous response
}

// ListIngestionsResult represents one page of ingestion records.
type ListIngestionsResult struct {
	Items []IngestionRecord `json:"items"`          // Records in (status, created_at) ascending order
	Next  string            `json:"next,omitempty"` // Cursor resuming after the last record, if more exist
}
