// internal/errors/errors.go
// Package errors provides standardized error handling for the ingestion service.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a standardized error code for the ingestion service.
type ErrorCode string

const (
	// Validation errors
	INGEST_VALIDATION           ErrorCode = "INGEST_VALIDATION"           // General submission validation error
	INGEST_SCHEMA_REJECT        ErrorCode = "INGEST_SCHEMA_REJECT"        // Item failed structural schema validation
	INGEST_BAD_REQUEST          ErrorCode = "INGEST_BAD_REQUEST"          // Bad request
	INGEST_CURSOR_INVALID       ErrorCode = "INGEST_CURSOR_INVALID"       // Malformed pagination token
	INGEST_ASSET_UNREACHABLE    ErrorCode = "INGEST_ASSET_UNREACHABLE"    // Referenced asset failed its existence probe
	INGEST_UNKNOWN_COLLECTION   ErrorCode = "INGEST_UNKNOWN_COLLECTION"   // Referenced collection is not registered
	INGEST_SAMPLE_FILE_MISMATCH ErrorCode = "INGEST_SAMPLE_FILE_MISMATCH" // Sample files matched no discovery item
	INGEST_NO_DATE_FOUND        ErrorCode = "INGEST_NO_DATE_FOUND"        // No date could be extracted from a filename
	INGEST_TIME_DENSITY         ErrorCode = "INGEST_TIME_DENSITY"         // Periodicity and time density are inconsistent

	// Lifecycle errors
	INGEST_STATE_TRANSITION ErrorCode = "INGEST_STATE_TRANSITION" // Illegal status change attempted
	INGEST_NOT_FOUND        ErrorCode = "INGEST_NOT_FOUND"        // Record or collection absent
	INGEST_CONFLICT         ErrorCode = "INGEST_CONFLICT"         // Resource conflict

	// Authentication/Authorization errors
	INGEST_AUTHN ErrorCode = "INGEST_AUTHN" // Authentication failed
	INGEST_AUTHZ ErrorCode = "INGEST_AUTHZ" // Authorization failed

	// Downstream errors
	INGEST_BULK_LOAD ErrorCode = "INGEST_BULK_LOAD" // Catalog store bulk upsert raised
	INGEST_PUBLISH   ErrorCode = "INGEST_PUBLISH"   // Collection creation rejected by the catalog store
	INGEST_WORKFLOW  ErrorCode = "INGEST_WORKFLOW"  // Discovery workflow trigger or status query failed

	// Rate limiting
	INGEST_RATE_LIMIT ErrorCode = "INGEST_RATE_LIMIT" // Rate limit exceeded

	// Server errors
	INGEST_INTERNAL    ErrorCode = "INGEST_INTERNAL"    // Internal server error
	INGEST_UNAVAILABLE ErrorCode = "INGEST_UNAVAILABLE" // Service unavailable
)

// Error represents a standardized error response.
type Error struct {
	Code          ErrorCode   `json:"code"`
	Message       string      `json:"message"`
	CorrelationID string      `json:"correlationId"`
	Details       interface{} `json:"details,omitempty"`
	HTTPStatus    int         `json:"-"`
}

// New creates a new Error with the specified code and message.
func New(code ErrorCode, message string, correlationID string) *Error {
	return &Error{
		Code:          code,
		Message:       message,
		CorrelationID: correlationID,
		HTTPStatus:    httpStatusCodeForCode(code),
	}
}

// NewWithDetails creates a new Error with the specified code, message, and details.
func NewWithDetails(code ErrorCode, message string, correlationID string, details interface{}) *Error {
	return &Error{
		Code:          code,
		Message:       message,
		CorrelationID: correlationID,
		Details:       details,
		HTTPStatus:    httpStatusCodeForCode(code),
	}
}

// Newf creates a new Error with a formatted message and no correlation id.
// The correlation id is filled in at the HTTP boundary.
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...), "")
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Details != nil {
		return fmt.Sprintf("%s: %s (details: %v)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CodeOf returns the ErrorCode carried by err, or INGEST_INTERNAL when err
// is not an *Error from this package.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return INGEST_INTERNAL
}

// httpStatusCodeForCode maps error codes to HTTP status codes.
func httpStatusCodeForCode(code ErrorCode) int {
	switch code {
	case INGEST_VALIDATION, INGEST_SCHEMA_REJECT, INGEST_BAD_REQUEST,
		INGEST_ASSET_UNREACHABLE, INGEST_UNKNOWN_COLLECTION,
		INGEST_SAMPLE_FILE_MISMATCH, INGEST_NO_DATE_FOUND,
		INGEST_TIME_DENSITY, INGEST_STATE_TRANSITION:
		return http.StatusBadRequest
	case INGEST_CURSOR_INVALID:
		// Malformed pagination tokens map to 422, not 400.
		return http.StatusUnprocessableEntity
	case INGEST_AUTHZ:
		return http.StatusForbidden
	case INGEST_AUTHN:
		return http.StatusUnauthorized
	case INGEST_NOT_FOUND:
		return http.StatusNotFound
	case INGEST_CONFLICT:
		return http.StatusConflict
	case INGEST_BULK_LOAD, INGEST_PUBLISH, INGEST_WORKFLOW:
		return http.StatusBadGateway
	case INGEST_RATE_LIMIT:
		return http.StatusTooManyRequests
	case INGEST_UNAVAILABLE:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
