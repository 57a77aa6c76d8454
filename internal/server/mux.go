// internal/server/mux.go
// Package server implements the HTTP handlers and routing for the ingestion
// service. It provides RESTful endpoints for ingestion lifecycle, dataset
// validation and publishing, and workflow tracking, with JWT authentication
// on every versioned route. Handlers stay thin: they decode, call the core
// packages, and encode.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/geostac/geostac-ingest-go/internal/errors"
	"github.com/geostac/geostac-ingest-go/internal/jwks"
	"github.com/geostac/geostac-ingest-go/internal/metrics"
	"github.com/geostac/geostac-ingest-go/internal/model"
	"github.com/geostac/geostac-ingest-go/internal/publish"
	"github.com/geostac/geostac-ingest-go/internal/storage"
	"github.com/geostac/geostac-ingest-go/internal/validate"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ContextKey is used for context values to avoid collisions
// when storing values in request context
type ContextKey string

const (
	// Context keys for storing request-scoped values
	ContextKeyPrincipal     ContextKey = "principal"     // Stores the authenticated caller identity
	ContextKeyCorrelationID ContextKey = "correlationId" // Unique ID for request tracking

	// Default limits for list operations
	DefaultListLimit = 25  // Default number of records per page
	MaxListLimit     = 100 // Maximum number of records per page
)

// WorkflowRunner drives the external discovery scheduler: it starts runs
// and reports on runs started earlier.
type WorkflowRunner interface {
	Trigger(ctx context.Context, item model.DiscoveryItem) (model.WorkflowExecution, error)
	Status(ctx context.Context, runID string) (model.WorkflowExecution, error)
}

// Mux handles HTTP requests for the ingestion service.
// It implements all the required endpoints and manages dependencies
// such as the record store, validators, publisher, and workflow client.
type Mux struct {
	mux         *http.ServeMux      // HTTP request multiplexer
	store       storage.Store       // Durable queue of ingestion records
	validator   *validate.Validator // Submission rule set for items and datasets
	publisher   *publish.Publisher  // Collection builder and workflow dispatcher
	workflows   WorkflowRunner      // Discovery scheduler client
	jwksClient  *jwks.Client        // JWKS client for JWT validation
	jwtIssuer   string              // Expected JWT issuer for validation
	jwtAudience string              // Expected JWT audience for validation
	metrics     *metrics.Metrics    // Metrics for monitoring

	// CORS configuration
	corsAllowedOrigins []string // Allowed origins for CORS (empty means deny all)
}

// NewMux creates a new HTTP mux with all ingestion endpoints.
// Parameters:
//   - store: Durable queue for ingestion records
//   - validator: Item and dataset admission rules
//   - publisher: Collection publisher and workflow dispatcher
//   - workflows: Discovery scheduler client
//   - jwksClient: JWT validation client (nil derives one from the issuer)
//   - jwtIssuer: Expected JWT issuer for validation
//   - jwtAudience: Expected JWT audience for validation
//   - corsAllowedOrigins: Origins allowed to call the API from a browser
func NewMux(store storage.Store, validator *validate.Validator, publisher *publish.Publisher, workflows WorkflowRunner, jwksClient *jwks.Client, jwtIssuer, jwtAudience string, corsAllowedOrigins []string) *http.ServeMux {
	// Use provided JWKS client or derive one from the issuer
	if jwksClient == nil {
		jwksClient = jwks.NewClient(fmt.Sprintf("%s/.well-known/jwks.json", jwtIssuer))
	}

	m := &Mux{
		mux:                http.NewServeMux(),
		store:              store,
		validator:          validator,
		publisher:          publisher,
		workflows:          workflows,
		jwksClient:         jwksClient,
		jwtIssuer:          jwtIssuer,
		jwtAudience:        jwtAudience,
		metrics:            metrics.NewMetrics(),
		corsAllowedOrigins: corsAllowedOrigins,
	}

	// Register health endpoints
	m.mux.HandleFunc("/healthz", m.handleHealthz)
	m.mux.HandleFunc("/readyz", m.handleReadyz)
	m.mux.Handle("/metrics", promhttp.Handler())

	// Register versioned endpoints with appropriate middleware
	m.mux.HandleFunc("/v1/ingestions", m.withMiddleware(m.handleIngestions))
	m.mux.HandleFunc("/v1/ingestions/", m.withMiddleware(m.handleIngestion))
	m.mux.HandleFunc("/v1/datasets/validate", m.method("POST", m.withMiddleware(m.handleValidateDataset)))
	m.mux.HandleFunc("/v1/datasets/publish", m.method("POST", m.withMiddleware(m.handlePublishDataset)))
	m.mux.HandleFunc("/v1/collections", m.method("POST", m.withMiddleware(m.handlePublishCollection)))
	m.mux.HandleFunc("/v1/collections/", m.method("DELETE", m.withMiddleware(m.handleDeleteCollection)))
	m.mux.HandleFunc("/v1/workflow-executions", m.method("POST", m.withMiddleware(m.handleTriggerWorkflow)))
	m.mux.HandleFunc("/v1/workflow-executions/", m.method("GET", m.withMiddleware(m.handleWorkflowStatus)))
	m.mux.HandleFunc("/v1/auth/me", m.method("GET", m.withMiddleware(m.handleWhoAmI)))

	return m.mux
}

// method ensures the HTTP method matches the expected method
func (m *Mux) method(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method && r.Method != http.MethodOptions {
			err := apperrors.New(apperrors.INGEST_BAD_REQUEST, "method not allowed", "")
			m.writeErrorDef(w, err)
			return
		}
		h(w, r)
	}
}

// withMiddleware applies CORS, correlation ids, and bearer authentication,
// then logs and measures the request after the handler runs. Every /v1
// route requires a principal: reads are scoped by it and writes record it.
func (m *Mux) withMiddleware(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Handle CORS preflight requests
		if r.Method == http.MethodOptions {
			if origin := m.corsOrigin(r); origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Correlation-Id")
				w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours
			}
			w.WriteHeader(http.StatusOK)
			return
		}

		// Set CORS headers for regular requests
		if origin := m.corsOrigin(r); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}

		// Add correlation ID if not present
		correlationID := r.Header.Get("X-Correlation-Id")
		if correlationID == "" {
			correlationID = uuid.New().String()
		}
		r = r.WithContext(context.WithValue(r.Context(), ContextKeyCorrelationID, correlationID))
		w.Header().Set("X-Correlation-Id", correlationID)

		principal, err := m.authenticate(r)
		if err != nil {
			var appErr *apperrors.Error
			if !errors.As(err, &appErr) {
				appErr = apperrors.New(apperrors.INGEST_AUTHN, err.Error(), "")
			}
			appErr.CorrelationID = correlationID
			m.writeErrorDef(w, appErr)
			m.logRequest(r, appErr.HTTPStatus, time.Since(start), correlationID)
			return
		}
		r = r.WithContext(context.WithValue(r.Context(), ContextKeyPrincipal, principal))

		// Call the handler through a recorder so the final status is known
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		h(sw, r)

		duration := time.Since(start)
		route := routeLabel(r.URL.Path)
		code := strconv.Itoa(sw.status)
		m.metrics.HTTPRequestTotal.WithLabelValues(r.Method, route, code).Inc()
		m.metrics.HTTPRequestDuration.WithLabelValues(r.Method, route, code).Observe(duration.Seconds())
		m.logRequest(r, sw.status, duration, correlationID)
	}
}

// corsOrigin returns the request origin when it is allowed, or "".
func (m *Mux) corsOrigin(r *http.Request) string {
	origin := r.Header.Get("Origin")
	if origin == "" || len(m.corsAllowedOrigins) == 0 {
		return ""
	}
	for _, allowed := range m.corsAllowedOrigins {
		if allowed == "*" || allowed == origin {
			return origin
		}
	}
	return ""
}

// authenticate resolves the calling principal from the bearer token.
// The principal becomes created_by on everything the caller submits.
func (m *Mux) authenticate(r *http.Request) (string, error) {
	token, err := jwks.BearerToken(r.Header.Get("Authorization"))
	if err != nil {
		return "", apperrors.New(apperrors.INGEST_AUTHN, err.Error(), "")
	}

	claims, err := m.jwksClient.ValidateJWT(r.Context(), token, m.jwtIssuer, m.jwtAudience)
	if err != nil {
		return "", apperrors.Newf(apperrors.INGEST_AUTHN, "invalid bearer token: %s", err)
	}

	principal := jwks.Principal(claims)
	if principal == "" {
		return "", apperrors.New(apperrors.INGEST_AUTHN, "token carries no principal", "")
	}
	return principal, nil
}

// statusWriter records the status code a handler writes so middleware can
// log and measure it after the handler returns.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// routeLabel collapses id-bearing paths so metric label cardinality stays
// bounded.
func routeLabel(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/ingestions/"):
		return "/v1/ingestions/{id}"
	case strings.HasPrefix(path, "/v1/collections/"):
		return "/v1/collections/{id}"
	case strings.HasPrefix(path, "/v1/workflow-executions/"):
		return "/v1/workflow-executions/{id}"
	default:
		return path
	}
}

// correlationIDFrom returns the request's correlation id, or "".
func correlationIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ContextKeyCorrelationID).(string)
	return id
}

// principalFrom returns the authenticated caller identity, or "".
func principalFrom(ctx context.Context) string {
	principal, _ := ctx.Value(ContextKeyPrincipal).(string)
	return principal
}

// pathSuffix returns the single path element after prefix, or "" when the
// path carries none or more than one.
func pathSuffix(path, prefix string) string {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if strings.Contains(rest, "/") {
		return ""
	}
	return rest
}

// writeSuccess writes a successful response
func (m *Mux) writeSuccess(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := map[string]interface{}{
		"data": data,
	}
	_ = json.NewEncoder(w).Encode(response)
}

// writeError writes an error response following the ingestion error taxonomy
func (m *Mux) writeError(w http.ResponseWriter, statusCode int, code, message, correlationID string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := map[string]interface{}{
		"error": map[string]interface{}{
			"code":          code,
			"message":       message,
			"correlationId": correlationID,
		},
	}

	if details != nil {
		response["error"].(map[string]interface{})["details"] = details
	}

	_ = json.NewEncoder(w).Encode(response)
}

// writeErrorDef writes an error response using the error definitions package
func (m *Mux) writeErrorDef(w http.ResponseWriter, err *apperrors.Error) {
	m.writeError(w, err.HTTPStatus, string(err.Code), err.Message, err.CorrelationID, err.Details)
}

// writeAppError maps any error onto the error envelope, filling in the
// request correlation id. Errors from outside the taxonomy become
// INGEST_INTERNAL.
func (m *Mux) writeAppError(ctx context.Context, w http.ResponseWriter, err error) {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		appErr = apperrors.New(apperrors.INGEST_INTERNAL, err.Error(), "")
	}
	if appErr.CorrelationID == "" {
		appErr.CorrelationID = correlationIDFrom(ctx)
	}
	m.writeErrorDef(w, appErr)
}

// logRequest logs request details
func (m *Mux) logRequest(r *http.Request, status int, duration time.Duration, correlationID string) {
	attrs := []slog.Attr{
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.Duration("duration", duration),
		slog.String("user_agent", r.UserAgent()),
		slog.String("remote_addr", r.RemoteAddr),
	}

	if correlationID != "" {
		attrs = append(attrs, slog.String("correlation_id", correlationID))
	}

	if principal := principalFrom(r.Context()); principal != "" {
		attrs = append(attrs, slog.String("principal", principal))
	}

	if status >= http.StatusInternalServerError {
		slog.LogAttrs(r.Context(), slog.LevelError, "request failed", attrs...)
	} else {
		slog.LogAttrs(r.Context(), slog.LevelInfo, "request completed", attrs...)
	}
}

// handleHealthz handles liveness health check requests
func (m *Mux) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReadyz handles readiness health check requests
func (m *Mux) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// Probe the record store with a key that never exists. ErrNotFound
	// proves the store answered; anything else means it is unreachable.
	_, err := m.store.Get(ctx, "health-check", "health-check")
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleIngestions dispatches the collection-level ingestion routes.
func (m *Mux) handleIngestions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		m.handleCreateIngestion(w, r)
	case http.MethodGet:
		m.handleListIngestions(w, r)
	default:
		m.writeAppError(r.Context(), w, apperrors.Newf(apperrors.INGEST_BAD_REQUEST, "method not allowed"))
	}
}

// handleIngestion dispatches the per-record ingestion routes.
func (m *Mux) handleIngestion(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		m.handleGetIngestion(w, r)
	case http.MethodDelete:
		m.handleCancelIngestion(w, r)
	default:
		m.writeAppError(r.Context(), w, apperrors.Newf(apperrors.INGEST_BAD_REQUEST, "method not allowed"))
	}
}

// handleCreateIngestion handles POST /v1/ingestions. The submitted catalog
// item is validated, then queued under (principal, item id). Re-submitting
// an id overwrites the previous record and requeues it; writes are
// last-writer-wins by contract.
func (m *Mux) handleCreateIngestion(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("ingest-service").Start(r.Context(), "handleCreateIngestion")
	defer span.End()
	defer r.Body.Close()

	var item map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		span.SetStatus(codes.Error, "invalid JSON")
		m.writeAppError(ctx, w, apperrors.Newf(apperrors.INGEST_VALIDATION, "request body must be a JSON catalog item"))
		return
	}

	itemID, _ := item["id"].(string)
	itemCollection, _ := item["collection"].(string)
	span.SetAttributes(
		attribute.String("item_id", itemID),
		attribute.String("collection", itemCollection),
	)

	if err := m.validator.Item(ctx, item); err != nil {
		span.SetStatus(codes.Error, "item rejected")
		m.metrics.ValidationTotal.WithLabelValues("item", "rejected").Inc()
		m.writeAppError(ctx, w, err)
		return
	}
	m.metrics.ValidationTotal.WithLabelValues("item", "accepted").Inc()

	if itemID == "" {
		m.writeAppError(ctx, w, apperrors.Newf(apperrors.INGEST_VALIDATION, "item id is required"))
		return
	}

	rec := model.NewIngestion(itemID, principalFrom(ctx), item)
	saved, err := m.store.Put(ctx, rec)
	if err != nil {
		span.SetStatus(codes.Error, "store write failed")
		m.writeAppError(ctx, w, apperrors.Newf(apperrors.INGEST_INTERNAL, "failed to save ingestion"))
		return
	}

	m.writeSuccess(w, http.StatusCreated, saved)
}

// handleListIngestions handles GET /v1/ingestions. The listing is not
// scoped by caller: operators watch the whole queue. Status defaults to
// queued; the limit is clamped to keep pages bounded.
func (m *Mux) handleListIngestions(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("ingest-service").Start(r.Context(), "handleListIngestions")
	defer span.End()

	query := model.ListIngestionsQuery{
		Status: model.StatusQueued,
		Limit:  DefaultListLimit,
		Next:   r.URL.Query().Get("next"),
	}
	if s := r.URL.Query().Get("status"); s != "" {
		query.Status = model.ParseStatus(s)
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if v, err := strconv.Atoi(limitStr); err == nil {
			if v > 0 && v <= MaxListLimit {
				query.Limit = v
			} else if v > MaxListLimit {
				query.Limit = MaxListLimit
			}
		}
	}

	span.SetAttributes(
		attribute.String("status", string(query.Status)),
		attribute.Int("limit", query.Limit),
		attribute.Bool("has_cursor", query.Next != ""),
	)

	result, err := m.store.List(ctx, query)
	if err != nil {
		span.SetStatus(codes.Error, "list failed")
		// Malformed cursors carry their own code and map to 422.
		if apperrors.CodeOf(err) == apperrors.INGEST_CURSOR_INVALID {
			m.writeAppError(ctx, w, err)
			return
		}
		m.writeAppError(ctx, w, apperrors.Newf(apperrors.INGEST_INTERNAL, "failed to list ingestions"))
		return
	}

	m.writeSuccess(w, http.StatusOK, result)
}

// handleGetIngestion handles GET /v1/ingestions/{id}. Records are keyed by
// (created_by, id), so callers only see their own submissions.
func (m *Mux) handleGetIngestion(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("ingest-service").Start(r.Context(), "handleGetIngestion")
	defer span.End()

	id := pathSuffix(r.URL.Path, "/v1/ingestions/")
	if id == "" {
		m.writeAppError(ctx, w, apperrors.Newf(apperrors.INGEST_BAD_REQUEST, "ingestion id is required"))
		return
	}
	span.SetAttributes(attribute.String("ingestion_id", id))

	rec, err := m.store.Get(ctx, principalFrom(ctx), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			m.writeAppError(ctx, w, apperrors.Newf(apperrors.INGEST_NOT_FOUND, "no ingestion found with id %q", id))
			return
		}
		span.SetStatus(codes.Error, "store read failed")
		m.writeAppError(ctx, w, apperrors.Newf(apperrors.INGEST_INTERNAL, "failed to load ingestion"))
		return
	}

	m.writeSuccess(w, http.StatusOK, rec)
}

// handleCancelIngestion handles DELETE /v1/ingestions/{id}. Cancellation
// is only legal while the record is still queued; the loader may race this
// write and the last writer wins.
func (m *Mux) handleCancelIngestion(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("ingest-service").Start(r.Context(), "handleCancelIngestion")
	defer span.End()

	id := pathSuffix(r.URL.Path, "/v1/ingestions/")
	if id == "" {
		m.writeAppError(ctx, w, apperrors.Newf(apperrors.INGEST_BAD_REQUEST, "ingestion id is required"))
		return
	}
	span.SetAttributes(attribute.String("ingestion_id", id))

	rec, err := m.store.Get(ctx, principalFrom(ctx), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			m.writeAppError(ctx, w, apperrors.Newf(apperrors.INGEST_NOT_FOUND, "no ingestion found with id %q", id))
			return
		}
		span.SetStatus(codes.Error, "store read failed")
		m.writeAppError(ctx, w, apperrors.Newf(apperrors.INGEST_INTERNAL, "failed to load ingestion"))
		return
	}

	if err := rec.Cancel(); err != nil {
		span.SetStatus(codes.Error, "illegal transition")
		m.writeAppError(ctx, w, err)
		return
	}

	saved, err := m.store.Put(ctx, *rec)
	if err != nil {
		span.SetStatus(codes.Error, "store write failed")
		m.writeAppError(ctx, w, apperrors.Newf(apperrors.INGEST_INTERNAL, "failed to save ingestion"))
		return
	}

	m.writeSuccess(w, http.StatusOK, saved)
}

// handleValidateDataset handles POST /v1/datasets/validate. It runs the
// full dataset rule set without writing anything.
func (m *Mux) handleValidateDataset(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("ingest-service").Start(r.Context(), "handleValidateDataset")
	defer span.End()
	defer r.Body.Close()

	var sub model.DatasetSubmission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		span.SetStatus(codes.Error, "invalid JSON")
		m.writeAppError(ctx, w, apperrors.Newf(apperrors.INGEST_VALIDATION, "request body must be a JSON dataset submission"))
		return
	}

	span.SetAttributes(
		attribute.String("collection", sub.Collection),
		attribute.Int("discovery_items", len(sub.DiscoveryItems)),
	)

	start := time.Now()
	if err := m.validator.Dataset(ctx, sub); err != nil {
		span.SetStatus(codes.Error, "dataset rejected")
		m.metrics.ValidationTotal.WithLabelValues("dataset", "rejected").Inc()
		m.metrics.ValidationDuration.WithLabelValues("dataset", "rejected").Observe(time.Since(start).Seconds())
		m.writeAppError(ctx, w, err)
		return
	}
	m.metrics.ValidationTotal.WithLabelValues("dataset", "accepted").Inc()
	m.metrics.ValidationDuration.WithLabelValues("dataset", "accepted").Observe(time.Since(start).Seconds())

	m.writeSuccess(w, http.StatusOK, map[string]interface{}{
		"collection": sub.Collection,
		"message":    fmt.Sprintf("Dataset metadata is valid and ready to be published - %s", sub.Collection),
	})
}

// handlePublishDataset handles POST /v1/datasets/publish: validate, create
// the collection, then dispatch one discovery run per object-storage item.
func (m *Mux) handlePublishDataset(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("ingest-service").Start(r.Context(), "handlePublishDataset")
	defer span.End()
	defer r.Body.Close()

	var sub model.DatasetSubmission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		span.SetStatus(codes.Error, "invalid JSON")
		m.writeAppError(ctx, w, apperrors.Newf(apperrors.INGEST_VALIDATION, "request body must be a JSON dataset submission"))
		return
	}

	span.SetAttributes(
		attribute.String("collection", sub.Collection),
		attribute.String("data_type", string(sub.DataType)),
	)

	receipt, err := m.publisher.PublishDataset(ctx, sub)
	if err != nil {
		span.SetStatus(codes.Error, "publish failed")
		m.writeAppError(ctx, w, err)
		return
	}

	m.writeSuccess(w, http.StatusOK, receipt)
}

// handlePublishCollection handles POST /v1/collections with a raw
// collection document.
func (m *Mux) handlePublishCollection(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("ingest-service").Start(r.Context(), "handlePublishCollection")
	defer span.End()
	defer r.Body.Close()

	var doc map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		span.SetStatus(codes.Error, "invalid JSON")
		m.writeAppError(ctx, w, apperrors.Newf(apperrors.INGEST_VALIDATION, "request body must be a JSON collection"))
		return
	}

	id, _ := doc["id"].(string)
	span.SetAttributes(attribute.String("collection", id))

	if err := m.publisher.PublishCollection(ctx, doc); err != nil {
		span.SetStatus(codes.Error, "publish failed")
		m.writeAppError(ctx, w, err)
		return
	}

	m.writeSuccess(w, http.StatusCreated, map[string]interface{}{
		"collection": id,
		"message":    fmt.Sprintf("Successfully published: %s", id),
	})
}

// handleDeleteCollection handles DELETE /v1/collections/{id}.
func (m *Mux) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("ingest-service").Start(r.Context(), "handleDeleteCollection")
	defer span.End()

	id := pathSuffix(r.URL.Path, "/v1/collections/")
	if id == "" {
		m.writeAppError(ctx, w, apperrors.Newf(apperrors.INGEST_BAD_REQUEST, "collection id is required"))
		return
	}
	span.SetAttributes(attribute.String("collection", id))

	if err := m.publisher.DeleteCollection(ctx, id); err != nil {
		span.SetStatus(codes.Error, "delete failed")
		m.writeAppError(ctx, w, err)
		return
	}

	m.writeSuccess(w, http.StatusOK, map[string]interface{}{
		"collection": id,
		"message":    fmt.Sprintf("Successfully deleted: %s", id),
	})
}

// handleTriggerWorkflow handles POST /v1/workflow-executions with a single
// discovery item, outside the dataset publish flow.
func (m *Mux) handleTriggerWorkflow(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("ingest-service").Start(r.Context(), "handleTriggerWorkflow")
	defer span.End()
	defer r.Body.Close()

	var item model.DiscoveryItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		span.SetStatus(codes.Error, "invalid JSON")
		m.writeAppError(ctx, w, apperrors.Newf(apperrors.INGEST_VALIDATION, "request body must be a JSON discovery item"))
		return
	}

	span.SetAttributes(attribute.String("collection", item.Collection))

	exec, err := m.workflows.Trigger(ctx, item)
	if err != nil {
		span.SetStatus(codes.Error, "trigger failed")
		m.writeAppError(ctx, w, apperrors.Newf(apperrors.INGEST_WORKFLOW, "%s", err))
		return
	}

	m.writeSuccess(w, http.StatusCreated, exec)
}

// handleWorkflowStatus handles GET /v1/workflow-executions/{id}. Unknown
// run ids report the nonexistent state rather than an error.
func (m *Mux) handleWorkflowStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("ingest-service").Start(r.Context(), "handleWorkflowStatus")
	defer span.End()

	id := pathSuffix(r.URL.Path, "/v1/workflow-executions/")
	if id == "" {
		m.writeAppError(ctx, w, apperrors.Newf(apperrors.INGEST_BAD_REQUEST, "workflow execution id is required"))
		return
	}
	span.SetAttributes(attribute.String("run_id", id))

	exec, err := m.workflows.Status(ctx, id)
	if err != nil {
		span.SetStatus(codes.Error, "status query failed")
		m.writeAppError(ctx, w, apperrors.Newf(apperrors.INGEST_WORKFLOW, "%s", err))
		return
	}

	m.writeSuccess(w, http.StatusOK, exec)
}

// handleWhoAmI handles GET /v1/auth/me, echoing the resolved principal so
// clients can confirm what identity their token carries.
func (m *Mux) handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	m.writeSuccess(w, http.StatusOK, map[string]interface{}{
		"username": principalFrom(r.Context()),
	})
}
