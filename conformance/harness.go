// Package conformance provides a test harness verifying an ingest service
// deployment end to end, over HTTP, with the in-process implementations of
// every backing store.
package conformance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/geostac/geostac-ingest-go/internal/catalog"
	"github.com/geostac/geostac-ingest-go/internal/event"
	"github.com/geostac/geostac-ingest-go/internal/jwks"
	"github.com/geostac/geostac-ingest-go/internal/loader"
	"github.com/geostac/geostac-ingest-go/internal/model"
	"github.com/geostac/geostac-ingest-go/internal/objectstore"
	"github.com/geostac/geostac-ingest-go/internal/publish"
	"github.com/geostac/geostac-ingest-go/internal/schema"
	"github.com/geostac/geostac-ingest-go/internal/server"
	"github.com/geostac/geostac-ingest-go/internal/storage"
	"github.com/geostac/geostac-ingest-go/internal/validate"
	"github.com/golang-jwt/jwt/v5"
)

// Harness runs the full service stack behind an httptest server: memory
// record store, memory catalog, in-process change feed, and a stub
// workflow scheduler. The batch loader is held unstarted so tests control
// exactly when feed events are consumed.
type Harness struct {
	server    *httptest.Server
	store     storage.Store
	catalog   catalog.Store
	feed      *event.MemoryFeed
	loader    *loader.Loader
	scheduler *stubScheduler

	issuer   string
	audience string
}

// Config holds configuration for the conformance test harness.
type Config struct {
	// JWTIssuer is the issuer minted tokens claim and the mux expects
	JWTIssuer string

	// JWTAudience is the audience minted tokens claim and the mux expects
	JWTAudience string
}

// NewHarness creates a new conformance test harness. The object store is
// seeded with the fixture files the suite's submissions reference, and the
// sentinel collection is pre-registered so item submissions against it pass.
func NewHarness(cfg Config) (*Harness, error) {
	records := storage.NewMemory()
	cat := catalog.NewMemory()

	// Writes flow through the feed decorator so the loader subtests see
	// real change events.
	feed := event.NewMemoryFeed(10, 50*time.Millisecond)
	store := storage.NewFeedStore(records, feed)

	schemas, err := schema.NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize schema validator: %w", err)
	}

	objects := &seededObjects{objects: map[string]int64{
		"eo-data-staging/sentinel/sr_2024-01-01.tif": 4096,
		"eo-data-staging/sentinel/sr_2024-01-02.tif": 4096,
		"eo-data-staging/modis/ndvi_2023-06-01.tif":  8192,
	}}
	validator := validate.NewValidator(objects, validate.NewCollectionChecker(cat, 0), schemas)

	scheduler := &stubScheduler{}
	publisher := publish.New(cat, schemas, validator, scheduler, nil)

	if err := cat.CreateCollection(context.Background(), map[string]interface{}{
		"id": "sentinel-surface-reflectance",
	}); err != nil {
		return nil, fmt.Errorf("failed to seed collection: %w", err)
	}

	mux := server.NewMux(store, validator, publisher, scheduler, jwks.NewTestClient(),
		cfg.JWTIssuer, cfg.JWTAudience, nil)

	return &Harness{
		server:    httptest.NewServer(mux),
		store:     store,
		catalog:   cat,
		feed:      feed,
		loader:    loader.New(store, cat),
		scheduler: scheduler,
		issuer:    cfg.JWTIssuer,
		audience:  cfg.JWTAudience,
	}, nil
}

// URL returns the base URL of the test server.
func (h *Harness) URL() string {
	return h.server.URL
}

// Close shuts down the test server and cleans up resources.
func (h *Harness) Close() {
	h.server.Close()
	h.feed.Close()
	h.catalog.Close()
}

// RunConformanceTests runs the behavioral suite: every operation the
// service contract names, driven over HTTP in lifecycle order.
func (h *Harness) RunConformanceTests(t *testing.T) {
	t.Run("HealthEndpoints", h.testHealthEndpoints)
	t.Run("AuthRequired", h.testAuthRequired)
	t.Run("IngestionLifecycle", h.testIngestionLifecycle)
	t.Run("Pagination", h.testPagination)
	t.Run("LoaderDrain", h.testLoaderDrain)
	t.Run("DatasetPublication", h.testDatasetPublication)
}

// RunAcceptanceTests runs cross-cutting checks: routing, auth edge cases,
// schema rejection, overwrite semantics, and feed eventing.
func (h *Harness) RunAcceptanceTests(t *testing.T) {
	t.Run("APICompliance", h.testAPICompliance)
	t.Run("AuthCompliance", h.testAuthCompliance)
	t.Run("SchemaCompliance", h.testSchemaCompliance)
	t.Run("StorageCompliance", h.testStorageCompliance)
	t.Run("EventingCompliance", h.testEventingCompliance)
}

// seededObjects implements validate.ObjectStore over a canned key set.
type seededObjects struct {
	objects map[string]int64 // "bucket/key" -> size
}

func (s *seededObjects) Head(ctx context.Context, bucket, key string) (int64, error) {
	size, ok := s.objects[bucket+"/"+key]
	if !ok {
		return 0, fmt.Errorf("object %s/%s not found", bucket, key)
	}
	return size, nil
}

func (s *seededObjects) List(ctx context.Context, bucket, prefix string, max int32) ([]objectstore.Object, error) {
	var out []objectstore.Object
	for full, size := range s.objects {
		if strings.HasPrefix(full, bucket+"/"+prefix) {
			out = append(out, objectstore.Object{Key: strings.TrimPrefix(full, bucket+"/"), Size: size})
		}
		if max > 0 && int32(len(out)) >= max {
			break
		}
	}
	return out, nil
}

// stubScheduler satisfies the server's workflow interface without a real
// scheduler. Triggered runs are remembered; anything else is nonexistent.
type stubScheduler struct {
	mu   sync.Mutex
	runs []string
}

func (s *stubScheduler) Trigger(ctx context.Context, item model.DiscoveryItem) (model.WorkflowExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := fmt.Sprintf("conformance-run-%d", len(s.runs)+1)
	s.runs = append(s.runs, id)
	return model.WorkflowExecution{ID: id, Status: model.WorkflowQueued}, nil
}

func (s *stubScheduler) Status(ctx context.Context, runID string) (model.WorkflowExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.runs {
		if id == runID {
			return model.WorkflowExecution{ID: runID, Status: model.WorkflowStarted}, nil
		}
	}
	return model.WorkflowExecution{ID: runID, Status: model.WorkflowNonexistent}, nil
}

// envelope is the response wrapper every endpoint writes.
type envelope struct {
	Data  map[string]interface{} `json:"data"`
	Error map[string]interface{} `json:"error"`
}

// mintToken signs a token the test-mode JWKS client accepts for the
// harness issuer and audience.
func (h *Harness) mintToken(t *testing.T, username string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"iss":      h.issuer,
		"aud":      h.audience,
		"sub":      "conformance-subject",
		"username": username,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("conformance"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

// do issues one JSON request against the harness server and decodes the
// response envelope. An empty token sends no Authorization header.
func (h *Harness) do(t *testing.T, method, path, token string, body interface{}) (int, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, h.URL()+path, reader)
	if err != nil {
		t.Fatalf("build %s %s: %v", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	var env envelope
	if len(raw) > 0 {
		// Health endpoints write plain text; everything else is enveloped.
		_ = json.Unmarshal(raw, &env)
	}
	return resp.StatusCode, env
}

// flushFeed acknowledges every pending feed event without loading it, so a
// subtest starts from a feed holding only its own writes.
func (h *Harness) flushFeed(t *testing.T) {
	t.Helper()
	for {
		batch, err := h.feed.Next(context.Background())
		if err != nil {
			t.Fatalf("flush feed: %v", err)
		}
		if len(batch.Events) == 0 {
			return
		}
		batch.Ack()
	}
}

// drainFeed runs every pending feed event through the batch loader until
// the feed goes quiet, including the events the loader's own write-backs
// produce.
func (h *Harness) drainFeed(t *testing.T) {
	t.Helper()
	for {
		batch, err := h.feed.Next(context.Background())
		if err != nil {
			t.Fatalf("drain feed: %v", err)
		}
		if len(batch.Events) == 0 {
			return
		}
		if err := h.loader.HandleBatch(context.Background(), batch.Events); err != nil {
			t.Fatalf("handle batch: %v", err)
		}
		batch.Ack()
	}
}

// sentinelItem builds a submission item against the pre-registered
// collection, with its asset pointing at a seeded fixture file.
func sentinelItem(id, datetime, key string) map[string]interface{} {
	return map[string]interface{}{
		"id":         id,
		"type":       "Feature",
		"collection": "sentinel-surface-reflectance",
		"properties": map[string]interface{}{"datetime": datetime},
		"assets": map[string]interface{}{
			"cog_default": map[string]interface{}{
				"href": "s3://eo-data-staging/" + key,
			},
		},
	}
}

// modisSubmission builds a dataset submission whose sample file and
// discovery prefix resolve against the seeded object store.
func modisSubmission() model.DatasetSubmission {
	return model.DatasetSubmission{
		Collection:  "modis-vegetation-index",
		Title:       "MODIS Vegetation Index",
		Description: "Normalized difference vegetation index composites",
		License:     "CC-BY-4.0",
		SpatialExtent: model.SpatialExtent{
			Xmin: -180, Ymin: -90, Xmax: 180, Ymax: 90,
		},
		TemporalExtent: model.TemporalExtent{
			StartDate: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
			EndDate:   time.Date(2023, 6, 30, 0, 0, 0, 0, time.UTC),
		},
		SampleFiles: []string{"modis/ndvi_2023-06-01.tif"},
		DiscoveryItems: []model.DiscoveryItem{
			{
				Discovery: model.DiscoveryS3,
				S3: &model.S3Discovery{
					Bucket:        "eo-data-staging",
					Prefix:        "modis/",
					FilenameRegex: `^.*\.tif$`,
				},
			},
		},
		DataType: model.DataTypeCOG,
	}
}

// testHealthEndpoints tests the health check and metrics endpoints.
func (h *Harness) testHealthEndpoints(t *testing.T) {
	for _, endpoint := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get(h.URL() + endpoint)
		if err != nil {
			t.Fatalf("failed to GET %s: %v", endpoint, err)
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected status 200 for %s, got %d", endpoint, resp.StatusCode)
		}
	}
}

// testAuthRequired rejects requests without a valid bearer token.
func (h *Harness) testAuthRequired(t *testing.T) {
	status, env := h.do(t, "POST", "/v1/ingestions", "", sentinelItem("sr-2024-01-01", "2024-01-01T00:00:00Z", "sentinel/sr_2024-01-01.tif"))
	if status != http.StatusUnauthorized {
		t.Fatalf("unauthenticated submit returned %d, want %d", status, http.StatusUnauthorized)
	}
	if code, _ := env.Error["code"].(string); code != "INGEST_AUTHN" {
		t.Errorf("error code = %s, want INGEST_AUTHN", code)
	}

	status, _ = h.do(t, "POST", "/v1/ingestions", "not-a-jwt", sentinelItem("sr-2024-01-01", "2024-01-01T00:00:00Z", "sentinel/sr_2024-01-01.tif"))
	if status != http.StatusUnauthorized {
		t.Errorf("garbage token returned %d, want %d", status, http.StatusUnauthorized)
	}
}

// testIngestionLifecycle walks one record through submit, fetch, and
// cancel, and checks the caller scoping on fetch.
func (h *Harness) testIngestionLifecycle(t *testing.T) {
	token := h.mintToken(t, "conformance-user")

	status, env := h.do(t, "POST", "/v1/ingestions", token, sentinelItem("sr-2024-01-01", "2024-01-01T00:00:00Z", "sentinel/sr_2024-01-01.tif"))
	if status != http.StatusCreated {
		t.Fatalf("submit returned %d: %v", status, env.Error)
	}
	if env.Data["status"] != "queued" {
		t.Errorf("status = %v, want queued", env.Data["status"])
	}
	if env.Data["created_by"] != "conformance-user" {
		t.Errorf("created_by = %v, want conformance-user", env.Data["created_by"])
	}

	status, _ = h.do(t, "GET", "/v1/ingestions/sr-2024-01-01", token, nil)
	if status != http.StatusOK {
		t.Fatalf("get returned %d", status)
	}

	// Records are keyed by submitter; other callers see nothing.
	status, _ = h.do(t, "GET", "/v1/ingestions/sr-2024-01-01", h.mintToken(t, "another-user"), nil)
	if status != http.StatusNotFound {
		t.Errorf("foreign get returned %d, want %d", status, http.StatusNotFound)
	}

	status, env = h.do(t, "DELETE", "/v1/ingestions/sr-2024-01-01", token, nil)
	if status != http.StatusOK {
		t.Fatalf("cancel returned %d: %v", status, env.Error)
	}
	if env.Data["status"] != "cancelled" {
		t.Errorf("status = %v, want cancelled", env.Data["status"])
	}

	status, env = h.do(t, "DELETE", "/v1/ingestions/sr-2024-01-01", token, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("second cancel returned %d, want %d", status, http.StatusBadRequest)
	}
	if code, _ := env.Error["code"].(string); code != "INGEST_STATE_TRANSITION" {
		t.Errorf("error code = %s, want INGEST_STATE_TRANSITION", code)
	}
}

// testPagination pages through the queue with a small limit and checks the
// cursor walk covers every record exactly once.
func (h *Harness) testPagination(t *testing.T) {
	token := h.mintToken(t, "conformance-user")

	for _, id := range []string{"scene-a", "scene-b", "scene-c"} {
		status, env := h.do(t, "POST", "/v1/ingestions", token, sentinelItem(id, "2024-02-01T00:00:00Z", "sentinel/sr_2024-01-01.tif"))
		if status != http.StatusCreated {
			t.Fatalf("submit %s returned %d: %v", id, status, env.Error)
		}
	}

	seen := map[string]bool{}
	next := ""
	for page := 0; ; page++ {
		if page > 5 {
			t.Fatal("cursor walk did not terminate")
		}
		path := "/v1/ingestions?limit=2"
		if next != "" {
			path += "&next=" + next
		}
		status, env := h.do(t, "GET", path, token, nil)
		if status != http.StatusOK {
			t.Fatalf("list returned %d: %v", status, env.Error)
		}
		items, _ := env.Data["items"].([]interface{})
		for _, raw := range items {
			item, _ := raw.(map[string]interface{})
			id, _ := item["id"].(string)
			if seen[id] {
				t.Errorf("record %q returned twice", id)
			}
			seen[id] = true
		}
		next, _ = env.Data["next"].(string)
		if next == "" {
			break
		}
	}

	if len(seen) != 3 {
		t.Errorf("cursor walk covered %d records, want 3", len(seen))
	}
}

// testLoaderDrain verifies the feed-to-catalog path: a queued record is
// bulk-loaded, marked succeeded, and its collection's summaries refresh.
func (h *Harness) testLoaderDrain(t *testing.T) {
	h.flushFeed(t)
	token := h.mintToken(t, "conformance-user")

	status, env := h.do(t, "POST", "/v1/ingestions", token, sentinelItem("sr-2024-01-02", "2024-01-02T00:00:00Z", "sentinel/sr_2024-01-02.tif"))
	if status != http.StatusCreated {
		t.Fatalf("submit returned %d: %v", status, env.Error)
	}

	h.drainFeed(t)

	status, env = h.do(t, "GET", "/v1/ingestions/sr-2024-01-02", token, nil)
	if status != http.StatusOK {
		t.Fatalf("get returned %d", status)
	}
	if env.Data["status"] != "succeeded" {
		t.Fatalf("status after drain = %v, want succeeded", env.Data["status"])
	}

	// The load refreshed the collection's temporal summary from its items.
	doc, err := h.catalog.GetCollection(context.Background(), "sentinel-surface-reflectance")
	if err != nil {
		t.Fatalf("get collection: %v", err)
	}
	extent, _ := doc["extent"].(map[string]interface{})
	temporal, _ := extent["temporal"].(map[string]interface{})
	intervals, _ := temporal["interval"].([]interface{})
	if len(intervals) == 0 {
		t.Fatal("collection summaries were not refreshed")
	}
	interval, _ := intervals[0].([]interface{})
	if len(interval) != 2 || interval[0] != "2024-01-02T00:00:00Z" {
		t.Errorf("temporal interval = %v, want to start at the item datetime", interval)
	}
}

// testDatasetPublication validates and publishes a dataset, then follows
// the dispatched discovery run to a live status.
func (h *Harness) testDatasetPublication(t *testing.T) {
	token := h.mintToken(t, "conformance-user")

	status, env := h.do(t, "POST", "/v1/datasets/validate", token, modisSubmission())
	if status != http.StatusOK {
		t.Fatalf("validate returned %d: %v", status, env.Error)
	}

	status, env = h.do(t, "POST", "/v1/datasets/publish", token, modisSubmission())
	if status != http.StatusOK {
		t.Fatalf("publish returned %d: %v", status, env.Error)
	}
	if env.Data["collection"] != "modis-vegetation-index" {
		t.Errorf("collection = %v, want modis-vegetation-index", env.Data["collection"])
	}
	ids, _ := env.Data["workflows_ids"].([]interface{})
	if len(ids) != 1 {
		t.Fatalf("workflows_ids has %d entries, want 1", len(ids))
	}

	exists, err := h.catalog.CollectionExists(context.Background(), "modis-vegetation-index")
	if err != nil || !exists {
		t.Errorf("collection not registered after publish (exists=%v, err=%v)", exists, err)
	}

	runID, _ := ids[0].(string)
	status, env = h.do(t, "GET", "/v1/workflow-executions/"+runID, token, nil)
	if status != http.StatusOK {
		t.Fatalf("run status returned %d: %v", status, env.Error)
	}
	if env.Data["status"] != "started" {
		t.Errorf("run status = %v, want started", env.Data["status"])
	}
}

// testAPICompliance checks routing edges: unknown paths 404, and methods
// outside a route's contract are rejected.
func (h *Harness) testAPICompliance(t *testing.T) {
	token := h.mintToken(t, "conformance-user")

	status, _ := h.do(t, "GET", "/v1/ingestions", token, nil)
	if status != http.StatusOK {
		t.Errorf("list returned %d, want %d", status, http.StatusOK)
	}

	resp, err := http.Get(h.URL() + "/v1/unknown")
	if err != nil {
		t.Fatalf("GET /v1/unknown: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown path returned %d, want %d", resp.StatusCode, http.StatusNotFound)
	}

	status, _ = h.do(t, "PUT", "/v1/datasets/validate", token, nil)
	if status != http.StatusBadRequest {
		t.Errorf("PUT validate returned %d, want %d", status, http.StatusBadRequest)
	}
}

// testAuthCompliance checks issuer enforcement and the subject fallback
// for tokens without a username claim.
func (h *Harness) testAuthCompliance(t *testing.T) {
	wrongIssuer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss":      "someone-else",
		"aud":      h.audience,
		"username": "conformance-user",
	}).SignedString([]byte("conformance"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	status, _ := h.do(t, "GET", "/v1/auth/me", wrongIssuer, nil)
	if status != http.StatusUnauthorized {
		t.Errorf("wrong-issuer token returned %d, want %d", status, http.StatusUnauthorized)
	}

	subOnly, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": h.issuer,
		"aud": h.audience,
		"sub": "subject-fallback",
	}).SignedString([]byte("conformance"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	status, env := h.do(t, "GET", "/v1/auth/me", subOnly, nil)
	if status != http.StatusOK {
		t.Fatalf("sub-only token returned %d: %v", status, env.Error)
	}
	if env.Data["username"] != "subject-fallback" {
		t.Errorf("username = %v, want the token subject", env.Data["username"])
	}
}

// testSchemaCompliance checks the submission gate: malformed bodies,
// structural failures, and unknown collections never queue.
func (h *Harness) testSchemaCompliance(t *testing.T) {
	token := h.mintToken(t, "conformance-user")

	status, env := h.do(t, "POST", "/v1/ingestions", token, "not an object")
	if status != http.StatusBadRequest {
		t.Errorf("non-object body returned %d, want %d", status, http.StatusBadRequest)
	}

	item := sentinelItem("bad-item", "2024-01-01T00:00:00Z", "sentinel/sr_2024-01-01.tif")
	delete(item, "properties")
	status, env = h.do(t, "POST", "/v1/ingestions", token, item)
	if status != http.StatusBadRequest {
		t.Fatalf("invalid item returned %d, want %d", status, http.StatusBadRequest)
	}
	if code, _ := env.Error["code"].(string); code != "INGEST_SCHEMA_REJECT" {
		t.Errorf("error code = %s, want INGEST_SCHEMA_REJECT", code)
	}

	item = sentinelItem("orphan-item", "2024-01-01T00:00:00Z", "sentinel/sr_2024-01-01.tif")
	item["collection"] = "never-registered"
	status, env = h.do(t, "POST", "/v1/ingestions", token, item)
	if status != http.StatusBadRequest {
		t.Fatalf("orphan item returned %d, want %d", status, http.StatusBadRequest)
	}
	if code, _ := env.Error["code"].(string); code != "INGEST_UNKNOWN_COLLECTION" {
		t.Errorf("error code = %s, want INGEST_UNKNOWN_COLLECTION", code)
	}
}

// testStorageCompliance checks overwrite semantics: re-submitting an id
// fully replaces the record and puts it back in the queue.
func (h *Harness) testStorageCompliance(t *testing.T) {
	token := h.mintToken(t, "conformance-user")
	item := sentinelItem("resubmitted-scene", "2024-03-01T00:00:00Z", "sentinel/sr_2024-01-01.tif")

	status, env := h.do(t, "POST", "/v1/ingestions", token, item)
	if status != http.StatusCreated {
		t.Fatalf("submit returned %d: %v", status, env.Error)
	}
	if status, _ = h.do(t, "DELETE", "/v1/ingestions/resubmitted-scene", token, nil); status != http.StatusOK {
		t.Fatalf("cancel returned %d", status)
	}

	status, env = h.do(t, "POST", "/v1/ingestions", token, item)
	if status != http.StatusCreated {
		t.Fatalf("resubmit returned %d: %v", status, env.Error)
	}
	if env.Data["status"] != "queued" {
		t.Errorf("status after resubmit = %v, want queued", env.Data["status"])
	}
}

// testEventingCompliance checks that record writes emit change events with
// the right kind: insert on first save, update on overwrite.
func (h *Harness) testEventingCompliance(t *testing.T) {
	h.flushFeed(t)
	token := h.mintToken(t, "conformance-user")

	status, env := h.do(t, "POST", "/v1/ingestions", token, sentinelItem("evented-scene", "2024-04-01T00:00:00Z", "sentinel/sr_2024-01-01.tif"))
	if status != http.StatusCreated {
		t.Fatalf("submit returned %d: %v", status, env.Error)
	}

	batch, err := h.feed.Next(context.Background())
	if err != nil {
		t.Fatalf("feed next: %v", err)
	}
	if len(batch.Events) != 1 {
		t.Fatalf("feed holds %d events, want 1", len(batch.Events))
	}
	if batch.Events[0].Kind != event.KindInsert {
		t.Errorf("first save emitted %q, want %q", batch.Events[0].Kind, event.KindInsert)
	}
	var image struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(batch.Events[0].NewImage, &image); err != nil {
		t.Fatalf("decode event image: %v", err)
	}
	if image.ID != "evented-scene" || image.Status != "queued" {
		t.Errorf("event image = %+v, want the queued record", image)
	}
	batch.Ack()

	if status, _ = h.do(t, "DELETE", "/v1/ingestions/evented-scene", token, nil); status != http.StatusOK {
		t.Fatalf("cancel returned %d", status)
	}
	batch, err = h.feed.Next(context.Background())
	if err != nil {
		t.Fatalf("feed next: %v", err)
	}
	if len(batch.Events) != 1 || batch.Events[0].Kind != event.KindUpdate {
		t.Fatalf("overwrite emitted %d events (kind %v), want one update",
			len(batch.Events), batchKind(batch))
	}
	batch.Ack()
}

// batchKind is a log helper tolerating empty batches.
func batchKind(b *event.Batch) event.ChangeKind {
	if len(b.Events) == 0 {
		return ""
	}
	return b.Events[0].Kind
}
