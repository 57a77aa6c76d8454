// internal/server/mux_test.go
// Package server provides unit tests for the HTTP handlers and routing.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/geostac/geostac-ingest-go/internal/catalog"
	"github.com/geostac/geostac-ingest-go/internal/jwks"
	"github.com/geostac/geostac-ingest-go/internal/model"
	"github.com/geostac/geostac-ingest-go/internal/objectstore"
	"github.com/geostac/geostac-ingest-go/internal/publish"
	"github.com/geostac/geostac-ingest-go/internal/schema"
	"github.com/geostac/geostac-ingest-go/internal/storage"
	"github.com/geostac/geostac-ingest-go/internal/validate"
	"github.com/golang-jwt/jwt/v5"
)

// fakeObjects implements validate.ObjectStore over a canned key set.
type fakeObjects struct {
	objects map[string]int64 // "bucket/key" -> size
}

func (f *fakeObjects) Head(ctx context.Context, bucket, key string) (int64, error) {
	size, ok := f.objects[bucket+"/"+key]
	if !ok {
		return 0, fmt.Errorf("object %s/%s not found", bucket, key)
	}
	return size, nil
}

func (f *fakeObjects) List(ctx context.Context, bucket, prefix string, max int32) ([]objectstore.Object, error) {
	var out []objectstore.Object
	for full, size := range f.objects {
		if strings.HasPrefix(full, bucket+"/"+prefix) {
			out = append(out, objectstore.Object{Key: strings.TrimPrefix(full, bucket+"/"), Size: size})
		}
		if max > 0 && int32(len(out)) >= max {
			break
		}
	}
	return out, nil
}

// fakeRunner implements WorkflowRunner without a scheduler. Triggered runs
// are numbered; unknown run ids report the nonexistent state.
type fakeRunner struct {
	triggered []model.DiscoveryItem
}

func (f *fakeRunner) Trigger(ctx context.Context, item model.DiscoveryItem) (model.WorkflowExecution, error) {
	f.triggered = append(f.triggered, item)
	return model.WorkflowExecution{
		ID:     fmt.Sprintf("ingest-run-%d", len(f.triggered)),
		Status: model.WorkflowQueued,
	}, nil
}

func (f *fakeRunner) Status(ctx context.Context, runID string) (model.WorkflowExecution, error) {
	for i := range f.triggered {
		if runID == fmt.Sprintf("ingest-run-%d", i+1) {
			return model.WorkflowExecution{ID: runID, Status: model.WorkflowStarted}, nil
		}
	}
	return model.WorkflowExecution{ID: runID, Status: model.WorkflowNonexistent}, nil
}

// testServer bundles a mux with the collaborators tests assert against.
type testServer struct {
	mux     *http.ServeMux
	store   storage.Store
	catalog catalog.Store
	runner  *fakeRunner
	objects *fakeObjects
}

// newTestServer wires a full mux over in-memory collaborators. The object
// store is pre-seeded with the Caldor fixture files the submissions below
// reference.
func newTestServer(t *testing.T, corsOrigins []string) *testServer {
	t.Helper()

	store := storage.NewMemory()
	cat := catalog.NewMemory()

	schemas, err := schema.NewValidator()
	if err != nil {
		t.Fatalf("schema.NewValidator: %v", err)
	}

	objects := &fakeObjects{objects: map[string]int64{
		"veda-data-store-staging/caldor/fire_behavior_2021-08-14.tif": 2048,
	}}
	checker := validate.NewCollectionChecker(cat, 0)
	validator := validate.NewValidator(objects, checker, schemas)

	runner := &fakeRunner{}
	publisher := publish.New(cat, schemas, validator, runner, nil)

	mux := NewMux(store, validator, publisher, runner, jwks.NewTestClient(), "test-issuer", "test-audience", corsOrigins)
	return &testServer{mux: mux, store: store, catalog: cat, runner: runner, objects: objects}
}

// seedCollection registers a collection id so item submissions against it
// pass the known-collection rule.
func (ts *testServer) seedCollection(t *testing.T, id string) {
	t.Helper()
	err := ts.catalog.CreateCollection(context.Background(), map[string]interface{}{"id": id})
	if err != nil {
		t.Fatalf("seed collection %q: %v", id, err)
	}
}

// bearerToken mints a token the test-mode JWKS client accepts. The signing
// key is throwaway; only the issuer, audience, and identity claims matter.
func bearerToken(t *testing.T, username string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"iss":      "test-issuer",
		"aud":      "test-audience",
		"sub":      "a1b2c3d4",
		"username": username,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("throwaway"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "Bearer " + signed
}

// request builds an authenticated JSON request for the default test user.
func request(t *testing.T, method, target string, body interface{}) *http.Request {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearerToken(t, "test-user"))
	return req
}

// envelope is the response wrapper every endpoint writes.
type envelope struct {
	Data  map[string]interface{} `json:"data"`
	Error map[string]interface{} `json:"error"`
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("invalid response body %q: %v", rr.Body.String(), err)
	}
	return env
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	env := decodeBody(t, rr)
	if env.Error == nil {
		t.Fatalf("expected an error envelope, got %q", rr.Body.String())
	}
	code, _ := env.Error["code"].(string)
	return code
}

// validItem returns a catalog item that passes every submission rule when
// its collection is seeded.
func validItem(id string) map[string]interface{} {
	return map[string]interface{}{
		"id":         id,
		"type":       "Feature",
		"collection": "caldor-fire-behavior",
		"properties": map[string]interface{}{"datetime": "2021-08-14T00:00:00Z"},
		"assets": map[string]interface{}{
			"cog_default": map[string]interface{}{
				"href": "s3://veda-data-store-staging/caldor/fire_behavior_2021-08-14.tif",
			},
		},
	}
}

// caldorSubmission returns a dataset submission whose sample file and
// discovery prefix both resolve against the seeded object store.
func caldorSubmission() model.DatasetSubmission {
	return model.DatasetSubmission{
		Collection:  "caldor-fire-behavior",
		Title:       "Caldor Fire Behavior",
		Description: "Fire behavior rasters for the 2021 Caldor fire",
		License:     "CC0-1.0",
		SpatialExtent: model.SpatialExtent{
			Xmin: -121, Ymin: 38, Xmax: -119.5, Ymax: 39.5,
		},
		TemporalExtent: model.TemporalExtent{
			StartDate: time.Date(2021, 8, 14, 0, 0, 0, 0, time.UTC),
			EndDate:   time.Date(2021, 10, 21, 0, 0, 0, 0, time.UTC),
		},
		SampleFiles: []string{"caldor/fire_behavior_2021-08-14.tif"},
		DiscoveryItems: []model.DiscoveryItem{
			{
				Discovery: model.DiscoveryS3,
				S3: &model.S3Discovery{
					Bucket:        "veda-data-store-staging",
					Prefix:        "caldor/",
					FilenameRegex: `^.*\.tif$`,
				},
			},
		},
		DataType: model.DataTypeCOG,
	}
}

// collectionDoc returns a collection document that passes the collection
// schema.
func collectionDoc(id string) map[string]interface{} {
	return map[string]interface{}{
		"id":           id,
		"type":         "Collection",
		"stac_version": "1.0.0",
		"description":  "Fire behavior rasters for the 2021 Caldor fire",
		"license":      "CC0-1.0",
		"links":        []interface{}{},
		"extent": map[string]interface{}{
			"spatial": map[string]interface{}{
				"bbox": []interface{}{[]interface{}{-121.0, 38.0, -119.5, 39.5}},
			},
			"temporal": map[string]interface{}{
				"interval": []interface{}{[]interface{}{"2021-08-14T00:00:00Z", nil}},
			},
		},
	}
}

// TestHealthzEndpoint tests the healthz endpoint.
func TestHealthzEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	req, err := http.NewRequest("GET", "/healthz", nil)
	if err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusOK {
		t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusOK)
	}
	if rr.Body.String() != "ok" {
		t.Errorf("handler returned unexpected body: got %v want %v", rr.Body.String(), "ok")
	}
}

// TestReadyzEndpoint tests the readyz endpoint against the memory store.
func TestReadyzEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	req, err := http.NewRequest("GET", "/readyz", nil)
	if err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusOK {
		t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusOK)
	}
	if rr.Body.String() != "ok" {
		t.Errorf("handler returned unexpected body: got %v want %v", rr.Body.String(), "ok")
	}
}

// TestSubmitIngestionQueuesRecord covers the happy path: a valid item is
// accepted, queued under the caller, and readable back by id.
func TestSubmitIngestionQueuesRecord(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.seedCollection(t, "caldor-fire-behavior")

	rr := httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, request(t, "POST", "/v1/ingestions", validItem("caldor-2021-08-14")))

	if rr.Code != http.StatusCreated {
		t.Fatalf("submit returned %d: %s", rr.Code, rr.Body.String())
	}
	env := decodeBody(t, rr)
	if env.Data["status"] != "queued" {
		t.Errorf("status = %v, want queued", env.Data["status"])
	}
	if env.Data["created_by"] != "test-user" {
		t.Errorf("created_by = %v, want test-user", env.Data["created_by"])
	}
	if env.Data["id"] != "caldor-2021-08-14" {
		t.Errorf("id = %v, want the item id", env.Data["id"])
	}

	// The record is fetchable by its submitter.
	rr = httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, request(t, "GET", "/v1/ingestions/caldor-2021-08-14", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("get returned %d: %s", rr.Code, rr.Body.String())
	}
}

// TestSubmitIngestionRequiresAuth ensures unauthenticated submissions are
// rejected before any validation runs.
func TestSubmitIngestionRequiresAuth(t *testing.T) {
	ts := newTestServer(t, nil)

	raw, _ := json.Marshal(validItem("caldor-2021-08-14"))
	req := httptest.NewRequest("POST", "/v1/ingestions", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("submit without token returned %d, want %d", rr.Code, http.StatusUnauthorized)
	}
	if code := errorCode(t, rr); code != "INGEST_AUTHN" {
		t.Errorf("error code = %s, want INGEST_AUTHN", code)
	}
}

// TestSubmitIngestionUnknownCollection rejects items referencing an
// unregistered collection.
func TestSubmitIngestionUnknownCollection(t *testing.T) {
	ts := newTestServer(t, nil)

	rr := httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, request(t, "POST", "/v1/ingestions", validItem("caldor-2021-08-14")))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("submit returned %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if code := errorCode(t, rr); code != "INGEST_UNKNOWN_COLLECTION" {
		t.Errorf("error code = %s, want INGEST_UNKNOWN_COLLECTION", code)
	}
}

// TestSubmitIngestionSchemaReject rejects structurally invalid items.
func TestSubmitIngestionSchemaReject(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.seedCollection(t, "caldor-fire-behavior")

	item := validItem("caldor-2021-08-14")
	delete(item, "assets")

	rr := httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, request(t, "POST", "/v1/ingestions", item))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("submit returned %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if code := errorCode(t, rr); code != "INGEST_SCHEMA_REJECT" {
		t.Errorf("error code = %s, want INGEST_SCHEMA_REJECT", code)
	}
}

// TestListIngestionsPages walks a two-page listing and checks the cursor
// hands off with no gaps.
func TestListIngestionsPages(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.seedCollection(t, "caldor-fire-behavior")

	for _, id := range []string{"item-a", "item-b", "item-c"} {
		rr := httptest.NewRecorder()
		ts.mux.ServeHTTP(rr, request(t, "POST", "/v1/ingestions", validItem(id)))
		if rr.Code != http.StatusCreated {
			t.Fatalf("submit %s returned %d: %s", id, rr.Code, rr.Body.String())
		}
	}

	rr := httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, request(t, "GET", "/v1/ingestions?limit=2", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("list returned %d: %s", rr.Code, rr.Body.String())
	}
	env := decodeBody(t, rr)
	first, _ := env.Data["items"].([]interface{})
	if len(first) != 2 {
		t.Fatalf("first page has %d items, want 2", len(first))
	}
	next, _ := env.Data["next"].(string)
	if next == "" {
		t.Fatal("first page carries no cursor")
	}

	rr = httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, request(t, "GET", "/v1/ingestions?limit=2&next="+next, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("second list returned %d: %s", rr.Code, rr.Body.String())
	}
	env = decodeBody(t, rr)
	second, _ := env.Data["items"].([]interface{})
	if len(second) != 1 {
		t.Fatalf("second page has %d items, want 1", len(second))
	}
	if _, ok := env.Data["next"]; ok {
		t.Error("exhausted listing still carries a cursor")
	}
}

// TestListIngestionsBadCursor maps malformed cursors to 422.
func TestListIngestionsBadCursor(t *testing.T) {
	ts := newTestServer(t, nil)

	rr := httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, request(t, "GET", "/v1/ingestions?next=not-a-cursor", nil))

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("list returned %d, want %d", rr.Code, http.StatusUnprocessableEntity)
	}
	if code := errorCode(t, rr); code != "INGEST_CURSOR_INVALID" {
		t.Errorf("error code = %s, want INGEST_CURSOR_INVALID", code)
	}
}

// TestCancelIngestion covers the cancel transition and its terminal guard.
func TestCancelIngestion(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.seedCollection(t, "caldor-fire-behavior")

	rr := httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, request(t, "POST", "/v1/ingestions", validItem("caldor-2021-08-14")))
	if rr.Code != http.StatusCreated {
		t.Fatalf("submit returned %d: %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, request(t, "DELETE", "/v1/ingestions/caldor-2021-08-14", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("cancel returned %d: %s", rr.Code, rr.Body.String())
	}
	env := decodeBody(t, rr)
	if env.Data["status"] != "cancelled" {
		t.Errorf("status = %v, want cancelled", env.Data["status"])
	}

	// Cancelled is terminal; a second cancel is an illegal transition.
	rr = httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, request(t, "DELETE", "/v1/ingestions/caldor-2021-08-14", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("second cancel returned %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if code := errorCode(t, rr); code != "INGEST_STATE_TRANSITION" {
		t.Errorf("error code = %s, want INGEST_STATE_TRANSITION", code)
	}
}

// TestCancelUnknownIngestion returns 404 for ids the caller never queued.
func TestCancelUnknownIngestion(t *testing.T) {
	ts := newTestServer(t, nil)

	rr := httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, request(t, "DELETE", "/v1/ingestions/never-submitted", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("cancel returned %d, want %d", rr.Code, http.StatusNotFound)
	}
	if code := errorCode(t, rr); code != "INGEST_NOT_FOUND" {
		t.Errorf("error code = %s, want INGEST_NOT_FOUND", code)
	}
}

// TestGetIngestionScopedByPrincipal hides records from callers other than
// their submitter.
func TestGetIngestionScopedByPrincipal(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.seedCollection(t, "caldor-fire-behavior")

	rr := httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, request(t, "POST", "/v1/ingestions", validItem("caldor-2021-08-14")))
	if rr.Code != http.StatusCreated {
		t.Fatalf("submit returned %d: %s", rr.Code, rr.Body.String())
	}

	req := httptest.NewRequest("GET", "/v1/ingestions/caldor-2021-08-14", nil)
	req.Header.Set("Authorization", bearerToken(t, "someone-else"))

	rr = httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("cross-principal get returned %d, want %d", rr.Code, http.StatusNotFound)
	}
}

// TestValidateDataset accepts a well-formed submission and echoes the
// collection in the receipt message.
func TestValidateDataset(t *testing.T) {
	ts := newTestServer(t, nil)

	rr := httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, request(t, "POST", "/v1/datasets/validate", caldorSubmission()))

	if rr.Code != http.StatusOK {
		t.Fatalf("validate returned %d: %s", rr.Code, rr.Body.String())
	}
	env := decodeBody(t, rr)
	msg, _ := env.Data["message"].(string)
	if !strings.Contains(msg, "caldor-fire-behavior") {
		t.Errorf("message %q does not name the collection", msg)
	}
}

// TestValidateDatasetTimeDensity rejects a periodic dataset without a
// declared granularity.
func TestValidateDatasetTimeDensity(t *testing.T) {
	ts := newTestServer(t, nil)

	sub := caldorSubmission()
	sub.IsPeriodic = true

	rr := httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, request(t, "POST", "/v1/datasets/validate", sub))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("validate returned %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if code := errorCode(t, rr); code != "INGEST_TIME_DENSITY" {
		t.Errorf("error code = %s, want INGEST_TIME_DENSITY", code)
	}
}

// TestPublishDataset creates the collection and dispatches one discovery
// run per object-storage item.
func TestPublishDataset(t *testing.T) {
	ts := newTestServer(t, nil)

	rr := httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, request(t, "POST", "/v1/datasets/publish", caldorSubmission()))

	if rr.Code != http.StatusOK {
		t.Fatalf("publish returned %d: %s", rr.Code, rr.Body.String())
	}
	env := decodeBody(t, rr)
	if env.Data["collection"] != "caldor-fire-behavior" {
		t.Errorf("collection = %v, want caldor-fire-behavior", env.Data["collection"])
	}
	ids, _ := env.Data["workflows_ids"].([]interface{})
	if len(ids) != 1 {
		t.Errorf("workflows_ids has %d entries, want 1", len(ids))
	}
	if len(ts.runner.triggered) != 1 {
		t.Errorf("%d runs triggered, want 1", len(ts.runner.triggered))
	}

	exists, err := ts.catalog.CollectionExists(context.Background(), "caldor-fire-behavior")
	if err != nil || !exists {
		t.Errorf("collection not registered after publish (exists=%v, err=%v)", exists, err)
	}
}

// TestPublishCollectionLifecycle drives create, duplicate create, delete,
// and delete-again through the raw collection routes.
func TestPublishCollectionLifecycle(t *testing.T) {
	ts := newTestServer(t, nil)

	rr := httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, request(t, "POST", "/v1/collections", collectionDoc("caldor-fire-behavior")))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create returned %d: %s", rr.Code, rr.Body.String())
	}

	// Duplicate ids are a publish failure, not a silent overwrite.
	rr = httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, request(t, "POST", "/v1/collections", collectionDoc("caldor-fire-behavior")))
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("duplicate create returned %d, want %d", rr.Code, http.StatusBadGateway)
	}
	if code := errorCode(t, rr); code != "INGEST_PUBLISH" {
		t.Errorf("error code = %s, want INGEST_PUBLISH", code)
	}

	rr = httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, request(t, "DELETE", "/v1/collections/caldor-fire-behavior", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("delete returned %d: %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, request(t, "DELETE", "/v1/collections/caldor-fire-behavior", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("second delete returned %d, want %d", rr.Code, http.StatusNotFound)
	}
}

// TestWorkflowExecutionRoutes triggers a run and reads its state back,
// including the nonexistent sentinel for unknown ids.
func TestWorkflowExecutionRoutes(t *testing.T) {
	ts := newTestServer(t, nil)

	item := map[string]interface{}{
		"discovery":      "s3",
		"collection":     "caldor-fire-behavior",
		"bucket":         "veda-data-store-staging",
		"prefix":         "caldor/",
		"filename_regex": `^.*\.tif$`,
	}

	rr := httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, request(t, "POST", "/v1/workflow-executions", item))
	if rr.Code != http.StatusCreated {
		t.Fatalf("trigger returned %d: %s", rr.Code, rr.Body.String())
	}
	env := decodeBody(t, rr)
	runID, _ := env.Data["id"].(string)
	if runID == "" {
		t.Fatal("trigger response carries no run id")
	}
	if env.Data["status"] != "queued" {
		t.Errorf("initial status = %v, want queued", env.Data["status"])
	}

	rr = httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, request(t, "GET", "/v1/workflow-executions/"+runID, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status returned %d: %s", rr.Code, rr.Body.String())
	}
	env = decodeBody(t, rr)
	if env.Data["status"] != "started" {
		t.Errorf("status = %v, want started", env.Data["status"])
	}

	rr = httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, request(t, "GET", "/v1/workflow-executions/ghost-run", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unknown-run status returned %d: %s", rr.Code, rr.Body.String())
	}
	env = decodeBody(t, rr)
	if env.Data["status"] != "nonexistent" {
		t.Errorf("status = %v, want nonexistent", env.Data["status"])
	}
}

// TestWhoAmI echoes the principal resolved from the bearer token.
func TestWhoAmI(t *testing.T) {
	ts := newTestServer(t, nil)

	rr := httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, request(t, "GET", "/v1/auth/me", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("whoami returned %d: %s", rr.Code, rr.Body.String())
	}
	env := decodeBody(t, rr)
	if env.Data["username"] != "test-user" {
		t.Errorf("username = %v, want test-user", env.Data["username"])
	}
}

// TestMethodNotAllowed rejects methods outside a route's contract.
func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, nil)

	rr := httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, request(t, "PUT", "/v1/ingestions", nil))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("PUT returned %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

// TestPreflightAllowsConfiguredOrigin answers CORS preflights for allowed
// origins without requiring authentication.
func TestPreflightAllowsConfiguredOrigin(t *testing.T) {
	ts := newTestServer(t, []string{"https://dashboard.example.com"})

	req := httptest.NewRequest("OPTIONS", "/v1/ingestions", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")

	rr := httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("preflight returned %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://dashboard.example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}

	// Unlisted origins get no CORS grant.
	req = httptest.NewRequest("OPTIONS", "/v1/ingestions", nil)
	req.Header.Set("Origin", "https://evil.example.com")

	rr = httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unlisted origin granted %q", got)
	}
}
