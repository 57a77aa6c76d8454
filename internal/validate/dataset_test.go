// internal/validate/dataset_test.go
package validate

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	apperrors "github.com/geostac/geostac-ingest-go/internal/errors"
	"github.com/geostac/geostac-ingest-go/internal/model"
	"github.com/geostac/geostac-ingest-go/internal/objectstore"
	"github.com/geostac/geostac-ingest-go/internal/schema"
)

// fakeObjects is a canned object store: Head succeeds for listed keys and
// List returns everything under the prefix.
type fakeObjects struct {
	objects map[string][]objectstore.Object // bucket -> objects
	listErr error
}

func (f *fakeObjects) Head(ctx context.Context, bucket, key string) (int64, error) {
	for _, obj := range f.objects[bucket] {
		if obj.Key == key {
			return obj.Size, nil
		}
	}
	return 0, context.DeadlineExceeded
}

func (f *fakeObjects) List(ctx context.Context, bucket, prefix string, max int32) ([]objectstore.Object, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []objectstore.Object
	for _, obj := range f.objects[bucket] {
		if strings.HasPrefix(obj.Key, prefix) {
			out = append(out, obj)
		}
	}
	return out, nil
}

// fakeCollections answers existence checks from a fixed set.
type fakeCollections struct {
	known map[string]bool
	calls int
}

func (f *fakeCollections) CollectionExists(ctx context.Context, id string) (bool, error) {
	f.calls++
	return f.known[id], nil
}

func newTestValidator(t *testing.T, objects *fakeObjects, collections *fakeCollections) *Validator {
	t.Helper()
	schemas, err := schema.NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	return NewValidator(objects, NewCollectionChecker(collections, 0), schemas)
}

func sampleSubmission(t *testing.T) model.DatasetSubmission {
	t.Helper()
	raw := `{
		"collection": "caldor-fire-behavior",
		"title": "Caldor Fire Behavior",
		"description": "Progression and active fire behavior of the 2021 Caldor Fire.",
		"license": "CC0",
		"is_periodic": false,
		"spatial_extent": {"xmin": -180, "ymin": -90, "xmax": 180, "ymax": 90},
		"temporal_extent": {"startdate": "2021-08-14T00:00:00Z", "enddate": "2021-10-21T23:59:59Z"},
		"sample_files": ["foo/bar.tif"],
		"discovery_items": [
			{
				"discovery": "s3",
				"cogify": false,
				"upload": false,
				"dry_run": true,
				"prefix": "foo/",
				"bucket": "veda-data-store-staging",
				"filename_regex": "^(.*)bar.tif$",
				"start_datetime": "2021-08-15T00:00:00Z",
				"end_datetime": "2021-10-21T12:00:00Z"
			}
		],
		"data_type": "cog"
	}`
	var sub model.DatasetSubmission
	if err := json.Unmarshal([]byte(raw), &sub); err != nil {
		t.Fatalf("unmarshal submission: %v", err)
	}
	return sub
}

func stagingObjects() *fakeObjects {
	return &fakeObjects{objects: map[string][]objectstore.Object{
		"veda-data-store-staging": {
			{Key: "foo/", Size: 0},
			{Key: "foo/bar.tif", Size: 1024},
		},
	}}
}

func TestDatasetAcceptsMatchingSampleFiles(t *testing.T) {
	v := newTestValidator(t, stagingObjects(), &fakeCollections{})
	if err := v.Dataset(context.Background(), sampleSubmission(t)); err != nil {
		t.Errorf("Dataset rejected a valid submission: %v", err)
	}
}

func TestDatasetNamesEveryMismatchedSampleFile(t *testing.T) {
	v := newTestValidator(t, stagingObjects(), &fakeCollections{})
	sub := sampleSubmission(t)
	sub.SampleFiles = []string{"bar/foo.tif", "foo/bar.tif", "baz/quux.tif"}

	err := v.Dataset(context.Background(), sub)
	if err == nil {
		t.Fatal("Dataset accepted mismatched sample files")
	}
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("error is %T, want *apperrors.Error", err)
	}
	if appErr.Code != apperrors.INGEST_SAMPLE_FILE_MISMATCH {
		t.Errorf("code = %v, want %v", appErr.Code, apperrors.INGEST_SAMPLE_FILE_MISMATCH)
	}
	offenders, _ := appErr.Details.([]string)
	if len(offenders) != 2 || offenders[0] != "bar/foo.tif" || offenders[1] != "baz/quux.tif" {
		t.Errorf("offenders = %v, want [bar/foo.tif baz/quux.tif]", offenders)
	}
	for _, offender := range []string{"bar/foo.tif", "baz/quux.tif"} {
		if !strings.Contains(appErr.Message, offender) {
			t.Errorf("message does not name offending file %s: %v", offender, appErr.Message)
		}
	}
}

func TestDatasetSampleFileNeedsExtractableDate(t *testing.T) {
	v := newTestValidator(t, stagingObjects(), &fakeCollections{})
	sub := sampleSubmission(t)
	sub.DiscoveryItems[0].S3.FilenameRegex = `^.*\.tif$`
	sub.DiscoveryItems[0].S3.DatetimeRange = model.RangeDay
	sub.SampleFiles = []string{"foo/bar.tif"}

	err := v.Dataset(context.Background(), sub)
	if code := apperrors.CodeOf(err); code != apperrors.INGEST_SAMPLE_FILE_MISMATCH {
		t.Fatalf("undated sample file with datetime_range: code = %v, want %v", code, apperrors.INGEST_SAMPLE_FILE_MISMATCH)
	}

	sub.SampleFiles = []string{"foo/bar_2021-08-14.tif"}
	if err := v.Dataset(context.Background(), sub); err != nil {
		t.Errorf("dated sample file rejected: %v", err)
	}
}

func TestDatasetCollectionIDShape(t *testing.T) {
	v := newTestValidator(t, stagingObjects(), &fakeCollections{})
	for _, id := range []string{"Caldor", "caldor_fire", "caldor-", "-caldor", "caldor--fire", "caldor9"} {
		sub := sampleSubmission(t)
		sub.Collection = id
		if err := v.Dataset(context.Background(), sub); err == nil {
			t.Errorf("collection id %q accepted", id)
		}
	}
	for _, id := range []string{"caldor", "caldor-fire-behavior"} {
		sub := sampleSubmission(t)
		sub.Collection = id
		if err := v.Dataset(context.Background(), sub); err != nil {
			t.Errorf("collection id %q rejected: %v", id, err)
		}
	}
}

func TestDatasetTimeDensityMatrix(t *testing.T) {
	cases := []struct {
		isPeriodic bool
		density    model.DatetimeRange
		ok         bool
	}{
		{true, model.RangeDay, true},
		{true, model.RangeMonth, true},
		{true, model.RangeYear, true},
		{true, "", false},
		{true, "fortnight", false},
		{false, "", true},
		{false, model.RangeDay, false},
		{false, model.RangeMonth, false},
		{false, model.RangeYear, false},
	}
	for _, tc := range cases {
		err := checkTimeDensity(tc.isPeriodic, tc.density)
		if tc.ok && err != nil {
			t.Errorf("is_periodic=%v density=%q rejected: %v", tc.isPeriodic, tc.density, err)
		}
		if !tc.ok {
			if err == nil {
				t.Errorf("is_periodic=%v density=%q accepted", tc.isPeriodic, tc.density)
				continue
			}
			if code := apperrors.CodeOf(err); code != apperrors.INGEST_TIME_DENSITY {
				t.Errorf("is_periodic=%v density=%q code = %v, want %v",
					tc.isPeriodic, tc.density, code, apperrors.INGEST_TIME_DENSITY)
			}
		}
	}
}

func TestDatasetRequiresNonTrivialObjects(t *testing.T) {
	// Only a zero-byte placeholder key lives under the prefix.
	objects := &fakeObjects{objects: map[string][]objectstore.Object{
		"veda-data-store-staging": {{Key: "foo/", Size: 0}},
	}}
	v := newTestValidator(t, objects, &fakeCollections{})
	sub := sampleSubmission(t)
	sub.SampleFiles = nil

	err := v.Dataset(context.Background(), sub)
	if err == nil {
		t.Fatal("Dataset accepted an empty discovery prefix")
	}
	if !strings.Contains(err.Error(), "veda-data-store-staging") {
		t.Errorf("error does not name the bucket: %v", err)
	}
}

func TestItemValidation(t *testing.T) {
	objects := stagingObjects()
	collections := &fakeCollections{known: map[string]bool{"caldor-fire-behavior": true}}
	v := newTestValidator(t, objects, collections)
	ctx := context.Background()

	item := map[string]interface{}{
		"id":         "item-1",
		"type":       "Feature",
		"collection": "caldor-fire-behavior",
		"properties": map[string]interface{}{"datetime": "2021-08-14T00:00:00Z"},
		"assets": map[string]interface{}{
			"cog_default": map[string]interface{}{"href": "s3://veda-data-store-staging/foo/bar.tif"},
		},
	}
	if err := v.Item(ctx, item); err != nil {
		t.Errorf("valid item rejected: %v", err)
	}

	unknown := map[string]interface{}{}
	for k, val := range item {
		unknown[k] = val
	}
	unknown["collection"] = "never-published"
	if code := apperrors.CodeOf(v.Item(ctx, unknown)); code != apperrors.INGEST_UNKNOWN_COLLECTION {
		t.Errorf("unknown collection code = %v, want %v", code, apperrors.INGEST_UNKNOWN_COLLECTION)
	}

	structural := map[string]interface{}{"id": "item-1"}
	if code := apperrors.CodeOf(v.Item(ctx, structural)); code != apperrors.INGEST_SCHEMA_REJECT {
		t.Errorf("structural reject code = %v, want %v", code, apperrors.INGEST_SCHEMA_REJECT)
	}

	missing := map[string]interface{}{}
	for k, val := range item {
		missing[k] = val
	}
	missing["assets"] = map[string]interface{}{
		"cog_default": map[string]interface{}{"href": "s3://veda-data-store-staging/absent.tif"},
	}
	if code := apperrors.CodeOf(v.Item(ctx, missing)); code != apperrors.INGEST_ASSET_UNREACHABLE {
		t.Errorf("unreachable asset code = %v, want %v", code, apperrors.INGEST_ASSET_UNREACHABLE)
	}
}

func TestCollectionCheckerCachesPositives(t *testing.T) {
	collections := &fakeCollections{known: map[string]bool{"caldor-fire-behavior": true}}
	checker := NewCollectionChecker(collections, 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := checker.Known(ctx, "caldor-fire-behavior"); err != nil {
			t.Fatalf("Known: %v", err)
		}
	}
	if collections.calls != 1 {
		t.Errorf("lookup calls = %d, want 1 (positives cached)", collections.calls)
	}

	// Negative results are not cached: once the collection appears, the
	// next check sees it.
	if err := checker.Known(ctx, "late-arrival"); err == nil {
		t.Fatal("unknown collection accepted")
	}
	collections.known["late-arrival"] = true
	if err := checker.Known(ctx, "late-arrival"); err != nil {
		t.Errorf("collection still unknown after publish: %v", err)
	}
}
