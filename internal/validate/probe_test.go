// internal/validate/probe_test.go
package validate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "github.com/geostac/geostac-ingest-go/internal/errors"
	"github.com/geostac/geostac-ingest-go/internal/objectstore"
)

func TestURLReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("probe used %s, want HEAD", r.Method)
		}
		if strings.HasSuffix(r.URL.Path, "missing.tif") {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewProber(&fakeObjects{})
	ctx := context.Background()

	if err := p.URLReachable(ctx, srv.URL+"/present.tif"); err != nil {
		t.Errorf("reachable URL failed: %v", err)
	}

	err := p.URLReachable(ctx, srv.URL+"/missing.tif")
	if code := apperrors.CodeOf(err); code != apperrors.INGEST_ASSET_UNREACHABLE {
		t.Errorf("code = %v, want %v", code, apperrors.INGEST_ASSET_UNREACHABLE)
	}
	if !strings.Contains(err.Error(), "403") {
		t.Errorf("error does not carry the upstream status: %v", err)
	}
}

func TestAssetReachableDispatch(t *testing.T) {
	objects := &fakeObjects{objects: map[string][]objectstore.Object{
		"veda-data-store-staging": {{Key: "foo/bar.tif", Size: 1024}},
	}}
	p := NewProber(objects)
	ctx := context.Background()

	if err := p.AssetReachable(ctx, "s3://veda-data-store-staging/foo/bar.tif"); err != nil {
		t.Errorf("existing s3 object failed: %v", err)
	}
	err := p.AssetReachable(ctx, "s3://veda-data-store-staging/foo/absent.tif")
	if code := apperrors.CodeOf(err); code != apperrors.INGEST_ASSET_UNREACHABLE {
		t.Errorf("absent object code = %v, want %v", code, apperrors.INGEST_ASSET_UNREACHABLE)
	}

	if err := p.AssetReachable(ctx, "ftp://example.com/file.tif"); err == nil {
		t.Error("unsupported scheme accepted")
	}
}
