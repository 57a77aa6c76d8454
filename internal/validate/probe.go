// Package validate implements the admissibility rules for submissions:
// asset reachability probes, the cached collection-existence check, and
// the dataset rule set covering periodicity, sample files, and discovery
// items. Everything here runs synchronously in the submitting caller's
// request and reports every offending input it can name.
package validate

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/geostac/geostac-ingest-go/internal/errors"
	"github.com/geostac/geostac-ingest-go/internal/objectstore"
)

// probeTimeout bounds a single reachability probe. A hung upstream fails
// the probe rather than the whole request deadline.
const probeTimeout = 10 * time.Second

// ObjectStore is the object-storage surface the validators use.
type ObjectStore interface {
	Head(ctx context.Context, bucket, key string) (int64, error)
	List(ctx context.Context, bucket, prefix string, max int32) ([]objectstore.Object, error)
}

// Prober checks that asset references actually resolve to something.
type Prober struct {
	http    *http.Client
	objects ObjectStore
}

// NewProber creates a prober backed by the given object store for s3
// references and a bounded-timeout HTTP client for everything else.
func NewProber(objects ObjectStore) *Prober {
	return &Prober{
		http:    &http.Client{Timeout: probeTimeout},
		objects: objects,
	}
}

// URLReachable confirms an HTTP(S) asset responds to a HEAD request.
func (p *Prober) URLReachable(ctx context.Context, href string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, href, nil)
	if err != nil {
		return apperrors.Newf(apperrors.INGEST_ASSET_UNREACHABLE, "asset not accessible: %s", err)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return apperrors.Newf(apperrors.INGEST_ASSET_UNREACHABLE, "asset not accessible: %s", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apperrors.Newf(apperrors.INGEST_ASSET_UNREACHABLE,
			"asset not accessible: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return nil
}

// S3ObjectReachable confirms an object exists via a HEAD request.
func (p *Prober) S3ObjectReachable(ctx context.Context, bucket, key string) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	if _, err := p.objects.Head(ctx, bucket, key); err != nil {
		return apperrors.Newf(apperrors.INGEST_ASSET_UNREACHABLE, "asset not accessible: %s", err)
	}
	return nil
}

// AssetReachable dispatches a reachability probe by reference scheme.
func (p *Prober) AssetReachable(ctx context.Context, href string) error {
	u, err := url.Parse(href)
	if err != nil {
		return apperrors.Newf(apperrors.INGEST_ASSET_UNREACHABLE, "asset not accessible: %s", err)
	}

	switch u.Scheme {
	case "http", "https":
		return p.URLReachable(ctx, href)
	case "s3":
		return p.S3ObjectReachable(ctx, u.Host, strings.TrimPrefix(u.Path, "/"))
	default:
		return apperrors.Newf(apperrors.INGEST_VALIDATION, "unsupported scheme: %q", u.Scheme)
	}
}
