// internal/publish/publish.go
// Package publish turns validated dataset submissions into catalog
// collections and discovery workflow runs. Collection documents start from
// a fixed template; file-based datasets take their extent from the
// submission, array-store datasets from introspecting the store itself.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/geostac/geostac-ingest-go/internal/catalog"
	apperrors "github.com/geostac/geostac-ingest-go/internal/errors"
	"github.com/geostac/geostac-ingest-go/internal/model"
	"github.com/geostac/geostac-ingest-go/internal/schema"
	"github.com/geostac/geostac-ingest-go/internal/zarr"
)

// DatasetValidator checks a submission against the admissibility rules.
type DatasetValidator interface {
	Dataset(ctx context.Context, sub model.DatasetSubmission) error
}

// WorkflowTrigger starts one discovery run for an item.
type WorkflowTrigger interface {
	Trigger(ctx context.Context, item model.DiscoveryItem) (model.WorkflowExecution, error)
}

// ExtentReader derives spatial and temporal coverage from an array store.
type ExtentReader interface {
	Extent(ctx context.Context, bucket, storeKey string, dims zarr.Dims) (*zarr.Extent, error)
}

// Publisher creates catalog collections from dataset submissions and
// dispatches discovery runs for their file-based sources.
type Publisher struct {
	catalog   catalog.Store
	schemas   *schema.Validator
	validator DatasetValidator
	workflows WorkflowTrigger
	stores    ExtentReader
}

// New creates a publisher over the given collaborators.
func New(cat catalog.Store, schemas *schema.Validator, validator DatasetValidator, workflows WorkflowTrigger, stores ExtentReader) *Publisher {
	return &Publisher{
		catalog:   cat,
		schemas:   schemas,
		validator: validator,
		workflows: workflows,
		stores:    stores,
	}
}

// Receipt reports the outcome of a dataset publish.
type Receipt struct {
	Collection  string   `json:"collection"`
	Message     string   `json:"message"`
	WorkflowIDs []string `json:"workflows_ids,omitempty"`
}

// collectionTemplate is the fixed skeleton every collection starts from.
// Submission fields fill its blanks; the default extent covers the whole
// globe with an open interval until a concrete one replaces it.
func collectionTemplate(sub model.DatasetSubmission) map[string]interface{} {
	var density interface{}
	if sub.TimeDensity != "" {
		density = string(sub.TimeDensity)
	}
	return map[string]interface{}{
		"id":          sub.Collection,
		"title":       sub.Title,
		"description": sub.Description,
		"license":     sub.License,
		"extent": map[string]interface{}{
			"spatial": map[string]interface{}{
				"bbox": []interface{}{[]interface{}{-180.0, -90.0, 180.0, 90.0}},
			},
			"temporal": map[string]interface{}{
				"interval": []interface{}{[]interface{}{nil, nil}},
			},
		},
		"links":                  []interface{}{},
		"type":                   "Collection",
		"stac_version":           "1.0.0",
		"dashboard:time_density": density,
		"dashboard:is_periodic":  sub.IsPeriodic,
	}
}

// BuildCollection turns a submission into the collection document that
// will be created in the catalog. Nothing is written.
func (p *Publisher) BuildCollection(ctx context.Context, sub model.DatasetSubmission) (map[string]interface{}, error) {
	doc := collectionTemplate(sub)
	if sub.DataType == model.DataTypeZarr {
		if err := p.applyZarrSource(ctx, doc, sub); err != nil {
			return nil, err
		}
		return doc, nil
	}
	applyCOGSource(doc, sub)
	return doc, nil
}

// applyCOGSource fills the extent from the submission's declared coverage
// and advertises the default COG item asset.
func applyCOGSource(doc map[string]interface{}, sub model.DatasetSubmission) {
	doc["extent"] = map[string]interface{}{
		"spatial": map[string]interface{}{
			"bbox": []interface{}{sub.SpatialExtent.BBox()},
		},
		"temporal": map[string]interface{}{
			// Dashboards expect the Z suffix on UTC instants.
			"interval": []interface{}{[]interface{}{
				sub.TemporalExtent.StartDate.UTC().Format(time.RFC3339),
				sub.TemporalExtent.EndDate.UTC().Format(time.RFC3339),
			}},
		},
	}
	doc["item_assets"] = map[string]interface{}{
		"cog_default": map[string]interface{}{
			"type":        "image/tiff; application=geotiff; profile=cloud-optimized",
			"roles":       []interface{}{"data", "layer"},
			"title":       "Default COG Layer",
			"description": "Cloud optimized default layer to display on map",
		},
	}
}

// applyZarrSource advertises the array store as the collection's single
// asset and derives the extent by introspecting the store.
func (p *Publisher) applyZarrSource(ctx context.Context, doc map[string]interface{}, sub model.DatasetSubmission) error {
	item, found := arrayStoreItem(sub)
	if !found {
		return apperrors.Newf(apperrors.INGEST_PUBLISH,
			"array-store dataset %q has no s3 discovery item with a zarr_store", sub.Collection)
	}

	storeKey := item.Prefix + item.ZarrStore
	openKwargs := map[string]interface{}{
		"engine": "zarr",
		"chunks": map[string]interface{}{},
	}
	for k, v := range sub.XarrayKwargs {
		openKwargs[k] = v
	}
	doc["assets"] = map[string]interface{}{
		"zarr": map[string]interface{}{
			"href":               fmt.Sprintf("s3://%s/%s", item.Bucket, storeKey),
			"title":              "Zarr Array Store",
			"description":        "Zarr array store with one or several arrays (variables)",
			"roles":              []interface{}{"data", "zarr"},
			"type":               "application/vnd+zarr",
			"xarray:open_kwargs": openKwargs,
		},
	}

	dims := zarr.Dims{
		Time:            sub.TemporalDimension,
		X:               sub.XDimension,
		Y:               sub.YDimension,
		ReferenceSystem: sub.ReferenceSystem,
	}
	ext, err := p.stores.Extent(ctx, item.Bucket, storeKey, dims)
	if err != nil {
		return apperrors.Newf(apperrors.INGEST_PUBLISH,
			"unable to introspect array store for %q: %s", sub.Collection, err)
	}

	interval := []interface{}{nil, nil}
	if ext.HasTime {
		interval = []interface{}{
			ext.Start.UTC().Format(time.RFC3339),
			ext.End.UTC().Format(time.RFC3339),
		}
	}
	doc["extent"] = map[string]interface{}{
		"spatial": map[string]interface{}{
			"bbox": []interface{}{[]float64{ext.BBox[0], ext.BBox[1], ext.BBox[2], ext.BBox[3]}},
		},
		"temporal": map[string]interface{}{
			"interval": []interface{}{interval},
		},
	}
	return nil
}

// arrayStoreItem picks the discovery item holding the dataset's array
// store. The first matching item wins.
func arrayStoreItem(sub model.DatasetSubmission) (model.S3Discovery, bool) {
	for _, item := range sub.DiscoveryItems {
		if item.S3 != nil && item.S3.ZarrStore != "" {
			return *item.S3, true
		}
	}
	return model.S3Discovery{}, false
}

// PublishCollection validates a collection document and creates it in the
// catalog. Nothing is written when either step rejects it.
func (p *Publisher) PublishCollection(ctx context.Context, doc map[string]interface{}) error {
	if err := p.schemas.ValidateCollection(doc); err != nil {
		return apperrors.Newf(apperrors.INGEST_PUBLISH, "unable to publish collection: %s", err)
	}
	id, _ := doc["id"].(string)
	if err := p.catalog.CreateCollection(ctx, doc); err != nil {
		if errors.Is(err, catalog.ErrExists) {
			return apperrors.Newf(apperrors.INGEST_PUBLISH, "collection %q already exists", id)
		}
		return apperrors.Newf(apperrors.INGEST_PUBLISH, "unable to publish collection: %s", err)
	}
	slog.Info("collection published", "collection", id)
	return nil
}

// PublishDataset runs the full publish flow: validate the submission,
// build and create its collection, then dispatch one discovery run per
// object-storage discovery item.
//
// Dispatch is fire-and-forget per item. A failed trigger is logged and
// skipped; it rolls back neither the collection nor the runs already
// started. Array-store datasets dispatch nothing, the store itself is the
// single asset and there are no files left to discover.
func (p *Publisher) PublishDataset(ctx context.Context, sub model.DatasetSubmission) (*Receipt, error) {
	if err := p.validator.Dataset(ctx, sub); err != nil {
		return nil, err
	}

	doc, err := p.BuildCollection(ctx, sub)
	if err != nil {
		return nil, err
	}
	if err := p.PublishCollection(ctx, doc); err != nil {
		return nil, err
	}

	receipt := &Receipt{
		Collection: sub.Collection,
		Message:    fmt.Sprintf("Successfully published collection: %s.", sub.Collection),
	}
	if sub.DataType == model.DataTypeZarr {
		return receipt, nil
	}

	for _, item := range sub.DiscoveryItems {
		if item.S3 == nil {
			continue
		}
		item.Collection = sub.Collection
		exec, err := p.workflows.Trigger(ctx, item)
		if err != nil {
			slog.Warn("discovery trigger failed",
				"collection", sub.Collection, "prefix", item.S3.Prefix, "error", err)
			continue
		}
		receipt.WorkflowIDs = append(receipt.WorkflowIDs, exec.ID)
	}
	if n := len(receipt.WorkflowIDs); n > 0 {
		receipt.Message += fmt.Sprintf(" %d workflows initiated.", n)
	}
	return receipt, nil
}

// DeleteCollection removes a collection and its loaded items.
func (p *Publisher) DeleteCollection(ctx context.Context, id string) error {
	if err := p.catalog.DeleteCollection(ctx, id); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return apperrors.Newf(apperrors.INGEST_NOT_FOUND, "collection %q not found", id)
		}
		return apperrors.Newf(apperrors.INGEST_PUBLISH, "unable to delete collection: %s", err)
	}
	slog.Info("collection deleted", "collection", id)
	return nil
}
