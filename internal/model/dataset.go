// internal/model/dataset.go
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// DataType distinguishes how a dataset's source files are organized.
type DataType string

const (
	DataTypeCOG  DataType = "cog"  // Individual cloud-optimized GeoTIFF files
	DataTypeZarr DataType = "zarr" // A single chunked array store
)

// DatetimeRange is the declared granularity of dates embedded in filenames.
type DatetimeRange string

const (
	RangeDay   DatetimeRange = "day"
	RangeMonth DatetimeRange = "month"
	RangeYear  DatetimeRange = "year"
)

// Valid reports whether the granularity is one of the recognized values.
func (r DatetimeRange) Valid() bool {
	switch r {
	case RangeDay, RangeMonth, RangeYear:
		return true
	default:
		return false
	}
}

// SpatialExtent is the bounding box of a dataset in lon/lat order.
type SpatialExtent struct {
	Xmin float64 `json:"xmin"`
	Ymin float64 `json:"ymin"`
	Xmax float64 `json:"xmax"`
	Ymax float64 `json:"ymax"`
}

// BBox returns the extent as a [xmin, ymin, xmax, ymax] slice, the shape the
// catalog store expects inside extent.spatial.bbox.
func (e SpatialExtent) BBox() []float64 {
	return []float64{e.Xmin, e.Ymin, e.Xmax, e.Ymax}
}

// TemporalExtent is the inclusive time span covered by a dataset.
type TemporalExtent struct {
	StartDate time.Time `json:"startdate"`
	EndDate   time.Time `json:"enddate"`
}

// DiscoveryKind is the discriminator over discovery-item variants.
type DiscoveryKind string

const (
	DiscoveryS3  DiscoveryKind = "s3"  // Bulk scan of an object-storage prefix
	DiscoveryCMR DiscoveryKind = "cmr" // Query against an external metadata repository
)

// S3Discovery describes where to find a collection's source files in object
// storage: every object under Prefix whose basename matches FilenameRegex.
type S3Discovery struct {
	Bucket        string        `json:"bucket"`
	Prefix        string        `json:"prefix"`
	FilenameRegex string        `json:"filename_regex"`
	DatetimeRange DatetimeRange `json:"datetime_range,omitempty"` // Granularity for per-file date extraction
	StartDatetime *time.Time    `json:"start_datetime,omitempty"` // Explicit range start, overrides extraction
	EndDatetime   *time.Time    `json:"end_datetime,omitempty"`   // Explicit range end, overrides extraction
	ZarrStore     string        `json:"zarr_store,omitempty"`     // Store directory under Prefix for array sources
}

// CMRDiscovery describes a query against an external metadata repository
// identifying granules by version and optional temporal/bbox filters.
type CMRDiscovery struct {
	Version     string      `json:"version"`
	Include     string      `json:"include,omitempty"`
	Temporal    []time.Time `json:"temporal,omitempty"`
	BoundingBox []float64   `json:"bounding_box,omitempty"`
}

// DiscoveryItem is a tagged union over the discovery strategies. Exactly one
// of S3 or CMR is set, matching the Discovery discriminator. The cogify,
// upload and dry_run flags are passed through to downstream processing and
// not validated here.
type DiscoveryItem struct {
	Discovery  DiscoveryKind `json:"discovery"`
	Collection string        `json:"collection,omitempty"` // Stamped by the publisher before dispatch
	Cogify     bool          `json:"cogify"`
	Upload     bool          `json:"upload"`
	DryRun     bool          `json:"dry_run"`

	S3  *S3Discovery  `json:"-"`
	CMR *CMRDiscovery `json:"-"`
}

// UnmarshalJSON dispatches on the discovery discriminator and decodes only
// the matching variant's fields.
func (d *DiscoveryItem) UnmarshalJSON(data []byte) error {
	type head struct {
		Discovery  DiscoveryKind `json:"discovery"`
		Collection string        `json:"collection"`
		Cogify     bool          `json:"cogify"`
		Upload     bool          `json:"upload"`
		DryRun     bool          `json:"dry_run"`
	}
	var h head
	if err := json.Unmarshal(data, &h); err != nil {
		return err
	}
	d.Discovery = h.Discovery
	d.Collection = h.Collection
	d.Cogify = h.Cogify
	d.Upload = h.Upload
	d.DryRun = h.DryRun

	switch h.Discovery {
	case DiscoveryS3:
		d.S3 = &S3Discovery{}
		return json.Unmarshal(data, d.S3)
	case DiscoveryCMR:
		d.CMR = &CMRDiscovery{}
		return json.Unmarshal(data, d.CMR)
	default:
		return fmt.Errorf("unknown discovery kind %q", h.Discovery)
	}
}

// MarshalJSON flattens the active variant back into a single object so the
// wire format round-trips.
func (d DiscoveryItem) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{
		"discovery": d.Discovery,
		"cogify":    d.Cogify,
		"upload":    d.Upload,
		"dry_run":   d.DryRun,
	}
	if d.Collection != "" {
		out["collection"] = d.Collection
	}

	var variant interface{}
	switch d.Discovery {
	case DiscoveryS3:
		variant = d.S3
	case DiscoveryCMR:
		variant = d.CMR
	}
	if variant != nil {
		raw, err := json.Marshal(variant)
		if err != nil {
			return nil, err
		}
		var fields map[string]interface{}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, err
		}
		for k, v := range fields {
			out[k] = v
		}
	}
	return json.Marshal(out)
}

// DatasetSubmission describes one dataset to be published: the collection to
// create, where to discover its files, and sample files proving the discovery
// items are correct. It is validated once at publish time and not persisted.
type DatasetSubmission struct {
	Collection     string          `json:"collection"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	License        string          `json:"license"`
	IsPeriodic     bool            `json:"is_periodic"`
	TimeDensity    DatetimeRange   `json:"time_density,omitempty"` // Required iff IsPeriodic
	SpatialExtent  SpatialExtent   `json:"spatial_extent"`
	TemporalExtent TemporalExtent  `json:"temporal_extent"`
	SampleFiles    []string        `json:"sample_files"`
	DiscoveryItems []DiscoveryItem `json:"discovery_items"`
	DataType       DataType        `json:"data_type,omitempty"` // Defaults to cog

	// Array-store knobs, used only when DataType is zarr.
	XarrayKwargs      map[string]interface{} `json:"xarray_kwargs,omitempty"`
	TemporalDimension string                 `json:"temporal_dimension,omitempty"` // Defaults to "time"
	XDimension        string                 `json:"x_dimension,omitempty"`        // Defaults to "lon"
	YDimension        string                 `json:"y_dimension,omitempty"`        // Defaults to "lat"
	ReferenceSystem   int                    `json:"reference_system,omitempty"`   // Defaults to EPSG 4326
}
