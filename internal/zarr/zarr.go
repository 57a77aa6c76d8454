// Package zarr derives collection extent from a zarr array store without
// opening the whole dataset: it reads the consolidated metadata document,
// locates the coordinate arrays for the configured dimensions, and decodes
// only their endpoint chunks.
package zarr

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"regexp"
	"strings"
	"time"
)

// Dimension defaults for stores that do not declare their own names.
const (
	DefaultTimeDimension   = "time"
	DefaultXDimension      = "lon"
	DefaultYDimension      = "lat"
	DefaultReferenceSystem = 4326
)

// ObjectGetter reads whole objects from the store's bucket.
type ObjectGetter interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
}

// Dims names the coordinate arrays to introspect. Zero values select the
// package defaults.
type Dims struct {
	Time            string
	X               string
	Y               string
	ReferenceSystem int
}

func (d Dims) withDefaults() Dims {
	if d.Time == "" {
		d.Time = DefaultTimeDimension
	}
	if d.X == "" {
		d.X = DefaultXDimension
	}
	if d.Y == "" {
		d.Y = DefaultYDimension
	}
	if d.ReferenceSystem == 0 {
		d.ReferenceSystem = DefaultReferenceSystem
	}
	return d
}

// Extent is the spatial and temporal coverage of an array store.
type Extent struct {
	BBox    [4]float64 // xmin, ymin, xmax, ymax
	Start   time.Time
	End     time.Time
	HasTime bool // False when the store has no time coordinate
}

// Introspector reads zarr stores through an object getter.
type Introspector struct {
	objects ObjectGetter
}

// NewIntrospector creates an introspector over the given object getter.
func NewIntrospector(objects ObjectGetter) *Introspector {
	return &Introspector{objects: objects}
}

// consolidated is the shape of a .zmetadata document.
type consolidated struct {
	Metadata map[string]json.RawMessage `json:"metadata"`
	Format   int                        `json:"zarr_consolidated_format"`
}

// arrayMeta is the subset of a .zarray document the introspector needs.
type arrayMeta struct {
	Shape      []int  `json:"shape"`
	Chunks     []int  `json:"chunks"`
	Dtype      string `json:"dtype"`
	Compressor *struct {
		ID string `json:"id"`
	} `json:"compressor"`
}

// Extent derives the spatial bbox and temporal interval of the store at
// s3://bucket/storeKey. Coordinate arrays are assumed monotonic, so the
// endpoint values of each array bound its range.
func (in *Introspector) Extent(ctx context.Context, bucket, storeKey string, dims Dims) (*Extent, error) {
	dims = dims.withDefaults()
	storeKey = strings.TrimSuffix(storeKey, "/")

	raw, err := in.objects.Get(ctx, bucket, storeKey+"/.zmetadata")
	if err != nil {
		return nil, fmt.Errorf("failed to read consolidated metadata: %w", err)
	}
	var meta consolidated
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("malformed consolidated metadata: %w", err)
	}

	xFirst, xLast, err := in.coordinateEndpoints(ctx, bucket, storeKey, dims.X, meta)
	if err != nil {
		return nil, fmt.Errorf("dimension %s: %w", dims.X, err)
	}
	yFirst, yLast, err := in.coordinateEndpoints(ctx, bucket, storeKey, dims.Y, meta)
	if err != nil {
		return nil, fmt.Errorf("dimension %s: %w", dims.Y, err)
	}

	ext := &Extent{BBox: [4]float64{
		math.Min(xFirst, xLast),
		math.Min(yFirst, yLast),
		math.Max(xFirst, xLast),
		math.Max(yFirst, yLast),
	}}

	// A store without a time coordinate still has a spatial extent.
	if _, ok := meta.Metadata[dims.Time+"/.zarray"]; !ok {
		return ext, nil
	}

	tFirst, tLast, err := in.coordinateEndpoints(ctx, bucket, storeKey, dims.Time, meta)
	if err != nil {
		return nil, fmt.Errorf("dimension %s: %w", dims.Time, err)
	}
	units, calendarEpoch, err := timeUnits(meta, dims.Time)
	if err != nil {
		return nil, fmt.Errorf("dimension %s: %w", dims.Time, err)
	}

	start := applyUnits(calendarEpoch, units, math.Min(tFirst, tLast))
	end := applyUnits(calendarEpoch, units, math.Max(tFirst, tLast))
	ext.Start, ext.End, ext.HasTime = start, end, true
	return ext, nil
}

// coordinateEndpoints reads the first and last value of a 1-D coordinate
// array, touching only its first and last chunks.
func (in *Introspector) coordinateEndpoints(ctx context.Context, bucket, storeKey, name string, meta consolidated) (float64, float64, error) {
	rawArray, ok := meta.Metadata[name+"/.zarray"]
	if !ok {
		return 0, 0, fmt.Errorf("no coordinate array in store")
	}
	var am arrayMeta
	if err := json.Unmarshal(rawArray, &am); err != nil {
		return 0, 0, fmt.Errorf("malformed array metadata: %w", err)
	}
	if len(am.Shape) != 1 || len(am.Chunks) != 1 {
		return 0, 0, fmt.Errorf("coordinate array is not one-dimensional")
	}
	length, chunkLen := am.Shape[0], am.Chunks[0]
	if length == 0 || chunkLen == 0 {
		return 0, 0, fmt.Errorf("coordinate array is empty")
	}

	compressor := ""
	if am.Compressor != nil {
		compressor = am.Compressor.ID
	}

	firstChunk, err := in.readChunk(ctx, bucket, storeKey, name, 0, am.Dtype, compressor)
	if err != nil {
		return 0, 0, err
	}
	if len(firstChunk) == 0 {
		return 0, 0, fmt.Errorf("coordinate chunk 0 is empty")
	}
	first := firstChunk[0]

	lastIdx := (length + chunkLen - 1) / chunkLen
	lastIdx--
	lastChunk := firstChunk
	if lastIdx > 0 {
		lastChunk, err = in.readChunk(ctx, bucket, storeKey, name, lastIdx, am.Dtype, compressor)
		if err != nil {
			return 0, 0, err
		}
	}
	// Trailing chunks are stored full-size; the final value sits at the
	// array's last index relative to the chunk start.
	offset := (length - 1) - lastIdx*chunkLen
	if offset >= len(lastChunk) {
		return 0, 0, fmt.Errorf("coordinate chunk %d too short: %d values", lastIdx, len(lastChunk))
	}
	return first, lastChunk[offset], nil
}

// readChunk fetches and decodes one chunk of a 1-D array.
func (in *Introspector) readChunk(ctx context.Context, bucket, storeKey, name string, idx int, dtype, compressor string) ([]float64, error) {
	key := fmt.Sprintf("%s/%s/%d", storeKey, name, idx)
	data, err := in.objects.Get(ctx, bucket, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read chunk %s: %w", key, err)
	}

	switch compressor {
	case "", "none":
		// Raw chunk
	case "zlib":
		r, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to open zlib chunk %s: %w", key, err)
		}
		defer r.Close()
		data, err = io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress chunk %s: %w", key, err)
		}
	default:
		return nil, fmt.Errorf("unsupported compressor %q", compressor)
	}

	return decodeValues(data, dtype)
}

// decodeValues parses little-endian numeric chunk bytes.
func decodeValues(data []byte, dtype string) ([]float64, error) {
	switch dtype {
	case "<f8":
		if len(data)%8 != 0 {
			return nil, fmt.Errorf("chunk length %d not a multiple of 8", len(data))
		}
		vals := make([]float64, len(data)/8)
		for i := range vals {
			vals[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
		}
		return vals, nil
	case "<f4":
		if len(data)%4 != 0 {
			return nil, fmt.Errorf("chunk length %d not a multiple of 4", len(data))
		}
		vals := make([]float64, len(data)/4)
		for i := range vals {
			vals[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])))
		}
		return vals, nil
	case "<i4":
		if len(data)%4 != 0 {
			return nil, fmt.Errorf("chunk length %d not a multiple of 4", len(data))
		}
		vals := make([]float64, len(data)/4)
		for i := range vals {
			vals[i] = float64(int32(binary.LittleEndian.Uint32(data[i*4:])))
		}
		return vals, nil
	case "<i8":
		if len(data)%8 != 0 {
			return nil, fmt.Errorf("chunk length %d not a multiple of 8", len(data))
		}
		vals := make([]float64, len(data)/8)
		for i := range vals {
			vals[i] = float64(int64(binary.LittleEndian.Uint64(data[i*8:])))
		}
		return vals, nil
	default:
		return nil, fmt.Errorf("unsupported dtype %q", dtype)
	}
}

// unitsPattern matches CF-convention time units, e.g. "days since 2000-01-01".
var unitsPattern = regexp.MustCompile(`^\s*(\w+)\s+since\s+(.+?)\s*$`)

// epochLayouts are the timestamp forms accepted after "since".
var epochLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	time.RFC3339,
	"2006-01-02",
}

// timeUnits reads the CF units of the time coordinate from its attributes.
func timeUnits(meta consolidated, name string) (time.Duration, time.Time, error) {
	rawAttrs, ok := meta.Metadata[name+"/.zattrs"]
	if !ok {
		return 0, time.Time{}, fmt.Errorf("no attributes for time coordinate")
	}
	var attrs struct {
		Units string `json:"units"`
	}
	if err := json.Unmarshal(rawAttrs, &attrs); err != nil {
		return 0, time.Time{}, fmt.Errorf("malformed attributes: %w", err)
	}

	m := unitsPattern.FindStringSubmatch(attrs.Units)
	if m == nil {
		return 0, time.Time{}, fmt.Errorf("unsupported time units %q", attrs.Units)
	}

	var unit time.Duration
	switch strings.ToLower(m[1]) {
	case "second", "seconds":
		unit = time.Second
	case "minute", "minutes":
		unit = time.Minute
	case "hour", "hours":
		unit = time.Hour
	case "day", "days":
		unit = 24 * time.Hour
	default:
		return 0, time.Time{}, fmt.Errorf("unsupported time unit %q", m[1])
	}

	for _, layout := range epochLayouts {
		if epoch, err := time.Parse(layout, m[2]); err == nil {
			return unit, epoch.UTC(), nil
		}
	}
	return 0, time.Time{}, fmt.Errorf("unsupported epoch %q", m[2])
}

// applyUnits converts a coordinate value to an instant.
func applyUnits(epoch time.Time, unit time.Duration, value float64) time.Time {
	return epoch.Add(time.Duration(value * float64(unit))).UTC()
}
