// internal/daterange/daterange.go
// Package daterange extracts calendar dates embedded in source filenames.
// Filenames conventionally carry their acquisition date after an underscore
// (e.g. modis_2021-08-14_band1.tif); the extracted range drives per-file
// datetime assignment during discovery and sample-file validation.
package daterange

import (
	"regexp"
	"sort"
	"time"

	apperrors "github.com/geostac/geostac-ingest-go/internal/errors"
	"github.com/geostac/geostac-ingest-go/internal/model"
)

// Range is the inclusive date span extracted from one filename. A single
// instant is represented as Start == End.
type Range struct {
	Start time.Time `json:"start_datetime"`
	End   time.Time `json:"end_datetime"`
}

// Instant reports whether the range collapses to a single point in time.
func (r Range) Instant() bool {
	return r.Start.Equal(r.End)
}

// strategies are tried in order; the first pattern with any match wins and
// all matches of that one pattern are extracted. A YYYYMMDD token also
// contains a YYYYMM prefix, so order matters.
var strategies = []struct {
	re     *regexp.Regexp
	layout string
}{
	{regexp.MustCompile(`_(\d{4}-\d{2}-\d{2})`), "2006-01-02"},
	{regexp.MustCompile(`_(\d{8})`), "20060102"},
	{regexp.MustCompile(`_(\d{6})`), "200601"},
	{regexp.MustCompile(`_(\d{4})`), "2006"},
}

// Extract finds the dates embedded in filename with no declared granularity:
// one date yields a single instant, several yield their (min, max) span.
func Extract(filename string) (Range, error) {
	return ExtractWithGranularity(filename, "")
}

// ExtractWithGranularity finds the dates embedded in filename. When exactly
// one date is found and a granularity is declared, the date is expanded to
// the enclosing calendar range: a year spans Jan 1 through Dec 31, a month
// spans its first through its actual last day. When several dates are found
// the declared granularity is ignored and the sorted (min, max) pair is
// returned.
func ExtractWithGranularity(filename string, granularity model.DatetimeRange) (Range, error) {
	var dates []time.Time
	for _, s := range strategies {
		matches := s.re.FindAllStringSubmatch(filename, -1)
		if len(matches) == 0 {
			continue
		}
		for _, m := range matches {
			d, err := time.Parse(s.layout, m[1])
			if err != nil {
				return Range{}, apperrors.Newf(apperrors.INGEST_NO_DATE_FOUND,
					"no valid date found in %q: token %q does not parse as %s", filename, m[1], s.layout)
			}
			dates = append(dates, d)
		}
		break
	}

	if len(dates) == 0 {
		return Range{}, apperrors.Newf(apperrors.INGEST_NO_DATE_FOUND,
			"no date found in %q", filename)
	}

	if len(dates) > 1 {
		sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
		return Range{Start: dates[0], End: dates[len(dates)-1]}, nil
	}

	d := dates[0]
	switch granularity {
	case model.RangeYear:
		return Range{
			Start: time.Date(d.Year(), time.January, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(d.Year(), time.December, 31, 0, 0, 0, 0, time.UTC),
		}, nil
	case model.RangeMonth:
		first := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
		// Day zero of the next month is the last day of this one.
		last := time.Date(d.Year(), d.Month()+1, 0, 0, 0, 0, 0, time.UTC)
		return Range{Start: first, End: last}, nil
	case model.RangeDay:
		day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
		return Range{Start: day, End: day}, nil
	default:
		return Range{Start: d, End: d}, nil
	}
}
