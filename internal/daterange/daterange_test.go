// internal/daterange/daterange_test.go
package daterange

import (
	"testing"
	"time"

	apperrors "github.com/geostac/geostac-ingest-go/internal/errors"
	"github.com/geostac/geostac-ingest-go/internal/model"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestExtractSingleDate(t *testing.T) {
	got, err := Extract("modis_2021-08-14_band1.tif")
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	want := date(2021, time.August, 14)
	if !got.Start.Equal(want) || !got.End.Equal(want) {
		t.Errorf("Extract = [%v, %v], want single instant %v", got.Start, got.End, want)
	}
	if !got.Instant() {
		t.Error("single date should report Instant()")
	}
}

func TestExtractMonthGranularity(t *testing.T) {
	got, err := ExtractWithGranularity("data_202108.tif", model.RangeMonth)
	if err != nil {
		t.Fatalf("ExtractWithGranularity returned error: %v", err)
	}
	if want := date(2021, time.August, 1); !got.Start.Equal(want) {
		t.Errorf("start = %v, want %v", got.Start, want)
	}
	if want := date(2021, time.August, 31); !got.End.Equal(want) {
		t.Errorf("end = %v, want %v", got.End, want)
	}
}

func TestExtractMonthGranularityVariableLength(t *testing.T) {
	tests := []struct {
		filename string
		wantEnd  time.Time
	}{
		{"data_202102.tif", date(2021, time.February, 28)},
		{"data_202002.tif", date(2020, time.February, 29)}, // leap year
		{"data_202104.tif", date(2021, time.April, 30)},
	}
	for _, tt := range tests {
		got, err := ExtractWithGranularity(tt.filename, model.RangeMonth)
		if err != nil {
			t.Fatalf("ExtractWithGranularity(%q) returned error: %v", tt.filename, err)
		}
		if !got.End.Equal(tt.wantEnd) {
			t.Errorf("ExtractWithGranularity(%q) end = %v, want %v", tt.filename, got.End, tt.wantEnd)
		}
	}
}

func TestExtractYearGranularity(t *testing.T) {
	got, err := ExtractWithGranularity("fire_2020_perimeter.tif", model.RangeYear)
	if err != nil {
		t.Fatalf("ExtractWithGranularity returned error: %v", err)
	}
	if want := date(2020, time.January, 1); !got.Start.Equal(want) {
		t.Errorf("start = %v, want %v", got.Start, want)
	}
	if want := date(2020, time.December, 31); !got.End.Equal(want) {
		t.Errorf("end = %v, want %v", got.End, want)
	}
}

func TestExtractMultipleDatesTakesMinMax(t *testing.T) {
	got, err := Extract("scene_2021_2022.tif")
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if want := date(2021, time.January, 1); !got.Start.Equal(want) {
		t.Errorf("start = %v, want %v", got.Start, want)
	}
	if want := date(2022, time.January, 1); !got.End.Equal(want) {
		t.Errorf("end = %v, want %v", got.End, want)
	}
}

func TestExtractMultipleDatesIgnoresGranularity(t *testing.T) {
	// Two full dates present: granularity must not expand the result.
	got, err := ExtractWithGranularity("scene_20210814_20211021.tif", model.RangeMonth)
	if err != nil {
		t.Fatalf("ExtractWithGranularity returned error: %v", err)
	}
	if want := date(2021, time.August, 14); !got.Start.Equal(want) {
		t.Errorf("start = %v, want %v", got.Start, want)
	}
	if want := date(2021, time.October, 21); !got.End.Equal(want) {
		t.Errorf("end = %v, want %v", got.End, want)
	}
}

func TestExtractFirstStrategyWins(t *testing.T) {
	// A dashed date is present, so the bare-year strategy must not also fire
	// on the same token.
	got, err := Extract("combo_2021-08-14_v2.tif")
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if want := date(2021, time.August, 14); !got.Start.Equal(want) || !got.Instant() {
		t.Errorf("Extract = [%v, %v], want instant %v", got.Start, got.End, want)
	}
}

func TestExtractNoDateFound(t *testing.T) {
	_, err := Extract("no-dates-here.tif")
	if err == nil {
		t.Fatal("Extract on dateless filename did not fail")
	}
	if code := apperrors.CodeOf(err); code != apperrors.INGEST_NO_DATE_FOUND {
		t.Errorf("error code = %v, want %v", code, apperrors.INGEST_NO_DATE_FOUND)
	}
}

func TestExtractUnparseableTokenFails(t *testing.T) {
	_, err := Extract("scene_20211341.tif") // month 13, day 41
	if err == nil {
		t.Fatal("Extract on impossible calendar date did not fail")
	}
	if code := apperrors.CodeOf(err); code != apperrors.INGEST_NO_DATE_FOUND {
		t.Errorf("error code = %v, want %v", code, apperrors.INGEST_NO_DATE_FOUND)
	}
}

func TestExtractRequiresUnderscore(t *testing.T) {
	_, err := Extract("20210814.tif")
	if err == nil {
		t.Fatal("Extract matched a date with no leading underscore")
	}
}
