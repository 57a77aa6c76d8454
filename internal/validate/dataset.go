// internal/validate/dataset.go
package validate

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/geostac/geostac-ingest-go/internal/daterange"
	apperrors "github.com/geostac/geostac-ingest-go/internal/errors"
	"github.com/geostac/geostac-ingest-go/internal/model"
	"github.com/geostac/geostac-ingest-go/internal/schema"
)

// Collection ids are lowercase words joined by single hyphens.
var collectionIDPattern = regexp.MustCompile(`^[a-z]+(-[a-z]+)*$`)

// Validator runs the submission rule set for datasets and items.
type Validator struct {
	prober      *Prober
	collections *CollectionChecker
	objects     ObjectStore
	schemas     *schema.Validator
}

// NewValidator creates a validator over the given collaborators.
func NewValidator(objects ObjectStore, collections *CollectionChecker, schemas *schema.Validator) *Validator {
	return &Validator{
		prober:      NewProber(objects),
		collections: collections,
		objects:     objects,
		schemas:     schemas,
	}
}

// Prober returns the validator's reachability prober.
func (v *Validator) Prober() *Prober {
	return v.prober
}

// Collections returns the validator's collection checker.
func (v *Validator) Collections() *CollectionChecker {
	return v.collections
}

// Dataset decides whether a dataset submission is admissible.
//
// The rules run cheapest first: collection id shape, then periodicity
// against time density, then sample files against the object-storage
// discovery items, then a listing probe proving each discovery prefix
// holds at least one non-trivial object. Each failing rule names every
// offending input it covers.
func (v *Validator) Dataset(ctx context.Context, sub model.DatasetSubmission) error {
	if !collectionIDPattern.MatchString(sub.Collection) {
		return apperrors.Newf(apperrors.INGEST_VALIDATION,
			"collection id %q must match %s", sub.Collection, collectionIDPattern.String())
	}

	if err := checkTimeDensity(sub.IsPeriodic, sub.TimeDensity); err != nil {
		return err
	}

	s3Items := make([]model.S3Discovery, 0, len(sub.DiscoveryItems))
	for _, item := range sub.DiscoveryItems {
		if item.S3 != nil {
			s3Items = append(s3Items, *item.S3)
		}
	}

	if err := checkSampleFiles(sub.SampleFiles, s3Items); err != nil {
		return err
	}

	for _, item := range s3Items {
		if err := v.checkListablePrefix(ctx, item); err != nil {
			return err
		}
	}

	return nil
}

// Item decides whether a submitted catalog item is admissible: it must
// pass the structural schema, reference a registered collection, and
// carry only reachable assets.
func (v *Validator) Item(ctx context.Context, item map[string]interface{}) error {
	if err := v.schemas.ValidateItem(item); err != nil {
		return apperrors.Newf(apperrors.INGEST_SCHEMA_REJECT, "%s", err)
	}

	collection, _ := item["collection"].(string)
	if err := v.collections.Known(ctx, collection); err != nil {
		return err
	}

	assets, _ := item["assets"].(map[string]interface{})
	for name, raw := range assets {
		asset, _ := raw.(map[string]interface{})
		href, _ := asset["href"].(string)
		if err := v.prober.AssetReachable(ctx, href); err != nil {
			return apperrors.Newf(apperrors.INGEST_ASSET_UNREACHABLE, "asset %q: %s", name, errMessage(err))
		}
	}

	return nil
}

// checkTimeDensity enforces the periodicity contract: periodic datasets
// declare a granularity, aperiodic datasets declare none.
func checkTimeDensity(isPeriodic bool, density model.DatetimeRange) error {
	if isPeriodic {
		if !density.Valid() {
			return apperrors.Newf(apperrors.INGEST_TIME_DENSITY,
				"time_density must be one of day, month or year for a periodic dataset, got %q", string(density))
		}
		return nil
	}
	if density != "" {
		return apperrors.Newf(apperrors.INGEST_TIME_DENSITY,
			"time_density must be null for a non-periodic dataset, got %q", string(density))
	}
	return nil
}

// checkSampleFiles requires every sample file to satisfy at least one
// object-storage discovery item: prefix, basename regex, and - when the
// item declares a datetime_range - date extraction. All offending files
// are reported together.
func checkSampleFiles(sampleFiles []string, items []model.S3Discovery) error {
	if len(sampleFiles) == 0 {
		return nil
	}

	type compiledItem struct {
		item model.S3Discovery
		re   *regexp.Regexp
	}
	compiled := make([]compiledItem, 0, len(items))
	for _, item := range items {
		re, err := regexp.Compile(item.FilenameRegex)
		if err != nil {
			return apperrors.Newf(apperrors.INGEST_VALIDATION,
				"invalid filename_regex %q: %s", item.FilenameRegex, err)
		}
		compiled = append(compiled, compiledItem{item: item, re: re})
	}

	var mismatched []string
	for _, file := range sampleFiles {
		matched := false
		for _, c := range compiled {
			if fileMatches(file, c.item, c.re) {
				matched = true
				break
			}
		}
		if !matched {
			mismatched = append(mismatched, file)
		}
	}

	if len(mismatched) > 0 {
		return apperrors.NewWithDetails(apperrors.INGEST_SAMPLE_FILE_MISMATCH,
			fmt.Sprintf("sample files do not match any discovery item: %s", strings.Join(mismatched, ", ")),
			"", mismatched)
	}
	return nil
}

// fileMatches reports whether one sample file satisfies one discovery item.
func fileMatches(file string, item model.S3Discovery, re *regexp.Regexp) bool {
	if !strings.HasPrefix(file, item.Prefix) {
		return false
	}
	base := path.Base(file)
	if !re.MatchString(base) {
		return false
	}
	if item.DatetimeRange != "" {
		if _, err := daterange.ExtractWithGranularity(base, item.DatetimeRange); err != nil {
			return false
		}
	}
	return true
}

// checkListablePrefix proves the discovery item's bucket/prefix holds at
// least one non-trivial object. Zero-byte placeholder keys do not count.
func (v *Validator) checkListablePrefix(ctx context.Context, item model.S3Discovery) error {
	objects, err := v.objects.List(ctx, item.Bucket, item.Prefix, 10)
	if err != nil {
		return apperrors.Newf(apperrors.INGEST_VALIDATION,
			"unable to list s3://%s/%s: %s", item.Bucket, item.Prefix, err)
	}
	for _, obj := range objects {
		if obj.Size > 0 && obj.Key != item.Prefix {
			return nil
		}
	}
	return apperrors.Newf(apperrors.INGEST_VALIDATION,
		"no objects found under s3://%s/%s", item.Bucket, item.Prefix)
}

// errMessage unwraps the message of a coded error for re-wrapping.
func errMessage(err error) string {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
