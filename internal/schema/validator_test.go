// internal/schema/validator_test.go
package schema

import (
	"strings"
	"testing"
)

func validItem() map[string]interface{} {
	return map[string]interface{}{
		"id":         "item-1",
		"type":       "Feature",
		"collection": "caldor-fire-behavior",
		"geometry":   nil,
		"properties": map[string]interface{}{"datetime": "2021-08-14T00:00:00Z"},
		"assets": map[string]interface{}{
			"cog_default": map[string]interface{}{"href": "s3://bucket/foo/bar.tif"},
		},
	}
}

func TestValidateItem(t *testing.T) {
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}

	if err := v.ValidateItem(validItem()); err != nil {
		t.Errorf("valid item rejected: %v", err)
	}

	nullDatetime := validItem()
	nullDatetime["properties"] = map[string]interface{}{"datetime": nil}
	if err := v.ValidateItem(nullDatetime); err != nil {
		t.Errorf("null datetime rejected: %v", err)
	}

	wrongType := validItem()
	wrongType["type"] = "Collection"
	if err := v.ValidateItem(wrongType); err == nil {
		t.Error("item with type Collection accepted")
	}

	noHref := validItem()
	noHref["assets"] = map[string]interface{}{"cog_default": map[string]interface{}{"title": "x"}}
	if err := v.ValidateItem(noHref); err == nil {
		t.Error("asset without href accepted")
	}
}

func TestValidateItemNamesEveryViolation(t *testing.T) {
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}

	// Missing collection AND missing assets: both must be reported.
	item := map[string]interface{}{
		"id":         "item-1",
		"type":       "Feature",
		"properties": map[string]interface{}{"datetime": nil},
	}
	verr := v.ValidateItem(item)
	if verr == nil {
		t.Fatal("broken item accepted")
	}
	for _, field := range []string{"collection", "assets"} {
		if !strings.Contains(verr.Error(), field) {
			t.Errorf("violation for %q not reported: %v", field, verr)
		}
	}
}

func TestValidateCollection(t *testing.T) {
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}

	collection := map[string]interface{}{
		"id":           "caldor-fire-behavior",
		"type":         "Collection",
		"stac_version": "1.0.0",
		"description":  "Caldor fire progression",
		"license":      "CC0",
		"links":        []interface{}{},
		"extent": map[string]interface{}{
			"spatial": map[string]interface{}{
				"bbox": []interface{}{[]interface{}{-180.0, -90.0, 180.0, 90.0}},
			},
			"temporal": map[string]interface{}{
				"interval": []interface{}{[]interface{}{nil, nil}},
			},
		},
	}
	if err := v.ValidateCollection(collection); err != nil {
		t.Errorf("valid collection rejected: %v", err)
	}

	delete(collection, "extent")
	if err := v.ValidateCollection(collection); err == nil {
		t.Error("collection without extent accepted")
	}
}
