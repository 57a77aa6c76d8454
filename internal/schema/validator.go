// internal/schema/validator.go
// Package schema provides JSON schema validation for catalog payloads.
// It ensures submitted items and collections are structurally sound before
// they are queued or published.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Payload kinds with a compiled schema.
const (
	KindItem       = "item"
	KindCollection = "collection"
)

// Validator validates catalog payloads against JSON schemas.
type Validator struct {
	schemas  map[string]*gojsonschema.Schema // Map of payload kinds to compiled schemas
	resolver *Resolver                       // Optional resolver for official published schemas
}

// NewValidator creates a new schema validator with the built-in schemas.
// Returns:
//   - *Validator: Initialized validator instance
//   - error: Any error that occurred during initialization
func NewValidator() (*Validator, error) {
	v := &Validator{
		schemas: make(map[string]*gojsonschema.Schema),
	}

	if err := v.loadSchemas(); err != nil {
		return nil, fmt.Errorf("failed to load schemas: %w", err)
	}

	return v, nil
}

// SetResolver sets the resolver used by LoadPublishedItemSchema.
func (v *Validator) SetResolver(resolver *Resolver) {
	v.resolver = resolver
}

// loadSchemas loads the built-in schemas.
// These cover the structural subset the ingestion pipeline depends on:
// identity fields, a nullable datetime, and at least one asset with an
// href to probe.
func (v *Validator) loadSchemas() error {
	// Item schema - the payload queued by submissions and bulk-loaded by
	// the batch loader
	itemSchema := `{
		"type": "object",
		"required": ["id", "type", "collection", "properties", "assets"],
		"properties": {
			"id": {"type": "string", "minLength": 1},
			"type": {"type": "string", "enum": ["Feature"]},
			"collection": {"type": "string", "minLength": 1},
			"geometry": {"type": ["object", "null"]},
			"bbox": {"type": "array", "items": {"type": "number"}, "minItems": 4},
			"properties": {
				"type": "object",
				"required": ["datetime"],
				"properties": {"datetime": {"type": ["string", "null"]}}
			},
			"assets": {
				"type": "object",
				"minProperties": 1,
				"additionalProperties": {
					"type": "object",
					"required": ["href"],
					"properties": {"href": {"type": "string", "minLength": 1}}
				}
			}
		}
	}`
	if err := v.loadSchema(KindItem, itemSchema); err != nil {
		return fmt.Errorf("failed to load item schema: %w", err)
	}

	// Collection schema - the document the publisher writes to the catalog
	collectionSchema := `{
		"type": "object",
		"required": ["id", "type", "stac_version", "description", "license", "extent", "links"],
		"properties": {
			"id": {"type": "string", "minLength": 1},
			"type": {"type": "string", "enum": ["Collection"]},
			"stac_version": {"type": "string"},
			"description": {"type": "string", "minLength": 1},
			"license": {"type": "string", "minLength": 1},
			"links": {"type": "array"},
			"extent": {
				"type": "object",
				"required": ["spatial", "temporal"],
				"properties": {
					"spatial": {
						"type": "object",
						"required": ["bbox"],
						"properties": {
							"bbox": {
								"type": "array",
								"minItems": 1,
								"items": {"type": "array", "items": {"type": "number"}, "minItems": 4}
							}
						}
					},
					"temporal": {
						"type": "object",
						"required": ["interval"],
						"properties": {
							"interval": {
								"type": "array",
								"minItems": 1,
								"items": {
									"type": "array",
									"items": {"type": ["string", "null"]},
									"minItems": 2,
									"maxItems": 2
								}
							}
						}
					}
				}
			}
		}
	}`
	if err := v.loadSchema(KindCollection, collectionSchema); err != nil {
		return fmt.Errorf("failed to load collection schema: %w", err)
	}

	return nil
}

// loadSchema compiles and stores a single schema.
// Parameters:
//   - kind: The payload kind ("item" or "collection")
//   - schemaJSON: The JSON schema as a string
// Returns:
//   - error: Any error that occurred during schema loading
func (v *Validator) loadSchema(kind, schemaJSON string) error {
	loader := gojsonschema.NewStringLoader(schemaJSON)

	schema, err := gojsonschema.NewSchema(loader)
	if err != nil {
		return fmt.Errorf("invalid schema for %s: %w", kind, err)
	}

	v.schemas[kind] = schema
	return nil
}

// LoadPublishedItemSchema replaces the built-in item schema with the
// official published one for the given catalog spec version, fetched
// through the resolver.
func (v *Validator) LoadPublishedItemSchema(version string) error {
	if v.resolver == nil {
		return fmt.Errorf("no schema resolver configured")
	}
	schemaJSON, err := v.resolver.ItemSchema(version)
	if err != nil {
		return fmt.Errorf("failed to resolve item schema %s: %w", version, err)
	}
	return v.loadSchema(KindItem, string(schemaJSON))
}

// ValidateItem validates an item payload against the item schema.
// Returns nil if valid, or an error naming every violation.
func (v *Validator) ValidateItem(item map[string]interface{}) error {
	return v.validate(KindItem, item)
}

// ValidateCollection validates a collection payload against the
// collection schema.
func (v *Validator) ValidateCollection(collection map[string]interface{}) error {
	return v.validate(KindCollection, collection)
}

// validate runs one payload through its compiled schema.
// Parameters:
//   - kind: The payload kind ("item" or "collection")
//   - payload: The payload data to validate
// Returns:
//   - error: nil if valid, error with details if invalid
func (v *Validator) validate(kind string, payload map[string]interface{}) error {
	schema, exists := v.schemas[kind]
	if !exists {
		return fmt.Errorf("schema not found for %s", kind)
	}

	// Convert the payload to JSON for validation
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", kind, err)
	}

	// Perform the validation
	result, err := schema.Validate(gojsonschema.NewBytesLoader(payloadJSON))
	if err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	// Collect every violation, not just the first
	if !result.Valid() {
		var errs []string
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}
		return fmt.Errorf("validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}
