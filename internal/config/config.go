// Package config provides configuration loading and management for the ingestion service.
// It handles environment variable parsing and provides default values for all settings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// init loads environment variables from .env files during package initialization.
// In development, it loads .env and .env.local files if they exist.
// In production, it relies solely on system environment variables.
// The loading order ensures that system environment variables take precedence over .env files.
func init() {
	// In dev, load .env files if they exist; in production, rely only on environment variables
	// godotenv.Load() does not override already-set environment variables,
	// preserving OS env > .env precedence

	// Load .env file if it exists (for shared development config)
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load .env file: %v\n", err)
		}
	}

	// Load .env.local if it exists (for local overrides, gitignored)
	if _, err := os.Stat(".env.local"); err == nil {
		if err := godotenv.Load(".env.local"); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load .env.local file: %v\n", err)
		}
	}
}

// Config captures environment-driven settings for the ingestion service.
// It contains all configuration parameters needed to run the service.
type Config struct {
	Env         string // Deployment environment (dev, staging, prod)
	Port        string // HTTP server port
	DatabaseDSN string // Ingestion record store connection string (PostgreSQL)
	CatalogDSN  string // Catalog database connection string (PostgreSQL)

	// Change feed
	NATSURL       string        // NATS server URL
	FeedBatchSize int           // Events fetched per loader micro-batch
	FeedMaxWait   time.Duration // Longest a fetch waits for a full batch

	// Object storage probed by validation and read by array-store introspection
	S3Endpoint  string // S3-compatible storage endpoint
	S3Region    string // S3 region
	S3AccessKey string // S3 access key
	S3SecretKey string // S3 secret key

	// Auth
	JWTIssuer   string // Expected issuer for JWT validation
	JWTAudience string // Expected audience for JWT validation
	JWKSURL     string // JWKS endpoint of the identity provider

	// Discovery workflow scheduler
	WorkflowURL   string // Base URL of the scheduler REST API
	WorkflowDAG   string // DAG id triggered per discovery item
	WorkflowToken string // Bearer token for scheduler requests

	// Schema resolution
	SchemaURL           string // Host publishing the official catalog schemas
	SchemaCacheDir      string // Directory for cached schema documents
	UsePublishedSchemas bool   // Replace the built-in item schema with the published one at startup
	StacVersion         string // Catalog spec version used when fetching published schemas

	// Validation behavior
	CollectionTTL time.Duration // How long a positive collection-existence check is trusted

	// CORS configuration
	CORSAllowedOrigins []string // Allowed origins for CORS (empty means deny all)
}

// Default configuration values used when environment variables are not set
const (
	defaultPort          = "8080"                        // Default HTTP server port
	defaultS3Region      = "us-east-1"                   // Default S3 region
	defaultEnv           = "dev"                         // Default environment
	defaultFeedBatchSize = 10                            // Default loader micro-batch size
	defaultFeedMaxWait   = 2 * time.Second               // Default fetch wait window
	defaultWorkflowDAG   = "discover"                    // Default discovery DAG id
	defaultSchemaURL     = "https://schemas.stacspec.org" // Official schema host
	defaultStacVersion   = "1.0.0"                       // Catalog spec version for published schemas
	defaultCollectionTTL = 5 * time.Minute               // Default collection-existence cache TTL
)

// Load reads environment variables and produces a Config suitable for wiring the service.
// It handles both required and optional configuration parameters, providing defaults where appropriate.
// Returns an error if required parameters are missing or invalid.
func Load() (Config, error) {
	cfg := Config{}

	// Handle environment variable
	if env, exists := os.LookupEnv("INGEST_ENV"); exists {
		cfg.Env = env
	} else {
		cfg.Env = defaultEnv
	}

	// Handle port
	if port, exists := os.LookupEnv("INGEST_PORT"); exists {
		cfg.Port = port
	} else {
		cfg.Port = defaultPort
	}

	// Handle optional variables
	if dsn, exists := os.LookupEnv("INGEST_DB_DSN"); exists {
		cfg.DatabaseDSN = dsn
	}

	if dsn, exists := os.LookupEnv("INGEST_CATALOG_DSN"); exists {
		cfg.CatalogDSN = dsn
	}

	if natsURL, exists := os.LookupEnv("INGEST_NATS_URL"); exists {
		cfg.NATSURL = natsURL
	}

	cfg.FeedBatchSize = parseInt(getEnv("INGEST_FEED_BATCH_SIZE", ""), defaultFeedBatchSize)
	cfg.FeedMaxWait = parseDuration(getEnv("INGEST_FEED_MAX_WAIT", ""), defaultFeedMaxWait)

	if s3Endpoint, exists := os.LookupEnv("INGEST_S3_ENDPOINT"); exists {
		cfg.S3Endpoint = s3Endpoint
	}

	if s3Region, exists := os.LookupEnv("INGEST_S3_REGION"); exists {
		cfg.S3Region = s3Region
	} else {
		cfg.S3Region = defaultS3Region
	}

	if s3AccessKey, exists := os.LookupEnv("INGEST_S3_ACCESS_KEY"); exists {
		cfg.S3AccessKey = s3AccessKey
	}

	if s3SecretKey, exists := os.LookupEnv("INGEST_S3_SECRET_KEY"); exists {
		cfg.S3SecretKey = s3SecretKey
	}

	if jwtIssuer, exists := os.LookupEnv("INGEST_JWT_ISSUER"); exists {
		cfg.JWTIssuer = jwtIssuer
	}

	if jwtAudience, exists := os.LookupEnv("INGEST_JWT_AUDIENCE"); exists {
		cfg.JWTAudience = jwtAudience
	}

	if jwksURL, exists := os.LookupEnv("INGEST_JWKS_URL"); exists {
		cfg.JWKSURL = jwksURL
	}

	if workflowURL, exists := os.LookupEnv("INGEST_WORKFLOW_URL"); exists {
		cfg.WorkflowURL = workflowURL
	}
	cfg.WorkflowDAG = getEnv("INGEST_WORKFLOW_DAG", defaultWorkflowDAG)
	if workflowToken, exists := os.LookupEnv("INGEST_WORKFLOW_TOKEN"); exists {
		cfg.WorkflowToken = workflowToken
	}

	cfg.SchemaURL = getEnv("INGEST_SCHEMA_URL", defaultSchemaURL)
	if cacheDir, exists := os.LookupEnv("INGEST_SCHEMA_CACHE_DIR"); exists {
		cfg.SchemaCacheDir = cacheDir
	}
	cfg.UsePublishedSchemas = parseBool(getEnv("INGEST_USE_PUBLISHED_SCHEMAS", ""))
	cfg.StacVersion = getEnv("INGEST_STAC_VERSION", defaultStacVersion)

	cfg.CollectionTTL = parseDuration(getEnv("INGEST_COLLECTION_TTL", ""), defaultCollectionTTL)

	// Handle CORS configuration
	if corsOrigins, exists := os.LookupEnv("INGEST_CORS_ALLOWED_ORIGINS"); exists {
		cfg.CORSAllowedOrigins = strings.Split(corsOrigins, ",")
		// Trim whitespace from each origin
		for i, origin := range cfg.CORSAllowedOrigins {
			cfg.CORSAllowedOrigins[i] = strings.TrimSpace(origin)
		}
	}

	// Validate required parameters
	if cfg.JWTIssuer == "" {
		return cfg, fmt.Errorf("INGEST_JWT_ISSUER is required")
	}

	if cfg.JWTAudience == "" {
		return cfg, fmt.Errorf("INGEST_JWT_AUDIENCE is required")
	}

	if cfg.FeedBatchSize < 1 {
		return cfg, fmt.Errorf("INGEST_FEED_BATCH_SIZE must be at least 1")
	}

	return cfg, nil
}

// getEnv retrieves an environment variable value, returning a fallback if not set or empty
func getEnv(key, fallback string) string {
	if v, exists := os.LookupEnv(key); exists && v != "" {
		return v
	}
	return fallback
}

// parseBool converts a string to a boolean value, returning false if parsing fails
func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false
	}
	return b
}

// parseInt converts a string to an int, returning the fallback if parsing fails
func parseInt(v string, fallback int) int {
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// parseDuration converts a string to a duration, returning the fallback if parsing fails
func parseDuration(v string, fallback time.Duration) time.Duration {
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
