// cmd/ingestd/main.go
// Package main implements the entry point for the ingest service.
// It initializes all components and starts the HTTP server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geostac/geostac-ingest-go/internal/catalog"
	"github.com/geostac/geostac-ingest-go/internal/config"
	"github.com/geostac/geostac-ingest-go/internal/event"
	"github.com/geostac/geostac-ingest-go/internal/jwks"
	"github.com/geostac/geostac-ingest-go/internal/loader"
	"github.com/geostac/geostac-ingest-go/internal/objectstore"
	"github.com/geostac/geostac-ingest-go/internal/publish"
	"github.com/geostac/geostac-ingest-go/internal/schema"
	"github.com/geostac/geostac-ingest-go/internal/server"
	"github.com/geostac/geostac-ingest-go/internal/storage"
	"github.com/geostac/geostac-ingest-go/internal/telemetry"
	"github.com/geostac/geostac-ingest-go/internal/validate"
	"github.com/geostac/geostac-ingest-go/internal/workflow"
	"github.com/geostac/geostac-ingest-go/internal/zarr"
)

// main is the entry point for the ingest service.
// It initializes all components, starts the HTTP server and the batch
// loader, and handles graceful shutdown.
func main() {
	// Load configuration from environment variables
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	// Configure structured logging for the application
	logLevel := slog.LevelInfo
	if cfg.Env == "dev" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Initialize OpenTelemetry
	_, err = telemetry.InitTracer("ingest-service")
	if err != nil {
		logger.Error("failed to initialize OpenTelemetry tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		// Shutdown the tracer provider
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetry.ShutdownTracer(ctx)
	}()

	// Initialize the ingestion record store (PostgreSQL or in-memory)
	var records storage.Store
	if cfg.DatabaseDSN != "" {
		// Use PostgreSQL storage for production
		records, err = storage.NewPostgres(cfg.DatabaseDSN)
		if err != nil {
			logger.Error("failed to initialize postgres record store", "error", err)
			os.Exit(1)
		}
	} else {
		// Use in-memory storage for development/testing
		records = storage.NewMemory()
	}

	// Initialize the catalog store (pgstac or in-memory)
	var cat catalog.Store
	if cfg.CatalogDSN != "" {
		cat, err = catalog.NewPgstac(cfg.CatalogDSN)
		if err != nil {
			logger.Error("failed to initialize pgstac catalog store", "error", err)
			os.Exit(1)
		}
	} else {
		cat = catalog.NewMemory()
	}
	defer cat.Close()

	// Initialize the change feed (NATS JetStream or in-process). The
	// in-process feed keeps the loader running in development so records
	// still move out of queued without a broker.
	var pub event.Publisher
	var feed event.Feed
	if cfg.NATSURL != "" {
		pub = event.NewPublisherFromEnv()
		feed, err = event.NewPullFeed(cfg.NATSURL, "ingest-loader", cfg.FeedBatchSize, cfg.FeedMaxWait)
		if err != nil {
			logger.Error("failed to connect the change feed", "error", err)
			os.Exit(1)
		}
	} else {
		mem := event.NewMemoryFeed(cfg.FeedBatchSize, cfg.FeedMaxWait)
		pub, feed = mem, mem
	}
	defer pub.Close()
	defer feed.Close()

	// Every successful record write emits a change event for the loader
	store := storage.NewFeedStore(records, pub)

	// Start the batch loader consuming the change feed
	runnerCtx, stopRunner := context.WithCancel(context.Background())
	defer stopRunner()
	runner := loader.NewRunner(feed, loader.New(store, cat))
	go func() {
		if err := runner.Run(runnerCtx); err != nil && runnerCtx.Err() == nil {
			logger.Error("loader stopped", "error", err)
		}
	}()

	// Initialize the object storage client probed by validation and read
	// by array-store introspection
	objects, err := objectstore.NewClient(cfg.S3Endpoint, cfg.S3Region, cfg.S3AccessKey, cfg.S3SecretKey)
	if err != nil {
		logger.Error("failed to initialize object storage client", "error", err)
		os.Exit(1)
	}

	// Load the structural schemas, optionally replacing the built-in item
	// schema with the published one
	schemas, err := schema.NewValidator()
	if err != nil {
		logger.Error("failed to load catalog schemas", "error", err)
		os.Exit(1)
	}
	if cfg.UsePublishedSchemas {
		schemas.SetResolver(schema.NewResolver(cfg.SchemaURL, cfg.SchemaCacheDir))
		if err := schemas.LoadPublishedItemSchema(cfg.StacVersion); err != nil {
			// The built-in subset keeps the service functional until the
			// schema host is reachable again.
			logger.Warn("failed to load published item schema, using built-in",
				"version", cfg.StacVersion, "error", err)
		}
	}

	// Wire submission validation over the object store and catalog
	checker := validate.NewCollectionChecker(cat, cfg.CollectionTTL)
	validator := validate.NewValidator(objects, checker, schemas)

	// Discovery workflow scheduler client
	workflows := workflow.New(cfg.WorkflowURL, cfg.WorkflowDAG, cfg.WorkflowToken)

	// Dataset publisher with array-store introspection for zarr sources
	publisher := publish.New(cat, schemas, validator, workflows, zarr.NewIntrospector(objects))

	// JWKS client for bearer-token validation; when no explicit endpoint is
	// configured the mux derives one from the issuer
	var jwksClient *jwks.Client
	if cfg.JWKSURL != "" {
		jwksClient = jwks.NewClient(cfg.JWKSURL)
	}

	// Create HTTP mux with all handlers and middleware
	mux := server.NewMux(store, validator, publisher, workflows, jwksClient,
		cfg.JWTIssuer, cfg.JWTAudience, cfg.CORSAllowedOrigins)

	// Create HTTP server with timeout configuration
	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Start server in a separate goroutine
	go func() {
		logger.Info("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Handle graceful shutdown
	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
		os.Exit(1)
	}

	// Stop the loader before its stores close underneath it
	stopRunner()

	// Close PostgreSQL storage if used
	if pg, ok := records.(interface{ Close() }); ok {
		pg.Close()
	}

	// Note: pub.Close() and feed.Close() are deferred above
	logger.Info("server exited")
}
