// Package geoetl loads one geospatial file into one PostGIS table.
//
// The input format is detected from content, the file is staged in an
// embedded analytic engine, geometry is found or synthesized from
// coordinate columns, reprojected to WGS84, and written out in batches.
// Rows whose geometry fails to parse are skipped and reported; every other
// failure aborts with a typed error (see KindOf).
//
// Minimal use:
//
//	sum, err := geoetl.Process(ctx, geoetl.Options{
//		Path:   "parcels.gpkg",
//		Table:  "parcels",
//		Schema: "public",
//		DSN:    "postgres://geo:$GEO_PASSWORD@db:5432/gis",
//	})
package geoetl

import (
	"context"
	"log"

	"geoetl/internal/config"
	"geoetl/internal/metrics"
	"geoetl/internal/pipeerr"
	"geoetl/internal/pipeline"
	"geoetl/internal/storage"

	// register the destination backend with the storage factory.
	_ "geoetl/internal/storage/postgres"
)

// Options configures one load. See internal/config for field semantics.
type Options = config.Options

// LoadSummary reports what a successful run wrote and skipped.
type LoadSummary = storage.LoadSummary

// RowFault is one skipped row on a summary.
type RowFault = storage.RowFault

// ErrorKind classifies a failed run.
type ErrorKind = pipeerr.Kind

// The failure kinds Process can return.
const (
	ErrUnsupportedFormat      = pipeerr.UnsupportedFormat
	ErrMissingBundleComponent = pipeerr.MissingBundleComponent
	ErrEmptyDataset           = pipeerr.EmptyDataset
	ErrIngestFailure          = pipeerr.IngestFailure
	ErrNoGeometryColumn       = pipeerr.NoGeometryColumn
	ErrUnsupportedColumnType  = pipeerr.UnsupportedColumnType
	ErrCRSTransformFailure    = pipeerr.CRSTransformFailure
	ErrConnection             = pipeerr.ConnectionError
	ErrTableCreation          = pipeerr.TableCreationError
	ErrSchemaViolation        = pipeerr.SchemaViolation
)

// KindOf extracts the failure kind from an error returned by Process. It
// returns the empty kind for nil and for errors from outside the pipeline.
func KindOf(err error) ErrorKind { return pipeerr.KindOf(err) }

// Commit policies and the default batch size, re-exported for callers that
// build Options programmatically.
const (
	CommitPerBatch   = config.CommitPerBatch
	CommitSingleTx   = config.CommitSingleTx
	DefaultBatchSize = config.DefaultBatchSize
)

// Process runs the full pipeline with the default engine and destination.
// Environment variables in the DSN are expanded before connecting.
func Process(ctx context.Context, opts Options) (*LoadSummary, error) {
	return pipeline.NewDefault().Run(ctx, opts)
}

// MetricsBackend receives run measurements (see internal/metrics and its
// datadog subpackage for implementations).
type MetricsBackend = metrics.Backend

// ProcessWith is Process with an explicit metrics backend and logger, for
// callers embedding the loader in a larger service. Either may be nil.
func ProcessWith(ctx context.Context, opts Options, m MetricsBackend, logger *log.Logger) (*LoadSummary, error) {
	p := pipeline.NewDefault()
	if m != nil {
		p.Metrics = m
	}
	p.Log = logger
	return p.Run(ctx, opts)
}
