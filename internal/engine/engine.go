// Package engine defines the capability boundary to the embedded analytic
// engine.
//
// IMPORTANT: The pipeline treats the engine purely as a capability provider:
// per-format readers, schema enumeration, and a spatial transform. All format
// parsing and projection math stays behind this interface; nothing here is
// reimplemented in the pipeline. A test double implementing Engine with
// synthetic relations is sufficient to unit-test every stage without a real
// engine or database.
package engine

import (
	"context"
	"strings"

	"geoetl/internal/sniff"
	"geoetl/internal/staging"
)

// Engine is the minimal set of operations the pipeline needs from the
// embedded engine. One Engine instance corresponds to one engine session and
// is owned exclusively by a single pipeline run.
type Engine interface {
	// Close tears down the engine session, releasing every staging relation
	// created during the run.
	Close() error

	// ReadFile materializes the source file into the staging relation rel
	// using the engine's native reader for the descriptor's format.
	ReadFile(ctx context.Context, src sniff.FileDescriptor, rel string) error

	// Describe enumerates the relation's columns in declaration order.
	Describe(ctx context.Context, rel string) ([]staging.Column, error)

	// RowCount returns the relation's row count.
	RowCount(ctx context.Context, rel string) (int64, error)

	// LayerCRS reads the spatial reference declared by the source file's
	// layer metadata. A zero CRS means the source declares none.
	LayerCRS(ctx context.Context, path string) (staging.CRS, error)

	// DerivePoint produces dst from src with an added point-geometry column
	// geomCol built from the numeric columns xCol and yCol.
	DerivePoint(ctx context.Context, src, dst, xCol, yCol, geomCol string) error

	// Reproject produces dst from src with geomCol replaced in place by its
	// reprojection from the source CRS to the target CRS.
	Reproject(ctx context.Context, src, dst, geomCol string, from, to staging.CRS) error

	// GeometryKinds returns the distinct geometry type names present in a
	// geometry column, engine-spelled (e.g. "POINT", "MULTIPOLYGON").
	GeometryKinds(ctx context.Context, rel, geomCol string) ([]string, error)

	// StreamRows reads the relation in fixed-size batches, invoking fn once
	// per batch. Geometry columns are delivered as their WKT text form.
	// Batches are sequential; fn returning an error stops the stream.
	StreamRows(ctx context.Context, rel string, cols []staging.Column, batchSize int, fn func(batch [][]any) error) error
}

// Ident quotes a SQL identifier with double quotes, doubling any embedded
// quote. Shared by the engine implementations; the destination backend quotes
// with its own helper.
func Ident(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Lit quotes a SQL string literal with single quotes, doubling any embedded
// quote. Used only for values that cannot be bound as parameters, such as
// file paths inside table-function calls.
func Lit(s string) string {
	return `'` + strings.ReplaceAll(s, `'`, `''`) + `'`
}
