// Package pipeline wires the ingestion stages end to end:
//
//	sniff -> ingest -> coords -> introspect -> reproject -> typemap -> load
//
// Each stage consumes the previous stage's staging relation and produces the
// next one by layering a view inside the embedded engine; row data is never
// copied between stages. The only full pass over the rows happens in the
// final load, streaming from the engine into the destination.
//
// Failure semantics: any stage failure aborts the run with a typed
// *pipeerr.Error. Per-row geometry faults at write time do not abort; they
// are skipped and reported on the returned summary.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"geoetl/internal/config"
	"geoetl/internal/engine"
	"geoetl/internal/engine/duckdb"
	"geoetl/internal/metrics"
	"geoetl/internal/pipeerr"
	"geoetl/internal/sniff"
	"geoetl/internal/staging"
	"geoetl/internal/storage"
)

// Stage names as they appear in errors, logs, and metric tags.
const (
	stageSniff      = "sniff"
	stageIngest     = "ingest"
	stageCoords     = "coords"
	stageIntrospect = "introspect"
	stageReproject  = "reproject"
	stageTypemap    = "typemap"
	stageLoad       = "load"
)

// Pipeline runs one file-to-table load. The function fields are factory
// seams: production code uses NewDefault, tests substitute doubles.
type Pipeline struct {
	// NewEngine opens an embedded engine session for the run.
	NewEngine func(ctx context.Context) (engine.Engine, error)

	// NewRepository constructs the destination backend (registry seam).
	NewRepository func(ctx context.Context, cfg storage.Config) (storage.Repository, error)

	// Metrics receives per-stage durations and row counters. Never nil
	// after NewDefault; zero-value callers get Nop via Run.
	Metrics metrics.Backend

	// Log receives progress lines. Nil means the standard logger.
	Log *log.Logger
}

// NewDefault returns a Pipeline wired to the real engine and the registered
// destination backends, with metrics discarded.
func NewDefault() *Pipeline {
	return &Pipeline{
		NewEngine: func(ctx context.Context) (engine.Engine, error) {
			return duckdb.Open(ctx)
		},
		NewRepository: storage.New,
		Metrics:       metrics.Nop{},
	}
}

// Run executes the full pipeline for one source file.
//
// Edge cases:
//   - Zero data rows fail with EmptyDataset before the destination is
//     touched.
//   - A relation with no geometry column and no recognizable coordinate
//     pair fails with NoGeometryColumn.
//   - Unknown source CRS does not abort: the geometry loads untransformed
//     with a caveat on the summary's Notes.
func (p *Pipeline) Run(ctx context.Context, opts config.Options) (*storage.LoadSummary, error) {
	if issues := config.Validate(opts); config.HasError(issues) {
		return nil, fmt.Errorf("invalid options: %s", formatIssues(issues))
	}
	opts = config.WithDefaults(opts)
	if p.Metrics == nil {
		p.Metrics = metrics.Nop{}
	}

	// Sniff. Pure file inspection, no engine needed yet.
	start := time.Now()
	fd, err := sniff.Detect(opts.Path)
	if err != nil {
		if errors.Is(err, sniff.ErrUnsupported) {
			return nil, pipeerr.Wrap(pipeerr.UnsupportedFormat, stageSniff, err,
				"cannot classify %q", opts.Path)
		}
		return nil, pipeerr.Wrap(pipeerr.IngestFailure, stageSniff, err,
			"cannot read %q", opts.Path)
	}
	p.observe(stageSniff, start)
	p.logf("sniff: %s classified as %s (%s)", fd.Path, fd.Format, fd.Confidence)

	eng, err := p.NewEngine(ctx)
	if err != nil {
		return nil, pipeerr.Wrap(pipeerr.IngestFailure, stageIngest, err, "open engine")
	}
	defer eng.Close()

	// Ingest.
	start = time.Now()
	rel, err := ingest(ctx, eng, fd)
	if err != nil {
		return nil, err
	}
	p.observe(stageIngest, start)
	p.logf("ingest: staged schema: %s", schemaString(rel.Columns))

	// Coordinate pair detection. Only consulted when the reader produced no
	// geometry column of its own.
	var notes []string
	synthesized := false
	if len(rel.GeometryColumns()) == 0 {
		start = time.Now()
		derived, note, ok, err := deriveGeometry(ctx, eng, rel)
		if err != nil {
			return nil, err
		}
		p.observe(stageCoords, start)
		if ok {
			rel = derived
			notes = append(notes, note)
			synthesized = true
			p.logf("coords: %s", note)
		}
	}

	// Introspect.
	start = time.Now()
	geoms, crsNotes, err := introspect(ctx, eng, fd, rel, synthesized)
	if err != nil {
		return nil, err
	}
	notes = append(notes, crsNotes...)
	p.observe(stageIntrospect, start)
	for _, g := range geoms {
		p.logf("introspect: column %q kind=%s crs=%s", g.Name, g.Kind, g.Source)
	}

	// Reproject.
	start = time.Now()
	rel, geoms, err = reproject(ctx, eng, rel, geoms)
	if err != nil {
		return nil, err
	}
	p.observe(stageReproject, start)

	// Type mapping.
	start = time.Now()
	spec, err := buildTargetSpec(opts.Schema, opts.Table, rel, geoms)
	if err != nil {
		return nil, err
	}
	p.observe(stageTypemap, start)

	// Load.
	start = time.Now()
	repo, err := p.NewRepository(ctx, storage.Config{
		Kind:         "postgres",
		DSN:          os.ExpandEnv(opts.DSN),
		BatchSize:    opts.BatchSize,
		CommitPolicy: opts.CommitPolicy,
	})
	if err != nil {
		return nil, err
	}
	defer repo.Close()

	stream := func(ctx context.Context, batchSize int, fn func(batch [][]any) error) error {
		return eng.StreamRows(ctx, rel.Name, rel.Columns, batchSize, fn)
	}
	sum, err := repo.Load(ctx, spec, stream)
	if err != nil {
		p.Metrics.IncCounter("geoetl.load.failure", 1, formatTags(opts, fd))
		return nil, err
	}
	sum.Notes = append(notes, sum.Notes...)
	p.observe(stageLoad, start)

	tags := formatTags(opts, fd)
	p.Metrics.IncCounter("geoetl.load.success", 1, tags)
	p.Metrics.IncCounter("geoetl.rows.written", float64(sum.RowsWritten), tags)
	p.Metrics.IncCounter("geoetl.rows.skipped", float64(sum.RowsSkipped), tags)
	p.logf("load: %d written, %d skipped into %s.%s",
		sum.RowsWritten, sum.RowsSkipped, sum.Schema, sum.Table)
	return sum, nil
}

func (p *Pipeline) observe(stage string, start time.Time) {
	p.Metrics.ObserveHistogram("geoetl.stage.duration_seconds",
		time.Since(start).Seconds(), []string{"stage:" + stage})
}

func (p *Pipeline) logf(format string, args ...any) {
	if p.Log != nil {
		p.Log.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

func formatTags(opts config.Options, fd sniff.FileDescriptor) []string {
	return []string{
		"format:" + fd.Format.String(),
		"table:" + opts.Table,
	}
}

func formatIssues(issues []config.Issue) string {
	s := ""
	for _, iss := range issues {
		if iss.Severity != config.SeverityError {
			continue
		}
		if s != "" {
			s += "; "
		}
		s += iss.Path + ": " + iss.Message
	}
	return s
}

// relation names used by the stages. Fixed names are fine: one engine
// session belongs to exactly one run.
const (
	rawRelation    = "raw_data"
	pointsRelation = "staged_points"
)

func reprojRelation(n int) string { return fmt.Sprintf("reprojected_%d", n) }

func schemaString(cols []staging.Column) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = c.Name + " " + c.Type
	}
	return strings.Join(parts, ", ")
}
