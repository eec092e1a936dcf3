// Package duckdb implements the engine capability interface on an in-memory
// DuckDB session with the spatial extension loaded.
//
// The pipeline never parses geospatial formats itself: every reader call here
// dispatches to one of DuckDB's native table functions (st_read, read_csv,
// read_parquet, read_xlsx), and the spatial transform is ST_Transform. This
// package therefore holds SQL, not format logic.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/marcboeker/go-duckdb/v2"

	"geoetl/internal/engine"
	"geoetl/internal/sniff"
	"geoetl/internal/staging"
)

// Engine is a single in-memory DuckDB session. It is not safe for concurrent
// use; the pipeline drives it sequentially, one stage at a time.
type Engine struct {
	db *sql.DB
}

// Open starts an in-memory session and loads the spatial extension. The
// excel extension is loaded lazily, only when a spreadsheet is read.
func Open(ctx context.Context) (*Engine, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("duckdb: open: %w", err)
	}

	for _, stmt := range []string{"INSTALL spatial;", "LOAD spatial;"} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("duckdb: %s %w", stmt, err)
		}
	}
	return &Engine{db: db}, nil
}

func (e *Engine) Close() error { return e.db.Close() }

// ReadFile materializes the source into a staging table named rel using the
// native reader matching the descriptor's format.
func (e *Engine) ReadFile(ctx context.Context, src sniff.FileDescriptor, rel string) error {
	var from string
	switch src.Format {
	case sniff.FormatGeoPackage, sniff.FormatGeoJSON:
		from = fmt.Sprintf("st_read(%s)", engine.Lit(src.Path))

	case sniff.FormatShapefile:
		path := src.Path
		if src.Zipped {
			member, err := sniff.ShapefileZipMember(src.Path)
			if err != nil {
				return fmt.Errorf("duckdb: locate .shp member: %w", err)
			}
			path = "/vsizip/" + src.Path + "/" + member
		}
		from = fmt.Sprintf("st_read(%s)", engine.Lit(path))

	case sniff.FormatSpreadsheet:
		for _, stmt := range []string{"INSTALL excel;", "LOAD excel;"} {
			if _, err := e.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("duckdb: %s %w", stmt, err)
			}
		}
		from = fmt.Sprintf("read_xlsx(%s, header = true)", engine.Lit(src.Path))

	case sniff.FormatDelimited:
		delim := ","
		if src.Delimiter != 0 {
			delim = string(src.Delimiter)
		}
		from = fmt.Sprintf("read_csv(%s, header = true, delim = %s, ignore_errors = true)",
			engine.Lit(src.Path), engine.Lit(delim))

	case sniff.FormatParquet:
		from = fmt.Sprintf("read_parquet(%s)", engine.Lit(src.Path))

	default:
		return fmt.Errorf("duckdb: no reader for format %q", src.Format)
	}

	q := fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM %s;", engine.Ident(rel), from)
	if _, err := e.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("duckdb: read %s as %s: %w", src.Format, rel, err)
	}
	return nil
}

// Describe enumerates the relation's columns in declaration order.
//
// DuckDB reports geometry columns as GEOMETRY. Some container sources
// additionally deliver geometry as BLOB with a geometry-ish column name; we
// classify those as geometry too, except the well-known gdb_geomattr_data
// side-channel column, which is never a usable geometry.
func (e *Engine) Describe(ctx context.Context, rel string) ([]staging.Column, error) {
	const q = `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_name = ?
		ORDER BY ordinal_position`

	rows, err := e.db.QueryContext(ctx, q, rel)
	if err != nil {
		return nil, fmt.Errorf("duckdb: describe %s: %w", rel, err)
	}
	defer rows.Close()

	var cols []staging.Column
	for rows.Next() {
		var name, typ, nullable string
		if err := rows.Scan(&name, &typ, &nullable); err != nil {
			return nil, fmt.Errorf("duckdb: describe %s: scan: %w", rel, err)
		}
		typ = strings.ToUpper(strings.TrimSpace(typ))
		if isGeometryType(name, typ) {
			typ = "GEOMETRY"
		}
		cols = append(cols, staging.Column{
			Name:     name,
			Type:     typ,
			Nullable: strings.EqualFold(nullable, "YES"),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("duckdb: describe %s: %w", rel, err)
	}
	return cols, nil
}

func isGeometryType(name, typ string) bool {
	if typ == "GEOMETRY" {
		return true
	}
	if name == "gdb_geomattr_data" {
		return false
	}
	lower := strings.ToLower(name)
	return typ == "BLOB" && (strings.Contains(lower, "geom") || strings.Contains(lower, "geo"))
}

func (e *Engine) RowCount(ctx context.Context, rel string) (int64, error) {
	var n int64
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s;", engine.Ident(rel))
	if err := e.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("duckdb: count %s: %w", rel, err)
	}
	return n, nil
}

// LayerCRS reads the first layer's declared spatial reference via
// st_read_meta. A source that declares nothing yields the zero CRS.
func (e *Engine) LayerCRS(ctx context.Context, path string) (staging.CRS, error) {
	q := fmt.Sprintf(`
		SELECT layers[1].geometry_fields[1].crs.auth_name,
		       layers[1].geometry_fields[1].crs.auth_code
		FROM st_read_meta(%s);`, engine.Lit(path))

	var auth, code sql.NullString
	err := e.db.QueryRowContext(ctx, q).Scan(&auth, &code)
	if err == sql.ErrNoRows {
		return staging.CRS{}, nil
	}
	if err != nil {
		return staging.CRS{}, fmt.Errorf("duckdb: layer metadata for %q: %w", path, err)
	}
	if !auth.Valid || !code.Valid || auth.String == "" || code.String == "" {
		return staging.CRS{}, nil
	}
	return staging.CRS{Authority: auth.String, Code: code.String}, nil
}

// DerivePoint builds dst as src plus a point column from two numeric columns.
func (e *Engine) DerivePoint(ctx context.Context, src, dst, xCol, yCol, geomCol string) error {
	q := fmt.Sprintf(
		"CREATE VIEW %s AS SELECT *, ST_Point(CAST(%s AS DOUBLE), CAST(%s AS DOUBLE)) AS %s FROM %s;",
		engine.Ident(dst), engine.Ident(xCol), engine.Ident(yCol), engine.Ident(geomCol), engine.Ident(src))
	if _, err := e.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("duckdb: derive point %s from (%s, %s): %w", geomCol, xCol, yCol, err)
	}
	return nil
}

// Reproject builds dst as src with geomCol replaced by its reprojection.
// always_xy keeps axis order longitude/latitude regardless of the authority
// definition, matching what the destination expects.
func (e *Engine) Reproject(ctx context.Context, src, dst, geomCol string, from, to staging.CRS) error {
	q := fmt.Sprintf(
		"CREATE VIEW %s AS SELECT * REPLACE (ST_Transform(%s, %s, %s, always_xy := true) AS %s) FROM %s;",
		engine.Ident(dst), engine.Ident(geomCol),
		engine.Lit(from.String()), engine.Lit(to.String()),
		engine.Ident(geomCol), engine.Ident(src))
	if _, err := e.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("duckdb: reproject %s from %s to %s: %w", geomCol, from, to, err)
	}
	return nil
}

// GeometryKinds returns the distinct geometry type names found in the column.
func (e *Engine) GeometryKinds(ctx context.Context, rel, geomCol string) ([]string, error) {
	q := fmt.Sprintf(
		"SELECT DISTINCT CAST(ST_GeometryType(%s) AS VARCHAR) FROM %s WHERE %s IS NOT NULL ORDER BY 1;",
		engine.Ident(geomCol), engine.Ident(rel), engine.Ident(geomCol))

	rows, err := e.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("duckdb: geometry kinds of %s.%s: %w", rel, geomCol, err)
	}
	defer rows.Close()

	var kinds []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("duckdb: geometry kinds of %s.%s: scan: %w", rel, geomCol, err)
		}
		kinds = append(kinds, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("duckdb: geometry kinds of %s.%s: %w", rel, geomCol, err)
	}
	return kinds, nil
}

// StreamRows reads the relation sequentially in batches of batchSize rows.
// Geometry columns are serialized to WKT so the destination loader can
// validate and re-encode them without touching engine internals.
func (e *Engine) StreamRows(ctx context.Context, rel string, cols []staging.Column, batchSize int, fn func(batch [][]any) error) error {
	if batchSize <= 0 {
		return fmt.Errorf("duckdb: stream %s: batch size must be positive", rel)
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		if c.Type == "GEOMETRY" {
			fmt.Fprintf(&b, "ST_AsText(%s) AS %s", engine.Ident(c.Name), engine.Ident(c.Name))
		} else {
			b.WriteString(engine.Ident(c.Name))
		}
	}
	b.WriteString(" FROM ")
	b.WriteString(engine.Ident(rel))
	b.WriteString(";")

	rows, err := e.db.QueryContext(ctx, b.String())
	if err != nil {
		return fmt.Errorf("duckdb: stream %s: %w", rel, err)
	}
	defer rows.Close()

	batch := make([][]any, 0, batchSize)
	for rows.Next() {
		vals := make([]any, len(cols))
		dests := make([]any, len(cols))
		for i := range vals {
			dests[i] = &vals[i]
		}
		if err := rows.Scan(dests...); err != nil {
			return fmt.Errorf("duckdb: stream %s: scan: %w", rel, err)
		}
		batch = append(batch, vals)
		if len(batch) == batchSize {
			if err := fn(batch); err != nil {
				return err
			}
			batch = make([][]any, 0, batchSize)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("duckdb: stream %s: %w", rel, err)
	}
	if len(batch) > 0 {
		return fn(batch)
	}
	return nil
}
