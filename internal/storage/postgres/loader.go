package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"geoetl/internal/config"
	"geoetl/internal/geom"
	"geoetl/internal/pipeerr"
	"geoetl/internal/staging"
	"geoetl/internal/storage"
)

/*
Loader implements storage.Repository for PostgreSQL/PostGIS.

It provides:
  - schema creation (CREATE SCHEMA IF NOT EXISTS)
  - table replacement (DROP + CREATE with geometry(Kind,SRID) columns)
  - batched parameterized inserts with per-row geometry fault recovery

Commit granularity is an explicit configuration choice: per-batch (each batch
is its own transaction; a failure partway leaves earlier batches durable) or
single-tx (atomic whole load, more memory/log pressure).
*/
type Loader struct {
	pool   *pgxpool.Pool
	batch  int
	policy string
}

const stage = "load"

// New creates a PostgreSQL-backed Loader and verifies the destination is
// reachable before any pipeline work depends on it.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, pipeerr.Wrap(pipeerr.ConnectionError, stage, err, "destination configuration rejected")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, pipeerr.Wrap(pipeerr.ConnectionError, stage, err, "destination unreachable")
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = config.DefaultBatchSize
	}
	policy := cfg.CommitPolicy
	if policy == "" {
		policy = config.CommitPerBatch
	}
	return &Loader{pool: pool, batch: batch, policy: policy}, nil
}

// Close closes the connection pool.
func (l *Loader) Close() { l.pool.Close() }

// execer is the subset of pgxpool.Pool and pgx.Tx the write path needs, so
// both commit policies run through the same code.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (commandTag, error)
}

// commandTag narrows what we use from pgconn.CommandTag so the pool
// and tx adapters below stay trivial.
type commandTag interface {
	RowsAffected() int64
}

type poolExecer struct{ pool *pgxpool.Pool }

func (p poolExecer) Exec(ctx context.Context, sql string, args ...any) (commandTag, error) {
	tag, err := p.pool.Exec(ctx, sql, args...)
	return tag, err
}

type txExecer struct{ tx pgx.Tx }

func (t txExecer) Exec(ctx context.Context, sql string, args ...any) (commandTag, error) {
	tag, err := t.tx.Exec(ctx, sql, args...)
	return tag, err
}

// Load replaces the destination table and writes the streamed rows.
func (l *Loader) Load(ctx context.Context, spec storage.TargetTableSpec, stream storage.RowStream) (*storage.LoadSummary, error) {
	if err := l.prepareTable(ctx, spec); err != nil {
		return nil, err
	}

	var ex execer = poolExecer{pool: l.pool}
	var tx pgx.Tx
	if l.policy == config.CommitSingleTx {
		var err error
		tx, err = l.pool.Begin(ctx)
		if err != nil {
			return nil, pipeerr.Wrap(pipeerr.ConnectionError, stage, err, "begin transaction")
		}
		defer tx.Rollback(ctx)
		ex = txExecer{tx: tx}
	}

	sum := &storage.LoadSummary{
		Schema:          spec.Schema,
		Table:           spec.Table,
		PrimaryGeometry: spec.PrimaryGeometry,
	}

	err := stream(ctx, l.batch, func(batch [][]any) error {
		rows, faults := convertBatch(spec, batch, sum.RowsAttempted)
		sum.RowsAttempted += int64(len(batch))
		sum.Faults = append(sum.Faults, faults...)
		sum.RowsSkipped += int64(len(faults))

		if len(rows) == 0 {
			return nil
		}
		sql, args := buildInsertSQL(spec, rows)
		tag, err := ex.Exec(ctx, sql, args...)
		if err != nil {
			// Anything the destination rejects at this point is a
			// schema-mapping defect, not a data-quality issue: geometry was
			// already validated client-side.
			return pipeerr.Wrap(pipeerr.SchemaViolation, stage, err,
				"destination rejected batch for %s", qualifiedName(spec))
		}
		sum.RowsWritten += tag.RowsAffected()
		return nil
	})
	if err != nil {
		return nil, err
	}

	if tx != nil {
		if err := tx.Commit(ctx); err != nil {
			return nil, pipeerr.Wrap(pipeerr.ConnectionError, stage, err, "commit load")
		}
	}
	return sum, nil
}

// prepareTable creates the schema if absent and replaces the table. Replace
// semantics keep re-runs idempotent: two runs with the same input produce
// identical tables.
func (l *Loader) prepareTable(ctx context.Context, spec storage.TargetTableSpec) error {
	schemaSQL, dropSQL, createSQL, err := buildCreateSQL(spec)
	if err != nil {
		return pipeerr.Wrap(pipeerr.TableCreationError, stage, err, "build DDL for %s", qualifiedName(spec))
	}
	for _, q := range []string{schemaSQL, dropSQL, createSQL} {
		if _, err := l.pool.Exec(ctx, q); err != nil {
			return pipeerr.Wrap(pipeerr.TableCreationError, stage, err, "ddl rejected for %s", qualifiedName(spec))
		}
	}
	return nil
}

// convertBatch prepares a batch for insertion: geometry cells are parsed
// from WKT and re-encoded as hex EWKB with the column's SRID. A row whose
// geometry fails to parse is dropped from the batch and recorded as a fault
// with its absolute row index. This is ordinary error accumulation, not
// control flow: the batch loop never aborts for a row fault.
func convertBatch(spec storage.TargetTableSpec, batch [][]any, startRow int64) ([][]any, []storage.RowFault) {
	rows := make([][]any, 0, len(batch))
	var faults []storage.RowFault

	for i, in := range batch {
		row := make([]any, len(spec.Columns))
		copy(row, in)

		ok := true
		for j, c := range spec.Columns {
			if !c.Geometry {
				continue
			}
			text, isNull := wktText(in[j])
			if isNull {
				row[j] = nil
				continue
			}
			encoded, err := geom.EncodeWKT(text, c.SRID)
			if err != nil {
				faults = append(faults, storage.RowFault{
					Row:    startRow + int64(i),
					Reason: fmt.Sprintf("column %s: %v", c.Name, err),
				})
				ok = false
				break
			}
			row[j] = encoded
		}
		if ok {
			rows = append(rows, row)
		}
	}
	return rows, faults
}

// wktText normalizes a streamed geometry cell to its text form.
func wktText(v any) (text string, isNull bool) {
	switch t := v.(type) {
	case nil:
		return "", true
	case string:
		return t, false
	case []byte:
		return string(t), false
	default:
		return fmt.Sprint(t), false
	}
}

// buildInsertSQL constructs a single multi-row INSERT statement and its args.
//
// Why this exists:
//   - It is pure and deterministic, so placeholder numbering and geometry
//     casts can be unit tested without a database.
func buildInsertSQL(spec storage.TargetTableSpec, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(qualifiedName(spec))
	b.WriteString(" (")

	for i, c := range spec.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c.Name))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(spec.Columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j, c := range spec.Columns {
			if j > 0 {
				b.WriteString(", ")
			}
			if c.Geometry {
				// Hex EWKB arrives as text; the cast keeps the parameter
				// type unambiguous for the server.
				fmt.Fprintf(&b, "$%d::geometry", p)
			} else {
				fmt.Fprintf(&b, "$%d", p)
			}
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}
	b.WriteString(";")
	return b.String(), args
}

// buildCreateSQL generates the DDL for one load:
//   - schemaSQL: CREATE SCHEMA IF NOT EXISTS
//   - dropSQL:   DROP TABLE IF EXISTS (replace semantics)
//   - createSQL: CREATE TABLE with geometry(Kind,SRID) columns
func buildCreateSQL(spec storage.TargetTableSpec) (schemaSQL, dropSQL, createSQL string, err error) {
	if strings.TrimSpace(spec.Schema) == "" || strings.TrimSpace(spec.Table) == "" {
		return "", "", "", fmt.Errorf("schema and table are required")
	}
	if len(spec.Columns) == 0 {
		return "", "", "", fmt.Errorf("table %s: no columns", qualifiedName(spec))
	}

	schemaSQL = fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s;", pgIdent(spec.Schema))
	dropSQL = fmt.Sprintf("DROP TABLE IF EXISTS %s;", qualifiedName(spec))

	cols := make([]string, 0, len(spec.Columns))
	for _, c := range spec.Columns {
		def, derr := buildColumnDef(c)
		if derr != nil {
			return "", "", "", fmt.Errorf("table %s: %w", qualifiedName(spec), derr)
		}
		cols = append(cols, def)
	}
	createSQL = fmt.Sprintf("CREATE TABLE %s (%s);", qualifiedName(spec), strings.Join(cols, ", "))
	return schemaSQL, dropSQL, createSQL, nil
}

// buildColumnDef renders a single column definition. Geometry columns carry
// the typmod constraint so the destination enforces kind and SRID.
func buildColumnDef(c storage.ColumnSpec) (string, error) {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return "", fmt.Errorf("column name must be set")
	}

	var b strings.Builder
	b.WriteString(pgIdent(name))
	b.WriteString(" ")

	if c.Geometry {
		kind := c.GeometryKind
		if kind == "" {
			kind = "Geometry"
		}
		srid := c.SRID
		if srid == 0 {
			srid = staging.CanonicalSRID
		}
		fmt.Fprintf(&b, "geometry(%s,%d)", kind, srid)
	} else {
		typ := strings.TrimSpace(c.Type)
		if typ == "" {
			return "", fmt.Errorf("column %s: type must be set", name)
		}
		b.WriteString(typ)
	}

	if !c.Nullable {
		b.WriteString(" NOT NULL")
	}
	return b.String(), nil
}

func qualifiedName(spec storage.TargetTableSpec) string {
	return pgIdent(spec.Schema) + "." + pgIdent(spec.Table)
}

// pgIdent quotes a PostgreSQL identifier, doubling embedded quotes.
func pgIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
