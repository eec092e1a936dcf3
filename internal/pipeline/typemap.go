package pipeline

import (
	"regexp"
	"strings"

	"geoetl/internal/pipeerr"
	"geoetl/internal/staging"
	"geoetl/internal/storage"
)

// scalarTypes maps engine scalar type names to destination types. Closed on
// purpose: a type missing here fails the run instead of guessing, because a
// wrong guess silently corrupts the destination column.
var scalarTypes = map[string]string{
	"BOOLEAN":  "boolean",
	"TINYINT":  "smallint",
	"SMALLINT": "smallint",
	"INTEGER":  "integer",
	"BIGINT":   "bigint",
	// The engine's 128-bit and unsigned widths have no native destination
	// counterpart; numeric preserves the values exactly.
	"HUGEINT":   "numeric",
	"UTINYINT":  "smallint",
	"USMALLINT": "integer",
	"UINTEGER":  "bigint",
	"UBIGINT":   "numeric",

	"FLOAT":  "real",
	"REAL":   "real",
	"DOUBLE": "double precision",

	"VARCHAR": "text",
	"UUID":    "uuid",
	"JSON":    "jsonb",
	"BLOB":    "bytea",

	"DATE":                     "date",
	"TIME":                     "time",
	"TIMESTAMP":                "timestamp",
	"DATETIME":                 "timestamp",
	"TIMESTAMP WITH TIME ZONE": "timestamptz",
	"TIMESTAMPTZ":              "timestamptz",
	"INTERVAL":                 "interval",
}

// decimalPattern captures precision and scale of parameterized decimals.
var decimalPattern = regexp.MustCompile(`^DECIMAL\((\d+),\s*(\d+)\)$`)

// mapScalarType translates one engine type name to the destination type.
func mapScalarType(engineType string) (string, bool) {
	t := strings.ToUpper(strings.TrimSpace(engineType))
	if pg, ok := scalarTypes[t]; ok {
		return pg, true
	}
	if m := decimalPattern.FindStringSubmatch(t); m != nil {
		return "numeric(" + m[1] + "," + m[2] + ")", true
	}
	if t == "DECIMAL" {
		return "numeric", true
	}
	return "", false
}

// buildTargetSpec turns the final relation's schema into the destination
// table spec. Column order is preserved; the first-declared geometry column
// becomes the primary one.
func buildTargetSpec(schema, table string, rel staging.Relation, geoms []staging.GeometryColumn) (storage.TargetTableSpec, error) {
	if len(geoms) == 0 {
		return storage.TargetTableSpec{}, pipeerr.New(pipeerr.NoGeometryColumn, stageTypemap,
			"no geometry column present or inferable among columns %s", columnNames(rel.Columns))
	}

	byName := make(map[string]staging.GeometryColumn, len(geoms))
	for _, g := range geoms {
		byName[g.Name] = g
	}

	spec := storage.TargetTableSpec{
		Schema:  schema,
		Table:   table,
		Columns: make([]storage.ColumnSpec, 0, len(rel.Columns)),
	}

	for _, c := range rel.Columns {
		if g, ok := byName[c.Name]; ok {
			spec.Columns = append(spec.Columns, storage.ColumnSpec{
				Name:         c.Name,
				Nullable:     c.Nullable,
				Geometry:     true,
				GeometryKind: g.Kind,
				SRID:         g.SRID,
			})
			if spec.PrimaryGeometry == "" {
				spec.PrimaryGeometry = c.Name
			}
			continue
		}

		pg, ok := mapScalarType(c.Type)
		if !ok {
			return storage.TargetTableSpec{}, pipeerr.New(pipeerr.UnsupportedColumnType, stageTypemap,
				"column %q has engine type %q with no destination mapping", c.Name, c.Type)
		}
		spec.Columns = append(spec.Columns, storage.ColumnSpec{
			Name:     c.Name,
			Type:     pg,
			Nullable: c.Nullable,
		})
	}

	return spec, nil
}
