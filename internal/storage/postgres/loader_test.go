package postgres

import (
	"fmt"
	"strings"
	"testing"

	"geoetl/internal/storage"
)

func pointSpec() storage.TargetTableSpec {
	return storage.TargetTableSpec{
		Schema: "public",
		Table:  "places",
		Columns: []storage.ColumnSpec{
			{Name: "id", Type: "bigint"},
			{Name: "name", Type: "text", Nullable: true},
			{Name: "geom", Geometry: true, GeometryKind: "Point", SRID: 4326, Nullable: true},
		},
		PrimaryGeometry: "geom",
	}
}

func TestBuildCreateSQL(t *testing.T) {
	t.Parallel()

	schemaSQL, dropSQL, createSQL, err := buildCreateSQL(pointSpec())
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}

	if want := `CREATE SCHEMA IF NOT EXISTS "public";`; schemaSQL != want {
		t.Fatalf("schemaSQL = %q, want %q", schemaSQL, want)
	}
	if want := `DROP TABLE IF EXISTS "public"."places";`; dropSQL != want {
		t.Fatalf("dropSQL = %q, want %q", dropSQL, want)
	}
	want := `CREATE TABLE "public"."places" ("id" bigint NOT NULL, "name" text, "geom" geometry(Point,4326));`
	if createSQL != want {
		t.Fatalf("createSQL = %q, want %q", createSQL, want)
	}
}

func TestBuildCreateSQLValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		spec storage.TargetTableSpec
	}{
		{"missing table", storage.TargetTableSpec{Schema: "public"}},
		{"missing schema", storage.TargetTableSpec{Table: "places"}},
		{"no columns", storage.TargetTableSpec{Schema: "public", Table: "places"}},
		{
			"scalar without type",
			storage.TargetTableSpec{
				Schema:  "public",
				Table:   "places",
				Columns: []storage.ColumnSpec{{Name: "id"}},
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, _, _, err := buildCreateSQL(tt.spec); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestBuildColumnDefGeometryDefaults(t *testing.T) {
	t.Parallel()

	// Empty kind and SRID collapse to the unconstrained canonical geometry.
	def, err := buildColumnDef(storage.ColumnSpec{Name: "shape", Geometry: true, Nullable: true})
	if err != nil {
		t.Fatalf("buildColumnDef: %v", err)
	}
	if want := `"shape" geometry(Geometry,4326)`; def != want {
		t.Fatalf("def = %q, want %q", def, want)
	}
}

func TestBuildInsertSQL(t *testing.T) {
	t.Parallel()

	rows := [][]any{
		{int64(1), "berlin", "0101000020E610000000000000000026400000000000204A40"},
		{int64(2), "paris", nil},
	}
	sql, args := buildInsertSQL(pointSpec(), rows)

	want := `INSERT INTO "public"."places" ("id", "name", "geom") VALUES ` +
		`($1, $2, $3::geometry), ($4, $5, $6::geometry);`
	if sql != want {
		t.Fatalf("sql = %q, want %q", sql, want)
	}
	if len(args) != 6 {
		t.Fatalf("len(args) = %d, want 6", len(args))
	}
	if args[3] != int64(2) || args[5] != nil {
		t.Fatalf("args = %v, wrong row flattening", args)
	}
}

func TestConvertBatchEncodesGeometry(t *testing.T) {
	t.Parallel()

	rows, faults := convertBatch(pointSpec(), [][]any{
		{int64(1), "berlin", "POINT (13.4 52.5)"},
		{int64(2), "nowhere", nil},
	}, 0)

	if len(faults) != 0 {
		t.Fatalf("faults = %v, want none", faults)
	}
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}

	encoded, ok := rows[0][2].(string)
	if !ok || encoded == "" {
		t.Fatalf("geometry cell = %v, want hex EWKB string", rows[0][2])
	}
	// Little-endian EWKB point with an SRID stamp, lowercase hex.
	if !strings.HasPrefix(encoded, "0101000020e6100000") {
		t.Fatalf("encoded = %q, want EWKB point header with SRID 4326", encoded)
	}
	if rows[1][2] != nil {
		t.Fatalf("null geometry = %v, want nil passthrough", rows[1][2])
	}
}

func TestConvertBatchSkipsCorruptGeometry(t *testing.T) {
	t.Parallel()

	// One corrupt value deep inside a large batch: only that row is
	// dropped, and its fault carries the absolute index.
	const total = 1000
	const bad = 500
	batch := make([][]any, total)
	for i := range batch {
		g := fmt.Sprintf("POINT (%d %d)", i%180, i%90)
		if i == bad {
			g = "POINT (13.4)"
		}
		batch[i] = []any{int64(i), "row", g}
	}

	rows, faults := convertBatch(pointSpec(), batch, 2000)

	if len(rows) != total-1 {
		t.Fatalf("len(rows) = %d, want %d", len(rows), total-1)
	}
	if len(faults) != 1 {
		t.Fatalf("faults = %v, want exactly one", faults)
	}
	if faults[0].Row != 2000+bad {
		t.Fatalf("fault row = %d, want %d", faults[0].Row, 2000+bad)
	}
	if !strings.Contains(faults[0].Reason, "geom") {
		t.Fatalf("fault reason %q does not name the column", faults[0].Reason)
	}
}

func TestPgIdentQuoting(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"plain", `"plain"`},
		{"Mixed Case", `"Mixed Case"`},
		{`with"quote`, `"with""quote"`},
	}
	for _, tt := range tests {
		if got := pgIdent(tt.in); got != tt.want {
			t.Fatalf("pgIdent(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
