package pipeline

import (
	"testing"

	"geoetl/internal/pipeerr"
	"geoetl/internal/staging"
)

func TestMapScalarType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"BIGINT", "bigint", true},
		{"bigint", "bigint", true},
		{"  VARCHAR  ", "text", true},
		{"DOUBLE", "double precision", true},
		{"HUGEINT", "numeric", true},
		{"UBIGINT", "numeric", true},
		{"DECIMAL(12,4)", "numeric(12,4)", true},
		{"DECIMAL(12, 4)", "numeric(12,4)", true},
		{"DECIMAL", "numeric", true},
		{"TIMESTAMP WITH TIME ZONE", "timestamptz", true},
		{"UUID", "uuid", true},
		{"JSON", "jsonb", true},
		{"LIST(INTEGER)", "", false},
		{"STRUCT(a INTEGER)", "", false},
		{"GEOMETRY", "", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, ok := mapScalarType(tt.in)
			if ok != tt.wantOK {
				t.Fatalf("mapScalarType(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Fatalf("mapScalarType(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestBuildTargetSpec(t *testing.T) {
	t.Parallel()

	rel := staging.Relation{
		Name: "final",
		Columns: []staging.Column{
			{Name: "id", Type: "BIGINT"},
			{Name: "name", Type: "VARCHAR", Nullable: true},
			{Name: "boundary", Type: "GEOMETRY", Nullable: true},
			{Name: "centroid", Type: "GEOMETRY", Nullable: true},
		},
	}
	geoms := []staging.GeometryColumn{
		{Name: "boundary", Kind: "MultiPolygon", SRID: staging.CanonicalSRID},
		{Name: "centroid", Kind: "Point", SRID: staging.CanonicalSRID},
	}

	spec, err := buildTargetSpec("gis", "parcels", rel, geoms)
	if err != nil {
		t.Fatalf("buildTargetSpec: %v", err)
	}

	if spec.Schema != "gis" || spec.Table != "parcels" {
		t.Fatalf("target = %s.%s, want gis.parcels", spec.Schema, spec.Table)
	}
	if len(spec.Columns) != 4 {
		t.Fatalf("len(Columns) = %d, want 4", len(spec.Columns))
	}
	if spec.PrimaryGeometry != "boundary" {
		t.Fatalf("PrimaryGeometry = %q, want %q (first declared)", spec.PrimaryGeometry, "boundary")
	}

	if c := spec.Columns[0]; c.Type != "bigint" || c.Geometry {
		t.Fatalf("id column = %+v, want scalar bigint", c)
	}
	if c := spec.Columns[2]; !c.Geometry || c.GeometryKind != "MultiPolygon" || c.SRID != staging.CanonicalSRID {
		t.Fatalf("boundary column = %+v, want MultiPolygon geometry", c)
	}
	if c := spec.Columns[3]; !c.Geometry || c.GeometryKind != "Point" {
		t.Fatalf("centroid column = %+v, want Point geometry", c)
	}
}

func TestBuildTargetSpecUnsupportedType(t *testing.T) {
	t.Parallel()

	rel := staging.Relation{
		Name: "final",
		Columns: []staging.Column{
			{Name: "geom", Type: "GEOMETRY"},
			{Name: "tags", Type: "MAP(VARCHAR, VARCHAR)"},
		},
	}
	geoms := []staging.GeometryColumn{{Name: "geom", Kind: "Point", SRID: staging.CanonicalSRID}}

	_, err := buildTargetSpec("gis", "pois", rel, geoms)
	if err == nil {
		t.Fatal("expected error for unmappable column type")
	}
	if kind := pipeerr.KindOf(err); kind != pipeerr.UnsupportedColumnType {
		t.Fatalf("kind = %q, want %q", kind, pipeerr.UnsupportedColumnType)
	}
}
