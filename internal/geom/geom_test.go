package geom

import (
	"strings"
	"testing"
)

func TestEncodeWKT(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		wkt     string
		srid    int
		prefix  string
		wantErr bool
	}{
		{
			name:   "point with srid stamp",
			wkt:    "POINT (11 52)",
			srid:   4326,
			prefix: "0101000020e6100000",
		},
		{
			name:   "surrounding whitespace tolerated",
			wkt:    "  POINT (11 52)  ",
			srid:   4326,
			prefix: "0101000020e6100000",
		},
		{
			name:   "multipolygon",
			wkt:    "MULTIPOLYGON (((0 0, 1 0, 1 1, 0 0)))",
			srid:   4326,
			prefix: "0106000020e6100000",
		},
		{name: "empty value", wkt: "", wantErr: true},
		{name: "truncated coordinates", wkt: "POINT (13.4)", wantErr: true},
		{name: "not wkt at all", wkt: "{\"type\":\"Point\"}", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := EncodeWKT(tt.wkt, tt.srid)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("EncodeWKT(%q) succeeded, want error", tt.wkt)
				}
				return
			}
			if err != nil {
				t.Fatalf("EncodeWKT(%q): %v", tt.wkt, err)
			}
			if !strings.HasPrefix(got, tt.prefix) {
				t.Fatalf("EncodeWKT(%q) = %q, want prefix %q", tt.wkt, got, tt.prefix)
			}
		})
	}
}

func TestResolveKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		observed []string
		want     string
	}{
		{"single point", []string{"POINT"}, "Point"},
		{"single multipolygon", []string{"MULTIPOLYGON"}, "MultiPolygon"},
		{"lowercase engine spelling", []string{"linestring"}, "LineString"},
		{"mixed kinds collapse", []string{"POINT", "POLYGON"}, "Geometry"},
		{"empty column", nil, "Geometry"},
		{"unrecognized spelling", []string{"CURVEPOLYGON"}, "Geometry"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ResolveKind(tt.observed); got != tt.want {
				t.Fatalf("ResolveKind(%v) = %q, want %q", tt.observed, got, tt.want)
			}
		})
	}
}
