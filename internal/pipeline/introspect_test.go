package pipeline

import (
	"testing"

	"geoetl/internal/staging"
)

const webMercatorWKT = `PROJCS["WGS 84 / Pseudo-Mercator",GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4326"]],PROJECTION["Mercator_1SP"],PARAMETER["central_meridian",0],PARAMETER["scale_factor",1],PARAMETER["false_easting",0],PARAMETER["false_northing",0],UNIT["metre",1,AUTHORITY["EPSG","9001"]],AUTHORITY["EPSG","3857"]]`

func TestParsePrjWKT(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		wkt    string
		want   staging.CRS
		wantOK bool
	}{
		{
			// The last clause closes the outermost node; inner datum and
			// unit authorities must not win.
			name:   "projected system takes the outermost authority",
			wkt:    webMercatorWKT,
			want:   staging.CRS{Authority: "EPSG", Code: "3857"},
			wantOK: true,
		},
		{
			name:   "geographic wgs84",
			wkt:    `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433],AUTHORITY["EPSG","4326"]]`,
			want:   staging.Canonical,
			wantOK: true,
		},
		{
			name:   "whitespace inside the clause",
			wkt:    `GEOGCS["x",AUTHORITY [ "epsg" , "27700" ]]`,
			want:   staging.CRS{Authority: "EPSG", Code: "27700"},
			wantOK: true,
		},
		{
			name:   "no authority clause",
			wkt:    `GEOGCS["Custom",DATUM["Custom",SPHEROID["Custom",6378137,298.25]]]`,
			wantOK: false,
		},
		{
			name:   "empty",
			wkt:    "",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := parsePrjWKT(tt.wkt)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Fatalf("crs = %v, want %v", got, tt.want)
			}
		})
	}
}
