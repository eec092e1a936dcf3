package pipeline

import (
	"testing"

	"geoetl/internal/staging"
)

func cols(names ...string) []staging.Column {
	out := make([]staging.Column, len(names))
	for i, n := range names {
		out[i] = staging.Column{Name: n, Type: "DOUBLE"}
	}
	return out
}

func TestBestCandidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		columns []staging.Column
		vocab   []string
		want    string
		wantOK  bool
	}{
		{
			name:    "exact beats substring",
			columns: cols("pickup_longitude", "lon"),
			vocab:   xVocabulary,
			want:    "lon",
			wantOK:  true,
		},
		{
			name:    "case insensitive beats substring",
			columns: cols("start_lat", "Latitude"),
			vocab:   yVocabulary,
			want:    "Latitude",
			wantOK:  true,
		},
		{
			name:    "vocabulary order breaks same-strength ties",
			columns: cols("x", "lon"),
			vocab:   xVocabulary,
			want:    "lon",
			wantOK:  true,
		},
		{
			name:    "declaration order breaks exact ties",
			columns: cols("pickup_lat", "dropoff_lat"),
			vocab:   yVocabulary,
			want:    "pickup_lat",
			wantOK:  true,
		},
		{
			name:    "single letter never matched by substring",
			columns: cols("taxonomy", "fax"),
			vocab:   xVocabulary,
			wantOK:  false,
		},
		{
			name:    "easting matched for x",
			columns: cols("easting", "northing"),
			vocab:   xVocabulary,
			want:    "easting",
			wantOK:  true,
		},
		{
			name:    "no candidate",
			columns: cols("id", "name", "height"),
			vocab:   xVocabulary,
			wantOK:  false,
		},
		{
			name: "geometry columns excluded",
			columns: []staging.Column{
				{Name: "lon", Type: "GEOMETRY"},
				{Name: "id", Type: "BIGINT"},
			},
			vocab:  xVocabulary,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := bestCandidate(tt.columns, tt.vocab)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Fatalf("candidate = %q, want %q", got, tt.want)
			}
		})
	}
}
