package datadog

import (
	"context"
	"net/http"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

// captureSubmitter records every payload instead of talking to the API.
type captureSubmitter struct {
	mu       sync.Mutex
	payloads []datadogV2.MetricPayload
}

func (c *captureSubmitter) SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, body)
	return datadogV2.IntakePayloadAccepted{}, nil, nil
}

func (c *captureSubmitter) series() []datadogV2.MetricSeries {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []datadogV2.MetricSeries
	for _, p := range c.payloads {
		out = append(out, p.Series...)
	}
	return out
}

func newTestBackend(t *testing.T, sub *captureSubmitter) *Backend {
	t.Helper()
	fixed := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	b, err := New(Options{
		JobName:    "geoetl_test",
		Tags:       []string{"env:test"},
		FlushEvery: time.Hour, // keep the loop quiet; tests flush explicitly
		now:        func() time.Time { return fixed },
		submitter:  sub,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b
}

func TestBackendAggregatesCounters(t *testing.T) {
	t.Parallel()

	sub := &captureSubmitter{}
	b := newTestBackend(t, sub)

	b.IncCounter("geoetl.rows.written", 10, []string{"table:places"})
	b.IncCounter("geoetl.rows.written", 5, []string{"table:places"})
	b.IncCounter("geoetl.rows.written", 3, []string{"table:roads"})

	if err := b.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	series := sub.series()
	if len(series) != 2 {
		t.Fatalf("len(series) = %d, want 2 aggregated counters", len(series))
	}

	byTags := map[string]float64{}
	for _, s := range series {
		if s.Metric != "geoetl.rows.written" {
			t.Fatalf("metric = %q", s.Metric)
		}
		if got := s.GetType(); got != datadogV2.METRICINTAKETYPE_COUNT {
			t.Fatalf("type = %v, want COUNT", got)
		}
		wantTags := []string{"job:geoetl_test", "env:test"}
		if !reflect.DeepEqual(s.Tags[:2], wantTags) {
			t.Fatalf("tags = %v, want prefix %v", s.Tags, wantTags)
		}
		byTags[s.Tags[len(s.Tags)-1]] = s.Points[0].GetValue()
	}
	if byTags["table:places"] != 15 || byTags["table:roads"] != 3 {
		t.Fatalf("aggregated values = %v", byTags)
	}
}

func TestBackendHistogramSamples(t *testing.T) {
	t.Parallel()

	sub := &captureSubmitter{}
	b := newTestBackend(t, sub)

	b.ObserveHistogram("geoetl.stage.duration_seconds", 0.25, []string{"stage:sniff"})
	b.ObserveHistogram("geoetl.stage.duration_seconds", 1.5, []string{"stage:load"})

	if err := b.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	series := sub.series()
	if len(series) != 2 {
		t.Fatalf("len(series) = %d, want one gauge per observation", len(series))
	}
	for _, s := range series {
		if got := s.GetType(); got != datadogV2.METRICINTAKETYPE_GAUGE {
			t.Fatalf("type = %v, want GAUGE", got)
		}
	}
}

func TestBackendFlushResetsBuffer(t *testing.T) {
	t.Parallel()

	sub := &captureSubmitter{}
	b := newTestBackend(t, sub)

	b.IncCounter("geoetl.load.success", 1, nil)
	if err := b.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	// Nothing new buffered: Close must not resubmit the counter.
	if err := b.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if got := len(sub.series()); got != 1 {
		t.Fatalf("series submitted = %d, want 1", got)
	}
}

func TestParseTagsCSV(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"env:prod", []string{"env:prod"}},
		{"env:prod, team:geo ,", []string{"env:prod", "team:geo"}},
	}
	for _, tt := range tests {
		if got := ParseTagsCSV(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("ParseTagsCSV(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
