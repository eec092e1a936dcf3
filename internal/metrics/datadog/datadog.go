// Package datadog implements a Datadog backend for the internal/metrics
// package.
//
// Loads are usually short-lived, so the backend buffers in memory and
// submits twice: periodically on a ticker (long loads still produce a time
// series) and one final time on Close. If the process dies with SIGKILL,
// Close won't run; no backend can fix that.
//
// Concurrency model:
//   - pipeline code may call IncCounter/ObserveHistogram at any time
//   - Flush snapshots and resets the buffer under a mutex, then submits
//     out-of-lock
//   - the flush loop calls Flush periodically; Close stops the loop
package datadog

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

// Options controls Datadog backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>" on every metric. Defaults to "geoetl".
	JobName string

	// Tags are extra Datadog tags (e.g. []string{"env:prod"}).
	Tags []string

	// FlushEvery controls how often buffered metrics are submitted.
	// If <= 0, defaults to 60 seconds.
	FlushEvery time.Duration

	// Unexported test seams. Production code never sets them; unit tests set
	// them to avoid real submission and nondeterministic clocks.
	now       func() time.Time
	submitter metricsSubmitter
}

// metricsSubmitter is the minimal interface needed to submit metrics.
//
// The Datadog SDK exposes a concrete *datadogV2.MetricsApi, which cannot be
// stubbed without real HTTP. Backend depends on this interface instead.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api      metricsSubmitter
	ctx      context.Context
	baseTags []string
	now      func() time.Time

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}

	mu      sync.Mutex
	counts  map[string]float64  // series key -> running sum
	tags    map[string][]string // series key -> tags as given
	names   map[string]string   // series key -> metric name
	samples []sample
}

type sample struct {
	name  string
	value float64
	tags  []string
	at    time.Time
}

// New creates a Datadog backend. DD_API_KEY (and optionally DD_SITE) must be
// set in the environment; that is the SDK's own convention.
func New(opts Options) (*Backend, error) {
	if opts.submitter == nil && os.Getenv("DD_API_KEY") == "" {
		return nil, fmt.Errorf("datadog: DD_API_KEY is not set")
	}

	job := opts.JobName
	if job == "" {
		job = "geoetl"
	}
	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}
	now := opts.now
	if now == nil {
		now = time.Now
	}

	api := opts.submitter
	ctx := dd.NewDefaultContext(context.Background())
	if api == nil {
		client := dd.NewAPIClient(dd.NewConfiguration())
		api = datadogV2.NewMetricsApi(client)
	}

	b := &Backend{
		api:        api,
		ctx:        ctx,
		baseTags:   append([]string{"job:" + job}, opts.Tags...),
		now:        now,
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		counts:     map[string]float64{},
		tags:       map[string][]string{},
		names:      map[string]string{},
	}
	go b.flushLoop()
	return b, nil
}

func (b *Backend) IncCounter(name string, value float64, tags []string) {
	key := seriesKey(name, tags)
	b.mu.Lock()
	b.counts[key] += value
	b.names[key] = name
	b.tags[key] = tags
	b.mu.Unlock()
}

func (b *Backend) ObserveHistogram(name string, value float64, tags []string) {
	b.mu.Lock()
	b.samples = append(b.samples, sample{name: name, value: value, tags: tags, at: b.now()})
	b.mu.Unlock()
}

func (b *Backend) flushLoop() {
	defer close(b.doneCh)
	t := time.NewTicker(b.flushEvery)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			_ = b.Flush(b.ctx)
		case <-b.stopCh:
			return
		}
	}
}

// Flush submits the buffered metrics and resets the buffer. Submission
// errors are returned but leave the backend usable; the next flush simply
// carries newer data.
func (b *Backend) Flush(ctx context.Context) error {
	b.mu.Lock()
	counts := b.counts
	names := b.names
	tags := b.tags
	samples := b.samples
	b.counts = map[string]float64{}
	b.names = map[string]string{}
	b.tags = map[string][]string{}
	b.samples = nil
	b.mu.Unlock()

	at := b.now().Unix()
	var out []datadogV2.MetricSeries

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, datadogV2.MetricSeries{
			Metric: names[k],
			Type:   datadogV2.METRICINTAKETYPE_COUNT.Ptr(),
			Tags:   b.allTags(tags[k]),
			Points: []datadogV2.MetricPoint{{
				Timestamp: dd.PtrInt64(at),
				Value:     dd.PtrFloat64(counts[k]),
			}},
		})
	}
	for _, s := range samples {
		out = append(out, datadogV2.MetricSeries{
			Metric: s.name,
			Type:   datadogV2.METRICINTAKETYPE_GAUGE.Ptr(),
			Tags:   b.allTags(s.tags),
			Points: []datadogV2.MetricPoint{{
				Timestamp: dd.PtrInt64(s.at.Unix()),
				Value:     dd.PtrFloat64(s.value),
			}},
		})
	}
	if len(out) == 0 {
		return nil
	}

	if _, _, err := b.api.SubmitMetrics(ctx, datadogV2.MetricPayload{Series: out}); err != nil {
		return fmt.Errorf("datadog: submit metrics: %w", err)
	}
	return nil
}

// Close stops the flush loop and performs a final flush.
func (b *Backend) Close(ctx context.Context) error {
	close(b.stopCh)
	<-b.doneCh
	return b.Flush(ctx)
}

func (b *Backend) allTags(tags []string) []string {
	all := make([]string, 0, len(b.baseTags)+len(tags))
	all = append(all, b.baseTags...)
	all = append(all, tags...)
	return all
}

// ParseTagsCSV splits a comma-separated tag list ("env:prod,team:geo") into
// Datadog tags, dropping empty entries.
func ParseTagsCSV(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func seriesKey(name string, tags []string) string {
	if len(tags) == 0 {
		return name
	}
	sorted := append([]string(nil), tags...)
	sort.Strings(sorted)
	return name + "|" + strings.Join(sorted, ",")
}
