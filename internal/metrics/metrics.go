// Package metrics defines the minimal metrics seam the pipeline emits to.
//
// The pipeline depends only on Backend; concrete backends live in
// subpackages and are selected by the caller. The default is Nop so library
// use never requires a metrics account.
package metrics

import "context"

// Backend receives pipeline measurements.
type Backend interface {
	// IncCounter adds value to a counter.
	IncCounter(name string, value float64, tags []string)
	// ObserveHistogram records one observation (e.g. a stage duration in
	// seconds).
	ObserveHistogram(name string, value float64, tags []string)
	// Close flushes and releases the backend. Call once at the end of a run.
	Close(ctx context.Context) error
}

// Nop is the default backend: it discards everything.
type Nop struct{}

func (Nop) IncCounter(string, float64, []string)       {}
func (Nop) ObserveHistogram(string, float64, []string) {}
func (Nop) Close(context.Context) error                { return nil }
