package storage

import (
	"context"
	"fmt"
	"sync"
)

// Config is the minimal configuration needed to create a destination
// repository.
//
// When to use:
//   - Use Config when constructing a Repository via New.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is
//     backend-specific.
//
// Errors:
//   - New returns an error if Kind is empty or unsupported.
type Config struct {
	Kind string
	DSN  string

	// BatchSize is the write batch size. The backend treats 0 as its own
	// default.
	BatchSize int
	// CommitPolicy selects per-batch commits or one transaction for the
	// whole load (config.CommitPerBatch / config.CommitSingleTx).
	CommitPolicy string
}

// Repository is the backend-agnostic destination interface.
//
// IMPORTANT: This interface is intentionally minimal and focused on the one
// operation the pipeline needs: replace-and-load a table described by a
// TargetTableSpec from a sequential row stream. Each backend implements the
// semantics in its own idiomatic way.
type Repository interface {
	// Close releases backend resources (connections, prepared statements).
	//
	// Edge cases:
	//   - Callers should treat Close as "call once" at the end of the run.
	Close()

	// Load creates the destination schema if absent, replaces the
	// destination table per spec, and writes every streamed row in batches.
	//
	// Row-level geometry faults are skipped and recorded on the returned
	// summary; any other write failure aborts the load with a typed error.
	Load(ctx context.Context, spec TargetTableSpec, stream RowStream) (*LoadSummary, error)
}

// RowStream delivers the final relation's rows in sequential batches of
// batchSize. Column order matches the TargetTableSpec; geometry values arrive
// as WKT text. fn returning an error stops the stream.
type RowStream func(ctx context.Context, batchSize int, fn func(batch [][]any) error) error

// ---- backend factories (mirrors the engine seam) ----

type factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a destination backend under a kind (e.g. "postgres").
//
// When to use:
//   - Call Register from an init() function in a backend package.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered. This is intentional to fail fast and
//     avoid ambiguous backend selection.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// New constructs a Repository using the registered backend factory.
//
// Concurrency:
//   - Safe for concurrent use with Register. New takes a read lock while
//     selecting the factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing Kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
