// Package pipeerr defines the typed failure taxonomy for the ingestion
// pipeline.
//
// Every stage-level failure is surfaced to the caller as an *Error carrying:
//   - Kind: which class of failure occurred (closed enumeration below)
//   - Stage: which pipeline stage raised it
//   - a wrapped cause, when one exists
//
// Design constraints:
//   - Stage failures abort the run; there is no downgrade to a warning.
//   - Per-row geometry faults at write time are NOT errors in this taxonomy.
//     They are recorded on the load summary instead, because they describe a
//     data-quality property of individual rows rather than a structural
//     defect of the run.
package pipeerr

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	// UnsupportedFormat: the sniffer could not classify the input file.
	UnsupportedFormat Kind = "unsupported_format"
	// MissingBundleComponent: a multi-file format is incomplete.
	MissingBundleComponent Kind = "missing_bundle_component"
	// EmptyDataset: the staged relation holds zero data rows.
	EmptyDataset Kind = "empty_dataset"
	// IngestFailure: the embedded engine's reader rejected the file.
	IngestFailure Kind = "ingest_failure"
	// NoGeometryColumn: no geometry column present or inferable.
	NoGeometryColumn Kind = "no_geometry_column"
	// UnsupportedColumnType: an engine type has no destination mapping.
	UnsupportedColumnType Kind = "unsupported_column_type"
	// CRSTransformFailure: reprojection of a geometry column failed.
	CRSTransformFailure Kind = "crs_transform_failure"
	// ConnectionError: destination unreachable or authentication failed.
	ConnectionError Kind = "connection_error"
	// TableCreationError: destination DDL was rejected.
	TableCreationError Kind = "table_creation_error"
	// SchemaViolation: a non-geometry value was rejected by the destination.
	// Fatal, since it indicates a schema-mapping defect, not bad data.
	SchemaViolation Kind = "schema_violation"
)

// Error is the stage-level pipeline failure type.
type Error struct {
	Kind  Kind
	Stage string
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Stage, e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Stage, e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a stage failure without an underlying cause.
func New(kind Kind, stage, format string, args ...any) *Error {
	return &Error{Kind: kind, Stage: stage, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds a stage failure around an underlying cause. The cause remains
// reachable via errors.Unwrap so callers keep the engine/driver message.
func Wrap(kind Kind, stage string, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Stage: stage, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the failure kind from an error chain. It returns the empty
// Kind when err is nil or not a pipeline failure.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
