// The TargetTableSpec types live in a place both the pipeline and the
// backend packages can import without circular deps.
package storage

// TargetTableSpec describes the destination table: where it lives and its
// ordered column definitions. Built once from the final staging relation's
// schema and used for both table creation and row mapping during the write
// phase.
type TargetTableSpec struct {
	Schema string
	Table  string
	// Columns in destination declaration order, matching the order rows are
	// streamed in.
	Columns []ColumnSpec
	// PrimaryGeometry names the geometry column designated as primary when
	// the relation carries more than one (first-declared wins).
	PrimaryGeometry string
}

// ColumnSpec is one destination column definition.
type ColumnSpec struct {
	Name string
	// Type is the destination scalar type (e.g. "bigint", "text"). Unused
	// for geometry columns, whose DDL is derived from GeometryKind and SRID.
	Type     string
	Nullable bool

	Geometry bool
	// GeometryKind is the PostGIS type name ("Point", "MultiPolygon",
	// "Geometry" for mixed/unknown). Set only when Geometry is true.
	GeometryKind string
	// SRID is always the canonical SRID by the time a spec reaches the
	// loader; no geometry arrives un-normalized.
	SRID int
}

// GeometryColumns returns the geometry column specs in declaration order.
func (t TargetTableSpec) GeometryColumns() []ColumnSpec {
	var out []ColumnSpec
	for _, c := range t.Columns {
		if c.Geometry {
			out = append(out, c)
		}
	}
	return out
}

// RowFault records one skipped row: its zero-based index in the source
// stream and the reason the geometry value was rejected.
type RowFault struct {
	Row    int64  `json:"row"`
	Reason string `json:"reason"`
}

// LoadSummary is the caller-visible result of a successful run.
//
// A nonzero skip count still counts as success: geometry faults are a
// data-quality property of individual rows, and the caller gets the full
// list to act on.
type LoadSummary struct {
	RowsAttempted int64      `json:"rows_attempted"`
	RowsWritten   int64      `json:"rows_written"`
	RowsSkipped   int64      `json:"rows_skipped"`
	Faults        []RowFault `json:"faults,omitempty"`

	// Notes carries run caveats, e.g. an unverified-CRS assumption.
	Notes []string `json:"notes,omitempty"`

	Schema string `json:"schema"`
	Table  string `json:"table"`
	// PrimaryGeometry is the designated primary geometry column.
	PrimaryGeometry string `json:"primary_geometry,omitempty"`
}
