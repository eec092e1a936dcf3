// Shared relation and CRS types live here so stage code, the engine
// implementations, and the destination backends can all import them without
// circular deps.
package staging

// CanonicalSRID is the SRID every geometry is normalized to before loading.
const CanonicalSRID = 4326

// Canonical is the fixed target reference system (WGS84 geographic).
var Canonical = CRS{Authority: "EPSG", Code: "4326"}

// CRS identifies a coordinate reference system by authority and code.
// The zero value means "unknown": the source declared nothing usable.
type CRS struct {
	Authority string
	Code      string
}

// Known reports whether the CRS was actually determined rather than absent.
func (c CRS) Known() bool { return c.Authority != "" && c.Code != "" }

// IsCanonical reports whether the CRS already is the canonical target.
func (c CRS) IsCanonical() bool { return c == Canonical }

func (c CRS) String() string {
	if !c.Known() {
		return "unknown"
	}
	return c.Authority + ":" + c.Code
}

// Column describes one column of a staging relation.
type Column struct {
	Name     string
	Type     string // engine type name, upper case (e.g. "BIGINT", "GEOMETRY")
	Nullable bool
}

// Relation is an opaque handle into the embedded engine: a queryable view
// name plus its ordered column descriptors. Stages replace the active
// Relation value rather than mutating columns in place.
type Relation struct {
	Name    string
	Columns []Column
}

// GeometryColumns returns the geometry-typed columns in declaration order.
func (r Relation) GeometryColumns() []Column {
	var out []Column
	for _, c := range r.Columns {
		if c.Type == "GEOMETRY" {
			out = append(out, c)
		}
	}
	return out
}

// Column returns the descriptor for name and whether it exists.
func (r Relation) Column(name string) (Column, bool) {
	for _, c := range r.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// GeometryColumn carries everything the type mapper and destination loader
// need to know about one geometry column of the final relation.
type GeometryColumn struct {
	Name string
	// Kind is the resolved PostGIS-style geometry type name ("Point",
	// "MultiPolygon", ...). "Geometry" means mixed or undetermined.
	Kind   string
	Source CRS
	SRID   int
	// Synthesized marks columns built from a coordinate pair rather than
	// read from the source file. Their CRS is assumed, not detected.
	Synthesized bool
}
