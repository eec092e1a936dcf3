// Package geom converts between the geometry encodings the pipeline moves
// through: the engine hands geometry out as WKT text, and the destination
// expects EWKB with an SRID stamp.
//
// Parsing happens client-side on purpose: a value that fails to parse here is
// exactly the per-row geometry fault the loader skips and records, without a
// database round trip discovering it for us.
package geom

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/ewkb"
	"github.com/paulmach/orb/encoding/wkt"
)

// EncodeWKT parses a WKT value and re-encodes it as hex EWKB carrying srid.
// PostGIS accepts the hex form directly as geometry input.
func EncodeWKT(text string, srid int) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty geometry value")
	}
	g, err := wkt.Unmarshal(text)
	if err != nil {
		return "", fmt.Errorf("parse wkt: %w", err)
	}
	b, err := ewkb.Marshal(g, srid)
	if err != nil {
		return "", fmt.Errorf("encode ewkb: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Kind returns the PostGIS-style type name for a geometry value.
func Kind(g orb.Geometry) string {
	switch g.(type) {
	case orb.Point:
		return "Point"
	case orb.LineString:
		return "LineString"
	case orb.Polygon:
		return "Polygon"
	case orb.MultiPoint:
		return "MultiPoint"
	case orb.MultiLineString:
		return "MultiLineString"
	case orb.MultiPolygon:
		return "MultiPolygon"
	case orb.Collection:
		return "GeometryCollection"
	default:
		return "Geometry"
	}
}

// engineKinds maps engine-spelled geometry type names to PostGIS-style names.
var engineKinds = map[string]string{
	"POINT":              "Point",
	"LINESTRING":         "LineString",
	"POLYGON":            "Polygon",
	"MULTIPOINT":         "MultiPoint",
	"MULTILINESTRING":    "MultiLineString",
	"MULTIPOLYGON":       "MultiPolygon",
	"GEOMETRYCOLLECTION": "GeometryCollection",
}

// KindFromEngine normalizes one engine type name. Unrecognized spellings
// collapse to "Geometry", the unconstrained column type.
func KindFromEngine(k string) string {
	if mapped, ok := engineKinds[strings.ToUpper(strings.TrimSpace(k))]; ok {
		return mapped
	}
	return "Geometry"
}

// ResolveKind collapses the distinct type names observed in a column to a
// single destination type: one observed kind keeps it, anything else (empty
// column, mixed kinds) falls back to the unconstrained "Geometry".
func ResolveKind(observed []string) string {
	if len(observed) == 1 {
		return KindFromEngine(observed[0])
	}
	return "Geometry"
}
