package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"geoetl/internal/engine"
	"geoetl/internal/geom"
	"geoetl/internal/pipeerr"
	"geoetl/internal/sniff"
	"geoetl/internal/staging"
)

// introspect resolves, for every geometry column of the relation, its
// source CRS and its geometry kind.
//
// CRS resolution order:
//  1. synthesized columns carry the assumed canonical CRS by construction
//  2. the layer metadata the engine's reader exposes
//  3. for shapefiles, the bundle's .prj well-known text
//  4. GeoJSON without declared CRS defaults to the canonical CRS per its
//     modern specification
//  5. otherwise unknown, which is a caveat, not a failure
func introspect(ctx context.Context, eng engine.Engine, fd sniff.FileDescriptor, rel staging.Relation, synthesized bool) ([]staging.GeometryColumn, []string, error) {
	gcols := rel.GeometryColumns()
	if len(gcols) == 0 {
		// Nothing spatial to introspect; the type mapper rejects the
		// relation, not this stage.
		return nil, nil, nil
	}

	var source staging.CRS
	if synthesized {
		source = staging.Canonical
	} else {
		source = resolveCRS(ctx, eng, fd)
	}

	var notes []string
	if !source.Known() {
		notes = append(notes, fmt.Sprintf(
			"source CRS could not be determined; geometry loaded untransformed and stamped EPSG:%d",
			staging.CanonicalSRID))
	}

	out := make([]staging.GeometryColumn, 0, len(gcols))
	for _, c := range gcols {
		kinds, err := eng.GeometryKinds(ctx, rel.Name, c.Name)
		if err != nil {
			return nil, nil, pipeerr.Wrap(pipeerr.IngestFailure, stageIntrospect, err,
				"inspect geometry kinds of %q", c.Name)
		}
		out = append(out, staging.GeometryColumn{
			Name:        c.Name,
			Kind:        geom.ResolveKind(kinds),
			Source:      source,
			SRID:        staging.CanonicalSRID,
			Synthesized: synthesized,
		})
	}
	return out, notes, nil
}

func resolveCRS(ctx context.Context, eng engine.Engine, fd sniff.FileDescriptor) staging.CRS {
	// Zipped bundles skip the engine metadata call: the .prj member is
	// authoritative and avoids rebuilding the archive-internal read path.
	if !(fd.Format == sniff.FormatShapefile && fd.Zipped) {
		if crs, err := eng.LayerCRS(ctx, fd.Path); err == nil && crs.Known() {
			return crs
		}
	}

	if fd.Format == sniff.FormatShapefile {
		if crs, ok := shapefileCRS(fd); ok {
			return crs
		}
	}

	// GeoJSON dropped per-file CRS declarations; coordinates are WGS84.
	if fd.Format == sniff.FormatGeoJSON {
		return staging.Canonical
	}

	return staging.CRS{}
}

// shapefileCRS reads the bundle's .prj and extracts the EPSG code from its
// well-known text.
func shapefileCRS(fd sniff.FileDescriptor) (staging.CRS, bool) {
	var wkt []byte

	if fd.Zipped {
		member, err := sniff.ShapefileZipMember(fd.Path)
		if err != nil {
			return staging.CRS{}, false
		}
		prj := strings.TrimSuffix(member, filepath.Ext(member)) + ".prj"
		wkt, err = sniff.ReadZipMember(fd.Path, prj)
		if err != nil {
			return staging.CRS{}, false
		}
	} else {
		prj := strings.TrimSuffix(fd.Path, filepath.Ext(fd.Path)) + ".prj"
		var err error
		wkt, err = os.ReadFile(prj)
		if err != nil {
			return staging.CRS{}, false
		}
	}

	return parsePrjWKT(string(wkt))
}

// authorityPattern matches AUTHORITY["EPSG","4326"] clauses in projection
// well-known text, tolerating whitespace and either quote placement.
var authorityPattern = regexp.MustCompile(`AUTHORITY\s*\[\s*"([^"]+)"\s*,\s*"?(\d+)"?\s*\]`)

// parsePrjWKT extracts the outermost coordinate system's authority code. The
// WKT nests one AUTHORITY clause per component (datum, spheroid, unit, ...);
// the clause closing the outermost node is written last, so the last match
// identifies the system itself.
func parsePrjWKT(wkt string) (staging.CRS, bool) {
	matches := authorityPattern.FindAllStringSubmatch(wkt, -1)
	if len(matches) == 0 {
		return staging.CRS{}, false
	}
	last := matches[len(matches)-1]
	return staging.CRS{Authority: strings.ToUpper(last[1]), Code: last[2]}, true
}
