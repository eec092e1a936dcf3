package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"geoetl/internal/engine"
	"geoetl/internal/pipeerr"
	"geoetl/internal/sniff"
	"geoetl/internal/staging"
)

// ingest materializes the source file into the raw staging relation and
// returns its schema.
//
// Errors:
//   - MissingBundleComponent when a shapefile bundle lacks a component.
//   - IngestFailure when the engine's reader rejects the file.
//   - EmptyDataset when the staged relation holds zero data rows.
func ingest(ctx context.Context, eng engine.Engine, fd sniff.FileDescriptor) (staging.Relation, error) {
	if fd.Format == sniff.FormatShapefile {
		if err := verifyShapefileBundle(fd); err != nil {
			return staging.Relation{}, err
		}
	}

	if err := eng.ReadFile(ctx, fd, rawRelation); err != nil {
		return staging.Relation{}, pipeerr.Wrap(pipeerr.IngestFailure, stageIngest, err,
			"reader rejected %q (%s)", fd.Path, fd.Format)
	}

	cols, err := eng.Describe(ctx, rawRelation)
	if err != nil {
		return staging.Relation{}, pipeerr.Wrap(pipeerr.IngestFailure, stageIngest, err,
			"describe staged relation")
	}
	if len(cols) == 0 {
		return staging.Relation{}, pipeerr.New(pipeerr.IngestFailure, stageIngest,
			"staged relation has no columns")
	}

	n, err := eng.RowCount(ctx, rawRelation)
	if err != nil {
		return staging.Relation{}, pipeerr.Wrap(pipeerr.IngestFailure, stageIngest, err,
			"count staged rows")
	}
	if n == 0 {
		return staging.Relation{}, pipeerr.New(pipeerr.EmptyDataset, stageIngest,
			"%q parsed cleanly but holds no data rows", fd.Path)
	}

	return staging.Relation{Name: rawRelation, Columns: cols}, nil
}

// bundleRequired are the shapefile components that must accompany the .shp:
// .dbf carries the attributes, .shx the record index. .prj is optional and
// its absence surfaces later as an unknown CRS, not as an ingest error.
var bundleRequired = []string{".dbf", ".shx"}

// verifyShapefileBundle checks bundle completeness before the engine tries
// the read, so the caller gets a precise "which component is missing"
// failure instead of a generic reader error.
func verifyShapefileBundle(fd sniff.FileDescriptor) error {
	if fd.Zipped {
		return verifyZippedBundle(fd.Path)
	}

	base := strings.TrimSuffix(fd.Path, filepath.Ext(fd.Path))
	for _, ext := range bundleRequired {
		if _, err := os.Stat(base + ext); err != nil {
			return pipeerr.New(pipeerr.MissingBundleComponent, stageIngest,
				"shapefile bundle %q is missing its %s component", fd.Path, ext)
		}
	}
	return nil
}

func verifyZippedBundle(path string) error {
	member, err := sniff.ShapefileZipMember(path)
	if err != nil {
		return pipeerr.Wrap(pipeerr.MissingBundleComponent, stageIngest, err,
			"zipped bundle %q has no .shp member", path)
	}

	base := strings.TrimSuffix(member, filepath.Ext(member))
	for _, ext := range bundleRequired {
		ok, err := sniff.ZipHasMember(path, base+ext)
		if err != nil {
			return pipeerr.Wrap(pipeerr.IngestFailure, stageIngest, err,
				"inspect archive %q", path)
		}
		if !ok {
			return pipeerr.New(pipeerr.MissingBundleComponent, stageIngest,
				"zipped bundle %q is missing its %s component", path, ext)
		}
	}
	return nil
}
