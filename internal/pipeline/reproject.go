package pipeline

import (
	"context"

	"geoetl/internal/engine"
	"geoetl/internal/pipeerr"
	"geoetl/internal/staging"
)

// reproject normalizes every geometry column with a known, non-canonical
// source CRS to the canonical one. Each transformed column layers one more
// view; with several geometry columns the views chain, and the returned
// relation is the last link. Columns whose CRS is unknown or already
// canonical pass through untouched.
func reproject(ctx context.Context, eng engine.Engine, rel staging.Relation, geoms []staging.GeometryColumn) (staging.Relation, []staging.GeometryColumn, error) {
	current := rel
	step := 0

	out := make([]staging.GeometryColumn, len(geoms))
	for i, g := range geoms {
		out[i] = g
		if !g.Source.Known() || g.Source.IsCanonical() {
			continue
		}

		step++
		dst := reprojRelation(step)
		if err := eng.Reproject(ctx, current.Name, dst, g.Name, g.Source, staging.Canonical); err != nil {
			return staging.Relation{}, nil, pipeerr.Wrap(pipeerr.CRSTransformFailure, stageReproject, err,
				"reproject %q from %s to %s", g.Name, g.Source, staging.Canonical)
		}
		current = staging.Relation{Name: dst, Columns: current.Columns}
		out[i].Source = staging.Canonical
	}

	return current, out, nil
}
