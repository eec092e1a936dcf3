package pipeline

import (
	"context"
	"fmt"
	"strings"

	"geoetl/internal/engine"
	"geoetl/internal/pipeerr"
	"geoetl/internal/staging"
)

// Coordinate vocabularies, strongest name first. The index into the slice is
// the candidate's vocabulary rank; lower wins.
var (
	xVocabulary = []string{"longitude", "lon", "lng", "x", "easting"}
	yVocabulary = []string{"latitude", "lat", "y", "northing"}
)

// Match strengths, from strongest to weakest. A stronger match on a later
// column beats a weaker match on an earlier one; within the same strength
// and vocabulary rank, the first-declared column wins.
const (
	matchExact = iota
	matchFold
	matchSubstring
	matchNone
)

// geomColumn is the name given to the synthesized point column. Chosen not
// to collide with attribute names in practice; a real collision surfaces as
// an engine error on the derive view.
const geomColumn = "geom"

// deriveGeometry finds a coordinate column pair by name and derives a
// point-geometry relation from it. Called only when the reader produced no
// geometry column. When no pair exists the relation passes through
// unchanged (ok=false); the type mapper later rejects it, not this stage.
// The returned note records the assumption the pair carries WGS84
// longitude/latitude; there is no metadata to verify it against.
func deriveGeometry(ctx context.Context, eng engine.Engine, rel staging.Relation) (out staging.Relation, note string, ok bool, err error) {
	xCol, xOK := bestCandidate(rel.Columns, xVocabulary)
	yCol, yOK := bestCandidate(rel.Columns, yVocabulary)
	if !xOK || !yOK || xCol == yCol {
		return rel, "", false, nil
	}

	if err := eng.DerivePoint(ctx, rel.Name, pointsRelation, xCol, yCol, geomColumn); err != nil {
		return staging.Relation{}, "", false, pipeerr.Wrap(pipeerr.IngestFailure, stageCoords, err,
			"derive point geometry from %q/%q", xCol, yCol)
	}

	cols, err := eng.Describe(ctx, pointsRelation)
	if err != nil {
		return staging.Relation{}, "", false, pipeerr.Wrap(pipeerr.IngestFailure, stageCoords, err,
			"describe derived relation")
	}

	note = fmt.Sprintf("geometry synthesized from columns %q/%q assuming EPSG:4326 longitude/latitude",
		xCol, yCol)
	return staging.Relation{Name: pointsRelation, Columns: cols}, note, true, nil
}

// bestCandidate picks the column matching the vocabulary best. Candidates
// are ordered by (match strength, vocabulary rank, declaration order).
func bestCandidate(cols []staging.Column, vocab []string) (string, bool) {
	bestName := ""
	bestStrength := matchNone
	bestRank := len(vocab)

	for _, c := range cols {
		if c.Type == "GEOMETRY" {
			continue
		}
		strength, rank := matchColumn(c.Name, vocab)
		if strength == matchNone {
			continue
		}
		if strength < bestStrength || (strength == bestStrength && rank < bestRank) {
			bestName = c.Name
			bestStrength = strength
			bestRank = rank
		}
	}
	return bestName, bestName != ""
}

// matchColumn scores one column name against a vocabulary. Substring
// matching is deliberately loose ("pickup_longitude" should match) but only
// applies to the word-like vocabulary entries; single letters would match
// nearly everything.
func matchColumn(name string, vocab []string) (strength, rank int) {
	folded := strings.ToLower(strings.TrimSpace(name))
	for i, v := range vocab {
		if name == v {
			return matchExact, i
		}
		if folded == v {
			return matchFold, i
		}
		if len(v) > 1 && strings.Contains(folded, v) {
			return matchSubstring, i
		}
	}
	return matchNone, len(vocab)
}

func columnNames(cols []staging.Column) string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return "[" + strings.Join(names, ", ") + "]"
}
