// Package sniff classifies an input file's format from its content.
//
// Classification order:
//  1. binary signatures over a bounded byte prefix (magic numbers)
//  2. text heuristics (GeoJSON markers, then delimited-text consistency)
//  3. failure (ErrUnsupported)
//
// The file extension is never the sole determinant. It is consulted only to
// tie-break files that match more than one loose signature, e.g. a zip-based
// spreadsheet versus a zipped shapefile bundle.
//
// Detect performs a read-only prefix scan; it never writes and never parses
// the file beyond what classification needs.
package sniff

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Format is the closed enumeration of supported input formats.
type Format int

const (
	FormatUnknown Format = iota
	// FormatGeoPackage is the SQLite-based point-vector container.
	FormatGeoPackage
	// FormatShapefile is a shapefile bundle, either loose sibling files or a
	// single zip archive containing the components.
	FormatShapefile
	// FormatGeoJSON is structured-geometry text.
	FormatGeoJSON
	// FormatSpreadsheet covers both zip-based (xlsx) and CFB (xls) workbooks.
	FormatSpreadsheet
	// FormatDelimited is delimited text with a header row.
	FormatDelimited
	// FormatParquet is the columnar table format.
	FormatParquet
)

func (f Format) String() string {
	switch f {
	case FormatGeoPackage:
		return "geopackage"
	case FormatShapefile:
		return "shapefile"
	case FormatGeoJSON:
		return "geojson"
	case FormatSpreadsheet:
		return "spreadsheet"
	case FormatDelimited:
		return "delimited"
	case FormatParquet:
		return "parquet"
	default:
		return "unknown"
	}
}

// Confidence records how the classification was reached.
type Confidence int

const (
	// ConfidenceMagic: an unambiguous binary signature matched.
	ConfidenceMagic Confidence = iota
	// ConfidenceContent: text heuristics over the prefix matched.
	ConfidenceContent
	// ConfidenceExtension: the extension tie-broke multiple loose signatures.
	ConfidenceExtension
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceMagic:
		return "magic"
	case ConfidenceContent:
		return "content"
	default:
		return "extension"
	}
}

// FileDescriptor is the sniffer's classification result. It is created once
// per invocation and is immutable afterwards.
type FileDescriptor struct {
	Path       string
	Format     Format
	Confidence Confidence
	// Delimiter is set only for FormatDelimited.
	Delimiter rune
	// Zipped is set for shapefile bundles delivered as a single zip archive.
	Zipped bool
}

// ErrUnsupported is wrapped into every classification failure.
var ErrUnsupported = errors.New("unsupported or unrecognized file format")

// prefixLen bounds how much of the file the sniffer reads. Large enough to
// see the first zip local-header names, small enough to stay cheap.
const prefixLen = 4096

// textSampleLen bounds the sample used for the text heuristics.
const textSampleLen = 64 * 1024

// Detect classifies the file at path. The returned descriptor carries the
// absolute path.
func Detect(path string) (FileDescriptor, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return FileDescriptor{}, fmt.Errorf("sniff: resolve path %q: %w", path, err)
	}

	f, err := os.Open(abs)
	if err != nil {
		return FileDescriptor{}, fmt.Errorf("sniff: open %q: %w", abs, err)
	}
	defer f.Close()

	prefix := make([]byte, prefixLen)
	n, err := io.ReadFull(f, prefix)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return FileDescriptor{}, fmt.Errorf("sniff: read %q: %w", abs, err)
	}
	prefix = prefix[:n]

	if fd, ok := matchMagic(abs, prefix); ok {
		return fd, nil
	}

	// No binary signature. Re-read a bounded text sample for the heuristics;
	// the prefix may have cut a line in half.
	sample := prefix
	if n == prefixLen {
		if _, err := f.Seek(0, io.SeekStart); err == nil {
			buf := make([]byte, textSampleLen)
			m, _ := io.ReadFull(f, buf)
			if m > 0 {
				sample = buf[:m]
			}
		}
	}

	if fd, ok := matchText(abs, sample); ok {
		return fd, nil
	}

	return FileDescriptor{}, fmt.Errorf("sniff: %q: %w", abs, ErrUnsupported)
}

var (
	magicZip     = []byte{0x50, 0x4B, 0x03, 0x04}
	magicCFB     = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
	magicParquet = []byte("PAR1")
	magicSQLite  = []byte("SQLite format 3\x00")
	// Shapefile big-endian file code 9994.
	magicShapefile = []byte{0x00, 0x00, 0x27, 0x0A}
)

// xlsxPatterns are zip member names that identify an Office workbook.
var xlsxPatterns = [][]byte{
	[]byte("xl/worksheets"),
	[]byte("xl/_rels"),
	[]byte("docProps/"),
	[]byte("[Content_Types]"),
	[]byte("xl/workbook"),
	[]byte("xl/styles"),
	[]byte("xl/theme"),
	[]byte("xl/sharedStrings"),
}

// shpPatterns are zip member suffixes that identify a zipped shapefile bundle.
var shpPatterns = [][]byte{
	[]byte(".shp"),
	[]byte(".dbf"),
	[]byte(".prj"),
	[]byte(".shx"),
}

func matchMagic(path string, prefix []byte) (FileDescriptor, bool) {
	switch {
	case bytes.HasPrefix(prefix, magicZip):
		return classifyZip(path, prefix)

	case bytes.HasPrefix(prefix, magicCFB):
		return FileDescriptor{Path: path, Format: FormatSpreadsheet, Confidence: ConfidenceMagic}, true

	case bytes.HasPrefix(prefix, magicParquet):
		return FileDescriptor{Path: path, Format: FormatParquet, Confidence: ConfidenceMagic}, true

	case bytes.HasPrefix(prefix, magicSQLite):
		return classifySQLite(path, prefix)

	case bytes.HasPrefix(prefix, magicShapefile):
		return FileDescriptor{Path: path, Format: FormatShapefile, Confidence: ConfidenceMagic}, true
	}
	return FileDescriptor{}, false
}

// classifyZip separates the zip-based formats: an Office workbook versus a
// zipped shapefile bundle. Member-name patterns in the prefix decide first;
// the extension tie-breaks when the prefix is inconclusive or contradictory.
func classifyZip(path string, prefix []byte) (FileDescriptor, bool) {
	rest := prefix[len(magicZip):]
	isXLSX := anyPattern(rest, xlsxPatterns)
	isShape := anyPattern(rest, shpPatterns)

	switch {
	case isXLSX && !isShape:
		return FileDescriptor{Path: path, Format: FormatSpreadsheet, Confidence: ConfidenceMagic}, true
	case isShape && !isXLSX:
		return FileDescriptor{Path: path, Format: FormatShapefile, Confidence: ConfidenceMagic, Zipped: true}, true
	}

	// Prefix inconclusive: consult the central directory, which lists every
	// member, before falling back to the extension hint.
	if members, err := zipMemberNames(path); err == nil {
		hasShp := false
		hasXL := false
		for _, m := range members {
			if strings.HasSuffix(strings.ToLower(m), ".shp") {
				hasShp = true
			}
			if strings.HasPrefix(m, "xl/") || m == "[Content_Types].xml" {
				hasXL = true
			}
		}
		switch {
		case hasShp && !hasXL:
			return FileDescriptor{Path: path, Format: FormatShapefile, Confidence: ConfidenceMagic, Zipped: true}, true
		case hasXL && !hasShp:
			return FileDescriptor{Path: path, Format: FormatSpreadsheet, Confidence: ConfidenceMagic}, true
		}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return FileDescriptor{Path: path, Format: FormatSpreadsheet, Confidence: ConfidenceExtension}, true
	case ".zip":
		return FileDescriptor{Path: path, Format: FormatShapefile, Confidence: ConfidenceExtension, Zipped: true}, true
	}
	return FileDescriptor{}, false
}

// classifySQLite decides whether a SQLite file is a GeoPackage. Real
// GeoPackages carry the GPKG application id at byte offset 68; older writers
// sometimes omit it, so the .gpkg extension tie-breaks.
func classifySQLite(path string, prefix []byte) (FileDescriptor, bool) {
	if len(prefix) >= 72 && bytes.Equal(prefix[68:72], []byte("GPKG")) {
		return FileDescriptor{Path: path, Format: FormatGeoPackage, Confidence: ConfidenceMagic}, true
	}
	if strings.EqualFold(filepath.Ext(path), ".gpkg") {
		return FileDescriptor{Path: path, Format: FormatGeoPackage, Confidence: ConfidenceExtension}, true
	}
	// A plain SQLite database is not a supported input.
	return FileDescriptor{}, false
}

func anyPattern(b []byte, patterns [][]byte) bool {
	for _, p := range patterns {
		if bytes.Contains(b, p) {
			return true
		}
	}
	return false
}

func matchText(path string, sample []byte) (FileDescriptor, bool) {
	trimmed := bytes.TrimSpace(sample)
	if len(trimmed) == 0 {
		return FileDescriptor{}, false
	}

	if isGeoJSON(trimmed) {
		return FileDescriptor{Path: path, Format: FormatGeoJSON, Confidence: ConfidenceContent}, true
	}

	if d, ok := detectDelimiter(trimmed); ok {
		return FileDescriptor{Path: path, Format: FormatDelimited, Confidence: ConfidenceContent, Delimiter: d}, true
	}

	return FileDescriptor{}, false
}

func isGeoJSON(trimmed []byte) bool {
	if trimmed[0] != '{' {
		return false
	}
	lower := strings.ToLower(string(trimmed))
	if !strings.Contains(lower, `"type"`) {
		return false
	}
	return strings.Contains(lower, `"featurecollection"`) ||
		strings.Contains(lower, `"feature"`) ||
		strings.Contains(lower, `"geometry"`)
}

// delimiterCandidates in preference order. Comma wins ties by being first.
var delimiterCandidates = []rune{',', ';', '\t', '|'}

// maxHeuristicLines is how many lines the consistency check inspects.
const maxHeuristicLines = 10

// detectDelimiter looks for a field delimiter that appears a consistent,
// nonzero number of times on the first lines of the sample. At least a header
// row and one data row are required.
func detectDelimiter(sample []byte) (rune, bool) {
	var lines []string
	for _, ln := range strings.Split(string(sample), "\n") {
		ln = strings.TrimRight(ln, "\r")
		if strings.TrimSpace(ln) == "" {
			continue
		}
		lines = append(lines, ln)
		if len(lines) == maxHeuristicLines+1 {
			break
		}
	}
	// The last sampled line may be truncated mid-record; drop it when we had
	// more material than we kept.
	if len(lines) > 2 {
		lines = lines[:len(lines)-1]
	}
	if len(lines) < 2 {
		return 0, false
	}

	for _, d := range delimiterCandidates {
		want := strings.Count(lines[0], string(d))
		if want == 0 {
			continue
		}
		consistent := true
		for _, ln := range lines[1:] {
			if strings.Count(ln, string(d)) != want {
				consistent = false
				break
			}
		}
		if consistent {
			return d, true
		}
	}
	return 0, false
}

// zipMemberNames lists member names in the archive at path.
func zipMemberNames(path string) ([]string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	names := make([]string, 0, len(r.File))
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	return names, nil
}

// ShapefileZipMember returns the archive-internal path of the .shp member of
// a zipped shapefile bundle.
func ShapefileZipMember(path string) (string, error) {
	names, err := zipMemberNames(path)
	if err != nil {
		return "", err
	}
	for _, n := range names {
		if strings.HasSuffix(strings.ToLower(n), ".shp") {
			return n, nil
		}
	}
	return "", fmt.Errorf("no .shp member in %q", path)
}

// ZipHasMember reports whether the archive contains a member with the given
// name (exact match).
func ZipHasMember(path, member string) (bool, error) {
	names, err := zipMemberNames(path)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == member {
			return true, nil
		}
	}
	return false, nil
}

// ReadZipMember returns the contents of one archive member.
func ReadZipMember(path, member string) ([]byte, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	for _, f := range r.File {
		if f.Name != member {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("member %q not found in %q", member, path)
}
