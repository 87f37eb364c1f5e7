// Package manifest reads the per-collection series manifest and reads and
// writes the conversion result manifest (conv_metadata.csv).
package manifest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ResultsFileName is the name of the conversion result manifest.
const ResultsFileName = "conv_metadata.csv"

// Fixed column positions in a TCIA manifest.
const (
	ColumnCollection = 1
	ColumnModality   = 10
	ColumnSlices     = 13
	ColumnFolder     = 15
)

// ErrManifestNotFound is returned when a directory holds no manifest file.
var ErrManifestNotFound = errors.New("no manifest file found")

// LoadError reports a manifest that was found but could not be read.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load manifest %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ParseError reports a malformed manifest row. Row is 1-based and does not
// count the header.
type ParseError struct {
	Path   string
	Row    int
	Column int
	Err    error
}

func (e *ParseError) Error() string {
	if e.Column >= 0 {
		return fmt.Sprintf("%s: row %d, column %d: %v", e.Path, e.Row, e.Column, e.Err)
	}
	return fmt.Sprintf("%s: row %d: %v", e.Path, e.Row, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Descriptor identifies one convertible series.
type Descriptor struct {
	Collection string
	Modality   string
	SliceCount int    // as declared by the manifest
	Folder     string // relative to the manifest directory
	Row        int    // 1-based data row
	Ordinal    int    // 0-based position among rows of the same modality
}

// Manifest is a loaded series manifest.
type Manifest struct {
	Dir    string
	Path   string
	Series []Descriptor
}

// Modalities returns every modality present, in first-seen order.
func (m *Manifest) Modalities() []string {
	seen := make(map[string]bool)
	var out []string
	for _, d := range m.Series {
		if !seen[d.Modality] {
			seen[d.Modality] = true
			out = append(out, d.Modality)
		}
	}
	return out
}

// SourceDir resolves a descriptor's folder against the manifest directory.
func (m *Manifest) SourceDir(d Descriptor) string {
	return filepath.Join(m.Dir, d.Folder)
}

// Find returns the path of the first manifest file in dir, in name order.
func Find(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", &LoadError{Path: dir, Err: err}
	}
	for _, e := range entries {
		if !isRegular(dir, e) {
			continue
		}
		if !strings.EqualFold(filepath.Ext(e.Name()), ".csv") || e.Name() == ResultsFileName {
			continue
		}
		return filepath.Join(dir, e.Name()), nil
	}
	return "", fmt.Errorf("%w in %s", ErrManifestNotFound, dir)
}

// isRegular follows symbolic links.
func isRegular(dir string, e os.DirEntry) bool {
	if e.Type()&os.ModeSymlink == 0 {
		return e.Type().IsRegular()
	}
	fi, err := os.Stat(filepath.Join(dir, e.Name()))
	return err == nil && fi.Mode().IsRegular()
}

// Load finds and parses the manifest in dir.
func Load(dir string) (*Manifest, error) {
	path, err := Find(dir)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	defer func() { _ = f.Close() }()

	series, err := Parse(f, path)
	if err != nil {
		return nil, err
	}
	return &Manifest{Dir: dir, Path: path, Series: series}, nil
}

// Parse reads manifest rows from r. The first row is a header and is skipped.
// name is only used in error messages.
func Parse(r io.Reader, name string) ([]Descriptor, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	if _, err := cr.Read(); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, &ParseError{Path: name, Row: 0, Column: -1, Err: err}
	}

	ordinals := make(map[string]int)
	var out []Descriptor
	for row := 1; ; row++ {
		cols, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ParseError{Path: name, Row: row, Column: -1, Err: err}
		}

		d, err := decodeRow(cols)
		if err != nil {
			var pe *ParseError
			if errors.As(err, &pe) {
				pe.Path, pe.Row = name, row
			}
			return nil, err
		}
		d.Row = row
		d.Ordinal = ordinals[d.Modality]
		ordinals[d.Modality]++
		out = append(out, d)
	}
	return out, nil
}

// decodeRow maps a record onto a Descriptor using the fixed column positions.
func decodeRow(cols []string) (Descriptor, error) {
	need := max(ColumnCollection, ColumnModality, ColumnSlices, ColumnFolder) + 1
	if len(cols) < need {
		return Descriptor{}, &ParseError{
			Column: len(cols),
			Err:    fmt.Errorf("expected at least %d columns, got %d", need, len(cols)),
		}
	}

	slices, err := strconv.Atoi(strings.TrimSpace(cols[ColumnSlices]))
	if err != nil {
		return Descriptor{}, &ParseError{Column: ColumnSlices, Err: fmt.Errorf("invalid slice count %q", cols[ColumnSlices])}
	}

	modality := strings.ToUpper(strings.TrimSpace(cols[ColumnModality]))
	if modality == "" {
		return Descriptor{}, &ParseError{Column: ColumnModality, Err: errors.New("empty modality")}
	}

	folder := cleanFolder(cols[ColumnFolder])
	if folder == "" {
		return Descriptor{}, &ParseError{Column: ColumnFolder, Err: errors.New("empty folder")}
	}

	return Descriptor{
		Collection: strings.TrimSpace(cols[ColumnCollection]),
		Modality:   modality,
		SliceCount: slices,
		Folder:     folder,
	}, nil
}

// cleanFolder turns a manifest "File Location" such as "./CMB/1.3.6/..." or
// ".\CMB\1.3.6\..." into a relative OS path.
func cleanFolder(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, `\`, "/")
	s = strings.TrimPrefix(s, "./")
	if s == "" || s == "." {
		return ""
	}
	return filepath.Clean(filepath.FromSlash(s))
}
