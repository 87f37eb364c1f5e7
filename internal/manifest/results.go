package manifest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// ResultsHeader is the header row of conv_metadata.csv.
var ResultsHeader = []string{
	"Name", "OriginFolder", "Modality", "Width", "Height", "Depth",
	"ActiveLevels", "HistogramUsage", "HasPackedVersion",
}

// Result describes the outcome of converting one series. Only results with
// Converted set are written out.
type Result struct {
	Name           string
	OriginFolder   string
	Modality       string
	Width          int
	Height         int
	Depth          int
	ActiveLevels   int
	HistogramUsage float64
	Packed         bool
	Converted      bool
}

func (r Result) record() []string {
	packed := "0"
	if r.Packed {
		packed = "1"
	}
	return []string{
		r.Name,
		r.OriginFolder,
		r.Modality,
		strconv.Itoa(r.Width),
		strconv.Itoa(r.Height),
		strconv.Itoa(r.Depth),
		strconv.Itoa(r.ActiveLevels),
		strconv.FormatFloat(r.HistogramUsage, 'f', 6, 64),
		packed,
	}
}

// EncodeResults writes the header and every converted result to w.
func EncodeResults(w io.Writer, results []Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ResultsHeader); err != nil {
		return err
	}
	for _, r := range results {
		if !r.Converted {
			continue
		}
		if err := cw.Write(r.record()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteResults creates (or truncates) path and writes results to it.
func WriteResults(path string, results []Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := EncodeResults(f, results); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// ReadResults parses a conv_metadata.csv file. Every returned result has
// Converted set.
func ReadResults(path string) ([]Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	defer func() { _ = f.Close() }()
	return DecodeResults(f, path)
}

// DecodeResults parses conv_metadata.csv rows from r.
func DecodeResults(r io.Reader, name string) ([]Result, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	if _, err := cr.Read(); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, &ParseError{Path: name, Column: -1, Err: err}
	}

	var out []Result
	for row := 1; ; row++ {
		cols, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ParseError{Path: name, Row: row, Column: -1, Err: err}
		}
		if len(cols) < len(ResultsHeader) {
			return nil, &ParseError{Path: name, Row: row, Column: len(cols),
				Err: fmt.Errorf("expected %d columns, got %d", len(ResultsHeader), len(cols))}
		}

		res := Result{Name: cols[0], OriginFolder: cols[1], Modality: cols[2], Converted: true}
		ints := []*int{&res.Width, &res.Height, &res.Depth, &res.ActiveLevels}
		for i, dst := range ints {
			n, err := strconv.Atoi(cols[3+i])
			if err != nil {
				return nil, &ParseError{Path: name, Row: row, Column: 3 + i, Err: err}
			}
			*dst = n
		}
		if res.HistogramUsage, err = strconv.ParseFloat(cols[7], 64); err != nil {
			return nil, &ParseError{Path: name, Row: row, Column: 7, Err: err}
		}
		switch cols[8] {
		case "0":
		case "1":
			res.Packed = true
		default:
			return nil, &ParseError{Path: name, Row: row, Column: 8, Err: errors.New("packed flag must be 0 or 1")}
		}
		out = append(out, res)
	}
	return out, nil
}

// FindResults walks root and returns every conv_metadata.csv below it, in
// lexical order.
func FindResults(root string) ([]string, error) {
	var out []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() && info.Name() == ResultsFileName {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, &LoadError{Path: root, Err: err}
	}
	return out, nil
}
