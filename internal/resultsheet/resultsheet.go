// Package resultsheet turns codec timing logs into per-volume benchmark
// sheets: bits per voxel plus encoding and decoding throughput.
package resultsheet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mrsinham/dicomvol/internal/codec"
	"github.com/mrsinham/dicomvol/internal/logger"
	"github.com/mrsinham/dicomvol/internal/manifest"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"
)

// ErrMissingLog is returned when a directory with converted volumes has no
// encode or decode log for the codec.
var ErrMissingLog = errors.New("codec log missing")

// Header is the header row of a result sheet.
var Header = []string{
	"Name", "Width", "Height", "Depth",
	"EncodingTime", "EncodingRate", "DecodingTime", "DecodingRate", "BPP",
}

// Entry is one row of a result sheet. Times are in seconds, rates in
// millions of voxels per second.
type Entry struct {
	Name         string
	Width        int
	Height       int
	Depth        int
	EncodingTime float64
	EncodingRate float64
	DecodingTime float64
	DecodingRate float64
	BPP          float64
}

// Voxels returns W*H*D.
func (e Entry) Voxels() int64 {
	return int64(e.Width) * int64(e.Height) * int64(e.Depth)
}

func (e Entry) record() []string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }
	return []string{
		e.Name,
		strconv.Itoa(e.Width),
		strconv.Itoa(e.Height),
		strconv.Itoa(e.Depth),
		strconv.FormatFloat(e.EncodingTime, 'f', -1, 64),
		f(e.EncodingRate),
		strconv.FormatFloat(e.DecodingTime, 'f', -1, 64),
		f(e.DecodingRate),
		f(e.BPP),
	}
}

// Compute fills the derived figures of an entry from the encoded size in
// bytes and the two timings.
func Compute(r manifest.Result, encodedBytes int64, encSeconds, decSeconds float64) Entry {
	e := Entry{
		Name:         r.Name,
		Width:        r.Width,
		Height:       r.Height,
		Depth:        r.Depth,
		EncodingTime: encSeconds,
		DecodingTime: decSeconds,
	}
	voxels := float64(e.Voxels())
	if voxels > 0 {
		e.BPP = float64(encodedBytes*8) / voxels
	}
	if encSeconds > 0 {
		e.EncodingRate = voxels / encSeconds / 1e6
	}
	if decSeconds > 0 {
		e.DecodingRate = voxels / decSeconds / 1e6
	}
	return e
}

// Sheet holds the results of one codec for one conversion directory.
type Sheet struct {
	Codec   codec.Codec
	Dir     string
	Entries []Entry
	Skipped []string // volumes left out for lack of a timing or a bitstream
}

// Summary is the mean of each figure over a sheet.
type Summary struct {
	Volumes          int
	MeanBPP          float64
	MeanEncodingRate float64
	MeanDecodingRate float64
}

// Summary averages BPP and rates over every entry.
func (s *Sheet) Summary() Summary {
	out := Summary{Volumes: len(s.Entries)}
	if len(s.Entries) == 0 {
		return out
	}
	bpp := make([]float64, len(s.Entries))
	enc := make([]float64, len(s.Entries))
	dec := make([]float64, len(s.Entries))
	for i, e := range s.Entries {
		bpp[i], enc[i], dec[i] = e.BPP, e.EncodingRate, e.DecodingRate
	}
	out.MeanBPP = stat.Mean(bpp, nil)
	out.MeanEncodingRate = stat.Mean(enc, nil)
	out.MeanDecodingRate = stat.Mean(dec, nil)
	return out
}

// Path returns where the sheet is written.
func (s *Sheet) Path() string {
	return filepath.Join(s.Dir, s.Codec.ResultsFile())
}

// Encode writes the header and every entry to w.
func (s *Sheet) Encode(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, e := range s.Entries {
		if err := cw.Write(e.record()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Write writes the sheet to Path().
func (s *Sheet) Write() error {
	f, err := os.Create(s.Path())
	if err != nil {
		return fmt.Errorf("create result sheet: %w", err)
	}
	if err := s.Encode(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write result sheet %s: %w", s.Path(), err)
	}
	return f.Close()
}

// ReadTimings parses a codec log: a header row, then name,seconds rows. The
// last extension of each name (the config extension) is stripped. A later
// row for the same volume replaces an earlier one.
func ReadTimings(path string) (map[string]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrMissingLog, path)
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	out := make(map[string]float64)
	if _, err := cr.Read(); err != nil {
		if err == io.EOF {
			return out, nil
		}
		return nil, &manifest.ParseError{Path: path, Column: -1, Err: err}
	}
	for row := 1; ; row++ {
		cols, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &manifest.ParseError{Path: path, Row: row, Column: -1, Err: err}
		}
		if len(cols) < 2 {
			return nil, &manifest.ParseError{Path: path, Row: row, Column: len(cols), Err: errors.New("expected name,seconds")}
		}
		secs, err := strconv.ParseFloat(strings.TrimSpace(cols[1]), 64)
		if err != nil {
			return nil, &manifest.ParseError{Path: path, Row: row, Column: 1, Err: err}
		}
		out[stripExt(strings.TrimSpace(cols[0]))] = secs
	}
	return out, nil
}

func stripExt(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// Build assembles the sheet for the conv_metadata.csv at metadataPath.
func Build(metadataPath string, c codec.Codec, log zerolog.Logger) (*Sheet, error) {
	dir := filepath.Dir(metadataPath)
	results, err := manifest.ReadResults(metadataPath)
	if err != nil {
		return nil, err
	}
	enc, err := ReadTimings(filepath.Join(dir, c.EncodeLog()))
	if err != nil {
		return nil, err
	}
	dec, err := ReadTimings(filepath.Join(dir, c.DecodeLog()))
	if err != nil {
		return nil, err
	}

	s := &Sheet{Codec: c, Dir: dir}
	for _, r := range results {
		encSecs, okEnc := enc[r.Name]
		decSecs, okDec := dec[r.Name]
		if !okEnc || !okDec {
			log.Warn().Str("volume", r.Name).Bool("encoded", okEnc).Bool("decoded", okDec).Msg("no timing, skipping")
			s.Skipped = append(s.Skipped, r.Name)
			continue
		}
		info, err := os.Stat(filepath.Join(dir, r.Name+c.EncodedExt()))
		if err != nil {
			log.Warn().Str("volume", r.Name).Err(err).Msg("no bitstream, skipping")
			s.Skipped = append(s.Skipped, r.Name)
			continue
		}
		s.Entries = append(s.Entries, Compute(r, info.Size(), encSecs, decSecs))
	}
	return s, nil
}

// Run builds and writes a result sheet next to every conv_metadata.csv
// found under root.
func Run(root string, c codec.Codec, log zerolog.Logger) ([]*Sheet, error) {
	log = logger.Component(log, "resultsheet")

	files, err := manifest.FindResults(root)
	if err != nil {
		return nil, err
	}

	var sheets []*Sheet
	for _, file := range files {
		s, err := Build(file, c, log)
		if err != nil {
			return sheets, err
		}
		if err := s.Write(); err != nil {
			return sheets, err
		}
		sum := s.Summary()
		log.Info().Str("sheet", s.Path()).Int("volumes", sum.Volumes).Int("skipped", len(s.Skipped)).
			Float64("mean_bpp", sum.MeanBPP).Msg("result sheet written")
		sheets = append(sheets, s)
	}
	return sheets, nil
}
