// Package ingest turns a series folder into a volume, one slice file at a
// time, recording what happened to every file.
package ingest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/mrsinham/dicomvol/internal/dicom"
	"github.com/mrsinham/dicomvol/internal/volume"
	"github.com/rs/zerolog"
)

// ErrEmptyVolume is returned when no slice of a series could be used.
var ErrEmptyVolume = errors.New("no usable slices in series")

// Outcome is the fate of one slice file.
type Outcome int

const (
	Accepted Outcome = iota
	SkippedDecode
	SkippedEmpty
	SkippedNot2D
	SkippedShape
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case SkippedDecode:
		return "decode failed"
	case SkippedEmpty:
		return "empty slice"
	case SkippedNot2D:
		return "not 2-D"
	case SkippedShape:
		return "shape mismatch"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// SliceResult records the outcome for one file.
type SliceResult struct {
	Path    string
	Outcome Outcome
	Err     error
}

// Report lists the outcome of every file in a series folder, in the order
// they were read.
type Report struct {
	Dir    string
	Slices []SliceResult
}

// Accepted returns the paths of the slices that went into the volume.
func (r *Report) Accepted() []string {
	var out []string
	for _, s := range r.Slices {
		if s.Outcome == Accepted {
			out = append(out, s.Path)
		}
	}
	return out
}

// Count returns how many slices ended with outcome o.
func (r *Report) Count(o Outcome) int {
	n := 0
	for _, s := range r.Slices {
		if s.Outcome == o {
			n++
		}
	}
	return n
}

// Skipped returns the number of files that were not used.
func (r *Report) Skipped() int {
	return len(r.Slices) - r.Count(Accepted)
}

// ListFiles returns the regular files of dir sorted by name in byte order.
// Symbolic links to regular files are included; dangling links are not.
func ListFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if isRegular(dir, e) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(dir, n)
	}
	return paths, nil
}

func isRegular(dir string, e os.DirEntry) bool {
	if e.Type()&os.ModeSymlink == 0 {
		return e.Type().IsRegular()
	}
	fi, err := os.Stat(filepath.Join(dir, e.Name()))
	return err == nil && fi.Mode().IsRegular()
}

// Series reads every slice file of dir in name order and stacks the usable
// ones. Unusable slices are logged and skipped. A folder that yields no
// usable slice returns ErrEmptyVolume along with the report.
func Series(dir string, dec dicom.Decoder, log zerolog.Logger) (*volume.Volume, *Report, error) {
	files, err := ListFiles(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("list slices: %w", err)
	}

	report := &Report{Dir: dir, Slices: make([]SliceResult, 0, len(files))}
	asm := volume.NewAssembler()

	for _, path := range files {
		res := SliceResult{Path: path}
		res.Outcome, res.Err = addSlice(asm, dec, path)
		report.Slices = append(report.Slices, res)

		if res.Outcome != Accepted {
			log.Warn().Err(res.Err).Str("file", filepath.Base(path)).
				Str("reason", res.Outcome.String()).Msg("slice skipped")
		}
	}

	if asm.Depth() == 0 {
		return nil, report, fmt.Errorf("%s: %w", dir, ErrEmptyVolume)
	}

	log.Debug().Int("accepted", asm.Depth()).Int("skipped", report.Skipped()).Msg("series ingested")
	return asm.Volume(), report, nil
}

func addSlice(asm *volume.Assembler, dec dicom.Decoder, path string) (Outcome, error) {
	s, err := dec.Decode(path)
	if err != nil {
		return SkippedDecode, err
	}
	if s.IsEmpty() {
		return SkippedEmpty, volume.ErrEmptySlice
	}
	if s.Depth > 1 {
		return SkippedNot2D, fmt.Errorf("%w: depth %d", volume.ErrNot2D, s.Depth)
	}

	s = volume.ToLuma(s)

	if err := asm.Add(s); err != nil {
		switch {
		case errors.Is(err, volume.ErrShapeMismatch):
			return SkippedShape, err
		case errors.Is(err, volume.ErrNot2D):
			return SkippedNot2D, err
		default:
			return SkippedEmpty, err
		}
	}
	return Accepted, nil
}
