package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/mrsinham/dicomvol/internal/volume"
	"github.com/rs/zerolog"
)

const (
	// PackedDirName holds packed volumes, next to the unpacked ones.
	PackedDirName = "packed"
	// OriginalsDirName holds copies of the accepted source slices.
	OriginalsDirName = "originals"
)

// Artifact lists the files written for one volume.
type Artifact struct {
	Path    string
	Sidecar string // empty for self-describing formats
	Bytes   int64
}

// Files returns every path of the artifact.
func (a Artifact) Files() []string {
	if a.Sidecar == "" {
		return []string{a.Path}
	}
	return []string{a.Path, a.Sidecar}
}

// Writer stores volumes under Dir in a fixed Format.
type Writer struct {
	Dir    string
	Format Format
	Log    zerolog.Logger
}

// NewWriter returns a writer storing volumes in dir.
func NewWriter(dir string, f Format, log zerolog.Logger) *Writer {
	return &Writer{Dir: dir, Format: f, Log: log}
}

// PackedDir returns the directory receiving packed volumes.
func (w *Writer) PackedDir() string {
	return filepath.Join(w.Dir, PackedDirName)
}

// OriginalsDir returns the directory receiving the source slices of name.
func (w *Writer) OriginalsDir(name string) string {
	return filepath.Join(w.Dir, OriginalsDirName, name)
}

// Prepare creates the output directory, and the packed directory when
// packed is set.
func (w *Writer) Prepare(packed bool) error {
	if err := os.MkdirAll(w.Dir, 0755); err != nil {
		return err
	}
	if packed {
		return os.MkdirAll(w.PackedDir(), 0755)
	}
	return nil
}

// Path returns where a volume called name is stored.
func (w *Writer) Path(name string, packed bool) string {
	dir := w.Dir
	if packed {
		dir = w.PackedDir()
	}
	return filepath.Join(dir, name+w.Format.Ext())
}

// Write stores v as name. activeLevels is recorded in the sidecar of packed
// volumes. On error nothing is left behind.
func (w *Writer) Write(name string, v *volume.Volume, packed bool, activeLevels int) (Artifact, error) {
	a := Artifact{Path: w.Path(name, packed)}
	if v.IsEmpty() {
		return a, fmt.Errorf("write %s: %w", name, volume.ErrEmptySlice)
	}

	n, err := writeFile(a.Path, func(out io.Writer) error { return encode(w.Format, out, v) })
	if err != nil {
		return a, err
	}
	a.Bytes = n

	if w.Format.HasSidecar() {
		a.Sidecar = SidecarPath(a.Path)
		if !packed {
			activeLevels = 0
		}
		if err := writeSidecar(a.Sidecar, newSidecar(v, w.Format, packed, activeLevels)); err != nil {
			w.Remove(a)
			return Artifact{}, fmt.Errorf("write sidecar for %s: %w", name, err)
		}
	}

	w.Log.Info().Str("file", a.Path).Str("size", humanize.Bytes(uint64(a.Bytes))).
		Str("shape", v.String()).Bool("packed", packed).Msg("volume written")
	return a, nil
}

// Remove deletes the files of a, ignoring files that do not exist.
func (w *Writer) Remove(a Artifact) {
	for _, p := range a.Files() {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			w.Log.Warn().Err(err).Str("file", p).Msg("could not remove partial output")
		}
	}
}

// DumpRaw writes the planar samples of v to path without a sidecar. The
// sidecar of a volume stored next to it with the same name describes it.
func DumpRaw(path string, v *volume.Volume) (int64, error) {
	if v.IsEmpty() {
		return 0, fmt.Errorf("dump %s: %w", path, volume.ErrEmptySlice)
	}
	return writeFile(path, func(out io.Writer) error { return encodeRaw(out, v) })
}

// writeFile creates path, streams fn into it and returns the bytes written.
// The file is removed if anything fails.
func writeFile(path string, fn func(io.Writer) error) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	cw := &countingWriter{w: f}
	if err := fn(cw); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return 0, fmt.Errorf("close %s: %w", path, err)
	}
	return cw.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// CopyOriginals copies files into dst, keeping their base names, and returns
// the number of bytes copied.
func CopyOriginals(files []string, dst string) (int64, error) {
	if err := os.MkdirAll(dst, 0755); err != nil {
		return 0, err
	}
	var total int64
	for _, src := range files {
		n, err := copyFile(src, filepath.Join(dst, filepath.Base(src)))
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer func() { _ = in.Close() }()
	return writeFile(dst, func(out io.Writer) error {
		_, err := io.Copy(out, in)
		return err
	})
}
