package ingest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mrsinham/dicomvol/internal/dicom"
	"github.com/mrsinham/dicomvol/internal/dicom/modalities"
	"github.com/mrsinham/dicomvol/internal/synth"
	"github.com/mrsinham/dicomvol/internal/volume"
	"github.com/rs/zerolog"
)

// fakeDecoder serves slices keyed by file base name.
type fakeDecoder map[string]*volume.Slice

func (f fakeDecoder) Decode(path string) (*volume.Slice, error) {
	s, ok := f[filepath.Base(path)]
	if !ok {
		return nil, errors.New("cannot decode")
	}
	return s, nil
}

func gray(w, h int, v uint8) *volume.Slice {
	s := volume.NewSlice(w, h, 1, 1)
	for i := range s.Data {
		s.Data[i] = v
	}
	return s
}

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestSeries_OrderIndependentOfCreation(t *testing.T) {
	dir := t.TempDir()
	// Created in reverse order on purpose.
	touch(t, dir, "c.dcm", "b.dcm", "a.dcm")
	dec := fakeDecoder{"a.dcm": gray(2, 2, 1), "b.dcm": gray(2, 2, 2), "c.dcm": gray(2, 2, 3)}

	v, report, err := Series(dir, dec, zerolog.Nop())
	if err != nil {
		t.Fatalf("Series failed: %v", err)
	}
	if v.Depth != 3 {
		t.Fatalf("Depth = %d, want 3", v.Depth)
	}
	for z, want := range []uint8{1, 2, 3} {
		if got := v.At(0, 0, z, 0); got != want {
			t.Errorf("slice %d holds %d, want %d", z, got, want)
		}
	}
	if len(report.Accepted()) != 3 || report.Skipped() != 0 {
		t.Errorf("unexpected report %+v", report)
	}
}

func TestSeries_ByteOrder(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "10.dcm", "9.dcm", "B.dcm", "a.dcm")
	files, err := ListFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"10.dcm", "9.dcm", "B.dcm", "a.dcm"}
	for i, f := range files {
		if filepath.Base(f) != want[i] {
			t.Errorf("files[%d] = %s, want %s", i, filepath.Base(f), want[i])
		}
	}
}

func TestListFiles_FollowsSymlinks(t *testing.T) {
	store, dir := t.TempDir(), t.TempDir()
	touch(t, store, "real.dcm")
	touch(t, dir, "b.dcm")
	if err := os.Symlink(filepath.Join(store, "real.dcm"), filepath.Join(dir, "a.dcm")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	if err := os.Symlink(filepath.Join(store, "gone.dcm"), filepath.Join(dir, "c.dcm")); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(store, filepath.Join(dir, "d")); err != nil {
		t.Fatal(err)
	}

	files, err := ListFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "a.dcm" || filepath.Base(files[1]) != "b.dcm" {
		t.Errorf("ListFiles() = %v, want [a.dcm b.dcm]", files)
	}
}

func TestSeries_SkipOutcomes(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "1.dcm", "2.dcm", "3.dcm", "4.dcm", "5.dcm", "6.dcm")
	if err := os.Mkdir(filepath.Join(dir, "subdir"), 0755); err != nil {
		t.Fatal(err)
	}
	dec := fakeDecoder{
		"1.dcm": gray(4, 4, 10),
		// 2.dcm is undecodable
		"3.dcm": {Width: 4, Height: 4, Depth: 1, Channels: 1},
		"4.dcm": volume.NewSlice(4, 4, 2, 1),
		"5.dcm": gray(5, 4, 10),
		"6.dcm": gray(4, 4, 20),
	}

	v, report, err := Series(dir, dec, zerolog.Nop())
	if err != nil {
		t.Fatalf("Series failed: %v", err)
	}
	if v.Depth != 2 {
		t.Errorf("Depth = %d, want 2", v.Depth)
	}
	want := []Outcome{Accepted, SkippedDecode, SkippedEmpty, SkippedNot2D, SkippedShape, Accepted}
	if len(report.Slices) != len(want) {
		t.Fatalf("report has %d entries, want %d (directories must be ignored)", len(report.Slices), len(want))
	}
	for i, w := range want {
		if report.Slices[i].Outcome != w {
			t.Errorf("slice %d: outcome %v, want %v", i, report.Slices[i].Outcome, w)
		}
	}
	if !errors.Is(report.Slices[4].Err, volume.ErrShapeMismatch) {
		t.Errorf("shape skip error = %v", report.Slices[4].Err)
	}
	if report.Count(SkippedDecode) != 1 {
		t.Errorf("Count(SkippedDecode) = %d, want 1", report.Count(SkippedDecode))
	}
}

func TestSeries_ColorReducedToLuma(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "1.png", "2.png")
	rgb := volume.NewSlice(2, 2, 1, 3)
	for i := range rgb.Data {
		rgb.Data[i] = 255
	}
	dec := fakeDecoder{"1.png": gray(2, 2, 9), "2.png": rgb}

	v, report, err := Series(dir, dec, zerolog.Nop())
	if err != nil {
		t.Fatalf("Series failed: %v", err)
	}
	if report.Skipped() != 0 || v.Channels != 1 || v.Depth != 2 {
		t.Fatalf("color slice should be reduced and accepted: %s, %+v", v, report.Slices)
	}
	if v.At(0, 0, 1, 0) != 235 {
		t.Errorf("luma of white = %d, want 235", v.At(0, 0, 1, 0))
	}
}

func TestSeries_EmptyVolume(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "x.dcm")
	_, report, err := Series(dir, fakeDecoder{}, zerolog.Nop())
	if !errors.Is(err, ErrEmptyVolume) {
		t.Fatalf("err = %v, want ErrEmptyVolume", err)
	}
	if report == nil || report.Count(SkippedDecode) != 1 {
		t.Errorf("report should still list the skipped file: %+v", report)
	}
}

func TestSeries_MissingDir(t *testing.T) {
	_, _, err := Series(filepath.Join(t.TempDir(), "nope"), fakeDecoder{}, zerolog.Nop())
	if err == nil || !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want a not-exist error", err)
	}
}

func TestSeries_SyntheticDICOM(t *testing.T) {
	dir := t.TempDir()
	if _, err := synth.GenerateSeries(synth.Options{
		Dir: dir, Modality: modalities.US, Slices: 4, Width: 12, Height: 8, Levels: 3, Seed: 11,
	}); err != nil {
		t.Fatalf("GenerateSeries failed: %v", err)
	}
	v, _, err := Series(dir, dicom.FileDecoder{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("Series failed: %v", err)
	}
	if v.Width != 12 || v.Height != 8 || v.Depth != 4 {
		t.Errorf("unexpected volume %s", v)
	}
}
