package resultsheet

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mrsinham/dicomvol/internal/codec"
	"github.com/mrsinham/dicomvol/internal/manifest"
	"github.com/rs/zerolog"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestCompute(t *testing.T) {
	r := manifest.Result{Name: "V", Width: 100, Height: 100, Depth: 10}
	e := Compute(r, 25000, 0.5, 0.25)
	if e.Voxels() != 100000 {
		t.Fatalf("Voxels = %d", e.Voxels())
	}
	if !near(e.BPP, 2.0) {
		t.Errorf("BPP = %v, want 2", e.BPP)
	}
	if !near(e.EncodingRate, 0.2) || !near(e.DecodingRate, 0.4) {
		t.Errorf("rates = %v, %v, want 0.2 and 0.4", e.EncodingRate, e.DecodingRate)
	}

	zero := Compute(r, 10, 0, 0)
	if zero.EncodingRate != 0 || zero.DecodingRate != 0 {
		t.Error("a zero timing should not produce an infinite rate")
	}
}

func TestReadTimings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "HEVC-enc.log")
	write(t, path, "file,seconds\nA_MR_0.cfg265, 1.5\nA.B_CT_0.cfg265,2\nA_MR_0.cfg265,3.25\n")

	got, err := ReadTimings(path)
	if err != nil {
		t.Fatalf("ReadTimings failed: %v", err)
	}
	if got["A_MR_0"] != 3.25 || got["A.B_CT_0"] != 2 || len(got) != 2 {
		t.Errorf("ReadTimings = %v", got)
	}

	write(t, path, "file,seconds\nA,fast\n")
	var pe *manifest.ParseError
	if _, err := ReadTimings(path); !errors.As(err, &pe) || pe.Row != 1 || pe.Column != 1 {
		t.Errorf("expected a ParseError on row 1 column 1, got %v", err)
	}

	if _, err := ReadTimings(filepath.Join(t.TempDir(), "none.log")); !errors.Is(err, ErrMissingLog) {
		t.Errorf("expected ErrMissingLog, got %v", err)
	}
}

// collection lays out a converted directory with two volumes; only the
// first has both timings and a bitstream.
func collection(t *testing.T, root string) string {
	t.Helper()
	dir := filepath.Join(root, "CMB")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	results := []manifest.Result{
		{Name: "CMB_MR_0", Width: 10, Height: 10, Depth: 10, Converted: true},
		{Name: "CMB_MR_1", Width: 10, Height: 10, Depth: 5, Converted: true},
	}
	if err := manifest.WriteResults(filepath.Join(dir, manifest.ResultsFileName), results); err != nil {
		t.Fatal(err)
	}
	write(t, filepath.Join(dir, "HEVC-enc.log"), "name,time\nCMB_MR_0.cfg265,0.001\nCMB_MR_1.cfg265,0.5\n")
	write(t, filepath.Join(dir, "HEVC-dec.log"), "name,time\nCMB_MR_0.cfg265,0.0005\n")
	write(t, filepath.Join(dir, "CMB_MR_0.265e"), strings.Repeat("x", 250))
	return dir
}

func TestRun(t *testing.T) {
	root := t.TempDir()
	dir := collection(t, root)

	sheets, err := Run(root, codec.HEVC, zerolog.Nop())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(sheets) != 1 {
		t.Fatalf("expected 1 sheet, got %d", len(sheets))
	}
	s := sheets[0]
	if len(s.Entries) != 1 || len(s.Skipped) != 1 || s.Skipped[0] != "CMB_MR_1" {
		t.Fatalf("entries=%+v skipped=%v", s.Entries, s.Skipped)
	}

	e := s.Entries[0]
	if !near(e.BPP, 2.0) || !near(e.EncodingRate, 1.0) || !near(e.DecodingRate, 2.0) {
		t.Errorf("unexpected entry %+v", e)
	}

	data, err := os.ReadFile(filepath.Join(dir, "HEVC-results.csv"))
	if err != nil {
		t.Fatalf("sheet missing: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if lines[0] != "Name,Width,Height,Depth,EncodingTime,EncodingRate,DecodingTime,DecodingRate,BPP" {
		t.Errorf("header = %q", lines[0])
	}
	if len(lines) != 2 || lines[1] != "CMB_MR_0,10,10,10,0.001,1.000000,0.0005,2.000000,2.000000" {
		t.Errorf("rows = %q", lines[1:])
	}
}

func TestRun_MissingLog(t *testing.T) {
	root := t.TempDir()
	collection(t, root)
	if _, err := Run(root, codec.AVC, zerolog.Nop()); !errors.Is(err, ErrMissingLog) {
		t.Errorf("expected ErrMissingLog, got %v", err)
	}
}

func TestSummary(t *testing.T) {
	s := &Sheet{Entries: []Entry{
		{BPP: 1, EncodingRate: 2, DecodingRate: 4},
		{BPP: 3, EncodingRate: 4, DecodingRate: 8},
	}}
	sum := s.Summary()
	if sum.Volumes != 2 || !near(sum.MeanBPP, 2) || !near(sum.MeanEncodingRate, 3) || !near(sum.MeanDecodingRate, 6) {
		t.Errorf("Summary = %+v", sum)
	}
	if (&Sheet{}).Summary().MeanBPP != 0 {
		t.Error("empty sheet should summarize to zeros")
	}
}
