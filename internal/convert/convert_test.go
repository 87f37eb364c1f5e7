package convert

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"testing"

	"github.com/mrsinham/dicomvol/internal/dicom/modalities"
	"github.com/mrsinham/dicomvol/internal/manifest"
	"github.com/mrsinham/dicomvol/internal/selection"
	"github.com/mrsinham/dicomvol/internal/storage"
	"github.com/mrsinham/dicomvol/internal/synth"
	"github.com/mrsinham/dicomvol/internal/volume"
	"github.com/rs/zerolog"
)

// textDecoder reads slices from tiny text files: "w h fill [index:value...]".
// A file containing "bad" fails to decode.
type textDecoder struct{}

func (textDecoder) Decode(path string) (*volume.Slice, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fields := strings.Fields(string(data))
	if len(fields) < 3 {
		return nil, errors.New("bad slice")
	}
	w, _ := strconv.Atoi(fields[0])
	h, _ := strconv.Atoi(fields[1])
	fill, _ := strconv.Atoi(fields[2])
	s := volume.NewSlice(w, h, 1, 1)
	for i := range s.Data {
		s.Data[i] = uint8(fill)
	}
	for _, f := range fields[3:] {
		idx, val, _ := strings.Cut(f, ":")
		i, _ := strconv.Atoi(idx)
		v, _ := strconv.Atoi(val)
		s.Data[i] = uint8(v)
	}
	return s, nil
}

type series struct {
	spec   synth.SeriesSpec
	slices []string // file contents, written as 001, 002, ...
}

// collection writes the series folders and a TCIA manifest under a temp dir.
func collection(t *testing.T, list ...series) *manifest.Manifest {
	t.Helper()
	dir := t.TempDir()
	var specs []synth.SeriesSpec
	for _, s := range list {
		folder := filepath.Join(dir, s.spec.Folder)
		if err := os.MkdirAll(folder, 0755); err != nil {
			t.Fatal(err)
		}
		for i, content := range s.slices {
			if err := os.WriteFile(filepath.Join(folder, fmt.Sprintf("%03d", i+1)), []byte(content), 0644); err != nil {
				t.Fatal(err)
			}
		}
		if s.spec.Declared == 0 {
			s.spec.Declared = len(s.slices)
		}
		specs = append(specs, s.spec)
	}
	if _, err := synth.WriteManifest(dir, specs); err != nil {
		t.Fatalf("WriteManifest failed: %v", err)
	}
	m, err := manifest.Load(dir)
	if err != nil {
		t.Fatalf("manifest.Load failed: %v", err)
	}
	return m
}

func repeat(s string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = s
	}
	return out
}

func testPolicy() selection.Policy {
	return selection.Policy{MaxPerModality: 8, MinSlices: 3, MinSlicesDistinguished: 1, DistinguishedModality: "US"}
}

func newConverter(t *testing.T, opts Options) *Converter {
	t.Helper()
	c, err := New(opts, textDecoder{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

func readRows(t *testing.T, path string) []manifest.Result {
	t.Helper()
	rows, err := manifest.ReadResults(path)
	if err != nil {
		t.Fatalf("ReadResults failed: %v", err)
	}
	return rows
}

func TestRun_TooFewSlicesExcluded(t *testing.T) {
	m := collection(t, series{
		spec:   synth.SeriesSpec{Collection: "C", Modality: modalities.CT, Folder: "ct"},
		slices: repeat("4 4 10", 10),
	})
	opts := DefaultOptions(t.TempDir())
	c := newConverter(t, opts)

	report, err := c.Run(m)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Counts["CT"] != 0 {
		t.Errorf("CT counter = %d, want 0", report.Counts["CT"])
	}
	if report.Series[0].Decision.Reason != selection.TooFewSlices {
		t.Errorf("decision = %+v", report.Series[0].Decision)
	}
	if rows := readRows(t, report.ManifestPath); len(rows) != 0 {
		t.Errorf("expected no output rows, got %+v", rows)
	}
	if _, err := os.Stat(filepath.Join(report.OutputDir, "C_CT_0.raw")); !os.IsNotExist(err) {
		t.Error("rejected series should not be persisted")
	}
}

func TestRun_SparseSeriesPacked(t *testing.T) {
	m := collection(t, series{
		spec:   synth.SeriesSpec{Collection: "C", Modality: modalities.MR, Folder: "mr"},
		slices: []string{"4 4 10", "4 4 10", "4 4 10 5:200"},
	})
	opts := DefaultOptions(t.TempDir())
	opts.Policy = testPolicy()
	opts.Pack = true
	c := newConverter(t, opts)

	report, err := c.Run(m)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	rows := readRows(t, report.ManifestPath)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	r := rows[0]
	if r.Name != "C_MR_0" || r.Width != 4 || r.Height != 4 || r.Depth != 3 {
		t.Errorf("unexpected row %+v", r)
	}
	if r.ActiveLevels != 2 || !r.Packed {
		t.Errorf("ActiveLevels=%d Packed=%v, want 2 and true", r.ActiveLevels, r.Packed)
	}
	if fmt.Sprintf("%.6f", r.HistogramUsage) != "0.010471" {
		t.Errorf("HistogramUsage = %v, want 2/191", r.HistogramUsage)
	}

	packed, err := storage.Load(filepath.Join(report.OutputDir, "packed", "C_MR_0.raw"))
	if err != nil {
		t.Fatalf("packed volume not readable: %v", err)
	}
	counts := map[uint8]int{}
	for _, v := range packed.Data {
		counts[v]++
	}
	if counts[0] != 47 || counts[1] != 1 {
		t.Errorf("packed values = %v, want {0:47, 1:1}", counts)
	}
	if packed.At(1, 1, 2, 0) != 1 {
		t.Error("the voxel holding 200 should be packed to 1")
	}
}

func TestRun_QuotaOfOne(t *testing.T) {
	m := collection(t,
		series{spec: synth.SeriesSpec{Collection: "C", Modality: modalities.CT, Folder: "a"}, slices: repeat("2 2 1", 3)},
		series{spec: synth.SeriesSpec{Collection: "C", Modality: modalities.CT, Folder: "b"}, slices: repeat("2 2 2", 3)},
	)
	opts := DefaultOptions(t.TempDir())
	opts.Policy = testPolicy()
	opts.Policy.MaxPerModality = 1
	c := newConverter(t, opts)

	report, err := c.Run(m)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	rows := readRows(t, report.ManifestPath)
	if len(rows) != 1 || rows[0].OriginFolder != "a" {
		t.Fatalf("expected only folder a converted, got %+v", rows)
	}
	if report.Series[1].Decision.Reason != selection.QuotaReached {
		t.Errorf("second series decision = %+v", report.Series[1].Decision)
	}
	if report.Counts["CT"] != 1 {
		t.Errorf("CT counter = %d, want 1", report.Counts["CT"])
	}
}

func TestRun_FailedSeriesDoesNotUseQuota(t *testing.T) {
	m := collection(t,
		series{spec: synth.SeriesSpec{Collection: "C", Modality: modalities.CT, Folder: "broken"}, slices: repeat("bad", 3)},
		series{spec: synth.SeriesSpec{Collection: "C", Modality: modalities.CT, Folder: "good"}, slices: repeat("2 2 2", 3)},
	)
	opts := DefaultOptions(t.TempDir())
	opts.Policy = testPolicy()
	opts.Policy.MaxPerModality = 1
	c := newConverter(t, opts)

	report, err := c.Run(m)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Failed() != 1 || report.Converted() != 1 {
		t.Errorf("failed=%d converted=%d, want 1 and 1", report.Failed(), report.Converted())
	}
	if rows := readRows(t, report.ManifestPath); len(rows) != 1 || rows[0].Name != "C_CT_1" {
		t.Errorf("unexpected rows %+v", rows)
	}
	if _, err := os.Stat(filepath.Join(report.OutputDir, "C_CT_0.raw")); !os.IsNotExist(err) {
		t.Error("failed series left a volume behind")
	}
}

func TestRun_SkippedSlicesStillConvert(t *testing.T) {
	m := collection(t, series{
		spec:   synth.SeriesSpec{Collection: "C", Modality: modalities.US, Folder: "us"},
		slices: []string{"3 3 5", "bad", "4 4 5", "3 3 6"},
	})
	opts := DefaultOptions(t.TempDir())
	opts.Policy = testPolicy()
	c := newConverter(t, opts)

	report, err := c.Run(m)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.SkippedSlices() != 2 {
		t.Errorf("SkippedSlices = %d, want 2", report.SkippedSlices())
	}
	if r := report.Series[0].Result; !r.Converted || r.Depth != 2 {
		t.Errorf("unexpected result %+v", r)
	}
}

func TestRun_MissingSourceDirectory(t *testing.T) {
	m := collection(t,
		series{spec: synth.SeriesSpec{Collection: "C", Modality: modalities.MR, Folder: "present"}, slices: repeat("2 2 1", 3)},
		series{spec: synth.SeriesSpec{Collection: "C", Modality: modalities.MR, Folder: "gone"}, slices: repeat("2 2 1", 3)},
	)
	if err := os.RemoveAll(filepath.Join(m.Dir, "gone")); err != nil {
		t.Fatal(err)
	}
	opts := DefaultOptions(t.TempDir())
	opts.Policy = testPolicy()
	c := newConverter(t, opts)

	_, err := c.Run(m)
	if !errors.Is(err, ErrSourceDirectoryMissing) {
		t.Fatalf("err = %v, want ErrSourceDirectoryMissing", err)
	}
	if _, err := os.Stat(filepath.Join(opts.OutputDir, manifest.ResultsFileName)); !os.IsNotExist(err) {
		t.Error("no output manifest should be written after a fatal error")
	}
}

func TestRun_OutputManifestFailure(t *testing.T) {
	m := collection(t, series{
		spec:   synth.SeriesSpec{Collection: "C", Modality: modalities.MR, Folder: "mr"},
		slices: repeat("2 2 1", 3),
	})
	out := t.TempDir()
	if err := os.Mkdir(filepath.Join(out, manifest.ResultsFileName), 0755); err != nil {
		t.Fatal(err)
	}
	opts := DefaultOptions(out)
	opts.Policy = testPolicy()
	c := newConverter(t, opts)

	report, err := c.Run(m)
	if !errors.Is(err, ErrOutputManifest) {
		t.Fatalf("err = %v, want ErrOutputManifest", err)
	}
	if report == nil || report.Converted() != 1 || report.ManifestPath != "" {
		t.Errorf("unexpected report %+v", report)
	}
}

func TestRun_OutputDirectoryFailure(t *testing.T) {
	m := collection(t)
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}
	c := newConverter(t, DefaultOptions(filepath.Join(blocker, "out")))
	if _, err := c.Run(m); !errors.Is(err, ErrOutputDirectory) {
		t.Errorf("err = %v, want ErrOutputDirectory", err)
	}
}

func TestRun_CollectionAndOriginals(t *testing.T) {
	m := collection(t, series{
		spec:   synth.SeriesSpec{Collection: "CMB-MEL", Modality: modalities.MR, Folder: "mr"},
		slices: repeat("2 2 1", 3),
	})
	opts := DefaultOptions(t.TempDir())
	opts.Policy = testPolicy()
	opts.Collection = "CMB-MEL"
	opts.CopyOriginals = true
	opts.Format = storage.FormatCImg
	c := newConverter(t, opts)

	report, err := c.Run(m)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.OutputDir != filepath.Join(opts.OutputDir, "CMB-MEL") {
		t.Errorf("OutputDir = %s", report.OutputDir)
	}
	if _, err := os.Stat(filepath.Join(report.OutputDir, "CMB-MEL_MR_0.cimg")); err != nil {
		t.Errorf("volume missing: %v", err)
	}
	copied, err := os.ReadDir(filepath.Join(report.OutputDir, "originals", "CMB-MEL_MR_0"))
	if err != nil || len(copied) != 3 {
		t.Errorf("expected 3 copied originals, got %d (%v)", len(copied), err)
	}
}

func TestRun_ParallelMatchesSequential(t *testing.T) {
	var list []series
	for i := 0; i < 12; i++ {
		mod := []modalities.Modality{modalities.MR, modalities.CT, modalities.US}[i%3]
		content := fmt.Sprintf("3 3 %d", i)
		slices := repeat(content, 3)
		if i%4 == 1 {
			slices = repeat("bad", 3) // fails, must not consume quota
		}
		list = append(list, series{
			spec:   synth.SeriesSpec{Collection: "P", Modality: mod, Folder: fmt.Sprintf("s%02d", i)},
			slices: slices,
		})
	}
	m := collection(t, list...)

	run := func(workers int) []manifest.Result {
		opts := DefaultOptions(t.TempDir())
		opts.Policy = testPolicy()
		opts.Policy.MaxPerModality = 2
		opts.Workers = workers
		report, err := newConverter(t, opts).Run(m)
		if err != nil {
			t.Fatalf("Run(workers=%d) failed: %v", workers, err)
		}
		return readRows(t, report.ManifestPath)
	}

	sequential := run(1)
	for _, workers := range []int{2, 4, 8} {
		if got := run(workers); !reflect.DeepEqual(got, sequential) {
			t.Errorf("workers=%d:\n got %+v\nwant %+v", workers, got, sequential)
		}
	}
	if len(sequential) != 6 {
		t.Errorf("expected 2 series per modality, got %d rows", len(sequential))
	}
}

func TestRun_SyntheticDICOM(t *testing.T) {
	dir := t.TempDir()
	specs := []synth.SeriesSpec{
		{Collection: "SYN", Modality: modalities.MR, Slices: 4, Folder: "SYN/mr"},
		{Collection: "SYN", Modality: modalities.US, Slices: 2, Folder: "SYN/us", Levels: 256},
	}
	if _, err := synth.GenerateCollection(dir, specs, synth.Options{Width: 16, Height: 12, Levels: 5, Seed: 9, Overlay: true}); err != nil {
		t.Fatalf("GenerateCollection failed: %v", err)
	}
	m, err := manifest.Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	opts := DefaultOptions(t.TempDir())
	opts.Policy = testPolicy()
	opts.Pack = true
	opts.Workers = 2
	c, err := New(opts, nil, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	report, err := c.Run(m)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Converted() != 2 {
		t.Fatalf("converted = %d, want 2: %+v", report.Converted(), report.Series)
	}

	mr := report.Series[0].Result
	if mr.Width != 16 || mr.Height != 12 || mr.Depth != 4 {
		t.Errorf("unexpected MR geometry %+v", mr)
	}
	if mr.ActiveLevels > 5 || !mr.Packed {
		t.Errorf("5-level series: ActiveLevels=%d Packed=%v", mr.ActiveLevels, mr.Packed)
	}
	v, err := storage.Load(filepath.Join(report.OutputDir, "SYN_MR_0.raw"))
	if err != nil {
		t.Fatalf("Load volume failed: %v", err)
	}
	if v.Depth != 4 {
		t.Errorf("stored depth = %d", v.Depth)
	}
}

func TestResultName(t *testing.T) {
	d := manifest.Descriptor{Collection: "QIN BREAST/2", Modality: "MR", Ordinal: 3}
	if got := ResultName(d); got != "QIN-BREAST-2_MR_3" {
		t.Errorf("ResultName = %q", got)
	}
}

func TestNew_InvalidOptions(t *testing.T) {
	opts := DefaultOptions(t.TempDir())
	opts.Format = "png"
	if _, err := New(opts, nil, zerolog.Nop()); err == nil {
		t.Error("expected an error for an unknown format")
	}
	opts = DefaultOptions(t.TempDir())
	opts.Bins = 512
	if _, err := New(opts, nil, zerolog.Nop()); err == nil {
		t.Error("expected an error for too many bins")
	}
}

func TestRun_TruncatedDICOMSliceSkipped(t *testing.T) {
	dir := t.TempDir()
	if _, err := synth.GenerateSeries(synth.Options{
		Dir: filepath.Join(dir, "mr"), Modality: modalities.MR, Slices: 4,
		Width: 8, Height: 8, Levels: 16, Seed: 3, Truncate: []int{3},
	}); err != nil {
		t.Fatal(err)
	}
	spec := synth.SeriesSpec{Collection: "T", Modality: modalities.MR, Slices: 4, Folder: "mr"}
	if _, err := synth.WriteManifest(dir, []synth.SeriesSpec{spec}); err != nil {
		t.Fatal(err)
	}
	m, err := manifest.Load(dir)
	if err != nil {
		t.Fatal(err)
	}

	opts := DefaultOptions(t.TempDir())
	opts.Policy = testPolicy()
	c, err := New(opts, nil, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	report, err := c.Run(m)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	r := report.Series[0].Result
	if !r.Converted || r.Depth != 3 {
		t.Errorf("expected 3 of 4 slices converted, got %+v", r)
	}
	if report.SkippedSlices() != 1 {
		t.Errorf("SkippedSlices = %d, want 1", report.SkippedSlices())
	}
}
