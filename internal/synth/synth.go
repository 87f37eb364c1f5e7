// Package synth writes small synthetic 8-bit DICOM series and a matching
// TCIA-style manifest, for smoke tests of a conversion run.
package synth

import (
	"fmt"
	"hash/fnv"
	"io"
	"math"
	randv2 "math/rand/v2"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/mrsinham/dicomvol/internal/dicom/modalities"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// Options controls one generated series.
type Options struct {
	Dir      string
	Modality modalities.Modality
	Slices   int
	Width    int
	Height   int
	Levels   int    // distinct gray levels, 2-256
	Seed     uint64 // 0 derives a seed from Dir
	Overlay  bool   // draw "Slice i/N" on every slice
	Workers  int    // 0 = runtime.NumCPU()
	Truncate []int  // 1-based slices cut short after writing
}

func (o *Options) validate() error {
	if o.Slices <= 0 {
		return fmt.Errorf("number of slices must be > 0, got %d", o.Slices)
	}
	if o.Width <= 0 || o.Height <= 0 {
		return fmt.Errorf("invalid slice size %dx%d", o.Width, o.Height)
	}
	if o.Levels < 2 || o.Levels > 256 {
		return fmt.Errorf("levels must be 2-256, got %d", o.Levels)
	}
	for _, n := range o.Truncate {
		if n < 1 || n > o.Slices {
			return fmt.Errorf("truncated slice %d out of range 1-%d", n, o.Slices)
		}
	}
	if o.Modality == "" {
		o.Modality = modalities.MR
	}
	return nil
}

// SliceName returns the file name of the 1-based slice i.
func SliceName(i int) string {
	return fmt.Sprintf("1-%03d.dcm", i)
}

type sliceTask struct {
	index    int // 1-based
	path     string
	seed     uint64
	metadata []*dicom.Element
}

// GenerateSeries writes opts.Slices DICOM files into opts.Dir and returns
// their paths in slice order.
func GenerateSeries(opts Options) ([]string, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	seed := opts.Seed
	if seed == 0 {
		h := fnv.New64a()
		_, _ = h.Write([]byte(opts.Dir)) // hash.Write never returns an error
		seed = h.Sum64()
	}

	studyUID := deterministicUID(fmt.Sprintf("%s_study", opts.Dir))
	seriesUID := deterministicUID(fmt.Sprintf("%s_series", opts.Dir))
	frameUID := deterministicUID(fmt.Sprintf("%s_frame", opts.Dir))

	tasks := make([]sliceTask, opts.Slices)
	for i := range tasks {
		n := i + 1
		sopUID := deterministicUID(fmt.Sprintf("%s_instance_%d", opts.Dir, n))
		metadata := []*dicom.Element{
			mustNewElement(tag.TransferSyntaxUID, []string{"1.2.840.10008.1.2.1"}),
			mustNewElement(tag.MediaStorageSOPClassUID, []string{opts.Modality.SOPClassUID()}),
			mustNewElement(tag.MediaStorageSOPInstanceUID, []string{sopUID}),
			mustNewElement(tag.PatientName, []string{"ANONYMOUS^SYNTHETIC"}),
			mustNewElement(tag.PatientID, []string{fmt.Sprintf("SYN%08d", seed%100000000)}),
			mustNewElement(tag.StudyInstanceUID, []string{studyUID}),
			mustNewElement(tag.SeriesInstanceUID, []string{seriesUID}),
			mustNewElement(tag.SeriesNumber, []string{"1"}),
			mustNewElement(tag.SOPInstanceUID, []string{sopUID}),
			mustNewElement(tag.InstanceNumber, []string{fmt.Sprintf("%d", n)}),
			mustNewElement(tag.FrameOfReferenceUID, []string{frameUID}),
			mustNewElement(tag.ImagePositionPatient, []string{"0.000000", "0.000000", fmt.Sprintf("%.6f", float64(i))}),
			mustNewElement(tag.SliceLocation, []string{fmt.Sprintf("%.6f", float64(i))}),
		}
		ds := &dicom.Dataset{Elements: metadata}
		modalities.AppendPixelElements(ds, opts.Modality, opts.Height, opts.Width)

		tasks[i] = sliceTask{
			index:    n,
			path:     filepath.Join(opts.Dir, SliceName(n)),
			seed:     seed + uint64(n),
			metadata: ds.Elements,
		}
	}

	numWorkers := opts.Workers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if numWorkers > len(tasks) {
		numWorkers = len(tasks)
	}

	taskChan := make(chan sliceTask, len(tasks))
	resultChan := make(chan struct {
		index int
		err   error
	}, len(tasks))

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range taskChan {
				err := writeSlice(task, opts)
				resultChan <- struct {
					index int
					err   error
				}{task.index, err}
			}
		}()
	}

	for _, task := range tasks {
		taskChan <- task
	}
	close(taskChan)

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	var firstErr error
	for result := range resultChan {
		if result.err != nil && firstErr == nil {
			firstErr = fmt.Errorf("generate slice %d: %w", result.index, result.err)
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}

	for _, n := range opts.Truncate {
		if err := truncatePixelData(tasks[n-1].path); err != nil {
			return nil, err
		}
	}

	paths := make([]string, len(tasks))
	for i, task := range tasks {
		paths[i] = task.path
	}
	return paths, nil
}

// writeSlice renders one slice and writes it with its metadata.
func writeSlice(task sliceTask, opts Options) error {
	width, height := opts.Width, opts.Height
	nativeFrame := frame.NewNativeFrame[uint8](8, height, width, width*height, 1)

	// Deterministic RNG for this specific slice
	rng := randv2.New(randv2.NewPCG(task.seed, task.seed))
	centerX, centerY := float64(width)/2, float64(height)/2
	maxDist := math.Sqrt(centerX*centerX + centerY*centerY)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			dx := float64(x) - centerX
			dy := float64(y) - centerY
			normalizedDist := math.Sqrt(dx*dx+dy*dy) / maxDist

			intensity := 40 + (1.0-normalizedDist)*160 + (rng.Float64()-0.5)*60
			nativeFrame.RawData[y*width+x] = Quantize(intensity, opts.Levels)
		}
	}

	if opts.Overlay {
		drawOverlay(nativeFrame.RawData, width, height, fmt.Sprintf("Slice %d/%d", task.index, opts.Slices), opts.Levels)
	}

	pixelDataInfo := dicom.PixelDataInfo{
		Frames: []*frame.Frame{
			{
				Encapsulated: false,
				NativeData:   nativeFrame,
			},
		},
	}

	elements := make([]*dicom.Element, len(task.metadata)+1)
	copy(elements, task.metadata)
	elements[len(task.metadata)] = mustNewElement(tag.PixelData, pixelDataInfo)

	return writeDatasetToFile(task.path, dicom.Dataset{Elements: elements})
}

// Quantize clamps v to 0-255 and snaps it to the nearest of levels evenly
// spaced gray levels, 0 and 255 included.
func Quantize(v float64, levels int) uint8 {
	v = math.Max(0, math.Min(255, v))
	step := 255.0 / float64(levels-1)
	k := math.Round(v / step)
	return uint8(math.Round(k * step))
}

// writeDatasetToFile writes a DICOM dataset to a file
func writeDatasetToFile(filename string, ds dicom.Dataset, opts ...dicom.WriteOption) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := writeDataset(f, ds, opts...); err != nil {
		return fmt.Errorf("write %s: %w", filename, err)
	}
	return nil
}

// writeDataset writes ds to w and closes it. A failed Close is reported
// even when the write itself succeeded.
func writeDataset(w io.WriteCloser, ds dicom.Dataset, opts ...dicom.WriteOption) error {
	if err := dicom.Write(w, ds, opts...); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// mustNewElement creates a new DICOM element, panicking on error.
func mustNewElement(t tag.Tag, value interface{}) *dicom.Element {
	elem, err := dicom.NewElement(t, value)
	if err != nil {
		panic(fmt.Sprintf("failed to create element %v: %v", t, err))
	}
	return elem
}

// deterministicUID derives a UUID-derived style UID (2.25 root) from key.
func deterministicUID(key string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return fmt.Sprintf("2.25.%d", h.Sum64())
}
