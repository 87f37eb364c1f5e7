// Package convert drives a conversion run: it walks a manifest, applies the
// selection policy and turns every accepted series into a stored volume.
package convert

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mrsinham/dicomvol/internal/dicom"
	"github.com/mrsinham/dicomvol/internal/histogram"
	"github.com/mrsinham/dicomvol/internal/logger"
	"github.com/mrsinham/dicomvol/internal/manifest"
	"github.com/mrsinham/dicomvol/internal/selection"
	"github.com/mrsinham/dicomvol/internal/storage"
	"github.com/rs/zerolog"
)

var (
	// ErrSourceDirectoryMissing aborts a run: the manifest and the file
	// system disagree.
	ErrSourceDirectoryMissing = errors.New("source directory missing")
	// ErrPersist marks a series whose output could not be written.
	ErrPersist = errors.New("cannot persist volume")
	// ErrOutputManifest is returned when conv_metadata.csv cannot be written.
	ErrOutputManifest = errors.New("cannot write output manifest")
	// ErrOutputDirectory is returned when a mandatory output directory
	// cannot be created.
	ErrOutputDirectory = errors.New("cannot create output directory")
)

// Options configures a Converter.
type Options struct {
	OutputDir     string
	Collection    string // optional subdirectory of OutputDir
	Format        storage.Format
	Pack          bool
	CopyOriginals bool
	Bins          int
	Workers       int
	Policy        selection.Policy
}

// DefaultOptions returns the options of a plain run writing to dir.
func DefaultOptions(dir string) Options {
	return Options{
		OutputDir: dir,
		Format:    storage.FormatRaw,
		Bins:      histogram.DefaultBins,
		Workers:   1,
		Policy:    selection.DefaultPolicy(),
	}
}

// Converter runs conversions. It holds no per-run state and may be reused.
type Converter struct {
	opts    Options
	decoder dicom.Decoder
	log     zerolog.Logger
}

// New returns a converter. A nil decoder selects dicom.FileDecoder.
func New(opts Options, dec dicom.Decoder, log zerolog.Logger) (*Converter, error) {
	if opts.Format == "" {
		opts.Format = storage.FormatRaw
	}
	if _, err := storage.ParseFormat(string(opts.Format)); err != nil {
		return nil, err
	}
	if opts.Bins == 0 {
		opts.Bins = histogram.DefaultBins
	}
	if err := histogram.ValidateBins(opts.Bins); err != nil {
		return nil, err
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if dec == nil {
		dec = dicom.FileDecoder{}
	}
	return &Converter{opts: opts, decoder: dec, log: logger.Component(log, "convert")}, nil
}

// OutputDir returns the directory volumes and conv_metadata.csv go to.
func (c *Converter) OutputDir() string {
	if c.opts.Collection == "" {
		return c.opts.OutputDir
	}
	return filepath.Join(c.opts.OutputDir, c.opts.Collection)
}

// ResultName returns the stem every artifact of d is named after.
func ResultName(d manifest.Descriptor) string {
	clean := strings.NewReplacer("/", "-", `\`, "-", " ", "-").Replace
	return fmt.Sprintf("%s_%s_%d", clean(d.Collection), clean(d.Modality), d.Ordinal)
}

type task struct {
	index int
	desc  manifest.Descriptor
	src   string
}

type outcome struct {
	index  int
	series SeriesReport
}

// Run converts every accepted series of m and writes conv_metadata.csv.
//
// Series are dispatched in manifest order. A series is only dispatched once
// its modality quota can be decided from finished conversions, so the set of
// converted series does not depend on the number of workers.
func (c *Converter) Run(m *manifest.Manifest) (*Report, error) {
	outDir := c.OutputDir()
	w := storage.NewWriter(outDir, c.opts.Format, logger.Component(c.log, "storage"))
	if err := w.Prepare(c.opts.Pack); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOutputDirectory, err)
	}

	counter := selection.NewCounter(m.Modalities()...)
	report := &Report{
		OutputDir: outDir,
		Series:    make([]SeriesReport, len(m.Series)),
	}

	c.log.Info().Str("manifest", m.Path).Int("series", len(m.Series)).
		Int("workers", c.opts.Workers).Str("format", string(c.opts.Format)).
		Str("output", outDir).Msg("conversion started")

	taskChan := make(chan task, len(m.Series))
	resultChan := make(chan outcome, len(m.Series))

	var wg sync.WaitGroup
	for i := 0; i < c.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range taskChan {
				resultChan <- outcome{index: t.index, series: c.convertSeries(w, t)}
			}
		}()
	}

	pending := 0
	collect := func() {
		o := <-resultChan
		pending--
		report.Series[o.index] = o.series
		counter.Release(o.series.Descriptor.Modality, o.series.Result.Converted)
	}

	var fatal error
dispatch:
	for i, d := range m.Series {
		var decision selection.Decision
		for {
			decision = c.opts.Policy.Evaluate(d, counter)
			if !decision.Accept || c.opts.Policy.Unlimited() || counter.InFlight(d.Modality) == 0 {
				break
			}
			if counter.Count(d.Modality)+counter.InFlight(d.Modality) < c.opts.Policy.MaxPerModality {
				break
			}
			// The quota depends on conversions still running.
			collect()
		}

		report.Series[i] = SeriesReport{Descriptor: d, Decision: decision, Result: newResultBuilder(d).finish(false)}
		if !decision.Accept {
			c.log.Info().Str("folder", d.Folder).Str("modality", d.Modality).
				Int("slices", d.SliceCount).Str("reason", decision.Reason.String()).Msg("series rejected")
			continue
		}

		src := m.SourceDir(d)
		if info, err := os.Stat(src); err != nil || !info.IsDir() {
			fatal = fmt.Errorf("%w: %s (manifest row %d)", ErrSourceDirectoryMissing, src, d.Row)
			break dispatch
		}

		counter.Reserve(d.Modality)
		pending++
		taskChan <- task{index: i, desc: d, src: src}
	}
	close(taskChan)

	for pending > 0 {
		collect()
	}
	wg.Wait()

	report.Counts = counter.Snapshot()
	for _, s := range report.Series {
		report.BytesWritten += s.Bytes
	}

	if fatal != nil {
		c.log.Error().Err(fatal).Msg("conversion aborted")
		return report, fatal
	}

	report.ManifestPath = filepath.Join(outDir, manifest.ResultsFileName)
	if err := manifest.WriteResults(report.ManifestPath, report.Results()); err != nil {
		report.ManifestPath = ""
		err = fmt.Errorf("%w: %v", ErrOutputManifest, err)
		c.log.Error().Err(err).Msg("conversion finished without manifest")
		return report, err
	}

	c.log.Info().Int("converted", report.Converted()).Int("failed", report.Failed()).
		Int("rejected", report.Rejected()).Str("manifest", report.ManifestPath).Msg("conversion finished")
	return report, nil
}
