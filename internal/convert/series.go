package convert

import (
	"errors"
	"fmt"
	"os"

	"github.com/mrsinham/dicomvol/internal/histogram"
	"github.com/mrsinham/dicomvol/internal/ingest"
	"github.com/mrsinham/dicomvol/internal/manifest"
	"github.com/mrsinham/dicomvol/internal/packing"
	"github.com/mrsinham/dicomvol/internal/selection"
	"github.com/mrsinham/dicomvol/internal/storage"
	"github.com/mrsinham/dicomvol/internal/volume"
)

// resultBuilder accumulates the result of one series as the pipeline
// advances. It belongs to a single worker.
type resultBuilder struct {
	res       manifest.Result
	artifacts []storage.Artifact
	originals string
	bytes     int64
}

func newResultBuilder(d manifest.Descriptor) *resultBuilder {
	return &resultBuilder{res: manifest.Result{
		Name:         ResultName(d),
		OriginFolder: d.Folder,
		Modality:     d.Modality,
	}}
}

func (b *resultBuilder) volume(v *volume.Volume) {
	b.res.Width, b.res.Height, b.res.Depth = v.Width, v.Height, v.Depth
}

func (b *resultBuilder) histogram(s histogram.Summary) {
	b.res.ActiveLevels = s.ActiveLevels
	b.res.HistogramUsage = s.Usage
}

func (b *resultBuilder) stored(a storage.Artifact) {
	b.artifacts = append(b.artifacts, a)
	b.bytes += a.Bytes
}

// finish returns the terminal result. Converted is only set on success.
func (b *resultBuilder) finish(converted bool) manifest.Result {
	b.res.Converted = converted
	return b.res
}

// discard removes everything written for the series.
func (b *resultBuilder) discard(w *storage.Writer) {
	for _, a := range b.artifacts {
		w.Remove(a)
	}
	if b.originals != "" {
		_ = os.RemoveAll(b.originals)
	}
	b.bytes = 0
}

// convertSeries runs the per-series pipeline. Failures are confined to the
// series and reported in the returned SeriesReport.
func (c *Converter) convertSeries(w *storage.Writer, t task) SeriesReport {
	d := t.desc
	b := newResultBuilder(d)
	log := c.log.With().Str("series", b.res.Name).Str("folder", d.Folder).Logger()
	sr := SeriesReport{Descriptor: d, Decision: selection.Decision{Accept: true, Reason: selection.Accepted}}

	err := c.runPipeline(w, t, b, &sr)
	if err != nil {
		b.discard(w)
		sr.Err = err
		sr.Result = b.finish(false)
		if errors.Is(err, ingest.ErrEmptyVolume) {
			log.Warn().Err(err).Msg("series produced no volume")
		} else {
			log.Error().Err(err).Msg("series failed")
		}
		return sr
	}

	sr.Result = b.finish(true)
	sr.Bytes = b.bytes
	log.Info().Int("width", sr.Result.Width).Int("height", sr.Result.Height).Int("depth", sr.Result.Depth).
		Int("active_levels", sr.Result.ActiveLevels).Float64("usage", sr.Result.HistogramUsage).
		Float64("entropy", sr.Summary.Entropy).Bool("packed", sr.Result.Packed).Msg("series converted")
	return sr
}

func (c *Converter) runPipeline(w *storage.Writer, t task, b *resultBuilder, sr *SeriesReport) error {
	name := b.res.Name
	log := c.log.With().Str("series", name).Logger()

	v, rep, err := ingest.Series(t.src, c.decoder, log)
	sr.Ingest = rep
	if err != nil {
		return err
	}
	b.volume(v)

	a, err := w.Write(name, v, false, 0)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	b.stored(a)

	h, err := histogram.Compute(v, c.opts.Bins)
	if err != nil {
		return err
	}
	s := histogram.Summarize(h)
	sr.Summary = s
	b.histogram(s)

	if c.opts.Pack && packing.Eligible(s, h.Bins) {
		packed, err := packing.Pack(v, h)
		if err != nil {
			return err
		}
		pa, err := w.Write(name, packed, true, s.ActiveLevels)
		if err != nil {
			return fmt.Errorf("%w: packed: %v", ErrPersist, err)
		}
		b.stored(pa)
		b.res.Packed = true
	}

	if c.opts.CopyOriginals {
		b.originals = w.OriginalsDir(name)
		n, err := storage.CopyOriginals(rep.Accepted(), b.originals)
		if err != nil {
			return fmt.Errorf("%w: originals: %v", ErrPersist, err)
		}
		b.bytes += n
	}
	return nil
}
