// Package histogram computes intensity histograms over 8-bit volumes and the
// summary figures written to the conversion manifest.
package histogram

import (
	"fmt"
	"math"

	"github.com/mrsinham/dicomvol/internal/volume"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultBins covers the full 8-bit sample range with one bin per level.
const DefaultBins = 256

// Histogram holds raw per-bin sample counts. Counts are not normalized.
type Histogram struct {
	Bins   int
	Counts []float64
}

// ValidateBins checks that a bin count can be used over the 8-bit range.
func ValidateBins(bins int) error {
	if bins < 1 || bins > 256 {
		return fmt.Errorf("histogram bins must be 1-256, got %d", bins)
	}
	return nil
}

// Bin returns the bin a sample value falls into.
func (h *Histogram) Bin(v uint8) int {
	return int(v) * h.Bins / 256
}

// Compute counts every sample of v (all channels) into bins equal-width bins
// spanning 0..255.
func Compute(v *volume.Volume, bins int) (*Histogram, error) {
	if err := ValidateBins(bins); err != nil {
		return nil, err
	}

	var raw [256]uint64
	for _, s := range v.Data {
		raw[s]++
	}

	h := &Histogram{Bins: bins, Counts: make([]float64, bins)}
	for val, n := range raw {
		if n > 0 {
			h.Counts[h.Bin(uint8(val))] += float64(n)
		}
	}
	return h, nil
}

// Total returns the number of samples counted.
func (h *Histogram) Total() float64 {
	return floats.Sum(h.Counts)
}

// Normalized returns the per-bin occupancy fractions. All zeros are returned
// for an empty histogram.
func (h *Histogram) Normalized() []float64 {
	p := make([]float64, len(h.Counts))
	copy(p, h.Counts)
	if total := h.Total(); total > 0 {
		floats.Scale(1/total, p)
	}
	return p
}

// Summary holds the derived scalars for one histogram.
type Summary struct {
	Bins         int
	ActiveLevels int     // bins with a non-zero count
	Usage        float64 // ActiveLevels over the span MinBin..MaxBin
	MinBin       int     // lowest populated bin, -1 when empty
	MaxBin       int     // highest populated bin, -1 when empty
	Entropy      float64 // bits
	Mean         float64 // bin index, weighted by count
	StdDev       float64
}

// Summarize derives the active-level count and usage ratio, plus a few
// descriptive statistics used in logs.
func Summarize(h *Histogram) Summary {
	s := Summary{Bins: h.Bins, MinBin: -1, MaxBin: -1}
	for i, c := range h.Counts {
		if c == 0 {
			continue
		}
		s.ActiveLevels++
		if s.MinBin < 0 {
			s.MinBin = i
		}
		s.MaxBin = i
	}
	if s.ActiveLevels == 0 {
		return s
	}

	s.Usage = float64(s.ActiveLevels) / float64(1+s.MaxBin-s.MinBin)

	s.Entropy = stat.Entropy(h.Normalized()) / math.Ln2

	centers := make([]float64, h.Bins)
	for i := range centers {
		centers[i] = float64(i)
	}
	if s.ActiveLevels > 1 {
		s.Mean, s.StdDev = stat.MeanStdDev(centers, h.Counts)
	} else {
		s.Mean = float64(s.MinBin)
	}
	return s
}
