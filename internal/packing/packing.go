// Package packing re-quantizes volumes whose histogram leaves intensity
// levels unused, so that the used levels become a dense range starting at 0.
package packing

import (
	"errors"
	"fmt"

	"github.com/mrsinham/dicomvol/internal/histogram"
	"github.com/mrsinham/dicomvol/internal/volume"
)

var (
	// ErrNotEligible is returned when asked to pack a volume that already
	// uses every bin (or none).
	ErrNotEligible = errors.New("volume is not eligible for packing")
	// ErrInconsistentHistogram is returned when a voxel falls in a bin the
	// histogram reports as empty. The histogram was not built from this volume.
	ErrInconsistentHistogram = errors.New("voxel value has no packed index")
)

// Eligible reports whether a volume with this summary benefits from packing:
// it populates at least one bin but fewer than all of them.
func Eligible(s histogram.Summary, bins int) bool {
	return s.ActiveLevels > 0 && s.ActiveLevels < bins
}

// Mapping assigns each populated bin, in ascending order, a consecutive packed
// index starting at 0. Unpopulated bins map to -1.
func Mapping(h *histogram.Histogram) []int {
	m := make([]int, h.Bins)
	next := 0
	for i, c := range h.Counts {
		if c > 0 {
			m[i] = next
			next++
		} else {
			m[i] = -1
		}
	}
	return m
}

// Pack returns a new volume of the same shape where every sample is replaced
// by the packed index of its bin.
func Pack(v *volume.Volume, h *histogram.Histogram) (*volume.Volume, error) {
	if !Eligible(histogram.Summarize(h), h.Bins) {
		return nil, ErrNotEligible
	}

	mapping := Mapping(h)

	// Resolve every possible sample value once.
	var lut [256]int
	for val := range lut {
		lut[val] = mapping[h.Bin(uint8(val))]
	}

	out := volume.New(v.Width, v.Height, v.Depth, v.Channels)
	for i, s := range v.Data {
		idx := lut[s]
		if idx < 0 {
			return nil, fmt.Errorf("%w: sample %d at offset %d", ErrInconsistentHistogram, s, i)
		}
		out.Data[i] = uint8(idx)
	}
	return out, nil
}
