// Package volume holds the in-memory sample grids used by the converter:
// decoded 2-D slices and the 3-D volumes assembled from them.
package volume

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptySlice is returned for a slice that carries no samples.
	ErrEmptySlice = errors.New("empty slice")
	// ErrNot2D is returned for a slice whose depth is greater than one.
	ErrNot2D = errors.New("slice is not 2-D")
	// ErrShapeMismatch is returned when a slice does not match the volume's
	// width, height or channel count.
	ErrShapeMismatch = errors.New("slice shape does not match volume")
)

// Slice is a decoded image slice.
//
// Data is planar: all samples of channel 0 first, then channel 1, and so on.
// Within a channel samples are ordered by z, then y, then x.
type Slice struct {
	Width    int
	Height   int
	Depth    int
	Channels int
	Data     []uint8
}

// NewSlice allocates a zeroed slice with the given dimensions.
func NewSlice(width, height, depth, channels int) *Slice {
	return &Slice{
		Width:    width,
		Height:   height,
		Depth:    depth,
		Channels: channels,
		Data:     make([]uint8, width*height*depth*channels),
	}
}

// IsEmpty reports whether the slice has no samples.
func (s *Slice) IsEmpty() bool {
	return s == nil || s.Width <= 0 || s.Height <= 0 || s.Depth <= 0 || s.Channels <= 0 || len(s.Data) == 0
}

// Channel returns the samples of channel c.
func (s *Slice) Channel(c int) []uint8 {
	n := s.Width * s.Height * s.Depth
	return s.Data[c*n : (c+1)*n]
}

// Volume is a dense 3-D grid of 8-bit samples, laid out like Slice.
type Volume struct {
	Width    int
	Height   int
	Depth    int
	Channels int
	Data     []uint8
}

// New allocates a zeroed volume.
func New(width, height, depth, channels int) *Volume {
	return &Volume{
		Width:    width,
		Height:   height,
		Depth:    depth,
		Channels: channels,
		Data:     make([]uint8, width*height*depth*channels),
	}
}

// IsEmpty reports whether the volume holds no samples.
func (v *Volume) IsEmpty() bool {
	return v == nil || v.Depth == 0 || len(v.Data) == 0
}

// Voxels returns the number of voxels per channel.
func (v *Volume) Voxels() int {
	return v.Width * v.Height * v.Depth
}

// At returns the sample at (x, y, z) of channel c.
func (v *Volume) At(x, y, z, c int) uint8 {
	return v.Data[v.index(x, y, z, c)]
}

func (v *Volume) index(x, y, z, c int) int {
	return ((c*v.Depth+z)*v.Height+y)*v.Width + x
}

// SameShape reports whether two volumes have identical dimensions.
func (v *Volume) SameShape(o *Volume) bool {
	return v.Width == o.Width && v.Height == o.Height && v.Depth == o.Depth && v.Channels == o.Channels
}

// String describes the volume's dimensions.
func (v *Volume) String() string {
	return fmt.Sprintf("%dx%dx%d (%d channel(s))", v.Width, v.Height, v.Depth, v.Channels)
}
