package volume

import "fmt"

// Assembler stacks 2-D slices along z into one volume.
// The first slice added fixes width, height and channel count.
type Assembler struct {
	width, height, channels int
	depth                   int
	planes                  [][]uint8 // one growing buffer per channel
}

// NewAssembler returns an empty assembler.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Depth returns the number of slices accepted so far.
func (a *Assembler) Depth() int {
	return a.depth
}

// Check validates a slice against the shape fixed so far without adding it.
func (a *Assembler) Check(s *Slice) error {
	if s.IsEmpty() {
		return ErrEmptySlice
	}
	if s.Depth > 1 {
		return fmt.Errorf("%w: depth %d", ErrNot2D, s.Depth)
	}
	if a.depth == 0 {
		return nil
	}
	if s.Width != a.width || s.Height != a.height || s.Channels != a.channels {
		return fmt.Errorf("%w: got %dx%d (%d channel(s)), want %dx%d (%d channel(s))",
			ErrShapeMismatch, s.Width, s.Height, s.Channels, a.width, a.height, a.channels)
	}
	return nil
}

// Add appends a slice at the next z position.
func (a *Assembler) Add(s *Slice) error {
	if err := a.Check(s); err != nil {
		return err
	}
	if a.depth == 0 {
		a.width, a.height, a.channels = s.Width, s.Height, s.Channels
		a.planes = make([][]uint8, s.Channels)
	}
	for c := 0; c < a.channels; c++ {
		a.planes[c] = append(a.planes[c], s.Channel(c)...)
	}
	a.depth++
	return nil
}

// Volume returns the assembled volume. The returned volume does not share
// memory with the assembler. It is empty if no slice was accepted.
func (a *Assembler) Volume() *Volume {
	if a.depth == 0 {
		return &Volume{}
	}
	v := New(a.width, a.height, a.depth, a.channels)
	n := v.Voxels()
	for c, plane := range a.planes {
		copy(v.Data[c*n:(c+1)*n], plane)
	}
	return v
}
