package volume

// ToLuma reduces a multi-channel slice to a single luma channel.
//
// Three or more channels are read as R, G, B and converted with the
// ITU-R BT.601 studio-swing transform (Y in 16..235). Other channels are
// dropped. A two-channel slice keeps channel 0. Single-channel slices are
// returned unchanged.
func ToLuma(s *Slice) *Slice {
	if s.Channels <= 1 {
		return s
	}
	out := NewSlice(s.Width, s.Height, s.Depth, 1)
	if s.Channels == 2 {
		copy(out.Data, s.Channel(0))
		return out
	}
	r, g, b := s.Channel(0), s.Channel(1), s.Channel(2)
	for i := range out.Data {
		out.Data[i] = luma(r[i], g[i], b[i])
	}
	return out
}

func luma(r, g, b uint8) uint8 {
	y := ((66*int(r)+129*int(g)+25*int(b)+128)>>8) + 16
	if y > 255 {
		y = 255
	}
	return uint8(y)
}
