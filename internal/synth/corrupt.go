package synth

import (
	"encoding/binary"
	"fmt"
	"os"
)

// pixelDataTag is (7FE0,0010) in explicit VR little endian byte order.
var pixelDataTag = []byte{0xE0, 0x7F, 0x10, 0x00}

// truncatePixelData cuts a written slice in the middle of its PixelData
// value. It reproduces the partially downloaded files found in real
// collections: the header still parses, but the dataset comes back
// without a PixelData element.
func truncatePixelData(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file for truncation: %w", err)
	}

	// Long form: tag(4) + VR(2) + reserved(2) + VL(4)
	for i := len(data) - 12; i >= 0; i-- {
		if data[i] != pixelDataTag[0] || data[i+1] != pixelDataTag[1] ||
			data[i+2] != pixelDataTag[2] || data[i+3] != pixelDataTag[3] {
			continue
		}
		vr := string(data[i+4 : i+6])
		if vr != "OW" && vr != "OB" {
			continue
		}
		vl := binary.LittleEndian.Uint32(data[i+8 : i+12])
		end := i + 12 + int(vl)/2
		if end > len(data) {
			end = len(data)
		}
		return os.WriteFile(path, data[:end], 0644)
	}
	return fmt.Errorf("no pixel data element in %s", path)
}
