// Package dicom decodes individual slice files (DICOM or common raster
// formats) into 8-bit planar slices.
package dicom

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // register JPEG
	_ "image/png"  // register PNG
	"os"
	"path/filepath"
	"strings"

	"github.com/mrsinham/dicomvol/internal/volume"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"
	_ "golang.org/x/image/bmp"  // register BMP
	_ "golang.org/x/image/tiff" // register TIFF
)

// Decoder turns one slice file into a Slice.
type Decoder interface {
	Decode(path string) (*volume.Slice, error)
}

// ErrNoPixelData is returned for DICOM files without a usable PixelData element.
var ErrNoPixelData = errors.New("no pixel data")

// imageExtensions are decoded with the image package; anything else is
// treated as DICOM (series files often have no extension at all).
var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true,
	".tif": true, ".tiff": true, ".bmp": true,
}

// FileDecoder is the default Decoder.
type FileDecoder struct{}

// Decode dispatches on the file extension.
func (FileDecoder) Decode(path string) (*volume.Slice, error) {
	if imageExtensions[strings.ToLower(filepath.Ext(path))] {
		return DecodeImage(path)
	}
	return DecodeDICOM(path)
}

// DecodeImage reads a raster image. Gray images give one channel, anything
// else gives three (R, G, B).
func DecodeImage(path string) (*volume.Slice, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", path, err)
	}
	return fromImage(img), nil
}

func fromImage(img image.Image) *volume.Slice {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	switch src := img.(type) {
	case *image.Gray:
		s := volume.NewSlice(w, h, 1, 1)
		for y := 0; y < h; y++ {
			off := src.PixOffset(b.Min.X, b.Min.Y+y)
			copy(s.Data[y*w:(y+1)*w], src.Pix[off:off+w])
		}
		return s
	case *image.Gray16:
		s := volume.NewSlice(w, h, 1, 1)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				s.Data[y*w+x] = uint8(src.Gray16At(b.Min.X+x, b.Min.Y+y).Y >> 8)
			}
		}
		return s
	}

	s := volume.NewSlice(w, h, 1, 3)
	plane := w * h
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			i := y*w + x
			s.Data[i] = c.R
			s.Data[plane+i] = c.G
			s.Data[2*plane+i] = c.B
		}
	}
	return s
}

// DecodeDICOM parses a DICOM file and returns all of its frames stacked
// along z.
func DecodeDICOM(path string) (*volume.Slice, error) {
	ds, err := dicom.ParseFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	elem, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, ErrNoPixelData)
	}
	info := dicom.MustGetPixelDataInfo(elem.Value)
	if len(info.Frames) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoPixelData)
	}

	px := readPixelModule(&ds)

	var out *volume.Slice
	for i, fr := range info.Frames {
		s, err := decodeFrame(fr, px)
		if err != nil {
			return nil, fmt.Errorf("%s: frame %d: %w", path, i, err)
		}
		if out == nil {
			out = volume.NewSlice(s.Width, s.Height, len(info.Frames), s.Channels)
		}
		if s.Width != out.Width || s.Height != out.Height || s.Channels != out.Channels {
			return nil, fmt.Errorf("%s: frame %d: %w", path, i, volume.ErrShapeMismatch)
		}
		stackFrame(out, s, i)
	}
	return out, nil
}

// stackFrame copies each channel plane of a single-frame slice into frame z of dst.
func stackFrame(dst, src *volume.Slice, z int) {
	plane := src.Width * src.Height
	for c := 0; c < src.Channels; c++ {
		off := (c*dst.Depth + z) * plane
		copy(dst.Data[off:off+plane], src.Data[c*plane:(c+1)*plane])
	}
}

// pixelModule holds the attributes needed to scale stored samples to 8 bits.
type pixelModule struct {
	bitsStored int
	signed     bool
}

func readPixelModule(ds *dicom.Dataset) pixelModule {
	px := pixelModule{}
	if e, err := ds.FindElementByTag(tag.BitsStored); err == nil {
		if v, ok := firstInt(e); ok {
			px.bitsStored = v
		}
	}
	if e, err := ds.FindElementByTag(tag.PixelRepresentation); err == nil {
		if v, ok := firstInt(e); ok {
			px.signed = v == 1
		}
	}
	return px
}

func firstInt(e *dicom.Element) (v int, ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	ints := dicom.MustGetInts(e.Value)
	if len(ints) == 0 {
		return 0, false
	}
	return ints[0], true
}

func decodeFrame(fr *frame.Frame, px pixelModule) (*volume.Slice, error) {
	if fr.Encapsulated {
		img, err := fr.GetImage()
		if err != nil {
			return nil, fmt.Errorf("decode encapsulated frame: %w", err)
		}
		return fromImage(img), nil
	}

	nf := fr.NativeData
	if nf == nil {
		return nil, ErrNoPixelData
	}
	rows, cols, spp := nf.Rows(), nf.Cols(), nf.SamplesPerPixel()
	if spp < 1 {
		spp = 1
	}
	bits := px.bitsStored
	if bits <= 0 || bits > nf.BitsPerSample() {
		bits = nf.BitsPerSample()
	}

	s := volume.NewSlice(cols, rows, 1, spp)
	switch d := nf.(type) {
	case *frame.NativeFrame[uint8]:
		fill(s, d.RawData, bits, false)
	case *frame.NativeFrame[uint16]:
		fill(s, d.RawData, bits, px.signed)
	case *frame.NativeFrame[uint32]:
		fill(s, d.RawData, bits, px.signed)
	case *frame.NativeFrame[int8]:
		fill(s, d.RawData, bits, true)
	case *frame.NativeFrame[int16]:
		fill(s, d.RawData, bits, true)
	case *frame.NativeFrame[int32]:
		fill(s, d.RawData, bits, true)
	default:
		return nil, fmt.Errorf("unsupported native frame type %T", nf)
	}
	return s, nil
}

type sample interface {
	~uint8 | ~uint16 | ~uint32 | ~int8 | ~int16 | ~int32
}

// fill de-interleaves raw samples into the planar slice, reducing each one
// to its top 8 stored bits. Signed samples are offset by 2^(bits-1) first.
func fill[T sample](s *volume.Slice, raw []T, bits int, signed bool) {
	plane := s.Width * s.Height
	spp := s.Channels
	n := min(len(raw), plane*spp)
	shift := max(bits-8, 0)
	mask := int64(1)<<bits - 1
	offset := int64(0)
	if signed {
		offset = int64(1) << (bits - 1)
	}
	for i := 0; i < n; i++ {
		v := int64(raw[i])
		if signed {
			// Reinterpret the stored two's complement value at the stored width.
			v &= mask
			if v >= offset {
				v -= mask + 1
			}
			v += offset
		}
		v &= mask
		pixel, c := i/spp, i%spp
		s.Data[c*plane+pixel] = uint8(v >> shift)
	}
}
