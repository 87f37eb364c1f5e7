package storage

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/mrsinham/dicomvol/internal/volume"
	"golang.org/x/image/tiff"
)

// ErrCorrupt is returned when a stored volume does not match its geometry.
var ErrCorrupt = errors.New("corrupt volume file")

// cimgHeader is the CImg ASCII header for an 8-bit little endian image list
// holding a single image.
const cimgHeader = "1 unsigned_char little_endian\n%d %d %d %d\n"

func encodeRaw(w io.Writer, v *volume.Volume) error {
	_, err := w.Write(v.Data)
	return err
}

func encodeCImg(w io.Writer, v *volume.Volume) error {
	if _, err := fmt.Fprintf(w, cimgHeader, v.Width, v.Height, v.Depth, v.Channels); err != nil {
		return err
	}
	return encodeRaw(w, v)
}

func encodeZstd(w io.Writer, v *volume.Volume) error {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return err
	}
	if _, err := enc.Write(v.Data); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

// encodeTIFF writes channel 0 as a W x (H*D) gray mosaic, slice 0 on top.
func encodeTIFF(w io.Writer, v *volume.Volume) error {
	img := image.NewGray(image.Rect(0, 0, v.Width, v.Height*v.Depth))
	copy(img.Pix, v.Data[:v.Voxels()])
	return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
}

func encode(f Format, w io.Writer, v *volume.Volume) error {
	switch f {
	case FormatRaw:
		return encodeRaw(w, v)
	case FormatCImg:
		return encodeCImg(w, v)
	case FormatZstd:
		return encodeZstd(w, v)
	case FormatTIFF:
		return encodeTIFF(w, v)
	default:
		return fmt.Errorf("unknown volume format %q", f)
	}
}

// Load reads a volume written by Writer. The format is taken from the file
// extension; formats other than cimg need their sidecar.
func Load(path string) (*volume.Volume, error) {
	f, err := formatFromPath(path)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	if f == FormatCImg {
		return decodeCImg(bufio.NewReader(file))
	}

	sc, err := ReadSidecar(path)
	if err != nil {
		return nil, err
	}

	switch f {
	case FormatRaw:
		return readDense(file, sc)
	case FormatZstd:
		dec, err := zstd.NewReader(file)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return readDense(dec, sc)
	case FormatTIFF:
		return decodeTIFF(file, sc)
	}
	return nil, fmt.Errorf("unknown volume format %q", f)
}

// readDense reads exactly the number of samples the sidecar announces and
// fails if anything is left over.
func readDense(r io.Reader, sc Sidecar) (*volume.Volume, error) {
	v := volume.New(sc.Width, sc.Height, sc.Depth, sc.Channels)
	if _, err := io.ReadFull(r, v.Data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	var extra [1]byte
	if n, _ := r.Read(extra[:]); n > 0 {
		return nil, fmt.Errorf("%w: trailing data", ErrCorrupt)
	}
	return v, nil
}

func decodeCImg(r *bufio.Reader) (*volume.Volume, error) {
	var count int
	var sampleType, endian string
	if _, err := fmt.Fscanf(r, "%d %s %s\n", &count, &sampleType, &endian); err != nil {
		return nil, fmt.Errorf("%w: cimg header: %v", ErrCorrupt, err)
	}
	if count != 1 || sampleType != "unsigned_char" {
		return nil, fmt.Errorf("%w: unsupported cimg list (%d x %s)", ErrCorrupt, count, sampleType)
	}
	var w, h, d, c int
	if _, err := fmt.Fscanf(r, "%d %d %d %d\n", &w, &h, &d, &c); err != nil {
		return nil, fmt.Errorf("%w: cimg dimensions: %v", ErrCorrupt, err)
	}
	if w <= 0 || h <= 0 || d <= 0 || c <= 0 {
		return nil, fmt.Errorf("%w: cimg dimensions %dx%dx%dx%d", ErrCorrupt, w, h, d, c)
	}
	return readDense(r, Sidecar{Width: w, Height: h, Depth: d, Channels: c, SampleType: SampleType})
}

func decodeTIFF(r io.Reader, sc Sidecar) (*volume.Volume, error) {
	img, err := tiff.Decode(r)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	if b.Dx() != sc.Width || b.Dy() != sc.Height*sc.Depth {
		return nil, fmt.Errorf("%w: mosaic is %dx%d, sidecar says %dx%dx%d",
			ErrCorrupt, b.Dx(), b.Dy(), sc.Width, sc.Height, sc.Depth)
	}
	gray, ok := img.(*image.Gray)
	if !ok {
		return nil, fmt.Errorf("%w: mosaic is %T, want gray", ErrCorrupt, img)
	}
	v := volume.New(sc.Width, sc.Height, sc.Depth, 1)
	for y := 0; y < b.Dy(); y++ {
		off := gray.PixOffset(b.Min.X, b.Min.Y+y)
		copy(v.Data[y*sc.Width:(y+1)*sc.Width], gray.Pix[off:off+sc.Width])
	}
	return v, nil
}
