// Package storage persists volumes to disk in one of several container
// formats and reads them back.
package storage

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format is a volume container format.
type Format string

const (
	FormatRaw  Format = "raw"  // dense planar dump with a YAML sidecar
	FormatCImg Format = "cimg" // self-describing CImg container
	FormatZstd Format = "zst"  // zstd-compressed raw dump with a YAML sidecar
	FormatTIFF Format = "tiff" // vertical mosaic of z-slices with a YAML sidecar
)

// AllFormats returns every supported format.
func AllFormats() []Format {
	return []Format{FormatRaw, FormatCImg, FormatZstd, FormatTIFF}
}

// ParseFormat parses a format name, case-insensitively.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllFormats() {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown volume format %q (valid: raw, cimg, zst, tiff)", s)
}

// Ext returns the file extension of the format, dot included.
func (f Format) Ext() string {
	return "." + string(f)
}

// HasSidecar reports whether the format needs a YAML sidecar to be read back.
func (f Format) HasSidecar() bool {
	return f != FormatCImg
}

func formatFromPath(path string) (Format, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "tif" {
		return FormatTIFF, nil
	}
	return ParseFormat(ext)
}
