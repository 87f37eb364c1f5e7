package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mrsinham/dicomvol/internal/volume"
	"gopkg.in/yaml.v3"
)

// SampleType is the only sample type written by dicomvol.
const SampleType = "uint8"

// Sidecar describes the geometry of a volume stored without a header.
type Sidecar struct {
	Width        int    `yaml:"width"`
	Height       int    `yaml:"height"`
	Depth        int    `yaml:"depth"`
	Channels     int    `yaml:"channels"`
	SampleType   string `yaml:"sample_type"`
	Format       Format `yaml:"format"`
	Packed       bool   `yaml:"packed"`
	ActiveLevels int    `yaml:"active_levels,omitempty"`
}

func newSidecar(v *volume.Volume, f Format, packed bool, activeLevels int) Sidecar {
	s := Sidecar{
		Width:        v.Width,
		Height:       v.Height,
		Depth:        v.Depth,
		Channels:     v.Channels,
		SampleType:   SampleType,
		Format:       f,
		Packed:       packed,
		ActiveLevels: activeLevels,
	}
	if f == FormatTIFF {
		s.Channels = 1 // the mosaic only carries channel 0
	}
	return s
}

// SidecarPath returns the sidecar path for a volume file: the same name with
// the extension replaced by .yaml.
func SidecarPath(volumePath string) string {
	return strings.TrimSuffix(volumePath, filepath.Ext(volumePath)) + ".yaml"
}

func writeSidecar(path string, s Sidecar) error {
	data, err := yaml.Marshal(&s)
	if err != nil {
		return fmt.Errorf("marshal sidecar: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// ReadSidecar loads the sidecar stored next to volumePath.
func ReadSidecar(volumePath string) (Sidecar, error) {
	var s Sidecar
	data, err := os.ReadFile(SidecarPath(volumePath))
	if err != nil {
		return s, fmt.Errorf("read sidecar: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse sidecar: %w", err)
	}
	if s.SampleType != SampleType {
		return s, fmt.Errorf("unsupported sample type %q", s.SampleType)
	}
	if s.Width <= 0 || s.Height <= 0 || s.Depth <= 0 || s.Channels <= 0 {
		return s, fmt.Errorf("invalid sidecar geometry %dx%dx%d c=%d", s.Width, s.Height, s.Depth, s.Channels)
	}
	return s, nil
}
