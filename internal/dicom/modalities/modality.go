// Package modalities describes the DICOM imaging modalities the converter
// knows about: their codes, storage SOP classes and the pixel layout used
// when synthesizing a series.
package modalities

import (
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// Modality represents a DICOM imaging modality code (0008,0060).
type Modality string

const (
	MR Modality = "MR" // Magnetic Resonance
	CT Modality = "CT" // Computed Tomography
	US Modality = "US" // Ultrasound
	CR Modality = "CR" // Computed Radiography
	DX Modality = "DX" // Digital Radiography
	MG Modality = "MG" // Mammography
	PT Modality = "PT" // Positron Emission Tomography
	NM Modality = "NM" // Nuclear Medicine
)

// Info holds the static description of one modality.
type Info struct {
	Modality    Modality
	Name        string
	SOPClassUID string
	Photometric string
}

var table = []Info{
	{MR, "Magnetic Resonance", "1.2.840.10008.5.1.4.1.1.4", "MONOCHROME2"},
	{CT, "Computed Tomography", "1.2.840.10008.5.1.4.1.1.2", "MONOCHROME2"},
	{US, "Ultrasound", "1.2.840.10008.5.1.4.1.1.6.1", "MONOCHROME2"},
	{CR, "Computed Radiography", "1.2.840.10008.5.1.4.1.1.1", "MONOCHROME2"},
	{DX, "Digital X-Ray", "1.2.840.10008.5.1.4.1.1.1.1", "MONOCHROME2"},
	{MG, "Mammography", "1.2.840.10008.5.1.4.1.1.1.2", "MONOCHROME2"},
	{PT, "Positron Emission Tomography", "1.2.840.10008.5.1.4.1.1.128", "MONOCHROME2"},
	{NM, "Nuclear Medicine", "1.2.840.10008.5.1.4.1.1.20", "MONOCHROME2"},
}

// secondaryCaptureUID is used for modalities missing from the table.
const secondaryCaptureUID = "1.2.840.10008.5.1.4.1.1.7"

// AllModalities returns all known modalities.
func AllModalities() []Modality {
	out := make([]Modality, len(table))
	for i, info := range table {
		out[i] = info.Modality
	}
	return out
}

// IsValid checks if a modality string is a known code. The check is case
// sensitive, as codes are in the manifest.
func IsValid(m string) bool {
	_, ok := Lookup(Modality(m))
	return ok
}

// Normalize upper-cases and trims a modality code read from a manifest.
func Normalize(s string) Modality {
	return Modality(strings.ToUpper(strings.TrimSpace(s)))
}

// Lookup returns the description of m.
func Lookup(m Modality) (Info, bool) {
	for _, info := range table {
		if info.Modality == m {
			return info, true
		}
	}
	return Info{}, false
}

// SOPClassUID returns the storage SOP class for m, falling back to Secondary
// Capture for unknown codes.
func (m Modality) SOPClassUID() string {
	if info, ok := Lookup(m); ok {
		return info.SOPClassUID
	}
	return secondaryCaptureUID
}

// PixelConfig holds pixel data configuration for a synthetic series.
type PixelConfig struct {
	BitsAllocated       uint16
	BitsStored          uint16
	HighBit             uint16
	PixelRepresentation uint16 // 0 = unsigned, 1 = signed
	SamplesPerPixel     uint16
	Photometric         string
}

// PixelConfig returns the 8-bit unsigned layout used for every synthetic
// series, whatever the modality.
func (m Modality) PixelConfig() PixelConfig {
	photometric := "MONOCHROME2"
	if info, ok := Lookup(m); ok {
		photometric = info.Photometric
	}
	return PixelConfig{
		BitsAllocated:       8,
		BitsStored:          8,
		HighBit:             7,
		PixelRepresentation: 0,
		SamplesPerPixel:     1,
		Photometric:         photometric,
	}
}

// AppendPixelElements appends the image pixel module attributes for m to ds.
func AppendPixelElements(ds *dicom.Dataset, m Modality, rows, cols int) {
	pc := m.PixelConfig()
	ds.Elements = append(ds.Elements,
		mustNewElement(tag.Modality, []string{string(m)}),
		mustNewElement(tag.SOPClassUID, []string{m.SOPClassUID()}),
		mustNewElement(tag.Rows, []int{rows}),
		mustNewElement(tag.Columns, []int{cols}),
		mustNewElement(tag.BitsAllocated, []int{int(pc.BitsAllocated)}),
		mustNewElement(tag.BitsStored, []int{int(pc.BitsStored)}),
		mustNewElement(tag.HighBit, []int{int(pc.HighBit)}),
		mustNewElement(tag.PixelRepresentation, []int{int(pc.PixelRepresentation)}),
		mustNewElement(tag.SamplesPerPixel, []int{int(pc.SamplesPerPixel)}),
		mustNewElement(tag.PhotometricInterpretation, []string{pc.Photometric}),
	)
}
