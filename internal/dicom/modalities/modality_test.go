package modalities

import (
	"testing"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

func TestIsValid(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"MR", true},
		{"CT", true},
		{"US", true},
		{"mr", false}, // case sensitive
		{"XA", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := IsValid(tt.input); got != tt.want {
				t.Errorf("IsValid(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize(" us "); got != US {
		t.Errorf("Normalize(\" us \") = %q, want US", got)
	}
}

func TestSOPClassUID(t *testing.T) {
	if got := MR.SOPClassUID(); got != "1.2.840.10008.5.1.4.1.1.4" {
		t.Errorf("Unexpected MR SOP Class UID: %s", got)
	}
	if got := CT.SOPClassUID(); got != "1.2.840.10008.5.1.4.1.1.2" {
		t.Errorf("Unexpected CT SOP Class UID: %s", got)
	}
	if got := Modality("XA").SOPClassUID(); got != secondaryCaptureUID {
		t.Errorf("Unknown modality should use Secondary Capture, got %s", got)
	}
}

func TestAllModalities_Unique(t *testing.T) {
	seen := map[Modality]bool{}
	for _, m := range AllModalities() {
		if seen[m] {
			t.Errorf("duplicate modality %s", m)
		}
		seen[m] = true
		if _, ok := Lookup(m); !ok {
			t.Errorf("Lookup(%s) failed", m)
		}
	}
	if len(seen) != 8 {
		t.Errorf("expected 8 modalities, got %d", len(seen))
	}
}

func TestPixelConfig_EightBit(t *testing.T) {
	for _, m := range AllModalities() {
		pc := m.PixelConfig()
		if pc.BitsAllocated != 8 || pc.BitsStored != 8 || pc.HighBit != 7 {
			t.Errorf("%s: unexpected bit layout %+v", m, pc)
		}
		if pc.PixelRepresentation != 0 {
			t.Errorf("%s: synthetic pixels should be unsigned", m)
		}
	}
}

func TestAppendPixelElements(t *testing.T) {
	ds := &dicom.Dataset{}
	AppendPixelElements(ds, US, 32, 48)

	rows, err := ds.FindElementByTag(tag.Rows)
	if err != nil {
		t.Fatalf("Rows not found: %v", err)
	}
	if got := dicom.MustGetInts(rows.Value); got[0] != 32 {
		t.Errorf("Rows = %d, want 32", got[0])
	}
	mod, err := ds.FindElementByTag(tag.Modality)
	if err != nil {
		t.Fatalf("Modality not found: %v", err)
	}
	if got := dicom.MustGetStrings(mod.Value); got[0] != "US" {
		t.Errorf("Modality = %q, want US", got[0])
	}
}
