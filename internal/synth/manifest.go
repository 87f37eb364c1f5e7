package synth

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/mrsinham/dicomvol/internal/dicom/modalities"
)

// ManifestName is the file name WriteManifest uses.
const ManifestName = "metadata.csv"

// tciaHeader mirrors the column layout of a TCIA download manifest.
var tciaHeader = []string{
	"Series UID", "Collection", "3rd Party Analysis", "Data Description URI",
	"Subject ID", "Study UID", "Study Description", "Study Date",
	"Series Description", "Manufacturer", "Modality", "SOP Class Name",
	"SOP Class UID", "Number of Images", "File Size", "File Location",
	"Download Timestamp",
}

// SeriesSpec describes one series of a synthetic collection.
type SeriesSpec struct {
	Collection string
	Modality   modalities.Modality
	Slices     int
	Declared   int    // slice count written to the manifest, 0 = Slices
	Folder     string // relative to the collection directory
	Levels     int    // 0 = inherit from the base options
}

func (s SeriesSpec) declared() int {
	if s.Declared > 0 {
		return s.Declared
	}
	return s.Slices
}

// WriteManifest writes a TCIA-style metadata.csv describing specs into dir
// and returns its path.
func WriteManifest(dir string, specs []SeriesSpec) (string, error) {
	path := filepath.Join(dir, ManifestName)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create manifest: %w", err)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	if err := w.Write(tciaHeader); err != nil {
		return "", err
	}
	for _, s := range specs {
		info, _ := modalities.Lookup(s.Modality)
		row := make([]string, len(tciaHeader))
		row[0] = deterministicUID(filepath.Join(dir, s.Folder) + "_series")
		row[1] = s.Collection
		row[3] = "https://doi.org/10.7937/synthetic"
		row[4] = s.Collection + "-" + s.Folder
		row[8] = "synthetic " + string(s.Modality)
		row[9] = "dicomvol"
		row[10] = string(s.Modality)
		row[11] = info.Name + " Image Storage"
		row[12] = s.Modality.SOPClassUID()
		row[13] = strconv.Itoa(s.declared())
		row[15] = "./" + filepath.ToSlash(s.Folder)
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	return path, nil
}

// GenerateCollection writes every series in specs under dir, then the
// manifest describing them. base supplies size, levels and seed; each
// series gets its own directory and a seed offset by its position.
func GenerateCollection(dir string, specs []SeriesSpec, base Options) (string, error) {
	for i, s := range specs {
		opts := base
		opts.Dir = filepath.Join(dir, s.Folder)
		opts.Modality = s.Modality
		opts.Slices = s.Slices
		if s.Levels > 0 {
			opts.Levels = s.Levels
		}
		if base.Seed != 0 {
			opts.Seed = base.Seed + uint64(i)*1000
		}
		if _, err := GenerateSeries(opts); err != nil {
			return "", fmt.Errorf("series %s: %w", s.Folder, err)
		}
	}
	return WriteManifest(dir, specs)
}
