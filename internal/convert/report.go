package convert

import (
	"github.com/mrsinham/dicomvol/internal/histogram"
	"github.com/mrsinham/dicomvol/internal/ingest"
	"github.com/mrsinham/dicomvol/internal/manifest"
	"github.com/mrsinham/dicomvol/internal/selection"
)

// SeriesReport is what happened to one manifest row.
type SeriesReport struct {
	Descriptor manifest.Descriptor
	Decision   selection.Decision
	Result     manifest.Result
	Ingest     *ingest.Report // nil for rejected series
	Summary    histogram.Summary
	Bytes      int64
	Err        error
}

// Report summarizes a run. Series has one entry per manifest row, in
// manifest order.
type Report struct {
	OutputDir    string
	ManifestPath string // empty when conv_metadata.csv was not written
	Series       []SeriesReport
	Counts       map[string]int // converted series per modality
	BytesWritten int64
}

// Results returns the result of every series, in manifest order.
func (r *Report) Results() []manifest.Result {
	out := make([]manifest.Result, len(r.Series))
	for i, s := range r.Series {
		out[i] = s.Result
	}
	return out
}

// Converted returns the number of series written out.
func (r *Report) Converted() int {
	n := 0
	for _, s := range r.Series {
		if s.Result.Converted {
			n++
		}
	}
	return n
}

// Rejected returns the number of series the selection policy turned down.
func (r *Report) Rejected() int {
	n := 0
	for _, s := range r.Series {
		if !s.Decision.Accept {
			n++
		}
	}
	return n
}

// Failed returns the number of accepted series that could not be converted.
func (r *Report) Failed() int {
	n := 0
	for _, s := range r.Series {
		if s.Decision.Accept && !s.Result.Converted {
			n++
		}
	}
	return n
}

// Packed returns the number of converted series that also got a packed volume.
func (r *Report) Packed() int {
	n := 0
	for _, s := range r.Series {
		if s.Result.Converted && s.Result.Packed {
			n++
		}
	}
	return n
}

// SkippedSlices returns the number of slice files left out across all series.
func (r *Report) SkippedSlices() int {
	n := 0
	for _, s := range r.Series {
		if s.Ingest != nil {
			n += s.Ingest.Skipped()
		}
	}
	return n
}
