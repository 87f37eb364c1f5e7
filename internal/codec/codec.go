// Package codec names the volume codecs the benchmark tooling knows about and
// the file names each one reads and writes.
package codec

import (
	"fmt"
	"strings"
)

// Codec is a volume codec benchmarked on converted series.
type Codec string

const (
	AVC  Codec = "AVC"
	HEVC Codec = "HEVC"
	VVC  Codec = "VVC"
	JP3D Codec = "JP3D"
)

type info struct {
	suffix string // extension stem shared by config and bitstream names
}

var table = map[Codec]info{
	AVC:  {suffix: "264"},
	HEVC: {suffix: "265"},
	VVC:  {suffix: "266"},
	JP3D: {suffix: "jp3d"},
}

// All returns every codec in a fixed order.
func All() []Codec {
	return []Codec{AVC, HEVC, VVC, JP3D}
}

// Parse reads a codec name, case-insensitively.
func Parse(s string) (Codec, error) {
	c := Codec(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := table[c]; !ok {
		return "", fmt.Errorf("unknown codec %q (valid: AVC, HEVC, VVC, JP3D)", s)
	}
	return c, nil
}

// ParseList reads a comma-separated list of codecs. "all" or an empty string
// selects every codec. Duplicates are dropped.
func ParseList(s string) ([]Codec, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "all") {
		return All(), nil
	}
	seen := make(map[Codec]bool)
	var out []Codec
	for _, part := range strings.Split(s, ",") {
		c, err := Parse(part)
		if err != nil {
			return nil, err
		}
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out, nil
}

// ConfigExt is the extension of encoder config files, e.g. ".cfg265".
func (c Codec) ConfigExt() string { return ".cfg" + table[c].suffix }

// EncodedExt is the extension of encoded bitstreams, e.g. ".265e".
func (c Codec) EncodedExt() string { return "." + table[c].suffix + "e" }

// EncodeLog is the name of the encoder timing log.
func (c Codec) EncodeLog() string { return string(c) + "-enc.log" }

// DecodeLog is the name of the decoder timing log.
func (c Codec) DecodeLog() string { return string(c) + "-dec.log" }

// ResultsFile is the name of the result sheet.
func (c Codec) ResultsFile() string { return string(c) + "-results.csv" }

func (c Codec) String() string { return string(c) }
