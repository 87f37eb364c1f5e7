// Package codecconfig writes lossless encoder configuration files for every
// volume listed in the conv_metadata.csv files of a converted collection.
package codecconfig

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/dustin/go-humanize"
	"github.com/mrsinham/dicomvol/internal/codec"
	"github.com/mrsinham/dicomvol/internal/logger"
	"github.com/mrsinham/dicomvol/internal/manifest"
	"github.com/mrsinham/dicomvol/internal/storage"
	"github.com/rs/zerolog"
)

// hmTemplate is a lossless 4:0:0 configuration in the key/value syntax of
// the HM and VTM reference encoders. JM accepts the same keys for AVC.
const hmTemplate = `InputFile: {{.Input}}
BitstreamFile: {{.Bitstream}}
SourceWidth: {{.Width}}
SourceHeight: {{.Height}}
FramesToBeEncoded: {{.Frames}}
FrameRate: 1
InputBitDepth: 8
Profile: monochrome
InputChromaFormat: 400
CostMode: lossless
QP: 0
TransquantBypassEnable: 1
CUTransquantBypassFlagForce: 1
GOPSize: 1
IntraPeriod: 1
LoopFilterDisable: 1
ConstrainedIntraPred: 1
SAO: 0
QuadtreeTULog2MaxSize: 5
`

// vtmTemplate adds the VVC specific lossless switches.
const vtmTemplate = `InputFile: {{.Input}}
BitstreamFile: {{.Bitstream}}
SourceWidth: {{.Width}}
SourceHeight: {{.Height}}
FramesToBeEncoded: {{.Frames}}
FrameRate: 1
InputBitDepth: 8
InternalBitDepth: 8
InputChromaFormat: 400
CostMode: lossless
QP: 0
TransquantBypassEnable: 1
BDPCM: 1
DepQuant: 0
LMCSEnable: 0
ALF: 0
CCALF: 0
DeblockingFilterDisable: 1
SAO: 0
GOPSize: 1
IntraPeriod: 1
`

// jp3dTemplate describes a reversible 3-D wavelet encode of the whole volume.
const jp3dTemplate = `InputFile: {{.Input}}
OutputFile: {{.Bitstream}}
Width: {{.Width}}
Height: {{.Height}}
Depth: {{.Frames}}
BitDepth: 8
Signed: 0
Components: 1
Transform: 3D-DWT
Filter: 5/3
Reversible: 1
Resolutions: 3,3,3
CodeBlock: 64,64,64
`

var templates = map[codec.Codec]*template.Template{
	codec.AVC:  template.Must(template.New("avc").Parse(hmTemplate)),
	codec.HEVC: template.Must(template.New("hevc").Parse(hmTemplate)),
	codec.VVC:  template.Must(template.New("vvc").Parse(vtmTemplate)),
	codec.JP3D: template.Must(template.New("jp3d").Parse(jp3dTemplate)),
}

// Params are the values substituted into a template.
type Params struct {
	Input     string
	Bitstream string
	Width     int
	Height    int
	Frames    int
}

// ParamsFor returns the template values for one converted volume.
func ParamsFor(r manifest.Result, c codec.Codec) Params {
	return Params{
		Input:     r.Name + ".raw",
		Bitstream: r.Name + c.EncodedExt(),
		Width:     r.Width,
		Height:    r.Height,
		Frames:    r.Depth,
	}
}

// Render returns the configuration text of c for r.
func Render(r manifest.Result, c codec.Codec) ([]byte, error) {
	t, ok := templates[c]
	if !ok {
		return nil, fmt.Errorf("no config template for codec %q", c)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, ParamsFor(r, c)); err != nil {
		return nil, fmt.Errorf("render %s config for %s: %w", c, r.Name, err)
	}
	return buf.Bytes(), nil
}

// ensureRaw makes sure the raw input the configs point at exists in dir.
// Volumes stored in another format are decoded and dumped as raw next to
// their sidecar; it reports whether a raw file was written. A missing volume
// is only logged.
func ensureRaw(dir, name string, log zerolog.Logger) (bool, error) {
	dst := storage.NewWriter(dir, storage.FormatRaw, log).Path(name, false)
	if _, err := os.Stat(dst); err == nil {
		return false, nil
	}
	for _, f := range storage.AllFormats() {
		if f == storage.FormatRaw {
			continue
		}
		src := storage.NewWriter(dir, f, log).Path(name, false)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		v, err := storage.Load(src)
		if err != nil {
			return false, fmt.Errorf("load %s: %w", src, err)
		}
		n, err := storage.DumpRaw(dst, v)
		if err != nil {
			return false, err
		}
		log.Info().Str("from", src).Str("file", dst).Str("size", humanize.Bytes(uint64(n))).Msg("raw input extracted")
		return true, nil
	}
	log.Warn().Str("dir", dir).Str("volume", name).Msg("no stored volume found, config input will be missing")
	return false, nil
}

// Run writes <name><ConfigExt> next to every conv_metadata.csv found under
// root, for each codec. Volumes stored in a format other than raw get a raw
// dump first. It returns the number of config files written.
func Run(root string, codecs []codec.Codec, log zerolog.Logger) (int, error) {
	log = logger.Component(log, "codecconfig")

	files, err := manifest.FindResults(root)
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		log.Warn().Str("root", root).Msg("no conv_metadata.csv found")
	}

	written := 0
	for _, file := range files {
		results, err := manifest.ReadResults(file)
		if err != nil {
			return written, err
		}
		dir := filepath.Dir(file)
		for _, r := range results {
			if _, err := ensureRaw(dir, r.Name, log); err != nil {
				return written, err
			}
		}
		for _, c := range codecs {
			for _, r := range results {
				data, err := Render(r, c)
				if err != nil {
					return written, err
				}
				path := filepath.Join(dir, r.Name+c.ConfigExt())
				if err := os.WriteFile(path, data, 0644); err != nil {
					return written, fmt.Errorf("write config: %w", err)
				}
				written++
			}
		}
		log.Info().Str("dir", dir).Int("volumes", len(results)).Int("codecs", len(codecs)).Msg("configs written")
	}
	return written, nil
}
